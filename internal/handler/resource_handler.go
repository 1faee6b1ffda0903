package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fundeport/academy-api/internal/service"
	appErrors "github.com/fundeport/academy-api/pkg/errors"
	"github.com/fundeport/academy-api/pkg/response"
)

// ResourceHandler exposes class material endpoints.
type ResourceHandler struct {
	service *service.ResourceService
}

// NewResourceHandler constructs a resource handler.
func NewResourceHandler(svc *service.ResourceService) *ResourceHandler {
	return &ResourceHandler{service: svc}
}

// ListBySession godoc
// @Summary List materials attached to a session
// @Tags Resources
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/resources [get]
func (h *ResourceHandler) ListBySession(c *gin.Context) {
	resources, err := h.service.ListBySession(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resources, nil)
}

// Create godoc
// @Summary Attach a material to a session
// @Tags Resources
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.ResourceRequest true "Resource payload"
// @Success 201 {object} response.Envelope
// @Router /sessions/{id}/resources [post]
func (h *ResourceHandler) Create(c *gin.Context) {
	var req service.ResourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	resource, err := h.service.Create(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, resource)
}

// Delete godoc
// @Summary Detach a material
// @Tags Resources
// @Produce json
// @Param id path string true "Resource ID"
// @Success 204
// @Router /resources/{id} [delete]
func (h *ResourceHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
