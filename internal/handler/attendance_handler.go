package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fundeport/academy-api/internal/service"
	appErrors "github.com/fundeport/academy-api/pkg/errors"
	"github.com/fundeport/academy-api/pkg/response"
)

// AttendanceHandler exposes per-session attendance endpoints.
type AttendanceHandler struct {
	service *service.AttendanceService
}

// NewAttendanceHandler constructs an attendance handler.
func NewAttendanceHandler(svc *service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{service: svc}
}

// Sheet godoc
// @Summary Get the attendance sheet for a session
// @Tags Attendance
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/attendance [get]
func (h *AttendanceHandler) Sheet(c *gin.Context) {
	entries, err := h.service.ListForSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Record godoc
// @Summary Record attendance for one student
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.AttendanceEntryRequest true "Attendance payload"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/attendance [put]
func (h *AttendanceHandler) Record(c *gin.Context) {
	var req service.AttendanceEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.service.Record(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// BulkRecord godoc
// @Summary Record attendance for a whole session roster
// @Tags Attendance
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body service.BulkAttendanceRequest true "Attendance payload"
// @Success 200 {object} response.Envelope
// @Router /sessions/{id}/attendance/bulk [post]
func (h *AttendanceHandler) BulkRecord(c *gin.Context) {
	var req service.BulkAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	entries, err := h.service.BulkRecord(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}
