package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fundeport/academy-api/internal/service"
	"github.com/fundeport/academy-api/pkg/response"
)

// MetricsHandler exposes the Prometheus scrape endpoint and an admin
// snapshot of runtime counters.
type MetricsHandler struct {
	service *service.MetricsService
}

// NewMetricsHandler constructs a metrics handler.
func NewMetricsHandler(svc *service.MetricsService) *MetricsHandler {
	return &MetricsHandler{service: svc}
}

// Prometheus returns the scrape handler wrapped for gin.
func (h *MetricsHandler) Prometheus() gin.HandlerFunc {
	return gin.WrapH(h.service.Handler())
}

// Snapshot godoc
// @Summary Get a snapshot of runtime metrics
// @Tags Metrics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /metrics/snapshot [get]
func (h *MetricsHandler) Snapshot(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.Snapshot(), nil)
}
