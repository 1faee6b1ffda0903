package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fundeport/academy-api/internal/service"
)

// Metrics records method, route and status for every request. The route
// template keeps label cardinality bounded; unmatched paths fall back to the
// raw URL.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	if metricsSvc == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
