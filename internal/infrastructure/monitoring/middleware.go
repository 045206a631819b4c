package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Middleware creates a gin middleware that records request metrics. The
// route template (not the raw URL) labels the metric to keep cardinality
// bounded.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
		)
	}
}

// Handler serves the Prometheus scrape endpoint for this collector set.
func Handler(metrics *Metrics) gin.HandlerFunc {
	h := promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}
