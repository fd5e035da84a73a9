package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// GinMiddleware はHTTPメトリクスを記録するGinミドルウェアを返す。
func GinMiddleware(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		handler := c.FullPath()
		if handler == "" {
			handler = "unknown"
		}

		HTTPRequestDuration.WithLabelValues(service, handler, c.Request.Method, status).Observe(duration)
		HTTPRequestsTotal.WithLabelValues(service, handler, c.Request.Method, status).Inc()
	}
}
