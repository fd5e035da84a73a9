package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/ordermesh/pkg/response"
)

// LivenessHandler はlivenessプローブのハンドラを返す。プロセスが動いていれば常に200。
func LivenessHandler(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		response.OK(c, http.StatusOK, gin.H{
			"status":    "ok",
			"service":   service,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// ReadinessHandler はreadinessプローブのハンドラを返す。
// すべてのチェックがupなら200、それ以外は503。
func ReadinessHandler(registry *Registry, timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		report := registry.CheckAll(ctx)
		if report.Status == StatusDown {
			c.JSON(http.StatusServiceUnavailable, response.Envelope{
				Success: false,
				Data:    report,
				Error:   &response.ErrorBody{Code: "NOT_READY", Message: "one or more dependencies are down"},
			})
			return
		}
		response.OK(c, http.StatusOK, report)
	}
}
