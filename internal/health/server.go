package health

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Register mounts /health, /health/detailed and /metrics on r.
func Register(r gin.IRoutes, monitor *Monitor) {
	r.GET("/health", func(c *gin.Context) {
		report := monitor.CheckHealth(c.Request.Context())
		code := http.StatusOK
		if report.SystemStatus == StatusCritical {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": report.SystemStatus})
	})
	r.GET("/health/detailed", func(c *gin.Context) {
		c.JSON(http.StatusOK, monitor.CheckHealth(c.Request.Context()))
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
