package router

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

// setupHealthRoutes registers health, runtime info and metrics endpoints
func (r *Router) setupHealthRoutes() {
	r.Engine.GET("/health", r.Container.Health.Handler())
	r.Engine.GET("/api/v2/health", r.Container.Health.Handler())

	r.Engine.GET("/info", func(c *gin.Context) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		c.JSON(http.StatusOK, gin.H{
			"env":       r.Container.Config.Server.Env,
			"uptime":    time.Since(startTime).Round(time.Second).String(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"websocket": gin.H{
				"active_connections": r.Hub.ActiveConnections(),
			},
			"gateway": r.Container.Breaker.Metrics(),
			"memory": gin.H{
				"alloc_mb":  memStats.Alloc / 1024 / 1024,
				"sys_mb":    memStats.Sys / 1024 / 1024,
				"gc_cycles": memStats.NumGC,
			},
		})
	})

	if r.Container.Metrics != nil {
		r.Engine.GET("/metrics", gin.WrapH(r.Container.Metrics.Handler))
	}
}
