package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"net/http"

	"alert-engine/internal/config"
)

func NewRouter(h *Handler, hub *Hub, logger *logrus.Logger, cfg config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	api := r.Group(cfg.API.BasePath)
	{
		// Threshold rules
		api.POST("/thresholds", h.CreateThreshold)
		api.GET("/thresholds", h.ListThresholds)
		api.GET("/thresholds/:id", h.GetThreshold)
		api.PUT("/thresholds/:id", h.UpdateThreshold)
		api.POST("/thresholds/:id/toggle", h.ToggleThreshold)
		api.DELETE("/thresholds/:id", h.DeleteThreshold)

		// Alerts
		api.GET("/alerts", h.ListActiveAlerts)
		api.GET("/alerts/stats/levels", h.AlertLevelStats)
		api.GET("/alerts/stats/daily", h.AlertDailyStats)
		api.POST("/alerts", h.CreateManualAlert)

		// Maintenance
		api.POST("/scheduler/trigger", h.TriggerTick)
		api.POST("/tokens/sweep", h.TriggerSweep)
	}

	r.GET("/ws", hub.ServeFeed)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
