package router

import (
	"github.com/gin-gonic/gin"

	"github.com/pricepulse/pricepulse/internal/handler"
)

// Config carries the handlers the router mounts.
type Config struct {
	PriceHandler *handler.PriceHandler
	JobHandler   *handler.JobHandler
}

// NewRouter builds the gin engine with all v1 routes registered.
func NewRouter(cfg *Config) *gin.Engine {
	router := gin.Default()

	api := router.Group("/v1")
	registerPriceRoutes(api, cfg.PriceHandler, cfg.JobHandler)
	registerJobRoutes(api, cfg.JobHandler)

	return router
}

func registerPriceRoutes(router *gin.RouterGroup, priceHandler *handler.PriceHandler, jobHandler *handler.JobHandler) {
	prices := router.Group("/prices")
	{
		prices.GET("/latest", priceHandler.GetLatest)
		prices.GET("/history/:symbol", priceHandler.GetHistory)
		prices.GET("/moving-average/:symbol", priceHandler.GetMovingAverage)
		prices.POST("/poll", jobHandler.Submit)
	}
}

func registerJobRoutes(router *gin.RouterGroup, jobHandler *handler.JobHandler) {
	jobs := router.Group("/jobs")
	{
		jobs.GET("", jobHandler.List)
		jobs.GET("/:id", jobHandler.Get)
		jobs.POST("/:id/pause", jobHandler.Pause)
		jobs.POST("/:id/resume", jobHandler.Resume)
		jobs.DELETE("/:id", jobHandler.Cancel)
	}
}
