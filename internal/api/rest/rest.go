package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/late24/playrank/internal/api/middleware"
)

// SetupRoutes configures all REST API routes. rateLimit guards the ingest
// path; administrative routes require auth when credentials are configured.
func SetupRoutes(router *gin.Engine, handler Handler, authCfg middleware.AuthConfig, rateLimit gin.HandlerFunc) {
	// Health check endpoint (no auth)
	router.GET("/health", handler.HealthCheck)

	guarded := func(h gin.HandlerFunc) []gin.HandlerFunc {
		if authCfg.Enabled() {
			return []gin.HandlerFunc{middleware.Auth(authCfg), h}
		}
		return []gin.HandlerFunc{h}
	}

	// Play event endpoints
	router.GET("/items/:key", handler.GetItem)
	if rateLimit != nil {
		router.POST("/items", rateLimit, handler.CreateItem)
	} else {
		router.POST("/items", handler.CreateItem)
	}
	router.DELETE("/items/:key", guarded(handler.DeleteItem)...)

	// Play count endpoints; both routes share the :makerId wildcard name,
	// play_count_many reads it as a comma-separated list
	router.GET("/makers/:makerId/play_count", handler.GetPlayCount)
	router.GET("/makers/:makerId/play_count_many", handler.GetPlayCountMany)

	// Ranking endpoints
	router.GET("/ranking", handler.GetRanking)
	router.POST("/ranking/update", guarded(handler.UpdateRanking)...)
}
