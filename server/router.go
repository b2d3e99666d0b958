package server

import (
	"time"

	httpHandler "video-gateway/interfaces/http"
	"video-gateway/interfaces/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Handlers struct {
	Gateway httpHandler.IGatewayHandler
	Control httpHandler.IControlHandler
	Media   httpHandler.IMediaHandler
	Health  httpHandler.IHealthHandler
	// PreloadStream serves the SSE feed of preload task updates. Optional.
	PreloadStream gin.HandlerFunc
}

func InitiateRouter(h Handlers, corsOrigins []string, secretKey string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     corsOrigins,
		AllowMethods:     []string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "Range", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length", "Content-Range", httpHandler.HeaderCache, httpHandler.HeaderCacheStrategy, "X-Original-Size", "X-Optimized-Size", "X-Compression-Ratio", "X-Output-Dimensions"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", h.Health.Healthz)

	control := router.Group("/_gateway")
	control.Use(middleware.Auth(secretKey))
	{
		control.POST("/messages", h.Control.Message)
		control.POST("/lifecycle/:event", h.Control.Lifecycle)
		control.POST("/sync", h.Control.Sync)
		control.GET("/preload", h.Control.PreloadStatus)
		control.GET("/stats", h.Control.Stats)
		if h.PreloadStream != nil {
			control.GET("/preload/stream", h.PreloadStream)
		}
	}

	if h.Media != nil {
		media := router.Group("/api/media")
		media.POST("/analyze", h.Media.Analyze)
		media.POST("/optimize", h.Media.Optimize)
		media.POST("/thumbnail", h.Media.Thumbnail)
	}

	// Everything else goes through the caching strategies.
	router.NoRoute(h.Gateway.Proxy)

	return router
}
