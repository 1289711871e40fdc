package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"notify-delivery-backend/config"
	"notify-delivery-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, cfg config.ServerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), mw.Logger(h.log))

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	r.Use(cors.New(corsConfig))

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst, h.log)

	// Only static lookups are cached; notification reads change per event.
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	caching := mw.Cache(cache.New(ttl, 2*ttl), ttl)

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/categories", caching, h.GetCategories)
		api.GET("/vapid_public_key", caching, h.GetVAPIDPublicKey)

		api.GET("/endpoints", h.GetEndpoint)
		api.PUT("/endpoints", h.PutEndpoint)
		api.DELETE("/endpoints", h.DeleteEndpoint)

		users := api.Group("/users/:user_id/notifications")
		users.GET("", h.ListNotifications)
		users.GET("/unread_count", h.UnreadCount)
		users.POST("/:id/read", h.MarkRead)
	}

	admin := r.Group("/api/admin")
	{
		admin.POST("/notify", h.Notify)
		admin.GET("/notifications/:id/deliveries", h.Deliveries)
		admin.POST("/reconcile", h.Reconcile)
		admin.POST("/cleanup", h.Cleanup)
		admin.DELETE("/endpoints", h.RemoveEndpoint)
	}

	return r
}
