package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"smart-locker-backend/config"
	"smart-locker-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(svc Lifecycle, cfg config.ServerConfig, logger *slog.Logger) *gin.Engine {
	r := gin.Default()

	responseCache := mw.NewResponseCache(time.Duration(cfg.CacheTTLSeconds) * time.Second)
	throttle := mw.NewPickupThrottle(cfg.MaxFailedPickups, time.Duration(cfg.PickupLockoutSeconds)*time.Second)
	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	handler := NewHandler(svc, responseCache, logger)

	r.GET("/health", handler.Health)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.POST("/delivery/login", handler.DeliveryLogin)
		api.POST("/pickup", throttle.Middleware(), handler.Pickup)
		api.GET("/status", handler.Status)
		api.GET("/lockers", responseCache.Middleware(), handler.ListLockers)

		delivery := api.Group("")
		if cfg.DeliveryPINRequired() {
			delivery.Use(handler.RequireDeliveryPIN)
		}
		delivery.POST("/lockers/:id/deposit", handler.Deposit)
		delivery.PUT("/lockers/:id/config", handler.Reconfigure)
		delivery.POST("/simulator/lockers/:id/close", handler.CloseDoor)
	}

	return r
}
