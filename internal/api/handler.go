package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"smart-locker-backend/internal/locker"
	"smart-locker-backend/internal/model"
	"smart-locker-backend/internal/mw"
)

// Lifecycle is the locker service surface exposed over HTTP.
type Lifecycle interface {
	Deposit(ctx context.Context, id int64) (*locker.DepositResult, error)
	Pickup(ctx context.Context, code string) (*locker.PickupResult, error)
	Status(ctx context.Context) (*locker.StatusReport, error)
	Reconfigure(ctx context.Context, req locker.ReconfigureRequest) (*model.Locker, error)
	ForceClose(ctx context.Context, id int64) error
	AuthenticateDelivery(ctx context.Context, pin string) (*model.DeliveryUser, error)
	ListConfig(ctx context.Context) ([]locker.LockerConfig, error)
	HardwareStatus() locker.HardwareStatus
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	svc    Lifecycle
	cache  *mw.ResponseCache
	logger *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(svc Lifecycle, cache *mw.ResponseCache, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		svc:    svc,
		cache:  cache,
		logger: logger.With("component", "api"),
	}
}

// changed drops cached listings after a write.
func (h *Handler) changed() {
	if h.cache != nil {
		h.cache.Flush()
	}
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "hardware": h.svc.HardwareStatus()})
}
