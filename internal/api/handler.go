package api

import (
	"errors"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"notify-delivery-backend/internal/notification"
	"notify-delivery-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store         store.Store
	notifications *notification.Service
	reconciler    *notification.Reconciler
	cleaner       *notification.Cleaner
	webpush       *webpush.Options
	log           *zap.Logger
}

// Deps groups what the handlers need. Any part may be nil in tests that do
// not reach it.
type Deps struct {
	Store         store.Store
	Notifications *notification.Service
	Reconciler    *notification.Reconciler
	Cleaner       *notification.Cleaner
	WebPush       *webpush.Options
	Log           *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		store:         d.Store,
		notifications: d.Notifications,
		reconciler:    d.Reconciler,
		cleaner:       d.Cleaner,
		webpush:       d.WebPush,
		log:           log,
	}
}

// abortWithError maps service errors to a status code.
func (h *Handler) abortWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, notification.ErrInvalidInput):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// Healthz pings the database.
func (h *Handler) Healthz(c *gin.Context) {
	sqlDB, err := h.store.DB().DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
