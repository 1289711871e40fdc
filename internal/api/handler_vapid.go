package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"notify-delivery-backend/internal/model"
)

// GetVAPIDPublicKey returns the VAPID public key browsers subscribe with.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vapid keys are not configured"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"public_key": h.webpush.VAPIDPublicKey})
}

// GetCategories lists the notification categories an endpoint can toggle.
func (h *Handler) GetCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": model.Categories})
}
