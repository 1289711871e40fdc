package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"notify-delivery-backend/internal/model"
)

type putEndpointRequest struct {
	Token      string         `json:"token" binding:"required"`
	UserID     int64          `json:"user_id" binding:"required,gt=0"`
	Platform   model.Platform `json:"platform" binding:"omitempty,oneof=webpush fcm sns"`
	P256DH     string         `json:"p256dh"`
	Auth       string         `json:"auth"`
	Categories []string       `json:"categories"`
}

type endpointResponse struct {
	Token      string           `json:"token"`
	UserID     int64            `json:"user_id"`
	Platform   model.Platform   `json:"platform"`
	Categories []model.Category `json:"categories"`
}

func newEndpointResponse(e *model.Endpoint) endpointResponse {
	active := make([]model.Category, 0, len(model.Categories))
	for _, c := range model.Categories {
		if e.ActiveFor(c) {
			active = append(active, c)
		}
	}
	return endpointResponse{
		Token:      e.Token,
		UserID:     e.UserID,
		Platform:   e.Platform,
		Categories: active,
	}
}

// PutEndpoint registers a device token or replaces its owner, keys and
// active categories.
func (h *Handler) PutEndpoint(c *gin.Context) {
	var req putEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	endpoint := &model.Endpoint{
		ID:       uuid.NewString(),
		Token:    strings.TrimSpace(req.Token),
		UserID:   req.UserID,
		Platform: req.Platform,
		P256DH:   req.P256DH,
		Auth:     req.Auth,
	}
	if endpoint.Platform == "" {
		endpoint.Platform = model.PlatformWebPush
	}
	if endpoint.Platform == model.PlatformWebPush && (req.P256DH == "" || req.Auth == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "p256dh and auth are required for webpush"})
		return
	}
	for _, raw := range req.Categories {
		category, ok := model.ParseCategory(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown category " + raw})
			return
		}
		endpoint.SetActive(category, true)
	}

	saved, err := h.store.UpsertEndpoint(c.Request.Context(), endpoint)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, newEndpointResponse(saved))
}

// GetEndpoint returns the categories active on a token.
func (h *Handler) GetEndpoint(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	endpoint, err := h.store.GetEndpoint(c.Request.Context(), token)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, newEndpointResponse(endpoint))
}

type deleteEndpointRequest struct {
	Token string `json:"token" binding:"required"`
}

// DeleteEndpoint unregisters a token on behalf of its device.
func (h *Handler) DeleteEndpoint(c *gin.Context) {
	var req deleteEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.store.DeleteEndpoint(c.Request.Context(), req.Token); err != nil {
		h.abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
