package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"notify-delivery-backend/internal/notification"
)

type endpointFailure struct {
	Token string `json:"token"`
	Error string `json:"error"`
}

// Notify handles POST /api/admin/notify, the entry point for business
// events. The response is sent once the deliveries are queued.
func (h *Handler) Notify(c *gin.Context) {
	var req notification.NotifyInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.notifications.Notify(c.Request.Context(), req)
	var dispatchErr *notification.DispatchError
	switch {
	case errors.As(err, &dispatchErr):
		failed := make([]endpointFailure, len(dispatchErr.Failed))
		for i, f := range dispatchErr.Failed {
			failed[i] = endpointFailure{Token: f.Token, Error: f.Err.Error()}
		}
		h.log.Warn("notification partly dispatched",
			zap.String("notification_id", id),
			zap.Int("not_dispatched", len(failed)))
		c.JSON(http.StatusAccepted, gin.H{"notification_id": id, "not_dispatched": failed})
		return
	case err != nil:
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"notification_id": id})
}

// Deliveries handles GET /api/admin/notifications/:id/deliveries.
func (h *Handler) Deliveries(c *gin.Context) {
	stats, err := h.notifications.Deliveries(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Reconcile runs a reconciliation pass now.
func (h *Handler) Reconcile(c *gin.Context) {
	report, err := h.reconciler.Run(c.Request.Context())
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Cleanup runs an endpoint cleanup pass now.
func (h *Handler) Cleanup(c *gin.Context) {
	report, err := h.cleaner.Run(c.Request.Context())
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// RemoveEndpoint handles DELETE /api/admin/endpoints?token=.
func (h *Handler) RemoveEndpoint(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	removal, err := h.cleaner.DeleteEndpoint(c.Request.Context(), token)
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	if !removal.EndpointDeleted && removal.LogsPurged == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
		return
	}
	c.JSON(http.StatusOK, removal)
}
