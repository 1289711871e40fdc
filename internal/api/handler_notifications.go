package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"notify-delivery-backend/internal/model"
)

const maxPageSize = 100

func userIDParam(c *gin.Context) (int64, bool) {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return 0, false
	}
	return userID, true
}

// ListNotifications handles GET /api/users/:user_id/notifications.
func (h *Handler) ListNotifications(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	var category *model.Category
	if raw := c.Query("category"); raw != "" {
		parsed, ok := model.ParseCategory(raw)
		if !ok {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown category"})
			return
		}
		category = &parsed
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}
	offset, _ := strconv.Atoi(c.Query("offset"))
	if offset < 0 {
		offset = 0
	}

	list, err := h.notifications.List(c.Request.Context(), userID, category, limit, offset)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"notifications": list})
}

// UnreadCount handles GET /api/users/:user_id/notifications/unread_count.
func (h *Handler) UnreadCount(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	count, err := h.notifications.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread": count})
}

// MarkRead handles POST /api/users/:user_id/notifications/:id/read.
func (h *Handler) MarkRead(c *gin.Context) {
	userID, ok := userIDParam(c)
	if !ok {
		return
	}

	n, err := h.notifications.MarkRead(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, n)
}
