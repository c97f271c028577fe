package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tracker/internal/models"
)

// handleListNotifications returns a user's notifications, newest first.
func (s *Server) handleListNotifications(c *gin.Context) {
	userID, ok := parseID(c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	items, err := s.store.ListNotifications(c.Request.Context(), userID, c.Query("unread") == "true", limit)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if items == nil {
		items = []models.Notification{}
	}
	respondSuccess(c, http.StatusOK, gin.H{"notifications": items})
}

// handleMarkNotificationRead flags a notification read for its recipient.
func (s *Server) handleMarkNotificationRead(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req actorRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	actor := actorID(c, req.UserID)
	if actor == nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "an acting user is required"})
		return
	}
	if err := s.store.MarkNotificationRead(c.Request.Context(), id, *actor); err != nil {
		s.respondError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "read"})
}
