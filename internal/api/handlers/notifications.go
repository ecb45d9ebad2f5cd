package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/frostdev-ops/campaign-automation/pkg/utils"
)

// ListNotifications returns the newest in-app notifications; ?unread=true filters
func (h *Handlers) ListNotifications(c *gin.Context) {
	limit, err := parseLimit(c)
	if err != nil {
		fail(c, err)
		return
	}

	unreadOnly := c.Query("unread") == "true"
	notifications, err := h.notifications.ListNotifications(c.Request.Context(), c.Param("org_id"), unreadOnly, limit)
	if err != nil {
		fail(c, err)
		return
	}
	utils.SendSuccessWithMeta(c, notifications, gin.H{"count": len(notifications), "limit": limit})
}

// MarkNotificationRead marks one notification as read
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	orgID, id := c.Param("org_id"), c.Param("id")
	if err := h.notifications.MarkRead(c.Request.Context(), orgID, id, h.now()); err != nil {
		fail(c, err)
		return
	}
	utils.SendSuccess(c, gin.H{"id": id, "read": true})
}
