package handlers

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/frostdev-ops/campaign-automation/internal/core/alerts"
	apperrors "github.com/frostdev-ops/campaign-automation/pkg/errors"
	"github.com/frostdev-ops/campaign-automation/pkg/utils"
)

// GetAlert returns one alert definition
func (h *Handlers) GetAlert(c *gin.Context) {
	alert, err := h.alerts.GetAlert(c.Request.Context(), c.Param("org_id"), c.Param("alert_id"))
	if err != nil {
		fail(c, err)
		return
	}
	utils.SendSuccess(c, alert)
}

// PutAlert creates or replaces an alert definition
func (h *Handlers) PutAlert(c *gin.Context) {
	orgID, alertID := c.Param("org_id"), c.Param("alert_id")

	var alert alerts.Alert
	if err := c.ShouldBindJSON(&alert); err != nil {
		fail(c, apperrors.Validation("bind alert", err))
		return
	}
	if (alert.ID != "" && alert.ID != alertID) || (alert.OrgID != "" && alert.OrgID != orgID) {
		invalid(c, "put alert", "body identifies a different alert than the path")
		return
	}
	alert.ID, alert.OrgID = alertID, orgID
	alert.IsTriggered = false
	alert.LastTriggeredAt = nil
	alert.CreatedAt = time.Time{}

	if alert.Name == "" {
		invalid(c, "put alert", "name is required")
		return
	}
	if _, err := alert.ResolveCondition(); err != nil {
		fail(c, apperrors.Validation("put alert", err))
		return
	}

	ctx := c.Request.Context()
	if err := h.alerts.SaveAlert(ctx, &alert); err != nil {
		fail(c, err)
		return
	}
	saved, err := h.alerts.GetAlert(ctx, orgID, alertID)
	if err != nil {
		fail(c, err)
		return
	}
	utils.SendSuccess(c, saved)
}

// ListAlertHistory returns an organization's newest alert breaches
func (h *Handlers) ListAlertHistory(c *gin.Context) {
	limit, err := parseLimit(c)
	if err != nil {
		fail(c, err)
		return
	}

	history, err := h.alerts.ListHistory(c.Request.Context(), c.Param("org_id"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	utils.SendSuccessWithMeta(c, history, gin.H{"count": len(history), "limit": limit})
}

// AcknowledgeAlert marks a breach as seen
func (h *Handlers) AcknowledgeAlert(c *gin.Context) {
	h.transitionHistory(c, h.history.Acknowledge)
}

// ResolveAlert closes a breach
func (h *Handlers) ResolveAlert(c *gin.Context) {
	h.transitionHistory(c, h.history.Resolve)
}

func (h *Handlers) transitionHistory(c *gin.Context, move func(ctx context.Context, id, by string) (*alerts.History, error)) {
	req, ok := bindResolution(c)
	if !ok {
		return
	}
	row, err := move(c.Request.Context(), c.Param("id"), req.ResolvedBy)
	if err != nil {
		fail(c, err)
		return
	}
	utils.SendSuccess(c, row)
}
