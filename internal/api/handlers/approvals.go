package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/frostdev-ops/campaign-automation/internal/core/automation"
	"github.com/frostdev-ops/campaign-automation/pkg/utils"
)

// ResolutionRequest is the body of approve, reject, acknowledge and resolve
type ResolutionRequest struct {
	ResolvedBy string `json:"resolved_by" binding:"required"`
	Note       string `json:"note"`
}

var pendingStatuses = map[automation.PendingStatus]bool{
	automation.PendingStatusPending:  true,
	automation.PendingStatusApproved: true,
	automation.PendingStatusRejected: true,
	automation.PendingStatusExpired:  true,
	automation.PendingStatusExecuted: true,
}

// ListPendingActions lists an organization's pending actions, optionally by status
func (h *Handlers) ListPendingActions(c *gin.Context) {
	status := automation.PendingStatus(c.Query("status"))
	if status != "" && !pendingStatuses[status] {
		invalid(c, "list pending actions", "unknown status %q", status)
		return
	}

	actions, err := h.rules.ListPendingActions(c.Request.Context(), c.Param("org_id"), status)
	if err != nil {
		fail(c, err)
		return
	}
	utils.SendSuccessWithMeta(c, actions, gin.H{"count": len(actions)})
}

// ApprovePendingAction approves and executes a pending action
func (h *Handlers) ApprovePendingAction(c *gin.Context) {
	req, ok := bindResolution(c)
	if !ok {
		return
	}

	pending, err := h.approvals.Approve(c.Request.Context(), c.Param("id"), req.ResolvedBy, req.Note)
	if err != nil {
		fail(c, err)
		return
	}
	utils.SendSuccess(c, pending)
}

// RejectPendingAction rejects a pending action without executing it
func (h *Handlers) RejectPendingAction(c *gin.Context) {
	req, ok := bindResolution(c)
	if !ok {
		return
	}

	pending, err := h.approvals.Reject(c.Request.Context(), c.Param("id"), req.ResolvedBy, req.Note)
	if err != nil {
		fail(c, err)
		return
	}
	utils.SendSuccess(c, pending)
}

func bindResolution(c *gin.Context) (ResolutionRequest, bool) {
	var req ResolutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalid(c, "bind resolution", "resolved_by is required")
		return req, false
	}
	return req, true
}
