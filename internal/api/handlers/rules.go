package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/campaign-automation/internal/core/automation"
	apperrors "github.com/frostdev-ops/campaign-automation/pkg/errors"
	"github.com/frostdev-ops/campaign-automation/pkg/utils"
)

// RunRule evaluates one rule immediately. Cooldown and the daily cap still apply.
func (h *Handlers) RunRule(c *gin.Context) {
	orgID, ruleID := c.Param("org_id"), c.Param("rule_id")

	outcome, err := h.passes.RunRuleNow(c.Request.Context(), orgID, ruleID)
	if err != nil {
		fail(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"org_id":    orgID,
		"rule_id":   ruleID,
		"triggered": outcome.Triggered(),
		"skipped":   outcome.Skipped,
	}).Info("Rule run on demand")

	utils.SendSuccess(c, outcome)
}

// GetRule returns one rule definition with its bookkeeping
func (h *Handlers) GetRule(c *gin.Context) {
	rule, err := h.rules.GetRule(c.Request.Context(), c.Param("org_id"), c.Param("rule_id"))
	if err != nil {
		fail(c, err)
		return
	}
	utils.SendSuccess(c, rule)
}

// PutRule creates or replaces a rule definition. The body may be JSON or YAML.
func (h *Handlers) PutRule(c *gin.Context) {
	orgID, ruleID := c.Param("org_id"), c.Param("rule_id")

	rule, ok := h.parseRule(c)
	if !ok {
		return
	}
	if (rule.ID != "" && rule.ID != ruleID) || (rule.OrgID != "" && rule.OrgID != orgID) {
		invalid(c, "put rule", "body identifies a different rule than the path")
		return
	}
	rule.ID, rule.OrgID = ruleID, orgID

	// Bookkeeping is owned by evaluation
	rule.LastEvaluatedAt = nil
	rule.LastTriggeredAt = nil
	rule.ExecutionCount = 0
	rule.TriggerVersion = 0
	rule.CreatedAt = time.Time{}

	if result := rule.Validate(); !result.Valid {
		utils.SendErrorWithDetails(c, http.StatusBadRequest, "rule definition is invalid",
			string(apperrors.CategoryValidation), result.Errors)
		return
	}

	if err := h.rules.SaveRule(c.Request.Context(), rule); err != nil {
		fail(c, err)
		return
	}

	saved, err := h.rules.GetRule(c.Request.Context(), orgID, ruleID)
	if err != nil {
		fail(c, err)
		return
	}
	utils.SendSuccess(c, saved)
}

// ValidateRule parses and validates a definition without saving it
func (h *Handlers) ValidateRule(c *gin.Context) {
	rule, ok := h.parseRule(c)
	if !ok {
		return
	}
	utils.SendSuccess(c, gin.H{
		"rule":       rule,
		"validation": rule.Validate(),
	})
}

// ListRuleExecutions returns the newest executions of a rule
func (h *Handlers) ListRuleExecutions(c *gin.Context) {
	limit, err := parseLimit(c)
	if err != nil {
		fail(c, err)
		return
	}

	ctx := c.Request.Context()
	rule, err := h.rules.GetRule(ctx, c.Param("org_id"), c.Param("rule_id"))
	if err != nil && !apperrors.IsCategory(err, apperrors.CategoryConfiguration) {
		fail(c, err)
		return
	}
	if rule == nil {
		// An undecodable rule still has a history worth reading
		rule = &automation.Rule{ID: c.Param("rule_id")}
	}

	executions, err := h.rules.ListExecutions(ctx, rule.ID, limit)
	if err != nil {
		fail(c, err)
		return
	}
	utils.SendSuccessWithMeta(c, executions, gin.H{"count": len(executions), "limit": limit})
}

func (h *Handlers) parseRule(c *gin.Context) (*automation.Rule, bool) {
	body, err := c.GetRawData()
	if err != nil {
		fail(c, apperrors.Validation("read body", err))
		return nil, false
	}
	if len(body) == 0 {
		invalid(c, "parse rule", "request body is empty")
		return nil, false
	}

	rule, err := h.parser.Parse(body)
	if err != nil {
		fail(c, apperrors.Validation("parse rule", err))
		return nil, false
	}
	return rule, true
}
