// Package handlers implements the admin HTTP endpoints of the automation core.
package handlers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/campaign-automation/internal/core/alerts"
	"github.com/frostdev-ops/campaign-automation/internal/core/automation"
	"github.com/frostdev-ops/campaign-automation/internal/core/scheduler"
	"github.com/frostdev-ops/campaign-automation/internal/database/models"
	apperrors "github.com/frostdev-ops/campaign-automation/pkg/errors"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// RuleStore is the rule side of persistence used by the admin API
type RuleStore interface {
	SaveRule(ctx context.Context, rule *automation.Rule) error
	GetRule(ctx context.Context, orgID, ruleID string) (*automation.Rule, error)
	ListExecutions(ctx context.Context, ruleID string, limit int) ([]*automation.RuleExecution, error)
	ListPendingActions(ctx context.Context, orgID string, status automation.PendingStatus) ([]*automation.PendingAction, error)
}

// AlertStore is the alert side of persistence used by the admin API
type AlertStore interface {
	SaveAlert(ctx context.Context, alert *alerts.Alert) error
	GetAlert(ctx context.Context, orgID, alertID string) (*alerts.Alert, error)
	ListHistory(ctx context.Context, orgID string, limit int) ([]*alerts.History, error)
}

// CampaignStore manages organizations, campaigns and their daily metrics
type CampaignStore interface {
	SaveOrganization(ctx context.Context, org *models.Organization) error
	SaveCampaign(ctx context.Context, c *automation.Campaign) error
	ListCampaigns(ctx context.Context, orgID string) ([]automation.Campaign, error)
	GetCampaign(ctx context.Context, orgID, campaignID string) (*automation.Campaign, error)
	UpsertDailyMetrics(ctx context.Context, campaignID string, day time.Time, raw automation.RawMetrics) error
}

// NotificationStore lists and acknowledges in-app notifications
type NotificationStore interface {
	ListNotifications(ctx context.Context, orgID string, unreadOnly bool, limit int) ([]*models.Notification, error)
	MarkRead(ctx context.Context, orgID, id string, at time.Time) error
}

// PassRunner runs passes and single rules on demand
type PassRunner interface {
	RunRulesPass(ctx context.Context) scheduler.PassReport
	RunAlertsPass(ctx context.Context) scheduler.PassReport
	RunRuleNow(ctx context.Context, orgID, ruleID string) (*automation.RuleOutcome, error)
}

// Approvals resolves pending actions
type Approvals interface {
	Approve(ctx context.Context, id, by, note string) (*automation.PendingAction, error)
	Reject(ctx context.Context, id, by, note string) (*automation.PendingAction, error)
}

// AlertHistory moves alert history rows through their lifecycle
type AlertHistory interface {
	Acknowledge(ctx context.Context, historyID, by string) (*alerts.History, error)
	Resolve(ctx context.Context, historyID, by string) (*alerts.History, error)
}

// ConnectionCounter reports live websocket sessions
type ConnectionCounter interface {
	GetClientCount() int
}

// Deps are the collaborators behind the admin endpoints. Connections is optional.
type Deps struct {
	Rules         RuleStore
	Alerts        AlertStore
	Campaigns     CampaignStore
	Notifications NotificationStore
	Passes        PassRunner
	Approvals     Approvals
	AlertHistory  AlertHistory
	Connections   ConnectionCounter
}

// Handlers contains all HTTP handlers
type Handlers struct {
	rules         RuleStore
	alerts        AlertStore
	campaigns     CampaignStore
	notifications NotificationStore
	passes        PassRunner
	approvals     Approvals
	history       AlertHistory
	connections   ConnectionCounter
	parser        *automation.RuleParser
	logger        *logrus.Logger
	now           func() time.Time
}

// NewHandlers creates a new handlers instance
func NewHandlers(deps Deps, logger *logrus.Logger) *Handlers {
	return &Handlers{
		rules:         deps.Rules,
		alerts:        deps.Alerts,
		campaigns:     deps.Campaigns,
		notifications: deps.Notifications,
		passes:        deps.Passes,
		approvals:     deps.Approvals,
		history:       deps.AlertHistory,
		connections:   deps.Connections,
		parser:        automation.NewRuleParser(),
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// fail hands err to the error middleware, which picks the status code
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func invalid(c *gin.Context, op string, format string, args ...interface{}) {
	fail(c, apperrors.Validation(op, fmt.Errorf(format, args...)))
}

func parseLimit(c *gin.Context) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, apperrors.Validation("parse limit", fmt.Errorf("limit must be a positive integer"))
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, nil
}
