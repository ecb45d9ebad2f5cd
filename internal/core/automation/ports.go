package automation

import (
	"context"
	"time"
)

// CampaignStatus is the lifecycle state reported by the Campaign Registry
type CampaignStatus string

const (
	CampaignDraft    CampaignStatus = "draft"
	CampaignActive   CampaignStatus = "active"
	CampaignPaused   CampaignStatus = "paused"
	CampaignArchived CampaignStatus = "archived"
)

// Campaign is the identity of one advertising campaign
type Campaign struct {
	ID       string         `json:"id" db:"id"`
	OrgID    string         `json:"org_id" db:"org_id"`
	Name     string         `json:"name" db:"name"`
	Platform string         `json:"platform" db:"platform"`
	Status   CampaignStatus `json:"status" db:"status"`
}

// MetricsStore sums raw metrics for a campaign set over [start, end] by day
type MetricsStore interface {
	Aggregate(ctx context.Context, campaignIDs []string, start, end time.Time) (RawMetrics, error)
}

// CampaignRegistry provides campaign identity and status per organization
type CampaignRegistry interface {
	ListCampaigns(ctx context.Context, orgID string) ([]Campaign, error)
	GetCampaign(ctx context.Context, orgID, campaignID string) (*Campaign, error)
}

// GatewayResult is the Platform Gateway's answer to one mutation
type GatewayResult struct {
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// PlatformGateway executes campaign mutations against ad platforms
type PlatformGateway interface {
	Execute(ctx context.Context, campaignID string, action ActionType, params map[string]interface{}) (GatewayResult, error)
}

// NotificationKind tells recipients where a notification came from
type NotificationKind string

const (
	KindRuleTriggered   NotificationKind = "rule_triggered"
	KindAlertTriggered  NotificationKind = "alert_triggered"
	KindApprovalPending NotificationKind = "approval_pending"
	KindCreatedAlert    NotificationKind = "created_alert"
)

// Notification is one message for an organization
type Notification struct {
	OrgID    string                 `json:"org_id"`
	Channels []Channel              `json:"channels"`
	Kind     NotificationKind       `json:"kind"`
	Severity Severity               `json:"severity,omitempty"`
	Title    string                 `json:"title"`
	Message  string                 `json:"message"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// Notifier delivers notifications. Delivery failures are the notifier's
// concern and never reach the caller.
type Notifier interface {
	Send(ctx context.Context, n Notification)
}

// TriggerClaim is the atomic read-decide-write that consumes a trigger
type TriggerClaim struct {
	RuleID          string
	ExpectedVersion int64
	Now             time.Time
	Count           int
	CooldownMinutes int
	MaxPerDay       int
	DayStart        time.Time
	Pause           bool
}

// Store persists rules and their execution history
type Store interface {
	ExecutionCounter
	ListActiveRules(ctx context.Context, orgID string) ([]*Rule, error)
	GetRule(ctx context.Context, orgID, ruleID string) (*Rule, error)
	// ClaimTrigger returns ErrTriggerConflict when the rule changed since it
	// was read or a gate no longer passes at claim.Now.
	ClaimTrigger(ctx context.Context, claim TriggerClaim) error
	// RecordExecution writes the execution and, when set, its pending action
	// in one transaction.
	RecordExecution(ctx context.Context, exec *RuleExecution, pending *PendingAction) error
	MarkEvaluated(ctx context.Context, ruleID string, at time.Time) error
	ListExecutions(ctx context.Context, ruleID string, limit int) ([]*RuleExecution, error)
}

// PendingTransition moves a pending action out of From. When
// ExecutionStatus is set the linked execution is updated in the same
// transaction.
type PendingTransition struct {
	ID              string
	From            PendingStatus
	To              PendingStatus
	At              time.Time
	By              string
	Note            string
	ExecutionStatus ExecutionStatus
	ExecutionReason string
}

// ApprovalStore persists pending actions
type ApprovalStore interface {
	GetPendingAction(ctx context.Context, id string) (*PendingAction, error)
	ListPendingActions(ctx context.Context, orgID string, status PendingStatus) ([]*PendingAction, error)
	ListExpiredPendingActions(ctx context.Context, now time.Time) ([]*PendingAction, error)
	// ListStalledApprovals returns approved actions resolved before the
	// given time that still have no recorded results
	ListStalledApprovals(ctx context.Context, resolvedBefore time.Time) ([]*PendingAction, error)
	// TransitionPendingAction returns ErrNotPending when the row is no longer in From
	TransitionPendingAction(ctx context.Context, t PendingTransition) error
	// CompletePendingAction moves approved -> executed and stores results on
	// both the pending action and its execution.
	CompletePendingAction(ctx context.Context, id string, results []ActionResult, status ExecutionStatus, at time.Time) error
}

// Observer receives counters from the dispatcher and approval workflow
type Observer interface {
	ActionExecuted(action ActionType, status ActionStatus)
	PendingTransitioned(to PendingStatus)
}

type nopObserver struct{}

func (nopObserver) ActionExecuted(ActionType, ActionStatus) {}
func (nopObserver) PendingTransitioned(PendingStatus)       {}
