package automation

import (
	"fmt"
	"time"
)

// RuleStatus is the lifecycle state of a rule definition
type RuleStatus string

const (
	RuleStatusDraft  RuleStatus = "draft"
	RuleStatusActive RuleStatus = "active"
	RuleStatusPaused RuleStatus = "paused"
)

// ScopeType selects which campaigns a rule evaluates
type ScopeType string

const (
	ScopeOrg      ScopeType = "org"
	ScopeCampaign ScopeType = "campaign"
	ScopePlatform ScopeType = "platform"
)

// Scope resolves to the rule's evaluation targets
type Scope struct {
	Type       ScopeType `json:"type" yaml:"type"`
	CampaignID string    `json:"campaign_id,omitempty" yaml:"campaign_id,omitempty"`
	Platforms  []string  `json:"platforms,omitempty" yaml:"platforms,omitempty"`
}

// ApprovalPolicy decides whether triggered actions wait for a human
type ApprovalPolicy struct {
	RequiresApproval     bool `json:"requires_approval" yaml:"requires_approval"`
	TimeoutHours         int  `json:"approval_timeout_hours" yaml:"approval_timeout_hours"`
	AutoApproveOnTimeout bool `json:"auto_approve_on_timeout" yaml:"auto_approve_on_timeout"`
}

// DefaultApprovalTimeoutHours applies when a policy omits its timeout
const DefaultApprovalTimeoutHours = 24

// Timeout returns the approval window
func (p ApprovalPolicy) Timeout() time.Duration {
	hours := p.TimeoutHours
	if hours <= 0 {
		hours = DefaultApprovalTimeoutHours
	}
	return time.Duration(hours) * time.Hour
}

// Rule is an automation rule plus its evaluation bookkeeping
type Rule struct {
	ID                  string         `json:"id"`
	OrgID               string         `json:"org_id"`
	Name                string         `json:"name"`
	Description         string         `json:"description,omitempty"`
	Status              RuleStatus     `json:"status"`
	Scope               Scope          `json:"scope"`
	Conditions          ConditionTree  `json:"conditions"`
	Actions             ActionList     `json:"actions"`
	Approval            ApprovalPolicy `json:"approval"`
	CooldownMinutes     int            `json:"cooldown_minutes"`
	MaxExecutionsPerDay int            `json:"max_executions_per_day,omitempty"`
	OneTime             bool           `json:"one_time,omitempty"`
	Schedule            *Schedule      `json:"schedule,omitempty"`

	// Bookkeeping, written only by evaluation
	LastEvaluatedAt *time.Time `json:"last_evaluated_at,omitempty"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	ExecutionCount  int64      `json:"execution_count"`
	TriggerVersion  int64      `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RuleValidationError represents one validation problem
type RuleValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// RuleValidationResult contains validation results
type RuleValidationResult struct {
	Valid  bool                  `json:"valid"`
	Errors []RuleValidationError `json:"errors,omitempty"`
}

func (r *RuleValidationResult) add(field, message string) {
	r.Valid = false
	r.Errors = append(r.Errors, RuleValidationError{Field: field, Message: message})
}

// Error joins the validation problems
func (r *RuleValidationResult) Error() string {
	if r.Valid || len(r.Errors) == 0 {
		return ""
	}
	msg := "invalid rule:"
	for _, e := range r.Errors {
		msg += fmt.Sprintf(" %s: %s;", e.Field, e.Message)
	}
	return msg
}

// Validate checks the rule definition
func (r *Rule) Validate() *RuleValidationResult {
	result := &RuleValidationResult{Valid: true}

	if r.Name == "" {
		result.add("name", "name is required")
	}
	if r.OrgID == "" {
		result.add("org_id", "org_id is required")
	}

	switch r.Status {
	case RuleStatusDraft, RuleStatusActive, RuleStatusPaused:
	default:
		result.add("status", fmt.Sprintf("unknown status %q", r.Status))
	}

	switch r.Scope.Type {
	case ScopeOrg:
	case ScopeCampaign:
		if r.Scope.CampaignID == "" {
			result.add("scope.campaign_id", "campaign scope requires campaign_id")
		}
	case ScopePlatform:
		if len(r.Scope.Platforms) == 0 {
			result.add("scope.platforms", "platform scope requires at least one platform")
		}
	default:
		result.add("scope.type", fmt.Sprintf("unknown scope %q", r.Scope.Type))
	}

	for _, problem := range r.Conditions.Validate() {
		result.add("conditions", problem)
	}

	if len(r.Actions) == 0 {
		result.add("actions", "at least one action is required")
	}
	for i, a := range r.Actions {
		if err := ValidateAction(a); err != nil {
			result.add(fmt.Sprintf("actions[%d]", i), err.Error())
		}
	}

	if r.CooldownMinutes < 0 {
		result.add("cooldown_minutes", "cooldown_minutes cannot be negative")
	}
	if r.MaxExecutionsPerDay < 0 {
		result.add("max_executions_per_day", "max_executions_per_day cannot be negative")
	}
	if r.Approval.TimeoutHours < 0 {
		result.add("approval.approval_timeout_hours", "approval timeout cannot be negative")
	}

	if r.Schedule != nil {
		if err := r.Schedule.Validate(); err != nil {
			result.add("schedule", err.Error())
		}
	}

	return result
}

// ExecutionStatus is the overall outcome of a RuleExecution
type ExecutionStatus string

const (
	ExecutionCompleted       ExecutionStatus = "completed"
	ExecutionPartial         ExecutionStatus = "partial"
	ExecutionFailed          ExecutionStatus = "failed"
	ExecutionPendingApproval ExecutionStatus = "pending_approval"
)

// RuleExecution is the audit record of one trigger
type RuleExecution struct {
	ID               string                 `json:"id"`
	RuleID           string                 `json:"rule_id"`
	OrgID            string                 `json:"org_id"`
	CampaignID       *string                `json:"campaign_id,omitempty"`
	TriggeredAt      time.Time              `json:"triggered_at"`
	TriggerReason    string                 `json:"trigger_reason"`
	ConditionResults []ConditionResult      `json:"condition_results"`
	ActionResults    []ActionResult         `json:"action_results"`
	Status           ExecutionStatus        `json:"status"`
	MetricsSnapshot  map[int]MetricSnapshot `json:"metrics_snapshot"`
	PendingActionID  *string                `json:"pending_action_id,omitempty"`
}

// PendingStatus is the lifecycle state of a PendingAction
type PendingStatus string

const (
	PendingStatusPending  PendingStatus = "pending"
	PendingStatusApproved PendingStatus = "approved"
	PendingStatusRejected PendingStatus = "rejected"
	PendingStatusExpired  PendingStatus = "expired"
	PendingStatusExecuted PendingStatus = "executed"
)

// Terminal reports whether no further transition is allowed
func (s PendingStatus) Terminal() bool {
	switch s {
	case PendingStatusRejected, PendingStatusExpired, PendingStatusExecuted:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal transition
func CanTransition(from, to PendingStatus) bool {
	switch from {
	case PendingStatusPending:
		return to == PendingStatusApproved || to == PendingStatusRejected || to == PendingStatusExpired
	case PendingStatusApproved:
		return to == PendingStatusExecuted
	default:
		return false
	}
}

// TriggerContext is what the approver sees about why actions were queued
type TriggerContext struct {
	RuleName         string                 `json:"rule_name"`
	TriggerReason    string                 `json:"trigger_reason"`
	ConditionResults []ConditionResult      `json:"condition_results"`
	MetricsSnapshot  map[int]MetricSnapshot `json:"metrics_snapshot"`
}

// PendingAction is an action set waiting for a human decision
type PendingAction struct {
	ID                   string         `json:"id"`
	RuleID               string         `json:"rule_id"`
	OrgID                string         `json:"org_id"`
	CampaignID           *string        `json:"campaign_id,omitempty"`
	ExecutionID          string         `json:"execution_id"`
	Actions              ActionList     `json:"actions"`
	TriggerContext       TriggerContext `json:"trigger_context"`
	Status               PendingStatus  `json:"status"`
	AutoApproveOnTimeout bool           `json:"auto_approve_on_timeout"`
	CreatedAt            time.Time      `json:"created_at"`
	ExpiresAt            time.Time      `json:"expires_at"`
	ResolvedAt           *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy           string         `json:"resolved_by,omitempty"`
	ResolutionNote       string         `json:"resolution_note,omitempty"`
	ExecutionResult      []ActionResult `json:"execution_result,omitempty"`
}

// Expired reports whether the approval window has passed at now
func (p *PendingAction) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}
