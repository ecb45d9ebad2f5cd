package models

import (
	"database/sql"
	"time"
)

// Organization owns campaigns, rules and alerts
type Organization struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Rule is a rules row; JSON columns hold the definition
type Rule struct {
	ID                  string         `db:"id"`
	OrgID               string         `db:"org_id"`
	Name                string         `db:"name"`
	Description         string         `db:"description"`
	Status              string         `db:"status"`
	Scope               string         `db:"scope"`
	Conditions          string         `db:"conditions"`
	Actions             string         `db:"actions"`
	Approval            string         `db:"approval"`
	CooldownMinutes     int            `db:"cooldown_minutes"`
	MaxExecutionsPerDay int            `db:"max_executions_per_day"`
	OneTime             bool           `db:"one_time"`
	Schedule            sql.NullString `db:"schedule"`
	LastEvaluatedAt     sql.NullTime   `db:"last_evaluated_at"`
	LastTriggeredAt     sql.NullTime   `db:"last_triggered_at"`
	ExecutionCount      int64          `db:"execution_count"`
	TriggerVersion      int64          `db:"trigger_version"`
	CreatedAt           time.Time      `db:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
}

// RuleExecution is a rule_executions row
type RuleExecution struct {
	ID               string         `db:"id"`
	RuleID           string         `db:"rule_id"`
	OrgID            string         `db:"org_id"`
	CampaignID       sql.NullString `db:"campaign_id"`
	TriggeredAt      time.Time      `db:"triggered_at"`
	TriggerReason    string         `db:"trigger_reason"`
	ConditionResults string         `db:"condition_results"`
	ActionResults    string         `db:"action_results"`
	Status           string         `db:"status"`
	MetricsSnapshot  string         `db:"metrics_snapshot"`
	PendingActionID  sql.NullString `db:"pending_action_id"`
}

// PendingAction is a pending_actions row
type PendingAction struct {
	ID                   string         `db:"id"`
	RuleID               string         `db:"rule_id"`
	OrgID                string         `db:"org_id"`
	CampaignID           sql.NullString `db:"campaign_id"`
	ExecutionID          string         `db:"execution_id"`
	Actions              string         `db:"actions"`
	TriggerContext       string         `db:"trigger_context"`
	Status               string         `db:"status"`
	AutoApproveOnTimeout bool           `db:"auto_approve_on_timeout"`
	CreatedAt            time.Time      `db:"created_at"`
	ExpiresAt            time.Time      `db:"expires_at"`
	ResolvedAt           sql.NullTime   `db:"resolved_at"`
	ResolvedBy           string         `db:"resolved_by"`
	ResolutionNote       string         `db:"resolution_note"`
	ExecutionResult      sql.NullString `db:"execution_result"`
}

// Alert is an alerts row
type Alert struct {
	ID              string         `db:"id"`
	OrgID           string         `db:"org_id"`
	Name            string         `db:"name"`
	Type            string         `db:"type"`
	Condition       string         `db:"condition"`
	CampaignID      sql.NullString `db:"campaign_id"`
	NotifyInApp     bool           `db:"notify_in_app"`
	NotifyEmail     bool           `db:"notify_email"`
	NotifySlack     bool           `db:"notify_slack"`
	Enabled         bool           `db:"enabled"`
	IsTriggered     bool           `db:"is_triggered"`
	LastTriggeredAt sql.NullTime   `db:"last_triggered_at"`
	CooldownMinutes int            `db:"cooldown_minutes"`
	TriggerVersion  int64          `db:"trigger_version"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

// AlertHistory is an alert_history row
type AlertHistory struct {
	ID             string         `db:"id"`
	AlertID        string         `db:"alert_id"`
	OrgID          string         `db:"org_id"`
	CampaignID     sql.NullString `db:"campaign_id"`
	TriggeredAt    time.Time      `db:"triggered_at"`
	Message        string         `db:"message"`
	ObservedValue  float64        `db:"observed_value"`
	ThresholdValue float64        `db:"threshold_value"`
	Status         string         `db:"status"`
	UpdatedAt      sql.NullTime   `db:"updated_at"`
	UpdatedBy      string         `db:"updated_by"`
}

// Notification is an in-app notification shown to an organization
type Notification struct {
	ID        string     `json:"id" db:"id"`
	OrgID     string     `json:"org_id" db:"org_id"`
	Kind      string     `json:"kind" db:"kind"`
	Severity  string     `json:"severity,omitempty" db:"severity"`
	Title     string     `json:"title" db:"title"`
	Message   string     `json:"message" db:"message"`
	Context   string     `json:"context" db:"context"`
	ReadAt    *time.Time `json:"read_at,omitempty" db:"read_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// NullString wraps a possibly nil string pointer
func NullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// StringPtr unwraps a NullString
func StringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// NullTime wraps a possibly nil time pointer, normalized to UTC
func NullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// TimePtr unwraps a NullTime
func TimePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
