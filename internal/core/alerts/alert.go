package alerts

import (
	"fmt"
	"time"

	"github.com/frostdev-ops/campaign-automation/internal/core/automation"
)

// AlertType selects what an alert watches
type AlertType string

const (
	TypeBudgetThreshold AlertType = "budget_threshold"
	TypeCPAThreshold    AlertType = "cpa_threshold"
	TypeROASThreshold   AlertType = "roas_threshold"
	TypeCTRThreshold    AlertType = "ctr_threshold"
)

// BudgetType selects the spend window of a budget alert
type BudgetType string

const (
	BudgetDaily   BudgetType = "daily"
	BudgetWeekly  BudgetType = "weekly"
	BudgetMonthly BudgetType = "monthly"
)

// DefaultCooldownMinutes applies when an alert has no cooldown configured
const DefaultCooldownMinutes = 60

// Condition is the single condition of an alert: MetricCondition or
// BudgetCondition
type Condition interface {
	isAlertCondition()
}

// MetricCondition compares one metric over a lookback window
type MetricCondition struct {
	Leaf automation.Leaf
}

// BudgetCondition fires when spend reaches a share of the budget
type BudgetCondition struct {
	BudgetType       BudgetType
	BudgetAmount     float64
	ThresholdPercent float64
}

func (MetricCondition) isAlertCondition() {}
func (BudgetCondition) isAlertCondition() {}

// ConditionConfig is the stored form of an alert condition
type ConditionConfig struct {
	Metric           automation.Metric   `json:"metric,omitempty" yaml:"metric,omitempty"`
	Operator         automation.Operator `json:"operator,omitempty" yaml:"operator,omitempty"`
	Threshold        float64             `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	LookbackDays     int                 `json:"lookback_days,omitempty" yaml:"lookback_days,omitempty"`
	BudgetType       BudgetType          `json:"budget_type,omitempty" yaml:"budget_type,omitempty"`
	BudgetAmount     float64             `json:"budget_amount,omitempty" yaml:"budget_amount,omitempty"`
	ThresholdPercent float64             `json:"threshold_percent,omitempty" yaml:"threshold_percent,omitempty"`
}

// Alert is an org-scoped threshold watcher
type Alert struct {
	ID              string          `json:"id"`
	OrgID           string          `json:"org_id"`
	Name            string          `json:"name"`
	Type            AlertType       `json:"type"`
	Config          ConditionConfig `json:"condition"`
	CampaignID      *string         `json:"campaign_id,omitempty"`
	NotifyInApp     bool            `json:"notify_in_app"`
	NotifyEmail     bool            `json:"notify_email"`
	NotifySlack     bool            `json:"notify_slack"`
	Enabled         bool            `json:"enabled"`
	IsTriggered     bool            `json:"is_triggered"`
	LastTriggeredAt *time.Time      `json:"last_triggered_at,omitempty"`
	CooldownMinutes int             `json:"cooldown_minutes"`
	TriggerVersion  int64           `json:"-"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Cooldown returns the configured cooldown or the default
func (a *Alert) Cooldown() int {
	if a.CooldownMinutes <= 0 {
		return DefaultCooldownMinutes
	}
	return a.CooldownMinutes
}

// Channels lists the enabled notification channels
func (a *Alert) Channels() []automation.Channel {
	var channels []automation.Channel
	if a.NotifyInApp {
		channels = append(channels, automation.ChannelInApp)
	}
	if a.NotifyEmail {
		channels = append(channels, automation.ChannelEmail)
	}
	if a.NotifySlack {
		channels = append(channels, automation.ChannelSlack)
	}
	return channels
}

// metricDefaults maps threshold alert types to their metric and direction
var metricDefaults = map[AlertType]struct {
	metric   automation.Metric
	operator automation.Operator
}{
	TypeCPAThreshold:  {automation.MetricCPA, automation.OperatorGT},
	TypeROASThreshold: {automation.MetricROAS, automation.OperatorLT},
	TypeCTRThreshold:  {automation.MetricCTR, automation.OperatorLT},
}

// ResolveCondition builds the typed condition for the alert type, filling
// the metric and operator from the type when omitted.
func (a *Alert) ResolveCondition() (Condition, error) {
	if a.Type == TypeBudgetThreshold {
		c := a.Config
		switch c.BudgetType {
		case BudgetDaily, BudgetWeekly, BudgetMonthly:
		default:
			return nil, fmt.Errorf("unknown budget type %q", c.BudgetType)
		}
		if c.BudgetAmount <= 0 {
			return nil, fmt.Errorf("budget_amount must be positive")
		}
		if c.ThresholdPercent <= 0 {
			return nil, fmt.Errorf("threshold_percent must be positive")
		}
		return BudgetCondition{BudgetType: c.BudgetType, BudgetAmount: c.BudgetAmount, ThresholdPercent: c.ThresholdPercent}, nil
	}

	defaults, ok := metricDefaults[a.Type]
	if !ok {
		return nil, fmt.Errorf("unknown alert type %q", a.Type)
	}
	leaf := automation.Leaf{
		Metric:       a.Config.Metric,
		Operator:     a.Config.Operator,
		Threshold:    a.Config.Threshold,
		LookbackDays: a.Config.LookbackDays,
	}
	if leaf.Metric == "" {
		leaf.Metric = defaults.metric
	}
	if leaf.Operator == "" {
		leaf.Operator = defaults.operator
	}
	return MetricCondition{Leaf: leaf}, nil
}

// HistoryStatus is the resolution state of one breach
type HistoryStatus string

const (
	HistoryTriggered    HistoryStatus = "triggered"
	HistoryAcknowledged HistoryStatus = "acknowledged"
	HistoryResolved     HistoryStatus = "resolved"
)

// CanTransition reports whether a history row may move from -> to
func (s HistoryStatus) CanTransition(to HistoryStatus) bool {
	switch s {
	case HistoryTriggered:
		return to == HistoryAcknowledged || to == HistoryResolved
	case HistoryAcknowledged:
		return to == HistoryResolved
	default:
		return false
	}
}

// History is the append-only record of one alert breach
type History struct {
	ID             string        `json:"id"`
	AlertID        string        `json:"alert_id"`
	OrgID          string        `json:"org_id"`
	CampaignID     *string       `json:"campaign_id,omitempty"`
	TriggeredAt    time.Time     `json:"triggered_at"`
	Message        string        `json:"message"`
	ObservedValue  float64       `json:"observed_value"`
	ThresholdValue float64       `json:"threshold_value"`
	Status         HistoryStatus `json:"status"`
	UpdatedAt      *time.Time    `json:"updated_at,omitempty"`
	UpdatedBy      string        `json:"updated_by,omitempty"`
}
