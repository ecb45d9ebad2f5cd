package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/campaign-automation/internal/core/automation"
	apperrors "github.com/frostdev-ops/campaign-automation/pkg/errors"
)

// TriggerRecord is the atomic write for one breach
type TriggerRecord struct {
	AlertID         string
	ExpectedVersion int64
	Now             time.Time
	CooldownMinutes int
	History         *History
}

// Store persists alerts and their history
type Store interface {
	ListEnabledAlerts(ctx context.Context, orgID string) ([]*Alert, error)
	// RecordTrigger inserts the history row and flips is_triggered in one
	// transaction, returning ErrTriggerConflict when the alert moved on.
	RecordTrigger(ctx context.Context, rec TriggerRecord) error
	ClearTriggered(ctx context.Context, alertID string) error
	ListHistory(ctx context.Context, orgID string, limit int) ([]*History, error)
	TransitionHistory(ctx context.Context, id string, to HistoryStatus, by string, at time.Time) (*History, error)
}

// Outcome is the result of evaluating one alert
type Outcome struct {
	AlertID    string   `json:"alert_id"`
	Skipped    bool     `json:"skipped"`
	SkipReason string   `json:"skip_reason,omitempty"`
	Triggered  bool     `json:"triggered"`
	Cleared    bool     `json:"cleared"`
	History    *History `json:"history,omitempty"`
}

// Evaluator checks alerts against current metrics
type Evaluator struct {
	store      Store
	campaigns  automation.CampaignRegistry
	aggregator *automation.Aggregator
	notifier   automation.Notifier
	logger     *logrus.Logger
	location   *time.Location
}

func NewEvaluator(store Store, campaigns automation.CampaignRegistry, aggregator *automation.Aggregator, notifier automation.Notifier, location *time.Location, logger *logrus.Logger) *Evaluator {
	if location == nil {
		location = time.UTC
	}
	return &Evaluator{
		store:      store,
		campaigns:  campaigns,
		aggregator: aggregator,
		notifier:   notifier,
		logger:     logger,
		location:   location,
	}
}

type breach struct {
	triggered bool
	observed  float64
	threshold float64
	message   string
}

// EvaluateAlert evaluates one alert at now. Configuration problems are logged
// and reported as a skip; I/O and persistence failures are returned.
func (e *Evaluator) EvaluateAlert(ctx context.Context, alert *Alert, now time.Time) (*Outcome, error) {
	outcome := &Outcome{AlertID: alert.ID}
	log := e.logger.WithFields(logrus.Fields{"alert_id": alert.ID, "org_id": alert.OrgID})

	if !alert.Enabled {
		outcome.Skipped, outcome.SkipReason = true, "alert disabled"
		return outcome, nil
	}
	if !automation.CooldownElapsed(alert.LastTriggeredAt, alert.Cooldown(), now) {
		outcome.Skipped, outcome.SkipReason = true, "cooldown active"
		return outcome, nil
	}

	condition, err := alert.ResolveCondition()
	if err != nil {
		log.WithError(err).Warn("Invalid alert condition")
		outcome.Skipped, outcome.SkipReason = true, "invalid condition: "+err.Error()
		return outcome, nil
	}

	campaignIDs, err := e.scopeCampaigns(ctx, alert)
	if err != nil {
		return nil, err
	}

	var b breach
	switch c := condition.(type) {
	case BudgetCondition:
		b, err = e.evaluateBudget(ctx, alert, c, campaignIDs, now)
	case MetricCondition:
		b, err = e.evaluateMetric(ctx, alert, c, campaignIDs, now, log)
	default:
		err = fmt.Errorf("unsupported alert condition %T", condition)
	}
	if err != nil {
		return nil, err
	}

	if !b.triggered {
		if alert.IsTriggered {
			if err := e.store.ClearTriggered(ctx, alert.ID); err != nil {
				return nil, apperrors.Persistence("clear alert", err)
			}
			outcome.Cleared = true
		}
		return outcome, nil
	}

	history := &History{
		ID:             uuid.New().String(),
		AlertID:        alert.ID,
		OrgID:          alert.OrgID,
		CampaignID:     alert.CampaignID,
		TriggeredAt:    now,
		Message:        b.message,
		ObservedValue:  b.observed,
		ThresholdValue: b.threshold,
		Status:         HistoryTriggered,
	}

	err = e.store.RecordTrigger(ctx, TriggerRecord{
		AlertID:         alert.ID,
		ExpectedVersion: alert.TriggerVersion,
		Now:             now,
		CooldownMinutes: alert.Cooldown(),
		History:         history,
	})
	switch {
	case apperrors.Is(err, apperrors.ErrTriggerConflict):
		outcome.Skipped, outcome.SkipReason = true, "trigger claim lost to a concurrent evaluation"
		return outcome, nil
	case err != nil:
		return nil, apperrors.Persistence("record alert trigger", err)
	}

	outcome.Triggered = true
	outcome.History = history
	log.WithField("history_id", history.ID).Infof("Alert triggered: %s", b.message)

	if channels := alert.Channels(); len(channels) > 0 {
		e.notifier.Send(ctx, automation.Notification{
			OrgID:    alert.OrgID,
			Channels: channels,
			Kind:     automation.KindAlertTriggered,
			Severity: automation.SeverityWarning,
			Title:    fmt.Sprintf("Alert: %s", alert.Name),
			Message:  b.message,
			Context: map[string]interface{}{
				"alert_id":        alert.ID,
				"history_id":      history.ID,
				"observed_value":  b.observed,
				"threshold_value": b.threshold,
			},
		})
	}
	return outcome, nil
}

func (e *Evaluator) scopeCampaigns(ctx context.Context, alert *Alert) ([]string, error) {
	if alert.CampaignID != nil && *alert.CampaignID != "" {
		return []string{*alert.CampaignID}, nil
	}
	campaigns, err := e.campaigns.ListCampaigns(ctx, alert.OrgID)
	if err != nil {
		return nil, apperrors.Transient("list campaigns", err)
	}
	var ids []string
	for _, c := range campaigns {
		if c.Status == automation.CampaignActive || c.Status == automation.CampaignPaused {
			ids = append(ids, c.ID)
		}
	}
	return ids, nil
}

// BudgetWindow returns the first and last day of the budget period containing now
func BudgetWindow(budgetType BudgetType, now time.Time, loc *time.Location) (time.Time, time.Time) {
	today := automation.StartOfDay(now, loc)
	switch budgetType {
	case BudgetWeekly:
		offset := (int(today.Weekday()) + 6) % 7 // days since Monday
		return today.AddDate(0, 0, -offset), today
	case BudgetMonthly:
		return time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, loc), today
	default:
		return today, today
	}
}

func (e *Evaluator) evaluateBudget(ctx context.Context, alert *Alert, c BudgetCondition, campaignIDs []string, now time.Time) (breach, error) {
	start, end := BudgetWindow(c.BudgetType, now, e.location)
	snapshot, err := e.aggregator.SnapshotRange(ctx, campaignIDs, start, end)
	if err != nil {
		return breach{}, err
	}

	limit := c.BudgetAmount * c.ThresholdPercent / 100
	used := snapshot.Spend / c.BudgetAmount * 100
	return breach{
		triggered: snapshot.Spend > 0 && snapshot.Spend >= limit,
		observed:  snapshot.Spend,
		threshold: limit,
		message: fmt.Sprintf("%s: %s spend is %.2f of %.2f budget (%.1f%%), threshold %.0f%%",
			alert.Name, c.BudgetType, snapshot.Spend, c.BudgetAmount, used, c.ThresholdPercent),
	}, nil
}

func (e *Evaluator) evaluateMetric(ctx context.Context, alert *Alert, c MetricCondition, campaignIDs []string, now time.Time, log *logrus.Entry) (breach, error) {
	snapshot, err := e.aggregator.Snapshot(ctx, campaignIDs, c.Leaf.Lookback(), now)
	if err != nil {
		return breach{}, err
	}

	result := automation.EvaluateCondition(snapshot, c.Leaf)
	if result.ConfigError() {
		log.Warnf("Alert condition configuration error: %s", result.Error)
	}
	return breach{
		triggered: result.Passed,
		observed:  result.CurrentValue,
		threshold: result.Threshold,
		message: fmt.Sprintf("%s: %s is %.2f, %s threshold %.2f over the last %d days",
			alert.Name, strings.ToUpper(string(result.Metric)), result.CurrentValue,
			operatorPhrase(result.Operator), result.Threshold, result.LookbackDays),
	}, nil
}

func operatorPhrase(op automation.Operator) string {
	switch op {
	case automation.OperatorGT:
		return "above"
	case automation.OperatorGTE:
		return "at or above"
	case automation.OperatorLT:
		return "below"
	case automation.OperatorLTE:
		return "at or below"
	default:
		return string(op)
	}
}

// Acknowledge marks a triggered history row as seen
func (e *Evaluator) Acknowledge(ctx context.Context, historyID, by string) (*History, error) {
	return e.store.TransitionHistory(ctx, historyID, HistoryAcknowledged, by, time.Now().UTC())
}

// Resolve closes a history row
func (e *Evaluator) Resolve(ctx context.Context, historyID, by string) (*History, error) {
	return e.store.TransitionHistory(ctx, historyID, HistoryResolved, by, time.Now().UTC())
}
