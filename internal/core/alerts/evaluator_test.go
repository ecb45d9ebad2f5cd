package alerts_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/campaign-automation/internal/core/alerts"
	"github.com/frostdev-ops/campaign-automation/internal/core/automation"
	"github.com/frostdev-ops/campaign-automation/internal/testutil"
	apperrors "github.com/frostdev-ops/campaign-automation/pkg/errors"
	"github.com/frostdev-ops/campaign-automation/pkg/logger"
)

// Friday
var now = time.Date(2024, 3, 15, 18, 0, 0, 0, time.UTC)

type fixture struct {
	store     *testutil.MemoryAlertStore
	metrics   *testutil.MockMetricsStore
	notifier  *testutil.RecordingNotifier
	evaluator *alerts.Evaluator
}

func newFixture() *fixture {
	f := &fixture{
		store:    testutil.NewMemoryAlertStore(),
		metrics:  testutil.NewMockMetricsStore(),
		notifier: &testutil.RecordingNotifier{},
	}
	registry := &testutil.MockCampaignRegistry{Campaigns: []automation.Campaign{
		{ID: "camp-1", OrgID: "org-1", Status: automation.CampaignActive},
		{ID: "camp-2", OrgID: "org-1", Status: automation.CampaignPaused},
		{ID: "camp-3", OrgID: "org-1", Status: automation.CampaignDraft},
	}}
	aggregator := automation.NewAggregator(f.metrics, time.UTC, time.Second)
	f.evaluator = alerts.NewEvaluator(f.store, registry, aggregator, f.notifier, time.UTC, logger.Discard())
	return f
}

func budgetAlert(budgetType alerts.BudgetType) *alerts.Alert {
	return &alerts.Alert{
		ID:          "alert-budget",
		OrgID:       "org-1",
		Name:        "Daily budget",
		Type:        alerts.TypeBudgetThreshold,
		Config:      alerts.ConditionConfig{BudgetType: budgetType, BudgetAmount: 100, ThresholdPercent: 80},
		NotifyInApp: true,
		NotifyEmail: true,
		Enabled:     true,
	}
}

func TestBudgetAlert_DailyScenario(t *testing.T) {
	f := newFixture()
	f.metrics.Add("camp-1", now, automation.RawMetrics{Spend: 60})
	f.metrics.Add("camp-2", now, automation.RawMetrics{Spend: 25})
	f.metrics.Add("camp-1", now.AddDate(0, 0, -1), automation.RawMetrics{Spend: 500})
	alert := budgetAlert(alerts.BudgetDaily)
	f.store.PutAlert(alert)

	outcome, err := f.evaluator.EvaluateAlert(context.Background(), alert, now)
	require.NoError(t, err)
	require.True(t, outcome.Triggered)
	assert.Contains(t, outcome.History.Message, "85.0%")
	assert.Equal(t, 85.0, outcome.History.ObservedValue)
	assert.Equal(t, 80.0, outcome.History.ThresholdValue)
	assert.Equal(t, alerts.HistoryTriggered, outcome.History.Status)

	stored := f.store.Alert(alert.ID)
	assert.True(t, stored.IsTriggered)
	require.NotNil(t, stored.LastTriggeredAt)

	sent := f.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []automation.Channel{automation.ChannelInApp, automation.ChannelEmail}, sent[0].Channels)
	assert.Equal(t, automation.KindAlertTriggered, sent[0].Kind)
}

func TestBudgetAlert_BelowThreshold(t *testing.T) {
	f := newFixture()
	f.metrics.Add("camp-1", now, automation.RawMetrics{Spend: 79.99})
	alert := budgetAlert(alerts.BudgetDaily)
	f.store.PutAlert(alert)

	outcome, err := f.evaluator.EvaluateAlert(context.Background(), alert, now)
	require.NoError(t, err)
	assert.False(t, outcome.Triggered)
	assert.Empty(t, f.notifier.Sent())
}

func TestBudgetWindow(t *testing.T) {
	tests := []struct {
		budget alerts.BudgetType
		start  string
	}{
		{alerts.BudgetDaily, "2024-03-15"},
		{alerts.BudgetWeekly, "2024-03-11"},
		{alerts.BudgetMonthly, "2024-03-01"},
	}
	for _, tt := range tests {
		t.Run(string(tt.budget), func(t *testing.T) {
			start, end := alerts.BudgetWindow(tt.budget, now, time.UTC)
			assert.Equal(t, tt.start, start.Format("2006-01-02"))
			assert.Equal(t, "2024-03-15", end.Format("2006-01-02"))
		})
	}

	// Monday is its own week start
	monday := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)
	start, _ := alerts.BudgetWindow(alerts.BudgetWeekly, monday, time.UTC)
	assert.Equal(t, "2024-03-11", start.Format("2006-01-02"))
}

func TestBudgetAlert_WeeklySumsFromMonday(t *testing.T) {
	f := newFixture()
	f.metrics.Add("camp-1", time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), automation.RawMetrics{Spend: 1000})
	f.metrics.Add("camp-1", time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), automation.RawMetrics{Spend: 50})
	f.metrics.Add("camp-1", time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), automation.RawMetrics{Spend: 40})
	alert := budgetAlert(alerts.BudgetWeekly)
	f.store.PutAlert(alert)

	outcome, err := f.evaluator.EvaluateAlert(context.Background(), alert, now)
	require.NoError(t, err)
	assert.True(t, outcome.Triggered)
	assert.Equal(t, 90.0, outcome.History.ObservedValue)
}

func TestMetricAlert_DefaultsFromType(t *testing.T) {
	f := newFixture()
	f.metrics.Add("camp-1", now, automation.RawMetrics{Impressions: 5000, Clicks: 50, Spend: 700, Conversions: 10})
	campaign := "camp-1"
	alert := &alerts.Alert{
		ID: "alert-cpa", OrgID: "org-1", Name: "CPA watch", Type: alerts.TypeCPAThreshold,
		Config:     alerts.ConditionConfig{Threshold: 50, LookbackDays: 7},
		CampaignID: &campaign, NotifySlack: true, Enabled: true,
	}
	f.store.PutAlert(alert)

	condition, err := alert.ResolveCondition()
	require.NoError(t, err)
	metric, ok := condition.(alerts.MetricCondition)
	require.True(t, ok)
	assert.Equal(t, automation.MetricCPA, metric.Leaf.Metric)
	assert.Equal(t, automation.OperatorGT, metric.Leaf.Operator)

	outcome, err := f.evaluator.EvaluateAlert(context.Background(), alert, now)
	require.NoError(t, err)
	require.True(t, outcome.Triggered)
	assert.Equal(t, 70.0, outcome.History.ObservedValue)
	assert.Equal(t, "camp-1", *outcome.History.CampaignID)
	assert.Contains(t, outcome.History.Message, "CPA is 70.00, above threshold 50.00")
}

func TestMetricAlert_NoDataNeverTriggers(t *testing.T) {
	f := newFixture()
	alert := &alerts.Alert{
		ID: "alert-roas", OrgID: "org-1", Name: "ROAS floor", Type: alerts.TypeROASThreshold,
		Config: alerts.ConditionConfig{Threshold: 2}, Enabled: true,
	}
	f.store.PutAlert(alert)

	outcome, err := f.evaluator.EvaluateAlert(context.Background(), alert, now)
	require.NoError(t, err)
	assert.False(t, outcome.Triggered)
}

func TestAlert_CooldownAndClear(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.metrics.Add("camp-1", now, automation.RawMetrics{Spend: 90})
	alert := budgetAlert(alerts.BudgetDaily)
	f.store.PutAlert(alert)

	first, err := f.evaluator.EvaluateAlert(ctx, alert, now)
	require.NoError(t, err)
	require.True(t, first.Triggered)

	// default cooldown is one hour
	second, err := f.evaluator.EvaluateAlert(ctx, f.store.Alert(alert.ID), now.Add(30*time.Minute))
	require.NoError(t, err)
	assert.True(t, second.Skipped)

	// next day spend resets; the alert clears
	tomorrow := now.Add(24 * time.Hour)
	third, err := f.evaluator.EvaluateAlert(ctx, f.store.Alert(alert.ID), tomorrow)
	require.NoError(t, err)
	assert.False(t, third.Triggered)
	assert.True(t, third.Cleared)
	assert.False(t, f.store.Alert(alert.ID).IsTriggered)
}

func TestAlert_DisabledAndInvalid(t *testing.T) {
	f := newFixture()

	disabled := budgetAlert(alerts.BudgetDaily)
	disabled.Enabled = false
	outcome, err := f.evaluator.EvaluateAlert(context.Background(), disabled, now)
	require.NoError(t, err)
	assert.True(t, outcome.Skipped)

	invalid := budgetAlert("quarterly")
	outcome, err = f.evaluator.EvaluateAlert(context.Background(), invalid, now)
	require.NoError(t, err)
	assert.True(t, outcome.Skipped)
	assert.Contains(t, outcome.SkipReason, "quarterly")
}

func TestAlert_MetricsFailureReturnsError(t *testing.T) {
	f := newFixture()
	f.metrics.Err = errors.New("timeout")
	alert := budgetAlert(alerts.BudgetDaily)
	f.store.PutAlert(alert)

	_, err := f.evaluator.EvaluateAlert(context.Background(), alert, now)
	require.Error(t, err)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryTransient))
}

func TestHistoryTransitions(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.metrics.Add("camp-1", now, automation.RawMetrics{Spend: 95})
	alert := budgetAlert(alerts.BudgetDaily)
	f.store.PutAlert(alert)

	outcome, err := f.evaluator.EvaluateAlert(ctx, alert, now)
	require.NoError(t, err)
	id := outcome.History.ID

	acked, err := f.evaluator.Acknowledge(ctx, id, "user-1")
	require.NoError(t, err)
	assert.Equal(t, alerts.HistoryAcknowledged, acked.Status)

	resolved, err := f.evaluator.Resolve(ctx, id, "user-1")
	require.NoError(t, err)
	assert.Equal(t, alerts.HistoryResolved, resolved.Status)

	_, err = f.evaluator.Acknowledge(ctx, id, "user-2")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidState))

	_, err = f.evaluator.Resolve(ctx, "missing", "user-2")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}
