package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/campaign-automation/internal/core/alerts"
	"github.com/frostdev-ops/campaign-automation/internal/core/automation"
	apperrors "github.com/frostdev-ops/campaign-automation/pkg/errors"
)

func sampleAlert(id string) *alerts.Alert {
	return &alerts.Alert{
		ID:              id,
		OrgID:           "org-1",
		Name:            "Budget watch",
		Type:            alerts.TypeBudgetThreshold,
		Config:          alerts.ConditionConfig{BudgetType: alerts.BudgetDaily, BudgetAmount: 500, ThresholdPercent: 80},
		CampaignID:      strPtr("camp-1"),
		NotifyInApp:     true,
		NotifySlack:     true,
		Enabled:         true,
		CooldownMinutes: 30,
	}
}

func triggerRecord(alertID, historyID string, version int64, at time.Time) alerts.TriggerRecord {
	return alerts.TriggerRecord{
		AlertID:         alertID,
		ExpectedVersion: version,
		Now:             at,
		CooldownMinutes: 30,
		History: &alerts.History{
			ID:             historyID,
			AlertID:        alertID,
			OrgID:          "org-1",
			CampaignID:     strPtr("camp-1"),
			TriggeredAt:    at,
			Message:        "daily spend at 84% of budget",
			ObservedValue:  420,
			ThresholdValue: 400,
			Status:         alerts.HistoryTriggered,
		},
	}
}

func TestAlertRepository_SaveAndList(t *testing.T) {
	_, repos := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, repos.Alerts.SaveAlert(ctx, sampleAlert("alert-1")))
	disabled := sampleAlert("alert-2")
	disabled.Enabled = false
	require.NoError(t, repos.Alerts.SaveAlert(ctx, disabled))

	enabled, err := repos.Alerts.ListEnabledAlerts(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, enabled, 1)
	assert.Equal(t, "alert-1", enabled[0].ID)
	assert.Equal(t, alerts.BudgetDaily, enabled[0].Config.BudgetType)
	assert.Equal(t, []automation.Channel{automation.ChannelInApp, automation.ChannelSlack}, enabled[0].Channels())

	got, err := repos.Alerts.GetAlert(ctx, "org-1", "alert-2")
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	_, err = repos.Alerts.GetAlert(ctx, "org-2", "alert-1")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestAlertRepository_RecordTrigger(t *testing.T) {
	_, repos := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, repos.Alerts.SaveAlert(ctx, sampleAlert("alert-1")))

	require.NoError(t, repos.Alerts.RecordTrigger(ctx, triggerRecord("alert-1", "hist-1", 0, day)))

	got, err := repos.Alerts.GetAlert(ctx, "org-1", "alert-1")
	require.NoError(t, err)
	assert.True(t, got.IsTriggered)
	assert.EqualValues(t, 1, got.TriggerVersion)
	require.NotNil(t, got.LastTriggeredAt)
	assert.True(t, day.Equal(*got.LastTriggeredAt))

	tests := []struct {
		name   string
		record alerts.TriggerRecord
		want   error
	}{
		{name: "stale version", record: triggerRecord("alert-1", "hist-2", 0, day.Add(time.Hour)), want: apperrors.ErrTriggerConflict},
		{name: "within cooldown", record: triggerRecord("alert-1", "hist-2", 1, day.Add(10*time.Minute)), want: apperrors.ErrTriggerConflict},
		{name: "unknown alert", record: triggerRecord("alert-9", "hist-2", 0, day), want: apperrors.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repos.Alerts.RecordTrigger(ctx, tt.record)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	// a refused trigger leaves no history behind
	history, err := repos.Alerts.ListHistory(ctx, "org-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "hist-1", history[0].ID)
	assert.Equal(t, 420.0, history[0].ObservedValue)
	assert.Equal(t, "camp-1", *history[0].CampaignID)

	require.NoError(t, repos.Alerts.RecordTrigger(ctx, triggerRecord("alert-1", "hist-2", 1, day.Add(31*time.Minute))))
	history, err = repos.Alerts.ListHistory(ctx, "org-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hist-2", history[0].ID, "newest first")

	require.NoError(t, repos.Alerts.ClearTriggered(ctx, "alert-1"))
	got, err = repos.Alerts.GetAlert(ctx, "org-1", "alert-1")
	require.NoError(t, err)
	assert.False(t, got.IsTriggered)
}

func TestAlertRepository_TransitionHistory(t *testing.T) {
	_, repos := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, repos.Alerts.SaveAlert(ctx, sampleAlert("alert-1")))
	require.NoError(t, repos.Alerts.RecordTrigger(ctx, triggerRecord("alert-1", "hist-1", 0, day)))

	at := day.Add(time.Hour)
	h, err := repos.Alerts.TransitionHistory(ctx, "hist-1", alerts.HistoryAcknowledged, "user-7", at)
	require.NoError(t, err)
	assert.Equal(t, alerts.HistoryAcknowledged, h.Status)
	assert.Equal(t, "user-7", h.UpdatedBy)
	require.NotNil(t, h.UpdatedAt)
	assert.True(t, at.Equal(*h.UpdatedAt))

	_, err = repos.Alerts.TransitionHistory(ctx, "hist-1", alerts.HistoryAcknowledged, "user-7", at)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidState))

	h, err = repos.Alerts.TransitionHistory(ctx, "hist-1", alerts.HistoryResolved, "user-8", at.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, alerts.HistoryResolved, h.Status)

	_, err = repos.Alerts.TransitionHistory(ctx, "hist-1", alerts.HistoryAcknowledged, "user-7", at)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidState))

	_, err = repos.Alerts.TransitionHistory(ctx, "hist-9", alerts.HistoryResolved, "user-7", at)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	history, err := repos.Alerts.ListHistory(ctx, "org-1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, alerts.HistoryResolved, history[0].Status)
	assert.Equal(t, "user-8", history[0].UpdatedBy)
}
