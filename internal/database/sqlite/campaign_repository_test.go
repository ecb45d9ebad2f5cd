package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/campaign-automation/internal/core/automation"
	"github.com/frostdev-ops/campaign-automation/internal/database/models"
	apperrors "github.com/frostdev-ops/campaign-automation/pkg/errors"
)

func TestCampaignRepository_Registry(t *testing.T) {
	_, repos := setupTestDB(t)
	ctx := context.Background()

	campaigns, err := repos.Campaigns.ListCampaigns(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, campaigns, 2)
	assert.Equal(t, "camp-1", campaigns[0].ID)
	assert.Equal(t, automation.CampaignPaused, campaigns[1].Status)

	c, err := repos.Campaigns.GetCampaign(ctx, "org-2", "camp-9")
	require.NoError(t, err)
	assert.Equal(t, "meta", c.Platform)

	_, err = repos.Campaigns.GetCampaign(ctx, "org-2", "camp-1")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	stolen := automation.Campaign{ID: "camp-1", OrgID: "org-2", Name: "x", Platform: "meta", Status: automation.CampaignActive}
	err = repos.Campaigns.SaveCampaign(ctx, &stolen)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestCampaignRepository_Aggregate(t *testing.T) {
	_, repos := setupTestDB(t)
	ctx := context.Background()

	daily := automation.RawMetrics{Impressions: 1000, Clicks: 50, Spend: 100, Conversions: 2, ConversionValue: 300}
	for i := 0; i < 10; i++ {
		d := day.AddDate(0, 0, -i)
		require.NoError(t, repos.Campaigns.UpsertDailyMetrics(ctx, "camp-1", d, daily))
		require.NoError(t, repos.Campaigns.UpsertDailyMetrics(ctx, "camp-2", d, daily))
		require.NoError(t, repos.Campaigns.UpsertDailyMetrics(ctx, "camp-9", d, daily))
	}
	// replacing a day overwrites instead of adding
	require.NoError(t, repos.Campaigns.UpsertDailyMetrics(ctx, "camp-1", day,
		automation.RawMetrics{Impressions: 2000, Clicks: 100, Spend: 250, Conversions: 5, ConversionValue: 1000}))

	tests := []struct {
		name      string
		campaigns []string
		start     time.Time
		end       time.Time
		want      automation.RawMetrics
	}{
		{
			name:      "single day",
			campaigns: []string{"camp-1"},
			start:     day,
			end:       day,
			want:      automation.RawMetrics{Impressions: 2000, Clicks: 100, Spend: 250, Conversions: 5, ConversionValue: 1000},
		},
		{
			name:      "seven day window is inclusive",
			campaigns: []string{"camp-2"},
			start:     day.AddDate(0, 0, -6),
			end:       day,
			want:      automation.RawMetrics{Impressions: 7000, Clicks: 350, Spend: 700, Conversions: 14, ConversionValue: 2100},
		},
		{
			name:      "several campaigns",
			campaigns: []string{"camp-1", "camp-2"},
			start:     day.AddDate(0, 0, -1),
			end:       day,
			want:      automation.RawMetrics{Impressions: 4000, Clicks: 200, Spend: 450, Conversions: 9, ConversionValue: 1600},
		},
		{
			name:      "no rows in range",
			campaigns: []string{"camp-1"},
			start:     day.AddDate(0, 0, 5),
			end:       day.AddDate(0, 0, 7),
		},
		{
			name:  "no campaigns",
			start: day,
			end:   day,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repos.Campaigns.Aggregate(ctx, tt.campaigns, tt.start, tt.end)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNotificationRepository(t *testing.T) {
	_, repos := setupTestDB(t)
	ctx := context.Background()

	for i, id := range []string{"n-1", "n-2", "n-3"} {
		require.NoError(t, repos.Notifications.CreateNotification(ctx, &models.Notification{
			ID:        id,
			OrgID:     "org-1",
			Kind:      string(automation.KindRuleTriggered),
			Severity:  "warning",
			Title:     "High CPA",
			Message:   "Rule triggered",
			CreatedAt: day.Add(time.Duration(i) * time.Minute),
		}))
	}

	all, err := repos.Notifications.ListNotifications(ctx, "org-1", false, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "n-3", all[0].ID)
	assert.Equal(t, "{}", all[0].Context)

	require.NoError(t, repos.Notifications.MarkRead(ctx, "org-1", "n-2", day.Add(time.Hour)))
	err = repos.Notifications.MarkRead(ctx, "org-2", "n-1", day)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	unread, err := repos.Notifications.ListNotifications(ctx, "org-1", true, 10)
	require.NoError(t, err)
	require.Len(t, unread, 2)
	for _, n := range unread {
		assert.NotEqual(t, "n-2", n.ID)
		assert.Nil(t, n.ReadAt)
	}

	limited, err := repos.Notifications.ListNotifications(ctx, "org-1", false, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
