package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/campaign-automation/internal/config"
	"github.com/frostdev-ops/campaign-automation/internal/core/automation"
	"github.com/frostdev-ops/campaign-automation/internal/database"
	"github.com/frostdev-ops/campaign-automation/internal/database/models"
	"github.com/frostdev-ops/campaign-automation/pkg/logger"
)

// Friday
var day = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) (*sqlx.DB, *database.Repositories) {
	t.Helper()
	log := logger.Discard()

	db, err := database.Initialize(config.DatabaseConfig{
		Path:           filepath.Join(t.TempDir(), "automation.db"),
		MaxConnections: 4,
		BusyTimeout:    5 * time.Second,
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(db))
	repos := database.NewRepositories(db, log)

	ctx := context.Background()
	for _, org := range []string{"org-1", "org-2"} {
		require.NoError(t, repos.Campaigns.SaveOrganization(ctx, &models.Organization{ID: org, Name: org}))
	}
	for _, c := range []automation.Campaign{
		{ID: "camp-1", OrgID: "org-1", Name: "Spring sale", Platform: "meta", Status: automation.CampaignActive},
		{ID: "camp-2", OrgID: "org-1", Name: "Brand", Platform: "google", Status: automation.CampaignPaused},
		{ID: "camp-9", OrgID: "org-2", Name: "Other", Platform: "meta", Status: automation.CampaignActive},
	} {
		c := c
		require.NoError(t, repos.Campaigns.SaveCampaign(ctx, &c))
	}
	return db, repos
}

func sampleRule(id string) *automation.Rule {
	return &automation.Rule{
		ID:     id,
		OrgID:  "org-1",
		Name:   "High CPA",
		Status: automation.RuleStatusActive,
		Scope:  automation.Scope{Type: automation.ScopeCampaign, CampaignID: "camp-1"},
		Conditions: automation.ConditionTree{Root: &automation.And{Children: []automation.ConditionNode{
			&automation.Leaf{Metric: automation.MetricCPA, Operator: automation.OperatorGT, Threshold: 50, LookbackDays: 7},
			&automation.Leaf{Metric: automation.MetricSpend, Operator: automation.OperatorGTE, Threshold: 100, LookbackDays: 1},
		}}},
		Actions: automation.ActionList{
			automation.PauseCampaign{},
			automation.Notify{Channels: []automation.Channel{automation.ChannelSlack}},
		},
		Approval:            automation.ApprovalPolicy{RequiresApproval: true, TimeoutHours: 12},
		CooldownMinutes:     60,
		MaxExecutionsPerDay: 2,
		Schedule: &automation.Schedule{
			Type: automation.ScheduleTimeRange, Timezone: "America/New_York", StartTime: "09:00", EndTime: "17:00",
		},
	}
}
