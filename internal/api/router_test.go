package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frostdev-ops/campaign-automation/internal/api"
	"github.com/frostdev-ops/campaign-automation/internal/api/handlers"
	"github.com/frostdev-ops/campaign-automation/internal/config"
	"github.com/frostdev-ops/campaign-automation/internal/core/alerts"
	"github.com/frostdev-ops/campaign-automation/internal/core/automation"
	"github.com/frostdev-ops/campaign-automation/internal/core/metrics"
	"github.com/frostdev-ops/campaign-automation/internal/core/scheduler"
	"github.com/frostdev-ops/campaign-automation/internal/database"
	"github.com/frostdev-ops/campaign-automation/internal/database/models"
	"github.com/frostdev-ops/campaign-automation/internal/testutil"
	"github.com/frostdev-ops/campaign-automation/pkg/logger"
)

var day = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

type testServer struct {
	router   *gin.Engine
	repos    *database.Repositories
	gateway  *testutil.MockGateway
	workflow *automation.ApprovalWorkflow
	lock     *scheduler.LocalLock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.Discard()
	ctx := context.Background()

	db, err := database.Initialize(config.DatabaseConfig{
		Path:           filepath.Join(t.TempDir(), "api.db"),
		MaxConnections: 4,
		BusyTimeout:    5 * time.Second,
	}, log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))
	repos := database.NewRepositories(db, log)

	require.NoError(t, repos.Campaigns.SaveOrganization(ctx, &models.Organization{ID: "org-1", Name: "Acme"}))
	require.NoError(t, repos.Campaigns.SaveCampaign(ctx, &automation.Campaign{
		ID: "camp-1", OrgID: "org-1", Name: "Spring sale", Platform: "meta", Status: automation.CampaignActive,
	}))
	for i := 0; i < 7; i++ {
		require.NoError(t, repos.Campaigns.UpsertDailyMetrics(ctx, "camp-1", day.AddDate(0, 0, -i),
			automation.RawMetrics{Impressions: 1000, Clicks: 40, Spend: 100, Conversions: 1, ConversionValue: 90}))
	}

	gateway := testutil.NewMockGateway()
	notifier := &testutil.RecordingNotifier{}
	dispatcher := automation.NewDispatcher(gateway, notifier, time.Second, log)
	aggregator := automation.NewAggregator(repos.Campaigns, time.UTC, time.Second)
	engine := automation.NewEngine(repos.Rules, repos.Campaigns, aggregator,
		automation.NewRateLimiter(repos.Rules, time.UTC), dispatcher, log)
	workflow := automation.NewApprovalWorkflow(repos.Rules, dispatcher, log)
	workflow.SetClock(func() time.Time { return day.Add(time.Minute) })
	evaluator := alerts.NewEvaluator(repos.Alerts, repos.Campaigns, aggregator, notifier, time.UTC, log)

	lock := scheduler.NewLocalLock()
	driver := scheduler.NewDriver(scheduler.DriverDeps{
		Organizations: repos.Rules,
		Rules:         repos.Rules,
		Engine:        engine,
		Approvals:     workflow,
		Alerts:        repos.Alerts,
		Evaluator:     evaluator,
		Lock:          lock,
	}, 2, log)
	driver.SetClock(func() time.Time { return day })

	collector := metrics.NewPrometheusCollector(&metrics.MetricsConfig{Enabled: true, Prefix: "test"})
	router := api.NewRouter(config.ServerConfig{Mode: gin.TestMode}, handlers.Deps{
		Rules:         repos.Rules,
		Alerts:        repos.Alerts,
		Campaigns:     repos.Campaigns,
		Notifications: repos.Notifications,
		Passes:        driver,
		Approvals:     workflow,
		AlertHistory:  evaluator,
	}, api.Options{Metrics: collector}, log)

	return &testServer{router: router, repos: repos, gateway: gateway, workflow: workflow, lock: lock}
}

type envelope struct {
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data"`
	Error    string          `json:"error"`
	Category string          `json:"category"`
	Details  json.RawMessage `json:"details"`
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v), string(raw))
}

const cpaRule = `{
	"name": "Pause expensive campaigns",
	"scope": {"campaign_id": "camp-1"},
	"conditions": {"metric": "cpa", "operator": "gt", "threshold": 50, "lookback_days": 7},
	"actions": [{"type": "pause_campaign"}],
	"cooldown_minutes": 60
}`

const approvalRule = `
name: Pause with approval
scope:
  campaign_id: camp-1
conditions:
  metric: cpa
  operator: gt
  threshold: 50
actions:
  - type: pause_campaign
approval:
  requires_approval: true
  approval_timeout_hours: 1
`

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)

	var health handlers.HealthResponse
	decode(t, env.Data, &health)
	assert.Equal(t, "healthy", health.Status)
	assert.NotEmpty(t, health.Build.Version)
}

func TestRunRule_TriggersThenCoolsDown(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodPut, "/api/v1/orgs/org-1/rules/rule-1", cpaRule)
	require.Equal(t, http.StatusOK, code, env.Error)

	code, env = s.do(t, http.MethodPost, "/api/v1/orgs/org-1/rules/rule-1/run", "")
	require.Equal(t, http.StatusOK, code, env.Error)
	var outcome automation.RuleOutcome
	decode(t, env.Data, &outcome)
	assert.False(t, outcome.Skipped)
	assert.Len(t, outcome.Executions, 1)
	assert.Equal(t, 1, s.gateway.CallCount())

	code, env = s.do(t, http.MethodPost, "/api/v1/orgs/org-1/rules/rule-1/run", "")
	require.Equal(t, http.StatusOK, code)
	decode(t, env.Data, &outcome)
	assert.True(t, outcome.Skipped, "cooldown applies to manual runs")
	assert.Equal(t, 1, s.gateway.CallCount())

	code, env = s.do(t, http.MethodGet, "/api/v1/orgs/org-1/rules/rule-1/executions?limit=5", "")
	require.Equal(t, http.StatusOK, code)
	var executions []map[string]interface{}
	decode(t, env.Data, &executions)
	require.Len(t, executions, 1)
	assert.Equal(t, "completed", executions[0]["status"])
}

func TestRules_Errors(t *testing.T) {
	s := newTestServer(t)
	_, _ = s.do(t, http.MethodPut, "/api/v1/orgs/org-1/rules/rule-1", cpaRule)

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		status   int
		category string
	}{
		{"unknown rule", http.MethodPost, "/api/v1/orgs/org-1/rules/nope/run", "", http.StatusNotFound, "not_found"},
		{"rule of another org", http.MethodGet, "/api/v1/orgs/org-2/rules/rule-1", "", http.StatusNotFound, "not_found"},
		{"history of unknown rule", http.MethodGet, "/api/v1/orgs/org-1/rules/nope/executions", "", http.StatusNotFound, "not_found"},
		{"bad limit", http.MethodGet, "/api/v1/orgs/org-1/rules/rule-1/executions?limit=-1", "", http.StatusBadRequest, "validation"},
		{"empty body", http.MethodPut, "/api/v1/orgs/org-1/rules/rule-2", "", http.StatusBadRequest, "validation"},
		{"unparseable body", http.MethodPut, "/api/v1/orgs/org-1/rules/rule-2", "name: [oops", http.StatusBadRequest, "validation"},
		{"invalid definition", http.MethodPut, "/api/v1/orgs/org-1/rules/rule-2", `{"name": "x", "actions": []}`, http.StatusBadRequest, "validation"},
		{"mismatched id", http.MethodPut, "/api/v1/orgs/org-1/rules/rule-2", `{"id": "rule-3", "name": "x"}`, http.StatusBadRequest, "validation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.category, env.Category)
		})
	}
}

func TestValidateRule(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodPost, "/api/v1/rules/validate", "org_id: org-1\n"+strings.TrimPrefix(approvalRule, "\n"))
	require.Equal(t, http.StatusOK, code, env.Error)
	var body struct {
		Validation automation.RuleValidationResult `json:"validation"`
	}
	decode(t, env.Data, &body)
	assert.True(t, body.Validation.Valid, body.Validation.Error())

	code, env = s.do(t, http.MethodPost, "/api/v1/rules/validate", `{"name": "x", "org_id": "o", "actions": []}`)
	require.Equal(t, http.StatusOK, code)
	decode(t, env.Data, &body)
	assert.False(t, body.Validation.Valid)
	assert.NotEmpty(t, body.Validation.Errors)
}

func TestPendingActions_Lifecycle(t *testing.T) {
	s := newTestServer(t)
	code, env := s.do(t, http.MethodPut, "/api/v1/orgs/org-1/rules/rule-1", approvalRule)
	require.Equal(t, http.StatusOK, code, env.Error)

	code, env = s.do(t, http.MethodPost, "/api/v1/orgs/org-1/rules/rule-1/run", "")
	require.Equal(t, http.StatusOK, code, env.Error)
	var outcome automation.RuleOutcome
	decode(t, env.Data, &outcome)
	require.Len(t, outcome.PendingActions, 1)
	pendingID := outcome.PendingActions[0].ID
	assert.Zero(t, s.gateway.CallCount())

	code, env = s.do(t, http.MethodGet, "/api/v1/orgs/org-1/pending-actions?status=pending", "")
	require.Equal(t, http.StatusOK, code)
	var listed []automation.PendingAction
	decode(t, env.Data, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, pendingID, listed[0].ID)

	code, _ = s.do(t, http.MethodGet, "/api/v1/orgs/org-1/pending-actions?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.do(t, http.MethodPost, "/api/v1/pending-actions/"+pendingID+"/approve", `{}`)
	assert.Equal(t, http.StatusBadRequest, code, "resolved_by is required")

	code, env = s.do(t, http.MethodPost, "/api/v1/pending-actions/"+pendingID+"/approve",
		`{"resolved_by": "user-7", "note": "go"}`)
	require.Equal(t, http.StatusOK, code, env.Error)
	var approved automation.PendingAction
	decode(t, env.Data, &approved)
	assert.Equal(t, automation.PendingStatusExecuted, approved.Status)
	assert.Equal(t, 1, s.gateway.CallCount())

	code, env = s.do(t, http.MethodPost, "/api/v1/pending-actions/"+pendingID+"/reject", `{"resolved_by": "user-8"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "conflict", env.Category)

	code, _ = s.do(t, http.MethodPost, "/api/v1/pending-actions/missing/approve", `{"resolved_by": "user-7"}`)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestPendingActions_ApproveAfterExpiry(t *testing.T) {
	s := newTestServer(t)
	_, _ = s.do(t, http.MethodPut, "/api/v1/orgs/org-1/rules/rule-1", approvalRule)
	_, env := s.do(t, http.MethodPost, "/api/v1/orgs/org-1/rules/rule-1/run", "")
	var outcome automation.RuleOutcome
	decode(t, env.Data, &outcome)
	require.Len(t, outcome.PendingActions, 1)

	s.workflow.SetClock(func() time.Time { return day.Add(2 * time.Hour) })
	code, env := s.do(t, http.MethodPost, "/api/v1/pending-actions/"+outcome.PendingActions[0].ID+"/approve",
		`{"resolved_by": "user-7"}`)
	assert.Equal(t, http.StatusGone, code)
	assert.False(t, env.Success)
	assert.Zero(t, s.gateway.CallCount())

	stored, err := s.repos.Rules.GetPendingAction(context.Background(), outcome.PendingActions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, automation.PendingStatusExpired, stored.Status)
}

func TestReject(t *testing.T) {
	s := newTestServer(t)
	_, _ = s.do(t, http.MethodPut, "/api/v1/orgs/org-1/rules/rule-1", approvalRule)
	_, env := s.do(t, http.MethodPost, "/api/v1/orgs/org-1/rules/rule-1/run", "")
	var outcome automation.RuleOutcome
	decode(t, env.Data, &outcome)
	require.Len(t, outcome.PendingActions, 1)

	code, env := s.do(t, http.MethodPost, "/api/v1/pending-actions/"+outcome.PendingActions[0].ID+"/reject",
		`{"resolved_by": "user-7", "note": "not now"}`)
	require.Equal(t, http.StatusOK, code, env.Error)
	var rejected automation.PendingAction
	decode(t, env.Data, &rejected)
	assert.Equal(t, automation.PendingStatusRejected, rejected.Status)
	assert.Equal(t, "not now", rejected.ResolutionNote)
	assert.Zero(t, s.gateway.CallCount())
}

func TestAlerts_PassAndHistory(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodPut, "/api/v1/orgs/org-1/alerts/alert-1", `{
		"name": "Daily budget",
		"type": "budget_threshold",
		"condition": {"budget_type": "daily", "budget_amount": 100, "threshold_percent": 80},
		"notify_in_app": true,
		"enabled": true
	}`)
	require.Equal(t, http.StatusOK, code, env.Error)

	code, env = s.do(t, http.MethodPut, "/api/v1/orgs/org-1/alerts/alert-2",
		`{"name": "Broken", "type": "budget_threshold", "condition": {"budget_type": "hourly"}}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = s.do(t, http.MethodPost, "/api/v1/passes/alerts", "")
	require.Equal(t, http.StatusOK, code, env.Error)
	var report scheduler.PassReport
	decode(t, env.Data, &report)
	assert.Equal(t, scheduler.PassCompleted, report.Result)
	assert.Equal(t, 1, report.Triggered)

	code, env = s.do(t, http.MethodGet, "/api/v1/orgs/org-1/alerts/history", "")
	require.Equal(t, http.StatusOK, code)
	var history []alerts.History
	decode(t, env.Data, &history)
	require.Len(t, history, 1)
	id := history[0].ID

	code, env = s.do(t, http.MethodPost, "/api/v1/alert-history/"+id+"/acknowledge", `{"resolved_by": "user-7"}`)
	require.Equal(t, http.StatusOK, code, env.Error)
	var row alerts.History
	decode(t, env.Data, &row)
	assert.Equal(t, alerts.HistoryAcknowledged, row.Status)

	code, _ = s.do(t, http.MethodPost, "/api/v1/alert-history/"+id+"/acknowledge", `{"resolved_by": "user-7"}`)
	assert.Equal(t, http.StatusConflict, code)

	code, env = s.do(t, http.MethodPost, "/api/v1/alert-history/"+id+"/resolve", `{"resolved_by": "user-7"}`)
	require.Equal(t, http.StatusOK, code, env.Error)
	decode(t, env.Data, &row)
	assert.Equal(t, alerts.HistoryResolved, row.Status)

	code, _ = s.do(t, http.MethodPost, "/api/v1/alert-history/missing/resolve", `{"resolved_by": "user-7"}`)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRulesPass_RespectsLock(t *testing.T) {
	s := newTestServer(t)
	_, _ = s.do(t, http.MethodPut, "/api/v1/orgs/org-1/rules/rule-1", cpaRule)

	release, ok, err := s.lock.TryAcquire(context.Background(), scheduler.RulesPassLock)
	require.NoError(t, err)
	require.True(t, ok)

	code, env := s.do(t, http.MethodPost, "/api/v1/passes/rules", "")
	assert.Equal(t, http.StatusConflict, code)
	assert.Zero(t, s.gateway.CallCount())
	var report scheduler.PassReport
	decode(t, env.Details, &report)
	assert.Equal(t, scheduler.PassLocked, report.Result)

	release()
	code, env = s.do(t, http.MethodPost, "/api/v1/passes/rules", "")
	require.Equal(t, http.StatusOK, code, env.Error)
	decode(t, env.Data, &report)
	assert.Equal(t, 1, report.Triggered)
	assert.Equal(t, 1, s.gateway.CallCount())
}

func TestCampaignsAndMetrics(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodPut, "/api/v1/orgs/org-2", `{"name": "Globex"}`)
	require.Equal(t, http.StatusOK, code, env.Error)

	code, env = s.do(t, http.MethodPut, "/api/v1/orgs/org-2/campaigns/camp-7",
		`{"name": "Launch", "platform": "google", "status": "active"}`)
	require.Equal(t, http.StatusOK, code, env.Error)

	code, _ = s.do(t, http.MethodPut, "/api/v1/orgs/org-2/campaigns/camp-1",
		`{"name": "Takeover", "platform": "meta", "status": "active"}`)
	assert.Equal(t, http.StatusNotFound, code, "campaign ids cannot move between organizations")

	code, _ = s.do(t, http.MethodPut, "/api/v1/orgs/org-2/campaigns/camp-8",
		`{"name": "Launch", "platform": "google", "status": "running"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = s.do(t, http.MethodPut, "/api/v1/orgs/org-2/campaigns/camp-7/metrics/2024-03-15",
		`{"impressions": 500, "clicks": 10, "spend": 25.5, "conversions": 1, "conversion_value": 40}`)
	require.Equal(t, http.StatusOK, code, env.Error)

	raw, err := s.repos.Campaigns.Aggregate(context.Background(), []string{"camp-7"}, day, day)
	require.NoError(t, err)
	assert.Equal(t, 25.5, raw.Spend)

	code, _ = s.do(t, http.MethodPut, "/api/v1/orgs/org-2/campaigns/camp-7/metrics/15-03-2024", `{}`)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(t, http.MethodPut, "/api/v1/orgs/org-1/campaigns/camp-7/metrics/2024-03-15", `{"spend": 1}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, env = s.do(t, http.MethodGet, "/api/v1/orgs/org-2/campaigns", "")
	require.Equal(t, http.StatusOK, code)
	var campaigns []automation.Campaign
	decode(t, env.Data, &campaigns)
	require.Len(t, campaigns, 1)
	assert.Equal(t, "camp-7", campaigns[0].ID)
}

func TestNotifications(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, s.repos.Notifications.CreateNotification(ctx, &models.Notification{
		ID: "n-1", OrgID: "org-1", Kind: "alert_triggered", Title: "Budget", Message: "80% spent",
	}))

	code, env := s.do(t, http.MethodGet, "/api/v1/orgs/org-1/notifications?unread=true", "")
	require.Equal(t, http.StatusOK, code)
	var listed []models.Notification
	decode(t, env.Data, &listed)
	require.Len(t, listed, 1)

	code, _ = s.do(t, http.MethodPost, "/api/v1/orgs/org-1/notifications/n-1/read", "")
	require.Equal(t, http.StatusOK, code)
	code, _ = s.do(t, http.MethodPost, "/api/v1/orgs/org-2/notifications/n-1/read", "")
	assert.Equal(t, http.StatusNotFound, code)

	_, env = s.do(t, http.MethodGet, "/api/v1/orgs/org-1/notifications?unread=true", "")
	decode(t, env.Data, &listed)
	assert.Empty(t, listed)
}

func TestMetricsAndUnknownRoutes(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, http.MethodGet, "/api/v1/nothing-here", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)

	code, _ = s.do(t, http.MethodDelete, "/api/v1/passes/rules", "")
	assert.Equal(t, http.StatusMethodNotAllowed, code)

	_, _ = s.do(t, http.MethodGet, "/health", "")

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `test_http_requests_total{method="GET",path="/health",status="200"} 1`)
	assert.Contains(t, w.Body.String(), `path="unmatched"`)
}
