// Package testutil holds in-memory collaborators shared by package tests
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/frostdev-ops/campaign-automation/internal/core/automation"
	apperrors "github.com/frostdev-ops/campaign-automation/pkg/errors"
)

// GatewayCall is one recorded Platform Gateway invocation
type GatewayCall struct {
	CampaignID string
	Action     automation.ActionType
	Params     map[string]interface{}
}

// MockGateway records calls and fails the action types listed in Fail
type MockGateway struct {
	mutex sync.Mutex
	Calls []GatewayCall
	Fail  map[automation.ActionType]error
	// Delay simulates a slow platform; the call honours ctx
	Delay time.Duration
	// OnExecute runs at the start of every call
	OnExecute func()
}

func NewMockGateway() *MockGateway {
	return &MockGateway{Fail: make(map[automation.ActionType]error)}
}

func (g *MockGateway) Execute(ctx context.Context, campaignID string, action automation.ActionType, params map[string]interface{}) (automation.GatewayResult, error) {
	g.mutex.Lock()
	g.Calls = append(g.Calls, GatewayCall{CampaignID: campaignID, Action: action, Params: params})
	failure := g.Fail[action]
	delay := g.Delay
	hook := g.OnExecute
	g.mutex.Unlock()

	if hook != nil {
		hook()
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return automation.GatewayResult{}, ctx.Err()
		}
	}
	if failure != nil {
		return automation.GatewayResult{}, failure
	}
	return automation.GatewayResult{OK: true, Detail: fmt.Sprintf("%s applied to %s", action, campaignID)}, nil
}

// CallCount returns how many calls were made
func (g *MockGateway) CallCount() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return len(g.Calls)
}

// RecordingNotifier keeps every notification it is asked to send
type RecordingNotifier struct {
	mutex         sync.Mutex
	Notifications []automation.Notification
}

func (n *RecordingNotifier) Send(ctx context.Context, notification automation.Notification) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	n.Notifications = append(n.Notifications, notification)
}

// Sent returns a copy of the recorded notifications
func (n *RecordingNotifier) Sent() []automation.Notification {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	return append([]automation.Notification(nil), n.Notifications...)
}

// MockMetricsStore serves daily rows keyed by campaign and YYYY-MM-DD
type MockMetricsStore struct {
	mutex sync.Mutex
	Rows  map[string]map[string]automation.RawMetrics
	Err   error
	Calls int
}

func NewMockMetricsStore() *MockMetricsStore {
	return &MockMetricsStore{Rows: make(map[string]map[string]automation.RawMetrics)}
}

// Add stores one day of metrics for a campaign
func (m *MockMetricsStore) Add(campaignID string, day time.Time, raw automation.RawMetrics) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.Rows[campaignID] == nil {
		m.Rows[campaignID] = make(map[string]automation.RawMetrics)
	}
	m.Rows[campaignID][day.Format("2006-01-02")] = raw
}

func (m *MockMetricsStore) Aggregate(ctx context.Context, campaignIDs []string, start, end time.Time) (automation.RawMetrics, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Calls++
	if m.Err != nil {
		return automation.RawMetrics{}, m.Err
	}

	from, to := start.Format("2006-01-02"), end.Format("2006-01-02")
	var total automation.RawMetrics
	for _, id := range campaignIDs {
		for day, raw := range m.Rows[id] {
			if day < from || day > to {
				continue
			}
			total.Impressions += raw.Impressions
			total.Clicks += raw.Clicks
			total.Spend += raw.Spend
			total.Conversions += raw.Conversions
			total.ConversionValue += raw.ConversionValue
		}
	}
	return total, nil
}

// MockCampaignRegistry serves a fixed campaign list
type MockCampaignRegistry struct {
	Campaigns []automation.Campaign
	Err       error
}

func (r *MockCampaignRegistry) ListCampaigns(ctx context.Context, orgID string) ([]automation.Campaign, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	var out []automation.Campaign
	for _, c := range r.Campaigns {
		if c.OrgID == orgID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *MockCampaignRegistry) GetCampaign(ctx context.Context, orgID, campaignID string) (*automation.Campaign, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	for _, c := range r.Campaigns {
		if c.OrgID == orgID && c.ID == campaignID {
			campaign := c
			return &campaign, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

// MemoryStore implements automation.Store and automation.ApprovalStore in memory
type MemoryStore struct {
	mutex      sync.Mutex
	Orgs       []string
	rules      map[string]*automation.Rule
	executions []*automation.RuleExecution
	pending    map[string]*automation.PendingAction

	// FailRecord makes RecordExecution return this error
	FailRecord error
	// FailComplete errors are returned, one per call, by CompletePendingAction
	FailComplete []error
	completeCalls int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rules:   make(map[string]*automation.Rule),
		pending: make(map[string]*automation.PendingAction),
	}
}

// PutRule stores a rule as-is
func (s *MemoryStore) PutRule(rule *automation.Rule) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	r := *rule
	s.rules[rule.ID] = &r
}

// Rule returns the stored copy of a rule
func (s *MemoryStore) Rule(id string) *automation.Rule {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	r := *s.rules[id]
	return &r
}

// Executions returns every recorded execution in insertion order
func (s *MemoryStore) Executions() []*automation.RuleExecution {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]*automation.RuleExecution(nil), s.executions...)
}

// PutPendingAction stores a pending action as-is
func (s *MemoryStore) PutPendingAction(p *automation.PendingAction) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	c := *p
	s.pending[p.ID] = &c
}

func (s *MemoryStore) ListOrganizations(ctx context.Context) ([]string, error) {
	return s.Orgs, nil
}

func (s *MemoryStore) ListActiveRules(ctx context.Context, orgID string) ([]*automation.Rule, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var out []*automation.Rule
	for _, r := range s.rules {
		if r.OrgID == orgID && r.Status == automation.RuleStatusActive {
			c := *r
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetRule(ctx context.Context, orgID, ruleID string) (*automation.Rule, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	r, ok := s.rules[ruleID]
	if !ok || r.OrgID != orgID {
		return nil, apperrors.ErrNotFound
	}
	c := *r
	return &c, nil
}

func (s *MemoryStore) CountExecutionsSince(ctx context.Context, ruleID string, since time.Time) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.countSince(ruleID, since), nil
}

func (s *MemoryStore) countSince(ruleID string, since time.Time) int {
	count := 0
	for _, e := range s.executions {
		if e.RuleID == ruleID && !e.TriggeredAt.Before(since) {
			count++
		}
	}
	return count
}

func (s *MemoryStore) ClaimTrigger(ctx context.Context, claim automation.TriggerClaim) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	r, ok := s.rules[claim.RuleID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if r.Status != automation.RuleStatusActive ||
		r.TriggerVersion != claim.ExpectedVersion ||
		!automation.CooldownElapsed(r.LastTriggeredAt, claim.CooldownMinutes, claim.Now) {
		return apperrors.ErrTriggerConflict
	}
	if claim.MaxPerDay > 0 && s.countSince(r.ID, claim.DayStart)+claim.Count > claim.MaxPerDay {
		return apperrors.ErrTriggerConflict
	}

	now := claim.Now
	r.LastTriggeredAt = &now
	r.ExecutionCount += int64(claim.Count)
	r.TriggerVersion++
	if claim.Pause {
		r.Status = automation.RuleStatusPaused
	}
	return nil
}

func (s *MemoryStore) RecordExecution(ctx context.Context, exec *automation.RuleExecution, pending *automation.PendingAction) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.FailRecord != nil {
		return s.FailRecord
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	e := *exec
	s.executions = append(s.executions, &e)
	if pending != nil {
		p := *pending
		s.pending[p.ID] = &p
	}
	return nil
}

func (s *MemoryStore) MarkEvaluated(ctx context.Context, ruleID string, at time.Time) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if r, ok := s.rules[ruleID]; ok {
		r.LastEvaluatedAt = &at
	}
	return nil
}

func (s *MemoryStore) ListExecutions(ctx context.Context, ruleID string, limit int) ([]*automation.RuleExecution, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var out []*automation.RuleExecution
	for i := len(s.executions) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.executions[i].RuleID == ruleID {
			e := *s.executions[i]
			out = append(out, &e)
		}
	}
	return out, nil
}

func (s *MemoryStore) execution(id string) *automation.RuleExecution {
	for _, e := range s.executions {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// Execution returns a copy of one recorded execution
func (s *MemoryStore) Execution(id string) *automation.RuleExecution {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	e := s.execution(id)
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

func (s *MemoryStore) GetPendingAction(ctx context.Context, id string) (*automation.PendingAction, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (s *MemoryStore) ListPendingActions(ctx context.Context, orgID string, status automation.PendingStatus) ([]*automation.PendingAction, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var out []*automation.PendingAction
	for _, p := range s.pending {
		if p.OrgID == orgID && (status == "" || p.Status == status) {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) ListExpiredPendingActions(ctx context.Context, now time.Time) ([]*automation.PendingAction, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var out []*automation.PendingAction
	for _, p := range s.pending {
		if p.Status == automation.PendingStatusPending && now.After(p.ExpiresAt) {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

func (s *MemoryStore) ListStalledApprovals(ctx context.Context, resolvedBefore time.Time) ([]*automation.PendingAction, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var out []*automation.PendingAction
	for _, p := range s.pending {
		if p.Status == automation.PendingStatusApproved && p.ExecutionResult == nil &&
			p.ResolvedAt != nil && p.ResolvedAt.Before(resolvedBefore) {
			c := *p
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResolvedAt.Before(*out[j].ResolvedAt) })
	return out, nil
}

// CompleteCalls counts CompletePendingAction calls, failed ones included
func (s *MemoryStore) CompleteCalls() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.completeCalls
}

func (s *MemoryStore) TransitionPendingAction(ctx context.Context, t automation.PendingTransition) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	p, ok := s.pending[t.ID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if p.Status != t.From || !automation.CanTransition(t.From, t.To) {
		return apperrors.ErrNotPending
	}

	at := t.At
	p.Status = t.To
	p.ResolvedAt = &at
	p.ResolvedBy = t.By
	p.ResolutionNote = t.Note

	if t.ExecutionStatus != "" {
		if e := s.execution(p.ExecutionID); e != nil {
			e.Status = t.ExecutionStatus
			if t.ExecutionReason != "" {
				e.TriggerReason = e.TriggerReason + " (" + t.ExecutionReason + ")"
			}
		}
	}
	return nil
}

func (s *MemoryStore) CompletePendingAction(ctx context.Context, id string, results []automation.ActionResult, status automation.ExecutionStatus, at time.Time) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.completeCalls++
	if len(s.FailComplete) > 0 {
		err := s.FailComplete[0]
		s.FailComplete = s.FailComplete[1:]
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p, ok := s.pending[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if p.Status != automation.PendingStatusApproved {
		return apperrors.ErrNotPending
	}
	p.Status = automation.PendingStatusExecuted
	p.ExecutionResult = results
	if e := s.execution(p.ExecutionID); e != nil {
		e.ActionResults = results
		e.Status = status
	}
	return nil
}
