package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/frostdev-ops/campaign-automation/internal/core/alerts"
	"github.com/frostdev-ops/campaign-automation/internal/core/automation"
	apperrors "github.com/frostdev-ops/campaign-automation/pkg/errors"
)

// MemoryAlertStore implements alerts.Store in memory
type MemoryAlertStore struct {
	mutex   sync.Mutex
	alerts  map[string]*alerts.Alert
	history []*alerts.History
}

func NewMemoryAlertStore() *MemoryAlertStore {
	return &MemoryAlertStore{alerts: make(map[string]*alerts.Alert)}
}

// PutAlert stores an alert as-is
func (s *MemoryAlertStore) PutAlert(a *alerts.Alert) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	c := *a
	s.alerts[a.ID] = &c
}

// Alert returns the stored copy of an alert
func (s *MemoryAlertStore) Alert(id string) *alerts.Alert {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	c := *s.alerts[id]
	return &c
}

func (s *MemoryAlertStore) ListEnabledAlerts(ctx context.Context, orgID string) ([]*alerts.Alert, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var out []*alerts.Alert
	for _, a := range s.alerts {
		if a.OrgID == orgID && a.Enabled {
			c := *a
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryAlertStore) RecordTrigger(ctx context.Context, rec alerts.TriggerRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	a, ok := s.alerts[rec.AlertID]
	if !ok {
		return apperrors.ErrNotFound
	}
	if a.TriggerVersion != rec.ExpectedVersion ||
		!automation.CooldownElapsed(a.LastTriggeredAt, rec.CooldownMinutes, rec.Now) {
		return apperrors.ErrTriggerConflict
	}
	now := rec.Now
	a.IsTriggered = true
	a.LastTriggeredAt = &now
	a.TriggerVersion++
	h := *rec.History
	s.history = append(s.history, &h)
	return nil
}

func (s *MemoryAlertStore) ClearTriggered(ctx context.Context, alertID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if a, ok := s.alerts[alertID]; ok {
		a.IsTriggered = false
	}
	return nil
}

func (s *MemoryAlertStore) ListHistory(ctx context.Context, orgID string, limit int) ([]*alerts.History, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	var out []*alerts.History
	for i := len(s.history) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.history[i].OrgID == orgID {
			h := *s.history[i]
			out = append(out, &h)
		}
	}
	return out, nil
}

func (s *MemoryAlertStore) TransitionHistory(ctx context.Context, id string, to alerts.HistoryStatus, by string, at time.Time) (*alerts.History, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, h := range s.history {
		if h.ID != id {
			continue
		}
		if !h.Status.CanTransition(to) {
			return nil, apperrors.ErrInvalidState
		}
		h.Status = to
		h.UpdatedAt = &at
		h.UpdatedBy = by
		c := *h
		return &c, nil
	}
	return nil, apperrors.ErrNotFound
}
