package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/frostdev-ops/campaign-automation/internal/core/automation"
	"github.com/frostdev-ops/campaign-automation/internal/database/models"
	"github.com/frostdev-ops/campaign-automation/internal/websocket"
)

// NotificationStore persists in-app notifications
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// Broadcaster pushes a message to the connected clients of an organization
type Broadcaster interface {
	BroadcastToOrg(orgID string, message websocket.Message)
}

// InAppSink stores the notification and pushes it to live sessions
type InAppSink struct {
	store NotificationStore
	hub   Broadcaster
	now   func() time.Time
}

// NewInAppSink builds the in-app sink; hub may be nil
func NewInAppSink(store NotificationStore, hub Broadcaster) *InAppSink {
	return &InAppSink{
		store: store,
		hub:   hub,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *InAppSink) Deliver(ctx context.Context, n automation.Notification) error {
	encoded := "{}"
	if len(n.Context) > 0 {
		raw, err := json.Marshal(n.Context)
		if err != nil {
			return fmt.Errorf("failed to encode notification context: %w", err)
		}
		encoded = string(raw)
	}

	row := &models.Notification{
		ID:        uuid.New().String(),
		OrgID:     n.OrgID,
		Kind:      string(n.Kind),
		Severity:  string(n.Severity),
		Title:     n.Title,
		Message:   n.Message,
		Context:   encoded,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateNotification(ctx, row); err != nil {
		return err
	}

	if s.hub != nil {
		s.hub.BroadcastToOrg(n.OrgID, websocket.NotificationMessage(
			row.ID, row.Kind, row.Severity, row.Title, row.Message, n.Context))
	}
	return nil
}
