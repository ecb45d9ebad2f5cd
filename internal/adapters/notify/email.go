package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/campaign-automation/internal/config"
	"github.com/frostdev-ops/campaign-automation/internal/core/automation"
)

// EmailJob is the payload published for the mail worker
type EmailJob struct {
	ID        string                 `json:"id"`
	OrgID     string                 `json:"org_id"`
	Kind      string                 `json:"kind"`
	Severity  string                 `json:"severity,omitempty"`
	Subject   string                 `json:"subject"`
	Body      string                 `json:"body"`
	Context   map[string]interface{} `json:"context,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// MsgPublisher is the part of *nats.Conn the email queue needs
type MsgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// EmailQueue hands email notifications to a mail worker over NATS
type EmailQueue struct {
	conn    MsgPublisher
	nc      *nats.Conn
	subject string
	logger  *logrus.Logger
}

// ConnectEmailQueue dials NATS and returns a queue publishing on cfg.Subject
func ConnectEmailQueue(cfg config.NATSConfig, logger *logrus.Logger) (*EmailQueue, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("campaign-automation"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("NATS connection lost")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.WithField("url", c.ConnectedUrl()).Info("NATS connection restored")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	q := NewEmailQueue(nc, cfg.Subject, logger)
	q.nc = nc
	return q, nil
}

func NewEmailQueue(conn MsgPublisher, subject string, logger *logrus.Logger) *EmailQueue {
	return &EmailQueue{
		conn:    conn,
		subject: subject,
		logger:  logger,
	}
}

func (q *EmailQueue) Deliver(ctx context.Context, n automation.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	job := EmailJob{
		ID:        uuid.New().String(),
		OrgID:     n.OrgID,
		Kind:      string(n.Kind),
		Severity:  string(n.Severity),
		Subject:   n.Title,
		Body:      n.Message,
		Context:   n.Context,
		CreatedAt: time.Now().UTC(),
	}
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal email job: %w", err)
	}

	msg := nats.NewMsg(q.subject)
	msg.Data = body
	msg.Header.Set("Nats-Msg-Id", job.ID)
	msg.Header.Set("Org-Id", n.OrgID)
	if err := q.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish email job: %w", err)
	}
	return nil
}

// Close drains the NATS connection when the queue owns it
func (q *EmailQueue) Close() {
	if q.nc != nil {
		q.nc.Drain()
		q.nc.Close()
	}
}
