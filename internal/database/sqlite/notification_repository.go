package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/campaign-automation/internal/database/models"
	apperrors "github.com/frostdev-ops/campaign-automation/pkg/errors"
)

// NotificationRepository stores in-app notifications
type NotificationRepository struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func NewNotificationRepository(db *sqlx.DB, log *logrus.Logger) *NotificationRepository {
	return &NotificationRepository{
		db:  db,
		log: log,
	}
}

func (r *NotificationRepository) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	if n.Context == "" {
		n.Context = "{}"
	}
	_, err := r.db.NamedExecContext(ctx, `INSERT INTO notifications
		(id, org_id, kind, severity, title, message, context, read_at, created_at)
		VALUES (:id, :org_id, :kind, :severity, :title, :message, :context, :read_at, :created_at)`, n)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// ListNotifications returns the newest notifications of an organization
func (r *NotificationRepository) ListNotifications(ctx context.Context, orgID string, unreadOnly bool, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, org_id, kind, severity, title, message, context, read_at, created_at
		FROM notifications WHERE org_id = ?`
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`

	var out []*models.Notification
	if err := r.db.SelectContext(ctx, &out, query, orgID, limit); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return out, nil
}

// MarkRead marks one notification of an organization as read
func (r *NotificationRepository) MarkRead(ctx context.Context, orgID, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET read_at = COALESCE(read_at, ?)
		WHERE id = ? AND org_id = ?`, at.UTC(), id, orgID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
