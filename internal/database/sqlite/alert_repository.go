package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/campaign-automation/internal/core/alerts"
	"github.com/frostdev-ops/campaign-automation/internal/core/automation"
	"github.com/frostdev-ops/campaign-automation/internal/database/models"
	apperrors "github.com/frostdev-ops/campaign-automation/pkg/errors"
)

// AlertRepository persists alerts and their history. It implements alerts.Store.
type AlertRepository struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func NewAlertRepository(db *sqlx.DB, log *logrus.Logger) *AlertRepository {
	return &AlertRepository{
		db:  db,
		log: log,
	}
}

const alertColumns = `id, org_id, name, type, condition, campaign_id, notify_in_app, notify_email,
	notify_slack, enabled, is_triggered, last_triggered_at, cooldown_minutes, trigger_version,
	created_at, updated_at`

const historyColumns = `id, alert_id, org_id, campaign_id, triggered_at, message, observed_value,
	threshold_value, status, updated_at, updated_by`

// SaveAlert inserts or updates an alert definition
func (r *AlertRepository) SaveAlert(ctx context.Context, alert *alerts.Alert) error {
	condition, err := json.Marshal(alert.Config)
	if err != nil {
		return fmt.Errorf("failed to encode alert condition: %w", err)
	}
	now := time.Now().UTC()
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = now
	}
	alert.UpdatedAt = now

	row := &models.Alert{
		ID:              alert.ID,
		OrgID:           alert.OrgID,
		Name:            alert.Name,
		Type:            string(alert.Type),
		Condition:       string(condition),
		CampaignID:      models.NullString(alert.CampaignID),
		NotifyInApp:     alert.NotifyInApp,
		NotifyEmail:     alert.NotifyEmail,
		NotifySlack:     alert.NotifySlack,
		Enabled:         alert.Enabled,
		CooldownMinutes: alert.CooldownMinutes,
		CreatedAt:       alert.CreatedAt.UTC(),
		UpdatedAt:       alert.UpdatedAt,
	}

	res, err := r.db.NamedExecContext(ctx, `INSERT INTO alerts (`+alertColumns+`)
		VALUES (:id, :org_id, :name, :type, :condition, :campaign_id, :notify_in_app, :notify_email,
			:notify_slack, :enabled, :is_triggered, :last_triggered_at, :cooldown_minutes, :trigger_version,
			:created_at, :updated_at)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			condition = excluded.condition,
			campaign_id = excluded.campaign_id,
			notify_in_app = excluded.notify_in_app,
			notify_email = excluded.notify_email,
			notify_slack = excluded.notify_slack,
			enabled = excluded.enabled,
			cooldown_minutes = excluded.cooldown_minutes,
			updated_at = excluded.updated_at
		WHERE alerts.org_id = excluded.org_id`, row)
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("alert %s belongs to another organization: %w", alert.ID, apperrors.ErrNotFound)
	}
	return nil
}

func (r *AlertRepository) ListEnabledAlerts(ctx context.Context, orgID string) ([]*alerts.Alert, error) {
	var rows []models.Alert
	err := r.db.SelectContext(ctx, &rows,
		`SELECT `+alertColumns+` FROM alerts WHERE org_id = ? AND enabled = 1 ORDER BY id`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}

	out := make([]*alerts.Alert, 0, len(rows))
	for i := range rows {
		alert, err := rowToAlert(&rows[i])
		if err != nil {
			r.log.WithError(err).WithField("alert_id", rows[i].ID).Warn("Skipping undecodable alert")
			continue
		}
		out = append(out, alert)
	}
	return out, nil
}

// GetAlert returns one alert of an organization
func (r *AlertRepository) GetAlert(ctx context.Context, orgID, alertID string) (*alerts.Alert, error) {
	var row models.Alert
	err := r.db.GetContext(ctx, &row, `SELECT `+alertColumns+` FROM alerts WHERE id = ? AND org_id = ?`, alertID, orgID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	alert, err := rowToAlert(&row)
	if err != nil {
		return nil, apperrors.Configuration("decode alert", err)
	}
	return alert, nil
}

// RecordTrigger writes the history row and stamps the alert atomically
func (r *AlertRepository) RecordTrigger(ctx context.Context, rec alerts.TriggerRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current struct {
		TriggerVersion  int64        `db:"trigger_version"`
		LastTriggeredAt sql.NullTime `db:"last_triggered_at"`
	}
	err = tx.GetContext(ctx, &current, `SELECT trigger_version, last_triggered_at FROM alerts WHERE id = ?`, rec.AlertID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read alert: %w", err)
	}
	if current.TriggerVersion != rec.ExpectedVersion ||
		!automation.CooldownElapsed(models.TimePtr(current.LastTriggeredAt), rec.CooldownMinutes, rec.Now) {
		return apperrors.ErrTriggerConflict
	}

	_, err = tx.ExecContext(ctx, `UPDATE alerts SET is_triggered = 1, last_triggered_at = ?,
		trigger_version = trigger_version + 1 WHERE id = ?`, rec.Now.UTC(), rec.AlertID)
	if err != nil {
		return fmt.Errorf("failed to stamp alert: %w", err)
	}

	h := rec.History
	_, err = tx.NamedExecContext(ctx, `INSERT INTO alert_history (`+historyColumns+`)
		VALUES (:id, :alert_id, :org_id, :campaign_id, :triggered_at, :message, :observed_value,
			:threshold_value, :status, :updated_at, :updated_by)`, &models.AlertHistory{
		ID:             h.ID,
		AlertID:        h.AlertID,
		OrgID:          h.OrgID,
		CampaignID:     models.NullString(h.CampaignID),
		TriggeredAt:    h.TriggeredAt.UTC(),
		Message:        h.Message,
		ObservedValue:  h.ObservedValue,
		ThresholdValue: h.ThresholdValue,
		Status:         string(h.Status),
		UpdatedAt:      models.NullTime(h.UpdatedAt),
		UpdatedBy:      h.UpdatedBy,
	})
	if err != nil {
		return fmt.Errorf("failed to insert alert history: %w", err)
	}

	return tx.Commit()
}

func (r *AlertRepository) ClearTriggered(ctx context.Context, alertID string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE alerts SET is_triggered = 0 WHERE id = ?`, alertID); err != nil {
		return fmt.Errorf("failed to clear alert: %w", err)
	}
	return nil
}

func (r *AlertRepository) ListHistory(ctx context.Context, orgID string, limit int) ([]*alerts.History, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.AlertHistory
	err := r.db.SelectContext(ctx, &rows, `SELECT `+historyColumns+` FROM alert_history
		WHERE org_id = ? ORDER BY triggered_at DESC, id LIMIT ?`, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert history: %w", err)
	}
	out := make([]*alerts.History, 0, len(rows))
	for i := range rows {
		out = append(out, rowToHistory(&rows[i]))
	}
	return out, nil
}

// TransitionHistory moves a history row forward. Status moves are
// compare-and-set on the status that was read.
func (r *AlertRepository) TransitionHistory(ctx context.Context, id string, to alerts.HistoryStatus, by string, at time.Time) (*alerts.History, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var row models.AlertHistory
	if err := tx.GetContext(ctx, &row, `SELECT `+historyColumns+` FROM alert_history WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get alert history: %w", err)
	}
	if !alerts.HistoryStatus(row.Status).CanTransition(to) {
		return nil, apperrors.ErrInvalidState
	}

	res, err := tx.ExecContext(ctx, `UPDATE alert_history SET status = ?, updated_at = ?, updated_by = ?
		WHERE id = ? AND status = ?`, string(to), at.UTC(), by, id, row.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to update alert history: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apperrors.ErrInvalidState
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	h := rowToHistory(&row)
	h.Status = to
	updated := at.UTC()
	h.UpdatedAt = &updated
	h.UpdatedBy = by
	return h, nil
}

func rowToAlert(row *models.Alert) (*alerts.Alert, error) {
	alert := &alerts.Alert{
		ID:              row.ID,
		OrgID:           row.OrgID,
		Name:            row.Name,
		Type:            alerts.AlertType(row.Type),
		CampaignID:      models.StringPtr(row.CampaignID),
		NotifyInApp:     row.NotifyInApp,
		NotifyEmail:     row.NotifyEmail,
		NotifySlack:     row.NotifySlack,
		Enabled:         row.Enabled,
		IsTriggered:     row.IsTriggered,
		LastTriggeredAt: models.TimePtr(row.LastTriggeredAt),
		CooldownMinutes: row.CooldownMinutes,
		TriggerVersion:  row.TriggerVersion,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(row.Condition), &alert.Config); err != nil {
		return nil, fmt.Errorf("condition: %w", err)
	}
	return alert, nil
}

func rowToHistory(row *models.AlertHistory) *alerts.History {
	return &alerts.History{
		ID:             row.ID,
		AlertID:        row.AlertID,
		OrgID:          row.OrgID,
		CampaignID:     models.StringPtr(row.CampaignID),
		TriggeredAt:    row.TriggeredAt.UTC(),
		Message:        row.Message,
		ObservedValue:  row.ObservedValue,
		ThresholdValue: row.ThresholdValue,
		Status:         alerts.HistoryStatus(row.Status),
		UpdatedAt:      models.TimePtr(row.UpdatedAt),
		UpdatedBy:      row.UpdatedBy,
	}
}
