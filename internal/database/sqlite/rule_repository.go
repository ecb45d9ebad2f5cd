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

	"github.com/frostdev-ops/campaign-automation/internal/core/automation"
	"github.com/frostdev-ops/campaign-automation/internal/database/models"
	apperrors "github.com/frostdev-ops/campaign-automation/pkg/errors"
)

// RuleRepository persists rules, executions and pending actions. It
// implements automation.Store and automation.ApprovalStore.
type RuleRepository struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func NewRuleRepository(db *sqlx.DB, log *logrus.Logger) *RuleRepository {
	return &RuleRepository{
		db:  db,
		log: log,
	}
}

const ruleColumns = `id, org_id, name, description, status, scope, conditions, actions, approval,
	cooldown_minutes, max_executions_per_day, one_time, schedule, last_evaluated_at,
	last_triggered_at, execution_count, trigger_version, created_at, updated_at`

func (r *RuleRepository) ListOrganizations(ctx context.Context) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM organizations ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list organizations: %w", err)
	}
	return ids, nil
}

// SaveRule inserts or updates a rule definition. Evaluation bookkeeping of an
// existing rule is left untouched, except that an update bumps trigger_version
// so a pass that read the old definition cannot claim a trigger.
func (r *RuleRepository) SaveRule(ctx context.Context, rule *automation.Rule) error {
	row, err := ruleToRow(rule)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now

	query := `INSERT INTO rules (` + ruleColumns + `)
		VALUES (:id, :org_id, :name, :description, :status, :scope, :conditions, :actions, :approval,
			:cooldown_minutes, :max_executions_per_day, :one_time, :schedule, :last_evaluated_at,
			:last_triggered_at, :execution_count, :trigger_version, :created_at, :updated_at)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			status = excluded.status,
			scope = excluded.scope,
			conditions = excluded.conditions,
			actions = excluded.actions,
			approval = excluded.approval,
			cooldown_minutes = excluded.cooldown_minutes,
			max_executions_per_day = excluded.max_executions_per_day,
			one_time = excluded.one_time,
			schedule = excluded.schedule,
			trigger_version = rules.trigger_version + 1,
			updated_at = excluded.updated_at
		WHERE rules.org_id = excluded.org_id`

	res, err := r.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("rule %s belongs to another organization: %w", rule.ID, apperrors.ErrNotFound)
	}

	rule.CreatedAt, rule.UpdatedAt = row.CreatedAt, row.UpdatedAt
	return nil
}

func (r *RuleRepository) ListActiveRules(ctx context.Context, orgID string) ([]*automation.Rule, error) {
	var rows []models.Rule
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE org_id = ? AND status = ? ORDER BY id`
	if err := r.db.SelectContext(ctx, &rows, query, orgID, string(automation.RuleStatusActive)); err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	rules := make([]*automation.Rule, 0, len(rows))
	for i := range rows {
		rule, err := rowToRule(&rows[i])
		if err != nil {
			r.log.WithError(err).WithField("rule_id", rows[i].ID).Warn("Skipping undecodable rule")
			continue
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (r *RuleRepository) GetRule(ctx context.Context, orgID, ruleID string) (*automation.Rule, error) {
	var row models.Rule
	query := `SELECT ` + ruleColumns + ` FROM rules WHERE id = ? AND org_id = ?`
	if err := r.db.GetContext(ctx, &row, query, ruleID, orgID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	rule, err := rowToRule(&row)
	if err != nil {
		return nil, apperrors.Configuration("decode rule", err)
	}
	return rule, nil
}

func (r *RuleRepository) CountExecutionsSince(ctx context.Context, ruleID string, since time.Time) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM rule_executions WHERE rule_id = ? AND triggered_at >= ?`, ruleID, since.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to count executions: %w", err)
	}
	return count, nil
}

// ClaimTrigger re-checks the gate inside one immediate transaction and
// stamps the rule. An inactive rule, a stale version, an unexpired cooldown
// or a full daily cap returns ErrTriggerConflict.
func (r *RuleRepository) ClaimTrigger(ctx context.Context, claim automation.TriggerClaim) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current struct {
		Status          string       `db:"status"`
		TriggerVersion  int64        `db:"trigger_version"`
		LastTriggeredAt sql.NullTime `db:"last_triggered_at"`
	}
	err = tx.GetContext(ctx, &current, `SELECT status, trigger_version, last_triggered_at FROM rules WHERE id = ?`, claim.RuleID)
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read rule: %w", err)
	}

	if current.Status != string(automation.RuleStatusActive) ||
		current.TriggerVersion != claim.ExpectedVersion ||
		!automation.CooldownElapsed(models.TimePtr(current.LastTriggeredAt), claim.CooldownMinutes, claim.Now) {
		return apperrors.ErrTriggerConflict
	}

	if claim.MaxPerDay > 0 {
		var count int
		err := tx.GetContext(ctx, &count,
			`SELECT COUNT(*) FROM rule_executions WHERE rule_id = ? AND triggered_at >= ?`, claim.RuleID, claim.DayStart.UTC())
		if err != nil {
			return fmt.Errorf("failed to count executions: %w", err)
		}
		if count+claim.Count > claim.MaxPerDay {
			return apperrors.ErrTriggerConflict
		}
	}

	query := `UPDATE rules SET last_triggered_at = ?, execution_count = execution_count + ?,
		trigger_version = trigger_version + 1, updated_at = ?`
	args := []interface{}{claim.Now.UTC(), claim.Count, claim.Now.UTC()}
	if claim.Pause {
		query += `, status = ?`
		args = append(args, string(automation.RuleStatusPaused))
	}
	query += ` WHERE id = ? AND trigger_version = ?`
	args = append(args, claim.RuleID, claim.ExpectedVersion)

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to claim trigger: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.ErrTriggerConflict
	}

	return tx.Commit()
}

// RecordExecution writes an execution and, when approval is required, its
// pending action in one transaction
func (r *RuleRepository) RecordExecution(ctx context.Context, exec *automation.RuleExecution, pending *automation.PendingAction) error {
	execRow, err := executionToRow(exec)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `INSERT INTO rule_executions
		(id, rule_id, org_id, campaign_id, triggered_at, trigger_reason, condition_results,
		 action_results, status, metrics_snapshot, pending_action_id)
		VALUES (:id, :rule_id, :org_id, :campaign_id, :triggered_at, :trigger_reason, :condition_results,
		 :action_results, :status, :metrics_snapshot, :pending_action_id)`, execRow)
	if err != nil {
		return fmt.Errorf("failed to insert execution: %w", err)
	}

	if pending != nil {
		pendingRow, err := pendingToRow(pending)
		if err != nil {
			return err
		}
		_, err = tx.NamedExecContext(ctx, `INSERT INTO pending_actions
			(id, rule_id, org_id, campaign_id, execution_id, actions, trigger_context, status,
			 auto_approve_on_timeout, created_at, expires_at, resolved_at, resolved_by, resolution_note, execution_result)
			VALUES (:id, :rule_id, :org_id, :campaign_id, :execution_id, :actions, :trigger_context, :status,
			 :auto_approve_on_timeout, :created_at, :expires_at, :resolved_at, :resolved_by, :resolution_note, :execution_result)`, pendingRow)
		if err != nil {
			return fmt.Errorf("failed to insert pending action: %w", err)
		}
	}

	return tx.Commit()
}

func (r *RuleRepository) MarkEvaluated(ctx context.Context, ruleID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE rules SET last_evaluated_at = ? WHERE id = ?`, at.UTC(), ruleID)
	if err != nil {
		return fmt.Errorf("failed to mark rule evaluated: %w", err)
	}
	return nil
}

func (r *RuleRepository) ListExecutions(ctx context.Context, ruleID string, limit int) ([]*automation.RuleExecution, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.RuleExecution
	err := r.db.SelectContext(ctx, &rows, `SELECT id, rule_id, org_id, campaign_id, triggered_at, trigger_reason,
		condition_results, action_results, status, metrics_snapshot, pending_action_id
		FROM rule_executions WHERE rule_id = ? ORDER BY triggered_at DESC, id LIMIT ?`, ruleID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	execs := make([]*automation.RuleExecution, 0, len(rows))
	for i := range rows {
		exec, err := rowToExecution(&rows[i])
		if err != nil {
			r.log.WithError(err).WithField("execution_id", rows[i].ID).Warn("Skipping undecodable execution")
			continue
		}
		execs = append(execs, exec)
	}
	return execs, nil
}

const pendingColumns = `id, rule_id, org_id, campaign_id, execution_id, actions, trigger_context, status,
	auto_approve_on_timeout, created_at, expires_at, resolved_at, resolved_by, resolution_note, execution_result`

func (r *RuleRepository) GetPendingAction(ctx context.Context, id string) (*automation.PendingAction, error) {
	var row models.PendingAction
	if err := r.db.GetContext(ctx, &row, `SELECT `+pendingColumns+` FROM pending_actions WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get pending action: %w", err)
	}
	pending, err := rowToPending(&row)
	if err != nil {
		return nil, apperrors.Configuration("decode pending action", err)
	}
	return pending, nil
}

func (r *RuleRepository) ListPendingActions(ctx context.Context, orgID string, status automation.PendingStatus) ([]*automation.PendingAction, error) {
	query := `SELECT ` + pendingColumns + ` FROM pending_actions WHERE org_id = ?`
	args := []interface{}{orgID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at, id`
	return r.selectPending(ctx, query, args...)
}

func (r *RuleRepository) ListExpiredPendingActions(ctx context.Context, now time.Time) ([]*automation.PendingAction, error) {
	return r.selectPending(ctx, `SELECT `+pendingColumns+` FROM pending_actions
		WHERE status = ? AND expires_at < ? ORDER BY expires_at, id`, string(automation.PendingStatusPending), now.UTC())
}

func (r *RuleRepository) ListStalledApprovals(ctx context.Context, resolvedBefore time.Time) ([]*automation.PendingAction, error) {
	return r.selectPending(ctx, `SELECT `+pendingColumns+` FROM pending_actions
		WHERE status = ? AND execution_result IS NULL AND resolved_at < ? ORDER BY resolved_at, id`,
		string(automation.PendingStatusApproved), resolvedBefore.UTC())
}

func (r *RuleRepository) selectPending(ctx context.Context, query string, args ...interface{}) ([]*automation.PendingAction, error) {
	var rows []models.PendingAction
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list pending actions: %w", err)
	}
	out := make([]*automation.PendingAction, 0, len(rows))
	for i := range rows {
		pending, err := rowToPending(&rows[i])
		if err != nil {
			r.log.WithError(err).WithField("pending_action_id", rows[i].ID).Warn("Skipping undecodable pending action")
			continue
		}
		out = append(out, pending)
	}
	return out, nil
}

// TransitionPendingAction moves a pending action from t.From to t.To with a
// compare-and-set on status. The linked execution is updated in the same
// transaction when t.ExecutionStatus is set.
func (r *RuleRepository) TransitionPendingAction(ctx context.Context, t automation.PendingTransition) error {
	if !automation.CanTransition(t.From, t.To) {
		return apperrors.ErrNotPending
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE pending_actions
		SET status = ?, resolved_at = ?, resolved_by = ?, resolution_note = ?
		WHERE id = ? AND status = ?`, string(t.To), t.At.UTC(), t.By, t.Note, t.ID, string(t.From))
	if err != nil {
		return fmt.Errorf("failed to transition pending action: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.missingOrMoved(ctx, tx, t.ID)
	}

	if t.ExecutionStatus != "" {
		query := `UPDATE rule_executions SET status = ?`
		args := []interface{}{string(t.ExecutionStatus)}
		if t.ExecutionReason != "" {
			query += `, trigger_reason = trigger_reason || ' (' || ? || ')'`
			args = append(args, t.ExecutionReason)
		}
		query += ` WHERE id = (SELECT execution_id FROM pending_actions WHERE id = ?)`
		args = append(args, t.ID)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to update linked execution: %w", err)
		}
	}

	return tx.Commit()
}

// CompletePendingAction stores the results of an approved action set and
// marks it executed
func (r *RuleRepository) CompletePendingAction(ctx context.Context, id string, results []automation.ActionResult, status automation.ExecutionStatus, at time.Time) error {
	encoded, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("failed to encode action results: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE pending_actions SET status = ?, execution_result = ?
		WHERE id = ? AND status = ?`, string(automation.PendingStatusExecuted), string(encoded), id, string(automation.PendingStatusApproved))
	if err != nil {
		return fmt.Errorf("failed to complete pending action: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return r.missingOrMoved(ctx, tx, id)
	}

	_, err = tx.ExecContext(ctx, `UPDATE rule_executions SET action_results = ?, status = ?
		WHERE id = (SELECT execution_id FROM pending_actions WHERE id = ?)`, string(encoded), string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update linked execution: %w", err)
	}

	return tx.Commit()
}

func (r *RuleRepository) missingOrMoved(ctx context.Context, tx *sqlx.Tx, id string) error {
	var exists int
	err := tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM pending_actions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to read pending action: %w", err)
	}
	if exists == 0 {
		return apperrors.ErrNotFound
	}
	return apperrors.ErrNotPending
}

func ruleToRow(rule *automation.Rule) (*models.Rule, error) {
	scope, err := json.Marshal(rule.Scope)
	if err != nil {
		return nil, fmt.Errorf("failed to encode scope: %w", err)
	}
	conditions, err := json.Marshal(rule.Conditions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode conditions: %w", err)
	}
	actions, err := json.Marshal(rule.Actions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode actions: %w", err)
	}
	approval, err := json.Marshal(rule.Approval)
	if err != nil {
		return nil, fmt.Errorf("failed to encode approval: %w", err)
	}

	row := &models.Rule{
		ID:                  rule.ID,
		OrgID:               rule.OrgID,
		Name:                rule.Name,
		Description:         rule.Description,
		Status:              string(rule.Status),
		Scope:               string(scope),
		Conditions:          string(conditions),
		Actions:             string(actions),
		Approval:            string(approval),
		CooldownMinutes:     rule.CooldownMinutes,
		MaxExecutionsPerDay: rule.MaxExecutionsPerDay,
		OneTime:             rule.OneTime,
		LastEvaluatedAt:     models.NullTime(rule.LastEvaluatedAt),
		LastTriggeredAt:     models.NullTime(rule.LastTriggeredAt),
		ExecutionCount:      rule.ExecutionCount,
		TriggerVersion:      rule.TriggerVersion,
		CreatedAt:           rule.CreatedAt.UTC(),
		UpdatedAt:           rule.UpdatedAt.UTC(),
	}
	if rule.Schedule != nil {
		schedule, err := json.Marshal(rule.Schedule)
		if err != nil {
			return nil, fmt.Errorf("failed to encode schedule: %w", err)
		}
		row.Schedule = sql.NullString{String: string(schedule), Valid: true}
	}
	return row, nil
}

func rowToRule(row *models.Rule) (*automation.Rule, error) {
	rule := &automation.Rule{
		ID:                  row.ID,
		OrgID:               row.OrgID,
		Name:                row.Name,
		Description:         row.Description,
		Status:              automation.RuleStatus(row.Status),
		CooldownMinutes:     row.CooldownMinutes,
		MaxExecutionsPerDay: row.MaxExecutionsPerDay,
		OneTime:             row.OneTime,
		LastEvaluatedAt:     models.TimePtr(row.LastEvaluatedAt),
		LastTriggeredAt:     models.TimePtr(row.LastTriggeredAt),
		ExecutionCount:      row.ExecutionCount,
		TriggerVersion:      row.TriggerVersion,
		CreatedAt:           row.CreatedAt.UTC(),
		UpdatedAt:           row.UpdatedAt.UTC(),
	}
	if err := json.Unmarshal([]byte(row.Scope), &rule.Scope); err != nil {
		return nil, fmt.Errorf("scope: %w", err)
	}
	if err := json.Unmarshal([]byte(row.Conditions), &rule.Conditions); err != nil {
		return nil, fmt.Errorf("conditions: %w", err)
	}
	if err := json.Unmarshal([]byte(row.Actions), &rule.Actions); err != nil {
		return nil, fmt.Errorf("actions: %w", err)
	}
	if err := json.Unmarshal([]byte(row.Approval), &rule.Approval); err != nil {
		return nil, fmt.Errorf("approval: %w", err)
	}
	if row.Schedule.Valid && row.Schedule.String != "" {
		rule.Schedule = &automation.Schedule{}
		if err := json.Unmarshal([]byte(row.Schedule.String), rule.Schedule); err != nil {
			return nil, fmt.Errorf("schedule: %w", err)
		}
	}
	return rule, nil
}

func executionToRow(exec *automation.RuleExecution) (*models.RuleExecution, error) {
	conditions, err := json.Marshal(nonNilSlice(exec.ConditionResults))
	if err != nil {
		return nil, fmt.Errorf("failed to encode condition results: %w", err)
	}
	actions, err := json.Marshal(nonNilSlice(exec.ActionResults))
	if err != nil {
		return nil, fmt.Errorf("failed to encode action results: %w", err)
	}
	snapshot, err := json.Marshal(exec.MetricsSnapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metrics snapshot: %w", err)
	}
	return &models.RuleExecution{
		ID:               exec.ID,
		RuleID:           exec.RuleID,
		OrgID:            exec.OrgID,
		CampaignID:       models.NullString(exec.CampaignID),
		TriggeredAt:      exec.TriggeredAt.UTC(),
		TriggerReason:    exec.TriggerReason,
		ConditionResults: string(conditions),
		ActionResults:    string(actions),
		Status:           string(exec.Status),
		MetricsSnapshot:  string(snapshot),
		PendingActionID:  models.NullString(exec.PendingActionID),
	}, nil
}

func rowToExecution(row *models.RuleExecution) (*automation.RuleExecution, error) {
	exec := &automation.RuleExecution{
		ID:              row.ID,
		RuleID:          row.RuleID,
		OrgID:           row.OrgID,
		CampaignID:      models.StringPtr(row.CampaignID),
		TriggeredAt:     row.TriggeredAt.UTC(),
		TriggerReason:   row.TriggerReason,
		Status:          automation.ExecutionStatus(row.Status),
		PendingActionID: models.StringPtr(row.PendingActionID),
	}
	if err := json.Unmarshal([]byte(row.ConditionResults), &exec.ConditionResults); err != nil {
		return nil, fmt.Errorf("condition results: %w", err)
	}
	if err := json.Unmarshal([]byte(row.ActionResults), &exec.ActionResults); err != nil {
		return nil, fmt.Errorf("action results: %w", err)
	}
	if err := json.Unmarshal([]byte(row.MetricsSnapshot), &exec.MetricsSnapshot); err != nil {
		return nil, fmt.Errorf("metrics snapshot: %w", err)
	}
	return exec, nil
}

func pendingToRow(p *automation.PendingAction) (*models.PendingAction, error) {
	actions, err := json.Marshal(p.Actions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode actions: %w", err)
	}
	trigger, err := json.Marshal(p.TriggerContext)
	if err != nil {
		return nil, fmt.Errorf("failed to encode trigger context: %w", err)
	}
	row := &models.PendingAction{
		ID:                   p.ID,
		RuleID:               p.RuleID,
		OrgID:                p.OrgID,
		CampaignID:           models.NullString(p.CampaignID),
		ExecutionID:          p.ExecutionID,
		Actions:              string(actions),
		TriggerContext:       string(trigger),
		Status:               string(p.Status),
		AutoApproveOnTimeout: p.AutoApproveOnTimeout,
		CreatedAt:            p.CreatedAt.UTC(),
		ExpiresAt:            p.ExpiresAt.UTC(),
		ResolvedAt:           models.NullTime(p.ResolvedAt),
		ResolvedBy:           p.ResolvedBy,
		ResolutionNote:       p.ResolutionNote,
	}
	if p.ExecutionResult != nil {
		results, err := json.Marshal(p.ExecutionResult)
		if err != nil {
			return nil, fmt.Errorf("failed to encode execution result: %w", err)
		}
		row.ExecutionResult = sql.NullString{String: string(results), Valid: true}
	}
	return row, nil
}

func rowToPending(row *models.PendingAction) (*automation.PendingAction, error) {
	p := &automation.PendingAction{
		ID:                   row.ID,
		RuleID:               row.RuleID,
		OrgID:                row.OrgID,
		CampaignID:           models.StringPtr(row.CampaignID),
		ExecutionID:          row.ExecutionID,
		Status:               automation.PendingStatus(row.Status),
		AutoApproveOnTimeout: row.AutoApproveOnTimeout,
		CreatedAt:            row.CreatedAt.UTC(),
		ExpiresAt:            row.ExpiresAt.UTC(),
		ResolvedAt:           models.TimePtr(row.ResolvedAt),
		ResolvedBy:           row.ResolvedBy,
		ResolutionNote:       row.ResolutionNote,
	}
	if err := json.Unmarshal([]byte(row.Actions), &p.Actions); err != nil {
		return nil, fmt.Errorf("actions: %w", err)
	}
	if err := json.Unmarshal([]byte(row.TriggerContext), &p.TriggerContext); err != nil {
		return nil, fmt.Errorf("trigger context: %w", err)
	}
	if row.ExecutionResult.Valid && row.ExecutionResult.String != "" {
		if err := json.Unmarshal([]byte(row.ExecutionResult.String), &p.ExecutionResult); err != nil {
			return nil, fmt.Errorf("execution result: %w", err)
		}
	}
	return p, nil
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
