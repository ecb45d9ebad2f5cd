package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/frostdev-ops/campaign-automation/pkg/errors"
)

// AutoApprover is recorded as resolved_by when a timeout auto-approves
const AutoApprover = "system:auto_approve"

const (
	// StalledApprovalGrace is how long an approved action may wait for its
	// results before the sweep finalizes it
	StalledApprovalGrace = 15 * time.Minute

	completeAttempts   = 3
	completeRetryDelay = 100 * time.Millisecond
)

// SweepSummary reports one expiry sweep
type SweepSummary struct {
	Expired      int `json:"expired"`
	AutoApproved int `json:"auto_approved"`
	Finalized    int `json:"finalized"`
	Errors       int `json:"errors"`
}

// ApprovalWorkflow drives PendingAction transitions
type ApprovalWorkflow struct {
	store      ApprovalStore
	dispatcher *Dispatcher
	logger     *logrus.Logger
	observer   Observer
	now        func() time.Time
}

func NewApprovalWorkflow(store ApprovalStore, dispatcher *Dispatcher, logger *logrus.Logger) *ApprovalWorkflow {
	return &ApprovalWorkflow{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		observer:   nopObserver{},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetObserver registers an observer for pending action transitions
func (w *ApprovalWorkflow) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	w.observer = o
}

// SetClock replaces the workflow's time source
func (w *ApprovalWorkflow) SetClock(now func() time.Time) {
	w.now = now
}

// Approve approves and immediately executes a pending action. Approving after
// expiry follows the timeout policy: auto-approve proceeds, otherwise the
// action expires and ErrExpired is returned.
func (w *ApprovalWorkflow) Approve(ctx context.Context, id, by, note string) (*PendingAction, error) {
	pending, err := w.store.GetPendingAction(ctx, id)
	if err != nil {
		return nil, err
	}
	if pending.Status != PendingStatusPending {
		return pending, apperrors.ErrNotPending
	}

	now := w.now()
	if pending.Expired(now) {
		if !pending.AutoApproveOnTimeout {
			if err := w.expire(ctx, pending, now); err != nil {
				return nil, err
			}
			return pending, apperrors.ErrExpired
		}
		by = AutoApprover
		note = "approval window elapsed"
	}

	return w.approveAndExecute(ctx, pending, by, note, now)
}

// Reject rejects a pending action; nothing is executed
func (w *ApprovalWorkflow) Reject(ctx context.Context, id, by, note string) (*PendingAction, error) {
	pending, err := w.store.GetPendingAction(ctx, id)
	if err != nil {
		return nil, err
	}
	if pending.Status != PendingStatusPending {
		return pending, apperrors.ErrNotPending
	}

	now := w.now()
	err = w.store.TransitionPendingAction(ctx, PendingTransition{
		ID:              pending.ID,
		From:            PendingStatusPending,
		To:              PendingStatusRejected,
		At:              now,
		By:              by,
		Note:            note,
		ExecutionStatus: ExecutionFailed,
		ExecutionReason: fmt.Sprintf("rejected by %s", by),
	})
	if err != nil {
		return nil, err
	}
	w.observer.PendingTransitioned(PendingStatusRejected)

	pending.Status = PendingStatusRejected
	pending.ResolvedAt = &now
	pending.ResolvedBy = by
	pending.ResolutionNote = note

	w.logger.WithFields(logrus.Fields{
		"pending_action_id": pending.ID,
		"rule_id":           pending.RuleID,
		"resolved_by":       by,
	}).Info("Pending action rejected")

	return pending, nil
}

// ExpireStale resolves every pending action whose window ended before now,
// then finalizes approved actions whose results were never recorded. One
// failure does not stop the sweep.
func (w *ApprovalWorkflow) ExpireStale(ctx context.Context, now time.Time) (SweepSummary, error) {
	var summary SweepSummary

	stale, err := w.store.ListExpiredPendingActions(ctx, now)
	if err != nil {
		return summary, err
	}

	for _, pending := range stale {
		log := w.logger.WithFields(logrus.Fields{
			"pending_action_id": pending.ID,
			"rule_id":           pending.RuleID,
			"org_id":            pending.OrgID,
		})

		if pending.AutoApproveOnTimeout {
			if _, err := w.approveAndExecute(ctx, pending, AutoApprover, "approval window elapsed", now); err != nil {
				if !apperrors.Is(err, apperrors.ErrNotPending) {
					summary.Errors++
					log.WithError(err).Error("Failed to auto-approve pending action")
				}
				continue
			}
			summary.AutoApproved++
			continue
		}

		if err := w.expire(ctx, pending, now); err != nil {
			if !apperrors.Is(err, apperrors.ErrNotPending) {
				summary.Errors++
				log.WithError(err).Error("Failed to expire pending action")
			}
			continue
		}
		summary.Expired++
	}

	w.finalizeStalled(ctx, now, &summary)
	return summary, nil
}

// finalizeStalled closes approved actions left without results, e.g. after a
// crash between execution and recording. Whether the platform calls ran is
// unknown, so every action is recorded as failed with that explanation.
func (w *ApprovalWorkflow) finalizeStalled(ctx context.Context, now time.Time, summary *SweepSummary) {
	stalled, err := w.store.ListStalledApprovals(ctx, now.Add(-StalledApprovalGrace))
	if err != nil {
		summary.Errors++
		w.logger.WithError(err).Error("Failed to list stalled approvals")
		return
	}

	for _, pending := range stalled {
		results := make([]ActionResult, 0, len(pending.Actions))
		for _, action := range pending.Actions {
			results = append(results, ActionResult{
				Type:       action.Type(),
				Status:     ActionFailed,
				Error:      "outcome was not recorded after approval; verify on the platform",
				ExecutedAt: now,
			})
		}

		if err := w.store.CompletePendingAction(ctx, pending.ID, results, ExecutionFailed, now); err != nil {
			if !apperrors.Is(err, apperrors.ErrNotPending) {
				summary.Errors++
				w.logger.WithError(err).WithField("pending_action_id", pending.ID).Error("Failed to finalize stalled approval")
			}
			continue
		}
		w.observer.PendingTransitioned(PendingStatusExecuted)
		summary.Finalized++

		w.logger.WithFields(logrus.Fields{
			"pending_action_id": pending.ID,
			"rule_id":           pending.RuleID,
			"org_id":            pending.OrgID,
		}).Warn("Finalized approved action with unrecorded outcome")
	}
}

func (w *ApprovalWorkflow) expire(ctx context.Context, pending *PendingAction, now time.Time) error {
	err := w.store.TransitionPendingAction(ctx, PendingTransition{
		ID:              pending.ID,
		From:            PendingStatusPending,
		To:              PendingStatusExpired,
		At:              now,
		By:              "system",
		Note:            "approval window elapsed",
		ExecutionStatus: ExecutionFailed,
		ExecutionReason: "approval expired",
	})
	if err != nil {
		return err
	}
	w.observer.PendingTransitioned(PendingStatusExpired)

	pending.Status = PendingStatusExpired
	pending.ResolvedAt = &now
	pending.ResolvedBy = "system"
	return nil
}

func (w *ApprovalWorkflow) approveAndExecute(ctx context.Context, pending *PendingAction, by, note string, now time.Time) (*PendingAction, error) {
	err := w.store.TransitionPendingAction(ctx, PendingTransition{
		ID:   pending.ID,
		From: PendingStatusPending,
		To:   PendingStatusApproved,
		At:   now,
		By:   by,
		Note: note,
	})
	if err != nil {
		return nil, err
	}
	w.observer.PendingTransitioned(PendingStatusApproved)

	pending.Status = PendingStatusApproved
	pending.ResolvedAt = &now
	pending.ResolvedBy = by
	pending.ResolutionNote = note

	// The approval is committed; the caller going away must not leave it
	// half done. Each action carries its own timeout.
	ctx = context.WithoutCancel(ctx)

	results := w.dispatcher.ExecuteActions(ctx, ActionContext{
		RuleID:     pending.RuleID,
		RuleName:   pending.TriggerContext.RuleName,
		OrgID:      pending.OrgID,
		CampaignID: pending.CampaignID,
		Reason:     pending.TriggerContext.TriggerReason,
	}, pending.Actions)
	status := StatusFromResults(results)

	if err := w.complete(ctx, pending.ID, results, status); err != nil {
		w.logger.WithError(err).WithField("pending_action_id", pending.ID).
			Error("Actions ran but the result could not be recorded")
		return nil, err
	}
	w.observer.PendingTransitioned(PendingStatusExecuted)

	pending.Status = PendingStatusExecuted
	pending.ExecutionResult = results

	w.logger.WithFields(logrus.Fields{
		"pending_action_id": pending.ID,
		"rule_id":           pending.RuleID,
		"resolved_by":       by,
		"status":            status,
	}).Info("Pending action approved and executed")

	return pending, nil
}

// complete records results, retrying transient store failures. A row that
// moved on or vanished is not retried.
func (w *ApprovalWorkflow) complete(ctx context.Context, id string, results []ActionResult, status ExecutionStatus) error {
	var err error
	for attempt := 1; attempt <= completeAttempts; attempt++ {
		err = w.store.CompletePendingAction(ctx, id, results, status, w.now())
		if err == nil || apperrors.Is(err, apperrors.ErrNotPending) || apperrors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		if attempt < completeAttempts {
			w.logger.WithError(err).WithFields(logrus.Fields{
				"pending_action_id": id,
				"attempt":           attempt,
			}).Warn("Recording approved action results failed, retrying")
			time.Sleep(time.Duration(attempt) * completeRetryDelay)
		}
	}
	return err
}
