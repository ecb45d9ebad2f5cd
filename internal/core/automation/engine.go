package automation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/frostdev-ops/campaign-automation/pkg/errors"
)

// EvaluationResult is the decision for one (rule, campaign) target
type EvaluationResult struct {
	CampaignID       *string                `json:"campaign_id,omitempty"`
	Triggered        bool                   `json:"triggered"`
	ConditionResults []ConditionResult      `json:"condition_results"`
	TriggerReason    string                 `json:"trigger_reason"`
	MetricsSnapshot  map[int]MetricSnapshot `json:"metrics_snapshot"`
	Error            string                 `json:"error,omitempty"`
}

// RuleOutcome is everything one evaluation of one rule produced
type RuleOutcome struct {
	RuleID         string             `json:"rule_id"`
	OrgID          string             `json:"org_id"`
	EvaluatedAt    time.Time          `json:"evaluated_at"`
	Skipped        bool               `json:"skipped"`
	SkipReason     string             `json:"skip_reason,omitempty"`
	Targets        []EvaluationResult `json:"targets,omitempty"`
	Executions     []*RuleExecution   `json:"executions,omitempty"`
	PendingActions []*PendingAction   `json:"pending_actions,omitempty"`
	// Errors counts targets that could not be evaluated
	Errors int `json:"errors"`
}

// Triggered reports how many executions were recorded
func (o *RuleOutcome) Triggered() int {
	return len(o.Executions)
}

// Engine evaluates one rule per call: gates, scope, conditions, dispatch and
// bookkeeping
type Engine struct {
	store      Store
	campaigns  CampaignRegistry
	aggregator *Aggregator
	limiter    *RateLimiter
	dispatcher *Dispatcher
	logger     *logrus.Logger
}

func NewEngine(store Store, campaigns CampaignRegistry, aggregator *Aggregator, limiter *RateLimiter, dispatcher *Dispatcher, logger *logrus.Logger) *Engine {
	return &Engine{
		store:      store,
		campaigns:  campaigns,
		aggregator: aggregator,
		limiter:    limiter,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// EvaluateRule runs one rule at now. Only persistence failures are returned
// as errors; everything else is reported on the outcome. Once a trigger is
// claimed the rest of the evaluation ignores ctx cancellation, so a consumed
// cooldown always has its RuleExecution.
func (e *Engine) EvaluateRule(ctx context.Context, rule *Rule, now time.Time) (*RuleOutcome, error) {
	outcome := &RuleOutcome{RuleID: rule.ID, OrgID: rule.OrgID, EvaluatedAt: now}
	log := e.logger.WithFields(logrus.Fields{"rule_id": rule.ID, "org_id": rule.OrgID})

	if rule.Status != RuleStatusActive {
		return outcome.skip(fmt.Sprintf("rule is %s", rule.Status)), nil
	}

	decision, err := e.limiter.Check(ctx, rule, now)
	if err != nil {
		return nil, apperrors.Persistence("count executions", err)
	}
	if !decision.Allowed {
		log.WithField("reason", decision.Reason).Debug("Rule rate limited")
		return e.skipEvaluated(ctx, outcome, now, decision.Reason)
	}

	inWindow, err := InScheduleWindow(now, rule.Schedule)
	if err != nil {
		log.WithError(err).Warn("Invalid rule schedule, treating as out of window")
		return e.skipEvaluated(ctx, outcome, now, "invalid schedule: "+err.Error())
	}
	if !inWindow {
		return e.skipEvaluated(ctx, outcome, now, "outside schedule window")
	}

	targets, err := e.resolveTargets(ctx, rule)
	if err != nil {
		log.WithError(err).Error("Failed to resolve rule scope")
		outcome.Errors++
	}

	var triggered []EvaluationResult
	for _, target := range targets {
		result := e.evaluateTarget(ctx, rule, target, now, log)
		if result.Error != "" {
			outcome.Errors++
		}
		outcome.Targets = append(outcome.Targets, result)
		if result.Triggered {
			triggered = append(triggered, result)
		}
	}

	if decision.Remaining >= 0 && len(triggered) > decision.Remaining {
		triggered = triggered[:decision.Remaining]
	}
	if rule.OneTime && len(triggered) > 1 {
		triggered = triggered[:1]
	}

	if len(triggered) > 0 {
		err := e.store.ClaimTrigger(ctx, TriggerClaim{
			RuleID:          rule.ID,
			ExpectedVersion: rule.TriggerVersion,
			Now:             now,
			Count:           len(triggered),
			CooldownMinutes: rule.CooldownMinutes,
			MaxPerDay:       rule.MaxExecutionsPerDay,
			DayStart:        decision.DayStart,
			Pause:           rule.OneTime,
		})
		switch {
		case apperrors.Is(err, apperrors.ErrTriggerConflict):
			log.Warn("Trigger claim lost, skipping rule for this tick")
			return e.skipEvaluated(ctx, outcome, now, "trigger claim lost to a concurrent evaluation")
		case err != nil:
			return nil, apperrors.Persistence("claim trigger", err)
		}

		// the cooldown is consumed; finish dispatching and recording
		ctx = context.WithoutCancel(ctx)

		for _, result := range triggered {
			exec, pending := e.dispatcher.Dispatch(ctx, rule, result.CampaignID, result, now)
			if err := e.store.RecordExecution(ctx, exec, pending); err != nil {
				return nil, apperrors.Persistence("record execution", err)
			}
			outcome.Executions = append(outcome.Executions, exec)
			if pending != nil {
				outcome.PendingActions = append(outcome.PendingActions, pending)
				e.dispatcher.NotifyApprovalPending(ctx, pending)
			}

			log.WithFields(logrus.Fields{
				"campaign_id":  derefString(result.CampaignID),
				"execution_id": exec.ID,
				"status":       exec.Status,
			}).Infof("Rule triggered: %s", result.TriggerReason)
		}
	}

	if err := e.store.MarkEvaluated(ctx, rule.ID, now); err != nil {
		return nil, apperrors.Persistence("mark evaluated", err)
	}
	return outcome, nil
}

// skipEvaluated ends a tick for an active rule that was considered but not
// run to dispatch. It still counts as an evaluation.
func (e *Engine) skipEvaluated(ctx context.Context, outcome *RuleOutcome, now time.Time, reason string) (*RuleOutcome, error) {
	if err := e.store.MarkEvaluated(ctx, outcome.RuleID, now); err != nil {
		return nil, apperrors.Persistence("mark evaluated", err)
	}
	return outcome.skip(reason), nil
}

func (o *RuleOutcome) skip(reason string) *RuleOutcome {
	o.Skipped = true
	o.SkipReason = reason
	return o
}

// resolveTargets turns the rule scope into campaigns to evaluate
func (e *Engine) resolveTargets(ctx context.Context, rule *Rule) ([]Campaign, error) {
	if rule.Scope.Type == ScopeCampaign {
		campaign, err := e.campaigns.GetCampaign(ctx, rule.OrgID, rule.Scope.CampaignID)
		if err != nil {
			if apperrors.Is(err, apperrors.ErrNotFound) {
				return nil, nil
			}
			return nil, apperrors.Transient("get campaign", err)
		}
		return []Campaign{*campaign}, nil
	}

	campaigns, err := e.campaigns.ListCampaigns(ctx, rule.OrgID)
	if err != nil {
		return nil, apperrors.Transient("list campaigns", err)
	}

	var targets []Campaign
	for _, c := range campaigns {
		if c.Status != CampaignActive && c.Status != CampaignPaused {
			continue
		}
		if rule.Scope.Type == ScopePlatform && !containsFold(rule.Scope.Platforms, c.Platform) {
			continue
		}
		targets = append(targets, c)
	}
	return targets, nil
}

func (e *Engine) evaluateTarget(ctx context.Context, rule *Rule, campaign Campaign, now time.Time, log *logrus.Entry) EvaluationResult {
	campaignID := campaign.ID
	result := EvaluationResult{CampaignID: &campaignID}

	if rule.Conditions.Root == nil {
		result.TriggerReason = "rule has no conditions"
		return result
	}

	snapshots, err := e.aggregator.Snapshots(ctx, []string{campaign.ID}, Lookbacks(rule.Conditions.Root), now)
	if err != nil {
		log.WithError(err).WithField("campaign_id", campaign.ID).Error("Failed to aggregate metrics")
		result.Error = err.Error()
		result.TriggerReason = "metrics unavailable"
		return result
	}

	tree := EvaluateTree(rule.Conditions.Root, snapshots)
	for _, r := range tree.Results {
		if r.ConfigError() {
			log.WithField("campaign_id", campaign.ID).Warnf("Condition configuration error: %s", r.Error)
		}
	}

	result.Triggered = tree.Passed
	result.ConditionResults = tree.Results
	result.MetricsSnapshot = snapshots
	result.TriggerReason = triggerReason(tree)
	return result
}

func triggerReason(tree TreeResult) string {
	if tree.NoData {
		return "no metric data in window"
	}
	if !tree.Passed {
		return "conditions not met"
	}

	var parts []string
	for _, r := range tree.Results {
		if r.Passed {
			parts = append(parts, fmt.Sprintf("%s %s %.2f (current %.2f over %dd)",
				r.Metric, r.Operator, r.Threshold, r.CurrentValue, r.LookbackDays))
		}
	}
	return strings.Join(parts, "; ")
}

func containsFold(values []string, s string) bool {
	for _, v := range values {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
