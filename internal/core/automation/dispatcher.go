package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ActionContext identifies what an action list runs on behalf of
type ActionContext struct {
	RuleID     string
	RuleName   string
	OrgID      string
	CampaignID *string
	Reason     string
}

// Dispatcher executes rule actions or defers them for approval
type Dispatcher struct {
	gateway       PlatformGateway
	notifier      Notifier
	actionTimeout time.Duration
	logger        *logrus.Logger
	observer      Observer
}

// NewDispatcher creates a dispatcher. actionTimeout bounds every gateway call.
func NewDispatcher(gateway PlatformGateway, notifier Notifier, actionTimeout time.Duration, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		gateway:       gateway,
		notifier:      notifier,
		actionTimeout: actionTimeout,
		logger:        logger,
		observer:      nopObserver{},
	}
}

// SetObserver registers an observer for action outcomes
func (d *Dispatcher) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	d.observer = o
}

// Dispatch turns one triggered evaluation into a RuleExecution. With approval
// required it also returns the PendingAction and calls nothing external
// except an approval notification.
func (d *Dispatcher) Dispatch(ctx context.Context, rule *Rule, campaignID *string, eval EvaluationResult, now time.Time) (*RuleExecution, *PendingAction) {
	exec := &RuleExecution{
		ID:               uuid.New().String(),
		RuleID:           rule.ID,
		OrgID:            rule.OrgID,
		CampaignID:       campaignID,
		TriggeredAt:      now,
		TriggerReason:    eval.TriggerReason,
		ConditionResults: eval.ConditionResults,
		MetricsSnapshot:  eval.MetricsSnapshot,
	}

	if rule.Approval.RequiresApproval {
		pending := &PendingAction{
			ID:          uuid.New().String(),
			RuleID:      rule.ID,
			OrgID:       rule.OrgID,
			CampaignID:  campaignID,
			ExecutionID: exec.ID,
			Actions:     rule.Actions,
			TriggerContext: TriggerContext{
				RuleName:         rule.Name,
				TriggerReason:    eval.TriggerReason,
				ConditionResults: eval.ConditionResults,
				MetricsSnapshot:  eval.MetricsSnapshot,
			},
			Status:               PendingStatusPending,
			AutoApproveOnTimeout: rule.Approval.AutoApproveOnTimeout,
			CreatedAt:            now,
			ExpiresAt:            now.Add(rule.Approval.Timeout()),
		}
		exec.Status = ExecutionPendingApproval
		exec.ActionResults = []ActionResult{}
		exec.PendingActionID = &pending.ID
		return exec, pending
	}

	actx := ActionContext{
		RuleID:     rule.ID,
		RuleName:   rule.Name,
		OrgID:      rule.OrgID,
		CampaignID: campaignID,
		Reason:     eval.TriggerReason,
	}
	exec.ActionResults = d.ExecuteActions(ctx, actx, rule.Actions)
	exec.Status = StatusFromResults(exec.ActionResults)
	return exec, nil
}

// NotifyApprovalPending tells the organization a pending action is waiting
func (d *Dispatcher) NotifyApprovalPending(ctx context.Context, pending *PendingAction) {
	d.notifier.Send(ctx, Notification{
		OrgID:    pending.OrgID,
		Channels: []Channel{ChannelInApp},
		Kind:     KindApprovalPending,
		Severity: SeverityInfo,
		Title:    fmt.Sprintf("Approval required: %s", pending.TriggerContext.RuleName),
		Message:  pending.TriggerContext.TriggerReason,
		Context: map[string]interface{}{
			"rule_id":           pending.RuleID,
			"pending_action_id": pending.ID,
			"expires_at":        pending.ExpiresAt.UTC().Format(time.RFC3339),
		},
	})
}

// ExecuteActions runs actions in order. Each action's failure is recorded and
// never stops the ones after it.
func (d *Dispatcher) ExecuteActions(ctx context.Context, actx ActionContext, actions ActionList) []ActionResult {
	results := make([]ActionResult, 0, len(actions))
	for _, action := range actions {
		result := d.execute(ctx, actx, action)
		d.observer.ActionExecuted(result.Type, result.Status)

		if result.Status == ActionFailed {
			d.logger.WithFields(logrus.Fields{
				"rule_id":     actx.RuleID,
				"org_id":      actx.OrgID,
				"campaign_id": derefString(actx.CampaignID),
				"action":      result.Type,
			}).Errorf("Action failed: %s", result.Error)
		}
		results = append(results, result)
	}
	return results
}

func (d *Dispatcher) execute(ctx context.Context, actx ActionContext, action Action) ActionResult {
	result := ActionResult{Type: action.Type()}

	switch a := action.(type) {
	case PauseCampaign, ResumeCampaign, AdjustBudget:
		result = d.callGateway(ctx, actx, a)
	case Notify:
		title := a.Title
		if title == "" {
			title = fmt.Sprintf("Rule triggered: %s", actx.RuleName)
		}
		message := a.Message
		if message == "" {
			message = actx.Reason
		}
		d.notifier.Send(ctx, Notification{
			OrgID:    actx.OrgID,
			Channels: a.Channels,
			Kind:     KindRuleTriggered,
			Severity: SeverityInfo,
			Title:    title,
			Message:  message,
			Context:  actx.fields(),
		})
		result.Status = ActionSucceeded
		result.Detail = fmt.Sprintf("notification sent to %d channel(s)", len(a.Channels))
	case CreateAlert:
		message := a.Message
		if message == "" {
			message = actx.Reason
		}
		d.notifier.Send(ctx, Notification{
			OrgID:    actx.OrgID,
			Channels: []Channel{ChannelInApp},
			Kind:     KindCreatedAlert,
			Severity: a.Severity,
			Title:    fmt.Sprintf("Alert from rule: %s", actx.RuleName),
			Message:  message,
			Context:  actx.fields(),
		})
		result.Status = ActionSucceeded
		result.Detail = fmt.Sprintf("%s alert created", a.Severity)
	default:
		result.Status = ActionFailed
		result.Error = fmt.Sprintf("unsupported action %T", action)
	}

	result.ExecutedAt = time.Now().UTC()
	return result
}

func (d *Dispatcher) callGateway(ctx context.Context, actx ActionContext, action Action) ActionResult {
	result := ActionResult{Type: action.Type()}

	if actx.CampaignID == nil || *actx.CampaignID == "" {
		result.Status = ActionFailed
		result.Error = "no campaign in scope for this action"
		return result
	}

	callCtx := ctx
	if d.actionTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.actionTimeout)
		defer cancel()
	}

	res, err := d.gateway.Execute(callCtx, *actx.CampaignID, action.Type(), GatewayParams(action))
	switch {
	case err != nil:
		result.Status = ActionFailed
		if callCtx.Err() == context.DeadlineExceeded {
			result.Error = fmt.Sprintf("platform call timed out after %s", d.actionTimeout)
		} else {
			result.Error = err.Error()
		}
	case !res.OK:
		result.Status = ActionFailed
		result.Error = res.Detail
		if result.Error == "" {
			result.Error = "platform rejected the action"
		}
	default:
		result.Status = ActionSucceeded
		result.Detail = res.Detail
	}
	return result
}

func (a ActionContext) fields() map[string]interface{} {
	fields := map[string]interface{}{"rule_id": a.RuleID}
	if a.CampaignID != nil {
		fields["campaign_id"] = *a.CampaignID
	}
	return fields
}

// StatusFromResults is completed when every action succeeded, failed when
// none did, partial otherwise
func StatusFromResults(results []ActionResult) ExecutionStatus {
	succeeded := 0
	for _, r := range results {
		if r.Status == ActionSucceeded {
			succeeded++
		}
	}
	switch {
	case succeeded == len(results):
		return ExecutionCompleted
	case succeeded == 0:
		return ExecutionFailed
	default:
		return ExecutionPartial
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
