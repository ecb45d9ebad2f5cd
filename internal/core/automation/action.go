package automation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ActionType identifies one of the supported action variants
type ActionType string

const (
	ActionPauseCampaign  ActionType = "pause_campaign"
	ActionResumeCampaign ActionType = "resume_campaign"
	ActionAdjustBudget   ActionType = "adjust_budget"
	ActionNotify         ActionType = "notify"
	ActionCreateAlert    ActionType = "create_alert"
)

// Channel is a notification delivery channel
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelSlack Channel = "slack"
)

// Valid reports whether c is a known channel
func (c Channel) Valid() bool {
	switch c {
	case ChannelInApp, ChannelEmail, ChannelSlack:
		return true
	}
	return false
}

// Severity grades a created alert
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Action is one step of a rule's action list. The set of implementations
// is closed: PauseCampaign, ResumeCampaign, AdjustBudget, Notify, CreateAlert.
type Action interface {
	Type() ActionType
	isAction()
}

type PauseCampaign struct{}

type ResumeCampaign struct{}

// AdjustBudget changes the campaign budget by a signed percentage
type AdjustBudget struct {
	ChangePercent float64 `json:"change_percent"`
}

// Notify sends a notification on the listed channels
type Notify struct {
	Channels []Channel `json:"channels"`
	Title    string    `json:"title,omitempty"`
	Message  string    `json:"message,omitempty"`
}

// CreateAlert raises an in-app alert with a severity
type CreateAlert struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message,omitempty"`
}

func (PauseCampaign) Type() ActionType  { return ActionPauseCampaign }
func (ResumeCampaign) Type() ActionType { return ActionResumeCampaign }
func (AdjustBudget) Type() ActionType   { return ActionAdjustBudget }
func (Notify) Type() ActionType         { return ActionNotify }
func (CreateAlert) Type() ActionType    { return ActionCreateAlert }

func (PauseCampaign) isAction()  {}
func (ResumeCampaign) isAction() {}
func (AdjustBudget) isAction()   {}
func (Notify) isAction()         {}
func (CreateAlert) isAction()    {}

// ActionStatus is the outcome of one executed action
type ActionStatus string

const (
	ActionSucceeded ActionStatus = "success"
	ActionFailed    ActionStatus = "failed"
)

// ActionResult records the outcome of one action
type ActionResult struct {
	Type       ActionType   `json:"type"`
	Status     ActionStatus `json:"status"`
	Detail     string       `json:"detail,omitempty"`
	Error      string       `json:"error_message,omitempty"`
	ExecutedAt time.Time    `json:"executed_at"`
}

// ActionList is an ordered list of actions, stored as
// [{"type": "...", "params": {...}}, ...]
type ActionList []Action

type actionWire struct {
	Type   ActionType      `json:"type"`
	Params json.RawMessage `json:"params,omitempty"`
}

func (l ActionList) MarshalJSON() ([]byte, error) {
	wire := make([]actionWire, 0, len(l))
	for _, a := range l {
		entry := actionWire{Type: a.Type()}
		switch a.(type) {
		case PauseCampaign, ResumeCampaign:
		default:
			params, err := json.Marshal(a)
			if err != nil {
				return nil, err
			}
			entry.Params = params
		}
		wire = append(wire, entry)
	}
	return json.Marshal(wire)
}

func (l *ActionList) UnmarshalJSON(data []byte) error {
	var wire []actionWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("invalid action list: %w", err)
	}

	actions := make(ActionList, 0, len(wire))
	for i, w := range wire {
		action, err := decodeAction(w)
		if err != nil {
			return fmt.Errorf("actions[%d]: %w", i, err)
		}
		actions = append(actions, action)
	}
	*l = actions
	return nil
}

func decodeAction(w actionWire) (Action, error) {
	params := w.Params
	if len(params) == 0 || string(params) == "null" {
		params = []byte("{}")
	}

	switch ActionType(strings.ToLower(string(w.Type))) {
	case ActionPauseCampaign:
		return PauseCampaign{}, nil
	case ActionResumeCampaign:
		return ResumeCampaign{}, nil
	case ActionAdjustBudget:
		var a AdjustBudget
		if err := json.Unmarshal(params, &a); err != nil {
			return nil, err
		}
		return a, nil
	case ActionNotify:
		var a Notify
		if err := json.Unmarshal(params, &a); err != nil {
			return nil, err
		}
		return a, nil
	case ActionCreateAlert:
		var a CreateAlert
		if err := json.Unmarshal(params, &a); err != nil {
			return nil, err
		}
		if a.Severity == "" {
			a.Severity = SeverityWarning
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown action type %q", w.Type)
	}
}

// ValidateAction reports definition problems for one action
func ValidateAction(a Action) error {
	switch v := a.(type) {
	case PauseCampaign, ResumeCampaign:
		return nil
	case AdjustBudget:
		if v.ChangePercent == 0 {
			return fmt.Errorf("adjust_budget requires a non-zero change_percent")
		}
		if v.ChangePercent <= -100 {
			return fmt.Errorf("adjust_budget change_percent must be greater than -100")
		}
		return nil
	case Notify:
		if len(v.Channels) == 0 {
			return fmt.Errorf("notify requires at least one channel")
		}
		for _, c := range v.Channels {
			if !c.Valid() {
				return fmt.Errorf("unknown notification channel %q", c)
			}
		}
		return nil
	case CreateAlert:
		switch v.Severity {
		case SeverityInfo, SeverityWarning, SeverityCritical:
			return nil
		}
		return fmt.Errorf("unknown severity %q", v.Severity)
	default:
		return fmt.Errorf("unsupported action %T", a)
	}
}

// GatewayParams returns the parameter bag sent to the Platform Gateway
func GatewayParams(a Action) map[string]interface{} {
	switch v := a.(type) {
	case AdjustBudget:
		return map[string]interface{}{"change_percent": v.ChangePercent}
	default:
		return map[string]interface{}{}
	}
}
