package automation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Operator compares a metric value against a threshold
type Operator string

const (
	OperatorGT  Operator = "gt"
	OperatorLT  Operator = "lt"
	OperatorGTE Operator = "gte"
	OperatorLTE Operator = "lte"
)

// DefaultLookbackDays applies when a leaf omits lookback_days
const DefaultLookbackDays = 7

// Compare applies the operator. The second result is false for unknown operators.
func (o Operator) Compare(value, threshold float64) (bool, bool) {
	switch o {
	case OperatorGT:
		return value > threshold, true
	case OperatorLT:
		return value < threshold, true
	case OperatorGTE:
		return value >= threshold, true
	case OperatorLTE:
		return value <= threshold, true
	default:
		return false, false
	}
}

// ConditionNode is one node of a condition tree: *Leaf, *And or *Or
type ConditionNode interface {
	isConditionNode()
}

// Leaf compares one metric over a lookback window against a threshold
type Leaf struct {
	Metric       Metric   `json:"metric"`
	Operator     Operator `json:"operator"`
	Threshold    float64  `json:"threshold"`
	LookbackDays int      `json:"lookback_days"`
}

// And holds when every child holds
type And struct {
	Children []ConditionNode
}

// Or holds when at least one child holds
type Or struct {
	Children []ConditionNode
}

func (*Leaf) isConditionNode() {}
func (*And) isConditionNode()  {}
func (*Or) isConditionNode()   {}

// Lookback returns the leaf's window in days
func (l *Leaf) Lookback() int {
	if l.LookbackDays <= 0 {
		return DefaultLookbackDays
	}
	return l.LookbackDays
}

// ConditionResult is the audit record for one evaluated leaf
type ConditionResult struct {
	Metric       Metric   `json:"metric"`
	Operator     Operator `json:"operator"`
	Threshold    float64  `json:"threshold"`
	LookbackDays int      `json:"lookback_days"`
	CurrentValue float64  `json:"current_value"`
	Passed       bool     `json:"passed"`
	NoData       bool     `json:"no_data,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// ConfigError reports whether the leaf failed because of its definition
func (r ConditionResult) ConfigError() bool {
	return r.Error != ""
}

// TreeResult is the outcome of a whole condition tree
type TreeResult struct {
	Passed  bool              `json:"passed"`
	NoData  bool              `json:"no_data"`
	Results []ConditionResult `json:"results"`
}

// EvaluateCondition evaluates one leaf against a snapshot. Unknown metrics or
// operators and empty snapshots never pass.
func EvaluateCondition(snapshot MetricSnapshot, leaf Leaf) ConditionResult {
	result := ConditionResult{
		Metric:       leaf.Metric,
		Operator:     leaf.Operator,
		Threshold:    leaf.Threshold,
		LookbackDays: leaf.Lookback(),
	}

	value, ok := snapshot.Value(leaf.Metric)
	if !ok {
		result.Error = fmt.Sprintf("unknown metric %q", leaf.Metric)
		return result
	}
	result.CurrentValue = value

	passed, ok := leaf.Operator.Compare(value, leaf.Threshold)
	if !ok {
		result.Error = fmt.Sprintf("unknown operator %q", leaf.Operator)
		return result
	}

	if snapshot.Empty() {
		result.NoData = true
		return result
	}

	result.Passed = passed
	return result
}

// EvaluateTree evaluates every leaf (no short-circuit) using the snapshot for
// each leaf's lookback window. A missing snapshot counts as an empty window.
func EvaluateTree(root ConditionNode, snapshots map[int]MetricSnapshot) TreeResult {
	var results []ConditionResult
	passed := evaluateNode(root, snapshots, &results)

	noData := len(results) > 0
	for _, r := range results {
		if !r.NoData {
			noData = false
			break
		}
	}

	return TreeResult{Passed: passed, NoData: noData, Results: results}
}

func evaluateNode(node ConditionNode, snapshots map[int]MetricSnapshot, results *[]ConditionResult) bool {
	switch n := node.(type) {
	case *Leaf:
		r := EvaluateCondition(snapshots[n.Lookback()], *n)
		*results = append(*results, r)
		return r.Passed
	case *And:
		if len(n.Children) == 0 {
			return false
		}
		all := true
		for _, child := range n.Children {
			if !evaluateNode(child, snapshots, results) {
				all = false
			}
		}
		return all
	case *Or:
		matched := false
		for _, child := range n.Children {
			if evaluateNode(child, snapshots, results) {
				matched = true
			}
		}
		return matched
	default:
		return false
	}
}

// Lookbacks returns the distinct lookback windows used by a tree, ascending
func Lookbacks(root ConditionNode) []int {
	seen := map[int]bool{}
	var walk func(ConditionNode)
	walk = func(node ConditionNode) {
		switch n := node.(type) {
		case *Leaf:
			seen[n.Lookback()] = true
		case *And:
			for _, c := range n.Children {
				walk(c)
			}
		case *Or:
			for _, c := range n.Children {
				walk(c)
			}
		}
	}
	walk(root)

	days := make([]int, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Ints(days)
	return days
}

// ConditionTree wraps a root node so it can travel as JSON:
// a leaf object, or {"operator": "and"|"or", "conditions": [...]}.
type ConditionTree struct {
	Root ConditionNode
}

type conditionWire struct {
	Metric       Metric            `json:"metric,omitempty"`
	Operator     string            `json:"operator"`
	Threshold    float64           `json:"threshold,omitempty"`
	LookbackDays int               `json:"lookback_days,omitempty"`
	Conditions   []json.RawMessage `json:"conditions,omitempty"`
}

func (t ConditionTree) MarshalJSON() ([]byte, error) {
	if t.Root == nil {
		return []byte("null"), nil
	}
	return marshalNode(t.Root)
}

func marshalNode(node ConditionNode) ([]byte, error) {
	switch n := node.(type) {
	case *Leaf:
		return json.Marshal(n)
	case *And:
		return marshalGroup("and", n.Children)
	case *Or:
		return marshalGroup("or", n.Children)
	default:
		return nil, fmt.Errorf("unsupported condition node %T", node)
	}
}

func marshalGroup(op string, children []ConditionNode) ([]byte, error) {
	raw := make([]json.RawMessage, 0, len(children))
	for _, c := range children {
		data, err := marshalNode(c)
		if err != nil {
			return nil, err
		}
		raw = append(raw, data)
	}
	return json.Marshal(struct {
		Operator   string            `json:"operator"`
		Conditions []json.RawMessage `json:"conditions"`
	}{op, raw})
}

func (t *ConditionTree) UnmarshalJSON(data []byte) error {
	if strings.TrimSpace(string(data)) == "null" {
		t.Root = nil
		return nil
	}
	node, err := unmarshalNode(data)
	if err != nil {
		return err
	}
	t.Root = node
	return nil
}

func unmarshalNode(data []byte) (ConditionNode, error) {
	var wire conditionWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("invalid condition: %w", err)
	}

	if wire.Conditions == nil && wire.Metric != "" {
		return &Leaf{
			Metric:       Metric(strings.ToLower(string(wire.Metric))),
			Operator:     Operator(strings.ToLower(wire.Operator)),
			Threshold:    wire.Threshold,
			LookbackDays: wire.LookbackDays,
		}, nil
	}

	children := make([]ConditionNode, 0, len(wire.Conditions))
	for i, raw := range wire.Conditions {
		child, err := unmarshalNode(raw)
		if err != nil {
			return nil, fmt.Errorf("conditions[%d]: %w", i, err)
		}
		children = append(children, child)
	}

	switch strings.ToLower(wire.Operator) {
	case "and", "":
		return &And{Children: children}, nil
	case "or":
		return &Or{Children: children}, nil
	default:
		return nil, fmt.Errorf("unknown combinator %q", wire.Operator)
	}
}

// Validate reports definition problems without evaluating anything
func (t ConditionTree) Validate() []string {
	if t.Root == nil {
		return []string{"at least one condition is required"}
	}
	var problems []string
	var walk func(ConditionNode, string)
	walk = func(node ConditionNode, path string) {
		switch n := node.(type) {
		case *Leaf:
			if !n.Metric.Valid() {
				problems = append(problems, fmt.Sprintf("%s: unknown metric %q", path, n.Metric))
			}
			if _, ok := n.Operator.Compare(0, 0); !ok {
				problems = append(problems, fmt.Sprintf("%s: unknown operator %q", path, n.Operator))
			}
		case *And:
			if len(n.Children) == 0 {
				problems = append(problems, path+": empty and group")
			}
			for i, c := range n.Children {
				walk(c, fmt.Sprintf("%s.conditions[%d]", path, i))
			}
		case *Or:
			if len(n.Children) == 0 {
				problems = append(problems, path+": empty or group")
			}
			for i, c := range n.Children {
				walk(c, fmt.Sprintf("%s.conditions[%d]", path, i))
			}
		}
	}
	walk(t.Root, "conditions")
	return problems
}
