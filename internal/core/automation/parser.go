package automation

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// RuleParser builds rule definitions from JSON or YAML documents
type RuleParser struct{}

// NewRuleParser creates a new rule parser
func NewRuleParser() *RuleParser {
	return &RuleParser{}
}

// Parse detects the format from the first non-blank byte
func (rp *RuleParser) Parse(data []byte) (*Rule, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return rp.ParseFromJSON(trimmed)
	}
	return rp.ParseFromYAML(data)
}

// ParseFromYAML parses a rule from YAML. The document is normalised to JSON
// so both formats share one decoder.
func (rp *RuleParser) ParseFromYAML(yamlData []byte) (*Rule, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(yamlData, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %v", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("empty rule document")
	}

	jsonData, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to normalise YAML: %v", err)
	}
	return rp.ParseFromJSON(jsonData)
}

// ParseFromJSON parses a rule from JSON and applies defaults
func (rp *RuleParser) ParseFromJSON(jsonData []byte) (*Rule, error) {
	var rule Rule
	if err := json.Unmarshal(jsonData, &rule); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %v", err)
	}

	if rule.Status == "" {
		rule.Status = RuleStatusActive
	}
	if rule.Scope.Type == "" {
		if rule.Scope.CampaignID != "" {
			rule.Scope.Type = ScopeCampaign
		} else {
			rule.Scope.Type = ScopeOrg
		}
	}
	return &rule, nil
}

// ParseAndValidate parses and validates in one step
func (rp *RuleParser) ParseAndValidate(data []byte) (*Rule, *RuleValidationResult, error) {
	rule, err := rp.Parse(data)
	if err != nil {
		return nil, nil, err
	}
	return rule, rule.Validate(), nil
}
