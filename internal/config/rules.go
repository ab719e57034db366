package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"gql-dashboard/pkg/types"
)

// RulesFile is the on-disk YAML layout for alert rules
type RulesFile struct {
	Rules []RuleSpec `yaml:"rules"`
}

// RuleSpec is one rule as written in the rules file. Duration uses Go
// duration syntax ("5m", "30s").
type RuleSpec struct {
	ID         string  `yaml:"id"`
	Name       string  `yaml:"name"`
	EndpointID string  `yaml:"endpoint"`
	Metric     string  `yaml:"metric"`
	Operator   string  `yaml:"operator"`
	Threshold  float64 `yaml:"threshold"`
	Duration   string  `yaml:"duration"`
	Severity   string  `yaml:"severity"`
	Enabled    *bool   `yaml:"enabled"`
}

// ToRule converts the file entry into an AlertRule, validating its shape
func (s RuleSpec) ToRule() (types.AlertRule, error) {
	var duration time.Duration
	if s.Duration != "" {
		d, err := time.ParseDuration(s.Duration)
		if err != nil {
			return types.AlertRule{}, fmt.Errorf("rule %q: invalid duration %q: %w", s.Name, s.Duration, err)
		}
		duration = d
	}

	enabled := true
	if s.Enabled != nil {
		enabled = *s.Enabled
	}

	rule := types.AlertRule{
		ID:         s.ID,
		Name:       s.Name,
		EndpointID: s.EndpointID,
		Condition: types.Condition{
			Metric:    types.MetricField(s.Metric),
			Operator:  types.Operator(s.Operator),
			Threshold: s.Threshold,
			Duration:  duration,
		},
		Severity: types.Severity(s.Severity),
		Enabled:  enabled,
	}
	if err := rule.Validate(); err != nil {
		return types.AlertRule{}, fmt.Errorf("rule %q: %w", s.Name, err)
	}
	return rule, nil
}

// ParseRules decodes a YAML rules document
func ParseRules(data []byte) ([]types.AlertRule, error) {
	var file RulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}

	rules := make([]types.AlertRule, 0, len(file.Rules))
	for _, entry := range file.Rules {
		rule, err := entry.ToRule()
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// LoadRules reads alert rules from path. An empty path yields no rules.
func LoadRules(path string) ([]types.AlertRule, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data)
}
