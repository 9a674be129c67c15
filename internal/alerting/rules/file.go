// Package rules reads and writes alert rule definitions in YAML.
package rules

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"escrow-sentinel/internal/alerting/domain"
)

// File is the on-disk rule document.
type File struct {
	Rules []RuleSpec `yaml:"rules"`
}

// RuleSpec is one rule as written in a rule file or sent to the rules API.
type RuleSpec struct {
	ID          string        `yaml:"id" json:"id"`
	Name        string        `yaml:"name" json:"name"`
	Description string        `yaml:"description,omitempty" json:"description,omitempty"`
	Category    string        `yaml:"category,omitempty" json:"category,omitempty"`
	Severity    string        `yaml:"severity,omitempty" json:"severity,omitempty"`
	EventType   string        `yaml:"eventType,omitempty" json:"eventType,omitempty"`
	Enabled     *bool         `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Condition   ConditionSpec `yaml:"condition" json:"condition"`
}

// ConditionSpec is the tagged condition. Kind selects which other fields apply.
type ConditionSpec struct {
	Kind      string            `yaml:"kind" json:"kind"`
	Threshold float64           `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Window    string            `yaml:"window,omitempty" json:"window,omitempty"`
	Fields    map[string]string `yaml:"fields,omitempty" json:"fields,omitempty"`
	Field     string            `yaml:"field,omitempty" json:"field,omitempty"`
}

// LoadFile reads and parses the rule file at path.
func LoadFile(path string) ([]domain.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	rules, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rules %s: %w", path, err)
	}
	return rules, nil
}

// Parse decodes a rule document. Every malformed entry is reported; no rules are returned on error.
// A rule without an enabled key is enabled.
func Parse(data []byte) ([]domain.Rule, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	var (
		out  []domain.Rule
		errs []error
		seen = make(map[string]bool, len(f.Rules))
	)
	for i, spec := range f.Rules {
		r, err := spec.Rule()
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %d (%q): %w", i, spec.ID, err))
			continue
		}
		if seen[r.ID] {
			errs = append(errs, fmt.Errorf("rule %d: duplicate id %q", i, r.ID))
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// Rule converts the spec to a domain rule. A spec without an enabled key is enabled.
func (s RuleSpec) Rule() (domain.Rule, error) {
	if s.ID == "" {
		return domain.Rule{}, errors.New("missing id")
	}
	if s.Name == "" {
		return domain.Rule{}, errors.New("missing name")
	}
	sev := domain.Severity(s.Severity)
	if sev != "" && !sev.Valid() {
		return domain.Rule{}, fmt.Errorf("unknown severity %q", s.Severity)
	}
	cond, err := s.Condition.toCondition()
	if err != nil {
		return domain.Rule{}, err
	}
	enabled := true
	if s.Enabled != nil {
		enabled = *s.Enabled
	}
	return domain.Rule{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Category:    s.Category,
		Severity:    sev,
		EventType:   s.EventType,
		Condition:   cond,
		Enabled:     enabled,
	}, nil
}

func (c ConditionSpec) toCondition() (domain.Condition, error) {
	var window time.Duration
	if c.Window != "" {
		d, err := time.ParseDuration(c.Window)
		if err != nil {
			return nil, fmt.Errorf("window: %w", err)
		}
		if d < 0 {
			return nil, fmt.Errorf("window %s is negative", c.Window)
		}
		window = d
	}
	switch domain.ConditionKind(c.Kind) {
	case domain.KindCountInWindow:
		if c.Threshold < 1 || c.Threshold != float64(int(c.Threshold)) {
			return nil, fmt.Errorf("count-in-window threshold must be a positive integer, got %v", c.Threshold)
		}
		if window == 0 {
			return nil, errors.New("count-in-window needs a window")
		}
		return domain.CountInWindow{Threshold: int(c.Threshold), Window: window}, nil
	case domain.KindPatternMatch:
		if len(c.Fields) == 0 {
			return nil, errors.New("pattern-match needs at least one field")
		}
		fields := make(map[string]string, len(c.Fields))
		for k, v := range c.Fields {
			fields[k] = v
		}
		return domain.PatternMatch{Fields: fields, Window: window}, nil
	case domain.KindThresholdExceeded:
		if c.Field == "" {
			return nil, errors.New("threshold-exceeded needs a field")
		}
		return domain.ThresholdExceeded{Field: c.Field, Threshold: c.Threshold}, nil
	case "":
		return nil, errors.New("missing condition kind")
	default:
		return nil, fmt.Errorf("unknown condition kind %q", c.Kind)
	}
}

// SpecOf converts a domain rule to its file/API shape.
func SpecOf(r domain.Rule) (RuleSpec, error) {
	enabled := r.Enabled
	spec := RuleSpec{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		Severity:    string(r.Severity),
		EventType:   r.EventType,
		Enabled:     &enabled,
	}
	switch c := r.Condition.(type) {
	case domain.CountInWindow:
		spec.Condition = ConditionSpec{Kind: string(c.Kind()), Threshold: float64(c.Threshold), Window: c.Window.String()}
	case domain.PatternMatch:
		spec.Condition = ConditionSpec{Kind: string(c.Kind()), Fields: c.Fields}
		if c.Window > 0 {
			spec.Condition.Window = c.Window.String()
		}
	case domain.ThresholdExceeded:
		spec.Condition = ConditionSpec{Kind: string(c.Kind()), Field: c.Field, Threshold: c.Threshold}
	default:
		return RuleSpec{}, fmt.Errorf("rule %s: unknown condition %T", r.ID, r.Condition)
	}
	return spec, nil
}

// Marshal encodes rules as a rule document.
func Marshal(rules []domain.Rule) ([]byte, error) {
	f := File{Rules: make([]RuleSpec, 0, len(rules))}
	for _, r := range rules {
		spec, err := SpecOf(r)
		if err != nil {
			return nil, err
		}
		f.Rules = append(f.Rules, spec)
	}
	return yaml.Marshal(&f)
}
