package domain

import (
	"fmt"
	"time"
)

// Severity of events, rules and alerts.
type Severity string

// Severities, lowest first.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists every severity, lowest first.
var Severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	for _, v := range Severities {
		if s == v {
			return true
		}
	}
	return false
}

// ConditionKind tags a rule condition.
type ConditionKind string

// Condition kinds.
const (
	KindCountInWindow     ConditionKind = "count-in-window"
	KindPatternMatch      ConditionKind = "pattern-match"
	KindThresholdExceeded ConditionKind = "threshold-exceeded"
)

// Condition is one of CountInWindow, PatternMatch or ThresholdExceeded.
type Condition interface {
	Kind() ConditionKind
	// Limit is the threshold recorded on alerts raised by this condition.
	Limit() float64
	isCondition()
}

// CountInWindow fires when at least Threshold events of the rule's type occurred within Window.
type CountInWindow struct {
	Threshold int
	Window    time.Duration
}

// PatternMatch fires when every declared field equals the event's value for that field.
// Window, when set, limits how far back matching events are counted for the observed value.
type PatternMatch struct {
	Fields map[string]string
	Window time.Duration
}

// ThresholdExceeded fires when the numeric event field Field is strictly greater than Threshold.
type ThresholdExceeded struct {
	Field     string
	Threshold float64
}

func (CountInWindow) Kind() ConditionKind     { return KindCountInWindow }
func (PatternMatch) Kind() ConditionKind      { return KindPatternMatch }
func (ThresholdExceeded) Kind() ConditionKind { return KindThresholdExceeded }

func (c CountInWindow) Limit() float64     { return float64(c.Threshold) }
func (PatternMatch) Limit() float64        { return 1 }
func (c ThresholdExceeded) Limit() float64 { return c.Threshold }

func (CountInWindow) isCondition()     {}
func (PatternMatch) isCondition()      {}
func (ThresholdExceeded) isCondition() {}

// Rule describes when, and at what severity, to raise an alert.
type Rule struct {
	ID          string `validate:"required"`
	Name        string `validate:"required"`
	Description string
	Category    string
	Severity    Severity
	// EventType restricts the rule to one event type. Empty matches any type (pattern and threshold rules only).
	EventType string
	Condition Condition `validate:"required"`
	Enabled   bool
}

// Window returns the time span the rule looks back over, or 0 if it evaluates single events.
func (r *Rule) Window() time.Duration {
	switch c := r.Condition.(type) {
	case CountInWindow:
		return c.Window
	case PatternMatch:
		return c.Window
	default:
		return 0
	}
}

// Clone returns a copy sharing no maps with r.
func (r *Rule) Clone() Rule {
	c := *r
	if p, ok := r.Condition.(PatternMatch); ok {
		fields := make(map[string]string, len(p.Fields))
		for k, v := range p.Fields {
			fields[k] = v
		}
		c.Condition = PatternMatch{Fields: fields, Window: p.Window}
	}
	return c
}

// String is used in logs.
func (r *Rule) String() string {
	kind := ConditionKind("none")
	if r.Condition != nil {
		kind = r.Condition.Kind()
	}
	return fmt.Sprintf("%s(%s, %s)", r.ID, kind, r.Severity)
}
