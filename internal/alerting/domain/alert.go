package domain

import "time"

// Status is the triage state of an alert. Any transition between statuses is allowed.
type Status string

// Alert statuses.
const (
	StatusNew           Status = "new"
	StatusInvestigating Status = "investigating"
	StatusResolved      Status = "resolved"
	StatusFalsePositive Status = "false_positive"
)

// ParseStatus returns the Status for s, or false if s is not a known status.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(s); st {
	case StatusNew, StatusInvestigating, StatusResolved, StatusFalsePositive:
		return st, true
	default:
		return "", false
	}
}

// Open reports whether the alert still needs attention.
func (s Status) Open() bool {
	return s == StatusNew || s == StatusInvestigating
}

// Correlation records why an alert fired.
type Correlation struct {
	RuleID    string
	Threshold float64
	Observed  float64
}

// Note is an append-only triage note.
type Note struct {
	Author string
	Text   string
	At     time.Time
}

// Alert is a trackable record produced when an event satisfies a rule.
type Alert struct {
	ID          string
	Timestamp   time.Time
	Severity    Severity
	Category    string
	Title       string
	Description string
	SubjectID   string
	Origin      Origin
	EventType   string
	Correlation Correlation
	Status      Status
	Assignee    string
	Notes       []Note
	UpdatedAt   time.Time
}

// Clone returns a copy with its own Notes slice.
func (a *Alert) Clone() *Alert {
	if a == nil {
		return nil
	}
	c := *a
	if a.Notes != nil {
		c.Notes = append([]Note(nil), a.Notes...)
	}
	return &c
}

// Metric is a write-once numeric sample.
type Metric struct {
	Name      string
	Value     float64
	Unit      string
	Timestamp time.Time
	Tags      map[string]string
}
