package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"escrow-sentinel/internal/alerting/domain"
	alertrepo "escrow-sentinel/internal/alerting/repository"
	"escrow-sentinel/internal/audit"
	auditdomain "escrow-sentinel/internal/audit/domain"
	"escrow-sentinel/internal/platform/ring"
)

// Defaults applied by New when an Options field is zero.
const (
	DefaultWindowCapacity = 20000
	DefaultRetention      = 90 * 24 * time.Hour
	DashboardAlerts       = 100
	DashboardMetrics      = 50
)

// Event time bounds. ProcessEvent replaces timestamps more than MaxClockSkew ahead of the
// engine clock with the current time; the transport rejects them along with events older than
// MaxEventAge.
const (
	MaxClockSkew = time.Minute
	MaxEventAge  = 24 * time.Hour
)

// MaxWindowTypes bounds how many event types get a window of their own. Events of further
// types share one overflow window.
const MaxWindowTypes = 32

const overflowWindow = "\x00overflow"

// MetricAlertObserved is the metric sample written for every alert.
const MetricAlertObserved = "security_alert_observed"

var (
	// ErrInvalidRule is returned by AddRule for rules missing required fields or with an unusable condition.
	ErrInvalidRule = errors.New("invalid rule")
	// ErrDuplicateRule is returned by AddRule when a rule with the same id exists.
	ErrDuplicateRule = errors.New("duplicate rule id")
)

// Options configures the engine.
type Options struct {
	// Rules replaces the default rule set when non-nil.
	Rules []domain.Rule
	// WindowCapacity is the number of events kept per event type.
	WindowCapacity int
	Retention      time.Duration
}

// Dashboard is the read-only projection served to display layers.
type Dashboard struct {
	Alerts  []*domain.Alert
	Metrics []domain.Metric
	Summary alertrepo.Summary
}

type match struct {
	rule     domain.Rule
	observed float64
}

// cooldownKey scopes a count-in-window cool-down to one rule and one origin IP.
type cooldownKey struct {
	rule   string
	origin string
}

// Engine evaluates security events against the rule set over rolling per-type event windows
// and materializes alerts and metric samples.
//
// mu guards rules, windows and lastFired. The alert and metric stores lock on their own;
// audit and notifications run after mu is released.
type Engine struct {
	mu        sync.Mutex
	rules     []domain.Rule
	ruleIndex map[string]int
	windows   map[string]*ring.Buffer[domain.Event]
	windowCap int
	// lastFired holds the event time at which a count-in-window rule last fired for an origin.
	lastFired map[cooldownKey]time.Time

	alerts      alertrepo.AlertRepository
	metrics     alertrepo.MetricRepository
	auditLogger audit.AuditLogger
	notifier    Notifier
	validate    *validator.Validate
	retention   time.Duration
	nowF        func() time.Time
	idF         func() string

	eventsProcessed metric.Int64Counter
	alertsRaised    metric.Int64Counter
}

// New returns an engine loaded with opts.Rules, or DefaultRules when opts.Rules is nil.
// Invalid or duplicate rules in opts.Rules are reported in the returned error; valid ones are kept.
// auditLogger and notifier may be nil.
func New(alerts alertrepo.AlertRepository, metrics alertrepo.MetricRepository, auditLogger audit.AuditLogger, notifier Notifier, opts Options) (*Engine, error) {
	if opts.WindowCapacity <= 0 {
		opts.WindowCapacity = DefaultWindowCapacity
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	meter := otel.Meter("escrow-sentinel/alerting")
	processed, _ := meter.Int64Counter("security_events.processed",
		metric.WithDescription("Security events evaluated, by type"))
	raised, _ := meter.Int64Counter("alerts.raised",
		metric.WithDescription("Alerts raised, by rule and severity"))
	e := &Engine{
		ruleIndex:       make(map[string]int),
		windows:         make(map[string]*ring.Buffer[domain.Event]),
		windowCap:       opts.WindowCapacity,
		lastFired:       make(map[cooldownKey]time.Time),
		alerts:          alerts,
		metrics:         metrics,
		auditLogger:     auditLogger,
		notifier:        notifier,
		validate:        validator.New(),
		retention:       opts.Retention,
		nowF:            func() time.Time { return time.Now().UTC() },
		idF:             func() string { return uuid.New().String() },
		eventsProcessed: processed,
		alertsRaised:    raised,
	}
	rules := opts.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	var errs []error
	for _, r := range rules {
		if err := e.AddRule(r); err != nil {
			errs = append(errs, err)
		}
	}
	return e, errors.Join(errs...)
}

// AddRule validates r and appends it to the rule set. Rules cannot be removed.
func (e *Engine) AddRule(r domain.Rule) error {
	if err := e.checkRule(&r); err != nil {
		return err
	}
	r = r.Clone()
	if r.Severity == "" {
		r.Severity = domain.SeverityMedium
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.ruleIndex[r.ID]; ok {
		return fmt.Errorf("add rule %s: %w", r.ID, ErrDuplicateRule)
	}
	e.ruleIndex[r.ID] = len(e.rules)
	e.rules = append(e.rules, r)
	return nil
}

func (e *Engine) checkRule(r *domain.Rule) error {
	if err := e.validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if r.Severity != "" && !r.Severity.Valid() {
		return fmt.Errorf("%w: %s: unknown severity %q", ErrInvalidRule, r.ID, r.Severity)
	}
	switch c := r.Condition.(type) {
	case domain.CountInWindow:
		if c.Threshold < 1 || c.Window <= 0 {
			return fmt.Errorf("%w: %s: count-in-window needs threshold >= 1 and a positive window", ErrInvalidRule, r.ID)
		}
		if r.EventType == "" {
			return fmt.Errorf("%w: %s: count-in-window needs an event type", ErrInvalidRule, r.ID)
		}
	case domain.PatternMatch:
		if c.Window < 0 {
			return fmt.Errorf("%w: %s: negative window", ErrInvalidRule, r.ID)
		}
	case domain.ThresholdExceeded:
		if c.Field == "" {
			return fmt.Errorf("%w: %s: threshold-exceeded needs a field", ErrInvalidRule, r.ID)
		}
	default:
		return fmt.Errorf("%w: %s: unknown condition %T", ErrInvalidRule, r.ID, r.Condition)
	}
	return nil
}

// Rules returns a copy of the rule set in insertion order.
func (e *Engine) Rules() []domain.Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Rule, len(e.rules))
	for i := range e.rules {
		out[i] = e.rules[i].Clone()
	}
	return out
}

// ProcessEvent appends ev to its type's rolling window and evaluates every enabled rule against it.
// Each matching rule produces one alert and one metric sample; the created alerts are returned.
// A missing timestamp, or one more than MaxClockSkew in the future, is replaced by the current time.
func (e *Engine) ProcessEvent(ctx context.Context, ev domain.Event) []*domain.Alert {
	if now := e.nowF(); ev.Timestamp.IsZero() || ev.Timestamp.After(now.Add(MaxClockSkew)) {
		ev.Timestamp = now
	}
	if ev.Severity == "" {
		ev.Severity = domain.SeverityLow
	}
	if ev.Detail != nil {
		detail := make(map[string]any, len(ev.Detail))
		for k, v := range ev.Detail {
			detail[k] = v
		}
		ev.Detail = detail
	}

	e.mu.Lock()
	e.windowLocked(ev.Type).Push(ev)
	var matches []match
	for i := range e.rules {
		r := &e.rules[i]
		if !r.Enabled {
			continue
		}
		if observed, ok := e.evaluateLocked(r, &ev); ok {
			matches = append(matches, match{rule: r.Clone(), observed: observed})
		}
	}
	e.mu.Unlock()

	e.eventsProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("type", ev.Type)))
	if len(matches) == 0 {
		return nil
	}
	out := make([]*domain.Alert, 0, len(matches))
	for _, m := range matches {
		out = append(out, e.CreateAlert(ctx, m.rule, ev, m.observed))
	}
	return out
}

// evaluateLocked reports whether r fires for ev and the observed value recorded on the alert.
func (e *Engine) evaluateLocked(r *domain.Rule, ev *domain.Event) (float64, bool) {
	switch c := r.Condition.(type) {
	case domain.CountInWindow:
		if ev.Type != r.EventType {
			return 0, false
		}
		key := cooldownKey{rule: r.ID, origin: ev.Origin.IP}
		if last, ok := e.lastFired[key]; ok && ev.Timestamp.Sub(last) < c.Window {
			return 0, false
		}
		n := e.countLocked(ev.Timestamp, c.Window, r.EventType, func(w *domain.Event) bool { return w.Type == r.EventType })
		if n < c.Threshold {
			return 0, false
		}
		e.lastFired[key] = ev.Timestamp
		return float64(n), true
	case domain.PatternMatch:
		if r.EventType != "" && ev.Type != r.EventType {
			return 0, false
		}
		if !patternMatches(c.Fields, ev) {
			return 0, false
		}
		if c.Window <= 0 {
			return 1, true
		}
		n := e.countLocked(ev.Timestamp, c.Window, r.EventType, func(w *domain.Event) bool {
			return (r.EventType == "" || w.Type == r.EventType) && patternMatches(c.Fields, w)
		})
		return float64(n), true
	case domain.ThresholdExceeded:
		if r.EventType != "" && ev.Type != r.EventType {
			return 0, false
		}
		raw, ok := ev.Field(c.Field)
		if !ok {
			return 0, false
		}
		v, ok := domain.NumberValue(raw)
		if !ok || v <= c.Threshold {
			return 0, false
		}
		return v, true
	default:
		return 0, false
	}
}

// windowLocked returns the window holding events of type typ, creating it if needed.
func (e *Engine) windowLocked(typ string) *ring.Buffer[domain.Event] {
	if w, ok := e.windows[typ]; ok {
		return w
	}
	if len(e.windows) >= MaxWindowTypes {
		typ = overflowWindow
		if w, ok := e.windows[typ]; ok {
			return w
		}
	}
	w := ring.New[domain.Event](e.windowCap)
	e.windows[typ] = w
	return w
}

// countLocked counts events in (at-window, at] accepted by keep. A non-empty eventType limits
// the scan to that type's window and the overflow window.
func (e *Engine) countLocked(at time.Time, window time.Duration, eventType string, keep func(*domain.Event) bool) int {
	from := at.Add(-window)
	n := 0
	count := func(w domain.Event) bool {
		if w.Timestamp.After(from) && !w.Timestamp.After(at) && keep(&w) {
			n++
		}
		return true
	}
	if eventType == "" {
		for _, w := range e.windows {
			w.Each(count)
		}
		return n
	}
	if w, ok := e.windows[eventType]; ok {
		w.Each(count)
	}
	if w, ok := e.windows[overflowWindow]; ok && eventType != overflowWindow {
		w.Each(count)
	}
	return n
}

// patternMatches requires every declared field to equal the event's value. An empty pattern never matches.
func patternMatches(fields map[string]string, ev *domain.Event) bool {
	if len(fields) == 0 {
		return false
	}
	for name, want := range fields {
		got, ok := ev.Field(name)
		if !ok || domain.StringValue(got) != want {
			return false
		}
	}
	return true
}

// CreateAlert materializes an alert for rule and ev, stores it with its metric sample,
// writes an alert_created audit record and notifies.
func (e *Engine) CreateAlert(ctx context.Context, rule domain.Rule, ev domain.Event, observed float64) *domain.Alert {
	now := e.nowF()
	a := &domain.Alert{
		ID:          e.idF(),
		Timestamp:   now,
		Severity:    rule.Severity,
		Category:    rule.Category,
		Title:       rule.Name,
		Description: describe(rule, ev, observed),
		SubjectID:   ev.SubjectID,
		Origin:      ev.Origin,
		EventType:   ev.Type,
		Correlation: domain.Correlation{
			RuleID:    rule.ID,
			Threshold: conditionLimit(rule.Condition),
			Observed:  observed,
		},
		Status:    domain.StatusNew,
		UpdatedAt: now,
	}
	if e.alerts != nil {
		e.alerts.Add(ctx, a)
	}
	if e.metrics != nil {
		e.metrics.Add(ctx, domain.Metric{
			Name:      MetricAlertObserved,
			Value:     observed,
			Unit:      unitOf(rule.Condition),
			Timestamp: now,
			Tags: map[string]string{
				"rule_id":  rule.ID,
				"severity": string(rule.Severity),
				"category": rule.Category,
			},
		})
	}
	e.alertsRaised.Add(ctx, 1, metric.WithAttributes(
		attribute.String("rule_id", rule.ID),
		attribute.String("severity", string(rule.Severity)),
	))
	if e.auditLogger != nil {
		e.auditLogger.LogEvent(ctx, auditdomain.Record{
			Kind:      auditdomain.KindAlertCreated,
			Severity:  string(a.Severity),
			SubjectID: a.SubjectID,
			IP:        a.Origin.IP,
			UserAgent: a.Origin.UserAgent,
			Detail: map[string]any{
				"alert_id":   a.ID,
				"rule_id":    rule.ID,
				"category":   a.Category,
				"event_type": a.EventType,
				"observed":   observed,
			},
		})
	}
	if e.notifier != nil {
		e.notifier.Notify(ctx, a.Clone())
	}
	return a
}

func describe(rule domain.Rule, ev domain.Event, observed float64) string {
	switch c := rule.Condition.(type) {
	case domain.CountInWindow:
		return fmt.Sprintf("%g %s events within %s (threshold %d)", observed, rule.EventType, c.Window, c.Threshold)
	case domain.PatternMatch:
		return fmt.Sprintf("%s event matched pattern %v", ev.Type, c.Fields)
	case domain.ThresholdExceeded:
		return fmt.Sprintf("%s = %g exceeds %g", c.Field, observed, c.Threshold)
	default:
		return rule.Description
	}
}

func conditionLimit(c domain.Condition) float64 {
	if c == nil {
		return 0
	}
	return c.Limit()
}

func unitOf(c domain.Condition) string {
	if _, ok := c.(domain.ThresholdExceeded); ok {
		return "value"
	}
	return "events"
}

// UpdateAlertStatus sets the alert's status, replaces the assignee when non-empty and appends
// note when non-empty. The creation timestamp is unchanged. Unknown ids and unknown status
// values return false.
func (e *Engine) UpdateAlertStatus(ctx context.Context, id, status, assignee, note string) bool {
	st, ok := domain.ParseStatus(status)
	if !ok || e.alerts == nil {
		return false
	}
	now := e.nowF()
	var previous domain.Status
	a, ok := e.alerts.Update(ctx, id, func(a *domain.Alert) {
		previous = a.Status
		a.Status = st
		if assignee != "" {
			a.Assignee = assignee
		}
		if note != "" {
			a.Notes = append(a.Notes, domain.Note{Author: assignee, Text: note, At: now})
		}
		a.UpdatedAt = now
	})
	if !ok {
		return false
	}
	if e.auditLogger != nil {
		e.auditLogger.LogEvent(ctx, auditdomain.Record{
			Kind:      auditdomain.KindAlertStatusChanged,
			Severity:  string(a.Severity),
			SubjectID: a.SubjectID,
			IP:        a.Origin.IP,
			Detail: map[string]any{
				"alert_id":        a.ID,
				"status":          string(st),
				"previous_status": string(previous),
				"assignee":        a.Assignee,
			},
		})
	}
	return true
}

// Alert returns a copy of the alert with the given id.
func (e *Engine) Alert(ctx context.Context, id string) (*domain.Alert, bool) {
	if e.alerts == nil {
		return nil, false
	}
	return e.alerts.Get(ctx, id)
}

// Dashboard returns the newest alerts and metrics plus summary counts over all stored alerts.
func (e *Engine) Dashboard(ctx context.Context) Dashboard {
	var d Dashboard
	if e.alerts != nil {
		d.Alerts = e.alerts.Recent(ctx, DashboardAlerts)
		d.Summary = e.alerts.Summary(ctx)
	}
	if e.metrics != nil {
		d.Metrics = e.metrics.Recent(ctx, DashboardMetrics)
	}
	return d
}

// RecentEvents returns window events of every type with Timestamp after since, oldest first.
func (e *Engine) RecentEvents(since time.Time) []domain.Event {
	e.mu.Lock()
	var out []domain.Event
	for _, w := range e.windows {
		w.Each(func(ev domain.Event) bool {
			if ev.Timestamp.After(since) {
				out = append(out, ev)
			}
			return true
		})
	}
	e.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// SweepRetention drops alerts and metrics older than the retention period, window events
// older than the longest rule window and expired cool-downs. Returns the number of alerts and
// metrics removed.
func (e *Engine) SweepRetention(ctx context.Context) (alerts, metrics int) {
	now := e.nowF()
	cutoff := now.Add(-e.retention)
	if e.alerts != nil {
		alerts = e.alerts.DeleteOlderThan(ctx, cutoff)
	}
	if e.metrics != nil {
		metrics = e.metrics.DeleteOlderThan(ctx, cutoff)
	}

	e.mu.Lock()
	var longest time.Duration
	for i := range e.rules {
		if w := e.rules[i].Window(); w > longest {
			longest = w
		}
	}
	if longest < detectorLookback {
		longest = detectorLookback
	}
	from := now.Add(-longest)
	to := now.Add(MaxClockSkew)
	for typ, w := range e.windows {
		w.RemoveFunc(func(ev domain.Event) bool { return ev.Timestamp.Before(from) || ev.Timestamp.After(to) })
		if w.Len() == 0 {
			delete(e.windows, typ)
		}
	}
	for key, last := range e.lastFired {
		if last.Before(from) || last.After(to) {
			delete(e.lastFired, key)
		}
	}
	e.mu.Unlock()

	if alerts > 0 || metrics > 0 {
		log.Printf("alerting: retention sweep removed %d alerts and %d metrics", alerts, metrics)
	}
	return alerts, metrics
}
