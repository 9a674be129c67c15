package engine

import (
	"context"
	"fmt"
	"log"

	"escrow-sentinel/internal/alerting/domain"
	"escrow-sentinel/internal/telemetry"
)

// Notifier is told about every new alert. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, a *domain.Alert)
}

// LogNotifier logs each alert and, when an emitter is set, emits it as a structured log record.
type LogNotifier struct {
	emitter telemetry.EventEmitter
}

// NewLogNotifier returns a notifier. emitter may be nil.
func NewLogNotifier(emitter telemetry.EventEmitter) *LogNotifier {
	return &LogNotifier{emitter: emitter}
}

// Notify logs a one-line summary and emits asynchronously.
func (n *LogNotifier) Notify(_ context.Context, a *domain.Alert) {
	log.Printf("alerting: [%s] %s (rule=%s subject=%q ip=%s observed=%g)",
		a.Severity, a.Title, a.Correlation.RuleID, a.SubjectID, a.Origin.IP, a.Correlation.Observed)
	if n.emitter == nil {
		return
	}
	telemetry.EmitAsync(n.emitter, telemetry.Record{
		Name:     "alert_created",
		Severity: string(a.Severity),
		Body:     a.Description,
		Attributes: map[string]string{
			"alert_id":   a.ID,
			"rule_id":    a.Correlation.RuleID,
			"category":   a.Category,
			"subject_id": a.SubjectID,
			"ip":         a.Origin.IP,
			"event_type": a.EventType,
			"observed":   fmt.Sprintf("%g", a.Correlation.Observed),
		},
		Timestamp: a.Timestamp,
	})
}
