package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"escrow-sentinel/internal/audit/domain"
)

// Sink consumes audit records. The durable audit store lives behind a Sink and is not owned here.
type Sink interface {
	Write(ctx context.Context, rec *domain.Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, rec *domain.Record) error

// Write calls f(ctx, rec).
func (f SinkFunc) Write(ctx context.Context, rec *domain.Record) error {
	return f(ctx, rec)
}

// AuditLogger writes a single audit record. Used by session and alerting code paths.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, rec domain.Record)
}

// Logger implements AuditLogger by fanning records out to one or more sinks.
type Logger struct {
	sinks []Sink
	nowF  func() time.Time
}

// NewLogger returns an AuditLogger that writes to every non-nil sink in order.
// With no sinks LogEvent is a no-op.
func NewLogger(sinks ...Sink) *Logger {
	l := &Logger{nowF: func() time.Time { return time.Now().UTC() }}
	for _, s := range sinks {
		if s != nil {
			l.sinks = append(l.sinks, s)
		}
	}
	return l
}

// LogEvent fills ID, CreatedAt, Severity and Outcome when unset and writes the record to each sink.
// Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, rec domain.Record) {
	if l == nil || len(l.sinks) == 0 {
		return
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = l.nowF()
	}
	if rec.Severity == "" {
		rec.Severity = "info"
	}
	if rec.Outcome == "" {
		rec.Outcome = domain.OutcomeSuccess
	}
	if rec.IP == "" {
		rec.IP = "unknown"
	}
	for _, s := range l.sinks {
		if err := s.Write(ctx, &rec); err != nil {
			log.Printf("audit: failed to write %s record %s: %v", rec.Kind, rec.ID, err)
		}
	}
}
