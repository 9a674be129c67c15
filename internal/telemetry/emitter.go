package telemetry

import (
	"context"
	"time"
)

// Record is a structured security log record (alert notification, audit entry).
type Record struct {
	// Name identifies the record kind, e.g. "alert_created" or "session_destroyed".
	Name string
	// Severity is the domain severity: info, low, medium, high, critical.
	Severity   string
	Body       string
	Attributes map[string]string
	Timestamp  time.Time
}

// EventEmitter emits structured records (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, rec Record) error
}
