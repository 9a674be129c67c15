package otel

import (
	"context"
	"sort"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"escrow-sentinel/internal/audit"
	auditdomain "escrow-sentinel/internal/audit/domain"
	"escrow-sentinel/internal/telemetry"
)

const instrumentationName = "escrow-sentinel/security"

// recordLogger is the subset of otellog.Logger used by the emitter.
type recordLogger interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends records as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger(instrumentationName)}
}

// NewEventEmitterWithLogger returns an emitter writing to logger. Used in tests to capture records.
func NewEventEmitterWithLogger(logger recordLogger) telemetry.EventEmitter {
	if logger == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, telemetry.Record) error { return nil }

type otelEmitter struct {
	logger recordLogger
}

// Emit converts rec to an OTel log record and emits it.
func (e *otelEmitter) Emit(ctx context.Context, rec telemetry.Record) error {
	out := otellog.Record{}
	if !rec.Timestamp.IsZero() {
		out.SetTimestamp(rec.Timestamp)
	} else {
		out.SetTimestamp(time.Now().UTC())
	}
	out.SetEventName(rec.Name)
	out.SetSeverity(severityOf(rec.Severity))
	out.SetSeverityText(rec.Severity)
	if rec.Body != "" {
		out.SetBody(otellog.StringValue(rec.Body))
	}
	keys := make([]string, 0, len(rec.Attributes))
	for k := range rec.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := rec.Attributes[k]; v != "" {
			out.AddAttributes(otellog.String(k, v))
		}
	}
	e.logger.Emit(ctx, out)
	return nil
}

func severityOf(s string) otellog.Severity {
	switch s {
	case "critical":
		return otellog.SeverityFatal
	case "high":
		return otellog.SeverityError
	case "medium":
		return otellog.SeverityWarn
	case "low", "info":
		return otellog.SeverityInfo
	default:
		return otellog.SeverityUndefined
	}
}

// NewAuditSink returns an audit.Sink that mirrors audit records into emitter as log records.
func NewAuditSink(emitter telemetry.EventEmitter) audit.Sink {
	return audit.SinkFunc(func(ctx context.Context, rec *auditdomain.Record) error {
		if emitter == nil || rec == nil {
			return nil
		}
		body, err := audit.MarshalRecord(rec)
		if err != nil {
			return err
		}
		return emitter.Emit(ctx, telemetry.Record{
			Name:     rec.Kind,
			Severity: rec.Severity,
			Body:     string(body),
			Attributes: map[string]string{
				"audit_id":   rec.ID,
				"subject_id": rec.SubjectID,
				"ip":         rec.IP,
				"outcome":    rec.Outcome,
			},
			Timestamp: rec.CreatedAt,
		})
	})
}
