package otel

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"escrow-sentinel/internal/audit"
	auditdomain "escrow-sentinel/internal/audit/domain"
	"escrow-sentinel/internal/telemetry"
)

// recordCapture stores the last Record passed to Emit for assertion.
type recordCapture struct {
	rec   otellog.Record
	calls int
}

func (r *recordCapture) Emit(_ context.Context, rec otellog.Record) {
	r.rec = rec
	r.calls++
}

func attrsOf(rec otellog.Record) map[string]string {
	attrs := make(map[string]string)
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	return attrs
}

func TestNewEventEmitter_NilProvider_ReturnsNoop(t *testing.T) {
	em := NewEventEmitter(nil)
	if em == nil {
		t.Fatal("NewEventEmitter(nil) returned nil")
	}
	if err := em.Emit(context.Background(), telemetry.Record{Name: "x"}); err != nil {
		t.Errorf("noop Emit: %v", err)
	}
	if err := NewEventEmitterWithLogger(nil).Emit(context.Background(), telemetry.Record{}); err != nil {
		t.Errorf("noop Emit: %v", err)
	}
}

func TestNewEventEmitter_Provider(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	if err := NewEventEmitter(provider).Emit(context.Background(), telemetry.Record{Name: "x", Severity: "low"}); err != nil {
		t.Errorf("Emit: %v", err)
	}
}

func TestEmit_Mapping(t *testing.T) {
	capture := &recordCapture{}
	em := NewEventEmitterWithLogger(capture)
	ts := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	err := em.Emit(context.Background(), telemetry.Record{
		Name:     "alert_created",
		Severity: "high",
		Body:     "5 login_failure events",
		Attributes: map[string]string{
			"rule_id":    "brute-force",
			"subject_id": "",
		},
		Timestamp: ts,
	})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	rec := capture.rec
	if rec.EventName() != "alert_created" {
		t.Errorf("EventName = %q", rec.EventName())
	}
	if rec.Severity() != otellog.SeverityError || rec.SeverityText() != "high" {
		t.Errorf("severity = %v/%q", rec.Severity(), rec.SeverityText())
	}
	if !rec.Timestamp().Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", rec.Timestamp(), ts)
	}
	if rec.Body().AsString() != "5 login_failure events" {
		t.Errorf("body = %q", rec.Body().AsString())
	}
	attrs := attrsOf(rec)
	if attrs["rule_id"] != "brute-force" {
		t.Errorf("rule_id = %q", attrs["rule_id"])
	}
	if _, ok := attrs["subject_id"]; ok {
		t.Error("empty attributes should be skipped")
	}
}

func TestEmit_DefaultTimestamp(t *testing.T) {
	capture := &recordCapture{}
	before := time.Now().UTC()
	_ = NewEventEmitterWithLogger(capture).Emit(context.Background(), telemetry.Record{Name: "x"})
	if capture.rec.Timestamp().Before(before) {
		t.Errorf("Timestamp = %v, want >= %v", capture.rec.Timestamp(), before)
	}
}

func TestSeverityOf(t *testing.T) {
	tests := map[string]otellog.Severity{
		"critical": otellog.SeverityFatal,
		"high":     otellog.SeverityError,
		"medium":   otellog.SeverityWarn,
		"low":      otellog.SeverityInfo,
		"info":     otellog.SeverityInfo,
		"weird":    otellog.SeverityUndefined,
	}
	for in, want := range tests {
		if got := severityOf(in); got != want {
			t.Errorf("severityOf(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewAuditSink(t *testing.T) {
	capture := &recordCapture{}
	logger := audit.NewLogger(NewAuditSink(NewEventEmitterWithLogger(capture)))
	logger.LogEvent(context.Background(), auditdomain.Record{
		Kind:      auditdomain.KindSessionCreated,
		SubjectID: "u1",
		IP:        "1.2.3.4",
		Detail:    map[string]any{"session_ref": "sess_abcd1234"},
	})
	if capture.calls != 1 {
		t.Fatalf("emits = %d, want 1", capture.calls)
	}
	rec := capture.rec
	if rec.EventName() != auditdomain.KindSessionCreated || rec.SeverityText() != "info" {
		t.Errorf("record = %s/%s", rec.EventName(), rec.SeverityText())
	}
	attrs := attrsOf(rec)
	if attrs["subject_id"] != "u1" || attrs["ip"] != "1.2.3.4" || attrs["outcome"] != auditdomain.OutcomeSuccess || attrs["audit_id"] == "" {
		t.Errorf("attrs = %v", attrs)
	}
	var body audit.RecordJSON
	if err := json.Unmarshal([]byte(rec.Body().AsString()), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body.Detail["session_ref"] != "sess_abcd1234" {
		t.Errorf("body detail = %v", body.Detail)
	}

	// nil emitter and nil record are ignored.
	if err := NewAuditSink(nil).Write(context.Background(), &auditdomain.Record{}); err != nil {
		t.Errorf("nil emitter Write = %v", err)
	}
}
