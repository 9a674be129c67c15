package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"escrow-sentinel/internal/audit/domain"
)

func TestLogger_FillsDefaults(t *testing.T) {
	sink := NewMemorySink()
	l := NewLogger(sink)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	l.nowF = func() time.Time { return at }

	l.LogEvent(context.Background(), domain.Record{Kind: domain.KindSessionCreated, SubjectID: "u1"})

	recs := sink.Records()
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	r := recs[0]
	if r.ID == "" {
		t.Error("ID should be generated")
	}
	if !r.CreatedAt.Equal(at) {
		t.Errorf("CreatedAt = %v, want %v", r.CreatedAt, at)
	}
	if r.Severity != "info" || r.Outcome != domain.OutcomeSuccess || r.IP != "unknown" {
		t.Errorf("defaults = %q/%q/%q", r.Severity, r.Outcome, r.IP)
	}
}

func TestLogger_KeepsProvidedFields(t *testing.T) {
	sink := NewMemorySink()
	at := time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)
	NewLogger(sink).LogEvent(context.Background(), domain.Record{
		ID:        "fixed",
		Kind:      domain.KindAlertCreated,
		Severity:  "high",
		IP:        "1.2.3.4",
		Outcome:   domain.OutcomeFailure,
		CreatedAt: at,
	})
	r := sink.Records()[0]
	if r.ID != "fixed" || r.Severity != "high" || r.IP != "1.2.3.4" || r.Outcome != domain.OutcomeFailure || !r.CreatedAt.Equal(at) {
		t.Errorf("record = %+v", r)
	}
}

func TestLogger_SinkErrorDoesNotStopOthers(t *testing.T) {
	failing := SinkFunc(func(context.Context, *domain.Record) error { return errors.New("disk full") })
	sink := NewMemorySink()
	l := NewLogger(failing, nil, sink)

	l.LogEvent(context.Background(), domain.Record{Kind: domain.KindSessionDestroyed})

	if kinds := sink.Kinds(); len(kinds) != 1 || kinds[0] != domain.KindSessionDestroyed {
		t.Errorf("kinds = %v", kinds)
	}
}

func TestLogger_NoSinks(t *testing.T) {
	NewLogger().LogEvent(context.Background(), domain.Record{Kind: "x"})
	var l *Logger
	l.LogEvent(context.Background(), domain.Record{Kind: "x"})
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(log.New(&buf, "", 0))
	err := sink.Write(context.Background(), &domain.Record{
		ID:        "a1",
		Kind:      domain.KindSessionEvicted,
		Severity:  "info",
		SubjectID: "u1",
		IP:        "1.2.3.4",
		Detail:    map[string]any{"session_ref": "sess_0123abcd"},
		Outcome:   domain.OutcomeSuccess,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	line := strings.TrimSpace(buf.String())
	if !strings.HasPrefix(line, "audit: ") {
		t.Fatalf("line = %q, want audit: prefix", line)
	}
	var got RecordJSON
	if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "audit: ")), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Kind != domain.KindSessionEvicted || got.SubjectID != "u1" || got.CreatedAt != "2026-01-01T00:00:00Z" {
		t.Errorf("record = %+v", got)
	}
	if got.Detail["session_ref"] != "sess_0123abcd" {
		t.Errorf("detail = %v", got.Detail)
	}
}

func TestMemorySink_RecordsAreCopies(t *testing.T) {
	sink := NewMemorySink()
	_ = sink.Write(context.Background(), &domain.Record{Kind: "a"})
	recs := sink.Records()
	recs[0].Kind = "mutated"
	if sink.Kinds()[0] != "a" {
		t.Error("Records must return a copy")
	}
}
