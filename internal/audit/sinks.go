package audit

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"escrow-sentinel/internal/audit/domain"
)

// LogSink writes each record as one JSON line through the standard logger.
type LogSink struct {
	logger *log.Logger
}

// NewLogSink returns a sink that writes to logger, or to the standard logger when logger is nil.
func NewLogSink(logger *log.Logger) *LogSink {
	if logger == nil {
		logger = log.Default()
	}
	return &LogSink{logger: logger}
}

// Write marshals rec and prints it with an "audit:" prefix.
func (s *LogSink) Write(_ context.Context, rec *domain.Record) error {
	b, err := MarshalRecord(rec)
	if err != nil {
		return err
	}
	s.logger.Printf("audit: %s", b)
	return nil
}

// MemorySink keeps records in memory. Intended for tests and local development.
type MemorySink struct {
	mu      sync.Mutex
	records []domain.Record
}

// NewMemorySink returns an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Write appends a copy of rec.
func (s *MemorySink) Write(_ context.Context, rec *domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *rec)
	return nil
}

// Records returns a copy of everything written so far.
func (s *MemorySink) Records() []domain.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Record, len(s.records))
	copy(out, s.records)
	return out
}

// Kinds returns the Kind of every record in write order.
func (s *MemorySink) Kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.records))
	for i := range s.records {
		out[i] = s.records[i].Kind
	}
	return out
}

// RecordJSON is the wire shape of a record, shared by the log and Kafka sinks.
type RecordJSON struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Severity  string         `json:"severity"`
	SubjectID string         `json:"subjectId,omitempty"`
	IP        string         `json:"ipAddress"`
	UserAgent string         `json:"userAgent,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	Outcome   string         `json:"outcome"`
	CreatedAt string         `json:"createdAt"`
}

func recordJSON(rec *domain.Record) RecordJSON {
	return RecordJSON{
		ID:        rec.ID,
		Kind:      rec.Kind,
		Severity:  rec.Severity,
		SubjectID: rec.SubjectID,
		IP:        rec.IP,
		UserAgent: rec.UserAgent,
		Detail:    rec.Detail,
		Outcome:   rec.Outcome,
		CreatedAt: rec.CreatedAt.Format(time.RFC3339Nano),
	}
}

// MarshalRecord encodes rec in the shared wire shape.
func MarshalRecord(rec *domain.Record) ([]byte, error) {
	return json.Marshal(recordJSON(rec))
}
