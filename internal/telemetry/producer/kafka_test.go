package producer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"escrow-sentinel/internal/audit"
	"escrow-sentinel/internal/audit/domain"
)

type fakeWriter struct {
	msgs     []kafka.Message
	err      error
	closed   int
	deadline bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	_, w.deadline = ctx.Deadline()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed++
	return nil
}

func TestNewKafkaProducer_Optional(t *testing.T) {
	if p := NewKafkaProducer(nil, "topic"); p != nil {
		t.Error("no brokers should return nil")
	}
	if p := NewKafkaProducer([]string{"localhost:9092"}, ""); p != nil {
		t.Error("empty topic should return nil")
	}
	p := NewKafkaProducer([]string{"localhost:9092"}, "escrow-audit")
	if p == nil {
		t.Fatal("NewKafkaProducer returned nil")
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestKafkaProducer_Write(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaProducer{writer: w, topic: "escrow-audit"}
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	rec := &domain.Record{
		ID:        "a1",
		Kind:      domain.KindSessionDestroyed,
		Severity:  "info",
		SubjectID: "u1",
		IP:        "1.2.3.4",
		Outcome:   domain.OutcomeSuccess,
		CreatedAt: at,
	}
	if err := p.Write(context.Background(), rec); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "u1" || !msg.Time.Equal(at) {
		t.Errorf("key = %q time = %v", msg.Key, msg.Time)
	}
	if !w.deadline {
		t.Error("write context should carry a deadline")
	}
	var body audit.RecordJSON
	if err := json.Unmarshal(msg.Value, &body); err != nil {
		t.Fatalf("value is not JSON: %v", err)
	}
	if body.Kind != domain.KindSessionDestroyed || body.IP != "1.2.3.4" {
		t.Errorf("body = %+v", body)
	}

	if err := p.Write(context.Background(), &domain.Record{Kind: "x"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if w.msgs[1].Key != nil {
		t.Errorf("key = %q, want nil without subject", w.msgs[1].Key)
	}
}

func TestKafkaProducer_WriteError(t *testing.T) {
	p := &KafkaProducer{writer: &fakeWriter{err: errors.New("broker down")}}
	if err := p.Write(context.Background(), &domain.Record{Kind: "x"}); err == nil {
		t.Error("Write should return the writer error")
	}
}

func TestKafkaProducer_NilSafe(t *testing.T) {
	var p *KafkaProducer
	if err := p.Write(context.Background(), &domain.Record{}); err != nil {
		t.Errorf("nil Write = %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("nil Close = %v", err)
	}
	w := &fakeWriter{}
	p = &KafkaProducer{writer: w}
	if err := p.Write(context.Background(), nil); err != nil || len(w.msgs) != 0 {
		t.Errorf("Write(nil) = %v, messages = %d", err, len(w.msgs))
	}
	_ = p.Close()
	if w.closed != 1 {
		t.Errorf("closed = %d, want 1", w.closed)
	}
}

type blockingWriter struct {
	release chan struct{}
	written chan kafka.Message
	ctxErr  error
}

func (w *blockingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	<-w.release
	w.ctxErr = ctx.Err()
	for _, m := range msgs {
		w.written <- m
	}
	return nil
}

func (w *blockingWriter) Close() error { return nil }

func TestKafkaProducer_AsyncAuditDoesNotBlock(t *testing.T) {
	w := &blockingWriter{release: make(chan struct{}), written: make(chan kafka.Message, 1)}
	p := &KafkaProducer{writer: w, topic: "escrow-audit"}
	sink := audit.NewAsyncSink(p, 8)
	logger := audit.NewLogger(sink)

	reqCtx, cancel := context.WithCancel(context.Background())
	returned := make(chan struct{})
	go func() {
		logger.LogEvent(reqCtx, domain.Record{Kind: domain.KindSessionCreated, SubjectID: "u1"})
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("LogEvent blocked on the kafka write")
	}
	cancel()
	close(w.release)

	select {
	case m := <-w.written:
		if string(m.Key) != "u1" {
			t.Errorf("key = %q, want u1", m.Key)
		}
	case <-time.After(time.Second):
		t.Fatal("record never reached kafka")
	}
	closeCtx, closeCancel := context.WithTimeout(context.Background(), time.Second)
	defer closeCancel()
	if err := sink.Close(closeCtx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if w.ctxErr != nil {
		t.Errorf("kafka write context err = %v, want nil after the request was cancelled", w.ctxErr)
	}
}
