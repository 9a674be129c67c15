package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"escrow-sentinel/internal/audit/domain"
)

type gatedSink struct {
	gate chan struct{}
	mu   sync.Mutex
	ids  []string
}

func (s *gatedSink) Write(_ context.Context, rec *domain.Record) error {
	<-s.gate
	s.mu.Lock()
	s.ids = append(s.ids, rec.ID)
	s.mu.Unlock()
	return nil
}

func (s *gatedSink) written() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ids...)
}

func TestAsyncSink_DrainsInOrderOnClose(t *testing.T) {
	next := &gatedSink{gate: make(chan struct{})}
	s := NewAsyncSink(next, 4)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := s.Write(ctx, &domain.Record{ID: id}); err != nil {
			t.Fatalf("Write(%s): %v", id, err)
		}
	}
	close(next.gate)

	closeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := s.Close(closeCtx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	got := next.written()
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("written = %v, want [a b c]", got)
	}
	if err := s.Write(ctx, &domain.Record{ID: "d"}); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("Write after Close = %v, want ErrSinkClosed", err)
	}
	if err := s.Close(closeCtx); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestAsyncSink_DropsWhenFull(t *testing.T) {
	next := &gatedSink{gate: make(chan struct{})}
	s := NewAsyncSink(next, 1)
	ctx := context.Background()

	// The worker takes the first record and blocks on the gate; the second fills the queue.
	if err := s.Write(ctx, &domain.Record{ID: "a"}); err != nil {
		t.Fatalf("Write(a): %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for len(s.queue) != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := s.Write(ctx, &domain.Record{ID: "b"}); err != nil {
		t.Fatalf("Write(b): %v", err)
	}
	if err := s.Write(ctx, &domain.Record{ID: "c"}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Write(c) = %v, want ErrQueueFull", err)
	}
	close(next.gate)
	closeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := s.Close(closeCtx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := next.written(); len(got) != 2 {
		t.Errorf("written = %v, want a and b", got)
	}
}

func TestAsyncSink_CloseHonoursContext(t *testing.T) {
	next := &gatedSink{gate: make(chan struct{})}
	defer close(next.gate)
	s := NewAsyncSink(next, 1)
	_ = s.Write(context.Background(), &domain.Record{ID: "a"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := s.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close = %v, want deadline exceeded", err)
	}
}
