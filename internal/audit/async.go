package audit

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"escrow-sentinel/internal/audit/domain"
)

// DefaultAsyncQueue is the queue length used by NewAsyncSink when capacity <= 0.
const DefaultAsyncQueue = 1024

// asyncWriteTimeout bounds one write to the wrapped sink.
const asyncWriteTimeout = 5 * time.Second

var (
	// ErrQueueFull is returned by AsyncSink.Write when the record was dropped.
	ErrQueueFull = errors.New("audit: async queue full")
	// ErrSinkClosed is returned by AsyncSink.Write after Close.
	ErrSinkClosed = errors.New("audit: async sink closed")
)

// AsyncSink hands records to a wrapped sink from one background worker so the caller never
// waits on it. Records keep their order. When the queue is full the record is dropped.
// Writes to the wrapped sink use context.Background() with a timeout, so a cancelled request
// does not abort them.
type AsyncSink struct {
	next    Sink
	queue   chan domain.Record
	timeout time.Duration
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewAsyncSink starts the worker for next. Call Close to drain it.
func NewAsyncSink(next Sink, capacity int) *AsyncSink {
	if capacity <= 0 {
		capacity = DefaultAsyncQueue
	}
	s := &AsyncSink{
		next:    next,
		queue:   make(chan domain.Record, capacity),
		timeout: asyncWriteTimeout,
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for rec := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		if err := s.next.Write(ctx, &rec); err != nil {
			log.Printf("audit: async write of %s record %s failed: %v", rec.Kind, rec.ID, err)
		}
		cancel()
	}
}

// Write queues a copy of rec without blocking.
func (s *AsyncSink) Write(_ context.Context, rec *domain.Record) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.queue <- *rec:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting records and waits until the queued ones are written or ctx is done.
// Safe to call more than once.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
