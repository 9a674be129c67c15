// Package sweep runs periodic maintenance tasks on independent tickers.
package sweep

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
)

// Task is one periodic job. Run is called once per Interval until the scheduler stops.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs tasks concurrently. A failing or panicking tick is logged and does not stop
// later ticks of the same task or any other task.
type Scheduler struct {
	tasks []Task
}

// New returns a scheduler. Tasks with a non-positive interval or nil Run are rejected.
func New(tasks ...Task) (*Scheduler, error) {
	for _, t := range tasks {
		if t.Interval <= 0 || t.Run == nil {
			return nil, fmt.Errorf("sweep: task %q needs a positive interval and a run func", t.Name)
		}
	}
	return &Scheduler{tasks: append([]Task(nil), tasks...)}, nil
}

// Run blocks until ctx is done. It always returns nil so it can share an errgroup with servers.
func (s *Scheduler) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range s.tasks {
		t := t
		g.Go(func() error {
			loop(ctx, t)
			return nil
		})
	}
	return g.Wait()
}

func loop(ctx context.Context, t Task) {
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce(ctx, t)
		}
	}
}

// runOnce executes a single tick, converting a panic into a log line.
func runOnce(ctx context.Context, t Task) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("sweep: %s panicked: %v\n%s", t.Name, r, debug.Stack())
		}
	}()
	if err := t.Run(ctx); err != nil {
		log.Printf("sweep: %s failed: %v", t.Name, err)
	}
}
