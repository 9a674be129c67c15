package repository

import (
	"context"
	"sync"
	"time"

	"escrow-sentinel/internal/alerting/domain"
	"escrow-sentinel/internal/platform/ring"
)

// Default capacities for the in-memory stores.
const (
	DefaultAlertCapacity  = 10000
	DefaultMetricCapacity = 50000
)

// MemoryAlertRepository keeps alerts in a bounded ring with an id index.
// When full, the oldest alert is dropped to make room.
type MemoryAlertRepository struct {
	mu   sync.RWMutex
	ring *ring.Buffer[*domain.Alert]
	byID map[string]*domain.Alert
}

// NewMemoryAlertRepository returns a store holding at most capacity alerts (DefaultAlertCapacity if <= 0).
func NewMemoryAlertRepository(capacity int) *MemoryAlertRepository {
	if capacity <= 0 {
		capacity = DefaultAlertCapacity
	}
	return &MemoryAlertRepository{
		ring: ring.New[*domain.Alert](capacity),
		byID: make(map[string]*domain.Alert),
	}
}

// Add stores a copy of a.
func (r *MemoryAlertRepository) Add(ctx context.Context, a *domain.Alert) {
	if a == nil || a.ID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c := a.Clone()
	if old, evicted := r.ring.Push(c); evicted {
		delete(r.byID, old.ID)
	}
	r.byID[c.ID] = c
}

// Get returns a copy of the alert.
func (r *MemoryAlertRepository) Get(ctx context.Context, id string) (*domain.Alert, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return a.Clone(), true
}

// Update mutates the stored alert in place. ID and Timestamp are preserved.
func (r *MemoryAlertRepository) Update(ctx context.Context, id string, fn func(*domain.Alert)) (*domain.Alert, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	ts := a.Timestamp
	fn(a)
	a.ID = id
	a.Timestamp = ts
	return a.Clone(), true
}

// Recent returns up to n alerts, newest first.
func (r *MemoryAlertRepository) Recent(ctx context.Context, n int) []*domain.Alert {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.ring.Last(n)
	out := make([]*domain.Alert, len(list))
	for i, a := range list {
		out[i] = a.Clone()
	}
	return out
}

// Summary counts alerts by severity and open/resolved state.
func (r *MemoryAlertRepository) Summary(ctx context.Context) Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Summary{BySeverity: make(map[domain.Severity]int, len(domain.Severities))}
	for _, sev := range domain.Severities {
		s.BySeverity[sev] = 0
	}
	r.ring.Each(func(a *domain.Alert) bool {
		s.Total++
		s.BySeverity[a.Severity]++
		if a.Status.Open() {
			s.Open++
		} else {
			s.Resolved++
		}
		return true
	})
	return s
}

// DeleteOlderThan removes alerts created before cutoff.
func (r *MemoryAlertRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := r.ring.RemoveFunc(func(a *domain.Alert) bool { return a.Timestamp.Before(cutoff) })
	for _, a := range removed {
		delete(r.byID, a.ID)
	}
	return len(removed)
}

// MemoryMetricRepository keeps metric samples in a bounded ring.
type MemoryMetricRepository struct {
	mu   sync.RWMutex
	ring *ring.Buffer[domain.Metric]
}

// NewMemoryMetricRepository returns a store holding at most capacity samples (DefaultMetricCapacity if <= 0).
func NewMemoryMetricRepository(capacity int) *MemoryMetricRepository {
	if capacity <= 0 {
		capacity = DefaultMetricCapacity
	}
	return &MemoryMetricRepository{ring: ring.New[domain.Metric](capacity)}
}

func copyTags(tags map[string]string) map[string]string {
	if tags == nil {
		return nil
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}

// Add stores m; tags are copied.
func (r *MemoryMetricRepository) Add(ctx context.Context, m domain.Metric) {
	m.Tags = copyTags(m.Tags)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ring.Push(m)
}

// Recent returns copies of up to n samples, newest first.
func (r *MemoryMetricRepository) Recent(ctx context.Context, n int) []domain.Metric {
	r.mu.RLock()
	out := r.ring.Last(n)
	r.mu.RUnlock()
	for i := range out {
		out[i].Tags = copyTags(out[i].Tags)
	}
	return out
}

// DeleteOlderThan removes samples taken before cutoff.
func (r *MemoryMetricRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ring.RemoveFunc(func(m domain.Metric) bool { return m.Timestamp.Before(cutoff) }))
}

// Len returns the number of stored samples.
func (r *MemoryMetricRepository) Len(ctx context.Context) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ring.Len()
}
