package repository

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"escrow-sentinel/internal/session/domain"
)

// MemoryRepository is an in-memory Repository. A single RWMutex covers the table, the subject
// index and the expiry heap so no caller can observe one updated without the others.
type MemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	index    map[string]map[string]struct{}
	expiry   expiryHeap
	items    map[string]*expiryItem
}

// NewMemoryRepository returns an empty in-memory session repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]*domain.Session),
		index:    make(map[string]map[string]struct{}),
		items:    make(map[string]*expiryItem),
	}
}

// Get returns a copy of the session for id.
func (r *MemoryRepository) Get(ctx context.Context, id string) (*domain.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// Insert stores a copy of s.
func (r *MemoryRepository) Insert(ctx context.Context, s *domain.Session) {
	if s == nil || s.ID == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.ID]; exists {
		r.deleteLocked(s.ID)
	}
	c := s.Clone()
	r.sessions[c.ID] = c
	ids, ok := r.index[c.SubjectID]
	if !ok {
		ids = make(map[string]struct{})
		r.index[c.SubjectID] = ids
	}
	ids[c.ID] = struct{}{}
	item := &expiryItem{id: c.ID, at: c.ExpiresAt}
	heap.Push(&r.expiry, item)
	r.items[c.ID] = item
}

// Delete removes id from the table, the index and the expiry heap.
func (r *MemoryRepository) Delete(ctx context.Context, id string) (*domain.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteLocked(id)
}

func (r *MemoryRepository) deleteLocked(id string) (*domain.Session, bool) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	delete(r.sessions, id)
	if ids, ok := r.index[s.SubjectID]; ok {
		delete(ids, id)
		if len(ids) == 0 {
			delete(r.index, s.SubjectID)
		}
	}
	if item, ok := r.items[id]; ok {
		heap.Remove(&r.expiry, item.index)
		delete(r.items, id)
	}
	return s, true
}

// Update applies fn to the stored session and re-sorts the expiry heap if ExpiresAt moved.
func (r *MemoryRepository) Update(ctx context.Context, id string, fn func(*domain.Session)) (*domain.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	subjectID := s.SubjectID
	fn(s)
	s.ID = id
	s.SubjectID = subjectID
	if item, ok := r.items[id]; ok && !item.at.Equal(s.ExpiresAt) {
		item.at = s.ExpiresAt
		heap.Fix(&r.expiry, item.index)
	}
	return s.Clone(), true
}

// ListBySubject returns copies of the subject's sessions, oldest first.
// Index entries that no longer resolve to a session are pruned.
func (r *MemoryRepository) ListBySubject(ctx context.Context, subjectID string) []*domain.Session {
	r.mu.RLock()
	ids := r.index[subjectID]
	out := make([]*domain.Session, 0, len(ids))
	dangling := false
	for id := range ids {
		s, ok := r.sessions[id]
		if !ok {
			dangling = true
			continue
		}
		out = append(out, s.Clone())
	}
	r.mu.RUnlock()
	if dangling {
		r.pruneIndex(subjectID)
	}
	domain.SortByCreated(out)
	return out
}

func (r *MemoryRepository) pruneIndex(subjectID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := r.index[subjectID]
	for id := range ids {
		if _, ok := r.sessions[id]; !ok {
			delete(ids, id)
		}
	}
	if len(ids) == 0 {
		delete(r.index, subjectID)
	}
}

// DeleteExpired pops the expiry heap up to now and removes those sessions.
func (r *MemoryRepository) DeleteExpired(ctx context.Context, now time.Time) []*domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []*domain.Session
	for r.expiry.Len() > 0 && !now.Before(r.expiry[0].at) {
		id := r.expiry[0].id
		if s, ok := r.deleteLocked(id); ok {
			removed = append(removed, s)
			continue
		}
		// Heap item without a session: drop it so the loop makes progress.
		heap.Pop(&r.expiry)
		delete(r.items, id)
	}
	return removed
}

// DeleteWhere scans the table and removes matching sessions.
func (r *MemoryRepository) DeleteWhere(ctx context.Context, match func(*domain.Session) bool) []*domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, s := range r.sessions {
		if match(s) {
			ids = append(ids, id)
		}
	}
	removed := make([]*domain.Session, 0, len(ids))
	for _, id := range ids {
		if s, ok := r.deleteLocked(id); ok {
			removed = append(removed, s)
		}
	}
	return removed
}

// Stats returns table and index sizes.
func (r *MemoryRepository) Stats(ctx context.Context) Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{Sessions: len(r.sessions), Subjects: len(r.index)}
}

type expiryItem struct {
	id    string
	at    time.Time
	index int
}

// expiryHeap is a min-heap of sessions by absolute expiry.
type expiryHeap []*expiryItem

func (h expiryHeap) Len() int { return len(h) }

func (h expiryHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].id < h[j].id
	}
	return h[i].at.Before(h[j].at)
}

func (h expiryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *expiryHeap) Push(x any) {
	item := x.(*expiryItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}
