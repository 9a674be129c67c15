package repository

import (
	"context"
	"time"

	"escrow-sentinel/internal/session/domain"
)

// Repository holds sessions keyed by id plus a subject → session ids index.
// Every method is atomic with respect to the table and the index; returned sessions are copies.
type Repository interface {
	// Get returns the session for id, or nil, false if unknown.
	Get(ctx context.Context, id string) (*domain.Session, bool)
	// Insert stores s and indexes it under s.SubjectID. An existing session with the same id is replaced.
	Insert(ctx context.Context, s *domain.Session)
	// Delete removes id from the table and the index, pruning empty index entries.
	// Returns the removed session, or nil, false if it was not present.
	Delete(ctx context.Context, id string) (*domain.Session, bool)
	// Update applies fn to the stored session and returns the updated copy. fn must not change ID or SubjectID.
	Update(ctx context.Context, id string, fn func(*domain.Session)) (*domain.Session, bool)
	// ListBySubject returns every session indexed under subjectID, oldest first.
	ListBySubject(ctx context.Context, subjectID string) []*domain.Session
	// DeleteExpired removes every session whose absolute expiry is at or before now.
	DeleteExpired(ctx context.Context, now time.Time) []*domain.Session
	// DeleteWhere removes every session for which match returns true.
	DeleteWhere(ctx context.Context, match func(*domain.Session) bool) []*domain.Session
	// Stats returns the number of sessions and indexed subjects.
	Stats(ctx context.Context) Stats
}

// Stats is a point-in-time size of the store.
type Stats struct {
	Sessions int
	Subjects int
}
