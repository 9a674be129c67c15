package domain

import (
	"sort"
	"time"
)

// Origin is where a request came from.
type Origin struct {
	IP        string
	UserAgent string
}

// Session binds an opaque id to an authenticated subject for a bounded lifetime.
type Session struct {
	ID           string
	SubjectID    string
	Email        string
	Role         string
	Permissions  []string
	Origin       Origin
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time // absolute expiry; always after CreatedAt
	Active       bool
	Metadata     map[string]any
}

// Clone returns a copy that shares no slices or maps with s. Metadata values are copied shallowly.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.Permissions != nil {
		c.Permissions = append([]string(nil), s.Permissions...)
	}
	if s.Metadata != nil {
		c.Metadata = make(map[string]any, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// ExpiredAt reports whether the absolute lifetime has elapsed at now.
func (s *Session) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// IdleAt reports whether more than idle has passed since the last validated access.
// A non-positive idle disables the check.
func (s *Session) IdleAt(now time.Time, idle time.Duration) bool {
	return idle > 0 && now.Sub(s.LastActivity) > idle
}

// ValidAt reports whether the session may be returned by a lookup at now.
func (s *Session) ValidAt(now time.Time, idle time.Duration) bool {
	return s.Active && !s.ExpiredAt(now) && !s.IdleAt(now, idle)
}

// SortByCreated orders sessions oldest first; ties are broken by id so the order is deterministic.
func SortByCreated(list []*Session) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}
