package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"escrow-sentinel/internal/audit"
	auditdomain "escrow-sentinel/internal/audit/domain"
	"escrow-sentinel/internal/security"
	"escrow-sentinel/internal/session/domain"
	sessionrepo "escrow-sentinel/internal/session/repository"
)

// Defaults applied by NewManager when an Options field is zero.
const (
	DefaultAbsoluteTimeout = 8 * time.Hour
	DefaultIdleTimeout     = 30 * time.Minute
	DefaultMaxPerSubject   = 5
	DefaultExtension       = 60 * time.Minute
)

// Destroy reasons recorded on audit records and metrics.
const (
	ReasonLogout   = "logout"
	ReasonExpired  = "expired"
	ReasonIdle     = "idle"
	ReasonInactive = "inactive"
	ReasonEvicted  = "evicted"
	ReasonSweep    = "sweep"
	ReasonSubject  = "subject_logout"
)

// Options configures session lifetimes and the per-subject cap.
type Options struct {
	AbsoluteTimeout time.Duration
	IdleTimeout     time.Duration
	MaxPerSubject   int
}

func (o Options) withDefaults() Options {
	if o.AbsoluteTimeout <= 0 {
		o.AbsoluteTimeout = DefaultAbsoluteTimeout
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	if o.MaxPerSubject <= 0 {
		o.MaxPerSubject = DefaultMaxPerSubject
	}
	return o
}

// CreateParams is the authentication outcome a session is created from.
type CreateParams struct {
	SubjectID   string
	Email       string
	Role        string
	Permissions []string
	Origin      domain.Origin
	Metadata    map[string]any
}

// Manager owns the session lifecycle: creation with the per-subject cap, validated lookup,
// destroy, extend, metadata merge and the expiry sweep.
//
// mu serializes every read-check-mutate sequence so the table and index never diverge
// (e.g. cap enforcement, expiry check followed by destroy). Audit records are written after
// mu is released.
type Manager struct {
	mu          sync.Mutex
	repo        sessionrepo.Repository
	auditLogger audit.AuditLogger
	opts        Options
	nowF        func() time.Time
	idF         func() (string, error)

	created   metric.Int64Counter
	destroyed metric.Int64Counter
}

// NewManager returns a Manager over repo. auditLogger may be nil.
func NewManager(repo sessionrepo.Repository, auditLogger audit.AuditLogger, opts Options) *Manager {
	meter := otel.Meter("escrow-sentinel/session")
	created, _ := meter.Int64Counter("sessions.created",
		metric.WithDescription("Sessions created"))
	destroyed, _ := meter.Int64Counter("sessions.destroyed",
		metric.WithDescription("Sessions destroyed, by reason"))
	return &Manager{
		repo:        repo,
		auditLogger: auditLogger,
		opts:        opts.withDefaults(),
		nowF:        func() time.Time { return time.Now().UTC() },
		idF:         security.NewSessionID,
		created:     created,
		destroyed:   destroyed,
	}
}

// Options returns the effective options (defaults applied).
func (m *Manager) Options() Options {
	return m.opts
}

// CreateSession stores a new session for the subject and destroys the subject's oldest sessions
// beyond MaxPerSubject. The only error is failure to generate an id.
func (m *Manager) CreateSession(ctx context.Context, p CreateParams) (string, *domain.Session, error) {
	id, err := m.idF()
	if err != nil {
		return "", nil, fmt.Errorf("create session: %w", err)
	}
	var evicted []*domain.Session

	m.mu.Lock()
	now := m.nowF()
	s := &domain.Session{
		ID:           id,
		SubjectID:    p.SubjectID,
		Email:        p.Email,
		Role:         p.Role,
		Permissions:  append([]string(nil), p.Permissions...),
		Origin:       p.Origin,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(m.opts.AbsoluteTimeout),
		Active:       true,
		Metadata:     make(map[string]any, len(p.Metadata)),
	}
	for k, v := range p.Metadata {
		s.Metadata[k] = v
	}
	m.repo.Insert(ctx, s)
	evicted = m.enforceCapLocked(ctx, s.SubjectID, s.ID, now)
	m.mu.Unlock()

	m.created.Add(ctx, 1)
	m.logSession(ctx, auditdomain.KindSessionCreated, s, "")
	for _, e := range evicted {
		m.recordDestroy(ctx, auditdomain.KindSessionEvicted, e, ReasonEvicted)
	}
	return id, s.Clone(), nil
}

// enforceCapLocked destroys the subject's oldest live sessions until at most MaxPerSubject remain.
// keepID (the session just created) is never a candidate. Sessions that are already invalid are
// destroyed as well and count as evicted. Caller holds m.mu.
func (m *Manager) enforceCapLocked(ctx context.Context, subjectID, keepID string, now time.Time) []*domain.Session {
	list := m.repo.ListBySubject(ctx, subjectID)
	var removed []*domain.Session
	live := make([]*domain.Session, 0, len(list))
	for _, s := range list {
		if s.ID == keepID {
			continue
		}
		if !s.ValidAt(now, m.opts.IdleTimeout) {
			if d, ok := m.repo.Delete(ctx, s.ID); ok {
				removed = append(removed, d)
			}
			continue
		}
		live = append(live, s)
	}
	excess := len(live) + 1 - m.opts.MaxPerSubject
	for i := 0; i < excess && i < len(live); i++ {
		if d, ok := m.repo.Delete(ctx, live[i].ID); ok {
			removed = append(removed, d)
		}
	}
	return removed
}

// GetSession returns a copy of the session and refreshes its activity. Unknown, inactive,
// expired and idle sessions all resolve to nil, false; the invalid ones are destroyed first.
func (m *Manager) GetSession(ctx context.Context, id string) (*domain.Session, bool) {
	m.mu.Lock()
	s, ok, dead, reason := m.touchLocked(ctx, id, func(*domain.Session) {})
	m.mu.Unlock()
	if dead != nil {
		m.recordDestroy(ctx, auditdomain.KindSessionExpired, dead, reason)
	}
	return s, ok
}

// touchLocked validates id at now, destroying it if invalid, and otherwise applies fn and refreshes
// LastActivity. Caller holds m.mu.
func (m *Manager) touchLocked(ctx context.Context, id string, fn func(*domain.Session)) (s *domain.Session, ok bool, dead *domain.Session, reason string) {
	cur, found := m.repo.Get(ctx, id)
	if !found {
		return nil, false, nil, ""
	}
	now := m.nowF()
	if reason = invalidReason(cur, now, m.opts.IdleTimeout); reason != "" {
		dead, _ = m.repo.Delete(ctx, id)
		return nil, false, dead, reason
	}
	s, ok = m.repo.Update(ctx, id, func(stored *domain.Session) {
		fn(stored)
		stored.LastActivity = now
	})
	return s, ok, nil, ""
}

func invalidReason(s *domain.Session, now time.Time, idle time.Duration) string {
	switch {
	case !s.Active:
		return ReasonInactive
	case s.ExpiredAt(now):
		return ReasonExpired
	case s.IdleAt(now, idle):
		return ReasonIdle
	default:
		return ""
	}
}

// DestroySession removes the session. Idempotent; returns false if nothing was removed.
func (m *Manager) DestroySession(ctx context.Context, id string) bool {
	m.mu.Lock()
	s, ok := m.repo.Delete(ctx, id)
	m.mu.Unlock()
	if ok {
		m.recordDestroy(ctx, auditdomain.KindSessionDestroyed, s, ReasonLogout)
	}
	return ok
}

// DestroyAllForSubject removes every session indexed under subjectID and returns how many were removed.
func (m *Manager) DestroyAllForSubject(ctx context.Context, subjectID string) int {
	var removed []*domain.Session
	m.mu.Lock()
	for _, s := range m.repo.ListBySubject(ctx, subjectID) {
		if d, ok := m.repo.Delete(ctx, s.ID); ok {
			removed = append(removed, d)
		}
	}
	m.mu.Unlock()
	for _, s := range removed {
		m.recordDestroy(ctx, auditdomain.KindSessionDestroyed, s, ReasonSubject)
	}
	return len(removed)
}

// ExtendSession pushes the absolute expiry forward by extra (DefaultExtension when extra <= 0)
// and refreshes activity. Returns false if the session is absent or no longer valid.
func (m *Manager) ExtendSession(ctx context.Context, id string, extra time.Duration) bool {
	if extra <= 0 {
		extra = DefaultExtension
	}
	m.mu.Lock()
	_, ok, dead, reason := m.touchLocked(ctx, id, func(s *domain.Session) {
		s.ExpiresAt = s.ExpiresAt.Add(extra)
	})
	m.mu.Unlock()
	if dead != nil {
		m.recordDestroy(ctx, auditdomain.KindSessionExpired, dead, reason)
	}
	return ok
}

// UpdateMetadata merges partial into the session metadata and refreshes activity.
func (m *Manager) UpdateMetadata(ctx context.Context, id string, partial map[string]any) bool {
	m.mu.Lock()
	_, ok, dead, reason := m.touchLocked(ctx, id, func(s *domain.Session) {
		if s.Metadata == nil {
			s.Metadata = make(map[string]any, len(partial))
		}
		for k, v := range partial {
			s.Metadata[k] = v
		}
	})
	m.mu.Unlock()
	if dead != nil {
		m.recordDestroy(ctx, auditdomain.KindSessionExpired, dead, reason)
	}
	return ok
}

// ListActiveForSubject returns the subject's valid sessions, oldest first. It does not refresh activity.
func (m *Manager) ListActiveForSubject(ctx context.Context, subjectID string) []*domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.nowF()
	list := m.repo.ListBySubject(ctx, subjectID)
	out := make([]*domain.Session, 0, len(list))
	for _, s := range list {
		if s.ValidAt(now, m.opts.IdleTimeout) {
			out = append(out, s)
		}
	}
	return out
}

// CheckFingerprint reports drift between the session's origin and the current request origin.
// It never destroys the session.
func (m *Manager) CheckFingerprint(s *domain.Session, current domain.Origin) domain.FingerprintResult {
	return domain.CheckFingerprint(s, current)
}

// Sweep destroys every session past its absolute expiry, inactive, or idle beyond IdleTimeout,
// regardless of access pattern. Returns how many were destroyed.
func (m *Manager) Sweep(ctx context.Context) int {
	m.mu.Lock()
	now := m.nowF()
	expired := m.repo.DeleteExpired(ctx, now)
	stale := m.repo.DeleteWhere(ctx, func(s *domain.Session) bool {
		return !s.Active || s.IdleAt(now, m.opts.IdleTimeout)
	})
	m.mu.Unlock()
	for _, s := range expired {
		m.recordDestroy(ctx, auditdomain.KindSessionExpired, s, ReasonSweep)
	}
	for _, s := range stale {
		reason := ReasonIdle
		if !s.Active {
			reason = ReasonInactive
		}
		m.recordDestroy(ctx, auditdomain.KindSessionExpired, s, reason)
	}
	return len(expired) + len(stale)
}

// Stats returns the current table and index sizes.
func (m *Manager) Stats(ctx context.Context) sessionrepo.Stats {
	return m.repo.Stats(ctx)
}

func (m *Manager) recordDestroy(ctx context.Context, kind string, s *domain.Session, reason string) {
	m.destroyed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	m.logSession(ctx, kind, s, reason)
}

func (m *Manager) logSession(ctx context.Context, kind string, s *domain.Session, reason string) {
	if m.auditLogger == nil || s == nil {
		return
	}
	detail := map[string]any{
		"session_ref": security.SessionRef(s.ID),
		"expires_at":  s.ExpiresAt.Format(time.RFC3339),
	}
	if reason != "" {
		detail["reason"] = reason
	}
	m.auditLogger.LogEvent(ctx, auditdomain.Record{
		Kind:      kind,
		Severity:  "info",
		SubjectID: s.SubjectID,
		IP:        s.Origin.IP,
		UserAgent: s.Origin.UserAgent,
		Detail:    detail,
		Outcome:   auditdomain.OutcomeSuccess,
	})
}
