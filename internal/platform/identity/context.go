// Package identity carries the authenticated caller through a request context.
package identity

import "context"

type contextKey struct{ name string }

var (
	subjectIDKey = contextKey{"subject_id"}
	roleKey      = contextKey{"role"}
	sessionIDKey = contextKey{"session_id"}
)

// WithIdentity returns a context with subject_id, role and session_id set.
// Handlers read these via SubjectID, Role and SessionID.
func WithIdentity(ctx context.Context, subjectID, role, sessionID string) context.Context {
	ctx = context.WithValue(ctx, subjectIDKey, subjectID)
	ctx = context.WithValue(ctx, roleKey, role)
	ctx = context.WithValue(ctx, sessionIDKey, sessionID)
	return ctx
}

// SubjectID returns the subject_id from context and true if set; otherwise "", false.
func SubjectID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(subjectIDKey).(string)
	return v, ok
}

// Role returns the role from context and true if set; otherwise "", false.
func Role(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(roleKey).(string)
	return v, ok
}

// SessionID returns the session_id from context and true if set; otherwise "", false.
func SessionID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(sessionIDKey).(string)
	return v, ok
}
