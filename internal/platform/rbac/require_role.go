// Package rbac answers authorization questions about the caller in a request context.
package rbac

import (
	"context"
	"errors"

	"escrow-sentinel/internal/platform/identity"
)

// Roles with access to security operations.
const (
	RoleAdmin    = "admin"
	RoleSecurity = "security"
)

var (
	// ErrUnauthenticated means the context carries no subject.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden means the subject lacks the required role.
	ErrForbidden = errors.New("insufficient role")
)

// RequireRole ensures the caller is authenticated and holds one of roles.
// Returns the caller's subject id on success.
func RequireRole(ctx context.Context, roles ...string) (string, error) {
	subjectID, ok := identity.SubjectID(ctx)
	if !ok || subjectID == "" {
		return "", ErrUnauthenticated
	}
	role, _ := identity.Role(ctx)
	for _, r := range roles {
		if role == r {
			return subjectID, nil
		}
	}
	return "", ErrForbidden
}

// RequireSelfOrRole allows the caller when it is subjectID itself or holds one of roles.
func RequireSelfOrRole(ctx context.Context, subjectID string, roles ...string) (string, error) {
	caller, ok := identity.SubjectID(ctx)
	if !ok || caller == "" {
		return "", ErrUnauthenticated
	}
	if caller == subjectID {
		return caller, nil
	}
	return RequireRole(ctx, roles...)
}
