package identity

import (
	"context"
	"testing"
)

func TestWithIdentity_SetsAllValues(t *testing.T) {
	ctx := WithIdentity(context.Background(), "u1", "buyer", "sess_1")

	if v, ok := SubjectID(ctx); !ok || v != "u1" {
		t.Errorf("SubjectID = %q, %v; want u1, true", v, ok)
	}
	if v, ok := Role(ctx); !ok || v != "buyer" {
		t.Errorf("Role = %q, %v; want buyer, true", v, ok)
	}
	if v, ok := SessionID(ctx); !ok || v != "sess_1" {
		t.Errorf("SessionID = %q, %v; want sess_1, true", v, ok)
	}
}

func TestGetters_EmptyContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := SubjectID(ctx); ok {
		t.Error("SubjectID should be unset")
	}
	if _, ok := Role(ctx); ok {
		t.Error("Role should be unset")
	}
	if _, ok := SessionID(ctx); ok {
		t.Error("SessionID should be unset")
	}
}
