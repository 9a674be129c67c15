package security

import (
	"strings"
	"testing"
)

func TestNewSessionID_Format(t *testing.T) {
	id, err := NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID: %v", err)
	}
	if !strings.HasPrefix(id, SessionIDPrefix) {
		t.Errorf("id = %q, want prefix %q", id, SessionIDPrefix)
	}
	if len(id) != len(SessionIDPrefix)+64 {
		t.Errorf("len(id) = %d, want %d", len(id), len(SessionIDPrefix)+64)
	}
	if !LooksLikeSessionID(id) {
		t.Errorf("LooksLikeSessionID(%q) = false", id)
	}
}

func TestNewSessionID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, err := NewSessionID()
		if err != nil {
			t.Fatalf("NewSessionID: %v", err)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q after %d ids", id, i)
		}
		seen[id] = true
	}
}

func TestLooksLikeSessionID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"empty", "", false},
		{"no prefix", strings.Repeat("a", 69), false},
		{"short", SessionIDPrefix + "abcd", false},
		{"not hex", SessionIDPrefix + strings.Repeat("z", 64), false},
		{"valid", SessionIDPrefix + strings.Repeat("0f", 32), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LooksLikeSessionID(tt.id); got != tt.want {
				t.Errorf("LooksLikeSessionID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestSessionRef(t *testing.T) {
	id := SessionIDPrefix + strings.Repeat("ab", 32)
	if got, want := SessionRef(id), SessionIDPrefix+"abababab"; got != want {
		t.Errorf("SessionRef = %q, want %q", got, want)
	}
	if got := SessionRef("short"); got != "short" {
		t.Errorf("SessionRef(short) = %q, want short", got)
	}
}
