package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// sessionIDBytes is the amount of randomness in a session id (256 bits).
const sessionIDBytes = 32

// SessionIDPrefix marks opaque session ids so they are recognisable in logs and cookies.
const SessionIDPrefix = "sess_"

// NewSessionID returns an unguessable opaque session id: SessionIDPrefix followed by 64 hex chars.
func NewSessionID() (string, error) {
	token, err := randomHex(sessionIDBytes)
	if err != nil {
		return "", fmt.Errorf("session id: %w", err)
	}
	return SessionIDPrefix + token, nil
}

// LooksLikeSessionID reports whether id has the shape produced by NewSessionID.
// Used to reject garbage cookie values before a store lookup.
func LooksLikeSessionID(id string) bool {
	if len(id) != len(SessionIDPrefix)+2*sessionIDBytes || id[:len(SessionIDPrefix)] != SessionIDPrefix {
		return false
	}
	_, err := hex.DecodeString(id[len(SessionIDPrefix):])
	return err == nil
}

// SessionRef shortens a session id for logs and listings. The full id is a bearer credential.
func SessionRef(id string) string {
	const keep = len(SessionIDPrefix) + 8
	if len(id) <= keep {
		return id
	}
	return id[:keep]
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
