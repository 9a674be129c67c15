package domain

import "time"

// Record kinds emitted by the session manager, the alert engine and the HTTP layer.
const (
	KindSessionCreated     = "session_created"
	KindSessionDestroyed   = "session_destroyed"
	KindSessionEvicted     = "session_evicted"
	KindSessionExpired     = "session_expired"
	KindAlertCreated       = "alert_created"
	KindAlertStatusChanged = "alert_status_changed"
	KindHTTPRequest        = "http_request"
)

// Outcome values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Record is a single audit record handed to the audit sink. Storage and format belong to the sink.
type Record struct {
	ID        string
	Kind      string
	Severity  string
	SubjectID string
	IP        string
	UserAgent string
	Detail    map[string]any
	Outcome   string
	CreatedAt time.Time
}
