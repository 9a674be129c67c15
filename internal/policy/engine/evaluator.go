package engine

import "context"

// Drift actions.
const (
	ActionAllow   = "allow"
	ActionDestroy = "destroy"
)

// DriftInput describes a request whose origin differs from the one its session was created with.
type DriftInput struct {
	IPChanged        bool
	UserAgentChanged bool
	SubjectID        string
	Role             string
	SessionAge       float64 // seconds
	RequestIP        string
	RequestUserAgent string
}

// DriftDecision is the policy verdict for a drifted request.
type DriftDecision struct {
	// Action is ActionAllow or ActionDestroy.
	Action string `json:"action"`
	// RaiseEvent asks the caller to push a session_fingerprint_drift security event.
	RaiseEvent bool   `json:"raise_event"`
	Severity   string `json:"severity"`
	Reason     string `json:"reason"`
}

// DriftEvaluator decides what happens to a session when its fingerprint drifts.
type DriftEvaluator interface {
	EvaluateDrift(ctx context.Context, in DriftInput) (DriftDecision, error)
}
