package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Event types pushed by callers or derived by the anomaly detector.
const (
	EventLoginFailure     = "login_failure"
	EventAPICall          = "api_call"
	EventDataAccess       = "data_access"
	EventConfigChange     = "config_change"
	EventResourceUsage    = "resource_usage"
	EventFailureSpike     = "failure_spike"
	EventAPISpike         = "api_spike"
	EventFingerprintDrift = "session_fingerprint_drift"
)

// Origin is the network origin of an event.
type Origin struct {
	IP        string
	UserAgent string
}

// Event is a normalized security event. Only kept in the engine's rolling window.
type Event struct {
	Type      string
	Severity  Severity
	SubjectID string
	Origin    Origin
	Detail    map[string]any
	Timestamp time.Time
}

// Field resolves a pattern/threshold field name. Top-level names (type, severity, subjectId,
// ipAddress, userAgent) win over detail keys of the same name.
func (e *Event) Field(name string) (any, bool) {
	switch name {
	case "type":
		return e.Type, true
	case "severity":
		return string(e.Severity), true
	case "subjectId":
		return e.SubjectID, e.SubjectID != ""
	case "ipAddress":
		return e.Origin.IP, e.Origin.IP != ""
	case "userAgent":
		return e.Origin.UserAgent, e.Origin.UserAgent != ""
	}
	v, ok := e.Detail[name]
	return v, ok
}

// StringValue renders a field value for equality matching: strings as-is, everything else via fmt.
func StringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

// NumberValue converts a detail value to float64. Numeric strings are accepted.
func NumberValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
