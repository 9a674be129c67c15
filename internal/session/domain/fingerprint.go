package domain

// FingerprintResult is the drift verdict for a session against the current request origin.
type FingerprintResult struct {
	IPChanged        bool
	UserAgentChanged bool
}

// Mismatch is true when either the IP or the user agent differs.
func (r FingerprintResult) Mismatch() bool {
	return r.IPChanged || r.UserAgentChanged
}

// CheckFingerprint compares the origin recorded at creation with current. It never mutates s;
// what to do about drift is the caller's decision. Empty values on the current request are not
// treated as drift.
func CheckFingerprint(s *Session, current Origin) FingerprintResult {
	if s == nil {
		return FingerprintResult{}
	}
	return FingerprintResult{
		IPChanged:        current.IP != "" && current.IP != s.Origin.IP,
		UserAgentChanged: current.UserAgent != "" && current.UserAgent != s.Origin.UserAgent,
	}
}
