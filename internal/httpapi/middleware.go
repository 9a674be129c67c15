package httpapi

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"escrow-sentinel/internal/alerting/domain"
	"escrow-sentinel/internal/platform/identity"
	"escrow-sentinel/internal/platform/ratelimit"
	"escrow-sentinel/internal/platform/rbac"
	policyengine "escrow-sentinel/internal/policy/engine"
	"escrow-sentinel/internal/security"
	sessiondomain "escrow-sentinel/internal/session/domain"
)

const sessionKey = "escrow_session"

// sessionID returns the session id from the cookie, falling back to the X-Session-ID header.
func (h *handler) sessionID(c *gin.Context) string {
	if v, err := c.Cookie(h.cookieName); err == nil && v != "" {
		return v
	}
	return strings.TrimSpace(c.GetHeader(SessionHeader))
}

func requestOrigin(c *gin.Context) sessiondomain.Origin {
	return sessiondomain.Origin{IP: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}

// requireSession resolves and validates the caller's session, applies the fingerprint drift
// policy, records an api_call security event and puts the identity into the request context.
// Unknown, expired and evicted sessions all get the same 401.
func (h *handler) requireSession(c *gin.Context) {
	ctx := c.Request.Context()
	id := h.sessionID(c)
	if !security.LooksLikeSessionID(id) {
		errorJSON(c, http.StatusUnauthorized, "session required")
		return
	}
	s, ok := h.sessions.GetSession(ctx, id)
	if !ok {
		h.clearCookie(c)
		errorJSON(c, http.StatusUnauthorized, "session required")
		return
	}

	origin := requestOrigin(c)
	if fp := h.sessions.CheckFingerprint(s, origin); fp.Mismatch() {
		if !h.handleDrift(c, s, origin, fp) {
			return
		}
	}

	h.alerts.ProcessEvent(ctx, domain.Event{
		Type:      domain.EventAPICall,
		Severity:  domain.SeverityLow,
		SubjectID: s.SubjectID,
		Origin:    domain.Origin{IP: origin.IP, UserAgent: origin.UserAgent},
		Detail:    map[string]any{"method": c.Request.Method, "route": c.FullPath()},
		Timestamp: h.nowF(),
	})

	c.Request = c.Request.WithContext(identity.WithIdentity(ctx, s.SubjectID, s.Role, s.ID))
	c.Set(sessionKey, s)
	c.Next()
}

// handleDrift evaluates the drift policy. It returns false when the request was rejected.
func (h *handler) handleDrift(c *gin.Context, s *sessiondomain.Session, origin sessiondomain.Origin, fp sessiondomain.FingerprintResult) bool {
	ctx := c.Request.Context()
	decision := policyengine.DriftDecision{Action: policyengine.ActionAllow, RaiseEvent: true, Severity: string(domain.SeverityMedium), Reason: "fingerprint_drift"}
	if h.drift != nil {
		d, err := h.drift.EvaluateDrift(ctx, policyengine.DriftInput{
			IPChanged:        fp.IPChanged,
			UserAgentChanged: fp.UserAgentChanged,
			SubjectID:        s.SubjectID,
			Role:             s.Role,
			SessionAge:       h.nowF().Sub(s.CreatedAt).Seconds(),
			RequestIP:        origin.IP,
			RequestUserAgent: origin.UserAgent,
		})
		if err != nil {
			log.Printf("httpapi: drift policy: %v", err)
		}
		decision = d
	}
	if decision.RaiseEvent {
		sev := domain.Severity(decision.Severity)
		if !sev.Valid() {
			sev = domain.SeverityMedium
		}
		h.alerts.ProcessEvent(ctx, domain.Event{
			Type:      domain.EventFingerprintDrift,
			Severity:  sev,
			SubjectID: s.SubjectID,
			Origin:    domain.Origin{IP: origin.IP, UserAgent: origin.UserAgent},
			Detail: map[string]any{
				"ipChanged":        fp.IPChanged,
				"userAgentChanged": fp.UserAgentChanged,
				"originalIp":       s.Origin.IP,
				"action":           decision.Action,
				"reason":           decision.Reason,
			},
			Timestamp: h.nowF(),
		})
	}
	if decision.Action == policyengine.ActionDestroy {
		h.sessions.DestroySession(ctx, s.ID)
		h.clearCookie(c)
		errorJSON(c, http.StatusUnauthorized, "session required")
		return false
	}
	return true
}

func currentSession(c *gin.Context) *sessiondomain.Session {
	if v, ok := c.Get(sessionKey); ok {
		if s, ok := v.(*sessiondomain.Session); ok {
			return s
		}
	}
	return nil
}

// requireSecurityRole admits admin and security roles.
func requireSecurityRole(c *gin.Context) {
	if _, err := rbac.RequireRole(c.Request.Context(), rbac.RoleAdmin, rbac.RoleSecurity); err != nil {
		writeAuthzError(c, err)
		return
	}
	c.Next()
}

func writeAuthzError(c *gin.Context, err error) {
	if errors.Is(err, rbac.ErrUnauthenticated) {
		errorJSON(c, http.StatusUnauthorized, "session required")
		return
	}
	errorJSON(c, http.StatusForbidden, "forbidden")
}

// rateLimit rejects callers whose IP has used up its token bucket.
func rateLimit(l *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !l.Allow(ip) {
			log.Printf("httpapi: rate limited %s %s from %s", c.Request.Method, c.FullPath(), ip)
			errorJSON(c, http.StatusTooManyRequests, "too many requests")
			return
		}
		c.Next()
	}
}

// requireIssuer admits only callers presenting the configured issuer token as a bearer
// credential. An empty token rejects every caller.
func requireIssuer(token string) gin.HandlerFunc {
	want := sha256.Sum256([]byte(token))
	return func(c *gin.Context) {
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || token == "" {
			errorJSON(c, http.StatusUnauthorized, "issuer credential required")
			return
		}
		sum := sha256.Sum256([]byte(strings.TrimSpace(got)))
		if subtle.ConstantTimeCompare(sum[:], want[:]) != 1 {
			errorJSON(c, http.StatusUnauthorized, "issuer credential required")
			return
		}
		c.Next()
	}
}
