package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"escrow-sentinel/internal/audit"
	auditdomain "escrow-sentinel/internal/audit/domain"
	"escrow-sentinel/internal/platform/identity"
	"escrow-sentinel/internal/security"
	"escrow-sentinel/internal/telemetry"
)

// auditRequests writes an http_request audit record after every rejected request (401/403) and
// after every authenticated state-changing request. Best-effort: the audit logger never fails the
// request. Routes in skip are not audited.
func auditRequests(l audit.AuditLogger, skip map[string]bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if l == nil || skip[c.FullPath()] {
			return
		}
		status := c.Writer.Status()
		denied := status == http.StatusUnauthorized || status == http.StatusForbidden
		ctx := c.Request.Context()
		subjectID, _ := identity.SubjectID(ctx)
		if !denied && (subjectID == "" || c.Request.Method == http.MethodGet) {
			return
		}
		outcome := auditdomain.OutcomeSuccess
		if status >= http.StatusBadRequest {
			outcome = auditdomain.OutcomeFailure
		}
		detail := map[string]any{
			"method": c.Request.Method,
			"route":  c.FullPath(),
			"status": status,
		}
		if sid, ok := identity.SessionID(ctx); ok {
			detail["session_ref"] = security.SessionRef(sid)
		}
		severity := "info"
		if denied {
			severity = "low"
		}
		l.LogEvent(ctx, auditdomain.Record{
			Kind:      auditdomain.KindHTTPRequest,
			Severity:  severity,
			SubjectID: subjectID,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			Detail:    detail,
			Outcome:   outcome,
		})
	}
}

// requestTelemetry emits an http_request record after each request. If emitter is nil, it no-ops.
func requestTelemetry(emitter telemetry.EventEmitter, skip map[string]bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if emitter == nil || skip[c.FullPath()] {
			return
		}
		status := c.Writer.Status()
		severity := "info"
		if status >= http.StatusInternalServerError {
			severity = "medium"
		}
		subjectID, _ := identity.SubjectID(c.Request.Context())
		telemetry.EmitAsync(emitter, telemetry.Record{
			Name:     "http_request",
			Severity: severity,
			Body:     c.Request.Method + " " + c.FullPath(),
			Attributes: map[string]string{
				"method":      c.Request.Method,
				"route":       c.FullPath(),
				"status_code": strconv.Itoa(status),
				"duration_ms": strconv.FormatInt(time.Since(start).Milliseconds(), 10),
				"client_ip":   c.ClientIP(),
				"subject_id":  subjectID,
			},
			Timestamp: start.UTC(),
		})
	}
}
