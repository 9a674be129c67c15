// Package httpapi is the HTTP transport: session lifecycle routes, security event ingestion
// and the alert dashboard.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"escrow-sentinel/internal/alerting/domain"
	"escrow-sentinel/internal/alerting/engine"
	"escrow-sentinel/internal/audit"
	"escrow-sentinel/internal/platform/ratelimit"
	policyengine "escrow-sentinel/internal/policy/engine"
	sessiondomain "escrow-sentinel/internal/session/domain"
	sessionrepo "escrow-sentinel/internal/session/repository"
	"escrow-sentinel/internal/session/service"
	"escrow-sentinel/internal/telemetry"
)

// SessionHeader carries the session id for clients that cannot use cookies.
const SessionHeader = "X-Session-ID"

// SessionService is the session lifecycle used by the transport.
type SessionService interface {
	CreateSession(ctx context.Context, p service.CreateParams) (string, *sessiondomain.Session, error)
	GetSession(ctx context.Context, id string) (*sessiondomain.Session, bool)
	DestroySession(ctx context.Context, id string) bool
	DestroyAllForSubject(ctx context.Context, subjectID string) int
	ExtendSession(ctx context.Context, id string, extra time.Duration) bool
	UpdateMetadata(ctx context.Context, id string, partial map[string]any) bool
	ListActiveForSubject(ctx context.Context, subjectID string) []*sessiondomain.Session
	CheckFingerprint(s *sessiondomain.Session, current sessiondomain.Origin) sessiondomain.FingerprintResult
	Stats(ctx context.Context) sessionrepo.Stats
	Options() service.Options
}

// AlertService is the rule engine used by the transport.
type AlertService interface {
	ProcessEvent(ctx context.Context, ev domain.Event) []*domain.Alert
	UpdateAlertStatus(ctx context.Context, id, status, assignee, note string) bool
	Alert(ctx context.Context, id string) (*domain.Alert, bool)
	Dashboard(ctx context.Context) engine.Dashboard
	Rules() []domain.Rule
	AddRule(r domain.Rule) error
}

// Deps are the services behind the router. Drift may be nil, in which case fingerprint drift
// only raises a security event. Audit and Emitter are optional.
type Deps struct {
	Sessions SessionService
	Alerts   AlertService
	Drift    policyengine.DriftEvaluator
	Audit    audit.AuditLogger
	Emitter  telemetry.EventEmitter
	// IssuerToken guards session creation and event ingestion. Empty rejects every caller.
	IssuerToken string
	// Limiter throttles session creation and event ingestion per client IP. Nil disables it.
	Limiter     *ratelimit.Limiter
	CookieName  string
	ServiceName string
	// TrustedProxies are the proxy addresses whose X-Forwarded-For is honoured. Empty trusts none.
	TrustedProxies []string
}

type handler struct {
	sessions   SessionService
	alerts     AlertService
	drift      policyengine.DriftEvaluator
	cookieName string
	nowF       func() time.Time
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(d Deps) (*gin.Engine, error) {
	if d.CookieName == "" {
		d.CookieName = "sid"
	}
	if d.ServiceName == "" {
		d.ServiceName = "escrow-sentinel"
	}
	r := gin.New()
	if err := r.SetTrustedProxies(d.TrustedProxies); err != nil {
		return nil, err
	}
	skip := map[string]bool{"/healthz": true}
	r.Use(
		gin.Recovery(),
		otelgin.Middleware(d.ServiceName),
		requestTelemetry(d.Emitter, skip),
		auditRequests(d.Audit, skip),
	)

	h := &handler{
		sessions:   d.Sessions,
		alerts:     d.Alerts,
		drift:      d.Drift,
		cookieName: d.CookieName,
		nowF:       func() time.Time { return time.Now().UTC() },
	}

	r.GET("/healthz", h.health)

	v1 := r.Group("/v1")
	issuer := v1.Group("", rateLimit(d.Limiter), requireIssuer(d.IssuerToken))
	issuer.POST("/sessions", h.createSession)
	issuer.POST("/events", h.ingestEvent)

	authed := v1.Group("", h.requireSession)
	authed.GET("/sessions/current", h.currentSession)
	authed.DELETE("/sessions/current", h.logout)
	authed.POST("/sessions/current/extend", h.extendSession)
	authed.PATCH("/sessions/current/metadata", h.updateMetadata)
	authed.GET("/subjects/:subjectId/sessions", h.listSubjectSessions)
	authed.DELETE("/subjects/:subjectId/sessions", h.destroySubjectSessions)

	security := authed.Group("", requireSecurityRole)
	security.GET("/alerts/dashboard", h.dashboard)
	security.PATCH("/alerts/:alertId", h.updateAlert)
	security.GET("/rules", h.listRules)
	security.POST("/rules", h.addRule)

	return r, nil
}

func (h *handler) health(c *gin.Context) {
	stats := h.sessions.Stats(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": stats.Sessions,
		"subjects": stats.Subjects,
	})
}

func errorJSON(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, gin.H{"error": msg})
}
