package httpapi

import (
	"time"

	"escrow-sentinel/internal/alerting/domain"
	"escrow-sentinel/internal/alerting/engine"
	"escrow-sentinel/internal/security"
	sessiondomain "escrow-sentinel/internal/session/domain"
)

type sessionJSON struct {
	// Ref is a short, non-credential prefix of the id used to tell sessions apart in listings.
	Ref          string         `json:"ref"`
	SubjectID    string         `json:"subjectId"`
	Email        string         `json:"email,omitempty"`
	Role         string         `json:"role,omitempty"`
	Permissions  []string       `json:"permissions"`
	IPAddress    string         `json:"ipAddress"`
	UserAgent    string         `json:"userAgent"`
	CreatedAt    time.Time      `json:"createdAt"`
	LastActivity time.Time      `json:"lastActivity"`
	ExpiresAt    time.Time      `json:"expiresAt"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func toSessionJSON(s *sessiondomain.Session) sessionJSON {
	perms := s.Permissions
	if perms == nil {
		perms = []string{}
	}
	return sessionJSON{
		Ref:          security.SessionRef(s.ID),
		SubjectID:    s.SubjectID,
		Email:        s.Email,
		Role:         s.Role,
		Permissions:  perms,
		IPAddress:    s.Origin.IP,
		UserAgent:    s.Origin.UserAgent,
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
		ExpiresAt:    s.ExpiresAt,
		Metadata:     s.Metadata,
	}
}

type noteJSON struct {
	Author string    `json:"author,omitempty"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

type alertJSON struct {
	ID          string     `json:"id"`
	Timestamp   time.Time  `json:"timestamp"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	Severity    string     `json:"severity"`
	Category    string     `json:"category"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	SubjectID   string     `json:"subjectId,omitempty"`
	IPAddress   string     `json:"ipAddress,omitempty"`
	UserAgent   string     `json:"userAgent,omitempty"`
	EventType   string     `json:"eventType"`
	RuleID      string     `json:"ruleId"`
	Threshold   float64    `json:"threshold"`
	Observed    float64    `json:"observed"`
	Status      string     `json:"status"`
	Assignee    string     `json:"assignee,omitempty"`
	Notes       []noteJSON `json:"notes"`
}

func toAlertJSON(a *domain.Alert) alertJSON {
	notes := make([]noteJSON, 0, len(a.Notes))
	for _, n := range a.Notes {
		notes = append(notes, noteJSON{Author: n.Author, Text: n.Text, At: n.At})
	}
	return alertJSON{
		ID:          a.ID,
		Timestamp:   a.Timestamp,
		UpdatedAt:   a.UpdatedAt,
		Severity:    string(a.Severity),
		Category:    a.Category,
		Title:       a.Title,
		Description: a.Description,
		SubjectID:   a.SubjectID,
		IPAddress:   a.Origin.IP,
		UserAgent:   a.Origin.UserAgent,
		EventType:   a.EventType,
		RuleID:      a.Correlation.RuleID,
		Threshold:   a.Correlation.Threshold,
		Observed:    a.Correlation.Observed,
		Status:      string(a.Status),
		Assignee:    a.Assignee,
		Notes:       notes,
	}
}

func toAlertsJSON(list []*domain.Alert) []alertJSON {
	out := make([]alertJSON, 0, len(list))
	for _, a := range list {
		out = append(out, toAlertJSON(a))
	}
	return out
}

type metricJSON struct {
	Name      string            `json:"name"`
	Value     float64           `json:"value"`
	Unit      string            `json:"unit"`
	Timestamp time.Time         `json:"timestamp"`
	Tags      map[string]string `json:"tags,omitempty"`
}

type summaryJSON struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"bySeverity"`
	Open       int            `json:"open"`
	Resolved   int            `json:"resolved"`
}

type dashboardJSON struct {
	Alerts  []alertJSON  `json:"alerts"`
	Metrics []metricJSON `json:"metrics"`
	Summary summaryJSON  `json:"summary"`
}

func toDashboardJSON(d engine.Dashboard) dashboardJSON {
	out := dashboardJSON{
		Alerts:  toAlertsJSON(d.Alerts),
		Metrics: make([]metricJSON, 0, len(d.Metrics)),
		Summary: summaryJSON{
			Total:      d.Summary.Total,
			BySeverity: make(map[string]int, len(d.Summary.BySeverity)),
			Open:       d.Summary.Open,
			Resolved:   d.Summary.Resolved,
		},
	}
	for _, m := range d.Metrics {
		out.Metrics = append(out.Metrics, metricJSON{Name: m.Name, Value: m.Value, Unit: m.Unit, Timestamp: m.Timestamp, Tags: m.Tags})
	}
	for sev, n := range d.Summary.BySeverity {
		out.Summary.BySeverity[string(sev)] = n
	}
	return out
}

type createSessionRequest struct {
	SubjectID   string         `json:"subjectId" binding:"required,max=256"`
	Email       string         `json:"email" binding:"omitempty,email"`
	Role        string         `json:"role" binding:"max=64"`
	Permissions []string       `json:"permissions"`
	Metadata    map[string]any `json:"metadata"`
	// IPAddress and UserAgent override the request origin when a login service calls on the
	// user's behalf.
	IPAddress string `json:"ipAddress" binding:"omitempty,ip"`
	UserAgent string `json:"userAgent"`
}

type extendRequest struct {
	Minutes int `json:"minutes" binding:"gte=0,lte=1440"`
}

type eventRequest struct {
	Type      string         `json:"type" binding:"required"`
	Severity  string         `json:"severity" binding:"omitempty,oneof=low medium high critical"`
	SubjectID string         `json:"subjectId"`
	IPAddress string         `json:"ipAddress" binding:"omitempty,ip"`
	UserAgent string         `json:"userAgent"`
	Detail    map[string]any `json:"detail"`
	Timestamp *time.Time     `json:"timestamp"`
}

type updateAlertRequest struct {
	Status   string `json:"status" binding:"required,oneof=new investigating resolved false_positive"`
	Assignee string `json:"assignee"`
	Note     string `json:"note" binding:"max=4096"`
}
