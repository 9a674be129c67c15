package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"escrow-sentinel/internal/alerting/domain"
	"escrow-sentinel/internal/alerting/engine"
	"escrow-sentinel/internal/alerting/rules"
)

// ingestEvent feeds a security event into the rule engine and returns the alerts it raised.
// IP and user agent default to the caller's. A timestamp more than engine.MaxClockSkew ahead
// of the server clock or older than engine.MaxEventAge is rejected.
func (h *handler) ingestEvent(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}
	origin := requestOrigin(c)
	ev := domain.Event{
		Type:      req.Type,
		Severity:  domain.Severity(req.Severity),
		SubjectID: req.SubjectID,
		Origin:    domain.Origin{IP: origin.IP, UserAgent: origin.UserAgent},
		Detail:    req.Detail,
	}
	if req.IPAddress != "" {
		ev.Origin.IP = req.IPAddress
	}
	if req.UserAgent != "" {
		ev.Origin.UserAgent = req.UserAgent
	}
	if req.Timestamp != nil {
		ts := req.Timestamp.UTC()
		now := h.nowF()
		if ts.After(now.Add(engine.MaxClockSkew)) || ts.Before(now.Add(-engine.MaxEventAge)) {
			errorJSON(c, http.StatusBadRequest, "timestamp out of range")
			return
		}
		ev.Timestamp = ts
	}
	raised := h.alerts.ProcessEvent(c.Request.Context(), ev)
	c.JSON(http.StatusAccepted, gin.H{"alerts": toAlertsJSON(raised)})
}

func (h *handler) dashboard(c *gin.Context) {
	c.JSON(http.StatusOK, toDashboardJSON(h.alerts.Dashboard(c.Request.Context())))
}

func (h *handler) updateAlert(c *gin.Context) {
	var req updateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}
	ctx := c.Request.Context()
	id := c.Param("alertId")
	if !h.alerts.UpdateAlertStatus(ctx, id, req.Status, req.Assignee, req.Note) {
		errorJSON(c, http.StatusNotFound, "alert not found")
		return
	}
	a, ok := h.alerts.Alert(ctx, id)
	if !ok {
		errorJSON(c, http.StatusNotFound, "alert not found")
		return
	}
	c.JSON(http.StatusOK, toAlertJSON(a))
}

func (h *handler) listRules(c *gin.Context) {
	list := h.alerts.Rules()
	out := make([]rules.RuleSpec, 0, len(list))
	for _, r := range list {
		spec, err := rules.SpecOf(r)
		if err != nil {
			continue
		}
		out = append(out, spec)
	}
	c.JSON(http.StatusOK, gin.H{"rules": out})
}

func (h *handler) addRule(c *gin.Context) {
	var spec rules.RuleSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}
	r, err := spec.Rule()
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}
	switch err := h.alerts.AddRule(r); {
	case errors.Is(err, engine.ErrDuplicateRule):
		errorJSON(c, http.StatusConflict, err.Error())
		return
	case err != nil:
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}
	out, err := rules.SpecOf(r)
	if err != nil {
		out = spec
	}
	c.JSON(http.StatusCreated, out)
}
