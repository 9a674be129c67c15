package httpapi

import (
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"escrow-sentinel/internal/platform/rbac"
	"escrow-sentinel/internal/session/service"
)

// createSession turns an authentication outcome into a session and sets the session cookie.
// The id is also returned once in the body for header-based clients.
func (h *handler) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}
	origin := requestOrigin(c)
	if req.IPAddress != "" {
		origin.IP = req.IPAddress
	}
	if req.UserAgent != "" {
		origin.UserAgent = req.UserAgent
	}
	id, s, err := h.sessions.CreateSession(c.Request.Context(), service.CreateParams{
		SubjectID:   req.SubjectID,
		Email:       req.Email,
		Role:        req.Role,
		Permissions: req.Permissions,
		Origin:      origin,
		Metadata:    req.Metadata,
	})
	if err != nil {
		log.Printf("httpapi: create session: %v", err)
		errorJSON(c, http.StatusInternalServerError, "could not create session")
		return
	}
	h.setSessionCookie(c, id)
	c.JSON(http.StatusCreated, gin.H{"sessionId": id, "session": toSessionJSON(s)})
}

func (h *handler) currentSession(c *gin.Context) {
	c.JSON(http.StatusOK, toSessionJSON(currentSession(c)))
}

func (h *handler) logout(c *gin.Context) {
	h.sessions.DestroySession(c.Request.Context(), currentSession(c).ID)
	h.clearCookie(c)
	c.Status(http.StatusNoContent)
}

func (h *handler) extendSession(c *gin.Context) {
	var req extendRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			errorJSON(c, http.StatusBadRequest, err.Error())
			return
		}
	}
	s := currentSession(c)
	if !h.sessions.ExtendSession(c.Request.Context(), s.ID, time.Duration(req.Minutes)*time.Minute) {
		h.clearCookie(c)
		errorJSON(c, http.StatusUnauthorized, "session required")
		return
	}
	h.respondWithSession(c, s.ID)
}

func (h *handler) updateMetadata(c *gin.Context) {
	var partial map[string]any
	if err := c.ShouldBindJSON(&partial); err != nil {
		errorJSON(c, http.StatusBadRequest, err.Error())
		return
	}
	s := currentSession(c)
	if !h.sessions.UpdateMetadata(c.Request.Context(), s.ID, partial) {
		h.clearCookie(c)
		errorJSON(c, http.StatusUnauthorized, "session required")
		return
	}
	h.respondWithSession(c, s.ID)
}

func (h *handler) respondWithSession(c *gin.Context, id string) {
	s, ok := h.sessions.GetSession(c.Request.Context(), id)
	if !ok {
		errorJSON(c, http.StatusUnauthorized, "session required")
		return
	}
	c.JSON(http.StatusOK, toSessionJSON(s))
}

func (h *handler) listSubjectSessions(c *gin.Context) {
	subjectID := c.Param("subjectId")
	if _, err := rbac.RequireSelfOrRole(c.Request.Context(), subjectID, rbac.RoleAdmin, rbac.RoleSecurity); err != nil {
		writeAuthzError(c, err)
		return
	}
	list := h.sessions.ListActiveForSubject(c.Request.Context(), subjectID)
	out := make([]sessionJSON, 0, len(list))
	for _, s := range list {
		out = append(out, toSessionJSON(s))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

// destroySubjectSessions is "log out everywhere". The caller's own cookie is cleared when it
// targets itself.
func (h *handler) destroySubjectSessions(c *gin.Context) {
	subjectID := c.Param("subjectId")
	if _, err := rbac.RequireSelfOrRole(c.Request.Context(), subjectID, rbac.RoleAdmin, rbac.RoleSecurity); err != nil {
		writeAuthzError(c, err)
		return
	}
	n := h.sessions.DestroyAllForSubject(c.Request.Context(), subjectID)
	if s := currentSession(c); s != nil && s.SubjectID == subjectID {
		h.clearCookie(c)
	}
	c.JSON(http.StatusOK, gin.H{"destroyed": n})
}

