package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/scrapetrack/internal/domain"
	"github.com/timmy/scrapetrack/internal/tracker"
)

// SessionHandler exposes the session registry.
type SessionHandler struct {
	registry *tracker.Registry
}

// NewSessionHandler creates a new session handler.
// Parameters:
//   - registry: session registry instance.
// Returns:
//   - *SessionHandler: initialized handler.
func NewSessionHandler(registry *tracker.Registry) *SessionHandler {
	return &SessionHandler{registry: registry}
}

// StartResponse is returned by StartSession.
type StartResponse struct {
	SessionID string          `json:"sessionId"`
	Session   *domain.Session `json:"session"`
}

// CancelRequest is the optional body of CancelSession.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// CategoryProgressRequest reports progress of one sub-category.
type CategoryProgressRequest struct {
	CategoryURL string `json:"categoryUrl" binding:"required"`
	domain.CategoryProgress
}

// StartSession handles POST /api/v1/sessions.
func (h *SessionHandler) StartSession(c *gin.Context) {
	var req domain.SessionConfig
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}

	id, err := h.registry.Start(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	// Session is nil if the session was cancelled before the response was written.
	s, _ := h.registry.Get(id)
	c.JSON(http.StatusCreated, StartResponse{SessionID: id, Session: s})
}

// ListSessions handles GET /api/v1/sessions.
func (h *SessionHandler) ListSessions(c *gin.Context) {
	sessions := h.registry.ListActive()
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

// GetSession handles GET /api/v1/sessions/:id.
func (h *SessionHandler) GetSession(c *gin.Context) {
	s, err := h.registry.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// ReportProgress handles POST /api/v1/sessions/:id/progress.
func (h *SessionHandler) ReportProgress(c *gin.Context) {
	var ev domain.ProgressEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}

	snap, err := h.registry.Advance(c.Request.Context(), c.Param("id"), ev)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// ReportCategoryProgress handles POST /api/v1/sessions/:id/categories.
func (h *SessionHandler) ReportCategoryProgress(c *gin.Context) {
	var req CategoryProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}

	if err := h.registry.ReportCategoryProgress(c.Request.Context(), c.Param("id"), req.CategoryURL, req.CategoryProgress); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CancelSession handles POST /api/v1/sessions/:id/cancel.
func (h *SessionHandler) CancelSession(c *gin.Context) {
	var req CancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request: "+err.Error())
			return
		}
	}

	if err := h.registry.Cancel(c.Request.Context(), c.Param("id"), req.Reason); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessionId": c.Param("id"), "status": domain.SessionStatusCancelled})
}

// CurrentProgress handles GET /api/v1/progress/current.
func (h *SessionHandler) CurrentProgress(c *gin.Context) {
	cur := h.registry.CurrentProgress()
	if cur == nil {
		c.JSON(http.StatusOK, gin.H{"active": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": true, "progress": cur})
}
