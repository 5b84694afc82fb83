package rest

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hoolgg/hool/gateway/audit"
	"github.com/hoolgg/hool/gateway/editor"
	mw "github.com/hoolgg/hool/gateway/middleware"
	"github.com/hoolgg/hool/gateway/model"
	"go.uber.org/zap"
)

// RecruitmentHandler handles the recruitment tool endpoints.
type RecruitmentHandler struct {
	api    Upstream
	editor *editor.Service
	audit  *audit.Service
	logger *zap.Logger
}

// NewRecruitmentHandler creates a new RecruitmentHandler.
func NewRecruitmentHandler(api Upstream, ed *editor.Service, auditSvc *audit.Service, logger *zap.Logger) *RecruitmentHandler {
	return &RecruitmentHandler{api: api, editor: ed, audit: auditSvc, logger: logger}
}

type rateRequest struct {
	Rating int `json:"rating" binding:"required,min=1,max=5"`
}

type notesRequest struct {
	Notes string `json:"notes" binding:"max=4000"`
}

// Candidates handles GET /api/guilds/:id/recruitment/candidates. Filters in
// the query string go to the recruitment service unchanged.
func (h *RecruitmentHandler) Candidates(c *gin.Context) {
	list, err := h.editor.Candidates(c.Request.Context(), mw.GetSession(c), owner(c), c.Param("id"), c.Request.URL.Query())
	if err != nil {
		mw.AbortWithUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Rate handles PUT /api/guilds/:id/recruitment/candidates/:cand/rating.
func (h *RecruitmentHandler) Rate(c *gin.Context) {
	var req rateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.editor.RateCandidate(c.Request.Context(), mw.GetSession(c), owner(c), c.Param("id"), c.Param("cand"), req.Rating)
	if err != nil {
		abortEditorError(c, err)
		return
	}
	respondOptimistic(c, res.Outcome, res.Err, gin.H{"candidate": res.Candidate, "outcome": res.Outcome})
}

// Move handles PUT /api/guilds/:id/recruitment/candidates/:cand/status.
func (h *RecruitmentHandler) Move(c *gin.Context) {
	var req model.CandidateStatusUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Status == "" && req.CategoryID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status or category_id is required"})
		return
	}
	res, err := h.editor.MoveCandidate(c.Request.Context(), mw.GetSession(c), owner(c), c.Param("id"), c.Param("cand"), req)
	if err != nil {
		abortEditorError(c, err)
		return
	}
	respondOptimistic(c, res.Outcome, res.Err, gin.H{"candidate": res.Candidate, "outcome": res.Outcome})
}

// Notes handles PUT /api/guilds/:id/recruitment/candidates/:cand/notes. The
// notes are saved once typing settles.
func (h *RecruitmentHandler) Notes(c *gin.Context) {
	var req notesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := h.editor.EditNotes(c.Request.Context(), mw.GetSession(c), owner(c), c.Param("id"), c.Param("cand"), req.Notes)
	if err != nil {
		abortEditorError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, d)
}

// Delete handles DELETE /api/guilds/:id/recruitment/candidates/:cand.
func (h *RecruitmentHandler) Delete(c *gin.Context) {
	start := time.Now()
	path := guildPath(c, "recruitment", "candidates", c.Param("cand"))
	if err := h.api.Do(c.Request.Context(), mw.GetSession(c), http.MethodDelete, path, nil, nil, nil); err != nil {
		mw.AbortWithUpstreamError(c, err)
		return
	}
	recordAudit(c, h.audit, c.Param("id"), "candidate.delete", c.Param("cand"), nil, start)
	c.JSON(http.StatusOK, gin.H{"message": "candidate deleted"})
}
