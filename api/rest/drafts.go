package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hoolgg/hool/gateway/editor"
	mw "github.com/hoolgg/hool/gateway/middleware"
	"go.uber.org/zap"
)

// DraftHandler exposes the caller's debounced edits.
type DraftHandler struct {
	editor *editor.Service
	logger *zap.Logger
}

// NewDraftHandler creates a new DraftHandler.
func NewDraftHandler(ed *editor.Service, logger *zap.Logger) *DraftHandler {
	return &DraftHandler{editor: ed, logger: logger}
}

// List handles GET /api/drafts.
func (h *DraftHandler) List(c *gin.Context) {
	drafts, err := h.editor.Drafts(c.Request.Context(), owner(c))
	if err != nil {
		h.logger.Error("draft list failed", zap.String("trace_id", mw.GetTraceID(c)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "drafts unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"drafts": drafts, "count": len(drafts)})
}

// Commit handles POST /api/drafts/:key/commit, sent when a field loses
// focus: a pending edit is written now instead of after the delay.
func (h *DraftHandler) Commit(c *gin.Context) {
	d, flushed, err := h.editor.Commit(c.Request.Context(), owner(c), c.Param("key"))
	if errors.Is(err, editor.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such draft"})
		return
	}
	if err != nil {
		h.logger.Error("draft commit failed", zap.String("trace_id", mw.GetTraceID(c)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "drafts unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"draft": d, "flushed": flushed})
}

// Discard handles DELETE /api/drafts/:key.
func (h *DraftHandler) Discard(c *gin.Context) {
	if err := h.editor.Discard(c.Request.Context(), owner(c), c.Param("key")); err != nil {
		h.logger.Error("draft discard failed", zap.String("trace_id", mw.GetTraceID(c)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "drafts unavailable"})
		return
	}
	c.Status(http.StatusNoContent)
}
