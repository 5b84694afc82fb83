package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/hoolgg/hool/gateway/editor"
	mw "github.com/hoolgg/hool/gateway/middleware"
	"github.com/hoolgg/hool/gateway/model"
	"github.com/hoolgg/hool/gateway/optimistic"
	"github.com/hoolgg/hool/gateway/upstream"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ProgressHandler handles the progress tool endpoints.
type ProgressHandler struct {
	api    Upstream
	editor *editor.Service
	logger *zap.Logger
}

// NewProgressHandler creates a new ProgressHandler.
func NewProgressHandler(api Upstream, ed *editor.Service, logger *zap.Logger) *ProgressHandler {
	return &ProgressHandler{api: api, editor: ed, logger: logger}
}

// Overview handles GET /api/guilds/:id/progress/overview.
func (h *ProgressHandler) Overview(c *gin.Context) {
	sections, errs := h.gather(c, map[string]string{
		"characters": guildPath(c, "progress", "characters"),
		"message":    guildPath(c, "progress", "message"),
		"roadmap":    guildPath(c, "progress", "roadmap"),
	})
	if sections == nil {
		return
	}
	c.JSON(http.StatusOK, model.ProgressOverview{
		Characters: sections["characters"],
		Message:    sections["message"],
		Roadmap:    sections["roadmap"],
		Errors:     errs,
	})
}

// Team handles GET /api/guilds/:id/team-progress.
func (h *ProgressHandler) Team(c *gin.Context) {
	sections, errs := h.gather(c, map[string]string{
		"members": guildPath(c, "progress", "members"),
		"roadmap": guildPath(c, "progress", "roadmap"),
	})
	if sections == nil {
		return
	}
	c.JSON(http.StatusOK, model.TeamProgress{
		Members: sections["members"],
		Roadmap: sections["roadmap"],
		Errors:  errs,
	})
}

// gather fetches every path concurrently. Sections that fail are reported
// by name; only when all fail does the request fail, with the first error.
// A nil map means the response was already written.
func (h *ProgressHandler) gather(c *gin.Context, paths map[string]string) (map[string]json.RawMessage, map[string]string) {
	var (
		mu       sync.Mutex
		sections = make(map[string]json.RawMessage, len(paths))
		errs     = make(map[string]string)
		failures []error
	)
	sess := mw.GetSession(c)
	var g errgroup.Group
	for name, path := range paths {
		g.Go(func() error {
			var out json.RawMessage
			err := h.api.Do(c.Request.Context(), sess, http.MethodGet, path, nil, nil, &out)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[name] = upstream.UserMessage(err)
				failures = append(failures, err)
				return nil
			}
			sections[name] = out
			return nil
		})
	}
	_ = g.Wait()

	if len(sections) == 0 {
		mw.AbortWithUpstreamError(c, pickFailure(failures))
		return nil, nil
	}
	if len(errs) == 0 {
		errs = nil
	} else {
		h.logger.Info("partial aggregate", zap.String("trace_id", mw.GetTraceID(c)), zap.Any("errors", errs))
	}
	return sections, errs
}

// pickFailure prefers an authentication failure, then the first failure.
func pickFailure(failures []error) error {
	for _, f := range failures {
		if upstream.IsUnauthorized(f) {
			return f
		}
	}
	return failures[0]
}

// Tasks handles GET /api/guilds/:id/characters/:cid/tasks.
func (h *ProgressHandler) Tasks(c *gin.Context) {
	tasks, err := h.editor.Tasks(c.Request.Context(), mw.GetSession(c), owner(c), c.Param("id"), c.Param("cid"))
	if err != nil {
		mw.AbortWithUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// ToggleTask handles POST /api/guilds/:id/characters/:cid/tasks. The task
// flips at once; if the progress service rejects it the response carries the
// reverted checklist alongside the error.
func (h *ProgressHandler) ToggleTask(c *gin.Context) {
	var req model.TaskToggle
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.editor.ToggleTask(c.Request.Context(), mw.GetSession(c), owner(c), c.Param("id"), c.Param("cid"), req)
	if err != nil {
		abortEditorError(c, err)
		return
	}
	respondOptimistic(c, res.Outcome, res.Err, gin.H{"tasks": res.Tasks, "outcome": res.Outcome})
}

// Crests handles GET /api/characters/:cid/crests. The progress service keeps
// crest counters per account, so the read goes to the caller's own path.
func (h *ProgressHandler) Crests(c *gin.Context) {
	forward(c, h.api, editor.CrestsPath(c.Param("cid")))
}

// EditCrest handles PUT /api/characters/:cid/crests. The count is saved once
// edits settle; the response is the pending draft.
func (h *ProgressHandler) EditCrest(c *gin.Context) {
	var req model.CrestEntry
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := h.editor.EditCrest(c.Request.Context(), mw.GetSession(c), owner(c), c.Param("cid"), req)
	if err != nil {
		abortEditorError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, d)
}

// EditProfession handles PUT /api/guilds/:id/characters/:cid/professions.
func (h *ProgressHandler) EditProfession(c *gin.Context) {
	var req model.ProfessionUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := h.editor.EditProfession(c.Request.Context(), mw.GetSession(c), owner(c), c.Param("id"), c.Param("cid"), req)
	if err != nil {
		abortEditorError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, d)
}

func respondOptimistic(c *gin.Context, outcome optimistic.Outcome, err error, body gin.H) {
	if outcome != optimistic.RolledBack {
		c.JSON(http.StatusOK, body)
		return
	}
	if upstream.IsUnauthorized(err) {
		mw.AbortUnauthenticated(c)
		return
	}
	body["error"] = upstream.UserMessage(err)
	body["retryable"] = upstream.Retryable(err)
	c.JSON(upstream.GatewayStatus(err), body)
}

func abortEditorError(c *gin.Context, err error) {
	if errors.Is(err, editor.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	if errors.Is(err, context.Canceled) {
		c.Abort()
		return
	}
	mw.AbortWithUpstreamError(c, err)
}
