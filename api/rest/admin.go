package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hoolgg/hool/gateway/scheduler"
	"github.com/hoolgg/hool/gateway/status"
	"go.uber.org/zap"
)

// AdminHandler handles upstream status and operator endpoints.
type AdminHandler struct {
	prober *status.Prober
	sched  *scheduler.Scheduler
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(prober *status.Prober, sched *scheduler.Scheduler, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{prober: prober, sched: sched, logger: logger}
}

type publicService struct {
	Name      string `json:"name"`
	Reachable bool   `json:"reachable"`
}

// Status returns which upstreams were reachable at the last probe. It reads
// the stored result and never waits on an upstream.
// GET /api/status
func (h *AdminHandler) Status(c *gin.Context) {
	rep, err := h.prober.Report(c.Request.Context())
	if err != nil {
		h.logger.Warn("status report failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "status unavailable"})
		return
	}
	services := make([]publicService, 0, len(rep.Services))
	for _, s := range rep.Services {
		services = append(services, publicService{Name: s.Name, Reachable: s.Reachable})
	}
	c.JSON(http.StatusOK, gin.H{"healthy": rep.Healthy, "services": services})
}

// Upstreams returns the full probe report, errors and latency included.
// GET /internal/upstreams
func (h *AdminHandler) Upstreams(c *gin.Context) {
	rep, err := h.prober.Report(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rep)
}

// Probe checks every upstream now.
// POST /api/admin/probe
func (h *AdminHandler) Probe(c *gin.Context) {
	rep, err := h.prober.Probe(c.Request.Context())
	if err != nil {
		h.logger.Warn("manual probe not stored", zap.Error(err))
	}
	c.JSON(http.StatusOK, rep)
}

// ListSchedulerTasks returns names of all registered ticker tasks.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.ListTickers()})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// If adminKey is empty all admin endpoints answer 503.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if key != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
