// Package activity exposes the read-only HTTP view of collaborator
// presence: who is in a scope right now, and the derived stats dashboards
// render.
package activity

import (
	"strings"
	"time"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/drawspace/core/internal/config"
	"github.com/drawspace/core/internal/pkg/response"
	"github.com/drawspace/core/internal/presence"
	"github.com/drawspace/core/internal/transport"
)

type Handler struct {
	tr             transport.Transport
	offlineTimeout time.Duration
	clock          quartz.Clock
	logger         *zap.Logger
}

func NewHandler(tr transport.Transport, cfg config.PresenceConfig, logger *zap.Logger) *Handler {
	return &Handler{
		tr:             tr,
		offlineTimeout: cfg.OfflineTimeout(),
		clock:          quartz.NewReal(),
		logger:         logger,
	}
}

// RegisterRoutes mounts the presence read endpoints.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/presence", h.getPresence)
	rg.GET("/presence/stats", h.getStats)
}

type scopeQuery struct {
	Project string `form:"project"`
	Canvas  string `form:"canvas"`
}

func (q scopeQuery) scope() presence.Scope {
	switch {
	case strings.TrimSpace(q.Canvas) != "":
		return presence.CanvasScope(strings.TrimSpace(q.Project), strings.TrimSpace(q.Canvas))
	case strings.TrimSpace(q.Project) != "":
		return presence.ProjectScope(strings.TrimSpace(q.Project))
	default:
		return presence.GlobalScope()
	}
}

func (h *Handler) members(c *gin.Context) ([]presence.Record, bool) {
	if !h.tr.Available() {
		response.ServiceUnavailable(c, "realtime channel not provisioned")
		return nil, false
	}

	var query scopeQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.BadRequest(c, "invalid scope query")
		return nil, false
	}

	scope := query.scope()
	snap, err := h.tr.Snapshot(c.Request.Context(), scope.Key())
	if err != nil {
		h.logger.Warn("presence snapshot read failed", zap.String("scope", scope.Key()), zap.Error(err))
		response.InternalError(c, err)
		return nil, false
	}

	return presence.MembersFromSnapshot(snap, "", h.clock.Now(), h.offlineTimeout), true
}

func (h *Handler) getPresence(c *gin.Context) {
	members, ok := h.members(c)
	if !ok {
		return
	}
	response.OK(c, members)
}

func (h *Handler) getStats(c *gin.Context) {
	members, ok := h.members(c)
	if !ok {
		return
	}
	response.OK(c, presence.StatsFromRecords(members))
}
