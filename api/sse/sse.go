// Package sse streams guild events to open dashboards so they can refetch
// the guild context after a permission or settings change.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hoolgg/hool/gateway/cache"
	mw "github.com/hoolgg/hool/gateway/middleware"
	"go.uber.org/zap"
)

// Event types published on a guild channel.
const (
	EventPermissionsUpdated = "permissions_updated"
	EventGuildUpdated       = "guild_updated"
	EventGuildDeleted       = "guild_deleted"
)

// Event is one guild notification.
type Event struct {
	Type    string    `json:"type"`
	GuildID string    `json:"guild_id"`
	ActorID int64     `json:"actor_id"`
	At      time.Time `json:"at"`
}

// Channel is the pub/sub channel of one guild.
func Channel(guildID string) string { return "guild:" + guildID }

// Publish sends ev on its guild's channel.
func Publish(ctx context.Context, ps cache.PubSub, ev Event) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return ps.Publish(ctx, Channel(ev.GuildID), string(data))
}

// Handler handles the SSE endpoint.
type Handler struct {
	pubsub    cache.PubSub
	keepalive time.Duration
	logger    *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(pubsub cache.PubSub, logger *zap.Logger) *Handler {
	return &Handler{pubsub: pubsub, keepalive: 30 * time.Second, logger: logger}
}

// ServeGuildEvents handles GET /api/guilds/:id/events. The route must sit
// behind Auth and a resolved guild context: only members get the stream.
func (h *Handler) ServeGuildEvents(c *gin.Context) {
	guildID := c.Param("id")

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.pubsub.Subscribe(subCtx, Channel(guildID))
	if err != nil {
		h.logger.Error("sse subscribe failed", zap.String("trace_id", mw.GetTraceID(c)), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event stream unavailable"})
		return
	}
	defer unsub()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"guild_id\":%q}\n\n", guildID)
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepalive)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			var ev Event
			name := "message"
			if json.Unmarshal([]byte(msg.Payload), &ev) == nil && ev.Type != "" {
				name = ev.Type
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", name, msg.Payload)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}
