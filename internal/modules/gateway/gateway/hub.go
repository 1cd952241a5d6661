package gateway

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/quartz"
	redis "github.com/redis/go-redis/v9"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"

	"github.com/drawspace/core/internal/config"
	pkgredis "github.com/drawspace/core/internal/pkg/redis"
	"github.com/drawspace/core/internal/transport"
)

func NewHub(tr transport.Transport, rc *pkgredis.Client, cfg config.PresenceConfig, logger *zap.Logger) *Hub {
	sio := socketio.NewServer(nil, nil)
	h := &Hub{
		clients:    make(map[string]*client),
		register:   make(chan *client, 256),
		unregister: make(chan clientMeta, 256),
		tr:         tr,
		rc:         rc,
		cfg:        cfg,
		logger:     logger,
		sio:        sio,
		clock:      quartz.NewReal(),
	}
	h.registerNamespace()
	return h
}

// Run starts the hub loop.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			h.sio.Close(nil)
			return

		case c := <-h.register:
			h.registerClient(c)

		case meta := <-h.unregister:
			h.unregisterClient(meta)
		}
	}
}

func (h *Hub) registerClient(c *client) {
	h.mu.Lock()
	if old, ok := h.clients[c.sid]; ok {
		h.mu.Unlock()
		old.teardown()
		h.mu.Lock()
	}
	h.clients[c.sid] = c
	current := len(h.clients)
	h.mu.Unlock()

	h.updateDailyPeak(current)
}

func (h *Hub) unregisterClient(meta clientMeta) {
	h.mu.Lock()
	c, ok := h.clients[meta.sid]
	if ok {
		delete(h.clients, meta.sid)
	}
	h.mu.Unlock()

	if ok {
		c.teardown()
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	clients := h.clients
	h.clients = map[string]*client{}
	h.mu.Unlock()

	for _, c := range clients {
		c.teardown()
	}
}

// teardown closes the presence session first (ordered cleanup lives
// there), then drops the socket-side subscriptions.
func (c *client) teardown() {
	c.session.Close()

	c.mu.Lock()
	unsubs := c.unsubs
	c.unsubs = map[string]func(){}
	c.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
}

// ClientCount returns the number of connected collaborators.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// updateDailyPeak tracks per-day peak concurrent collaborators and a join
// counter. Skipped when redis is not configured.
func (h *Hub) updateDailyPeak(current int) {
	if h.rc == nil || current < 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	dateKey := shortDateKey(h.clock.Now())

	peak := 0
	currentMax, err := h.rc.Raw().HGet(ctx, redisKeyMaxCollaborators, dateKey).Result()
	switch {
	case err == nil:
		if parsed, parseErr := strconv.Atoi(strings.TrimSpace(currentMax)); parseErr == nil {
			peak = parsed
		}
	case err == redis.Nil:
		// no-op
	default:
		h.logger.Warn("gateway get daily peak failed", zap.Error(err))
	}

	if current > peak {
		if err := h.rc.Raw().HSet(ctx, redisKeyMaxCollaborators, dateKey, current).Err(); err != nil {
			h.logger.Warn("gateway set daily peak failed", zap.Error(err))
		}
	}

	if err := h.rc.Raw().HIncrBy(ctx, redisKeyCollaboratorJoins, dateKey, 1).Err(); err != nil {
		h.logger.Warn("gateway incr join counter failed", zap.Error(err))
	}
}

func shortDateKey(t time.Time) string {
	return t.Format("1-2-06")
}

// Handler returns the socket.io HTTP handler mounted at /socket.io.
func (h *Hub) Handler() http.Handler {
	return h.sio.ServeHandler(nil)
}
