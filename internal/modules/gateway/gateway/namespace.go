package gateway

import (
	"strings"

	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"

	pkgjwt "github.com/drawspace/core/internal/pkg/jwt"
	"github.com/drawspace/core/internal/presence"
)

func (h *Hub) registerNamespace() {
	ns := h.sio.Of(namespacePresence, nil)
	_ = ns.On("connection", func(args ...any) {
		socket, ok := args[0].(*socketio.Socket)
		if !ok {
			return
		}

		claims, err := pkgjwt.Parse(normalizeToken(extractToken(socket)))
		if err != nil {
			_ = socket.Emit("message", h.messageFormat("AUTH_FAILED", "auth failed", nil))
			socket.Disconnect(true)
			return
		}

		session, err := presence.NewSession(presence.Identity{
			UserID:      claims.UserID,
			DisplayName: claims.DisplayName,
			AvatarRef:   claims.AvatarRef,
		}, h.tr, presence.Options{
			HeartbeatInterval:   h.cfg.HeartbeatInterval(),
			OfflineTimeout:      h.cfg.OfflineTimeout(),
			CursorInterval:      h.cfg.CursorInterval(),
			ActivityQuietWindow: h.cfg.ActivityQuietWindow(),
			TypingTimeout:       h.cfg.TypingTimeout(),
			Logger:              h.logger,
		})
		if err != nil {
			h.logger.Warn("gateway session init failed", zap.String("user", claims.UserID), zap.Error(err))
			socket.Disconnect(true)
			return
		}

		sid := string(socket.Id())
		c := &client{
			sid:     sid,
			socket:  socket,
			session: session,
			unsubs:  map[string]func(){},
		}
		h.register <- c
		_ = socket.Emit("message", h.messageFormat("GATEWAY_CONNECT", "presence connected", nil))

		c.watchScope(presence.GlobalScope())

		_ = socket.On(messageActivity, func(eventArgs ...any) {
			payload := payloadFromArgs(eventArgs...)
			activity := presence.ParseActivity(strFromAny(payload["activity"]))
			session.UpdateActivity(activity, metadataFromAny(payload["metadata"]))
		})

		_ = socket.On(messageCursor, func(eventArgs ...any) {
			payload := payloadFromArgs(eventArgs...)
			x, okX := floatFromAny(payload["x"])
			y, okY := floatFromAny(payload["y"])
			if !okX || !okY {
				return
			}
			session.UpdateCursorPosition(x, y)
		})

		_ = socket.On(messageSelection, func(eventArgs ...any) {
			payload := payloadFromArgs(eventArgs...)
			session.UpdateSelectedShapes(strSliceFromAny(payload["shapeIds"]))
		})

		_ = socket.On(messageTyping, func(eventArgs ...any) {
			payload := payloadFromArgs(eventArgs...)
			on, _ := boolFromAny(payload["typing"])
			session.SetTyping(on, strFromAny(payload["context"]))
		})

		_ = socket.On(messageSwitchProject, func(eventArgs ...any) {
			payload := payloadFromArgs(eventArgs...)
			projectID := strFromAny(payload["projectId"])
			session.SwitchProject(projectID)
			if projectID == "" {
				c.dropWatch("project")
				c.dropWatch("canvas")
				return
			}
			c.watchScope(presence.ProjectScope(projectID))
			c.dropWatch("canvas")
		})

		_ = socket.On(messageSwitchCanvas, func(eventArgs ...any) {
			payload := payloadFromArgs(eventArgs...)
			canvasID := strFromAny(payload["canvasId"])
			session.SwitchCanvas(canvasID)
			if canvasID == "" {
				c.dropWatch("canvas")
				return
			}
			// the session knows the owning project; the payload may omit it
			for _, scope := range session.CurrentScopes() {
				if scope.IsCanvas() {
					c.watchScope(scope)
					return
				}
			}
		})

		_ = socket.On("disconnect", func(_ ...any) {
			h.unregister <- clientMeta{sid: sid}
		})
	})
}

// watchScope subscribes the socket to a scope's member stream, replacing
// any previous subscription of the same kind (global/project/canvas).
func (c *client) watchScope(scope presence.Scope) {
	kind := scopeKind(scope)
	scopeKey := scope.Key()
	socket := c.socket

	unsub := c.session.Subscribe(scope, func(members []presence.Record) {
		_ = socket.Emit("message", gatewayPayload{
			Type: eventPresenceSync,
			Data: map[string]interface{}{
				"scope":   scopeKey,
				"members": members,
			},
		})
		_ = socket.Emit("message", gatewayPayload{
			Type: eventPresenceStats,
			Data: map[string]interface{}{
				"scope": scopeKey,
				"stats": presence.StatsFromRecords(members),
			},
		})
	})

	c.mu.Lock()
	old := c.unsubs[kind]
	c.unsubs[kind] = unsub
	c.mu.Unlock()
	if old != nil {
		old()
	}
}

func (c *client) dropWatch(kind string) {
	c.mu.Lock()
	unsub := c.unsubs[kind]
	delete(c.unsubs, kind)
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func scopeKind(scope presence.Scope) string {
	switch {
	case scope.IsCanvas():
		return "canvas"
	case scope.ProjectID != "":
		return "project"
	default:
		return "global"
	}
}

func extractToken(socket *socketio.Socket) string {
	handshake := socket.Handshake()
	if handshake == nil {
		return ""
	}
	if token := firstValueFromMultiMap(handshake.Query, "token"); token != "" {
		return token
	}
	if token := firstValueFromMultiMap(handshake.Headers, "authorization"); token != "" {
		return token
	}
	return ""
}

func firstValueFromMultiMap(values map[string][]string, key string) string {
	if len(values) == 0 {
		return ""
	}
	for k, list := range values {
		if !strings.EqualFold(strings.TrimSpace(k), key) || len(list) == 0 {
			continue
		}
		v := strings.TrimSpace(list[0])
		if v != "" {
			return v
		}
	}
	return ""
}

func normalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
