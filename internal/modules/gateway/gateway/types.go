package gateway

import (
	"sync"

	"github.com/coder/quartz"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"

	"github.com/drawspace/core/internal/config"
	pkgredis "github.com/drawspace/core/internal/pkg/redis"
	"github.com/drawspace/core/internal/presence"
	"github.com/drawspace/core/internal/transport"
)

const (
	namespacePresence = "/presence"

	eventPresenceSync  = "presence_sync"
	eventPresenceStats = "presence_stats"

	messageActivity      = "activity"
	messageCursor        = "cursor"
	messageSelection     = "selection"
	messageTyping        = "typing"
	messageSwitchProject = "switch_project"
	messageSwitchCanvas  = "switch_canvas"

	redisKeyMaxCollaborators  = "ds:stats:max_collaborators"
	redisKeyCollaboratorJoins = "ds:stats:collaborator_joins"
)

type gatewayPayload struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	Code *int        `json:"code,omitempty"`
}

// client is one authenticated socket and its presence session.
type client struct {
	sid     string
	socket  *socketio.Socket
	session *presence.Session

	mu     sync.Mutex
	unsubs map[string]func() // subscription kind -> unsubscribe
}

type clientMeta struct {
	sid string
}

// Hub hosts the /presence namespace: one presence session per accepted
// socket, scope subscriptions relayed back as full snapshots.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client

	register   chan *client
	unregister chan clientMeta

	tr     transport.Transport
	rc     *pkgredis.Client // nil when running on the in-memory transport
	cfg    config.PresenceConfig
	logger *zap.Logger
	sio    *socketio.Server
	clock  quartz.Clock
}
