package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/drawspace/core/internal/transport"
)

// Defaults for the timing knobs. All are overridable via Options.
const (
	DefaultHeartbeatInterval   = 30 * time.Second
	DefaultOfflineTimeout      = 60 * time.Second
	DefaultCursorInterval      = 100 * time.Millisecond
	DefaultActivityQuietWindow = 2000 * time.Millisecond
	DefaultTypingTimeout       = 3000 * time.Millisecond
)

// ErrNoIdentity is returned when a session is constructed without a user id.
var ErrNoIdentity = errors.New("presence: identity requires a user id")

// Options tunes a session. Zero values fall back to the defaults above.
type Options struct {
	HeartbeatInterval   time.Duration
	OfflineTimeout      time.Duration
	CursorInterval      time.Duration
	ActivityQuietWindow time.Duration
	TypingTimeout       time.Duration

	Clock          quartz.Clock
	Logger         *zap.Logger
	ClientMetadata map[string]string
}

func (o Options) withDefaults() Options {
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if o.OfflineTimeout <= 0 {
		o.OfflineTimeout = DefaultOfflineTimeout
	}
	if o.CursorInterval <= 0 {
		o.CursorInterval = DefaultCursorInterval
	}
	if o.ActivityQuietWindow <= 0 {
		o.ActivityQuietWindow = DefaultActivityQuietWindow
	}
	if o.TypingTimeout <= 0 {
		o.TypingTimeout = DefaultTypingTimeout
	}
	if o.Clock == nil {
		o.Clock = quartz.NewReal()
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Session is one client's presence. Construct it at login, close it at
// logout; the convention is a single session per authenticated connection.
// A session holds up to three records at once: global, current project,
// current canvas.
type Session struct {
	identity Identity
	tr       transport.Transport
	log      *zap.Logger
	clock    quartz.Clock
	opts     Options

	w *writer

	mu           sync.Mutex
	closed       bool
	online       bool
	connectionID string
	activity     Activity
	metadata     map[string]string
	cursor       *Cursor
	selection    []string
	typing       bool
	typingCtx    string
	projectID    string
	canvasID     string
	hbCancel     context.CancelFunc
	typingTimer  *quartz.Timer

	cursorThrottle    *throttle
	selectionThrottle *throttle
	activityDebounce  *debouncer

	watchCtx    context.Context
	watchCancel context.CancelFunc

	subMu     sync.Mutex
	subs      map[int]*subscription
	nextSubID int
	latest    map[string][]Record
}

// NewSession connects a client's presence: it installs the global
// auto-remove hook, publishes the global record, and starts the heartbeat.
func NewSession(identity Identity, tr transport.Transport, opts Options) (*Session, error) {
	if identity.UserID == "" {
		return nil, ErrNoIdentity
	}
	if tr == nil {
		tr = transport.NewNoop()
	}
	opts = opts.withDefaults()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	s := &Session{
		identity:     identity,
		tr:           tr,
		log:          opts.Logger,
		clock:        opts.Clock,
		opts:         opts,
		w:            newWriter(tr, opts.Logger),
		online:       true,
		connectionID: uuid.NewString(),
		activity:     ActivityIdle,
		metadata:     opts.ClientMetadata,
		watchCtx:     watchCtx,
		watchCancel:  watchCancel,
		subs:         map[int]*subscription{},
		latest:       map[string][]Record{},
	}
	s.cursorThrottle = newThrottle(opts.Clock, opts.CursorInterval)
	s.selectionThrottle = newThrottle(opts.Clock, opts.CursorInterval)
	s.activityDebounce = newDebouncer(opts.Clock, opts.ActivityQuietWindow)

	if !tr.Available() {
		s.log.Info("presence transport unavailable, session runs as no-op",
			zap.String("user", identity.UserID))
	}

	s.mu.Lock()
	s.w.installAutoRemove(GlobalScope(), identity.UserID, s.connectionID)
	s.w.publish(GlobalScope(), s.recordForLocked(GlobalScope()))
	s.startHeartbeatLocked()
	s.mu.Unlock()

	return s, nil
}

// ConnectionID returns the id of the current connection epoch. It changes
// on every reconnect.
func (s *Session) ConnectionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectionID
}

// Online reports the local connectivity flag.
func (s *Session) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// Degraded reports whether recent heartbeats have been failing. It never
// implies the record was removed; offline determination stays with the
// transport and with readers.
func (s *Session) Degraded() bool {
	return s.w.consecutiveFailures() >= 2
}

// SetOnline is the connection monitor input, fed by the transport's own
// connectivity notification. Going online republishes every held scope
// under a fresh connection id (ephemeral records do not survive a dropped
// connection); going offline just stops the heartbeat. Reconnection itself
// is the transport's job.
func (s *Session) SetOnline(online bool) {
	s.mu.Lock()
	if s.closed || s.online == online {
		s.mu.Unlock()
		return
	}

	if !online {
		s.online = false
		s.cursor = nil
		s.selection = nil
		hbCancel := s.hbCancel
		s.hbCancel = nil
		s.mu.Unlock()
		if hbCancel != nil {
			hbCancel()
		}
		return
	}

	s.online = true
	s.connectionID = uuid.NewString()
	s.cursor = nil
	s.selection = nil
	s.typing = false
	s.typingCtx = ""
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}

	held := s.heldScopesLocked()
	for _, scope := range held {
		// hook first, then traffic
		s.w.installAutoRemove(scope, s.identity.UserID, s.connectionID)
		s.w.publish(scope, s.recordForLocked(scope))
	}
	s.startHeartbeatLocked()
	s.mu.Unlock()
}

// UpdateActivity records what the user is doing. Publishes are coalesced
// with a quiet window; only the value still standing when the window closes
// is ever published.
func (s *Session) UpdateActivity(activity Activity, metadata map[string]string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.activity = activity
	if metadata != nil {
		s.metadata = metadata
	}
	s.mu.Unlock()

	s.activityDebounce.call(s.publishHeldScopes)
}

// UpdateCursorPosition records the pointer location. Cadence is capped;
// intermediate positions are dropped, never queued.
func (s *Session) UpdateCursorPosition(x, y float64) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.cursor = &Cursor{X: x, Y: y}
	s.mu.Unlock()

	s.cursorThrottle.call(s.publishCanvasScope)
}

// UpdateSelectedShapes records the current shape selection, last write
// wins.
func (s *Session) UpdateSelectedShapes(ids []string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.selection = append([]string(nil), ids...)
	s.mu.Unlock()

	s.selectionThrottle.call(s.publishCanvasScope)
}

// Close tears the session down in a fixed order: heartbeat, then
// debouncers and the typing timer, then record removal at every held
// scope, then subscriber listeners. Failures along the way are logged and
// do not abort later steps. Close is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.online = false
	hbCancel := s.hbCancel
	s.hbCancel = nil
	typingTimer := s.typingTimer
	s.typingTimer = nil
	held := s.heldScopesLocked()
	connID := s.connectionID
	s.mu.Unlock()

	if hbCancel != nil {
		hbCancel()
	}

	s.cursorThrottle.stop()
	s.selectionThrottle.stop()
	s.activityDebounce.stop()
	if typingTimer != nil {
		typingTimer.Stop()
	}

	for _, scope := range held {
		s.w.remove(scope, s.identity.UserID, connID)
	}
	// drain the queue so the removals actually reach the transport
	s.w.close()

	s.watchCancel()
	s.subMu.Lock()
	subs := s.subs
	s.subs = map[int]*subscription{}
	s.subMu.Unlock()
	for _, sub := range subs {
		sub.dispose()
	}
}

// heldScopesLocked lists the scopes this session currently publishes
// under: global always, project and canvas when set.
func (s *Session) heldScopesLocked() []Scope {
	scopes := []Scope{GlobalScope()}
	if s.projectID != "" {
		scopes = append(scopes, ProjectScope(s.projectID))
	}
	if s.canvasID != "" {
		scopes = append(scopes, CanvasScope(s.projectID, s.canvasID))
	}
	return scopes
}

// recordForLocked builds the record to publish under one scope from the
// session's current state. Cursor and selection only travel on the canvas
// scope; that is where renderers consume them.
func (s *Session) recordForLocked(scope Scope) Record {
	rec := Record{
		UserID:         s.identity.UserID,
		DisplayName:    s.identity.DisplayName,
		AvatarRef:      s.identity.AvatarRef,
		Online:         s.online,
		LastSeen:       s.clock.Now().UnixMilli(),
		Activity:       s.activity,
		ProjectID:      scope.ProjectID,
		CanvasID:       scope.CanvasID,
		Typing:         s.typing,
		TypingContext:  s.typingCtx,
		ConnectionID:   s.connectionID,
		ClientMetadata: s.metadata,
	}
	if scope.IsCanvas() {
		rec.Cursor = s.cursor
		rec.SelectedShapeIDs = append([]string{}, s.selection...)
	} else {
		rec.SelectedShapeIDs = []string{}
	}
	return rec
}

// publishHeldScopes refreshes every held record from current state.
func (s *Session) publishHeldScopes() {
	s.mu.Lock()
	if s.closed || !s.online {
		s.mu.Unlock()
		return
	}
	type pub struct {
		scope Scope
		rec   Record
	}
	var pubs []pub
	for _, scope := range s.heldScopesLocked() {
		pubs = append(pubs, pub{scope: scope, rec: s.recordForLocked(scope)})
	}
	s.mu.Unlock()

	for _, p := range pubs {
		s.w.publish(p.scope, p.rec)
	}
}

// publishCanvasScope refreshes only the canvas record, the one cursor and
// selection travel on.
func (s *Session) publishCanvasScope() {
	s.mu.Lock()
	if s.closed || !s.online || s.canvasID == "" {
		s.mu.Unlock()
		return
	}
	scope := CanvasScope(s.projectID, s.canvasID)
	rec := s.recordForLocked(scope)
	s.mu.Unlock()

	s.w.publish(scope, rec)
}
