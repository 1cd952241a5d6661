package presence

import "context"

// startHeartbeatLocked runs the periodic liveness refresh until the
// returned cancel fires. Callers hold s.mu.
func (s *Session) startHeartbeatLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	s.hbCancel = cancel
	s.clock.TickerFunc(ctx, s.opts.HeartbeatInterval, func() error {
		s.heartbeatTick()
		return nil
	}, "presence-heartbeat")
}

// heartbeatTick refreshes lastSeen and currentActivity for every held
// scope. It never removes this session's own records; offline
// determination belongs to the transport's auto-remove hook and to
// readers applying the offline timeout. Failed publishes only feed the
// degraded flag.
func (s *Session) heartbeatTick() {
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
