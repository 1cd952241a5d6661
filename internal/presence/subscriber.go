package presence

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/drawspace/core/internal/transport"
)

// subscription tracks one callback's disposal. The flag is checked before
// every delivery but never held across one, so a callback may unsubscribe
// itself without deadlocking; at most one already-in-flight emission can
// still complete after dispose returns.
type subscription struct {
	mu          sync.Mutex
	disposed    bool
	cancelWatch func()
}

func (sub *subscription) dispose() {
	sub.mu.Lock()
	if sub.disposed {
		sub.mu.Unlock()
		return
	}
	sub.disposed = true
	cancel := sub.cancelWatch
	sub.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Subscribe watches a scope and invokes cb with the full current member
// list, excluding this session's own user, on every change. The returned
// unsubscribe func is idempotent, callable from inside cb, and safe after
// session teardown; an emission already in flight when it is called may
// still be delivered. If the listener cannot be set up the error is logged
// once and a no-op unsubscribe is returned, so caller cleanup code stays
// valid.
func (s *Session) Subscribe(scope Scope, cb func(members []Record)) (unsubscribe func()) {
	noop := func() {}
	if cb == nil {
		return noop
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return noop
	}
	s.mu.Unlock()

	ch, cancelWatch, err := s.tr.Watch(s.watchCtx, scope.Key())
	if err != nil {
		s.log.Warn("presence subscription failed",
			zap.String("scope", scope.Key()), zap.Error(err))
		return noop
	}

	sub := &subscription{cancelWatch: cancelWatch}
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = sub
	s.subMu.Unlock()

	scopeKey := scope.Key()
	go func() {
		for snap := range ch {
			members := s.decodeMembers(snap)

			s.subMu.Lock()
			s.latest[scopeKey] = members
			s.subMu.Unlock()

			sub.mu.Lock()
			disposed := sub.disposed
			sub.mu.Unlock()
			if disposed {
				return
			}
			// invoked without holding sub.mu: the callback may call its own
			// unsubscribe
			cb(members)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.dispose()
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Session) decodeMembers(snap transport.Snapshot) []Record {
	return MembersFromSnapshot(snap, s.identity.UserID, s.clock.Now(), s.opts.OfflineTimeout)
}

// MembersFromSnapshot turns a transport snapshot into the member list
// consumers see: the excluded user (if any) and undecodable entries are
// skipped, records past the offline timeout are dropped (the reader-side
// half of disappearance detection), and order is deterministic.
func MembersFromSnapshot(snap transport.Snapshot, excludeUserID string, now time.Time, offlineTimeout time.Duration) []Record {
	expireBefore := now.Add(-offlineTimeout).UnixMilli()

	members := make([]Record, 0, len(snap.Members))
	for memberID, raw := range snap.Members {
		if excludeUserID != "" && memberID == excludeUserID {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		if rec.LastSeen < expireBefore {
			continue
		}
		members = append(members, rec)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].UserID < members[j].UserID })
	return members
}
