package transport

import (
	"context"
	"encoding/json"
	"sync"
)

// watcherBuffer bounds per-watcher fan-out. A slow watcher loses
// intermediate snapshots, never the stream itself; the next emission is
// always a full snapshot so nothing is left permanently stale.
const watcherBuffer = 64

type autoRemoveKey struct {
	scopeKey string
	memberID string
}

// Memory is an in-process transport used by tests and single-node dev mode.
// It supports the real auto-remove contract: DropConnection applies every
// cleanup mutation registered under a connection id.
type Memory struct {
	mu       sync.Mutex
	scopes   map[string]map[string]json.RawMessage
	watchers map[string]map[int]chan Snapshot
	nextID   int
	// connection id -> set of records to delete on ungraceful disconnect
	autoRemove map[string]map[autoRemoveKey]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		scopes:     map[string]map[string]json.RawMessage{},
		watchers:   map[string]map[int]chan Snapshot{},
		autoRemove: map[string]map[autoRemoveKey]struct{}{},
	}
}

func (m *Memory) Available() bool { return true }

func (m *Memory) Set(_ context.Context, scopeKey, memberID string, value json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	scope, ok := m.scopes[scopeKey]
	if !ok {
		scope = map[string]json.RawMessage{}
		m.scopes[scopeKey] = scope
	}
	scope[memberID] = value
	m.fanOutLocked(scopeKey)
	return nil
}

func (m *Memory) Delete(_ context.Context, scopeKey, memberID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	scope, ok := m.scopes[scopeKey]
	if !ok {
		return nil
	}
	if _, ok := scope[memberID]; !ok {
		return nil
	}
	delete(scope, memberID)
	if len(scope) == 0 {
		delete(m.scopes, scopeKey)
	}
	m.fanOutLocked(scopeKey)
	return nil
}

func (m *Memory) Snapshot(_ context.Context, scopeKey string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked(scopeKey), nil
}

func (m *Memory) Watch(ctx context.Context, scopeKey string) (<-chan Snapshot, func(), error) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	ch := make(chan Snapshot, watcherBuffer)
	if m.watchers[scopeKey] == nil {
		m.watchers[scopeKey] = map[int]chan Snapshot{}
	}
	m.watchers[scopeKey][id] = ch
	ch <- m.snapshotLocked(scopeKey)
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			if set, ok := m.watchers[scopeKey]; ok {
				delete(set, id)
				if len(set) == 0 {
					delete(m.watchers, scopeKey)
				}
			}
			m.mu.Unlock()
			close(ch)
		})
	}

	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return ch, cancel, nil
}

func (m *Memory) RegisterAutoRemove(_ context.Context, scopeKey, memberID, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.autoRemove[connectionID]
	if !ok {
		set = map[autoRemoveKey]struct{}{}
		m.autoRemove[connectionID] = set
	}
	set[autoRemoveKey{scopeKey: scopeKey, memberID: memberID}] = struct{}{}
	return nil
}

func (m *Memory) ClearAutoRemove(_ context.Context, scopeKey, memberID, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.autoRemove[connectionID]
	if !ok {
		return nil
	}
	delete(set, autoRemoveKey{scopeKey: scopeKey, memberID: memberID})
	if len(set) == 0 {
		delete(m.autoRemove, connectionID)
	}
	return nil
}

// DropConnection simulates an ungraceful disconnect: every auto-remove
// mutation registered under the connection fires, then the registration is
// discarded.
func (m *Memory) DropConnection(connectionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.autoRemove[connectionID]
	if !ok {
		return
	}
	delete(m.autoRemove, connectionID)

	touched := map[string]struct{}{}
	for key := range set {
		scope, ok := m.scopes[key.scopeKey]
		if !ok {
			continue
		}
		if _, ok := scope[key.memberID]; !ok {
			continue
		}
		delete(scope, key.memberID)
		if len(scope) == 0 {
			delete(m.scopes, key.scopeKey)
		}
		touched[key.scopeKey] = struct{}{}
	}
	for scopeKey := range touched {
		m.fanOutLocked(scopeKey)
	}
}

func (m *Memory) snapshotLocked(scopeKey string) Snapshot {
	snap := Snapshot{ScopeKey: scopeKey, Members: map[string]json.RawMessage{}}
	for memberID, value := range m.scopes[scopeKey] {
		snap.Members[memberID] = value
	}
	return snap
}

func (m *Memory) fanOutLocked(scopeKey string) {
	set := m.watchers[scopeKey]
	if len(set) == 0 {
		return
	}
	snap := m.snapshotLocked(scopeKey)
	for _, ch := range set {
		select {
		case ch <- snap.Clone():
		default:
		}
	}
}
