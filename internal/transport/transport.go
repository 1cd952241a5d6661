// Package transport abstracts the realtime channel presence records travel
// over. The presence core only assumes per-key ordering for a single writer;
// nothing here promises cross-key or cross-client ordering.
package transport

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrUnavailable is returned when the realtime channel is not provisioned.
var ErrUnavailable = errors.New("transport: realtime channel unavailable")

// Snapshot is the full member state of one scope. Watchers always receive
// complete snapshots, never deltas.
type Snapshot struct {
	ScopeKey string
	Members  map[string]json.RawMessage // member id -> encoded record
}

// Clone returns a deep-enough copy safe to hand to a watcher.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{ScopeKey: s.ScopeKey, Members: make(map[string]json.RawMessage, len(s.Members))}
	for k, v := range s.Members {
		out.Members[k] = v
	}
	return out
}

// Transport is the external realtime collaborator. Implementations must
// treat Set/Delete as idempotent upserts/deletes keyed by (scope, member).
type Transport interface {
	// Set upserts one member's record under a scope and fans the new
	// snapshot out to watchers.
	Set(ctx context.Context, scopeKey, memberID string, value json.RawMessage) error
	// Delete removes one member's record. Deleting an absent record is not
	// an error.
	Delete(ctx context.Context, scopeKey, memberID string) error
	// Snapshot reads the current member state of a scope.
	Snapshot(ctx context.Context, scopeKey string) (Snapshot, error)
	// Watch streams full snapshots for a scope until the cancel func is
	// called or ctx ends. The current snapshot is delivered first.
	Watch(ctx context.Context, scopeKey string) (<-chan Snapshot, func(), error)
	// RegisterAutoRemove installs a cleanup mutation that deletes the
	// member's record if the owning connection vanishes without
	// cooperating.
	RegisterAutoRemove(ctx context.Context, scopeKey, memberID, connectionID string) error
	// ClearAutoRemove uninstalls a previously registered cleanup mutation.
	ClearAutoRemove(ctx context.Context, scopeKey, memberID, connectionID string) error
	// Available reports whether the channel is provisioned. When false,
	// every operation is a harmless no-op.
	Available() bool
}

// Noop is the degraded transport used when no realtime channel is
// provisioned. All writes vanish, watches never emit.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (*Noop) Set(context.Context, string, string, json.RawMessage) error { return nil }
func (*Noop) Delete(context.Context, string, string) error               { return nil }

func (*Noop) Snapshot(_ context.Context, scopeKey string) (Snapshot, error) {
	return Snapshot{ScopeKey: scopeKey, Members: map[string]json.RawMessage{}}, nil
}

func (*Noop) Watch(context.Context, string) (<-chan Snapshot, func(), error) {
	ch := make(chan Snapshot)
	close(ch)
	return ch, func() {}, nil
}

func (*Noop) RegisterAutoRemove(context.Context, string, string, string) error { return nil }
func (*Noop) ClearAutoRemove(context.Context, string, string, string) error    { return nil }
func (*Noop) Available() bool                                                  { return false }
