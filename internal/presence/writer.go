package presence

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/drawspace/core/internal/transport"
)

// writerQueueSize bounds pending presence writes. When the queue is full
// the write is dropped: presence is auxiliary and must never block or fail
// the caller.
const writerQueueSize = 256

// writer serializes this client's transport writes on a single worker so
// successive writes to the same scope are observed in issue order, while
// callers never block on I/O.
type writer struct {
	tr  transport.Transport
	log *zap.Logger

	mu     sync.Mutex
	closed bool
	ops    chan func(ctx context.Context)
	done   chan struct{}

	// consecutive publish failures, for the degraded flag
	failStreak atomic.Int32
}

func newWriter(tr transport.Transport, log *zap.Logger) *writer {
	w := &writer{
		tr:   tr,
		log:  log,
		ops:  make(chan func(ctx context.Context), writerQueueSize),
		done: make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *writer) loop() {
	defer close(w.done)
	ctx := context.Background()
	for fn := range w.ops {
		fn(ctx)
	}
}

func (w *writer) enqueue(name string, fn func(ctx context.Context)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.ops <- fn:
	default:
		w.log.Warn("presence write dropped, queue full", zap.String("op", name))
	}
}

// close drains the queue (pending removals included) and stops the worker.
func (w *writer) close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.ops)
	w.mu.Unlock()
	<-w.done
}

func (w *writer) consecutiveFailures() int {
	return int(w.failStreak.Load())
}

// publish upserts a record under a scope. Failures are logged and
// swallowed.
func (w *writer) publish(scope Scope, rec Record) {
	key := scope.Key()
	w.enqueue("publish", func(ctx context.Context) {
		data, err := json.Marshal(rec)
		if err != nil {
			w.log.Warn("presence record encode failed", zap.String("scope", key), zap.Error(err))
			return
		}
		if err := w.tr.Set(ctx, key, rec.UserID, data); err != nil {
			w.failStreak.Add(1)
			w.log.Warn("presence publish failed", zap.String("scope", key), zap.Error(err))
			return
		}
		w.failStreak.Store(0)
	})
}

// remove deletes a record and, only if the delete succeeded, clears the
// auto-remove hook for it. A failed delete leaves the hook installed so the
// transport (or the reader-side offline timeout) finishes the cleanup.
func (w *writer) remove(scope Scope, userID, connectionID string) {
	key := scope.Key()
	w.enqueue("remove", func(ctx context.Context) {
		if err := w.tr.Delete(ctx, key, userID); err != nil {
			w.log.Warn("presence remove failed, relying on offline timeout",
				zap.String("scope", key), zap.Error(err))
			return
		}
		if err := w.tr.ClearAutoRemove(ctx, key, userID, connectionID); err != nil {
			w.log.Warn("presence auto-remove clear failed", zap.String("scope", key), zap.Error(err))
		}
	})
}

// installAutoRemove registers the server-enforced cleanup mutation for a
// scope. Must be issued before any publish traffic on that scope.
func (w *writer) installAutoRemove(scope Scope, userID, connectionID string) {
	key := scope.Key()
	w.enqueue("auto-remove", func(ctx context.Context) {
		if err := w.tr.RegisterAutoRemove(ctx, key, userID, connectionID); err != nil {
			w.log.Warn("presence auto-remove install failed", zap.String("scope", key), zap.Error(err))
		}
	})
}
