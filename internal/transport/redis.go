package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/zap"

	pkgredis "github.com/drawspace/core/internal/pkg/redis"
)

const (
	redisKeyScopePrefix = "ds:presence:scope:"
	redisKeySweepPrefix = "ds:presence:sweep:"
	redisKeyScopeIndex  = "ds:presence:scopes"
	redisChanPrefix     = "ds:presence:sync:"

	redisOpTimeout = 2 * time.Second
)

// Redis stores presence records in one hash per scope and fans changes out
// over pub/sub. Redis has no on-disconnect hook, so the auto-remove contract
// is met by a periodic sweeper: RegisterAutoRemove marks a record as
// sweepable, ClearAutoRemove unmarks it, and the sweeper deletes marked
// records whose freshness stamp is older than the offline timeout (larger
// worst-case staleness, same end state).
type Redis struct {
	rc     *pkgredis.Client
	logger *zap.Logger
}

func NewRedis(rc *pkgredis.Client, logger *zap.Logger) *Redis {
	return &Redis{rc: rc, logger: logger}
}

func (r *Redis) Available() bool { return r.rc != nil }

func (r *Redis) Set(ctx context.Context, scopeKey, memberID string, value json.RawMessage) error {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	if err := r.rc.HSet(ctx, redisKeyScopePrefix+scopeKey, memberID, string(value)); err != nil {
		return err
	}
	if err := r.rc.SAdd(ctx, redisKeyScopeIndex, scopeKey); err != nil {
		r.logger.Warn("presence scope index update failed", zap.String("scope", scopeKey), zap.Error(err))
	}
	return r.notify(ctx, scopeKey)
}

func (r *Redis) Delete(ctx context.Context, scopeKey, memberID string) error {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	if err := r.rc.HDel(ctx, redisKeyScopePrefix+scopeKey, memberID); err != nil {
		return err
	}
	return r.notify(ctx, scopeKey)
}

func (r *Redis) Snapshot(ctx context.Context, scopeKey string) (Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	raw, err := r.rc.HGetAll(ctx, redisKeyScopePrefix+scopeKey)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{ScopeKey: scopeKey, Members: make(map[string]json.RawMessage, len(raw))}
	for memberID, value := range raw {
		snap.Members[memberID] = json.RawMessage(value)
	}
	return snap, nil
}

func (r *Redis) Watch(ctx context.Context, scopeKey string) (<-chan Snapshot, func(), error) {
	sub := r.rc.Subscribe(ctx, redisChanPrefix+scopeKey)
	out := make(chan Snapshot, watcherBuffer)

	watchCtx, stop := context.WithCancel(ctx)
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			stop()
			_ = sub.Close()
		})
	}

	go func() {
		defer close(out)

		emit := func() {
			snap, err := r.Snapshot(watchCtx, scopeKey)
			if err != nil {
				if watchCtx.Err() == nil {
					r.logger.Warn("presence snapshot read failed", zap.String("scope", scopeKey), zap.Error(err))
				}
				return
			}
			select {
			case out <- snap:
			default:
			}
		}

		emit()
		msgs := sub.Channel()
		for {
			select {
			case <-watchCtx.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				emit()
			}
		}
	}()

	return out, cancel, nil
}

func (r *Redis) RegisterAutoRemove(ctx context.Context, scopeKey, memberID, connectionID string) error {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()
	return r.rc.HSet(ctx, redisKeySweepPrefix+scopeKey, memberID, connectionID)
}

func (r *Redis) ClearAutoRemove(ctx context.Context, scopeKey, memberID, connectionID string) error {
	ctx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	current, err := r.rc.HGetAll(ctx, redisKeySweepPrefix+scopeKey)
	if err != nil {
		return err
	}
	// Another connection of the same user may have re-registered; only the
	// owning connection may clear the hook.
	if current[memberID] != connectionID {
		return nil
	}
	return r.rc.HDel(ctx, redisKeySweepPrefix+scopeKey, memberID)
}

// RunSweeper deletes records whose freshness stamp is older than
// offlineTimeout and republishes the affected scopes. It blocks until ctx
// ends.
func (r *Redis) RunSweeper(ctx context.Context, clock quartz.Clock, interval, offlineTimeout time.Duration) {
	waiter := clock.TickerFunc(ctx, interval, func() error {
		r.sweep(ctx, clock.Now(), offlineTimeout)
		return nil
	}, "presence-sweeper")
	_ = waiter.Wait()
}

type freshnessStamp struct {
	LastSeen int64 `json:"lastSeen"`
}

func (r *Redis) sweep(ctx context.Context, now time.Time, offlineTimeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, 3*redisOpTimeout)
	defer cancel()

	scopeKeys, err := r.rc.SMembers(ctx, redisKeyScopeIndex)
	if err != nil {
		r.logger.Warn("presence sweep scope listing failed", zap.Error(err))
		return
	}

	expireBefore := now.Add(-offlineTimeout).UnixMilli()
	for _, scopeKey := range scopeKeys {
		members, err := r.rc.HGetAll(ctx, redisKeyScopePrefix+scopeKey)
		if err != nil {
			r.logger.Warn("presence sweep read failed", zap.String("scope", scopeKey), zap.Error(err))
			continue
		}
		registrations, err := r.rc.HGetAll(ctx, redisKeySweepPrefix+scopeKey)
		if err != nil {
			r.logger.Warn("presence sweep registration read failed", zap.String("scope", scopeKey), zap.Error(err))
			continue
		}

		stale, orphaned := sweepTargets(members, registrations, expireBefore)

		if len(orphaned) > 0 {
			_ = r.rc.HDel(ctx, redisKeySweepPrefix+scopeKey, orphaned...)
		}
		if len(stale) == 0 {
			if len(members) == 0 {
				_ = r.rc.SRem(ctx, redisKeyScopeIndex, scopeKey)
			}
			continue
		}

		if err := r.rc.HDel(ctx, redisKeyScopePrefix+scopeKey, stale...); err != nil {
			r.logger.Warn("presence sweep delete failed", zap.String("scope", scopeKey), zap.Error(err))
			continue
		}
		_ = r.rc.HDel(ctx, redisKeySweepPrefix+scopeKey, stale...)
		if err := r.notify(ctx, scopeKey); err != nil {
			r.logger.Warn("presence sweep notify failed", zap.String("scope", scopeKey), zap.Error(err))
		}
	}
}

// sweepTargets decides what one sweep pass removes. Only members with a
// live auto-remove registration are sweepable: RegisterAutoRemove marks a
// record, ClearAutoRemove unmarks it, and an unmarked record is never
// deleted here no matter how stale its stamp looks. Registrations whose
// record is already gone are reported as orphaned so the sweep hash does
// not grow without bound.
func sweepTargets(members, registrations map[string]string, expireBefore int64) (stale, orphaned []string) {
	for memberID := range registrations {
		if _, ok := members[memberID]; !ok {
			orphaned = append(orphaned, memberID)
		}
	}

	for memberID, value := range members {
		if _, ok := registrations[memberID]; !ok {
			continue
		}
		var stamp freshnessStamp
		if err := json.Unmarshal([]byte(value), &stamp); err != nil {
			stale = append(stale, memberID)
			continue
		}
		if stamp.LastSeen < expireBefore {
			stale = append(stale, memberID)
		}
	}
	return stale, orphaned
}

func (r *Redis) notify(ctx context.Context, scopeKey string) error {
	return r.rc.Publish(ctx, redisChanPrefix+scopeKey, "sync")
}
