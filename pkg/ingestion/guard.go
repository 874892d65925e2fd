package ingestion

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/marinlafare/real-chessism/pkg/redis"
)

// ErrSyncInProgress is returned when another sync of the same player holds the lock.
var ErrSyncInProgress = errors.New("a sync for this player is already running")

// DefaultLockTTL bounds how long a crashed instance can block a player's syncs.
const DefaultLockTTL = 30 * time.Minute

// Syncer runs one sync.
type Syncer interface {
	Sync(ctx context.Context, handle string) (Outcome, error)
}

// Mutex runs fn while holding a named lock. *redis.Locker implements it.
type Mutex interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

var (
	_ Syncer = (*Coordinator)(nil)
	_ Syncer = (*Guard)(nil)
	_ Mutex  = (*redis.Locker)(nil)
)

// Guard serializes syncs per handle across instances.
type Guard struct {
	syncer Syncer
	mutex  Mutex
	ttl    time.Duration
}

// NewGuard wraps syncer. A nil mutex runs syncs unguarded.
func NewGuard(syncer Syncer, mutex Mutex, ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &Guard{syncer: syncer, mutex: mutex, ttl: ttl}
}

// LockKey is the lock name for handle, relative to the locker prefix.
func LockKey(handle string) string {
	return "sync:" + strings.ToLower(strings.TrimSpace(handle))
}

// Sync runs the wrapped sync under the handle's lock.
func (g *Guard) Sync(ctx context.Context, handle string) (Outcome, error) {
	if g.mutex == nil {
		return g.syncer.Sync(ctx, handle)
	}

	var outcome Outcome
	var syncErr error
	err := g.mutex.WithLock(ctx, LockKey(handle), g.ttl, func() error {
		outcome, syncErr = g.syncer.Sync(ctx, handle)
		return nil
	})
	if errors.Is(err, redis.ErrLockNotAcquired) {
		return nil, ErrSyncInProgress
	}
	if err != nil {
		return nil, err
	}
	return outcome, syncErr
}
