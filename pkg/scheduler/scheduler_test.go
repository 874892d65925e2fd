package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marinlafare/real-chessism/pkg/models"
	"github.com/marinlafare/real-chessism/pkg/redis"
)

type fakeLister struct {
	players []models.Player
	before  time.Time
	limit   int
	err     error
}

func (f *fakeLister) ListDueForResync(_ context.Context, syncedBefore time.Time, limit int) ([]models.Player, error) {
	f.before, f.limit = syncedBefore, limit
	return f.players, f.err
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (f *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (*redis.Lock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[key] {
		return nil, redis.ErrLockNotAcquired
	}
	f.held[key] = true
	return &redis.Lock{}, nil
}

type fakePublisher struct {
	mu      sync.Mutex
	handles []string
	failFor string
}

func (f *fakePublisher) Publish(_ context.Context, _ string, job *redis.JobMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if job.Handle == f.failFor {
		return "", errors.New("redis down")
	}
	f.handles = append(f.handles, job.Handle)
	return "1-0", nil
}

func silentLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestRunSchedulingCycle(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	lister := &fakeLister{players: []models.Player{{PlayerName: "alice"}, {PlayerName: "bob"}, {PlayerName: "carol"}}}
	locker := &fakeLocker{held: map[string]bool{LockKeyPrefix + "bob": true}}
	publisher := &fakePublisher{failFor: "carol"}

	s := NewScheduler(lister, publisher, locker, Config{ResyncAfter: 24 * time.Hour, BatchSize: 10}, silentLogger())
	s.now = func() time.Time { return now }

	assert.Equal(t, 1, s.runSchedulingCycle(context.Background()))
	assert.Equal(t, []string{"alice"}, publisher.handles)
	assert.Equal(t, now.Add(-24*time.Hour), lister.before)
	assert.Equal(t, 10, lister.limit)

	// alice's lock is still held, so the next cycle skips her
	assert.Equal(t, 0, s.runSchedulingCycle(context.Background()))
	assert.Equal(t, []string{"alice"}, publisher.handles)
}

func TestRunSchedulingCycle_ListError(t *testing.T) {
	s := NewScheduler(&fakeLister{err: errors.New("db down")}, &fakePublisher{}, &fakeLocker{held: map[string]bool{}}, Config{}, silentLogger())
	assert.Equal(t, 0, s.runSchedulingCycle(context.Background()))
}

func TestScheduler_StartStop(t *testing.T) {
	lister := &fakeLister{}
	s := NewScheduler(lister, &fakePublisher{}, &fakeLocker{held: map[string]bool{}}, Config{PollInterval: time.Hour}, silentLogger())

	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.False(t, s.IsRunning())
}
