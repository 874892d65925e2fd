package ingestion_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marinlafare/real-chessism/pkg/ingestion"
	"github.com/marinlafare/real-chessism/pkg/redis"
)

type stubSyncer struct {
	calls   []string
	outcome ingestion.Outcome
	err     error
}

func (s *stubSyncer) Sync(_ context.Context, handle string) (ingestion.Outcome, error) {
	s.calls = append(s.calls, handle)
	return s.outcome, s.err
}

type stubMutex struct {
	held map[string]bool
	keys []string
	err  error
}

func (m *stubMutex) WithLock(_ context.Context, key string, _ time.Duration, fn func() error) error {
	m.keys = append(m.keys, key)
	if m.err != nil {
		return m.err
	}
	if m.held[key] {
		return redis.ErrLockNotAcquired
	}
	return fn()
}

func TestGuard_RunsUnderHandleLock(t *testing.T) {
	syncer := &stubSyncer{outcome: &ingestion.NothingToDo{Handle: "alice"}}
	mutex := &stubMutex{held: map[string]bool{}}
	guard := ingestion.NewGuard(syncer, mutex, time.Minute)

	outcome, err := guard.Sync(context.Background(), " Alice ")
	require.NoError(t, err)
	assert.IsType(t, &ingestion.NothingToDo{}, outcome)
	assert.Equal(t, []string{"sync:alice"}, mutex.keys)
	assert.Len(t, syncer.calls, 1)
}

func TestGuard_LockHeldElsewhere(t *testing.T) {
	syncer := &stubSyncer{}
	mutex := &stubMutex{held: map[string]bool{"sync:alice": true}}
	guard := ingestion.NewGuard(syncer, mutex, time.Minute)

	_, err := guard.Sync(context.Background(), "alice")
	assert.ErrorIs(t, err, ingestion.ErrSyncInProgress)
	assert.Empty(t, syncer.calls)
}

func TestGuard_PassesSyncErrorThrough(t *testing.T) {
	failure := &ingestion.Failed{Handle: "alice", Stage: ingestion.StageFetch, Cause: errors.New("boom")}
	syncer := &stubSyncer{outcome: failure, err: failure}
	guard := ingestion.NewGuard(syncer, &stubMutex{held: map[string]bool{}}, 0)

	outcome, err := guard.Sync(context.Background(), "alice")
	assert.Same(t, failure, outcome)
	assert.ErrorIs(t, err, failure)
}

func TestGuard_LockBackendError(t *testing.T) {
	syncer := &stubSyncer{}
	guard := ingestion.NewGuard(syncer, &stubMutex{err: errors.New("redis down")}, 0)

	_, err := guard.Sync(context.Background(), "alice")
	assert.EqualError(t, err, "redis down")
	assert.Empty(t, syncer.calls)
}

func TestGuard_WithoutMutex(t *testing.T) {
	syncer := &stubSyncer{outcome: &ingestion.NothingToDo{}}
	guard := ingestion.NewGuard(syncer, nil, 0)

	_, err := guard.Sync(context.Background(), "alice")
	require.NoError(t, err)
	assert.Len(t, syncer.calls, 1)
}
