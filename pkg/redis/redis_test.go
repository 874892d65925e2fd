package redis_test

import (
	"context"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marinlafare/real-chessism/pkg/redis"
)

func getTestClient(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping redis integration test in short mode")
	}

	host := os.Getenv("REDIS_HOST")
	if host == "" {
		host = "localhost"
	}
	port := 6379
	if p, err := strconv.Atoi(os.Getenv("REDIS_PORT")); err == nil {
		port = p
	}

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	client, err := redis.NewClient(context.Background(), redis.Config{Host: host, Port: port}, logger)
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func uniqueKey(prefix string) string {
	return prefix + uuid.NewString()
}

func TestLocker(t *testing.T) {
	client := getTestClient(t)
	ctx := context.Background()
	locker := redis.NewLocker(client, "test:lock:")
	key := uniqueKey("sync:")

	lock, err := locker.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, key, time.Minute)
	assert.ErrorIs(t, err, redis.ErrLockNotAcquired)

	require.NoError(t, lock.Release(ctx))
	assert.ErrorIs(t, lock.Release(ctx), redis.ErrLockNotHeld)

	ran := false
	require.NoError(t, locker.WithLock(ctx, key, time.Minute, func() error {
		ran = true
		_, err := locker.Acquire(ctx, key, time.Minute)
		assert.ErrorIs(t, err, redis.ErrLockNotAcquired)
		return nil
	}))
	assert.True(t, ran)

	boom := errors.New("boom")
	assert.ErrorIs(t, locker.WithLock(ctx, key, time.Minute, func() error { return boom }), boom)
}

func TestLocker_WithLockOutlivesTTL(t *testing.T) {
	client := getTestClient(t)
	ctx := context.Background()
	locker := redis.NewLocker(client, "test:lock:")
	key := uniqueKey("sync:")

	require.NoError(t, locker.WithLock(ctx, key, time.Second, func() error {
		time.Sleep(2500 * time.Millisecond)
		_, err := locker.Acquire(ctx, key, time.Second)
		assert.ErrorIs(t, err, redis.ErrLockNotAcquired)
		return nil
	}))

	lock, err := locker.Acquire(ctx, key, time.Second)
	require.NoError(t, err)
	require.NoError(t, lock.Release(ctx))
}

func TestRateLimiter_SpacesEvents(t *testing.T) {
	client := getTestClient(t)
	ctx := context.Background()
	limiter := redis.NewRateLimiter(client, "test:ratelimit:")
	key := uniqueKey("archive:")
	t.Cleanup(func() { _ = limiter.Reset(context.Background(), key) })

	first, err := limiter.Allow(ctx, key, 1, time.Second)
	require.NoError(t, err)
	assert.True(t, first.Allowed)

	second, err := limiter.Allow(ctx, key, 1, time.Second)
	require.NoError(t, err)
	assert.False(t, second.Allowed)
	assert.Greater(t, second.RetryIn, time.Duration(0))

	require.NoError(t, limiter.BlockFor(ctx, key, time.Minute))
	blocked, ttl, err := limiter.IsBlocked(ctx, key)
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Greater(t, ttl, 50*time.Second)
}

func TestStreams_PublishConsumeAck(t *testing.T) {
	client := getTestClient(t)
	ctx := context.Background()
	streams := redis.NewStreams(client)
	stream := uniqueKey("test:jobs:")
	group := "workers"
	t.Cleanup(func() { _ = client.Del(context.Background(), stream) })

	require.NoError(t, streams.CreateConsumerGroup(ctx, stream, group))
	require.NoError(t, streams.CreateConsumerGroup(ctx, stream, group))

	job := &redis.JobMessage{ID: uuid.NewString(), Type: "sync", Handle: "alice", CreatedAt: time.Now().UTC()}
	id, err := streams.Publish(ctx, stream, job)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs, err := streams.Consume(ctx, stream, group, "consumer-1", 10, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NotNil(t, msgs[0].Job)
	assert.Equal(t, "alice", msgs[0].Job.Handle)
	assert.Equal(t, job.ID, msgs[0].Job.ID)

	pending, err := streams.Pending(ctx, stream, group, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	require.NoError(t, streams.Ack(ctx, stream, group, msgs[0].ID))
	pending, err = streams.Pending(ctx, stream, group, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
