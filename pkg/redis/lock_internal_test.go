package redis

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func runKeepAlive(ctx context.Context, extend func(context.Context) error, stop chan struct{}, onError func(error)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		keepAlive(ctx, 10*time.Millisecond, extend, stop, onError)
	}()
	return done
}

func TestKeepAlive_ExtendsUntilStopped(t *testing.T) {
	var calls atomic.Int32
	stop := make(chan struct{})
	done := runKeepAlive(context.Background(), func(context.Context) error {
		calls.Add(1)
		return nil
	}, stop, func(err error) { t.Errorf("unexpected extend error: %v", err) })

	assert.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, 5*time.Millisecond)

	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("keepAlive did not return after stop")
	}
	stopped := calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, calls.Load())
}

func TestKeepAlive_StopsWhenLockLost(t *testing.T) {
	var calls atomic.Int32
	var reported atomic.Value
	done := runKeepAlive(context.Background(), func(context.Context) error {
		calls.Add(1)
		return ErrLockNotHeld
	}, make(chan struct{}), func(err error) { reported.Store(err) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("keepAlive kept running after the lock was lost")
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.ErrorIs(t, reported.Load().(error), ErrLockNotHeld)
}

func TestKeepAlive_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	stop := make(chan struct{})
	done := runKeepAlive(context.Background(), func(context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("connection reset")
		}
		return nil
	}, stop, func(error) {})

	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	close(stop)
	<-done
}

func TestKeepAlive_StopsOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := runKeepAlive(ctx, func(context.Context) error { return nil }, make(chan struct{}), func(error) {})
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("keepAlive did not return after cancel")
	}
}
