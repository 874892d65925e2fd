package queue_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marinlafare/real-chessism/pkg/ingestion"
	"github.com/marinlafare/real-chessism/pkg/queue"
	"github.com/marinlafare/real-chessism/pkg/redis"
)

func silentLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeStreams struct {
	mu       sync.Mutex
	queued   []redis.StreamMessage
	acked    []string
	groups   []string
	groupErr error
}

func (f *fakeStreams) CreateConsumerGroup(_ context.Context, stream, group string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups = append(f.groups, stream+"/"+group)
	return f.groupErr
}

func (f *fakeStreams) Consume(ctx context.Context, _, _, _ string, _ int64, block time.Duration) ([]redis.StreamMessage, error) {
	f.mu.Lock()
	msgs := f.queued
	f.queued = nil
	f.mu.Unlock()
	if len(msgs) > 0 {
		return msgs, nil
	}
	select {
	case <-time.After(block):
	case <-ctx.Done():
	}
	return nil, nil
}

func (f *fakeStreams) Ack(_ context.Context, _, _ string, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, ids...)
	return nil
}

func (f *fakeStreams) Pending(context.Context, string, string, int64) ([]goredis.XPendingExt, error) {
	return nil, nil
}

func (f *fakeStreams) Claim(context.Context, string, string, string, time.Duration, ...string) ([]redis.StreamMessage, error) {
	return nil, nil
}

func (f *fakeStreams) ackedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.acked...)
}

type result struct {
	outcome ingestion.Outcome
	err     error
}

type fakeSyncer struct {
	mu      sync.Mutex
	results map[string]result
	calls   []string
}

func (f *fakeSyncer) Sync(_ context.Context, handle string) (ingestion.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, handle)
	r := f.results[handle]
	return r.outcome, r.err
}

func (f *fakeSyncer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func syncMessage(id, handle string) redis.StreamMessage {
	return redis.StreamMessage{
		ID:     id,
		Stream: "jobs",
		Job:    &redis.JobMessage{ID: "job-" + id, Type: queue.JobTypeSync, Handle: handle},
	}
}

func failure(stage ingestion.Stage, cause error) result {
	f := &ingestion.Failed{Handle: "x", Stage: stage, Cause: cause}
	return result{outcome: f, err: f}
}

func TestProcessor_AcksByOutcome(t *testing.T) {
	streams := &fakeStreams{queued: []redis.StreamMessage{
		syncMessage("1-0", "alice"),
		{ID: "2-0", Stream: "jobs", Raw: "not json"},
		syncMessage("3-0", "bob"),
		syncMessage("4-0", "ghost"),
		syncMessage("5-0", "carol"),
	}}
	syncer := &fakeSyncer{results: map[string]result{
		"alice": {outcome: &ingestion.Completed{Handle: "alice"}},
		"bob":   failure(ingestion.StageFetch, errors.New("status 503")),
		"ghost": failure(ingestion.StageResolvePlayer, httperror.NewHTTPError(http.StatusNotFound, "player ghost not found")),
		"carol": {err: ingestion.ErrSyncInProgress},
	}}

	p := queue.NewProcessor(streams, syncer, queue.ProcessorConfig{
		Stream:        "jobs",
		ConsumerGroup: "workers",
		ConsumerName:  "test",
		BlockTimeout:  10 * time.Millisecond,
		WorkerCount:   2,
	}, silentLogger())

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.IsRunning())
	assert.Error(t, p.Start(context.Background()))

	require.Eventually(t, func() bool {
		return syncer.callCount() == 4 && len(streams.ackedIDs()) == 4
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Stop(ctx))
	assert.False(t, p.IsRunning())
	require.NoError(t, p.Stop(ctx))

	assert.ElementsMatch(t, []string{"1-0", "2-0", "4-0", "5-0"}, streams.ackedIDs())
	assert.Equal(t, []string{"jobs/workers"}, streams.groups)
}

func TestProcessor_StartFailsWithoutGroup(t *testing.T) {
	streams := &fakeStreams{groupErr: errors.New("NOPERM")}
	p := queue.NewProcessor(streams, &fakeSyncer{}, queue.ProcessorConfig{}, silentLogger())

	assert.Error(t, p.Start(context.Background()))
	assert.False(t, p.IsRunning())
}

type fakePublisher struct {
	stream string
	jobs   []*redis.JobMessage
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, stream string, job *redis.JobMessage) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.stream = stream
	f.jobs = append(f.jobs, job)
	return "1-0", nil
}

func TestEnqueueSync(t *testing.T) {
	pub := &fakePublisher{}

	job, err := queue.EnqueueSync(context.Background(), pub, "jobs", " Alice ")
	require.NoError(t, err)
	assert.Equal(t, "alice", job.Handle)
	assert.Equal(t, queue.JobTypeSync, job.Type)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "jobs", pub.stream)
	require.Len(t, pub.jobs, 1)

	_, err = queue.EnqueueSync(context.Background(), pub, "jobs", "")
	assert.ErrorIs(t, err, queue.ErrInvalidJobMessage)

	_, err = queue.EnqueueSync(context.Background(), &fakePublisher{err: errors.New("redis down")}, "jobs", "bob")
	assert.EqualError(t, err, "redis down")
}
