// Package queue runs player syncs from a Redis Streams job queue.
package queue

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/propagation"

	appctx "github.com/marinlafare/real-chessism/pkg/context"
	"github.com/marinlafare/real-chessism/pkg/ingestion"
	"github.com/marinlafare/real-chessism/pkg/metrics"
	"github.com/marinlafare/real-chessism/pkg/redis"
	"github.com/marinlafare/real-chessism/pkg/tracing"
)

var (
	// ErrInvalidJobMessage is returned when a job message is invalid
	ErrInvalidJobMessage = errors.New("invalid job message")
)

const (
	// DefaultBatchSize is the default number of messages to consume at once
	DefaultBatchSize = 10

	// DefaultBlockTimeout is how long to block waiting for messages
	DefaultBlockTimeout = 5 * time.Second

	// DefaultMaxRetries is the default number of deliveries before a job is dropped
	DefaultMaxRetries = 3

	// DefaultClaimInterval is how often to claim stale pending messages
	DefaultClaimInterval = 30 * time.Second

	// DefaultClaimMinIdle is the minimum idle time before claiming a message.
	// A full sync can take minutes, so this is generous.
	DefaultClaimMinIdle = 10 * time.Minute

	// JobTypeSync is the job type for a player sync
	JobTypeSync = "sync"
)

const (
	statusSuccess = "success"
	statusSkipped = "skipped"
	statusFailed  = "failed"
	statusDropped = "dropped"
	statusInvalid = "invalid"
)

// Streams is the subset of *redis.Streams the processor uses.
type Streams interface {
	CreateConsumerGroup(ctx context.Context, stream, group string) error
	Consume(ctx context.Context, stream, group, consumer string, count int64, block time.Duration) ([]redis.StreamMessage, error)
	Ack(ctx context.Context, stream, group string, ids ...string) error
	Pending(ctx context.Context, stream, group string, count int64) ([]goredis.XPendingExt, error)
	Claim(ctx context.Context, stream, group, consumer string, minIdle time.Duration, ids ...string) ([]redis.StreamMessage, error)
}

// Publisher adds jobs to a stream. *redis.Streams implements it.
type Publisher interface {
	Publish(ctx context.Context, stream string, job *redis.JobMessage) (string, error)
}

var (
	_ Streams   = (*redis.Streams)(nil)
	_ Publisher = (*redis.Streams)(nil)
)

// ProcessorConfig holds configuration for the job processor
type ProcessorConfig struct {
	Stream        string
	ConsumerGroup string
	// Consumer name, unique per instance
	ConsumerName  string
	BatchSize     int64
	BlockTimeout  time.Duration
	MaxRetries    int
	ClaimInterval time.Duration
	ClaimMinIdle  time.Duration
	WorkerCount   int
}

// DefaultProcessorConfig returns the default processor configuration
func DefaultProcessorConfig() ProcessorConfig {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = uuid.New().String()[:8]
	}

	return ProcessorConfig{
		Stream:        "chessism:sync-jobs",
		ConsumerGroup: "chessism-workers",
		ConsumerName:  hostname,
		BatchSize:     DefaultBatchSize,
		BlockTimeout:  DefaultBlockTimeout,
		MaxRetries:    DefaultMaxRetries,
		ClaimInterval: DefaultClaimInterval,
		ClaimMinIdle:  DefaultClaimMinIdle,
		WorkerCount:   1,
	}
}

// JobResult holds the result of processing a job
type JobResult struct {
	JobID     string
	MessageID string
	Handle    string
	// Ack is false only for failures worth retrying
	Ack      bool
	Status   string
	Outcome  ingestion.Outcome
	Error    error
	Duration time.Duration
}

// Processor consumes sync jobs and runs them
type Processor struct {
	streams Streams
	syncer  ingestion.Syncer
	config  ProcessorConfig
	logger  ectologger.Logger

	stopCh   chan struct{}
	stoppedC chan struct{}
	jobsCh   chan redis.StreamMessage

	running bool
	mu      sync.RWMutex
}

// NewProcessor creates a new job processor
func NewProcessor(streams Streams, syncer ingestion.Syncer, config ProcessorConfig, logger ectologger.Logger) *Processor {
	defaults := DefaultProcessorConfig()
	if config.Stream == "" {
		config.Stream = defaults.Stream
	}
	if config.ConsumerGroup == "" {
		config.ConsumerGroup = defaults.ConsumerGroup
	}
	if config.ConsumerName == "" {
		config.ConsumerName = defaults.ConsumerName
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.BlockTimeout <= 0 {
		config.BlockTimeout = DefaultBlockTimeout
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	if config.ClaimInterval <= 0 {
		config.ClaimInterval = DefaultClaimInterval
	}
	if config.ClaimMinIdle <= 0 {
		config.ClaimMinIdle = DefaultClaimMinIdle
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = 1
	}

	return &Processor{
		streams:  streams,
		syncer:   syncer,
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
		jobsCh:   make(chan redis.StreamMessage, config.BatchSize*2),
	}
}

// Start starts the processor
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("processor already running")
	}
	p.running = true
	p.mu.Unlock()

	p.logger.WithContext(ctx).Infof("Starting job processor: stream=%s group=%s consumer=%s workers=%d",
		p.config.Stream, p.config.ConsumerGroup, p.config.ConsumerName, p.config.WorkerCount)

	if err := p.streams.CreateConsumerGroup(ctx, p.config.Stream, p.config.ConsumerGroup); err != nil {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
		p.logger.WithContext(ctx).WithError(err).Error("Failed to create consumer group")
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	var workers sync.WaitGroup
	for i := 0; i < p.config.WorkerCount; i++ {
		workers.Add(1)
		go p.worker(ctx, &workers, i)
	}

	var producers sync.WaitGroup
	producers.Add(2)
	go p.consumeLoop(ctx, &producers)
	go p.claimLoop(ctx, &producers)

	go func() {
		<-p.stopCh
		producers.Wait()
		close(p.jobsCh)
		workers.Wait()
		close(p.stoppedC)
	}()

	p.logger.WithContext(ctx).Info("Job processor started")
	return nil
}

// Stop stops the processor gracefully. In-flight syncs finish first.
func (p *Processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.WithContext(ctx).Info("Stopping job processor...")
	close(p.stopCh)

	select {
	case <-p.stoppedC:
		p.logger.WithContext(ctx).Info("Job processor stopped gracefully")
	case <-ctx.Done():
		p.logger.WithContext(ctx).Warn("Job processor shutdown timed out")
		return ctx.Err()
	}
	return nil
}

// IsRunning returns whether the processor is running
func (p *Processor) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

func (p *Processor) consumeLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		messages, err := p.streams.Consume(ctx, p.config.Stream, p.config.ConsumerGroup, p.config.ConsumerName,
			p.config.BatchSize, p.config.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.WithContext(ctx).WithError(err).Warn("Failed to consume messages")
			select {
			case <-time.After(time.Second):
			case <-p.stopCh:
				return
			}
			continue
		}

		for _, msg := range messages {
			select {
			case p.jobsCh <- msg:
			case <-p.stopCh:
				return
			}
		}
	}
}

func (p *Processor) claimLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(p.config.ClaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.claimPendingMessages(ctx)
		}
	}
}

// claimPendingMessages takes over messages left idle by crashed consumers and
// drops those delivered more than MaxRetries times.
func (p *Processor) claimPendingMessages(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "Processor.claimPendingMessages")
	defer span.End()

	pending, err := p.streams.Pending(ctx, p.config.Stream, p.config.ConsumerGroup, p.config.BatchSize)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Failed to get pending messages")
		return
	}

	var staleIDs []string
	for _, msg := range pending {
		if msg.Idle < p.config.ClaimMinIdle {
			continue
		}
		if msg.RetryCount > int64(p.config.MaxRetries) {
			p.logger.WithContext(ctx).Warnf("Message %s exceeded max retries (%d), dropping it", msg.ID, msg.RetryCount)
			p.ack(ctx, msg.ID)
			metrics.RecordQueueJob(statusDropped)
			continue
		}
		staleIDs = append(staleIDs, msg.ID)
	}
	if len(staleIDs) == 0 {
		return
	}

	p.logger.WithContext(ctx).Infof("Claiming %d stale pending messages", len(staleIDs))
	claimed, err := p.streams.Claim(ctx, p.config.Stream, p.config.ConsumerGroup, p.config.ConsumerName, p.config.ClaimMinIdle, staleIDs...)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Failed to claim pending messages")
		return
	}

	for _, msg := range claimed {
		select {
		case p.jobsCh <- msg:
		case <-p.stopCh:
			return
		default:
			// workers are busy; the message stays pending for the next claim
		}
	}
}

func (p *Processor) worker(ctx context.Context, wg *sync.WaitGroup, id int) {
	defer wg.Done()

	p.logger.WithContext(ctx).Debugf("Worker %d started", id)
	for msg := range p.jobsCh {
		metrics.QueueJobsInFlight.Inc()
		result := p.processMessage(ctx, msg)
		metrics.QueueJobsInFlight.Dec()
		metrics.RecordQueueJob(result.Status)

		if result.Ack {
			p.ack(ctx, msg.ID)
		} else {
			p.logger.WithContext(ctx).WithError(result.Error).Warnf("Job %s failed, will be retried", result.JobID)
		}
	}
	p.logger.WithContext(ctx).Debugf("Worker %d stopped", id)
}

func (p *Processor) ack(ctx context.Context, id string) {
	if err := p.streams.Ack(ctx, p.config.Stream, p.config.ConsumerGroup, id); err != nil {
		p.logger.WithContext(ctx).WithError(err).Warnf("Failed to ack message %s", id)
	}
}

// processMessage runs one job and decides whether its message can be acked.
func (p *Processor) processMessage(ctx context.Context, msg redis.StreamMessage) *JobResult {
	result := &JobResult{MessageID: msg.ID}

	job := msg.Job
	if job == nil || job.Type != JobTypeSync || strings.TrimSpace(job.Handle) == "" {
		p.logger.WithContext(ctx).Warnf("Dropping invalid job message %s", msg.ID)
		result.Ack, result.Status, result.Error = true, statusInvalid, ErrInvalidJobMessage
		return result
	}
	result.JobID = job.ID
	result.Handle = job.Handle

	ctx = propagation.TraceContext{}.Extract(ctx, propagation.MapCarrier(job.Headers))
	ctx = appctx.SetRequestID(ctx, job.ID)
	ctx, span := tracing.StartSpan(ctx, "Processor.processJob")
	defer span.End()

	p.logger.WithContext(ctx).Infof("Processing sync job %s for %s", job.ID, job.Handle)

	start := time.Now()
	outcome, err := p.syncer.Sync(ctx, job.Handle)
	result.Duration = time.Since(start)
	result.Outcome = outcome
	result.Error = err

	var failed *ingestion.Failed
	switch {
	case err == nil:
		result.Ack, result.Status = true, statusSuccess
	case errors.Is(err, ingestion.ErrSyncInProgress):
		// the running sync covers this job
		result.Ack, result.Status = true, statusSkipped
	case errors.As(err, &failed) && failed.StatusCode() < http.StatusInternalServerError:
		// unknown player or bad handle, retrying will not help
		result.Ack, result.Status = true, statusDropped
	default:
		result.Ack, result.Status = false, statusFailed
	}

	p.logger.WithContext(ctx).Infof("Job %s finished with %s in %s", job.ID, result.Status, result.Duration)
	return result
}

// EnqueueSync publishes a sync job for handle, carrying the caller's trace context.
func EnqueueSync(ctx context.Context, publisher Publisher, stream, handle string) (*redis.JobMessage, error) {
	handle = strings.ToLower(strings.TrimSpace(handle))
	if handle == "" {
		return nil, fmt.Errorf("%w: handle is required", ErrInvalidJobMessage)
	}

	job := &redis.JobMessage{
		ID:        uuid.New().String(),
		Type:      JobTypeSync,
		Handle:    handle,
		Headers:   tracing.Carrier(ctx),
		CreatedAt: time.Now().UTC(),
	}
	if _, err := publisher.Publish(ctx, stream, job); err != nil {
		return nil, err
	}
	return job, nil
}
