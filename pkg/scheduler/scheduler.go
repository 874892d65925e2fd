// Package scheduler periodically enqueues re-syncs of players whose last sync is stale.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	appctx "github.com/marinlafare/real-chessism/pkg/context"
	"github.com/marinlafare/real-chessism/pkg/metrics"
	"github.com/marinlafare/real-chessism/pkg/models"
	"github.com/marinlafare/real-chessism/pkg/queue"
	"github.com/marinlafare/real-chessism/pkg/redis"
	"github.com/marinlafare/real-chessism/pkg/tracing"
)

var (
	// ErrSchedulerAlreadyRunning is returned when trying to start an already running scheduler
	ErrSchedulerAlreadyRunning = errors.New("scheduler already running")
)

const (
	// DefaultPollInterval is the default interval between scheduling runs
	DefaultPollInterval = 10 * time.Minute

	// DefaultResyncAfter is how old last_synced_at must be before a player is due
	DefaultResyncAfter = 24 * time.Hour

	// DefaultLockTTL keeps a handle from being enqueued again while its job is queued
	DefaultLockTTL = 30 * time.Minute

	// DefaultBatchSize is the number of players to enqueue per poll
	DefaultBatchSize = 50

	// LockKeyPrefix is the prefix for scheduler locks, relative to the locker prefix
	LockKeyPrefix = "scheduler:sync:"
)

// PlayerLister lists players due for a re-sync. repositories.PlayerRepo implements it.
type PlayerLister interface {
	ListDueForResync(ctx context.Context, syncedBefore time.Time, limit int) ([]models.Player, error)
}

// Locker takes a lock once. *redis.Locker implements it.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*redis.Lock, error)
}

var _ Locker = (*redis.Locker)(nil)

// Config holds configuration for the scheduler
type Config struct {
	PollInterval time.Duration
	ResyncAfter  time.Duration
	// LockTTL is how long a scheduled handle is held before it can be scheduled again
	LockTTL   time.Duration
	BatchSize int
	// JobQueue is the Redis Streams queue name
	JobQueue string
}

// DefaultConfig returns the default scheduler configuration
func DefaultConfig() Config {
	return Config{
		PollInterval: DefaultPollInterval,
		ResyncAfter:  DefaultResyncAfter,
		LockTTL:      DefaultLockTTL,
		BatchSize:    DefaultBatchSize,
		JobQueue:     "chessism:sync-jobs",
	}
}

// Scheduler polls for stale players and enqueues sync jobs for them
type Scheduler struct {
	players   PlayerLister
	publisher queue.Publisher
	locker    Locker
	config    Config
	logger    ectologger.Logger
	now       func() time.Time

	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

// NewScheduler creates a new scheduler
func NewScheduler(players PlayerLister, publisher queue.Publisher, locker Locker, config Config, logger ectologger.Logger) *Scheduler {
	defaults := DefaultConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.ResyncAfter <= 0 {
		config.ResyncAfter = defaults.ResyncAfter
	}
	if config.LockTTL <= 0 {
		config.LockTTL = defaults.LockTTL
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.JobQueue == "" {
		config.JobQueue = defaults.JobQueue
	}

	return &Scheduler{
		players:   players,
		publisher: publisher,
		locker:    locker,
		config:    config,
		logger:    logger,
		now:       time.Now,
		stopCh:    make(chan struct{}),
		stoppedC:  make(chan struct{}),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	s.logger.WithContext(ctx).Infof("Starting scheduler: poll_interval=%s resync_after=%s batch_size=%d",
		s.config.PollInterval, s.config.ResyncAfter, s.config.BatchSize)

	go s.pollLoop(ctx)
	return nil
}

// Stop stops the scheduler gracefully
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.WithContext(ctx).Info("Stopping scheduler...")
	close(s.stopCh)

	select {
	case <-s.stoppedC:
		s.logger.WithContext(ctx).Info("Scheduler stopped gracefully")
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Scheduler shutdown timed out")
		return ctx.Err()
	}
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func (s *Scheduler) pollLoop(ctx context.Context) {
	defer close(s.stoppedC)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	s.runSchedulingCycle(ctx)
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runSchedulingCycle(ctx)
		}
	}
}

// runSchedulingCycle enqueues one batch of due players and returns how many were enqueued.
func (s *Scheduler) runSchedulingCycle(ctx context.Context) int {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.runSchedulingCycle")
	defer span.End()

	start := time.Now()
	due, err := s.players.ListDueForResync(ctx, s.now().Add(-s.config.ResyncAfter), s.config.BatchSize)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("Failed to list players due for re-sync")
		return 0
	}
	if len(due) == 0 {
		s.logger.WithContext(ctx).Debug("No players to re-sync")
		return 0
	}

	scheduled, skipped := 0, 0
	for _, player := range due {
		if err := s.schedule(ctx, player.PlayerName); err != nil {
			if errors.Is(err, redis.ErrLockNotAcquired) {
				skipped++
				continue
			}
			s.logger.WithContext(ctx).WithError(err).Warnf("Failed to schedule re-sync of %s", player.PlayerName)
			continue
		}
		scheduled++
	}

	s.logger.WithContext(ctx).Infof("Scheduling cycle completed: scheduled=%d skipped=%d duration=%s",
		scheduled, skipped, time.Since(start))
	return scheduled
}

// schedule enqueues one handle. The lock is left to expire so the handle is
// not enqueued again by this or another instance until LockTTL passes.
func (s *Scheduler) schedule(ctx context.Context, handle string) error {
	ctx, span := tracing.StartSpan(ctx, "Scheduler.schedule")
	defer span.End()

	if _, err := s.locker.Acquire(ctx, LockKeyPrefix+handle, s.config.LockTTL); err != nil {
		return err
	}

	ctx = appctx.SetHandle(ctx, handle)
	job, err := queue.EnqueueSync(ctx, s.publisher, s.config.JobQueue, handle)
	if err != nil {
		return err
	}
	metrics.SchedulerJobsEnqueued.Inc()
	s.logger.WithContext(ctx).Debugf("Scheduled re-sync of %s (job %s)", handle, job.ID)
	return nil
}
