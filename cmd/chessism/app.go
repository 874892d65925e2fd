package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/marinlafare/real-chessism/config"
	"github.com/marinlafare/real-chessism/db"
	"github.com/marinlafare/real-chessism/internal/handlers"
	"github.com/marinlafare/real-chessism/pkg/archive"
	"github.com/marinlafare/real-chessism/pkg/database"
	"github.com/marinlafare/real-chessism/pkg/dedup"
	"github.com/marinlafare/real-chessism/pkg/events"
	"github.com/marinlafare/real-chessism/pkg/health"
	"github.com/marinlafare/real-chessism/pkg/ingestion"
	"github.com/marinlafare/real-chessism/pkg/middleware"
	"github.com/marinlafare/real-chessism/pkg/queue"
	"github.com/marinlafare/real-chessism/pkg/redis"
	"github.com/marinlafare/real-chessism/pkg/repositories"
	"github.com/marinlafare/real-chessism/pkg/scheduler"
	"github.com/marinlafare/real-chessism/pkg/startup"
)

const (
	depDatabase  = "database"
	depRedis     = "redis"
	depKafka     = "kafka"
	depIngestion = "ingestion"
	depQueue     = "queue"
	depScheduler = "scheduler"
	depHTTP      = "http"

	pacerKey = "archive"
)

// app holds every long-lived component. Fields are filled in as the startup
// dependencies come up.
type app struct {
	cfg    *config.Config
	logger ectologger.Logger
	health *health.Checker

	db       database.DB
	redis    *redis.Client
	streams  *redis.Streams
	locker   *redis.Locker
	producer *events.Producer

	breaker   *gobreaker.CircuitBreaker[any]
	players   *repositories.PlayerRepository
	games     *repositories.GameRepository
	moves     *repositories.MoveRepository
	months    *repositories.MonthSummaryRepository
	coord     *ingestion.Coordinator
	guard     *ingestion.Guard
	processor *queue.Processor
	scheduler *scheduler.Scheduler

	server *http.Server
}

func newApp(cfg *config.Config, logger ectologger.Logger) *app {
	return &app{
		cfg:    cfg,
		logger: logger,
		health: health.NewChecker(cfg.Version),
	}
}

// register adds the dependencies enabled by the config. Background workers run
// on runCtx.
func (a *app) register(runCtx context.Context, boot *startup.Startup) {
	boot.AddDependency(startup.Func{Name: depDatabase, StartFn: a.startDatabase, StopFn: a.stopDatabase})

	ingestionDeps := []string{depDatabase}
	if a.cfg.RedisEnabled {
		boot.AddDependency(startup.Func{Name: depRedis, StartFn: a.startRedis, StopFn: a.stopRedis})
		ingestionDeps = append(ingestionDeps, depRedis)
	}
	if a.cfg.KafkaEnabled {
		boot.AddDependency(startup.Func{Name: depKafka, StartFn: a.startKafka, StopFn: a.stopKafka})
		ingestionDeps = append(ingestionDeps, depKafka)
	}

	boot.AddDependency(startup.Func{Name: depIngestion, Requires: ingestionDeps, StartFn: a.startIngestion})

	if a.cfg.QueueEnabled {
		boot.AddDependency(startup.Func{
			Name:     depQueue,
			Requires: []string{depIngestion, depRedis},
			StartFn:  func(ctx context.Context) error { return a.startQueue(runCtx) },
			StopFn:   func(ctx context.Context) error { return a.processor.Stop(ctx) },
		})
	}
	if a.cfg.SchedulerEnabled {
		boot.AddDependency(startup.Func{
			Name:     depScheduler,
			Requires: []string{depIngestion, depRedis},
			StartFn:  func(ctx context.Context) error { return a.startScheduler(runCtx) },
			StopFn:   func(ctx context.Context) error { return a.scheduler.Stop(ctx) },
		})
	}

	boot.AddDependency(startup.Func{Name: depHTTP, Requires: []string{depIngestion}, StartFn: a.startHTTP})
}

func (a *app) startDatabase(ctx context.Context) error {
	conn, err := database.Connect(ctx, a.cfg.DatabaseDSN(), database.PoolConfig{
		MaxOpenConns:    a.cfg.DatabaseMaxOpenConns,
		MaxIdleConns:    a.cfg.DatabaseMaxIdleConns,
		ConnMaxLifetime: a.cfg.DatabaseConnMaxLifetime,
	}, a.logger)
	if err != nil {
		return err
	}

	migrations := database.NewMigrationService(a.logger, &database.MigrationConfig{
		Files:        db.Migrations,
		Dir:          db.Dir,
		DatabaseName: a.cfg.DatabaseName,
		Version:      a.cfg.DatabaseMigrationVersion,
		Force:        a.cfg.DatabaseMigrationForce,
		AutoRollback: a.cfg.DatabaseMigrationAutoRollback,
	})
	if err := migrations.Migrate(conn.SQL()); err != nil {
		_ = conn.Close()
		return err
	}

	a.db = conn
	a.health.AddPing(depDatabase, conn.PingContext)
	return nil
}

func (a *app) stopDatabase(context.Context) error {
	return a.db.Close()
}

func (a *app) startRedis(ctx context.Context) error {
	client, err := redis.NewClient(ctx, redis.Config{
		Host:     a.cfg.RedisHost,
		Port:     a.cfg.RedisPort,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	}, a.logger)
	if err != nil {
		return err
	}

	a.redis = client
	a.streams = redis.NewStreams(client)
	a.locker = redis.NewLocker(client, "")
	a.health.AddPing(depRedis, client.Ping)
	return nil
}

func (a *app) stopRedis(context.Context) error {
	return a.redis.Close()
}

func (a *app) startKafka(ctx context.Context) error {
	brokers := a.cfg.KafkaBrokerList()
	if err := events.CheckBrokers(ctx, brokers); err != nil {
		return err
	}
	a.producer = events.NewProducer(events.Config{Brokers: brokers, Topic: a.cfg.KafkaSyncTopic}, a.logger)
	a.health.AddPing(depKafka, func(ctx context.Context) error { return events.CheckBrokers(ctx, brokers) })
	return nil
}

func (a *app) stopKafka(context.Context) error {
	return a.producer.Close()
}

// startIngestion builds the archive client, repositories and the sync coordinator.
func (a *app) startIngestion(context.Context) error {
	cfg := a.cfg

	a.breaker = archive.NewBreaker(archive.BreakerConfig{
		Name:           "chess.com",
		MaxRequests:    cfg.BreakerMaxRequests,
		Interval:       cfg.BreakerInterval,
		Timeout:        cfg.BreakerTimeout,
		FailureRatio:   cfg.BreakerFailureRatio,
		MinimumSamples: cfg.BreakerMinimumSamples,
	}, a.logger)
	a.health.AddCheck("archive", health.BreakerCheck(a.breaker))

	var pacer archive.Pacer = archive.NewLocalPacer(cfg.ArchiveMinDelay)
	if cfg.ArchiveSharedPacer {
		pacer = archive.NewSharedPacer(redis.NewRateLimiter(a.redis, ""), pacerKey, cfg.ArchiveMinDelay, a.logger)
	}

	source := archive.NewClient(archive.Config{
		BaseURL:       cfg.ArchiveBaseURL,
		UserAgent:     cfg.ArchiveUserAgent,
		MaxConcurrent: cfg.ArchiveMaxConcurrent,
		Retry: archive.RetryPolicy{
			MaxAttempts: 2,
			Backoff:     cfg.ArchiveRetryBackoff,
			Timeouts:    []time.Duration{cfg.ArchiveFirstTimeout, cfg.ArchiveRetryTimeout},
		},
	}, pacer, a.breaker, a.logger)

	filterCfg := dedup.Config{Strategy: cfg.DedupStrategy, ChunkSize: cfg.DedupChunkSize}
	gameFilter, err := dedup.New(filterCfg, a.db, dedup.GameLinks, a.logger)
	if err != nil {
		return err
	}
	playerFilter, err := dedup.New(filterCfg, a.db, dedup.PlayerNames, a.logger)
	if err != nil {
		return err
	}

	a.players = repositories.NewPlayerRepository(a.db, a.logger)
	a.games = repositories.NewGameRepository(a.db, a.logger)
	a.moves = repositories.NewMoveRepository(a.db, a.logger)
	a.months = repositories.NewMonthSummaryRepository(a.db, a.logger)

	var publisher events.Publisher = events.NopPublisher{}
	if a.producer != nil {
		publisher = a.producer
	}

	a.coord = ingestion.NewCoordinator(ingestion.Dependencies{
		Source:       source,
		Players:      a.players,
		Games:        a.games,
		Moves:        a.moves,
		Months:       a.months,
		GameFilter:   gameFilter,
		PlayerFilter: playerFilter,
		Publisher:    publisher,
	}, ingestion.Config{DecodeWorkers: cfg.DecodeWorkers}, a.logger)

	var mutex ingestion.Mutex
	if a.locker != nil {
		mutex = a.locker
	}
	a.guard = ingestion.NewGuard(a.coord, mutex, cfg.SyncLockTTL)
	return nil
}

func (a *app) startQueue(runCtx context.Context) error {
	pc := queue.DefaultProcessorConfig()
	pc.Stream = a.cfg.QueueStream
	pc.ConsumerGroup = a.cfg.QueueConsumerGroup
	if a.cfg.QueueConsumerName != "" {
		pc.ConsumerName = a.cfg.QueueConsumerName
	}
	pc.WorkerCount = a.cfg.QueueWorkers

	a.processor = queue.NewProcessor(a.streams, a.guard, pc, a.logger)
	return a.processor.Start(runCtx)
}

func (a *app) startScheduler(runCtx context.Context) error {
	sc := scheduler.DefaultConfig()
	sc.PollInterval = a.cfg.SchedulerInterval
	sc.ResyncAfter = a.cfg.SchedulerResyncAfter
	sc.BatchSize = a.cfg.SchedulerBatchSize
	sc.JobQueue = a.cfg.QueueStream

	a.scheduler = scheduler.NewScheduler(a.players, a.streams, a.locker, sc, a.logger)
	return a.scheduler.Start(runCtx)
}

// startHTTP builds the router. The server itself is started by run.
func (a *app) startHTTP(ctx context.Context) error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.Error(a.logger)

	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(a.cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(a.logger))

	a.health.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	var apiMiddleware []echo.MiddlewareFunc
	if a.cfg.AuthEnabled {
		verifier, err := middleware.NewOIDCVerifier(ctx, a.cfg.AuthIssuerURL, a.cfg.AuthClientID)
		if err != nil {
			return err
		}
		apiMiddleware = append(apiMiddleware, middleware.Authentication(a.logger, verifier))
	}

	var publisher queue.Publisher
	if a.streams != nil {
		publisher = a.streams
	}
	games := handlers.NewGameHandler(a.guard, publisher, a.cfg.QueueStream, a.games, a.moves, a.logger)
	players := handlers.NewPlayerHandler(a.players, a.months, a.coord)
	handlers.RegisterRoutes(e, games, players, apiMiddleware...)

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Port),
		Handler:      e,
		ReadTimeout:  time.Duration(a.cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(a.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(a.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
	}
	return nil
}
