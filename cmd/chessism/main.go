// Command chessism serves the chessism API: it syncs chess.com archives into
// postgres on demand, from a Redis job stream, and on a re-sync schedule.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"go.uber.org/zap"

	"github.com/marinlafare/real-chessism/config"
	"github.com/marinlafare/real-chessism/pkg/startup"
	"github.com/marinlafare/real-chessism/pkg/tracing"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chessism: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, sync, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.AppName, cfg.Version, tracing.OTLPConfig{
		Enabled:  cfg.OTLPEnabled,
		Endpoint: cfg.OTLPEndpoint,
		Protocol: cfg.OTLPProtocol,
		Insecure: cfg.OTLPInsecure,
	})
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}

	// Background workers outlive the signal context so in-flight syncs can
	// finish during shutdown.
	runCtx, cancelRun := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRun()

	a := newApp(cfg, logger)
	boot := startup.NewStartup(logger, cfg.StartupMaxAttempts)
	a.register(runCtx, boot)

	if err := boot.Start(ctx); err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infof("Listening on :%d", cfg.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	a.health.SetReady(true)

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			logger.WithError(err).Error("HTTP server failed")
		}
	}

	a.health.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP server shutdown did not complete")
	}
	if err := boot.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Some dependencies did not stop cleanly")
	}
	cancelRun()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Failed to flush traces")
	}

	logger.Info("Shutdown complete")
	return nil
}

// newLogger builds the zap-backed logger. PRETTY_LOGS switches to the
// development encoder.
func newLogger(cfg *config.Config) (ectologger.Logger, func(), error) {
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = level

	zapLogger, err := zapCfg.Build(zap.Fields(zap.String("service", cfg.AppName), zap.String("version", cfg.Version)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return zapadapter.NewZapEctoLogger(zapLogger, nil), func() { _ = zapLogger.Sync() }, nil
}
