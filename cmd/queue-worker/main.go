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

	"go.uber.org/zap"

	"github.com/hackgods/outpatient-scheduling/internal/app"
	"github.com/hackgods/outpatient-scheduling/internal/config"
	"github.com/hackgods/outpatient-scheduling/internal/logger"
	"github.com/hackgods/outpatient-scheduling/internal/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("queue-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
		zap.Duration("no_show_grace", cfg.NoShowGrace))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.NewCollector("outpatient_scheduling_worker")
	a, err := app.Build(rootCtx, cfg, log, m)
	if err != nil {
		log.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close()

	metricsSrv := metrics.NewServer(":"+cfg.WorkerMetrics, m)
	go func() {
		log.Info("metrics listening", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn("metrics server shutdown failed", zap.Error(err))
		}
	}()

	// Run once at startup
	runOnce(rootCtx, a, log)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown signal received, stopping queue worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, a, log)
		}
	}
}

// runOnce marks overdue appointments missed and resumes leave approvals
// whose cascade stopped part way.
func runOnce(ctx context.Context, a *app.App, log *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	missed, err := a.Engine.SweepMissed(runCtx)
	if err != nil {
		log.Error("missed sweep failed", zap.Error(err))
	}

	resumed, err := a.Leave.RetryOutstanding(runCtx)
	if err != nil {
		log.Warn("some leave approvals are still outstanding", zap.Error(err))
	}

	log.Info("worker run complete",
		zap.Int("missed", missed),
		zap.Int("leave_resumed", resumed),
		zap.Duration("took", time.Since(start)))
}
