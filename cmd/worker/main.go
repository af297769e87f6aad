// Package main provides the worker application entry point.
// The worker periodically analyses candidate posts, stores ratings in
// Postgres and publishes one event per stored analysis.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/postsource"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/airdrop-analyzer/internal/app"
	"github.com/fairyhunter13/airdrop-analyzer/internal/config"
	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
	"github.com/fairyhunter13/airdrop-analyzer/internal/usecase"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Worker metrics live on their own port so the server's /metrics is unaffected.
	observability.InitMetrics()
	metricsSrv := &http.Server{Addr: ":9090", Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := app.NewRuntime(ctx, cfg)
	if err != nil {
		slog.Error("runtime init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := rt.Close(); err != nil {
			slog.Error("failed to close kv store", slog.Any("error", err))
		}
	}()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		slog.Error("schema bootstrap failed", slog.Any("error", err))
		os.Exit(1)
	}

	var publisher domain.AnalysisPublisher
	if cfg.AnalysisTopic != "" && len(cfg.KafkaBrokers) > 0 {
		producer, err := redpanda.NewProducer(cfg.KafkaBrokers, cfg.AnalysisTopic)
		if err != nil {
			slog.Error("redpanda producer init failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := producer.Close(); err != nil {
				slog.Error("failed to close producer", slog.Any("error", err))
			}
		}()
		publisher = producer
	} else {
		slog.Info("analysis events disabled")
	}

	pipeline := usecase.NewPipelineService(
		postsource.NewFileSource(cfg.PostsFile),
		rt.Client,
		postgres.NewAirdropRepo(pool),
		publisher,
		cfg.PipelineBatch,
		cfg.APICallDelay,
	)

	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
			slog.Info("background loop stopped", slog.String("loop", name))
		}()
	}
	run("key_reset", func(ctx context.Context) { rt.Pool.RunPeriodicReset(ctx, cfg.KeyResetInterval) })
	run("cache_sweep", func(ctx context.Context) { rt.Cache.RunPeriodicSweep(ctx, cfg.CacheSweepInterval) })
	if cfg.DataRetentionDays > 0 {
		cleanup := postgres.NewCleanupService(pool, cfg.DataRetentionDays)
		run("cleanup", func(ctx context.Context) { cleanup.RunPeriodic(ctx, cfg.CleanupInterval) })
	}
	run("pipeline", func(ctx context.Context) { pipeline.RunPeriodic(ctx, cfg.PipelineInterval) })

	<-ctx.Done()
	slog.Info("shutdown signal received")
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
}
