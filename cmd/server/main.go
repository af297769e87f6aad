// Command server starts the airdrop analyzer HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/httpserver"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/observability"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/airdrop-analyzer/internal/adapter/store/redisstore"
	"github.com/fairyhunter13/airdrop-analyzer/internal/app"
	"github.com/fairyhunter13/airdrop-analyzer/internal/config"
	"github.com/fairyhunter13/airdrop-analyzer/internal/domain"
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

	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()

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

	// The airdrop read model is optional; orchestration works without a database.
	var (
		airdrops domain.AirdropRepository
		pinger   app.Pinger
	)
	if cfg.DBURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.DBURL)
		switch {
		case err != nil:
			slog.Warn("db unavailable, /v1/airdrops disabled", slog.Any("error", err))
		default:
			defer pool.Close()
			if err := postgres.EnsureSchema(ctx, pool); err != nil {
				slog.Warn("schema bootstrap failed", slog.Any("error", err))
			}
			airdrops = postgres.NewAirdropRepo(pool)
			pinger = pool
		}
	}

	var rdb redis.UniversalClient
	if rs, ok := rt.Store.(*redisstore.Store); ok {
		rdb = rs.Client()
	}
	dbCheck, redisCheck := app.BuildReadinessChecks(pinger, rdb)

	srv := httpserver.NewServer(cfg, rt.Client, airdrops, dbCheck, redisCheck)
	handler := app.BuildRouter(cfg, srv)
	if !cfg.AdminEnabled() {
		slog.Warn("ADMIN_TOKEN not set, admin routes disabled")
	}

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// The reset loop is idempotent, so server and worker may both run it.
	bgCtx, stopBg := context.WithCancel(ctx)
	defer stopBg()
	go rt.Pool.RunPeriodicReset(bgCtx, cfg.KeyResetInterval)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
