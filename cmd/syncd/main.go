package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"nordagri/internal/api"
	"nordagri/internal/app"
	"nordagri/internal/config"
	"nordagri/internal/database"
	"nordagri/internal/logging"
	"nordagri/internal/metrics"
	"nordagri/internal/telemetry"
	"nordagri/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("init app")
		return err
	}
	defer a.Close()

	startMetrics(ctx, cfg, logger)

	if cfg.Monitoring.TracingEnabled {
		tp, err := telemetry.InitTracer(cfg.App.Name, os.Stderr)
		if err != nil {
			return fmt.Errorf("init tracer: %w", err)
		}
		defer func() {
			ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = telemetry.Shutdown(ctxShutdown, tp)
		}()
	}

	monitor := worker.NewConnectivityMonitor(a.Backend, cfg.Sync.ProbeInterval, logging.Component(logger, "connectivity"))
	watcher := worker.NewReconnectWatcher(a.Queue, monitor, worker.RetryPolicyFromConfig(cfg.Sync), logging.Component(logger, "reconnect"))

	var scheduler *worker.Scheduler
	if cfg.Sync.Schedule != "" {
		scheduler = worker.NewScheduler(logging.Component(logger, "scheduler"))
		if err := scheduler.AddFlush(ctx, cfg.Sync.Schedule, a.Queue); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	spawn := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	spawn(func() { watcher.Run(ctx) })
	spawn(func() { monitor.Run(ctx) })
	if scheduler != nil {
		spawn(func() { scheduler.Run(ctx) })
	}

	if a.DB != nil && cfg.Backup.Enabled {
		backups := database.NewBackupService(a.DB, cfg.Backup, logging.Component(logger, "backup"))
		spawn(func() { backups.Start(ctx) })
	}

	var httpServer *api.HTTPServer
	if cfg.API.Enabled {
		httpServer = api.NewHTTPServer(cfg.API, a.Queue, logging.Component(logger, "http"))
		if a.StoreHealth != nil {
			httpServer.AddHealthCheck("storage", a.StoreHealth)
		}
		httpServer.SetConnectivity(monitor)
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.Error().Err(err).Msg("http server stopped")
				stop()
			}
		}()
	}

	logger.Info().
		Str("storage", cfg.Storage.Driver).
		Str("queue", a.Queue.Key()).
		Bool("http", cfg.API.Enabled).
		Msg("sync daemon started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}
	wg.Wait()

	logger.Info().Msg("sync daemon stopped")
	return nil
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := logging.Component(baseLogger, "syncd")

	return cfg, logger, closer, nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
