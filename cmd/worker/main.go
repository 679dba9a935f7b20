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
	"syscall"
	"time"

	"hookrunner/internal/analytics"
	"hookrunner/internal/api"
	"hookrunner/internal/config"
	"hookrunner/internal/database"
	"hookrunner/internal/domain"
	"hookrunner/internal/execution"
	"hookrunner/internal/logging"
	"hookrunner/internal/metrics"
	"hookrunner/internal/oplog"
	"hookrunner/internal/repository"
	"hookrunner/internal/runner"
	"hookrunner/internal/tracing"
	"hookrunner/internal/webhook"
	"hookrunner/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
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

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	redisClient := initRedis(ctx, cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	tracerProvider, shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	metrics.Register()
	rec := metrics.NewRecorder()

	telemetry := analytics.NewRecorder(initAnalytics(ctx, cfg, logger), cfg.Analytics.InsertTimeout, logger)
	states := repository.NewTaskStates(initTaskStateRepository(redisClient, cfg, logger))

	dispatcher := execution.NewDispatcher(
		webhook.NewSender(cfg.Webhooks, logger),
		db,
		tracerProvider.Tracer("hookrunner/execution"),
		rec,
		logger,
	)
	orchestrator := execution.NewOrchestrator(execution.Deps{
		Store:      db,
		Jobs:       execution.NewJobs(db, logger),
		Dispatcher: dispatcher,
		Runner:     runner.NewClient(cfg.Runner, logger),
		Telemetry:  telemetry,
		Logs:       oplog.NewGetter(db, logger),
		States:     states,
		Metrics:    rec,
		Host:       cfg.Server.PublicURL,
		Logger:     logger,
	})

	taskWorker := worker.NewTaskWorker(orchestrator, redisClient, cfg.Worker, logger)
	go taskWorker.Start(ctx)

	httpServer := api.NewHTTPServer(cfg.API, api.Deps{
		Tasks:    taskWorker,
		Outcomes: orchestrator,
		Results:  db,
		States:   states,
		Health:   healthCheck(db, redisClient),
	}, logger)

	startMetrics(ctx, cfg, logger)

	err = serve(ctx, httpServer, cfg, logger)

	// Stop the worker and let its last task finish before draining.
	stop()
	<-taskWorker.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Outstanding notifications and telemetry writes finish before exit.
	orchestrator.Wait()
	if shutdownErr := shutdownTracing(shutdownCtx); shutdownErr != nil {
		logger.Warn().Err(shutdownErr).Msg("tracing shutdown")
	}

	logger.Info().Msg("hookrunner stopped")
	return err
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

	return cfg, baseLogger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

func initTaskStateRepository(redisClient *redis.Client, cfg *config.Config, logger *zerolog.Logger) domain.TaskStateRepository {
	memory := repository.NewMemoryTaskStateRepository(cfg.Worker.TaskStateTTL)
	if redisClient == nil {
		return memory
	}
	primary := repository.NewRedisTaskStateRepository(redisClient, cfg.Worker.TaskStateTTL)
	return repository.NewFailoverTaskStateRepository(primary, memory, logger)
}

func initAnalytics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) analytics.Client {
	if !cfg.Analytics.Enabled {
		return analytics.NoopClient{}
	}

	client, err := analytics.NewBigQueryClient(ctx, cfg.Analytics)
	if err != nil {
		logger.Warn().Err(err).Msg("bigquery init failed, continuing without analytics")
		return analytics.NoopClient{}
	}

	logger.Info().Str("dataset", cfg.Analytics.DatasetID).Str("table", cfg.Analytics.TableID).Msg("bigquery connected")
	return client
}

func healthCheck(db *database.DB, redisClient *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		if redisClient != nil {
			if err := repository.Ping(ctx, redisClient); err != nil {
				return err
			}
		}
		return nil
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func serve(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			errCh <- err
		}
	}()

	logger.Info().Bool("http_enabled", cfg.API.HTTP.Enabled).Int("http_port", cfg.API.HTTP.Port).Msg("hookrunner started")

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
		logger.Error().Err(serveErr).Msg("http server stopped")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn().Err(err).Msg("http shutdown")
	}
	return serveErr
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
