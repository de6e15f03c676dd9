package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/okian/playstack/internal/adapters/http/api"
	"github.com/okian/playstack/internal/adapters/http/swagger"
	"github.com/okian/playstack/internal/adapters/mq/notify"
	"github.com/okian/playstack/internal/adapters/ratestore"
	app "github.com/okian/playstack/internal/app"
	"github.com/okian/playstack/internal/config"
	"github.com/okian/playstack/pkg/logger"
	"github.com/okian/playstack/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 10 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
	redisPingTimeout  = 3 * time.Second
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "playstack exited with error", logger.Error(err))
		os.Exit(1)
	}
}

// run starts every component and blocks until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	// Before any component records or the /metrics handler is built.
	metrics.Init(cfg.MetricsOptions()...)

	opts, closeStore, err := serviceOptions(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	svc := app.New(opts...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	metrics.StartSystemSampler(ctx)

	var wg sync.WaitGroup
	if cfg.KafkaEnabled() {
		consumer, err := notify.New(notify.Config{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		}, svc, notify.WithLogger(log.Named("notify")))
		if err != nil {
			return fmt.Errorf("create notification consumer: %w", err)
		}
		defer func() { _ = consumer.Close() }()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error(ctx, "notification consumer stopped", logger.Error(err))
			}
		}()
	}

	srv := newHTTPServer(ctx, cfg.Addr, svc)
	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or a listener failure
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	log.Info(context.Background(), "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	wg.Wait()

	log.Info(shutdownCtx, "server stopped")
	return nil
}

// serviceOptions maps configuration onto service options. The returned
// func releases the limiter store connection.
func serviceOptions(ctx context.Context, cfg *config.Config, log logger.Logger) ([]app.Option, func(), error) {
	opts := []app.Option{
		app.WithLogger(log.Named("service")),
		app.WithWorkerCount(cfg.RecomputeWorkers),
		app.WithQueueSize(cfg.RecomputeQueueSize),
		app.WithDedupeSize(cfg.NotifyDedupeSize),
		app.WithRateLimit(cfg.RateLimitPoints, cfg.RateLimitWindow()),
		app.WithDefaultPreferences(cfg.DefaultPreferences()),
		app.WithClassifierOptions(cfg.ClassifierOptions()...),
	}
	if cfg.RateLimitStore != config.StoreRedis {
		return opts, func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	store := ratestore.NewRedisStore(rdb, ratestore.WithPrefix(cfg.RedisPrefix))
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("connect rate limit store %s: %w", cfg.RedisAddr, err)
	}
	log.Info(ctx, "using redis rate limit store",
		logger.String("addr", cfg.RedisAddr),
		logger.String("prefix", cfg.RedisPrefix),
	)
	return append(opts, app.WithLimiterStore(store)), func() { _ = rdb.Close() }, nil
}

func newHTTPServer(ctx context.Context, addr string, svc *app.Service) *http.Server {
	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(mux)
	swagger.Register(ctx, mux)
	return &http.Server{
		Addr:              addr,
		Handler:           api.RequestIDMiddleware(mux),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}
