// Command matcher re-runs match detection for every recorded swipe and keeps
// the live session index tidy.
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

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tastebuds/match-app/internal/audit"
	"github.com/tastebuds/match-app/internal/config"
	"github.com/tastebuds/match-app/internal/db"
	"github.com/tastebuds/match-app/internal/logging"
	"github.com/tastebuds/match-app/internal/matching"
	"github.com/tastebuds/match-app/internal/messaging"
	"github.com/tastebuds/match-app/internal/metrics"
	"github.com/tastebuds/match-app/internal/session"
	"github.com/tastebuds/match-app/internal/swipe"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "matcher: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Production: cfg.Log.Production,
		File:       cfg.Log.File,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "matcher: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting matching service")

	// Redis setup.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		logger.Fatal("connect redis", zap.Error(err))
	}

	// Postgres setup. The API server owns migrations.
	pg, err := db.Connect(ctx, db.Options{
		DSN:          cfg.Postgres.DSN,
		MaxOpenConns: cfg.Postgres.MaxOpenConns,
		MaxIdleConns: cfg.Postgres.MaxIdleConns,
	})
	cancel()
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}

	// NATS setup.
	natsClient, err := messaging.NewNATSClient(messaging.NATSConfig{
		URL:           cfg.NATS.URL,
		Name:          "tastebuds-matcher",
		ReconnectWait: cfg.NATS.ReconnectWait,
		MaxReconnects: cfg.NATS.MaxReconnects,
	}, logger)
	if err != nil {
		logger.Fatal("connect nats", zap.Error(err))
	}

	auditor := audit.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)

	store := session.NewRedisStore(rdb, cfg.Session.TTL)
	sessions := session.NewService(session.ServiceDeps{
		Store:     store,
		Publisher: natsClient,
		Audit:     auditor,
		Logger:    logger,
	}, session.DefaultServiceConfig())
	ledger := swipe.NewRedisLedger(rdb, cfg.Session.TTL)

	detector := matching.NewDetector(matching.DetectorDeps{
		Sessions: sessions,
		Swipes:   ledger,
		Repo:     matching.NewPostgresRepository(pg),
		Notifier: natsClient,
		Audit:    auditor,
		Logger:   logger,
	})
	completion := swipe.NewService(swipe.ServiceDeps{
		Ledger:   ledger,
		Sessions: sessions,
		Logger:   logger,
	})
	cleaner := matching.NewCleaner(store, completion, logger)

	svc := matching.NewService(detector, natsClient, cleaner, cfg.Matcher.CleanupInterval, logger)
	if err := svc.Start(); err != nil {
		logger.Fatal("start matching service", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	metricsSrv := &http.Server{Addr: cfg.Matcher.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()

	logger.Info("matching service running",
		zap.String("redis_addr", cfg.Redis.Addr),
		zap.String("nats_url", cfg.NATS.URL),
		zap.String("metrics_addr", cfg.Matcher.MetricsAddr),
		zap.Duration("cleanup_interval", cfg.Matcher.CleanupInterval))

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))

	svc.Stop()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	_ = metricsSrv.Shutdown(shutdownCtx)
	cancelShutdown()
	natsClient.Close()
	_ = auditor.Close()
	_ = pg.Close()
	_ = rdb.Close()
}
