// Command apiserver serves the REST API and the push WebSocket endpoint for
// two-party matching sessions.
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
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tastebuds/match-app/internal/audit"
	"github.com/tastebuds/match-app/internal/auth"
	"github.com/tastebuds/match-app/internal/catalog"
	"github.com/tastebuds/match-app/internal/config"
	"github.com/tastebuds/match-app/internal/db"
	"github.com/tastebuds/match-app/internal/httpapi"
	"github.com/tastebuds/match-app/internal/logging"
	"github.com/tastebuds/match-app/internal/matching"
	"github.com/tastebuds/match-app/internal/messaging"
	"github.com/tastebuds/match-app/internal/ratelimit"
	"github.com/tastebuds/match-app/internal/session"
	"github.com/tastebuds/match-app/internal/swipe"
	"github.com/tastebuds/match-app/internal/tracing"
	"github.com/tastebuds/match-app/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireJWTSecret(); err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		Production: cfg.Log.Production,
		File:       cfg.Log.File,
	})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing := tracing.Init(ctx, tracing.Options{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
	}, logger)

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err = rdb.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}

	// --- NATS ---
	natsClient, err := messaging.NewNATSClient(messaging.NATSConfig{
		URL:           cfg.NATS.URL,
		Name:          "tastebuds-api",
		ReconnectWait: cfg.NATS.ReconnectWait,
		MaxReconnects: cfg.NATS.MaxReconnects,
	}, logger)
	if err != nil {
		return err
	}

	// --- Postgres ---
	pg, err := db.Connect(ctx, db.Options{
		DSN:          cfg.Postgres.DSN,
		MaxOpenConns: cfg.Postgres.MaxOpenConns,
		MaxIdleConns: cfg.Postgres.MaxIdleConns,
	})
	if err != nil {
		return err
	}
	if cfg.Server.RunMigrations {
		if err := db.Migrate(pg); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	auditor := audit.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
	limiter := ratelimit.NewLimiter(rdb, logger)

	restaurants := catalog.NewCachedCatalog(catalog.NewPostgresCatalog(pg), cfg.Session.RestaurantCacheTTL)
	sessionStore := session.NewRedisStore(rdb, cfg.Session.TTL)

	sessions := session.NewService(session.ServiceDeps{
		Store:     sessionStore,
		Selector:  catalog.NewSelector(restaurants, logger),
		Publisher: natsClient,
		Audit:     auditor,
		Limiter:   limiter,
		Logger:    logger,
	}, session.ServiceConfig{
		CodeAttempts: cfg.Session.CodeAttempts,
		CreateRule:   ratelimit.CreateSessionRule(cfg.RateLimit.SessionsPerMinute),
		JoinRule:     ratelimit.JoinRule(cfg.RateLimit.JoinsPerMinute),
	})

	ledger := swipe.NewRedisLedger(rdb, cfg.Session.TTL)
	detector := matching.NewDetector(matching.DetectorDeps{
		Sessions: sessions,
		Swipes:   ledger,
		Repo:     matching.NewPostgresRepository(pg),
		Notifier: natsClient,
		Audit:    auditor,
		Logger:   logger,
	})
	swipes := swipe.NewService(swipe.ServiceDeps{
		Ledger:    ledger,
		Sessions:  sessions,
		Detector:  detector,
		Publisher: natsClient,
		Limiter:   limiter,
		Rule:      ratelimit.SwipeRule(cfg.RateLimit.SwipesPerMinute),
		Logger:    logger,
	})

	tokens := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, auth.DefaultTokenTTL)

	// --- Push ---
	dispatcher := ws.NewMessageDispatcher(swipes, logger)
	pushServer := ws.NewServer(ws.ServerConfig{
		WorkerPoolSize: cfg.WS.WorkerPoolSize,
		MaxConnections: cfg.WS.MaxConnections,
		ReadTimeout:    cfg.WS.ReadTimeout,
		WriteTimeout:   cfg.WS.WriteTimeout,
		Heartbeat: ws.HeartbeatConfig{
			Interval: cfg.WS.HeartbeatInterval,
			Timeout:  cfg.WS.HeartbeatTimeout,
		},
	}, ws.Deps{
		Auth:       tokens,
		Sessions:   sessions,
		Subscriber: natsClient,
		Logger:     logger,
	}, dispatcher.Dispatch)
	if err := pushServer.Start(); err != nil {
		return err
	}

	router := httpapi.NewRouter(httpapi.Deps{
		Sessions:    sessions,
		Swipes:      swipes,
		Matches:     detector,
		Restaurants: restaurants,
		Verifier:    tokens,
		Push:        pushServer.HandleUpgrade,
		Logger:      logger,
	}, httpapi.Options{
		PublicBaseURL: cfg.Server.PublicBaseURL,
		ServiceName:   cfg.Tracing.ServiceName,
	})

	handler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
	}).Handler(router)

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.Info("api server starting",
		zap.String("listen_addr", cfg.Server.ListenAddr),
		zap.String("redis_addr", cfg.Redis.Addr),
		zap.String("nats_url", cfg.NATS.URL),
		zap.Int("ws_workers", cfg.WS.WorkerPoolSize),
		zap.Bool("tracing", cfg.Tracing.Enabled))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		pushServer.Shutdown()
		natsClient.Close()
		if cerr := auditor.Close(); cerr != nil {
			logger.Warn("close audit sink", zap.Error(cerr))
		}
		if cerr := pg.Close(); cerr != nil {
			logger.Warn("close postgres", zap.Error(cerr))
		}
		if cerr := sessionStore.Close(); cerr != nil {
			logger.Warn("close redis", zap.Error(cerr))
		}
		if terr := shutdownTracing(shutdownCtx); terr != nil {
			logger.Warn("flush traces", zap.Error(terr))
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}
