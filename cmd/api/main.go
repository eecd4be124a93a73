package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	httpAdapter "github.com/lorrc/ticket-collab/internal/adapters/primary/http"
	mw "github.com/lorrc/ticket-collab/internal/adapters/primary/http/middleware"
	"github.com/lorrc/ticket-collab/internal/adapters/primary/websocket"
	"github.com/lorrc/ticket-collab/internal/adapters/secondary/memory"
	"github.com/lorrc/ticket-collab/internal/adapters/secondary/postgres"
	"github.com/lorrc/ticket-collab/internal/adapters/secondary/redis"
	"github.com/lorrc/ticket-collab/internal/adapters/secondary/slapolicy"
	"github.com/lorrc/ticket-collab/internal/auth"
	"github.com/lorrc/ticket-collab/internal/config"
	"github.com/lorrc/ticket-collab/internal/core/domain"
	"github.com/lorrc/ticket-collab/internal/core/ports"
	"github.com/lorrc/ticket-collab/internal/core/services"
	"github.com/lorrc/ticket-collab/internal/infrastructure/logging"
	"github.com/lorrc/ticket-collab/internal/infrastructure/metrics"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})

	logger.Info("starting gateway",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"config", cfg.String(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. Migrate and open the database pool
	if err := postgres.Migrate(cfg.Database.URL); err != nil {
		logger.Error("failed to apply migrations", "error", err)
		os.Exit(1)
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		logger.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.Database.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Error("database ping failed", "error", err)
		os.Exit(1)
	}
	logger.Info("database connection established")

	healthChecks := map[string]httpAdapter.HealthChecker{"database": pool}

	// 4. Presence registry: shared through Redis when configured
	var viewers ports.ViewerRegistry
	if cfg.Redis.Addr != "" {
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		registry := redis.NewViewerRegistry(client, cfg.Redis.PresenceTTL)
		if err := registry.Ping(ctx); err != nil {
			logger.Error("redis ping failed", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		viewers = registry
		healthChecks["redis"] = registry
		logger.Info("presence registry using redis", "addr", cfg.Redis.Addr)
	} else {
		viewers = memory.NewViewerRegistry()
		logger.Warn("presence registry is in memory; run a single gateway replica")
	}

	// 5. SLA policies
	policies, err := slapolicy.Load(cfg.SLA.PolicyFile)
	if err != nil {
		logger.Error("failed to load sla policies", "file", cfg.SLA.PolicyFile, "error", err)
		os.Exit(1)
	}

	// 6. Security, metrics and the realtime hub
	tokenManager := auth.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	m := metrics.New()
	hub := websocket.NewHub(m, logger)

	// 7. Dependency Injection (Wiring the Hexagon)
	txManager := postgres.NewTransactionManager(pool)
	ticketRepo := postgres.NewTicketRepository(pool)
	messageRepo := postgres.NewMessageRepository(pool)
	worklogRepo := postgres.NewWorklogRepository(pool)

	authzService := services.NewAuthorizationService(nil)
	ticketService := services.NewTicketService(ticketRepo, messageRepo, authzService, hub, logger)
	messageService := services.NewMessageService(ticketRepo, messageRepo, txManager, authzService, hub, m, logger)
	presenceService := services.NewPresenceService(viewers, hub, logger)
	worklogService := services.NewWorklogService(ticketRepo, worklogRepo, authzService, stopReasons(cfg.Worklog.StopReasons), m, logger)
	slaService := services.NewSLAService(ticketRepo, policies, authzService, m)

	hub.SetServices(messageService, presenceService)
	go hub.Run(ctx)

	// 8. Rate limiters
	var generalLimiter *mw.RateLimiter
	var worklogLimiter *mw.RateLimitByKey
	if cfg.RateLimit.Enabled {
		generalLimiter = mw.NewRateLimiter(mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
			CleanupInterval:   time.Minute,
			TTL:               3 * time.Minute,
		})
		worklogLimiter = mw.NewRateLimitByKey(cfg.RateLimit.WorklogRPS, cfg.RateLimit.WorklogBurst)
	}

	// 9. Handlers and router
	errorHandler := httpAdapter.NewErrorHandler(logger)
	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		Logger:         logger,
		Metrics:        m,
		TokenManager:   tokenManager,
		AllowedOrigins: cfg.WebSocket.AllowedOrigins,
		Tickets:        httpAdapter.NewTicketHandler(ticketService, errorHandler, logger),
		Worklogs:       httpAdapter.NewWorklogHandler(worklogService, errorHandler, logger),
		SLA:            httpAdapter.NewSLAHandler(slaService, errorHandler),
		WebSocket:      httpAdapter.NewWebSocketHandler(hub, tokenManager, cfg, logger),
		Health:         httpAdapter.NewHealthHandler(cfg.App.Version, healthChecks),
		GeneralLimiter: generalLimiter,
		WorklogLimiter: worklogLimiter,
	})

	// 10. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		logger.Error("server error", "error", err)
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	hub.Shutdown()
	ticketService.Shutdown()

	logger.Info("server shutdown complete")
}

func stopReasons(configured []config.StopReason) []domain.StopReason {
	reasons := make([]domain.StopReason, 0, len(configured))
	for _, r := range configured {
		reasons = append(reasons, domain.StopReason{ID: r.ID, Label: r.Label})
	}
	return reasons
}
