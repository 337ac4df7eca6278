package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadbridge/internal/crm"
	apphttp "leadbridge/internal/http"
	"leadbridge/internal/http/router"
	"leadbridge/internal/leads"
	"leadbridge/internal/notification"
	"leadbridge/internal/scheduler"
	"leadbridge/internal/tenant"
	"leadbridge/internal/tenantstore"
	"leadbridge/internal/webhook"
	"leadbridge/platform/cache"
	"leadbridge/platform/config"
	"leadbridge/platform/db"
	"leadbridge/platform/events"
	"leadbridge/platform/logger"
	"leadbridge/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	// Status-name cache: redis when available, in-process otherwise.
	statusCache := newStatusCache(cfg, log)

	crmFactory := crm.NewFactory(cfg, cfg.GetStatusCacheTTL(), statusCache, log)
	storeManager := tenantstore.NewManager(pool, log)

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	tenantModule := tenant.NewModule(pool, storeManager, crmFactory, val, log)
	leadsModule := leads.NewModule(tenantModule.Service(), storeManager, crmFactory, eventBus, log)
	webhookModule := webhook.NewModule(tenantModule.Service(), storeManager, crmFactory, eventBus, log)

	// Success notifications ride the task queue; without redis the
	// events are simply not fanned out.
	if queueClient, err := scheduler.NewClient(cfg); err != nil {
		log.Warn("task queue disabled", "error", err.Error())
	} else {
		defer queueClient.Close()
		subscriber := notification.NewSubscriber(queueClient, tenantModule.Service(), cfg, log)
		subscriber.Register(eventBus)
		log.Info("success notification subscriber registered", "queue", cfg.GetNotifyQueueName())
	}

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   pool,
		EventBus: eventBus,
		Modules: []apphttp.Module{
			tenantModule,
			leadsModule,
			webhookModule,
		},
	}

	engine := router.New(app)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

// newStatusCache prefers redis so the 24h status cache survives
// restarts and is shared between replicas.
func newStatusCache(cfg *config.Config, log *logger.Logger) cache.Cache {
	if cfg.GetRedisURL() != "" {
		c, err := cache.NewRedis(cfg.GetRedisURL())
		if err == nil {
			log.Info("status cache using redis")
			return c
		}
		log.Warn("redis unavailable, falling back to in-memory cache", "error", err.Error())
	}
	return cache.NewMemory()
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
