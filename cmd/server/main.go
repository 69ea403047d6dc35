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

	"github.com/gigmarket/backend/internal/config"
	"github.com/gigmarket/backend/internal/handler"
	"github.com/gigmarket/backend/internal/lock"
	"github.com/gigmarket/backend/internal/logger"
	"github.com/gigmarket/backend/internal/repository"
	"github.com/gigmarket/backend/internal/repository/memory"
	"github.com/gigmarket/backend/internal/repository/mongostore"
	"github.com/gigmarket/backend/internal/server"
	"github.com/gigmarket/backend/internal/service"
	"github.com/gigmarket/backend/internal/ws"
	"github.com/gigmarket/backend/pkg/payment"
)

const (
	connectAttempts = 5
	connectInterval = 2 * time.Second
	lockWait        = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(logger.New("gigmarket-backend", cfg.AppEnv, cfg.IsProduction()))

	if err := run(cfg); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// cleanup funcs run in reverse order on shutdown.
type closers []func()

func (c closers) close() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var cleanup closers
	defer cleanup.close()

	stores, health, err := openStores(ctx, cfg, &cleanup)
	if err != nil {
		return err
	}

	locker, err := newLocker(ctx, cfg, health, &cleanup)
	if err != nil {
		return err
	}

	gw, keyID := newGateway(cfg)

	authSvc := service.NewAuthService(cfg.JWTSecret, cfg.AdminEmail, cfg.AdminPassword, stores.Users)
	if err := authSvc.SeedAdmin(ctx); err != nil {
		return fmt.Errorf("admin seed: %w", err)
	}

	hub := ws.NewHub()

	subSvc := service.NewSubscriptionService(stores, service.GatewayConfig{
		Gateway:   gw,
		KeyID:     keyID,
		KeySecret: cfg.Razorpay.KeySecret,
		Currency:  cfg.Razorpay.Currency,
		Timeout:   cfg.Razorpay.Timeout,
	}, locker)
	subSvc.SetNotifier(hub)

	webhookSvc := service.NewWebhookService(stores, cfg.Razorpay.WebhookSecret, locker)
	webhookSvc.SetNotifier(hub)
	if cfg.Razorpay.WebhookSecret == "" {
		slog.Warn("RAZORPAY_WEBHOOK_SECRET not set, webhooks will be rejected")
	}

	expirySvc := service.NewExpiryService(stores.Subscriptions, cfg.ExpirySweepInterval, locker)
	expirySvc.SetNotifier(hub)
	expirySvc.Start(ctx)

	router := server.NewRouter(ctx, server.Deps{
		Auth:          authSvc,
		Subscriptions: subSvc,
		Webhooks:      webhookSvc,
		Admin:         service.NewAdminService(stores),
		Hub:           hub,
		Health:        health,
		CORSOrigins:   cfg.CORSOrigins,
	})

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		// WriteTimeout must be 0 for WebSocket connections (they are long-lived)
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr, "storage", cfg.Storage.Driver, "gateway", cfg.Razorpay.Gateway)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStores connects the configured storage driver and returns its health checks.
func openStores(ctx context.Context, cfg *config.Config, cleanup *closers) (service.Stores, map[string]handler.Pinger, error) {
	health := map[string]handler.Pinger{}

	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		db, err := repository.NewDB(ctx, cfg.Storage.DatabaseURL)
		if err != nil {
			return service.Stores{}, nil, fmt.Errorf("database: %w", err)
		}
		*cleanup = append(*cleanup, db.Close)
		if err := repository.RunMigrations(ctx, db); err != nil {
			return service.Stores{}, nil, fmt.Errorf("migrations: %w", err)
		}
		slog.Info("database connected and migrated")
		health["database"] = db.Ping
		return service.Stores{
			Users:         repository.NewUserRepository(db),
			Subscriptions: repository.NewSubscriptionRepository(db),
			Payments:      repository.NewPaymentRepository(db),
			WebhookEvents: repository.NewWebhookEventRepository(db),
		}, health, nil

	case config.DriverMongo:
		client, err := mongostore.Connect(ctx, cfg.Storage.MongoURL, connectAttempts, connectInterval)
		if err != nil {
			return service.Stores{}, nil, fmt.Errorf("mongodb: %w", err)
		}
		*cleanup = append(*cleanup, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Disconnect(ctx)
		})
		db := client.Database(cfg.Storage.MongoDatabase)
		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			return service.Stores{}, nil, fmt.Errorf("mongodb indexes: %w", err)
		}
		slog.Info("mongodb connected", "database", cfg.Storage.MongoDatabase)
		health["database"] = mongostore.Healthcheck(client)
		return service.Stores{
			Users:         mongostore.NewUserStore(db),
			Subscriptions: mongostore.NewSubscriptionStore(db),
			Payments:      mongostore.NewPaymentStore(db),
			WebhookEvents: mongostore.NewWebhookEventStore(db),
		}, health, nil

	case config.DriverMemory:
		slog.Warn("using in-memory storage, data is lost on restart")
		mem := memory.NewStores()
		return service.Stores{
			Users:         mem.Users,
			Subscriptions: mem.Subscriptions,
			Payments:      mem.Payments,
			WebhookEvents: mem.WebhookEvents,
		}, health, nil
	}
	return service.Stores{}, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

// newLocker returns a Redis locker when REDIS_URL is set, otherwise an in-process one.
func newLocker(ctx context.Context, cfg *config.Config, health map[string]handler.Pinger, cleanup *closers) (lock.Locker, error) {
	if cfg.Redis.URL == "" {
		slog.Info("REDIS_URL not set, using in-process locks")
		return lock.NewLocal(), nil
	}
	client, err := lock.Connect(ctx, cfg.Redis.URL, connectAttempts, connectInterval)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	*cleanup = append(*cleanup, func() { _ = client.Close() })
	health["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	slog.Info("redis connected, using distributed locks")
	return lock.NewRedis(client, cfg.Redis.LockTTL, lockWait), nil
}

// newGateway returns a nil Gateway when Razorpay credentials are missing;
// payment operations then answer 503.
func newGateway(cfg *config.Config) (payment.Gateway, string) {
	if cfg.Razorpay.Gateway == config.GatewayMock {
		slog.Warn("using mock payment gateway")
		mock := payment.NewMockGateway()
		return mock, mock.KeyID()
	}
	rp, err := payment.NewRazorpay(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret)
	if err != nil {
		slog.Warn("payment gateway unavailable", "error", err)
		return nil, ""
	}
	return rp, rp.KeyID()
}
