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

	"account_gateway/internal/auth"
	"account_gateway/internal/auth/gateway"
	"account_gateway/internal/auth/handler"
	"account_gateway/internal/auth/repository"
	"account_gateway/internal/auth/session"
	"account_gateway/internal/docstore/backend"
	"account_gateway/internal/email"
	apphttp "account_gateway/internal/http"
	"account_gateway/internal/http/router"
	"account_gateway/internal/identity"
	"account_gateway/internal/identity/keycloak"
	"account_gateway/internal/identity/memory"
	"account_gateway/internal/scheduler"
	"account_gateway/platform/config"
	"account_gateway/platform/logger"
	"account_gateway/platform/validator"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr,
		"identityBackend", cfg.IdentityBackend, "docStoreBackend", cfg.DocStoreBackend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	var store *backend.Backend
	if err := withRetry(ctx, log, "document store connection", 5, 2*time.Second, func() error {
		b, err := backend.Open(ctx, cfg)
		if err != nil {
			return err
		}
		store = b
		return nil
	}); err != nil {
		log.Error("failed to open document store", "error", err)
		panic("failed to open document store: " + err.Error())
	}
	defer store.Close()
	log.Info("document store ready", "backend", store.Name)

	records := repository.New(store.Store)
	sender := email.NewSender(cfg, log)
	val := validator.New()

	newProvider, resets := initIdentity(ctx, cfg, log, sender)

	cleanup, closeCleanup := initCleanupScheduler(cfg, log)
	if closeCleanup != nil {
		defer closeCleanup()
	}
	if cfg.GetSessionCompatLogs() {
		log.Info("session compat logging enabled")
	}

	gw := gateway.New(cfg, newProvider, records, log, gateway.WithSessionOptions(sessionOptions(cfg, cleanup)...))
	defer gw.Close()

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:  cfg,
		Logger:  log,
		Health:  store,
		Modules: []apphttp.Module{
			auth.NewModule(gw, val, resets, log, handler.WithOperators(cfg.GetOperatorIDs()...)),
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return gw.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", "error", err)
		panic("server error: " + err.Error())
	}
	log.Info("server stopped", "sessions", gw.Len())
}

// initIdentity picks the identity backend. Only the in-process directory can
// confirm reset tokens itself; Keycloak mails its own reset link.
func initIdentity(ctx context.Context, cfg *config.Config, log *logger.Logger, sender email.Sender) (gateway.ProviderFactory, handler.ResetConfirmer) {
	if cfg.IdentityBackend == config.IdentityBackendKeycloak {
		var realm *keycloak.Realm
		if err := withRetry(ctx, log, "keycloak discovery", 5, 2*time.Second, func() error {
			r, err := keycloak.NewRealm(ctx, cfg, log)
			if err != nil {
				return err
			}
			realm = r
			return nil
		}); err != nil {
			log.Error("failed to initialize keycloak", "error", err)
			panic("failed to initialize keycloak: " + err.Error())
		}
		log.Info("keycloak realm discovered", "issuer", cfg.GetKeycloakIssuer())
		return func() identity.Provider { return realm.NewClient() }, nil
	}

	dir := memory.NewDirectory(
		memory.WithMailer(sender, cfg.GetAppBaseURL()),
		memory.WithTokenSecret(cfg.GetGatewaySecret()),
	)
	log.Warn("using in-memory identity directory; accounts are lost on restart")
	return func() identity.Provider { return dir.NewClient() }, dir
}

// sessionOptions builds the options every session controller is created with.
func sessionOptions(cfg config.AccountConfig, cleanup session.CleanupScheduler) []session.Option {
	var opts []session.Option
	if cleanup != nil {
		opts = append(opts, session.WithCleanupScheduler(cleanup))
	}
	if cfg.GetSessionCompatLogs() {
		opts = append(opts, session.WithCompatMode())
	}
	return opts
}

func initCleanupScheduler(cfg config.SchedulerConfig, log *logger.Logger) (session.CleanupScheduler, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; leftover user records after account deletion are not retried")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize cleanup scheduler client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
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
