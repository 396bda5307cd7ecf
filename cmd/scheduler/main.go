package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"account_gateway/internal/auth/repository"
	"account_gateway/internal/docstore/backend"
	"account_gateway/internal/scheduler"
	"account_gateway/platform/config"
	"account_gateway/platform/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env, "docStoreBackend", cfg.DocStoreBackend)

	if cfg.DocStoreBackend == config.DocStoreBackendMemory {
		log.Warn("in-memory document store is not shared with the api process; cleanup tasks will not reach its records")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	worker, err := scheduler.NewWorker(cfg, repository.New(store.Store), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return errors.New(name + ": invalid retry attempts")
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
