// Package backend opens the document store selected by DOCSTORE_BACKEND.
package backend

import (
	"context"
	"fmt"

	"account_gateway/internal/docstore"
	"account_gateway/internal/docstore/objectstore"
	"account_gateway/internal/docstore/pgstore"
	"account_gateway/internal/docstore/redisstore"
	"account_gateway/platform/config"
	"account_gateway/platform/db"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "gateway:docs"

// Backend is an opened document store plus the connection that backs it.
type Backend struct {
	Store docstore.Store
	Name  string

	pool *pgxpool.Pool
	rdb  *redis.Client
}

// Open connects to the configured store. Postgres runs its migrations first.
func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	switch cfg.DocStoreBackend {
	case config.DocStoreBackendMemory:
		return &Backend{Store: docstore.NewMemoryStore(), Name: cfg.DocStoreBackend}, nil

	case config.DocStoreBackendRedis:
		rdb, err := redisstore.Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &Backend{Store: redisstore.New(rdb, redisKeyPrefix), Name: cfg.DocStoreBackend, rdb: rdb}, nil

	case config.DocStoreBackendPostgres:
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := pgstore.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate documents table: %w", err)
		}
		return &Backend{Store: pgstore.New(pool), Name: cfg.DocStoreBackend, pool: pool}, nil

	case config.DocStoreBackendMinIO:
		store, err := objectstore.New(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &Backend{Store: store, Name: cfg.DocStoreBackend}, nil
	}
	return nil, fmt.Errorf("unsupported document store %q", cfg.DocStoreBackend)
}

// Ping checks the underlying connection. Stores without one always succeed.
func (b *Backend) Ping(ctx context.Context) error {
	switch {
	case b.pool != nil:
		return b.pool.Ping(ctx)
	case b.rdb != nil:
		return b.rdb.Ping(ctx).Err()
	}
	return nil
}

func (b *Backend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
	if b.rdb != nil {
		_ = b.rdb.Close()
	}
}
