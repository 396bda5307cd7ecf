// Package redisstore stores documents as JSON strings in Redis.
package redisstore

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"

	"account_gateway/internal/docstore"
	"account_gateway/platform/config"

	"github.com/redis/go-redis/v9"
)

const (
	defaultPrefix   = "docs"
	maxMergeRetries = 8
)

// Store implements docstore.Store on Redis. Each document is one key:
// <prefix>:<collection>:<id>.
type Store struct {
	rdb    redis.UniversalClient
	prefix string
}

var _ docstore.Store = (*Store)(nil)

// New wraps an existing Redis client.
func New(rdb redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

// Open connects to the Redis server named in cfg.
func Open(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.GetRedisTLSInsecure() {
		if opt.TLSConfig == nil {
			opt.TLSConfig = &tls.Config{}
		}
		opt.TLSConfig.InsecureSkipVerify = true
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func (s *Store) key(collection, id string) string {
	return s.prefix + ":" + collection + ":" + id
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if err := docstore.ValidatePath(collection, id); err != nil {
		return docstore.Document{}, err
	}

	raw, err := s.rdb.Get(ctx, s.key(collection, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return docstore.Document{ID: id}, nil
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("redis get %s/%s: %w", collection, id, err)
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return docstore.Document{}, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return docstore.Document{ID: id, Exists: true, Data: data}, nil
}

func (s *Store) Set(ctx context.Context, collection, id string, data map[string]any, opts docstore.SetOptions) error {
	if err := docstore.ValidatePath(collection, id); err != nil {
		return err
	}
	key := s.key(collection, id)

	if !opts.Merge {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", collection, id, err)
		}
		if err := s.rdb.Set(ctx, key, payload, 0).Err(); err != nil {
			return fmt.Errorf("redis set %s/%s: %w", collection, id, err)
		}
		return nil
	}

	merge := func(tx *redis.Tx) error {
		var current map[string]any
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &current); err != nil {
				return fmt.Errorf("decode %s/%s: %w", collection, id, err)
			}
		}

		payload, err := json.Marshal(docstore.Apply(current, data, opts))
		if err != nil {
			return fmt.Errorf("encode %s/%s: %w", collection, id, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxMergeRetries; attempt++ {
		err := s.rdb.Watch(ctx, merge, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("redis merge %s/%s: %w", collection, id, err)
	}
	return fmt.Errorf("redis merge %s/%s: too much contention", collection, id)
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := docstore.ValidatePath(collection, id); err != nil {
		return err
	}
	if err := s.rdb.Del(ctx, s.key(collection, id)).Err(); err != nil {
		return fmt.Errorf("redis del %s/%s: %w", collection, id, err)
	}
	return nil
}
