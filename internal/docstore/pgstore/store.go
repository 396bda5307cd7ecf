// Package pgstore stores documents in a PostgreSQL JSONB table.
package pgstore

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"account_gateway/internal/docstore"
	"account_gateway/platform/db"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	getDocumentQuery = `
		SELECT data FROM documents
		WHERE collection = $1 AND id = $2`

	replaceDocumentQuery = `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id)
		DO UPDATE SET data = EXCLUDED.data, updated_at = now()`

	mergeDocumentQuery = `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id)
		DO UPDATE SET data = documents.data || EXCLUDED.data, updated_at = now()`

	deleteDocumentQuery = `
		DELETE FROM documents
		WHERE collection = $1 AND id = $2`
)

// DB is the subset of *pgxpool.Pool used by Store.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store implements docstore.Store on the documents table.
type Store struct {
	db DB
}

var _ docstore.Store = (*Store)(nil)

// New creates a store on db.
func New(db DB) *Store {
	return &Store{db: db}
}

// Migrate creates or upgrades the documents table.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	return db.RunMigrations(ctx, pool, migrationsFS, "migrations")
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	if err := docstore.ValidatePath(collection, id); err != nil {
		return docstore.Document{}, err
	}

	var raw []byte
	err := s.db.QueryRow(ctx, getDocumentQuery, collection, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return docstore.Document{ID: id}, nil
	}
	if err != nil {
		return docstore.Document{}, fmt.Errorf("select %s/%s: %w", collection, id, err)
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
	if data == nil {
		data = map[string]any{}
	}

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}

	query := replaceDocumentQuery
	if opts.Merge {
		query = mergeDocumentQuery
	}
	if _, err := s.db.Exec(ctx, query, collection, id, payload); err != nil {
		return fmt.Errorf("upsert %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := docstore.ValidatePath(collection, id); err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, deleteDocumentQuery, collection, id); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}
