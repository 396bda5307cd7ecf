// Package docstoretest holds behaviour tests shared by every docstore.Store
// implementation.
package docstoretest

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"account_gateway/internal/docstore"
)

// Run exercises store against the docstore.Store contract. newStore must
// return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) docstore.Store) {
	t.Helper()

	t.Run("get missing", func(t *testing.T) {
		store := newStore(t)
		doc, err := store.Get(context.Background(), "users", "nobody")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if doc.Exists || doc.Data != nil {
			t.Fatalf("expected missing document, got %+v", doc)
		}
		if doc.ID != "nobody" {
			t.Fatalf("expected id to be echoed, got %q", doc.ID)
		}
	})

	t.Run("set then get", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		if err := store.Set(ctx, "users", "u1", map[string]any{"email": "a@example.com"}, docstore.SetOptions{}); err != nil {
			t.Fatalf("set: %v", err)
		}
		doc, err := store.Get(ctx, "users", "u1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !doc.Exists || doc.Data["email"] != "a@example.com" {
			t.Fatalf("unexpected document %+v", doc)
		}
	})

	t.Run("replace drops fields", func(t *testing.T) {
		store := newStore(t)
		mustSet(t, store, "users", "u1", map[string]any{"email": "a@example.com", "plan": "pro"}, false)
		mustSet(t, store, "users", "u1", map[string]any{"email": "b@example.com"}, false)

		assertData(t, store, "users", "u1", map[string]any{"email": "b@example.com"})
	})

	t.Run("merge keeps fields", func(t *testing.T) {
		store := newStore(t)
		mustSet(t, store, "users", "u1", map[string]any{"email": "a@example.com", "plan": "pro"}, false)
		mustSet(t, store, "users", "u1", map[string]any{"email": "b@example.com"}, true)

		assertData(t, store, "users", "u1", map[string]any{"email": "b@example.com", "plan": "pro"})
	})

	t.Run("merge creates missing", func(t *testing.T) {
		store := newStore(t)
		mustSet(t, store, "users", "u2", map[string]any{"email": "c@example.com"}, true)

		assertData(t, store, "users", "u2", map[string]any{"email": "c@example.com"})
	})

	t.Run("collections are separate", func(t *testing.T) {
		store := newStore(t)
		mustSet(t, store, "users", "u1", map[string]any{"email": "a@example.com"}, false)

		doc, err := store.Get(context.Background(), "userProfiles", "u1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if doc.Exists {
			t.Fatalf("expected profile to be missing, got %+v", doc)
		}
	})

	t.Run("delete", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		mustSet(t, store, "users", "u1", map[string]any{"email": "a@example.com"}, false)

		if err := store.Delete(ctx, "users", "u1"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if err := store.Delete(ctx, "users", "u1"); err != nil {
			t.Fatalf("deleting a missing document must succeed, got %v", err)
		}
		doc, err := store.Get(ctx, "users", "u1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if doc.Exists {
			t.Fatalf("expected document to be gone, got %+v", doc)
		}
	})

	t.Run("invalid path", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		if _, err := store.Get(ctx, "", "u1"); !errors.Is(err, docstore.ErrInvalidPath) {
			t.Fatalf("get: expected ErrInvalidPath, got %v", err)
		}
		if err := store.Set(ctx, "users", "", map[string]any{}, docstore.SetOptions{}); !errors.Is(err, docstore.ErrInvalidPath) {
			t.Fatalf("set: expected ErrInvalidPath, got %v", err)
		}
		if err := store.Delete(ctx, "", ""); !errors.Is(err, docstore.ErrInvalidPath) {
			t.Fatalf("delete: expected ErrInvalidPath, got %v", err)
		}
	})
}

func mustSet(t *testing.T, store docstore.Store, collection, id string, data map[string]any, merge bool) {
	t.Helper()
	if err := store.Set(context.Background(), collection, id, data, docstore.SetOptions{Merge: merge}); err != nil {
		t.Fatalf("set %s/%s: %v", collection, id, err)
	}
}

func assertData(t *testing.T, store docstore.Store, collection, id string, want map[string]any) {
	t.Helper()
	doc, err := store.Get(context.Background(), collection, id)
	if err != nil {
		t.Fatalf("get %s/%s: %v", collection, id, err)
	}
	if !doc.Exists {
		t.Fatalf("expected %s/%s to exist", collection, id)
	}
	if !reflect.DeepEqual(doc.Data, want) {
		t.Fatalf("expected %v, got %v", want, doc.Data)
	}
}
