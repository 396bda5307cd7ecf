package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore keeps documents in process memory. Values are stored as JSON so
// callers never share maps with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string][]byte)}
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ValidatePath(collection, id); err != nil {
		return Document{}, err
	}
	if err := ctx.Err(); err != nil {
		return Document{}, err
	}

	s.mu.RLock()
	raw, ok := s.docs[collection][id]
	s.mu.RUnlock()
	if !ok {
		return Document{ID: id}, nil
	}

	data, err := decode(raw)
	if err != nil {
		return Document{}, err
	}
	return Document{ID: id, Exists: true, Data: data}, nil
}

func (s *MemoryStore) Set(ctx context.Context, collection, id string, data map[string]any, opts SetOptions) error {
	if err := ValidatePath(collection, id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var current map[string]any
	if raw, ok := s.docs[collection][id]; ok && opts.Merge {
		decoded, err := decode(raw)
		if err != nil {
			return err
		}
		current = decoded
	}

	raw, err := json.Marshal(Apply(current, data, opts))
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if s.docs[collection] == nil {
		s.docs[collection] = make(map[string][]byte)
	}
	s.docs[collection][id] = raw
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ValidatePath(collection, id); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.docs[collection], id)
	s.mu.Unlock()
	return nil
}

func decode(raw []byte) (map[string]any, error) {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return data, nil
}
