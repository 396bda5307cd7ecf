// Package docstore defines the port to the external document store.
// Documents are JSON objects addressed by collection name and document id.
package docstore

import (
	"context"
	"errors"
	"maps"
)

var ErrInvalidPath = errors.New("docstore: collection and id are required")

// Document is the result of a read. Exists is false when nothing is stored at
// the path; Data is nil in that case.
type Document struct {
	ID     string
	Exists bool
	Data   map[string]any
}

// SetOptions controls how Set treats an existing document.
type SetOptions struct {
	// Merge upserts the given top-level fields and keeps the others.
	// Without Merge the stored document is replaced.
	Merge bool
}

// Store reads and writes documents.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Set(ctx context.Context, collection, id string, data map[string]any, opts SetOptions) error
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
}

// ValidatePath reports ErrInvalidPath for an empty collection or id.
func ValidatePath(collection, id string) error {
	if collection == "" || id == "" {
		return ErrInvalidPath
	}
	return nil
}

// Apply returns the document that results from writing data over current.
func Apply(current, data map[string]any, opts SetOptions) map[string]any {
	out := make(map[string]any, len(current)+len(data))
	if opts.Merge {
		maps.Copy(out, current)
	}
	maps.Copy(out, data)
	return out
}
