// Package docstore defines the keyed document store used by the seeding
// pipelines and the profile export.
package docstore

import (
	"context"
	"errors"
	"maps"
)

// ErrNotFound is returned by Get when the document does not exist.
var ErrNotFound = errors.New("document not found")

// UpsertOptions controls write semantics.
type UpsertOptions struct {
	// Merge preserves existing fields that are absent from the payload.
	// Without Merge the document is replaced.
	Merge bool
}

// Document is one stored document and its key within the collection.
type Document struct {
	Key    string
	Fields map[string]any
}

// Store is a keyed document store.
type Store interface {
	Upsert(ctx context.Context, collection, key string, payload map[string]any, opts UpsertOptions) error
	Get(ctx context.Context, collection, key string) (map[string]any, error)
	// List returns every document of collection in key order.
	List(ctx context.Context, collection string) ([]Document, error)
	Close() error
}

// MergeFields overlays payload on existing and returns the result. Existing
// is not modified.
func MergeFields(existing, payload map[string]any) map[string]any {
	out := make(map[string]any, len(existing)+len(payload))
	maps.Copy(out, existing)
	maps.Copy(out, payload)
	return out
}
