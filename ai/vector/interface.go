// Package vector defines the vector store gateway used for knowledge storage
// and similarity retrieval. Backends live in subpackages (memory, qdrant) and
// in store/db/postgres.
package vector

import (
	"context"
	"errors"
)

// ErrNotConnected is returned by mutating calls when the store backend is not
// configured or unreachable. Query degrades to an empty result instead.
var ErrNotConnected = errors.New("vector store not connected")

// Entry is a document handed to the store for persistence.
type Entry struct {
	Metadata map[string]any
	ID       string
	Text     string
	Vector   []float32
}

// Result is a similarity match. Score is in [0,1], higher is more similar.
type Result struct {
	Metadata map[string]any
	ID       string
	Text     string
	Score    float32
}

// Stats describes the state of the underlying index.
type Stats struct {
	Count     int64
	Dimension int
	Fullness  float64
}

// Store is the vector store gateway.
//
// Upserts are keyed by entry ID, so retrying a failed batch is safe: an
// unknown prefix of the batch may already have been applied.
type Store interface {
	// Connected reports whether the backend is reachable and initialized.
	Connected() bool

	// Upsert stores a single entry.
	Upsert(ctx context.Context, entry Entry) error

	// UpsertBatch stores multiple entries. No partial-batch rollback is
	// guaranteed on failure.
	UpsertBatch(ctx context.Context, entries []Entry) error

	// Query returns up to topK nearest neighbors of vec, most similar first.
	// filter constrains results by metadata equality. Returns empty when the
	// store is not connected.
	Query(ctx context.Context, vec []float32, topK int, filter map[string]any) ([]Result, error)

	// Delete removes an entry by ID.
	Delete(ctx context.Context, id string) error

	// DeleteAll removes every entry from the index.
	DeleteAll(ctx context.Context) error

	// Stats returns index statistics.
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}
