// Package vectorstore provides vector storage implementations.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

var (
	// ErrInvalidConfig indicates invalid store configuration.
	ErrInvalidConfig = errors.New("invalid vectorstore configuration")
	// ErrInvalidCollectionName indicates a collection name that fails validation.
	ErrInvalidCollectionName = errors.New("invalid collection name")
	// ErrCollectionNotFound indicates the collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrConnectionFailed indicates the store backend could not be reached.
	ErrConnectionFailed = errors.New("connection failed")
	// ErrEmptyRecords indicates an upsert with nothing to store.
	ErrEmptyRecords = errors.New("records cannot be empty")
	// ErrDimensionMismatch indicates a vector whose length differs from the
	// collection's configured dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// collectionNamePattern validates collection names.
// Pattern: lowercase letters, numbers, underscores, 1-64 characters.
var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName validates a collection name.
// Rejects uppercase, special chars, path traversal, spaces.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match pattern ^[a-z0-9_]{1,64}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// Record is a chunk vector plus its payload, keyed by a caller-chosen ID.
// Upserting a record with an existing ID overwrites it, which makes repeated
// ingestion of the same document idempotent.
type Record struct {
	// ID is the stable record identifier, e.g. "user_doc.pdf_3".
	ID string

	// Vector is the embedding. Length must equal the store's dimension.
	Vector []float32

	// Metadata is the payload stored alongside the vector. The chunk text
	// lives here under "text".
	Metadata map[string]any
}

// Match is a retrieval result ordered by similarity.
type Match struct {
	ID       string
	Score    float32
	Metadata map[string]any
}

// Store stores chunk vectors and answers nearest-neighbor queries.
// Implementations receive precomputed vectors; they never call an embedder.
type Store interface {
	// Upsert writes records, overwriting any with the same ID.
	Upsert(ctx context.Context, records []Record) error

	// Query returns up to topK records most similar to vector, best first.
	// An empty result is not an error.
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}
