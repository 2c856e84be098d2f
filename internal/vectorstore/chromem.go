package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docqd/internal/config"
)

var chromemTracer = otel.Tracer("docqd.vectorstore.chromem")

// ChromemStore implements Store using chromem-go, an embeddable pure-Go
// vector database. It needs no external service, which makes it the default
// provider for single-node deployments and the store used in tests.
//
// All vectors arrive precomputed, so the collection's embedding function is
// a stub that fails loudly if chromem ever tries to embed on its own.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	dimension  int
	logger     *zap.Logger
}

// NewChromemStore opens (or creates) a persistent chromem database at
// cfg.Path and binds the configured collection.
func NewChromemStore(cfg config.ChromemConfig, dimension int, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	if err := ValidateCollectionName(cfg.Collection); err != nil {
		return nil, err
	}

	path, err := expandPath(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, cfg.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	collection, err := db.GetOrCreateCollection(cfg.Collection, nil, rejectEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("getting/creating collection %s: %w", cfg.Collection, err)
	}

	logger.Info("chromem store initialized",
		zap.String("path", path),
		zap.String("collection", cfg.Collection),
		zap.Bool("compress", cfg.Compress),
		zap.Int("dimension", dimension),
	)

	return &ChromemStore{
		db:         db,
		collection: collection,
		dimension:  dimension,
		logger:     logger,
	}, nil
}

// NewInMemoryChromemStore creates a non-persistent store. Used by tests.
func NewInMemoryChromemStore(collectionName string, dimension int, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	if err := ValidateCollectionName(collectionName); err != nil {
		return nil, err
	}

	db := chromem.NewDB()
	collection, err := db.CreateCollection(collectionName, nil, rejectEmbeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", collectionName, err)
	}

	return &ChromemStore{
		db:         db,
		collection: collection,
		dimension:  dimension,
		logger:     logger,
	}, nil
}

// rejectEmbeddingFunc is passed wherever chromem wants an embedding function.
// Every document and query carries a precomputed vector, so a call here means
// a bug upstream; failing beats silently hitting chromem's default OpenAI
// embedder.
func rejectEmbeddingFunc(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("vectors are precomputed; embedding function must not be called")
}

func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// Upsert writes records, overwriting any with the same ID.
func (s *ChromemStore) Upsert(ctx context.Context, records []Record) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()

	span.SetAttributes(attribute.Int("record_count", len(records)))

	if len(records) == 0 {
		return ErrEmptyRecords
	}

	docs := make([]chromem.Document, len(records))
	for i, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("record %d: ID required", i)
		}
		if len(rec.Vector) != s.dimension {
			return fmt.Errorf("%w: record %q has %d values, want %d", ErrDimensionMismatch, rec.ID, len(rec.Vector), s.dimension)
		}

		meta := metadataToString(rec.Metadata)
		content := meta["text"]

		docs[i] = chromem.Document{
			ID:        rec.ID,
			Content:   content,
			Metadata:  meta,
			Embedding: rec.Vector,
		}
	}

	// Concurrency 1: embeddings are already attached, the work is just IO.
	if err := s.collection.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents: %w", err)
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("upserted records to chromem", zap.Int("count", len(records)))
	return nil
}

// Query returns up to topK records most similar to vector, best first.
func (s *ChromemStore) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Query")
	defer span.End()

	span.SetAttributes(attribute.Int("top_k", topK))

	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query vector has %d values, want %d", ErrDimensionMismatch, len(vector), s.dimension)
	}

	// chromem requires nResults <= document count.
	docCount := s.collection.Count()
	if docCount == 0 {
		return []Match{}, nil
	}
	if topK > docCount {
		topK = docCount
	}

	results, err := s.collection.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{
			ID:       r.ID,
			Score:    r.Similarity,
			Metadata: metadataFromString(r.Metadata),
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// Count returns the number of stored records.
func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	return s.collection.Count(), nil
}

// Close is a no-op: chromem persists on every write.
func (s *ChromemStore) Close() error {
	return nil
}

// metadataToString converts payload values to chromem's string metadata.
func metadataToString(metadata map[string]any) map[string]string {
	if metadata == nil {
		return nil
	}

	result := make(map[string]string, len(metadata))
	for k, v := range metadata {
		switch val := v.(type) {
		case string:
			result[k] = val
		case int:
			result[k] = fmt.Sprintf("%d", val)
		case int64:
			result[k] = fmt.Sprintf("%d", val)
		case float64:
			result[k] = fmt.Sprintf("%g", val)
		case bool:
			result[k] = fmt.Sprintf("%t", val)
		default:
			result[k] = fmt.Sprintf("%v", val)
		}
	}
	return result
}

func metadataFromString(metadata map[string]string) map[string]any {
	if metadata == nil {
		return nil
	}

	result := make(map[string]any, len(metadata))
	for k, v := range metadata {
		result[k] = v
	}
	return result
}

var _ Store = (*ChromemStore)(nil)
