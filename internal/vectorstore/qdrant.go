package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/docqd/internal/config"
)

var tracer = otel.Tracer("docqd.vectorstore.qdrant")

// pointNamespace is the UUIDv5 namespace for deriving Qdrant point IDs from
// record IDs. Qdrant only accepts UUID or integer point IDs, but record IDs
// are strings like "user_doc.pdf_3". Hashing the record ID into a UUID keeps
// upserts idempotent: the same record ID always maps to the same point.
var pointNamespace = uuid.MustParse("3f1c8a52-9b7e-4f06-8c31-5d2a90f4be67")

// IsTransientError reports whether a gRPC error should be retried.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	st, ok := status.FromError(err)
	if !ok {
		return false
	}

	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

const (
	qdrantMaxMessageSize   = 50 * 1024 * 1024
	circuitBreakThreshold  = 5
	circuitBreakResetAfter = 30 * time.Second
)

// QdrantStore is a Store backed by Qdrant over its native gRPC transport
// (port 6334). The constructor health-checks the server and creates the
// collection with the right dimension if it does not exist yet.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	dimension  int
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger

	circuitBreaker struct {
		failures int
		lastFail time.Time
		mu       sync.Mutex
	}
}

// NewQdrantStore connects to Qdrant, verifies health, and ensures the
// configured collection exists with cosine distance and the given dimension.
func NewQdrantStore(cfg config.QdrantConfig, dimension int, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, cfg.Port)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	if err := ValidateCollectionName(cfg.Collection); err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(qdrantMaxMessageSize),
				grpc.MaxCallSendMsgSize(qdrantMaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{
		client:     client,
		collection: cfg.Collection,
		dimension:  dimension,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff.Duration(),
		logger:     logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("health check failed: %w", err)
	}

	if err := store.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}

	logger.Info("qdrant store initialized",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("collection", cfg.Collection),
		zap.Int("dimension", dimension),
	)

	return store, nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// ensureCollection creates the collection if it does not exist.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", s.collection, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.collection, err)
	}

	s.logger.Info("created qdrant collection", zap.String("collection", s.collection))
	return nil
}

// retryOperation retries an operation with exponential backoff.
func (s *QdrantStore) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := s.backoff
	if backoff <= 0 {
		backoff = time.Second
	}

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err := operation()
		if err == nil {
			s.resetCircuitBreaker()
			return nil
		}

		if s.isCircuitOpen() {
			return fmt.Errorf("%s: circuit breaker open", operationName)
		}

		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}

		s.recordFailure()

		if attempt == s.maxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, s.maxRetries, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

func (s *QdrantStore) recordFailure() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures++
	s.circuitBreaker.lastFail = time.Now()
}

func (s *QdrantStore) resetCircuitBreaker() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures = 0
}

func (s *QdrantStore) isCircuitOpen() bool {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()

	if s.circuitBreaker.failures >= circuitBreakThreshold {
		if time.Since(s.circuitBreaker.lastFail) > circuitBreakResetAfter {
			s.circuitBreaker.failures = 0
			return false
		}
		return true
	}
	return false
}

// Upsert writes records, overwriting any with the same ID.
func (s *QdrantStore) Upsert(ctx context.Context, records []Record) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.Upsert")
	defer span.End()

	span.SetAttributes(
		attribute.Int("record_count", len(records)),
		attribute.String("collection", s.collection),
	)

	if len(records) == 0 {
		return ErrEmptyRecords
	}

	points := make([]*qdrant.PointStruct, len(records))
	for i, rec := range records {
		if rec.ID == "" {
			return fmt.Errorf("record %d: ID required", i)
		}
		if len(rec.Vector) != s.dimension {
			return fmt.Errorf("%w: record %q has %d values, want %d", ErrDimensionMismatch, rec.ID, len(rec.Vector), s.dimension)
		}

		payload := make(map[string]*qdrant.Value, len(rec.Metadata)+1)
		payload["id"] = qdrantString(rec.ID)
		for k, v := range rec.Metadata {
			if qv := qdrantValue(v); qv != nil {
				payload[k] = qv
			}
		}

		// Same record ID, same point ID: the overwrite is what makes
		// re-ingesting a document idempotent.
		pointID := uuid.NewSHA1(pointNamespace, []byte(rec.ID)).String()

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID),
			Vectors: qdrant.NewVectors(rec.Vector...),
			Payload: payload,
		}
	}

	err := s.retryOperation(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting points to collection %s: %w", s.collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	return nil
}

// Query returns up to topK records most similar to vector, best first.
func (s *QdrantStore) Query(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Query")
	defer span.End()

	span.SetAttributes(
		attribute.String("collection", s.collection),
		attribute.Int("top_k", topK),
	)

	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: query vector has %d values, want %d", ErrDimensionMismatch, len(vector), s.dimension)
	}

	var results []*qdrant.ScoredPoint
	err := s.retryOperation(ctx, "query", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(topK)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.collection, err)
	}

	matches := make([]Match, len(results))
	for i, point := range results {
		match := Match{Score: point.Score}
		if point.Payload != nil {
			match.Metadata = make(map[string]any, len(point.Payload))
			for k, v := range point.Payload {
				switch val := v.Kind.(type) {
				case *qdrant.Value_StringValue:
					match.Metadata[k] = val.StringValue
					if k == "id" {
						match.ID = val.StringValue
					}
				case *qdrant.Value_IntegerValue:
					match.Metadata[k] = val.IntegerValue
				case *qdrant.Value_DoubleValue:
					match.Metadata[k] = val.DoubleValue
				case *qdrant.Value_BoolValue:
					match.Metadata[k] = val.BoolValue
				}
			}
		}
		matches[i] = match
	}

	span.SetAttributes(attribute.Int("results_count", len(matches)))
	span.SetStatus(codes.Ok, "success")
	return matches, nil
}

// Count returns the number of stored points.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.Count")
	defer span.End()

	var count int
	err := s.retryOperation(ctx, "count", func() error {
		info, err := s.client.GetCollectionInfo(ctx, s.collection)
		if err != nil {
			st, ok := status.FromError(err)
			if ok && st.Code() == grpccodes.NotFound {
				return ErrCollectionNotFound
			}
			return err
		}
		if info.PointsCount != nil {
			count = int(*info.PointsCount)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("counting collection %s: %w", s.collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	return count, nil
}

func qdrantString(s string) *qdrant.Value {
	return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: s}}
}

func qdrantValue(v any) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return qdrantString(val)
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	default:
		return nil
	}
}

var _ Store = (*QdrantStore)(nil)
