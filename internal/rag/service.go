// Package rag orchestrates the two document pipelines: ingestion (PDF to
// stored chunk vectors) and query (question to grounded answer).
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docqd/internal/chunker"
	"github.com/fyrsmithlabs/docqd/internal/config"
	"github.com/fyrsmithlabs/docqd/internal/embeddings"
	"github.com/fyrsmithlabs/docqd/internal/extraction"
	"github.com/fyrsmithlabs/docqd/internal/generation"
	"github.com/fyrsmithlabs/docqd/internal/vectorstore"
)

var tracer = otel.Tracer("docqd.rag")

// Canned answers for degenerate query outcomes. These are successful
// responses, not errors: the pipeline worked, there was just nothing to
// ground an answer in.
const (
	// NoDocumentsMessage is returned when retrieval finds no matches at all.
	NoDocumentsMessage = "No relevant documents found in the knowledge base. Please upload documents first."
	// NoContextMessage is returned when matches exist but none carries text.
	NoContextMessage = "No text content found in matching documents."
)

// IngestRequest is one uploaded document.
type IngestRequest struct {
	// UserID namespaces the document. It becomes part of the source ID.
	UserID string
	// Filename is the uploaded file's name.
	Filename string
	// Data is the raw PDF bytes.
	Data []byte
}

// IngestResult reports what was stored.
type IngestResult struct {
	// SourceID is "{user_id}_{filename}", the stable document identity.
	SourceID string
	// TotalChunks is how many chunks the splitter produced.
	TotalChunks int
	// StoredChunks is how many were embedded and stored after the cap.
	StoredChunks int
	// Pages is the page count of the PDF.
	Pages int
}

// QueryRequest is one question against the stored corpus.
type QueryRequest struct {
	Question string
	// UserID is recorded for observability. Retrieval searches the whole
	// index; per-user partitioning would be a metadata filter on top.
	UserID string
	// TopK overrides the configured retrieval depth when positive.
	TopK int
}

// Source describes one retrieved chunk backing an answer.
type Source struct {
	ID       string  `json:"id"`
	Score    float32 `json:"score"`
	Filename string  `json:"filename,omitempty"`
	Page     string  `json:"page,omitempty"`
}

// QueryResult is the answer plus the chunks it was grounded on. Matches and
// ContextUsed let the caller tell the three outcomes apart: no documents
// (zero matches), documents without text (matches but empty context), and a
// grounded answer.
type QueryResult struct {
	Answer string
	// ContextUsed holds the chunk texts passed to the generator, in match
	// order. Empty on both degenerate outcomes.
	ContextUsed []string
	// Matches is the raw number of nearest neighbors retrieval returned.
	Matches int
	Sources []Source
}

// Service wires the pipeline collaborators together.
type Service struct {
	splitter  *chunker.Splitter
	embedder  embeddings.Embedder
	generator generation.Generator
	store     vectorstore.Store
	maxChunks int
	topK      int
	logger    *zap.Logger
}

// NewService creates the orchestrator. All collaborators are required.
func NewService(
	cfg config.Config,
	embedder embeddings.Embedder,
	generator generation.Generator,
	store vectorstore.Store,
	logger *zap.Logger,
) (*Service, error) {
	if embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if generator == nil {
		return nil, errors.New("generator is required")
	}
	if store == nil {
		return nil, errors.New("store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	splitter, err := chunker.NewSplitter(cfg.Ingest.ChunkSize, cfg.Ingest.Overlap)
	if err != nil {
		return nil, fmt.Errorf("creating splitter: %w", err)
	}

	return &Service{
		splitter:  splitter,
		embedder:  embedder,
		generator: generator,
		store:     store,
		maxChunks: cfg.Ingest.MaxChunks,
		topK:      cfg.Query.TopK,
		logger:    logger,
	}, nil
}

// Ingest runs the document pipeline: validate, extract, chunk, embed, store.
// The operation is atomic from the caller's view: on any failure nothing new
// becomes queryable and the error names the failing stage.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	ctx, span := tracer.Start(ctx, "Service.Ingest")
	defer span.End()

	if req.UserID == "" {
		return IngestResult{}, stageErrf(StageValidation, "user_id is required")
	}
	if req.Filename == "" {
		return IngestResult{}, stageErrf(StageValidation, "filename is required")
	}
	if len(req.Data) == 0 {
		return IngestResult{}, stageErrf(StageValidation, "file is empty")
	}
	if !extraction.IsPDF(req.Data) {
		return IngestResult{}, stageErrf(StageValidation, "only PDF files are supported")
	}

	sourceID := req.UserID + "_" + req.Filename
	span.SetAttributes(
		attribute.String("source_id", sourceID),
		attribute.Int("bytes", len(req.Data)),
	)

	pages, err := extraction.ExtractPages(req.Data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return IngestResult{}, stageErr(StageExtraction, err)
	}

	chunks := s.splitter.SplitPages(pages)
	if len(chunks) == 0 {
		return IngestResult{}, stageErrf(StageChunking, "no chunks produced from %d pages", len(pages))
	}

	total := len(chunks)
	if total > s.maxChunks {
		s.logger.Warn("chunk cap applied",
			zap.String("source_id", sourceID),
			zap.Int("total", total),
			zap.Int("cap", s.maxChunks),
		)
		chunks = chunks[:s.maxChunks]
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return IngestResult{}, stageErr(StageEmbedding, err)
	}
	if len(vectors) != len(chunks) {
		return IngestResult{}, stageErrf(StageEmbedding, "got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	records := make([]vectorstore.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vectorstore.Record{
			ID:     fmt.Sprintf("%s_%d", sourceID, c.Index),
			Vector: vectors[i],
			Metadata: map[string]any{
				"text":        c.Text,
				"user_id":     req.UserID,
				"filename":    req.Filename,
				"source_id":   sourceID,
				"chunk_index": c.Index,
				"page":        c.Page,
			},
		}
	}

	if err := s.store.Upsert(ctx, records); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return IngestResult{}, stageErr(StageStorage, err)
	}

	result := IngestResult{
		SourceID:     sourceID,
		TotalChunks:  total,
		StoredChunks: len(records),
		Pages:        len(pages),
	}

	span.SetAttributes(
		attribute.Int("chunks_total", result.TotalChunks),
		attribute.Int("chunks_stored", result.StoredChunks),
	)
	span.SetStatus(codes.Ok, "success")

	s.logger.Info("document ingested",
		zap.String("source_id", sourceID),
		zap.Int("pages", result.Pages),
		zap.Int("chunks_total", result.TotalChunks),
		zap.Int("chunks_stored", result.StoredChunks),
	)

	return result, nil
}

// Query runs the retrieval pipeline: embed the question, fetch the nearest
// chunks, and generate an answer grounded on their text. The two degenerate
// outcomes (no matches, matches without text) return canned answers with a
// nil error.
func (s *Service) Query(ctx context.Context, req QueryRequest) (QueryResult, error) {
	ctx, span := tracer.Start(ctx, "Service.Query")
	defer span.End()

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return QueryResult{}, stageErrf(StageValidation, "question is required")
	}

	topK := req.TopK
	if topK <= 0 {
		topK = s.topK
	}
	span.SetAttributes(attribute.Int("top_k", topK))
	if req.UserID != "" {
		span.SetAttributes(attribute.String("user_id", req.UserID))
	}

	vector, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return QueryResult{}, stageErr(StageEmbedding, err)
	}

	matches, err := s.store.Query(ctx, vector, topK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return QueryResult{}, stageErr(StageRetrieval, err)
	}
	span.SetAttributes(attribute.Int("matches", len(matches)))

	if len(matches) == 0 {
		span.SetStatus(codes.Ok, "no matches")
		return QueryResult{Answer: NoDocumentsMessage, ContextUsed: []string{}}, nil
	}

	var contextParts []string
	sources := make([]Source, 0, len(matches))
	for _, m := range matches {
		text, _ := m.Metadata["text"].(string)
		// Whitespace-only text grounds nothing, same as a missing key.
		if strings.TrimSpace(text) == "" {
			continue
		}
		contextParts = append(contextParts, text)
		sources = append(sources, Source{
			ID:       m.ID,
			Score:    m.Score,
			Filename: metadataString(m.Metadata, "filename"),
			Page:     metadataString(m.Metadata, "page"),
		})
	}

	if len(contextParts) == 0 {
		span.SetStatus(codes.Ok, "matches without text")
		return QueryResult{Answer: NoContextMessage, ContextUsed: []string{}, Matches: len(matches)}, nil
	}

	answer, err := s.generator.Generate(ctx, question, strings.Join(contextParts, "\n\n"))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return QueryResult{}, stageErr(StageGeneration, err)
	}

	span.SetStatus(codes.Ok, "success")

	s.logger.Debug("query answered",
		zap.Int("matches", len(matches)),
		zap.Int("context_chunks", len(contextParts)),
	)

	// The model's output passes through verbatim, sentinel included.
	return QueryResult{
		Answer:      answer,
		ContextUsed: contextParts,
		Matches:     len(matches),
		Sources:     sources,
	}, nil
}

// metadataString reads a metadata value as a string, accepting the numeric
// forms the stores round-trip values in.
func metadataString(meta map[string]any, key string) string {
	switch v := meta[key].(type) {
	case string:
		return v
	case int64:
		return fmt.Sprintf("%d", v)
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return ""
	}
}
