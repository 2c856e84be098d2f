// Package embeddings provides embedding generation via the Gemini API.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/docqd/internal/config"
)

var (
	// ErrInvalidConfig indicates missing or invalid client configuration.
	ErrInvalidConfig = errors.New("invalid embedding configuration")
	// ErrEmptyInput indicates there was nothing to embed.
	ErrEmptyInput = errors.New("empty input")
	// ErrDimensionMismatch indicates the API returned a vector whose length
	// differs from the configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Embedder generates embedding vectors for document chunks and queries.
type Embedder interface {
	// EmbedDocuments embeds each text for storage. Results are returned in
	// input order, one vector per text, each exactly Dimension() long.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	// EmbedQuery embeds a single retrieval query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the vector length this embedder produces.
	Dimension() int
}

const (
	taskTypeDocument = "RETRIEVAL_DOCUMENT"
	taskTypeQuery    = "RETRIEVAL_QUERY"
)

// GeminiClient calls the Gemini embedContent API. Each text is embedded with
// its own request; a rate limiter spaces requests out so chunk-heavy uploads
// do not trip API quotas. When the single-content endpoint fails, the client
// falls back to the batch endpoint with a one-element batch before giving up.
type GeminiClient struct {
	baseURL    string
	model      string
	apiKey     config.Secret
	dimension  int
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewGeminiClient creates a Gemini embedding client from configuration.
func NewGeminiClient(cfg config.EmbeddingConfig) (*GeminiClient, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("%w: api key required", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, cfg.Dimension)
	}

	interval := cfg.RequestInterval.Duration()
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	return &GeminiClient{
		baseURL:   cfg.BaseURL,
		model:     cfg.Model,
		apiKey:    cfg.APIKey,
		dimension: cfg.Dimension,
		httpClient: &http.Client{
			Timeout: cfg.Timeout.Duration(),
		},
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}, nil
}

// Dimension returns the configured embedding dimensionality.
func (g *GeminiClient) Dimension() int {
	return g.dimension
}

// EmbedDocuments embeds each text for storage, in input order. A failure on
// any text aborts the whole batch: partial results are never returned, so the
// caller can treat the batch as all-or-nothing.
func (g *GeminiClient) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	vectors := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vec, err := g.embed(ctx, text, taskTypeDocument)
		if err != nil {
			return nil, fmt.Errorf("embed text %d/%d: %w", i+1, len(texts), err)
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

// EmbedQuery embeds a retrieval query.
func (g *GeminiClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	return g.embed(ctx, text, taskTypeQuery)
}

// embed requests a single embedding, trying the embedContent endpoint first
// and batchEmbedContents as fallback. When both fail the returned error
// carries both causes.
func (g *GeminiClient) embed(ctx context.Context, text, taskType string) ([]float32, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	vec, primaryErr := g.embedContent(ctx, text, taskType)
	if primaryErr == nil {
		return g.checkDimension(vec)
	}

	vec, fallbackErr := g.batchEmbedContents(ctx, text, taskType)
	if fallbackErr == nil {
		return g.checkDimension(vec)
	}

	return nil, fmt.Errorf("embedding failed (primary: %v): %w", primaryErr, fallbackErr)
}

func (g *GeminiClient) checkDimension(vec []float32) ([]float32, error) {
	if len(vec) != g.dimension {
		return nil, fmt.Errorf("%w: got %d values, want %d", ErrDimensionMismatch, len(vec), g.dimension)
	}
	return vec, nil
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type embedContentRequest struct {
	Model                string        `json:"model"`
	Content              geminiContent `json:"content"`
	TaskType             string        `json:"taskType"`
	OutputDimensionality int           `json:"outputDimensionality"`
}

type embedContentResponse struct {
	Embedding struct {
		Values []float32 `json:"values"`
	} `json:"embedding"`
}

type batchEmbedRequest struct {
	Requests []embedContentRequest `json:"requests"`
}

type batchEmbedResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

func (g *GeminiClient) embedContent(ctx context.Context, text, taskType string) ([]float32, error) {
	req := embedContentRequest{
		Model:                "models/" + g.model,
		Content:              geminiContent{Parts: []geminiPart{{Text: text}}},
		TaskType:             taskType,
		OutputDimensionality: g.dimension,
	}

	body, err := g.doRequest(ctx, ":embedContent", req)
	if err != nil {
		return nil, err
	}

	var resp embedContentResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Embedding.Values) == 0 {
		return nil, errors.New("empty embedding in response")
	}
	return resp.Embedding.Values, nil
}

func (g *GeminiClient) batchEmbedContents(ctx context.Context, text, taskType string) ([]float32, error) {
	req := batchEmbedRequest{
		Requests: []embedContentRequest{{
			Model:                "models/" + g.model,
			Content:              geminiContent{Parts: []geminiPart{{Text: text}}},
			TaskType:             taskType,
			OutputDimensionality: g.dimension,
		}},
	}

	body, err := g.doRequest(ctx, ":batchEmbedContents", req)
	if err != nil {
		return nil, err
	}

	var resp batchEmbedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, errors.New("empty embedding in response")
	}
	return resp.Embeddings[0].Values, nil
}

func (g *GeminiClient) doRequest(ctx context.Context, method string, payload any) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := g.baseURL + "/v1beta/models/" + g.model + method
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", g.apiKey.Value())

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp geminiError
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// geminiError is the standard Google API error envelope.
type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

var _ Embedder = (*GeminiClient)(nil)
