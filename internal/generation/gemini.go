// Package generation answers questions over retrieved context using the
// Gemini generateContent API.
package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/docqd/internal/config"
)

var (
	// ErrInvalidConfig indicates missing or invalid client configuration.
	ErrInvalidConfig = errors.New("invalid generation configuration")
	// ErrEmptyResponse indicates the API returned no candidates.
	ErrEmptyResponse = errors.New("empty response from API")
)

// NotFoundSentinel is the phrase the model is instructed to return when the
// retrieved context does not contain the answer. Callers pass it through to
// the user verbatim; it is a valid answer, not an error.
const NotFoundSentinel = "Not found in context."

// Generator produces a grounded answer from a question and its retrieved
// context.
type Generator interface {
	Generate(ctx context.Context, question, contextText string) (string, error)
}

const (
	defaultRateLimit   = 2.0 // requests per second
	defaultBurst       = 1
	defaultBaseBackoff = 500 * time.Millisecond
)

// GeminiClient calls the Gemini generateContent API with rate limiting and
// exponential-backoff retries for transient failures.
type GeminiClient struct {
	model      string
	apiKey     config.Secret
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

// NewGeminiClient creates a Gemini generation client from configuration.
func NewGeminiClient(cfg config.GenerationConfig) (*GeminiClient, error) {
	if !cfg.APIKey.IsSet() {
		return nil, fmt.Errorf("%w: api key required", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}

	return &GeminiClient{
		model:   cfg.Model,
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout.Duration(),
		},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxRetries: cfg.MaxRetries,
	}, nil
}

// Generate answers the question using only contextText. The prompt instructs
// the model to reply with NotFoundSentinel when the context does not contain
// the answer; the model's output is returned verbatim either way.
func (g *GeminiClient) Generate(ctx context.Context, question, contextText string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	prompt := buildPrompt(question, contextText)

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		answer, err := g.doRequest(ctx, prompt)
		if err == nil {
			return answer, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			return "", err
		}
	}

	return "", fmt.Errorf("max retries exceeded: %w", lastErr)
}

func buildPrompt(question, contextText string) string {
	return fmt.Sprintf(`Use ONLY the context below to answer the user's question.

---CONTEXT---
%s
-------------

QUESTION: %s

If the answer is not present in the context, respond with:
%q
`, contextText, question, NotFoundSentinel)
}

type generateRequest struct {
	Contents []generateContent `json:"contents"`
}

type generateContent struct {
	Parts []generatePart `json:"parts"`
}

type generatePart struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []generatePart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (g *GeminiClient) doRequest(ctx context.Context, prompt string) (string, error) {
	req := generateRequest{
		Contents: []generateContent{{
			Parts: []generatePart{{Text: prompt}},
		}},
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := g.baseURL + "/v1beta/models/" + g.model + ":generateContent"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Goog-Api-Key", g.apiKey.Value())

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", &retryableError{err: fmt.Errorf("API request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &retryableError{err: fmt.Errorf("rate limited (429)")}
	}
	if resp.StatusCode >= 500 {
		return "", &retryableError{err: fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))}
	}
	if resp.StatusCode != http.StatusOK {
		var errResp geminiError
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return "", fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return "", fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body))
	}

	var genResp generateResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}

	// The model may split one answer across several parts.
	var answer strings.Builder
	for _, part := range genResp.Candidates[0].Content.Parts {
		answer.WriteString(part.Text)
	}
	return answer.String(), nil
}

// retryableError wraps an error to indicate it can be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// isRetryableError checks if an error should be retried.
func isRetryableError(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

var _ Generator = (*GeminiClient)(nil)
