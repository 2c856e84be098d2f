package http

import "github.com/fyrsmithlabs/docqd/internal/rag"

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Documents int    `json:"documents"`
}

// UploadResponse is the response body for POST /api/v1/documents.
type UploadResponse struct {
	Message      string `json:"message"`
	SourceID     string `json:"source_id"`
	Pages        int    `json:"pages"`
	ChunksTotal  int    `json:"chunks_total"`
	ChunksStored int    `json:"chunks_stored"`
}

// QueryRequest is the request body for POST /api/v1/query.
type QueryRequest struct {
	Query  string `json:"query"`
	UserID string `json:"user_id"`
	TopK   int    `json:"top_k"`
}

// QueryResponse is the response body for POST /api/v1/query. ContextUsed and
// Matches distinguish the no-documents, no-text, and answered outcomes.
type QueryResponse struct {
	Answer      string       `json:"answer"`
	ContextUsed []string     `json:"context_used"`
	Matches     int          `json:"matches"`
	Sources     []rag.Source `json:"sources,omitempty"`
}

// ErrorBody carries the failing stage and a human-readable message.
type ErrorBody struct {
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message"`
}

// ErrorResponse is the error envelope for all endpoints.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}
