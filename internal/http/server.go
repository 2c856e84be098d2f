// Package http provides the HTTP API for docqd.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docqd/internal/config"
	"github.com/fyrsmithlabs/docqd/internal/rag"
	"github.com/fyrsmithlabs/docqd/internal/vectorstore"
)

// defaultUserID namespaces uploads that arrive without a user_id field.
const defaultUserID = "default"

// Server provides HTTP endpoints for docqd.
type Server struct {
	echo    *echo.Echo
	service *rag.Service
	store   vectorstore.Store
	logger  *zap.Logger
	config  config.ServerConfig
}

// NewServer creates the HTTP server with all routes registered.
func NewServer(svc *rag.Service, store vectorstore.Store, logger *zap.Logger, cfg config.ServerConfig) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("rag service is required")
	}
	if store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%d", cfg.MaxUploadBytes)))
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())

	s := &Server{
		echo:    e,
		service: svc,
		store:   store,
		logger:  logger,
		config:  cfg,
	}

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/documents", s.handleUpload)
	v1.POST("/query", s.handleQuery)
}

// handleHealth reports liveness and the size of the stored corpus.
func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok", Service: "docqd"}

	count, err := s.store.Count(c.Request().Context())
	if err != nil {
		// Degraded, not dead: the process is up even if the store is not.
		resp.Status = "degraded"
		s.logger.Warn("health check: store unreachable", zap.Error(err))
	} else {
		resp.Documents = count
	}

	return c.JSON(http.StatusOK, resp)
}

// handleUpload ingests one PDF from a multipart form. Fields: "file" (the
// PDF) and optionally "user_id".
func (s *Server) handleUpload(c echo.Context) error {
	userID := c.FormValue("user_id")
	if userID == "" {
		userID = defaultUserID
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return s.errorResponse(c, &rag.StageError{
			Stage: rag.StageValidation,
			Err:   fmt.Errorf("file field is required"),
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return s.errorResponse(c, fmt.Errorf("opening upload: %w", err))
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.config.MaxUploadBytes+1))
	if err != nil {
		return s.errorResponse(c, fmt.Errorf("reading upload: %w", err))
	}
	if int64(len(data)) > s.config.MaxUploadBytes {
		return s.errorResponse(c, &rag.StageError{
			Stage: rag.StageValidation,
			Err:   fmt.Errorf("file exceeds maximum size of %d bytes", s.config.MaxUploadBytes),
		})
	}

	result, err := s.service.Ingest(c.Request().Context(), rag.IngestRequest{
		UserID:   userID,
		Filename: fileHeader.Filename,
		Data:     data,
	})
	if err != nil {
		return s.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, UploadResponse{
		Message:      "PDF processed",
		SourceID:     result.SourceID,
		Pages:        result.Pages,
		ChunksTotal:  result.TotalChunks,
		ChunksStored: result.StoredChunks,
	})
}

// handleQuery answers a question against the stored corpus.
func (s *Server) handleQuery(c echo.Context) error {
	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return s.errorResponse(c, &rag.StageError{
			Stage: rag.StageValidation,
			Err:   fmt.Errorf("invalid request body"),
		})
	}

	result, err := s.service.Query(c.Request().Context(), rag.QueryRequest{
		Question: req.Query,
		UserID:   req.UserID,
		TopK:     req.TopK,
	})
	if err != nil {
		return s.errorResponse(c, err)
	}

	return c.JSON(http.StatusOK, QueryResponse{
		Answer:      result.Answer,
		ContextUsed: result.ContextUsed,
		Matches:     result.Matches,
		Sources:     result.Sources,
	})
}

// errorResponse maps pipeline errors to HTTP statuses: input problems are
// 400s, collaborator failures are 502s, anything unrecognized is a 500.
func (s *Server) errorResponse(c echo.Context, err error) error {
	var se *rag.StageError
	if errors.As(err, &se) {
		status := http.StatusBadGateway
		if se.Stage.ClientFault() {
			status = http.StatusBadRequest
		}

		if status == http.StatusBadGateway {
			s.logger.Error("pipeline failure",
				zap.String("stage", string(se.Stage)),
				zap.Error(se.Err),
			)
		}

		return c.JSON(status, ErrorResponse{Error: ErrorBody{
			Stage:   string(se.Stage),
			Message: se.Err.Error(),
		}})
	}

	s.logger.Error("unhandled error", zap.Error(err))
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: ErrorBody{
		Message: "internal server error",
	}})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
