// Docqd is a document question-answering daemon.
//
// It ingests PDF uploads, chunks and embeds their text via the Gemini
// embedding API, stores the vectors in a vector database (embedded chromem
// or Qdrant), and answers questions grounded on the retrieved chunks with a
// Gemini completion model.
//
// Configuration is loaded from an optional YAML file with environment
// variable overrides. See internal/config for details.
//
// Usage:
//
//	# Start with defaults (chromem store, port 9091)
//	EMBEDDING_API_KEY=... GENERATION_API_KEY=... docqd
//
//	# Start with a config file
//	docqd -config /etc/docqd/config.yaml
//
//	# Show version information
//	docqd version
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docqd/internal/config"
	"github.com/fyrsmithlabs/docqd/internal/embeddings"
	"github.com/fyrsmithlabs/docqd/internal/generation"
	httpserver "github.com/fyrsmithlabs/docqd/internal/http"
	"github.com/fyrsmithlabs/docqd/internal/logging"
	"github.com/fyrsmithlabs/docqd/internal/rag"
	"github.com/fyrsmithlabs/docqd/internal/telemetry"
	"github.com/fyrsmithlabs/docqd/internal/vectorstore"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  docqd [-config FILE]   Start the docqd daemon\n")
			fmt.Fprintf(os.Stderr, "  docqd version          Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("docqd\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the daemon and blocks until the context is cancelled.
//
//  1. Loads and validates configuration
//  2. Initializes logger and telemetry
//  3. Creates the Gemini embedding and generation clients
//  4. Opens the vector store (chromem or Qdrant)
//  5. Wires the pipeline service and HTTP server
//  6. Performs graceful shutdown on context cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logging.Sync(logger)

	logger.Info("starting docqd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("embedding_model", cfg.Embedding.Model),
		zap.String("generation_model", cfg.Generation.Model),
	)

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	if tel.Degraded() {
		logger.Warn("telemetry running degraded, exporter unavailable")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	embedder, err := embeddings.NewGeminiClient(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("creating embedding client: %w", err)
	}

	generator, err := generation.NewGeminiClient(cfg.Generation)
	if err != nil {
		return fmt.Errorf("creating generation client: %w", err)
	}

	store, err := vectorstore.New(cfg.VectorStore, embedder.Dimension(), logger)
	if err != nil {
		return fmt.Errorf("opening vector store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("vector store close failed", zap.Error(err))
		}
	}()

	service, err := rag.NewService(*cfg, embedder, generator, store, logger)
	if err != nil {
		return fmt.Errorf("creating pipeline service: %w", err)
	}

	srv, err := httpserver.NewServer(service, store, logger, cfg.Server)
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	return nil
}
