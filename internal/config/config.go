// Package config provides configuration loading for docqd.
//
// Configuration is loaded from a YAML file with environment variable
// overrides. This package covers the server, logging, telemetry, the two
// Gemini collaborators, the vector store, and the chunking pipeline.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete docqd configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
	Embedding   EmbeddingConfig   `koanf:"embedding"`
	Generation  GenerationConfig  `koanf:"generation"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Ingest      IngestConfig      `koanf:"ingest"`
	Query       QueryConfig       `koanf:"query"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	MaxUploadBytes  int64    `koanf:"max_upload_bytes"`
}

// LoggingConfig holds zap logger configuration.
type LoggingConfig struct {
	Level  string            `koanf:"level"`
	Format string            `koanf:"format"`
	Fields map[string]string `koanf:"fields"`
}

// TelemetryConfig holds OpenTelemetry configuration.
type TelemetryConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Endpoint       string   `koanf:"endpoint"`
	Protocol       string   `koanf:"protocol"`
	ServiceName    string   `koanf:"service_name"`
	ServiceVersion string   `koanf:"service_version"`
	Insecure       bool     `koanf:"insecure"`
	SamplingRate   float64  `koanf:"sampling_rate"`
	MetricsEnabled bool     `koanf:"metrics_enabled"`
	ExportInterval Duration `koanf:"export_interval"`
}

// EmbeddingConfig holds the Gemini embedding provider configuration.
type EmbeddingConfig struct {
	APIKey  Secret `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`

	// Dimension is the target embedding dimensionality D. Every vector the
	// system produces or consumes must have exactly this length.
	Dimension int `koanf:"dimension"`

	Timeout Duration `koanf:"timeout"`

	// RequestInterval is the minimum spacing between embedding API calls.
	RequestInterval Duration `koanf:"request_interval"`
}

// GenerationConfig holds the Gemini completion provider configuration.
type GenerationConfig struct {
	APIKey     Secret   `koanf:"api_key"`
	BaseURL    string   `koanf:"base_url"`
	Model      string   `koanf:"model"`
	Timeout    Duration `koanf:"timeout"`
	MaxRetries int      `koanf:"max_retries"`
}

// VectorStoreConfig selects and configures the vector store provider.
type VectorStoreConfig struct {
	// Provider is "chromem" (embedded, default) or "qdrant".
	Provider string        `koanf:"provider"`
	Qdrant   QdrantConfig  `koanf:"qdrant"`
	Chromem  ChromemConfig `koanf:"chromem"`
}

// QdrantConfig holds Qdrant gRPC client configuration.
type QdrantConfig struct {
	Host         string   `koanf:"host"`
	Port         int      `koanf:"port"`
	Collection   string   `koanf:"collection"`
	UseTLS       bool     `koanf:"use_tls"`
	MaxRetries   int      `koanf:"max_retries"`
	RetryBackoff Duration `koanf:"retry_backoff"`
}

// ChromemConfig holds embedded chromem-go store configuration.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Collection string `koanf:"collection"`
	Compress   bool   `koanf:"compress"`
}

// IngestConfig holds the chunking pipeline configuration.
type IngestConfig struct {
	// ChunkSize is the window length in words.
	ChunkSize int `koanf:"chunk_size"`

	// Overlap is the number of words shared between consecutive windows.
	// Must be strictly less than ChunkSize.
	Overlap int `koanf:"overlap"`

	// MaxChunks caps the number of chunks stored per uploaded document.
	// Chunks beyond the cap are dropped; the response reports both counts.
	MaxChunks int `koanf:"max_chunks"`
}

// QueryConfig holds retrieval defaults.
type QueryConfig struct {
	// TopK is the default number of nearest neighbors retrieved per query.
	TopK int `koanf:"top_k"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 9091
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 20 << 20 // 20MiB
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "docqd"
	}
	if cfg.Telemetry.ServiceVersion == "" {
		cfg.Telemetry.ServiceVersion = "0.1.0"
	}
	if cfg.Telemetry.SamplingRate == 0 {
		cfg.Telemetry.SamplingRate = 1.0
	}
	if cfg.Telemetry.ExportInterval == 0 {
		cfg.Telemetry.ExportInterval = Duration(15 * time.Second)
	}

	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "gemini-embedding-001"
	}
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = 1536
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = Duration(30 * time.Second)
	}
	if cfg.Embedding.RequestInterval == 0 {
		cfg.Embedding.RequestInterval = Duration(100 * time.Millisecond)
	}

	if cfg.Generation.BaseURL == "" {
		cfg.Generation.BaseURL = "https://generativelanguage.googleapis.com"
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "gemini-2.0-flash"
	}
	if cfg.Generation.Timeout == 0 {
		cfg.Generation.Timeout = Duration(60 * time.Second)
	}
	if cfg.Generation.MaxRetries == 0 {
		cfg.Generation.MaxRetries = 3
	}

	if cfg.VectorStore.Provider == "" {
		cfg.VectorStore.Provider = "chromem"
	}
	if cfg.VectorStore.Qdrant.Host == "" {
		cfg.VectorStore.Qdrant.Host = "localhost"
	}
	if cfg.VectorStore.Qdrant.Port == 0 {
		cfg.VectorStore.Qdrant.Port = 6334
	}
	if cfg.VectorStore.Qdrant.Collection == "" {
		cfg.VectorStore.Qdrant.Collection = "docqd_chunks"
	}
	if cfg.VectorStore.Qdrant.MaxRetries == 0 {
		cfg.VectorStore.Qdrant.MaxRetries = 3
	}
	if cfg.VectorStore.Qdrant.RetryBackoff == 0 {
		cfg.VectorStore.Qdrant.RetryBackoff = Duration(time.Second)
	}
	if cfg.VectorStore.Chromem.Path == "" {
		cfg.VectorStore.Chromem.Path = "~/.config/docqd/vectorstore"
	}
	if cfg.VectorStore.Chromem.Collection == "" {
		cfg.VectorStore.Chromem.Collection = "docqd_chunks"
	}

	if cfg.Ingest.ChunkSize == 0 {
		cfg.Ingest.ChunkSize = 800
	}
	// Overlap default only applies when the chunk size is the default too;
	// otherwise a zero overlap is a legitimate explicit setting.
	if cfg.Ingest.Overlap == 0 && cfg.Ingest.ChunkSize == 800 {
		cfg.Ingest.Overlap = 150
	}
	if cfg.Ingest.MaxChunks == 0 {
		cfg.Ingest.MaxChunks = 10
	}

	if cfg.Query.TopK == 0 {
		cfg.Query.TopK = 5
	}
}

// Validate validates the configuration.
//
// Chunking parameters are checked here so that an overlap >= chunk_size never
// reaches the splitter: that combination would make the window step
// non-positive and is a configuration error, not a runtime one.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return errors.New("max_upload_bytes must be positive")
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return errors.New("telemetry endpoint required when telemetry is enabled")
		}
		if c.Telemetry.ServiceName == "" {
			return errors.New("telemetry service_name required when telemetry is enabled")
		}
		if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
			return fmt.Errorf("telemetry sampling_rate must be between 0 and 1, got %f", c.Telemetry.SamplingRate)
		}
	}

	if c.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.Embedding.Dimension)
	}
	if !c.Embedding.APIKey.IsSet() {
		return errors.New("embedding api_key is required")
	}
	if !c.Generation.APIKey.IsSet() {
		return errors.New("generation api_key is required")
	}

	switch c.VectorStore.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("unsupported vectorstore provider: %q (supported: chromem, qdrant)", c.VectorStore.Provider)
	}

	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.Ingest.ChunkSize)
	}
	if c.Ingest.Overlap < 0 {
		return fmt.Errorf("overlap cannot be negative, got %d", c.Ingest.Overlap)
	}
	if c.Ingest.Overlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("overlap (%d) must be less than chunk_size (%d)", c.Ingest.Overlap, c.Ingest.ChunkSize)
	}
	if c.Ingest.MaxChunks <= 0 {
		return fmt.Errorf("max_chunks must be positive, got %d", c.Ingest.MaxChunks)
	}

	if c.Query.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.Query.TopK)
	}

	return nil
}
