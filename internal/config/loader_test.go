package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_DefaultsOnly(t *testing.T) {
	t.Setenv("EMBEDDING_API_KEY", "embed-key")
	t.Setenv("GENERATION_API_KEY", "gen-key")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9091, cfg.Server.Port)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, "embed-key", cfg.Embedding.APIKey.Value())
}

func TestLoad_YAMLFile(t *testing.T) {
	t.Setenv("EMBEDDING_API_KEY", "embed-key")
	t.Setenv("GENERATION_API_KEY", "gen-key")

	path := writeConfigFile(t, `
server:
  port: 8080
ingest:
  chunk_size: 200
  overlap: 40
  max_chunks: 25
vectorstore:
  provider: qdrant
  qdrant:
    host: qdrant.internal
    port: 7001
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 200, cfg.Ingest.ChunkSize)
	assert.Equal(t, 40, cfg.Ingest.Overlap)
	assert.Equal(t, 25, cfg.Ingest.MaxChunks)
	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
	assert.Equal(t, "qdrant.internal", cfg.VectorStore.Qdrant.Host)
	assert.Equal(t, 7001, cfg.VectorStore.Qdrant.Port)
	// Untouched sections keep defaults.
	assert.Equal(t, 5, cfg.Query.TopK)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("EMBEDDING_API_KEY", "embed-key")
	t.Setenv("GENERATION_API_KEY", "gen-key")
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("QDRANT_HOST", "env-host")

	path := writeConfigFile(t, `
server:
  port: 8080
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "env-host", cfg.VectorStore.Qdrant.Host)
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	t.Setenv("EMBEDDING_API_KEY", "embed-key")
	t.Setenv("GENERATION_API_KEY", "gen-key")

	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 9091, cfg.Server.Port)
}

func TestLoad_RejectsInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8080\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoad_InvalidChunkingRejected(t *testing.T) {
	t.Setenv("EMBEDDING_API_KEY", "embed-key")
	t.Setenv("GENERATION_API_KEY", "gen-key")
	t.Setenv("INGEST_CHUNK_SIZE", "100")
	t.Setenv("INGEST_OVERLAP", "100")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be less than chunk_size")
}

func TestEnvKeyTransform(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"SERVER_PORT", "server.port"},
		{"EMBEDDING_API_KEY", "embedding.api_key"},
		{"INGEST_CHUNK_SIZE", "ingest.chunk_size"},
		{"QDRANT_HOST", "vectorstore.qdrant.host"},
		{"CHROMEM_PATH", "vectorstore.chromem.path"},
		{"PATH", "path"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, envKeyTransform(tt.in), tt.in)
	}
}
