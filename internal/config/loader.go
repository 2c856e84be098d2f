package config

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// Load loads configuration from an optional YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (SERVER_PORT, EMBEDDING_API_KEY, ...)
//  2. YAML config file
//  3. Hardcoded defaults
//
// If configPath is empty, no file is read and only environment variables and
// defaults apply. A configPath that names a missing file is not an error, so
// deployments can ship a fixed path and configure purely via environment.
//
// Environment variables map to config keys by splitting on the first
// underscore and lowercasing:
//
//	SERVER_PORT             -> server.port
//	EMBEDDING_API_KEY       -> embedding.api_key
//	INGEST_CHUNK_SIZE       -> ingest.chunk_size
//	VECTORSTORE_PROVIDER    -> vectorstore.provider
//
// Nested provider settings use double sections in YAML only; for the common
// Qdrant overrides the flat QDRANT_* aliases are also recognized:
//
//	QDRANT_HOST       -> vectorstore.qdrant.host
//	QDRANT_PORT       -> vectorstore.qdrant.port
//	QDRANT_COLLECTION -> vectorstore.qdrant.collection
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			content, err := readConfigFile(configPath)
			if err != nil {
				return nil, err
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// readConfigFile opens, validates, and reads the config file. Validation uses
// the already-open file descriptor to avoid a TOCTOU race.
func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	// API keys live in this file; reject group/world-readable permissions.
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm&0o077 != 0 {
			return nil, fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// envKeyTransform maps an environment variable name to a koanf key.
func envKeyTransform(s string) string {
	lower := strings.ToLower(s)

	// Flat aliases for nested qdrant/chromem settings.
	if rest, ok := strings.CutPrefix(lower, "qdrant_"); ok {
		return "vectorstore.qdrant." + rest
	}
	if rest, ok := strings.CutPrefix(lower, "chromem_"); ok {
		return "vectorstore.chromem." + rest
	}

	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}
