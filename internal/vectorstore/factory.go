package vectorstore

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docqd/internal/config"
)

// New creates a Store from configuration. The dimension must match the
// embedder that produces the vectors the store will hold.
func New(cfg config.VectorStoreConfig, dimension int, logger *zap.Logger) (Store, error) {
	switch cfg.Provider {
	case "chromem", "":
		return NewChromemStore(cfg.Chromem, dimension, logger)
	case "qdrant":
		return NewQdrantStore(cfg.Qdrant, dimension, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q (supported: chromem, qdrant)", ErrInvalidConfig, cfg.Provider)
	}
}
