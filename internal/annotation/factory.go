package annotation

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/scribblemap/arcapture/internal/config"
)

// NewStore creates an annotation store based on configuration
func NewStore(cfg config.StorageConfig, log zerolog.Logger) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(log)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
