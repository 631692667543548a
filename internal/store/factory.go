package store

import (
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/septivank/biometric-pipeline/internal/config"
)

// New builds the store bundle for the configured backend. The redis client
// may be nil when the backend is "memory".
func New(cfg config.StorageConfig, client *redis.Client) (*Stores, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStores(), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis backend selected but no client configured")
		}
		return NewRedisStores(client), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
