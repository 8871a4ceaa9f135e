// factory.go implements the media store registry and factory, mapping backend
// type strings (local, s3) to constructor functions and dispatching NewStorage
// calls.
package storage

import (
	"fmt"

	"github.com/media-gateway/media-gateway/internal/config"
)

// Factory function type for creating storage backends
type FactoryFunc func(*config.Config) (Storage, error)

var factories = make(map[string]FactoryFunc)

// Register registers a storage backend factory
func Register(name string, factory FactoryFunc) {
	factories[name] = factory
}

// NewStorage creates the media store backend selected by configuration
func NewStorage(cfg *config.Config) (Storage, error) {
	factory, ok := factories[cfg.MediaStore.Backend]
	if !ok {
		return nil, fmt.Errorf("unsupported media store backend: %s (must be 'local' or 's3')", cfg.MediaStore.Backend)
	}

	return factory(cfg)
}
