package repository

import (
	"context"

	domrepo "SignalHub/internal/domain/repository"
	"SignalHub/pkg/config"
	"SignalHub/pkg/logger"
)

// OpenStore selects the repository named by the storage config. A durable
// store that cannot be opened degrades to memory when fallback is enabled.
func OpenStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (domrepo.Repository, error) {
	if cfg.Storage.Driver == "memory" {
		log.Info("using in-memory store")
		return NewMemoryStore(), nil
	}

	store, err := OpenGormStore(ctx, cfg.Storage.Driver, cfg.Storage.DSN, cfg.Storage.MaxOpenConns)
	if err != nil {
		if !cfg.Storage.FallbackToMemory {
			return nil, err
		}
		log.Warn("durable store unavailable, falling back to memory",
			logger.String("driver", cfg.Storage.Driver),
			logger.Error(err),
		)
		return NewMemoryStore(), nil
	}
	log.Info("durable store ready", logger.String("driver", cfg.Storage.Driver))
	return store, nil
}
