package blobstore

import (
	"context"
	"fmt"
	"time"

	"monty/internal/config"
	"monty/internal/logger"
)

const probeTimeout = 5 * time.Second

// Open selects the store described by cfg. Configuration mistakes are
// errors; an unreachable backend yields Unavailable so the caller keeps
// working from the local cache.
func Open(ctx context.Context, cfg config.StorageConfig, log *logger.Logger) (ObjectStore, error) {
	switch cfg.Backend {
	case "", config.BackendNone:
		return Unavailable{Reason: "no storage backend configured"}, nil

	case config.BackendDir:
		store, err := NewDirStore(cfg.Dir)
		if err != nil {
			log.Warn("Remote storage unavailable, continuing offline: %v", err)
			return Unavailable{Reason: err.Error()}, nil
		}
		log.Debug("Using directory storage at %s", cfg.Dir)
		return store, nil

	case config.BackendHTTP:
		store := NewHTTPStore(cfg.Endpoint, cfg.Bucket, cfg.Token)
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		defer cancel()
		if err := store.Ping(probeCtx); err != nil {
			log.Warn("Remote storage unavailable, continuing offline: %v", err)
			return Unavailable{Reason: err.Error()}, nil
		}
		log.Debug("Using HTTP storage at %s/%s", cfg.Endpoint, cfg.Bucket)
		return store, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
