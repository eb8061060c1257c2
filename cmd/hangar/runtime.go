package main

import (
	"log/slog"

	"github.com/mmcdole/hangar/internal/adapter"
	"github.com/mmcdole/hangar/internal/atproto"
	"github.com/mmcdole/hangar/internal/coordinator"
	"github.com/mmcdole/hangar/internal/credential"
	"github.com/mmcdole/hangar/internal/service"
	"github.com/mmcdole/hangar/internal/store"
)

// runtime is the wired client core of one process.
type runtime struct {
	core  *service.Core
	cache *store.Cache
}

func openRuntime(cfg *adapter.Config, logger *slog.Logger) *runtime {
	sessions := service.NewSessions(newCredentials(cfg.Secrets, logger), logger)

	client := atproto.NewClient(atproto.Options{
		BaseURL:     cfg.Service.URL,
		Timeout:     cfg.Service.Timeout,
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		Logger:      logger,
		OnRefresh:   sessions.Publish,
	})

	cache := openCache(cfg.Cache, logger)

	coord := coordinator.New(coordinator.Options{
		Permits:        cfg.Coordinator.Permits,
		QueueSize:      cfg.Coordinator.QueueSize,
		RequestTimeout: cfg.Coordinator.RequestTimeout,
		Logger:         logger,
	})

	core := service.New(service.Deps{
		Remote:      client,
		Images:      client,
		Cache:       cache,
		Sessions:    sessions,
		Coordinator: coord,
		Logger:      logger,
		PageSize:    cfg.Timeline.PageSize,
	})
	return &runtime{core: core, cache: cache}
}

// Close stops the workers and closes the cache.
func (r *runtime) Close() error {
	return r.core.Close()
}

func newCredentials(cfg adapter.SecretsConfig, logger *slog.Logger) *credential.Store {
	if cfg.Backend == adapter.SecretsMemory {
		return credential.NewMemory(logger)
	}
	return credential.NewKeyring(cfg.Service, logger)
}

// openCache falls back to a pass-through cache when the database cannot
// be opened; the client keeps working without persistence.
func openCache(cfg adapter.CacheConfig, logger *slog.Logger) *store.Cache {
	if cfg.Disabled {
		return store.Disabled(logger)
	}
	cache, err := store.Open(store.Options{
		Dir:           cfg.Dir,
		MaxRows:       cfg.MaxRows,
		MaxImageBytes: cfg.MaxImageBytes,
		EvictRatio:    cfg.EvictRatio,
		PinTTL:        cfg.PinTTL,
		Logger:        logger,
	})
	if err != nil {
		logger.Warn("cache unavailable, continuing without it", "error", err)
		return store.Disabled(logger)
	}
	return cache
}
