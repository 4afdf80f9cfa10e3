package redis

import (
	"context"
	"errors"

	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/internal/domain/progression"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/pkg/circuitbreaker"
	"github.com/TheAccidentalTeacher/BibleSAAS-sub001/pkg/logger"
)

// CatalogCache decorates an AchievementRepository with a read-through cache
// of the achievement catalog. Unlock data is never cached; it always comes
// from the store.
type CatalogCache struct {
	progression.AchievementRepository

	cache   *Cache
	breaker *circuitbreaker.Breaker
	key     string
	log     *logger.Logger
}

var _ progression.AchievementRepository = (*CatalogCache)(nil)

// CatalogCacheConfig configures NewCatalogCache.
type CatalogCacheConfig struct {
	// Version is the catalog seed version, part of the cache key.
	Version int

	Breaker *circuitbreaker.Breaker
	Logger  *logger.Logger
}

// NewCatalogCache wraps repo.
func NewCatalogCache(repo progression.AchievementRepository, cache *Cache, cfg CatalogCacheConfig) *CatalogCache {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Breaker == nil {
		cfg.Breaker = NewBreaker(nil)
	}
	return &CatalogCache{
		AchievementRepository: repo,
		cache:                 cache,
		breaker:               cfg.Breaker,
		key:                   CatalogKey(cfg.Version),
		log:                   cfg.Logger.With(logger.Component("catalog_cache")),
	}
}

// ListAchievementDefs serves the catalog from Redis when possible and
// falls back to the store on a miss, an error, or an open breaker.
func (c *CatalogCache) ListAchievementDefs(ctx context.Context) ([]progression.AchievementDef, error) {
	var (
		defs []progression.AchievementDef
		hit  bool
	)

	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		err := c.cache.Get(ctx, c.key, &defs)
		hit = err == nil
		return err
	})
	if err != nil && !errors.Is(err, ErrCacheMiss) {
		c.log.Warn("catalog cache read failed", logger.Err(err))
	}
	if hit {
		return defs, nil
	}

	defs, err = c.AchievementRepository.ListAchievementDefs(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.cache.Set(ctx, c.key, defs, TTLCatalog)
	}); err != nil {
		c.log.Warn("catalog cache write failed", logger.Err(err))
	}
	return defs, nil
}

// SeedAchievementDefs writes through and drops the cached catalog when
// anything was inserted.
func (c *CatalogCache) SeedAchievementDefs(ctx context.Context, defs []progression.AchievementDef) (int, error) {
	n, err := c.AchievementRepository.SeedAchievementDefs(ctx, defs)
	if err != nil || n == 0 {
		return n, err
	}
	c.Invalidate(ctx)
	return n, nil
}

// Invalidate removes the cached catalog.
func (c *CatalogCache) Invalidate(ctx context.Context) {
	if err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.cache.Delete(ctx, c.key)
	}); err != nil {
		c.log.Warn("catalog cache invalidate failed", logger.Err(err))
	}
}
