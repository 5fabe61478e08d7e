package cache

import (
	"github.com/coocood/freecache"
	"github.com/rs/zerolog"

	"github.com/coah80/pastvoices/internal/config"
)

// Well-known keys.
const (
	KeyStorageStats = "storage-stats"
	KeyPersonas     = "personas"
)

type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	Delete(key string)
}

type freeCache struct {
	cache *freecache.Cache
	ttl   int
}

func New(cfg config.CacheConfig, logger zerolog.Logger) Cache {
	if !cfg.Enabled || cfg.SizeMB <= 0 {
		logger.Info().Msg("cache disabled")
		return noopCache{}
	}

	ttl := max(cfg.TTL, 1)
	logger.Info().Int("sizeMB", cfg.SizeMB).Int("ttl", ttl).Msg("cache initialized")

	return &freeCache{
		cache: freecache.NewCache(cfg.SizeMB * 1024 * 1024),
		ttl:   ttl,
	}
}

func (c *freeCache) Get(key string) ([]byte, bool) {
	val, err := c.cache.Get([]byte(key))
	if err != nil {
		return nil, false
	}
	return val, true
}

func (c *freeCache) Set(key string, value []byte) {
	_ = c.cache.Set([]byte(key), value, c.ttl)
}

func (c *freeCache) Delete(key string) {
	c.cache.Del([]byte(key))
}

type noopCache struct{}

func (noopCache) Get(string) ([]byte, bool) { return nil, false }
func (noopCache) Set(string, []byte)        {}
func (noopCache) Delete(string)             {}
