package content

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vlikcc/yargisalzeka.V2/pkg/redis"
)

// Cache stores decoded document bodies so repeated runs with content
// fetching enabled do not download the same document twice. Lookups never
// fail a run: errors are logged and reported as misses.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, text string)
}

// Key builds the cache key for a document body.
func Key(family, externalID string) string {
	return "content:" + family + ":" + externalID
}

// NopCache never stores anything.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (string, bool) { return "", false }
func (NopCache) Set(context.Context, string, string)        {}

// RedisCache keeps decoded bodies in Redis with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: slog.Default().With("component", "content-cache"),
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool) {
	text, found, err := c.client.Lookup(ctx, key)
	if err != nil {
		c.logger.Warn("content cache read failed", "key", key, "error", err)
	}
	return text, found
}

func (c *RedisCache) Set(ctx context.Context, key, text string) {
	if err := c.client.Store(ctx, key, text, c.ttl); err != nil {
		c.logger.Warn("content cache write failed", "key", key, "error", err)
	}
}

// MemoryCache is an in-process Cache for tests.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]string)}
}

func (c *MemoryCache) Get(_ context.Context, key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	text, ok := c.entries[key]
	return text, ok
}

func (c *MemoryCache) Set(_ context.Context, key, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = text
}

var (
	_ Cache = NopCache{}
	_ Cache = (*RedisCache)(nil)
	_ Cache = (*MemoryCache)(nil)
)
