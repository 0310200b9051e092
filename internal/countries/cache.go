package countries

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mrlokans/libmanage/internal/config"
)

const cacheKey = "libmanage:countries"

// Cache stores the fetched country list.
type Cache interface {
	Get(ctx context.Context) ([]Country, bool, error)
	Set(ctx context.Context, list []Country, ttl time.Duration) error
}

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context) ([]Country, bool, error) {
	data, err := c.client.Get(ctx, cacheKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var list []Country
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, false, fmt.Errorf("decode cached countries: %w", err)
	}
	return list, true, nil
}

func (c *RedisCache) Set(ctx context.Context, list []Country, ttl time.Duration) error {
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey, data, ttl).Err()
}

// MemoryCache keeps the list in process memory.
type MemoryCache struct {
	mu      sync.RWMutex
	list    []Country
	expires time.Time
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{now: time.Now}
}

func (c *MemoryCache) Get(context.Context) ([]Country, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.list == nil || !c.now().Before(c.expires) {
		return nil, false, nil
	}
	return c.list, true, nil
}

func (c *MemoryCache) Set(_ context.Context, list []Country, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.list = list
	c.expires = c.now().Add(ttl)
	return nil
}

// NewCache connects to Redis when an address is configured and falls back to
// the in-memory cache when it is not set or not reachable.
func NewCache(cfg config.Redis) Cache {
	if cfg.Addr == "" {
		return NewMemoryCache()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("WARNING: Redis at %s is not reachable, caching countries in memory: %v", cfg.Addr, err)
		client.Close()
		return NewMemoryCache()
	}
	log.Printf("[COUNTRIES] Caching country list in Redis at %s", cfg.Addr)
	return NewRedisCache(client)
}

// CachedClient serves the country list from the cache and only calls the
// upstream API on a miss. Empty results are never cached.
type CachedClient struct {
	source Fetcher
	cache  Cache
	ttl    time.Duration
}

func NewCachedClient(source Fetcher, cache Cache, ttl time.Duration) *CachedClient {
	return &CachedClient{source: source, cache: cache, ttl: ttl}
}

func (c *CachedClient) Countries(ctx context.Context) []Country {
	list, ok, err := c.cache.Get(ctx)
	if err != nil {
		log.Printf("[COUNTRIES] Cache read failed: %v", err)
	}
	if ok {
		return list
	}
	list, err = c.Refresh(ctx)
	if err != nil {
		log.Printf("[COUNTRIES] Error fetching countries: %v", err)
		return []Country{}
	}
	return list
}

// Refresh fetches the list from upstream and stores it in the cache.
func (c *CachedClient) Refresh(ctx context.Context) ([]Country, error) {
	list, err := c.source.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return list, nil
	}
	if err := c.cache.Set(ctx, list, c.ttl); err != nil {
		log.Printf("[COUNTRIES] Cache write failed: %v", err)
	}
	return list, nil
}
