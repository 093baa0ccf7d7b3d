package nbastats

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// DefaultCacheTTL covers a full slate of games; shot charts for a season
// barely move within a day
const DefaultCacheTTL = 12 * time.Hour

// Cache stores raw stats.nba.com responses in Redis. All methods degrade
// to misses when Redis is down; the client then just fetches live.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache connects to Redis and verifies the connection
func NewCache(addr, password string, db int, ttl time.Duration) (*Cache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{client: rdb, ttl: ttl}, nil
}

// cacheKey hashes the full request URL into a stable key
func cacheKey(url string) string {
	sum := sha256.Sum256([]byte(url))
	return "nbastats:" + hex.EncodeToString(sum[:])
}

// Get returns the cached response body for a request URL
func (c *Cache) Get(ctx context.Context, url string) ([]byte, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	val, err := c.client.Get(ctx, cacheKey(url)).Result()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Msg("Stats cache read failed")
		}
		return nil, false
	}
	return []byte(val), true
}

// Put stores a response body for a request URL
func (c *Cache) Put(ctx context.Context, url string, body []byte) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(url), body, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("Stats cache write failed")
	}
}

// Ping checks the Redis connection, reporting nil for a disabled cache
func (c *Cache) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Close releases the Redis connection
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
