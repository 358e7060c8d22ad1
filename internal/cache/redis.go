package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// FormatCache is a Redis-backed cache for reformatted transcripts. Keys are
// derived from the instruction set and the input text, so a settings change
// that alters the instructions naturally misses.
type FormatCache struct {
	client *redis.Client
	config *Config
	logger *zap.Logger
	stats  *cacheStats
}

// cacheStats tracks cache performance metrics. Counters are updated with
// atomics; handlers hit the cache concurrently.
type cacheStats struct {
	hits   int64
	misses int64
}

// NewFormatCache creates a new Redis-based reformat cache
func NewFormatCache(config *Config, logger *zap.Logger) (*FormatCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.MaxConnections
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)

	cache := &FormatCache{
		client: client,
		config: config,
		logger: logger,
		stats:  &cacheStats{},
	}

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Reformat cache initialized",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Int("max_connections", config.MaxConnections),
		zap.Duration("default_ttl", config.DefaultTTL))

	return cache, nil
}

// Key derives the cache key for an (instructions, text) pair.
func (fc *FormatCache) Key(instructions, text string) string {
	hasher := sha256.New()
	hasher.Write([]byte(instructions))
	hasher.Write([]byte{0})
	hasher.Write([]byte(text))
	hash := hex.EncodeToString(hasher.Sum(nil))
	return fmt.Sprintf("%s:fmt:%s", fc.config.KeyPrefix, hash[:32])
}

// Get returns the cached reformatted text for key, with a hit indicator.
// Lookup failures are reported but treated as misses by callers.
func (fc *FormatCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := fc.client.Get(ctx, key).Result()
	if err == redis.Nil {
		atomic.AddInt64(&fc.stats.misses, 1)
		fc.logger.Debug("Cache miss", zap.String("key", key))
		return "", false, nil
	}
	if err != nil {
		atomic.AddInt64(&fc.stats.misses, 1)
		return "", false, fmt.Errorf("cache lookup failed: %w", err)
	}

	atomic.AddInt64(&fc.stats.hits, 1)
	fc.logger.Debug("Cache hit", zap.String("key", key))
	return value, true, nil
}

// Set caches reformatted text under key with the configured TTL.
func (fc *FormatCache) Set(ctx context.Context, key, text string) error {
	if err := fc.client.Set(ctx, key, text, fc.config.DefaultTTL).Err(); err != nil {
		return fmt.Errorf("cache store failed: %w", err)
	}
	return nil
}

// Stats returns cache performance statistics.
func (fc *FormatCache) Stats() Stats {
	stats := Stats{
		Hits:   atomic.LoadInt64(&fc.stats.hits),
		Misses: atomic.LoadInt64(&fc.stats.misses),
	}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}
	return stats
}

// Clear removes all cached entries under this cache's prefix.
func (fc *FormatCache) Clear(ctx context.Context) error {
	pattern := fc.config.KeyPrefix + ":fmt:*"

	iter := fc.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}

	if err := fc.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache keys: %w", err)
	}

	fc.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (fc *FormatCache) Close() error {
	if fc.client != nil {
		return fc.client.Close()
	}
	return nil
}

// maskRedisURL masks sensitive information in Redis URL for logging
func maskRedisURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
