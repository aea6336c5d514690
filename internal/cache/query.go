package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/toolscope/discovery-engine/internal/model"
)

// RedisEntityStatsCache is the distributed counterpart to EntityStatsCache:
// same enrich.Cache contract, backed by Redis so hits are shared across
// replicas instead of living in one process's memory. It keeps the
// in-memory cache's TTL and key-hashing conventions, swapping the
// map+mutex for redis.Client and JSON-encoding the cached value.
type RedisEntityStatsCache struct {
	client *redis.Client
	ttl    time.Duration
}

type redisStatsValue struct {
	Stats model.EntityStatistics `json:"stats"`
	Meta  model.MetadataContext  `json:"meta"`
}

// NewRedisEntityStatsCache wraps an existing redis client. The caller owns
// the client's lifecycle (dial options, auth, TLS); this type only adds the
// enrich.Cache-shaped Get/Set on top of it.
func NewRedisEntityStatsCache(client *redis.Client, ttl time.Duration) *RedisEntityStatsCache {
	if ttl <= 0 {
		ttl = DefaultEnrichCacheTTL()
	}
	return &RedisEntityStatsCache{client: client, ttl: ttl}
}

// Get implements enrich.Cache. A Redis error or a value that fails to
// decode is treated as a cache miss rather than a fatal error, since the
// enrichment cache is a latency optimization, never a source of truth.
func (c *RedisEntityStatsCache) Get(ctx context.Context, query string) (model.EntityStatistics, model.MetadataContext, bool) {
	key := redisStatsKey(query)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("[CACHE] redis enrich get failed", "err", err)
		}
		return model.EntityStatistics{}, model.MetadataContext{}, false
	}

	var v redisStatsValue
	if err := json.Unmarshal(raw, &v); err != nil {
		slog.Warn("[CACHE] redis enrich value corrupted", "key", key, "err", err)
		return model.EntityStatistics{}, model.MetadataContext{}, false
	}

	slog.Info("[CACHE] redis enrich hit", "query_hash", key)
	return v.Stats, v.Meta, true
}

// Set implements enrich.Cache. Write failures are logged and swallowed for
// the same reason Get treats misses as non-fatal.
func (c *RedisEntityStatsCache) Set(ctx context.Context, query string, stats model.EntityStatistics, meta model.MetadataContext) {
	key := redisStatsKey(query)
	raw, err := json.Marshal(redisStatsValue{Stats: stats, Meta: meta})
	if err != nil {
		slog.Warn("[CACHE] redis enrich encode failed", "err", err)
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		slog.Warn("[CACHE] redis enrich set failed", "key", key, "err", err)
		return
	}
	slog.Info("[CACHE] redis enrich set", "query_hash", key, "ttl_s", int(c.ttl.Seconds()))
}

func redisStatsKey(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("enrich:%x", h[:16])
}
