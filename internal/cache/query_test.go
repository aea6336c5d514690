package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/toolscope/discovery-engine/internal/model"
)

func newTestRedisCache(t *testing.T) *RedisEntityStatsCache {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping integration test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	return NewRedisEntityStatsCache(client, time.Minute)
}

func TestRedisEntityStatsCache_GetSet(t *testing.T) {
	c := newTestRedisCache(t)
	ctx := context.Background()

	if _, _, ok := c.Get(ctx, "redis cache test query"); ok {
		t.Fatal("expected miss before set")
	}

	stats := model.EntityStatistics{Confidence: 0.75, SampleSize: 5}
	meta := model.MetadataContext{Source: "qdrant_multi_vector", Assumptions: []string{"user prefers free tier"}}
	c.Set(ctx, "redis cache test query", stats, meta)

	gotStats, gotMeta, ok := c.Get(ctx, "  Redis Cache Test Query  ")
	if !ok {
		t.Fatal("expected hit after set (normalized key)")
	}
	if gotStats.SampleSize != 5 || gotMeta.Source != "qdrant_multi_vector" {
		t.Fatalf("unexpected cached value: %+v %+v", gotStats, gotMeta)
	}
}

func TestRedisEntityStatsCache_MissOnUnknownKey(t *testing.T) {
	c := newTestRedisCache(t)
	if _, _, ok := c.Get(context.Background(), "never cached"); ok {
		t.Fatal("expected miss for a key never written")
	}
}
