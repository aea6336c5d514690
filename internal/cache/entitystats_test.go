package cache

import (
	"context"
	"testing"
	"time"

	"github.com/toolscope/discovery-engine/internal/model"
)

func TestEntityStatsCache_HitMiss(t *testing.T) {
	c := NewEntityStatsCache(1*time.Minute, 10)
	defer c.Stop()
	ctx := context.Background()

	if _, _, ok := c.Get(ctx, "test query"); ok {
		t.Fatal("expected miss on empty cache")
	}

	stats := model.EntityStatistics{Confidence: 0.5, SampleSize: 3}
	meta := model.MetadataContext{Source: "qdrant_multi_vector"}
	c.Set(ctx, "test query", stats, meta)

	gotStats, gotMeta, ok := c.Get(ctx, "TEST QUERY  ")
	if !ok {
		t.Fatal("expected hit after set (normalized key)")
	}
	if gotStats.SampleSize != 3 || gotMeta.Source != "qdrant_multi_vector" {
		t.Fatalf("unexpected cached value: %+v %+v", gotStats, gotMeta)
	}
}

func TestEntityStatsCache_Expiry(t *testing.T) {
	c := NewEntityStatsCache(10*time.Millisecond, 10)
	defer c.Stop()
	ctx := context.Background()

	c.Set(ctx, "expire me", model.EntityStatistics{}, model.MetadataContext{})
	if _, _, ok := c.Get(ctx, "expire me"); !ok {
		t.Fatal("expected hit before expiry")
	}

	time.Sleep(20 * time.Millisecond)
	if _, _, ok := c.Get(ctx, "expire me"); ok {
		t.Fatal("expected miss after expiry")
	}
}

func TestEntityStatsCache_EvictsLRUWhenFull(t *testing.T) {
	c := NewEntityStatsCache(1*time.Minute, 2)
	defer c.Stop()
	ctx := context.Background()

	c.Set(ctx, "a", model.EntityStatistics{SampleSize: 1}, model.MetadataContext{})
	c.Set(ctx, "b", model.EntityStatistics{SampleSize: 2}, model.MetadataContext{})
	// touch "a" so "b" becomes the least-recently-used entry
	c.Get(ctx, "a")
	c.Set(ctx, "c", model.EntityStatistics{SampleSize: 3}, model.MetadataContext{})

	if c.Len() != 2 {
		t.Fatalf("expected cache bounded at 2 entries, got %d", c.Len())
	}
	if _, _, ok := c.Get(ctx, "b"); ok {
		t.Fatal("expected \"b\" to have been evicted as least-recently-used")
	}
	if _, _, ok := c.Get(ctx, "a"); !ok {
		t.Fatal("expected \"a\" to survive eviction")
	}
	if _, _, ok := c.Get(ctx, "c"); !ok {
		t.Fatal("expected \"c\" to survive eviction")
	}
}
