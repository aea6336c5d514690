// Package cache provides the enrichment-result caches: an
// in-memory TTL-and-size-bounded cache for single-instance deployments, and
// a Redis-backed cache in query.go for deployments that need to share hits
// across replicas. Both satisfy enrich.Cache.
package cache

import (
	"container/list"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/toolscope/discovery-engine/internal/model"
)

// EntityStatsCache caches EntityStatistics+MetadataContext keyed by the
// normalized query string. Thread-safe via sync.Mutex. Entries auto-expire
// after TTL and the cache evicts its least-recently-used entry once it
// reaches maxEntries, so a long-running process can.t grow it unbounded.
type EntityStatsCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List
	ttl        time.Duration
	maxEntries int
	stopCh     chan struct{}
}

type statsEntry struct {
	key       string
	stats     model.EntityStatistics
	meta      model.MetadataContext
	createdAt time.Time
	expiresAt time.Time
}

// DefaultEnrichCacheTTL is 15 minutes unless overridden by
// ENRICH_CACHE_TTL_SECONDS.
func DefaultEnrichCacheTTL() time.Duration {
	if v := os.Getenv("ENRICH_CACHE_TTL_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 15 * time.Minute
}

// NewEntityStatsCache creates an EntityStatsCache with the given TTL and
// max entry count, and starts its background cleanup goroutine. maxEntries
// <= 0 falls back to 1000.
func NewEntityStatsCache(ttl time.Duration, maxEntries int) *EntityStatsCache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	c := &EntityStatsCache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		ttl:        ttl,
		maxEntries: maxEntries,
		stopCh:     make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Get implements enrich.Cache.
func (c *EntityStatsCache) Get(_ context.Context, query string) (model.EntityStatistics, model.MetadataContext, bool) {
	key := entityStatsKey(query)
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return model.EntityStatistics{}, model.MetadataContext{}, false
	}
	entry := el.Value.(*statsEntry)
	if time.Now().After(entry.expiresAt) {
		c.order.Remove(el)
		delete(c.entries, key)
		return model.EntityStatistics{}, model.MetadataContext{}, false
	}

	c.order.MoveToFront(el)
	slog.Info("[CACHE] enrich hit", "query_hash", key, "age_ms", time.Since(entry.createdAt).Milliseconds())
	return entry.stats, entry.meta, true
}

// Set implements enrich.Cache.
func (c *EntityStatsCache) Set(_ context.Context, query string, stats model.EntityStatistics, meta model.MetadataContext) {
	key := entityStatsKey(query)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value = &statsEntry{key: key, stats: stats, meta: meta, createdAt: now, expiresAt: now.Add(c.ttl)}
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&statsEntry{key: key, stats: stats, meta: meta, createdAt: now, expiresAt: now.Add(c.ttl)})
	c.entries[key] = el

	for c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*statsEntry).key)
	}

	slog.Info("[CACHE] enrich set", "query_hash", key, "ttl_s", int(c.ttl.Seconds()), "total_entries", len(c.entries))
}

// Len returns the number of entries currently cached.
func (c *EntityStatsCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stop halts the background cleanup goroutine.
func (c *EntityStatsCache) Stop() {
	close(c.stopCh)
}

func (c *EntityStatsCache) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			c.mu.Lock()
			removed := 0
			for el := c.order.Back(); el != nil; {
				prev := el.Prev()
				entry := el.Value.(*statsEntry)
				if now.After(entry.expiresAt) {
					c.order.Remove(el)
					delete(c.entries, entry.key)
					removed++
				}
				el = prev
			}
			remaining := len(c.entries)
			c.mu.Unlock()
			if removed > 0 {
				slog.Info("[CACHE] enrich cleanup", "removed", removed, "remaining", remaining)
			}
		case <-c.stopCh:
			return
		}
	}
}

func entityStatsKey(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	h := sha256.Sum256([]byte(normalized))
	return fmt.Sprintf("enrich:%x", h[:16])
}
