// Package enrich is the context-enrichment service: it runs a query
// against a small set of dimension-specific vector spaces and computes
// entity-frequency statistics over the sample, the way the retriever fans a query out
// across spaces but scoped here to three fixed spaces and interpreted as a
// distribution rather than a ranked candidate list.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/toolscope/discovery-engine/internal/embedclient"
	"github.com/toolscope/discovery-engine/internal/model"
	"github.com/toolscope/discovery-engine/internal/vectorstore"
)

// dimensionSpaces maps each entity dimension onto one of the five named
// vector spaces. "interfaces" and "pricing" have no dedicated space, so
// those two dimensions are derived from the payload of whatever records
// the three real spaces surface.
var dimensionSpaces = map[string]model.SpaceName{
	"categories":    model.SpaceEntitiesCategories,
	"functionality": model.SpaceEntitiesFunctionality,
	"semantic":      model.SpaceSemantic,
}

const (
	dimensionsQueried = 3 // categories, functionality, semantic
	sourceMultiVector = "qdrant_multi_vector"
	sourceFallback    = "fallback"
)

// Cache is the interface both the in-memory and Redis-backed enrichment
// caches implement, keyed by the lowercased, trimmed query string.
type Cache interface {
	Get(ctx context.Context, query string) (model.EntityStatistics, model.MetadataContext, bool)
	Set(ctx context.Context, query string, stats model.EntityStatistics, meta model.MetadataContext)
}

// Service computes EntityStatistics and a MetadataContext for one query.
type Service struct {
	embedder            *embedclient.Client
	store               vectorstore.Store
	cache               Cache
	maxEntitiesPerQuery int
	perSpaceTimeout     time.Duration
}

// Option configures a Service at construction time.
type Option func(*Service)

// WithMaxEntitiesPerQuery overrides the default of 5.
func WithMaxEntitiesPerQuery(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxEntitiesPerQuery = n
		}
	}
}

// WithPerSpaceTimeout overrides the default 5s per-space search timeout.
func WithPerSpaceTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.perSpaceTimeout = d
		}
	}
}

// New builds a Service. cache may be nil, in which case every call is a
// cache miss.
func New(embedder *embedclient.Client, store vectorstore.Store, cache Cache, opts ...Option) *Service {
	s := &Service{
		embedder:            embedder,
		store:               store,
		cache:               cache,
		maxEntitiesPerQuery: 5,
		perSpaceTimeout:     5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type spaceHit struct {
	space  model.SpaceName
	hits   []vectorstore.ScoredPoint
	failed bool
}

// Enrich runs the query against the dimension spaces and returns the
// resulting EntityStatistics and MetadataContext. A failure to embed the
// query, or every dimension space failing, is non-fatal: it returns an
// empty-statistics fallback with Confidence 0 and a single assumption
// recording the failure.
func (s *Service) Enrich(ctx context.Context, query string) (model.EntityStatistics, model.MetadataContext, error) {
	if s.cache != nil {
		if stats, meta, ok := s.cache.Get(ctx, query); ok {
			slog.Info("[CACHE] enrich hit", "query", query)
			return stats, meta, nil
		}
	}

	vecs, err := s.embedder.EmbedQueries(ctx, []string{query})
	if err != nil {
		slog.Warn("[ENRICH] embedding failed, returning fallback", "err", err)
		return s.fallback(), model.MetadataContext{Source: sourceFallback, Assumptions: []string{fmt.Sprintf("embedding unavailable: %v", err)}}, nil
	}
	queryVec := vecs[0]

	topK := 2 * s.maxEntitiesPerQuery
	results := s.fanOutDimensions(ctx, queryVec, topK)

	succeeded := 0
	for _, r := range results {
		if !r.failed {
			succeeded++
		}
	}
	if succeeded == 0 {
		meta := model.MetadataContext{Source: sourceFallback, Assumptions: []string{"all dimension spaces failed or returned no data"}}
		return s.fallback(), meta, nil
	}

	stats := s.computeStatistics(results, succeeded)
	meta := model.MetadataContext{
		Source:      sourceMultiVector,
		Assumptions: heuristicAssumptions(query),
	}

	if s.cache != nil {
		s.cache.Set(ctx, query, stats, meta)
	}
	return stats, meta, nil
}

func (s *Service) fanOutDimensions(ctx context.Context, queryVec []float32, topK int) []spaceHit {
	type dimSpace struct {
		dim   string
		space model.SpaceName
	}
	pairs := make([]dimSpace, 0, len(dimensionSpaces))
	for dim, space := range dimensionSpaces {
		pairs = append(pairs, dimSpace{dim: dim, space: space})
	}

	results := make([]spaceHit, len(pairs))
	g, gCtx := errgroup.WithContext(ctx)
	for i, p := range pairs {
		g.Go(func() error {
			spaceCtx, cancel := context.WithTimeout(gCtx, s.perSpaceTimeout)
			defer cancel()

			hits, err := s.store.Search(spaceCtx, p.space, queryVec, topK, nil)
			if err != nil {
				slog.Warn("[ENRICH] dimension space failed", "dimension", p.dim, "space", p.space, "err", err)
				results[i] = spaceHit{space: p.space, failed: true}
				return nil
			}
			results[i] = spaceHit{space: p.space, hits: hits}
			return nil
		})
	}
	// Closures record their own failures and return nil: a failed dimension
	// must not cancel the other dimension searches.
	_ = g.Wait()
	return results
}

func (s *Service) fallback() model.EntityStatistics {
	return model.EntityStatistics{Dimensions: map[string][]model.EntityValueStat{}, Confidence: 0, SampleSize: 0}
}

// computeStatistics aggregates payload values per dimension from the
// dimension's own space hits, plus the payload-derived "interfaces" and
// "pricing" dimensions computed across every hit seen (regardless of which
// space surfaced it), since every record payload carries those fields.
func (s *Service) computeStatistics(results []spaceHit, succeeded int) model.EntityStatistics {
	dims := map[string][]model.EntityValueStat{}
	var sumAvgSim float64
	sampleIDs := map[string]struct{}{}

	allHits := make([]vectorstore.ScoredPoint, 0)
	for _, r := range results {
		if r.failed {
			continue
		}
		for _, h := range r.hits {
			sampleIDs[h.RecordID] = struct{}{}
			allHits = append(allHits, h)
		}

		dimName := dimensionNameFor(r.space)
		if dimName == "" {
			continue
		}
		stats, avgSim := distributionFor(r.hits, dimName)
		if len(stats) > 0 {
			dims[dimName] = stats
			sumAvgSim += avgSim
		}
	}

	if len(allHits) > 0 {
		if stats, avgSim := distributionFor(allHits, "interfaces"); len(stats) > 0 {
			dims["interfaces"] = stats
			sumAvgSim += avgSim
		}
		if stats, avgSim := distributionFor(allHits, "pricing"); len(stats) > 0 {
			dims["pricing"] = stats
			sumAvgSim += avgSim
		}
	}

	confidence := 0.0
	if len(dims) > 0 {
		confidence = (sumAvgSim / float64(len(dims))) * (float64(succeeded) / float64(dimensionsQueried))
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return model.EntityStatistics{Dimensions: dims, Confidence: confidence, SampleSize: len(sampleIDs)}
}

func dimensionNameFor(space model.SpaceName) string {
	switch space {
	case model.SpaceEntitiesCategories:
		return "categories"
	case model.SpaceEntitiesFunctionality:
		return "functionality"
	case model.SpaceSemantic:
		return "semantic"
	default:
		return ""
	}
}

// distributionFor counts occurrences of each payload value for
// dimension across hits, keeping values with >= 10% occurrence, along
// with each value's mean contributing similarity.
func distributionFor(hits []vectorstore.ScoredPoint, dimension string) ([]model.EntityValueStat, float64) {
	payloadKey := payloadKeyFor(dimension)
	if payloadKey == "" || len(hits) == 0 {
		return nil, 0
	}

	counts := map[string]int{}
	scoreSum := map[string]float64{}
	var totalScore float64

	for _, h := range hits {
		totalScore += h.Score
		values := extractValues(h.Payload, payloadKey)
		for _, v := range values {
			counts[v]++
			scoreSum[v] += h.Score
		}
	}

	var out []model.EntityValueStat
	for value, count := range counts {
		pct := float64(count) / float64(len(hits)) * 100
		if pct < 10 {
			continue
		}
		out = append(out, model.EntityValueStat{
			Value:         value,
			Count:         count,
			Percentage:    pct,
			AvgSimilarity: scoreSum[value] / float64(count),
		})
	}
	avgSim := 0.0
	if len(hits) > 0 {
		avgSim = totalScore / float64(len(hits))
	}
	return out, avgSim
}

func payloadKeyFor(dimension string) string {
	switch dimension {
	case "categories":
		return "categories"
	case "functionality":
		return "functionality"
	case "semantic":
		return "categories"
	case "interfaces":
		return "interfaces"
	case "pricing":
		return "pricingTiers"
	default:
		return ""
	}
}

func extractValues(payload map[string]any, key string) []string {
	raw, ok := payload[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{v}
	default:
		return nil
	}
}

// heuristicAssumptions derives cheap textual assumptions from the raw
// query, like "query contains 'free' implies the user prefers a free tier".
func heuristicAssumptions(query string) []string {
	q := strings.ToLower(query)
	var assumptions []string
	if strings.Contains(q, "free") {
		assumptions = append(assumptions, "user prefers free tier")
	}
	if strings.Contains(q, "open source") || strings.Contains(q, "open-source") {
		assumptions = append(assumptions, "user prefers open-source tooling")
	}
	if strings.Contains(q, "alternative") {
		assumptions = append(assumptions, "user is comparing against an existing tool")
	}
	if strings.Contains(q, "cheap") || strings.Contains(q, "cheaper") || strings.Contains(q, "affordable") {
		assumptions = append(assumptions, "user is price-sensitive")
	}
	return assumptions
}
