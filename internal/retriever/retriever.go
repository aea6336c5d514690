// Package retriever is the multi-vector parallel retriever: it fans a
// query out across N named embedding spaces at once, each with its own
// timeout and telemetry.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/toolscope/discovery-engine/internal/model"
	"github.com/toolscope/discovery-engine/internal/vectorstore"
)

// SpaceQuery is one leg of a fan-out: which space to search, with which
// vector, how many results, and what filter to apply.
type SpaceQuery struct {
	Space  model.SpaceName
	Vector []float32
	TopK   int
	Filter model.Filter
}

// SpaceMetrics reports how one space's search fared, independent of
// whether it succeeded. A non-nil Err means the space contributed no
// results; siblings are unaffected.
type SpaceMetrics struct {
	Space       model.SpaceName `json:"space"`
	SearchTime  time.Duration   `json:"searchTimeMs"`
	ResultCount int             `json:"resultCount"`
	AvgScore    float64         `json:"avgScore"`
	Err         error           `json:"error,omitempty"`
}

// Result is the outcome of fanning one set of SpaceQueries out: the hits
// per space (already ordered by descending raw score) and
// the per-space telemetry.
type Result struct {
	Hits    map[model.SpaceName][]vectorstore.ScoredPoint
	Metrics []SpaceMetrics
}

// Retriever runs SpaceQueries against a vectorstore.Store in parallel, one
// goroutine per space, each bounded by its own timeout so a slow or failing
// space never blocks or aborts the others.
type Retriever struct {
	store           vectorstore.Store
	perSpaceTimeout time.Duration
}

// New builds a Retriever with the given per-space search timeout
// (defaults to 5s).
func New(store vectorstore.Store, perSpaceTimeout time.Duration) *Retriever {
	if perSpaceTimeout <= 0 {
		perSpaceTimeout = 5 * time.Second
	}
	return &Retriever{store: store, perSpaceTimeout: perSpaceTimeout}
}

// FanOut runs every query concurrently. The parent ctx's cancellation (a
// request-level deadline, or the caller giving up) propagates into every
// in-flight per-space call immediately since each derives its timeout
// context from ctx.
func (r *Retriever) FanOut(ctx context.Context, queries []SpaceQuery) Result {
	result := Result{
		Hits:    make(map[model.SpaceName][]vectorstore.ScoredPoint, len(queries)),
		Metrics: make([]SpaceMetrics, len(queries)),
	}
	if len(queries) == 0 {
		return result
	}

	spaceHits := make([][]vectorstore.ScoredPoint, len(queries))

	g, gCtx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			spaceCtx, cancel := context.WithTimeout(gCtx, r.perSpaceTimeout)
			defer cancel()

			start := time.Now()
			hits, err := r.store.Search(spaceCtx, q.Space, q.Vector, q.TopK, q.Filter)
			elapsed := time.Since(start)

			metric := SpaceMetrics{Space: q.Space, SearchTime: elapsed}
			if err != nil {
				metric.Err = fmt.Errorf("retriever.FanOut: space %s: %w", q.Space, err)
				slog.Warn("[RETRIEVER] space failed", "space", q.Space, "err", err, "elapsed_ms", elapsed.Milliseconds())
				result.Metrics[i] = metric
				return nil
			}

			sortByScoreDesc(hits)
			metric.ResultCount = len(hits)
			metric.AvgScore = avgScore(hits)

			slog.Info("[RETRIEVER] space done", "space", q.Space, "results", len(hits), "avg_score", metric.AvgScore, "elapsed_ms", elapsed.Milliseconds())

			spaceHits[i] = hits
			result.Metrics[i] = metric
			return nil
		})
	}
	// Every per-space closure records its own failure and returns nil: a
	// failed or timed-out space must not cancel its siblings.
	_ = g.Wait()

	for i, q := range queries {
		if spaceHits[i] != nil {
			result.Hits[q.Space] = spaceHits[i]
		}
	}
	return result
}

func sortByScoreDesc(hits []vectorstore.ScoredPoint) {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
}

func avgScore(hits []vectorstore.ScoredPoint) float64 {
	if len(hits) == 0 {
		return 0
	}
	var sum float64
	for _, h := range hits {
		sum += h.Score
	}
	return sum / float64(len(hits))
}
