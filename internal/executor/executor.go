// Package executor is the query executor: runs every vector source of a
// RetrievalPlan through the retriever and every structured source through
// the document store in parallel, fuses the results, deduplicates, and
// returns the final candidate list.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/toolscope/discovery-engine/internal/apperr"
	"github.com/toolscope/discovery-engine/internal/dedup"
	"github.com/toolscope/discovery-engine/internal/docstore"
	"github.com/toolscope/discovery-engine/internal/embedclient"
	"github.com/toolscope/discovery-engine/internal/fusion"
	"github.com/toolscope/discovery-engine/internal/model"
	"github.com/toolscope/discovery-engine/internal/retriever"
)

// SourceMetrics reports how one source (vector or structured) fared.
type SourceMetrics struct {
	Source      string        `json:"source"`
	Kind        string        `json:"kind"` // "vector" or "structured"
	ResultCount int           `json:"resultCount"`
	Elapsed     time.Duration `json:"elapsedMs"`
	Err         error         `json:"error,omitempty"`
}

// Stats reports what Execute did.
type Stats struct {
	SourcesAttempted int
	SourcesSucceeded int
	SourceMetrics    []SourceMetrics
	DedupStats       dedup.Stats
	DuplicateGroups  []model.DuplicateGroup
	DuplicatesRemoved int
}

// Result is the output of Execute.
type Result struct {
	Candidates []model.Candidate
	Stats      Stats
	Confidence float64
}

// Executor wires embedding, retrieval, the document store, fusion, and
// dedup together for one plan.
type Executor struct {
	embedder          *embedclient.Client
	retriever         *retriever.Retriever
	docs              docstore.Store
	dedup             *dedup.Detector
	structuredTimeout time.Duration
}

// Option configures an Executor at construction time.
type Option func(*Executor)

// WithStructuredTimeout overrides the default 5s per-structured-source
// timeout.
func WithStructuredTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.structuredTimeout = d
		}
	}
}

// New builds an Executor.
func New(embedder *embedclient.Client, r *retriever.Retriever, docs docstore.Store, d *dedup.Detector, opts ...Option) *Executor {
	e := &Executor{
		embedder:          embedder,
		retriever:         r,
		docs:              docs,
		dedup:             d,
		structuredTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute implements the execute(plan, intent, query) -> {candidates,
// stats, confidence} contract.
func (e *Executor) Execute(ctx context.Context, plan model.RetrievalPlan, in model.Intent, query string) (Result, error) {
	if plan.Empty() {
		slog.Info("[EXECUTOR] plan has no sources, returning empty result")
		return Result{}, nil
	}

	vectorLists, vectorMetrics := e.runVectorSources(ctx, plan.VectorSources, in, query)
	structuredLists, structuredMetrics := e.runStructuredSources(ctx, plan.StructuredSources)

	metrics := append(vectorMetrics, structuredMetrics...)
	attempted := len(plan.VectorSources) + len(plan.StructuredSources)
	succeeded := 0
	for _, m := range metrics {
		if m.Err == nil {
			succeeded++
		}
	}

	lists := append(vectorLists, structuredLists...)
	if succeeded == 0 {
		return Result{
			Stats: Stats{SourcesAttempted: attempted, SourcesSucceeded: 0, SourceMetrics: metrics},
		}, nil
	}

	weights := make(map[string]float64, len(plan.VectorSources))
	for _, vs := range plan.VectorSources {
		if vs.Weight > 0 {
			weights[vs.Source] = vs.Weight
		}
	}

	merger, err := fusion.New(fusion.Options{
		Strategy:      plan.Fusion,
		K:             plan.RRFConstant,
		MaxResults:    plan.MaxCandidates,
		SourceWeights: weights,
	})
	if err != nil {
		return Result{}, fmt.Errorf("executor.Execute: %w", err)
	}

	candidates, err := merger.Merge(lists)
	if err != nil {
		return Result{}, apperr.Wrap(apperr.KindPlanInvalid, "executor.Execute", err)
	}
	applyFinalScore(candidates, succeeded)

	records, err := e.fetchRecords(ctx, candidates)
	if err != nil {
		slog.Warn("[EXECUTOR] record fetch for dedup failed, skipping deduplication", "err", err)
		return Result{
			Candidates: candidates,
			Stats:      Stats{SourcesAttempted: attempted, SourcesSucceeded: succeeded, SourceMetrics: metrics},
			Confidence: float64(succeeded) / float64(attempted),
		}, nil
	}

	for i := range candidates {
		if r, ok := records[candidates[i].RecordID]; ok {
			rec := r
			candidates[i].Record = &rec
		}
	}

	candidates = excludeReferenceTool(candidates, in.ReferenceTool)

	dedupResult, err := e.dedup.Detect(ctx, candidates, records)
	if err != nil {
		return Result{}, fmt.Errorf("executor.Execute: dedup: %w", err)
	}

	final := dedupResult.DeduplicatedItems
	for i := range final {
		final[i].FinalRank = i + 1
	}

	return Result{
		Candidates: final,
		Stats: Stats{
			SourcesAttempted:  attempted,
			SourcesSucceeded:  succeeded,
			SourceMetrics:     metrics,
			DedupStats:        dedupResult.Stats,
			DuplicateGroups:   dedupResult.DuplicateGroups,
			DuplicatesRemoved: len(candidates) - len(final),
		},
		Confidence: float64(succeeded) / float64(attempted),
	}, nil
}

// excludeReferenceTool drops the reference tool's own record from the
// candidate list: a query like "Cursor alternative but cheaper" must not
// return Cursor itself. Matching is by record name, case-insensitively,
// since the reference tool arrives as free text from intent extraction.
func excludeReferenceTool(candidates []model.Candidate, referenceTool string) []model.Candidate {
	ref := strings.TrimSpace(referenceTool)
	if ref == "" {
		return candidates
	}

	out := candidates[:0]
	for _, c := range candidates {
		if c.Record != nil && strings.EqualFold(strings.TrimSpace(c.Record.Name), ref) {
			slog.Info("[EXECUTOR] excluding reference tool from results", "recordId", c.RecordID, "name", c.Record.Name)
			continue
		}
		out = append(out, c)
	}
	return out
}

// applyFinalScore sets the final normalized score: when exactly
// one source contributed to the fused list, RRFScore (unused by
// mergeNone) is replaced by 1-(index/total); otherwise the merger's rrfScore
// already is the final score and is left untouched.
func applyFinalScore(candidates []model.Candidate, succeededSources int) {
	if succeededSources != 1 || len(candidates) == 0 {
		return
	}
	total := len(candidates)
	for i := range candidates {
		candidates[i].RRFScore = 1 - float64(i)/float64(total)
	}
}

func (e *Executor) runVectorSources(ctx context.Context, sources []model.VectorSource, in model.Intent, query string) ([]fusion.RankedList, []SourceMetrics) {
	if len(sources) == 0 {
		return nil, nil
	}

	texts := make([]string, len(sources))
	valid := make([]bool, len(sources))
	for i, vs := range sources {
		text, ok := resolveQueryText(vs, in, query)
		texts[i] = text
		valid[i] = ok
	}

	toEmbed := make([]string, 0, len(sources))
	embedIdx := make([]int, 0, len(sources))
	for i, ok := range valid {
		if ok {
			toEmbed = append(toEmbed, texts[i])
			embedIdx = append(embedIdx, i)
		}
	}

	vectors := make([][]float32, len(sources))
	if len(toEmbed) > 0 {
		embedded, err := e.embedder.EmbedQueries(ctx, toEmbed)
		if err != nil {
			slog.Warn("[EXECUTOR] embedding failed for all vector sources", "err", err)
			metrics := make([]SourceMetrics, len(sources))
			for i, vs := range sources {
				metrics[i] = SourceMetrics{Source: vs.Source, Kind: "vector", Err: fmt.Errorf("embed: %w", err)}
			}
			return nil, metrics
		}
		for i, idx := range embedIdx {
			vectors[idx] = embedded[i]
		}
	}

	queries := make([]retriever.SpaceQuery, 0, len(sources))
	queryToSource := make([]string, 0, len(sources))
	metrics := make([]SourceMetrics, len(sources))
	for i, vs := range sources {
		if !valid[i] {
			metrics[i] = SourceMetrics{Source: vs.Source, Kind: "vector", Err: fmt.Errorf("no query vector source resolved")}
			continue
		}
		topK := vs.TopK
		if topK <= 0 {
			topK = 20
		}
		queries = append(queries, retriever.SpaceQuery{Space: vs.Space, Vector: vectors[i], TopK: topK, Filter: vs.Filter})
		queryToSource = append(queryToSource, vs.Source)
	}

	if len(queries) == 0 {
		return nil, metrics
	}

	result := e.retriever.FanOut(ctx, queries)

	lists := make([]fusion.RankedList, 0, len(queries))
	for i, q := range queries {
		source := queryToSource[i]
		idx := indexOfSource(sources, source)
		var metric SourceMetrics
		for _, m := range result.Metrics {
			if m.Space == q.Space {
				metric = SourceMetrics{Source: source, Kind: "vector", ResultCount: m.ResultCount, Elapsed: m.SearchTime, Err: m.Err}
				break
			}
		}
		if idx >= 0 {
			metrics[idx] = metric
		}
		if metric.Err != nil {
			continue
		}
		hits := result.Hits[q.Space]
		items := make([]fusion.Item, len(hits))
		for j, h := range hits {
			items[j] = fusion.Item{RecordID: h.RecordID, Score: h.Score, Payload: h.Payload}
		}
		lists = append(lists, fusion.RankedList{Source: source, Items: items})
	}

	return lists, metrics
}

func indexOfSource(sources []model.VectorSource, source string) int {
	for i, vs := range sources {
		if vs.Source == source {
			return i
		}
	}
	return -1
}

func resolveQueryText(vs model.VectorSource, in model.Intent, query string) (string, bool) {
	switch vs.QueryVectorSource {
	case model.QueryVectorFromText:
		return query, true
	case model.QueryVectorFromReferenceTool:
		if in.ReferenceTool == "" {
			return "", false
		}
		return in.ReferenceTool, true
	case model.QueryVectorFromSemanticVariant:
		if vs.SemanticVariantIdx < 0 || vs.SemanticVariantIdx >= len(in.SemanticVariants) {
			return "", false
		}
		return in.SemanticVariants[vs.SemanticVariantIdx], true
	default:
		return "", false
	}
}

func (e *Executor) runStructuredSources(ctx context.Context, sources []model.StructuredSource) ([]fusion.RankedList, []SourceMetrics) {
	if len(sources) == 0 {
		return nil, nil
	}

	lists := make([]fusion.RankedList, len(sources))
	metrics := make([]SourceMetrics, len(sources))

	g, gCtx := errgroup.WithContext(ctx)
	for i, ss := range sources {
		g.Go(func() error {
			sourceCtx, cancel := context.WithTimeout(gCtx, e.structuredTimeout)
			defer cancel()

			start := time.Now()
			limit := ss.Limit
			if limit <= 0 {
				limit = 50
			}
			records, err := e.docs.Query(sourceCtx, ss.Predicates, limit)
			elapsed := time.Since(start)

			if err != nil {
				metrics[i] = SourceMetrics{Source: ss.Source, Kind: "structured", Elapsed: elapsed, Err: fmt.Errorf("docstore query: %w", err)}
				return nil
			}
			metrics[i] = SourceMetrics{Source: ss.Source, Kind: "structured", ResultCount: len(records), Elapsed: elapsed}

			items := make([]fusion.Item, len(records))
			total := len(records)
			for j, r := range records {
				items[j] = fusion.Item{RecordID: r.ID, Score: 1 - float64(j)/float64(total)}
			}
			lists[i] = fusion.RankedList{Source: ss.Source, Items: items}
			return nil
		})
	}
	// Per-source failures are recorded in metrics and never returned, so a
	// failed source cannot cancel its siblings.
	_ = g.Wait()

	return lists, metrics
}

func (e *Executor) fetchRecords(ctx context.Context, candidates []model.Candidate) (map[string]model.Record, error) {
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.RecordID
	}
	records, err := e.docs.BatchGet(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Record, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}
	return byID, nil
}
