// Package dedup is the duplicate detector: a priority-ordered pipeline
// of pluggable strategies that groups candidates judged to be the same
// tool and picks a representative for each group.
package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/samber/lo"

	"github.com/toolscope/discovery-engine/internal/apperr"
	"github.com/toolscope/discovery-engine/internal/model"
)

// CustomRule is a host-supplied predicate inserted into the strategy
// pipeline at a configurable priority: 0 runs it before every built-in
// strategy, len(Strategies) (or more) after all of them. The EXACT_ID fast
// path, when EXACT_ID is configured, still runs ahead of every custom rule.
type CustomRule struct {
	Label    string
	Priority int
	Match    func(a, b model.Record) (bool, float64)
}

// FieldWeights configures CONTENT_SIMILARITY's per-field contribution.
type FieldWeights struct {
	Name        float64
	Description float64
	URL         float64
	Category    float64
}

// DefaultFieldWeights is the default per-field weighting for content
// similarity.
var DefaultFieldWeights = FieldWeights{Name: 0.5, Description: 0.3, URL: 0.15, Category: 0.05}

// Thresholds configures the per-strategy similarity cutoffs.
type Thresholds struct {
	Content  float64
	Version  float64
	Fuzzy    float64
	Combined float64
}

// DefaultThresholds is the default per-strategy cutoff set.
var DefaultThresholds = Thresholds{Content: 0.8, Version: 0.85, Fuzzy: 0.7, Combined: 0.6}

// CombinedWeights configures the weight-sum reading of COMBINED chosen in
// DESIGN.md: score = Σ weight_i * score_i across every strategy that fired.
type CombinedWeights struct {
	Content float64
	Version float64
	Fuzzy   float64
}

// DefaultCombinedWeights splits the combined score evenly across the three
// scored strategies.
var DefaultCombinedWeights = CombinedWeights{Content: 1.0 / 3, Version: 1.0 / 3, Fuzzy: 1.0 / 3}

// Config configures a Detector. Validated once at construction, not on
// every Detect call.
type Config struct {
	Strategies         []model.DuplicateStrategy
	FieldWeights       FieldWeights
	Thresholds         Thresholds
	CombinedWeights    CombinedWeights
	MaxComparisonItems int
	CacheSize          int
	Parallel           bool
	Workers            int
	CustomRules        []CustomRule
}

// DefaultConfig is the default strategy pipeline and thresholds.
func DefaultConfig() Config {
	return Config{
		Strategies: []model.DuplicateStrategy{
			model.StrategyExactID,
			model.StrategyExactURL,
			model.StrategyVersionAware,
			model.StrategyContentSimilarity,
			model.StrategyFuzzyMatch,
			model.StrategyCombined,
		},
		FieldWeights:       DefaultFieldWeights,
		Thresholds:         DefaultThresholds,
		CombinedWeights:    DefaultCombinedWeights,
		MaxComparisonItems: 1000,
		CacheSize:          10000,
		Parallel:           true,
		Workers:            4,
	}
}

// Stats reports what Detect did.
type Stats struct {
	ProcessingTime   time.Duration
	ComparisonsRun   int
	CacheHits        int
	CacheMisses      int
	StrategyFailures map[model.DuplicateStrategy]int
}

func (s *Stats) merge(other Stats) {
	s.ComparisonsRun += other.ComparisonsRun
	s.CacheHits += other.CacheHits
	s.CacheMisses += other.CacheMisses
	for k, v := range other.StrategyFailures {
		s.StrategyFailures[k] += v
	}
}

// Result is the output of Detect: representatives in original order, the
// groups that produced them, and run statistics.
type Result struct {
	DeduplicatedItems []model.Candidate
	DuplicateGroups   []model.DuplicateGroup
	Stats             Stats
}

// pipelineStep is one slot in the resolved strategy order: either a
// built-in strategy or a custom rule.
type pipelineStep struct {
	strategy model.DuplicateStrategy
	rule     *CustomRule
}

// Detector runs the strategy pipeline against a slice of ranked candidates,
// backed by Record lookups the caller supplies (typically the executor's
// docstore fetch of the fused candidate set).
type Detector struct {
	cfg        Config
	steps      []pipelineStep
	hasExactID bool
	cache      *lru.Cache[pairKey, pairResult]
}

type pairKey struct {
	left, right string
	strategy    model.DuplicateStrategy
}

type pairResult struct {
	matched bool
	score   float64
}

// New validates cfg and returns a ready Detector.
func New(cfg Config) (*Detector, error) {
	if cfg.MaxComparisonItems <= 0 {
		cfg.MaxComparisonItems = 1000
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 10000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	for _, th := range []float64{cfg.Thresholds.Content, cfg.Thresholds.Version, cfg.Thresholds.Fuzzy, cfg.Thresholds.Combined} {
		if th < 0 || th > 1 {
			return nil, apperr.Wrap(apperr.KindFatalConfig, "dedup.New", fmt.Errorf("threshold %v out of [0,1]", th))
		}
	}
	cache, err := lru.New[pairKey, pairResult](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("dedup.New: %w", err)
	}

	d := &Detector{cfg: cfg, cache: cache}
	for _, s := range cfg.Strategies {
		if s == model.StrategyExactID {
			d.hasExactID = true
		}
		d.steps = append(d.steps, pipelineStep{strategy: s})
	}
	for i := range cfg.CustomRules {
		rule := &cfg.CustomRules[i]
		at := rule.Priority
		if at < 0 {
			at = 0
		}
		if at > len(d.steps) {
			at = len(d.steps)
		}
		d.steps = append(d.steps[:at], append([]pipelineStep{{rule: rule}}, d.steps[at:]...)...)
	}
	return d, nil
}

type pair struct{ i, j int }

type pairMatch struct {
	p        pair
	strategy model.DuplicateStrategy
	score    float64
}

// Detect groups candidates judged equivalent, by record, into
// DuplicateGroups, and returns one representative per group (the
// highest-ranked member, i.e. lowest index in the input) in original
// relative order. records must contain every candidate's RecordID.
func (d *Detector) Detect(ctx context.Context, candidates []model.Candidate, records map[string]model.Record) (Result, error) {
	start := time.Now()
	stats := Stats{StrategyFailures: map[model.DuplicateStrategy]int{}}

	uf := newUnionFind(len(candidates))
	groupStrategy := make(map[int]model.DuplicateStrategy)
	groupScore := make(map[int]float64)

	evaluate := func(p pair, st *Stats) (model.DuplicateStrategy, float64, bool) {
		a, aok := records[candidates[p.i].RecordID]
		b, bok := records[candidates[p.j].RecordID]
		if !aok || !bok {
			return "", 0, false
		}
		st.ComparisonsRun++
		return d.comparePair(a, b, st)
	}

	// apply merges a matched pair into the union-find and carries the
	// group annotations of an absorbed root over to the surviving root.
	apply := func(m pairMatch) {
		ra, rb := uf.find(m.p.i), uf.find(m.p.j)
		root := uf.union(m.p.i, m.p.j)
		for _, old := range []int{ra, rb} {
			if old == root {
				continue
			}
			if s, ok := groupStrategy[old]; ok {
				if _, exists := groupStrategy[root]; !exists {
					groupStrategy[root] = s
				}
				delete(groupStrategy, old)
			}
			if sc := groupScore[old]; sc > groupScore[root] {
				groupScore[root] = sc
			}
			delete(groupScore, old)
		}
		if _, exists := groupStrategy[root]; !exists {
			groupStrategy[root] = m.strategy
		}
		if m.score > groupScore[root] {
			groupScore[root] = m.score
		}
	}

	var pairs []pair
	if len(candidates) <= d.cfg.MaxComparisonItems {
		pairs = allPairs(len(candidates))
	} else {
		slog.Warn("[DEDUP] falling back to bucketed comparison", "items", len(candidates), "max", d.cfg.MaxComparisonItems)
		pairs = bucketedPairs(candidates, records)
	}
	d.runPairs(ctx, pairs, evaluate, apply, &stats)

	groups := make(map[int][]int)
	for i := range candidates {
		root := uf.find(i)
		groups[root] = append(groups[root], i)
	}

	var duplicateGroups []model.DuplicateGroup
	var deduped []model.Candidate
	var order []int
	for root, members := range groups {
		sort.Ints(members)
		order = append(order, members[0])
		if len(members) > 1 {
			ids := make([]string, len(members))
			for k, m := range members {
				ids[k] = candidates[m].RecordID
			}
			duplicateGroups = append(duplicateGroups, model.DuplicateGroup{
				RecordIDs:      ids,
				Representative: candidates[members[0]].RecordID,
				Strategy:       groupStrategy[root],
				Score:          groupScore[root],
			})
		}
	}
	sort.Ints(order)
	for _, idx := range order {
		deduped = append(deduped, candidates[idx])
	}

	sort.Slice(duplicateGroups, func(i, j int) bool {
		return duplicateGroups[i].Representative < duplicateGroups[j].Representative
	})

	stats.ProcessingTime = time.Since(start)
	slog.Info("[DEDUP] detect complete", "input", len(candidates), "output", len(deduped), "groups", len(duplicateGroups), "comparisons", stats.ComparisonsRun, "elapsed_ms", stats.ProcessingTime.Milliseconds())

	return Result{DeduplicatedItems: deduped, DuplicateGroups: duplicateGroups, Stats: stats}, nil
}

func allPairs(n int) []pair {
	pairs := make([]pair, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs = append(pairs, pair{i, j})
		}
	}
	return pairs
}

// bucketedPairs buckets candidates by a cheap key (lowercased first token
// of the record name) and pairs only within a bucket, the fallback for
// input sizes beyond MaxComparisonItems.
func bucketedPairs(candidates []model.Candidate, records map[string]model.Record) []pair {
	buckets := make(map[string][]int)
	for i, c := range candidates {
		key := ""
		if r, ok := records[c.RecordID]; ok {
			key = bucketKey(r.Name)
		}
		buckets[key] = append(buckets[key], i)
	}

	var pairs []pair
	for _, members := range buckets {
		for a := 0; a < len(members); a++ {
			for b := a + 1; b < len(members); b++ {
				pairs = append(pairs, pair{members[a], members[b]})
			}
		}
	}
	return pairs
}

// runPairs evaluates every pair and applies the matches. The parallel path
// shards the pairs across Workers goroutines, each comparing sequentially
// into its own Stats; matches and stats are merged on the caller's
// goroutine afterwards so apply never races. The pair cache is shared and
// safe for concurrent use.
func (d *Detector) runPairs(ctx context.Context, pairs []pair, evaluate func(p pair, st *Stats) (model.DuplicateStrategy, float64, bool), apply func(pairMatch), stats *Stats) {
	if !d.cfg.Parallel || len(pairs) < d.cfg.Workers*2 {
		for _, p := range pairs {
			if ctx.Err() != nil {
				return
			}
			if strategy, score, matched := evaluate(p, stats); matched {
				apply(pairMatch{p: p, strategy: strategy, score: score})
			}
		}
		return
	}

	chunkSize := (len(pairs) + d.cfg.Workers - 1) / d.cfg.Workers
	var chunks [][]pair
	for start := 0; start < len(pairs); start += chunkSize {
		end := start + chunkSize
		if end > len(pairs) {
			end = len(pairs)
		}
		chunks = append(chunks, pairs[start:end])
	}

	workerStats := make([]Stats, len(chunks))
	workerMatches := make([][]pairMatch, len(chunks))

	var wg sync.WaitGroup
	wg.Add(len(chunks))
	for wi, chunk := range chunks {
		go func(wi int, chunk []pair) {
			defer wg.Done()
			st := &workerStats[wi]
			st.StrategyFailures = map[model.DuplicateStrategy]int{}
			for _, p := range chunk {
				if ctx.Err() != nil {
					return
				}
				if strategy, score, matched := evaluate(p, st); matched {
					workerMatches[wi] = append(workerMatches[wi], pairMatch{p: p, strategy: strategy, score: score})
				}
			}
		}(wi, chunk)
	}
	wg.Wait()

	for wi := range chunks {
		stats.merge(workerStats[wi])
		for _, m := range workerMatches[wi] {
			apply(m)
		}
	}
}

func bucketKey(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// comparePair runs the strategy pipeline against (a,b) in priority order,
// the first strategy that classifies the pair as a duplicate wins. A
// strategy whose computation panics or errors is logged and skipped for
// this pair; the pipeline continues.
func (d *Detector) comparePair(a, b model.Record, stats *Stats) (model.DuplicateStrategy, float64, bool) {
	if d.hasExactID && a.ID == b.ID {
		return model.StrategyExactID, 1, true
	}

	for _, step := range d.steps {
		if step.rule != nil {
			if matched, score := d.runCustomRule(step.rule, a, b, stats); matched {
				return model.StrategyCustomRule, score, true
			}
			continue
		}
		matched, score, _ := d.runStrategy(step.strategy, a, b, stats)
		if matched {
			return step.strategy, score, true
		}
	}

	return "", 0, false
}

func (d *Detector) runCustomRule(rule *CustomRule, a, b model.Record, stats *Stats) (matched bool, score float64) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("[DEDUP] custom rule panicked", "rule", rule.Label, "recover", r)
			stats.StrategyFailures[model.StrategyCustomRule]++
			matched = false
		}
	}()
	return rule.Match(a, b)
}

func (d *Detector) runStrategy(strategy model.DuplicateStrategy, a, b model.Record, stats *Stats) (matched bool, score float64, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("[DEDUP] strategy panicked", "strategy", strategy, "recover", r)
			stats.StrategyFailures[strategy]++
			matched, score, ok = false, 0, false
		}
	}()
	key := canonicalPairKey(a.ID, b.ID, strategy)
	if cached, hit := d.cache.Get(key); hit {
		stats.CacheHits++
		return cached.matched, cached.score, true
	}
	stats.CacheMisses++

	switch strategy {
	case model.StrategyExactID:
		return false, 0, false // handled by comparePair's fast path, never reached here
	case model.StrategyExactURL:
		score = exactURLScore(a, b)
		matched, ok = score == 1, true
	case model.StrategyContentSimilarity:
		score = d.contentSimilarity(a, b)
		matched, ok = score >= d.cfg.Thresholds.Content, true
	case model.StrategyVersionAware:
		var isVersionPair bool
		score, isVersionPair = d.versionAwareScore(a, b)
		matched = isVersionPair && score >= d.cfg.Thresholds.Version
		ok = true
	case model.StrategyFuzzyMatch:
		score = fuzzyScore(a, b)
		matched, ok = score >= d.cfg.Thresholds.Fuzzy, true
	case model.StrategyCombined:
		score = d.combinedScore(a, b)
		matched, ok = score >= d.cfg.Thresholds.Combined, true
	default:
		return false, 0, false
	}

	d.cache.Add(key, pairResult{matched: matched, score: score})
	return matched, score, ok
}

func canonicalPairKey(a, b string, strategy model.DuplicateStrategy) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{left: a, right: b, strategy: strategy}
}

func exactURLScore(a, b model.Record) float64 {
	ca, cb := model.CanonicalURL(a.URL), model.CanonicalURL(b.URL)
	if ca == "" || cb == "" {
		return 0
	}
	if ca == cb {
		return 1
	}
	return 0
}

func (d *Detector) contentSimilarity(a, b model.Record) float64 {
	w := d.cfg.FieldWeights
	total := w.Name + w.Description + w.URL + w.Category
	if total == 0 {
		total = 1
	}
	score := w.Name*tokenSetJaccard(a.Name, b.Name) +
		w.Description*tokenSetJaccard(a.ShortDescription, b.ShortDescription) +
		w.URL*exactURLScore(a, b) +
		w.Category*sliceJaccard(a.Categories, b.Categories)
	return score / total
}

// versionAwareScore strips version tokens from each name; if the stems
// match, it reports the non-name payload similarity as the score and
// reports this as a version pair. Otherwise it reports not-a-version-pair.
func (d *Detector) versionAwareScore(a, b model.Record) (float64, bool) {
	stemA, stemB := stripVersionTokens(a.Name), stripVersionTokens(b.Name)
	if stemA == "" || stemA != stemB {
		return 0, false
	}
	score := tokenSetJaccard(a.ShortDescription, b.ShortDescription)*0.5 +
		sliceJaccard(a.Categories, b.Categories)*0.3 +
		sliceJaccard(a.Functionality, b.Functionality)*0.2
	return score, true
}

func fuzzyScore(a, b model.Record) float64 {
	textA := strings.ToLower(a.Name + " " + a.ShortDescription)
	textB := strings.ToLower(b.Name + " " + b.ShortDescription)
	if textA == "" && textB == "" {
		return 1
	}
	dist := levenshtein.ComputeDistance(textA, textB)
	maxLen := len(textA)
	if len(textB) > maxLen {
		maxLen = len(textB)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(dist)/float64(maxLen)
}

// combinedScore implements the weight-sum reading of COMBINED chosen in
// DESIGN.md: Σ weight_i * score_i across CONTENT_SIMILARITY, VERSION_AWARE
// (when the pair stems match), and FUZZY_MATCH.
func (d *Detector) combinedScore(a, b model.Record) float64 {
	cw := d.cfg.CombinedWeights
	content := d.contentSimilarity(a, b)
	version, isVersionPair := d.versionAwareScore(a, b)
	if !isVersionPair {
		version = 0
	}
	fuzzy := fuzzyScore(a, b)
	return cw.Content*content + cw.Version*version + cw.Fuzzy*fuzzy
}

func tokenSetJaccard(a, b string) float64 {
	return sliceJaccard(strings.Fields(strings.ToLower(a)), strings.Fields(strings.ToLower(b)))
}

func sliceJaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	setA := lo.Uniq(lo.Map(a, func(s string, _ int) string { return strings.ToLower(strings.TrimSpace(s)) }))
	setB := lo.Uniq(lo.Map(b, func(s string, _ int) string { return strings.ToLower(strings.TrimSpace(s)) }))
	inter := lo.Intersect(setA, setB)
	union := lo.Uniq(append(append([]string{}, setA...), setB...))
	if len(union) == 0 {
		return 1
	}
	return float64(len(inter)) / float64(len(union))
}

func isVersionToken(tok string) bool {
	if tok == "" {
		return false
	}
	t := tok
	if t[0] == 'v' || t[0] == 'V' {
		t = t[1:]
	}
	if t == "" {
		return false
	}
	for _, r := range t {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}

// stripVersionTokens removes version-like tokens ("v1.2.3", "18") from a
// name and returns the lowercased, trimmed remainder as a stable stem.
func stripVersionTokens(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	kept := make([]string, 0, len(fields))
	for _, f := range fields {
		if isVersionToken(f) {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}
