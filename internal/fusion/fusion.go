// Package fusion is the reciprocal-rank-fusion merger: it combines
// several per-source ranked lists into one ordered list of candidates,
// supporting an arbitrary number of weighted sources and a choice of
// strategies.
package fusion

import (
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/toolscope/discovery-engine/internal/apperr"
	"github.com/toolscope/discovery-engine/internal/model"
)

// Item is one record's raw result from a single source, already ranked
// (index position implies rank) by that source.
type Item struct {
	RecordID string
	Score    float64
	Payload  map[string]any
}

// RankedList is one source's ordered output, best first.
type RankedList struct {
	Source string
	Items  []Item
}

// Options configures a Merger. Validated once at construction time,
// rather than on every Merge call.
type Options struct {
	Strategy      model.FusionStrategy
	K             int
	MaxResults    int
	SourceWeights map[string]float64
}

const defaultK = 60

// Merger fuses RankedLists under a fixed, pre-validated configuration.
type Merger struct {
	opts Options
}

// New validates opts and returns a ready Merger, or a FatalConfig error if
// K or MaxResults are out of range.
func New(opts Options) (*Merger, error) {
	if opts.K == 0 {
		opts.K = defaultK
	}
	if opts.K <= 0 || opts.K > 1000 {
		return nil, apperr.Wrap(apperr.KindFatalConfig, "fusion.New", fmt.Errorf("K=%d out of range (0,1000]", opts.K))
	}
	if opts.MaxResults == 0 {
		opts.MaxResults = 100
	}
	if opts.MaxResults <= 0 || opts.MaxResults > 10000 {
		return nil, apperr.Wrap(apperr.KindFatalConfig, "fusion.New", fmt.Errorf("maxResults=%d out of range (0,10000]", opts.MaxResults))
	}
	if opts.SourceWeights == nil {
		opts.SourceWeights = map[string]float64{}
	}
	return &Merger{opts: opts}, nil
}

func (m *Merger) weight(source string) float64 {
	if w, ok := m.opts.SourceWeights[source]; ok {
		return w
	}
	return 1.0
}

// Merge fuses lists according to the Merger's configured strategy and
// returns a descending-ordered, finally-ranked slice of Candidates with
// FinalRank set to its 1-based position.
func (m *Merger) Merge(lists []RankedList) ([]model.Candidate, error) {
	lists = lo.Filter(lists, func(l RankedList, _ int) bool { return len(l.Items) > 0 })
	if len(lists) == 0 {
		return nil, nil
	}

	switch m.opts.Strategy {
	case model.FusionNone:
		return m.mergeNone(lists)
	case model.FusionWeightedAverage:
		return m.finalize(m.mergeWeightedAverage(lists))
	case model.FusionHybrid:
		return m.finalize(m.mergeRRF(lists, true))
	case model.FusionRRF, "":
		return m.finalize(m.mergeRRF(lists, false))
	default:
		return nil, apperr.Wrap(apperr.KindPlanInvalid, "fusion.Merge", fmt.Errorf("unknown fusion strategy %q", m.opts.Strategy))
	}
}

// mergeNone passes a single source through untouched: output order
// equals input order.
func (m *Merger) mergeNone(lists []RankedList) ([]model.Candidate, error) {
	if len(lists) != 1 {
		return nil, apperr.Wrap(apperr.KindPlanInvalid, "fusion.mergeNone", fmt.Errorf("fusion=none requires exactly one source, got %d", len(lists)))
	}
	list := lists[0]
	out := make([]model.Candidate, 0, len(list.Items))
	for i, item := range list.Items {
		if m.opts.MaxResults > 0 && i >= m.opts.MaxResults {
			break
		}
		out = append(out, model.Candidate{
			RecordID: item.RecordID,
			Payload:  item.Payload,
			SourceRanks: []model.SourceRank{
				{Source: list.Source, Rank: i + 1, RawScore: item.Score},
			},
			FinalRank: i + 1,
		})
	}
	return out, nil
}

type accumulated struct {
	recordID    string
	payload     map[string]any
	sourceRanks []model.SourceRank
	score       float64
}

// mergeRRF implements the core RRF formula:
// rrfScore(r) = Σ_s w_s · 1/(K + k_s(r)). When applyWeight is false (the
// "rrf" strategy), w_s is always 1 regardless of configured weights — the
// hybrid strategy is what applies configured weights, per the Open
// Question decision recorded in DESIGN.md.
func (m *Merger) mergeRRF(lists []RankedList, applyWeight bool) map[string]*accumulated {
	acc := make(map[string]*accumulated)
	for _, list := range lists {
		for rank, item := range list.Items {
			w := 1.0
			if applyWeight {
				w = m.weight(list.Source)
			}
			contribution := w * (1.0 / float64(m.opts.K+rank+1))

			a, ok := acc[item.RecordID]
			if !ok {
				a = &accumulated{recordID: item.RecordID, payload: item.Payload}
				acc[item.RecordID] = a
			}
			a.score += contribution
			a.sourceRanks = append(a.sourceRanks, model.SourceRank{Source: list.Source, Rank: rank + 1, RawScore: item.Score})
			if a.payload == nil {
				a.payload = item.Payload
			}
		}
	}
	return acc
}

// mergeWeightedAverage implements the "weighted_average" strategy:
// per-source normalized score (score / that source's max), averaged
// across contributing sources, weighted by configured source weight.
func (m *Merger) mergeWeightedAverage(lists []RankedList) map[string]*accumulated {
	acc := make(map[string]*accumulated)
	for _, list := range lists {
		maxScore := 0.0
		for _, item := range list.Items {
			if item.Score > maxScore {
				maxScore = item.Score
			}
		}
		if maxScore == 0 {
			maxScore = 1
		}
		w := m.weight(list.Source)

		for rank, item := range list.Items {
			normalized := item.Score / maxScore

			a, ok := acc[item.RecordID]
			if !ok {
				a = &accumulated{recordID: item.RecordID, payload: item.Payload}
				acc[item.RecordID] = a
			}
			a.score += w * normalized
			a.sourceRanks = append(a.sourceRanks, model.SourceRank{Source: list.Source, Rank: rank + 1, RawScore: item.Score})
			if a.payload == nil {
				a.payload = item.Payload
			}
		}
	}
	// Convert the running weighted sum into a mean over contributing weights.
	weightTotals := make(map[string]float64)
	for _, list := range lists {
		w := m.weight(list.Source)
		for _, item := range list.Items {
			weightTotals[item.RecordID] += w
		}
	}
	for id, a := range acc {
		if wt := weightTotals[id]; wt > 0 {
			a.score /= wt
		}
	}
	return acc
}

// finalize sorts the accumulated scores descending with the tie-break
// chain: sourceCount, then max raw score, then
// lexicographic record ID, and stamps FinalRank 1-based.
func (m *Merger) finalize(acc map[string]*accumulated) ([]model.Candidate, error) {
	flat := make([]*accumulated, 0, len(acc))
	for _, a := range acc {
		flat = append(flat, a)
	}

	sort.Slice(flat, func(i, j int) bool {
		a, b := flat[i], flat[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if len(a.sourceRanks) != len(b.sourceRanks) {
			return len(a.sourceRanks) > len(b.sourceRanks)
		}
		if am, bm := maxRaw(a.sourceRanks), maxRaw(b.sourceRanks); am != bm {
			return am > bm
		}
		return a.recordID < b.recordID
	})

	if m.opts.MaxResults > 0 && len(flat) > m.opts.MaxResults {
		flat = flat[:m.opts.MaxResults]
	}

	out := make([]model.Candidate, len(flat))
	for i, a := range flat {
		out[i] = model.Candidate{
			RecordID:    a.recordID,
			Payload:     a.payload,
			SourceRanks: a.sourceRanks,
			RRFScore:    a.score,
			FinalRank:   i + 1,
		}
	}
	return out, nil
}

func maxRaw(ranks []model.SourceRank) float64 {
	max := 0.0
	for _, r := range ranks {
		if r.RawScore > max {
			max = r.RawScore
		}
	}
	return max
}
