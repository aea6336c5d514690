package httpapi

import (
	"sort"
	"strings"

	"github.com/toolscope/discovery-engine/internal/model"
	"github.com/toolscope/discovery-engine/internal/orchestrator"
)

// applySort reorders candidates per options.sort. The fused rrfScore order
// the merger already produced is left untouched for "relevance" (the default);
// name/category/score ask for a field-level re-sort.
func applySort(candidates []model.Candidate, s Sort) []model.Candidate {
	field := s.Field
	if field == "" {
		field = SortByRelevance
	}
	if field == SortByRelevance {
		return candidates
	}

	less := func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		switch field {
		case SortByName:
			return nameOf(a) < nameOf(b)
		case SortByCategory:
			return categoryOf(a) < categoryOf(b)
		case SortByScore:
			return a.RRFScore < b.RRFScore
		default:
			return false
		}
	}
	if s.Order == SortDesc {
		base := less
		less = func(i, j int) bool { return base(j, i) }
	}

	out := make([]model.Candidate, len(candidates))
	copy(out, candidates)
	sort.SliceStable(out, less)
	return out
}

func nameOf(c model.Candidate) string {
	if c.Record != nil {
		return strings.ToLower(c.Record.Name)
	}
	return ""
}

func categoryOf(c model.Candidate) string {
	if c.Record != nil && len(c.Record.Categories) > 0 {
		return strings.ToLower(c.Record.Categories[0])
	}
	return ""
}

// paginate slices candidates into the requested page, returning the page
// slice and the PaginationInfo describing it. page is 1-based; a zero page
// or limit means "return everything on page 1".
func paginate(candidates []model.Candidate, p Pagination) ([]model.Candidate, PaginationInfo) {
	page := p.Page
	if page < 1 {
		page = 1
	}
	limit := p.Limit
	if limit < 1 {
		limit = len(candidates)
		if limit == 0 {
			limit = 1
		}
	}

	totalPages := (len(candidates) + limit - 1) / limit
	if totalPages == 0 {
		totalPages = 1
	}

	start := (page - 1) * limit
	if start > len(candidates) {
		start = len(candidates)
	}
	end := start + limit
	if end > len(candidates) {
		end = len(candidates)
	}

	return candidates[start:end], PaginationInfo{Page: page, Limit: limit, TotalPages: totalPages}
}

// sourceAttribution translates executor.Stats's per-source metrics into
// the response's sourceAttribution list.
func sourceAttribution(run orchestrator.Run) []SourceAttributionEntry {
	metrics := run.Result.Stats.SourceMetrics
	out := make([]SourceAttributionEntry, 0, len(metrics))
	for _, m := range metrics {
		entry := SourceAttributionEntry{
			Source:      m.Source,
			Kind:        m.Kind,
			ResultCount: m.ResultCount,
			Succeeded:   m.Err == nil,
		}
		if m.Err != nil {
			entry.ErrorMessage = m.Err.Error()
		}
		out = append(out, entry)
	}
	return out
}

// executionMetrics translates a Run's stage timings into the response's
// wire shape (milliseconds, string-keyed path).
func executionMetrics(run orchestrator.Run) *ExecutionMetrics {
	durations := make(map[string]int64, len(run.NodeExecutionTimes))
	for stage, d := range run.NodeExecutionTimes {
		durations[stage] = d.Milliseconds()
	}
	path := make([]string, len(run.ExecutionPath))
	for i, s := range run.ExecutionPath {
		path[i] = string(s)
	}
	return &ExecutionMetrics{StageDurationsMS: durations, ExecutionPath: path}
}

// debugInfo builds the response's optional debug block.
func debugInfo(run orchestrator.Run) *DebugInfo {
	errs := make([]string, len(run.Errors))
	for i, e := range run.Errors {
		errs[i] = e.Stage + ": " + e.Err.Error()
	}
	return &DebugInfo{
		Intent:      run.Intent,
		Plan:        run.Plan,
		FailedStage: run.FailedStage,
		StageErrors: errs,
	}
}
