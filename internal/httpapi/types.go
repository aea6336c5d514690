// Package httpapi is the inbound HTTP surface: one operation, search, that
// validates an EnhancedSearchRequest, drives the orchestrator, and
// shapes an EnhancedSearchResponse.
package httpapi

import "github.com/toolscope/discovery-engine/internal/model"

// SourceFlags enables or disables each retrieval source family. The
// planner decides concrete sources; these flags are advisory hints
// recorded on the response, since the planner does not currently accept
// per-request source overrides.
type SourceFlags struct {
	Vector      bool `json:"vector"`
	Traditional bool `json:"traditional"`
	Hybrid      bool `json:"hybrid"`
}

// VectorOptions narrows which spaces and how many results per space a
// vector-backed search should consider.
type VectorOptions struct {
	VectorTypes []model.SpaceName `json:"vectorTypes,omitempty"`
	Limit       int               `json:"limit,omitempty"`
	Filter      model.Filter      `json:"filter,omitempty"`
}

// MergeOptions configures how the merger combines per-source rankings.
type MergeOptions struct {
	Strategy      model.FusionStrategy `json:"strategy,omitempty"`
	RRFKValue     int                  `json:"rrfKValue,omitempty"`
	MaxResults    int                  `json:"maxResults,omitempty"`
	SourceWeights map[string]float64   `json:"sourceWeights,omitempty"`
}

// DuplicateDetectionOptions configures the duplicate detector for one request.
type DuplicateDetectionOptions struct {
	Enabled              bool                      `json:"enabled"`
	UseEnhancedDetection bool                      `json:"useEnhancedDetection"`
	Threshold            float64                   `json:"threshold,omitempty"`
	Strategies           []model.DuplicateStrategy `json:"strategies,omitempty"`
}

// Pagination is a 1-based page request.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// SortField names a field the response can be reordered by, besides the
// fused rrfScore order the merger already produces.
type SortField string

const (
	SortByRelevance SortField = "relevance"
	SortByName      SortField = "name"
	SortByCategory  SortField = "category"
	SortByScore     SortField = "score"
)

// SortOrder is ascending or descending.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// Sort reorders the final candidate list after fusion/dedup.
type Sort struct {
	Field SortField `json:"field,omitempty"`
	Order SortOrder `json:"order,omitempty"`
}

// Performance carries request-scoped execution knobs.
type Performance struct {
	TimeoutMS      int  `json:"timeout,omitempty"`
	EnableCache    bool `json:"enableCache"`
	EnableParallel bool `json:"enableParallel"`
}

// FeatureToggle is the common shape of the contextEnrichment, localNLP, and
// multiVectorSearch option blocks: an on/off switch plus a confidence
// threshold.
type FeatureToggle struct {
	Enabled   bool    `json:"enabled"`
	Threshold float64 `json:"threshold,omitempty"`
}

// SearchOptions is the full options block of an EnhancedSearchRequest.
type SearchOptions struct {
	Sources                   SourceFlags               `json:"sources,omitempty"`
	VectorOptions             VectorOptions             `json:"vectorOptions,omitempty"`
	MergeOptions              MergeOptions              `json:"mergeOptions,omitempty"`
	DuplicateDetectionOptions DuplicateDetectionOptions `json:"duplicateDetectionOptions,omitempty"`
	Pagination                Pagination                `json:"pagination,omitempty"`
	Sort                      Sort                      `json:"sort,omitempty"`
	Filters                   model.Filter              `json:"filters,omitempty"`
	Performance               Performance               `json:"performance,omitempty"`
	ContextEnrichment         FeatureToggle             `json:"contextEnrichment,omitempty"`
	LocalNLP                  FeatureToggle             `json:"localNLP,omitempty"`
	MultiVectorSearch         FeatureToggle             `json:"multiVectorSearch,omitempty"`
	Debug                      bool                      `json:"debug,omitempty"`
	IncludeMetadata            bool                      `json:"includeMetadata,omitempty"`
	IncludeSourceAttribution   bool                      `json:"includeSourceAttribution,omitempty"`
	IncludeExecutionMetrics    bool                      `json:"includeExecutionMetrics,omitempty"`
	IncludeConfidenceBreakdown bool                      `json:"includeConfidenceBreakdown,omitempty"`
}

// EnhancedSearchRequest is the sole inbound operation's request body.
type EnhancedSearchRequest struct {
	Query   string        `json:"query"`
	Options SearchOptions `json:"options,omitempty"`
}

// Summary reports request-level totals for one search.
type Summary struct {
	Total             int    `json:"total"`
	ProcessingTimeMS  int64  `json:"processingTimeMs"`
	SourcesSearched   int    `json:"sourcesSearched"`
	DuplicatesRemoved int    `json:"duplicatesRemoved"`
	SearchStrategy    string `json:"searchStrategy"`
}

// SourceAttributionEntry reports one source's contribution to the final
// result set.
type SourceAttributionEntry struct {
	Source       string `json:"source"`
	Kind         string `json:"kind"`
	ResultCount  int    `json:"resultCount"`
	Succeeded    bool   `json:"succeeded"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// DuplicateDetectionSummary reports what the duplicate detector did for this request.
type DuplicateDetectionSummary struct {
	GroupsFound       int                    `json:"groupsFound"`
	DuplicatesRemoved int                    `json:"duplicatesRemoved"`
	Groups            []model.DuplicateGroup `json:"groups,omitempty"`
}

// ExecutionMetrics mirrors orchestrator.Run's per-stage timings for callers
// that asked for includeExecutionMetrics.
type ExecutionMetrics struct {
	StageDurationsMS map[string]int64 `json:"stageDurationsMs"`
	ExecutionPath    []string         `json:"executionPath"`
}

// DebugInfo is attached only when options.debug is set.
type DebugInfo struct {
	Intent      model.Intent        `json:"intent"`
	Plan        model.RetrievalPlan `json:"plan"`
	FailedStage string              `json:"failedStage,omitempty"`
	StageErrors []string            `json:"stageErrors,omitempty"`
}

// PaginationInfo echoes the page actually served.
type PaginationInfo struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

// EnhancedSearchResponse is the sole inbound operation's response body.
type EnhancedSearchResponse struct {
	RequestID          string                     `json:"requestId"`
	Candidates         []model.Candidate          `json:"candidates"`
	Summary            Summary                    `json:"summary"`
	EntityStatistics   *model.EntityStatistics    `json:"entityStatistics,omitempty"`
	SourceAttribution  []SourceAttributionEntry   `json:"sourceAttribution,omitempty"`
	DuplicateDetection *DuplicateDetectionSummary `json:"duplicateDetection,omitempty"`
	Metrics            *ExecutionMetrics          `json:"metrics,omitempty"`
	Debug              *DebugInfo                 `json:"debug,omitempty"`
	Pagination         *PaginationInfo            `json:"pagination,omitempty"`
	Errors             []string                   `json:"errors,omitempty"`
}

// ErrorResponse is the body returned on a terminal error: a stable code,
// a human message and the request ID. writeError does not set Stage, so it
// is omitted from every error body, with or without options.debug.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
	Stage     string `json:"stage,omitempty"`
}
