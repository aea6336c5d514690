package model

// EntityValueStat is one value's frequency within a single entity
// dimension: how often it occurred, what share of the sample that is, and
// the mean similarity score of the hits that carried it.
type EntityValueStat struct {
	Value         string  `json:"value"`
	Count         int     `json:"count"`
	Percentage    float64 `json:"percentage"`
	AvgSimilarity float64 `json:"avgSimilarity"`
}

// EntityStatistics summarizes how a query's sample is distributed across
// each entity dimension (categories, functionality, interfaces, pricing),
// computed fresh per query and never persisted beyond the request.
type EntityStatistics struct {
	Dimensions map[string][]EntityValueStat `json:"dimensions"`
	Confidence float64                      `json:"confidence"`
	SampleSize int                          `json:"sampleSize"`
}

// MetadataContext carries the heuristic assumptions derived from the
// query text and which collection path produced the statistics, so a
// caller can tell a real enrichment from the degraded fallback.
type MetadataContext struct {
	Assumptions []string `json:"assumptions,omitempty"`
	Source      string   `json:"source"`
}
