package model

import "fmt"

// FusionStrategy names how per-source rankings are combined into one list.
type FusionStrategy string

const (
	FusionRRF             FusionStrategy = "rrf"
	FusionWeightedAverage FusionStrategy = "weighted_average"
	FusionHybrid          FusionStrategy = "hybrid"
	FusionNone            FusionStrategy = "none"
)

// QueryVectorSource names where a vector source's query embedding comes
// from: the raw query text, an embedding of Intent.ReferenceTool, or an
// embedding of one of Intent.SemanticVariants.
type QueryVectorSource string

const (
	QueryVectorFromText            QueryVectorSource = "query_text"
	QueryVectorFromReferenceTool   QueryVectorSource = "reference_tool_embedding"
	QueryVectorFromSemanticVariant QueryVectorSource = "semantic_variant"
)

// VectorSource is one vector-space leg of a RetrievalPlan.
type VectorSource struct {
	Source             string            `json:"source"`
	Space              SpaceName         `json:"space"`
	QueryVectorSource  QueryVectorSource `json:"queryVectorSource"`
	SemanticVariantIdx int               `json:"semanticVariantIdx,omitempty"`
	TopK               int               `json:"topK"`
	Filter             Filter            `json:"filter,omitempty"`
	Weight             float64           `json:"weight"`
	EmbeddingTypeHint  string            `json:"embeddingTypeHint,omitempty"`
}

// StructuredSource is one document-store leg of a RetrievalPlan.
type StructuredSource struct {
	Source     string `json:"source"`
	Collection string `json:"collection"`
	Predicates Filter `json:"predicates"`
	Limit      int    `json:"limit"`
}

// RetrievalPlan is the structured execution plan produced by the planner:
// which vector and structured sources to hit, with what weights and filters,
// combined by which fusion strategy.
type RetrievalPlan struct {
	Strategy          string             `json:"strategy"`
	VectorSources     []VectorSource     `json:"vectorSources"`
	StructuredSources []StructuredSource `json:"structuredSources"`
	Fusion            FusionStrategy     `json:"fusion"`
	RRFConstant       int                `json:"rrfConstant"`
	MaxCandidates     int                `json:"maxCandidates"`
	Confidence        float64            `json:"confidence"`
}

// Empty reports whether the plan names no sources at all, legal only when
// the driving Intent's confidence is below the planner's threshold.
func (p RetrievalPlan) Empty() bool {
	return len(p.VectorSources) == 0 && len(p.StructuredSources) == 0
}

// Valid checks the plan references known spaces and a known fusion
// strategy; it does not check source reachability, only shape.
func (p RetrievalPlan) Valid() error {
	for _, vs := range p.VectorSources {
		switch vs.Space {
		case SpaceSemantic, SpaceEntitiesCategories, SpaceEntitiesFunctionality, SpaceEntitiesAliases, SpaceCompositesToolType:
		default:
			return fmt.Errorf("vector source %q: unknown space %q", vs.Source, vs.Space)
		}
		switch vs.QueryVectorSource {
		case QueryVectorFromText, QueryVectorFromReferenceTool, QueryVectorFromSemanticVariant:
		default:
			return fmt.Errorf("vector source %q: unknown queryVectorSource %q", vs.Source, vs.QueryVectorSource)
		}
	}
	switch p.Fusion {
	case FusionRRF, FusionWeightedAverage, FusionHybrid, FusionNone:
	default:
		return fmt.Errorf("unknown fusion strategy %q", p.Fusion)
	}
	return nil
}
