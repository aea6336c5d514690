package model

import "fmt"

// PrimaryGoal classifies what the user is ultimately trying to accomplish.
// The set is closed; the intent extractor must map every query onto one of these six values.
type PrimaryGoal string

const (
	GoalFind      PrimaryGoal = "find"
	GoalCompare   PrimaryGoal = "compare"
	GoalRecommend PrimaryGoal = "recommend"
	GoalExplore   PrimaryGoal = "explore"
	GoalAnalyze   PrimaryGoal = "analyze"
	GoalExplain   PrimaryGoal = "explain"
)

// ComparisonMode refines a GoalCompare intent; it is empty for other goals.
type ComparisonMode string

const (
	ComparisonSimilarTo     ComparisonMode = "similar_to"
	ComparisonVs            ComparisonMode = "vs"
	ComparisonAlternativeTo ComparisonMode = "alternative_to"
	ComparisonNone          ComparisonMode = ""
)

// PricingPreference narrows results by cost tier when the user expressed one.
// Empty means the query carried no pricing signal.
type PricingPreference string

const (
	PricingPrefFree       PricingPreference = "free"
	PricingPrefFreemium   PricingPreference = "freemium"
	PricingPrefPaid       PricingPreference = "paid"
	PricingPrefEnterprise PricingPreference = "enterprise"
	PricingPrefNone       PricingPreference = ""
)

// FeatureVocabulary is the closed set of feature tags the intent extractor may attach to an
// Intent. An extraction that returns a tag outside this set fails schema
// validation and is treated as IntentUnparseable.
var FeatureVocabulary = map[string]bool{
	"api_access":       true,
	"open_source":      true,
	"self_hosted":      true,
	"cli":              true,
	"collaboration":    true,
	"offline_support":  true,
	"plugin_ecosystem": true,
	"version_control":  true,
	"ai_assisted":      true,
	"no_code":          true,
}

// Intent is the structured interpretation of a raw query produced by the intent extractor.
// Every field is populated by the extraction LLM call and validated against
// this shape before the pipeline advances past INTENT_EXTRACTED.
type Intent struct {
	RawQuery         string            `json:"rawQuery"`
	PrimaryGoal      PrimaryGoal       `json:"primaryGoal"`
	ReferenceTool    string            `json:"referenceTool,omitempty"`
	ComparisonMode   ComparisonMode    `json:"comparisonMode,omitempty"`
	Pricing          PricingPreference `json:"pricing,omitempty"`
	Category         string            `json:"category,omitempty"`
	Platform         string            `json:"platform,omitempty"`
	Features         []string          `json:"features,omitempty"`
	Constraints      []string          `json:"constraints,omitempty"`
	SemanticVariants []string          `json:"semanticVariants,omitempty"`
	Confidence       float64           `json:"confidence"`
}

// Valid reports whether the Intent conforms to the closed vocabularies
// above. The intent extractor runs this once against the first LLM response and, if it
// fails, again against the repaired response before giving up.
func (i Intent) Valid() error {
	switch i.PrimaryGoal {
	case GoalFind, GoalCompare, GoalRecommend, GoalExplore, GoalAnalyze, GoalExplain:
	default:
		return fmt.Errorf("primaryGoal %q not in closed vocabulary", i.PrimaryGoal)
	}
	switch i.ComparisonMode {
	case ComparisonSimilarTo, ComparisonVs, ComparisonAlternativeTo, ComparisonNone:
	default:
		return fmt.Errorf("comparisonMode %q not in closed vocabulary", i.ComparisonMode)
	}
	switch i.Pricing {
	case PricingPrefFree, PricingPrefFreemium, PricingPrefPaid, PricingPrefEnterprise, PricingPrefNone:
	default:
		return fmt.Errorf("pricing %q not in closed vocabulary", i.Pricing)
	}
	for _, f := range i.Features {
		if !FeatureVocabulary[f] {
			return fmt.Errorf("feature %q not in closed vocabulary", f)
		}
	}
	if i.Confidence < 0 || i.Confidence > 1 {
		return fmt.Errorf("confidence %v out of [0,1]", i.Confidence)
	}
	return nil
}
