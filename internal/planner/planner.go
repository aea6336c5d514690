// Package planner is the query planner: turns an Intent into a
// schema-validated RetrievalPlan, either via one LLM call or, for a
// low-confidence intent, a deterministic rule-based plan.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/toolscope/discovery-engine/internal/apperr"
	"github.com/toolscope/discovery-engine/internal/model"
)

const systemPrompt = `You are a retrieval planner for a tool-discovery search engine.
Given a structured intent, decide which vector spaces to search and with what query
vector source, which structured filters to push down, and how to fuse the results.
Respond with JSON only, matching this exact shape — no prose, no markdown fences:
{
  "strategy": "a short label describing the plan",
  "vectorSources": [
    {"source": "", "space": "semantic|entities.categories|entities.functionality|entities.aliases|composites.toolType",
     "queryVectorSource": "query_text|reference_tool_embedding|semantic_variant",
     "semanticVariantIdx": 0, "topK": 20, "weight": 1.0, "embeddingTypeHint": ""}
  ],
  "structuredSources": [
    {"source": "", "collection": "records", "predicates": [{"field": "", "op": "=|contains|<|<=|>|>=", "value": null}], "limit": 50}
  ],
  "fusion": "rrf|weighted_average|hybrid|none",
  "rrfConstant": 60,
  "maxCandidates": 100,
  "confidence": 0.0
}
A query asking to compare against or find an alternative to a named tool should use
queryVectorSource "reference_tool_embedding" against the entities.aliases space.
A pricing preference of "free" should push down a structured predicate on
"pricing.hasFreeTier" = true.`

// ChatClient is the single-shot chat call the planner needs.
type ChatClient interface {
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Planner produces a RetrievalPlan for a given Intent.
type Planner struct {
	llm                ChatClient
	ruleBasedThreshold float64
	emptyPlanThreshold float64
	defaultTopK        int
	maxCandidates      int
	rrfConstant        int
}

// Option configures a Planner at construction time.
type Option func(*Planner)

// WithRuleBasedThreshold sets the intent-confidence floor below which the
// planner skips the LLM call entirely and uses the rule-based plan.
// Default 0.4.
func WithRuleBasedThreshold(t float64) Option {
	return func(p *Planner) { p.ruleBasedThreshold = t }
}

// WithEmptyPlanThreshold sets the intent-confidence floor below which the
// planner returns a plan with no sources at all. Default 0.15.
func WithEmptyPlanThreshold(t float64) Option {
	return func(p *Planner) { p.emptyPlanThreshold = t }
}

// New builds a Planner. llm may be nil, in which case every call at or
// above the empty-plan threshold uses the rule-based plan.
func New(llm ChatClient, opts ...Option) *Planner {
	p := &Planner{
		llm:                llm,
		ruleBasedThreshold: 0.4,
		emptyPlanThreshold: 0.15,
		defaultTopK:        20,
		maxCandidates:      100,
		rrfConstant:        60,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan implements the plan(intent, query) -> RetrievalPlan contract.
func (p *Planner) Plan(ctx context.Context, in model.Intent, query string) (model.RetrievalPlan, error) {
	if in.Confidence < p.emptyPlanThreshold {
		slog.Info("[PLANNER] intent confidence below empty-plan threshold, returning empty plan",
			"confidence", in.Confidence, "threshold", p.emptyPlanThreshold)
		return model.RetrievalPlan{Strategy: "none", Fusion: model.FusionNone, Confidence: in.Confidence}, nil
	}

	if in.Confidence < p.ruleBasedThreshold || p.llm == nil {
		plan := p.ruleBasedPlan(in)
		if err := plan.Valid(); err != nil {
			return model.RetrievalPlan{}, apperr.Wrap(apperr.KindPlanInvalid, "planner.Plan", fmt.Errorf("rule-based plan: %w", err))
		}
		return plan, nil
	}

	plan, err := p.llmPlan(ctx, in, query)
	if err != nil {
		slog.Warn("[PLANNER] LLM planning failed, falling back to rule-based plan", "err", err)
		plan = p.ruleBasedPlan(in)
	}
	if err := plan.Valid(); err != nil {
		return model.RetrievalPlan{}, apperr.Wrap(apperr.KindPlanInvalid, "planner.Plan", err)
	}
	return plan, nil
}

func (p *Planner) llmPlan(ctx context.Context, in model.Intent, query string) (model.RetrievalPlan, error) {
	intentJSON, err := json.Marshal(in)
	if err != nil {
		return model.RetrievalPlan{}, fmt.Errorf("encode intent: %w", err)
	}
	userPrompt := fmt.Sprintf("query: %s\nintent: %s", query, string(intentJSON))

	raw, err := p.llm.Chat(ctx, systemPrompt, userPrompt)
	if err != nil {
		return model.RetrievalPlan{}, fmt.Errorf("llm call failed: %w", err)
	}

	plan, err := parsePlan(raw)
	if err == nil {
		return plan, nil
	}

	repaired := repairJSON(raw)
	plan, err = parsePlan(repaired)
	if err != nil {
		return model.RetrievalPlan{}, fmt.Errorf("unparseable after repair: %w", err)
	}
	return plan, nil
}

func parsePlan(raw string) (model.RetrievalPlan, error) {
	cleaned := stripCodeFences(raw)
	var plan model.RetrievalPlan
	if err := json.Unmarshal([]byte(cleaned), &plan); err != nil {
		return model.RetrievalPlan{}, fmt.Errorf("json decode: %w", err)
	}
	if err := plan.Valid(); err != nil {
		return model.RetrievalPlan{}, fmt.Errorf("schema validation: %w", err)
	}
	return plan, nil
}

// ruleBasedPlan builds a deterministic plan straight from the intent's own
// fields, used both for low-confidence intents and as a fallback when the
// LLM call fails outright.
func (p *Planner) ruleBasedPlan(in model.Intent) model.RetrievalPlan {
	var vectorSources []model.VectorSource
	var labels []string

	vectorSources = append(vectorSources, model.VectorSource{
		Source:            "semantic",
		Space:             model.SpaceSemantic,
		QueryVectorSource: model.QueryVectorFromText,
		TopK:              p.defaultTopK,
		Weight:            1.0,
	})
	labels = append(labels, "semantic")

	if in.ReferenceTool != "" {
		vectorSources = append(vectorSources, model.VectorSource{
			Source:            "referenceTool",
			Space:             model.SpaceEntitiesAliases,
			QueryVectorSource: model.QueryVectorFromReferenceTool,
			TopK:              p.defaultTopK / 2,
			Weight:            0.8,
		})
		labels = append(labels, "aliases")
	}

	if in.Category != "" {
		vectorSources = append(vectorSources, model.VectorSource{
			Source:            "category",
			Space:             model.SpaceEntitiesCategories,
			QueryVectorSource: model.QueryVectorFromText,
			TopK:              p.defaultTopK,
			Weight:            0.6,
		})
		labels = append(labels, "categories")
	}

	if len(in.Features) > 0 {
		vectorSources = append(vectorSources, model.VectorSource{
			Source:            "features",
			Space:             model.SpaceEntitiesFunctionality,
			QueryVectorSource: model.QueryVectorFromText,
			TopK:              p.defaultTopK,
			Weight:            0.6,
		})
		labels = append(labels, "functionality")
	}

	var structuredSources []model.StructuredSource
	var predicates model.Filter
	if in.Pricing == model.PricingPrefFree {
		predicates = append(predicates, model.FilterClause{Field: "pricing.hasFreeTier", Op: model.FilterEq, Value: true})
	}
	if in.Platform != "" {
		predicates = append(predicates, model.FilterClause{Field: "platform", Op: model.FilterContains, Value: in.Platform})
	}
	if len(predicates) > 0 {
		structuredSources = append(structuredSources, model.StructuredSource{
			Source:     "filters",
			Collection: "records",
			Predicates: predicates,
			Limit:      p.maxCandidates,
		})
	}

	fusion := model.FusionNone
	if len(vectorSources)+len(structuredSources) > 1 {
		fusion = model.FusionRRF
	}

	return model.RetrievalPlan{
		Strategy:          strings.Join(labels, "+"),
		VectorSources:     vectorSources,
		StructuredSources: structuredSources,
		Fusion:            fusion,
		RRFConstant:       p.rrfConstant,
		MaxCandidates:     p.maxCandidates,
		Confidence:        in.Confidence,
	}
}

func stripCodeFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		lines := strings.Split(cleaned, "\n")
		if len(lines) >= 3 {
			cleaned = strings.Join(lines[1:len(lines)-1], "\n")
		}
	}
	return strings.TrimSpace(cleaned)
}

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

func repairJSON(raw string) string {
	return trailingCommaRe.ReplaceAllString(stripCodeFences(raw), "$1")
}
