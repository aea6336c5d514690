package planner

import (
	"context"
	"testing"

	"github.com/toolscope/discovery-engine/internal/model"
)

// TestPlanFreeTierFilter checks that a free-tier query pushes down a
// pricing.hasFreeTier structured filter.
func TestPlanFreeTierFilter(t *testing.T) {
	p := New(nil)
	in := model.Intent{
		RawQuery:    "free AI tools",
		PrimaryGoal: model.GoalFind,
		Pricing:     model.PricingPrefFree,
		Confidence:  0.8,
	}

	plan, err := p.Plan(context.Background(), in, in.RawQuery)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	found := false
	for _, s := range plan.StructuredSources {
		for _, pred := range s.Predicates {
			if pred.Field == "pricing.hasFreeTier" && pred.Value == true {
				found = true
			}
		}
	}
	if !found {
		t.Fatalf("expected a pricing.hasFreeTier=true predicate: %+v", plan.StructuredSources)
	}
}

// TestPlanAlternativeToComparison checks the reference-tool comparison path.
func TestPlanAlternativeToComparison(t *testing.T) {
	p := New(nil)
	in := model.Intent{
		RawQuery:       "Cursor alternative but cheaper",
		PrimaryGoal:    model.GoalCompare,
		ReferenceTool:  "Cursor",
		ComparisonMode: model.ComparisonAlternativeTo,
		Constraints:    []string{"cheaper"},
		Confidence:     0.85,
	}

	plan, err := p.Plan(context.Background(), in, in.RawQuery)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	found := false
	for _, vs := range plan.VectorSources {
		if vs.QueryVectorSource == model.QueryVectorFromReferenceTool && vs.Space == model.SpaceEntitiesAliases {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a reference_tool_embedding vector source against entities.aliases: %+v", plan.VectorSources)
	}
}

func TestPlanReturnsEmptyBelowThreshold(t *testing.T) {
	p := New(nil, WithEmptyPlanThreshold(0.2))
	in := model.Intent{RawQuery: "???", PrimaryGoal: model.GoalFind, Confidence: 0.05}

	plan, err := p.Plan(context.Background(), in, in.RawQuery)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !plan.Empty() {
		t.Fatalf("expected an empty plan below threshold, got %+v", plan)
	}
}

func TestPlanUsesLLMAboveRuleBasedThreshold(t *testing.T) {
	resp := `{"strategy":"llm-plan","vectorSources":[{"source":"semantic","space":"semantic","queryVectorSource":"query_text","topK":20,"weight":1.0}],"structuredSources":[],"fusion":"none","rrfConstant":60,"maxCandidates":100,"confidence":0.9}`
	p := New(&fakeChat{response: resp}, WithRuleBasedThreshold(0.3))
	in := model.Intent{RawQuery: "ides for go", PrimaryGoal: model.GoalFind, Confidence: 0.9}

	plan, err := p.Plan(context.Background(), in, in.RawQuery)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Strategy != "llm-plan" {
		t.Fatalf("expected the LLM-produced plan to be used, got %+v", plan)
	}
}

func TestPlanFallsBackToRuleBasedOnLLMFailure(t *testing.T) {
	p := New(&fakeChat{err: errFake{}}, WithRuleBasedThreshold(0.3))
	in := model.Intent{RawQuery: "ides for go", PrimaryGoal: model.GoalFind, Confidence: 0.9}

	plan, err := p.Plan(context.Background(), in, in.RawQuery)
	if err != nil {
		t.Fatalf("Plan should fall back rather than error: %v", err)
	}
	if len(plan.VectorSources) == 0 {
		t.Fatal("expected the rule-based fallback plan to include at least the semantic source")
	}
}

type fakeChat struct {
	response string
	err      error
}

func (f *fakeChat) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f.response, f.err
}

type errFake struct{}

func (errFake) Error() string { return "llm unavailable" }
