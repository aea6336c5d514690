package intent

import (
	"context"
	"testing"

	"github.com/toolscope/discovery-engine/internal/apperr"
)

type fakeChat struct {
	response string
	err      error
}

func (f *fakeChat) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return f.response, f.err
}

func TestExtractParsesValidResponse(t *testing.T) {
	resp := `{"primaryGoal":"compare","referenceTool":"VS Code","comparisonMode":"vs","pricing":"free","category":"ide","platform":"","features":["cli","open_source"],"constraints":[],"semanticVariants":["code editors like VS Code","VS Code alternatives"],"confidence":0.9}`
	e := New(&fakeChat{response: resp})

	got, err := e.Extract(context.Background(), "what compares to VS Code")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.PrimaryGoal != "compare" || got.ReferenceTool != "VS Code" {
		t.Fatalf("unexpected intent: %+v", got)
	}
	if got.RawQuery != "what compares to VS Code" {
		t.Fatalf("expected RawQuery to be set to the original query, got %q", got.RawQuery)
	}
}

func TestExtractStripsCodeFences(t *testing.T) {
	resp := "```json\n{\"primaryGoal\":\"find\",\"comparisonMode\":\"\",\"pricing\":\"\",\"confidence\":0.5}\n```"
	e := New(&fakeChat{response: resp})

	got, err := e.Extract(context.Background(), "find me a linter")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if got.PrimaryGoal != "find" {
		t.Fatalf("unexpected intent: %+v", got)
	}
}

func TestExtractRepairsTrailingComma(t *testing.T) {
	resp := `{"primaryGoal":"find","comparisonMode":"","pricing":"","confidence":0.4,}`
	e := New(&fakeChat{response: resp})

	got, err := e.Extract(context.Background(), "query")
	if err != nil {
		t.Fatalf("Extract should succeed after one repair: %v", err)
	}
	if got.PrimaryGoal != "find" {
		t.Fatalf("unexpected intent: %+v", got)
	}
}

func TestExtractFailsAfterSecondParseFailure(t *testing.T) {
	e := New(&fakeChat{response: "not json at all"})

	_, err := e.Extract(context.Background(), "query")
	if err == nil {
		t.Fatal("expected an error for unparseable response")
	}
	kind, ok := apperr.Of(err)
	if !ok || kind != apperr.KindIntentUnparseable {
		t.Fatalf("expected KindIntentUnparseable, got %v (ok=%v)", kind, ok)
	}
}

func TestExtractFailsOnSchemaValidationFailure(t *testing.T) {
	resp := `{"primaryGoal":"not_a_real_goal","comparisonMode":"","pricing":"","confidence":0.5}`
	e := New(&fakeChat{response: resp})

	_, err := e.Extract(context.Background(), "query")
	if err == nil {
		t.Fatal("expected schema validation to fail")
	}
	kind, ok := apperr.Of(err)
	if !ok || kind != apperr.KindIntentUnparseable {
		t.Fatalf("expected KindIntentUnparseable, got %v (ok=%v)", kind, ok)
	}
}

func TestExtractRejectsEmptyQuery(t *testing.T) {
	e := New(&fakeChat{response: "{}"})

	_, err := e.Extract(context.Background(), "   ")
	if err == nil {
		t.Fatal("expected an error for an empty query")
	}
	kind, ok := apperr.Of(err)
	if !ok || kind != apperr.KindInputInvalid {
		t.Fatalf("expected KindInputInvalid, got %v (ok=%v)", kind, ok)
	}
}
