// Package intent is the intent extractor: one LLM call that turns a
// raw query into a schema-validated model.Intent, with a single JSON
// repair attempt before giving up.
package intent

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

const systemPrompt = `You classify a tool-discovery search query into a structured intent.
Respond with JSON only, matching this exact shape — no prose, no markdown fences:
{
  "primaryGoal": "find|compare|recommend|explore|analyze|explain",
  "referenceTool": "",
  "comparisonMode": "similar_to|vs|alternative_to|",
  "pricing": "free|freemium|paid|enterprise|",
  "category": "",
  "platform": "",
  "features": [],
  "constraints": [],
  "semanticVariants": [],
  "confidence": 0.0
}
primaryGoal, comparisonMode, and pricing must come only from the enumerated values above.
features must come only from: api_access, open_source, self_hosted, cli, collaboration,
offline_support, plugin_ecosystem, version_control, ai_assisted, no_code.
semanticVariants must contain 2 to 3 alternate phrasings of the query.
confidence must be a number between 0 and 1.`

// ChatClient is the single-shot chat call the intent extractor needs; llmclient.Client
// satisfies it.
type ChatClient interface {
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Extractor calls an LLM to produce a model.Intent for a raw query.
type Extractor struct {
	llm ChatClient
}

// New builds an Extractor over the given chat client.
func New(llm ChatClient) *Extractor {
	return &Extractor{llm: llm}
}

// Extract implements the extract(query) -> Intent contract. A response that
// fails to parse is repaired once (trailing-comma removal); a second parse
// failure, or a parse that succeeds but fails schema validation, is
// returned as an IntentUnparseable error — there is no silent best-effort
// fallback.
func (e *Extractor) Extract(ctx context.Context, query string) (model.Intent, error) {
	if strings.TrimSpace(query) == "" {
		return model.Intent{}, apperr.Wrap(apperr.KindInputInvalid, "intent.Extract", fmt.Errorf("empty query"))
	}

	raw, err := e.llm.Chat(ctx, systemPrompt, query)
	if err != nil {
		return model.Intent{}, apperr.Wrap(apperr.KindIntentUnparseable, "intent.Extract", fmt.Errorf("llm call failed: %w", err))
	}

	intent, err := parseIntent(raw, query)
	if err == nil {
		return intent, nil
	}

	slog.Warn("[INTENT] parse failed, attempting one repair", "err", err)
	repaired := repairJSON(raw)
	intent, err = parseIntent(repaired, query)
	if err != nil {
		return model.Intent{}, apperr.Wrap(apperr.KindIntentUnparseable, "intent.Extract", fmt.Errorf("unparseable after repair: %w", err))
	}
	return intent, nil
}

func parseIntent(raw, query string) (model.Intent, error) {
	cleaned := stripCodeFences(raw)

	var intent model.Intent
	if err := json.Unmarshal([]byte(cleaned), &intent); err != nil {
		return model.Intent{}, fmt.Errorf("json decode: %w", err)
	}
	intent.RawQuery = query

	if err := intent.Valid(); err != nil {
		return model.Intent{}, fmt.Errorf("schema validation: %w", err)
	}
	return intent, nil
}

// stripCodeFences mirrors the markdown-fence stripping every generation
// path in this pipeline applies to raw LLM text before decoding JSON.
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

// repairJSON removes a trailing comma immediately before a closing brace or
// bracket, the single repair attempted before giving up.
func repairJSON(raw string) string {
	cleaned := stripCodeFences(raw)
	return trailingCommaRe.ReplaceAllString(cleaned, "$1")
}
