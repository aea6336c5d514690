package dedup

import (
	"context"
	"testing"

	"github.com/toolscope/discovery-engine/internal/model"
)

func rec(id, name, url string, categories []string) model.Record {
	return model.Record{ID: id, Name: name, URL: url, Categories: categories}
}

func candidatesFor(records []model.Record) ([]model.Candidate, map[string]model.Record) {
	cands := make([]model.Candidate, len(records))
	byID := make(map[string]model.Record, len(records))
	for i, r := range records {
		cands[i] = model.Candidate{RecordID: r.ID, FinalRank: i + 1}
		byID[r.ID] = r
	}
	return cands, byID
}

// TestDetectVersionAware checks version-variant grouping and
// representative selection.
func TestDetectVersionAware(t *testing.T) {
	d, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	records := []model.Record{
		rec("R1", "React 18", "https://react.dev/v18", []string{"frontend"}),
		rec("R2", "React 17", "https://react.dev/v17", []string{"frontend"}),
		rec("R3", "Vue.js", "https://vuejs.org", []string{"frontend"}),
	}
	cands, byID := candidatesFor(records)

	result, err := d.Detect(context.Background(), cands, byID)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(result.DeduplicatedItems) != 2 {
		t.Fatalf("expected 2 deduplicated items, got %d: %+v", len(result.DeduplicatedItems), result.DeduplicatedItems)
	}
	if result.DuplicateGroups[0].Strategy != model.StrategyVersionAware {
		t.Fatalf("expected VERSION_AWARE to fire, got %s", result.DuplicateGroups[0].Strategy)
	}
	if len(result.DuplicateGroups) != 1 {
		t.Fatalf("expected exactly 1 duplicate group, got %d: %+v", len(result.DuplicateGroups), result.DuplicateGroups)
	}
	group := result.DuplicateGroups[0]
	if group.Representative != "R1" {
		t.Fatalf("representative should be the higher-ranked R1, got %s", group.Representative)
	}
	foundVue := false
	for _, c := range result.DeduplicatedItems {
		if c.RecordID == "R3" {
			foundVue = true
		}
	}
	if !foundVue {
		t.Fatal("Vue.js should remain ungrouped")
	}
}

// TestDetectExactIDGroupsWithSimilarityOne checks that identical IDs
// always group with similarity 1.
func TestDetectExactIDGroupsWithSimilarityOne(t *testing.T) {
	d, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	records := []model.Record{
		rec("dup", "Tool A", "https://a.example.com", nil),
		rec("dup", "Tool A (mirrored listing)", "https://a-mirror.example.com", nil),
	}
	cands := []model.Candidate{{RecordID: "dup", FinalRank: 1}, {RecordID: "dup", FinalRank: 2}}
	byID := map[string]model.Record{"dup": records[0]}

	result, err := d.Detect(context.Background(), cands, byID)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(result.DuplicateGroups) != 1 || result.DuplicateGroups[0].Score != 1 {
		t.Fatalf("expected a single EXACT_ID group with score 1: %+v", result.DuplicateGroups)
	}
}

// TestDetectIsIdempotent checks that applying Detect to its own
// output yields the same deduplicated list.
func TestDetectIsIdempotent(t *testing.T) {
	d, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	records := []model.Record{
		rec("R1", "React 18", "https://react.dev", []string{"frontend"}),
		rec("R2", "React 17", "https://react.dev", []string{"frontend"}),
		rec("R3", "Vue.js", "https://vuejs.org", []string{"frontend"}),
		rec("R4", "Svelte", "https://svelte.dev", []string{"frontend"}),
	}
	cands, byID := candidatesFor(records)

	first, err := d.Detect(context.Background(), cands, byID)
	if err != nil {
		t.Fatalf("Detect (first pass): %v", err)
	}
	second, err := d.Detect(context.Background(), first.DeduplicatedItems, byID)
	if err != nil {
		t.Fatalf("Detect (second pass): %v", err)
	}
	if len(first.DeduplicatedItems) != len(second.DeduplicatedItems) {
		t.Fatalf("not idempotent: first=%d second=%d", len(first.DeduplicatedItems), len(second.DeduplicatedItems))
	}
	for i := range first.DeduplicatedItems {
		if first.DeduplicatedItems[i].RecordID != second.DeduplicatedItems[i].RecordID {
			t.Fatalf("not idempotent at position %d: %+v vs %+v", i, first.DeduplicatedItems, second.DeduplicatedItems)
		}
	}
}

func TestDetectUnrelatedRecordsStaySeparate(t *testing.T) {
	d, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	records := []model.Record{
		rec("R1", "Visual Studio Code", "https://code.visualstudio.com", []string{"ide"}),
		rec("R2", "Postman", "https://postman.com", []string{"api-testing"}),
	}
	cands, byID := candidatesFor(records)

	result, err := d.Detect(context.Background(), cands, byID)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(result.DeduplicatedItems) != 2 {
		t.Fatalf("unrelated records should not be grouped: %+v", result.DeduplicatedItems)
	}
	if len(result.DuplicateGroups) != 0 {
		t.Fatalf("expected no duplicate groups, got %+v", result.DuplicateGroups)
	}
}
