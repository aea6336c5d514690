package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/toolscope/discovery-engine/internal/embedclient"
	"github.com/toolscope/discovery-engine/internal/model"
	"github.com/toolscope/discovery-engine/internal/vectorstore"
)

type fakeProvider struct {
	vec []float32
	err error
}

func (f *fakeProvider) EmbedTexts(ctx context.Context, texts []string, taskType embedclient.TaskType) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

type fakeStore struct {
	hits map[model.SpaceName][]vectorstore.ScoredPoint
	err  map[model.SpaceName]error
}

func (f *fakeStore) Upsert(ctx context.Context, space model.SpaceName, points []model.Point) error {
	return nil
}

func (f *fakeStore) Search(ctx context.Context, space model.SpaceName, query []float32, topK int, filter model.Filter) ([]vectorstore.ScoredPoint, error) {
	if err, ok := f.err[space]; ok {
		return nil, err
	}
	return f.hits[space], nil
}

func (f *fakeStore) Delete(ctx context.Context, space model.SpaceName, recordIDs []string) error {
	return nil
}

func (f *fakeStore) RetrieveVector(ctx context.Context, space model.SpaceName, recordID string) ([]float32, error) {
	return nil, nil
}
func (f *fakeStore) CollectionInfo(ctx context.Context, space model.SpaceName) (vectorstore.CollectionInfo, error) {
	return vectorstore.CollectionInfo{}, nil
}
func (f *fakeStore) Close() error { return nil }

func vec() []float32 {
	v := make([]float32, model.VectorDimension)
	v[0] = 1
	return v
}

func TestEnrichComputesCategoryDistribution(t *testing.T) {
	store := &fakeStore{
		hits: map[model.SpaceName][]vectorstore.ScoredPoint{
			model.SpaceEntitiesCategories: {
				{RecordID: "a", Score: 0.9, Payload: map[string]any{"categories": []string{"ide"}}},
				{RecordID: "b", Score: 0.8, Payload: map[string]any{"categories": []string{"ide"}}},
				{RecordID: "c", Score: 0.5, Payload: map[string]any{"categories": []string{"cli"}}},
			},
			model.SpaceEntitiesFunctionality: {
				{RecordID: "a", Score: 0.7, Payload: map[string]any{"functionality": []string{"autocomplete"}}},
			},
			model.SpaceSemantic: {
				{RecordID: "a", Score: 0.6, Payload: map[string]any{"categories": []string{"ide"}}},
			},
		},
	}
	embedder, err := embedclient.New(&fakeProvider{vec: vec()}, 10)
	if err != nil {
		t.Fatalf("embedclient.New: %v", err)
	}
	s := New(embedder, store, nil)

	stats, meta, err := s.Enrich(context.Background(), "free AI coding tools")
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if meta.Source != sourceMultiVector {
		t.Fatalf("expected source %s, got %s", sourceMultiVector, meta.Source)
	}
	cats := stats.Dimensions["categories"]
	if len(cats) == 0 {
		t.Fatal("expected a categories distribution")
	}
	found := false
	for _, c := range cats {
		if c.Value == "ide" && c.Count == 2 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected ide count=2 in categories distribution: %+v", cats)
	}

	var sawFreeTier bool
	for _, a := range meta.Assumptions {
		if a == "user prefers free tier" {
			sawFreeTier = true
		}
	}
	if !sawFreeTier {
		t.Fatalf("expected the free-tier heuristic assumption: %+v", meta.Assumptions)
	}
}

func TestEnrichFallsBackOnEmbeddingFailure(t *testing.T) {
	store := &fakeStore{}
	embedder, err := embedclient.New(&fakeProvider{err: errors.New("provider down")}, 10)
	if err != nil {
		t.Fatalf("embedclient.New: %v", err)
	}
	s := New(embedder, store, nil)

	stats, meta, err := s.Enrich(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Enrich should not return an error on embedding failure: %v", err)
	}
	if stats.Confidence != 0 {
		t.Fatalf("fallback confidence should be 0, got %v", stats.Confidence)
	}
	if meta.Source != sourceFallback {
		t.Fatalf("expected fallback source, got %s", meta.Source)
	}
	if len(meta.Assumptions) != 1 {
		t.Fatalf("expected exactly one assumption recording the failure, got %+v", meta.Assumptions)
	}
}

func TestEnrichFallsBackWhenAllSpacesFail(t *testing.T) {
	store := &fakeStore{
		err: map[model.SpaceName]error{
			model.SpaceEntitiesCategories:   errors.New("down"),
			model.SpaceEntitiesFunctionality: errors.New("down"),
			model.SpaceSemantic:             errors.New("down"),
		},
	}
	embedder, err := embedclient.New(&fakeProvider{vec: vec()}, 10)
	if err != nil {
		t.Fatalf("embedclient.New: %v", err)
	}
	s := New(embedder, store, nil)

	stats, meta, err := s.Enrich(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	if stats.Confidence != 0 || meta.Source != sourceFallback {
		t.Fatalf("expected fallback when every space fails: stats=%+v meta=%+v", stats, meta)
	}
}
