package retriever

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/toolscope/discovery-engine/internal/model"
	"github.com/toolscope/discovery-engine/internal/vectorstore"
)

// fakeStore implements vectorstore.Store for testing the fan-out scheduler
// in isolation from any real backend.
type fakeStore struct {
	hits  map[model.SpaceName][]vectorstore.ScoredPoint
	err   map[model.SpaceName]error
	delay map[model.SpaceName]time.Duration
}

func (f *fakeStore) Upsert(ctx context.Context, space model.SpaceName, points []model.Point) error {
	return nil
}

func (f *fakeStore) Search(ctx context.Context, space model.SpaceName, query []float32, topK int, filter model.Filter) ([]vectorstore.ScoredPoint, error) {
	if d, ok := f.delay[space]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
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

func TestFanOutOrdersHitsDescendingPerSpace(t *testing.T) {
	store := &fakeStore{
		hits: map[model.SpaceName][]vectorstore.ScoredPoint{
			model.SpaceSemantic: {
				{RecordID: "low", Score: 0.2},
				{RecordID: "high", Score: 0.9},
				{RecordID: "mid", Score: 0.5},
			},
		},
	}
	r := New(store, time.Second)
	result := r.FanOut(context.Background(), []SpaceQuery{{Space: model.SpaceSemantic, TopK: 3}})

	hits := result.Hits[model.SpaceSemantic]
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[0].RecordID != "high" || hits[1].RecordID != "mid" || hits[2].RecordID != "low" {
		t.Fatalf("hits not sorted descending: %+v", hits)
	}
}

func TestFanOutIsolatesPerSpaceFailure(t *testing.T) {
	store := &fakeStore{
		hits: map[model.SpaceName][]vectorstore.ScoredPoint{
			model.SpaceSemantic: {{RecordID: "ok", Score: 0.8}},
		},
		err: map[model.SpaceName]error{
			model.SpaceEntitiesCategories: errors.New("boom"),
		},
	}
	r := New(store, time.Second)
	result := r.FanOut(context.Background(), []SpaceQuery{
		{Space: model.SpaceSemantic, TopK: 5},
		{Space: model.SpaceEntitiesCategories, TopK: 5},
	})

	if len(result.Hits[model.SpaceSemantic]) != 1 {
		t.Fatalf("semantic space should have succeeded: %+v", result.Hits)
	}
	if _, ok := result.Hits[model.SpaceEntitiesCategories]; ok {
		t.Fatalf("failing space should contribute no hits")
	}

	var sawErr bool
	for _, m := range result.Metrics {
		if m.Space == model.SpaceEntitiesCategories {
			sawErr = m.Err != nil
		}
	}
	if !sawErr {
		t.Fatalf("expected an error metric for the failing space")
	}
}

func TestFanOutRespectsPerSpaceTimeout(t *testing.T) {
	store := &fakeStore{
		hits: map[model.SpaceName][]vectorstore.ScoredPoint{
			model.SpaceSemantic: {{RecordID: "fast", Score: 0.5}},
		},
		delay: map[model.SpaceName]time.Duration{
			model.SpaceEntitiesAliases: 200 * time.Millisecond,
		},
	}
	r := New(store, 20*time.Millisecond)
	start := time.Now()
	result := r.FanOut(context.Background(), []SpaceQuery{
		{Space: model.SpaceSemantic, TopK: 5},
		{Space: model.SpaceEntitiesAliases, TopK: 5},
	})
	elapsed := time.Since(start)

	if elapsed > 150*time.Millisecond {
		t.Fatalf("fan-out should not wait for the slow space's full delay, took %v", elapsed)
	}
	if len(result.Hits[model.SpaceSemantic]) != 1 {
		t.Fatalf("fast space should have succeeded")
	}
	var sawTimeout bool
	for _, m := range result.Metrics {
		if m.Space == model.SpaceEntitiesAliases {
			sawTimeout = m.Err != nil
		}
	}
	if !sawTimeout {
		t.Fatalf("expected the slow space to time out")
	}
}

func TestFanOutCancellationStopsPromptly(t *testing.T) {
	store := &fakeStore{
		delay: map[model.SpaceName]time.Duration{
			model.SpaceSemantic: 5 * time.Second,
		},
	}
	r := New(store, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan Result, 1)
	go func() {
		done <- r.FanOut(ctx, []SpaceQuery{{Space: model.SpaceSemantic, TopK: 5}})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("FanOut did not return promptly after cancellation")
	}
}
