// Package vectorstore is the vector-store adapter: per-space
// upsert/search/delete behind one interface, with two interchangeable
// layouts. The "enhanced" layout stores every space as a named vector on a
// single Qdrant point per record; the "legacy" layout stores one
// collection per space in Postgres via pgvector, mirroring how an older
// deployment grew one table at a time before named vectors existed.
package vectorstore

import (
	"context"

	"github.com/toolscope/discovery-engine/internal/model"
)

// ScoredPoint is one search hit: the record it points to, the similarity
// score the store computed, and whatever payload the store returned.
type ScoredPoint struct {
	RecordID string
	Score    float64
	Payload  map[string]any
}

// CollectionInfo summarizes one space's stored points.
type CollectionInfo struct {
	PointCount int
	Dimension  int
}

// Store is the interface the retriever and the seeder program against.
// Implementations translate model.Filter into their own query language and
// never leak store-specific types across this boundary.
type Store interface {
	// Upsert writes or overwrites points for the given space. Point IDs are
	// derived with DerivePointID so repeated seeding runs are idempotent.
	Upsert(ctx context.Context, space model.SpaceName, points []model.Point) error

	// Search returns up to topK nearest neighbors of query in the given
	// space, restricted to points matching filter.
	Search(ctx context.Context, space model.SpaceName, query []float32, topK int, filter model.Filter) ([]ScoredPoint, error)

	// RetrieveVector returns the vector stored for recordID in the given
	// space, or an error when no point exists for it.
	RetrieveVector(ctx context.Context, space model.SpaceName, recordID string) ([]float32, error)

	// Delete removes the points for the given record IDs from the space.
	Delete(ctx context.Context, space model.SpaceName, recordIDs []string) error

	// CollectionInfo reports how many points the space currently holds and
	// the dimension its vectors were created with.
	CollectionInfo(ctx context.Context, space model.SpaceName) (CollectionInfo, error)

	// Close releases the underlying client connection.
	Close() error
}
