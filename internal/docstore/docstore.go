// Package docstore is the document-store adapter: structured filter
// queries and batch fetches of catalog records, backed by Postgres via pgx.
package docstore

import (
	"context"

	"github.com/toolscope/discovery-engine/internal/model"
)

// Store is the interface the executor and the seeder program against.
type Store interface {
	// Query returns up to limit records matching filter, newest first.
	Query(ctx context.Context, filter model.Filter, limit int) ([]model.Record, error)

	// BatchGet fetches records by ID, skipping any ID that does not exist.
	// The result order does not necessarily match the input order.
	BatchGet(ctx context.Context, ids []string) ([]model.Record, error)

	// Upsert writes or overwrites records, used by the seeder.
	Upsert(ctx context.Context, records []model.Record) error

	// Close releases the underlying connection pool.
	Close() error
}
