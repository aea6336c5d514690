package docstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/toolscope/discovery-engine/internal/model"
)

// PgxStore implements Store against a `records` table with explicit
// column lists in every query.
type PgxStore struct {
	pool *pgxpool.Pool
}

// NewPgxStore wraps an existing pool.
func NewPgxStore(pool *pgxpool.Pool) *PgxStore {
	return &PgxStore{pool: pool}
}

var _ Store = (*PgxStore)(nil)

const selectColumns = `
	id, name, short_description, long_description, categories, functionality,
	search_keywords, use_cases, interfaces, deployment, technical, pricing, url, updated_at`

// Query returns up to limit records matching filter, newest first.
func (s *PgxStore) Query(ctx context.Context, filter model.Filter, limit int) ([]model.Record, error) {
	if limit <= 0 {
		limit = 50
	}

	where, args, err := toSQLWhere(filter, 1)
	if err != nil {
		return nil, fmt.Errorf("docstore.Query: %w", err)
	}
	args = append(args, limit)
	limitParam := fmt.Sprintf("$%d", len(args))

	sql := fmt.Sprintf(`SELECT %s FROM records %s ORDER BY updated_at DESC LIMIT %s`, selectColumns, where, limitParam)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("docstore.Query: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// BatchGet fetches records by ID in one round trip.
func (s *PgxStore) BatchGet(ctx context.Context, ids []string) ([]model.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	sql := fmt.Sprintf(`SELECT %s FROM records WHERE id = ANY($1)`, selectColumns)
	rows, err := s.pool.Query(ctx, sql, ids)
	if err != nil {
		return nil, fmt.Errorf("docstore.BatchGet: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]model.Record, error) {
	var records []model.Record
	for rows.Next() {
		var r model.Record
		var technicalJSON, pricingJSON []byte
		var interfaces []string

		err := rows.Scan(
			&r.ID, &r.Name, &r.ShortDescription, &r.LongDescription, &r.Categories, &r.Functionality,
			&r.SearchKeywords, &r.UseCases, &interfaces, &r.Deployment, &technicalJSON, &pricingJSON,
			&r.URL, &r.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("docstore: scan: %w", err)
		}
		r.Interfaces = make([]model.InterfaceTag, len(interfaces))
		for i, v := range interfaces {
			r.Interfaces[i] = model.InterfaceTag(v)
		}

		if len(technicalJSON) > 0 {
			var t model.TechnicalAttributes
			if err := json.Unmarshal(technicalJSON, &t); err != nil {
				return nil, fmt.Errorf("docstore: decode technical: %w", err)
			}
			r.Technical = &t
		}
		if len(pricingJSON) > 0 {
			if err := json.Unmarshal(pricingJSON, &r.Pricing); err != nil {
				return nil, fmt.Errorf("docstore: decode pricing: %w", err)
			}
		}

		records = append(records, r)
	}
	return records, rows.Err()
}

// Upsert writes or overwrites records by ID, used by the seeder.
func (s *PgxStore) Upsert(ctx context.Context, records []model.Record) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		technicalJSON, err := json.Marshal(r.Technical)
		if err != nil {
			return fmt.Errorf("docstore.Upsert: marshal technical for %s: %w", r.ID, err)
		}
		pricingJSON, err := json.Marshal(r.Pricing)
		if err != nil {
			return fmt.Errorf("docstore.Upsert: marshal pricing for %s: %w", r.ID, err)
		}

		batch.Queue(`
			INSERT INTO records (
				id, name, short_description, long_description, categories, functionality,
				search_keywords, use_cases, interfaces, deployment, technical, pricing, url, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				short_description = EXCLUDED.short_description,
				long_description = EXCLUDED.long_description,
				categories = EXCLUDED.categories,
				functionality = EXCLUDED.functionality,
				search_keywords = EXCLUDED.search_keywords,
				use_cases = EXCLUDED.use_cases,
				interfaces = EXCLUDED.interfaces,
				deployment = EXCLUDED.deployment,
				technical = EXCLUDED.technical,
				pricing = EXCLUDED.pricing,
				url = EXCLUDED.url,
				updated_at = EXCLUDED.updated_at`,
			r.ID, r.Name, r.ShortDescription, r.LongDescription, r.Categories, r.Functionality,
			r.SearchKeywords, r.UseCases, interfacesToStrings(r.Interfaces), r.Deployment,
			technicalJSON, pricingJSON, r.URL, r.UpdatedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < len(records); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("docstore.Upsert: record %d: %w", i, err)
		}
	}
	return nil
}

// Close releases the pool.
func (s *PgxStore) Close() error {
	s.pool.Close()
	return nil
}

func interfacesToStrings(tags []model.InterfaceTag) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = string(t)
	}
	return out
}
