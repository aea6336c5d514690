package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/toolscope/discovery-engine/internal/model"
)

// PgvectorStore is the legacy layout: one table per named vector space,
// each with its own pgvector column, the way a deployment that predates
// named vectors would grow a table at a time.
type PgvectorStore struct {
	pool *pgxpool.Pool
}

// NewPgvectorStore wraps an existing pool. Table creation is handled by
// migrations.
func NewPgvectorStore(pool *pgxpool.Pool) *PgvectorStore {
	return &PgvectorStore{pool: pool}
}

func tableName(space model.SpaceName) string {
	return "vectors_" + strings.ReplaceAll(string(space), ".", "_")
}

// Upsert writes rows into the space's table, keyed by a deterministic point
// ID so re-seeding a record overwrites its previous row instead of adding a
// duplicate.
func (s *PgvectorStore) Upsert(ctx context.Context, space model.SpaceName, points []model.Point) error {
	if len(points) == 0 {
		return nil
	}

	table := tableName(space)
	batch := &pgx.Batch{}

	for _, p := range points {
		id := p.ID
		if id == "" {
			id = DerivePointID(string(space), p.RecordID)
		}
		vec, ok := p.Vectors[space]
		if !ok {
			return fmt.Errorf("vectorstore.Upsert: point %s has no vector for space %s", p.RecordID, space)
		}
		payloadJSON, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("vectorstore.Upsert: payload for %s: %w", p.RecordID, err)
		}

		batch.Queue(fmt.Sprintf(`
			INSERT INTO %s (id, record_id, embedding, payload)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE
			SET embedding = EXCLUDED.embedding, payload = EXCLUDED.payload`, table),
			id, p.RecordID, pgvector.NewVector(vec), payloadJSON,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < len(points); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("vectorstore.Upsert: row %d into %s: %w", i, table, err)
		}
	}
	return nil
}

// Search runs a cosine-distance nearest-neighbor query against the space's
// table, applying filter as a WHERE clause over the payload JSONB column.
func (s *PgvectorStore) Search(ctx context.Context, space model.SpaceName, query []float32, topK int, filter model.Filter) ([]ScoredPoint, error) {
	table := tableName(space)
	embedding := pgvector.NewVector(query)

	where, args, err := toSQLWhere(filter, 2)
	if err != nil {
		return nil, fmt.Errorf("vectorstore.Search: filter: %w", err)
	}
	args = append([]any{embedding}, args...)
	args = append(args, topK)
	limitParam := fmt.Sprintf("$%d", len(args))

	sql := fmt.Sprintf(`
		SELECT record_id, 1 - (embedding <=> $1::vector) AS similarity, payload
		FROM %s
		%s
		ORDER BY embedding <=> $1::vector
		LIMIT %s`, table, where, limitParam)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("vectorstore.Search: query %s: %w", table, err)
	}
	defer rows.Close()

	var results []ScoredPoint
	for rows.Next() {
		var recordID string
		var score float64
		var payloadJSON []byte
		if err := rows.Scan(&recordID, &score, &payloadJSON); err != nil {
			return nil, fmt.Errorf("vectorstore.Search: scan: %w", err)
		}
		var payload map[string]any
		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &payload); err != nil {
				return nil, fmt.Errorf("vectorstore.Search: payload decode: %w", err)
			}
		}
		results = append(results, ScoredPoint{RecordID: recordID, Score: score, Payload: payload})
	}
	return results, nil
}

// Delete removes rows for recordIDs from the space's table.
func (s *PgvectorStore) Delete(ctx context.Context, space model.SpaceName, recordIDs []string) error {
	if len(recordIDs) == 0 {
		return nil
	}
	table := tableName(space)
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE record_id = ANY($1)`, table), recordIDs)
	if err != nil {
		return fmt.Errorf("vectorstore.Delete: %s: %w", table, err)
	}
	return nil
}

// RetrieveVector returns the embedding stored for recordID in the space's
// table.
func (s *PgvectorStore) RetrieveVector(ctx context.Context, space model.SpaceName, recordID string) ([]float32, error) {
	table := tableName(space)
	var vec pgvector.Vector
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT embedding FROM %s WHERE record_id = $1`, table), recordID).Scan(&vec)
	if err != nil {
		return nil, fmt.Errorf("vectorstore.RetrieveVector: %s from %s: %w", recordID, table, err)
	}
	return vec.Slice(), nil
}

// CollectionInfo counts the rows in the space's table.
func (s *PgvectorStore) CollectionInfo(ctx context.Context, space model.SpaceName) (CollectionInfo, error) {
	table := tableName(space)
	var count int
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, table)).Scan(&count); err != nil {
		return CollectionInfo{}, fmt.Errorf("vectorstore.CollectionInfo: %s: %w", table, err)
	}
	return CollectionInfo{PointCount: count, Dimension: model.VectorDimension}, nil
}

// Close releases the pool. The pool is typically shared with the document
// store, so callers may choose not to call this until process shutdown.
func (s *PgvectorStore) Close() error {
	s.pool.Close()
	return nil
}

// toSQLWhere translates a flat filter into a "WHERE ..." clause over the
// payload JSONB column, numbering placeholders starting at startParam.
func toSQLWhere(filter model.Filter, startParam int) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}

	var clauses []string
	var args []any
	param := startParam

	for _, c := range filter {
		switch c.Op {
		case model.FilterEq:
			clauses = append(clauses, fmt.Sprintf("payload->>'%s' = $%d", c.Field, param))
			args = append(args, fmt.Sprint(c.Value))
			param++
		case model.FilterContains:
			clauses = append(clauses, fmt.Sprintf("payload->'%s' ? $%d", c.Field, param))
			args = append(args, fmt.Sprint(c.Value))
			param++
		case model.FilterLT, model.FilterLTE, model.FilterGT, model.FilterGTE:
			op, err := sqlOp(c.Op)
			if err != nil {
				return "", nil, err
			}
			clauses = append(clauses, fmt.Sprintf("(payload->>'%s')::numeric %s $%d", c.Field, op, param))
			args = append(args, c.Value)
			param++
		default:
			return "", nil, fmt.Errorf("unsupported operator %q", c.Op)
		}
	}

	return "WHERE " + strings.Join(clauses, " AND "), args, nil
}

func sqlOp(op model.FilterOp) (string, error) {
	switch op {
	case model.FilterLT:
		return "<", nil
	case model.FilterLTE:
		return "<=", nil
	case model.FilterGT:
		return ">", nil
	case model.FilterGTE:
		return ">=", nil
	default:
		return "", fmt.Errorf("not a range operator: %q", op)
	}
}
