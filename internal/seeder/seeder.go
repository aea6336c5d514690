// Package seeder is the multi-vector indexer / seeder: reads records
// from the document store, assembles per-space content from the weighted
// recipe table, embeds each space, and upserts into the vector store in
// batches, logging per-batch progress as it goes.
package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/toolscope/discovery-engine/internal/docstore"
	"github.com/toolscope/discovery-engine/internal/embedclient"
	"github.com/toolscope/discovery-engine/internal/model"
	"github.com/toolscope/discovery-engine/internal/vectorstore"
)

// DefaultBatchSize is the number of records embedded and upserted together
// when the caller does not configure one.
const DefaultBatchSize = 25

// BatchProgress reports the outcome of one seeded batch.
type BatchProgress struct {
	Processed  int
	Successful int
	Failed     int
}

// RecordError pairs a record with the error encountered seeding it.
type RecordError struct {
	RecordID string
	Space    model.SpaceName
	Err      error
}

// Report summarizes a full Seed run.
type Report struct {
	RecordsProcessed int
	RecordsFailed    int
	Errors           []RecordError
	// ExpectedCounts is accumulated by Seed from successful upserts, keyed
	// by space. Seed leaves ActualCounts nil; the caller fills it from
	// Validate's post-seed point counts.
	ExpectedCounts map[model.SpaceName]int
	ActualCounts   map[model.SpaceName]int
}

// Seeder drives the document store (read records) -> content assembly ->
// embedding -> vector-store upsert for the five named vector spaces.
type Seeder struct {
	docs      docstore.Store
	vectors   vectorstore.Store
	embedder  *embedclient.Client
	batchSize int
	spaces    []model.SpaceName
}

// Option configures a Seeder at construction time.
type Option func(*Seeder)

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(s *Seeder) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithSpaces restricts seeding to a subset of model.AllSpaces.
func WithSpaces(spaces []model.SpaceName) Option {
	return func(s *Seeder) {
		if len(spaces) > 0 {
			s.spaces = spaces
		}
	}
}

// New builds a Seeder.
func New(docs docstore.Store, vectors vectorstore.Store, embedder *embedclient.Client, opts ...Option) *Seeder {
	s := &Seeder{
		docs:      docs,
		vectors:   vectors,
		embedder:  embedder,
		batchSize: DefaultBatchSize,
		spaces:    model.AllSpaces,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Clear empties every targeted space before seeding, implementing the
// --clear entry point. It deletes by record ID rather than dropping
// collections, since the vector-store adapter exposes Delete(recordIDs)
// and not a destructive drop-collection operation.
func (s *Seeder) Clear(ctx context.Context, recordIDs []string) error {
	if len(recordIDs) == 0 {
		return nil
	}
	for _, space := range s.spaces {
		if err := s.vectors.Delete(ctx, space, recordIDs); err != nil {
			return fmt.Errorf("seeder.Clear: space %s: %w", space, err)
		}
	}
	return nil
}

// Seed reads up to limit records (0 = unlimited, fetched with a single
// query) matching filter and indexes them into every targeted space,
// batchSize records at a time.
func (s *Seeder) Seed(ctx context.Context, filter model.Filter, limit int) (Report, error) {
	report := Report{ExpectedCounts: map[model.SpaceName]int{}}

	// docstore.Store.Query treats a non-positive limit as "use its own
	// small default", not "unlimited" — pass an effectively-unbounded
	// value here so limit<=0 means every matching record, as the seeder's
	// own contract promises.
	queryLimit := limit
	if queryLimit <= 0 {
		queryLimit = math.MaxInt32
	}
	records, err := s.docs.Query(ctx, filter, queryLimit)
	if err != nil {
		return report, fmt.Errorf("seeder.Seed: query records: %w", err)
	}
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	for start := 0; start < len(records); start += s.batchSize {
		end := start + s.batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		progress := s.seedBatch(ctx, batch, &report)
		slog.Info("[SEEDER] batch complete",
			"processed", progress.Processed,
			"successful", progress.Successful,
			"failed", progress.Failed,
			"batchStart", start)
	}

	return report, nil
}

// seedBatch processes one batch sequentially (the seeder is I/O bound on
// the embedding call, not CPU bound, so there is no benefit to
// parallelizing within a batch). A per-record failure is logged and the
// batch continues.
func (s *Seeder) seedBatch(ctx context.Context, batch []model.Record, report *Report) BatchProgress {
	progress := BatchProgress{Processed: len(batch)}

	for _, space := range s.spaces {
		texts := make([]string, 0, len(batch))
		recordIdx := make([]int, 0, len(batch))
		for i, r := range batch {
			text, ok := assembleSpace(space, r)
			if !ok {
				continue
			}
			texts = append(texts, text)
			recordIdx = append(recordIdx, i)
		}
		if len(texts) == 0 {
			continue
		}

		vectors, err := s.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			slog.Error("[SEEDER] embedding failed for space, skipping space for this batch", "space", space, "err", err)
			for _, i := range recordIdx {
				report.Errors = append(report.Errors, RecordError{RecordID: batch[i].ID, Space: space, Err: err})
			}
			continue
		}

		points := make([]model.Point, 0, len(texts))
		for j, i := range recordIdx {
			r := batch[i]
			points = append(points, model.Point{
				RecordID: r.ID,
				Vectors:  map[model.SpaceName][]float32{space: vectors[j]},
				Payload:  recordPayload(r),
			})
		}

		if err := s.vectors.Upsert(ctx, space, points); err != nil {
			slog.Error("[SEEDER] upsert failed for space", "space", space, "err", err)
			for _, i := range recordIdx {
				report.Errors = append(report.Errors, RecordError{RecordID: batch[i].ID, Space: space, Err: err})
			}
			continue
		}
		report.ExpectedCounts[space] += len(points)
	}

	failedIDs := make(map[string]bool)
	for _, e := range report.Errors {
		failedIDs[e.RecordID] = true
	}
	for _, r := range batch {
		if failedIDs[r.ID] {
			progress.Failed++
		} else {
			progress.Successful++
		}
	}
	report.RecordsProcessed += progress.Processed
	report.RecordsFailed += progress.Failed
	return progress
}

// recordPayload projects the record fields readers filter and aggregate
// on, plus the indexing timestamp.
func recordPayload(r model.Record) map[string]any {
	interfaces := make([]string, len(r.Interfaces))
	for i, tag := range r.Interfaces {
		interfaces[i] = string(tag)
	}
	payload := map[string]any{
		"name":          r.Name,
		"description":   r.ShortDescription,
		"categories":    r.Categories,
		"functionality": r.Functionality,
		"interfaces":    interfaces,
		"deployment":    r.Deployment,
		"url":           r.URL,
		"indexedAt":     time.Now().UTC().Format(time.RFC3339),
	}
	if len(r.Pricing) > 0 {
		tiers := make([]string, 0, len(r.Pricing))
		for tier := range r.Pricing {
			tiers = append(tiers, tier)
		}
		sort.Strings(tiers)
		payload["pricingTiers"] = tiers
		payload["hasFreeTier"] = r.Pricing.HasFreeTier()
	}
	return payload
}

// Validate counts points in each targeted space and compares against the
// record count expected to have been indexed there. A mismatch is
// reported, not treated as failure, since soft-delete and partial
// reseeds are legal.
func (s *Seeder) Validate(ctx context.Context, expected map[model.SpaceName]int) (map[model.SpaceName]int, []string) {
	actual := make(map[model.SpaceName]int, len(s.spaces))
	var warnings []string
	for _, space := range s.spaces {
		info, err := s.vectors.CollectionInfo(ctx, space)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("space %s: count failed: %v", space, err))
			continue
		}
		actual[space] = info.PointCount
		if want, ok := expected[space]; ok && want != info.PointCount {
			warnings = append(warnings, fmt.Sprintf("space %s: expected %d points, found %d", space, want, info.PointCount))
		}
	}
	return actual, warnings
}
