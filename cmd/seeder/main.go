// Command seeder drives the multi-vector indexer, reading catalog
// records from the document store and indexing them into every named
// vector space.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qdrant/go-client/qdrant"
	"github.com/spf13/cobra"

	"github.com/toolscope/discovery-engine/internal/config"
	"github.com/toolscope/discovery-engine/internal/docstore"
	"github.com/toolscope/discovery-engine/internal/embedclient"
	"github.com/toolscope/discovery-engine/internal/model"
	"github.com/toolscope/discovery-engine/internal/seeder"
	"github.com/toolscope/discovery-engine/internal/vectorstore"
)

func main() {
	var (
		limit      int
		clear      bool
		verbose    bool
		vectorType []string
		batchSize  int
	)

	root := &cobra.Command{
		Use:   "seeder",
		Short: "Seed the vector store's named spaces from the document store's catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				slog.SetLogLoggerLevel(slog.LevelDebug)
			}

			spaces, err := parseSpaces(vectorType)
			if err != nil {
				return exitErr{code: 2, err: err}
			}

			cfg, err := config.Load()
			if err != nil {
				return exitErr{code: 2, err: fmt.Errorf("load config: %w", err)}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
			defer cancel()

			docs, vectors, embedder, err := wireDependencies(ctx, cfg)
			if err != nil {
				return exitErr{code: 1, err: err}
			}
			defer docs.Close()
			defer vectors.Close()

			opts := []seeder.Option{}
			if batchSize > 0 {
				opts = append(opts, seeder.WithBatchSize(batchSize))
			} else if cfg.SeederBatchSize > 0 {
				opts = append(opts, seeder.WithBatchSize(cfg.SeederBatchSize))
			}
			if len(spaces) > 0 {
				opts = append(opts, seeder.WithSpaces(spaces))
			}
			s := seeder.New(docs, vectors, embedder, opts...)

			if clear {
				ids, err := allRecordIDs(ctx, docs)
				if err != nil {
					return exitErr{code: 1, err: fmt.Errorf("list records for --clear: %w", err)}
				}
				if err := s.Clear(ctx, ids); err != nil {
					return exitErr{code: 1, err: fmt.Errorf("clear: %w", err)}
				}
				slog.Info("[SEEDER] cleared target spaces", "recordCount", len(ids))
			}

			report, err := s.Seed(ctx, nil, limit)
			if err != nil {
				return exitErr{code: 1, err: err}
			}

			slog.Info("[SEEDER] seed complete",
				"processed", report.RecordsProcessed,
				"failed", report.RecordsFailed,
				"errorCount", len(report.Errors))

			actual, warnings := s.Validate(ctx, report.ExpectedCounts)
			report.ActualCounts = actual
			for _, w := range warnings {
				slog.Warn("[SEEDER] post-seed validation", "warning", w)
			}

			if report.RecordsFailed > 0 {
				return exitErr{code: 1, err: fmt.Errorf("%d record(s) failed to seed", report.RecordsFailed)}
			}
			return nil
		},
	}

	root.Flags().IntVar(&limit, "limit", 0, "maximum number of records to seed (0 = unlimited)")
	root.Flags().BoolVar(&clear, "clear", false, "empty the targeted vector spaces before seeding")
	root.Flags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	root.Flags().StringSliceVar(&vectorType, "vectorTypes", nil, "restrict seeding to these spaces (default: all)")
	root.Flags().IntVar(&batchSize, "batchSize", 0, "override the seeder's default batch size")

	if err := root.Execute(); err != nil {
		var ee exitErr
		if ok := asExitErr(err, &ee); ok {
			fmt.Fprintln(os.Stderr, ee.err)
			os.Exit(ee.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

type exitErr struct {
	code int
	err  error
}

func (e exitErr) Error() string { return e.err.Error() }

func asExitErr(err error, target *exitErr) bool {
	if ee, ok := err.(exitErr); ok {
		*target = ee
		return true
	}
	return false
}

func parseSpaces(names []string) ([]model.SpaceName, error) {
	if len(names) == 0 {
		return nil, nil
	}
	valid := make(map[model.SpaceName]bool, len(model.AllSpaces))
	for _, s := range model.AllSpaces {
		valid[s] = true
	}
	spaces := make([]model.SpaceName, 0, len(names))
	for _, n := range names {
		space := model.SpaceName(strings.TrimSpace(n))
		if !valid[space] {
			return nil, fmt.Errorf("unknown vector space %q", n)
		}
		spaces = append(spaces, space)
	}
	return spaces, nil
}

func allRecordIDs(ctx context.Context, docs docstore.Store) ([]string, error) {
	records, err := docs.Query(ctx, nil, math.MaxInt32)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids, nil
}

func wireDependencies(ctx context.Context, cfg *config.Config) (docstore.Store, vectorstore.Store, *embedclient.Client, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect document store: %w", err)
	}
	docs := docstore.NewPgxStore(pool)

	// The seeder must write the same layout the server reads.
	var vectors vectorstore.Store
	if cfg.UseEnhancedCollection {
		host, port, err := splitHostPort(cfg.QdrantURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("parse QDRANT_URL: %w", err)
		}
		qdrantClient, err := qdrant.NewClient(&qdrant.Config{
			Host:   host,
			Port:   port,
			APIKey: cfg.QdrantAPIKey,
			UseTLS: cfg.QdrantAPIKey != "",
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect vector store: %w", err)
		}
		vectors, err = vectorstore.NewQdrantStore(ctx, vectorstore.QdrantConfig{
			Client:           qdrantClient,
			CollectionName:   "discovery_tools",
			Namespace:        cfg.PointNamespace,
			InitializeSchema: true,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("initialize vector store: %w", err)
		}
	} else {
		vectors = vectorstore.NewPgvectorStore(pool)
	}

	provider, err := embedclient.NewVertexProvider(ctx, cfg.GCPProject, cfg.VertexAILocation, cfg.EmbeddingModel)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create embedding provider: %w", err)
	}
	embedder, err := embedclient.New(provider, cfg.EmbeddingCacheSize)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create embedding client: %w", err)
	}

	return docs, vectors, embedder, nil
}

func splitHostPort(raw string) (string, int, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", 0, err
	}
	host := u.Hostname()
	if host == "" {
		host = raw
	}
	port := 6334
	if p := u.Port(); p != "" {
		parsed, err := strconv.Atoi(p)
		if err != nil {
			return "", 0, fmt.Errorf("invalid port %q", p)
		}
		port = parsed
	}
	return host, port, nil
}
