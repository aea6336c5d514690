// Command server runs the discovery engine's HTTP surface: intent
// extraction, planning, and execution behind one search endpoint.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/qdrant/go-client/qdrant"
	"github.com/redis/go-redis/v9"

	"github.com/toolscope/discovery-engine/internal/cache"
	"github.com/toolscope/discovery-engine/internal/config"
	"github.com/toolscope/discovery-engine/internal/dedup"
	"github.com/toolscope/discovery-engine/internal/docstore"
	"github.com/toolscope/discovery-engine/internal/embedclient"
	"github.com/toolscope/discovery-engine/internal/enrich"
	"github.com/toolscope/discovery-engine/internal/executor"
	"github.com/toolscope/discovery-engine/internal/httpapi"
	"github.com/toolscope/discovery-engine/internal/intent"
	"github.com/toolscope/discovery-engine/internal/llmclient"
	"github.com/toolscope/discovery-engine/internal/metrics"
	appmiddleware "github.com/toolscope/discovery-engine/internal/middleware"
	"github.com/toolscope/discovery-engine/internal/orchestrator"
	"github.com/toolscope/discovery-engine/internal/planner"
	"github.com/toolscope/discovery-engine/internal/retriever"
	"github.com/toolscope/discovery-engine/internal/vectorstore"
)

const Version = "0.1.0"

// components bundles every long-lived collaborator main wires together, so
// run can close them in one place on shutdown.
type components struct {
	docs     docstore.Store
	vectors  vectorstore.Store
	embedder *embedclient.Client
	llm      *llmclient.Client
	redis    *redis.Client
}

func (c *components) Close() {
	if c.docs != nil {
		c.docs.Close()
	}
	if c.vectors != nil {
		c.vectors.Close()
	}
	if c.llm != nil {
		c.llm.Close()
	}
	if c.redis != nil {
		c.redis.Close()
	}
}

func wireComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect document store: %w", err)
	}
	docs := docstore.NewPgxStore(pool)

	var vectors vectorstore.Store
	if cfg.UseEnhancedCollection {
		host, port, err := splitHostPort(cfg.QdrantURL)
		if err != nil {
			return nil, fmt.Errorf("parse QDRANT_URL: %w", err)
		}
		qdrantClient, err := qdrant.NewClient(&qdrant.Config{
			Host:   host,
			Port:   port,
			APIKey: cfg.QdrantAPIKey,
			UseTLS: cfg.QdrantAPIKey != "",
		})
		if err != nil {
			return nil, fmt.Errorf("connect vector store: %w", err)
		}
		vectors, err = vectorstore.NewQdrantStore(ctx, vectorstore.QdrantConfig{
			Client:           qdrantClient,
			CollectionName:   "discovery_tools",
			Namespace:        cfg.PointNamespace,
			InitializeSchema: true,
		})
		if err != nil {
			return nil, fmt.Errorf("initialize vector store: %w", err)
		}
	} else {
		vectors = vectorstore.NewPgvectorStore(pool)
	}

	provider, err := embedclient.NewVertexProvider(ctx, cfg.GCPProject, cfg.VertexAILocation, cfg.EmbeddingModel)
	if err != nil {
		return nil, fmt.Errorf("create embedding provider: %w", err)
	}
	embedder, err := embedclient.New(provider, cfg.EmbeddingCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create embedding client: %w", err)
	}

	llm, err := llmclient.New(ctx, cfg.GCPProject, cfg.VertexAILocation, cfg.LLMModel)
	if err != nil {
		return nil, fmt.Errorf("create LLM chat client: %w", err)
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}

	return &components{docs: docs, vectors: vectors, embedder: embedder, llm: llm, redis: redisClient}, nil
}

func wirePipeline(c *components, cfg *config.Config) *orchestrator.Orchestrator {
	ex := intent.New(c.llm)
	pl := planner.New(c.llm,
		planner.WithRuleBasedThreshold(cfg.RuleBasedThreshold),
		planner.WithEmptyPlanThreshold(cfg.EmptyPlanThreshold),
	)
	r := retriever.New(c.vectors, cfg.VectorStorePerSpaceTimeout)
	dedupCfg := dedup.DefaultConfig()
	dedupCfg.Thresholds.Content = cfg.DedupThreshold
	dedupCfg.CacheSize = cfg.DedupPairCacheSize
	dedupCfg.MaxComparisonItems = cfg.DedupMaxComparisonItems
	d, err := dedup.New(dedupCfg)
	if err != nil {
		slog.Error("[SERVER] invalid dedup config, falling back to defaults", "err", err)
		d, _ = dedup.New(dedup.DefaultConfig())
	}
	exec := executor.New(c.embedder, r, c.docs, d, executor.WithStructuredTimeout(cfg.StructuredSourceTimeout))

	return orchestrator.New(ex, pl, exec)
}

func wireEnrichment(c *components, cfg *config.Config) *enrich.Service {
	var enrichCache enrich.Cache
	if c.redis != nil {
		enrichCache = cache.NewRedisEntityStatsCache(c.redis, cfg.EnrichCacheTTL)
	} else {
		enrichCache = cache.NewEntityStatsCache(cfg.EnrichCacheTTL, cfg.EnrichCacheSize)
	}
	return enrich.New(c.embedder, c.vectors, enrichCache)
}

func wireHealth(c *components, version string) httpapi.HealthDeps {
	return httpapi.HealthDeps{
		Embedder: func(ctx context.Context) error {
			_, err := c.embedder.EmbedQueries(ctx, []string{"healthcheck"})
			return err
		},
		VectorStore: func(ctx context.Context) error {
			_, err := c.vectors.Search(ctx, "semantic", make([]float32, 1024), 1, nil)
			return err
		},
		DocumentStore: func(ctx context.Context) error {
			_, err := c.docs.Query(ctx, nil, 1)
			return err
		},
		Version: version,
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	comps, err := wireComponents(ctx, cfg)
	if err != nil {
		return fmt.Errorf("wire components: %w", err)
	}
	defer comps.Close()

	pipeline := wirePipeline(comps, cfg)
	enrichment := wireEnrichment(comps, cfg)

	reg := prometheus.NewRegistry()
	pipelineMetrics := metrics.NewPipeline(reg)
	httpMetrics := appmiddleware.NewMetrics(reg)

	var rateLimiter *appmiddleware.RateLimiter
	if cfg.RateLimitMaxRequests > 0 {
		rateLimiter = appmiddleware.NewRateLimiter(appmiddleware.RateLimiterConfig{
			MaxRequests: cfg.RateLimitMaxRequests,
			Window:      cfg.RateLimitWindow,
		})
		defer rateLimiter.Stop()
	}

	router := httpapi.New(httpapi.Dependencies{
		Search: httpapi.Deps{
			Orchestrator:    pipeline,
			Enrich:          enrichment,
			Metrics:         pipelineMetrics,
			RequestDeadline: cfg.RequestDeadline,
		},
		Health:      wireHealth(comps, Version),
		FrontendURL: cfg.FrontendURL,
		MetricsReg:  reg,
		Metrics:     httpMetrics,
		RateLimiter: rateLimiter,
	})

	srv := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("[SERVER] discovery-engine starting", "version", Version, "port", cfg.Port, "enhancedCollection", cfg.UseEnhancedCollection)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("[SERVER] received signal, shutting down gracefully", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("[SERVER] stopped")
	return nil
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

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
