// Package config loads discovery-engine configuration from environment
// variables through small typed helpers with defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment
// variables. It is immutable after Load() returns.
type Config struct {
	Port        int
	Environment string

	// Vector store
	QdrantURL             string
	QdrantAPIKey          string
	UseEnhancedCollection bool
	PointNamespace        string

	// Document store
	DatabaseURL      string
	DatabaseMaxConns int

	// Embedding provider
	GCPProject         string
	VertexAILocation   string
	EmbeddingModel     string
	EmbeddingTimeout   time.Duration
	EmbeddingCacheSize int

	// LLM chat
	LLMModel   string
	LLMTimeout time.Duration

	// Fusion
	DefaultFusionStrategy string
	DefaultRRFConstant    int
	DefaultMaxCandidates  int

	// Dedup
	DedupThreshold          float64
	DedupPairCacheSize      int
	DedupMaxComparisonItems int

	// Context enrichment
	EnrichCacheTTL  time.Duration
	EnrichCacheSize int
	RedisAddr       string

	// Planner
	RuleBasedThreshold float64
	EmptyPlanThreshold float64

	// Executor
	VectorStorePerSpaceTimeout time.Duration
	StructuredSourceTimeout    time.Duration

	// Request-level deadline covering the whole pipeline run.
	RequestDeadline time.Duration

	// Seeder
	SeederBatchSize int

	// HTTP surface (ambient)
	FrontendURL          string
	RateLimitMaxRequests int
	RateLimitWindow      time.Duration
}

// Load reads configuration from environment variables. Required variables
// (QDRANT_URL, DATABASE_URL) cause an error if missing. Optional variables
// use sensible defaults.
func Load() (*Config, error) {
	qdrantURL := os.Getenv("QDRANT_URL")
	if qdrantURL == "" {
		return nil, fmt.Errorf("config.Load: QDRANT_URL is required")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("config.Load: DATABASE_URL is required")
	}

	cfg := &Config{
		Port:        envInt("PORT", 8080),
		Environment: envStr("ENVIRONMENT", "development"),

		QdrantURL:             qdrantURL,
		QdrantAPIKey:          envStr("QDRANT_API_KEY", ""),
		UseEnhancedCollection: envBool("USE_ENHANCED_COLLECTION", true),
		PointNamespace:        envStr("POINT_ID_NAMESPACE", "discovery-engine"),

		DatabaseURL:      dbURL,
		DatabaseMaxConns: envInt("DATABASE_MAX_CONNS", 25),

		GCPProject:         envStr("GOOGLE_CLOUD_PROJECT", ""),
		VertexAILocation:   envStr("VERTEX_AI_LOCATION", "us-east4"),
		EmbeddingModel:     envStr("EMBEDDING_MODEL", "text-embedding-004"),
		EmbeddingTimeout:   envDuration("EMBEDDING_TIMEOUT_MS", 5*time.Second),
		EmbeddingCacheSize: envInt("EMBEDDING_CACHE_SIZE", 10000),

		LLMModel:   envStr("LLM_MODEL", "gemini-3-pro-preview"),
		LLMTimeout: envDuration("LLM_TIMEOUT_MS", 8*time.Second),

		DefaultFusionStrategy: envStr("DEFAULT_FUSION_STRATEGY", "rrf"),
		DefaultRRFConstant:    envInt("DEFAULT_RRF_CONSTANT", 60),
		DefaultMaxCandidates:  envInt("DEFAULT_MAX_CANDIDATES", 100),

		DedupThreshold:          envFloat("DEDUP_THRESHOLD", 0.8),
		DedupPairCacheSize:      envInt("DEDUP_PAIR_CACHE_SIZE", 10000),
		DedupMaxComparisonItems: envInt("DEDUP_MAX_COMPARISON_ITEMS", 1000),

		EnrichCacheTTL:  envDuration("ENRICH_CACHE_TTL_MS", 15*time.Minute),
		EnrichCacheSize: envInt("ENRICH_CACHE_SIZE", 2000),
		RedisAddr:       envStr("REDIS_ADDR", ""),

		RuleBasedThreshold: envFloat("PLANNER_RULE_BASED_THRESHOLD", 0.4),
		EmptyPlanThreshold: envFloat("PLANNER_EMPTY_PLAN_THRESHOLD", 0.15),

		VectorStorePerSpaceTimeout: envDuration("VECTOR_STORE_TIMEOUT_MS", 5*time.Second),
		StructuredSourceTimeout:    envDuration("STRUCTURED_SOURCE_TIMEOUT_MS", 2*time.Second),

		RequestDeadline: envDuration("REQUEST_DEADLINE_MS", 10*time.Second),

		SeederBatchSize: envInt("SEEDER_BATCH_SIZE", 25),

		FrontendURL:          envStr("FRONTEND_URL", ""),
		RateLimitMaxRequests: envInt("RATE_LIMIT_MAX_REQUESTS", 60),
		RateLimitWindow:      envDuration("RATE_LIMIT_WINDOW_MS", time.Minute),
	}

	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

// envDuration reads a millisecond count from the environment; every
// timeout knob here is expressed in ms.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return time.Duration(n) * time.Millisecond
}
