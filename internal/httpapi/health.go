package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Prober is a reachability check against one external collaborator: make
// a minimal call, report the error.
type Prober func(ctx context.Context) error

// HealthDeps names the collaborators the health endpoint probes: the
// embedding provider, the vector store, and the document store.
type HealthDeps struct {
	Embedder      Prober
	VectorStore   Prober
	DocumentStore Prober
	Version       string
}

type componentStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type healthResponse struct {
	Status  string                      `json:"status"`
	Version string                      `json:"version"`
	Checks  map[string]componentStatus  `json:"checks"`
}

// Health returns a handler that reports the discovery engine's health and
// the reachability of every external collaborator it depends on, served
// unauthenticated at GET /api/health.
func Health(deps HealthDeps) http.HandlerFunc {
	probes := map[string]Prober{
		"embedder":      deps.Embedder,
		"vectorStore":   deps.VectorStore,
		"documentStore": deps.DocumentStore,
	}
	version := deps.Version
	if version == "" {
		version = "0.0.0"
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		checks := make(map[string]componentStatus, len(probes))
		status := "ok"
		httpStatus := http.StatusOK

		for name, probe := range probes {
			if probe == nil {
				checks[name] = componentStatus{Status: "unconfigured"}
				continue
			}
			if err := probe(ctx); err != nil {
				checks[name] = componentStatus{Status: "unreachable", Error: err.Error()}
				status = "degraded"
				httpStatus = http.StatusServiceUnavailable
				continue
			}
			checks[name] = componentStatus{Status: "ok"}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(httpStatus)
		json.NewEncoder(w).Encode(healthResponse{Status: status, Version: version, Checks: checks})
	}
}
