package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/toolscope/discovery-engine/internal/middleware"
)

// Dependencies bundles everything New needs to wire the router.
type Dependencies struct {
	Search      Deps
	Health      HealthDeps
	FrontendURL string
	MetricsReg  *prometheus.Registry
	Metrics     *middleware.Metrics
	RateLimiter *middleware.RateLimiter
}

// New builds the chi router for the discovery engine's one inbound
// operation: chi's own RequestID/Recoverer first, then
// SecurityHeaders/Logging/CORS/Monitoring, then route-specific timeouts
// and rate limiting.
func New(deps Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Logging)
	if deps.FrontendURL != "" {
		r.Use(middleware.CORS(deps.FrontendURL))
	}
	if deps.Metrics != nil {
		r.Use(middleware.Monitoring(deps.Metrics))
	}

	r.Get("/api/health", Health(deps.Health))
	if deps.MetricsReg != nil {
		r.Handle("/metrics", middleware.MetricsHandler(deps.MetricsReg))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		if deps.RateLimiter != nil {
			r.Use(middleware.RateLimit(deps.RateLimiter))
		}
		r.Post("/api/search", Search(deps.Search))
	})

	r.NotFound(notFound)

	return r
}

func notFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	json.NewEncoder(w).Encode(ErrorResponse{Code: "not_found", Message: "route not found"})
}
