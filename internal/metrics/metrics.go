// Package metrics registers the Prometheus collectors for the discovery
// pipeline's own stages, the domain-specific counterpart to
// internal/middleware's HTTP-level request metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline holds the Prometheus collectors for one orchestrator run:
// per-stage timing, per-source fan-out errors, and dedup outcomes,
// mirroring internal/middleware.Metrics's shape (CounterVec/HistogramVec
// registered once, updated per request) but scoped to pipeline stages
// instead of HTTP routes.
type Pipeline struct {
	StageDuration   *prometheus.HistogramVec
	StageErrors     *prometheus.CounterVec
	SourceErrors    *prometheus.CounterVec
	SourceDuration  *prometheus.HistogramVec
	DuplicatesFound prometheus.Counter
	SearchesTotal   prometheus.Counter
	PipelineFailed  *prometheus.CounterVec
}

// NewPipeline creates and registers the pipeline's Prometheus metrics.
func NewPipeline(reg prometheus.Registerer) *Pipeline {
	p := &Pipeline{
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_stage_duration_seconds",
				Help:    "Duration of each orchestrator stage (intent, plan, execute).",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"stage"},
		),
		StageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_stage_errors_total",
				Help: "Total number of stage failures, by stage and whether a recovery strategy absorbed it.",
			},
			[]string{"stage", "recovered"},
		),
		SourceErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_source_errors_total",
				Help: "Total number of retrieval source failures during execution, by source kind.",
			},
			[]string{"source", "kind"},
		),
		SourceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pipeline_source_duration_seconds",
				Help:    "Duration of each vector or structured source's fan-out call.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"source", "kind"},
		),
		DuplicatesFound: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pipeline_duplicates_removed_total",
				Help: "Total number of candidates folded into a duplicate group by the duplicate detector.",
			},
		),
		SearchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pipeline_searches_total",
				Help: "Total number of orchestrator runs started.",
			},
		),
		PipelineFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_runs_failed_total",
				Help: "Total number of orchestrator runs that ended in FAILED, by failing stage.",
			},
			[]string{"stage"},
		),
	}

	reg.MustRegister(
		p.StageDuration, p.StageErrors, p.SourceErrors, p.SourceDuration,
		p.DuplicatesFound, p.SearchesTotal, p.PipelineFailed,
	)
	return p
}

// ObserveRun records one orchestrator.Run's outcome: per-stage timings,
// stage-level errors (tagged recovered/unrecovered), and a final-failure
// counter if the run ended in FAILED.
func (p *Pipeline) ObserveRun(stageDurations map[string]float64, stageErrors map[string]bool, finalState string, failedStage string) {
	p.SearchesTotal.Inc()
	for stage, seconds := range stageDurations {
		p.StageDuration.WithLabelValues(stage).Observe(seconds)
	}
	for stage, recovered := range stageErrors {
		p.StageErrors.WithLabelValues(stage, boolLabel(recovered)).Inc()
	}
	if finalState == "FAILED" {
		p.PipelineFailed.WithLabelValues(failedStage).Inc()
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
