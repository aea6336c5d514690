package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/toolscope/discovery-engine/internal/apperr"
	"github.com/toolscope/discovery-engine/internal/enrich"
	"github.com/toolscope/discovery-engine/internal/metrics"
	"github.com/toolscope/discovery-engine/internal/model"
	"github.com/toolscope/discovery-engine/internal/orchestrator"
)

var errUnknownFailure = errors.New("pipeline failed with no recorded stage error")

// Deps bundles everything the search handler needs, the way
// router.Dependencies bundles every handler's collaborators in one struct
// for New to wire.
type Deps struct {
	Orchestrator    *orchestrator.Orchestrator
	Enrich          *enrich.Service
	Metrics         *metrics.Pipeline
	RequestDeadline time.Duration
}

// Search handles the module's one inbound operation: POST /api/search.
func Search(deps Deps) http.HandlerFunc {
	deadline := deps.RequestDeadline
	if deadline <= 0 {
		deadline = 10 * time.Second
	}

	return func(w http.ResponseWriter, r *http.Request) {
		requestID := chimw.GetReqID(r.Context())

		var req EnhancedSearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, requestID, apperr.Wrap(apperr.KindInputInvalid, "httpapi.Search", err))
			return
		}

		if timeoutMS := req.Options.Performance.TimeoutMS; timeoutMS > 0 {
			deadline = time.Duration(timeoutMS) * time.Millisecond
		}

		if err := validate(req); err != nil {
			writeError(w, requestID, err)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), deadline)
		defer cancel()

		start := time.Now()
		run := deps.Orchestrator.Execute(ctx, req.Query)
		elapsed := time.Since(start)

		if deps.Metrics != nil {
			stageErrors := make(map[string]bool, len(run.Errors))
			for _, e := range run.Errors {
				stageErrors[e.Stage] = e.Recovered
			}
			durations := make(map[string]float64, len(run.NodeExecutionTimes))
			for stage, d := range run.NodeExecutionTimes {
				durations[stage] = d.Seconds()
			}
			deps.Metrics.ObserveRun(durations, stageErrors, string(run.FinalState), run.FailedStage)
		}

		if run.FinalState != model.StateCompleted {
			slog.Error("[HTTPAPI] search failed", "requestId", requestID, "stage", run.FailedStage)
			writeError(w, requestID, terminalError(run))
			return
		}

		resp := buildResponse(requestID, req, run, elapsed)

		if req.Options.ContextEnrichment.Enabled && deps.Enrich != nil {
			stats, _, err := deps.Enrich.Enrich(ctx, req.Query)
			if err != nil {
				slog.Warn("[HTTPAPI] context enrichment failed, omitting from response", "requestId", requestID, "err", err)
			} else {
				resp.EntityStatistics = &stats
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	}
}

func buildResponse(requestID string, req EnhancedSearchRequest, run orchestrator.Run, elapsed time.Duration) EnhancedSearchResponse {
	candidates := applySort(run.Result.Candidates, req.Options.Sort)

	resp := EnhancedSearchResponse{
		RequestID: requestID,
		Summary: Summary{
			Total:             len(run.Result.Candidates),
			ProcessingTimeMS:  elapsed.Milliseconds(),
			SourcesSearched:   run.Result.Stats.SourcesSucceeded,
			DuplicatesRemoved: run.Result.Stats.DuplicatesRemoved,
			SearchStrategy:    run.Plan.Strategy,
		},
	}

	if req.Options.Pagination.Page != 0 || req.Options.Pagination.Limit != 0 {
		page, info := paginate(candidates, req.Options.Pagination)
		resp.Candidates = page
		resp.Pagination = &info
	} else {
		resp.Candidates = candidates
	}

	if req.Options.IncludeSourceAttribution {
		resp.SourceAttribution = sourceAttribution(run)
	}

	if req.Options.DuplicateDetectionOptions.Enabled {
		resp.DuplicateDetection = &DuplicateDetectionSummary{
			GroupsFound:       len(run.Result.Stats.DuplicateGroups),
			DuplicatesRemoved: run.Result.Stats.DuplicatesRemoved,
			Groups:            run.Result.Stats.DuplicateGroups,
		}
	}

	if req.Options.IncludeExecutionMetrics {
		resp.Metrics = executionMetrics(run)
	}

	if req.Options.Debug {
		resp.Debug = debugInfo(run)
	}

	for _, e := range run.Errors {
		resp.Errors = append(resp.Errors, e.Stage+": "+e.Err.Error())
	}

	return resp
}

func writeError(w http.ResponseWriter, requestID string, err error) {
	code := "internal_error"
	status := http.StatusInternalServerError
	if kind, ok := apperr.Of(err); ok {
		code = string(kind)
		status = statusForKind(kind)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Code:      code,
		Message:   err.Error(),
		RequestID: requestID,
	})
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInputInvalid, apperr.KindPlanInvalid:
		return http.StatusBadRequest
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	case apperr.KindIntentUnparseable, apperr.KindEmbeddingUnavailable, apperr.KindEmbeddingDimensionMismatch,
		apperr.KindVectorStoreError, apperr.KindDocumentStoreError:
		return http.StatusBadGateway
	case apperr.KindFatalConfig:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// terminalError reconstructs a classified error from a failed Run's last
// stage error, since Orchestrator.Execute returns a Run rather than an
// error directly.
func terminalError(run orchestrator.Run) error {
	if len(run.Errors) == 0 {
		return apperr.Wrap(apperr.KindFatalConfig, run.FailedStage, errUnknownFailure)
	}
	last := run.Errors[len(run.Errors)-1]
	if _, ok := apperr.Of(last.Err); ok {
		return last.Err
	}
	kindForStage := map[string]apperr.Kind{
		"intent":  apperr.KindIntentUnparseable,
		"plan":    apperr.KindPlanInvalid,
		"execute": apperr.KindPartialFailure,
	}
	kind, ok := kindForStage[last.Stage]
	if !ok {
		kind = apperr.KindFatalConfig
	}
	return apperr.Wrap(kind, last.Stage, last.Err)
}
