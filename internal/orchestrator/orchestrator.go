// Package orchestrator is the pipeline orchestrator: a linear state
// machine stitching intent extraction, planning, and execution
// together, tracking the path taken, per-stage timings, and an
// append-only error log.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/toolscope/discovery-engine/internal/executor"
	"github.com/toolscope/discovery-engine/internal/intent"
	"github.com/toolscope/discovery-engine/internal/model"
	"github.com/toolscope/discovery-engine/internal/planner"
)

// StageError is one entry in the orchestrator's append-only error log.
type StageError struct {
	Stage     string
	Err       error
	Recovered bool
}

// Run is the full record of one pipeline execution: every state visited,
// how long each stage took, and every error encountered (recovered or
// terminal).
type Run struct {
	ExecutionPath      []model.PipelineState
	NodeExecutionTimes map[string]time.Duration
	Errors             []StageError
	FinalState         model.PipelineState
	FailedStage        string

	Intent model.Intent
	Plan   model.RetrievalPlan
	Result executor.Result
}

// RecoverFunc decides whether a stage's error is recoverable. When it
// returns true, the orchestrator logs the error, continues with the
// stage's zero value, and advances to the next stage instead of failing
// the run. A nil RecoverFunc for a stage means every error there is
// terminal.
type RecoverFunc func(stage string, err error) bool

// Orchestrator wires the intent extractor, the planner, and the executor into one linear run.
type Orchestrator struct {
	extractor *intent.Extractor
	planner   *planner.Planner
	executor  *executor.Executor
	recover   map[string]RecoverFunc
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithRecovery declares a recovery strategy for the named stage ("intent",
// "plan", "execute"). Without one, any error at that stage is terminal.
func WithRecovery(stage string, fn RecoverFunc) Option {
	return func(o *Orchestrator) { o.recover[stage] = fn }
}

// New builds an Orchestrator.
func New(extractor *intent.Extractor, pl *planner.Planner, exec *executor.Executor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		extractor: extractor,
		planner:   pl,
		executor:  exec,
		recover:   map[string]RecoverFunc{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Execute runs query through the full INITIALISED -> INTENT_EXTRACTED ->
// PLANNED -> EXECUTED -> COMPLETED state machine, or into the terminal
// FAILED state if an unrecovered stage error occurs.
func (o *Orchestrator) Execute(ctx context.Context, query string) Run {
	run := Run{
		ExecutionPath:      []model.PipelineState{model.StateInitialised},
		NodeExecutionTimes: map[string]time.Duration{},
	}

	in, ok := runStageGeneric(o, &run, "intent", model.StateIntentExtracted, func() (model.Intent, error) {
		return o.extractor.Extract(ctx, query)
	})
	if !ok {
		return o.fail(run, "intent")
	}
	run.Intent = in

	plan, ok := runStageGeneric(o, &run, "plan", model.StatePlanned, func() (model.RetrievalPlan, error) {
		return o.planner.Plan(ctx, in, query)
	})
	if !ok {
		return o.fail(run, "plan")
	}
	run.Plan = plan

	result, ok := runStageGeneric(o, &run, "execute", model.StateExecuted, func() (executor.Result, error) {
		return o.executor.Execute(ctx, plan, in, query)
	})
	if !ok {
		return o.fail(run, "execute")
	}
	run.Result = result

	run.ExecutionPath = append(run.ExecutionPath, model.StateCompleted)
	run.FinalState = model.StateCompleted
	return run
}

// runStageGeneric times fn, advances the run's path on success, and applies the
// stage's declared RecoverFunc (if any) on failure. ok is false only when
// the error is unrecovered and the run must fail.
func runStageGeneric[T any](o *Orchestrator, run *Run, stage string, next model.PipelineState, fn func() (T, error)) (T, bool) {
	start := time.Now()
	value, err := fn()
	run.NodeExecutionTimes[stage] = time.Since(start)

	if err == nil {
		run.ExecutionPath = append(run.ExecutionPath, next)
		return value, true
	}

	slog.Error("[ORCHESTRATOR] stage failed", "stage", stage, "err", err)
	recoverFn := o.recover[stage]
	if recoverFn != nil && recoverFn(stage, err) {
		run.Errors = append(run.Errors, StageError{Stage: stage, Err: err, Recovered: true})
		run.ExecutionPath = append(run.ExecutionPath, next)
		var zero T
		return zero, true
	}

	run.Errors = append(run.Errors, StageError{Stage: stage, Err: err, Recovered: false})
	return value, false
}

func (o *Orchestrator) fail(run Run, stage string) Run {
	run.ExecutionPath = append(run.ExecutionPath, model.StateFailed)
	run.FinalState = model.StateFailed
	run.FailedStage = stage
	return run
}
