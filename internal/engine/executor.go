package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/stagelinehq/stageline/internal/capability"
	"github.com/stagelinehq/stageline/internal/expressions"
	"github.com/stagelinehq/stageline/internal/logging"
	"github.com/stagelinehq/stageline/internal/workflow"
	"github.com/stagelinehq/stageline/pkg/schema"
)

// EventSink receives run and stage events as they happen. Satisfied by the
// store event log and the streaming hub. Emission is best-effort: a sink
// error never fails the run.
type EventSink interface {
	Emit(ctx context.Context, event *schema.RunEvent)
}

// Config holds the executor dependencies.
type Config struct {
	Registry   *capability.Registry
	Conditions *expressions.CELEngine
	Aggregator *Aggregator
	Params     *workflow.JSONSchemaValidator // optional; enforces capability param schemas
	Sinks      []EventSink
	Logger     *slog.Logger
}

// Executor walks a workflow's stages strictly in declared order, fail-fast.
// It owns the run context accumulation; capabilities only see their resolved
// params and projected needs.
type Executor struct {
	registry     *capability.Registry
	conditions   *expressions.CELEngine
	aggregator   *Aggregator
	params       *workflow.JSONSchemaValidator
	interpolator *expressions.Interpolator
	sinks        []EventSink
	logger       *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewExecutor creates an Executor.
func NewExecutor(cfg Config) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry:     cfg.Registry,
		conditions:   cfg.Conditions,
		aggregator:   cfg.Aggregator,
		params:       cfg.Params,
		interpolator: expressions.NewInterpolator(),
		sinks:        cfg.Sinks,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
		newID:        uuid.NewString,
	}
}

// Execute runs one workflow to completion and returns its report. inputs
// must already be normalized by Definition.BuildRequest. A report always
// comes back, never nil: every outcome including cancellation is structured.
func (e *Executor) Execute(ctx context.Context, def *workflow.Definition, inputs map[string]any) *schema.WorkflowReport {
	runID := e.newID()
	startedAt := e.now()

	ctx = logging.WithRunID(ctx, runID)
	ctx = logging.WithWorkflow(ctx, def.Name())

	report := &schema.WorkflowReport{
		RunID:     runID,
		Workflow:  def.Name(),
		Status:    schema.RunStatusActive,
		Stages:    make([]schema.StageResult, 0, len(def.Stages())),
		StartedAt: startedAt,
	}

	runMeta := map[string]any{
		"run_id":     runID,
		"workflow":   def.Name(),
		"started_at": startedAt.Format(time.RFC3339),
	}
	scope := expressions.NewScopeBuilder(inputs, runMeta)

	seq := &eventSequence{}
	e.emit(ctx, seq, runID, schema.EventRunStarted, "", map[string]any{"workflow": def.Name()})
	e.logger.InfoContext(ctx, "run started", "stages", len(def.Stages()))

	execCtx := ctx
	var execCancel context.CancelFunc
	if def.Timeout() > 0 {
		execCtx, execCancel = context.WithTimeout(ctx, def.Timeout())
		defer execCancel()
	}

	skipped := make(map[string]bool, len(def.Stages()))
	var finalErr *schema.Error

	for _, st := range def.Stages() {
		// Cancellation between stages is charged to the next stage.
		if err := execCtx.Err(); err != nil {
			finalErr = cancellationError(err, st.Name)
			report.Stages = append(report.Stages, schema.StageResult{
				Stage:   st.Name,
				Status:  schema.StageStatusFailure,
				Failure: finalErr,
			})
			e.emit(ctx, seq, runID, schema.EventStageFailed, st.Name, map[string]any{"kind": finalErr.Code})
			break
		}

		result := e.executeStage(execCtx, seq, scope, runID, st, skipped)
		report.Stages = append(report.Stages, result)

		if result.Status == schema.StageStatusSkipped {
			skipped[st.Output] = true
		}
		if result.Status == schema.StageStatusFailure {
			finalErr = result.Failure
			break // fail-fast: remaining stages never produce entries
		}
	}

	completedAt := e.now()
	report.CompletedAt = &completedAt

	if finalErr != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			report.Status = schema.RunStatusCancelled
			report.Error = finalErr
			e.emit(ctx, seq, runID, schema.EventRunCancelled, "", map[string]any{"error": finalErr.Message})
			e.logger.WarnContext(ctx, "run cancelled", "error", finalErr.Message)
			return report
		}
		report.Status = schema.RunStatusFailed
		report.Error = finalErr
		e.emit(ctx, seq, runID, schema.EventRunFailed, "", map[string]any{
			"kind":  finalErr.Code,
			"error": finalErr.Message,
		})
		e.logger.ErrorContext(ctx, "run failed", "kind", finalErr.Code, "error", finalErr.Message)
		return report
	}

	// Assemble the payload from the accumulated context.
	contextMap := scope.StageValues()
	for k, v := range inputs {
		contextMap[k] = v
	}
	payload, partial, aggErr := e.aggregator.Aggregate(ctx, def.MergeRules(), contextMap)
	if aggErr != nil {
		report.Status = schema.RunStatusFailed
		report.Error = normalizeError(aggErr, "")
		e.emit(ctx, seq, runID, schema.EventRunFailed, "", map[string]any{"error": report.Error.Message})
		e.logger.ErrorContext(ctx, "aggregation failed", "error", report.Error.Message)
		return report
	}

	report.Status = schema.RunStatusCompleted
	report.Payload = payload
	report.Partial = partial
	if partial {
		report.Error = schema.NewError(schema.ErrCodeIncompleteWorkflow,
			"one or more required payload fields could not be assembled")
	}

	e.emit(ctx, seq, runID, schema.EventRunCompleted, "", map[string]any{"partial": partial})
	e.logger.InfoContext(ctx, "run completed", "partial", partial)
	return report
}

// executeStage runs a single stage: condition guard, cascade-skip check,
// param interpolation, needs projection, invocation. Exactly one tagged
// outcome comes back.
func (e *Executor) executeStage(ctx context.Context, seq *eventSequence, scope *expressions.ScopeBuilder, runID string, st schema.StageDescriptor, skipped map[string]bool) schema.StageResult {
	ctx = logging.WithStage(ctx, st.Name)

	// Condition guard. A false condition is a normal outcome, not a failure.
	if st.Condition != "" {
		ok, err := e.conditions.EvaluateBool(ctx, st.Condition, scope.EvalData())
		if err != nil {
			return e.failStage(ctx, seq, runID, st, err, 0)
		}
		if !ok {
			e.emit(ctx, seq, runID, schema.EventStageSkipped, st.Name, map[string]any{"reason": "condition"})
			e.logger.InfoContext(ctx, "stage skipped", "reason", "condition")
			return schema.StageResult{
				Stage:      st.Name,
				Status:     schema.StageStatusSkipped,
				SkipReason: "condition evaluated to false",
			}
		}
	}

	// Cascade-skip: a stage whose needs point at a skipped producer cannot
	// run, and that is not a failure either.
	for _, need := range st.Needs {
		if skipped[need] {
			e.emit(ctx, seq, runID, schema.EventStageSkipped, st.Name, map[string]any{"reason": "needs", "need": need})
			e.logger.InfoContext(ctx, "stage skipped", "reason", "needs", "need", need)
			return schema.StageResult{
				Stage:      st.Name,
				Status:     schema.StageStatusSkipped,
				SkipReason: "needs " + need + " from a skipped stage",
			}
		}
	}

	started := e.now()
	e.emit(ctx, seq, runID, schema.EventStageStarted, st.Name, map[string]any{"capability": st.Capability})

	impl, err := e.registry.Resolve(st.Capability)
	if err != nil {
		return e.failStage(ctx, seq, runID, st, err, 0)
	}

	// Interpolate and decode params.
	params, err := e.resolveParams(ctx, st, scope)
	if err != nil {
		return e.failStage(ctx, seq, runID, st, err, 0)
	}

	// Enforce the capability's declared param schema when configured.
	if e.params != nil {
		if err := e.params.ValidateParams(params, impl.Spec().InputSchema); err != nil {
			return e.failStage(ctx, seq, runID, st, err, 0)
		}
	}

	// Project the declared needs into the capability's context view.
	snapshot := scope.Build()
	needsCtx := make(map[string]any, len(st.Needs))
	for _, need := range st.Needs {
		if v, ok := snapshot.Stages[need]; ok {
			needsCtx[need] = v
		} else if v, ok := snapshot.Inputs[need]; ok {
			needsCtx[need] = v
		}
	}

	stageCtx := ctx
	var stageCancel context.CancelFunc
	if st.Timeout != "" {
		if dur, perr := time.ParseDuration(st.Timeout); perr == nil && dur > 0 {
			stageCtx, stageCancel = context.WithTimeout(ctx, dur)
			defer stageCancel()
		}
	}

	out, err := impl.Invoke(stageCtx, capability.Input{Params: params, Context: needsCtx})
	durationMs := e.now().Sub(started).Milliseconds()
	if err != nil {
		if stageCtx.Err() != nil {
			err = schema.NewErrorf(schema.ErrCodeTimeout, "stage %s timed out", st.Name).WithCause(err)
		}
		return e.failStage(ctx, seq, runID, st, err, durationMs)
	}

	var value any
	if out != nil {
		value = out.Value
	}
	if err := scope.AddStageValue(st.Output, value); err != nil {
		return e.failStage(ctx, seq, runID, st, err, durationMs)
	}

	e.emit(ctx, seq, runID, schema.EventStageCompleted, st.Name, map[string]any{
		"output":      st.Output,
		"duration_ms": durationMs,
	})
	e.logger.InfoContext(ctx, "stage completed", "duration_ms", durationMs)

	return schema.StageResult{
		Stage:      st.Name,
		Status:     schema.StageStatusSuccess,
		Value:      value,
		DurationMs: durationMs,
	}
}

// resolveParams interpolates ${{...}} references in the stage's raw params
// and decodes them into a map.
func (e *Executor) resolveParams(ctx context.Context, st schema.StageDescriptor, scope *expressions.ScopeBuilder) (map[string]any, error) {
	raw := st.Params
	if expressions.HasInterpolation(raw) {
		resolved, err := e.interpolator.Resolve(ctx, raw, scope.Build())
		if err != nil {
			return nil, err
		}
		raw = resolved
	}

	params := make(map[string]any)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeExecution,
				"decode params for stage %s: %s", st.Name, err.Error()).WithCause(err)
		}
	}
	return params, nil
}

// failStage normalizes an error into a failure entry with a closed-taxonomy
// kind and emits the stage_failed event.
func (e *Executor) failStage(ctx context.Context, seq *eventSequence, runID string, st schema.StageDescriptor, err error, durationMs int64) schema.StageResult {
	failure := normalizeError(err, st.Name)

	e.emit(ctx, seq, runID, schema.EventStageFailed, st.Name, map[string]any{
		"kind":  failure.Code,
		"error": failure.Message,
	})
	e.logger.ErrorContext(ctx, "stage failed", "kind", failure.Code, "error", failure.Message)

	return schema.StageResult{
		Stage:      st.Name,
		Status:     schema.StageStatusFailure,
		Failure:    failure,
		DurationMs: durationMs,
	}
}

// normalizeError collapses any error into a *schema.Error whose code is a
// report-taxonomy failure kind. The original code survives in the details.
func normalizeError(err error, stage string) *schema.Error {
	var serr *schema.Error
	if !errors.As(err, &serr) {
		serr = schema.NewError(schema.ErrCodeExecution, err.Error()).WithCause(err)
	}

	kind := serr.FailureKind()
	failure := schema.NewError(kind, serr.Message)
	failure.Stage = stage
	if serr.Stage != "" {
		failure.Stage = serr.Stage
	}
	if kind != serr.Code {
		failure.Details = map[string]any{"cause_code": serr.Code}
	} else if serr.Details != nil {
		failure.Details = serr.Details
	}
	failure.Cause = serr
	return failure
}

// cancellationError maps context termination to the report taxonomy:
// deadline and cancellation both surface as TIMEOUT on the charged stage.
func cancellationError(err error, stage string) *schema.Error {
	msg := "run deadline exceeded"
	if errors.Is(err, context.Canceled) {
		msg = "run cancelled"
	}
	cerr := schema.NewErrorf(schema.ErrCodeTimeout, "%s before stage %s started", msg, stage)
	cerr.Stage = stage
	return cerr
}

// eventSequence hands out per-run sequence numbers.
type eventSequence struct {
	n int64
}

func (s *eventSequence) next() int64 {
	s.n++
	return s.n
}

// emit fans an event out to every sink.
func (e *Executor) emit(ctx context.Context, seq *eventSequence, runID, eventType, stage string, payload map[string]any) {
	if len(e.sinks) == 0 {
		return
	}
	event := &schema.RunEvent{
		RunID:     runID,
		Seq:       seq.next(),
		Type:      eventType,
		Stage:     stage,
		Payload:   payload,
		Timestamp: e.now(),
	}
	for _, sink := range e.sinks {
		sink.Emit(ctx, event)
	}
}
