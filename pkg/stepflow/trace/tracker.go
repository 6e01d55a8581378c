package trace

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stepflow/stepflow/pkg/stepflow/llm"
)

// ErrStepFinalized indicates a tracked step already reached a terminal
// status in this execution. Re-running a step requires a new execution.
var ErrStepFinalized = errors.New("step already finalized in this execution")

// Sink receives a snapshot of the execution after every mutation.
// The store package implements Sink; the tracker never needs to know
// who, if anyone, is watching.
type Sink interface {
	SetExecution(flowID string, execution *FlowExecution)
}

// Result is the outcome a tracked function hands back to the tracker.
// Raw, Model, and Usage are optional metadata for llm steps.
type Result struct {
	Output any
	Raw    string
	Model  string
	Usage  *llm.TokenUsage
}

// Tracker records the lifecycle of each step within a single run of a
// flow. One instance is bound to one flow id; a fresh instance starts a
// fresh FlowExecution with empty steps and status running.
//
// The tracker annotates failures, it never swallows them: a tracked
// function's error is recorded and returned to the caller unchanged.
type Tracker struct {
	mu     sync.Mutex
	flowID string
	ex     *FlowExecution
	sink   Sink
	logger *slog.Logger
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithSink mirrors every mutation into the given sink.
func WithSink(sink Sink) TrackerOption {
	return func(t *Tracker) { t.sink = sink }
}

// WithLogger sets the tracker's logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) TrackerOption {
	return func(t *Tracker) { t.logger = logger }
}

// NewTracker starts a new execution for the given flow id.
func NewTracker(flowID string, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		flowID: flowID,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.ex = newExecution(flowID)
	t.publishLocked()
	return t
}

func newExecution(flowID string) *FlowExecution {
	return &FlowExecution{
		ID:        uuid.New().String(),
		FlowID:    flowID,
		StartedAt: time.Now(),
		Status:    StatusRunning,
		Steps:     make(map[string]*StepExecution),
	}
}

// ExecutionID returns the id of the current execution.
func (t *Tracker) ExecutionID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ex.ID
}

// TrackStep records the step as running with the given input, invokes
// fn, then records success with output and duration, or error with the
// failure message. The original error is returned unchanged so the
// driver decides how to proceed.
//
// Terminal statuses are final: tracking an already-finished step
// returns ErrStepFinalized without invoking fn. If Reset replaces the
// execution while fn is in flight, the outcome is discarded rather than
// recorded against a run it never belonged to; fn's result and error
// still return to the caller unchanged.
func (t *Tracker) TrackStep(ctx context.Context, stepID string, input any, fn func(ctx context.Context) (*Result, error)) (*Result, error) {
	ex, started, err := t.begin(stepID, input)
	if err != nil {
		return nil, err
	}

	res, err := fn(ctx)
	if err != nil {
		t.finishError(ex, stepID, started, err)
		return nil, err
	}
	if res == nil {
		res = &Result{}
	}
	t.finishSuccess(ex, stepID, started, res)
	return res, nil
}

// ResolveUserInput records an immediate success for a step whose work
// is a human choosing something already made: zero duration, the given
// value as both input and output.
func (t *Tracker) ResolveUserInput(stepID string, value any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if se, ok := t.ex.Steps[stepID]; ok && se.Status.Terminal() {
		return ErrStepFinalized
	}

	now := time.Now()
	t.ex.Steps[stepID] = &StepExecution{
		StepID:      stepID,
		Status:      StatusSuccess,
		StartedAt:   now,
		CompletedAt: now,
		DurationMs:  0,
		Input:       value,
		Output:      value,
	}
	t.publishLocked()
	return nil
}

// StepOutput returns the last recorded output for a step. Callers use
// it to pass one step's output as the next step's input without
// re-awaiting anything.
func (t *Tracker) StepOutput(stepID string) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	se, ok := t.ex.Steps[stepID]
	if !ok || se.Status != StatusSuccess {
		return nil, false
	}
	return se.Output, true
}

// StepStatus returns the last known status for a step.
// Steps never tracked report StatusIdle.
func (t *Tracker) StepStatus(stepID string) Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	se, ok := t.ex.Steps[stepID]
	if !ok {
		return StatusIdle
	}
	return se.Status
}

// Execution returns a snapshot of the current execution.
func (t *Tracker) Execution() *FlowExecution {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ex.Clone()
}

// Finish marks the execution terminal: success when err is nil, error
// otherwise. The driver calls this once it stops issuing steps; the
// engine never derives the terminal state on its own.
func (t *Tracker) Finish(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.ex.Status = StatusError
	} else {
		t.ex.Status = StatusSuccess
	}
	t.publishLocked()
}

// Reset discards all recorded steps and starts a brand-new execution
// id for the same flow id.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ex = newExecution(t.flowID)
	t.publishLocked()
}

// begin transitions a step to running and publishes the mutation. It
// returns the execution the step was recorded in so the finish side can
// detect a Reset that happened while the step's fn was in flight.
func (t *Tracker) begin(stepID string, input any) (*FlowExecution, time.Time, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if se, ok := t.ex.Steps[stepID]; ok && se.Status.Terminal() {
		return nil, time.Time{}, ErrStepFinalized
	}

	started := time.Now()
	t.ex.Steps[stepID] = &StepExecution{
		StepID:    stepID,
		Status:    StatusRunning,
		StartedAt: started,
		Input:     input,
	}
	t.logger.Debug("step starting",
		slog.String("flow_id", t.flowID),
		slog.String("execution_id", t.ex.ID),
		slog.String("step_id", stepID),
	)
	t.publishLocked()
	return t.ex, started, nil
}

func (t *Tracker) finishSuccess(ex *FlowExecution, stepID string, started time.Time, res *Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	se := t.ex.Steps[stepID]
	if t.ex != ex || se == nil {
		t.discardOutcome(stepID)
		return
	}

	completed := time.Now()
	se.Status = StatusSuccess
	se.CompletedAt = completed
	se.DurationMs = completed.Sub(started).Milliseconds()
	se.Output = res.Output
	se.Raw = res.Raw
	se.Model = res.Model
	se.Usage = res.Usage

	t.logger.Debug("step completed",
		slog.String("flow_id", t.flowID),
		slog.String("step_id", stepID),
		slog.Int64("duration_ms", se.DurationMs),
	)
	t.publishLocked()
}

func (t *Tracker) finishError(ex *FlowExecution, stepID string, started time.Time, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	se := t.ex.Steps[stepID]
	if t.ex != ex || se == nil {
		t.discardOutcome(stepID)
		return
	}

	completed := time.Now()
	se.Status = StatusError
	se.CompletedAt = completed
	se.DurationMs = completed.Sub(started).Milliseconds()
	se.Error = err.Error()

	t.logger.Error("step failed",
		slog.String("flow_id", t.flowID),
		slog.String("step_id", stepID),
		slog.String("error", err.Error()),
	)
	t.publishLocked()
}

// discardOutcome logs a step completion that arrived after Reset
// replaced the execution it started in. The outcome belongs to a
// discarded run, so nothing is recorded.
// Callers must hold t.mu.
func (t *Tracker) discardOutcome(stepID string) {
	t.logger.Debug("step outcome discarded, execution was reset",
		slog.String("flow_id", t.flowID),
		slog.String("execution_id", t.ex.ID),
		slog.String("step_id", stepID),
	)
}

// publishLocked mirrors the execution into the sink.
// Callers must hold t.mu; the sink receives a snapshot, never the live
// object.
func (t *Tracker) publishLocked() {
	if t.sink == nil {
		return
	}
	t.sink.SetExecution(t.flowID, t.ex.Clone())
}
