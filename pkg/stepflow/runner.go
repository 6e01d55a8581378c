package stepflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/stepflow/stepflow/pkg/stepflow/observability"
	"github.com/stepflow/stepflow/pkg/stepflow/trace"
)

// Handler executes one step. It receives the step definition and a map
// from dependency id to that dependency's recorded output (for roots,
// the run's initial input). Metadata on the returned Result (raw text,
// token usage) is attached to the step's trace on success.
type Handler func(ctx context.Context, step Step, input map[string]any) (*trace.Result, error)

// Runner drives one flow through its validated topology.
//
// A step is dispatched only after every id in its dependsOn has reached
// success in the current execution. Steps flagged parallel that share
// the same dependency set are dispatched concurrently with all-settle
// semantics: each sibling's outcome is recorded independently, and one
// sibling's failure does not prevent the others' results from being
// recorded. Dependents of a failed step are never started; independent
// branches keep running.
type Runner struct {
	flow     Flow
	handlers map[StepType]Handler
	sink     trace.Sink
	logger   *slog.Logger
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithHandler registers a handler for a step type.
func WithHandler(t StepType, h Handler) RunnerOption {
	return func(r *Runner) { r.handlers[t] = h }
}

// WithHandlers registers handlers for several step types at once.
func WithHandlers(handlers map[StepType]Handler) RunnerOption {
	return func(r *Runner) {
		for t, h := range handlers {
			r.handlers[t] = h
		}
	}
}

// WithSink mirrors execution state into the given sink (typically a
// *store.Store) so inspectors can observe the run.
func WithSink(sink trace.Sink) RunnerOption {
	return func(r *Runner) { r.sink = sink }
}

// WithLogger sets the runner's logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = logger }
}

// WithMetrics sets the metrics recorder. Defaults to NoopMetrics.
func WithMetrics(m observability.MetricsRecorder) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithSpanManager sets the span manager. Defaults to NoopSpanManager.
func WithSpanManager(s observability.SpanManager) RunnerOption {
	return func(r *Runner) { r.spans = s }
}

// NewRunner creates a runner for the flow. The flow is validated first;
// a flow with any violation is rejected with ErrFlowInvalid so a
// malformed graph can never start executing.
func NewRunner(flow Flow, opts ...RunnerOption) (*Runner, error) {
	if errs := Validate(flow); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %s (%d violations)", ErrFlowInvalid, flow.ID, len(errs))
	}

	r := &Runner{
		flow:     flow,
		handlers: make(map[StepType]Handler),
		logger:   slog.Default(),
		metrics:  observability.NoopMetrics{},
		spans:    observability.NoopSpanManager{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run executes the flow and returns the finished execution trace.
//
// Initial is handed to root steps as their input. The returned error
// joins every step failure (each wrapped in *StepError); the trace is
// returned either way, with failures recorded per step.
func (r *Runner) Run(ctx context.Context, initial map[string]any) (*trace.FlowExecution, error) {
	tracker := trace.NewTracker(r.flow.ID,
		trace.WithSink(r.sink),
		trace.WithLogger(r.logger),
	)

	start := time.Now()
	observability.LogFlowStart(r.logger, r.flow.ID, tracker.ExecutionID())
	ctx, flowSpan := r.spans.StartFlowSpan(ctx, r.flow.ID, tracker.ExecutionID())

	var (
		mu       sync.Mutex
		stepErrs []error
		executed = make(map[string]bool, len(r.flow.Steps))
	)

	record := func(stepID string, err error) {
		mu.Lock()
		defer mu.Unlock()
		executed[stepID] = true
		if err != nil && !errors.Is(err, trace.ErrStepFinalized) {
			stepErrs = append(stepErrs, &StepError{StepID: stepID, Err: err})
		}
	}

	for ctx.Err() == nil {
		ready := r.readySteps(executed, tracker)
		if len(ready) == 0 {
			break
		}

		for _, batch := range groupBatches(ready) {
			if len(batch) == 1 {
				step := batch[0]
				record(step.ID, r.runStep(ctx, step, initial, tracker))
				continue
			}

			// Parallel siblings: all-settle, per-step isolation.
			var wg sync.WaitGroup
			for _, step := range batch {
				wg.Add(1)
				go func(s Step) {
					defer wg.Done()
					record(s.ID, r.runStep(ctx, s, initial, tracker))
				}(step)
			}
			wg.Wait()
		}
	}

	runErr := errors.Join(stepErrs...)
	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}
	tracker.Finish(runErr)

	duration := time.Since(start)
	r.metrics.RecordFlowRun(ctx, r.flow.ID, runErr == nil, duration)
	r.spans.EndSpanWithError(flowSpan, runErr)
	if runErr != nil {
		observability.LogFlowError(r.logger, r.flow.ID, runErr, duration.Milliseconds())
	} else {
		observability.LogFlowComplete(r.logger, r.flow.ID, duration.Milliseconds(), len(executed))
	}

	return tracker.Execution(), runErr
}

// readySteps returns, in declaration order, every step that has not
// been dispatched and whose dependencies have all reached success.
func (r *Runner) readySteps(executed map[string]bool, tracker *trace.Tracker) []Step {
	var ready []Step
	for _, step := range r.flow.Steps {
		if executed[step.ID] {
			continue
		}
		ok := true
		for _, dep := range step.DependsOn {
			if tracker.StepStatus(dep) != trace.StatusSuccess {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, step)
		}
	}
	return ready
}

// groupBatches splits ready steps into dispatch batches. Steps flagged
// parallel that share an identical dependency set form one concurrent
// batch; everything else runs alone.
func groupBatches(ready []Step) [][]Step {
	var (
		batches  [][]Step
		parallel = make(map[string]int) // deps key -> batch index
	)

	for _, step := range ready {
		if !step.Parallel {
			batches = append(batches, []Step{step})
			continue
		}
		key := depsKey(step.DependsOn)
		if idx, ok := parallel[key]; ok {
			batches[idx] = append(batches[idx], step)
			continue
		}
		parallel[key] = len(batches)
		batches = append(batches, []Step{step})
	}
	return batches
}

// depsKey builds an order-insensitive key for a dependency set.
func depsKey(deps []string) string {
	sorted := make([]string, len(deps))
	copy(sorted, deps)
	sort.Strings(sorted)
	return strings.Join(sorted, "\x00")
}

// runStep assembles the step's input, dispatches its handler through
// the tracker, and records metrics and spans. The handler's error is
// recorded in the trace and returned unchanged.
func (r *Runner) runStep(ctx context.Context, step Step, initial map[string]any, tracker *trace.Tracker) error {
	input := r.assembleInput(step, initial, tracker)

	stepCtx, span := r.spans.StartStepSpan(ctx, step.ID, string(step.Type))
	start := time.Now()

	res, err := tracker.TrackStep(stepCtx, step.ID, input, func(ctx context.Context) (*trace.Result, error) {
		handler, ok := r.handlers[step.Type]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoHandler, step.Type)
		}
		return handler(ctx, step, input)
	})

	r.metrics.RecordStepExecution(ctx, step.ID, time.Since(start), err)
	if err == nil && res.Usage != nil {
		r.metrics.RecordTokenUsage(ctx, res.Model, res.Usage.InputTokens, res.Usage.OutputTokens)
	}
	r.spans.EndSpanWithError(span, err)
	return err
}

// assembleInput maps each dependency id to its recorded output. Roots
// receive the run's initial input.
func (r *Runner) assembleInput(step Step, initial map[string]any, tracker *trace.Tracker) map[string]any {
	if step.IsRoot() {
		if initial == nil {
			return map[string]any{}
		}
		return initial
	}

	input := make(map[string]any, len(step.DependsOn))
	for _, dep := range step.DependsOn {
		if out, ok := tracker.StepOutput(dep); ok {
			input[dep] = out
		}
	}
	return input
}
