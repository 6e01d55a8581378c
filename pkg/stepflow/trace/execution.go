// Package trace records the inspectable history of one run of a flow:
// per-step lifecycle, timing, payloads, and token cost.
package trace

import (
	"time"

	"github.com/stepflow/stepflow/pkg/stepflow/llm"
)

// Status is the lifecycle state of a step within one execution.
type Status string

// Step lifecycle: idle -> running -> success | error.
// Success and error are terminal within a single execution.
const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Terminal reports whether the status is final for this execution.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

// StepExecution is the runtime record for one step within one run.
type StepExecution struct {
	StepID      string    `json:"stepId"`
	Status      Status    `json:"status"`
	StartedAt   time.Time `json:"startedAt,omitzero"`
	CompletedAt time.Time `json:"completedAt,omitzero"`
	DurationMs  int64     `json:"durationMs"`
	Input       any       `json:"input,omitempty"`
	Output      any       `json:"output,omitempty"`
	Error       string    `json:"error,omitempty"`

	// Raw is the verbatim LLM response text, set only for llm steps.
	Raw string `json:"raw,omitempty"`
	// Model is the model that produced the response, set only for llm steps.
	Model string `json:"model,omitempty"`
	// Usage is the token cost of the step, set only for llm steps.
	Usage *llm.TokenUsage `json:"usage,omitempty"`
}

// FlowExecution is one run of a flow.
//
// The execution is considered terminal once its driver stops issuing
// steps; see stepflow.IsTerminal for the topology-driven predicate.
type FlowExecution struct {
	ID        string                    `json:"id"`
	FlowID    string                    `json:"flowId"`
	StartedAt time.Time                 `json:"startedAt"`
	Status    Status                    `json:"status"`
	Steps     map[string]*StepExecution `json:"steps"`
}

// Step returns the recorded execution for a step id, or nil.
func (e *FlowExecution) Step(stepID string) *StepExecution {
	if e == nil {
		return nil
	}
	return e.Steps[stepID]
}

// Clone returns a deep copy of the execution.
//
// Step records are copied; Input/Output payloads are shared, matching
// the read-only contract observers must follow.
func (e *FlowExecution) Clone() *FlowExecution {
	if e == nil {
		return nil
	}
	out := &FlowExecution{
		ID:        e.ID,
		FlowID:    e.FlowID,
		StartedAt: e.StartedAt,
		Status:    e.Status,
		Steps:     make(map[string]*StepExecution, len(e.Steps)),
	}
	for id, se := range e.Steps {
		cp := *se
		if se.Usage != nil {
			usage := *se.Usage
			cp.Usage = &usage
		}
		out.Steps[id] = &cp
	}
	return out
}
