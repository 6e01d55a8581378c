package stepflow

import "github.com/stepflow/stepflow/pkg/stepflow/trace"

// IsTerminal reports whether an execution of the flow can make no
// further progress: no step is currently running, and no unstarted step
// has all of its dependencies in success.
//
// This covers both the clean case (every step reachable from the roots
// is success) and the failed case (a step errored, so its dependents
// can never start). The engine itself never flips an execution to a
// terminal state; this predicate gives drivers and inspectors a shared
// definition instead of leaving completion detection to convention.
func IsTerminal(flow Flow, execution *trace.FlowExecution) bool {
	if execution == nil {
		return false
	}

	status := func(stepID string) trace.Status {
		if se := execution.Step(stepID); se != nil {
			return se.Status
		}
		return trace.StatusIdle
	}

	for _, step := range flow.Steps {
		switch status(step.ID) {
		case trace.StatusRunning:
			return false
		case trace.StatusIdle:
			startable := true
			for _, dep := range step.DependsOn {
				if status(dep) != trace.StatusSuccess {
					startable = false
					break
				}
			}
			if startable {
				return false
			}
		}
	}
	return true
}
