package stepflow

import "fmt"

// Invariant identifies one of the structural rules every flow must
// satisfy before it is allowed into the registry.
type Invariant string

// Structural invariants. I4 covers the per-type step contracts layered
// on top of the graph rules.
const (
	InvariantAcyclic      Invariant = "I1"
	InvariantHasRoot      Invariant = "I2"
	InvariantNoOrphans    Invariant = "I3"
	InvariantStepContract Invariant = "I4"
	InvariantUniqueIDs    Invariant = "I5"
	InvariantValidDeps    Invariant = "I6"
	InvariantComplete     Invariant = "I7"
)

// ValidationError describes one invariant violation in one flow.
// It is produced only by Validate and never stored with an execution.
type ValidationError struct {
	FlowID    string
	Invariant Invariant
	StepID    string // empty for flow-level violations
	Message   string
}

// Error formats the violation as `[invariant] step="<id>": <message>`,
// the line format the registry emits to its operator log.
func (e ValidationError) Error() string {
	if e.StepID == "" {
		return fmt.Sprintf("[%s] %s", e.Invariant, e.Message)
	}
	return fmt.Sprintf("[%s] step=%q: %s", e.Invariant, e.StepID, e.Message)
}

// Validate checks a flow against the structural invariants and the
// per-type step contracts. It is pure, synchronous, and deterministic:
// the same flow always yields the same error list, and a nil result
// means the flow is valid.
//
// Checks never early-exit; every violation in the flow is reported in
// a single pass so one run surfaces everything that is wrong.
func Validate(flow Flow) []ValidationError {
	var errs []ValidationError

	errs = append(errs, checkUniqueIDs(flow)...)
	errs = append(errs, checkCompleteness(flow)...)
	errs = append(errs, checkDependencies(flow)...)
	errs = append(errs, checkRoots(flow)...)
	errs = append(errs, checkAcyclic(flow)...)
	errs = append(errs, checkOrphans(flow)...)
	errs = append(errs, checkStepContracts(flow)...)

	return errs
}

// checkUniqueIDs enforces I5: no two steps share an id.
func checkUniqueIDs(flow Flow) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool, len(flow.Steps))
	reported := make(map[string]bool)

	for _, s := range flow.Steps {
		if seen[s.ID] && !reported[s.ID] {
			errs = append(errs, ValidationError{
				FlowID:    flow.ID,
				Invariant: InvariantUniqueIDs,
				StepID:    s.ID,
				Message:   fmt.Sprintf("duplicate step id %q", s.ID),
			})
			reported[s.ID] = true
		}
		seen[s.ID] = true
	}
	return errs
}

// checkCompleteness enforces I7: id, name, type, description are all
// non-empty, the type is one of the known step types, and the
// dependsOn list exists (nil means the author omitted it entirely).
func checkCompleteness(flow Flow) []ValidationError {
	var errs []ValidationError

	add := func(stepID, msg string) {
		errs = append(errs, ValidationError{
			FlowID:    flow.ID,
			Invariant: InvariantComplete,
			StepID:    stepID,
			Message:   msg,
		})
	}

	for _, s := range flow.Steps {
		if s.ID == "" {
			add("", "step is missing an id")
		}
		if s.Name == "" {
			add(s.ID, "step is missing a name")
		}
		if s.Description == "" {
			add(s.ID, "step is missing a description")
		}
		switch {
		case s.Type == "":
			add(s.ID, "step is missing a type")
		case !knownStepTypes[s.Type]:
			add(s.ID, fmt.Sprintf("unknown step type %q", s.Type))
		}
		if s.DependsOn == nil {
			add(s.ID, "step is missing a dependsOn list (use an empty list for roots)")
		}
	}
	return errs
}

// checkDependencies enforces I6: every id referenced by dependsOn
// exists among the flow's steps.
func checkDependencies(flow Flow) []ValidationError {
	var errs []ValidationError
	known := make(map[string]bool, len(flow.Steps))
	for _, s := range flow.Steps {
		known[s.ID] = true
	}

	for _, s := range flow.Steps {
		for _, dep := range s.DependsOn {
			if !known[dep] {
				errs = append(errs, ValidationError{
					FlowID:    flow.ID,
					Invariant: InvariantValidDeps,
					StepID:    s.ID,
					Message:   fmt.Sprintf("depends on unknown step %q", dep),
				})
			}
		}
	}
	return errs
}

// checkRoots enforces I2: at least one step has an empty dependsOn.
func checkRoots(flow Flow) []ValidationError {
	if len(flow.Steps) == 0 {
		return []ValidationError{{
			FlowID:    flow.ID,
			Invariant: InvariantHasRoot,
			Message:   "flow has no steps",
		}}
	}
	for _, s := range flow.Steps {
		if s.IsRoot() {
			return nil
		}
	}
	return []ValidationError{{
		FlowID:    flow.ID,
		Invariant: InvariantHasRoot,
		Message:   "flow has no root step (every step declares dependencies)",
	}}
}

// checkAcyclic enforces I1 using Kahn's algorithm: repeatedly remove
// zero-in-degree steps; if any remain, a cycle exists. A cycle is
// reported once for the whole flow, not per edge.
func checkAcyclic(flow Flow) []ValidationError {
	known := make(map[string]bool, len(flow.Steps))
	for _, s := range flow.Steps {
		known[s.ID] = true
	}

	inDegree := make(map[string]int, len(flow.Steps))
	adj := flow.dependents()
	for _, s := range flow.Steps {
		// Count only edges to known steps; dangling references are
		// already reported under I6 and must not break the analysis.
		deg := 0
		for _, dep := range s.DependsOn {
			if known[dep] {
				deg++
			}
		}
		inDegree[s.ID] = deg
	}

	queue := make([]string, 0, len(flow.Steps))
	for _, s := range flow.Steps {
		if inDegree[s.ID] == 0 {
			queue = append(queue, s.ID)
		}
	}

	removed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		removed++

		for _, next := range adj[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if removed < len(flow.Steps) {
		return []ValidationError{{
			FlowID:    flow.ID,
			Invariant: InvariantAcyclic,
			Message:   "dependency graph contains a cycle",
		}}
	}
	return nil
}

// checkOrphans enforces I3: every step must be reachable by a forward
// breadth-first traversal from the root set. Steps that are not reached
// include members of disconnected sub-graphs that are not part of any
// cycle, which I1 alone would miss.
func checkOrphans(flow Flow) []ValidationError {
	reached := make(map[string]bool, len(flow.Steps))
	queue := flow.Roots()
	for _, id := range queue {
		reached[id] = true
	}

	adj := flow.dependents()
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range adj[id] {
			if !reached[next] {
				reached[next] = true
				queue = append(queue, next)
			}
		}
	}

	var errs []ValidationError
	for _, s := range flow.Steps {
		if !reached[s.ID] {
			errs = append(errs, ValidationError{
				FlowID:    flow.ID,
				Invariant: InvariantNoOrphans,
				StepID:    s.ID,
				Message:   "step is not reachable from any root",
			})
		}
	}
	return errs
}

// checkStepContracts enforces I4, the per-type contracts applied to
// each step regardless of graph shape. The switch is exhaustive over
// the known step types; unknown types are already reported under I7.
func checkStepContracts(flow Flow) []ValidationError {
	var errs []ValidationError

	add := func(stepID, msg string) {
		errs = append(errs, ValidationError{
			FlowID:    flow.ID,
			Invariant: InvariantStepContract,
			StepID:    stepID,
			Message:   msg,
		})
	}

	for _, s := range flow.Steps {
		switch s.Type {
		case StepLLM:
			if s.Prompt == "" {
				add(s.ID, "llm step requires a prompt")
			}
			if len(s.OutputSchema) == 0 {
				add(s.ID, "llm step requires an output schema")
			}
		case StepUserInput, StepTransform, StepValidate:
			if len(s.InputSchema) == 0 {
				add(s.ID, fmt.Sprintf("%s step requires an input schema", s.Type))
			}
			if len(s.OutputSchema) == 0 {
				add(s.ID, fmt.Sprintf("%s step requires an output schema", s.Type))
			}
		case StepDisplay:
			// An input schema is recommended for display steps but
			// deliberately not enforced: they may be pure side effects
			// with no typed output.
		case StepChat, StepExternalInput:
			// No schema mandated.
		}
	}
	return errs
}
