package stepflow

// Flow is a named, versioned collection of steps forming a DAG.
//
// Flows are defined once, validated at registration, and never mutated
// at runtime. Only their execution state (see the trace package) varies
// from run to run.
type Flow struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Version     string   `json:"version,omitempty" yaml:"version,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`

	// Output names the step whose output is the flow's overall result.
	Output string `json:"output,omitempty" yaml:"output,omitempty"`

	Steps []Step `json:"steps" yaml:"steps"`
}

// Step returns the step with the given id, if present.
func (f Flow) Step(id string) (Step, bool) {
	for _, s := range f.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return Step{}, false
}

// Roots returns the ids of all steps with an empty dependency set,
// in declaration order.
func (f Flow) Roots() []string {
	var roots []string
	for _, s := range f.Steps {
		if s.IsRoot() {
			roots = append(roots, s.ID)
		}
	}
	return roots
}

// dependents builds the forward adjacency list: dependency id -> ids of
// steps that consume it. Edges referencing unknown steps are skipped so
// graph analysis stays safe on flows that already failed I6.
func (f Flow) dependents() map[string][]string {
	known := make(map[string]bool, len(f.Steps))
	for _, s := range f.Steps {
		known[s.ID] = true
	}

	adj := make(map[string][]string)
	for _, s := range f.Steps {
		for _, dep := range s.DependsOn {
			if known[dep] {
				adj[dep] = append(adj[dep], s.ID)
			}
		}
	}
	return adj
}
