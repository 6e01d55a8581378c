package stepflow

// StepType identifies the kind of work a step performs.
// The validator applies a per-type contract for each value; see Validate.
type StepType string

// Supported step types.
const (
	// StepLLM sends a prompt to a language model and expects structured output.
	StepLLM StepType = "llm"

	// StepUserInput waits for a human to provide or choose a value.
	StepUserInput StepType = "user-input"

	// StepTransform derives new data from upstream outputs.
	StepTransform StepType = "transform"

	// StepValidate checks upstream outputs against the step's input schema.
	StepValidate StepType = "validate"

	// StepDisplay renders upstream outputs as a side effect.
	StepDisplay StepType = "display"

	// StepChat is a free-form conversational exchange.
	StepChat StepType = "chat"

	// StepExternalInput receives data produced outside the flow.
	StepExternalInput StepType = "external-input"
)

// knownStepTypes is the closed set of valid step types.
var knownStepTypes = map[StepType]bool{
	StepLLM:           true,
	StepUserInput:     true,
	StepTransform:     true,
	StepValidate:      true,
	StepDisplay:       true,
	StepChat:          true,
	StepExternalInput: true,
}

// Field declares one named, typed entry in a step's input or output schema.
type Field struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Step is a single unit of work in a flow.
//
// DependsOn lists the ids of steps whose output this step consumes.
// An empty DependsOn marks the step as a root of the flow's DAG.
// DependsOn must be present (non-nil) even when empty; the validator
// reports its absence as an I7 violation.
type Step struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Type        StepType `json:"type" yaml:"type"`
	DependsOn   []string `json:"dependsOn" yaml:"dependsOn"`

	InputSchema  []Field `json:"inputSchema,omitempty" yaml:"inputSchema,omitempty"`
	OutputSchema []Field `json:"outputSchema,omitempty" yaml:"outputSchema,omitempty"`

	// Prompt is the instruction text sent to the model.
	// Required for llm steps, ignored for every other type.
	Prompt string `json:"prompt,omitempty" yaml:"prompt,omitempty"`

	// Script is an optional JavaScript expression evaluated by the builtin
	// transform handler. The expression sees upstream outputs as `input`.
	Script string `json:"script,omitempty" yaml:"script,omitempty"`

	// Parallel marks the step as eligible for concurrent dispatch with
	// siblings that share the same DependsOn set.
	Parallel bool `json:"parallel,omitempty" yaml:"parallel,omitempty"`
}

// IsRoot reports whether the step has no dependencies.
func (s Step) IsRoot() bool {
	return len(s.DependsOn) == 0
}
