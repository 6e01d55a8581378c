package steps

import (
	"context"
	"fmt"

	"github.com/stepflow/stepflow/pkg/stepflow"
	"github.com/stepflow/stepflow/pkg/stepflow/trace"
)

// Validate returns a handler for validate steps. It checks that every
// field named by the step's input schema is present in the merged
// upstream outputs, and passes the merged map through as output.
func Validate() stepflow.Handler {
	return func(ctx context.Context, step stepflow.Step, input map[string]any) (*trace.Result, error) {
		merged := mergeOutputs(input)

		for _, f := range step.InputSchema {
			v, ok := merged[f.Name]
			if !ok || v == nil {
				return nil, fmt.Errorf("missing required field %q", f.Name)
			}
		}
		return &trace.Result{Output: merged}, nil
	}
}

// mergeOutputs flattens per-dependency outputs into one map. Map-typed
// outputs contribute their entries; anything else is kept under the
// dependency's own id.
func mergeOutputs(input map[string]any) map[string]any {
	merged := make(map[string]any)
	for dep, out := range input {
		if m, ok := out.(map[string]any); ok {
			for k, v := range m {
				merged[k] = v
			}
			continue
		}
		merged[dep] = out
	}
	return merged
}
