package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/stepflow/stepflow/pkg/stepflow"
	"github.com/stepflow/stepflow/pkg/stepflow/trace"
)

// ErrNoScript indicates a transform step declared no script.
var ErrNoScript = errors.New("transform step has no script")

// Transform returns a handler for transform steps that evaluates the
// step's Script as JavaScript. The script sees upstream outputs as a
// global `input` object and returns its result:
//
//	return { summary: input.draft.text.toUpperCase() };
//
// Each invocation gets a fresh runtime, so scripts cannot leak state
// between steps or runs.
func Transform() stepflow.Handler {
	return func(ctx context.Context, step stepflow.Step, input map[string]any) (*trace.Result, error) {
		if step.Script == "" {
			return nil, ErrNoScript
		}

		vm := goja.New()
		if err := vm.Set("input", input); err != nil {
			return nil, fmt.Errorf("bind input: %w", err)
		}

		// Wrap in a function expression so the script can use return.
		value, err := vm.RunString("(function() {\n" + step.Script + "\n})()")
		if err != nil {
			return nil, fmt.Errorf("transform script: %w", err)
		}
		return &trace.Result{Output: value.Export()}, nil
	}
}
