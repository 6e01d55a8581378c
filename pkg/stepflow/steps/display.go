package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/stepflow/stepflow/pkg/stepflow"
	"github.com/stepflow/stepflow/pkg/stepflow/trace"
)

// Display returns a handler for display steps: a pure side effect that
// renders upstream outputs to w. Display steps produce no output of
// their own.
func Display(w io.Writer) stepflow.Handler {
	return func(ctx context.Context, step stepflow.Step, input map[string]any) (*trace.Result, error) {
		data, err := json.MarshalIndent(input, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("render input: %w", err)
		}
		if _, err := fmt.Fprintf(w, "%s: %s\n", step.Name, data); err != nil {
			return nil, err
		}
		return &trace.Result{}, nil
	}
}
