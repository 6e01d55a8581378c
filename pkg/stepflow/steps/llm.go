// Package steps provides builtin handlers for the step types the
// engine can execute without caller-supplied behavior.
package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/stepflow/stepflow/pkg/stepflow"
	"github.com/stepflow/stepflow/pkg/stepflow/llm"
	"github.com/stepflow/stepflow/pkg/stepflow/trace"
)

// LLM returns a handler for llm steps. The step's prompt becomes the
// system message, upstream outputs become the user message, and the
// response is decoded as a JSON object shaped by the step's output
// schema.
func LLM(client llm.Client, model string) stepflow.Handler {
	return func(ctx context.Context, step stepflow.Step, input map[string]any) (*trace.Result, error) {
		req := llm.ChatRequest{
			Model: model,
			Messages: []llm.Message{
				{Role: llm.RoleSystem, Content: renderPrompt(step)},
				{Role: llm.RoleUser, Content: renderInput(input)},
			},
		}

		res, err := llm.ChatJSON[map[string]any](ctx, client, req)
		if err != nil {
			return nil, err
		}
		return &trace.Result{
			Output: res.Data,
			Raw:    res.Raw,
			Model:  res.Model,
			Usage:  res.Usage,
		}, nil
	}
}

// renderPrompt appends the output schema to the step's prompt so the
// model knows exactly which fields to produce.
func renderPrompt(step stepflow.Step) string {
	var sb strings.Builder
	sb.WriteString(step.Prompt)
	if len(step.OutputSchema) > 0 {
		sb.WriteString("\n\nRespond with a JSON object containing exactly these fields:\n")
		for _, f := range step.OutputSchema {
			fmt.Fprintf(&sb, "- %q (%s): %s\n", f.Name, f.Type, f.Description)
		}
	}
	return sb.String()
}

// renderInput serializes upstream outputs as labeled sections, sorted
// by dependency id for deterministic prompts.
func renderInput(input map[string]any) string {
	if len(input) == 0 {
		return "Begin."
	}

	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		data, err := json.MarshalIndent(input[k], "", "  ")
		if err != nil {
			data = []byte(fmt.Sprintf("%v", input[k]))
		}
		fmt.Fprintf(&sb, "## %s\n\n%s\n\n", k, data)
	}
	return sb.String()
}
