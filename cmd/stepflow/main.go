// Command stepflow validates and runs flow definition files.
//
// Usage:
//
//	stepflow validate flows.yaml
//	stepflow run flows.yaml my-flow --config stepflow.yaml
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stepflow/stepflow/pkg/stepflow"
	"github.com/stepflow/stepflow/pkg/stepflow/config"
	"github.com/stepflow/stepflow/pkg/stepflow/llm"
	"github.com/stepflow/stepflow/pkg/stepflow/observability"
	"github.com/stepflow/stepflow/pkg/stepflow/steps"
	"github.com/stepflow/stepflow/pkg/stepflow/store"
	"github.com/stepflow/stepflow/pkg/stepflow/trace"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "stepflow",
		Short:         "Validate and run AI workflow definitions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newValidateCmd())
	root.AddCommand(newRunCmd())
	return root
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <flow-file>",
		Short: "Validate every flow in a definition file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flows, err := stepflow.LoadFlowsFile(args[0])
			if err != nil {
				return err
			}

			reg := stepflow.NewRegistry(flows)
			for _, id := range reg.IDs() {
				fmt.Fprintf(cmd.OutOrStdout(), "ok: %s\n", id)
			}
			if errs := reg.Errors(); len(errs) > 0 {
				for _, e := range errs {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", e.FlowID, e.Error())
				}
				return fmt.Errorf("%d of %d flows rejected", len(flows)-reg.Len(), len(flows))
			}
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run <flow-file> <flow-id>",
		Short: "Run one flow from a definition file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			flows, err := stepflow.LoadFlowsFile(args[0])
			if err != nil {
				return err
			}

			reg := stepflow.NewRegistry(flows)
			flow, ok := reg.Get(args[1])
			if !ok {
				return fmt.Errorf("flow %q not found or invalid", args[1])
			}

			handlers, err := buildHandlers(cmd, configPath)
			if err != nil {
				return err
			}

			st := store.New()
			runner, err := stepflow.NewRunner(flow,
				stepflow.WithHandlers(handlers),
				stepflow.WithSink(st),
				stepflow.WithMetrics(observability.NewMetricsRecorder()),
				stepflow.WithSpanManager(observability.NewSpanManager()),
			)
			if err != nil {
				return err
			}

			execution, runErr := runner.Run(cmd.Context(), nil)
			printSummary(cmd, flow, execution)
			return runErr
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (yaml or json)")
	return cmd
}

// buildHandlers wires the builtin handlers. The llm handler is only
// registered when an endpoint is configured, via --config or the
// STEPFLOW_LLM_ENDPOINT / STEPFLOW_LLM_API_KEY / STEPFLOW_LLM_MODEL
// environment variables.
func buildHandlers(cmd *cobra.Command, configPath string) (map[stepflow.StepType]stepflow.Handler, error) {
	cfg := config.New(nil)
	if configPath != "" {
		var err error
		cfg, err = config.FromFile(configPath)
		if err != nil {
			return nil, err
		}
	}

	llmCfg := cfg.Sub("llm")
	endpoint := llmCfg.String("endpoint", os.Getenv("STEPFLOW_LLM_ENDPOINT"))
	apiKey := llmCfg.String("apiKey", os.Getenv("STEPFLOW_LLM_API_KEY"))
	model := llmCfg.String("model", os.Getenv("STEPFLOW_LLM_MODEL"))

	handlers := map[stepflow.StepType]stepflow.Handler{
		stepflow.StepTransform: steps.Transform(),
		stepflow.StepValidate:  steps.Validate(),
		stepflow.StepDisplay:   steps.Display(cmd.OutOrStdout()),
		stepflow.StepUserInput: promptHandler(cmd),
	}
	if endpoint != "" {
		client := llm.NewHTTPClient(endpoint,
			llm.WithAPIKey(apiKey),
			llm.WithModel(model),
			llm.WithTimeout(llmCfg.Duration("timeout", 2*time.Minute)),
		)
		handlers[stepflow.StepLLM] = steps.LLM(client, model)
	}
	return handlers, nil
}

// promptHandler reads a user-input step's value from stdin.
func promptHandler(cmd *cobra.Command) stepflow.Handler {
	reader := bufio.NewReader(cmd.InOrStdin())
	return func(ctx context.Context, step stepflow.Step, input map[string]any) (*trace.Result, error) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s> ", step.Name)
		line, err := reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read user input: %w", err)
		}
		return &trace.Result{Output: strings.TrimSpace(line)}, nil
	}
}

func printSummary(cmd *cobra.Command, flow stepflow.Flow, execution *trace.FlowExecution) {
	if execution == nil {
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\nexecution %s (%s)\n", execution.ID, execution.Status)
	for _, step := range flow.Steps {
		se := execution.Step(step.ID)
		if se == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "  %-20s %s\n", step.ID, trace.StatusIdle)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  %-20s %-8s %4dms", step.ID, se.Status, se.DurationMs)
		if se.Error != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s", se.Error)
		}
		fmt.Fprintln(cmd.OutOrStdout())
	}
	if flow.Output != "" {
		if se := execution.Step(flow.Output); se != nil && se.Output != nil {
			if data, err := json.MarshalIndent(se.Output, "", "  "); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "\noutput:\n%s\n", data)
			}
		}
	}
}
