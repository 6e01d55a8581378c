package benchmarks

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stepflow/stepflow/pkg/stepflow"
	"github.com/stepflow/stepflow/pkg/stepflow/store"
	"github.com/stepflow/stepflow/pkg/stepflow/trace"
)

// noopHandler does minimal work to measure framework overhead.
func noopHandler(ctx context.Context, step stepflow.Step, input map[string]any) (*trace.Result, error) {
	return &trace.Result{Output: step.ID}, nil
}

func benchmarkRun(b *testing.B, flow stepflow.Flow, opts ...stepflow.RunnerOption) {
	opts = append(opts,
		stepflow.WithHandler(stepflow.StepChat, noopHandler),
		stepflow.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	runner, err := stepflow.NewRunner(flow, opts...)
	if err != nil {
		b.Fatal(err)
	}

	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := runner.Run(ctx, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRun_Chain10(b *testing.B) {
	benchmarkRun(b, chainFlow(10))
}

func BenchmarkRun_Chain100(b *testing.B) {
	benchmarkRun(b, chainFlow(100))
}

func BenchmarkRun_Fan100(b *testing.B) {
	benchmarkRun(b, fanFlow(100))
}

func BenchmarkRun_Parallel10(b *testing.B) {
	flow := fanFlow(11)
	for i := 1; i < len(flow.Steps); i++ {
		flow.Steps[i].Parallel = true
	}
	benchmarkRun(b, flow)
}

func BenchmarkRun_Chain10_WithStore(b *testing.B) {
	benchmarkRun(b, chainFlow(10), stepflow.WithSink(store.New()))
}
