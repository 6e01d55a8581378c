package stepflow

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/stepflow/stepflow/pkg/stepflow/observability"
)

// Registry holds the validated subset of a static list of candidate
// flows. Every candidate is validated once, at load time; a flow with
// any violation is absent from the registry entirely, not present but
// broken, so callers treat "not found" and "invalid" identically.
type Registry struct {
	mu     sync.RWMutex
	flows  map[string]Flow
	errs   []ValidationError
	logger *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger used to report rejected flows.
// Defaults to slog.Default().
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry validates each candidate flow and publishes only those
// with zero violations. Every violation is reported to the operator
// log, one line per invariant in the form `[invariant] step="<id>":
// <message>`, grouped under a per-flow header.
func NewRegistry(candidates []Flow, opts ...RegistryOption) *Registry {
	r := &Registry{
		flows:  make(map[string]Flow, len(candidates)),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	for _, flow := range candidates {
		if _, exists := r.flows[flow.ID]; exists {
			r.logger.Warn("duplicate flow id ignored", slog.String("flow_id", flow.ID))
			continue
		}

		errs := Validate(flow)
		if len(errs) == 0 {
			r.flows[flow.ID] = flow
			continue
		}

		r.errs = append(r.errs, errs...)
		violations := make([]string, len(errs))
		for i, e := range errs {
			violations[i] = e.Error()
		}
		observability.LogFlowRejected(r.logger, flow.ID, violations)
	}

	return r
}

// Get returns the validated flow with the given id.
func (r *Registry) Get(id string) (Flow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	flow, ok := r.flows[id]
	return flow, ok
}

// IDs returns the ids of all registered flows, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.flows))
	for id := range r.flows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered flows.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.flows)
}

// Errors returns every violation recorded while loading, across all
// rejected flows. Intended for operator tooling; executors must rely
// on Get alone.
func (r *Registry) Errors() []ValidationError {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ValidationError, len(r.errs))
	copy(out, r.errs)
	return out
}
