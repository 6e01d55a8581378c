// Package stepflow is a validation and execution engine for multi-step
// AI workflows defined as directed acyclic graphs with typed step
// contracts.
//
// A Flow is a named, versioned collection of Steps connected by
// dependsOn edges. Validate checks every flow against a fixed set of
// structural invariants (acyclicity, root presence, reachability,
// unique ids, reference validity, completeness) plus per-type step
// contracts, and a Registry publishes only flows that pass. A Runner
// drives a validated flow step by step, recording a full execution
// trace (timing, payloads, token cost) through the trace package and
// mirroring it into a store.Store where independent observers can
// watch live or historical runs.
//
// The llm subpackage wraps the "structured JSON from an LLM" problem
// in a layered, retrying client; the steps subpackage provides builtin
// handlers for llm, transform, validate, and display steps.
package stepflow
