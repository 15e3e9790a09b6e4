// Package dag executes the pipeline's step graph.
//
// A TaskGraph is the immutable, validated definition: steps, dependency
// edges and a GraphHash that does not depend on insertion order. An
// Executor owns the mutable per-run ExecutionState and drives it through
// the PENDING → RUNNING → COMPLETED/FAILED (or PENDING → CACHED/SKIPPED)
// state machine, serially or with a bounded worker pool.
//
// A failed step skips everything downstream of it. With FailFast set, it
// also skips every step not yet started, so the run ends without producing
// any output that depends on a partial set of results.
package dag
