package dag

import (
	"time"

	"regsim/internal/core"
	"regsim/internal/trace"
)

// GraphResult summarizes one execution of a graph.
type GraphResult struct {
	GraphHash GraphHash

	// FinalState is the terminal state of every node.
	FinalState ExecutionState

	// ExecutionOrder lists the tasks that were started (moved to RUNNING),
	// in dispatch order.
	ExecutionOrder []string

	// FailureOrder lists failed tasks in the order their failure was
	// observed.
	FailureOrder []string

	TaskHashes map[string]core.TaskHash
	ExitCode   map[string]int

	// Errors holds the original step error of every failed task.
	Errors map[string]error

	// Durations holds the wall time of every executed or replayed task.
	Durations map[string]time.Duration

	// Trace is the canonical logical trace of the run.
	Trace trace.ExecutionTrace
}

// FirstFailure returns the first failed task and its error.
func (r *GraphResult) FirstFailure() (string, error, bool) {
	if r == nil || len(r.FailureOrder) == 0 {
		return "", nil, false
	}
	name := r.FailureOrder[0]
	return name, r.Errors[name], true
}

// Succeeded reports whether every task completed or was replayed.
func (r *GraphResult) Succeeded() bool {
	if r == nil {
		return false
	}
	for _, st := range r.FinalState {
		if !st.Succeeded() {
			return false
		}
	}
	return true
}
