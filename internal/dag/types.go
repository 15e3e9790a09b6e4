package dag

import "regsim/internal/core"

// GraphHash identifies a TaskGraph by its step definitions and edges. It
// does not depend on the order either was supplied in.
type GraphHash string

func (h GraphHash) String() string { return string(h) }

// TaskDefHash identifies a step by its declared kind, parameters and paths.
// File contents are not covered, so it is available before anything runs;
// core.TaskHash is the content-aware counterpart used for caching.
type TaskDefHash string

func (h TaskDefHash) String() string { return string(h) }

// Edge makes To wait for From to finish successfully.
type Edge struct {
	From string
	To   string
}

// TaskNode is one step of a TaskGraph.
type TaskNode struct {
	Name           string
	Task           core.Task
	DefinitionHash TaskDefHash

	canonicalIndex int
}
