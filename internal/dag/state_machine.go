package dag

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"
)

// Transition moves taskName from one state to another. The caller names the
// expected prior state so a race shows up as an error; state is mutated only
// when the transition is valid.
func Transition(state ExecutionState, taskName string, from, to TaskState) error {
	cur, ok := state[taskName]
	if !ok {
		return fmt.Errorf("unknown task in state: %q", taskName)
	}
	if cur != from {
		return fmt.Errorf("invalid transition for %q: expected %s, got %s", taskName, from, cur)
	}
	if !isAllowedTransition(from, to) {
		return fmt.Errorf("disallowed transition for %q: %s -> %s", taskName, from, to)
	}
	state[taskName] = to
	return nil
}

func isAllowedTransition(from, to TaskState) bool {
	switch from {
	case TaskPending:
		return to == TaskRunning || to == TaskCached || to == TaskSkipped
	case TaskRunning:
		return to == TaskCompleted || to == TaskFailed
	default:
		return false
	}
}

// FailAndPropagate moves taskName from RUNNING to FAILED and marks every
// transitive dependent that is still PENDING as SKIPPED. It returns the newly
// skipped names in canonical index order.
//
// A RUNNING dependent is an invariant violation: it could only have been
// dispatched with an unfinished dependency.
func FailAndPropagate(g *TaskGraph, state ExecutionState, taskName string) ([]string, error) {
	if g == nil {
		return nil, fmt.Errorf("nil graph")
	}
	node, ok := g.byName[taskName]
	if !ok {
		return nil, fmt.Errorf("unknown task: %q", taskName)
	}

	cur, ok := state[taskName]
	if !ok {
		return nil, fmt.Errorf("unknown task in state: %q", taskName)
	}
	if cur != TaskRunning && cur != TaskFailed {
		return nil, fmt.Errorf("cannot fail %q from state %s", taskName, cur)
	}
	if cur == TaskRunning {
		state[taskName] = TaskFailed
	}

	// Collect every transitive dependent, then visit them in canonical order
	// so the result does not depend on traversal order.
	var downstream []int
	bfs := traverse.BreadthFirst{}
	bfs.Walk(g.dg, simple.Node(node.canonicalIndex), func(n graph.Node, _ int) bool {
		if int(n.ID()) != node.canonicalIndex {
			downstream = append(downstream, int(n.ID()))
		}
		return false
	})
	sort.Ints(downstream)

	var skipped []string
	for _, idx := range downstream {
		name := g.nodes[idx].Name
		switch state[name] {
		case TaskPending:
			state[name] = TaskSkipped
			skipped = append(skipped, name)
		case TaskRunning:
			return skipped, fmt.Errorf("invariant violation: dependent %q of failed %q is RUNNING", name, taskName)
		case "":
			return skipped, fmt.Errorf("missing state for %q", name)
		}
	}
	return skipped, nil
}

// AbortPending marks every PENDING task SKIPPED and returns their names in
// canonical index order. RUNNING tasks are left to finish.
func AbortPending(g *TaskGraph, state ExecutionState) []string {
	if g == nil {
		return nil
	}
	var skipped []string
	for _, n := range g.nodes {
		if state[n.Name] == TaskPending {
			state[n.Name] = TaskSkipped
			skipped = append(skipped, n.Name)
		}
	}
	return skipped
}
