package dag

import (
	"cmp"
	"slices"
)

// GetReadyTasks returns the PENDING steps whose dependencies have all
// completed or been replayed, ordered by depth and then name. Neither
// argument is modified.
func GetReadyTasks(g *TaskGraph, state ExecutionState) []string {
	if g == nil {
		return nil
	}
	var ready []*TaskNode
	for _, n := range g.nodes {
		if state[n.Name] == TaskPending && g.dependenciesSatisfied(n.canonicalIndex, state) {
			ready = append(ready, n)
		}
	}
	slices.SortFunc(ready, func(a, b *TaskNode) int {
		return cmp.Or(
			cmp.Compare(g.depth[a.canonicalIndex], g.depth[b.canonicalIndex]),
			cmp.Compare(a.Name, b.Name),
		)
	})
	names := make([]string, len(ready))
	for i, n := range ready {
		names[i] = n.Name
	}
	return names
}

func (g *TaskGraph) dependenciesSatisfied(idx int, state ExecutionState) bool {
	for _, p := range g.incoming[idx] {
		if !state[g.nodes[p].Name].Succeeded() {
			return false
		}
	}
	return true
}
