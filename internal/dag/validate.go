package dag

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/graph/topo"
)

var (
	ErrInvalidGraph = errors.New("invalid step graph")
	ErrCycleFound   = errors.New("dependency cycle")
)

// GraphError is a step graph that failed validation. Steps names the steps
// involved, sorted.
type GraphError struct {
	Kind  error
	Steps []string
	Msg   string
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if len(e.Steps) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Steps, ", "))
	}
	return b.String()
}

func (e *GraphError) Unwrap() error { return e.Kind }

func invalidf(steps []string, format string, args ...any) error {
	return &GraphError{Kind: ErrInvalidGraph, Steps: steps, Msg: fmt.Sprintf(format, args...)}
}

// topoSort orders the canonical indices topologically, breaking ties by
// index. A cycle is reported through the strongly connected component whose
// sorted step names come first, so the error is stable.
func (g *TaskGraph) topoSort() ([]int, error) {
	sorted, err := topo.SortStabilized(g.dg, nil)
	if err != nil {
		var cycles topo.Unorderable
		if !errors.As(err, &cycles) || len(cycles) == 0 {
			return nil, &GraphError{Kind: ErrCycleFound, Msg: err.Error()}
		}
		var witness []string
		for _, component := range cycles {
			names := make([]string, len(component))
			for i, n := range component {
				names[i] = g.nodes[n.ID()].Name
			}
			sort.Strings(names)
			if witness == nil || names[0] < witness[0] {
				witness = names
			}
		}
		return nil, &GraphError{Kind: ErrCycleFound, Steps: witness}
	}
	order := make([]int, len(sorted))
	for i, n := range sorted {
		order[i] = int(n.ID())
	}
	return order, nil
}
