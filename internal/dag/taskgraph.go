package dag

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"

	"regsim/internal/core"
)

// TaskGraph is a validated, immutable step graph. Node IDs in the backing
// gonum graph are canonical indices: nodes sorted by definition hash, then
// name. It is safe for concurrent reads.
type TaskGraph struct {
	byName map[string]*TaskNode
	nodes  []*TaskNode

	dg *simple.DirectedGraph

	// Adjacency by canonical index, each list ascending.
	outgoing [][]int
	incoming [][]int

	order []int // topological, ties broken by canonical index
	depth []int
	hash  GraphHash
}

// NewTaskGraph builds and validates a step graph. Empty or duplicate step
// names, edges naming unknown steps, duplicate edges, self-loops and cycles
// are all rejected with a *GraphError.
func NewTaskGraph(tasks []core.Task, edges []Edge) (*TaskGraph, error) {
	if len(tasks) == 0 {
		return nil, invalidf(nil, "no steps")
	}

	byName := make(map[string]*TaskNode, len(tasks))
	nodes := make([]*TaskNode, 0, len(tasks))
	for _, t := range tasks {
		switch _, dup := byName[t.Name]; {
		case t.Name == "":
			return nil, invalidf(nil, "step name is required")
		case dup:
			return nil, invalidf([]string{t.Name}, "duplicate step")
		}
		n := &TaskNode{Name: t.Name, Task: t, DefinitionHash: computeTaskDefHash(t.Kind, t.Inputs, t.Params, t.Outputs)}
		byName[t.Name] = n
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].DefinitionHash != nodes[j].DefinitionHash {
			return nodes[i].DefinitionHash < nodes[j].DefinitionHash
		}
		return nodes[i].Name < nodes[j].Name
	})

	dg := simple.NewDirectedGraph()
	for i, n := range nodes {
		n.canonicalIndex = i
		dg.AddNode(simple.Node(i))
	}
	for _, e := range edges {
		from, ok := byName[e.From]
		if !ok {
			return nil, invalidf([]string{e.From}, "edge from unknown step")
		}
		to, ok := byName[e.To]
		if !ok {
			return nil, invalidf([]string{e.To}, "edge to unknown step")
		}
		if from == to {
			return nil, invalidf([]string{e.From}, "step depends on itself")
		}
		u, v := int64(from.canonicalIndex), int64(to.canonicalIndex)
		if dg.HasEdgeFromTo(u, v) {
			return nil, invalidf([]string{e.From, e.To}, "duplicate edge")
		}
		dg.SetEdge(dg.NewEdge(simple.Node(u), simple.Node(v)))
	}

	g := &TaskGraph{
		byName:   byName,
		nodes:    nodes,
		dg:       dg,
		outgoing: make([][]int, len(nodes)),
		incoming: make([][]int, len(nodes)),
	}
	for i := range nodes {
		g.outgoing[i] = sortedIDs(dg.From(int64(i)))
		g.incoming[i] = sortedIDs(dg.To(int64(i)))
	}

	order, err := g.topoSort()
	if err != nil {
		return nil, err
	}
	g.order = order
	g.depth = g.longestPathDepths()
	g.hash = g.computeGraphHash()
	return g, nil
}

func sortedIDs(it graph.Nodes) []int {
	var out []int
	for it.Next() {
		out = append(out, int(it.Node().ID()))
	}
	sort.Ints(out)
	return out
}

// Hash returns the stable identity of the graph.
func (g *TaskGraph) Hash() GraphHash { return g.hash }

// Node returns a node by step name.
func (g *TaskGraph) Node(name string) (*TaskNode, bool) {
	n, ok := g.byName[name]
	return n, ok
}

// Nodes returns the nodes in canonical order.
func (g *TaskGraph) Nodes() []*TaskNode {
	return append([]*TaskNode(nil), g.nodes...)
}

// Tasks returns the step definitions in canonical order.
func (g *TaskGraph) Tasks() []core.Task {
	out := make([]core.Task, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = n.Task
	}
	return out
}

// Len is the number of steps.
func (g *TaskGraph) Len() int { return len(g.nodes) }

// Edges lists every dependency ordered by the canonical index of From, then To.
func (g *TaskGraph) Edges() []Edge {
	var out []Edge
	for u, children := range g.outgoing {
		for _, v := range children {
			out = append(out, Edge{From: g.nodes[u].Name, To: g.nodes[v].Name})
		}
	}
	return out
}

// Dependencies returns the sorted names of the direct dependencies of name,
// or nil for an unknown step.
func (g *TaskGraph) Dependencies(name string) []string {
	n, ok := g.byName[name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.incoming[n.canonicalIndex]))
	for _, p := range g.incoming[n.canonicalIndex] {
		out = append(out, g.nodes[p].Name)
	}
	sort.Strings(out)
	return out
}

// Depth is the length of the longest dependency chain ending at name.
func (g *TaskGraph) Depth(name string) (int, bool) {
	n, ok := g.byName[name]
	if !ok {
		return 0, false
	}
	return g.depth[n.canonicalIndex], true
}

// TopologicalOrder lists every step after all of its dependencies. The order
// is a pure function of the graph.
func (g *TaskGraph) TopologicalOrder() []string {
	names := make([]string, len(g.order))
	for i, idx := range g.order {
		names[i] = g.nodes[idx].Name
	}
	return names
}

func (g *TaskGraph) longestPathDepths() []int {
	depth := make([]int, len(g.nodes))
	for _, u := range g.order {
		for _, p := range g.incoming[u] {
			depth[u] = max(depth[u], depth[p]+1)
		}
	}
	return depth
}

// computeGraphHash covers the definition hash of every node and the edge
// list, both in canonical order, so it ignores insertion order.
func (g *TaskGraph) computeGraphHash() GraphHash {
	h := sha256.New()
	writeCount(h, len(g.nodes))
	for _, n := range g.nodes {
		writeField(h, []byte(n.DefinitionHash))
	}
	writeCount(h, g.dg.Edges().Len())
	for u, children := range g.outgoing {
		for _, v := range children {
			writeCount(h, u)
			writeCount(h, v)
		}
	}
	return GraphHash(hex.EncodeToString(h.Sum(nil)))
}
