package pipeline

import (
	"bytes"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"regsim/internal/core"
	"regsim/internal/dag"
)

// PlanStep is one step of a printed plan.
type PlanStep struct {
	core.Task `yaml:",inline"`
	Depth     int      `yaml:"depth"`
	DependsOn []string `yaml:"depends_on,omitempty"`
}

// PlanDocument is the printable form of a step graph.
type PlanDocument struct {
	GraphHash string     `yaml:"graph_hash"`
	Steps     []PlanStep `yaml:"steps"`
}

// Describe lists the steps of g ordered by (depth, name), the order the
// serial scheduler prefers.
func Describe(g *dag.TaskGraph) PlanDocument {
	doc := PlanDocument{GraphHash: g.Hash().String()}
	for _, name := range g.TopologicalOrder() {
		node, _ := g.Node(name)
		depth, _ := g.Depth(name)
		doc.Steps = append(doc.Steps, PlanStep{
			Task:      node.Task,
			Depth:     depth,
			DependsOn: g.Dependencies(name),
		})
	}
	sort.Slice(doc.Steps, func(i, j int) bool {
		a, b := doc.Steps[i], doc.Steps[j]
		if a.Depth != b.Depth {
			return a.Depth < b.Depth
		}
		return a.Name < b.Name
	})
	return doc
}

// YAML renders the document.
func (d PlanDocument) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("encoding plan: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
