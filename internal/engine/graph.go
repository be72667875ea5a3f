package engine

import (
	"fmt"
	"strings"

	"github.com/stagehand-io/stagehand/internal/model"
)

// Graph orders stages for deployment. Edges come from declared dependsOn
// entries and from cross-stack references: a stage that imports an export
// depends on the stage that produces it.
type Graph struct {
	nodes    map[string]*graphNode
	order    []string // deployment order
	revOrder []string // teardown order, the exact reverse
}

type graphNode struct {
	name     string
	edges    []string // stages this node depends on
	revEdges []string // stages that depend on this node
}

// BuildGraph resolves stage dependencies. Every import must be produced by
// some other stage's export; an unresolved import or a dependency cycle is
// an error.
func BuildGraph(stages []*model.Stage) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*graphNode, len(stages))}

	producers := map[string]string{} // export name -> producing stage
	for _, s := range stages {
		for _, exp := range s.Exports {
			if prev, ok := producers[exp]; ok && prev != s.Name {
				return nil, fmt.Errorf("export %q is produced by both %q and %q", exp, prev, s.Name)
			}
			producers[exp] = s.Name
		}
	}

	for _, s := range stages {
		g.nodes[s.Name] = &graphNode{name: s.Name}
	}

	for _, s := range stages {
		node := g.nodes[s.Name]

		for _, dep := range s.DependsOn {
			if _, ok := g.nodes[dep]; !ok {
				return nil, fmt.Errorf("stage %q depends on unknown stage %q", s.Name, dep)
			}
			node.edges = append(node.edges, dep)
		}

		for _, imp := range s.Imports {
			producer, ok := producers[imp]
			if !ok {
				return nil, fmt.Errorf("stage %q imports %q, which no stage exports", s.Name, imp)
			}
			if producer == s.Name {
				return nil, fmt.Errorf("stage %q imports its own export %q", s.Name, imp)
			}
			node.edges = append(node.edges, producer)
		}

		node.edges = dedupe(node.edges)
	}

	for _, node := range g.nodes {
		for _, dep := range node.edges {
			g.nodes[dep].revEdges = append(g.nodes[dep].revEdges, node.name)
		}
	}

	order, err := g.topoSort(stages)
	if err != nil {
		return nil, err
	}
	g.order = order

	g.revOrder = make([]string, len(order))
	for i, name := range order {
		g.revOrder[len(order)-1-i] = name
	}

	return g, nil
}

// DeployOrder returns stages in dependency-respecting deployment order.
// A stage's imports are always produced by a stage earlier in this order.
func (g *Graph) DeployOrder() []string {
	return g.order
}

// TeardownOrder returns the exact reverse of the deployment order.
func (g *Graph) TeardownOrder() []string {
	return g.revOrder
}

// Dependencies returns the direct dependencies of a stage.
func (g *Graph) Dependencies(name string) []string {
	if node, ok := g.nodes[name]; ok {
		return node.edges
	}
	return nil
}

// TransitiveDeps returns every stage reachable through dependency edges.
func (g *Graph) TransitiveDeps(name string) []string {
	var out []string
	seen := map[string]bool{name: true}
	queue := append([]string{}, g.Dependencies(name)...)
	for len(queue) > 0 {
		dep := queue[0]
		queue = queue[1:]
		if seen[dep] {
			continue
		}
		seen[dep] = true
		out = append(out, dep)
		queue = append(queue, g.Dependencies(dep)...)
	}
	return out
}

// topoSort is Kahn's algorithm, breaking ties by manifest position so the
// order is deterministic.
func (g *Graph) topoSort(stages []*model.Stage) ([]string, error) {
	inDegree := make(map[string]int, len(g.nodes))
	for name, node := range g.nodes {
		inDegree[name] = len(node.edges)
	}

	var sorted []string
	done := make(map[string]bool, len(g.nodes))
	for len(sorted) < len(g.nodes) {
		next := ""
		for _, s := range stages {
			if !done[s.Name] && inDegree[s.Name] == 0 {
				next = s.Name
				break
			}
		}
		if next == "" {
			var cycle []string
			for _, s := range stages {
				if !done[s.Name] {
					cycle = append(cycle, s.Name)
				}
			}
			return nil, fmt.Errorf("dependency cycle between stages: %s", strings.Join(cycle, ", "))
		}
		done[next] = true
		sorted = append(sorted, next)
		for _, dependent := range g.nodes[next].revEdges {
			inDegree[dependent]--
		}
	}

	return sorted, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, v := range in {
		if !seen[v] {
			out = append(out, v)
			seen[v] = true
		}
	}
	return out
}
