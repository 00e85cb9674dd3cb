// Package scheduler computes leaf-first install waves from inter-tool
// dependencies. A wave is the maximal subset of pending requests whose
// dependencies are already satisfied by an earlier wave (or have none);
// a cycle in the dependency set is reported as a fatal error.
package scheduler

import (
	"maps"
	"slices"

	"github.com/kagenomi/tvm/internal/backend"
	tvmerrors "github.com/kagenomi/tvm/internal/errors"
)

// Node is one schedulable unit: a backend identifier plus the identifiers
// it must be installed after.
type Node struct {
	ID           backend.Identifier
	Dependencies []backend.Identifier
}

// Wave is a maximal subset of nodes with no unresolved dependency among
// the nodes remaining after earlier waves are removed.
type Wave struct {
	Nodes []Node
}

// graph is the internal DAG representation: edges run from a node to the
// dependencies it must wait on, keyed on backend.Identifier.
type graph struct {
	nodes    map[string]Node
	edges    map[string]map[string]struct{}
	inDegree map[string]int
}

func newGraph() *graph {
	return &graph{
		nodes:    make(map[string]Node),
		edges:    make(map[string]map[string]struct{}),
		inDegree: make(map[string]int),
	}
}

func (g *graph) addNode(n Node) {
	key := n.ID.Full
	if _, exists := g.nodes[key]; exists {
		return
	}
	g.nodes[key] = n
	g.inDegree[key] = 0
}

func (g *graph) addEdge(fromKey, toKey string) {
	if g.edges[fromKey] == nil {
		g.edges[fromKey] = make(map[string]struct{})
	}
	if _, exists := g.edges[fromKey][toKey]; !exists {
		g.edges[fromKey][toKey] = struct{}{}
		g.inDegree[fromKey]++
	}
}

type color int

const (
	white color = iota
	gray
	black
)

// detectCycle returns the offending identifier chain if the graph has a
// cycle, or nil if it is acyclic. Three-color DFS.
func (g *graph) detectCycle() []backend.Identifier {
	colors := make(map[string]color, len(g.nodes))
	parent := make(map[string]string, len(g.nodes))
	var cycle []string

	var dfs func(key string) bool
	dfs = func(key string) bool {
		colors[key] = gray
		for dep := range g.edges[key] {
			if colors[dep] == gray {
				cycle = []string{dep}
				for curr := key; curr != dep; curr = parent[curr] {
					cycle = append(cycle, curr)
				}
				cycle = append(cycle, dep)
				slices.Reverse(cycle)
				return true
			}
			if colors[dep] == white {
				parent[dep] = key
				if dfs(dep) {
					return true
				}
			}
		}
		colors[key] = black
		return false
	}

	for key := range g.nodes {
		if colors[key] == white {
			if dfs(key) {
				out := make([]backend.Identifier, 0, len(cycle))
				for _, k := range cycle {
					out = append(out, g.nodes[k].ID)
				}
				return out
			}
		}
	}
	return nil
}

// Schedule computes leaf-first waves over nodes. Each returned wave's
// nodes are sorted by identifier for deterministic iteration; wave order
// is the install order.
func Schedule(nodes []Node) ([]Wave, error) {
	g := newGraph()
	for _, n := range nodes {
		g.addNode(n)
	}
	for _, n := range nodes {
		for _, dep := range n.Dependencies {
			// Only edges into the requested set matter: a dependency not
			// present among the requests is already satisfied (installed,
			// or out of scope for this run) and is not itself scheduled.
			if _, ok := g.nodes[dep.Full]; ok {
				g.addEdge(n.ID.Full, dep.Full)
			}
		}
	}

	if cycle := g.detectCycle(); cycle != nil {
		return nil, tvmerrors.NewCycleError(identifiersToStrings(cycle))
	}

	inDegree := make(map[string]int, len(g.inDegree))
	maps.Copy(inDegree, g.inDegree)

	reverse := make(map[string][]string, len(g.nodes))
	for from, deps := range g.edges {
		for dep := range deps {
			reverse[dep] = append(reverse[dep], from)
		}
	}

	queue := make([]string, 0, len(g.nodes))
	for key, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, key)
		}
	}

	waves := make([]Wave, 0, len(g.nodes))
	for len(queue) > 0 {
		wave := Wave{Nodes: make([]Node, 0, len(queue))}
		next := make([]string, 0, len(g.nodes))

		for _, key := range queue {
			wave.Nodes = append(wave.Nodes, g.nodes[key])
			for _, dependent := range reverse[key] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}

		slices.SortFunc(wave.Nodes, func(a, b Node) int {
			switch {
			case a.ID.Full < b.ID.Full:
				return -1
			case a.ID.Full > b.ID.Full:
				return 1
			default:
				return 0
			}
		})

		waves = append(waves, wave)
		queue = next
	}

	return waves, nil
}

func identifiersToStrings(ids []backend.Identifier) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Full
	}
	return out
}
