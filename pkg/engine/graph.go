package engine

import (
	"container/heap"

	"github.com/vulntor/conductor/pkg/plugin"
)

// Graph is the dependency graph of one session's descriptors.
// An edge runs from B to A whenever A depends on B.
type Graph struct {
	nodes []*graphNode
	index map[string]int
}

type graphNode struct {
	desc plugin.Descriptor
	// position is the descriptor's place in the input, i.e. registration order.
	position int
	// deps are indices of present dependencies, in declaration order.
	deps       []int
	dependents []int
	// missing holds dependencies whose target is not in the graph.
	missing []plugin.Dependency
}

// BuildGraph constructs the graph and rejects cycles.
//
// Dependencies naming a plugin outside descs do not create edges; they are
// kept on the node and resolved by the scheduler's missing-dependency policy.
func BuildGraph(descs []plugin.Descriptor) (*Graph, error) {
	g := &Graph{
		nodes: make([]*graphNode, 0, len(descs)),
		index: make(map[string]int, len(descs)),
	}

	for i, d := range descs {
		if _, exists := g.index[d.Name]; exists {
			return nil, &plugin.DuplicateNameError{Name: d.Name}
		}
		g.index[d.Name] = i
		g.nodes = append(g.nodes, &graphNode{desc: d, position: i})
	}

	for i, n := range g.nodes {
		for _, dep := range n.desc.Dependencies {
			j, ok := g.index[dep.Plugin]
			if !ok {
				n.missing = append(n.missing, dep)
				continue
			}
			n.deps = append(n.deps, j)
			g.nodes[j].dependents = append(g.nodes[j].dependents, i)
		}
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, &CyclicDependencyError{Cycle: cycle}
	}
	return g, nil
}

// findCycle runs a depth-first search over dependency edges in input order and
// returns the first cycle found, or nil.
func (g *Graph) findCycle() []string {
	const (
		white = iota
		grey
		black
	)
	colour := make([]int, len(g.nodes))
	var stack []int
	var cycle []string

	var visit func(i int) bool
	visit = func(i int) bool {
		colour[i] = grey
		stack = append(stack, i)
		for _, j := range g.nodes[i].deps {
			switch colour[j] {
			case grey:
				start := 0
				for k, s := range stack {
					if s == j {
						start = k
						break
					}
				}
				for _, s := range stack[start:] {
					cycle = append(cycle, g.nodes[s].desc.Name)
				}
				cycle = append(cycle, g.nodes[j].desc.Name)
				return true
			case white:
				if visit(j) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		colour[i] = black
		return false
	}

	for i := range g.nodes {
		if colour[i] == white && visit(i) {
			return cycle
		}
	}
	return nil
}

// ResolveOrder returns a topological order of the descriptors. Among nodes
// whose dependencies are all placed, the lowest priority goes first, then the
// earliest registered. Priority never overrides a dependency edge.
func (g *Graph) ResolveOrder() []plugin.Descriptor {
	pending := make([]int, len(g.nodes))
	ready := &readyQueue{graph: g}
	for i, n := range g.nodes {
		pending[i] = len(n.deps)
		if pending[i] == 0 {
			heap.Push(ready, i)
		}
	}

	order := make([]plugin.Descriptor, 0, len(g.nodes))
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		order = append(order, g.nodes[i].desc)
		for _, j := range g.nodes[i].dependents {
			pending[j]--
			if pending[j] == 0 {
				heap.Push(ready, j)
			}
		}
	}
	return order
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// Has reports whether name is a node of the graph.
func (g *Graph) Has(name string) bool {
	_, ok := g.index[name]
	return ok
}

// DependenciesOf returns the present dependencies of name.
func (g *Graph) DependenciesOf(name string) []string {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	return g.names(g.nodes[i].deps)
}

// DependentsOf returns the plugins that depend on name.
func (g *Graph) DependentsOf(name string) []string {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	return g.names(g.nodes[i].dependents)
}

// MissingOf returns the dependencies of name whose target is not in the graph.
func (g *Graph) MissingOf(name string) []plugin.Dependency {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	return append([]plugin.Dependency(nil), g.nodes[i].missing...)
}

func (g *Graph) names(idx []int) []string {
	out := make([]string, 0, len(idx))
	for _, i := range idx {
		out = append(out, g.nodes[i].desc.Name)
	}
	return out
}

// readyQueue is a min-heap of node indices ordered by (priority, position).
type readyQueue struct {
	graph *Graph
	items []int
}

func (q *readyQueue) Len() int { return len(q.items) }

func (q *readyQueue) Less(a, b int) bool {
	na, nb := q.graph.nodes[q.items[a]], q.graph.nodes[q.items[b]]
	if na.desc.Priority != nb.desc.Priority {
		return na.desc.Priority < nb.desc.Priority
	}
	return na.position < nb.position
}

func (q *readyQueue) Swap(a, b int) { q.items[a], q.items[b] = q.items[b], q.items[a] }

func (q *readyQueue) Push(x any) { q.items = append(q.items, x.(int)) }

func (q *readyQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	q.items = old[:n-1]
	return item
}
