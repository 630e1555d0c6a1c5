package dag

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-set/v2"
)

var (
	ErrDuplicateNode = errors.New("dag: duplicate node")
	ErrUnknownNode   = errors.New("dag: unknown node")
	ErrCycle         = errors.New("dag: edge would create a cycle")
)

// Edge is a directed edge From → To, by node name.
type Edge struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// Graph holds nodes and their parent/child adjacency lists.
// It is immutable once built; every transformation returns a new Graph.
type Graph struct {
	order    []string            // insertion order
	nodes    map[string]Node     // name → Node
	parents  map[string][]string // child → ordered parents
	children map[string][]string // parent → ordered children
	edges    []Edge
}

func newGraph() *Graph {
	return &Graph{
		nodes:    make(map[string]Node),
		parents:  make(map[string][]string),
		children: make(map[string][]string),
	}
}

// Builder assembles a Graph, rejecting edges that would break acyclicity.
type Builder struct {
	g *Graph
}

// NewBuilder allocates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{g: newGraph()}
}

// AddNode registers a node by its name.
func (b *Builder) AddNode(n Node) error {
	if _, ok := b.g.nodes[n.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.Name())
	}
	b.g.nodes[n.Name()] = n
	b.g.order = append(b.g.order, n.Name())
	return nil
}

// AddEdge records that from is a direct cause of to. Duplicate edges are ignored.
func (b *Builder) AddEdge(from, to string) error {
	if _, ok := b.g.nodes[from]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, from)
	}
	if _, ok := b.g.nodes[to]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, to)
	}
	if b.g.HasEdge(from, to) {
		return nil
	}
	if from == to || b.g.reachable(to, from) {
		return fmt.Errorf("%w: %s -> %s", ErrCycle, from, to)
	}
	b.g.parents[to] = append(b.g.parents[to], from)
	b.g.children[from] = append(b.g.children[from], to)
	b.g.edges = append(b.g.edges, Edge{From: from, To: to})
	return nil
}

// Build returns the assembled graph. The builder starts over afterwards.
func (b *Builder) Build() *Graph {
	g := b.g
	b.g = newGraph()
	return g
}

// reachable reports whether dst can be reached from src along directed edges.
func (g *Graph) reachable(src, dst string) bool {
	seen := set.New[string](len(g.nodes))
	stack := []string{src}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == dst {
			return true
		}
		if !seen.Insert(cur) {
			continue
		}
		stack = append(stack, g.children[cur]...)
	}
	return false
}

// Node returns a node by name.
func (g *Graph) Node(name string) (Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Nodes returns all nodes in insertion order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.nodes[name])
	}
	return out
}

// Names returns all node names in insertion order.
func (g *Graph) Names() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Edges returns all edges in insertion order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// HasEdge reports whether from → to is present.
func (g *Graph) HasEdge(from, to string) bool {
	for _, c := range g.children[from] {
		if c == to {
			return true
		}
	}
	return false
}

// Parents returns the direct causes of a node, in edge insertion order.
func (g *Graph) Parents(name string) []Node {
	return g.lookup(g.parents[name])
}

func (g *Graph) lookup(names []string) []Node {
	out := make([]Node, 0, len(names))
	for _, name := range names {
		out = append(out, g.nodes[name])
	}
	return out
}

// NodeCount returns the total number of registered nodes.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the total number of edges.
func (g *Graph) EdgeCount() int {
	return len(g.edges)
}

// CausalOrder returns the nodes so that every parent precedes its children.
// Ties are broken by insertion order, which makes the order deterministic.
func (g *Graph) CausalOrder() []Node {
	indegree := make(map[string]int, len(g.order))
	for _, name := range g.order {
		indegree[name] = len(g.parents[name])
	}
	out := make([]Node, 0, len(g.order))
	done := set.New[string](len(g.order))
	for len(out) < len(g.order) {
		progressed := false
		for _, name := range g.order {
			if done.Contains(name) || indegree[name] > 0 {
				continue
			}
			done.Insert(name)
			out = append(out, g.nodes[name])
			for _, c := range g.children[name] {
				indegree[c]--
			}
			progressed = true
		}
		if !progressed {
			// Unreachable: the builder rejects cycles.
			panic("dag: causal order on cyclic graph")
		}
	}
	return out
}

// Subgraph returns the graph induced by the named nodes. Unknown names are skipped.
func (g *Graph) Subgraph(names []string) *Graph {
	keep := set.From(names)
	b := NewBuilder()
	for _, name := range g.order {
		if keep.Contains(name) {
			_ = b.AddNode(g.nodes[name])
		}
	}
	for _, e := range g.edges {
		if keep.Contains(e.From) && keep.Contains(e.To) {
			_ = b.AddEdge(e.From, e.To)
		}
	}
	return b.Build()
}

// KindSpec is the target kind for one node in Rekind.
type KindSpec struct {
	Kind       Kind
	Categories int
}

// Rekind returns a new graph with freshly typed nodes. Edges are re-pointed by
// name; the receiver is left untouched.
func (g *Graph) Rekind(specs map[string]KindSpec) (*Graph, error) {
	b := NewBuilder()
	for _, name := range g.order {
		spec, ok := specs[name]
		if !ok {
			return nil, fmt.Errorf("rekind: no kind for node %s: %w", name, ErrUnknownNode)
		}
		n, err := g.nodes[name].WithKind(spec.Kind, spec.Categories)
		if err != nil {
			return nil, fmt.Errorf("rekind: %w", err)
		}
		if err := b.AddNode(n); err != nil {
			return nil, err
		}
	}
	for _, e := range g.edges {
		if err := b.AddEdge(e.From, e.To); err != nil {
			return nil, fmt.Errorf("rekind: %w", err)
		}
	}
	return b.Build(), nil
}
