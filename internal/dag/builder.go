package dag

import (
	"fmt"
	"math/rand"

	"github.com/gyaneshwarpardhi/cgsim/internal/config"
)

// Generator produces the causal graphs a simulation samples from.
type Generator interface {
	Generate(rng *rand.Rand) (*Graph, error)
	Description() string
	ParameterKeys() []string
}

// NewGenerator picks the generator described by conf: a fixed graph when
// nodes are listed explicitly, a random forward DAG otherwise.
func NewGenerator(conf config.GraphConf) (Generator, error) {
	if len(conf.Nodes) > 0 {
		g, err := BuildFixed(conf)
		if err != nil {
			return nil, err
		}
		return &Fixed{graph: g}, nil
	}
	return &RandomForward{
		NumMeasures: conf.NumMeasures,
		NumLatents:  conf.NumLatents,
		AvgDegree:   conf.AvgDegree,
		MaxIndegree: conf.MaxIndegree,
	}, nil
}

// BuildFixed constructs a graph from an explicit node and edge list.
// All nodes start out continuous; kind assignment happens per run.
func BuildFixed(conf config.GraphConf) (*Graph, error) {
	b := NewBuilder()
	for _, nd := range conf.Nodes {
		role := RoleMeasured
		if nd.Latent {
			role = RoleLatent
		}
		if err := b.AddNode(NewContinuous(nd.Name, role)); err != nil {
			return nil, fmt.Errorf("graph node %s: %w", nd.Name, err)
		}
	}
	for _, e := range conf.Edges {
		if err := b.AddEdge(e.From, e.To); err != nil {
			return nil, fmt.Errorf("graph edge %s -> %s: %w", e.From, e.To, err)
		}
	}
	return b.Build(), nil
}

// Fixed returns the same user-supplied graph on every call.
type Fixed struct {
	graph *Graph
}

func (f *Fixed) Generate(*rand.Rand) (*Graph, error) { return f.graph, nil }
func (f *Fixed) Description() string                 { return "a fixed graph" }
func (f *Fixed) ParameterKeys() []string             { return []string{"graph.nodes", "graph.edges"} }

// RandomForward draws a DAG by placing the variables in a random order and
// adding each forward edge with probability AvgDegree/(n-1), subject to
// MaxIndegree.
type RandomForward struct {
	NumMeasures int
	NumLatents  int
	AvgDegree   float64
	MaxIndegree int
}

func (r *RandomForward) Description() string {
	return fmt.Sprintf("random forward DAG (%d measured, %d latent, avg degree %.2g)", r.NumMeasures, r.NumLatents, r.AvgDegree)
}

func (r *RandomForward) ParameterKeys() []string {
	return []string{"graph.num_measures", "graph.num_latents", "graph.avg_degree", "graph.max_indegree"}
}

func (r *RandomForward) Generate(rng *rand.Rand) (*Graph, error) {
	n := r.NumMeasures + r.NumLatents
	if n < 1 {
		return nil, fmt.Errorf("random forward: need at least one variable, got %d", n)
	}
	nodes := make([]Node, 0, n)
	for i := 1; i <= r.NumMeasures; i++ {
		nodes = append(nodes, NewContinuous(fmt.Sprintf("X%d", i), RoleMeasured))
	}
	for i := 1; i <= r.NumLatents; i++ {
		nodes = append(nodes, NewContinuous(fmt.Sprintf("L%d", i), RoleLatent))
	}

	b := NewBuilder()
	for _, nd := range nodes {
		if err := b.AddNode(nd); err != nil {
			return nil, err
		}
	}
	if n == 1 {
		return b.Build(), nil
	}

	order := rng.Perm(n)
	p := r.AvgDegree / float64(n-1)
	indegree := make([]int, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			child := order[j]
			if r.MaxIndegree > 0 && indegree[child] >= r.MaxIndegree {
				continue
			}
			if rng.Float64() >= p {
				continue
			}
			if err := b.AddEdge(nodes[order[i]].Name(), nodes[child].Name()); err != nil {
				return nil, err
			}
			indegree[child]++
		}
	}
	return b.Build(), nil
}
