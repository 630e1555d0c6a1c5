package simulation

import (
	"fmt"
	"math/rand"

	"github.com/gyaneshwarpardhi/cgsim/internal/dag"
)

const ersatzPrefix = "Ersatz_"

// ErsatzMapping associates continuous parents of discrete nodes with their
// discrete proxies.
type ErsatzMapping struct {
	proxies map[string]dag.Node // continuous name → proxy
	origins map[string]string   // proxy name → continuous name
}

func newErsatzMapping() *ErsatzMapping {
	return &ErsatzMapping{
		proxies: make(map[string]dag.Node),
		origins: make(map[string]string),
	}
}

// Proxy returns the proxy standing in for a continuous node.
func (m *ErsatzMapping) Proxy(continuous string) (dag.Node, bool) {
	n, ok := m.proxies[continuous]
	return n, ok
}

// Origin returns the continuous node a proxy stands in for.
func (m *ErsatzMapping) Origin(proxy string) (string, bool) {
	o, ok := m.origins[proxy]
	return o, ok
}

// Len returns the number of proxies.
func (m *ErsatzMapping) Len() int {
	return len(m.proxies)
}

// BuildErsatz splits the mixed graph g into a discrete graph, in which every
// continuous parent x of a discrete node y is replaced by a proxy Ersatz_x
// (2–4 categories, one per distinct x) with the edge Ersatz_x → y, and a
// continuous graph holding the continuous nodes and the edges among them.
func BuildErsatz(g *dag.Graph, rng *rand.Rand) (*dag.Graph, *dag.Graph, *ErsatzMapping, error) {
	var discrete, continuous []string
	for _, n := range g.Nodes() {
		if n.Discrete() {
			discrete = append(discrete, n.Name())
		} else {
			continuous = append(continuous, n.Name())
		}
	}

	db := dag.NewBuilder()
	for _, name := range discrete {
		n, _ := g.Node(name)
		if err := db.AddNode(n); err != nil {
			return nil, nil, nil, err
		}
	}
	for _, e := range g.Edges() {
		from, _ := g.Node(e.From)
		to, _ := g.Node(e.To)
		if from.Discrete() && to.Discrete() {
			if err := db.AddEdge(e.From, e.To); err != nil {
				return nil, nil, nil, fmt.Errorf("ersatz: %w", err)
			}
		}
	}

	m := newErsatzMapping()
	for _, name := range discrete {
		for _, x := range g.Parents(name) {
			if x.Discrete() {
				continue
			}
			proxy, ok := m.proxies[x.Name()]
			if !ok {
				var err error
				proxy, err = dag.NewDiscrete(proxyName(g, x.Name()), rng.Intn(3)+2, dag.RoleLatent)
				if err != nil {
					return nil, nil, nil, err
				}
				m.proxies[x.Name()] = proxy
				m.origins[proxy.Name()] = x.Name()
				if err := db.AddNode(proxy); err != nil {
					return nil, nil, nil, fmt.Errorf("ersatz: %w", err)
				}
			}
			if err := db.AddEdge(proxy.Name(), name); err != nil {
				return nil, nil, nil, fmt.Errorf("ersatz: %w", err)
			}
		}
	}

	return db.Build(), g.Subgraph(continuous), m, nil
}

// proxyName picks Ersatz_<name>, extended with underscores if g already has
// a node by that name.
func proxyName(g *dag.Graph, name string) string {
	p := ersatzPrefix + name
	for {
		if _, taken := g.Node(p); !taken {
			return p
		}
		p += "_"
	}
}
