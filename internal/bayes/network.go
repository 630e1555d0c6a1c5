// Package bayes builds the randomized conditional-probability model of the
// discrete part of a conditional Gaussian model.
package bayes

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/gyaneshwarpardhi/cgsim/internal/dag"
)

var (
	ErrNotDiscrete  = errors.New("bayes: network graph must contain only discrete nodes")
	ErrParentValues = errors.New("bayes: invalid parent values")
)

// Network holds one conditional probability table per node.
// Node and parent references are indices into Nodes().
type Network struct {
	nodes   []dag.Node
	index   map[string]int
	parents [][]int
	dims    [][]int       // parent cardinalities, same order as parents
	tables  [][][]float64 // node → row → category
}

// Build creates a network over g and fills every table row with a random
// distribution: uniform draws normalized to sum 1.
func Build(g *dag.Graph, rng *rand.Rand) (*Network, error) {
	nodes := g.Nodes()
	n := &Network{
		nodes:   nodes,
		index:   make(map[string]int, len(nodes)),
		parents: make([][]int, len(nodes)),
		dims:    make([][]int, len(nodes)),
		tables:  make([][][]float64, len(nodes)),
	}
	for i, nd := range nodes {
		if nd.Kind() != dag.KindDiscrete {
			return nil, fmt.Errorf("%w: %s", ErrNotDiscrete, nd)
		}
		n.index[nd.Name()] = i
	}
	for i, nd := range nodes {
		rows := 1
		for _, p := range g.Parents(nd.Name()) {
			n.parents[i] = append(n.parents[i], n.index[p.Name()])
			n.dims[i] = append(n.dims[i], p.Categories())
			rows *= p.Categories()
		}
		table := make([][]float64, rows)
		for r := range table {
			table[r] = randomDistribution(nd.Categories(), rng)
		}
		n.tables[i] = table
	}
	return n, nil
}

func randomDistribution(k int, rng *rand.Rand) []float64 {
	row := make([]float64, k)
	sum := 0.0
	for j := range row {
		// Keep every category reachable.
		row[j] = rng.Float64() + 1e-6
		sum += row[j]
	}
	for j := range row {
		row[j] /= sum
	}
	return row
}

// NodeIndex returns the index of the named node.
func (n *Network) NodeIndex(name string) (int, bool) {
	i, ok := n.index[name]
	return i, ok
}

// Node returns the node at index i.
func (n *Network) Node(i int) dag.Node { return n.nodes[i] }

// Nodes returns all nodes in network order.
func (n *Network) Nodes() []dag.Node {
	out := make([]dag.Node, len(n.nodes))
	copy(out, n.nodes)
	return out
}

// Parents returns the parent indices of node i.
func (n *Network) Parents(i int) []int { return n.parents[i] }

// NumCategories returns the cardinality of node i.
func (n *Network) NumCategories(i int) int { return n.nodes[i].Categories() }

// NumRows returns the number of parent-value combinations of node i.
func (n *Network) NumRows(i int) int { return len(n.tables[i]) }

// TotalRows returns the number of conditional probability rows over all nodes.
func (n *Network) TotalRows() int {
	total := 0
	for i := range n.tables {
		total += n.NumRows(i)
	}
	return total
}

// RowIndex maps parent category values to a table row. The last parent
// varies fastest.
func (n *Network) RowIndex(i int, parentValues []int) (int, error) {
	dims := n.dims[i]
	if len(parentValues) != len(dims) {
		return 0, fmt.Errorf("%w: node %s expects %d values, got %d", ErrParentValues, n.nodes[i].Name(), len(dims), len(parentValues))
	}
	row := 0
	for k, v := range parentValues {
		if v < 0 || v >= dims[k] {
			return 0, fmt.Errorf("%w: node %s parent %d value %d out of [0,%d)", ErrParentValues, n.nodes[i].Name(), k, v, dims[k])
		}
		row = row*dims[k] + v
	}
	return row, nil
}

// Probability returns P(node i = category | row).
func (n *Network) Probability(i, row, category int) float64 {
	return n.tables[i][row][category]
}

// SetRow replaces one table row. probs must have one entry per category.
func (n *Network) SetRow(i, row int, probs []float64) error {
	if len(probs) != n.NumCategories(i) {
		return fmt.Errorf("bayes: node %s row needs %d probabilities, got %d", n.nodes[i].Name(), n.NumCategories(i), len(probs))
	}
	if row < 0 || row >= len(n.tables[i]) {
		return fmt.Errorf("bayes: node %s has no row %d", n.nodes[i].Name(), row)
	}
	cp := make([]float64, len(probs))
	copy(cp, probs)
	n.tables[i][row] = cp
	return nil
}
