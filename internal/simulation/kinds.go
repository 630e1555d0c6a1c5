package simulation

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/hashicorp/go-set/v2"

	"github.com/gyaneshwarpardhi/cgsim/internal/dag"
)

// KindAssigner decides which nodes are discrete. It keeps one random node
// permutation until Reset, or until it is shown a graph with other node names.
type KindAssigner struct {
	rng   *rand.Rand
	order []string
	names *set.Set[string]
}

// NewKindAssigner returns an assigner drawing its permutation from rng.
func NewKindAssigner(rng *rand.Rand) *KindAssigner {
	return &KindAssigner{rng: rng}
}

// Reset forgets the cached permutation.
func (a *KindAssigner) Reset() {
	a.order = nil
	a.names = nil
}

// Permutation returns the cached node order for g, drawing it if needed.
func (a *KindAssigner) Permutation(g *dag.Graph) []string {
	names := g.Names()
	if a.order == nil || !a.names.Equal(set.From(names)) {
		a.rng.Shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })
		a.order = names
		a.names = set.From(names)
	}
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// DiscreteCount is the number of nodes made discrete: ⌊n·percent/100⌋.
func DiscreteCount(n int, percent float64) int {
	c := int(math.Floor(float64(n) * percent / 100))
	if c > n {
		return n
	}
	if c < 0 {
		return 0
	}
	return c
}

// Assign returns a copy of g whose first DiscreteCount permuted nodes are
// discrete with a category count drawn uniformly from [minCat, maxCat], and
// whose remaining nodes are continuous.
func (a *KindAssigner) Assign(g *dag.Graph, percent float64, minCat, maxCat int, rng *rand.Rand) (*dag.Graph, error) {
	if minCat < 2 || maxCat < minCat {
		return nil, fmt.Errorf("assign kinds: invalid category range [%d,%d]", minCat, maxCat)
	}
	order := a.Permutation(g)
	nDiscrete := DiscreteCount(len(order), percent)
	specs := make(map[string]dag.KindSpec, len(order))
	for i, name := range order {
		if i < nDiscrete {
			specs[name] = dag.KindSpec{Kind: dag.KindDiscrete, Categories: minCat + rng.Intn(maxCat-minCat+1)}
		} else {
			specs[name] = dag.KindSpec{Kind: dag.KindContinuous}
		}
	}
	return g.Rekind(specs)
}
