package simulation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/hashicorp/go-set/v2"

	"github.com/gyaneshwarpardhi/cgsim/internal/bayes"
	"github.com/gyaneshwarpardhi/cgsim/internal/dag"
	"github.com/gyaneshwarpardhi/cgsim/internal/dataset"
	"github.com/gyaneshwarpardhi/cgsim/internal/discretize"
	"github.com/gyaneshwarpardhi/cgsim/internal/param"
	"github.com/gyaneshwarpardhi/cgsim/internal/sem"
)

// ErrInvariant marks construction bugs: a column read before it was sampled,
// a node missing from one of the models, and the like.
var ErrInvariant = errors.New("simulation: invariant violated")

// Sampler fills a data table for one mixed graph, node by node in causal
// order. Its parameter and breakpoint caches live as long as the sampler.
type Sampler struct {
	graph       *dag.Graph
	network     *bayes.Network
	schema      *sem.Schema
	ersatz      *ErsatzMapping
	params      *param.Cache
	breakpoints *discretize.Cache
	gammaLow    float64
	gammaHigh   float64
	rng         *rand.Rand

	populated *set.Set[string]
	gammas    map[dag.Edge]float64
}

// SamplerConfig bundles the models a Sampler draws from.
type SamplerConfig struct {
	Graph     *dag.Graph
	Network   *bayes.Network
	Schema    *sem.Schema
	Ersatz    *ErsatzMapping
	Params    *param.Cache
	GammaLow  float64
	GammaHigh float64
}

// NewSampler returns a sampler with a fresh breakpoint cache.
func NewSampler(c SamplerConfig, rng *rand.Rand) *Sampler {
	return &Sampler{
		graph:       c.Graph,
		network:     c.Network,
		schema:      c.Schema,
		ersatz:      c.Ersatz,
		params:      c.Params,
		breakpoints: discretize.NewCache(),
		gammaLow:    c.GammaLow,
		gammaHigh:   c.GammaHigh,
		rng:         rng,
		populated:   set.New[string](c.Graph.NodeCount()),
		gammas:      make(map[dag.Edge]float64),
	}
}

// Params exposes the parameter cache.
func (s *Sampler) Params() *param.Cache { return s.params }

// Breakpoints exposes the breakpoint cache.
func (s *Sampler) Breakpoints() *discretize.Cache { return s.breakpoints }

// Gamma returns the sine scale drawn for the edge parent -> child, if the
// child has been sampled.
func (s *Sampler) Gamma(parent, child string) (float64, bool) {
	g, ok := s.gammas[dag.Edge{From: parent, To: child}]
	return g, ok
}

// Sample draws rows values for every node of the graph. ctx is checked
// between nodes.
func (s *Sampler) Sample(ctx context.Context, rows int) (*dataset.Table, error) {
	if rows < 1 {
		return nil, fmt.Errorf("sample: need at least one row, got %d", rows)
	}
	t := dataset.NewTable(s.graph.Nodes(), rows)
	for _, node := range s.graph.CausalOrder() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.sampleNode(t, node); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (s *Sampler) sampleNode(t *dataset.Table, node dag.Node) error {
	if node.Discrete() {
		if err := s.sampleDiscrete(t, node); err != nil {
			return fmt.Errorf("node %s: %w", node.Name(), err)
		}
	} else {
		m, err := s.sampleContinuous(t, node)
		if err != nil {
			return fmt.Errorf("node %s: %w", node.Name(), err)
		}
		if err := s.addNoise(t, node, m); err != nil {
			return fmt.Errorf("node %s: %w", node.Name(), err)
		}
	}
	s.populated.Insert(node.Name())
	return nil
}

// column returns a fully sampled column.
func (s *Sampler) column(t *dataset.Table, name string) (*dataset.Column, error) {
	if !s.populated.Contains(name) {
		return nil, fmt.Errorf("%w: column %s read before it was sampled", ErrInvariant, name)
	}
	c, ok := t.Column(name)
	if !ok {
		return nil, fmt.Errorf("%w: no column %s", ErrInvariant, name)
	}
	return c, nil
}

// -----------------------------------------------------------------------
// Discrete nodes
// -----------------------------------------------------------------------

// parentSource yields one CPT parent's category for a row, either straight
// from a discrete column or by bucketing a continuous one.
type parentSource struct {
	ints   []int
	floats []float64
	edges  []float64
}

func (p parentSource) value(row int) int {
	if p.ints != nil {
		return p.ints[row]
	}
	return discretize.Bucket(p.edges, p.floats[row])
}

func (s *Sampler) sampleDiscrete(t *dataset.Table, node dag.Node) error {
	bi, ok := s.network.NodeIndex(node.Name())
	if !ok {
		return fmt.Errorf("%w: not in the conditional probability model", ErrInvariant)
	}
	parents := s.network.Parents(bi)
	sources := make([]parentSource, len(parents))
	for k, p := range parents {
		pn := s.network.Node(p)
		if origin, isProxy := s.ersatz.Origin(pn.Name()); isProxy {
			col, err := s.column(t, origin)
			if err != nil {
				return err
			}
			edges, err := s.breakpoints.Breakpoints(origin, col.Floats, pn.Categories())
			if err != nil {
				return err
			}
			sources[k] = parentSource{floats: col.Floats, edges: edges}
			continue
		}
		col, err := s.column(t, pn.Name())
		if err != nil {
			return err
		}
		if !col.Node.Discrete() {
			return fmt.Errorf("%w: parent %s is continuous but has no proxy", ErrInvariant, pn.Name())
		}
		sources[k] = parentSource{ints: col.Ints}
	}

	out, _ := t.Column(node.Name())
	values := make([]int, len(parents))
	for r := 0; r < t.Rows(); r++ {
		for k, src := range sources {
			values[k] = src.value(r)
		}
		row, err := s.network.RowIndex(bi, values)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvariant, err)
		}
		out.Ints[r] = s.drawCategory(bi, row)
	}
	return nil
}

// drawCategory is inverse-CDF sampling over one CPT row. When rounding keeps
// the cumulative sum below the draw, the last category is chosen.
func (s *Sampler) drawCategory(bi, row int) int {
	r := s.rng.Float64()
	k := s.network.NumCategories(bi)
	sum := 0.0
	for c := 0; c < k; c++ {
		sum += s.network.Probability(bi, row, c)
		if sum >= r {
			return c
		}
	}
	return k - 1
}

// -----------------------------------------------------------------------
// Continuous nodes
// -----------------------------------------------------------------------

// moments accumulates the running first and second raw moments of a column.
type moments struct {
	n          int
	sum, sumSq float64
}

func (m moments) add(v float64) moments {
	return moments{n: m.n + 1, sum: m.sum + v, sumSq: m.sumSq + v*v}
}

// deviation is sqrt(E[x²] − E[x]²), clamped at zero against rounding.
func (m moments) deviation() float64 {
	if m.n == 0 {
		return 0
	}
	mean := m.sum / float64(m.n)
	return math.Sqrt(math.Max(0, m.sumSq/float64(m.n)-mean*mean))
}

type continuousParent struct {
	values []float64
	coef   sem.Parameter
	shape  sem.Parameter
	gamma  float64
}

// parentsOf splits the working-graph parents of node by kind. Discrete
// parents are returned sorted by name.
func (s *Sampler) parentsOf(t *dataset.Table, node dag.Node) ([]*dataset.Column, []*dataset.Column, error) {
	var discrete, continuous []*dataset.Column
	for _, p := range s.graph.Parents(node.Name()) {
		col, err := s.column(t, p.Name())
		if err != nil {
			return nil, nil, err
		}
		if p.Discrete() {
			discrete = append(discrete, col)
		} else {
			continuous = append(continuous, col)
		}
	}
	sort.Slice(discrete, func(i, j int) bool { return discrete[i].Node.Name() < discrete[j].Node.Name() })
	return discrete, continuous, nil
}

func assignments(discrete []*dataset.Column, row int, buf []param.Assignment) []param.Assignment {
	buf = buf[:0]
	for _, d := range discrete {
		buf = append(buf, param.Assignment{Node: d.Node.Name(), Category: d.Ints[row]})
	}
	return buf
}

func (s *Sampler) sampleContinuous(t *dataset.Table, node dag.Node) (moments, error) {
	discrete, continuous, err := s.parentsOf(t, node)
	if err != nil {
		return moments{}, err
	}
	mean, err := s.schema.MeanParam(node.Name())
	if err != nil {
		return moments{}, fmt.Errorf("%w: %v", ErrInvariant, err)
	}
	cps := make([]continuousParent, 0, len(continuous))
	for _, col := range continuous {
		coef, err := s.schema.CoefParam(col.Node.Name(), node.Name())
		if err != nil {
			return moments{}, fmt.Errorf("%w: %v", ErrInvariant, err)
		}
		shape, err := s.schema.ShapeParam(col.Node.Name(), node.Name())
		if err != nil {
			return moments{}, fmt.Errorf("%w: %v", ErrInvariant, err)
		}
		cps = append(cps, continuousParent{
			values: col.Floats,
			coef:   coef,
			shape:  shape,
			gamma:  s.gammaFor(dag.Edge{From: col.Node.Name(), To: node.Name()}, col.Floats),
		})
	}

	out, _ := t.Column(node.Name())
	var m moments
	buf := make([]param.Assignment, 0, len(discrete))
	for r := 0; r < t.Rows(); r++ {
		values := assignments(discrete, r, buf)
		v := 0.0
		for _, cp := range cps {
			x := cp.values[r]
			coef := s.params.Value(param.NewCombination(cp.coef, values), s.rng)
			beta := s.params.Value(param.NewCombination(cp.shape, values), s.rng)
			v += x * coef
			if cp.gamma != 0 {
				v += beta * math.Sin(x/cp.gamma)
			}
		}
		v += s.params.Value(param.NewCombination(mean, values), s.rng)
		out.Floats[r] = v
		m = m.add(v)
	}
	return m, nil
}

// gammaFor returns the sine scale of edge e, drawing it on first use.
func (s *Sampler) gammaFor(e dag.Edge, parent []float64) float64 {
	if g, ok := s.gammas[e]; ok {
		return g
	}
	g := s.gamma(parent)
	s.gammas[e] = g
	return g
}

// gamma scales the sine term of one parent: half the parent's empirical
// range over 2π·U(gammaLow, gammaHigh). A constant parent yields 0, which
// disables the sine term.
func (s *Sampler) gamma(values []float64) float64 {
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	u := s.gammaLow + (s.gammaHigh-s.gammaLow)*s.rng.Float64()
	return (hi - lo) / 2 / (2 * math.Pi * u)
}

// addNoise is the second pass over a continuous column: every row gets
// Gaussian noise with standard deviation deviation·var, where deviation is
// the column's empirical spread (1 for nodes without continuous parents).
func (s *Sampler) addNoise(t *dataset.Table, node dag.Node, m moments) error {
	discrete, continuous, err := s.parentsOf(t, node)
	if err != nil {
		return err
	}
	deviation := 1.0
	if len(continuous) > 0 {
		deviation = m.deviation()
	}
	vp, err := s.schema.VarParam(node.Name())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvariant, err)
	}
	out, _ := t.Column(node.Name())
	buf := make([]param.Assignment, 0, len(discrete))
	for r := 0; r < t.Rows(); r++ {
		sd := deviation * s.params.Value(param.NewCombination(vp, assignments(discrete, r, buf)), s.rng)
		out.Floats[r] += sd * s.rng.NormFloat64()
	}
	return nil
}
