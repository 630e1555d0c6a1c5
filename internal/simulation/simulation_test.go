package simulation

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/cgsim/internal/bayes"
	"github.com/gyaneshwarpardhi/cgsim/internal/config"
	"github.com/gyaneshwarpardhi/cgsim/internal/dag"
	"github.com/gyaneshwarpardhi/cgsim/internal/dataset"
	"github.com/gyaneshwarpardhi/cgsim/internal/param"
	"github.com/gyaneshwarpardhi/cgsim/internal/sem"
)

func mustDiscrete(t *testing.T, name string, k int) dag.Node {
	t.Helper()
	n, err := dag.NewDiscrete(name, k, dag.RoleMeasured)
	require.NoError(t, err)
	return n
}

func buildGraph(t *testing.T, nodes []dag.Node, edges [][2]string) *dag.Graph {
	t.Helper()
	b := dag.NewBuilder()
	for _, n := range nodes {
		require.NoError(t, b.AddNode(n))
	}
	for _, e := range edges {
		require.NoError(t, b.AddEdge(e[0], e[1]))
	}
	return b.Build()
}

func chainGraph(t *testing.T, n int) *dag.Graph {
	t.Helper()
	nodes := make([]dag.Node, n)
	var edges [][2]string
	for i := range nodes {
		nodes[i] = dag.NewContinuous(string(rune('A'+i)), dag.RoleMeasured)
		if i > 0 {
			edges = append(edges, [2]string{nodes[i-1].Name(), nodes[i].Name()})
		}
	}
	return buildGraph(t, nodes, edges)
}

func newTableFor(g *dag.Graph, rows int) *dataset.Table {
	return dataset.NewTable(g.Nodes(), rows)
}

func newTestSampler(t *testing.T, mixed *dag.Graph, ranges param.Ranges, seed int64) (*Sampler, *bayes.Network) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	dg, cg, m, err := BuildErsatz(mixed, rng)
	require.NoError(t, err)
	net, err := bayes.Build(dg, rng)
	require.NoError(t, err)
	schema, err := sem.Build(cg)
	require.NoError(t, err)
	s := NewSampler(SamplerConfig{
		Graph:     mixed,
		Network:   net,
		Schema:    schema,
		Ersatz:    m,
		Params:    param.NewCache(ranges),
		GammaLow:  0.5,
		GammaHigh: 1.5,
	}, rng)
	return s, net
}

func testConf(seed int64) config.SimulationConf {
	sc := config.DefaultSimulation()
	sc.Seed = seed
	sc.SampleSize = 200
	sc.Graph.NumMeasures = 8
	return sc
}

func newTestSimulation(t *testing.T, sc config.SimulationConf) *Simulation {
	t.Helper()
	gen, err := dag.NewGenerator(sc.Graph)
	require.NoError(t, err)
	return New(sc, gen)
}

// ---------------------------------------------------------------------------
// Kind assignment
// ---------------------------------------------------------------------------

func TestDiscreteCount(t *testing.T) {
	cases := []struct {
		n       int
		percent float64
		want    int
	}{
		{10, 50, 5},
		{10, 33, 3},
		{3, 50, 1},
		{5, 100, 5},
		{5, 0, 0},
		{7, 99.9, 6},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DiscreteCount(tc.n, tc.percent), "n=%d p=%g", tc.n, tc.percent)
	}
}

func TestAssign_Partition(t *testing.T) {
	g := chainGraph(t, 10)
	a := NewKindAssigner(rand.New(rand.NewSource(1)))
	rng := rand.New(rand.NewSource(2))

	mixed, err := a.Assign(g, 30, 2, 4, rng)
	require.NoError(t, err)
	discrete := 0
	for _, n := range mixed.Nodes() {
		if n.Discrete() {
			discrete++
			assert.GreaterOrEqual(t, n.Categories(), 2)
			assert.LessOrEqual(t, n.Categories(), 4)
		} else {
			assert.Equal(t, 0, n.Categories())
		}
	}
	assert.Equal(t, 3, discrete)
	assert.Equal(t, g.Edges(), mixed.Edges())

	for _, n := range g.Nodes() {
		assert.False(t, n.Discrete(), "input graph must stay continuous")
	}
}

func TestAssign_PermutationCached(t *testing.T) {
	g := chainGraph(t, 8)
	a := NewKindAssigner(rand.New(rand.NewSource(4)))
	first := a.Permutation(g)
	assert.Equal(t, first, a.Permutation(g))

	m1, err := a.Assign(g, 50, 2, 2, rand.New(rand.NewSource(5)))
	require.NoError(t, err)
	m2, err := a.Assign(g, 50, 2, 2, rand.New(rand.NewSource(6)))
	require.NoError(t, err)
	for _, n := range m1.Nodes() {
		o, _ := m2.Node(n.Name())
		assert.Equal(t, n.Discrete(), o.Discrete(), "node %s", n.Name())
	}

	other := chainGraph(t, 5)
	assert.Len(t, a.Permutation(other), 5)
}

func TestAssign_InvalidCategories(t *testing.T) {
	a := NewKindAssigner(rand.New(rand.NewSource(1)))
	_, err := a.Assign(chainGraph(t, 3), 50, 3, 2, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// Ersatz builder
// ---------------------------------------------------------------------------

func TestBuildErsatz_Transparency(t *testing.T) {
	g := buildGraph(t,
		[]dag.Node{
			dag.NewContinuous("X", dag.RoleMeasured),
			dag.NewContinuous("Y", dag.RoleMeasured),
			mustDiscrete(t, "D", 3),
			mustDiscrete(t, "E", 2),
			dag.NewContinuous("Z", dag.RoleMeasured),
		},
		[][2]string{{"X", "D"}, {"Y", "D"}, {"X", "E"}, {"D", "E"}, {"D", "Z"}, {"X", "Y"}},
	)

	dg, cg, m, err := BuildErsatz(g, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	assert.Equal(t, 2, m.Len())
	px, ok := m.Proxy("X")
	require.True(t, ok)
	assert.Equal(t, "Ersatz_X", px.Name())
	assert.True(t, px.Discrete())
	assert.True(t, px.Latent())
	assert.GreaterOrEqual(t, px.Categories(), 2)
	assert.LessOrEqual(t, px.Categories(), 4)
	origin, ok := m.Origin("Ersatz_Y")
	require.True(t, ok)
	assert.Equal(t, "Y", origin)

	assert.Equal(t, 4, dg.NodeCount())
	for _, e := range [][2]string{{"Ersatz_X", "D"}, {"Ersatz_Y", "D"}, {"Ersatz_X", "E"}, {"D", "E"}} {
		assert.True(t, dg.HasEdge(e[0], e[1]), "missing %s -> %s", e[0], e[1])
	}
	assert.Equal(t, 4, dg.EdgeCount())
	for _, n := range dg.Nodes() {
		assert.True(t, n.Discrete())
	}

	assert.ElementsMatch(t, []string{"X", "Y", "Z"}, cg.Names())
	assert.True(t, cg.HasEdge("X", "Y"))
	assert.Equal(t, 1, cg.EdgeCount())

	// The mixed graph is untouched.
	assert.Equal(t, 5, g.NodeCount())
	assert.Len(t, g.Parents("D"), 2)
}

func TestBuildErsatz_DiscreteOnly(t *testing.T) {
	g := buildGraph(t,
		[]dag.Node{mustDiscrete(t, "A", 2), mustDiscrete(t, "B", 3)},
		[][2]string{{"A", "B"}},
	)
	dg, cg, m, err := BuildErsatz(g, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, 0, m.Len())
	assert.Equal(t, 2, dg.NodeCount())
	assert.True(t, dg.HasEdge("A", "B"))
	assert.Equal(t, 0, cg.NodeCount())
}

func TestProxyName_AvoidsCollision(t *testing.T) {
	g := buildGraph(t, []dag.Node{
		dag.NewContinuous("X", dag.RoleMeasured),
		dag.NewContinuous("Ersatz_X", dag.RoleMeasured),
	}, nil)
	assert.Equal(t, "Ersatz_X_", proxyName(g, "X"))
	assert.Equal(t, "Ersatz_Ersatz_X", proxyName(g, "Ersatz_X"))
}

// ---------------------------------------------------------------------------
// Sampler
// ---------------------------------------------------------------------------

func TestSample_AllColumnsPopulated(t *testing.T) {
	g := buildGraph(t,
		[]dag.Node{
			dag.NewContinuous("X", dag.RoleMeasured),
			mustDiscrete(t, "D", 3),
			dag.NewContinuous("Y", dag.RoleMeasured),
			mustDiscrete(t, "E", 2),
		},
		[][2]string{{"X", "D"}, {"D", "Y"}, {"X", "Y"}, {"Y", "E"}, {"D", "E"}},
	)
	s, _ := newTestSampler(t, g, param.DefaultRanges(), 10)
	tb, err := s.Sample(context.Background(), 500)
	require.NoError(t, err)
	assert.Equal(t, 500, tb.Rows())
	assert.Equal(t, []string{"X", "D", "Y", "E"}, tb.Names())

	for _, c := range tb.Columns() {
		if c.Node.Discrete() {
			seen := make(map[int]bool)
			for _, v := range c.Ints {
				require.True(t, v >= 0 && v < c.Node.Categories(), "%s = %d", c.Node.Name(), v)
				seen[v] = true
			}
			assert.Greater(t, len(seen), 1, "column %s should vary", c.Node.Name())
		} else {
			for _, v := range c.Floats {
				require.False(t, math.IsNaN(v) || math.IsInf(v, 0), "%s = %g", c.Node.Name(), v)
			}
		}
	}
	assert.Equal(t, 2, s.Breakpoints().Len(), "X and Y feed discrete children")
	assert.Greater(t, s.Params().Len(), 0)
}

func TestSample_UnpopulatedParentIsInvariantViolation(t *testing.T) {
	g := buildGraph(t,
		[]dag.Node{dag.NewContinuous("X", dag.RoleMeasured), dag.NewContinuous("Y", dag.RoleMeasured)},
		[][2]string{{"X", "Y"}},
	)
	s, _ := newTestSampler(t, g, param.DefaultRanges(), 1)
	y, _ := g.Node("Y")

	tb := newTableFor(g, 10)
	err := s.sampleNode(tb, y)
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestSample_DiscreteParentBeforeChild(t *testing.T) {
	g := buildGraph(t,
		[]dag.Node{mustDiscrete(t, "A", 2), mustDiscrete(t, "B", 2)},
		[][2]string{{"A", "B"}},
	)
	s, _ := newTestSampler(t, g, param.DefaultRanges(), 1)
	b, _ := g.Node("B")
	err := s.sampleNode(newTableFor(g, 5), b)
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestSample_ParameterDeterminism(t *testing.T) {
	g := buildGraph(t,
		[]dag.Node{mustDiscrete(t, "D", 3), dag.NewContinuous("Y", dag.RoleMeasured)},
		[][2]string{{"D", "Y"}},
	)
	ranges := param.DefaultRanges()
	ranges.VarLow, ranges.VarHigh = 0, 0
	s, net := newTestSampler(t, g, ranges, 3)
	require.NoError(t, net.SetRow(0, 0, []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}))
	tb, err := s.Sample(context.Background(), 300)
	require.NoError(t, err)

	d, _ := tb.Column("D")
	y, _ := tb.Column("Y")
	byCategory := make(map[int]float64)
	for r := 0; r < tb.Rows(); r++ {
		if v, ok := byCategory[d.Ints[r]]; ok {
			assert.Equal(t, v, y.Floats[r], "row %d", r)
			continue
		}
		byCategory[d.Ints[r]] = y.Floats[r]
	}
	assert.Len(t, byCategory, 3)
}

func TestSample_ConstantParentSkipsSine(t *testing.T) {
	g := chainGraph(t, 3)
	ranges := param.DefaultRanges()
	ranges.VarLow, ranges.VarHigh = 0, 0
	s, _ := newTestSampler(t, g, ranges, 8)
	tb, err := s.Sample(context.Background(), 50)
	require.NoError(t, err)
	for _, c := range tb.Columns() {
		for _, v := range c.Floats {
			require.False(t, math.IsNaN(v), "%s produced NaN", c.Node.Name())
			assert.Equal(t, c.Floats[0], v, "%s should be constant", c.Node.Name())
		}
	}
}

func TestGamma_HalfRangeOverScaledUniform(t *testing.T) {
	s, _ := newTestSampler(t, chainGraph(t, 2), param.DefaultRanges(), 1)
	s.rng = rand.New(rand.NewSource(5))
	u := 0.5 + rand.New(rand.NewSource(5)).Float64()
	assert.InDelta(t, 2/(2*math.Pi*u), s.gamma([]float64{-1, 3, 1}), 1e-12)
	assert.Zero(t, s.gamma([]float64{2, 2, 2}))
}

func TestSample_StructuralEquation(t *testing.T) {
	g := buildGraph(t,
		[]dag.Node{
			mustDiscrete(t, "D", 3),
			dag.NewContinuous("X", dag.RoleMeasured),
			dag.NewContinuous("Y", dag.RoleMeasured),
			dag.NewContinuous("Z", dag.RoleMeasured),
		},
		[][2]string{{"D", "X"}, {"X", "Y"}, {"X", "Z"}},
	)
	ranges := param.DefaultRanges()
	ranges.VarLow, ranges.VarHigh = 0, 0
	s, net := newTestSampler(t, g, ranges, 12)
	require.NoError(t, net.SetRow(0, 0, []float64{1.0 / 3, 1.0 / 3, 1.0 / 3}))
	tb, err := s.Sample(context.Background(), 300)
	require.NoError(t, err)

	x, _ := tb.Column("X")
	lo, hi := x.Floats[0], x.Floats[0]
	for _, v := range x.Floats {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	require.Greater(t, hi-lo, 0.0, "X should vary with D")
	half := (hi - lo) / 2

	lookup := func(p sem.Parameter, err error) float64 {
		t.Helper()
		require.NoError(t, err)
		v, ok := s.Params().Lookup(param.NewCombination(p, nil))
		require.True(t, ok, "%s was never drawn", p.ID)
		return v
	}
	gammas := make(map[string]float64)
	for _, child := range []string{"Y", "Z"} {
		gamma, ok := s.Gamma("X", child)
		require.True(t, ok)
		assert.GreaterOrEqual(t, gamma, half/(2*math.Pi*1.5))
		assert.LessOrEqual(t, gamma, half/(2*math.Pi*0.5))
		gammas[child] = gamma

		mean := lookup(s.schema.MeanParam(child))
		coef := lookup(s.schema.CoefParam("X", child))
		beta := lookup(s.schema.ShapeParam("X", child))
		col, _ := tb.Column(child)
		for r, xv := range x.Floats {
			want := mean + xv*coef + beta*math.Sin(xv/gamma)
			require.InDelta(t, want, col.Floats[r], 1e-9, "%s row %d", child, r)
		}
	}
	assert.NotEqual(t, gammas["Y"], gammas["Z"], "each child draws its own scale")

	_, ok := s.Gamma("D", "X")
	assert.False(t, ok, "discrete parents have no sine term")
}

func TestSample_RootNormalization(t *testing.T) {
	g := buildGraph(t, []dag.Node{dag.NewContinuous("R", dag.RoleMeasured)}, nil)
	ranges := param.DefaultRanges()
	ranges.VarLow, ranges.VarHigh = 2, 2
	ranges.MeanLow, ranges.MeanHigh = 0, 0
	s, _ := newTestSampler(t, g, ranges, 21)
	tb, err := s.Sample(context.Background(), 10000)
	require.NoError(t, err)

	r, _ := tb.Column("R")
	var m moments
	for _, v := range r.Floats {
		m = m.add(v)
	}
	assert.InDelta(t, 0, m.sum/float64(m.n), 0.1)
	assert.InDelta(t, 2, m.deviation(), 0.1)
}

func TestSample_CategoricalChiSquare(t *testing.T) {
	g := buildGraph(t, []dag.Node{mustDiscrete(t, "D", 3)}, nil)
	s, net := newTestSampler(t, g, param.DefaultRanges(), 99)
	want := []float64{0.2, 0.3, 0.5}
	require.NoError(t, net.SetRow(0, 0, want))

	const rows = 10000
	tb, err := s.Sample(context.Background(), rows)
	require.NoError(t, err)
	d, _ := tb.Column("D")
	counts := make([]float64, 3)
	for _, v := range d.Ints {
		counts[v]++
	}
	chi2 := 0.0
	for k, p := range want {
		expected := p * rows
		chi2 += (counts[k] - expected) * (counts[k] - expected) / expected
	}
	// Critical value for df=2 at alpha=0.001.
	assert.Less(t, chi2, 13.816, "counts %v", counts)
}

func TestDrawCategory_FallsBackToLast(t *testing.T) {
	g := buildGraph(t, []dag.Node{mustDiscrete(t, "D", 4)}, nil)
	s, net := newTestSampler(t, g, param.DefaultRanges(), 1)
	require.NoError(t, net.SetRow(0, 0, []float64{0, 0, 0, 0}))
	for i := 0; i < 20; i++ {
		assert.Equal(t, 3, s.drawCategory(0, 0))
	}
}

func TestSample_Cancelled(t *testing.T) {
	s, _ := newTestSampler(t, chainGraph(t, 3), param.DefaultRanges(), 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Sample(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

// ---------------------------------------------------------------------------
// Simulation
// ---------------------------------------------------------------------------

func TestRun_LabelsAndCounts(t *testing.T) {
	sc := testConf(17)
	sc.NumRuns = 3
	sim := newTestSimulation(t, sc)
	require.NoError(t, sim.Run(context.Background()))
	require.Equal(t, 3, sim.NumDataSets())
	for i := 0; i < 3; i++ {
		ds, err := sim.DataSet(i)
		require.NoError(t, err)
		assert.Equal(t, string(rune('1'+i)), ds.Label)
		assert.Equal(t, ds.Label, ds.Table.Name())
		assert.Equal(t, 200, ds.Table.Rows())
		g, err := sim.TrueGraph(i)
		require.NoError(t, err)
		assert.Same(t, ds.Graph, g)
	}
	_, err := sim.DataSet(3)
	assert.Error(t, err)
	assert.Equal(t, int64(17), sim.Seed())
}

func TestRun_Contradiction(t *testing.T) {
	sc := testConf(1)
	sc.DataType = config.DataTypeDiscrete
	sc.PercentDiscrete = 40
	sim := newTestSimulation(t, sc)
	err := sim.Run(context.Background())
	assert.ErrorIs(t, err, config.ErrContradiction)
	assert.Equal(t, 0, sim.NumDataSets())
}

func TestRun_DataTypes(t *testing.T) {
	for _, tc := range []struct {
		dataType string
		percent  float64
		discrete bool
	}{
		{config.DataTypeContinuous, 0, false},
		{config.DataTypeDiscrete, 100, true},
	} {
		sc := testConf(5)
		sc.DataType = tc.dataType
		sc.PercentDiscrete = tc.percent
		sim := newTestSimulation(t, sc)
		require.NoError(t, sim.Run(context.Background()), tc.dataType)
		ds, err := sim.DataSet(0)
		require.NoError(t, err)
		for _, c := range ds.Table.Columns() {
			assert.Equal(t, tc.discrete, c.Node.Discrete(), "%s column %s", tc.dataType, c.Node.Name())
		}
		assert.Equal(t, tc.dataType, sim.DataType())
		if tc.discrete {
			assert.Zero(t, ds.Handles)
			assert.GreaterOrEqual(t, ds.CPTRows, ds.Graph.NodeCount())
		} else {
			assert.Zero(t, ds.CPTRows)
			assert.Equal(t, 2*ds.Graph.NodeCount()+2*ds.Graph.EdgeCount(), ds.Handles)
		}
	}
}

func TestRun_Deterministic(t *testing.T) {
	run := func() DataSet {
		sim := newTestSimulation(t, testConf(1234))
		require.NoError(t, sim.Run(context.Background()))
		ds, err := sim.DataSet(0)
		require.NoError(t, err)
		return ds
	}
	a, b := run(), run()
	require.Equal(t, a.Table.Names(), b.Table.Names())
	for _, name := range a.Table.Names() {
		ca, _ := a.Table.Column(name)
		cb, _ := b.Table.Column(name)
		assert.Equal(t, ca.Ints, cb.Ints, name)
		assert.Equal(t, ca.Floats, cb.Floats, name)
	}
	assert.Equal(t, a.Graph.Edges(), b.Graph.Edges())
}

func TestRun_LatentProjectionRoundTrip(t *testing.T) {
	sc := testConf(77)
	sc.Graph.NumLatents = 3

	sc.SaveLatentVariables = true
	full := newTestSimulation(t, sc)
	require.NoError(t, full.Run(context.Background()))
	withLatent, _ := full.DataSet(0)

	sc.SaveLatentVariables = false
	sc.RandomizeColumnOrder = true
	proj := newTestSimulation(t, sc)
	require.NoError(t, proj.Run(context.Background()))
	measured, _ := proj.DataSet(0)

	assert.Equal(t, 11, withLatent.Table.NumColumns())
	assert.Equal(t, 8, measured.Table.NumColumns())
	assert.ElementsMatch(t, withLatent.Table.Measured().Names(), measured.Table.Names())
	for _, name := range measured.Table.Names() {
		want, _ := withLatent.Table.Column(name)
		got, _ := measured.Table.Column(name)
		assert.False(t, got.Node.Latent())
		assert.Equal(t, want.Ints, got.Ints, name)
		assert.Equal(t, want.Floats, got.Floats, name)
	}
}

func TestRun_SharedParameterCache(t *testing.T) {
	sc := testConf(8)
	sc.NumRuns = 2
	sc.ParameterCacheScope = config.ScopeSimulation
	sc.MinCategories, sc.MaxCategories = 2, 2
	sim := newTestSimulation(t, sc)
	require.NoError(t, sim.Run(context.Background()))
	first, _ := sim.DataSet(0)
	second, _ := sim.DataSet(1)
	// With the permutation and cache shared, the second run reuses constants.
	assert.Greater(t, first.Parameters, 0)
	assert.Less(t, second.Parameters, first.Parameters)
}

func TestRun_DifferentGraphsPerRun(t *testing.T) {
	sc := testConf(2)
	sc.NumRuns = 4
	sc.DifferentGraphsPerRun = true
	sc.Graph.AvgDegree = 3
	sim := newTestSimulation(t, sc)
	require.NoError(t, sim.Run(context.Background()))
	distinct := 0
	base, _ := sim.TrueGraph(0)
	for i := 1; i < 4; i++ {
		g, _ := sim.TrueGraph(i)
		if !assert.ObjectsAreEqual(base.Edges(), g.Edges()) {
			distinct++
		}
	}
	assert.Greater(t, distinct, 0)
}

func TestRun_Cancelled(t *testing.T) {
	sim := newTestSimulation(t, testConf(3))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sim.Run(ctx), context.Canceled)
	assert.Equal(t, 0, sim.NumDataSets())
}

func TestDescriptionAndKeys(t *testing.T) {
	sim := newTestSimulation(t, testConf(1))
	assert.Contains(t, sim.Description(), "Conditional Gaussian simulation using random forward DAG")
	keys := sim.ParameterKeys()
	assert.Contains(t, keys, "graph.num_measures")
	assert.Contains(t, keys, "sample_size")
	assert.Contains(t, keys, "data_type")
	assert.Contains(t, keys, "parameter_cache_scope")
	assert.Len(t, keys, 4+len(config.SimulationKeys()))
}

func TestNewStream_Independent(t *testing.T) {
	a := newStream(1, streamRun, 0).Int63()
	b := newStream(1, streamRun, 1).Int63()
	c := newStream(1, streamColumns, 0).Int63()
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, a, newStream(1, streamRun, 0).Int63())
}
