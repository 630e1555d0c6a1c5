// Package simulation generates mixed continuous/discrete data sets from
// randomized conditional Gaussian models over causal graphs.
package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"github.com/gyaneshwarpardhi/cgsim/internal/bayes"
	"github.com/gyaneshwarpardhi/cgsim/internal/config"
	"github.com/gyaneshwarpardhi/cgsim/internal/dag"
	"github.com/gyaneshwarpardhi/cgsim/internal/dataset"
	"github.com/gyaneshwarpardhi/cgsim/internal/metrics"
	"github.com/gyaneshwarpardhi/cgsim/internal/param"
	"github.com/gyaneshwarpardhi/cgsim/internal/sem"
)

// Random streams derived from the simulation seed.
const (
	streamGraph uint64 = iota + 1
	streamPermutation
	streamRun
	streamColumns
)

// DataSet is one run's output: the labelled table and the kind-typed graph
// it was sampled from.
type DataSet struct {
	Label      string
	Graph      *dag.Graph
	Table      *dataset.Table
	Parameters int // structural constants drawn for this run
	Handles    int // structural parameter handles of the continuous model
	CPTRows    int // conditional probability rows of the discrete model
	Proxies    int // ersatz nodes in the conditional probability model
}

// Simulation runs NumRuns independent simulations described by a
// SimulationConf. It is not safe for concurrent use; run one per job.
type Simulation struct {
	conf      config.SimulationConf
	generator dag.Generator
	log       *slog.Logger

	seed     int64
	assigner *KindAssigner
	datasets []DataSet
}

// New returns a simulation for conf drawing graphs from generator.
func New(conf config.SimulationConf, generator dag.Generator) *Simulation {
	return &Simulation{conf: conf, generator: generator, log: slog.Default()}
}

// WithLogger replaces the default logger.
func (s *Simulation) WithLogger(l *slog.Logger) *Simulation {
	s.log = l
	return s
}

// Run validates the settings and produces NumRuns data sets, replacing any
// produced by an earlier Run. Nothing is kept when an error is returned.
func (s *Simulation) Run(ctx context.Context) error {
	if err := config.ValidateSimulation(s.conf); err != nil {
		return err
	}
	s.seed = s.conf.Seed
	if s.seed == 0 {
		s.seed = time.Now().UnixNano()
	}
	s.datasets = nil
	s.assigner = NewKindAssigner(newStream(s.seed, streamPermutation, 0))
	s.log.Info("simulation starting",
		"seed", s.seed,
		"runs", s.conf.NumRuns,
		"sample_size", s.conf.SampleSize,
		"data_type", s.conf.DataType,
	)

	start := time.Now()
	graphRng := newStream(s.seed, streamGraph, 0)
	g, err := s.generator.Generate(graphRng)
	if err != nil {
		return fmt.Errorf("generate graph: %w", err)
	}

	var shared *param.Cache
	if s.conf.ParameterCacheScope == config.ScopeSimulation {
		shared = param.NewCache(s.ranges())
	}

	out := make([]DataSet, 0, s.conf.NumRuns)
	for run := 0; run < s.conf.NumRuns; run++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if run > 0 && s.conf.DifferentGraphsPerRun {
			if g, err = s.generator.Generate(graphRng); err != nil {
				return fmt.Errorf("generate graph for run %d: %w", run+1, err)
			}
		}
		if s.conf.PermutationScope == config.ScopeRun {
			s.assigner.Reset()
		}
		cache := shared
		if cache == nil {
			cache = param.NewCache(s.ranges())
		}
		ds, err := s.simulateRun(ctx, run, g, cache)
		if err != nil {
			return fmt.Errorf("run %d: %w", run+1, err)
		}
		out = append(out, ds)
	}
	s.datasets = out

	metrics.SimulationDuration.Observe(float64(time.Since(start).Milliseconds()))
	s.log.Info("simulation finished",
		"seed", s.seed,
		"datasets", len(out),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (s *Simulation) simulateRun(ctx context.Context, run int, g *dag.Graph, cache *param.Cache) (DataSet, error) {
	rng := newStream(s.seed, streamRun, uint64(run))

	mixed, err := s.assigner.Assign(g, s.percentDiscrete(), s.conf.MinCategories, s.conf.MaxCategories, rng)
	if err != nil {
		return DataSet{}, err
	}
	discreteGraph, continuousGraph, ersatz, err := BuildErsatz(mixed, rng)
	if err != nil {
		return DataSet{}, err
	}
	network, err := bayes.Build(discreteGraph, rng)
	if err != nil {
		return DataSet{}, err
	}
	schema, err := sem.Build(continuousGraph)
	if err != nil {
		return DataSet{}, err
	}

	before := cache.Len()
	sampler := NewSampler(SamplerConfig{
		Graph:     mixed,
		Network:   network,
		Schema:    schema,
		Ersatz:    ersatz,
		Params:    cache,
		GammaLow:  s.conf.GammaLow,
		GammaHigh: s.conf.GammaHigh,
	}, rng)
	table, err := sampler.Sample(ctx, s.conf.SampleSize)
	if err != nil {
		return DataSet{}, err
	}
	drawn := cache.Len() - before

	if !s.conf.SaveLatentVariables {
		table = table.Measured()
	}
	if s.conf.RandomizeColumnOrder {
		table = table.Shuffled(newStream(s.seed, streamColumns, uint64(run)))
	}
	label := strconv.Itoa(run + 1)
	table.SetName(label)

	metrics.DatasetsGenerated.Inc()
	metrics.RowsSampled.Add(float64(table.Rows()))
	metrics.ParametersDrawn.Add(float64(drawn))
	s.log.Debug("run finished",
		"run", label,
		"nodes", mixed.NodeCount(),
		"edges", mixed.EdgeCount(),
		"proxies", ersatz.Len(),
		"parameters", drawn,
		"handles", schema.NumParameters(),
		"cpt_rows", network.TotalRows(),
	)
	return DataSet{
		Label:      label,
		Graph:      mixed,
		Table:      table,
		Parameters: drawn,
		Handles:    schema.NumParameters(),
		CPTRows:    network.TotalRows(),
		Proxies:    ersatz.Len(),
	}, nil
}

func (s *Simulation) percentDiscrete() float64 {
	switch s.conf.DataType {
	case config.DataTypeContinuous:
		return 0
	case config.DataTypeDiscrete:
		return 100
	}
	return s.conf.PercentDiscrete
}

func (s *Simulation) ranges() param.Ranges {
	c := s.conf
	return param.Ranges{
		VarLow: c.VarLow, VarHigh: c.VarHigh,
		CoefLow: c.CoefLow, CoefHigh: c.CoefHigh, CoefSymmetric: c.CoefSymmetric,
		MeanLow: c.MeanLow, MeanHigh: c.MeanHigh,
		BetaLow: c.BetaLow, BetaHigh: c.BetaHigh,
	}
}

// Seed returns the seed of the last Run, which is the time-based seed
// actually used when the configured seed was 0.
func (s *Simulation) Seed() int64 { return s.seed }

// NumDataSets returns the number of data sets produced by the last Run.
func (s *Simulation) NumDataSets() int { return len(s.datasets) }

// DataSet returns the i-th data set (0-based).
func (s *Simulation) DataSet(i int) (DataSet, error) {
	if i < 0 || i >= len(s.datasets) {
		return DataSet{}, fmt.Errorf("data set %d out of range [0,%d)", i, len(s.datasets))
	}
	return s.datasets[i], nil
}

// DataSets returns all data sets of the last Run.
func (s *Simulation) DataSets() []DataSet {
	out := make([]DataSet, len(s.datasets))
	copy(out, s.datasets)
	return out
}

// TrueGraph returns the kind-typed graph of the i-th data set.
func (s *Simulation) TrueGraph(i int) (*dag.Graph, error) {
	ds, err := s.DataSet(i)
	if err != nil {
		return nil, err
	}
	return ds.Graph, nil
}

// DataType reports the configured data type.
func (s *Simulation) DataType() string { return s.conf.DataType }

func (s *Simulation) Description() string {
	return "Conditional Gaussian simulation using " + s.generator.Description()
}

// ParameterKeys lists the graph generator's keys followed by the simulation's.
func (s *Simulation) ParameterKeys() []string {
	return append(s.generator.ParameterKeys(), config.SimulationKeys()...)
}

// newStream returns an independent generator for one (stream, index) pair of
// a seed, scrambled with the splitmix64 finalizer.
func newStream(seed int64, stream, index uint64) *rand.Rand {
	z := uint64(seed) + stream*0x9e3779b97f4a7c15 + index*0xbf58476d1ce4e5b9
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z ^= z >> 31
	return rand.New(rand.NewSource(int64(z)))
}
