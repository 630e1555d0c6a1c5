package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-set/v2"
)

// reservedNameChars may not appear in node names: they delimit parameter
// identifiers and parent-value keys.
const reservedNameChars = "()=,|>"

var (
	// ErrContradiction is returned when the data type and percent_discrete disagree.
	ErrContradiction = errors.New("config: data type contradicts percent_discrete")
	// ErrInvalid wraps the aggregated list of validation failures.
	ErrInvalid = errors.New("config validation errors")
)

// Validate checks the whole config:
//   - Required fields and supported backends
//   - Engine sizing
//   - Simulation settings (see ValidateSimulation)
func Validate(cfg *Config) error {
	if cfg.Version == "" {
		return fmt.Errorf("config: version is required")
	}
	var errs []string
	if cfg.Engine.Workers < 1 {
		errs = append(errs, fmt.Sprintf("engine: workers must be >= 1, got %d", cfg.Engine.Workers))
	}
	if cfg.Engine.QueueDepth < 1 {
		errs = append(errs, fmt.Sprintf("engine: queue_depth must be >= 1, got %d", cfg.Engine.QueueDepth))
	}
	switch cfg.Storage.Backend {
	case "memory":
	case "sqlite":
		if cfg.Storage.SQLitePath == "" {
			errs = append(errs, "storage: sqlite_path is required for the sqlite backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage: unsupported backend %q", cfg.Storage.Backend))
	}
	if cfg.Storage.CacheSize < 0 {
		errs = append(errs, fmt.Sprintf("storage: cache_size must be >= 0, got %d", cfg.Storage.CacheSize))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalid, strings.Join(errs, "\n  - "))
	}
	return ValidateSimulation(cfg.Simulation)
}

// ValidateSimulation checks simulation settings. A data type contradiction is
// reported on its own and first; every other problem is collected.
func ValidateSimulation(sc SimulationConf) error {
	switch sc.DataType {
	case DataTypeDiscrete:
		if sc.PercentDiscrete != 100 {
			return fmt.Errorf("%w: discrete data requires percent_discrete = 100, got %g", ErrContradiction, sc.PercentDiscrete)
		}
	case DataTypeContinuous:
		if sc.PercentDiscrete != 0 {
			return fmt.Errorf("%w: continuous data requires percent_discrete = 0, got %g", ErrContradiction, sc.PercentDiscrete)
		}
	case DataTypeMixed:
	default:
		return fmt.Errorf("%w:\n  - data_type must be one of continuous, discrete, mixed; got %q", ErrInvalid, sc.DataType)
	}

	var errs []string
	if sc.PercentDiscrete < 0 || sc.PercentDiscrete > 100 {
		errs = append(errs, fmt.Sprintf("percent_discrete must be in [0,100], got %g", sc.PercentDiscrete))
	}
	if sc.MinCategories < 2 {
		errs = append(errs, fmt.Sprintf("min_categories must be >= 2, got %d", sc.MinCategories))
	}
	if sc.MaxCategories < sc.MinCategories {
		errs = append(errs, fmt.Sprintf("max_categories (%d) must be >= min_categories (%d)", sc.MaxCategories, sc.MinCategories))
	}
	if sc.NumRuns < 1 {
		errs = append(errs, fmt.Sprintf("num_runs must be >= 1, got %d", sc.NumRuns))
	}
	if sc.SampleSize < 1 {
		errs = append(errs, fmt.Sprintf("sample_size must be >= 1, got %d", sc.SampleSize))
	}
	checkRange := func(name string, low, high float64) {
		if low > high {
			errs = append(errs, fmt.Sprintf("%s_low (%g) must be <= %s_high (%g)", name, low, name, high))
		}
	}
	checkRange("var", sc.VarLow, sc.VarHigh)
	checkRange("coef", sc.CoefLow, sc.CoefHigh)
	checkRange("mean", sc.MeanLow, sc.MeanHigh)
	checkRange("beta", sc.BetaLow, sc.BetaHigh)
	checkRange("gamma", sc.GammaLow, sc.GammaHigh)
	if sc.VarLow < 0 {
		errs = append(errs, fmt.Sprintf("var_low must be >= 0, got %g", sc.VarLow))
	}
	if sc.GammaLow <= 0 {
		errs = append(errs, fmt.Sprintf("gamma_low must be > 0, got %g", sc.GammaLow))
	}
	switch sc.PermutationScope {
	case ScopeRun, ScopeSimulation:
	default:
		errs = append(errs, fmt.Sprintf("permutation_scope must be %q or %q, got %q", ScopeRun, ScopeSimulation, sc.PermutationScope))
	}
	switch sc.ParameterCacheScope {
	case ScopeRun:
	case ScopeSimulation:
		if sc.DifferentGraphsPerRun {
			errs = append(errs, "parameter_cache_scope \"simulation\" cannot be combined with different_graphs_per_run")
		}
	default:
		errs = append(errs, fmt.Sprintf("parameter_cache_scope must be %q or %q, got %q", ScopeRun, ScopeSimulation, sc.ParameterCacheScope))
	}
	validateGraph(sc.Graph, &errs)

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalid, strings.Join(errs, "\n  - "))
	}
	return nil
}

func validateGraph(gc GraphConf, errs *[]string) {
	if len(gc.Nodes) == 0 {
		if gc.NumMeasures+gc.NumLatents < 1 {
			*errs = append(*errs, "graph: num_measures + num_latents must be >= 1")
		}
		if gc.NumMeasures < 0 || gc.NumLatents < 0 {
			*errs = append(*errs, "graph: num_measures and num_latents must be >= 0")
		}
		if gc.AvgDegree < 0 {
			*errs = append(*errs, fmt.Sprintf("graph: avg_degree must be >= 0, got %g", gc.AvgDegree))
		}
		if gc.MaxIndegree < 0 {
			*errs = append(*errs, fmt.Sprintf("graph: max_indegree must be >= 0, got %d", gc.MaxIndegree))
		}
		if len(gc.Edges) > 0 {
			*errs = append(*errs, "graph: edges require an explicit node list")
		}
		return
	}
	names := set.New[string](len(gc.Nodes))
	for i, nd := range gc.Nodes {
		if nd.Name == "" {
			*errs = append(*errs, fmt.Sprintf("graph.nodes[%d]: name is required", i))
			continue
		}
		if strings.ContainsAny(nd.Name, reservedNameChars) {
			*errs = append(*errs, fmt.Sprintf("graph.nodes[%d]: name %q may not contain any of %q", i, nd.Name, reservedNameChars))
		}
		if !names.Insert(nd.Name) {
			*errs = append(*errs, fmt.Sprintf("graph: duplicate node %q", nd.Name))
		}
	}
	for i, e := range gc.Edges {
		if !names.Contains(e.From) || !names.Contains(e.To) {
			*errs = append(*errs, fmt.Sprintf("graph.edges[%d]: %s -> %s references an undeclared node", i, e.From, e.To))
		}
	}
}
