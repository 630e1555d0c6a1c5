package config

// Config is the top-level YAML structure.
type Config struct {
	Version    string         `yaml:"version" json:"version"`
	Engine     EngineConf     `yaml:"engine" json:"engine"`
	Storage    StorageConf    `yaml:"storage" json:"storage"`
	Simulation SimulationConf `yaml:"simulation" json:"simulation"`
}

// EngineConf holds tunable concurrency settings.
type EngineConf struct {
	Workers      int `yaml:"workers" json:"workers"`
	QueueDepth   int `yaml:"queue_depth" json:"queue_depth"`
	JobTimeoutMs int `yaml:"job_timeout_ms" json:"job_timeout_ms"`
}

// StorageConf selects where finished data sets are kept.
type StorageConf struct {
	Backend    string `yaml:"backend" json:"backend"` // "memory" | "sqlite"
	SQLitePath string `yaml:"sqlite_path" json:"sqlite_path"`
	// CacheSize is the number of decoded data sets kept in memory in front
	// of the backend. 0 disables the cache.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// Data types accepted by SimulationConf.DataType.
const (
	DataTypeContinuous = "continuous"
	DataTypeDiscrete   = "discrete"
	DataTypeMixed      = "mixed"
)

// Scopes for state that may be shared across the runs of one simulation.
const (
	ScopeRun        = "run"
	ScopeSimulation = "simulation"
)

// SimulationConf holds every knob of a conditional Gaussian simulation.
type SimulationConf struct {
	Seed                  int64   `yaml:"seed" json:"seed"` // 0 = time based
	DataType              string  `yaml:"data_type" json:"data_type"`
	PercentDiscrete       float64 `yaml:"percent_discrete" json:"percent_discrete"`
	MinCategories         int     `yaml:"min_categories" json:"min_categories"`
	MaxCategories         int     `yaml:"max_categories" json:"max_categories"`
	NumRuns               int     `yaml:"num_runs" json:"num_runs"`
	DifferentGraphsPerRun bool    `yaml:"different_graphs_per_run" json:"different_graphs_per_run"`
	SampleSize            int     `yaml:"sample_size" json:"sample_size"`

	VarLow        float64 `yaml:"var_low" json:"var_low"`
	VarHigh       float64 `yaml:"var_high" json:"var_high"`
	CoefLow       float64 `yaml:"coef_low" json:"coef_low"`
	CoefHigh      float64 `yaml:"coef_high" json:"coef_high"`
	CoefSymmetric bool    `yaml:"coef_symmetric" json:"coef_symmetric"`
	MeanLow       float64 `yaml:"mean_low" json:"mean_low"`
	MeanHigh      float64 `yaml:"mean_high" json:"mean_high"`
	BetaLow       float64 `yaml:"beta_low" json:"beta_low"`
	BetaHigh      float64 `yaml:"beta_high" json:"beta_high"`
	GammaLow      float64 `yaml:"gamma_low" json:"gamma_low"`
	GammaHigh     float64 `yaml:"gamma_high" json:"gamma_high"`

	SaveLatentVariables  bool `yaml:"save_latent_variables" json:"save_latent_variables"`
	RandomizeColumnOrder bool `yaml:"randomize_column_order" json:"randomize_column_order"`

	// PermutationScope decides whether the kind-assignment node order is
	// drawn once per simulation or once per run.
	PermutationScope string `yaml:"permutation_scope" json:"permutation_scope"`
	// ParameterCacheScope decides whether drawn structural constants are
	// shared by all runs of a simulation or redrawn for every run.
	ParameterCacheScope string `yaml:"parameter_cache_scope" json:"parameter_cache_scope"`

	Graph GraphConf `yaml:"graph" json:"graph"`
}

// GraphConf describes the graph generator. When Nodes is non-empty the graph
// is fixed and the random-generator settings are ignored.
type GraphConf struct {
	NumMeasures int       `yaml:"num_measures" json:"num_measures"`
	NumLatents  int       `yaml:"num_latents" json:"num_latents"`
	AvgDegree   float64   `yaml:"avg_degree" json:"avg_degree"`
	MaxIndegree int       `yaml:"max_indegree" json:"max_indegree"`
	Nodes       []NodeDef `yaml:"nodes" json:"nodes,omitempty"`
	Edges       []EdgeDef `yaml:"edges" json:"edges,omitempty"`
}

// NodeDef declares one variable of a fixed graph.
type NodeDef struct {
	Name   string `yaml:"name" json:"name"`
	Latent bool   `yaml:"latent" json:"latent"`
}

// EdgeDef declares one directed edge of a fixed graph.
type EdgeDef struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
}

// Defaults returns a config populated with the documented default values.
func Defaults() *Config {
	return &Config{
		Version: "v1",
		Engine: EngineConf{
			Workers:      2,
			QueueDepth:   64,
			JobTimeoutMs: 600000,
		},
		Storage:    StorageConf{Backend: "memory"},
		Simulation: DefaultSimulation(),
	}
}

// DefaultSimulation returns the default simulation settings.
func DefaultSimulation() SimulationConf {
	return SimulationConf{
		DataType:            DataTypeMixed,
		PercentDiscrete:     50,
		MinCategories:       2,
		MaxCategories:       4,
		NumRuns:             1,
		SampleSize:          1000,
		VarLow:              1,
		VarHigh:             3,
		CoefLow:             0.05,
		CoefHigh:            1.5,
		CoefSymmetric:       true,
		MeanLow:             -1,
		MeanHigh:            1,
		BetaLow:             1,
		BetaHigh:            3,
		GammaLow:            0.5,
		GammaHigh:           1.5,
		PermutationScope:    ScopeSimulation,
		ParameterCacheScope: ScopeRun,
		Graph: GraphConf{
			NumMeasures: 10,
			AvgDegree:   2,
			MaxIndegree: 3,
		},
	}
}

// SimulationKeys lists the recognized simulation configuration keys.
func SimulationKeys() []string {
	return []string{
		"seed",
		"data_type",
		"min_categories",
		"max_categories",
		"percent_discrete",
		"num_runs",
		"different_graphs_per_run",
		"sample_size",
		"var_low",
		"var_high",
		"coef_low",
		"coef_high",
		"coef_symmetric",
		"mean_low",
		"mean_high",
		"beta_low",
		"beta_high",
		"gamma_low",
		"gamma_high",
		"save_latent_variables",
		"randomize_column_order",
		"permutation_scope",
		"parameter_cache_scope",
	}
}
