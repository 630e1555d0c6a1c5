package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SimulationsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cgsim_simulations_enqueued_total",
		Help: "Total number of simulation jobs placed on the queue.",
	})

	SimulationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cgsim_simulations_dropped_total",
		Help: "Total number of simulation jobs rejected due to a full queue.",
	})

	Simulations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cgsim_simulations_total",
		Help: "Total number of finished simulation jobs, labelled by status.",
	}, []string{"status"})

	DatasetsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cgsim_datasets_generated_total",
		Help: "Total number of data sets produced.",
	})

	RowsSampled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cgsim_rows_sampled_total",
		Help: "Total number of rows sampled across all data sets.",
	})

	ParametersDrawn = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cgsim_parameters_drawn_total",
		Help: "Total number of structural constants drawn into parameter caches.",
	})

	SimulationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cgsim_simulation_duration_ms",
		Help:    "End-to-end simulation latency in milliseconds.",
		Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cgsim_queue_utilization_ratio",
		Help: "Current simulation queue utilization (0–1).",
	})
)
