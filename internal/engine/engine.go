package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/cgsim/internal/config"
	"github.com/gyaneshwarpardhi/cgsim/internal/dag"
	"github.com/gyaneshwarpardhi/cgsim/internal/metrics"
	"github.com/gyaneshwarpardhi/cgsim/internal/simulation"
	"github.com/gyaneshwarpardhi/cgsim/internal/storage"
)

var (
	ErrQueueFull  = errors.New("simulation queue full")
	ErrBadRequest = errors.New("invalid simulation settings")
	ErrTimeout    = errors.New("simulation timed out")
)

// Engine runs simulation jobs on a worker pool and records them in a store.
type Engine struct {
	defaults atomic.Pointer[config.SimulationConf]
	store    storage.Store
	pool     *workerPool[*simulationWork, *storage.SimulationRecord]
	conf     *config.EngineConf
	log      *slog.Logger
}

type simulationWork struct {
	id        string
	conf      config.SimulationConf
	generator dag.Generator
	createdAt time.Time
	resultC   chan *storage.SimulationRecord
}

// New creates an Engine using conf and starts the worker pool. defaults is
// the simulation configuration requests are applied on top of.
func New(ctx context.Context, store storage.Store, conf config.EngineConf, defaults config.SimulationConf) *Engine {
	e := &Engine{
		store: store,
		conf:  &conf,
		log:   slog.Default().With("component", "engine"),
	}
	e.defaults.Store(&defaults)

	e.pool = newWorkerPool[*simulationWork, *storage.SimulationRecord](
		ctx,
		conf.Workers,
		conf.QueueDepth,
		e.runSimulation,
		func(w *simulationWork, rec *storage.SimulationRecord) {
			if w.resultC != nil {
				w.resultC <- rec
			}
			metrics.QueueUtilization.Set(e.QueueUtilization())
		},
	)
	return e
}

// SwapDefaults atomically replaces the default simulation settings (used on
// hot-reload).
func (e *Engine) SwapDefaults(sc config.SimulationConf) {
	e.defaults.Store(&sc)
}

// Defaults returns a copy of the current default simulation settings.
func (e *Engine) Defaults() config.SimulationConf {
	return *e.defaults.Load()
}

// Store exposes the result store.
func (e *Engine) Store() storage.Store { return e.store }

func (e *Engine) prepare(sc config.SimulationConf, resultC chan *storage.SimulationRecord) (*simulationWork, error) {
	if err := config.ValidateSimulation(sc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	gen, err := dag.NewGenerator(sc.Graph)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return &simulationWork{
		id:        uuid.NewString(),
		conf:      sc,
		generator: gen,
		createdAt: time.Now().UTC(),
		resultC:   resultC,
	}, nil
}

// ProcessSync runs a simulation and waits for its record.
// Returns ErrQueueFull if the queue is full.
func (e *Engine) ProcessSync(ctx context.Context, sc config.SimulationConf) (*storage.SimulationRecord, error) {
	w, err := e.prepare(sc, make(chan *storage.SimulationRecord, 1))
	if err != nil {
		return nil, err
	}
	if err := e.enqueue(ctx, w); err != nil {
		return nil, err
	}

	timeout := time.Duration(e.conf.JobTimeoutMs) * time.Millisecond
	select {
	case rec := <-w.resultC:
		return rec, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w: %s after %v", ErrTimeout, w.id, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ProcessAsync enqueues a simulation for background processing and returns
// its id.
func (e *Engine) ProcessAsync(ctx context.Context, sc config.SimulationConf) (string, error) {
	w, err := e.prepare(sc, nil)
	if err != nil {
		return "", err
	}
	if err := e.enqueue(ctx, w); err != nil {
		return "", err
	}
	return w.id, nil
}

func (e *Engine) enqueue(ctx context.Context, w *simulationWork) error {
	rec := storage.NewSimulationRecord(w.id, storage.StatusQueued)
	rec.CreatedAt = w.createdAt
	rec.Config = w.conf
	rec.DataType = w.conf.DataType
	if err := e.store.SaveSimulation(ctx, rec); err != nil {
		return fmt.Errorf("record simulation %s: %w", w.id, err)
	}
	if !e.pool.Submit(w) {
		metrics.SimulationsDropped.Inc()
		rec.Status = storage.StatusFailed
		rec.Error = ErrQueueFull.Error()
		if err := e.store.SaveSimulation(ctx, rec); err != nil {
			e.log.Error("record dropped simulation", "id", w.id, "error", err)
		}
		return fmt.Errorf("%w (capacity %d)", ErrQueueFull, e.conf.QueueDepth)
	}
	metrics.SimulationsEnqueued.Inc()
	metrics.QueueUtilization.Set(e.QueueUtilization())
	return nil
}

// QueueUtilization returns queue used / capacity (0–1).
func (e *Engine) QueueUtilization() float64 {
	if e.pool.QueueCap() == 0 {
		return 0
	}
	return float64(e.pool.QueueLen()) / float64(e.pool.QueueCap())
}

func (e *Engine) runSimulation(ctx context.Context, w *simulationWork) *storage.SimulationRecord {
	start := time.Now()
	log := e.log.With("id", w.id)

	rec := storage.NewSimulationRecord(w.id, storage.StatusRunning)
	rec.CreatedAt = w.createdAt
	rec.Config = w.conf
	rec.DataType = w.conf.DataType
	if err := e.store.SaveSimulation(ctx, rec); err != nil {
		log.Warn("record running simulation", "error", err)
	}

	if e.conf.JobTimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(e.conf.JobTimeoutMs)*time.Millisecond)
		defer cancel()
	}

	sim := simulation.New(w.conf, w.generator).WithLogger(log)
	err := sim.Run(ctx)
	rec.Seed = sim.Seed()
	rec.Description = sim.Description()
	rec.DurationMs = time.Since(start).Milliseconds()

	if err == nil {
		rec.Status = storage.StatusSucceeded
		var saved storage.SimulationRecord
		saved, err = storage.SaveResults(context.WithoutCancel(ctx), e.store, rec, sim.DataSets())
		if err == nil {
			metrics.Simulations.WithLabelValues(storage.StatusSucceeded).Inc()
			log.Info("simulation stored", "datasets", len(saved.DataSets), "duration_ms", saved.DurationMs)
			return &saved
		}
	}

	log.Error("simulation failed", "error", err)
	metrics.Simulations.WithLabelValues(storage.StatusFailed).Inc()
	rec.Status = storage.StatusFailed
	rec.Error = err.Error()
	if saveErr := e.store.SaveSimulation(context.WithoutCancel(ctx), rec); saveErr != nil {
		log.Error("record failed simulation", "error", saveErr)
	}
	return &rec
}

// Shutdown drains the pool gracefully.
func (e *Engine) Shutdown() {
	e.pool.Drain()
}
