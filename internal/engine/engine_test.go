package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/cgsim/internal/config"
	"github.com/gyaneshwarpardhi/cgsim/internal/storage"
)

func testSimulation() config.SimulationConf {
	sc := config.DefaultSimulation()
	sc.Seed = 11
	sc.SampleSize = 100
	sc.NumRuns = 2
	sc.Graph.NumMeasures = 6
	return sc
}

func newTestEngine(t *testing.T, conf config.EngineConf) *Engine {
	t.Helper()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Init(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	e := New(ctx, store, conf, testSimulation())
	t.Cleanup(func() {
		e.Shutdown()
		cancel()
	})
	return e
}

func TestProcessSync(t *testing.T) {
	e := newTestEngine(t, config.EngineConf{Workers: 1, QueueDepth: 4, JobTimeoutMs: 60000})
	rec, err := e.ProcessSync(context.Background(), e.Defaults())
	require.NoError(t, err)
	assert.Equal(t, storage.StatusSucceeded, rec.Status)
	assert.Equal(t, int64(11), rec.Seed)
	assert.Len(t, rec.DataSets, 2)
	assert.Contains(t, rec.Description, "Conditional Gaussian simulation")

	ds, ok, err := e.Store().GetDataSet(context.Background(), rec.ID, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2", ds.Label)
	assert.Equal(t, 100, ds.Table.Rows)
}

func TestProcessSync_BadRequest(t *testing.T) {
	e := newTestEngine(t, config.EngineConf{Workers: 1, QueueDepth: 4, JobTimeoutMs: 60000})
	sc := e.Defaults()
	sc.DataType = config.DataTypeContinuous
	sc.PercentDiscrete = 20
	_, err := e.ProcessSync(context.Background(), sc)
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.ErrorIs(t, err, config.ErrContradiction)

	list, err := e.Store().ListSimulations(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list, "rejected requests are not recorded")
}

func TestProcessAsync(t *testing.T) {
	e := newTestEngine(t, config.EngineConf{Workers: 2, QueueDepth: 4, JobTimeoutMs: 60000})
	id, err := e.ProcessAsync(context.Background(), e.Defaults())
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		rec, ok, err := e.Store().GetSimulation(context.Background(), id)
		return err == nil && ok && rec.Status == storage.StatusSucceeded
	}, 10*time.Second, 10*time.Millisecond)
}

func TestProcessAsync_QueueFull(t *testing.T) {
	// No workers: the queue never drains.
	e := newTestEngine(t, config.EngineConf{Workers: 0, QueueDepth: 1, JobTimeoutMs: 1000})
	_, err := e.ProcessAsync(context.Background(), e.Defaults())
	require.NoError(t, err)
	assert.Equal(t, 1.0, e.QueueUtilization())

	_, err = e.ProcessAsync(context.Background(), e.Defaults())
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestSwapDefaults(t *testing.T) {
	e := newTestEngine(t, config.EngineConf{Workers: 1, QueueDepth: 1, JobTimeoutMs: 1000})
	sc := e.Defaults()
	sc.NumRuns = 9
	e.SwapDefaults(sc)
	assert.Equal(t, 9, e.Defaults().NumRuns)
}

func TestWorkerPool_DrainTwice(t *testing.T) {
	var processed atomic.Int32
	p := newWorkerPool[int, int](context.Background(), 2, 8,
		func(_ context.Context, v int) int { processed.Add(1); return v * 2 },
		nil,
	)
	for i := 0; i < 5; i++ {
		require.True(t, p.Submit(i))
	}
	p.Drain()
	p.Drain()
	assert.Equal(t, int32(5), processed.Load())
	assert.False(t, p.Submit(1), "submit after drain must be rejected")
}

func TestWorkerPool_Sink(t *testing.T) {
	results := make(chan int, 3)
	p := newWorkerPool[int, int](context.Background(), 1, 3,
		func(_ context.Context, v int) int { return v + 1 },
		func(_ int, r int) { results <- r },
	)
	for i := 0; i < 3; i++ {
		require.True(t, p.Submit(i))
	}
	p.Drain()
	close(results)
	sum := 0
	for r := range results {
		sum += r
	}
	assert.Equal(t, 6, sum)
}
