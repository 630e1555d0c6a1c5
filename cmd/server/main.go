package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gyaneshwarpardhi/cgsim/internal/api"
	"github.com/gyaneshwarpardhi/cgsim/internal/config"
	"github.com/gyaneshwarpardhi/cgsim/internal/dag"
	"github.com/gyaneshwarpardhi/cgsim/internal/dataset"
	"github.com/gyaneshwarpardhi/cgsim/internal/engine"
	"github.com/gyaneshwarpardhi/cgsim/internal/simulation"
	"github.com/gyaneshwarpardhi/cgsim/internal/storage"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	cfgPath := flag.String("config", "configs/simulation.yaml", "Path to simulation YAML config (empty for defaults)")
	once := flag.Bool("once", false, "Run the configured simulation once, write CSV files and exit")
	outDir := flag.String("out", ".", "Output directory for -once")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}

	if *once {
		if err := runOnce(cfg.Simulation, *outDir); err != nil {
			slog.Error("simulation failed", "err", err)
			os.Exit(1)
		}
		return
	}

	// ── Storage ───────────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := storage.NewStore(cfg.Storage.Backend, cfg.Storage.SQLitePath)
	if err != nil {
		slog.Error("failed to create store", "err", err)
		os.Exit(1)
	}
	if cfg.Storage.CacheSize > 0 {
		if store, err = storage.NewCachedStore(store, cfg.Storage.CacheSize); err != nil {
			slog.Error("failed to create data set cache", "err", err)
			os.Exit(1)
		}
	}
	if err := store.Init(ctx); err != nil {
		slog.Error("failed to initialize store", "backend", cfg.Storage.Backend, "err", err)
		os.Exit(1)
	}
	defer func() {
		if err := storage.CloseIfSupported(store); err != nil {
			slog.Warn("store close failed", "err", err)
		}
	}()

	// ── Engine ────────────────────────────────────────────────────────────────
	eng := engine.New(ctx, store, cfg.Engine, cfg.Simulation)
	slog.Info("engine started", "workers", cfg.Engine.Workers, "queue_depth", cfg.Engine.QueueDepth, "store", cfg.Storage.Backend)

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.Config) {
		if err := config.Validate(newCfg); err != nil {
			slog.Warn("hot-reload skipped: config invalid", "err", err)
			return
		}
		eng.SwapDefaults(newCfg.Simulation)
		slog.Info("simulation defaults hot-reloaded", "data_type", newCfg.Simulation.DataType, "num_runs", newCfg.Simulation.NumRuns)
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	handler := api.New(eng, loader)
	srv := &http.Server{
		Addr:         *addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: time.Duration(cfg.Engine.JobTimeoutMs)*time.Millisecond + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	cancel() // stop workers
	eng.Shutdown()
	slog.Info("goodbye")
}

// runOnce runs sc in the foreground and writes data set i to <out>/data<i>.csv
// and its graph to <out>/graph<i>.txt.
func runOnce(sc config.SimulationConf, out string) error {
	gen, err := dag.NewGenerator(sc.Graph)
	if err != nil {
		return err
	}
	sim := simulation.New(sc, gen)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := sim.Run(ctx); err != nil {
		return err
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return err
	}
	for i, ds := range sim.DataSets() {
		if err := writeFile(filepath.Join(out, "data"+ds.Label+".csv"), func(f *os.File) error {
			return dataset.WriteCSV(f, ds.Table)
		}); err != nil {
			return err
		}
		if err := writeFile(filepath.Join(out, "graph"+ds.Label+".txt"), func(f *os.File) error {
			return writeGraph(f, ds.Graph)
		}); err != nil {
			return err
		}
		slog.Info("data set written", "index", i, "label", ds.Label, "rows", ds.Table.Rows(), "columns", ds.Table.NumColumns())
	}
	slog.Info("simulation complete", "seed", sim.Seed(), "description", sim.Description())
	return nil
}

func writeFile(path string, fn func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func writeGraph(f *os.File, g *dag.Graph) error {
	if _, err := fmt.Fprintln(f, "Graph Nodes:"); err != nil {
		return err
	}
	for _, n := range g.Nodes() {
		if _, err := fmt.Fprintln(f, n); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(f, "\nGraph Edges:"); err != nil {
		return err
	}
	for i, e := range g.Edges() {
		if _, err := fmt.Fprintf(f, "%d. %s --> %s\n", i+1, e.From, e.To); err != nil {
			return err
		}
	}
	return nil
}
