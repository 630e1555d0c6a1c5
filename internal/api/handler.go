package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/cgsim/internal/config"
	"github.com/gyaneshwarpardhi/cgsim/internal/dag"
	"github.com/gyaneshwarpardhi/cgsim/internal/engine"
	"github.com/gyaneshwarpardhi/cgsim/internal/metrics"
	"github.com/gyaneshwarpardhi/cgsim/internal/simulation"
	"github.com/gyaneshwarpardhi/cgsim/internal/storage"
)

const maxBodyBytes = 1 << 20

// Handler holds all HTTP handler dependencies.
type Handler struct {
	eng    *engine.Engine
	loader *config.Loader
	mux    *http.ServeMux
}

// New creates an HTTP handler and registers all routes.
func New(eng *engine.Engine, loader *config.Loader) http.Handler {
	h := &Handler{eng: eng, loader: loader, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/simulations", h.runSimulation)
	h.mux.HandleFunc("POST /v1/simulations/async", h.enqueueSimulation)
	h.mux.HandleFunc("GET /v1/simulations", h.listSimulations)
	h.mux.HandleFunc("GET /v1/simulations/{id}", h.getSimulation)
	h.mux.HandleFunc("GET /v1/simulations/{id}/datasets/{index}", h.getDataSet)
	h.mux.HandleFunc("GET /v1/simulations/{id}/graphs/{index}", h.getGraph)
	h.mux.HandleFunc("GET /v1/parameters", h.parameters)
	h.mux.HandleFunc("GET /v1/description", h.description)
	h.mux.HandleFunc("POST /v1/config/reload", h.reloadConfig)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.mux)
}

// decodeSettings applies the JSON body, if any, on top of the current
// default simulation settings.
func (h *Handler) decodeSettings(r *http.Request) (config.SimulationConf, error) {
	sc := h.eng.Defaults()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sc); err != nil && !errors.Is(err, io.EOF) {
		return sc, err
	}
	return sc, nil
}

func engineStatus(err error) int {
	switch {
	case errors.Is(err, engine.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, engine.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// POST /v1/simulations: run a simulation and wait for it.
func (h *Handler) runSimulation(w http.ResponseWriter, r *http.Request) {
	sc, err := h.decodeSettings(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	rec, err := h.eng.ProcessSync(r.Context(), sc)
	if err != nil {
		writeError(w, engineStatus(err), err.Error())
		return
	}
	if rec.Status == storage.StatusFailed {
		writeJSON(w, http.StatusInternalServerError, rec)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// POST /v1/simulations/async: enqueue a simulation.
func (h *Handler) enqueueSimulation(w http.ResponseWriter, r *http.Request) {
	sc, err := h.decodeSettings(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	id, err := h.eng.ProcessAsync(r.Context(), sc)
	if err != nil {
		writeError(w, engineStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":     id,
		"status": storage.StatusQueued,
	})
}

// GET /v1/simulations
func (h *Handler) listSimulations(w http.ResponseWriter, r *http.Request) {
	recs, err := h.eng.Store().ListSimulations(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":       len(recs),
		"simulations": recs,
	})
}

// GET /v1/simulations/{id}
func (h *Handler) getSimulation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	rec, ok, err := h.eng.Store().GetSimulation(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("simulation %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// lookupDataSet resolves {id}/{index}, writing the error response itself.
func (h *Handler) lookupDataSet(w http.ResponseWriter, r *http.Request) (storage.DataSetRecord, bool) {
	id := r.PathValue("id")
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid data set index %q", r.PathValue("index")))
		return storage.DataSetRecord{}, false
	}
	rec, ok, err := h.eng.Store().GetDataSet(r.Context(), id, index)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return storage.DataSetRecord{}, false
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("data set %d of simulation %s not found", index, id))
		return storage.DataSetRecord{}, false
	}
	return rec, true
}

// GET /v1/simulations/{id}/datasets/{index}?format=csv|json
func (h *Handler) getDataSet(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookupDataSet(w, r)
	if !ok {
		return
	}
	switch format := r.URL.Query().Get("format"); format {
	case "", "csv":
		t, err := rec.Table.Table()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeCSV(w, rec.SimulationID+"-"+rec.Label+".csv", t)
	case "json":
		writeJSON(w, http.StatusOK, rec.Table)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q", format))
	}
}

// GET /v1/simulations/{id}/graphs/{index}: the graph the data set was sampled from.
func (h *Handler) getGraph(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.lookupDataSet(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rec.Graph)
}

func (h *Handler) currentSimulation() (*simulation.Simulation, error) {
	sc := h.eng.Defaults()
	gen, err := dag.NewGenerator(sc.Graph)
	if err != nil {
		return nil, err
	}
	return simulation.New(sc, gen), nil
}

// GET /v1/parameters: recognized configuration keys.
func (h *Handler) parameters(w http.ResponseWriter, r *http.Request) {
	sim, err := h.currentSimulation()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"parameters": sim.ParameterKeys(),
	})
}

// GET /v1/description
func (h *Handler) description(w http.ResponseWriter, r *http.Request) {
	sim, err := h.currentSimulation()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"description": sim.Description(),
		"data_type":   sim.DataType(),
	})
}

// POST /v1/config/reload: re-read the config file and swap the defaults.
func (h *Handler) reloadConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.loader.Reload()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := config.Validate(cfg); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	h.eng.SwapDefaults(cfg.Simulation)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded":  true,
		"data_type": cfg.Simulation.DataType,
		"num_runs":  cfg.Simulation.NumRuns,
	})
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 if the simulation queue is >80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.eng.QueueUtilization()
	metrics.QueueUtilization.Set(util)
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ready",
		"queue_utilization": util,
	})
}
