package storage

import (
	"context"
	"fmt"

	"github.com/gyaneshwarpardhi/cgsim/internal/simulation"
)

// Store persists simulation summaries and the data sets they produced.
type Store interface {
	Init(ctx context.Context) error
	SaveSimulation(ctx context.Context, rec SimulationRecord) error
	GetSimulation(ctx context.Context, id string) (SimulationRecord, bool, error)
	ListSimulations(ctx context.Context) ([]SimulationRecord, error)
	SaveDataSet(ctx context.Context, rec DataSetRecord) error
	GetDataSet(ctx context.Context, simulationID string, index int) (DataSetRecord, bool, error)
}

// NewSimulationRecord returns a versioned record for a new job.
func NewSimulationRecord(id, status string) SimulationRecord {
	return SimulationRecord{VersionedRecord: currentVersion(), ID: id, Status: status}
}

// NewDataSetRecord flattens one simulation output.
func NewDataSetRecord(simulationID string, index int, ds simulation.DataSet) DataSetRecord {
	return DataSetRecord{
		VersionedRecord: currentVersion(),
		SimulationID:    simulationID,
		Index:           index,
		Label:           ds.Label,
		Graph:           NewGraphRecord(ds.Graph),
		Table:           NewTableRecord(ds.Table),
	}
}

// Summarize describes ds for a SimulationRecord.
func Summarize(index int, ds simulation.DataSet) DataSetSummary {
	return DataSetSummary{
		Index:      index,
		Label:      ds.Label,
		Rows:       ds.Table.Rows(),
		Columns:    ds.Table.Names(),
		Nodes:      ds.Graph.NodeCount(),
		Edges:      ds.Graph.EdgeCount(),
		Parameters: ds.Parameters,
		Handles:    ds.Handles,
		CPTRows:    ds.CPTRows,
		Proxies:    ds.Proxies,
	}
}

// SaveResults stores every data set of a finished simulation, then the
// summary record, and returns the record as saved.
func SaveResults(ctx context.Context, store Store, rec SimulationRecord, datasets []simulation.DataSet) (SimulationRecord, error) {
	rec.DataSets = make([]DataSetSummary, 0, len(datasets))
	for i, ds := range datasets {
		if err := store.SaveDataSet(ctx, NewDataSetRecord(rec.ID, i, ds)); err != nil {
			return rec, fmt.Errorf("save data set %d of %s: %w", i, rec.ID, err)
		}
		rec.DataSets = append(rec.DataSets, Summarize(i, ds))
	}
	if err := store.SaveSimulation(ctx, rec); err != nil {
		return rec, fmt.Errorf("save simulation %s: %w", rec.ID, err)
	}
	return rec, nil
}
