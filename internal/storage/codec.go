package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gyaneshwarpardhi/cgsim/internal/config"
	"github.com/gyaneshwarpardhi/cgsim/internal/dag"
	"github.com/gyaneshwarpardhi/cgsim/internal/dataset"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Simulation job states.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

func currentVersion() VersionedRecord {
	return VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

// SimulationRecord summarizes one simulation job.
type SimulationRecord struct {
	VersionedRecord
	ID          string                `json:"id"`
	Status      string                `json:"status"`
	Seed        int64                 `json:"seed"`
	Description string                `json:"description"`
	DataType    string                `json:"data_type"`
	CreatedAt   time.Time             `json:"created_at"`
	DurationMs  int64                 `json:"duration_ms"`
	Error       string                `json:"error,omitempty"`
	Config      config.SimulationConf `json:"config"`
	DataSets    []DataSetSummary      `json:"datasets"`
}

// DataSetSummary describes a stored data set without its values.
type DataSetSummary struct {
	Index      int      `json:"index"`
	Label      string   `json:"label"`
	Rows       int      `json:"rows"`
	Columns    []string `json:"columns"`
	Nodes      int      `json:"nodes"`
	Edges      int      `json:"edges"`
	Parameters int      `json:"parameters"`
	Handles    int      `json:"handles"`
	CPTRows    int      `json:"cpt_rows"`
	Proxies    int      `json:"proxies"`
}

// DataSetRecord is one stored data set with its generating graph.
type DataSetRecord struct {
	VersionedRecord
	SimulationID string      `json:"simulation_id"`
	Index        int         `json:"index"`
	Label        string      `json:"label"`
	Graph        GraphRecord `json:"graph"`
	Table        TableRecord `json:"table"`
}

type NodeRecord struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Categories int    `json:"categories,omitempty"`
	Latent     bool   `json:"latent,omitempty"`
}

type GraphRecord struct {
	Nodes []NodeRecord `json:"nodes"`
	Edges []dag.Edge   `json:"edges"`
}

type ColumnRecord struct {
	NodeRecord
	Ints   []int     `json:"ints,omitempty"`
	Floats []float64 `json:"floats,omitempty"`
}

type TableRecord struct {
	Name    string         `json:"name"`
	Rows    int            `json:"rows"`
	Columns []ColumnRecord `json:"columns"`
}

func nodeRecord(n dag.Node) NodeRecord {
	return NodeRecord{Name: n.Name(), Kind: string(n.Kind()), Categories: n.Categories(), Latent: n.Latent()}
}

func (r NodeRecord) node() (dag.Node, error) {
	role := dag.RoleMeasured
	if r.Latent {
		role = dag.RoleLatent
	}
	switch dag.Kind(r.Kind) {
	case dag.KindContinuous:
		return dag.NewContinuous(r.Name, role), nil
	case dag.KindDiscrete:
		return dag.NewDiscrete(r.Name, r.Categories, role)
	default:
		return dag.Node{}, fmt.Errorf("node %s: unknown kind %q", r.Name, r.Kind)
	}
}

// NewGraphRecord flattens g.
func NewGraphRecord(g *dag.Graph) GraphRecord {
	nodes := g.Nodes()
	rec := GraphRecord{Nodes: make([]NodeRecord, len(nodes)), Edges: g.Edges()}
	for i, n := range nodes {
		rec.Nodes[i] = nodeRecord(n)
	}
	return rec
}

// Graph rebuilds the graph, re-checking acyclicity.
func (r GraphRecord) Graph() (*dag.Graph, error) {
	b := dag.NewBuilder()
	for _, nr := range r.Nodes {
		n, err := nr.node()
		if err != nil {
			return nil, err
		}
		if err := b.AddNode(n); err != nil {
			return nil, err
		}
	}
	for _, e := range r.Edges {
		if err := b.AddEdge(e.From, e.To); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}

// NewTableRecord flattens t.
func NewTableRecord(t *dataset.Table) TableRecord {
	rec := TableRecord{Name: t.Name(), Rows: t.Rows(), Columns: make([]ColumnRecord, 0, t.NumColumns())}
	for _, c := range t.Columns() {
		rec.Columns = append(rec.Columns, ColumnRecord{NodeRecord: nodeRecord(c.Node), Ints: c.Ints, Floats: c.Floats})
	}
	return rec
}

// Table rebuilds the data table.
func (r TableRecord) Table() (*dataset.Table, error) {
	cols := make([]*dataset.Column, 0, len(r.Columns))
	for _, cr := range r.Columns {
		n, err := cr.node()
		if err != nil {
			return nil, err
		}
		c := &dataset.Column{Node: n}
		if n.Discrete() {
			c.Ints = cr.Ints
			if c.Ints == nil {
				c.Ints = []int{}
			}
		} else {
			c.Floats = cr.Floats
			if c.Floats == nil {
				c.Floats = []float64{}
			}
		}
		cols = append(cols, c)
	}
	return dataset.FromColumns(r.Name, r.Rows, cols)
}

func EncodeSimulation(s SimulationRecord) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeSimulation(data []byte) (SimulationRecord, error) {
	var rec SimulationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return SimulationRecord{}, err
	}
	if err := checkVersion(rec.VersionedRecord); err != nil {
		return SimulationRecord{}, err
	}
	return rec, nil
}

func EncodeDataSet(d DataSetRecord) ([]byte, error) {
	return json.Marshal(d)
}

func DecodeDataSet(data []byte) (DataSetRecord, error) {
	var rec DataSetRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return DataSetRecord{}, err
	}
	if err := checkVersion(rec.VersionedRecord); err != nil {
		return DataSetRecord{}, err
	}
	return rec, nil
}

func checkVersion(v VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, v.SchemaVersion, v.CodecVersion)
	}
	return nil
}
