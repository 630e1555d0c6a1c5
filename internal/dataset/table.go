package dataset

import (
	"fmt"
	"math/rand"

	"github.com/hashicorp/go-set/v2"

	"github.com/gyaneshwarpardhi/cgsim/internal/dag"
)

// Column holds the values of one variable. Exactly one of Ints (discrete
// category codes) or Floats (continuous values) is populated.
type Column struct {
	Node   dag.Node
	Ints   []int
	Floats []float64
}

// Table is a mixed-type data set with a fixed number of rows.
type Table struct {
	name    string
	rows    int
	columns []*Column
	index   map[string]int
}

// NewTable allocates one zeroed column per node.
func NewTable(nodes []dag.Node, rows int) *Table {
	t := &Table{rows: rows, index: make(map[string]int, len(nodes))}
	for _, n := range nodes {
		c := &Column{Node: n}
		if n.Discrete() {
			c.Ints = make([]int, rows)
		} else {
			c.Floats = make([]float64, rows)
		}
		t.add(c)
	}
	return t
}

// FromColumns assembles a table from existing columns, which must all have
// rows values.
func FromColumns(name string, rows int, columns []*Column) (*Table, error) {
	t := &Table{name: name, rows: rows, index: make(map[string]int, len(columns))}
	for _, c := range columns {
		if _, dup := t.index[c.Node.Name()]; dup {
			return nil, fmt.Errorf("dataset: duplicate column %s", c.Node.Name())
		}
		if (c.Node.Discrete() && len(c.Ints) != rows) || (!c.Node.Discrete() && len(c.Floats) != rows) {
			return nil, fmt.Errorf("dataset: column %s does not have %d rows", c.Node.Name(), rows)
		}
		t.add(c)
	}
	return t, nil
}

func (t *Table) add(c *Column) {
	t.index[c.Node.Name()] = len(t.columns)
	t.columns = append(t.columns, c)
}

func (t *Table) Name() string        { return t.name }
func (t *Table) SetName(name string) { t.name = name }
func (t *Table) Rows() int           { return t.rows }
func (t *Table) NumColumns() int     { return len(t.columns) }
func (t *Table) Columns() []*Column  { return t.columns }

// Column returns the column of the named variable.
func (t *Table) Column(name string) (*Column, bool) {
	i, ok := t.index[name]
	if !ok {
		return nil, false
	}
	return t.columns[i], true
}

// Names returns column names in table order.
func (t *Table) Names() []string {
	out := make([]string, len(t.columns))
	for i, c := range t.columns {
		out[i] = c.Node.Name()
	}
	return out
}

// Select returns a table with only the named columns, in table order.
// Column storage is shared with the receiver.
func (t *Table) Select(names []string) *Table {
	keep := set.From(names)
	out := &Table{name: t.name, rows: t.rows, index: make(map[string]int, keep.Size())}
	for _, c := range t.columns {
		if keep.Contains(c.Node.Name()) {
			out.add(c)
		}
	}
	return out
}

// Measured drops latent columns.
func (t *Table) Measured() *Table {
	var names []string
	for _, c := range t.columns {
		if !c.Node.Latent() {
			names = append(names, c.Node.Name())
		}
	}
	return t.Select(names)
}

// Shuffled returns a table with the same columns in a random order.
func (t *Table) Shuffled(rng *rand.Rand) *Table {
	out := &Table{name: t.name, rows: t.rows, index: make(map[string]int, len(t.columns))}
	for _, i := range rng.Perm(len(t.columns)) {
		out.add(t.columns[i])
	}
	return out
}
