package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// WriteCSV writes t with a header row of variable names. Discrete values are
// written as category codes, continuous values in shortest round-trip form.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Names()); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, t.NumColumns())
	for r := 0; r < t.Rows(); r++ {
		for j, c := range t.Columns() {
			if c.Node.Discrete() {
				record[j] = strconv.Itoa(c.Ints[r])
			} else {
				record[j] = strconv.FormatFloat(c.Floats[r], 'g', -1, 64)
			}
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", r, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
