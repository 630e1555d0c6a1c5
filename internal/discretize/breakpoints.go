// Package discretize turns continuous columns into equal-frequency categories.
//
// Bucket convention: a value v falls into the smallest bucket j with
// v < edges[j]; values not below any edge fall into the last bucket,
// len(edges).
package discretize

import (
	"fmt"
	"sort"
)

// EqualFrequencyBreakpoints returns k-1 non-decreasing bin edges splitting
// values into k buckets of (nearly) equal size. values is not modified.
func EqualFrequencyBreakpoints(values []float64, k int) ([]float64, error) {
	if k < 2 {
		return nil, fmt.Errorf("discretize: need at least 2 categories, got %d", k)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("discretize: no values")
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	edges := make([]float64, k-1)
	for i := range edges {
		idx := n * (i + 1) / k
		if idx > n-1 {
			idx = n - 1
		}
		edges[i] = sorted[idx]
	}
	return edges, nil
}

// Bucket returns the category of v under edges.
func Bucket(edges []float64, v float64) int {
	for j, e := range edges {
		if v < e {
			return j
		}
	}
	return len(edges)
}

// Cache memoizes breakpoints per column for one sampling pass.
type Cache struct {
	edges map[string][]float64
}

// NewCache returns an empty breakpoint cache.
func NewCache() *Cache {
	return &Cache{edges: make(map[string][]float64)}
}

// Breakpoints returns the cached edges for column, computing them from values
// with k categories the first time. Later calls return the same slice.
func (c *Cache) Breakpoints(column string, values []float64, k int) ([]float64, error) {
	if e, ok := c.edges[column]; ok {
		return e, nil
	}
	e, err := EqualFrequencyBreakpoints(values, k)
	if err != nil {
		return nil, fmt.Errorf("column %s: %w", column, err)
	}
	c.edges[column] = e
	return e, nil
}

// Len returns the number of memoized columns.
func (c *Cache) Len() int {
	return len(c.edges)
}
