// Package param draws and memoizes the numeric values of structural
// parameters, keyed by the discrete-parent values of the row being sampled.
package param

import (
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/gyaneshwarpardhi/cgsim/internal/sem"
)

// Assignment is one observed (discrete parent, category) pair.
type Assignment struct {
	Node     string
	Category int
}

// Combination keys a cached constant. It is a plain comparable value: two
// combinations are equal iff they name the same parameter and the same set of
// parent assignments, whatever order the assignments were supplied in.
type Combination struct {
	Param  string
	Type   sem.ParamType
	Values string
}

// NewCombination builds the key for p under the given parent assignments.
func NewCombination(p sem.Parameter, values []Assignment) Combination {
	sorted := make([]Assignment, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Node != sorted[j].Node {
			return sorted[i].Node < sorted[j].Node
		}
		return sorted[i].Category < sorted[j].Category
	})
	var sb strings.Builder
	for i, a := range sorted {
		if i > 0 && a == sorted[i-1] {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(a.Node)
		sb.WriteByte('=')
		sb.WriteString(strconv.Itoa(a.Category))
	}
	return Combination{Param: p.ID, Type: p.Type, Values: sb.String()}
}

func (c Combination) String() string {
	if c.Values == "" {
		return c.Param
	}
	return c.Param + "|" + c.Values
}

// Ranges are the uniform draw intervals per parameter type.
type Ranges struct {
	VarLow, VarHigh   float64
	CoefLow, CoefHigh float64
	CoefSymmetric     bool
	MeanLow, MeanHigh float64
	BetaLow, BetaHigh float64
}

// DefaultRanges returns var 1–3, coef 0.05–1.5 (symmetric), mean −1–1, beta 1–3.
func DefaultRanges() Ranges {
	return Ranges{
		VarLow: 1, VarHigh: 3,
		CoefLow: 0.05, CoefHigh: 1.5, CoefSymmetric: true,
		MeanLow: -1, MeanHigh: 1,
		BetaLow: 1, BetaHigh: 3,
	}
}

// Cache is a write-once map from Combination to a drawn constant.
// It is not safe for concurrent use.
type Cache struct {
	ranges Ranges
	values map[Combination]float64
}

// NewCache returns an empty cache drawing from ranges.
func NewCache(ranges Ranges) *Cache {
	return &Cache{ranges: ranges, values: make(map[Combination]float64)}
}

// Value returns the constant for c, drawing and storing it on first access.
func (c *Cache) Value(key Combination, rng *rand.Rand) float64 {
	if v, ok := c.values[key]; ok {
		return v
	}
	v := c.draw(key.Type, rng)
	c.values[key] = v
	return v
}

// Lookup returns a stored constant without drawing.
func (c *Cache) Lookup(key Combination) (float64, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Len returns the number of constants drawn so far.
func (c *Cache) Len() int {
	return len(c.values)
}

func (c *Cache) draw(t sem.ParamType, rng *rand.Rand) float64 {
	r := c.ranges
	switch t {
	case sem.ParamVar:
		return uniform(rng, r.VarLow, r.VarHigh)
	case sem.ParamCoef:
		v := uniform(rng, r.CoefLow, r.CoefHigh)
		if r.CoefSymmetric && rng.Float64() < 0.5 {
			return -v
		}
		return v
	case sem.ParamMean:
		return uniform(rng, r.MeanLow, r.MeanHigh)
	default:
		return uniform(rng, r.BetaLow, r.BetaHigh)
	}
}

func uniform(rng *rand.Rand, low, high float64) float64 {
	return low + (high-low)*rng.Float64()
}
