package discretize

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqualFrequencyBreakpoints(t *testing.T) {
	values := []float64{9, 1, 8, 2, 7, 3, 6, 4, 5, 0}
	edges, err := EqualFrequencyBreakpoints(values, 4)
	require.NoError(t, err)
	// sorted[10*1/4], sorted[10*2/4], sorted[10*3/4]
	assert.Equal(t, []float64{2, 5, 7}, edges)
	assert.Equal(t, float64(9), values[0], "input must not be reordered")
}

func TestEqualFrequencyBreakpoints_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	values := make([]float64, 1000)
	for i := range values {
		values[i] = rng.NormFloat64()
	}
	for k := 2; k <= 6; k++ {
		edges, err := EqualFrequencyBreakpoints(values, k)
		require.NoError(t, err)
		assert.Len(t, edges, k-1)
		assert.True(t, sort.Float64sAreSorted(edges))

		counts := make([]int, k)
		for _, v := range values {
			counts[Bucket(edges, v)]++
		}
		for j, c := range counts {
			assert.InDelta(t, len(values)/k, c, 2, "k=%d bucket %d", k, j)
		}
	}
}

func TestEqualFrequencyBreakpoints_Errors(t *testing.T) {
	_, err := EqualFrequencyBreakpoints([]float64{1, 2}, 1)
	assert.Error(t, err)
	_, err = EqualFrequencyBreakpoints(nil, 3)
	assert.Error(t, err)
}

func TestBucket_Convention(t *testing.T) {
	edges := []float64{1, 2, 3}
	assert.Equal(t, 0, Bucket(edges, 0.5))
	assert.Equal(t, 1, Bucket(edges, 1), "a value equal to an edge goes to the next bucket")
	assert.Equal(t, 2, Bucket(edges, 2.5))
	assert.Equal(t, 3, Bucket(edges, 3))
	assert.Equal(t, 3, Bucket(edges, 100))
}

func TestCache_Memoized(t *testing.T) {
	c := NewCache()
	first, err := c.Breakpoints("X", []float64{1, 2, 3, 4}, 2)
	require.NoError(t, err)
	second, err := c.Breakpoints("X", []float64{100, 200, 300, 400}, 3)
	require.NoError(t, err)
	assert.Same(t, &first[0], &second[0])
	assert.Equal(t, 1, c.Len())

	_, err = c.Breakpoints("Y", []float64{1}, 1)
	assert.Error(t, err)
	assert.Equal(t, 1, c.Len())
}
