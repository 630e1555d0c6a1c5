package param

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gyaneshwarpardhi/cgsim/internal/sem"
)

var coefXY = sem.Parameter{ID: "coef(X->Y)", Type: sem.ParamCoef}

func TestNewCombination_OrderInsensitive(t *testing.T) {
	a := NewCombination(coefXY, []Assignment{{"B", 1}, {"A", 0}})
	b := NewCombination(coefXY, []Assignment{{"A", 0}, {"B", 1}})
	assert.Equal(t, a, b)
	assert.Equal(t, "coef(X->Y)|A=0,B=1", a.String())

	c := NewCombination(coefXY, []Assignment{{"A", 1}, {"B", 1}})
	assert.NotEqual(t, a, c)

	empty := NewCombination(coefXY, nil)
	assert.Equal(t, "coef(X->Y)", empty.String())
}

func TestCache_DrawsOnce(t *testing.T) {
	c := NewCache(DefaultRanges())
	rng := rand.New(rand.NewSource(3))
	key := NewCombination(coefXY, []Assignment{{"A", 2}})

	first := c.Value(key, rng)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, c.Value(key, rng))
	}
	v, ok := c.Lookup(key)
	assert.True(t, ok)
	assert.Equal(t, first, v)
	assert.Equal(t, 1, c.Len())

	_, ok = c.Lookup(NewCombination(coefXY, []Assignment{{"A", 1}}))
	assert.False(t, ok)
}

func TestCache_Ranges(t *testing.T) {
	r := Ranges{
		VarLow: 2, VarHigh: 2.5,
		CoefLow: 0.5, CoefHigh: 1, CoefSymmetric: true,
		MeanLow: -3, MeanHigh: -2,
		BetaLow: 7, BetaHigh: 8,
	}
	c := NewCache(r)
	rng := rand.New(rand.NewSource(11))
	sawNegative := false
	for i := 0; i < 200; i++ {
		values := []Assignment{{"D", i}}
		v := c.Value(NewCombination(sem.Parameter{ID: "var(Y)", Type: sem.ParamVar}, values), rng)
		assert.True(t, v >= 2 && v <= 2.5, "var %g", v)

		coef := c.Value(NewCombination(coefXY, values), rng)
		abs := coef
		if coef < 0 {
			abs = -coef
			sawNegative = true
		}
		assert.True(t, abs >= 0.5 && abs <= 1, "coef %g", coef)

		m := c.Value(NewCombination(sem.Parameter{ID: "mean(Y)", Type: sem.ParamMean}, values), rng)
		assert.True(t, m >= -3 && m <= -2, "mean %g", m)

		beta := c.Value(NewCombination(sem.Parameter{ID: "shape(X->Y)", Type: sem.ParamShape}, values), rng)
		assert.True(t, beta >= 7 && beta <= 8, "beta %g", beta)
	}
	assert.True(t, sawNegative, "symmetric coefficients should take both signs")
}
