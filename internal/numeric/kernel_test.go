package numeric

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_UnitFactorIsExact(t *testing.T) {
	b := NewRateBounds(0.5, 2.0)

	// Off-grid state: quantization must not touch it when factor is 1.
	xLog := math.Log(1.2345678901)

	got, gated := Apply(xLog, 1.0, b, 1e-4, 0)
	require.False(t, gated)
	assert.Equal(t, xLog, got, "unit factor with zero eps must return the state bitwise")

	got, gated = Apply(xLog, 1.0, b, 1e-4, 1e-9)
	assert.True(t, gated, "unit factor with positive eps must gate")
	assert.Equal(t, xLog, got)
}

func TestApply_GatePreventsSmallChanges(t *testing.T) {
	b := NewRateBounds(0.5, 2.0)

	raw, gated := Apply(0, 1+2e-6, b, 1e-6, 0)
	require.False(t, gated)
	diff := math.Abs(raw - 0)
	require.Greater(t, diff, 0.0)
	require.Less(t, diff, 5e-6)

	got, gated := Apply(0, 1+2e-6, b, 1e-6, 5e-6)
	assert.True(t, gated)
	assert.Equal(t, 0.0, got)
}

func TestApply_ClampsToBounds(t *testing.T) {
	b := NewRateBounds(0.1, 2.0)

	// Factor pushes the candidate way past the upper bound.
	got, gated := Apply(0, 50.0, b, 1e-3, 0)
	require.False(t, gated)
	assert.InDelta(t, 2.0, math.Exp(got), 1e-12)

	// And way below the lower bound.
	got, gated = Apply(0, 1e-4, b, 1e-3, 0)
	require.False(t, gated)
	assert.InDelta(t, 0.1, math.Exp(got), 1e-12)
}

func TestApply_MonotoneInFactor(t *testing.T) {
	b := NewRateBounds(0.5, 2.0)

	prev := math.Inf(-1)
	for f := 0.90; f <= 1.10; f += 0.001 {
		got, gated := Apply(0, f, b, 1e-6, 0)
		require.False(t, gated)
		assert.GreaterOrEqual(t, got, prev, "factor %v decreased the output", f)
		prev = got
	}
}

func TestApply_PathologicalInputsStayBounded(t *testing.T) {
	b := NewRateBounds(0.1, 10.0)
	loLog, hiLog := b.LogRange()

	cases := []struct {
		name   string
		xLog   float64
		factor float64
	}{
		{"nan state", math.NaN(), 1.5},
		{"pos inf state", math.Inf(1), 1.5},
		{"neg inf state", math.Inf(-1), 1.5},
		{"nan factor", 0, math.NaN()},
		{"pos inf factor", 0, math.Inf(1)},
		{"neg inf factor", 0, math.Inf(-1)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, gated := Apply(tc.xLog, tc.factor, b, 1e-3, 0)
			if gated {
				return
			}
			require.False(t, math.IsNaN(got))
			assert.GreaterOrEqual(t, got, loLog)
			assert.LessOrEqual(t, got, hiLog)
		})
	}
}

func TestApply_Deterministic(t *testing.T) {
	b := NewRateBounds(0.5, 2.0)
	rng := rand.New(rand.NewPCG(0x1234, 0x5678))

	for i := 0; i < 2048; i++ {
		xLog := rng.Float64()*1.2 - 0.6
		factor := 1 + (rng.Float64()-0.5)*1e-3

		a1, g1 := Apply(xLog, factor, b, 1e-5, 5e-6)
		a2, g2 := Apply(xLog, factor, b, 1e-5, 5e-6)
		require.Equal(t, g1, g2)
		require.Equal(t, a1, a2, "same inputs must produce bit-identical outputs")
	}
}

func TestApply_RandomWalkStaysInRange(t *testing.T) {
	b := NewRateBounds(0.5, 2.0)
	loLog, hiLog := b.LogRange()
	rng := rand.New(rand.NewPCG(0x90AB, 0xCDEF))

	state := 0.0
	for i := 0; i < 4096; i++ {
		factor := 1 + (rng.Float64()-0.5)*1e-3
		next, gated := Apply(state, factor, b, 1e-5, 5e-6)
		if gated {
			require.Equal(t, state, next)
			continue
		}
		require.GreaterOrEqual(t, next, loLog)
		require.LessOrEqual(t, next, hiLog)
		state = next
	}
}

func TestRoundTiesEven_HalfwayCases(t *testing.T) {
	assert.Equal(t, 2.0, roundTiesEven(1.5))
	assert.Equal(t, 2.0, roundTiesEven(2.5))
	assert.Equal(t, -2.0, roundTiesEven(-1.5))
	assert.Equal(t, -2.0, roundTiesEven(-2.5))
	assert.Equal(t, 3.0, roundTiesEven(3.49))
	assert.Equal(t, -3.0, roundTiesEven(-3.49))
}

func TestRoundTiesEven_IsUnbiasedOnTies(t *testing.T) {
	q := 1e-4
	base := math.Round(1.0 / q)
	tieHi := (base + 0.5) * q
	tieLo := (base - 0.5) * q

	var bias float64
	const samples = 50_000
	for i := 0; i < samples; i++ {
		v := tieHi
		if i%2 == 1 {
			v = tieLo
		}
		bias += quantizeTiesEven(v, q) - v
	}
	assert.Less(t, math.Abs(bias/samples), 1e-7, "ties-to-even bias should hover near zero")
}

func TestSanitizeQuantum_FallsBackToFloor(t *testing.T) {
	lo := 0.5
	minStep := math.Max(ulp(lo), absMinQuantum)

	assert.Equal(t, minStep, sanitizeQuantum(0, lo))
	assert.Equal(t, minStep, sanitizeQuantum(math.NaN(), lo))
	assert.Equal(t, minStep, sanitizeQuantum(-1e-3, lo))
	assert.Equal(t, 1e-3, sanitizeQuantum(1e-3, lo))
}

func TestSanitizeEps(t *testing.T) {
	assert.Equal(t, 1e-4, sanitizeEps(-1e-4))
	assert.Equal(t, 0.0, sanitizeEps(math.Inf(1)))
	assert.Equal(t, 0.0, sanitizeEps(math.Inf(-1)))
	assert.Equal(t, 0.0, sanitizeEps(math.NaN()))
}

func TestUlp(t *testing.T) {
	assert.Equal(t, minNormal, ulp(0))
	assert.Equal(t, 0.0, ulp(math.Inf(1)))
	assert.Greater(t, ulp(1.0), 0.0)
	assert.Equal(t, ulp(1.0), ulp(-1.0))
}
