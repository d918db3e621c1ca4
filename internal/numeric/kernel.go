// Package numeric holds the fused clamp→multiply→quantize→log→gate
// kernel and the rate-bounds helper shared by the pipeline tasks. All
// state lives in the log-rate domain; the quantization step works in
// the linear domain where the tick size is meaningful.
package numeric

import "math"

const (
	// absMinQuantum is the absolute floor for the linear tick size.
	absMinQuantum = 1e-12

	// nearOneThreshold selects the log1p path: when the linear candidate
	// is within 2^-20 of the current value, recomputing exp then ln
	// loses the low bits of the update.
	nearOneThreshold = 0x1p-20
)

// Apply performs one multiplicative tick on a log-rate state variable.
// The intended new linear value is exp(xLog) * factor; it is clamped to
// the bounds, snapped to the effective quantum with ties-to-even, and
// carried back to log space on a precision-preserving path. The second
// return value reports gating: a candidate move smaller than epsLog
// leaves the state untouched.
//
// Pathological inputs never escape: NaN and infinities snap to the
// nearest bound, so the ungated result is always a finite value inside
// the log range of b.
func Apply(xLog, factor float64, b RateBounds, qHint, epsLog float64) (float64, bool) {
	loLog, hiLog := b.LogRange()
	x := sanitizeLog(xLog, loLog, hiLog)
	eps := sanitizeEps(epsLog)
	q := sanitizeQuantum(qHint, b.Lo)

	// A unit factor is an exact no-op tick: quantization must not drag
	// an off-grid state onto the grid when nothing changed.
	if factor == 1 {
		return x, eps > 0
	}

	xLin := math.Exp(x)
	y := b.ClampOperand(xLin * factor)
	y = b.Clamp(quantizeTiesEven(y, q))

	var xNew float64
	if r := y/xLin - 1; math.Abs(r) <= nearOneThreshold {
		xNew = x + math.Log1p(r)
	} else {
		xNew = math.Log(y)
	}
	if xNew < loLog {
		xNew = loLog
	} else if xNew > hiLog {
		xNew = hiLog
	}

	if eps > 0 && math.Abs(xNew-x) < eps {
		return x, true
	}
	return xNew, false
}

// sanitizeLog snaps a pathological or out-of-range log state onto the
// nearest bound: NaN, negative infinity, and underflow go low; positive
// overflow goes high.
func sanitizeLog(x, loLog, hiLog float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, -1) {
		return loLog
	}
	if math.IsInf(x, 1) {
		return hiLog
	}
	if x < loLog {
		return loLog
	}
	if x > hiLog {
		return hiLog
	}
	return x
}

// sanitizeEps keeps the gate threshold non-negative and finite: a
// negative value is mirrored, a non-finite one becomes 0 (gating off).
func sanitizeEps(eps float64) float64 {
	if math.IsNaN(eps) || math.IsInf(eps, 0) {
		return 0
	}
	return math.Abs(eps)
}

// sanitizeQuantum floors the requested tick to max(qHint, 1e-12,
// ulp(lo)) so steps never drop below one ULP at the lower bound.
func sanitizeQuantum(q, lo float64) float64 {
	minStep := math.Max(ulp(lo), absMinQuantum)
	if math.IsNaN(q) || math.IsInf(q, 0) || q <= 0 {
		return minStep
	}
	return math.Max(q, minStep)
}

// quantizeTiesEven snaps value to the nearest multiple of q using
// round-to-nearest, ties-to-even.
func quantizeTiesEven(value, q float64) float64 {
	return roundTiesEven(value/q) * q
}

// roundTiesEven is IEEE-754 round-to-nearest, ties-to-even with an
// ULP-scaled deadband around the exact half so boundary values do not
// flap between neighbouring ticks.
func roundTiesEven(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}

	t := math.Trunc(x)
	frac := math.Abs(x - t)
	slack := ulp(x)

	if frac < 0.5-slack {
		return t
	}
	if frac > 0.5+slack {
		return t + sign(x)
	}

	// t is integral up to 2^53; beyond that every representable value
	// is already even.
	if math.Mod(t, 2) == 0 {
		return t
	}
	return t + sign(x)
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}

// ulp returns the unit in the last place around x. Zero maps to the
// smallest normal float, non-finite inputs to zero.
func ulp(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	if x == 0 {
		return minNormal
	}
	bits := math.Float64bits(x)
	if x > 0 {
		return math.Float64frombits(bits+1) - x
	}
	return x - math.Float64frombits(bits+1)
}
