// Package mathutil provides common numeric helpers shared by the generators,
// the solver backend and metrics extraction.
package mathutil

import (
	"math"
	"math/rand"

	"github.com/iwvelando/settlement-optimizer/pkg/constants"
)

// RoundCents rounds a value to two decimals, i.e. to represent real currency.
func RoundCents(val float64) float64 {
	return math.Round(val*100) / 100
}

// WithinTolerance checks if two values are within a specified tolerance
func WithinTolerance(val1, val2, tolerance float64) bool {
	return math.Abs(val1-val2) <= tolerance
}

// IsZero checks if a value is effectively zero (within one cent)
func IsZero(val float64) bool {
	return math.Abs(val) <= constants.CurrencyTolerance
}

// Snap returns the nearest integer when val lies within tol of it, and val
// unchanged otherwise.
func Snap(val, tol float64) float64 {
	r := math.Round(val)
	if math.Abs(val-r) <= tol {
		return r
	}
	return val
}

// IsIntegral reports whether val lies within tol of an integer.
func IsIntegral(val, tol float64) bool {
	return math.Abs(val-math.Round(val)) <= tol
}

// Mean returns the arithmetic mean of values and false when values is empty.
func Mean(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), true
}

// SafeRatio returns num/den, or 0 when den is zero.
func SafeRatio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// IntBetween draws an integer uniformly from the inclusive range [lo, hi].
func IntBetween(rng *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.Intn(hi-lo+1)
}

// Normal draws from a gaussian with the given mean and standard deviation.
func Normal(rng *rand.Rand, mean, stddev float64) float64 {
	return mean + stddev*rng.NormFloat64()
}
