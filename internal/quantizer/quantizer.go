// Package quantizer rounds quantities and prices down to an instrument's step or tick size.
package quantizer

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// Decimals returns the number of decimal places needed to represent step,
// max(0, round(-log10(step))).
func Decimals(step float64) int {
	if step <= 0 {
		return 0
	}
	d := int(math.Round(-math.Log10(step)))
	if d < 0 {
		return 0
	}
	return d
}

// quantize computes floor(value/step)*step toward zero. places is the larger of
// Decimals(step) and the digits step itself carries, so a multiple of a step
// like 0.25 or 0.5 is never cut below the step.
func quantize(value, step float64) (decimal.Decimal, int32) {
	v := decimal.NewFromFloat(value)
	s := decimal.NewFromFloat(step)
	places := max(int32(Decimals(step)), -s.Exponent())

	ratio := v.Div(s)
	if ratio.IsNegative() {
		ratio = ratio.Ceil()
	} else {
		ratio = ratio.Floor()
	}
	return ratio.Mul(s).Truncate(places), places
}

// RoundToStep returns value rounded down to a multiple of step, formatted with
// Decimals(step) decimal places, or more when step has more digits. A non-positive step leaves value unchanged.
func RoundToStep(value, step float64) string {
	if step <= 0 {
		return strconv.FormatFloat(value, 'f', -1, 64)
	}
	q, places := quantize(value, step)
	return q.StringFixed(places)
}

// Floor is RoundToStep as a float64, for notional arithmetic.
func Floor(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	q, _ := quantize(value, step)
	f, _ := q.Float64()
	return f
}
