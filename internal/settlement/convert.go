package settlement

import (
	"math"

	"github.com/shopspring/decimal"
)

// Rates maps a currency code to its conversion multiplier. Amounts are
// converted between two currencies by the ratio of their multipliers.
type Rates map[string]float64

// Rate returns the multiplier for code. Missing entries and values that are
// not finite and strictly positive count as 1.
func (r Rates) Rate(code string) float64 {
	v, ok := r[code]
	if !ok || !(v > 0) || math.IsInf(v, 0) {
		return 1
	}
	return v
}

// ToBase converts amount from currency into base.
func (r Rates) ToBase(amount float64, currency, base string) float64 {
	if currency == base {
		return amount
	}
	return amount * r.Rate(currency) / r.Rate(base)
}

// Round2 rounds x to two decimal places, halves away from zero.
// Non-finite values are returned unchanged.
func Round2(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	return decimal.NewFromFloat(x).Round(2).InexactFloat64()
}
