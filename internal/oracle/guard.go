package oracle

import "github.com/shopspring/decimal"

var decBpsDenominator = decimal.NewFromInt(BpsDenominator)

// DeviationBps returns the relative deviation between spot and twap in basis
// points, with spot as the denominator. The asymmetry is intentional: spot is
// the attacker-influenced price and is always the baseline, never an average
// of the two. A non-positive spot yields the full denominator (always out of
// bounds for any permissible limit).
func DeviationBps(spot, twap decimal.Decimal) decimal.Decimal {
	if spot.Sign() <= 0 {
		return decBpsDenominator
	}
	delta := spot.Sub(twap).Abs()
	return delta.Mul(decBpsDenominator).Div(spot)
}

// WithinDeviation reports whether spot and twap agree within maxBps basis
// points of the spot price.
func WithinDeviation(spot, twap decimal.Decimal, maxBps int64) bool {
	return DeviationBps(spot, twap).Cmp(decimal.NewFromInt(maxBps)) <= 0
}
