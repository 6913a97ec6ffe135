package oracle

import "github.com/shopspring/decimal"

const (
	// MaxTick bounds the usable tick range, mirroring concentrated-liquidity
	// pool limits.
	MaxTick int32 = 887_272

	// tickPrecision is the fractional precision kept between multiplication
	// steps. Deviation checks operate in basis points, so thirty fractional
	// digits leave the rounding error many orders of magnitude below the
	// tightest permissible bound.
	tickPrecision int32 = 30
)

var tickBase = decimal.RequireFromString("1.0001")

// TickToPrice converts a pool tick into the price of one unit of token0
// denominated in token1: price = 1.0001^tick. Computed by square-and-multiply
// with bounded intermediate precision; exact power expansion is intractable
// at the tick magnitudes real pools use.
func TickToPrice(tick int32) decimal.Decimal {
	if tick == 0 {
		return decimal.New(1, 0)
	}

	n := tick
	if n < 0 {
		n = -n
	}
	if n > MaxTick {
		n = MaxTick
	}

	base := tickBase
	result := decimal.New(1, 0)
	for n > 0 {
		if n&1 == 1 {
			result = result.Mul(base).Round(tickPrecision)
		}
		base = base.Mul(base).Round(tickPrecision)
		n >>= 1
	}

	if tick < 0 {
		return decimal.New(1, 0).DivRound(result, tickPrecision)
	}
	return result
}
