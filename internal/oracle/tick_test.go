package oracle

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestTickToPriceZero(t *testing.T) {
	if got := TickToPrice(0); !got.Equal(decimal.New(1, 0)) {
		t.Fatalf("tick 0 must price at exactly 1, got %s", got)
	}
}

func TestTickToPriceOne(t *testing.T) {
	got := TickToPrice(1)
	if !got.Equal(decimal.RequireFromString("1.0001")) {
		t.Fatalf("tick 1 must price at exactly 1.0001, got %s", got)
	}
}

func TestTickToPriceNegativeIsReciprocal(t *testing.T) {
	pos := TickToPrice(5000)
	neg := TickToPrice(-5000)
	product := pos.Mul(neg)

	tolerance := decimal.New(1, -20)
	if product.Sub(decimal.New(1, 0)).Abs().Cmp(tolerance) > 0 {
		t.Fatalf("1.0001^t * 1.0001^-t should be 1 within tolerance, got %s", product)
	}
}

func TestTickToPriceDoubling(t *testing.T) {
	// ln(2)/ln(1.0001) ~ 6931.8: tick 6932 is the first tick at or above a
	// doubling of price.
	below := TickToPrice(6931)
	above := TickToPrice(6932)
	two := decimal.NewFromInt(2)

	if below.Cmp(two) >= 0 {
		t.Fatalf("tick 6931 should be below 2.0, got %s", below)
	}
	if above.Cmp(two) < 0 {
		t.Fatalf("tick 6932 should be at or above 2.0, got %s", above)
	}
}

func TestTickToPriceMonotonic(t *testing.T) {
	ticks := []int32{-100_000, -5_000, -1, 0, 1, 5_000, 100_000, 500_000}
	prev := decimal.Decimal{}
	for i, tick := range ticks {
		price := TickToPrice(tick)
		if price.Sign() <= 0 {
			t.Fatalf("tick %d produced non-positive price %s", tick, price)
		}
		if i > 0 && price.Cmp(prev) <= 0 {
			t.Fatalf("price must strictly increase with tick; tick %d gave %s after %s", tick, price, prev)
		}
		prev = price
	}
}
