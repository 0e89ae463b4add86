package tickmath

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"positionScope/internal/errs"
	"positionScope/internal/fixedpoint"
)

func relativeDiff(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return a.Abs()
	}
	return a.Sub(b).Abs().Div(b.Abs())
}

func TestSqrtPriceToPriceUnit(t *testing.T) {
	price, err := SqrtPriceToPrice(fixedpoint.Q96, 18, 18, false)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected 1, got %s", price.String())
	}

	// 2^96 * 2 -> raw price 4; token0 with 6 decimals and token1 with 18 scales by 10^-12.
	sqrt := new(uint256.Int).Lsh(fixedpoint.Q96, 1)
	price, err = SqrtPriceToPrice(sqrt, 6, 18, false)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("0.000000000004")) {
		t.Fatalf("expected 4e-12, got %s", price.String())
	}

	inverted, err := SqrtPriceToPrice(sqrt, 6, 18, true)
	if err != nil {
		t.Fatalf("inverted price: %v", err)
	}
	if !inverted.Equal(decimal.RequireFromString("250000000000")) {
		t.Fatalf("expected 2.5e11, got %s", inverted.String())
	}
}

func TestSqrtPriceToPriceInvalid(t *testing.T) {
	if _, err := SqrtPriceToPrice(fixedpoint.Q96, -1, 18, false); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("expected invalid input for negative decimals, got %v", err)
	}
	if _, err := SqrtPriceToPrice(fixedpoint.Q96, 18, 256, false); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("expected invalid input for decimals > 255, got %v", err)
	}
	if _, err := SqrtPriceToPrice(new(uint256.Int), 18, 18, true); !errors.Is(err, errs.ErrRange) {
		t.Fatalf("expected range error for zero sqrt price, got %v", err)
	}
}

func TestTickToPriceKnownValues(t *testing.T) {
	price, err := TickToPrice(0, 18, 18, false)
	if err != nil {
		t.Fatalf("tick 0: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected 1, got %s", price.String())
	}

	price, err = TickToPrice(1, 18, 18, false)
	if err != nil {
		t.Fatalf("tick 1: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("1.0001")) {
		t.Fatalf("expected 1.0001, got %s", price.String())
	}

	price, err = TickToPrice(2, 0, 2, false)
	if err != nil {
		t.Fatalf("tick 2: %v", err)
	}
	if !price.Equal(decimal.RequireFromString("0.0100020001")) {
		t.Fatalf("expected 0.0100020001, got %s", price.String())
	}

	if _, err := TickToPrice(MaxTick+1, 18, 18, false); !errors.Is(err, errs.ErrRange) {
		t.Fatalf("expected range error, got %v", err)
	}
}

func TestTickToPriceRoundTrip(t *testing.T) {
	ticks := []int32{MinTick, -500000, -201234, -600, -1, 0, 1, 600, 76012, 500000, MaxTick}
	orientations := []struct {
		decimals0 int
		decimals1 int
		invert    bool
	}{
		{18, 18, false},
		{6, 18, false},
		{18, 6, true},
	}

	for _, o := range orientations {
		for _, tick := range ticks {
			price, err := TickToPrice(tick, o.decimals0, o.decimals1, o.invert)
			if err != nil {
				t.Fatalf("tick %d: %v", tick, err)
			}
			back, err := PriceToTick(price, o.decimals0, o.decimals1, o.invert)
			if err != nil {
				t.Fatalf("price to tick %d (%s): %v", tick, price.String(), err)
			}
			diff := back - tick
			if diff < -1 || diff > 1 {
				t.Fatalf("round trip %d -> %s -> %d", tick, price.String(), back)
			}
		}
	}
}

func TestTickToPriceMonotonic(t *testing.T) {
	prev, err := TickToPrice(-1000, 18, 6, false)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	for tick := int32(-999); tick <= 1000; tick++ {
		price, err := TickToPrice(tick, 18, 6, false)
		if err != nil {
			t.Fatalf("tick %d: %v", tick, err)
		}
		if !price.GreaterThan(prev) {
			t.Fatalf("price not increasing at tick %d: %s <= %s", tick, price.String(), prev.String())
		}
		prev = price
	}

	for _, pair := range [][2]int32{{MinTick, MinTick + 1}, {MaxTick - 1, MaxTick}} {
		lo, err := TickToPrice(pair[0], 18, 18, false)
		if err != nil {
			t.Fatalf("tick %d: %v", pair[0], err)
		}
		hi, err := TickToPrice(pair[1], 18, 18, false)
		if err != nil {
			t.Fatalf("tick %d: %v", pair[1], err)
		}
		if !hi.GreaterThan(lo) {
			t.Fatalf("price not increasing between %d and %d", pair[0], pair[1])
		}
	}
}

func TestSqrtPriceAndTickPriceAgree(t *testing.T) {
	tolerance := decimal.RequireFromString("0.000001")
	for _, tick := range []int32{-887000, -276324, -600, 0, 600, 202000, 887000} {
		sqrt, err := SqrtRatioAtTick(tick)
		if err != nil {
			t.Fatalf("sqrt ratio %d: %v", tick, err)
		}
		nearest, err := TickAtSqrtRatio(sqrt)
		if err != nil {
			t.Fatalf("tick at sqrt %d: %v", tick, err)
		}

		for _, invert := range []bool{false, true} {
			fromSqrt, err := SqrtPriceToPrice(sqrt, 18, 6, invert)
			if err != nil {
				t.Fatalf("sqrt price %d: %v", tick, err)
			}
			fromTick, err := TickToPrice(nearest, 18, 6, invert)
			if err != nil {
				t.Fatalf("tick price %d: %v", tick, err)
			}
			if relativeDiff(fromSqrt, fromTick).GreaterThan(tolerance) {
				t.Fatalf("tick %d invert=%v: sqrt price %s vs tick price %s", tick, invert, fromSqrt.String(), fromTick.String())
			}
		}
	}
}

func TestPriceToTickInvalid(t *testing.T) {
	if _, err := PriceToTick(decimal.Zero, 18, 18, false); !errors.Is(err, errs.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := PriceToTick(decimal.RequireFromString("1e60"), 18, 18, false); !errors.Is(err, errs.ErrRange) {
		t.Fatalf("expected range error, got %v", err)
	}
}
