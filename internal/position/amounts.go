// Package position derives token amounts and uncollected fees for concentrated-liquidity positions.
//
// Every function is pure: inputs come from a single pool snapshot and the results are never cached.
package position

import (
	"github.com/holiman/uint256"

	"positionScope/internal/errs"
	"positionScope/internal/fixedpoint"
	"positionScope/internal/model"
	"positionScope/internal/tickmath"
)

// InRange reports whether currentTick lies in [tickLower, tickUpper).
func InRange(currentTick, tickLower, tickUpper int32) bool {
	return currentTick >= tickLower && currentTick < tickUpper
}

// ValidateRange checks tick ordering, the tick domain and alignment to spacing.
func ValidateRange(tickLower, tickUpper, spacing int32) error {
	if err := tickmath.CheckTick(tickLower); err != nil {
		return err
	}
	if err := tickmath.CheckTick(tickUpper); err != nil {
		return err
	}
	if tickLower >= tickUpper {
		return errs.Invalid("tick lower %d must be below tick upper %d", tickLower, tickUpper)
	}
	if spacing <= 0 {
		return errs.Invalid("tick spacing must be positive, got %d", spacing)
	}
	if tickLower%spacing != 0 || tickUpper%spacing != 0 {
		return errs.Invalid("ticks [%d, %d] not aligned to spacing %d", tickLower, tickUpper, spacing)
	}
	return nil
}

// AmountsForPosition returns the token amounts backing liquidity over [tickLower, tickUpper).
// The regime is picked by currentTick; the snapshot sqrtPriceX96 is used as the current price
// and the boundaries are always tick-derived. Amounts round down.
func AmountsForPosition(liquidity *uint256.Int, tickLower, tickUpper, currentTick int32, sqrtPriceX96 *uint256.Int) (model.AmountsView, error) {
	if liquidity == nil {
		return model.AmountsView{}, errs.Invalid("liquidity is nil")
	}
	if err := fixedpoint.CheckUint128(liquidity); err != nil {
		return model.AmountsView{}, err
	}
	if tickLower >= tickUpper {
		return model.AmountsView{}, errs.Invalid("tick lower %d must be below tick upper %d", tickLower, tickUpper)
	}
	sqrtLower, err := tickmath.SqrtRatioAtTick(tickLower)
	if err != nil {
		return model.AmountsView{}, err
	}
	sqrtUpper, err := tickmath.SqrtRatioAtTick(tickUpper)
	if err != nil {
		return model.AmountsView{}, err
	}
	if err := tickmath.CheckTick(currentTick); err != nil {
		return model.AmountsView{}, err
	}

	zero := model.AmountsView{Amount0: new(uint256.Int), Amount1: new(uint256.Int)}
	if liquidity.IsZero() {
		return zero, nil
	}

	switch {
	case currentTick < tickLower:
		amount0, err := amount0Delta(sqrtLower, sqrtUpper, liquidity)
		if err != nil {
			return model.AmountsView{}, err
		}
		return model.AmountsView{Amount0: amount0, Amount1: new(uint256.Int)}, nil
	case currentTick >= tickUpper:
		amount1, err := amount1Delta(sqrtLower, sqrtUpper, liquidity)
		if err != nil {
			return model.AmountsView{}, err
		}
		return model.AmountsView{Amount0: new(uint256.Int), Amount1: amount1}, nil
	}

	if sqrtPriceX96 == nil {
		return model.AmountsView{}, errs.Invalid("sqrt price is nil")
	}
	// The tick and the sqrt price come from the same snapshot but the price can sit a hair
	// outside the tick's boundaries; clamp so neither side goes negative.
	current := new(uint256.Int).Set(sqrtPriceX96)
	if current.Lt(sqrtLower) {
		current.Set(sqrtLower)
	}
	if current.Gt(sqrtUpper) {
		current.Set(sqrtUpper)
	}

	amount0, err := amount0Delta(current, sqrtUpper, liquidity)
	if err != nil {
		return model.AmountsView{}, err
	}
	amount1, err := amount1Delta(sqrtLower, current, liquidity)
	if err != nil {
		return model.AmountsView{}, err
	}
	return model.AmountsView{Amount0: amount0, Amount1: amount1}, nil
}

// LiquidityForAmounts returns the largest liquidity that amount0 and amount1 can back over
// [tickLower, tickUpper) at sqrtPriceX96.
func LiquidityForAmounts(sqrtPriceX96 *uint256.Int, tickLower, tickUpper int32, amount0, amount1 *uint256.Int) (*uint256.Int, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.IsZero() {
		return nil, errs.Invalid("sqrt price is zero")
	}
	if tickLower >= tickUpper {
		return nil, errs.Invalid("tick lower %d must be below tick upper %d", tickLower, tickUpper)
	}
	sqrtLower, err := tickmath.SqrtRatioAtTick(tickLower)
	if err != nil {
		return nil, err
	}
	sqrtUpper, err := tickmath.SqrtRatioAtTick(tickUpper)
	if err != nil {
		return nil, err
	}
	amount0 = fixedpoint.OrZero(amount0)
	amount1 = fixedpoint.OrZero(amount1)

	var liquidity *uint256.Int
	switch {
	case !sqrtPriceX96.Gt(sqrtLower):
		liquidity, err = liquidityForAmount0(sqrtLower, sqrtUpper, amount0)
	case sqrtPriceX96.Lt(sqrtUpper):
		l0, err0 := liquidityForAmount0(sqrtPriceX96, sqrtUpper, amount0)
		if err0 != nil {
			return nil, err0
		}
		l1, err1 := liquidityForAmount1(sqrtLower, sqrtPriceX96, amount1)
		if err1 != nil {
			return nil, err1
		}
		liquidity = l0
		if l1.Lt(l0) {
			liquidity = l1
		}
	default:
		liquidity, err = liquidityForAmount1(sqrtLower, sqrtUpper, amount1)
	}
	if err != nil {
		return nil, err
	}
	if liquidity.Gt(fixedpoint.MaxUint128) {
		return nil, errs.OutOfRange("liquidity %s exceeds uint128", liquidity.Dec())
	}
	return liquidity, nil
}

// amount0Delta is L * (b - a) / (a * b) in Q96 terms, rounded down.
func amount0Delta(sqrtA, sqrtB, liquidity *uint256.Int) (*uint256.Int, error) {
	numerator1 := new(uint256.Int).Lsh(liquidity, fixedpoint.Resolution96)
	numerator2 := new(uint256.Int).Sub(sqrtB, sqrtA)
	scaled, err := fixedpoint.MulDiv(numerator1, numerator2, sqrtB)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Div(scaled, sqrtA), nil
}

// amount1Delta is L * (b - a) / 2^96, rounded down.
func amount1Delta(sqrtA, sqrtB, liquidity *uint256.Int) (*uint256.Int, error) {
	return fixedpoint.MulDiv(liquidity, new(uint256.Int).Sub(sqrtB, sqrtA), fixedpoint.Q96)
}

func liquidityForAmount0(sqrtA, sqrtB, amount0 *uint256.Int) (*uint256.Int, error) {
	intermediate, err := fixedpoint.MulDiv(sqrtA, sqrtB, fixedpoint.Q96)
	if err != nil {
		return nil, err
	}
	return fixedpoint.MulDiv(amount0, intermediate, new(uint256.Int).Sub(sqrtB, sqrtA))
}

func liquidityForAmount1(sqrtA, sqrtB, amount1 *uint256.Int) (*uint256.Int, error) {
	return fixedpoint.MulDiv(amount1, fixedpoint.Q96, new(uint256.Int).Sub(sqrtB, sqrtA))
}
