package position

import (
	"github.com/holiman/uint256"

	"positionScope/internal/errs"
	"positionScope/internal/fixedpoint"
	"positionScope/internal/model"
)

// FeeGrowthInside returns the fee growth per unit of liquidity accumulated inside
// [tickLower, tickUpper). All subtractions wrap mod 2^256 like the pool's own counters.
// global is only needed while the range is active and may be nil otherwise.
func FeeGrowthInside(global, outsideLower, outsideUpper *uint256.Int, currentTick, tickLower, tickUpper int32) (*uint256.Int, error) {
	if outsideLower == nil || outsideUpper == nil {
		return nil, errs.Unavailable("fee growth outside missing for [%d, %d]", tickLower, tickUpper)
	}
	switch {
	case currentTick < tickLower:
		return fixedpoint.SubWrap256(outsideLower, outsideUpper), nil
	case currentTick >= tickUpper:
		return fixedpoint.SubWrap256(outsideUpper, outsideLower), nil
	}
	if global == nil {
		return nil, errs.Unavailable("fee growth global missing")
	}
	inside := fixedpoint.SubWrap256(global, outsideLower)
	return fixedpoint.SubWrap256(inside, outsideUpper), nil
}

// UncollectedFees returns the fees owed to pos: tokens already owed plus the fees
// accrued since the position last checkpointed its fee growth.
func UncollectedFees(pos model.Position, pool model.PoolSnapshot, lower, upper *model.TickBoundary) (model.FeesView, error) {
	liquidity := fixedpoint.OrZero(pos.Liquidity)
	owed0 := fixedpoint.OrZero(pos.TokensOwed0)
	owed1 := fixedpoint.OrZero(pos.TokensOwed1)

	// Without liquidity nothing accrues, so boundary data is irrelevant.
	if liquidity.IsZero() {
		return model.FeesView{
			Owed0:     new(uint256.Int).Set(owed0),
			Owed1:     new(uint256.Int).Set(owed1),
			Available: true,
		}, nil
	}

	if lower == nil || upper == nil {
		return model.FeesView{}, errs.Unavailable("tick boundary data missing for position %s", pos.ID)
	}
	if lower.Tick != pos.TickLower || upper.Tick != pos.TickUpper {
		return model.FeesView{}, errs.Invalid("boundaries [%d, %d] do not match position range [%d, %d]",
			lower.Tick, upper.Tick, pos.TickLower, pos.TickUpper)
	}
	if !lower.Initialized || !upper.Initialized {
		return model.FeesView{}, errs.Unavailable("tick boundary not initialized for position %s", pos.ID)
	}

	fee0, err := accruedFees(liquidity, pool.FeeGrowthGlobal0, lower.FeeGrowthOutside0, upper.FeeGrowthOutside0, pool.CurrentTick, pos.TickLower, pos.TickUpper, pos.FeeGrowthInside0Last, owed0)
	if err != nil {
		return model.FeesView{}, err
	}
	fee1, err := accruedFees(liquidity, pool.FeeGrowthGlobal1, lower.FeeGrowthOutside1, upper.FeeGrowthOutside1, pool.CurrentTick, pos.TickLower, pos.TickUpper, pos.FeeGrowthInside1Last, owed1)
	if err != nil {
		return model.FeesView{}, err
	}
	return model.FeesView{Owed0: fee0, Owed1: fee1, Available: true}, nil
}

func accruedFees(liquidity, global, outsideLower, outsideUpper *uint256.Int, currentTick, tickLower, tickUpper int32, last, owed *uint256.Int) (*uint256.Int, error) {
	if last == nil {
		return nil, errs.Unavailable("position fee growth inside last missing")
	}
	inside, err := FeeGrowthInside(global, outsideLower, outsideUpper, currentTick, tickLower, tickUpper)
	if err != nil {
		return nil, err
	}
	accrued, err := fixedpoint.MulShift(liquidity, fixedpoint.SubWrap256(inside, last), fixedpoint.Resolution128)
	if err != nil {
		return nil, err
	}
	total, overflow := new(uint256.Int).AddOverflow(owed, accrued)
	if overflow {
		return nil, errs.OutOfRange("owed fees exceed 256 bits")
	}
	return total, nil
}
