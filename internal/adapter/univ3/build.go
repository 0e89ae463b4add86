package univ3

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"positionScope/internal/adapter"
	"positionScope/internal/dex"
	"positionScope/internal/errs"
	"positionScope/internal/fixedpoint"
	"positionScope/internal/model"
	"positionScope/internal/position"
	"positionScope/internal/tickmath"
	"positionScope/internal/txbuilder"
)

const feeDenominator = 1_000_000

var hundred = decimal.NewFromInt(100)

// BuildCreatePosition builds a mint. Price bounds, when given, are snapped to the nearest
// usable tick of the fee tier.
func (a *Adapter) BuildCreatePosition(ctx context.Context, req adapter.CreatePositionRequest) (tx model.UnsignedTx, err error) {
	ctx, done := a.begin(ctx, "build_create_position")
	defer func() { err = done(err) }()

	spacing, ok := a.deployment.TickSpacing(req.FeeTier)
	if !ok {
		return model.UnsignedTx{}, errs.Invalid("%s does not support fee tier %d", a.platform, req.FeeTier)
	}
	params := txbuilder.CreatePositionParams{
		From:           req.From,
		Recipient:      req.Recipient,
		Token0:         req.Token0,
		Token1:         req.Token1,
		FeeTier:        req.FeeTier,
		TickSpacing:    spacing,
		TickLower:      req.TickLower,
		TickUpper:      req.TickUpper,
		Amount0Desired: req.Amount0Desired,
		Amount1Desired: req.Amount1Desired,
		Slippage:       req.Slippage,
		Deadline:       req.Deadline,
	}

	if req.PriceLower != nil || req.PriceUpper != nil {
		if req.PriceLower == nil || req.PriceUpper == nil {
			return model.UnsignedTx{}, errs.Invalid("both price bounds are required")
		}
		if !req.PriceLower.IsPositive() || !req.PriceUpper.IsPositive() {
			return model.UnsignedTx{}, errs.Invalid("price bounds must be positive")
		}
		if !req.PriceLower.LessThan(*req.PriceUpper) {
			return model.UnsignedTx{}, errs.Invalid("lower price %s must be below upper price %s", req.PriceLower.String(), req.PriceUpper.String())
		}
		if err := params.ValidateWithoutTicks(); err != nil {
			return model.UnsignedTx{}, fmt.Errorf("create position: %w", err)
		}
		meta0, err := a.reader.TokenMeta(ctx, req.Token0)
		if err != nil {
			return model.UnsignedTx{}, fmt.Errorf("create position: %w", err)
		}
		meta1, err := a.reader.TokenMeta(ctx, req.Token1)
		if err != nil {
			return model.UnsignedTx{}, fmt.Errorf("create position: %w", err)
		}
		if params.TickLower, err = usableTick(*req.PriceLower, meta0.Decimals, meta1.Decimals, spacing); err != nil {
			return model.UnsignedTx{}, fmt.Errorf("lower price: %w", err)
		}
		if params.TickUpper, err = usableTick(*req.PriceUpper, meta0.Decimals, meta1.Decimals, spacing); err != nil {
			return model.UnsignedTx{}, fmt.Errorf("upper price: %w", err)
		}
	}
	if err := params.Validate(); err != nil {
		return model.UnsignedTx{}, fmt.Errorf("create position: %w", err)
	}

	pool, err := a.poolAddress(req.Token0, req.Token1, req.FeeTier)
	if err != nil {
		return model.UnsignedTx{}, err
	}
	snapshot, err := a.reader.PoolSnapshot(ctx, pool, 0)
	if err != nil {
		return model.UnsignedTx{}, fmt.Errorf("create position: %w", err)
	}
	params.Amount0Expected, params.Amount1Expected, err = expectedForDesired(snapshot, params.TickLower, params.TickUpper, req.Amount0Desired, req.Amount1Desired)
	if err != nil {
		return model.UnsignedTx{}, fmt.Errorf("create position: %w", err)
	}
	return a.builder.CreatePosition(ctx, params)
}

func (a *Adapter) BuildIncreaseLiquidity(ctx context.Context, req adapter.IncreaseLiquidityRequest) (tx model.UnsignedTx, err error) {
	tokenID, err := parseTokenID(req.PositionID)
	if err != nil {
		return model.UnsignedTx{}, err
	}
	params := txbuilder.IncreaseLiquidityParams{
		From:           req.From,
		TokenID:        tokenID,
		Amount0Desired: req.Amount0Desired,
		Amount1Desired: req.Amount1Desired,
		Slippage:       req.Slippage,
		Deadline:       req.Deadline,
	}
	if err := params.Validate(); err != nil {
		return model.UnsignedTx{}, fmt.Errorf("increase liquidity: %w", err)
	}

	ctx, done := a.begin(ctx, "build_increase_liquidity")
	defer func() { err = done(err) }()

	pos, snapshot, err := a.livePosition(ctx, tokenID)
	if err != nil {
		return model.UnsignedTx{}, err
	}
	params.Amount0Expected, params.Amount1Expected, err = expectedForDesired(snapshot, pos.TickLower, pos.TickUpper, req.Amount0Desired, req.Amount1Desired)
	if err != nil {
		return model.UnsignedTx{}, fmt.Errorf("increase liquidity: %w", err)
	}
	return a.builder.IncreaseLiquidity(ctx, params)
}

// BuildDecreaseLiquidity removes a percentage of the position's current liquidity.
// The slippage minimums come from what that liquidity is worth at the current price.
func (a *Adapter) BuildDecreaseLiquidity(ctx context.Context, req adapter.DecreaseLiquidityRequest) (tx model.UnsignedTx, err error) {
	tokenID, err := parseTokenID(req.PositionID)
	if err != nil {
		return model.UnsignedTx{}, err
	}
	if !req.Percent.IsPositive() || req.Percent.GreaterThan(hundred) {
		return model.UnsignedTx{}, errs.Invalid("decrease percent %s outside (0, 100]", req.Percent.String())
	}
	if err := (txbuilder.CollectFeesParams{From: req.From, TokenID: tokenID}).Validate(); err != nil {
		return model.UnsignedTx{}, fmt.Errorf("decrease liquidity: %w", err)
	}
	if _, err := txbuilder.MinAmount(nil, req.Slippage); err != nil {
		return model.UnsignedTx{}, fmt.Errorf("decrease liquidity: %w", err)
	}
	if req.Deadline <= 0 {
		return model.UnsignedTx{}, errs.Invalid("deadline offset must be positive, got %s", req.Deadline)
	}

	ctx, done := a.begin(ctx, "build_decrease_liquidity")
	defer func() { err = done(err) }()

	pos, snapshot, err := a.livePosition(ctx, tokenID)
	if err != nil {
		return model.UnsignedTx{}, err
	}
	liquidity := percentOf(pos.Liquidity, req.Percent)
	if liquidity.IsZero() {
		return model.UnsignedTx{}, errs.Invalid("position %s has no liquidity to remove", pos.ID)
	}
	amounts, err := position.AmountsForPosition(liquidity, pos.TickLower, pos.TickUpper, snapshot.CurrentTick, snapshot.SqrtPriceX96)
	if err != nil {
		return model.UnsignedTx{}, fmt.Errorf("decrease liquidity: %w", err)
	}
	return a.builder.DecreaseLiquidity(ctx, txbuilder.DecreaseLiquidityParams{
		From:            req.From,
		TokenID:         tokenID,
		Liquidity:       liquidity.ToBig(),
		Amount0Expected: amounts.Amount0.ToBig(),
		Amount1Expected: amounts.Amount1.ToBig(),
		Slippage:        req.Slippage,
		Deadline:        req.Deadline,
	})
}

func (a *Adapter) BuildCollectFees(ctx context.Context, req adapter.CollectFeesRequest) (tx model.UnsignedTx, err error) {
	tokenID, err := parseTokenID(req.PositionID)
	if err != nil {
		return model.UnsignedTx{}, err
	}
	ctx, done := a.begin(ctx, "build_collect_fees")
	defer func() { err = done(err) }()

	return a.builder.CollectFees(ctx, txbuilder.CollectFeesParams{
		From:      req.From,
		TokenID:   tokenID,
		Recipient: req.Recipient,
	})
}

// BuildClosePosition removes all liquidity, collects everything owed and burns the NFT
// in one multicall.
func (a *Adapter) BuildClosePosition(ctx context.Context, req adapter.ClosePositionRequest) (tx model.UnsignedTx, err error) {
	tokenID, err := parseTokenID(req.PositionID)
	if err != nil {
		return model.UnsignedTx{}, err
	}
	params := txbuilder.ClosePositionParams{
		From:      req.From,
		TokenID:   tokenID,
		Recipient: req.Recipient,
		Slippage:  req.Slippage,
		Deadline:  req.Deadline,
	}
	if err := params.Validate(); err != nil {
		return model.UnsignedTx{}, fmt.Errorf("close position: %w", err)
	}

	ctx, done := a.begin(ctx, "build_close_position")
	defer func() { err = done(err) }()

	pos, snapshot, err := a.livePosition(ctx, tokenID)
	if err != nil {
		return model.UnsignedTx{}, err
	}
	liquidity := fixedpoint.OrZero(pos.Liquidity)
	if !liquidity.IsZero() {
		amounts, err := position.AmountsForPosition(liquidity, pos.TickLower, pos.TickUpper, snapshot.CurrentTick, snapshot.SqrtPriceX96)
		if err != nil {
			return model.UnsignedTx{}, fmt.Errorf("close position: %w", err)
		}
		params.Liquidity = liquidity.ToBig()
		params.Amount0Expected = amounts.Amount0.ToBig()
		params.Amount1Expected = amounts.Amount1.ToBig()
	}
	return a.builder.ClosePosition(ctx, params)
}

// BuildSwap builds an exact-input swap. Without an explicit minimum the expected output is
// the spot price applied to the input net of the pool fee.
func (a *Adapter) BuildSwap(ctx context.Context, req adapter.SwapRequest) (tx model.UnsignedTx, err error) {
	params := txbuilder.SwapParams{
		From:             req.From,
		Recipient:        req.Recipient,
		TokenIn:          req.TokenIn,
		TokenOut:         req.TokenOut,
		FeeTier:          req.FeeTier,
		AmountIn:         req.AmountIn,
		AmountOutMinimum: req.AmountOutMinimum,
		Slippage:         req.Slippage,
		Deadline:         req.Deadline,
	}
	if err := params.Validate(); err != nil {
		return model.UnsignedTx{}, fmt.Errorf("swap: %w", err)
	}
	if req.FeeTier >= feeDenominator {
		return model.UnsignedTx{}, errs.Invalid("fee tier %d too large", req.FeeTier)
	}

	if a.deployment.SwapRouter == (common.Address{}) {
		return model.UnsignedTx{}, errs.Invalid("%s has no swap router on chain %d", a.platform, a.chainID)
	}

	ctx, done := a.begin(ctx, "build_swap")
	defer func() { err = done(err) }()

	if params.AmountOutMinimum == nil {
		pool, err := a.poolAddress(req.TokenIn, req.TokenOut, req.FeeTier)
		if err != nil {
			return model.UnsignedTx{}, err
		}
		snapshot, err := a.reader.PoolSnapshot(ctx, pool, 0)
		if err != nil {
			return model.UnsignedTx{}, fmt.Errorf("swap: %w", err)
		}
		token0, _ := dex.SortTokens(req.TokenIn, req.TokenOut)
		params.AmountOutExpected, err = expectedSwapOut(snapshot.SqrtPriceX96, req.AmountIn, req.FeeTier, token0 == req.TokenIn)
		if err != nil {
			return model.UnsignedTx{}, fmt.Errorf("swap: %w", err)
		}
	}
	return a.builder.Swap(ctx, params)
}

// livePosition reads a position and its pool at the same block.
func (a *Adapter) livePosition(ctx context.Context, tokenID *big.Int) (model.Position, model.PoolSnapshot, error) {
	block, err := a.reader.BlockNumber(ctx)
	if err != nil {
		return model.Position{}, model.PoolSnapshot{}, err
	}
	pos, err := a.reader.Position(ctx, a.deployment.PositionManager, tokenID, block)
	if err != nil {
		return model.Position{}, model.PoolSnapshot{}, fmt.Errorf("position %s: %w", tokenID.String(), err)
	}
	pool, err := a.poolAddress(common.HexToAddress(pos.Token0), common.HexToAddress(pos.Token1), pos.FeeTier)
	if err != nil {
		return model.Position{}, model.PoolSnapshot{}, err
	}
	snapshot, err := a.reader.PoolSnapshot(ctx, pool, block)
	if err != nil {
		return model.Position{}, model.PoolSnapshot{}, fmt.Errorf("position %s pool: %w", pos.ID, err)
	}
	pos.Platform, pos.ChainID, pos.PoolAddress = a.platform, a.chainID, pool.Hex()
	return pos, snapshot, nil
}

// expectedForDesired returns the amounts the pool would take for the largest liquidity the
// desired amounts can back.
func expectedForDesired(snapshot model.PoolSnapshot, tickLower, tickUpper int32, desired0, desired1 *big.Int) (*big.Int, *big.Int, error) {
	amount0, err := fixedpoint.FromBig(orZero(desired0))
	if err != nil {
		return nil, nil, err
	}
	amount1, err := fixedpoint.FromBig(orZero(desired1))
	if err != nil {
		return nil, nil, err
	}
	liquidity, err := position.LiquidityForAmounts(snapshot.SqrtPriceX96, tickLower, tickUpper, amount0, amount1)
	if err != nil {
		return nil, nil, err
	}
	amounts, err := position.AmountsForPosition(liquidity, tickLower, tickUpper, snapshot.CurrentTick, snapshot.SqrtPriceX96)
	if err != nil {
		return nil, nil, err
	}
	return amounts.Amount0.ToBig(), amounts.Amount1.ToBig(), nil
}

// expectedSwapOut is amountIn * (1 - fee) * price, price being token1 per token0 in raw
// units when zeroForOne and its inverse otherwise.
func expectedSwapOut(sqrtPriceX96 *uint256.Int, amountIn *big.Int, feeTier uint32, zeroForOne bool) (*big.Int, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.IsZero() {
		return nil, errs.Unavailable("pool sqrt price is zero")
	}
	sqrt := sqrtPriceX96.ToBig()
	num := new(big.Int).Mul(sqrt, sqrt)
	den := new(big.Int).Lsh(big.NewInt(1), 192)
	if !zeroForOne {
		num, den = den, num
	}
	out := new(big.Rat).SetInt(amountIn)
	out.Mul(out, big.NewRat(int64(feeDenominator-feeTier), feeDenominator))
	out.Mul(out, new(big.Rat).SetFrac(num, den))
	return new(big.Int).Quo(out.Num(), out.Denom()), nil
}

// percentOf returns floor(liquidity * percent / 100).
func percentOf(liquidity *uint256.Int, percent decimal.Decimal) *uint256.Int {
	share := new(big.Rat).Mul(new(big.Rat).SetInt(fixedpoint.OrZero(liquidity).ToBig()), percent.Rat())
	share.Quo(share, big.NewRat(100, 1))
	out, _ := uint256.FromBig(new(big.Int).Quo(share.Num(), share.Denom()))
	return out
}

func usableTick(price decimal.Decimal, decimals0, decimals1 uint8, spacing int32) (int32, error) {
	tick, err := tickmath.PriceToTick(price, int(decimals0), int(decimals1), false)
	if err != nil {
		return 0, err
	}
	return tickmath.NearestUsableTick(tick, spacing)
}

func orZero(amount *big.Int) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	return amount
}
