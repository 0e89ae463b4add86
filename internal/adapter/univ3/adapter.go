// Package univ3 implements the position adapter for Uniswap-V3-style platforms.
//
// The same code serves every V3 fork registered here; deployments only differ in addresses,
// init code hash and fee tiers.
package univ3

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"positionScope/internal/adapter"
	"positionScope/internal/config"
	"positionScope/internal/dex"
	"positionScope/internal/errs"
	"positionScope/internal/model"
	"positionScope/internal/position"
	"positionScope/internal/tickmath"
	"positionScope/internal/txbuilder"
)

const defaultConcurrency = 8

// Adapter reads and builds positions of one V3 platform on one chain.
type Adapter struct {
	platform    string
	chainID     uint64
	deployment  config.PlatformDeployment
	reader      adapter.ChainReader
	builder     *txbuilder.Builder
	logger      *zap.Logger
	metrics     *adapter.Metrics
	timeout     time.Duration
	concurrency int
}

// Register binds the V3 constructor to every V3 platform id.
func Register(r *adapter.Registry) {
	r.Register(config.PlatformUniswapV3, Constructor)
	r.Register(config.PlatformPancakeSwapV3, Constructor)
}

// Constructor satisfies adapter.Constructor.
func Constructor(deps adapter.Deps) (adapter.Adapter, error) {
	return New(deps)
}

// New creates a V3 adapter.
func New(deps adapter.Deps) (*Adapter, error) {
	if deps.Reader == nil {
		return nil, errs.Invalid("%s: chain reader is nil", deps.Platform)
	}
	if deps.Deployment.PositionManager == (common.Address{}) {
		return nil, errs.Invalid("%s: position manager not configured on chain %d", deps.Platform, deps.ChainID)
	}
	if deps.Deployment.Deployer() == (common.Address{}) || deps.Deployment.InitCodeHash == (common.Hash{}) {
		return nil, errs.Invalid("%s: pool deployer not configured on chain %d", deps.Platform, deps.ChainID)
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	builder, err := txbuilder.New(deps.Deployment.PositionManager, deps.Deployment.SwapRouter, deps.Reader, txbuilder.Options{
		GasBufferPercent: deps.GasBufferPercent,
		Logger:           logger,
	})
	if err != nil {
		return nil, fmt.Errorf("tx builder: %w", err)
	}

	a := &Adapter{
		platform:    deps.Platform,
		chainID:     deps.ChainID,
		deployment:  deps.Deployment,
		reader:      deps.Reader,
		builder:     builder,
		logger:      logger,
		metrics:     deps.Metrics,
		timeout:     deps.Timeout,
		concurrency: deps.Concurrency,
	}
	if a.timeout <= 0 {
		a.timeout = adapter.DefaultTimeout
	}
	if a.concurrency <= 0 {
		a.concurrency = defaultConcurrency
	}
	return a, nil
}

func (a *Adapter) Platform() string { return a.platform }

func (a *Adapter) ChainID() uint64 { return a.chainID }

// begin applies the operation timeout and returns the closer that records metrics and maps
// an expired deadline to errs.ErrTimeout.
func (a *Adapter) begin(ctx context.Context, op string) (context.Context, func(error) error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	start := time.Now()
	return ctx, func(err error) error {
		err = errs.FromContext(ctx, err)
		cancel()
		a.metrics.ObserveOperation(a.platform, op, time.Since(start).Seconds(), err)
		return err
	}
}

// Position values a single position at the latest block.
func (a *Adapter) Position(ctx context.Context, id string) (report model.PositionReport, err error) {
	tokenID, err := parseTokenID(id)
	if err != nil {
		return model.PositionReport{}, err
	}
	ctx, done := a.begin(ctx, "position")
	defer func() { err = done(err) }()

	block, err := a.reader.BlockNumber(ctx)
	if err != nil {
		return model.PositionReport{}, fmt.Errorf("position %s: %w", id, err)
	}
	return a.valuePosition(ctx, tokenID, block)
}

// Positions values every position owned by owner at one block. A position that cannot be
// valued is reported in Failures and the others are still returned.
func (a *Adapter) Positions(ctx context.Context, owner common.Address) (batch model.PositionBatch, err error) {
	if owner == (common.Address{}) {
		return model.PositionBatch{}, errs.Invalid("owner address is zero")
	}
	ctx, done := a.begin(ctx, "positions")
	defer func() { err = done(err) }()

	block, err := a.reader.BlockNumber(ctx)
	if err != nil {
		return model.PositionBatch{}, fmt.Errorf("positions of %s: %w", owner.Hex(), err)
	}
	ids, err := a.reader.PositionIDs(ctx, a.deployment.PositionManager, owner, block)
	if err != nil {
		return model.PositionBatch{}, fmt.Errorf("positions of %s: %w", owner.Hex(), err)
	}

	reports := make([]*model.PositionReport, len(ids))
	var (
		mu       sync.Mutex
		failures []model.ItemFailure
	)
	g := new(errgroup.Group)
	g.SetLimit(a.concurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			report, err := a.valuePosition(ctx, id, block)
			if err != nil {
				a.logger.Warn("position valuation failed", zap.String("id", id.String()), zap.Error(err))
				mu.Lock()
				failures = append(failures, model.ItemFailure{ID: id.String(), Err: errs.FromContext(ctx, err).Error()})
				mu.Unlock()
				return nil
			}
			reports[i] = &report
			return nil
		})
	}
	_ = g.Wait()

	batch = model.PositionBatch{Owner: owner.Hex(), Block: block}
	for _, report := range reports {
		if report != nil {
			batch.Reports = append(batch.Reports, *report)
		}
	}
	batch.Failures = failures
	if len(ids) > 0 && len(batch.Reports) == 0 && ctx.Err() != nil {
		return batch, fmt.Errorf("positions of %s: %w", owner.Hex(), ctx.Err())
	}
	return batch, nil
}

// valuePosition reads a position and everything needed to value it, all pinned to block.
func (a *Adapter) valuePosition(ctx context.Context, tokenID *big.Int, block uint64) (model.PositionReport, error) {
	pos, err := a.reader.Position(ctx, a.deployment.PositionManager, tokenID, block)
	if err != nil {
		return model.PositionReport{}, fmt.Errorf("position %s: %w", tokenID.String(), err)
	}
	pos.Platform = a.platform
	pos.ChainID = a.chainID

	token0, token1 := common.HexToAddress(pos.Token0), common.HexToAddress(pos.Token1)
	pool, err := a.poolAddress(token0, token1, pos.FeeTier)
	if err != nil {
		return model.PositionReport{}, fmt.Errorf("position %s: %w", pos.ID, err)
	}
	pos.PoolAddress = pool.Hex()

	var (
		snapshot        model.PoolSnapshot
		meta0, meta1    model.TokenMeta
		lower, upper    model.TickBoundary
		lowerErr, upErr error
		timestamp       uint64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snapshot, err = a.reader.PoolSnapshot(gctx, pool, block)
		return err
	})
	// Boundary failures only cost the fee view, so they never cancel the group.
	g.Go(func() error {
		lower, lowerErr = a.reader.TickBoundary(gctx, pool, pos.TickLower, block)
		return nil
	})
	g.Go(func() error {
		upper, upErr = a.reader.TickBoundary(gctx, pool, pos.TickUpper, block)
		return nil
	})
	g.Go(func() error {
		ts, err := a.reader.BlockTime(gctx, block)
		if err != nil {
			a.logger.Debug("block time unavailable", zap.Uint64("block", block), zap.Error(err))
			return nil
		}
		timestamp = ts
		return nil
	})
	g.Go(func() error {
		var err error
		meta0, err = a.reader.TokenMeta(gctx, token0)
		return err
	})
	g.Go(func() error {
		var err error
		meta1, err = a.reader.TokenMeta(gctx, token1)
		return err
	})
	if err := g.Wait(); err != nil {
		return model.PositionReport{}, fmt.Errorf("position %s: %w", pos.ID, err)
	}

	if !strings.EqualFold(snapshot.Token0, pos.Token0) || !strings.EqualFold(snapshot.Token1, pos.Token1) {
		return model.PositionReport{}, errs.Unavailable("position %s: pool %s does not hold %s/%s", pos.ID, pool.Hex(), pos.Token0, pos.Token1)
	}
	spacing := snapshot.TickSpacing
	if spacing == 0 {
		spacing, _ = a.deployment.TickSpacing(pos.FeeTier)
	}
	if err := position.ValidateRange(pos.TickLower, pos.TickUpper, spacing); err != nil {
		return model.PositionReport{}, fmt.Errorf("position %s: %w", pos.ID, err)
	}

	report := model.PositionReport{
		Position:  pos,
		Pool:      snapshot,
		Timestamp: timestamp,
		Token0:    meta0,
		Token1:    meta1,
		InRange:   position.InRange(snapshot.CurrentTick, pos.TickLower, pos.TickUpper),
	}
	d0, d1 := int(meta0.Decimals), int(meta1.Decimals)
	if err := fillPrices(&report, d0, d1); err != nil {
		return model.PositionReport{}, fmt.Errorf("position %s: %w", pos.ID, err)
	}

	amounts, err := position.AmountsForPosition(pos.Liquidity, pos.TickLower, pos.TickUpper, snapshot.CurrentTick, snapshot.SqrtPriceX96)
	if err != nil {
		return model.PositionReport{}, fmt.Errorf("position %s amounts: %w", pos.ID, err)
	}
	report.Amounts = amounts
	report.Display = displayAmounts(amounts.Amount0, amounts.Amount1, meta0.Decimals, meta1.Decimals)

	var lowerPtr, upperPtr *model.TickBoundary
	if lowerErr == nil {
		lowerPtr = &lower
	}
	if upErr == nil {
		upperPtr = &upper
	}
	fees, err := position.UncollectedFees(pos, snapshot, lowerPtr, upperPtr)
	if err != nil {
		if boundaryErr := errors.Join(lowerErr, upErr); boundaryErr != nil {
			err = fmt.Errorf("%w: %w", err, boundaryErr)
		}
		fees = model.FeesView{Available: false, Reason: err.Error()}
		report.Warnings = append(report.Warnings, "fees unavailable: "+err.Error())
		a.logger.Debug("fees unavailable", zap.String("id", pos.ID), zap.Error(err))
	} else {
		display := displayAmounts(fees.Owed0, fees.Owed1, meta0.Decimals, meta1.Decimals)
		report.FeesDisplay = &display
	}
	report.Fees = fees
	return report, nil
}

func fillPrices(report *model.PositionReport, d0, d1 int) error {
	price, err := tickmath.SqrtPriceToPrice(report.Pool.SqrtPriceX96, d0, d1, false)
	if err != nil {
		return fmt.Errorf("price: %w", err)
	}
	inverted, err := tickmath.SqrtPriceToPrice(report.Pool.SqrtPriceX96, d0, d1, true)
	if err != nil {
		return fmt.Errorf("inverted price: %w", err)
	}
	lower, err := tickmath.TickToPrice(report.Position.TickLower, d0, d1, false)
	if err != nil {
		return fmt.Errorf("lower price: %w", err)
	}
	upper, err := tickmath.TickToPrice(report.Position.TickUpper, d0, d1, false)
	if err != nil {
		return fmt.Errorf("upper price: %w", err)
	}
	report.Price = model.PriceView{Price: price}
	report.InvertedPrice = model.PriceView{Price: inverted, Inverted: true}
	report.PriceLower, report.PriceUpper = lower, upper
	return nil
}

func (a *Adapter) poolAddress(tokenA, tokenB common.Address, feeTier uint32) (common.Address, error) {
	return dex.ComputePoolAddress(a.deployment.Deployer(), a.deployment.InitCodeHash, tokenA, tokenB, feeTier)
}

func displayAmounts(amount0, amount1 *uint256.Int, decimals0, decimals1 uint8) model.DisplayAmounts {
	return model.DisplayAmounts{
		Amount0: toDisplay(amount0, decimals0),
		Amount1: toDisplay(amount1, decimals1),
	}
}

func toDisplay(amount *uint256.Int, decimals uint8) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount.ToBig(), -int32(decimals))
}

// parseTokenID accepts a decimal or 0x-prefixed hex position id.
func parseTokenID(id string) (*big.Int, error) {
	id = strings.TrimSpace(id)
	base := 10
	if strings.HasPrefix(id, "0x") || strings.HasPrefix(id, "0X") {
		id, base = id[2:], 16
	}
	tokenID, ok := new(big.Int).SetString(id, base)
	if !ok || tokenID.Sign() < 0 {
		return nil, errs.Invalid("position id %q", id)
	}
	return tokenID, nil
}
