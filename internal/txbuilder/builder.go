// Package txbuilder turns position-management actions into unsigned transactions.
//
// Parameters are validated before any network access. Every transaction is gas-estimated
// against live state and an estimation failure is reported as errs.ErrTransactionWouldRevert;
// there is no fallback gas limit. Nothing here signs or broadcasts.
package txbuilder

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"positionScope/internal/dex"
	"positionScope/internal/errs"
	"positionScope/internal/fixedpoint"
	"positionScope/internal/model"
)

// DefaultGasBufferPercent is added on top of a successful estimate.
const DefaultGasBufferPercent = 20

// GasEstimator runs eth_estimateGas.
type GasEstimator interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
}

// Options tunes a Builder. Zero values select defaults.
type Options struct {
	GasBufferPercent uint64
	Now              func() time.Time
	Logger           *zap.Logger
}

// Builder builds transactions for one position manager and swap router pair.
type Builder struct {
	manager   common.Address
	router    common.Address
	estimator GasEstimator

	bufferPercent uint64
	now           func() time.Time
	logger        *zap.Logger

	managerABI abi.ABI
	routerABI  abi.ABI
}

// New creates a builder. The router may be the zero address when swaps are not needed.
func New(manager, router common.Address, estimator GasEstimator, opts Options) (*Builder, error) {
	if manager == (common.Address{}) {
		return nil, errs.Invalid("position manager address is zero")
	}
	if estimator == nil {
		return nil, errs.Invalid("gas estimator is nil")
	}
	managerABI, err := dex.PositionManagerABI()
	if err != nil {
		return nil, fmt.Errorf("parse position manager abi: %w", err)
	}
	routerABI, err := dex.SwapRouterABI()
	if err != nil {
		return nil, fmt.Errorf("parse swap router abi: %w", err)
	}

	b := &Builder{
		manager:       manager,
		router:        router,
		estimator:     estimator,
		bufferPercent: opts.GasBufferPercent,
		now:           opts.Now,
		logger:        opts.Logger,
		managerABI:    managerABI,
		routerABI:     routerABI,
	}
	if b.bufferPercent == 0 {
		b.bufferPercent = DefaultGasBufferPercent
	}
	if b.now == nil {
		b.now = time.Now
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	return b, nil
}

type mintArgs struct {
	Token0         common.Address
	Token1         common.Address
	Fee            *big.Int
	TickLower      *big.Int
	TickUpper      *big.Int
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Recipient      common.Address
	Deadline       *big.Int
}

type increaseLiquidityArgs struct {
	TokenId        *big.Int
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Deadline       *big.Int
}

type decreaseLiquidityArgs struct {
	TokenId    *big.Int
	Liquidity  *big.Int
	Amount0Min *big.Int
	Amount1Min *big.Int
	Deadline   *big.Int
}

type collectArgs struct {
	TokenId    *big.Int
	Recipient  common.Address
	Amount0Max *big.Int
	Amount1Max *big.Int
}

type exactInputSingleArgs struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

func (b *Builder) deadline(offset time.Duration) *big.Int {
	return big.NewInt(b.now().Add(offset).Unix())
}

// CreatePosition builds a mint of a new position.
func (b *Builder) CreatePosition(ctx context.Context, p CreatePositionParams) (model.UnsignedTx, error) {
	if err := p.Validate(); err != nil {
		return model.UnsignedTx{}, fmt.Errorf("create position: %w", err)
	}
	min0, err := MinAmount(orDefault(p.Amount0Expected, orZero(p.Amount0Desired)), p.Slippage)
	if err != nil {
		return model.UnsignedTx{}, fmt.Errorf("create position: %w", err)
	}
	min1, err := MinAmount(orDefault(p.Amount1Expected, orZero(p.Amount1Desired)), p.Slippage)
	if err != nil {
		return model.UnsignedTx{}, fmt.Errorf("create position: %w", err)
	}
	recipient := p.Recipient
	if recipient == (common.Address{}) {
		recipient = p.From
	}

	data, err := b.managerABI.Pack("mint", mintArgs{
		Token0:         p.Token0,
		Token1:         p.Token1,
		Fee:            new(big.Int).SetUint64(uint64(p.FeeTier)),
		TickLower:      big.NewInt(int64(p.TickLower)),
		TickUpper:      big.NewInt(int64(p.TickUpper)),
		Amount0Desired: orZero(p.Amount0Desired),
		Amount1Desired: orZero(p.Amount1Desired),
		Amount0Min:     min0,
		Amount1Min:     min1,
		Recipient:      recipient,
		Deadline:       b.deadline(p.Deadline),
	})
	if err != nil {
		return model.UnsignedTx{}, fmt.Errorf("pack mint: %w", err)
	}
	return b.finalize(ctx, "mint", p.From, b.manager, data, p.Value)
}

// IncreaseLiquidity builds an increaseLiquidity call for an existing position.
func (b *Builder) IncreaseLiquidity(ctx context.Context, p IncreaseLiquidityParams) (model.UnsignedTx, error) {
	if err := p.Validate(); err != nil {
		return model.UnsignedTx{}, fmt.Errorf("increase liquidity: %w", err)
	}
	min0, err := MinAmount(orDefault(p.Amount0Expected, orZero(p.Amount0Desired)), p.Slippage)
	if err != nil {
		return model.UnsignedTx{}, fmt.Errorf("increase liquidity: %w", err)
	}
	min1, err := MinAmount(orDefault(p.Amount1Expected, orZero(p.Amount1Desired)), p.Slippage)
	if err != nil {
		return model.UnsignedTx{}, fmt.Errorf("increase liquidity: %w", err)
	}

	data, err := b.managerABI.Pack("increaseLiquidity", increaseLiquidityArgs{
		TokenId:        p.TokenID,
		Amount0Desired: orZero(p.Amount0Desired),
		Amount1Desired: orZero(p.Amount1Desired),
		Amount0Min:     min0,
		Amount1Min:     min1,
		Deadline:       b.deadline(p.Deadline),
	})
	if err != nil {
		return model.UnsignedTx{}, fmt.Errorf("pack increaseLiquidity: %w", err)
	}
	return b.finalize(ctx, "increase liquidity "+p.TokenID.String(), p.From, b.manager, data, p.Value)
}

// DecreaseLiquidity builds a decreaseLiquidity call. The removed tokens stay owed to the
// position until collected.
func (b *Builder) DecreaseLiquidity(ctx context.Context, p DecreaseLiquidityParams) (model.UnsignedTx, error) {
	if err := p.Validate(); err != nil {
		return model.UnsignedTx{}, fmt.Errorf("decrease liquidity: %w", err)
	}
	data, err := b.packDecrease(p.TokenID, p.Liquidity, p.Amount0Expected, p.Amount1Expected, p.Slippage, p.Deadline)
	if err != nil {
		return model.UnsignedTx{}, err
	}
	return b.finalize(ctx, "decrease liquidity "+p.TokenID.String(), p.From, b.manager, data, nil)
}

func (b *Builder) packDecrease(tokenID, liquidity, expected0, expected1 *big.Int, slippage decimal.Decimal, deadline time.Duration) ([]byte, error) {
	min0, err := MinAmount(expected0, slippage)
	if err != nil {
		return nil, fmt.Errorf("decrease liquidity: %w", err)
	}
	min1, err := MinAmount(expected1, slippage)
	if err != nil {
		return nil, fmt.Errorf("decrease liquidity: %w", err)
	}
	data, err := b.managerABI.Pack("decreaseLiquidity", decreaseLiquidityArgs{
		TokenId:    tokenID,
		Liquidity:  liquidity,
		Amount0Min: min0,
		Amount1Min: min1,
		Deadline:   b.deadline(deadline),
	})
	if err != nil {
		return nil, fmt.Errorf("pack decreaseLiquidity: %w", err)
	}
	return data, nil
}

func (b *Builder) packCollect(tokenID *big.Int, recipient common.Address) ([]byte, error) {
	max := fixedpoint.MaxUint128.ToBig()
	data, err := b.managerABI.Pack("collect", collectArgs{
		TokenId:    tokenID,
		Recipient:  recipient,
		Amount0Max: max,
		Amount1Max: max,
	})
	if err != nil {
		return nil, fmt.Errorf("pack collect: %w", err)
	}
	return data, nil
}

// CollectFees builds a collect of everything owed to the position.
func (b *Builder) CollectFees(ctx context.Context, p CollectFeesParams) (model.UnsignedTx, error) {
	if err := p.Validate(); err != nil {
		return model.UnsignedTx{}, fmt.Errorf("collect fees: %w", err)
	}
	recipient := p.Recipient
	if recipient == (common.Address{}) {
		recipient = p.From
	}
	data, err := b.packCollect(p.TokenID, recipient)
	if err != nil {
		return model.UnsignedTx{}, err
	}
	return b.finalize(ctx, "collect "+p.TokenID.String(), p.From, b.manager, data, nil)
}

// ClosePosition builds a multicall of decreaseLiquidity, collect and burn.
func (b *Builder) ClosePosition(ctx context.Context, p ClosePositionParams) (model.UnsignedTx, error) {
	if err := p.Validate(); err != nil {
		return model.UnsignedTx{}, fmt.Errorf("close position: %w", err)
	}
	recipient := p.Recipient
	if recipient == (common.Address{}) {
		recipient = p.From
	}

	calls := make([][]byte, 0, 3)
	if positive(p.Liquidity) {
		decrease, err := b.packDecrease(p.TokenID, p.Liquidity, p.Amount0Expected, p.Amount1Expected, p.Slippage, p.Deadline)
		if err != nil {
			return model.UnsignedTx{}, err
		}
		calls = append(calls, decrease)
	}
	collect, err := b.packCollect(p.TokenID, recipient)
	if err != nil {
		return model.UnsignedTx{}, err
	}
	burn, err := b.managerABI.Pack("burn", p.TokenID)
	if err != nil {
		return model.UnsignedTx{}, fmt.Errorf("pack burn: %w", err)
	}
	calls = append(calls, collect, burn)

	data, err := b.managerABI.Pack("multicall", calls)
	if err != nil {
		return model.UnsignedTx{}, fmt.Errorf("pack multicall: %w", err)
	}
	return b.finalize(ctx, "close position "+p.TokenID.String(), p.From, b.manager, data, nil)
}

// Swap builds an exactInputSingle call on the swap router.
func (b *Builder) Swap(ctx context.Context, p SwapParams) (model.UnsignedTx, error) {
	if b.router == (common.Address{}) {
		return model.UnsignedTx{}, errs.Invalid("swap router not configured")
	}
	if err := p.Validate(); err != nil {
		return model.UnsignedTx{}, fmt.Errorf("swap: %w", err)
	}
	minOut := p.AmountOutMinimum
	if minOut == nil {
		var err error
		if minOut, err = MinAmount(p.AmountOutExpected, p.Slippage); err != nil {
			return model.UnsignedTx{}, fmt.Errorf("swap: %w", err)
		}
	}
	recipient := p.Recipient
	if recipient == (common.Address{}) {
		recipient = p.From
	}

	data, err := b.routerABI.Pack("exactInputSingle", exactInputSingleArgs{
		TokenIn:           p.TokenIn,
		TokenOut:          p.TokenOut,
		Fee:               new(big.Int).SetUint64(uint64(p.FeeTier)),
		Recipient:         recipient,
		Deadline:          b.deadline(p.Deadline),
		AmountIn:          p.AmountIn,
		AmountOutMinimum:  minOut,
		SqrtPriceLimitX96: orZero(p.SqrtPriceLimitX96),
	})
	if err != nil {
		return model.UnsignedTx{}, fmt.Errorf("pack exactInputSingle: %w", err)
	}
	return b.finalize(ctx, "swap", p.From, b.router, data, p.Value)
}

// transportFailure reports whether err came from the connection rather than from the node
// judging the transaction. JSON-RPC error responses always count as a judgement.
func transportFailure(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// finalize estimates gas and assembles the unsigned transaction.
func (b *Builder) finalize(ctx context.Context, description string, from, to common.Address, data []byte, value *big.Int) (model.UnsignedTx, error) {
	value = orZero(value)
	msg := ethereum.CallMsg{From: from, To: &to, Data: data, Value: value}
	gas, err := b.estimator.EstimateGas(ctx, msg)
	if err != nil {
		if ctx.Err() != nil {
			return model.UnsignedTx{}, errs.FromContext(ctx, fmt.Errorf("estimate gas for %s: %w", description, err))
		}
		b.logger.Warn("gas estimation failed", zap.String("tx", description), zap.String("to", to.Hex()), zap.Error(err))
		if transportFailure(err) {
			return model.UnsignedTx{}, fmt.Errorf("estimate gas for %s: %w: %v", description, errs.ErrDataUnavailable, err)
		}
		return model.UnsignedTx{}, fmt.Errorf("%s: %w: %v", description, errs.ErrTransactionWouldRevert, err)
	}
	gasLimit := gas + gas*b.bufferPercent/100

	b.logger.Debug("transaction built",
		zap.String("tx", description),
		zap.String("to", to.Hex()),
		zap.Uint64("gas_estimate", gas),
		zap.Uint64("gas_limit", gasLimit),
	)
	return model.UnsignedTx{
		From:        from.Hex(),
		To:          to.Hex(),
		Data:        hexutil.Encode(data),
		Value:       value,
		Gas:         gasLimit,
		Description: description,
	}, nil
}
