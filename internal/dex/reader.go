package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"positionScope/internal/errs"
	"positionScope/internal/fixedpoint"
	"positionScope/internal/model"
)

// Caller is the subset of chain.Client the reader needs.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
}

// Reader reads pool, tick and position state from V3 contracts. Every read takes an
// explicit block so a caller can pin a whole valuation to one snapshot; block 0 means latest.
type Reader struct {
	caller Caller
	tokens *TokenMetaCache
	logger *zap.Logger

	// maxConcurrency bounds fan-out of tokenOfOwnerByIndex calls.
	maxConcurrency int
}

// NewReader creates a reader. A nil cache disables token metadata caching.
func NewReader(caller Caller, tokens *TokenMetaCache, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{caller: caller, tokens: tokens, logger: logger, maxConcurrency: 8}
}

func blockArg(block uint64) *big.Int {
	if block == 0 {
		return nil
	}
	return new(big.Int).SetUint64(block)
}

// unavailable marks a failed chain read as ErrDataUnavailable while keeping the cause.
func unavailable(what string, err error) error {
	return fmt.Errorf("%s: %w: %w", what, errs.ErrDataUnavailable, err)
}

// BlockNumber returns the latest block number.
func (r *Reader) BlockNumber(ctx context.Context) (uint64, error) {
	n, err := r.caller.LatestBlockNumber(ctx)
	if err != nil {
		return 0, unavailable("block number", err)
	}
	return n, nil
}

// BlockTime returns the timestamp of block.
func (r *Reader) BlockTime(ctx context.Context, block uint64) (uint64, error) {
	ts, err := r.caller.BlockTimestamp(ctx, block)
	if err != nil {
		return 0, unavailable("block timestamp", err)
	}
	return ts, nil
}

// EstimateGas runs eth_estimateGas for msg. Errors are returned as-is so the caller can
// classify them.
func (r *Reader) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return r.caller.EstimateGas(ctx, msg)
}

// PoolSnapshot reads slot0, liquidity, fee growth globals and immutable pool fields at block.
// Fee growth globals are optional: when they cannot be read they are left nil.
func (r *Reader) PoolSnapshot(ctx context.Context, pool common.Address, block uint64) (model.PoolSnapshot, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return model.PoolSnapshot{}, fmt.Errorf("parse pool abi: %w", err)
	}
	blockPtr := blockArg(block)
	snapshot := model.PoolSnapshot{Address: pool.Hex(), Block: block}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		values, err := callMethod(gctx, r.caller, pool, poolABI, "slot0", blockPtr)
		if err != nil {
			return unavailable("pool slot0", err)
		}
		if len(values) < 2 {
			return errs.Unavailable("pool slot0 returned %d values", len(values))
		}
		sqrt, err := asBigInt(values[0])
		if err != nil {
			return fmt.Errorf("slot0 sqrt price: %w", err)
		}
		if snapshot.SqrtPriceX96, err = fixedpoint.FromBig(sqrt); err != nil {
			return fmt.Errorf("slot0 sqrt price: %w", err)
		}
		tickInt, err := asBigInt(values[1])
		if err != nil {
			return fmt.Errorf("slot0 tick: %w", err)
		}
		snapshot.CurrentTick, err = int24FromBig(tickInt)
		return err
	})
	g.Go(func() error {
		values, err := callMethod(gctx, r.caller, pool, poolABI, "liquidity", blockPtr)
		if err != nil {
			return unavailable("pool liquidity", err)
		}
		liquidity, err := uint256Value(values[0])
		if err != nil {
			return fmt.Errorf("pool liquidity: %w", err)
		}
		snapshot.Liquidity = liquidity
		return nil
	})
	g.Go(func() error {
		values, err := callMethod(gctx, r.caller, pool, poolABI, "fee", blockPtr)
		if err != nil {
			return unavailable("pool fee", err)
		}
		fee, err := asBigInt(values[0])
		if err != nil {
			return fmt.Errorf("pool fee: %w", err)
		}
		snapshot.FeeTier = uint32(fee.Uint64())
		return nil
	})
	g.Go(func() error {
		values, err := callMethod(gctx, r.caller, pool, poolABI, "tickSpacing", blockPtr)
		if err != nil {
			return unavailable("pool tick spacing", err)
		}
		spacing, err := asBigInt(values[0])
		if err != nil {
			return fmt.Errorf("pool tick spacing: %w", err)
		}
		snapshot.TickSpacing, err = int24FromBig(spacing)
		return err
	})
	g.Go(func() error {
		token0, token1, err := r.poolTokens(gctx, poolABI, pool, blockPtr)
		if err != nil {
			return err
		}
		snapshot.Token0, snapshot.Token1 = token0.Hex(), token1.Hex()
		return nil
	})
	for _, item := range []struct {
		method string
		dst    **uint256.Int
	}{
		{method: "feeGrowthGlobal0X128", dst: &snapshot.FeeGrowthGlobal0},
		{method: "feeGrowthGlobal1X128", dst: &snapshot.FeeGrowthGlobal1},
	} {
		item := item
		g.Go(func() error {
			values, err := callMethod(gctx, r.caller, pool, poolABI, item.method, blockPtr)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				r.logger.Debug("fee growth global read failed", zap.String("pool", pool.Hex()), zap.String("method", item.method), zap.Error(err))
				return nil
			}
			value, err := uint256Value(values[0])
			if err != nil {
				r.logger.Debug("fee growth global decode failed", zap.String("pool", pool.Hex()), zap.Error(err))
				return nil
			}
			*item.dst = value
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.PoolSnapshot{}, err
	}
	return snapshot, nil
}

func (r *Reader) poolTokens(ctx context.Context, poolABI abi.ABI, pool common.Address, block *big.Int) (common.Address, common.Address, error) {
	values, err := callMethod(ctx, r.caller, pool, poolABI, "token0", block)
	if err != nil {
		return common.Address{}, common.Address{}, unavailable("pool token0", err)
	}
	token0, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("token0: %w", err)
	}
	values, err = callMethod(ctx, r.caller, pool, poolABI, "token1", block)
	if err != nil {
		return common.Address{}, common.Address{}, unavailable("pool token1", err)
	}
	token1, err := asAddress(values[0])
	if err != nil {
		return common.Address{}, common.Address{}, fmt.Errorf("token1: %w", err)
	}
	return token0, token1, nil
}

// TickBoundary reads ticks(tick) at block.
func (r *Reader) TickBoundary(ctx context.Context, pool common.Address, tick int32, block uint64) (model.TickBoundary, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return model.TickBoundary{}, fmt.Errorf("parse pool abi: %w", err)
	}
	values, err := callMethod(ctx, r.caller, pool, poolABI, "ticks", blockArg(block), big.NewInt(int64(tick)))
	if err != nil {
		return model.TickBoundary{}, unavailable(fmt.Sprintf("tick %d", tick), err)
	}
	if len(values) < 8 {
		return model.TickBoundary{}, errs.Unavailable("tick %d returned %d values", tick, len(values))
	}
	outside0, err := uint256Value(values[2])
	if err != nil {
		return model.TickBoundary{}, fmt.Errorf("tick %d fee growth outside0: %w", tick, err)
	}
	outside1, err := uint256Value(values[3])
	if err != nil {
		return model.TickBoundary{}, fmt.Errorf("tick %d fee growth outside1: %w", tick, err)
	}
	initialized, err := asBool(values[7])
	if err != nil {
		return model.TickBoundary{}, fmt.Errorf("tick %d initialized: %w", tick, err)
	}
	return model.TickBoundary{
		Tick:              tick,
		Initialized:       initialized,
		FeeGrowthOutside0: outside0,
		FeeGrowthOutside1: outside1,
	}, nil
}

// Position reads positions(tokenID) from a position manager. Platform, chain and pool
// address are left for the caller to fill in.
func (r *Reader) Position(ctx context.Context, manager common.Address, tokenID *big.Int, block uint64) (model.Position, error) {
	if tokenID == nil || tokenID.Sign() < 0 {
		return model.Position{}, errs.Invalid("invalid position id")
	}
	npmABI, err := PositionManagerABI()
	if err != nil {
		return model.Position{}, fmt.Errorf("parse position manager abi: %w", err)
	}
	values, err := callMethod(ctx, r.caller, manager, npmABI, "positions", blockArg(block), tokenID)
	if err != nil {
		return model.Position{}, unavailable(fmt.Sprintf("position %s", tokenID.String()), err)
	}
	if len(values) < 12 {
		return model.Position{}, errs.Unavailable("position %s returned %d values", tokenID.String(), len(values))
	}

	pos := model.Position{ID: tokenID.String()}
	token0, err := asAddress(values[2])
	if err != nil {
		return model.Position{}, fmt.Errorf("position token0: %w", err)
	}
	token1, err := asAddress(values[3])
	if err != nil {
		return model.Position{}, fmt.Errorf("position token1: %w", err)
	}
	pos.Token0, pos.Token1 = token0.Hex(), token1.Hex()

	fee, err := asBigInt(values[4])
	if err != nil {
		return model.Position{}, fmt.Errorf("position fee: %w", err)
	}
	pos.FeeTier = uint32(fee.Uint64())

	for i, dst := range []*int32{&pos.TickLower, &pos.TickUpper} {
		tick, err := asBigInt(values[5+i])
		if err != nil {
			return model.Position{}, fmt.Errorf("position tick: %w", err)
		}
		if *dst, err = int24FromBig(tick); err != nil {
			return model.Position{}, fmt.Errorf("position tick: %w", err)
		}
	}

	for i, dst := range []**uint256.Int{
		&pos.Liquidity,
		&pos.FeeGrowthInside0Last,
		&pos.FeeGrowthInside1Last,
		&pos.TokensOwed0,
		&pos.TokensOwed1,
	} {
		value, err := uint256Value(values[7+i])
		if err != nil {
			return model.Position{}, fmt.Errorf("position field %d: %w", 7+i, err)
		}
		*dst = value
	}
	return pos, nil
}

// PositionIDs enumerates the position NFTs held by owner.
func (r *Reader) PositionIDs(ctx context.Context, manager, owner common.Address, block uint64) ([]*big.Int, error) {
	npmABI, err := PositionManagerABI()
	if err != nil {
		return nil, fmt.Errorf("parse position manager abi: %w", err)
	}
	blockPtr := blockArg(block)
	values, err := callMethod(ctx, r.caller, manager, npmABI, "balanceOf", blockPtr, owner)
	if err != nil {
		return nil, unavailable("position balance", err)
	}
	balance, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("position balance: %w", err)
	}
	if !balance.IsInt64() || balance.Int64() > 10000 {
		return nil, errs.OutOfRange("owner %s holds %s positions", owner.Hex(), balance.String())
	}

	ids := make([]*big.Int, balance.Int64())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxConcurrency)
	for i := range ids {
		i := i
		g.Go(func() error {
			values, err := callMethod(gctx, r.caller, manager, npmABI, "tokenOfOwnerByIndex", blockPtr, owner, big.NewInt(int64(i)))
			if err != nil {
				return unavailable(fmt.Sprintf("position index %d", i), err)
			}
			id, err := asBigInt(values[0])
			if err != nil {
				return fmt.Errorf("position index %d: %w", i, err)
			}
			ids[i] = id
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}

// TokenMeta returns cached token metadata, loading it on first use.
func (r *Reader) TokenMeta(ctx context.Context, token common.Address) (model.TokenMeta, error) {
	if r.tokens != nil {
		if meta, ok := r.tokens.Get(token); ok {
			return meta, nil
		}
	}
	meta, err := FetchTokenMeta(ctx, r.caller, token, r.logger)
	if err != nil {
		return meta, unavailable(fmt.Sprintf("token %s metadata", token.Hex()), err)
	}
	if r.tokens != nil {
		r.tokens.Set(token, meta)
	}
	return meta, nil
}

func uint256Value(value interface{}) (*uint256.Int, error) {
	b, err := asBigInt(value)
	if err != nil {
		return nil, err
	}
	return fixedpoint.FromBig(b)
}
