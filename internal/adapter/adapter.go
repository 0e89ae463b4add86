// Package adapter defines the platform-neutral position interface and the registry that
// resolves platform adapters per chain.
package adapter

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"positionScope/internal/model"
)

// ChainReader is the chain-read collaborator. Reads that take a block are pinned to it;
// block 0 means latest.
type ChainReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockTime(ctx context.Context, block uint64) (uint64, error)
	PoolSnapshot(ctx context.Context, pool common.Address, block uint64) (model.PoolSnapshot, error)
	TickBoundary(ctx context.Context, pool common.Address, tick int32, block uint64) (model.TickBoundary, error)
	Position(ctx context.Context, manager common.Address, tokenID *big.Int, block uint64) (model.Position, error)
	PositionIDs(ctx context.Context, manager, owner common.Address, block uint64) ([]*big.Int, error)
	TokenMeta(ctx context.Context, token common.Address) (model.TokenMeta, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
}

// Adapter is the uniform position-management interface of one platform on one chain.
type Adapter interface {
	Platform() string
	ChainID() uint64

	Position(ctx context.Context, id string) (model.PositionReport, error)
	Positions(ctx context.Context, owner common.Address) (model.PositionBatch, error)

	BuildCreatePosition(ctx context.Context, req CreatePositionRequest) (model.UnsignedTx, error)
	BuildIncreaseLiquidity(ctx context.Context, req IncreaseLiquidityRequest) (model.UnsignedTx, error)
	BuildDecreaseLiquidity(ctx context.Context, req DecreaseLiquidityRequest) (model.UnsignedTx, error)
	BuildCollectFees(ctx context.Context, req CollectFeesRequest) (model.UnsignedTx, error)
	BuildClosePosition(ctx context.Context, req ClosePositionRequest) (model.UnsignedTx, error)
	BuildSwap(ctx context.Context, req SwapRequest) (model.UnsignedTx, error)
}

// CreatePositionRequest opens a new position. The range is given either as ticks or as
// human prices of token1 per token0; prices are snapped to the nearest usable tick.
type CreatePositionRequest struct {
	From           common.Address
	Recipient      common.Address
	Token0         common.Address
	Token1         common.Address
	FeeTier        uint32
	TickLower      int32
	TickUpper      int32
	PriceLower     *decimal.Decimal
	PriceUpper     *decimal.Decimal
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Slippage       decimal.Decimal
	Deadline       time.Duration
}

type IncreaseLiquidityRequest struct {
	From           common.Address
	PositionID     string
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Slippage       decimal.Decimal
	Deadline       time.Duration
}

// DecreaseLiquidityRequest removes Percent (0, 100] of the position's liquidity.
type DecreaseLiquidityRequest struct {
	From       common.Address
	PositionID string
	Percent    decimal.Decimal
	Slippage   decimal.Decimal
	Deadline   time.Duration
}

type CollectFeesRequest struct {
	From       common.Address
	PositionID string
	Recipient  common.Address
}

type ClosePositionRequest struct {
	From       common.Address
	PositionID string
	Recipient  common.Address
	Slippage   decimal.Decimal
	Deadline   time.Duration
}

// SwapRequest swaps an exact input. Without AmountOutMinimum the minimum is derived from
// the pool's spot price net of the fee tier and Slippage.
type SwapRequest struct {
	From             common.Address
	Recipient        common.Address
	TokenIn          common.Address
	TokenOut         common.Address
	FeeTier          uint32
	AmountIn         *big.Int
	AmountOutMinimum *big.Int
	Slippage         decimal.Decimal
	Deadline         time.Duration
}
