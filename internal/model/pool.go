package model

import "github.com/holiman/uint256"

// PoolSnapshot is the state of a V3 pool read at a single block.
type PoolSnapshot struct {
	Address          string       `json:"address"`
	Block            uint64       `json:"block"`
	Token0           string       `json:"token0"`
	Token1           string       `json:"token1"`
	FeeTier          uint32       `json:"fee_tier"`
	TickSpacing      int32        `json:"tick_spacing"`
	CurrentTick      int32        `json:"current_tick"`
	SqrtPriceX96     *uint256.Int `json:"sqrt_price_x96"`
	Liquidity        *uint256.Int `json:"liquidity"`
	FeeGrowthGlobal0 *uint256.Int `json:"fee_growth_global0_x128,omitempty"`
	FeeGrowthGlobal1 *uint256.Int `json:"fee_growth_global1_x128,omitempty"`
}

// TickBoundary is the per-tick fee-growth record of a position boundary.
// Nil outside values mean the data could not be read.
type TickBoundary struct {
	Tick              int32        `json:"tick"`
	Initialized       bool         `json:"initialized"`
	FeeGrowthOutside0 *uint256.Int `json:"fee_growth_outside0_x128,omitempty"`
	FeeGrowthOutside1 *uint256.Int `json:"fee_growth_outside1_x128,omitempty"`
}
