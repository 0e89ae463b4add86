package model

import (
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Position is a liquidity position as stored by a platform's position manager.
type Position struct {
	ID                   string       `json:"id"`
	Platform             string       `json:"platform"`
	ChainID              uint64       `json:"chain_id"`
	PoolAddress          string       `json:"pool_address"`
	Token0               string       `json:"token0"`
	Token1               string       `json:"token1"`
	FeeTier              uint32       `json:"fee_tier"`
	TickLower            int32        `json:"tick_lower"`
	TickUpper            int32        `json:"tick_upper"`
	Liquidity            *uint256.Int `json:"liquidity"`
	FeeGrowthInside0Last *uint256.Int `json:"fee_growth_inside0_last_x128"`
	FeeGrowthInside1Last *uint256.Int `json:"fee_growth_inside1_last_x128"`
	TokensOwed0          *uint256.Int `json:"tokens_owed0"`
	TokensOwed1          *uint256.Int `json:"tokens_owed1"`
}

// PriceView is a human price of token1 per token0, or token0 per token1 when Inverted.
type PriceView struct {
	Price    decimal.Decimal `json:"price"`
	Inverted bool            `json:"inverted"`
}

// AmountsView holds raw token amounts in smallest units.
type AmountsView struct {
	Amount0 *uint256.Int `json:"amount0"`
	Amount1 *uint256.Int `json:"amount1"`
}

// FeesView holds uncollected fees. When Available is false the owed values are unset
// and Reason says why.
type FeesView struct {
	Owed0     *uint256.Int `json:"owed0,omitempty"`
	Owed1     *uint256.Int `json:"owed1,omitempty"`
	Available bool         `json:"available"`
	Reason    string       `json:"reason,omitempty"`
}

// DisplayAmounts are token amounts scaled by decimals.
type DisplayAmounts struct {
	Amount0 decimal.Decimal `json:"amount0"`
	Amount1 decimal.Decimal `json:"amount1"`
}

// PositionReport is the valuation of a single position at one block.
type PositionReport struct {
	Position      Position        `json:"position"`
	Pool          PoolSnapshot    `json:"pool"`
	Timestamp     uint64          `json:"timestamp,omitempty"`
	Token0        TokenMeta       `json:"token0"`
	Token1        TokenMeta       `json:"token1"`
	Price         PriceView       `json:"price"`
	InvertedPrice PriceView       `json:"inverted_price"`
	PriceLower    decimal.Decimal `json:"price_lower"`
	PriceUpper    decimal.Decimal `json:"price_upper"`
	InRange       bool            `json:"in_range"`
	Amounts       AmountsView     `json:"amounts"`
	Display       DisplayAmounts  `json:"display"`
	Fees          FeesView        `json:"fees"`
	FeesDisplay   *DisplayAmounts `json:"fees_display,omitempty"`
	Warnings      []string        `json:"warnings,omitempty"`
}

// ItemFailure records a single failed item of a batch operation.
type ItemFailure struct {
	ID  string `json:"id"`
	Err string `json:"error"`
}

// PositionBatch is the result of valuing many positions. Failures never abort the batch.
type PositionBatch struct {
	Owner    string           `json:"owner"`
	Block    uint64           `json:"block"`
	Reports  []PositionReport `json:"reports"`
	Failures []ItemFailure    `json:"failures,omitempty"`
}
