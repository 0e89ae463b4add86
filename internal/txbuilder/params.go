package txbuilder

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"positionScope/internal/errs"
	"positionScope/internal/fixedpoint"
	"positionScope/internal/position"
)

var hundred = decimal.NewFromInt(100)

// CreatePositionParams describes a mint on the position manager. Expected amounts default
// to the desired amounts and drive the slippage minimums.
type CreatePositionParams struct {
	From            common.Address
	Recipient       common.Address
	Token0          common.Address
	Token1          common.Address
	FeeTier         uint32
	TickSpacing     int32
	TickLower       int32
	TickUpper       int32
	Amount0Desired  *big.Int
	Amount1Desired  *big.Int
	Amount0Expected *big.Int
	Amount1Expected *big.Int
	Slippage        decimal.Decimal
	Deadline        time.Duration
	Value           *big.Int
}

// IncreaseLiquidityParams adds liquidity to an existing position.
type IncreaseLiquidityParams struct {
	From            common.Address
	TokenID         *big.Int
	Amount0Desired  *big.Int
	Amount1Desired  *big.Int
	Amount0Expected *big.Int
	Amount1Expected *big.Int
	Slippage        decimal.Decimal
	Deadline        time.Duration
	Value           *big.Int
}

// DecreaseLiquidityParams removes liquidity from a position. The expected amounts are
// what the removed liquidity is worth at the current price.
type DecreaseLiquidityParams struct {
	From            common.Address
	TokenID         *big.Int
	Liquidity       *big.Int
	Amount0Expected *big.Int
	Amount1Expected *big.Int
	Slippage        decimal.Decimal
	Deadline        time.Duration
}

// CollectFeesParams collects everything owed to a position.
type CollectFeesParams struct {
	From      common.Address
	TokenID   *big.Int
	Recipient common.Address
}

// ClosePositionParams removes all liquidity, collects and burns the position NFT.
// A zero Liquidity skips the decrease step.
type ClosePositionParams struct {
	From            common.Address
	TokenID         *big.Int
	Recipient       common.Address
	Liquidity       *big.Int
	Amount0Expected *big.Int
	Amount1Expected *big.Int
	Slippage        decimal.Decimal
	Deadline        time.Duration
}

// SwapParams describes an exactInputSingle swap. AmountOutMinimum, when set, overrides the
// minimum derived from AmountOutExpected and Slippage.
type SwapParams struct {
	From              common.Address
	Recipient         common.Address
	TokenIn           common.Address
	TokenOut          common.Address
	FeeTier           uint32
	AmountIn          *big.Int
	AmountOutExpected *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
	Slippage          decimal.Decimal
	Deadline          time.Duration
	Value             *big.Int
}

// MinAmount returns floor(expected * (100 - slippage) / 100).
func MinAmount(expected *big.Int, slippage decimal.Decimal) (*big.Int, error) {
	if err := validateSlippage(slippage); err != nil {
		return nil, err
	}
	if expected == nil {
		return new(big.Int), nil
	}
	if expected.Sign() < 0 {
		return nil, errs.Invalid("negative expected amount %s", expected.String())
	}
	keep := hundred.Sub(slippage).Div(hundred).Rat()
	scaled := new(big.Rat).Mul(new(big.Rat).SetInt(expected), keep)
	return new(big.Int).Quo(scaled.Num(), scaled.Denom()), nil
}

func validateSlippage(slippage decimal.Decimal) error {
	if slippage.IsNegative() || slippage.GreaterThan(hundred) {
		return errs.Invalid("slippage %s outside [0, 100]", slippage.String())
	}
	return nil
}

func validateDeadline(offset time.Duration) error {
	if offset <= 0 {
		return errs.Invalid("deadline offset must be positive, got %s", offset)
	}
	return nil
}

func validateAddress(name string, addr common.Address) error {
	if addr == (common.Address{}) {
		return errs.Invalid("%s address is zero", name)
	}
	return nil
}

func validateTokenID(id *big.Int) error {
	if id == nil || id.Sign() <= 0 {
		return errs.Invalid("position id must be positive")
	}
	return nil
}

// validateAmount accepts nil as zero and rejects negative or oversized values.
func validateAmount(name string, amount *big.Int) error {
	if amount == nil {
		return nil
	}
	if amount.Sign() < 0 {
		return errs.Invalid("%s is negative: %s", name, amount.String())
	}
	if amount.BitLen() > 256 {
		return errs.Invalid("%s exceeds 256 bits", name)
	}
	return nil
}

type namedAmount struct {
	name   string
	amount *big.Int
}

// validateAmounts checks amounts in order so the first invalid one is always the one reported.
func validateAmounts(amounts []namedAmount) error {
	for _, a := range amounts {
		if err := validateAmount(a.name, a.amount); err != nil {
			return err
		}
	}
	return nil
}

func positive(amount *big.Int) bool {
	return amount != nil && amount.Sign() > 0
}

func orZero(amount *big.Int) *big.Int {
	if amount == nil {
		return new(big.Int)
	}
	return amount
}

func orDefault(value, fallback *big.Int) *big.Int {
	if value == nil {
		return fallback
	}
	return value
}

// Validate checks the parameters without touching the network.
func (p CreatePositionParams) Validate() error {
	if err := p.ValidateWithoutTicks(); err != nil {
		return err
	}
	return position.ValidateRange(p.TickLower, p.TickUpper, p.TickSpacing)
}

// ValidateWithoutTicks checks everything except the tick range, for callers that derive the
// ticks from prices and must reject bad input before reading token metadata.
func (p CreatePositionParams) ValidateWithoutTicks() error {
	if err := validateAddress("from", p.From); err != nil {
		return err
	}
	if err := validateAddress("token0", p.Token0); err != nil {
		return err
	}
	if err := validateAddress("token1", p.Token1); err != nil {
		return err
	}
	if p.Token0 == p.Token1 {
		return errs.Invalid("token0 and token1 are identical")
	}
	if p.Token0.Big().Cmp(p.Token1.Big()) > 0 {
		return errs.Invalid("token0 %s must sort before token1 %s", p.Token0.Hex(), p.Token1.Hex())
	}
	if p.FeeTier == 0 {
		return errs.Invalid("fee tier is zero")
	}
	if p.TickSpacing <= 0 {
		return errs.Invalid("tick spacing %d must be positive", p.TickSpacing)
	}
	if err := validateAmounts([]namedAmount{
		{"amount0 desired", p.Amount0Desired},
		{"amount1 desired", p.Amount1Desired},
		{"amount0 expected", p.Amount0Expected},
		{"amount1 expected", p.Amount1Expected},
		{"value", p.Value},
	}); err != nil {
		return err
	}
	if !positive(p.Amount0Desired) && !positive(p.Amount1Desired) {
		return errs.Invalid("at least one desired amount must be positive")
	}
	if err := validateSlippage(p.Slippage); err != nil {
		return err
	}
	return validateDeadline(p.Deadline)
}

// Validate checks the parameters without touching the network.
func (p IncreaseLiquidityParams) Validate() error {
	if err := validateAddress("from", p.From); err != nil {
		return err
	}
	if err := validateTokenID(p.TokenID); err != nil {
		return err
	}
	if err := validateAmounts([]namedAmount{
		{"amount0 desired", p.Amount0Desired},
		{"amount1 desired", p.Amount1Desired},
		{"amount0 expected", p.Amount0Expected},
		{"amount1 expected", p.Amount1Expected},
		{"value", p.Value},
	}); err != nil {
		return err
	}
	if !positive(p.Amount0Desired) && !positive(p.Amount1Desired) {
		return errs.Invalid("at least one desired amount must be positive")
	}
	if err := validateSlippage(p.Slippage); err != nil {
		return err
	}
	return validateDeadline(p.Deadline)
}

func validateLiquidity(liquidity *big.Int) error {
	if !positive(liquidity) {
		return errs.Invalid("liquidity must be positive")
	}
	value, err := fixedpoint.FromBig(liquidity)
	if err != nil {
		return err
	}
	return fixedpoint.CheckUint128(value)
}

// Validate checks the parameters without touching the network.
func (p DecreaseLiquidityParams) Validate() error {
	if err := validateAddress("from", p.From); err != nil {
		return err
	}
	if err := validateTokenID(p.TokenID); err != nil {
		return err
	}
	if err := validateLiquidity(p.Liquidity); err != nil {
		return err
	}
	if err := validateAmount("amount0 expected", p.Amount0Expected); err != nil {
		return err
	}
	if err := validateAmount("amount1 expected", p.Amount1Expected); err != nil {
		return err
	}
	if err := validateSlippage(p.Slippage); err != nil {
		return err
	}
	return validateDeadline(p.Deadline)
}

// Validate checks the sender and token id.
func (p CollectFeesParams) Validate() error {
	if err := validateAddress("from", p.From); err != nil {
		return err
	}
	return validateTokenID(p.TokenID)
}

// Validate checks the parameters. A zero liquidity skips the decrease step.
func (p ClosePositionParams) Validate() error {
	if err := validateAddress("from", p.From); err != nil {
		return err
	}
	if err := validateTokenID(p.TokenID); err != nil {
		return err
	}
	if positive(p.Liquidity) {
		if err := validateLiquidity(p.Liquidity); err != nil {
			return err
		}
	} else if err := validateAmount("liquidity", p.Liquidity); err != nil {
		return err
	}
	if err := validateAmount("amount0 expected", p.Amount0Expected); err != nil {
		return err
	}
	if err := validateAmount("amount1 expected", p.Amount1Expected); err != nil {
		return err
	}
	if err := validateSlippage(p.Slippage); err != nil {
		return err
	}
	return validateDeadline(p.Deadline)
}

// Validate checks the parameters without touching the network.
func (p SwapParams) Validate() error {
	if err := validateAddress("from", p.From); err != nil {
		return err
	}
	if err := validateAddress("token in", p.TokenIn); err != nil {
		return err
	}
	if err := validateAddress("token out", p.TokenOut); err != nil {
		return err
	}
	if p.TokenIn == p.TokenOut {
		return errs.Invalid("token in and token out are identical")
	}
	if p.FeeTier == 0 {
		return errs.Invalid("fee tier is zero")
	}
	if !positive(p.AmountIn) {
		return errs.Invalid("amount in must be positive")
	}
	if err := validateAmounts([]namedAmount{
		{"amount in", p.AmountIn},
		{"amount out expected", p.AmountOutExpected},
		{"amount out minimum", p.AmountOutMinimum},
		{"value", p.Value},
	}); err != nil {
		return err
	}
	if p.SqrtPriceLimitX96 != nil {
		limit, err := fixedpoint.FromBig(p.SqrtPriceLimitX96)
		if err != nil {
			return err
		}
		if err := fixedpoint.CheckUint160(limit); err != nil {
			return err
		}
	}
	if err := validateSlippage(p.Slippage); err != nil {
		return err
	}
	return validateDeadline(p.Deadline)
}
