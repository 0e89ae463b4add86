// Package tickmath converts between ticks, Q64.96 square-root prices and human prices.
//
// SqrtRatioAtTick and TickAtSqrtRatio are bit-exact with the protocol's TickMath library.
// Human prices are decimal values of token1 per token0, scaled by the token decimals.
package tickmath

import (
	"github.com/holiman/uint256"

	"positionScope/internal/errs"
	"positionScope/internal/fixedpoint"
)

const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

var (
	// MinSqrtRatio is SqrtRatioAtTick(MinTick).
	MinSqrtRatio = uint256.NewInt(4295128739)
	// MaxSqrtRatio is SqrtRatioAtTick(MaxTick).
	MaxSqrtRatio = uint256.MustFromDecimal("1461446703485210103287273052203988822378723970342")
)

// sqrt(1.0001^(2^i)) in Q128.128 for i = 1..19; bit 0 is handled separately.
var tickFactors = []*uint256.Int{
	uint256.MustFromHex("0xfff97272373d413259a46990580e213a"),
	uint256.MustFromHex("0xfff2e50f5f656932ef12357cf3c7fdcc"),
	uint256.MustFromHex("0xffe5caca7e10e4e61c3624eaa0941cd0"),
	uint256.MustFromHex("0xffcb9843d60f6159c9db58835c926644"),
	uint256.MustFromHex("0xff973b41fa98c081472e6896dfb254c0"),
	uint256.MustFromHex("0xff2ea16466c96a3843ec78b326b52861"),
	uint256.MustFromHex("0xfe5dee046a99a2a811c461f1969c3053"),
	uint256.MustFromHex("0xfcbe86c7900a88aedcffc83b479aa3a4"),
	uint256.MustFromHex("0xf987a7253ac413176f2b074cf7815e54"),
	uint256.MustFromHex("0xf3392b0822b70005940c7a398e4b70f3"),
	uint256.MustFromHex("0xe7159475a2c29b7443b29c7fa6e889d9"),
	uint256.MustFromHex("0xd097f3bdfd2022b8845ad8f792aa5825"),
	uint256.MustFromHex("0xa9f746462d870fdf8a65dc1f90e061e5"),
	uint256.MustFromHex("0x70d869a156d2a1b890bb3df62baf32f7"),
	uint256.MustFromHex("0x31be135f97d08fd981231505542fcfa6"),
	uint256.MustFromHex("0x9aa508b5b7a84e1c677de54f3e99bc9"),
	uint256.MustFromHex("0x5d6af8dedb81196699c329225ee604"),
	uint256.MustFromHex("0x2216e584f5fa1ea926041bedfe98"),
	uint256.MustFromHex("0x48a170391f7dc42444e8fa2"),
}

var (
	tickFactorOdd = uint256.MustFromHex("0xfffcb933bd6fad37aa2d162d1a594001")
	q32Mask       = uint256.NewInt(0xffffffff)
)

// CheckTick fails with ErrRange outside [MinTick, MaxTick].
func CheckTick(tick int32) error {
	if tick < MinTick || tick > MaxTick {
		return errs.OutOfRange("tick %d outside [%d, %d]", tick, MinTick, MaxTick)
	}
	return nil
}

// SqrtRatioAtTick returns sqrt(1.0001^tick) as a Q64.96 value, rounded up like the protocol.
func SqrtRatioAtTick(tick int32) (*uint256.Int, error) {
	if err := CheckTick(tick); err != nil {
		return nil, err
	}

	absTick := uint32(tick)
	if tick < 0 {
		absTick = uint32(-tick)
	}

	ratio := new(uint256.Int).Set(fixedpoint.Q128)
	if absTick&0x1 != 0 {
		ratio.Set(tickFactorOdd)
	}
	for i, factor := range tickFactors {
		if absTick&(1<<uint(i+1)) == 0 {
			continue
		}
		next, err := fixedpoint.MulShift(ratio, factor, 128)
		if err != nil {
			return nil, err
		}
		ratio = next
	}

	if tick > 0 {
		ratio = new(uint256.Int).Div(fixedpoint.MaxUint256, ratio)
	}

	// Q128.128 -> Q64.96, rounding up so TickAtSqrtRatio(SqrtRatioAtTick(t)) == t.
	remainder := new(uint256.Int).And(ratio, q32Mask)
	sqrtPrice := new(uint256.Int).Rsh(ratio, 32)
	if !remainder.IsZero() {
		sqrtPrice.AddUint64(sqrtPrice, 1)
	}
	return sqrtPrice, nil
}

// TickAtSqrtRatio returns the greatest tick whose sqrt ratio is <= sqrtPriceX96.
func TickAtSqrtRatio(sqrtPriceX96 *uint256.Int) (int32, error) {
	if sqrtPriceX96 == nil {
		return 0, errs.Invalid("sqrt price is nil")
	}
	if sqrtPriceX96.Lt(MinSqrtRatio) || !sqrtPriceX96.Lt(MaxSqrtRatio) {
		return 0, errs.OutOfRange("sqrt price %s outside [%s, %s)", sqrtPriceX96.Dec(), MinSqrtRatio.Dec(), MaxSqrtRatio.Dec())
	}

	low, high := MinTick, MaxTick
	for low < high {
		mid := low + (high-low+1)/2
		ratio, err := SqrtRatioAtTick(mid)
		if err != nil {
			return 0, err
		}
		if ratio.Cmp(sqrtPriceX96) <= 0 {
			low = mid
		} else {
			high = mid - 1
		}
	}
	return low, nil
}

// NearestUsableTick rounds tick to the closest multiple of spacing inside the tick domain.
func NearestUsableTick(tick int32, spacing int32) (int32, error) {
	if spacing <= 0 {
		return 0, errs.Invalid("tick spacing must be positive, got %d", spacing)
	}
	if err := CheckTick(tick); err != nil {
		return 0, err
	}

	rounded := floorDiv(tick+spacing/2, spacing) * spacing
	if rounded < MinTick {
		rounded += spacing
	} else if rounded > MaxTick {
		rounded -= spacing
	}
	return rounded, nil
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
