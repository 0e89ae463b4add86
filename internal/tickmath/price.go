package tickmath

import (
	"math"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"

	"positionScope/internal/errs"
)

const (
	// PriceSignificantDigits is the number of significant digits kept in decimal prices.
	PriceSignificantDigits = 30

	floatPrec  = 256
	maxDecimal = 255
)

var (
	tickBase     = mustFloat("1.0001")
	minTickSlack = mustFloat("0.999999999999999999999999")
	q192         = new(big.Int).Lsh(big.NewInt(1), 192)
)

func mustFloat(s string) *big.Float {
	f, _, err := big.ParseFloat(s, 10, floatPrec, big.ToNearestEven)
	if err != nil {
		panic(err)
	}
	return f
}

// CheckDecimals validates a token decimals pair.
func CheckDecimals(decimals0, decimals1 int) error {
	if decimals0 < 0 || decimals0 > maxDecimal {
		return errs.Invalid("decimals0 %d outside [0, %d]", decimals0, maxDecimal)
	}
	if decimals1 < 0 || decimals1 > maxDecimal {
		return errs.Invalid("decimals1 %d outside [0, %d]", decimals1, maxDecimal)
	}
	return nil
}

// SqrtPriceToPrice converts a Q64.96 square-root price into a human price of token1 per token0.
// When invert is set the result is token0 per token1.
func SqrtPriceToPrice(sqrtPriceX96 *uint256.Int, decimals0, decimals1 int, invert bool) (decimal.Decimal, error) {
	if err := CheckDecimals(decimals0, decimals1); err != nil {
		return decimal.Zero, err
	}
	if sqrtPriceX96 == nil {
		return decimal.Zero, errs.Invalid("sqrt price is nil")
	}
	if sqrtPriceX96.IsZero() {
		return decimal.Zero, errs.OutOfRange("sqrt price is zero")
	}

	sqrt := sqrtPriceX96.ToBig()
	num := new(big.Int).Mul(sqrt, sqrt)
	den := new(big.Int).Set(q192)

	shift := decimals0 - decimals1
	if shift > 0 {
		num.Mul(num, pow10(shift))
	} else if shift < 0 {
		den.Mul(den, pow10(-shift))
	}
	if invert {
		num, den = den, num
	}
	return ratToDecimal(num, den), nil
}

// TickToPrice returns 1.0001^tick scaled by the token decimals, optionally inverted.
func TickToPrice(tick int32, decimals0, decimals1 int, invert bool) (decimal.Decimal, error) {
	if err := CheckTick(tick); err != nil {
		return decimal.Zero, err
	}
	if err := CheckDecimals(decimals0, decimals1); err != nil {
		return decimal.Zero, err
	}

	price := powTickBase(tick)
	shift := decimals0 - decimals1
	if shift > 0 {
		price.Mul(price, new(big.Float).SetPrec(floatPrec).SetInt(pow10(shift)))
	} else if shift < 0 {
		price.Quo(price, new(big.Float).SetPrec(floatPrec).SetInt(pow10(-shift)))
	}
	if invert {
		price = new(big.Float).SetPrec(floatPrec).Quo(big.NewFloat(1).SetPrec(floatPrec), price)
	}
	return floatToDecimal(price)
}

// PriceToTick returns the greatest tick whose price does not exceed price.
// It is the inverse of TickToPrice for the same decimals and orientation.
func PriceToTick(price decimal.Decimal, decimals0, decimals1 int, invert bool) (int32, error) {
	if err := CheckDecimals(decimals0, decimals1); err != nil {
		return 0, err
	}
	if price.Sign() <= 0 {
		return 0, errs.Invalid("price must be positive, got %s", price.String())
	}

	raw, ok := new(big.Float).SetPrec(floatPrec).SetString(price.String())
	if !ok {
		return 0, errs.Invalid("unparseable price %s", price.String())
	}
	if invert {
		raw = new(big.Float).SetPrec(floatPrec).Quo(big.NewFloat(1).SetPrec(floatPrec), raw)
	}
	shift := decimals0 - decimals1
	if shift > 0 {
		raw.Quo(raw, new(big.Float).SetPrec(floatPrec).SetInt(pow10(shift)))
	} else if shift < 0 {
		raw.Mul(raw, new(big.Float).SetPrec(floatPrec).SetInt(pow10(-shift)))
	}

	mant := new(big.Float)
	exp := raw.MantExp(mant)
	m, _ := mant.Float64()
	estimate := (math.Log(m) + float64(exp)*math.Ln2) / math.Log(1.0001)
	if math.IsNaN(estimate) || estimate < float64(MinTick)-2 || estimate > float64(MaxTick)+2 {
		return 0, errs.OutOfRange("price %s outside tick domain", price.String())
	}

	tick := int32(math.Floor(estimate))
	if tick < MinTick {
		tick = MinTick
	}
	if tick > MaxTick {
		tick = MaxTick
	}
	for tick < MaxTick && powTickBase(tick+1).Cmp(raw) <= 0 {
		tick++
	}
	for powTickBase(tick).Cmp(raw) > 0 {
		if tick == MinTick {
			// Decimal rendering of the minimum tick price may land a hair below it.
			floor := powTickBase(MinTick)
			floor.Mul(floor, minTickSlack)
			if floor.Cmp(raw) > 0 {
				return 0, errs.OutOfRange("price %s below minimum tick price", price.String())
			}
			break
		}
		tick--
	}
	return tick, nil
}

// powTickBase returns 1.0001^tick with 256 bits of mantissa.
func powTickBase(tick int32) *big.Float {
	n := int64(tick)
	if n < 0 {
		n = -n
	}
	result := big.NewFloat(1).SetPrec(floatPrec)
	base := new(big.Float).SetPrec(floatPrec).Set(tickBase)
	for n > 0 {
		if n&1 == 1 {
			result.Mul(result, base)
		}
		base.Mul(base, base)
		n >>= 1
	}
	if tick < 0 {
		result = new(big.Float).SetPrec(floatPrec).Quo(big.NewFloat(1).SetPrec(floatPrec), result)
	}
	return result
}

func pow10(n int) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// ratToDecimal renders num/den with PriceSignificantDigits significant digits.
func ratToDecimal(num, den *big.Int) decimal.Decimal {
	places := PriceSignificantDigits - (len(num.String()) - len(den.String()))
	if places < 0 {
		places = 0
	}
	return decimal.NewFromBigInt(num, 0).DivRound(decimal.NewFromBigInt(den, 0), int32(places))
}

func floatToDecimal(f *big.Float) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(f.Text('e', PriceSignificantDigits-1))
	if err != nil {
		return decimal.Zero, errs.OutOfRange("price not representable: %v", err)
	}
	return d, nil
}
