// Package fixedpoint implements the Q64.96 / Q128.128 helpers used by the accounting core.
// All values are unsigned 256-bit integers with the same ring semantics as the on-chain code.
package fixedpoint

import (
	"math/big"

	"github.com/holiman/uint256"

	"positionScope/internal/errs"
)

const (
	Resolution96  = 96
	Resolution128 = 128
)

var (
	Q96        = new(uint256.Int).Lsh(uint256.NewInt(1), Resolution96)
	Q128       = new(uint256.Int).Lsh(uint256.NewInt(1), Resolution128)
	MaxUint128 = new(uint256.Int).Sub(Q128, uint256.NewInt(1))
	MaxUint160 = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 160), uint256.NewInt(1))
	MaxUint256 = new(uint256.Int).SetAllOne()
)

// MulShift returns floor(a*b / 2^shift) using a 512-bit intermediate product.
func MulShift(a, b *uint256.Int, shift uint8) (*uint256.Int, error) {
	if a == nil || b == nil {
		return nil, errs.Invalid("mul shift operand is nil")
	}
	d := new(uint256.Int).Lsh(uint256.NewInt(1), uint(shift))
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, d)
	if overflow {
		return nil, errs.OutOfRange("mul shift result exceeds 256 bits")
	}
	return z, nil
}

// SubWrap256 returns a - b mod 2^256. Fee-growth counters wrap, so this never fails.
func SubWrap256(a, b *uint256.Int) *uint256.Int {
	return new(uint256.Int).Sub(a, b)
}

// MulDiv returns floor(a*b / d).
func MulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if a == nil || b == nil || d == nil {
		return nil, errs.Invalid("mul div operand is nil")
	}
	if d.IsZero() {
		return nil, errs.Invalid("mul div by zero")
	}
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, d)
	if overflow {
		return nil, errs.OutOfRange("mul div result exceeds 256 bits")
	}
	return z, nil
}

// MulDivRoundingUp returns ceil(a*b / d).
func MulDivRoundingUp(a, b, d *uint256.Int) (*uint256.Int, error) {
	z, err := MulDiv(a, b, d)
	if err != nil {
		return nil, err
	}
	if new(uint256.Int).MulMod(a, b, d).IsZero() {
		return z, nil
	}
	if z.Eq(MaxUint256) {
		return nil, errs.OutOfRange("mul div rounding up overflows")
	}
	return z.AddUint64(z, 1), nil
}

// FromBig converts a big.Int into a uint256, rejecting negative or oversized values.
func FromBig(value *big.Int) (*uint256.Int, error) {
	if value == nil {
		return nil, errs.Invalid("value is nil")
	}
	if value.Sign() < 0 {
		return nil, errs.Invalid("negative value %s", value.String())
	}
	z, overflow := uint256.FromBig(value)
	if overflow {
		return nil, errs.Invalid("value %s exceeds 256 bits", value.String())
	}
	return z, nil
}

// CheckUint128 fails when value does not fit in 128 bits.
func CheckUint128(value *uint256.Int) error {
	if value == nil {
		return errs.Invalid("uint128 value is nil")
	}
	if value.Gt(MaxUint128) {
		return errs.Invalid("value %s exceeds uint128", value.Dec())
	}
	return nil
}

// CheckUint160 fails when value does not fit in 160 bits.
func CheckUint160(value *uint256.Int) error {
	if value == nil {
		return errs.Invalid("uint160 value is nil")
	}
	if value.Gt(MaxUint160) {
		return errs.Invalid("value %s exceeds uint160", value.Dec())
	}
	return nil
}

// OrZero returns value, or a fresh zero when value is nil.
func OrZero(value *uint256.Int) *uint256.Int {
	if value == nil {
		return new(uint256.Int)
	}
	return value
}
