// Package fixedpoint holds the integer helpers shared by the pool and lender
// math. Amounts are smallest-unit integers carried in *big.Int; every value
// that would live in contract storage must fit in 256 bits.
package fixedpoint

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

var (
	// ErrOverflow is returned when a value does not fit in an unsigned 256-bit word.
	ErrOverflow = errors.New("value exceeds 256 bits")
	// ErrNegative is returned when an unsigned amount is negative.
	ErrNegative = errors.New("negative value")
	// ErrDivisionByZero is returned by the mul-div helpers for a zero denominator.
	ErrDivisionByZero = errors.New("division by zero")
)

// WAD is 1e18, the scale used for spot prices.
var WAD = Pow10(18)

var one = big.NewInt(1)

// Pow10 returns 10^n as a fresh big.Int.
func Pow10(n uint) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// CheckU256 verifies that v is non-nil, non-negative and fits in 256 bits.
func CheckU256(v *big.Int) error {
	if v == nil {
		return fmt.Errorf("nil value: %w", ErrNegative)
	}
	if v.Sign() < 0 {
		return fmt.Errorf("%s: %w", v.String(), ErrNegative)
	}
	if _, overflow := uint256.FromBig(v); overflow {
		return fmt.Errorf("%d bits: %w", v.BitLen(), ErrOverflow)
	}
	return nil
}

// ToU256 converts v to a uint256 word.
func ToU256(v *big.Int) (*uint256.Int, error) {
	if err := CheckU256(v); err != nil {
		return nil, err
	}
	u, _ := uint256.FromBig(v)
	return u, nil
}

// MulDivFloor returns floor(a*b/denom).
func MulDivFloor(a, b, denom *big.Int) (*big.Int, error) {
	if denom.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, denom), nil
}

// MulDivCeil returns ceil(a*b/denom) for non-negative operands.
func MulDivCeil(a, b, denom *big.Int) (*big.Int, error) {
	if denom.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	out := new(big.Int).Mul(a, b)
	return DivCeil(out, denom), nil
}

// DivCeil returns ceil(x/y) for x >= 0 and y > 0. It does not mutate its arguments.
func DivCeil(x, y *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(x, y, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, one)
	}
	return q
}

// Min returns a copy of the smaller of a and b.
func Min(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Copy returns a copy of v, or nil for nil.
func Copy(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// Ether scales whole units by 1e18.
func Ether(units int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(units), WAD)
}

// FormatUnits renders a smallest-unit amount with the given number of decimals.
func FormatUnits(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	return decimal.NewFromBigInt(v, -int32(decimals)).String()
}

// ParseUnits parses a decimal string such as "1.5" into smallest units.
// Digits beyond the given precision are truncated.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("amount %q: %w", s, ErrNegative)
	}
	return d.Shift(int32(decimals)).BigInt(), nil
}
