package fpmath

import (
	"errors"
	"math/big"
)

// ErrDivisionByZero is returned when a division helper receives a zero
// denominator.
var ErrDivisionByZero = errors.New("fpmath: division by zero")

// Wad is the 18-decimal fixed point unit. A value of 1.0 is represented as
// 10^18.
var Wad = mustBigInt("1000000000000000000")

// Rounding selects the direction applied when a division discards precision.
// Call sites pick the direction that favours the protocol over the user at
// every accounting boundary.
type Rounding int

const (
	// RoundDown truncates towards zero.
	RoundDown Rounding = iota
	// RoundUp rounds away from zero for any non-zero remainder.
	RoundUp
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("fpmath: invalid big integer constant")
	}
	return v
}

// MulDiv computes a*b/denom using an arbitrary-width intermediate product so
// the multiplication can never overflow before the division. The remainder is
// resolved according to the requested rounding direction. Nil operands are
// treated as zero.
func MulDiv(a, b, denom *big.Int, rounding Rounding) (*big.Int, error) {
	if denom == nil || denom.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	if a == nil || b == nil || a.Sign() == 0 || b.Sign() == 0 {
		return big.NewInt(0), nil
	}
	product := new(big.Int).Mul(a, b)
	quo, rem := new(big.Int).QuoRem(product, denom, new(big.Int))
	if rounding == RoundUp && rem.Sign() != 0 {
		quo.Add(quo, big.NewInt(1))
	}
	return quo, nil
}

// WadMul multiplies two WAD-scaled values and rescales the product back to
// WAD.
func WadMul(a, b *big.Int, rounding Rounding) *big.Int {
	out, err := MulDiv(a, b, Wad, rounding)
	if err != nil {
		// Wad is a non-zero constant, MulDiv cannot fail here.
		panic(err)
	}
	return out
}

// WadDiv divides two WAD-scaled values keeping the quotient WAD scaled.
func WadDiv(a, b *big.Int, rounding Rounding) (*big.Int, error) {
	return MulDiv(a, Wad, b, rounding)
}

// Min returns the smaller of two values as a fresh big.Int. Nil operands are
// treated as zero.
func Min(a, b *big.Int) *big.Int {
	av := big.NewInt(0)
	if a != nil {
		av.Set(a)
	}
	bv := big.NewInt(0)
	if b != nil {
		bv.Set(b)
	}
	if av.Cmp(bv) <= 0 {
		return av
	}
	return bv
}

// Pow10 returns 10^exp as a big.Int.
func Pow10(exp uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}
