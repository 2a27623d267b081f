// Package fixedpoint implements the checked fixed-point arithmetic used by
// the whole engine. Amounts, USD values and factors share one numeric width:
// uint64 for unsigned quantities and int64 for signed deltas, interpreted as
// value * 10^-Decimals. Intermediate products are widened through pooled
// big.Int values so a*b/c never overflows while the operands fit.
package fixedpoint

import (
	"math"
	"math/big"
	"sync"
)

// Decimals is the number of decimal places of the engine's unit.
const Decimals = 9

// Unit is 10^Decimals, the fixed-point representation of 1.0.
const Unit uint64 = 1_000_000_000

// RoundingMode selects the rounding of division results.
type RoundingMode int

const (
	RoundDown RoundingMode = iota
	RoundUp
)

// wideInt is a pooled big.Int for intermediate calculations.
var wideIntPool = &sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

func getWide() *big.Int {
	return wideIntPool.Get().(*big.Int)
}

func putWide(v *big.Int) {
	v.SetInt64(0)
	wideIntPool.Put(v)
}

// Add returns a+b, reporting overflow.
func Add(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}

// Sub returns a-b, reporting underflow.
func Sub(a, b uint64) (uint64, bool) {
	if b > a {
		return 0, false
	}
	return a - b, true
}

// Mul returns a*b, reporting overflow.
func Mul(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	product := a * b
	if product/a != b {
		return 0, false
	}
	return product, true
}

// Div returns a/b, reporting division by zero.
func Div(a, b uint64) (uint64, bool) {
	if b == 0 {
		return 0, false
	}
	return a / b, true
}

// Diff returns |a-b|.
func Diff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// MulDiv returns a*b/c rounded down, widening the product so it never
// overflows. Reports false when c is zero or the quotient does not fit.
func MulDiv(a, b, c uint64) (uint64, bool) {
	return mulDiv(a, b, c, RoundDown)
}

// MulDivCeil returns a*b/c rounded up.
func MulDivCeil(a, b, c uint64) (uint64, bool) {
	return mulDiv(a, b, c, RoundUp)
}

func mulDiv(a, b, c uint64, mode RoundingMode) (uint64, bool) {
	if c == 0 {
		return 0, false
	}
	num := getWide()
	den := getWide()
	quo := getWide()
	rem := getWide()
	defer func() {
		putWide(num)
		putWide(den)
		putWide(quo)
		putWide(rem)
	}()

	num.SetUint64(a)
	den.SetUint64(b)
	num.Mul(num, den)
	den.SetUint64(c)
	quo.QuoRem(num, den, rem)

	if mode == RoundUp && rem.Sign() != 0 {
		quo.Add(quo, big.NewInt(1))
	}
	if !quo.IsUint64() {
		return 0, false
	}
	return quo.Uint64(), true
}

// ApplyFactor returns value*factor/Unit, i.e. multiplication by a
// fixed-point factor.
func ApplyFactor(value, factor uint64) (uint64, bool) {
	return MulDiv(value, factor, Unit)
}

// FixedMul multiplies two fixed-point values: a*b/Unit.
func FixedMul(a, b uint64) (uint64, bool) {
	return MulDiv(a, b, Unit)
}

// DivToFactor returns num*Unit/den as a fixed-point factor.
func DivToFactor(num, den uint64, roundUp bool) (uint64, bool) {
	if roundUp {
		return MulDivCeil(num, Unit, den)
	}
	return MulDiv(num, Unit, den)
}

// UsdToMarketTokenAmount converts a USD value to a market-token amount given
// the current pool value and supply. The divisor scales USD down to the token
// amount domain when the market token has fewer decimals than values do.
func UsdToMarketTokenAmount(usdValue, poolValue, supply, divisor uint64) (uint64, bool) {
	if divisor == 0 {
		return 0, false
	}
	switch {
	case supply == 0 && poolValue == 0:
		return usdValue / divisor, true
	case supply == 0:
		sum, ok := Add(poolValue, usdValue)
		if !ok {
			return 0, false
		}
		return sum / divisor, true
	default:
		return MulDiv(supply, usdValue, poolValue)
	}
}

// MarketTokenAmountToUsd converts a market-token amount back to USD value.
func MarketTokenAmountToUsd(amount, poolValue, supply uint64) (uint64, bool) {
	if supply == 0 {
		return 0, false
	}
	return MulDiv(amount, poolValue, supply)
}

// MaxUnsigned is the largest representable unsigned value.
const MaxUnsigned = math.MaxUint64
