package fixedpoint

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ApplyExponentFactor computes value^(exponent/Unit) in fixed point.
//
// Values below one unit collapse to zero and exactly one unit stays one unit.
// The power curve only ever amplifies imbalances above 1.0.
//
// Whole-unit exponents use repeated fixed multiplication. Fractional
// exponents delegate to a decimal power routine; production configs use
// whole-unit exponents only.
func ApplyExponentFactor(value, exponentFactor uint64) (uint64, bool) {
	switch {
	case value < Unit:
		return 0, true
	case value == Unit:
		return Unit, true
	case exponentFactor == 0:
		return Unit, true
	case exponentFactor == Unit:
		return value, true
	case exponentFactor%Unit == 0:
		return powWholeUnits(value, exponentFactor/Unit)
	default:
		return powDecimal(value, exponentFactor)
	}
}

// ApplyFactors computes factor * value^(exponent/Unit).
func ApplyFactors(value, factor, exponentFactor uint64) (uint64, bool) {
	powed, ok := ApplyExponentFactor(value, exponentFactor)
	if !ok {
		return 0, false
	}
	return FixedMul(powed, factor)
}

func powWholeUnits(base uint64, exp uint64) (uint64, bool) {
	ans := Unit
	for i := uint64(0); i < exp; i++ {
		next, ok := FixedMul(ans, base)
		if !ok {
			return 0, false
		}
		ans = next
	}
	return ans, true
}

// powDecimal computes the fractional-exponent regime with banker's rounding
// back to the engine's decimals.
func powDecimal(value, exponentFactor uint64) (uint64, bool) {
	base := decimal.NewFromBigInt(new(big.Int).SetUint64(value), -Decimals)
	exp := decimal.NewFromBigInt(new(big.Int).SetUint64(exponentFactor), -Decimals)
	powed, err := base.PowWithPrecision(exp, Decimals+8)
	if err != nil {
		return 0, false
	}
	scaled := powed.RoundBank(Decimals).Shift(Decimals)
	if !scaled.IsInteger() || scaled.Sign() < 0 {
		return 0, false
	}
	bi := scaled.BigInt()
	if !bi.IsUint64() {
		return 0, false
	}
	return bi.Uint64(), true
}
