package fixedpoint

import "math"

// ToSigned converts an unsigned value to signed. Fails when the high bit is
// set: the signed domain is limited to MaxUnsigned/2.
func ToSigned(v uint64) (int64, bool) {
	if v > math.MaxInt64 {
		return 0, false
	}
	return int64(v), true
}

// ToOppositeSigned converts an unsigned value to its negated signed form.
func ToOppositeSigned(v uint64) (int64, bool) {
	s, ok := ToSigned(v)
	if !ok {
		return 0, false
	}
	return -s, true
}

// ToUnsigned converts a signed value to unsigned; negative values fail.
func ToUnsigned(v int64) (uint64, bool) {
	if v < 0 {
		return 0, false
	}
	return uint64(v), true
}

// SignedAbs returns |v| as unsigned. Defined for all inputs including
// math.MinInt64.
func SignedAbs(v int64) uint64 {
	if v < 0 {
		return uint64(-(v + 1)) + 1
	}
	return uint64(v)
}

// Neg returns -v, reporting failure for math.MinInt64.
func Neg(v int64) (int64, bool) {
	if v == math.MinInt64 {
		return 0, false
	}
	return -v, true
}

// SignedAdd returns a+b with overflow checking.
func SignedAdd(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

// SignedSub returns a-b with overflow checking.
func SignedSub(a, b int64) (int64, bool) {
	nb, ok := Neg(b)
	if !ok {
		return 0, false
	}
	return SignedAdd(a, nb)
}

// AddDelta applies a signed delta to an unsigned amount. Overflow reports
// false, and so does driving the amount below zero.
func AddDelta(amount uint64, delta int64) (uint64, bool) {
	if delta >= 0 {
		return Add(amount, uint64(delta))
	}
	return Sub(amount, SignedAbs(delta))
}

// MulSigned returns a*b for an unsigned multiplicand and a signed
// multiplier, checking that the magnitude fits the signed domain.
func MulSigned(a uint64, b int64) (int64, bool) {
	mag, ok := Mul(a, SignedAbs(b))
	if !ok {
		return 0, false
	}
	signed, ok := ToSigned(mag)
	if !ok {
		return 0, false
	}
	if b < 0 {
		return -signed, true
	}
	return signed, true
}

// MulDivSignedNumerator returns a*num/den where only the numerator carries a
// sign; the magnitude is computed with the widened intermediate.
func MulDivSignedNumerator(a uint64, num int64, den uint64) (int64, bool) {
	mag, ok := MulDiv(a, SignedAbs(num), den)
	if !ok {
		return 0, false
	}
	signed, ok := ToSigned(mag)
	if !ok {
		return 0, false
	}
	if num < 0 {
		return -signed, true
	}
	return signed, true
}

// ApplyFactorSigned returns value*factor/Unit preserving the factor's sign.
func ApplyFactorSigned(value uint64, factor int64) (int64, bool) {
	return MulDivSignedNumerator(value, factor, Unit)
}

// SignedDiff returns |a-b| for signed operands as an unsigned value. The
// two's-complement subtraction is exact because 0 <= a-b < 2^64 when a >= b.
func SignedDiff(a, b int64) uint64 {
	if a >= b {
		return uint64(a) - uint64(b)
	}
	return uint64(b) - uint64(a)
}
