package fixedpoint_test

import (
	"math"
	"testing"

	"PerpCore/internal/fixedpoint"
)

func TestFixedMul_Basic(t *testing.T) {
	got, ok := fixedpoint.FixedMul(12_800_000_000, 25_600_000_001)
	if !ok {
		t.Fatal("fixed mul failed")
	}
	if got != 327_680_000_012 {
		t.Errorf("got %d, want 327_680_000_012", got)
	}
}

func TestMulDiv_NoSilentOverflow(t *testing.T) {
	// a*b overflows uint64 but the quotient fits: must succeed.
	got, ok := fixedpoint.MulDiv(math.MaxUint64, 1_000, 1_000_000)
	if !ok {
		t.Fatal("widened mul div should not overflow")
	}
	if got != math.MaxUint64/1_000 {
		t.Errorf("got %d, want %d", got, uint64(math.MaxUint64/1_000))
	}

	// Quotient does not fit: must report failure, never truncate.
	if _, ok := fixedpoint.MulDiv(math.MaxUint64, 2, 1); ok {
		t.Error("overflowing quotient must fail")
	}

	// Division by zero.
	if _, ok := fixedpoint.MulDiv(1, 1, 0); ok {
		t.Error("divide by zero must fail")
	}
}

func TestMulDivCeil(t *testing.T) {
	got, ok := fixedpoint.MulDivCeil(10, 10, 3)
	if !ok || got != 34 {
		t.Errorf("got %d (ok=%v), want 34", got, ok)
	}
	got, ok = fixedpoint.MulDivCeil(10, 9, 3)
	if !ok || got != 30 {
		t.Errorf("exact division must not round: got %d (ok=%v)", got, ok)
	}
}

func TestApplyExponentFactor_UnitExponentIsIdentity(t *testing.T) {
	values := []uint64{
		fixedpoint.Unit,
		fixedpoint.Unit + 1,
		123 * fixedpoint.Unit,
		math.MaxUint64,
	}
	for _, v := range values {
		got, ok := fixedpoint.ApplyExponentFactor(v, fixedpoint.Unit)
		if !ok {
			t.Fatalf("exponent unit failed for %d", v)
		}
		if got != v {
			t.Errorf("value %d: got %d, want identity", v, got)
		}
	}
}

func TestApplyExponentFactor_SubUnitValueIsZero(t *testing.T) {
	got, ok := fixedpoint.ApplyExponentFactor(fixedpoint.Unit-1, 2*fixedpoint.Unit)
	if !ok || got != 0 {
		t.Errorf("got %d (ok=%v), want 0", got, ok)
	}
}

func TestApplyExponentFactor_WholeUnits(t *testing.T) {
	// 120^2 = 14400 in fixed point.
	got, ok := fixedpoint.ApplyExponentFactor(120*fixedpoint.Unit, 2*fixedpoint.Unit)
	if !ok {
		t.Fatal("whole-unit power failed")
	}
	if got != 14_400*fixedpoint.Unit {
		t.Errorf("got %d, want %d", got, 14_400*fixedpoint.Unit)
	}
}

func TestApplyExponentFactor_FractionalVector(t *testing.T) {
	// 12345.6 ^ 1.1 in 8-decimal fixed point.
	got, ok := fixedpoint.ApplyExponentFactor(123_456*100_000_000, 11*100_000_000)
	if !ok {
		t.Fatal("fractional power failed")
	}
	if got != 31_670_982_733_137 {
		t.Errorf("got %d, want 31_670_982_733_137", got)
	}
}

func TestUsdToMarketTokenAmount(t *testing.T) {
	// First deposit: empty pool, empty supply.
	got, ok := fixedpoint.UsdToMarketTokenAmount(120_000_000_000, 0, 0, 1)
	if !ok || got != 120_000_000_000 {
		t.Errorf("first deposit: got %d (ok=%v)", got, ok)
	}

	// Proportional mint afterwards.
	got, ok = fixedpoint.UsdToMarketTokenAmount(60_000_000_000, 120_000_000_000, 120_000_000_000, 1)
	if !ok || got != 60_000_000_000 {
		t.Errorf("proportional mint: got %d (ok=%v)", got, ok)
	}

	if _, ok := fixedpoint.UsdToMarketTokenAmount(1, 0, 0, 0); ok {
		t.Error("zero divisor must fail")
	}
}

func TestMarketTokenAmountToUsd(t *testing.T) {
	got, ok := fixedpoint.MarketTokenAmountToUsd(50, 200, 100)
	if !ok || got != 100 {
		t.Errorf("got %d (ok=%v), want 100", got, ok)
	}
	if _, ok := fixedpoint.MarketTokenAmountToUsd(1, 1, 0); ok {
		t.Error("zero supply must fail")
	}
}

func TestToSigned_HighBit(t *testing.T) {
	if _, ok := fixedpoint.ToSigned(math.MaxInt64 + 1); ok {
		t.Error("high bit set must fail conversion")
	}
	v, ok := fixedpoint.ToSigned(math.MaxInt64)
	if !ok || v != math.MaxInt64 {
		t.Errorf("got %d (ok=%v)", v, ok)
	}
}

func TestAddDelta(t *testing.T) {
	got, ok := fixedpoint.AddDelta(100, -40)
	if !ok || got != 60 {
		t.Errorf("got %d (ok=%v), want 60", got, ok)
	}
	if _, ok := fixedpoint.AddDelta(10, -11); ok {
		t.Error("negative result must fail")
	}
	if _, ok := fixedpoint.AddDelta(math.MaxUint64, 1); ok {
		t.Error("overflow must fail")
	}
	got, ok = fixedpoint.AddDelta(10, math.MinInt64+1)
	if ok {
		t.Errorf("huge negative delta must fail, got %d", got)
	}
}

func TestDiff(t *testing.T) {
	if fixedpoint.Diff(3, 10) != 7 || fixedpoint.Diff(10, 3) != 7 {
		t.Error("diff must be symmetric")
	}
}

func TestSignedDiff(t *testing.T) {
	if fixedpoint.SignedDiff(5, -3) != 8 {
		t.Errorf("got %d, want 8", fixedpoint.SignedDiff(5, -3))
	}
	if fixedpoint.SignedDiff(-3, 5) != 8 {
		t.Error("signed diff must be symmetric")
	}
	if fixedpoint.SignedDiff(math.MaxInt64, math.MinInt64) != math.MaxUint64 {
		t.Error("extreme signed diff must not wrap")
	}
}
