package action_test

import (
	"testing"

	"PerpCore/internal/action"
	"PerpCore/internal/fixedpoint"
	"PerpCore/internal/market"
	"PerpCore/internal/pool"
	"PerpCore/internal/position"
)

func TestBorrowingAccruesOverTime(t *testing.T) {
	m := newTestMarket()
	mustDeposit(t, m, 1_000_000_000_000, 100_000_000_000_000, testPrices(120, 120, 1))

	prices := testPrices(123, 123, 1)
	p := &position.Position{
		Owner:           "alice",
		MarketToken:     "GM-WBTC-USDG",
		CollateralToken: "WBTC",
		IsLong:          true,
	}
	_, err := action.IncreasePosition(m, p, prices, action.IncreasePositionParams{
		CollateralDeltaAmount: 1_000_000_000_000,
		SizeDeltaUsd:          50_000_000_000_000,
	}, 100)
	if err != nil {
		t.Fatal(err)
	}
	snapshot := p.BorrowingFactor
	size := p.SizeInUsd

	report, err := action.DecreasePosition(m, p, prices, action.DecreasePositionParams{
		SizeDeltaUsd: p.SizeInUsd,
	}, 102)
	if err != nil {
		t.Fatal(err)
	}

	if report.Borrowing.DurationInSeconds < 2 {
		t.Errorf("duration %d, want >= 2", report.Borrowing.DurationInSeconds)
	}
	next := report.Borrowing.NextCumulativeBorrowingFactorLong
	if next <= snapshot {
		t.Fatalf("cumulative borrowing factor %d did not grow past %d", next, snapshot)
	}

	// The paid fee is the factor delta applied to the size, priced in
	// collateral tokens and rounded up.
	feeUsd, ok := fixedpoint.ApplyFactor(size, next-snapshot)
	if !ok {
		t.Fatal("fee value overflow")
	}
	want, ok := fixedpoint.MulDivCeil(feeUsd, 1, 123)
	if !ok {
		t.Fatal("fee amount overflow")
	}
	got := report.Fees.BorrowingFeeAmount
	if got != want && got != want+1 && want != got+1 {
		t.Errorf("borrowing fee %d, want %d within 1", got, want)
	}
	if !report.ShouldRemove {
		t.Error("full decrease should remove the position")
	}
}

func seedOpenInterest(t *testing.T, m market.Market, oiLong, oiShort int64) {
	t.Helper()
	for _, side := range []struct {
		kind  pool.Kind
		delta int64
	}{
		{pool.OpenInterestLong, oiLong},
		{pool.OpenInterestShort, oiShort},
	} {
		p, err := m.Pool(side.kind)
		if err != nil {
			t.Fatal(err)
		}
		if err := p.ApplyDeltaToLongAmount(side.delta); err != nil {
			t.Fatal(err)
		}
	}
}

func TestFundingTracksSkewDirectly(t *testing.T) {
	m := newTestMarket()
	seedOpenInterest(t, m, 3_000_000_000_000, 1_000_000_000_000)
	prices := testPrices(100, 100, 1)

	report, err := action.UpdateFunding(m, prices, 50)
	if err != nil {
		t.Fatal(err)
	}
	// diff factor 0.5 at funding factor 2000 per second.
	if report.NextFundingFactorPerSecond != 1000 {
		t.Fatalf("funding factor %d, want 1000", report.NextFundingFactorPerSecond)
	}
	if !report.LongsPayShorts {
		t.Error("longs should pay shorts")
	}

	// 1000/s over 50s, divided by the collateral token price per slot.
	if got := poolAmount(t, m, pool.FundingAmountPerSizeLong, true); got != 500 {
		t.Errorf("payer long slot %d, want 500", got)
	}
	if got := poolAmount(t, m, pool.FundingAmountPerSizeLong, false); got != 50_000 {
		t.Errorf("payer short slot %d, want 50000", got)
	}
	// Claimable scales by the 3:1 open interest ratio.
	if got := poolAmount(t, m, pool.ClaimableFundingAmountPerSizeShort, true); got != 1500 {
		t.Errorf("claimable long slot %d, want 1500", got)
	}
	if got := poolAmount(t, m, pool.ClaimableFundingAmountPerSizeShort, false); got != 150_000 {
		t.Errorf("claimable short slot %d, want 150000", got)
	}
}

func TestFundingRampsAndDecays(t *testing.T) {
	cfg := testConfig()
	cfg.FundingIncreaseFactorPerSecond = 10
	cfg.FundingDecreaseFactorPerSecond = 5
	cfg.ThresholdForStableFunding = 400_000_000
	cfg.ThresholdForDecreaseFunding = 300_000_000
	m := market.New(testMeta(), cfg)
	seedOpenInterest(t, m, 3_000_000_000_000, 1_000_000_000_000)
	prices := testPrices(100, 100, 1)

	report, err := action.UpdateFunding(m, prices, 10)
	if err != nil {
		t.Fatal(err)
	}
	if report.NextFundingFactorPerSecond != 50 {
		t.Fatalf("after ramp 1: %d, want 50", report.NextFundingFactorPerSecond)
	}
	report, err = action.UpdateFunding(m, prices, 20)
	if err != nil {
		t.Fatal(err)
	}
	if report.NextFundingFactorPerSecond != 100 {
		t.Fatalf("after ramp 2: %d, want 100", report.NextFundingFactorPerSecond)
	}

	// Shrink the skew below the decrease threshold; the rate decays.
	seedOpenInterest(t, m, 0, 1_900_000_000_000)
	report, err = action.UpdateFunding(m, prices, 30)
	if err != nil {
		t.Fatal(err)
	}
	if report.NextFundingFactorPerSecond != 50 {
		t.Fatalf("after decay: %d, want 50", report.NextFundingFactorPerSecond)
	}
}

func TestDistributePositionImpact(t *testing.T) {
	cfg := testConfig()
	cfg.PositionImpactDistributeFactor = 1_000_000
	cfg.MinPositionImpactPoolAmount = 100
	m := market.New(testMeta(), cfg)

	impact, err := m.Pool(pool.PositionImpact)
	if err != nil {
		t.Fatal(err)
	}
	if err := impact.ApplyDeltaToLongAmount(1_000_100); err != nil {
		t.Fatal(err)
	}

	report, err := action.DistributePositionImpact(m, 10)
	if err != nil {
		t.Fatal(err)
	}
	if report.DurationInSeconds != 10 {
		t.Errorf("duration %d, want 10", report.DurationInSeconds)
	}
	if report.DistributionAmount != 10_000 {
		t.Errorf("distributed %d, want 10000", report.DistributionAmount)
	}
	if report.NextPositionImpactPoolAmount != 990_100 {
		t.Errorf("next pool %d, want 990100", report.NextPositionImpactPoolAmount)
	}
	got, err := action.PositionImpactPoolAmount(m)
	if err != nil {
		t.Fatal(err)
	}
	if got != 990_100 {
		t.Errorf("pool amount %d, want 990100", got)
	}

	// A long enough interval drains the pool down to its floor and no
	// further.
	report, err = action.DistributePositionImpact(m, 2_000_010)
	if err != nil {
		t.Fatal(err)
	}
	if report.NextPositionImpactPoolAmount != 100 {
		t.Errorf("floored pool %d, want 100", report.NextPositionImpactPoolAmount)
	}
	if report.DistributionAmount != 990_000 {
		t.Errorf("drained %d, want 990000", report.DistributionAmount)
	}
}
