package position_test

import (
	"testing"

	"PerpCore/internal/fixedpoint"
	"PerpCore/internal/market"
	"PerpCore/internal/pool"
	"PerpCore/internal/position"
)

func newTestMarket(t *testing.T, cfg market.Config) *market.Base {
	t.Helper()
	meta := market.Meta{
		MarketToken: "GM-WBTC-USDG",
		IndexToken:  "WBTC",
		LongToken:   "WBTC",
		ShortToken:  "USDG",
	}
	return market.New(meta, cfg)
}

func TestPendingBorrowingFee(t *testing.T) {
	m := newTestMarket(t, market.Config{})
	borrowing, err := m.Pool(pool.BorrowingFactor)
	if err != nil {
		t.Fatal(err)
	}
	if err := borrowing.ApplyDeltaToLongAmount(3_000_000); err != nil {
		t.Fatal(err)
	}

	p := position.Position{
		MarketToken:     "GM-WBTC-USDG",
		CollateralToken: "WBTC",
		IsLong:          true,
		SizeInUsd:       50_000_000_000_000,
		BorrowingFactor: 1_000_000,
	}

	fee, err := p.PendingBorrowingFee(m)
	if err != nil {
		t.Fatal(err)
	}
	// delta factor 2e6 over unit on 5e13 size.
	want := uint64(50_000_000_000_000) / fixedpoint.Unit * 2_000_000
	if fee != want {
		t.Errorf("fee %d, want %d", fee, want)
	}
}

func TestPendingFundingFees(t *testing.T) {
	m := newTestMarket(t, market.Config{})
	funding, err := m.Pool(pool.FundingAmountPerSizeLong)
	if err != nil {
		t.Fatal(err)
	}
	// Collateral is the long token, so the long slot applies.
	if err := funding.ApplyDeltaToLongAmount(5_000); err != nil {
		t.Fatal(err)
	}
	claimable, err := m.Pool(pool.ClaimableFundingAmountPerSizeLong)
	if err != nil {
		t.Fatal(err)
	}
	if err := claimable.ApplyDeltaToShortAmount(2_000); err != nil {
		t.Fatal(err)
	}

	p := position.Position{
		CollateralToken: "WBTC",
		IsLong:          true,
		SizeInUsd:       10 * fixedpoint.Unit,
	}
	payable, claimLong, claimShort, err := p.PendingFundingFees(m)
	if err != nil {
		t.Fatal(err)
	}
	if payable != 50_000 {
		t.Errorf("payable %d, want 50_000", payable)
	}
	if claimLong != 0 || claimShort != 20_000 {
		t.Errorf("claimable %d/%d, want 0/20_000", claimLong, claimShort)
	}
}

func TestUpdateSnapshots(t *testing.T) {
	m := newTestMarket(t, market.Config{})
	borrowing, _ := m.Pool(pool.BorrowingFactor)
	if err := borrowing.ApplyDeltaToLongAmount(42); err != nil {
		t.Fatal(err)
	}

	p := position.Position{CollateralToken: "USDG", IsLong: true}
	if err := p.UpdateSnapshots(m); err != nil {
		t.Fatal(err)
	}
	if p.BorrowingFactor != 42 {
		t.Errorf("snapshot %d, want 42", p.BorrowingFactor)
	}
}

func TestPnlValue(t *testing.T) {
	long := position.Position{IsLong: true, SizeInUsd: 60_000, SizeInTokens: 500}
	pnl, err := long.PnlValue(130)
	if err != nil {
		t.Fatal(err)
	}
	if pnl != 5_000 {
		t.Errorf("long pnl %d, want 5_000", pnl)
	}

	short := position.Position{IsLong: false, SizeInUsd: 60_000, SizeInTokens: 500}
	pnl, err = short.PnlValue(130)
	if err != nil {
		t.Fatal(err)
	}
	if pnl != -5_000 {
		t.Errorf("short pnl %d, want -5_000", pnl)
	}
}

func TestIsLiquidatable(t *testing.T) {
	cfg := market.Config{
		MinCollateralValue:  1_000,
		MinCollateralFactor: 10_000_000, // 1%
	}
	m := newTestMarket(t, cfg)

	p := position.Position{
		CollateralToken:  "USDG",
		IsLong:           true,
		SizeInUsd:        100_000,
		SizeInTokens:     1_000,
		CollateralAmount: 5_000,
	}
	prices := market.Prices{
		IndexTokenPrice: market.Price{Min: 100, Max: 100},
		LongTokenPrice:  market.Price{Min: 100, Max: 100},
		ShortTokenPrice: market.Price{Min: 1, Max: 1},
	}

	// Collateral 5_000 usd, flat pnl, no fees: healthy.
	liq, err := p.IsLiquidatable(m, prices)
	if err != nil {
		t.Fatal(err)
	}
	if liq {
		t.Error("healthy position flagged liquidatable")
	}

	// Price drop puts pnl at -5_000 and wipes the collateral.
	prices.IndexTokenPrice = market.Price{Min: 95, Max: 95}
	liq, err = p.IsLiquidatable(m, prices)
	if err != nil {
		t.Fatal(err)
	}
	if !liq {
		t.Error("wiped position not flagged liquidatable")
	}
}

func TestValidateLeverage(t *testing.T) {
	cfg := &market.Config{MaxLeverageFactor: 100 * fixedpoint.Unit}
	if err := position.ValidateLeverage(cfg, 100_000, 1_000); err != nil {
		t.Errorf("at max leverage: %v", err)
	}
	if err := position.ValidateLeverage(cfg, 101_000, 1_000); err == nil {
		t.Error("over max leverage must pass an error")
	}
	if err := position.ValidateLeverage(cfg, 1, 0); err == nil {
		t.Error("zero collateral must fail")
	}
}
