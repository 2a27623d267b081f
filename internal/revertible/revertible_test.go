package revertible_test

import (
	"reflect"
	"testing"

	"PerpCore/internal/market"
	"PerpCore/internal/pool"
	"PerpCore/internal/revertible"
)

func newBase(t *testing.T) *market.Base {
	t.Helper()
	meta := market.Meta{
		MarketToken: "GM-WBTC-USDG",
		IndexToken:  "WBTC",
		LongToken:   "WBTC",
		ShortToken:  "USDG",
	}
	b := market.New(meta, market.Config{})
	primary, err := b.Pool(pool.Primary)
	if err != nil {
		t.Fatal(err)
	}
	if err := primary.ApplyDeltaToLongAmount(1_000); err != nil {
		t.Fatal(err)
	}
	if err := b.SetClock(market.ClockBorrowing, 77); err != nil {
		t.Fatal(err)
	}
	if err := b.RecordTransferredIn("WBTC", 1_000); err != nil {
		t.Fatal(err)
	}
	return b
}

func TestDropLeavesBaseUntouched(t *testing.T) {
	base := newBase(t)
	pristine := newBase(t)

	overlay := revertible.Wrap(base)
	p, err := overlay.Pool(pool.Primary)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.ApplyDeltaToLongAmount(500); err != nil {
		t.Fatal(err)
	}
	if err := overlay.SetClock(market.ClockBorrowing, 200); err != nil {
		t.Fatal(err)
	}
	overlay.SetFundingFactorPerSecond(9)
	if _, err := overlay.NextTradeID(); err != nil {
		t.Fatal(err)
	}
	if err := overlay.RecordTransferredIn("USDG", 300); err != nil {
		t.Fatal(err)
	}

	// The overlay is simply abandoned: the base must be unchanged.
	if !reflect.DeepEqual(base, pristine) {
		t.Error("abandoned overlay mutated the base market")
	}
}

func TestCommitWritesBackInOrder(t *testing.T) {
	base := newBase(t)
	overlay := revertible.Wrap(base)

	p, err := overlay.Pool(pool.Primary)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.ApplyDeltaToLongAmount(500); err != nil {
		t.Fatal(err)
	}
	if err := overlay.SetClock(market.ClockBorrowing, 200); err != nil {
		t.Fatal(err)
	}
	overlay.SetFundingFactorPerSecond(9)
	overlay.Commit()

	got, err := base.Pool(pool.Primary)
	if err != nil {
		t.Fatal(err)
	}
	long, err := got.LongAmount()
	if err != nil {
		t.Fatal(err)
	}
	if long != 1_500 {
		t.Errorf("pool %d, want 1_500", long)
	}
	clock, err := base.Clock(market.ClockBorrowing)
	if err != nil {
		t.Fatal(err)
	}
	if clock != 200 {
		t.Errorf("clock %d, want 200", clock)
	}
	if base.FundingFactorPerSecond() != 9 {
		t.Errorf("funding %d, want 9", base.FundingFactorPerSecond())
	}
	if !overlay.Committed() {
		t.Error("overlay must report committed")
	}
}

func TestStagedReadsSeeStagedWrites(t *testing.T) {
	base := newBase(t)
	overlay := revertible.Wrap(base)

	p, err := overlay.Pool(pool.Primary)
	if err != nil {
		t.Fatal(err)
	}
	if err := p.ApplyDeltaToLongAmount(500); err != nil {
		t.Fatal(err)
	}
	again, err := overlay.Pool(pool.Primary)
	if err != nil {
		t.Fatal(err)
	}
	long, err := again.LongAmount()
	if err != nil {
		t.Fatal(err)
	}
	if long != 1_500 {
		t.Errorf("staged read %d, want 1_500", long)
	}
}

func TestBankRecordingIsRevertible(t *testing.T) {
	base := newBase(t)
	overlay := revertible.Wrap(base)

	if err := overlay.RecordTransferredOut("WBTC", 400); err != nil {
		t.Fatal(err)
	}
	staged, err := overlay.Balance("WBTC")
	if err != nil {
		t.Fatal(err)
	}
	if staged != 600 {
		t.Errorf("staged balance %d, want 600", staged)
	}
	committed, err := base.Balance("WBTC")
	if err != nil {
		t.Fatal(err)
	}
	if committed != 1_000 {
		t.Errorf("base balance %d before commit, want 1_000", committed)
	}

	// Overdrawing the staged balance fails at record time.
	if err := overlay.RecordTransferredOut("WBTC", 601); err == nil {
		t.Error("staged overdraw must fail")
	}

	transfers := overlay.Transfers()
	if len(transfers) != 1 || transfers[0].Amount != -400 || transfers[0].Token != "WBTC" {
		t.Errorf("unexpected transfers %+v", transfers)
	}

	overlay.Commit()
	committed, err = base.Balance("WBTC")
	if err != nil {
		t.Fatal(err)
	}
	if committed != 600 {
		t.Errorf("base balance %d after commit, want 600", committed)
	}
}

func TestLiquidityMintBurn(t *testing.T) {
	base := newBase(t)
	overlay := revertible.WrapLiquidity(base)

	if err := overlay.Mint(900); err != nil {
		t.Fatal(err)
	}
	if err := overlay.Burn(200); err != nil {
		t.Fatal(err)
	}
	if overlay.TotalSupply() != 700 {
		t.Errorf("staged supply %d, want 700", overlay.TotalSupply())
	}
	if base.TotalSupply() != 0 {
		t.Error("base supply moved before commit")
	}
	if overlay.ToMint() != 900 || overlay.ToBurn() != 200 {
		t.Errorf("to mint/burn %d/%d, want 900/200", overlay.ToMint(), overlay.ToBurn())
	}

	overlay.Commit()
	if base.TotalSupply() != 700 {
		t.Errorf("base supply %d after commit, want 700", base.TotalSupply())
	}
}

func TestLiquidityBurnPastSupplyFails(t *testing.T) {
	base := newBase(t)
	overlay := revertible.WrapLiquidity(base)
	if err := overlay.Burn(1); err == nil {
		t.Error("burning past the staged supply must fail")
	}
}
