package engine_test

import (
	"errors"
	"testing"

	"PerpCore/internal/engine"
	"PerpCore/internal/engineerr"
	"PerpCore/internal/fixedpoint"
	"PerpCore/internal/market"
	"PerpCore/internal/pool"

	"github.com/rs/zerolog"
)

func btcMeta() market.Meta {
	return market.Meta{
		MarketToken: "GM-WBTC-USDG",
		IndexToken:  "WBTC",
		LongToken:   "WBTC",
		ShortToken:  "USDG",
	}
}

func ethMeta() market.Meta {
	return market.Meta{
		MarketToken: "GM-WETH-USDG",
		IndexToken:  "WETH",
		LongToken:   "WETH",
		ShortToken:  "USDG",
	}
}

func testConfig() market.Config {
	u := fixedpoint.Unit
	return market.Config{
		SwapImpactExponent:       2 * u,
		SwapImpactPositiveFactor: 10,
		SwapImpactNegativeFactor: 20,

		SwapFeeReceiverFactor:       370_000_000,
		SwapFeePositiveImpactFactor: 200_000,
		SwapFeeNegativeImpactFactor: 500_000,

		PositionImpactExponent:       2 * u,
		PositionImpactPositiveFactor: 10,
		PositionImpactNegativeFactor: 20,

		PositionFeeReceiverFactor:       370_000_000,
		PositionFeePositiveImpactFactor: 500_000,
		PositionFeeNegativeImpactFactor: 700_000,

		BorrowingFeeFactor:   market.Sided{Long: 28, Short: 28},
		BorrowingFeeExponent: market.Sided{Long: u, Short: u},

		FundingFeeExponent:        u,
		FundingFeeFactor:          2_000,
		MaxFundingFactorPerSecond: 1_000_000,

		ReserveFactor:             u,
		OpenInterestReserveFactor: 900_000_000,
		MaxPoolAmount:             market.Sided{Long: 1 << 62, Short: 1 << 62},
		MaxOpenInterest:           market.Sided{Long: 1 << 62, Short: 1 << 62},

		MaxPnlFactorForDeposit:    market.Sided{Long: 600_000_000, Short: 600_000_000},
		MaxPnlFactorForWithdrawal: market.Sided{Long: 600_000_000, Short: 600_000_000},
		MaxPnlFactorForTrader:     market.Sided{Long: 500_000_000, Short: 500_000_000},
		MaxPnlFactorForAdl:        market.Sided{Long: 400_000_000, Short: 400_000_000},
		MinPnlFactorAfterAdl:      market.Sided{Long: 100_000_000, Short: 100_000_000},

		MinCollateralFactor: 5_000_000,
		MaxLeverageFactor:   100 * u,
	}
}

func testPrices(index, long, short uint64) market.Prices {
	return market.Prices{
		IndexTokenPrice: market.Price{Min: index, Max: index},
		LongTokenPrice:  market.Price{Min: long, Max: long},
		ShortTokenPrice: market.Price{Min: short, Max: short},
	}
}

func newEngine() *engine.Engine {
	return engine.New(zerolog.Nop(), nil)
}

func mustExecuteDeposit(t *testing.T, e *engine.Engine, req engine.DepositRequest) *engine.DepositResult {
	t.Helper()
	res, err := e.ExecuteDeposit(req)
	if err != nil {
		t.Fatalf("deposit on %s: %v", req.MarketToken, err)
	}
	return res
}

func basePoolAmount(t *testing.T, m *market.Base, kind pool.Kind, isLong bool) uint64 {
	t.Helper()
	p, err := m.Pool(kind)
	if err != nil {
		t.Fatal(err)
	}
	amount, err := p.Amount(isLong)
	if err != nil {
		t.Fatal(err)
	}
	return amount
}

func TestDepositCommitsAndPlansTransfers(t *testing.T) {
	e := newEngine()
	m := market.New(btcMeta(), testConfig())
	e.AddMarket(m)

	res := mustExecuteDeposit(t, e, engine.DepositRequest{
		MarketToken:      "GM-WBTC-USDG",
		Payer:            "alice",
		Receiver:         "alice",
		LongTokenAmount:  1_000_000_000,
		ShortTokenAmount: 120_000_000_000,
		Prices:           testPrices(120, 120, 1),
	})

	if res.Report.Minted == 0 {
		t.Fatal("deposit minted nothing")
	}
	if got := m.TotalSupply(); got != res.Report.Minted {
		t.Fatalf("supply = %d, want %d", got, res.Report.Minted)
	}
	if res.DepositID != 1 {
		t.Fatalf("deposit id = %d, want 1", res.DepositID)
	}

	if len(res.Plan.Transfers) != 2 {
		t.Fatalf("plan transfers = %d, want 2", len(res.Plan.Transfers))
	}
	vault := engine.VaultBank(m.Meta())
	for _, tr := range res.Plan.Transfers {
		if tr.FromBank != "alice" || tr.ToBank != vault {
			t.Fatalf("transfer %+v does not move alice -> %s", tr, vault)
		}
	}
	if len(res.Plan.Mints) != 1 || res.Plan.Mints[0].Amount != res.Report.Minted {
		t.Fatalf("plan mints = %+v, want one entry of %d", res.Plan.Mints, res.Report.Minted)
	}

	state := m.State()
	if state.LongTokenBalance != 1_000_000_000 {
		t.Fatalf("long bank balance = %d, want 1000000000", state.LongTokenBalance)
	}
	if state.ShortTokenBalance != 120_000_000_000 {
		t.Fatalf("short bank balance = %d, want 120000000000", state.ShortTokenBalance)
	}
}

func TestDepositOnDisabledMarket(t *testing.T) {
	e := newEngine()
	m := market.New(btcMeta(), testConfig())
	m.SetEnabled(false)
	e.AddMarket(m)

	_, err := e.ExecuteDeposit(engine.DepositRequest{
		MarketToken:     "GM-WBTC-USDG",
		Payer:           "alice",
		Receiver:        "alice",
		LongTokenAmount: 1_000_000_000,
		Prices:          testPrices(120, 120, 1),
	})
	if !errors.Is(err, engineerr.ErrMarketDisabled) {
		t.Fatalf("err = %v, want market disabled", err)
	}
	if m.TotalSupply() != 0 {
		t.Fatal("disabled market minted supply")
	}
}

func TestWithdrawalMinOutputLeavesBaseUntouched(t *testing.T) {
	e := newEngine()
	m := market.New(btcMeta(), testConfig())
	e.AddMarket(m)
	prices := testPrices(120, 120, 1)

	dep := mustExecuteDeposit(t, e, engine.DepositRequest{
		MarketToken:      "GM-WBTC-USDG",
		Payer:            "alice",
		Receiver:         "alice",
		LongTokenAmount:  1_000_000_000,
		ShortTokenAmount: 120_000_000_000,
		Prices:           prices,
	})

	longBefore := basePoolAmount(t, m, pool.Primary, true)
	supplyBefore := m.TotalSupply()

	_, err := e.ExecuteWithdrawal(engine.WithdrawalRequest{
		MarketToken:       "GM-WBTC-USDG",
		Payer:             "alice",
		Receiver:          "alice",
		MarketTokenAmount: dep.Report.Minted / 2,
		MinLongTokenOut:   1 << 60,
		Prices:            prices,
	})
	if !errors.Is(err, engineerr.ErrInsufficientOutputAmount) {
		t.Fatalf("err = %v, want insufficient output", err)
	}
	if got := basePoolAmount(t, m, pool.Primary, true); got != longBefore {
		t.Fatalf("primary long changed on rejected withdrawal: %d -> %d", longBefore, got)
	}
	if m.TotalSupply() != supplyBefore {
		t.Fatal("supply changed on rejected withdrawal")
	}
}

func TestWithdrawalPlansBurnAndOutputs(t *testing.T) {
	e := newEngine()
	m := market.New(btcMeta(), testConfig())
	e.AddMarket(m)
	prices := testPrices(120, 120, 1)

	dep := mustExecuteDeposit(t, e, engine.DepositRequest{
		MarketToken:      "GM-WBTC-USDG",
		Payer:            "alice",
		Receiver:         "alice",
		LongTokenAmount:  1_000_000_000,
		ShortTokenAmount: 120_000_000_000,
		Prices:           prices,
	})

	res, err := e.ExecuteWithdrawal(engine.WithdrawalRequest{
		MarketToken:       "GM-WBTC-USDG",
		Payer:             "alice",
		Receiver:          "bob",
		MarketTokenAmount: dep.Report.Minted / 2,
		Prices:            prices,
	})
	if err != nil {
		t.Fatalf("withdrawal: %v", err)
	}
	if res.Report.LongTokenOutput == 0 || res.Report.ShortTokenOutput == 0 {
		t.Fatalf("outputs = %d/%d, want both positive", res.Report.LongTokenOutput, res.Report.ShortTokenOutput)
	}
	if len(res.Plan.Burns) != 1 || res.Plan.Burns[0].From != "alice" {
		t.Fatalf("plan burns = %+v, want one entry from alice", res.Plan.Burns)
	}
	if res.Plan.Burns[0].Amount != dep.Report.Minted/2 {
		t.Fatalf("burn amount = %d, want %d", res.Plan.Burns[0].Amount, dep.Report.Minted/2)
	}
	vault := engine.VaultBank(m.Meta())
	for _, tr := range res.Plan.Transfers {
		if tr.FromBank != vault || tr.ToBank != "bob" {
			t.Fatalf("transfer %+v does not move %s -> bob", tr, vault)
		}
	}
	if got := m.TotalSupply(); got != dep.Report.Minted-dep.Report.Minted/2 {
		t.Fatalf("supply = %d after burn, want %d", got, dep.Report.Minted-dep.Report.Minted/2)
	}
}

func TestMarketAdminOperations(t *testing.T) {
	e := newEngine()
	m := market.New(btcMeta(), testConfig())
	e.AddMarket(m)

	res, err := e.ExecuteMarketAdmin(engine.MarketAdminRequest{
		Op:          engine.AdminSetEnabled,
		MarketToken: "GM-WBTC-USDG",
		Enabled:     false,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Report.Op != engine.AdminSetEnabled {
		t.Fatalf("report = %+v", res.Report)
	}
	if m.IsEnabled() {
		t.Fatal("market still enabled after set_enabled=false")
	}

	// The config and ADL routes stay reachable while disabled.
	cfg := testConfig()
	cfg.FundingFeeFactor = 4_000
	if _, err := e.ExecuteMarketAdmin(engine.MarketAdminRequest{
		Op:          engine.AdminReplaceConfig,
		MarketToken: "GM-WBTC-USDG",
		Config:      &cfg,
	}); err != nil {
		t.Fatal(err)
	}
	if got := m.Config().FundingFeeFactor; got != 4_000 {
		t.Fatalf("funding fee factor = %d, want 4000", got)
	}

	if _, err := e.ExecuteMarketAdmin(engine.MarketAdminRequest{
		Op:          engine.AdminSetAdlEnabled,
		MarketToken: "GM-WBTC-USDG",
		IsLong:      true,
		Enabled:     true,
	}); err != nil {
		t.Fatal(err)
	}
	if !m.IsAdlEnabled(true) {
		t.Fatal("long ADL flag not set")
	}
	if m.IsAdlEnabled(false) {
		t.Fatal("short ADL flag flipped too")
	}
}

func TestMarketAdminRejectsBadRequests(t *testing.T) {
	e := newEngine()
	e.AddMarket(market.New(btcMeta(), testConfig()))

	if _, err := e.ExecuteMarketAdmin(engine.MarketAdminRequest{
		Op:          engine.AdminReplaceConfig,
		MarketToken: "GM-WBTC-USDG",
	}); err == nil {
		t.Fatal("replace_config without a config succeeded")
	}
	if _, err := e.ExecuteMarketAdmin(engine.MarketAdminRequest{
		Op:          "freeze",
		MarketToken: "GM-WBTC-USDG",
	}); err == nil {
		t.Fatal("unknown op succeeded")
	}
	if _, err := e.ExecuteMarketAdmin(engine.MarketAdminRequest{
		Op:          engine.AdminSetEnabled,
		MarketToken: "GM-UNKNOWN",
	}); err == nil {
		t.Fatal("unknown market succeeded")
	}
}
