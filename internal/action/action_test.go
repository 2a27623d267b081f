package action_test

import (
	"testing"

	"PerpCore/internal/action"
	"PerpCore/internal/fixedpoint"
	"PerpCore/internal/market"
	"PerpCore/internal/pool"
)

func testMeta() market.Meta {
	return market.Meta{
		MarketToken: "GM-WBTC-USDG",
		IndexToken:  "WBTC",
		LongToken:   "WBTC",
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

func newTestMarket() *market.Base {
	return market.New(testMeta(), testConfig())
}

func testPrices(index, long, short uint64) market.Prices {
	return market.Prices{
		IndexTokenPrice: market.Price{Min: index, Max: index},
		LongTokenPrice:  market.Price{Min: long, Max: long},
		ShortTokenPrice: market.Price{Min: short, Max: short},
	}
}

func mustDeposit(t *testing.T, m market.LiquidityMarket, longAmount, shortAmount uint64, prices market.Prices) *action.DepositReport {
	t.Helper()
	report, err := action.Deposit(m, longAmount, shortAmount, prices)
	if err != nil {
		t.Fatalf("deposit(%d, %d): %v", longAmount, shortAmount, err)
	}
	return report
}

func poolAmount(t *testing.T, m market.Market, kind pool.Kind, isLong bool) uint64 {
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
