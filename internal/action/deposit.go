package action

import (
	"PerpCore/internal/engineerr"
	"PerpCore/internal/fixedpoint"
	"PerpCore/internal/market"
	"PerpCore/internal/pool"
)

// DepositParams echoes the validated deposit inputs on the report.
type DepositParams struct {
	LongTokenAmount  uint64
	ShortTokenAmount uint64
	Prices           market.Prices
}

// DepositReport is the outcome of one deposit.
type DepositReport struct {
	Params         DepositParams
	Minted         uint64
	PriceImpact    int64
	LongTokenFees  market.Fees
	ShortTokenFees market.Fees
}

// Deposit adds liquidity on one or both sides and mints market tokens
// for the usd value after fees and price impact.
func Deposit(m market.LiquidityMarket, longAmount, shortAmount uint64, prices market.Prices) (*DepositReport, error) {
	if longAmount == 0 && shortAmount == 0 {
		return nil, engineerr.ErrEmptyDeposit
	}
	if err := prices.Validate(); err != nil {
		return nil, err
	}
	params := DepositParams{LongTokenAmount: longAmount, ShortTokenAmount: shortAmount, Prices: prices}

	longDelta, ok := fixedpoint.ToSigned(longAmount)
	if !ok {
		return nil, engineerr.Convert("long token amount")
	}
	shortDelta, ok := fixedpoint.ToSigned(shortAmount)
	if !ok {
		return nil, engineerr.Convert("short token amount")
	}
	primary, err := m.Pool(pool.Primary)
	if err != nil {
		return nil, err
	}
	delta, err := pool.NewDelta(primary, longDelta, shortDelta,
		prices.LongTokenPrice.Pick(false), prices.ShortTokenPrice.Pick(false))
	if err != nil {
		return nil, err
	}
	priceImpact, err := delta.PriceImpact(m.Config().SwapImpactParams())
	if err != nil {
		return nil, err
	}
	longUsdValue := fixedpoint.SignedAbs(delta.DeltaLongValue())
	shortUsdValue := fixedpoint.SignedAbs(delta.DeltaShortValue())
	totalUsdValue, ok := fixedpoint.Add(longUsdValue, shortUsdValue)
	if !ok {
		return nil, engineerr.Computation("total deposit value")
	}

	// Price the pool before any delta lands.
	poolValue, err := market.LiquidityPoolValue(m, prices, true)
	if err != nil {
		return nil, err
	}
	if poolValue == 0 && m.TotalSupply() != 0 {
		return nil, engineerr.Computation("deposit into market with empty pool value")
	}

	report := &DepositReport{Params: params, PriceImpact: priceImpact}
	var toMint uint64
	for _, isLong := range [2]bool{true, false} {
		amount := shortAmount
		if isLong {
			amount = longAmount
		}
		if amount == 0 {
			continue
		}
		sideValue := shortUsdValue
		if isLong {
			sideValue = longUsdValue
		}
		// Each side carries its proportional share of the impact.
		share, ok := fixedpoint.MulDivSignedNumerator(sideValue, priceImpact, totalUsdValue)
		if !ok {
			return nil, engineerr.Computation("price impact share")
		}
		minted, fees, err := executeDepositSide(m, isLong, amount, prices, poolValue, share)
		if err != nil {
			return nil, err
		}
		toMint, ok = fixedpoint.Add(toMint, minted)
		if !ok {
			return nil, engineerr.Computation("mint amount")
		}
		if isLong {
			report.LongTokenFees = fees
		} else {
			report.ShortTokenFees = fees
		}
	}

	for _, isLong := range [2]bool{true, false} {
		if err := market.ValidatePoolAmount(m, isLong); err != nil {
			return nil, err
		}
		if err := validatePoolValueForDeposit(m, prices, isLong); err != nil {
			return nil, err
		}
	}
	if err := market.ValidateMaxPnl(m, prices,
		market.PnlFactorMaxAfterDeposit, market.PnlFactorMaxAfterDeposit); err != nil {
		return nil, err
	}

	if err := m.Mint(toMint); err != nil {
		return nil, err
	}
	report.Minted = toMint
	return report, nil
}

func executeDepositSide(m market.LiquidityMarket, isLongToken bool, amount uint64, prices market.Prices, poolValue uint64, priceImpact int64) (uint64, market.Fees, error) {
	price := prices.CollateralPrice(isLongToken)
	oppositePrice := prices.CollateralPrice(!isLongToken)
	supply := m.TotalSupply()
	divisor := m.Meta().UsdToAmountDivisor()

	amountAfterFees, fees, err := m.Config().SwapFeeParams().ApplyFees(priceImpact > 0, amount)
	if err != nil {
		return 0, market.Fees{}, err
	}
	claimable, err := m.Pool(pool.ClaimableFee)
	if err != nil {
		return 0, market.Fees{}, err
	}
	receiver, ok := fixedpoint.ToSigned(fees.FeeReceiverAmount)
	if !ok {
		return 0, market.Fees{}, engineerr.Convert("fee receiver amount")
	}
	if err := claimable.ApplyDelta(isLongToken, receiver); err != nil {
		return 0, market.Fees{}, err
	}

	// The first deposit has no opposite liquidity to pay impact from.
	if priceImpact > 0 && supply == 0 {
		priceImpact = 0
	}

	var mintAmount uint64
	switch {
	case priceImpact > 0:
		impactAmount, err := market.ApplySwapImpactValueWithCap(m, !isLongToken, oppositePrice, priceImpact)
		if err != nil {
			return 0, market.Fees{}, err
		}
		impactValue, ok := fixedpoint.Mul(impactAmount, oppositePrice.Pick(false))
		if !ok {
			return 0, market.Fees{}, engineerr.Computation("impact value")
		}
		mintAmount, ok = fixedpoint.UsdToMarketTokenAmount(impactValue, poolValue, supply, divisor)
		if !ok {
			return 0, market.Fees{}, engineerr.Computation("minting for impact")
		}
		if err := applyPrimaryDelta(m, !isLongToken, impactAmount, false); err != nil {
			return 0, market.Fees{}, err
		}
	case priceImpact < 0:
		impactAmount, err := market.ApplySwapImpactValueWithCap(m, isLongToken, price, priceImpact)
		if err != nil {
			return 0, market.Fees{}, err
		}
		amountAfterFees, ok = fixedpoint.Sub(amountAfterFees, impactAmount)
		if !ok {
			return 0, market.Fees{}, engineerr.ErrUnderflow
		}
	}

	value, ok := fixedpoint.Mul(amountAfterFees, price.Pick(false))
	if !ok {
		return 0, market.Fees{}, engineerr.Computation("deposit value")
	}
	minted, ok := fixedpoint.UsdToMarketTokenAmount(value, poolValue, supply, divisor)
	if !ok {
		return 0, market.Fees{}, engineerr.Computation("minting for deposit")
	}
	mintAmount, ok = fixedpoint.Add(mintAmount, minted)
	if !ok {
		return 0, market.Fees{}, engineerr.Computation("mint amount")
	}

	poolIn, ok := fixedpoint.Add(amountAfterFees, fees.FeeAmountForPool)
	if !ok {
		return 0, market.Fees{}, engineerr.ErrOverflow
	}
	if err := applyPrimaryDelta(m, isLongToken, poolIn, false); err != nil {
		return 0, market.Fees{}, err
	}
	return mintAmount, fees, nil
}

func validatePoolValueForDeposit(m market.Market, prices market.Prices, isLong bool) error {
	max := m.Config().MaxPoolValueForDeposit.Get(isLong)
	if max == 0 {
		return nil
	}
	value, err := market.LiquidityPoolValue(m, prices, true)
	if err != nil {
		return err
	}
	if value > max {
		return engineerr.PoolAmountExceeded(isLong)
	}
	return nil
}
