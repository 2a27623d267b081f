package action

import (
	"PerpCore/internal/engineerr"
	"PerpCore/internal/fixedpoint"
	"PerpCore/internal/market"
	"PerpCore/internal/pool"
)

// WithdrawalParams echoes the validated withdrawal inputs on the
// report.
type WithdrawalParams struct {
	MarketTokenAmount uint64
	Prices            market.Prices
}

// WithdrawalReport is the outcome of one withdrawal.
type WithdrawalReport struct {
	Params           WithdrawalParams
	LongTokenOutput  uint64
	ShortTokenOutput uint64
	LongTokenFees    market.Fees
	ShortTokenFees   market.Fees
}

// Withdrawal burns market tokens and pays out both sides of the pool
// pro rata, charging the withdrawal fee per side.
func Withdrawal(m market.LiquidityMarket, marketTokenAmount uint64, prices market.Prices) (*WithdrawalReport, error) {
	if marketTokenAmount == 0 {
		return nil, engineerr.ErrEmptyWithdrawal
	}
	if err := prices.Validate(); err != nil {
		return nil, err
	}
	params := WithdrawalParams{MarketTokenAmount: marketTokenAmount, Prices: prices}

	primary, err := m.Pool(pool.Primary)
	if err != nil {
		return nil, err
	}
	longPoolValue, err := primary.LongUsdValue(prices.LongTokenPrice.Pick(false))
	if err != nil {
		return nil, err
	}
	shortPoolValue, err := primary.ShortUsdValue(prices.ShortTokenPrice.Pick(false))
	if err != nil {
		return nil, err
	}
	poolValue, ok := fixedpoint.Add(longPoolValue, shortPoolValue)
	if !ok {
		return nil, engineerr.Computation("pool value")
	}
	if poolValue == 0 {
		return nil, engineerr.Computation("withdrawing from market with empty pool value")
	}

	totalUsd, ok := fixedpoint.MarketTokenAmountToUsd(marketTokenAmount, poolValue, m.TotalSupply())
	if !ok {
		return nil, engineerr.Computation("market token value")
	}

	// Split the usd between the sides in proportion to the pool.
	longUsd, ok := fixedpoint.MulDiv(totalUsd, longPoolValue, poolValue)
	if !ok {
		return nil, engineerr.Computation("long output value")
	}
	shortUsd, ok := fixedpoint.Sub(totalUsd, longUsd)
	if !ok {
		return nil, engineerr.Computation("short output value")
	}

	report := &WithdrawalReport{Params: params}
	outputs := [2]uint64{}
	for i, isLong := range [2]bool{true, false} {
		usd := shortUsd
		price := prices.ShortTokenPrice
		if isLong {
			usd = longUsd
			price = prices.LongTokenPrice
		}
		if usd == 0 {
			continue
		}
		// Convert at the max price so the pool keeps the rounding.
		amount := usd / price.Pick(true)
		amountAfterFees, fees, err := m.Config().SwapFeeParams().ApplyFees(false, amount)
		if err != nil {
			return nil, err
		}
		claimable, err := m.Pool(pool.ClaimableFee)
		if err != nil {
			return nil, err
		}
		receiver, ok := fixedpoint.ToSigned(fees.FeeReceiverAmount)
		if !ok {
			return nil, engineerr.Convert("fee receiver amount")
		}
		if err := claimable.ApplyDelta(isLong, receiver); err != nil {
			return nil, err
		}
		// The pool pays out everything but the share the fee leaves
		// behind for it.
		poolOut, ok := fixedpoint.Sub(amount, fees.FeeAmountForPool)
		if !ok {
			return nil, engineerr.Computation("pool out amount")
		}
		if err := applyPrimaryDelta(m, isLong, poolOut, true); err != nil {
			return nil, err
		}
		outputs[i] = amountAfterFees
		if isLong {
			report.LongTokenFees = fees
		} else {
			report.ShortTokenFees = fees
		}
	}

	for _, isLong := range [2]bool{true, false} {
		if err := market.ValidateReserve(m, prices, isLong); err != nil {
			return nil, err
		}
	}
	if err := market.ValidateMaxPnl(m, prices,
		market.PnlFactorMaxAfterWithdrawal, market.PnlFactorMaxAfterWithdrawal); err != nil {
		return nil, err
	}

	if err := m.Burn(marketTokenAmount); err != nil {
		return nil, err
	}
	report.LongTokenOutput = outputs[0]
	report.ShortTokenOutput = outputs[1]
	return report, nil
}
