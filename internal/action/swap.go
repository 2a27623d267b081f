// Package action implements the market action kernels. Each kernel
// validates its inputs, mutates the market it is handed (normally a
// revertible overlay) and returns a report. Kernels short-circuit on
// the first error and never partially undo their own writes; reverting
// is the overlay's job.
package action

import (
	"PerpCore/internal/engineerr"
	"PerpCore/internal/fixedpoint"
	"PerpCore/internal/market"
	"PerpCore/internal/pool"
)

// SwapParams echoes the validated swap inputs on the report.
type SwapParams struct {
	IsTokenInLong bool
	TokenInAmount uint64
	Prices        market.Prices
}

// SwapReport is the outcome of one swap.
type SwapReport struct {
	Params            SwapParams
	TokenInFees       market.Fees
	TokenOutAmount    uint64
	PriceImpactValue  int64
	PriceImpactAmount uint64
}

type reassignedValues struct {
	longTokenDeltaValue  int64
	shortTokenDeltaValue int64
	tokenInPrice         market.Price
	tokenOutPrice        market.Price
}

// Amounts convert at the worst bound for the caller: the in token at
// its min price, the out token at its max price.
func reassignSwapValues(isTokenInLong bool, amountIn uint64, prices market.Prices) (reassignedValues, error) {
	inPrice := prices.CollateralPrice(isTokenInLong)
	outPrice := prices.CollateralPrice(!isTokenInLong)

	deltaValue, ok := fixedpoint.Mul(amountIn, inPrice.Pick(false))
	if !ok {
		return reassignedValues{}, engineerr.Computation("token in delta value")
	}
	signed, ok := fixedpoint.ToSigned(deltaValue)
	if !ok {
		return reassignedValues{}, engineerr.Convert("token in delta value")
	}

	v := reassignedValues{tokenInPrice: inPrice, tokenOutPrice: outPrice}
	if isTokenInLong {
		v.longTokenDeltaValue = signed
		v.shortTokenDeltaValue = -signed
	} else {
		v.longTokenDeltaValue = -signed
		v.shortTokenDeltaValue = signed
	}
	return v, nil
}

// Swap exchanges amountIn of one side's token for the other side's,
// charging fees and price impact and validating the pool afterwards.
func Swap(m market.Market, isTokenInLong bool, amountIn uint64, prices market.Prices) (*SwapReport, error) {
	if amountIn == 0 {
		return nil, engineerr.ErrEmptySwap
	}
	if err := prices.Validate(); err != nil {
		return nil, err
	}
	params := SwapParams{IsTokenInLong: isTokenInLong, TokenInAmount: amountIn, Prices: prices}

	values, err := reassignSwapValues(isTokenInLong, amountIn, prices)
	if err != nil {
		return nil, err
	}

	primary, err := m.Pool(pool.Primary)
	if err != nil {
		return nil, err
	}
	outValue, err := sideUsdValue(primary, !isTokenInLong, values.tokenOutPrice.Pick(false))
	if err != nil {
		return nil, err
	}
	inValue := fixedpoint.SignedAbs(values.longTokenDeltaValue)
	if inValue > outValue {
		return nil, engineerr.InsufficientReserve(!isTokenInLong)
	}

	delta, err := pool.NewDelta(primary,
		values.longTokenDeltaValue, values.shortTokenDeltaValue,
		prices.LongTokenPrice.Pick(false), prices.ShortTokenPrice.Pick(false))
	if err != nil {
		return nil, err
	}
	priceImpact, err := delta.PriceImpact(m.Config().SwapImpactParams())
	if err != nil {
		return nil, err
	}

	amountAfterFees, fees, err := chargeSwapFees(m, isTokenInLong, amountIn, priceImpact > 0)
	if err != nil {
		return nil, err
	}

	var tokenInAmount, tokenOutAmount, poolAmountOut, priceImpactAmount uint64
	if priceImpact > 0 {
		priceImpactAmount, err = market.ApplySwapImpactValueWithCap(m, !isTokenInLong, values.tokenOutPrice, priceImpact)
		if err != nil {
			return nil, err
		}
		tokenInAmount = amountAfterFees
		poolAmountOut, err = convertAmount(tokenInAmount, values.tokenInPrice, values.tokenOutPrice)
		if err != nil {
			return nil, err
		}
		// The extra amount comes out of the swap impact pool, not the
		// primary pool.
		tokenOutAmount, err = checkedAdd(poolAmountOut, priceImpactAmount, "token out amount for positive impact")
		if err != nil {
			return nil, err
		}
	} else {
		priceImpactAmount, err = market.ApplySwapImpactValueWithCap(m, isTokenInLong, values.tokenInPrice, priceImpact)
		if err != nil {
			return nil, err
		}
		var ok bool
		tokenInAmount, ok = fixedpoint.Sub(amountAfterFees, priceImpactAmount)
		if !ok {
			return nil, engineerr.Computation("swap: not enough fund to pay price impact")
		}
		tokenOutAmount, err = convertAmount(tokenInAmount, values.tokenInPrice, values.tokenOutPrice)
		if err != nil {
			return nil, err
		}
		poolAmountOut = tokenOutAmount
	}

	available, err := primary.Amount(!isTokenInLong)
	if err != nil {
		return nil, err
	}
	if poolAmountOut > available {
		return nil, engineerr.InsufficientReserve(!isTokenInLong)
	}

	poolIn, err := checkedAdd(tokenInAmount, fees.FeeAmountForPool, "pool in amount")
	if err != nil {
		return nil, err
	}
	if err := applyPrimaryDelta(m, isTokenInLong, poolIn, false); err != nil {
		return nil, err
	}
	if err := applyPrimaryDelta(m, !isTokenInLong, poolAmountOut, true); err != nil {
		return nil, err
	}

	if err := market.ValidatePoolAmount(m, isTokenInLong); err != nil {
		return nil, err
	}
	if err := market.ValidateReserve(m, prices, !isTokenInLong); err != nil {
		return nil, err
	}
	longKind, shortKind := market.PnlFactorMaxAfterDeposit, market.PnlFactorMaxAfterWithdrawal
	if !isTokenInLong {
		longKind, shortKind = shortKind, longKind
	}
	if err := market.ValidateMaxPnl(m, prices, longKind, shortKind); err != nil {
		return nil, err
	}

	return &SwapReport{
		Params:            params,
		TokenInFees:       fees,
		TokenOutAmount:    tokenOutAmount,
		PriceImpactValue:  priceImpact,
		PriceImpactAmount: priceImpactAmount,
	}, nil
}

func chargeSwapFees(m market.Market, isTokenInLong bool, amount uint64, isPositiveImpact bool) (uint64, market.Fees, error) {
	after, fees, err := m.Config().SwapFeeParams().ApplyFees(isPositiveImpact, amount)
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
	if err := claimable.ApplyDelta(isTokenInLong, receiver); err != nil {
		return 0, market.Fees{}, err
	}
	return after, fees, nil
}

func sideUsdValue(p *pool.Pool, isLong bool, price uint64) (uint64, error) {
	if isLong {
		return p.LongUsdValue(price)
	}
	return p.ShortUsdValue(price)
}

func convertAmount(amount uint64, from, to market.Price) (uint64, error) {
	out, ok := fixedpoint.MulDiv(amount, from.Pick(false), to.Pick(true))
	if !ok {
		return 0, engineerr.Computation("converting token amount")
	}
	return out, nil
}

func applyPrimaryDelta(m market.Market, isLong bool, amount uint64, negate bool) error {
	primary, err := m.Pool(pool.Primary)
	if err != nil {
		return err
	}
	delta, ok := fixedpoint.ToSigned(amount)
	if !ok {
		return engineerr.Convert("primary pool delta")
	}
	if negate {
		delta = -delta
	}
	return primary.ApplyDelta(isLong, delta)
}

func checkedAdd(a, b uint64, what string) (uint64, error) {
	sum, ok := fixedpoint.Add(a, b)
	if !ok {
		return 0, engineerr.Computation(what)
	}
	return sum, nil
}
