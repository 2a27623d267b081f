package action

import (
	"PerpCore/internal/engineerr"
	"PerpCore/internal/fixedpoint"
	"PerpCore/internal/market"
	"PerpCore/internal/pool"
	"PerpCore/internal/position"
)

// PositionFees collects everything a position change pays, all in the
// position's collateral token except the claimable funding amounts,
// which are denominated in the named market token.
type PositionFees struct {
	Order                            market.Fees
	BorrowingFeeAmount               uint64
	FundingFeeAmount                 uint64
	LiquidationFeeAmount             uint64
	ClaimableFundingLongTokenAmount  uint64
	ClaimableFundingShortTokenAmount uint64
}

// TotalCostAmount returns the collateral amount the fees consume.
func (f *PositionFees) TotalCostAmount() (uint64, error) {
	total, err := f.Order.Total()
	if err != nil {
		return 0, err
	}
	for _, v := range [3]uint64{f.BorrowingFeeAmount, f.FundingFeeAmount, f.LiquidationFeeAmount} {
		next, ok := fixedpoint.Add(total, v)
		if !ok {
			return 0, engineerr.ErrOverflow
		}
		total = next
	}
	return total, nil
}

func openInterestPool(isLong bool) pool.Kind {
	if isLong {
		return pool.OpenInterestLong
	}
	return pool.OpenInterestShort
}

func openInterestInTokensPool(isLong bool) pool.Kind {
	if isLong {
		return pool.OpenInterestInTokensLong
	}
	return pool.OpenInterestInTokensShort
}

func collateralSumPool(isLong bool) pool.Kind {
	if isLong {
		return pool.CollateralSumLong
	}
	return pool.CollateralSumShort
}

// positionPriceImpact measures the usd impact of a size change against
// the open interest imbalance between the two sides.
func positionPriceImpact(m market.Market, isLong bool, sizeDeltaUsd int64) (int64, error) {
	oiLong, err := market.OpenInterest(m, true)
	if err != nil {
		return 0, err
	}
	oiShort, err := market.OpenInterest(m, false)
	if err != nil {
		return 0, err
	}
	var longDelta, shortDelta int64
	if isLong {
		longDelta = sizeDeltaUsd
	} else {
		shortDelta = sizeDeltaUsd
	}
	delta, err := pool.NewDelta(pool.NewWithAmounts(oiLong, oiShort), longDelta, shortDelta, 1, 1)
	if err != nil {
		return 0, err
	}
	return delta.PriceImpact(m.Config().PositionImpactParams())
}

// settlePositionImpact exchanges a usd impact against the position
// impact pool and returns the signed index token amount credited to
// the position. A positive impact is paid out of the pool and capped
// by its balance; a negative impact deposits tokens into it.
func settlePositionImpact(m market.Market, impactValue int64, indexPrice market.Price) (int64, error) {
	if impactValue == 0 {
		return 0, nil
	}
	impactPool, err := m.Pool(pool.PositionImpact)
	if err != nil {
		return 0, err
	}
	if impactValue > 0 {
		amount, ok := fixedpoint.Div(uint64(impactValue), indexPrice.Max)
		if !ok {
			return 0, engineerr.Computation("position impact amount")
		}
		balance, err := PositionImpactPoolAmount(m)
		if err != nil {
			return 0, err
		}
		if amount > balance {
			amount = balance
		}
		signed, ok := fixedpoint.ToSigned(amount)
		if !ok {
			return 0, engineerr.Convert("position impact amount")
		}
		if err := impactPool.ApplyDeltaToLongAmount(-signed); err != nil {
			return 0, err
		}
		return signed, nil
	}

	amount, ok := fixedpoint.MulDivCeil(fixedpoint.SignedAbs(impactValue), 1, indexPrice.Min)
	if !ok {
		return 0, engineerr.Computation("position impact amount")
	}
	signed, ok := fixedpoint.ToSigned(amount)
	if !ok {
		return 0, engineerr.Convert("position impact amount")
	}
	if err := impactPool.ApplyDeltaToLongAmount(signed); err != nil {
		return 0, err
	}
	return -signed, nil
}

// checkAcceptablePrice enforces the order's price bound. A zero bound
// disables the check. Longs cap the price they open at and floor the
// price they close at; shorts are the mirror.
func checkAcceptablePrice(executionPrice, acceptablePrice uint64, isLong, isIncrease bool) error {
	if acceptablePrice == 0 {
		return nil
	}
	wantsLower := isLong == isIncrease
	if wantsLower && executionPrice > acceptablePrice {
		return engineerr.ErrUnacceptablePrice
	}
	if !wantsLower && executionPrice < acceptablePrice {
		return engineerr.ErrUnacceptablePrice
	}
	return nil
}

// collectPositionFees prices every fee the position change owes. The
// order fee scales with the size delta; borrowing and funding settle
// everything pending since the position's snapshots.
func collectPositionFees(m market.Market, p *position.Position, prices market.Prices, sizeDeltaUsd uint64, isPositiveImpact, isLiquidation bool) (*PositionFees, error) {
	isCollateralLong, err := p.IsCollateralLong(m.Meta())
	if err != nil {
		return nil, err
	}
	collateralPrice := prices.CollateralPrice(isCollateralLong).Pick(false)
	cfg := m.Config()

	fees := &PositionFees{}
	params := cfg.PositionFeeParams()
	fees.Order, err = params.OrderFees(collateralPrice, sizeDeltaUsd, isPositiveImpact)
	if err != nil {
		return nil, err
	}

	borrowingFeeUsd, err := p.PendingBorrowingFee(m)
	if err != nil {
		return nil, err
	}
	if borrowingFeeUsd > 0 {
		amount, ok := fixedpoint.MulDivCeil(borrowingFeeUsd, 1, collateralPrice)
		if !ok {
			return nil, engineerr.Computation("borrowing fee amount")
		}
		fees.BorrowingFeeAmount = amount
	}

	payable, claimableLong, claimableShort, err := p.PendingFundingFees(m)
	if err != nil {
		return nil, err
	}
	fees.FundingFeeAmount = payable
	fees.ClaimableFundingLongTokenAmount = claimableLong
	fees.ClaimableFundingShortTokenAmount = claimableShort

	if isLiquidation && cfg.LiquidationFeeFactor > 0 {
		feeUsd, ok := fixedpoint.ApplyFactor(sizeDeltaUsd, cfg.LiquidationFeeFactor)
		if !ok {
			return nil, engineerr.Computation("liquidation fee value")
		}
		amount, ok := fixedpoint.MulDivCeil(feeUsd, 1, collateralPrice)
		if !ok {
			return nil, engineerr.Computation("liquidation fee amount")
		}
		fees.LiquidationFeeAmount = amount
	}
	return fees, nil
}

// routePositionFees credits the receiver share to the claimable fee
// pool and everything the pool earns to the primary pool, all in the
// collateral token slot.
func routePositionFees(m market.Market, isCollateralLong bool, fees *PositionFees) error {
	if fees.Order.FeeReceiverAmount > 0 {
		claimable, err := m.Pool(pool.ClaimableFee)
		if err != nil {
			return err
		}
		receiver, ok := fixedpoint.ToSigned(fees.Order.FeeReceiverAmount)
		if !ok {
			return engineerr.Convert("fee receiver amount")
		}
		if err := claimable.ApplyDelta(isCollateralLong, receiver); err != nil {
			return err
		}
	}

	forPool := fees.Order.FeeAmountForPool
	for _, v := range [2]uint64{fees.BorrowingFeeAmount, fees.LiquidationFeeAmount} {
		next, ok := fixedpoint.Add(forPool, v)
		if !ok {
			return engineerr.Computation("pool fee amount")
		}
		forPool = next
	}
	if forPool == 0 {
		return nil
	}
	primary, err := m.Pool(pool.Primary)
	if err != nil {
		return err
	}
	delta, ok := fixedpoint.ToSigned(forPool)
	if !ok {
		return engineerr.Convert("pool fee amount")
	}
	return primary.ApplyDelta(isCollateralLong, delta)
}

// applyOpenInterestDelta adjusts the side's usd and token open
// interest pools, slotted by the position's collateral token.
func applyOpenInterestDelta(m market.Market, isLong, isCollateralLong bool, usdDelta, tokensDelta int64) error {
	oi, err := m.Pool(openInterestPool(isLong))
	if err != nil {
		return err
	}
	if err := oi.ApplyDelta(isCollateralLong, usdDelta); err != nil {
		return err
	}
	oiTokens, err := m.Pool(openInterestInTokensPool(isLong))
	if err != nil {
		return err
	}
	return oiTokens.ApplyDelta(isCollateralLong, tokensDelta)
}

// applyCollateralSumDelta tracks the aggregate collateral backing the
// side's positions.
func applyCollateralSumDelta(m market.Market, isLong, isCollateralLong bool, delta int64) error {
	sum, err := m.Pool(collateralSumPool(isLong))
	if err != nil {
		return err
	}
	return sum.ApplyDelta(isCollateralLong, delta)
}
