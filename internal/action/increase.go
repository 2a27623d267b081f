package action

import (
	"PerpCore/internal/engineerr"
	"PerpCore/internal/fixedpoint"
	"PerpCore/internal/market"
	"PerpCore/internal/position"
)

// IncreasePositionParams are the caller-supplied inputs of an increase.
// A zero acceptable price disables the price bound.
type IncreasePositionParams struct {
	CollateralDeltaAmount uint64
	SizeDeltaUsd          uint64
	AcceptablePrice       uint64
}

// IncreasePositionReport is the outcome of one position increase.
type IncreasePositionReport struct {
	Params            IncreasePositionParams
	ExecutionPrice    uint64
	PriceImpactValue  int64
	PriceImpactAmount int64
	SizeDeltaInTokens uint64
	Fees              PositionFees
	Borrowing         *UpdateBorrowingReport
	Funding           *UpdateFundingReport
	Distribution      *DistributePositionImpactReport
}

// IncreasePosition opens or grows a position. It settles everything
// pending against the position first, charges the order against the
// open interest imbalance, and leaves the position's snapshots at the
// market's current cumulatives.
func IncreasePosition(m market.Market, p *position.Position, prices market.Prices, params IncreasePositionParams, now int64) (*IncreasePositionReport, error) {
	if params.CollateralDeltaAmount == 0 && params.SizeDeltaUsd == 0 {
		return nil, engineerr.InvalidArgument("empty increase")
	}
	if err := prices.Validate(); err != nil {
		return nil, err
	}
	isCollateralLong, err := p.IsCollateralLong(m.Meta())
	if err != nil {
		return nil, err
	}

	borrowing, err := UpdateBorrowingState(m, prices, now)
	if err != nil {
		return nil, err
	}
	funding, err := UpdateFunding(m, prices, now)
	if err != nil {
		return nil, err
	}
	distribution, err := DistributePositionImpact(m, now)
	if err != nil {
		return nil, err
	}

	report := &IncreasePositionReport{
		Params:         params,
		ExecutionPrice: prices.IndexTokenPrice.Pick(p.IsLong),
		Borrowing:      borrowing,
		Funding:        funding,
		Distribution:   distribution,
	}
	if params.SizeDeltaUsd > 0 {
		if err := executeSizeIncrease(m, p, prices, params, report); err != nil {
			return nil, err
		}
	}

	fees, err := collectPositionFees(m, p, prices, params.SizeDeltaUsd, report.PriceImpactValue > 0, false)
	if err != nil {
		return nil, err
	}
	report.Fees = *fees
	cost, err := fees.TotalCostAmount()
	if err != nil {
		return nil, err
	}
	collateral, ok := fixedpoint.Add(p.CollateralAmount, params.CollateralDeltaAmount)
	if !ok {
		return nil, engineerr.Computation("collateral after deposit")
	}
	collateral, ok = fixedpoint.Sub(collateral, cost)
	if !ok {
		return nil, engineerr.ErrMinCollateralNotMet
	}
	if err := routePositionFees(m, isCollateralLong, fees); err != nil {
		return nil, err
	}

	netCollateral, ok := signedNetChange(p.CollateralAmount, collateral)
	if !ok {
		return nil, engineerr.Convert("collateral change")
	}
	if err := applyCollateralSumDelta(m, p.IsLong, isCollateralLong, netCollateral); err != nil {
		return nil, err
	}

	p.CollateralAmount = collateral
	p.SizeInUsd, ok = fixedpoint.Add(p.SizeInUsd, params.SizeDeltaUsd)
	if !ok {
		return nil, engineerr.Computation("position size in usd")
	}
	p.SizeInTokens, ok = fixedpoint.Add(p.SizeInTokens, report.SizeDeltaInTokens)
	if !ok {
		return nil, engineerr.Computation("position size in tokens")
	}
	if err := p.UpdateSnapshots(m); err != nil {
		return nil, err
	}
	p.IncreasedAt = now
	p.TradeID, err = m.NextTradeID()
	if err != nil {
		return nil, err
	}

	if err := validateIncreasedMarket(m, prices, p.IsLong); err != nil {
		return nil, err
	}
	if err := validatePositionHealth(m, p, prices); err != nil {
		return nil, err
	}
	return report, nil
}

// executeSizeIncrease prices the size delta through the impact pool,
// checks the acceptable price, and grows the open interest pools.
func executeSizeIncrease(m market.Market, p *position.Position, prices market.Prices, params IncreasePositionParams, report *IncreasePositionReport) error {
	signedSize, ok := fixedpoint.ToSigned(params.SizeDeltaUsd)
	if !ok {
		return engineerr.Convert("size delta usd")
	}
	impactValue, err := positionPriceImpact(m, p.IsLong, signedSize)
	if err != nil {
		return err
	}
	impactAmount, err := settlePositionImpact(m, impactValue, prices.IndexTokenPrice)
	if err != nil {
		return err
	}
	report.PriceImpactValue = impactValue
	report.PriceImpactAmount = impactAmount

	// Longs round token amounts down, shorts round up; either way the
	// rounding loss stays with the pool.
	indexPrice := prices.IndexTokenPrice.Pick(p.IsLong)
	var baseTokens uint64
	if p.IsLong {
		baseTokens, ok = fixedpoint.Div(params.SizeDeltaUsd, indexPrice)
	} else {
		baseTokens, ok = fixedpoint.MulDivCeil(params.SizeDeltaUsd, 1, indexPrice)
	}
	if !ok {
		return engineerr.Computation("base size in tokens")
	}

	tokenImpact := impactAmount
	if !p.IsLong {
		tokenImpact, ok = fixedpoint.Neg(tokenImpact)
		if !ok {
			return engineerr.Computation("token impact")
		}
	}
	sizeDeltaInTokens, ok := fixedpoint.AddDelta(baseTokens, tokenImpact)
	if !ok {
		return engineerr.Computation("size delta in tokens")
	}
	if sizeDeltaInTokens == 0 {
		return engineerr.Computation("zero size delta in tokens")
	}
	report.SizeDeltaInTokens = sizeDeltaInTokens

	executionPrice, ok := fixedpoint.Div(params.SizeDeltaUsd, sizeDeltaInTokens)
	if !ok {
		return engineerr.Computation("execution price")
	}
	report.ExecutionPrice = executionPrice
	if err := checkAcceptablePrice(executionPrice, params.AcceptablePrice, p.IsLong, true); err != nil {
		return err
	}

	isCollateralLong, err := p.IsCollateralLong(m.Meta())
	if err != nil {
		return err
	}
	signedTokens, ok := fixedpoint.ToSigned(sizeDeltaInTokens)
	if !ok {
		return engineerr.Convert("size delta in tokens")
	}
	return applyOpenInterestDelta(m, p.IsLong, isCollateralLong, signedSize, signedTokens)
}

func validateIncreasedMarket(m market.Market, prices market.Prices, isLong bool) error {
	if err := market.ValidateReserve(m, prices, isLong); err != nil {
		return err
	}
	if err := market.ValidateOpenInterestReserve(m, prices, isLong); err != nil {
		return err
	}
	return market.ValidateOpenInterest(m, isLong)
}

func validatePositionHealth(m market.Market, p *position.Position, prices market.Prices) error {
	collateralValue, err := p.CollateralValue(m, prices)
	if err != nil {
		return err
	}
	cfg := m.Config()
	if collateralValue < cfg.MinCollateralValue {
		return engineerr.ErrMinCollateralNotMet
	}
	minByFactor, ok := fixedpoint.ApplyFactor(p.SizeInUsd, cfg.MinCollateralFactor)
	if !ok {
		return engineerr.Computation("min collateral by factor")
	}
	if collateralValue < minByFactor {
		return engineerr.ErrMinCollateralNotMet
	}
	return position.ValidateLeverage(cfg, p.SizeInUsd, collateralValue)
}

// signedNetChange returns after-before as a signed delta.
func signedNetChange(before, after uint64) (int64, bool) {
	if after >= before {
		return fixedpoint.ToSigned(after - before)
	}
	delta, ok := fixedpoint.ToSigned(before - after)
	if !ok {
		return 0, false
	}
	return -delta, true
}
