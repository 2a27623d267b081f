package action

import (
	"PerpCore/internal/engineerr"
	"PerpCore/internal/fixedpoint"
	"PerpCore/internal/market"
	"PerpCore/internal/pool"
	"PerpCore/internal/position"
)

// PositionCutKind selects the forced-close mode of a decrease.
type PositionCutKind uint8

const (
	CutNone PositionCutKind = iota
	CutLiquidate
	CutAdl
)

// PositionCut carries the cut mode and, for ADL, the usd size to cut.
type PositionCut struct {
	Kind         PositionCutKind
	SizeDeltaUsd uint64
}

// DecreasePositionParams are the caller-supplied inputs of a decrease.
// A zero acceptable price disables the price bound.
type DecreasePositionParams struct {
	CollateralWithdrawalAmount uint64
	SizeDeltaUsd               uint64
	AcceptablePrice            uint64
	Cut                        PositionCut
}

// Pnl is the realized pnl of a decrease: the value actually settled
// against the pool and the value before the trader pnl cap.
type Pnl struct {
	Pnl         int64
	UncappedPnl int64
}

// DecreasePositionReport is the outcome of one position decrease.
type DecreasePositionReport struct {
	Params            DecreasePositionParams
	SizeDeltaUsd      uint64
	SizeDeltaInTokens uint64
	ExecutionPrice    uint64
	PriceImpactValue  int64
	PriceImpactDiff   uint64
	Pnl               Pnl
	Fees              PositionFees

	ShouldRemove                 bool
	IsOutputTokenLong            bool
	OutputAmount                 uint64
	SecondaryOutputAmount        uint64
	WithdrawableCollateralAmount uint64

	Borrowing    *UpdateBorrowingReport
	Funding      *UpdateFundingReport
	Distribution *DistributePositionImpactReport
}

// DecreasePosition shrinks or closes a position, realizing pnl against
// the pool. Profit pays out in the pnl token of the side, everything
// else settles in the collateral token. Cuts force the size: Liquidate
// closes the whole position and Adl trims it back into the allowed
// pnl band.
func DecreasePosition(m market.Market, p *position.Position, prices market.Prices, params DecreasePositionParams, now int64) (*DecreasePositionReport, error) {
	if p.SizeInUsd == 0 {
		return nil, engineerr.InvalidArgument("empty position")
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

	sizeDelta, withdrawal, err := resolveDecreaseSize(m, p, prices, params)
	if err != nil {
		return nil, err
	}
	wholeClose := sizeDelta == p.SizeInUsd
	if wholeClose {
		withdrawal = 0
	}

	report := &DecreasePositionReport{
		Params:            params,
		SizeDeltaUsd:      sizeDelta,
		ShouldRemove:      wholeClose,
		IsOutputTokenLong: isCollateralLong,
		Borrowing:         borrowing,
		Funding:           funding,
		Distribution:      distribution,
	}

	if err := executeSizeDecrease(m, p, prices, params, sizeDelta, report); err != nil {
		return nil, err
	}
	if err := processDecreaseCollateral(m, p, prices, params, withdrawal, report); err != nil {
		return nil, err
	}

	signedSize, ok := fixedpoint.ToOppositeSigned(sizeDelta)
	if !ok {
		return nil, engineerr.Convert("size delta usd")
	}
	signedTokens, ok := fixedpoint.ToOppositeSigned(report.SizeDeltaInTokens)
	if !ok {
		return nil, engineerr.Convert("size delta in tokens")
	}
	if err := applyOpenInterestDelta(m, p.IsLong, isCollateralLong, signedSize, signedTokens); err != nil {
		return nil, err
	}

	p.SizeInUsd -= sizeDelta
	p.SizeInTokens, ok = fixedpoint.Sub(p.SizeInTokens, report.SizeDeltaInTokens)
	if !ok {
		return nil, engineerr.Computation("position size in tokens")
	}
	if err := p.UpdateSnapshots(m); err != nil {
		return nil, err
	}
	p.DecreasedAt = now
	p.TradeID, err = m.NextTradeID()
	if err != nil {
		return nil, err
	}

	if !report.ShouldRemove {
		if err := validatePositionHealth(m, p, prices); err != nil {
			return nil, err
		}
	}
	return report, nil
}

// resolveDecreaseSize turns the order plus cut mode into the usd size
// to remove and the collateral to withdraw.
func resolveDecreaseSize(m market.Market, p *position.Position, prices market.Prices, params DecreasePositionParams) (sizeDelta, withdrawal uint64, err error) {
	switch params.Cut.Kind {
	case CutNone:
		if params.SizeDeltaUsd > p.SizeInUsd {
			return 0, 0, engineerr.InvalidArgument("decrease size exceeds position size")
		}
		withdrawal = params.CollateralWithdrawalAmount
		if withdrawal > p.CollateralAmount {
			withdrawal = p.CollateralAmount
		}
		return params.SizeDeltaUsd, withdrawal, nil

	case CutLiquidate:
		liquidatable, err := p.IsLiquidatable(m, prices)
		if err != nil {
			return 0, 0, err
		}
		if !liquidatable {
			return 0, 0, engineerr.ErrPositionNotLiquidatable
		}
		return p.SizeInUsd, 0, nil

	case CutAdl:
		sizeDelta, err := clampAdlSize(m, p, prices, params.Cut.SizeDeltaUsd)
		if err != nil {
			return 0, 0, err
		}
		return sizeDelta, 0, nil

	default:
		return 0, 0, engineerr.InvalidArgument("unknown position cut kind")
	}
}

// clampAdlSize validates that the side is over the ADL pnl threshold
// and clamps the cut so the post-decrease pnl factor stays at or above
// the configured floor.
func clampAdlSize(m market.Market, p *position.Position, prices market.Prices, requested uint64) (uint64, error) {
	if !m.IsAdlEnabled(p.IsLong) {
		return 0, engineerr.ErrAdlNotRequired
	}
	factor, err := market.PnlFactor(m, prices, p.IsLong, true)
	if err != nil {
		return 0, err
	}
	cfg := m.Config()
	maxFactor := cfg.MaxPnlFactorForAdl.Get(p.IsLong)
	if factor <= 0 || uint64(factor) <= maxFactor {
		return 0, engineerr.ErrAdlNotRequired
	}

	sizeDelta := requested
	if sizeDelta > p.SizeInUsd {
		sizeDelta = p.SizeInUsd
	}
	minAfter := cfg.MinPnlFactorAfterAdl.Get(p.IsLong)
	current := uint64(factor)
	if minAfter >= current {
		return 0, engineerr.ErrAdlNotRequired
	}
	// Side pnl scales with side size, so the factor drops linearly with
	// the cut size. Cap the cut at the size that lands on the floor.
	maxCut, ok := fixedpoint.MulDiv(p.SizeInUsd, current-minAfter, current)
	if !ok {
		return 0, engineerr.Computation("adl size clamp")
	}
	if sizeDelta > maxCut {
		sizeDelta = maxCut
	}
	if sizeDelta == 0 {
		return 0, engineerr.ErrAdlNotRequired
	}
	return sizeDelta, nil
}

// executeSizeDecrease prices the size removal: proportional token
// delta, impact against the open interest imbalance with the decrease
// cap applied, realized pnl with the trader cap, and the execution
// price check.
func executeSizeDecrease(m market.Market, p *position.Position, prices market.Prices, params DecreasePositionParams, sizeDelta uint64, report *DecreasePositionReport) error {
	if sizeDelta == 0 {
		report.ExecutionPrice = prices.IndexTokenPrice.Pick(!p.IsLong)
		return nil
	}

	var sizeDeltaInTokens uint64
	var ok bool
	if p.IsLong {
		sizeDeltaInTokens, ok = fixedpoint.MulDiv(p.SizeInTokens, sizeDelta, p.SizeInUsd)
	} else {
		sizeDeltaInTokens, ok = fixedpoint.MulDivCeil(p.SizeInTokens, sizeDelta, p.SizeInUsd)
	}
	if !ok {
		return engineerr.Computation("size delta in tokens")
	}
	report.SizeDeltaInTokens = sizeDeltaInTokens

	negSize, ok := fixedpoint.ToOppositeSigned(sizeDelta)
	if !ok {
		return engineerr.Convert("size delta usd")
	}
	impactValue, err := positionPriceImpact(m, p.IsLong, negSize)
	if err != nil {
		return err
	}
	impactValue, diff, err := capDecreaseImpact(m.Config(), sizeDelta, impactValue)
	if err != nil {
		return err
	}
	report.PriceImpactValue = impactValue
	report.PriceImpactDiff = diff
	if _, err := settlePositionImpact(m, impactValue, prices.IndexTokenPrice); err != nil {
		return err
	}

	indexPrice := prices.IndexTokenPrice.Pick(!p.IsLong)
	closedValue, ok := fixedpoint.Mul(sizeDeltaInTokens, indexPrice)
	if !ok {
		return engineerr.Computation("closed value")
	}
	realized, ok := fixedpoint.ToSigned(closedValue)
	if !ok {
		return engineerr.Convert("closed value")
	}
	opened, ok := fixedpoint.ToSigned(sizeDelta)
	if !ok {
		return engineerr.Convert("size delta usd")
	}
	var basePnl int64
	if p.IsLong {
		basePnl, ok = fixedpoint.SignedSub(realized, opened)
	} else {
		basePnl, ok = fixedpoint.SignedSub(opened, realized)
	}
	if !ok {
		return engineerr.Computation("realized pnl")
	}
	uncapped, ok := fixedpoint.SignedAdd(basePnl, impactValue)
	if !ok {
		return engineerr.Computation("realized pnl with impact")
	}
	capped, err := capTraderPnl(m, prices, p.IsLong, uncapped)
	if err != nil {
		return err
	}
	report.Pnl = Pnl{Pnl: capped, UncappedPnl: uncapped}

	// The value the trader actually settles per token.
	var settled int64
	if p.IsLong {
		settled, ok = fixedpoint.SignedAdd(realized, impactValue)
	} else {
		settled, ok = fixedpoint.SignedSub(realized, impactValue)
	}
	if !ok || settled < 0 {
		return engineerr.Computation("settled value")
	}
	executionPrice, ok := fixedpoint.Div(uint64(settled), sizeDeltaInTokens)
	if !ok {
		return engineerr.Computation("execution price")
	}
	report.ExecutionPrice = executionPrice
	return checkAcceptablePrice(executionPrice, params.AcceptablePrice, p.IsLong, false)
}

// capDecreaseImpact bounds the negative impact a decrease absorbs. The
// excess becomes the price impact diff, withheld from the output and
// held as claimable.
func capDecreaseImpact(cfg *market.Config, sizeDelta uint64, impactValue int64) (int64, uint64, error) {
	if impactValue >= 0 || cfg.MaxPositionImpactFactorForDecrease == 0 {
		return impactValue, 0, nil
	}
	maxNegative, ok := fixedpoint.ApplyFactor(sizeDelta, cfg.MaxPositionImpactFactorForDecrease)
	if !ok {
		return 0, 0, engineerr.Computation("max decrease impact")
	}
	magnitude := fixedpoint.SignedAbs(impactValue)
	if magnitude <= maxNegative {
		return impactValue, 0, nil
	}
	capped, ok := fixedpoint.ToOppositeSigned(maxNegative)
	if !ok {
		return 0, 0, engineerr.Convert("capped impact")
	}
	return capped, magnitude - maxNegative, nil
}

// capTraderPnl bounds a profit by the trader pnl factor applied to the
// side's primary pool value.
func capTraderPnl(m market.Market, prices market.Prices, isLong bool, pnl int64) (int64, error) {
	if pnl <= 0 {
		return pnl, nil
	}
	primary, err := m.Pool(pool.Primary)
	if err != nil {
		return 0, err
	}
	var poolValue uint64
	if isLong {
		poolValue, err = primary.LongUsdValue(prices.LongTokenPrice.Min)
	} else {
		poolValue, err = primary.ShortUsdValue(prices.ShortTokenPrice.Min)
	}
	if err != nil {
		return 0, err
	}
	maxFactor := m.Config().MaxPnlFactorForTrader.Get(isLong)
	if maxFactor == 0 {
		return pnl, nil
	}
	maxPnl, ok := fixedpoint.ApplyFactor(poolValue, maxFactor)
	if !ok {
		return 0, engineerr.Computation("max trader pnl")
	}
	capped, ok := fixedpoint.ToSigned(maxPnl)
	if !ok {
		return 0, engineerr.Convert("max trader pnl")
	}
	if pnl > capped {
		return capped, nil
	}
	return pnl, nil
}

// processDecreaseCollateral settles pnl, fees, the impact diff, and
// the withdrawal against the position's collateral, filling in the
// output amounts.
func processDecreaseCollateral(m market.Market, p *position.Position, prices market.Prices, params DecreasePositionParams, withdrawal uint64, report *DecreasePositionReport) error {
	isLiquidation := params.Cut.Kind == CutLiquidate
	isCollateralLong := report.IsOutputTokenLong
	collateralPrice := prices.CollateralPrice(isCollateralLong)

	fees, err := collectPositionFees(m, p, prices, report.SizeDeltaUsd, report.PriceImpactValue > 0, isLiquidation)
	if err != nil {
		return err
	}
	report.Fees = *fees

	remaining := p.CollateralAmount
	primary, err := m.Pool(pool.Primary)
	if err != nil {
		return err
	}

	// Profit pays out of the pnl token side of the pool; losses refill
	// the collateral side.
	if report.Pnl.Pnl > 0 {
		pnlTokenPrice := prices.CollateralPrice(p.IsLong).Pick(true)
		profitTokens, ok := fixedpoint.Div(uint64(report.Pnl.Pnl), pnlTokenPrice)
		if !ok {
			return engineerr.Computation("profit amount")
		}
		signed, ok := fixedpoint.ToOppositeSigned(profitTokens)
		if !ok {
			return engineerr.Convert("profit amount")
		}
		if err := primary.ApplyDelta(p.IsLong, signed); err != nil {
			return err
		}
		if p.IsLong == isCollateralLong {
			report.OutputAmount, ok = fixedpoint.Add(report.OutputAmount, profitTokens)
		} else {
			report.SecondaryOutputAmount, ok = fixedpoint.Add(report.SecondaryOutputAmount, profitTokens)
		}
		if !ok {
			return engineerr.Computation("output amount")
		}
	} else if report.Pnl.Pnl < 0 {
		lossAmount, ok := fixedpoint.MulDivCeil(fixedpoint.SignedAbs(report.Pnl.Pnl), 1, collateralPrice.Min)
		if !ok {
			return engineerr.Computation("loss amount")
		}
		if lossAmount > remaining {
			if !isLiquidation {
				return engineerr.ErrMinCollateralNotMet
			}
			lossAmount = remaining
		}
		remaining -= lossAmount
		signed, ok := fixedpoint.ToSigned(lossAmount)
		if !ok {
			return engineerr.Convert("loss amount")
		}
		if err := primary.ApplyDelta(isCollateralLong, signed); err != nil {
			return err
		}
	}

	remaining, err = settleDecreaseFees(m, isCollateralLong, fees, remaining, isLiquidation)
	if err != nil {
		return err
	}

	if report.PriceImpactDiff > 0 {
		diffAmount, ok := fixedpoint.MulDivCeil(report.PriceImpactDiff, 1, collateralPrice.Min)
		if !ok {
			return engineerr.Computation("impact diff amount")
		}
		if diffAmount > remaining {
			diffAmount = remaining
		}
		remaining -= diffAmount
		signed, ok := fixedpoint.ToSigned(diffAmount)
		if !ok {
			return engineerr.Convert("impact diff amount")
		}
		claimable, err := m.Pool(pool.ClaimableFee)
		if err != nil {
			return err
		}
		if err := claimable.ApplyDelta(isCollateralLong, signed); err != nil {
			return err
		}
	}

	if withdrawal > remaining {
		withdrawal = remaining
	}
	remaining -= withdrawal
	report.WithdrawableCollateralAmount = withdrawal
	var ok bool
	report.OutputAmount, ok = fixedpoint.Add(report.OutputAmount, withdrawal)
	if !ok {
		return engineerr.Computation("output amount")
	}

	if report.ShouldRemove {
		report.OutputAmount, ok = fixedpoint.Add(report.OutputAmount, remaining)
		if !ok {
			return engineerr.Computation("output amount")
		}
		remaining = 0
	}

	netCollateral, ok := signedNetChange(p.CollateralAmount, remaining)
	if !ok {
		return engineerr.Convert("collateral change")
	}
	if err := applyCollateralSumDelta(m, p.IsLong, isCollateralLong, netCollateral); err != nil {
		return err
	}
	p.CollateralAmount = remaining
	return nil
}

// settleDecreaseFees pays the collected fees out of the remaining
// collateral. A liquidation pays what the collateral still covers, in
// pool-first order; any other decrease must cover the full cost.
func settleDecreaseFees(m market.Market, isCollateralLong bool, fees *PositionFees, remaining uint64, isLiquidation bool) (uint64, error) {
	cost, err := fees.TotalCostAmount()
	if err != nil {
		return 0, err
	}
	if cost <= remaining {
		if err := routePositionFees(m, isCollateralLong, fees); err != nil {
			return 0, err
		}
		return remaining - cost, nil
	}
	if !isLiquidation {
		return 0, engineerr.ErrMinCollateralNotMet
	}

	// Insolvent close: the pool absorbs the shortfall. Pay the pool
	// share first and drop the receiver share if nothing is left.
	scaled := *fees
	pay := func(amount uint64) uint64 {
		if amount > remaining {
			amount = remaining
		}
		remaining -= amount
		return amount
	}
	scaled.Order.FeeAmountForPool = pay(scaled.Order.FeeAmountForPool)
	scaled.BorrowingFeeAmount = pay(scaled.BorrowingFeeAmount)
	scaled.LiquidationFeeAmount = pay(scaled.LiquidationFeeAmount)
	scaled.FundingFeeAmount = pay(scaled.FundingFeeAmount)
	scaled.Order.FeeReceiverAmount = pay(scaled.Order.FeeReceiverAmount)
	if err := routePositionFees(m, isCollateralLong, &scaled); err != nil {
		return 0, err
	}
	return 0, nil
}
