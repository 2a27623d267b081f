// Package position models a single perp position and the fee accrual
// against its market snapshots.
package position

import (
	"PerpCore/internal/engineerr"
	"PerpCore/internal/fixedpoint"
	"PerpCore/internal/market"
	"PerpCore/internal/pool"
)

// Position is one trader's exposure on one side of a market. The
// snapshot fields record the market cumulatives at the last touch;
// fees accrue as the difference between the market's current
// cumulatives and the snapshots.
type Position struct {
	Owner           string
	MarketToken     string
	CollateralToken string
	IsLong          bool

	SizeInUsd        uint64
	SizeInTokens     uint64
	CollateralAmount uint64

	BorrowingFactor                    uint64
	FundingFeeAmountPerSize            uint64
	ClaimableFundingAmountPerSizeLong  uint64
	ClaimableFundingAmountPerSizeShort uint64

	IncreasedAt int64
	DecreasedAt int64
	TradeID     uint64
}

// IsEmpty reports whether the position can be destroyed.
func (p *Position) IsEmpty() bool {
	return p.SizeInUsd == 0 && p.CollateralAmount == 0
}

// IsCollateralLong reports whether the collateral is the market's long
// token.
func (p *Position) IsCollateralLong(meta market.Meta) (bool, error) {
	isLong, ok := meta.IsLongToken(p.CollateralToken)
	if !ok {
		return false, engineerr.InvalidArgument("collateral token does not belong to the market")
	}
	return isLong, nil
}

func borrowingPoolSide(isLong bool) bool { return isLong }

// CumulativeBorrowingFactor reads the market's borrowing cumulative
// for the position's side.
func CumulativeBorrowingFactor(m market.Market, isLong bool) (uint64, error) {
	p, err := m.Pool(pool.BorrowingFactor)
	if err != nil {
		return 0, err
	}
	return p.Amount(borrowingPoolSide(isLong))
}

// PendingBorrowingFee returns the usd borrowing fee accrued since the
// position's snapshot.
func (p *Position) PendingBorrowingFee(m market.Market) (uint64, error) {
	cumulative, err := CumulativeBorrowingFactor(m, p.IsLong)
	if err != nil {
		return 0, err
	}
	delta, ok := fixedpoint.Sub(cumulative, p.BorrowingFactor)
	if !ok {
		return 0, engineerr.Computation("borrowing factor receded")
	}
	fee, ok := fixedpoint.ApplyFactor(p.SizeInUsd, delta)
	if !ok {
		return 0, engineerr.Computation("borrowing fee value")
	}
	return fee, nil
}

func fundingPool(isLong bool) pool.Kind {
	if isLong {
		return pool.FundingAmountPerSizeLong
	}
	return pool.FundingAmountPerSizeShort
}

func claimableFundingPool(isLong bool) pool.Kind {
	if isLong {
		return pool.ClaimableFundingAmountPerSizeLong
	}
	return pool.ClaimableFundingAmountPerSizeShort
}

// FundingAmountPerSize reads the market's funding cumulative for the
// position's side, in units of the given collateral side.
func FundingAmountPerSize(m market.Market, isLong, isCollateralLong bool) (uint64, error) {
	p, err := m.Pool(fundingPool(isLong))
	if err != nil {
		return 0, err
	}
	return p.Amount(isCollateralLong)
}

// ClaimableFundingAmountPerSize reads the claimable funding cumulative
// for the position's side, in units of the given token side.
func ClaimableFundingAmountPerSize(m market.Market, isLong, isTokenLong bool) (uint64, error) {
	p, err := m.Pool(claimableFundingPool(isLong))
	if err != nil {
		return 0, err
	}
	return p.Amount(isTokenLong)
}

func perSizeToAmount(sizeInUsd, deltaPerSize uint64) (uint64, error) {
	amount, ok := fixedpoint.MulDiv(sizeInUsd, deltaPerSize, fixedpoint.Unit)
	if !ok {
		return 0, engineerr.Computation("funding amount from per-size delta")
	}
	return amount, nil
}

// PendingFundingFees returns the funding the position owes in its
// collateral token and the funding it can claim in each market token,
// all accrued since the snapshots.
func (p *Position) PendingFundingFees(m market.Market) (payable, claimableLong, claimableShort uint64, err error) {
	isCollateralLong, err := p.IsCollateralLong(m.Meta())
	if err != nil {
		return 0, 0, 0, err
	}

	perSize, err := FundingAmountPerSize(m, p.IsLong, isCollateralLong)
	if err != nil {
		return 0, 0, 0, err
	}
	delta, ok := fixedpoint.Sub(perSize, p.FundingFeeAmountPerSize)
	if !ok {
		return 0, 0, 0, engineerr.Computation("funding per size receded")
	}
	payable, err = perSizeToAmount(p.SizeInUsd, delta)
	if err != nil {
		return 0, 0, 0, err
	}

	snapshots := [2]uint64{p.ClaimableFundingAmountPerSizeLong, p.ClaimableFundingAmountPerSizeShort}
	claimable := [2]uint64{}
	for i, isTokenLong := range [2]bool{true, false} {
		perSize, err := ClaimableFundingAmountPerSize(m, p.IsLong, isTokenLong)
		if err != nil {
			return 0, 0, 0, err
		}
		delta, ok := fixedpoint.Sub(perSize, snapshots[i])
		if !ok {
			return 0, 0, 0, engineerr.Computation("claimable funding per size receded")
		}
		claimable[i], err = perSizeToAmount(p.SizeInUsd, delta)
		if err != nil {
			return 0, 0, 0, err
		}
	}
	return payable, claimable[0], claimable[1], nil
}

// UpdateSnapshots refreshes every cumulative snapshot to the market's
// current values. Call after fees for the elapsed interval are settled.
func (p *Position) UpdateSnapshots(m market.Market) error {
	isCollateralLong, err := p.IsCollateralLong(m.Meta())
	if err != nil {
		return err
	}
	borrowing, err := CumulativeBorrowingFactor(m, p.IsLong)
	if err != nil {
		return err
	}
	funding, err := FundingAmountPerSize(m, p.IsLong, isCollateralLong)
	if err != nil {
		return err
	}
	claimableLong, err := ClaimableFundingAmountPerSize(m, p.IsLong, true)
	if err != nil {
		return err
	}
	claimableShort, err := ClaimableFundingAmountPerSize(m, p.IsLong, false)
	if err != nil {
		return err
	}
	p.BorrowingFactor = borrowing
	p.FundingFeeAmountPerSize = funding
	p.ClaimableFundingAmountPerSizeLong = claimableLong
	p.ClaimableFundingAmountPerSizeShort = claimableShort
	return nil
}

// PnlValue returns the signed usd pnl of the position at the given
// index price, and the token delta it corresponds to.
func (p *Position) PnlValue(indexPrice uint64) (int64, error) {
	currentValue, ok := fixedpoint.Mul(p.SizeInTokens, indexPrice)
	if !ok {
		return 0, engineerr.Computation("position value")
	}
	current, ok := fixedpoint.ToSigned(currentValue)
	if !ok {
		return 0, engineerr.Convert("position value")
	}
	opened, ok := fixedpoint.ToSigned(p.SizeInUsd)
	if !ok {
		return 0, engineerr.Convert("position size in usd")
	}
	if p.IsLong {
		pnl, ok := fixedpoint.SignedSub(current, opened)
		if !ok {
			return 0, engineerr.Computation("long position pnl")
		}
		return pnl, nil
	}
	pnl, ok := fixedpoint.SignedSub(opened, current)
	if !ok {
		return 0, engineerr.Computation("short position pnl")
	}
	return pnl, nil
}

// CollateralValue prices the collateral at the min collateral price.
func (p *Position) CollateralValue(m market.Market, prices market.Prices) (uint64, error) {
	isCollateralLong, err := p.IsCollateralLong(m.Meta())
	if err != nil {
		return 0, err
	}
	value, ok := fixedpoint.Mul(p.CollateralAmount, prices.CollateralPrice(isCollateralLong).Min)
	if !ok {
		return 0, engineerr.Computation("collateral value")
	}
	return value, nil
}

// IsLiquidatable reports whether the position no longer meets the
// collateral requirements, pricing in pending fees and pnl.
func (p *Position) IsLiquidatable(m market.Market, prices market.Prices) (bool, error) {
	collateralValue, err := p.CollateralValue(m, prices)
	if err != nil {
		return false, err
	}
	pnl, err := p.PnlValue(prices.IndexTokenPrice.Pick(!p.IsLong))
	if err != nil {
		return false, err
	}
	borrowingFee, err := p.PendingBorrowingFee(m)
	if err != nil {
		return false, err
	}

	remaining, ok := fixedpoint.ToSigned(collateralValue)
	if !ok {
		return false, engineerr.Convert("collateral value")
	}
	remaining, ok = fixedpoint.SignedAdd(remaining, pnl)
	if !ok {
		return false, engineerr.Computation("collateral after pnl")
	}
	signedFee, ok := fixedpoint.ToSigned(borrowingFee)
	if !ok {
		return false, engineerr.Convert("borrowing fee")
	}
	remaining, ok = fixedpoint.SignedSub(remaining, signedFee)
	if !ok {
		return false, engineerr.Computation("collateral after fees")
	}

	cfg := m.Config()
	if remaining <= 0 {
		return true, nil
	}
	value := uint64(remaining)
	if value < cfg.MinCollateralValue {
		return true, nil
	}
	minByFactor, ok := fixedpoint.ApplyFactor(p.SizeInUsd, cfg.MinCollateralFactor)
	if !ok {
		return false, engineerr.Computation("min collateral by factor")
	}
	return value < minByFactor, nil
}

// ValidateLeverage checks the position size against the configured max
// leverage for the given remaining collateral value.
func ValidateLeverage(cfg *market.Config, sizeInUsd, collateralValue uint64) error {
	if cfg.MaxLeverageFactor == 0 {
		return nil
	}
	if collateralValue == 0 {
		return engineerr.ErrMaxLeverageExceeded
	}
	leverage, ok := fixedpoint.DivToFactor(sizeInUsd, collateralValue, false)
	if !ok {
		return engineerr.Computation("leverage factor")
	}
	if leverage > cfg.MaxLeverageFactor {
		return engineerr.ErrMaxLeverageExceeded
	}
	return nil
}
