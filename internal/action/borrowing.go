package action

import (
	"PerpCore/internal/engineerr"
	"PerpCore/internal/fixedpoint"
	"PerpCore/internal/market"
	"PerpCore/internal/pool"
)

// UpdateBorrowingReport is the outcome of one borrowing state update.
type UpdateBorrowingReport struct {
	DurationInSeconds                  uint64
	NextCumulativeBorrowingFactorLong  uint64
	NextCumulativeBorrowingFactorShort uint64
}

// NextCumulativeBorrowingFactor returns the side's new cumulative.
func (r *UpdateBorrowingReport) NextCumulativeBorrowingFactor(isLong bool) uint64 {
	if isLong {
		return r.NextCumulativeBorrowingFactorLong
	}
	return r.NextCumulativeBorrowingFactorShort
}

// BorrowingFactorPerSecond derives the current per-second borrowing
// rate for one side from its reserved value against the pool.
func BorrowingFactorPerSecond(m market.Market, prices market.Prices, isLong bool) (uint64, error) {
	reserved, err := market.ReservedValue(m, prices, isLong)
	if err != nil {
		return 0, err
	}
	if reserved == 0 {
		return 0, nil
	}

	cfg := m.Config()
	if cfg.SkipBorrowingFeeForSmallerSide {
		oi, err := market.OpenInterest(m, isLong)
		if err != nil {
			return 0, err
		}
		oppositeOi, err := market.OpenInterest(m, !isLong)
		if err != nil {
			return 0, err
		}
		if oi < oppositeOi {
			return 0, nil
		}
	}

	poolValue, err := market.LiquidityPoolValue(m, prices, false)
	if err != nil {
		return 0, err
	}
	if poolValue == 0 {
		return 0, engineerr.Computation("borrowing factor with empty pool value")
	}

	reservedAfterExponent, ok := fixedpoint.ApplyExponentFactor(reserved, cfg.BorrowingFeeExponent.Get(isLong))
	if !ok {
		return 0, engineerr.Computation("reserved value exponent")
	}
	ratio, ok := fixedpoint.DivToFactor(reservedAfterExponent, poolValue, false)
	if !ok {
		return 0, engineerr.Computation("reserved to pool ratio")
	}
	perSecond, ok := fixedpoint.ApplyFactor(ratio, cfg.BorrowingFeeFactor.Get(isLong))
	if !ok {
		return 0, engineerr.Computation("borrowing factor per second")
	}
	return perSecond, nil
}

// UpdateBorrowingState advances the borrowing clock and accrues the
// elapsed borrowing factor on both sides.
func UpdateBorrowingState(m market.Market, prices market.Prices, now int64) (*UpdateBorrowingReport, error) {
	if err := prices.Validate(); err != nil {
		return nil, err
	}
	duration, err := market.JustPassedInSeconds(m, market.ClockBorrowing, now)
	if err != nil {
		return nil, err
	}

	report := &UpdateBorrowingReport{DurationInSeconds: duration}
	for _, isLong := range [2]bool{true, false} {
		next, err := accrueBorrowing(m, prices, isLong, duration)
		if err != nil {
			return nil, err
		}
		if isLong {
			report.NextCumulativeBorrowingFactorLong = next
		} else {
			report.NextCumulativeBorrowingFactorShort = next
		}
	}
	return report, nil
}

func accrueBorrowing(m market.Market, prices market.Prices, isLong bool, duration uint64) (uint64, error) {
	perSecond, err := BorrowingFactorPerSecond(m, prices, isLong)
	if err != nil {
		return 0, err
	}
	delta, ok := fixedpoint.Mul(perSecond, duration)
	if !ok {
		return 0, engineerr.Computation("borrowing factor delta")
	}

	borrowing, err := m.Pool(pool.BorrowingFactor)
	if err != nil {
		return 0, err
	}
	current, err := borrowing.Amount(isLong)
	if err != nil {
		return 0, err
	}
	next, ok := fixedpoint.Add(current, delta)
	if !ok {
		return 0, engineerr.Computation("next cumulative borrowing factor")
	}
	signedDelta, ok := fixedpoint.ToSigned(delta)
	if !ok {
		return 0, engineerr.Convert("borrowing factor delta")
	}
	if err := borrowing.ApplyDelta(isLong, signedDelta); err != nil {
		return 0, err
	}
	if delta > 0 {
		if err := accrueTotalBorrowing(m, isLong, delta); err != nil {
			return 0, err
		}
	}
	return next, nil
}

// The total borrowing pool tracks the usd owed by open positions; it
// grows with the open interest times the factor delta.
func accrueTotalBorrowing(m market.Market, isLong bool, factorDelta uint64) error {
	oi, err := market.OpenInterest(m, isLong)
	if err != nil {
		return err
	}
	owed, ok := fixedpoint.ApplyFactor(oi, factorDelta)
	if !ok {
		return engineerr.Computation("total borrowing delta")
	}
	if owed == 0 {
		return nil
	}
	total, err := m.Pool(pool.TotalBorrowing)
	if err != nil {
		return err
	}
	signed, ok := fixedpoint.ToSigned(owed)
	if !ok {
		return engineerr.Convert("total borrowing delta")
	}
	return total.ApplyDelta(isLong, signed)
}
