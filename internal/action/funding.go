package action

import (
	"PerpCore/internal/engineerr"
	"PerpCore/internal/fixedpoint"
	"PerpCore/internal/market"
	"PerpCore/internal/pool"
)

// UpdateFundingReport is the outcome of one funding state update. The
// factor is signed: positive means long positions pay short positions.
type UpdateFundingReport struct {
	DurationInSeconds          uint64
	NextFundingFactorPerSecond int64
	LongsPayShorts             bool
}

type fundingChange uint8

const (
	fundingNoChange fundingChange = iota
	fundingIncrease
	fundingDecrease
)

// nextFundingFactorPerSecond computes the signed funding rate for the
// elapsed interval from the open interest skew. With a zero increase
// factor the rate tracks the skew directly; otherwise it ramps toward
// the skew and decays inside the stable band.
func nextFundingFactorPerSecond(m market.Market, duration uint64) (int64, error) {
	oiLong, err := market.OpenInterest(m, true)
	if err != nil {
		return 0, err
	}
	oiShort, err := market.OpenInterest(m, false)
	if err != nil {
		return 0, err
	}
	total, ok := fixedpoint.Add(oiLong, oiShort)
	if !ok {
		return 0, engineerr.Computation("total open interest")
	}
	if total == 0 {
		return 0, nil
	}

	cfg := m.Config()
	diff := fixedpoint.Diff(oiLong, oiShort)
	// The exponent curves the usd diff, not the ratio; sub-unit values
	// would collapse to zero under the exponent.
	diffAfterExponent, ok := fixedpoint.ApplyExponentFactor(diff, cfg.FundingFeeExponent)
	if !ok {
		return 0, engineerr.Computation("open interest diff exponent")
	}
	diffFactor, ok := fixedpoint.DivToFactor(diffAfterExponent, total, false)
	if !ok {
		return 0, engineerr.Computation("open interest diff factor")
	}
	longsPayShorts := oiLong > oiShort

	if cfg.FundingIncreaseFactorPerSecond == 0 {
		magnitude, ok := fixedpoint.ApplyFactor(diffFactor, cfg.FundingFeeFactor)
		if !ok {
			return 0, engineerr.Computation("funding factor per second")
		}
		if magnitude > cfg.MaxFundingFactorPerSecond {
			magnitude = cfg.MaxFundingFactorPerSecond
		}
		return signFundingFactor(magnitude, longsPayShorts)
	}

	current := m.FundingFactorPerSecond()
	skewSameDirection := (current > 0 && longsPayShorts) || (current < 0 && !longsPayShorts)

	change := fundingIncrease
	if current == 0 && diff == 0 {
		change = fundingNoChange
	} else if skewSameDirection || current == 0 {
		switch {
		case diffFactor > cfg.ThresholdForStableFunding:
			change = fundingIncrease
		case diffFactor < cfg.ThresholdForDecreaseFunding:
			change = fundingDecrease
		default:
			change = fundingNoChange
		}
	}

	next := current
	switch change {
	case fundingIncrease:
		perSecond, ok := fixedpoint.ApplyFactor(diffFactor, cfg.FundingIncreaseFactorPerSecond)
		if !ok {
			return 0, engineerr.Computation("funding increase rate")
		}
		magnitude, ok := fixedpoint.Mul(perSecond, duration)
		if !ok {
			return 0, engineerr.Computation("funding increase delta")
		}
		delta, err := signFundingFactor(magnitude, longsPayShorts)
		if err != nil {
			return 0, err
		}
		next, ok = fixedpoint.SignedAdd(current, delta)
		if !ok {
			return 0, engineerr.Computation("next funding factor")
		}
	case fundingDecrease:
		magnitude, ok := fixedpoint.Mul(cfg.FundingDecreaseFactorPerSecond, duration)
		if !ok {
			return 0, engineerr.Computation("funding decrease delta")
		}
		if fixedpoint.SignedAbs(current) <= magnitude {
			next = 0
		} else if current > 0 {
			next = current - int64(magnitude)
		} else {
			next = current + int64(magnitude)
		}
	}

	return clampFundingFactor(next, cfg), nil
}

func signFundingFactor(magnitude uint64, longsPayShorts bool) (int64, error) {
	if longsPayShorts {
		signed, ok := fixedpoint.ToSigned(magnitude)
		if !ok {
			return 0, engineerr.Convert("funding factor")
		}
		return signed, nil
	}
	signed, ok := fixedpoint.ToOppositeSigned(magnitude)
	if !ok {
		return 0, engineerr.Convert("funding factor")
	}
	return signed, nil
}

func clampFundingFactor(value int64, cfg *market.Config) int64 {
	if value == 0 {
		return 0
	}
	magnitude := fixedpoint.SignedAbs(value)
	if magnitude < cfg.MinFundingFactorPerSecond {
		magnitude = cfg.MinFundingFactorPerSecond
	}
	if magnitude > cfg.MaxFundingFactorPerSecond {
		magnitude = cfg.MaxFundingFactorPerSecond
	}
	if value > 0 {
		return int64(magnitude)
	}
	return -int64(magnitude)
}

// UpdateFunding advances the funding clock, recomputes the funding
// rate from the open interest skew, and accrues the elapsed funding on
// the paying and receiving sides' per-size cumulatives.
func UpdateFunding(m market.Market, prices market.Prices, now int64) (*UpdateFundingReport, error) {
	if err := prices.Validate(); err != nil {
		return nil, err
	}
	duration, err := market.JustPassedInSeconds(m, market.ClockFunding, now)
	if err != nil {
		return nil, err
	}
	next, err := nextFundingFactorPerSecond(m, duration)
	if err != nil {
		return nil, err
	}
	m.SetFundingFactorPerSecond(next)

	report := &UpdateFundingReport{
		DurationInSeconds:          duration,
		NextFundingFactorPerSecond: next,
		LongsPayShorts:             next > 0,
	}
	if duration == 0 || next == 0 {
		return report, nil
	}
	if err := advanceFundingPerSize(m, prices, next, duration); err != nil {
		return nil, err
	}
	return report, nil
}

// advanceFundingPerSize accrues |factor| over duration onto the paying
// side's funding cumulative and the receiving side's claimable
// cumulative, one slot per market token. The claimable accrual is
// scaled by the open interest ratio so paid and claimable funding
// match in usd. Payer amounts round up against the min price and
// claimable amounts round down against the max price.
func advanceFundingPerSize(m market.Market, prices market.Prices, factor int64, duration uint64) error {
	payerIsLong := factor > 0
	payerOi, err := market.OpenInterest(m, payerIsLong)
	if err != nil {
		return err
	}
	if payerOi == 0 {
		return nil
	}
	receiverOi, err := market.OpenInterest(m, !payerIsLong)
	if err != nil {
		return err
	}

	elapsed, ok := fixedpoint.Mul(fixedpoint.SignedAbs(factor), duration)
	if !ok {
		return engineerr.Computation("elapsed funding factor")
	}
	var claimableElapsed uint64
	if receiverOi > 0 {
		claimableElapsed, ok = fixedpoint.MulDiv(elapsed, payerOi, receiverOi)
		if !ok {
			return engineerr.Computation("claimable funding factor")
		}
	}

	payerPool, err := m.Pool(fundingAmountPerSizePool(payerIsLong))
	if err != nil {
		return err
	}
	claimablePool, err := m.Pool(claimableFundingAmountPerSizePool(!payerIsLong))
	if err != nil {
		return err
	}
	for _, isTokenLong := range [2]bool{true, false} {
		price := prices.CollateralPrice(isTokenLong)
		perSize, ok := fixedpoint.MulDivCeil(elapsed, 1, price.Pick(false))
		if !ok {
			return engineerr.Computation("funding amount per size")
		}
		delta, ok := fixedpoint.ToSigned(perSize)
		if !ok {
			return engineerr.Convert("funding amount per size")
		}
		if err := payerPool.ApplyDelta(isTokenLong, delta); err != nil {
			return err
		}

		if receiverOi == 0 {
			continue
		}
		claimablePerSize, ok := fixedpoint.Div(claimableElapsed, price.Pick(true))
		if !ok {
			return engineerr.Computation("claimable funding amount per size")
		}
		claimableDelta, ok := fixedpoint.ToSigned(claimablePerSize)
		if !ok {
			return engineerr.Convert("claimable funding amount per size")
		}
		if err := claimablePool.ApplyDelta(isTokenLong, claimableDelta); err != nil {
			return err
		}
	}
	return nil
}

func fundingAmountPerSizePool(isLong bool) pool.Kind {
	if isLong {
		return pool.FundingAmountPerSizeLong
	}
	return pool.FundingAmountPerSizeShort
}

func claimableFundingAmountPerSizePool(isLong bool) pool.Kind {
	if isLong {
		return pool.ClaimableFundingAmountPerSizeLong
	}
	return pool.ClaimableFundingAmountPerSizeShort
}
