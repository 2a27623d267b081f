package action

import (
	"PerpCore/internal/engineerr"
	"PerpCore/internal/fixedpoint"
	"PerpCore/internal/market"
	"PerpCore/internal/pool"
)

// DistributePositionImpactReport is the outcome of one position impact
// pool distribution.
type DistributePositionImpactReport struct {
	DurationInSeconds            uint64
	DistributionAmount           uint64
	NextPositionImpactPoolAmount uint64
}

// PositionImpactPoolAmount returns the index token amount currently
// held by the position impact pool.
func PositionImpactPoolAmount(m market.Market) (uint64, error) {
	impact, err := m.Pool(pool.PositionImpact)
	if err != nil {
		return 0, err
	}
	long, err := impact.LongAmount()
	if err != nil {
		return 0, err
	}
	short, err := impact.ShortAmount()
	if err != nil {
		return 0, err
	}
	total, ok := fixedpoint.Add(long, short)
	if !ok {
		return 0, engineerr.Computation("position impact pool amount")
	}
	return total, nil
}

// pendingPositionImpactDistribution computes how much of the impact
// pool drips back to liquidity over the elapsed duration. The amount
// never takes the pool below its configured floor.
func pendingPositionImpactDistribution(m market.Market, duration uint64) (distribution, next uint64, err error) {
	current, err := PositionImpactPoolAmount(m)
	if err != nil {
		return 0, 0, err
	}
	cfg := m.Config()
	min := cfg.MinPositionImpactPoolAmount
	if current <= min || cfg.PositionImpactDistributeFactor == 0 {
		return 0, current, nil
	}

	distributable := current - min
	perSecond, ok := fixedpoint.ApplyFactor(distributable, cfg.PositionImpactDistributeFactor)
	if !ok {
		return 0, 0, engineerr.Computation("position impact distribution rate")
	}
	amount, ok := fixedpoint.Mul(perSecond, duration)
	if !ok {
		return 0, 0, engineerr.Computation("position impact distribution amount")
	}
	if amount > distributable {
		amount = distributable
	}
	return amount, current - amount, nil
}

// DistributePositionImpact advances the distribution clock and moves
// the elapsed share of the position impact pool back into circulation.
func DistributePositionImpact(m market.Market, now int64) (*DistributePositionImpactReport, error) {
	duration, err := market.JustPassedInSeconds(m, market.ClockPriceImpactDistribution, now)
	if err != nil {
		return nil, err
	}
	distribution, next, err := pendingPositionImpactDistribution(m, duration)
	if err != nil {
		return nil, err
	}
	if distribution > 0 {
		delta, ok := fixedpoint.ToOppositeSigned(distribution)
		if !ok {
			return nil, engineerr.Convert("position impact distribution")
		}
		impact, err := m.Pool(pool.PositionImpact)
		if err != nil {
			return nil, err
		}
		if err := impact.ApplyDeltaToLongAmount(delta); err != nil {
			return nil, err
		}
	}
	return &DistributePositionImpactReport{
		DurationInSeconds:            duration,
		DistributionAmount:           distribution,
		NextPositionImpactPoolAmount: next,
	}, nil
}
