package pool

import (
	"PerpCore/internal/engineerr"
	"PerpCore/internal/fixedpoint"
)

// ImpactParams holds the price impact factors applied to a balance
// change: a factor per impact direction and a shared exponent, all in
// fixed point.
type ImpactParams struct {
	PositiveFactor uint64
	NegativeFactor uint64
	ExponentFactor uint64
}

// AdjustedFactors caps the positive factor at the negative factor so a
// round trip through the pool can never be net positive.
func (p ImpactParams) AdjustedFactors() (positive, negative uint64) {
	positive = p.PositiveFactor
	if positive > p.NegativeFactor {
		positive = p.NegativeFactor
	}
	return positive, p.NegativeFactor
}

// Value holds the usd value of both sides of a pool.
type Value struct {
	LongValue  uint64
	ShortValue uint64
}

// NewValue prices both sides of the pool.
func NewValue(p *Pool, longPrice, shortPrice uint64) (Value, error) {
	long, err := p.LongUsdValue(longPrice)
	if err != nil {
		return Value{}, err
	}
	short, err := p.ShortUsdValue(shortPrice)
	if err != nil {
		return Value{}, err
	}
	return Value{LongValue: long, ShortValue: short}, nil
}

// DiffValue returns the absolute usd imbalance between the two sides.
func (v Value) DiffValue() uint64 {
	return fixedpoint.Diff(v.LongValue, v.ShortValue)
}

// Delta captures a pool's usd values before and after a prospective
// balance change, without mutating the pool.
type Delta struct {
	current Value
	next    Value

	deltaLongValue  int64
	deltaShortValue int64
}

// NewDelta prices the pool at the given token prices and applies the
// signed token deltas to obtain the next values.
func NewDelta(p *Pool, longDelta, shortDelta int64, longPrice, shortPrice uint64) (*Delta, error) {
	current, err := NewValue(p, longPrice, shortPrice)
	if err != nil {
		return nil, err
	}

	deltaLongValue, ok := fixedpoint.MulSigned(longPrice, longDelta)
	if !ok {
		return nil, engineerr.Computation("delta long usd value")
	}
	deltaShortValue, ok := fixedpoint.MulSigned(shortPrice, shortDelta)
	if !ok {
		return nil, engineerr.Computation("delta short usd value")
	}

	nextLong, ok := fixedpoint.AddDelta(current.LongValue, deltaLongValue)
	if !ok {
		return nil, engineerr.Computation("next long usd value")
	}
	nextShort, ok := fixedpoint.AddDelta(current.ShortValue, deltaShortValue)
	if !ok {
		return nil, engineerr.Computation("next short usd value")
	}

	return &Delta{
		current:         current,
		next:            Value{LongValue: nextLong, ShortValue: nextShort},
		deltaLongValue:  deltaLongValue,
		deltaShortValue: deltaShortValue,
	}, nil
}

// DeltaLongValue returns the signed usd value of the long token delta.
func (d *Delta) DeltaLongValue() int64 { return d.deltaLongValue }

// DeltaShortValue returns the signed usd value of the short token delta.
func (d *Delta) DeltaShortValue() int64 { return d.deltaShortValue }

// InitialDiffValue returns the usd imbalance before the change.
func (d *Delta) InitialDiffValue() uint64 { return d.current.DiffValue() }

// NextDiffValue returns the usd imbalance after the change.
func (d *Delta) NextDiffValue() uint64 { return d.next.DiffValue() }

// IsSameSideRebalance reports whether the heavier side stays the same
// across the change.
func (d *Delta) IsSameSideRebalance() bool {
	return (d.current.LongValue <= d.current.ShortValue) ==
		(d.next.LongValue <= d.next.ShortValue)
}

// PriceImpact returns the signed usd price impact of the change.
// Reducing the imbalance earns a positive impact, increasing it costs a
// negative one.
func (d *Delta) PriceImpact(params ImpactParams) (int64, error) {
	if d.IsSameSideRebalance() {
		return d.sameSideImpact(params)
	}
	return d.crossOverImpact(params)
}

func (d *Delta) sameSideImpact(params ImpactParams) (int64, error) {
	initial := d.InitialDiffValue()
	next := d.NextDiffValue()
	hasPositiveImpact := next < initial

	positiveFactor, negativeFactor := params.AdjustedFactors()
	factor := negativeFactor
	if hasPositiveImpact {
		factor = positiveFactor
	}

	initialImpact, ok := fixedpoint.ApplyFactors(initial, factor, params.ExponentFactor)
	if !ok {
		return 0, engineerr.Computation("same side impact on initial diff")
	}
	nextImpact, ok := fixedpoint.ApplyFactors(next, factor, params.ExponentFactor)
	if !ok {
		return 0, engineerr.Computation("same side impact on next diff")
	}

	delta, ok := fixedpoint.ToSigned(fixedpoint.Diff(initialImpact, nextImpact))
	if !ok {
		return 0, engineerr.Convert("same side impact delta")
	}
	if !hasPositiveImpact {
		delta = -delta
	}
	return delta, nil
}

func (d *Delta) crossOverImpact(params ImpactParams) (int64, error) {
	positiveFactor, negativeFactor := params.AdjustedFactors()

	positiveImpact, ok := fixedpoint.ApplyFactors(d.InitialDiffValue(), positiveFactor, params.ExponentFactor)
	if !ok {
		return 0, engineerr.Computation("cross over positive impact")
	}
	negativeImpact, ok := fixedpoint.ApplyFactors(d.NextDiffValue(), negativeFactor, params.ExponentFactor)
	if !ok {
		return 0, engineerr.Computation("cross over negative impact")
	}

	delta, ok := fixedpoint.ToSigned(fixedpoint.Diff(positiveImpact, negativeImpact))
	if !ok {
		return 0, engineerr.Convert("cross over impact delta")
	}
	if positiveImpact <= negativeImpact {
		delta = -delta
	}
	return delta, nil
}
