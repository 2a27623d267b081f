// Package pool implements the per-market token pools and the usd-value
// deltas used for price impact.
package pool

import (
	"PerpCore/internal/engineerr"
	"PerpCore/internal/fixedpoint"
)

// Pool holds a long token amount and a short token amount. A pure pool
// backs both sides with the same token: only the long slot is used for
// storage and each side reads half of it.
type Pool struct {
	pure        bool
	longAmount  uint64
	shortAmount uint64
}

// New returns an empty pool. A pure pool folds both sides into the
// long slot.
func New(pure bool) *Pool {
	return &Pool{pure: pure}
}

// NewWithAmounts returns a non-pure pool seeded with the given side
// amounts. Used to build transient imbalance pools, such as the open
// interest pair a position impact is measured against.
func NewWithAmounts(longAmount, shortAmount uint64) *Pool {
	return &Pool{longAmount: longAmount, shortAmount: shortAmount}
}

// RawAmounts returns the storage slots verbatim, without the pure
// halving. Persistence snapshots read and restore slots as stored.
func (p *Pool) RawAmounts() (longAmount, shortAmount uint64) {
	return p.longAmount, p.shortAmount
}

// SetRawAmounts overwrites the storage slots verbatim.
func (p *Pool) SetRawAmounts(longAmount, shortAmount uint64) {
	p.longAmount = longAmount
	p.shortAmount = shortAmount
}

// IsPure reports whether the pool folds both sides into one token.
func (p *Pool) IsPure() bool {
	return p.pure
}

// Clone returns an independent copy.
func (p *Pool) Clone() *Pool {
	c := *p
	return &c
}

// LongAmount returns the amount backing the long side.
func (p *Pool) LongAmount() (uint64, error) {
	if p.pure {
		if p.shortAmount != 0 {
			return 0, engineerr.Computation("pure pool with non-zero short amount")
		}
		return p.longAmount / 2, nil
	}
	return p.longAmount, nil
}

// ShortAmount returns the amount backing the short side.
func (p *Pool) ShortAmount() (uint64, error) {
	if p.pure {
		if p.shortAmount != 0 {
			return 0, engineerr.Computation("pure pool with non-zero short amount")
		}
		return p.longAmount / 2, nil
	}
	return p.shortAmount, nil
}

// Amount returns the amount backing the given side.
func (p *Pool) Amount(isLong bool) (uint64, error) {
	if isLong {
		return p.LongAmount()
	}
	return p.ShortAmount()
}

// LongUsdValue returns the usd value of the long side at the given price.
func (p *Pool) LongUsdValue(price uint64) (uint64, error) {
	amount, err := p.LongAmount()
	if err != nil {
		return 0, err
	}
	value, ok := fixedpoint.Mul(amount, price)
	if !ok {
		return 0, engineerr.Computation("long usd value")
	}
	return value, nil
}

// ShortUsdValue returns the usd value of the short side at the given price.
func (p *Pool) ShortUsdValue(price uint64) (uint64, error) {
	amount, err := p.ShortAmount()
	if err != nil {
		return 0, err
	}
	value, ok := fixedpoint.Mul(amount, price)
	if !ok {
		return 0, engineerr.Computation("short usd value")
	}
	return value, nil
}

// ApplyDeltaToLongAmount adjusts the long slot by a signed delta.
func (p *Pool) ApplyDeltaToLongAmount(delta int64) error {
	next, ok := fixedpoint.AddDelta(p.longAmount, delta)
	if !ok {
		return engineerr.Computation("apply delta to long amount")
	}
	p.longAmount = next
	return nil
}

// ApplyDeltaToShortAmount adjusts the short slot by a signed delta.
// For a pure pool the delta lands in the long slot.
func (p *Pool) ApplyDeltaToShortAmount(delta int64) error {
	slot := &p.shortAmount
	if p.pure {
		slot = &p.longAmount
	}
	next, ok := fixedpoint.AddDelta(*slot, delta)
	if !ok {
		return engineerr.Computation("apply delta to short amount")
	}
	*slot = next
	return nil
}

// ApplyDelta adjusts the given side by a signed delta.
func (p *Pool) ApplyDelta(isLong bool, delta int64) error {
	if isLong {
		return p.ApplyDeltaToLongAmount(delta)
	}
	return p.ApplyDeltaToShortAmount(delta)
}
