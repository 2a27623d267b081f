package market

import "PerpCore/internal/engineerr"

// Price is a min/max unit price pair for one token.
type Price struct {
	Min uint64
	Max uint64
}

// Validate checks that both bounds are positive and ordered.
func (p Price) Validate() error {
	if p.Min == 0 || p.Max == 0 || p.Min > p.Max {
		return engineerr.ErrInvalidPrices
	}
	return nil
}

// HasZero reports whether either bound is zero.
func (p Price) HasZero() bool {
	return p.Min == 0 || p.Max == 0
}

// Pick returns the max price when maximize is set, the min price
// otherwise.
func (p Price) Pick(maximize bool) uint64 {
	if maximize {
		return p.Max
	}
	return p.Min
}

// Mid returns the midpoint of the two bounds.
func (p Price) Mid() uint64 {
	return p.Min/2 + p.Max/2 + (p.Min%2+p.Max%2)/2
}

// Prices bundles the oracle prices an action consumes. Kernels take
// them by value and never reach out to an oracle.
type Prices struct {
	IndexTokenPrice Price
	LongTokenPrice  Price
	ShortTokenPrice Price
}

// Validate checks every price pair.
func (p Prices) Validate() error {
	if err := p.IndexTokenPrice.Validate(); err != nil {
		return err
	}
	if err := p.LongTokenPrice.Validate(); err != nil {
		return err
	}
	return p.ShortTokenPrice.Validate()
}

// CollateralPrice returns the price of the collateral token on the
// given side.
func (p Prices) CollateralPrice(isLongToken bool) Price {
	if isLongToken {
		return p.LongTokenPrice
	}
	return p.ShortTokenPrice
}
