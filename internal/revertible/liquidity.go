package revertible

import (
	"PerpCore/internal/engineerr"
	"PerpCore/internal/fixedpoint"
	"PerpCore/internal/market"
)

// LiquidityMarket layers a staged market token mint over the overlay.
// Mint and burn amounts accumulate for the transfer plan; the supply
// itself only moves on commit.
type LiquidityMarket struct {
	*Market

	supply uint64
	toMint uint64
	toBurn uint64
}

// WrapLiquidity stages an overlay with mint access over the base
// market.
func WrapLiquidity(base *market.Base) *LiquidityMarket {
	return &LiquidityMarket{
		Market: Wrap(base),
		supply: base.TotalSupply(),
	}
}

// TotalSupply returns the staged market token supply.
func (m *LiquidityMarket) TotalSupply() uint64 { return m.supply }

// Mint stages a market token mint.
func (m *LiquidityMarket) Mint(amount uint64) error {
	next, ok := fixedpoint.Add(m.supply, amount)
	if !ok {
		return engineerr.ErrOverflow
	}
	total, ok := fixedpoint.Add(m.toMint, amount)
	if !ok {
		return engineerr.ErrOverflow
	}
	m.supply = next
	m.toMint = total
	return nil
}

// Burn stages a market token burn.
func (m *LiquidityMarket) Burn(amount uint64) error {
	next, ok := fixedpoint.Sub(m.supply, amount)
	if !ok {
		return engineerr.ErrUnderflow
	}
	total, ok := fixedpoint.Add(m.toBurn, amount)
	if !ok {
		return engineerr.ErrOverflow
	}
	m.supply = next
	m.toBurn = total
	return nil
}

// ToMint returns the accumulated mint amount for the transfer plan.
func (m *LiquidityMarket) ToMint() uint64 { return m.toMint }

// ToBurn returns the accumulated burn amount for the transfer plan.
func (m *LiquidityMarket) ToBurn() uint64 { return m.toBurn }

// Commit writes the staged market back and applies the supply change.
func (m *LiquidityMarket) Commit() {
	if m.Market.committed {
		return
	}
	m.Market.Commit()
	m.Market.base.SetTotalSupply(m.supply)
}
