// Package market holds the market data model: pools keyed by kind,
// clocks, scalar state, configuration, and the capability surface the
// action kernels run against.
package market

import (
	"PerpCore/internal/engineerr"
	"PerpCore/internal/fixedpoint"
	"PerpCore/internal/pool"
)

// Market is the capability surface an action kernel requires. Both the
// base market and the revertible overlay implement it; kernels never
// know which one they hold.
type Market interface {
	Meta() Meta
	Config() *Config

	// Pool returns the pool of the given kind. Mutations through the
	// returned pointer land in whatever storage the implementation
	// backs it with.
	Pool(kind pool.Kind) (*pool.Pool, error)

	Clock(kind ClockKind) (int64, error)
	SetClock(kind ClockKind, ts int64) error

	FundingFactorPerSecond() int64
	SetFundingFactorPerSecond(v int64)

	IsAdlEnabled(isLong bool) bool
	SetAdlEnabled(isLong, enabled bool)

	NextTradeID() (uint64, error)
	NextDepositID() (uint64, error)
	NextWithdrawalID() (uint64, error)
	NextOrderID() (uint64, error)
}

// LiquidityMarket extends Market with the market token mint.
type LiquidityMarket interface {
	Market

	TotalSupply() uint64
	Mint(amount uint64) error
	Burn(amount uint64) error
}

// Base is the canonical storage of one market.
type Base struct {
	meta   Meta
	config Config
	pools  [pool.NumKinds]*pool.Pool
	clocks [NumClockKinds]int64
	state  State

	totalSupply uint64
}

// New creates an empty enabled market. Pool purity follows the meta:
// a pure market folds every pool except the kinds that track the two
// sides independently.
func New(meta Meta, config Config) *Base {
	b := &Base{meta: meta, config: config}
	for _, kind := range pool.AllKinds() {
		pure := meta.IsPure() && !kind.StaysImpure()
		b.pools[kind] = pool.New(pure)
	}
	b.state.Enabled = true
	return b
}

// Meta returns the market identity.
func (b *Base) Meta() Meta { return b.meta }

// Config returns the current tunables.
func (b *Base) Config() *Config { return &b.config }

// ReplaceConfig swaps the whole tunable buffer. The caller is the
// authorized configuration path; actions in flight hold their own
// overlay and are unaffected.
func (b *Base) ReplaceConfig(config Config) {
	b.config = config
}

// Pool returns the pool of the given kind.
func (b *Base) Pool(kind pool.Kind) (*pool.Pool, error) {
	if int(kind) >= pool.NumKinds {
		return nil, engineerr.MissingPoolKind(kind.String())
	}
	return b.pools[kind], nil
}

// SetPool replaces the stored pool. Used by the revertible overlay on
// commit.
func (b *Base) SetPool(kind pool.Kind, p *pool.Pool) error {
	if int(kind) >= pool.NumKinds {
		return engineerr.MissingPoolKind(kind.String())
	}
	b.pools[kind] = p
	return nil
}

// Clock returns the last-update timestamp of the given clock.
func (b *Base) Clock(kind ClockKind) (int64, error) {
	if int(kind) >= NumClockKinds {
		return 0, engineerr.MissingClockKind(kind.String())
	}
	return b.clocks[kind], nil
}

// SetClock stores the timestamp of the given clock.
func (b *Base) SetClock(kind ClockKind, ts int64) error {
	if int(kind) >= NumClockKinds {
		return engineerr.MissingClockKind(kind.String())
	}
	b.clocks[kind] = ts
	return nil
}

// State returns a copy of the scalar state.
func (b *Base) State() State { return b.state }

// SetState replaces the scalar state whole. Used by the revertible
// overlay on commit.
func (b *Base) SetState(s State) { b.state = s }

// FundingFactorPerSecond returns the current signed funding rate.
func (b *Base) FundingFactorPerSecond() int64 {
	return b.state.FundingFactorPerSecond
}

// SetFundingFactorPerSecond stores the signed funding rate.
func (b *Base) SetFundingFactorPerSecond(v int64) {
	b.state.FundingFactorPerSecond = v
}

// NextTradeID increments and returns the trade counter.
func (b *Base) NextTradeID() (uint64, error) {
	return b.state.NextTradeID()
}

// NextDepositID increments and returns the deposit counter.
func (b *Base) NextDepositID() (uint64, error) {
	return b.state.NextDepositID()
}

// NextWithdrawalID increments and returns the withdrawal counter.
func (b *Base) NextWithdrawalID() (uint64, error) {
	return b.state.NextWithdrawalID()
}

// NextOrderID increments and returns the order counter.
func (b *Base) NextOrderID() (uint64, error) {
	return b.state.NextOrderID()
}

// IsEnabled reports whether the market accepts actions.
func (b *Base) IsEnabled() bool { return b.state.Enabled }

// SetEnabled flips the enabled flag.
func (b *Base) SetEnabled(enabled bool) { b.state.Enabled = enabled }

// IsAdlEnabled reports whether ADL is enabled for the given side.
func (b *Base) IsAdlEnabled(isLong bool) bool {
	return b.state.IsAdlEnabled(isLong)
}

// SetAdlEnabled flips the ADL flag for the given side.
func (b *Base) SetAdlEnabled(isLong, enabled bool) {
	b.state.SetAdlEnabled(isLong, enabled)
}

// TotalSupply returns the market token supply.
func (b *Base) TotalSupply() uint64 { return b.totalSupply }

// SetTotalSupply replaces the market token supply. Used by the
// revertible overlay on commit.
func (b *Base) SetTotalSupply(supply uint64) { b.totalSupply = supply }

// Mint increases the market token supply.
func (b *Base) Mint(amount uint64) error {
	next, ok := fixedpoint.Add(b.totalSupply, amount)
	if !ok {
		return engineerr.ErrOverflow
	}
	b.totalSupply = next
	return nil
}

// Burn decreases the market token supply.
func (b *Base) Burn(amount uint64) error {
	next, ok := fixedpoint.Sub(b.totalSupply, amount)
	if !ok {
		return engineerr.ErrUnderflow
	}
	b.totalSupply = next
	return nil
}

// RecordTransferredIn credits tokens the host moved into the market
// bank. A pure market books its single token on the long balance.
func (b *Base) RecordTransferredIn(token string, amount uint64) error {
	isLong, ok := b.meta.IsLongToken(token)
	if !ok {
		return engineerr.InvalidArgument("token does not belong to the market")
	}
	slot := &b.state.ShortTokenBalance
	if isLong || b.meta.IsPure() {
		slot = &b.state.LongTokenBalance
	}
	next, okAdd := fixedpoint.Add(*slot, amount)
	if !okAdd {
		return engineerr.ErrOverflow
	}
	*slot = next
	return nil
}

// RecordTransferredOut debits tokens the host moved out of the market
// bank.
func (b *Base) RecordTransferredOut(token string, amount uint64) error {
	isLong, ok := b.meta.IsLongToken(token)
	if !ok {
		return engineerr.InvalidArgument("token does not belong to the market")
	}
	slot := &b.state.ShortTokenBalance
	if isLong || b.meta.IsPure() {
		slot = &b.state.LongTokenBalance
	}
	next, okSub := fixedpoint.Sub(*slot, amount)
	if !okSub {
		return engineerr.ErrUnderflow
	}
	*slot = next
	return nil
}

// Balance returns the recorded bank balance of a token.
func (b *Base) Balance(token string) (uint64, error) {
	isLong, ok := b.meta.IsLongToken(token)
	if !ok {
		return 0, engineerr.InvalidArgument("token does not belong to the market")
	}
	if isLong || b.meta.IsPure() {
		return b.state.LongTokenBalance, nil
	}
	return b.state.ShortTokenBalance, nil
}
