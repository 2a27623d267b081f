// Package revertible provides the staging overlay an action runs
// against. Every mutation lands in staged copies; Commit writes them
// back to the base market in one pass and abandoning the overlay
// leaves the base untouched.
package revertible

import (
	"PerpCore/internal/engineerr"
	"PerpCore/internal/fixedpoint"
	"PerpCore/internal/market"
	"PerpCore/internal/pool"
)

// Transfer is one net bank movement recorded during an action. The
// orchestrator turns committed transfers into the transfer plan.
type Transfer struct {
	Token  string
	Amount int64
}

// Market stages one action's mutations over a base market. Pools are
// copied on first touch; clocks and the scalar state are copied up
// front because they are cheap.
type Market struct {
	base *market.Base

	pools  map[pool.Kind]*pool.Pool
	clocks [market.NumClockKinds]int64
	state  market.State

	transfers []Transfer
	committed bool
}

// Wrap stages an overlay over the base market.
func Wrap(base *market.Base) *Market {
	m := &Market{
		base:  base,
		pools: make(map[pool.Kind]*pool.Pool),
		state: base.State(),
	}
	for _, kind := range market.AllClockKinds() {
		ts, _ := base.Clock(kind)
		m.clocks[kind] = ts
	}
	return m
}

// Meta returns the base market identity.
func (m *Market) Meta() market.Meta { return m.base.Meta() }

// Config returns the base market tunables.
func (m *Market) Config() *market.Config { return m.base.Config() }

// Pool returns the staged copy of the pool, cloning it from the base
// on first touch.
func (m *Market) Pool(kind pool.Kind) (*pool.Pool, error) {
	if staged, ok := m.pools[kind]; ok {
		return staged, nil
	}
	base, err := m.base.Pool(kind)
	if err != nil {
		return nil, err
	}
	staged := base.Clone()
	m.pools[kind] = staged
	return staged, nil
}

// Clock returns the staged timestamp.
func (m *Market) Clock(kind market.ClockKind) (int64, error) {
	if int(kind) >= market.NumClockKinds {
		return 0, engineerr.MissingClockKind(kind.String())
	}
	return m.clocks[kind], nil
}

// SetClock stores the staged timestamp.
func (m *Market) SetClock(kind market.ClockKind, ts int64) error {
	if int(kind) >= market.NumClockKinds {
		return engineerr.MissingClockKind(kind.String())
	}
	m.clocks[kind] = ts
	return nil
}

// FundingFactorPerSecond returns the staged funding rate.
func (m *Market) FundingFactorPerSecond() int64 {
	return m.state.FundingFactorPerSecond
}

// SetFundingFactorPerSecond stores the staged funding rate.
func (m *Market) SetFundingFactorPerSecond(v int64) {
	m.state.FundingFactorPerSecond = v
}

// NextTradeID increments the staged trade counter.
func (m *Market) NextTradeID() (uint64, error) { return m.state.NextTradeID() }

// NextDepositID increments the staged deposit counter.
func (m *Market) NextDepositID() (uint64, error) { return m.state.NextDepositID() }

// NextWithdrawalID increments the staged withdrawal counter.
func (m *Market) NextWithdrawalID() (uint64, error) { return m.state.NextWithdrawalID() }

// NextOrderID increments the staged order counter.
func (m *Market) NextOrderID() (uint64, error) { return m.state.NextOrderID() }

// IsAdlEnabled reports the staged ADL flag for the given side.
func (m *Market) IsAdlEnabled(isLong bool) bool {
	return m.state.IsAdlEnabled(isLong)
}

// SetAdlEnabled flips the staged ADL flag for the given side.
func (m *Market) SetAdlEnabled(isLong, enabled bool) {
	m.state.SetAdlEnabled(isLong, enabled)
}

// RecordTransferredIn credits the staged bank balance and records the
// movement for the transfer plan. The validation happens here so that
// Commit never fails.
func (m *Market) RecordTransferredIn(token string, amount uint64) error {
	return m.recordTransfer(token, amount, true)
}

// RecordTransferredOut debits the staged bank balance and records the
// movement for the transfer plan.
func (m *Market) RecordTransferredOut(token string, amount uint64) error {
	return m.recordTransfer(token, amount, false)
}

func (m *Market) recordTransfer(token string, amount uint64, in bool) error {
	meta := m.base.Meta()
	isLong, ok := meta.IsLongToken(token)
	if !ok {
		return engineerr.InvalidArgument("token does not belong to the market")
	}
	slot := &m.state.ShortTokenBalance
	if isLong || meta.IsPure() {
		slot = &m.state.LongTokenBalance
	}
	signed, okConv := fixedpoint.ToSigned(amount)
	if !okConv {
		return engineerr.Convert("transfer amount")
	}
	delta := signed
	if !in {
		delta = -signed
	}
	next, okAdd := fixedpoint.AddDelta(*slot, delta)
	if !okAdd {
		if in {
			return engineerr.ErrOverflow
		}
		return engineerr.ErrUnderflow
	}
	*slot = next
	m.transfers = append(m.transfers, Transfer{Token: token, Amount: delta})
	return nil
}

// Balance returns the staged bank balance of a token.
func (m *Market) Balance(token string) (uint64, error) {
	meta := m.base.Meta()
	isLong, ok := meta.IsLongToken(token)
	if !ok {
		return 0, engineerr.InvalidArgument("token does not belong to the market")
	}
	if isLong || meta.IsPure() {
		return m.state.LongTokenBalance, nil
	}
	return m.state.ShortTokenBalance, nil
}

// Transfers returns the bank movements recorded so far.
func (m *Market) Transfers() []Transfer { return m.transfers }

// Committed reports whether the overlay has been written back.
func (m *Market) Committed() bool { return m.committed }

// Commit writes every staged copy back to the base market in a fixed
// order: pools, then clocks, then state. It never fails; anything that
// could fail was validated when it was staged.
func (m *Market) Commit() {
	if m.committed {
		return
	}
	for _, kind := range pool.AllKinds() {
		if staged, ok := m.pools[kind]; ok {
			_ = m.base.SetPool(kind, staged)
		}
	}
	for _, kind := range market.AllClockKinds() {
		_ = m.base.SetClock(kind, m.clocks[kind])
	}
	m.base.SetState(m.state)
	m.committed = true
}
