package market

import (
	"math"

	"PerpCore/internal/engineerr"
)

// State is the mutable non-pool scalar state of a market. It is a
// plain value so the revertible overlay can stage a copy and write it
// back whole.
type State struct {
	LongTokenBalance  uint64
	ShortTokenBalance uint64

	FundingFactorPerSecond int64

	TradeID      uint64
	DepositID    uint64
	WithdrawalID uint64
	OrderID      uint64

	Enabled         bool
	AdlEnabledLong  bool
	AdlEnabledShort bool
}

// NextTradeID increments and returns the trade counter.
func (s *State) NextTradeID() (uint64, error) {
	if s.TradeID == math.MaxUint64 {
		return 0, engineerr.ErrOverflow
	}
	s.TradeID++
	return s.TradeID, nil
}

// NextDepositID increments and returns the deposit counter.
func (s *State) NextDepositID() (uint64, error) {
	if s.DepositID == math.MaxUint64 {
		return 0, engineerr.ErrOverflow
	}
	s.DepositID++
	return s.DepositID, nil
}

// NextWithdrawalID increments and returns the withdrawal counter.
func (s *State) NextWithdrawalID() (uint64, error) {
	if s.WithdrawalID == math.MaxUint64 {
		return 0, engineerr.ErrOverflow
	}
	s.WithdrawalID++
	return s.WithdrawalID, nil
}

// NextOrderID increments and returns the order counter.
func (s *State) NextOrderID() (uint64, error) {
	if s.OrderID == math.MaxUint64 {
		return 0, engineerr.ErrOverflow
	}
	s.OrderID++
	return s.OrderID, nil
}

// IsAdlEnabled reports whether ADL is enabled for the given side.
func (s *State) IsAdlEnabled(isLong bool) bool {
	if isLong {
		return s.AdlEnabledLong
	}
	return s.AdlEnabledShort
}

// SetAdlEnabled flips the ADL flag for the given side.
func (s *State) SetAdlEnabled(isLong, enabled bool) {
	if isLong {
		s.AdlEnabledLong = enabled
	} else {
		s.AdlEnabledShort = enabled
	}
}
