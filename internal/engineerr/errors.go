// Package engineerr defines the error taxonomy shared by every layer of the
// market engine. Action kernels short-circuit on the first error; the
// orchestrator propagates them upward without modification.
package engineerr

import (
	"errors"
	"fmt"
)

// Input errors.
var (
	ErrEmptyDeposit             = errors.New("empty deposit")
	ErrEmptyWithdrawal          = errors.New("empty withdrawal")
	ErrEmptySwap                = errors.New("empty swap")
	ErrInvalidPrices            = errors.New("invalid prices")
	ErrInvalidArgument          = errors.New("invalid argument")
	ErrInvalidTriggerPrice      = errors.New("invalid trigger price")
	ErrInsufficientOutputAmount = errors.New("insufficient output amount")
	ErrUnacceptablePrice        = errors.New("unacceptable price")
)

// Arithmetic errors.
var (
	ErrComputation  = errors.New("computation")
	ErrOverflow     = errors.New("overflow")
	ErrUnderflow    = errors.New("underflow")
	ErrConvert      = errors.New("convert value error")
	ErrDivideByZero = errors.New("divide by zero")
)

// Invariant errors.
var (
	ErrPoolAmountExceeded   = errors.New("pool amount exceeded")
	ErrInsufficientReserve  = errors.New("insufficient reserve")
	ErrOpenInterestExceeded = errors.New("open interest exceeded")
	ErrPnlFactorExceeded    = errors.New("pnl factor exceeded")
	ErrMinCollateralNotMet  = errors.New("min collateral not met")
	ErrMaxLeverageExceeded  = errors.New("max leverage exceeded")
)

// State-machine errors.
var (
	ErrPositionNotLiquidatable = errors.New("position not liquidatable")
	ErrAdlNotRequired          = errors.New("adl not required")
	ErrMarketDisabled          = errors.New("market disabled")
	ErrUnsupportedPoolKind     = errors.New("unsupported pool kind")
	ErrMissingPoolKind         = errors.New("missing pool kind")
	ErrMissingClockKind        = errors.New("missing clock kind")
)

// SideMsg renders the conventional side suffix used in error messages.
func SideMsg(isLong bool) string {
	if isLong {
		return "for long"
	}
	return "for short"
}

// Computation wraps ErrComputation with the failing step.
func Computation(reason string) error {
	return fmt.Errorf("%w: %s", ErrComputation, reason)
}

// Convert wraps ErrConvert with the failing conversion.
func Convert(reason string) error {
	return fmt.Errorf("%w: %s", ErrConvert, reason)
}

// InvalidArgument wraps ErrInvalidArgument with a reason.
func InvalidArgument(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, reason)
}

// PoolAmountExceeded reports a breached max pool amount for one side.
func PoolAmountExceeded(isLong bool) error {
	return fmt.Errorf("%w %s", ErrPoolAmountExceeded, SideMsg(isLong))
}

// InsufficientReserve reports a breached reserve requirement for one side.
func InsufficientReserve(isLong bool) error {
	return fmt.Errorf("%w %s", ErrInsufficientReserve, SideMsg(isLong))
}

// OpenInterestExceeded reports a breached max open interest for one side.
func OpenInterestExceeded(isLong bool) error {
	return fmt.Errorf("%w %s", ErrOpenInterestExceeded, SideMsg(isLong))
}

// PnlFactorExceeded reports a breached max PnL factor.
func PnlFactorExceeded(kind string, isLong bool) error {
	return fmt.Errorf("%w: %s %s", ErrPnlFactorExceeded, kind, SideMsg(isLong))
}

// MissingPoolKind reports an absent pool.
func MissingPoolKind(kind string) error {
	return fmt.Errorf("%w: %s", ErrMissingPoolKind, kind)
}

// MissingClockKind reports an absent clock.
func MissingClockKind(kind string) error {
	return fmt.Errorf("%w: %s", ErrMissingClockKind, kind)
}

// Reason maps an error onto a short stable label for metrics and logs.
func Reason(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrEmptyDeposit):
		return "empty_deposit"
	case errors.Is(err, ErrEmptyWithdrawal):
		return "empty_withdrawal"
	case errors.Is(err, ErrEmptySwap):
		return "empty_swap"
	case errors.Is(err, ErrInvalidPrices):
		return "invalid_prices"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrInvalidTriggerPrice):
		return "invalid_trigger_price"
	case errors.Is(err, ErrInsufficientOutputAmount):
		return "insufficient_output"
	case errors.Is(err, ErrUnacceptablePrice):
		return "unacceptable_price"
	case errors.Is(err, ErrComputation):
		return "computation"
	case errors.Is(err, ErrOverflow):
		return "overflow"
	case errors.Is(err, ErrUnderflow):
		return "underflow"
	case errors.Is(err, ErrConvert):
		return "convert"
	case errors.Is(err, ErrDivideByZero):
		return "divide_by_zero"
	case errors.Is(err, ErrPoolAmountExceeded):
		return "pool_amount_exceeded"
	case errors.Is(err, ErrInsufficientReserve):
		return "insufficient_reserve"
	case errors.Is(err, ErrOpenInterestExceeded):
		return "open_interest_exceeded"
	case errors.Is(err, ErrPnlFactorExceeded):
		return "pnl_factor_exceeded"
	case errors.Is(err, ErrMinCollateralNotMet):
		return "min_collateral_not_met"
	case errors.Is(err, ErrMaxLeverageExceeded):
		return "max_leverage_exceeded"
	case errors.Is(err, ErrPositionNotLiquidatable):
		return "position_not_liquidatable"
	case errors.Is(err, ErrAdlNotRequired):
		return "adl_not_required"
	case errors.Is(err, ErrMarketDisabled):
		return "market_disabled"
	case errors.Is(err, ErrUnsupportedPoolKind):
		return "unsupported_pool_kind"
	case errors.Is(err, ErrMissingPoolKind):
		return "missing_pool_kind"
	case errors.Is(err, ErrMissingClockKind):
		return "missing_clock_kind"
	default:
		return "other"
	}
}
