// Package engine is the entry point an action takes into the core. It
// validates order parameters, wraps every touched market in a
// revertible overlay, runs the action kernels, and on success commits
// all overlays and emits a transfer plan for the host to execute.
package engine

import (
	"PerpCore/internal/engineerr"
	"PerpCore/internal/market"
)

// OrderKind identifies one order type. The numeric values are part of
// the persisted log format and must never be reordered.
type OrderKind uint8

const (
	OrderLiquidation OrderKind = iota
	OrderAutoDeleveraging
	OrderMarketSwap
	OrderMarketIncrease
	OrderMarketDecrease
	OrderLimitSwap
	OrderLimitIncrease
	OrderLimitDecrease
	OrderStopLossDecrease

	numOrderKinds
)

// NumOrderKinds is the number of order kinds.
const NumOrderKinds = int(numOrderKinds)

var orderNames = [NumOrderKinds]string{
	"liquidation",
	"auto_deleveraging",
	"market_swap",
	"market_increase",
	"market_decrease",
	"limit_swap",
	"limit_increase",
	"limit_decrease",
	"stop_loss_decrease",
}

func (k OrderKind) String() string {
	if int(k) >= NumOrderKinds {
		return "unknown"
	}
	return orderNames[k]
}

// OrderKindFromString maps a wire name back to its kind.
func OrderKindFromString(name string) (OrderKind, bool) {
	for i, n := range orderNames {
		if n == name {
			return OrderKind(i), true
		}
	}
	return 0, false
}

// IsSwap reports whether the order swaps tokens without touching a
// position.
func (k OrderKind) IsSwap() bool {
	return k == OrderMarketSwap || k == OrderLimitSwap
}

// IsIncrease reports whether the order grows a position.
func (k OrderKind) IsIncrease() bool {
	return k == OrderMarketIncrease || k == OrderLimitIncrease
}

// IsDecrease reports whether the order shrinks a position. Liquidation
// and auto-deleveraging are forced decreases.
func (k OrderKind) IsDecrease() bool {
	switch k {
	case OrderLiquidation, OrderAutoDeleveraging, OrderMarketDecrease,
		OrderLimitDecrease, OrderStopLossDecrease:
		return true
	}
	return false
}

// ValidateTriggerPrice checks a trigger against the index price. A
// trigger of zero means absent: market orders, liquidation, ADL and
// limit swaps must not carry one, trigger kinds must.
func ValidateTriggerPrice(index market.Price, kind OrderKind, isLong bool, trigger uint64) error {
	switch kind {
	case OrderLimitIncrease:
		if trigger == 0 {
			return engineerr.ErrInvalidTriggerPrice
		}
		if isLong {
			if trigger >= index.Max {
				return nil
			}
		} else if index.Min >= trigger {
			return nil
		}
		return engineerr.ErrInvalidTriggerPrice
	case OrderLimitDecrease:
		if trigger == 0 {
			return engineerr.ErrInvalidTriggerPrice
		}
		if isLong {
			if index.Min >= trigger {
				return nil
			}
		} else if trigger >= index.Max {
			return nil
		}
		return engineerr.ErrInvalidTriggerPrice
	case OrderStopLossDecrease:
		if trigger == 0 {
			return engineerr.ErrInvalidTriggerPrice
		}
		if isLong {
			if trigger >= index.Min {
				return nil
			}
		} else if index.Max >= trigger {
			return nil
		}
		return engineerr.ErrInvalidTriggerPrice
	default:
		// Limit swaps are gated by min output, everything else
		// executes at market.
		if trigger != 0 {
			return engineerr.ErrInvalidTriggerPrice
		}
		return nil
	}
}
