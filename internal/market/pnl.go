package market

// PnlFactorKind selects which configured PnL cap a validation uses.
// The numeric values are part of the persisted log format and must
// never be reordered.
type PnlFactorKind uint8

const (
	// PnlFactorMaxAfterDeposit caps pool pnl after a deposit.
	PnlFactorMaxAfterDeposit PnlFactorKind = iota
	// PnlFactorMaxAfterWithdrawal caps pool pnl after a withdrawal.
	PnlFactorMaxAfterWithdrawal
	// PnlFactorTrader caps the pnl a trader can realize.
	PnlFactorTrader
	// PnlFactorAdl is the threshold above which ADL is permitted.
	PnlFactorAdl

	numPnlFactorKinds
)

var pnlFactorNames = [numPnlFactorKinds]string{
	"max_after_deposit",
	"max_after_withdrawal",
	"trader",
	"adl",
}

func (k PnlFactorKind) String() string {
	if k >= numPnlFactorKinds {
		return "unknown"
	}
	return pnlFactorNames[k]
}
