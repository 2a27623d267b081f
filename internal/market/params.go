package market

import (
	"PerpCore/internal/engineerr"
	"PerpCore/internal/fixedpoint"
)

// FeeParams describes an order fee: a fee factor per impact sign and
// the receiver's share of the collected fee.
type FeeParams struct {
	PositiveImpactFeeFactor uint64
	NegativeImpactFeeFactor uint64
	FeeReceiverFactor       uint64
}

// Fees is a collected fee split between the protocol receiver and the
// pool. The receiver amount rounds down and the pool keeps the
// remainder.
type Fees struct {
	FeeReceiverAmount uint64
	FeeAmountForPool  uint64
}

// Total returns the full fee amount.
func (f Fees) Total() (uint64, error) {
	total, ok := fixedpoint.Add(f.FeeReceiverAmount, f.FeeAmountForPool)
	if !ok {
		return 0, engineerr.ErrOverflow
	}
	return total, nil
}

func (p FeeParams) factor(isPositiveImpact bool) uint64 {
	if isPositiveImpact {
		return p.PositiveImpactFeeFactor
	}
	return p.NegativeImpactFeeFactor
}

// Fee returns the fee charged on the amount for the given impact sign.
func (p FeeParams) Fee(isPositiveImpact bool, amount uint64) (uint64, error) {
	fee, ok := fixedpoint.ApplyFactor(amount, p.factor(isPositiveImpact))
	if !ok {
		return 0, engineerr.Computation("calculating fee amount")
	}
	return fee, nil
}

// ApplyFees deducts the fee from amount and returns the remainder
// together with the fee split.
func (p FeeParams) ApplyFees(isPositiveImpact bool, amount uint64) (uint64, Fees, error) {
	feeAmount, err := p.Fee(isPositiveImpact, amount)
	if err != nil {
		return 0, Fees{}, err
	}
	receiverAmount, ok := fixedpoint.ApplyFactor(feeAmount, p.FeeReceiverFactor)
	if !ok {
		return 0, Fees{}, engineerr.Computation("calculating receiver fee")
	}
	after, ok := fixedpoint.Sub(amount, feeAmount)
	if !ok {
		return 0, Fees{}, engineerr.Computation("deducting fee")
	}
	fees := Fees{
		FeeReceiverAmount: receiverAmount,
		FeeAmountForPool:  feeAmount - receiverAmount,
	}
	return after, fees, nil
}

// OrderFees converts a size-based fee into collateral token amounts.
func (p FeeParams) OrderFees(collateralPrice uint64, sizeDeltaUsd uint64, isPositiveImpact bool) (Fees, error) {
	if collateralPrice == 0 {
		return Fees{}, engineerr.ErrInvalidPrices
	}
	feeUsd, err := p.Fee(isPositiveImpact, sizeDeltaUsd)
	if err != nil {
		return Fees{}, err
	}
	feeAmount := feeUsd / collateralPrice
	receiverAmount, ok := fixedpoint.ApplyFactor(feeAmount, p.FeeReceiverFactor)
	if !ok {
		return Fees{}, engineerr.Computation("calculating order receiver fee")
	}
	return Fees{
		FeeReceiverAmount: receiverAmount,
		FeeAmountForPool:  feeAmount - receiverAmount,
	}, nil
}
