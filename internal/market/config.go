package market

import (
	"PerpCore/internal/engineerr"
	"PerpCore/internal/pool"
)

// Sided is a per-side pair of fixed point tunables.
type Sided struct {
	Long  uint64
	Short uint64
}

// Get returns the value for the given side.
func (s Sided) Get(isLong bool) uint64 {
	if isLong {
		return s.Long
	}
	return s.Short
}

// Config is the full set of market tunables. It is read-only during an
// action and replaced whole-buffer through ReplaceConfig.
type Config struct {
	// Swap impact curve.
	SwapImpactExponent       uint64
	SwapImpactPositiveFactor uint64
	SwapImpactNegativeFactor uint64

	// Swap fees. The impact-signed factor picks which fee rate an
	// order pays; the receiver factor splits the fee between protocol
	// and pool.
	SwapFeeReceiverFactor       uint64
	SwapFeePositiveImpactFactor uint64
	SwapFeeNegativeImpactFactor uint64

	// Position impact curve and distribution.
	PositionImpactExponent         uint64
	PositionImpactPositiveFactor   uint64
	PositionImpactNegativeFactor   uint64
	PositionImpactDistributeFactor uint64
	MinPositionImpactPoolAmount    uint64

	// Cap on the negative price impact a decrease absorbs. The excess
	// is withheld from the output and held as claimable instead.
	// Zero disables the cap.
	MaxPositionImpactFactorForDecrease uint64

	// Position fees.
	PositionFeeReceiverFactor       uint64
	PositionFeePositiveImpactFactor uint64
	PositionFeeNegativeImpactFactor uint64
	LiquidationFeeFactor            uint64

	// Borrowing.
	BorrowingFeeFactor             Sided
	BorrowingFeeExponent           Sided
	SkipBorrowingFeeForSmallerSide bool

	// Funding.
	FundingFeeExponent             uint64
	FundingFeeFactor               uint64
	MinFundingFactorPerSecond      uint64
	MaxFundingFactorPerSecond      uint64
	FundingIncreaseFactorPerSecond uint64
	FundingDecreaseFactorPerSecond uint64
	ThresholdForStableFunding      uint64
	ThresholdForDecreaseFunding    uint64

	// Reserves and caps.
	ReserveFactor             uint64
	OpenInterestReserveFactor uint64
	MaxPoolAmount             Sided
	MaxPoolValueForDeposit    Sided
	MaxOpenInterest           Sided

	// PnL factor caps per use.
	MaxPnlFactorForDeposit    Sided
	MaxPnlFactorForWithdrawal Sided
	MaxPnlFactorForTrader     Sided
	MaxPnlFactorForAdl        Sided
	MinPnlFactorAfterAdl      Sided

	// Collateral.
	MinCollateralFactor uint64
	MinCollateralValue  uint64
	MaxLeverageFactor   uint64
}

// SwapImpactParams returns the price impact parameters for swaps and
// liquidity changes.
func (c *Config) SwapImpactParams() pool.ImpactParams {
	return pool.ImpactParams{
		PositiveFactor: c.SwapImpactPositiveFactor,
		NegativeFactor: c.SwapImpactNegativeFactor,
		ExponentFactor: c.SwapImpactExponent,
	}
}

// PositionImpactParams returns the price impact parameters for
// position size changes.
func (c *Config) PositionImpactParams() pool.ImpactParams {
	return pool.ImpactParams{
		PositiveFactor: c.PositionImpactPositiveFactor,
		NegativeFactor: c.PositionImpactNegativeFactor,
		ExponentFactor: c.PositionImpactExponent,
	}
}

// SwapFeeParams returns the fee parameters for swaps and liquidity
// changes.
func (c *Config) SwapFeeParams() FeeParams {
	return FeeParams{
		PositiveImpactFeeFactor: c.SwapFeePositiveImpactFactor,
		NegativeImpactFeeFactor: c.SwapFeeNegativeImpactFactor,
		FeeReceiverFactor:       c.SwapFeeReceiverFactor,
	}
}

// PositionFeeParams returns the fee parameters for position size
// changes.
func (c *Config) PositionFeeParams() FeeParams {
	return FeeParams{
		PositiveImpactFeeFactor: c.PositionFeePositiveImpactFactor,
		NegativeImpactFeeFactor: c.PositionFeeNegativeImpactFactor,
		FeeReceiverFactor:       c.PositionFeeReceiverFactor,
	}
}

// MaxPnlFactor returns the configured cap for the given use and side.
func (c *Config) MaxPnlFactor(kind PnlFactorKind, isLong bool) (uint64, error) {
	switch kind {
	case PnlFactorMaxAfterDeposit:
		return c.MaxPnlFactorForDeposit.Get(isLong), nil
	case PnlFactorMaxAfterWithdrawal:
		return c.MaxPnlFactorForWithdrawal.Get(isLong), nil
	case PnlFactorTrader:
		return c.MaxPnlFactorForTrader.Get(isLong), nil
	case PnlFactorAdl:
		return c.MaxPnlFactorForAdl.Get(isLong), nil
	default:
		return 0, engineerr.InvalidArgument("unknown pnl factor kind")
	}
}
