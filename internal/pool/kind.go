package pool

// Kind identifies one of the per-market pools. The numeric values are
// part of the persisted log format and must never be reordered.
type Kind uint8

const (
	// Primary holds the main liquidity of the market.
	Primary Kind = iota
	// SwapImpact holds tokens collected from negative swap price impact
	// and pays out positive impact.
	SwapImpact
	// ClaimableFee holds protocol fees awaiting collection.
	ClaimableFee
	// OpenInterestLong tracks long open interest in usd.
	OpenInterestLong
	// OpenInterestShort tracks short open interest in usd.
	OpenInterestShort
	// OpenInterestInTokensLong tracks long open interest in tokens.
	OpenInterestInTokensLong
	// OpenInterestInTokensShort tracks short open interest in tokens.
	OpenInterestInTokensShort
	// PositionImpact holds tokens from position price impact.
	PositionImpact
	// BorrowingFactor tracks the cumulative borrowing factor per side.
	BorrowingFactor
	// FundingAmountPerSizeLong tracks funding per size for longs.
	FundingAmountPerSizeLong
	// FundingAmountPerSizeShort tracks funding per size for shorts.
	FundingAmountPerSizeShort
	// ClaimableFundingAmountPerSizeLong tracks claimable funding per size for longs.
	ClaimableFundingAmountPerSizeLong
	// ClaimableFundingAmountPerSizeShort tracks claimable funding per size for shorts.
	ClaimableFundingAmountPerSizeShort
	// CollateralSumLong tracks total long position collateral per token.
	CollateralSumLong
	// CollateralSumShort tracks total short position collateral per token.
	CollateralSumShort
	// TotalBorrowing tracks the borrowing owed by open positions.
	TotalBorrowing

	numKinds
)

// NumKinds is the number of pool kinds a market carries.
const NumKinds = int(numKinds)

var kindNames = [NumKinds]string{
	"primary",
	"swap_impact",
	"claimable_fee",
	"open_interest_long",
	"open_interest_short",
	"open_interest_in_tokens_long",
	"open_interest_in_tokens_short",
	"position_impact",
	"borrowing_factor",
	"funding_amount_per_size_long",
	"funding_amount_per_size_short",
	"claimable_funding_amount_per_size_long",
	"claimable_funding_amount_per_size_short",
	"collateral_sum_long",
	"collateral_sum_short",
	"total_borrowing",
}

func (k Kind) String() string {
	if int(k) >= NumKinds {
		return "unknown"
	}
	return kindNames[k]
}

// AllKinds returns every pool kind in tag order.
func AllKinds() []Kind {
	kinds := make([]Kind, NumKinds)
	for i := range kinds {
		kinds[i] = Kind(i)
	}
	return kinds
}

// StaysImpure reports whether the pool of this kind keeps separate long
// and short slots even in a single-token market. The borrowing factor
// pool tracks the two sides independently regardless of the backing
// tokens.
func (k Kind) StaysImpure() bool {
	return k == BorrowingFactor
}
