package market

import (
	"PerpCore/internal/engineerr"
	"PerpCore/internal/fixedpoint"
	"PerpCore/internal/pool"
)

// LiquidityPoolValue prices the primary pool in usd. Maximize picks
// the max token prices, minimize the min prices.
func LiquidityPoolValue(m Market, prices Prices, maximize bool) (uint64, error) {
	primary, err := m.Pool(pool.Primary)
	if err != nil {
		return 0, err
	}
	longValue, err := primary.LongUsdValue(prices.LongTokenPrice.Pick(maximize))
	if err != nil {
		return 0, err
	}
	shortValue, err := primary.ShortUsdValue(prices.ShortTokenPrice.Pick(maximize))
	if err != nil {
		return 0, err
	}
	value, ok := fixedpoint.Add(longValue, shortValue)
	if !ok {
		return 0, engineerr.Computation("summing pool value")
	}
	return value, nil
}

func openInterestPool(isLong bool) pool.Kind {
	if isLong {
		return pool.OpenInterestLong
	}
	return pool.OpenInterestShort
}

func openInterestInTokensPool(isLong bool) pool.Kind {
	if isLong {
		return pool.OpenInterestInTokensLong
	}
	return pool.OpenInterestInTokensShort
}

// OpenInterest returns the usd open interest on one side, summed over
// both collateral tokens.
func OpenInterest(m Market, isLong bool) (uint64, error) {
	p, err := m.Pool(openInterestPool(isLong))
	if err != nil {
		return 0, err
	}
	return poolTotal(p)
}

// OpenInterestInTokens returns the token-denominated open interest on
// one side, summed over both collateral tokens.
func OpenInterestInTokens(m Market, isLong bool) (uint64, error) {
	p, err := m.Pool(openInterestInTokensPool(isLong))
	if err != nil {
		return 0, err
	}
	return poolTotal(p)
}

func poolTotal(p *pool.Pool) (uint64, error) {
	long, err := p.LongAmount()
	if err != nil {
		return 0, err
	}
	short, err := p.ShortAmount()
	if err != nil {
		return 0, err
	}
	total, ok := fixedpoint.Add(long, short)
	if !ok {
		return 0, engineerr.ErrOverflow
	}
	return total, nil
}

// PnlValue returns the signed aggregate pnl of one side's open
// positions: the current value of the open interest in tokens against
// the usd value at which it was opened.
func PnlValue(m Market, prices Prices, isLong, maximize bool) (int64, error) {
	oiUsd, err := OpenInterest(m, isLong)
	if err != nil {
		return 0, err
	}
	oiTokens, err := OpenInterestInTokens(m, isLong)
	if err != nil {
		return 0, err
	}
	// Long pnl is maximized by the max index price, short pnl by the min.
	price := prices.IndexTokenPrice.Pick(maximize == isLong)
	currentValue, ok := fixedpoint.Mul(oiTokens, price)
	if !ok {
		return 0, engineerr.Computation("pricing open interest in tokens")
	}

	signedCurrent, ok := fixedpoint.ToSigned(currentValue)
	if !ok {
		return 0, engineerr.Convert("open interest value")
	}
	signedOpened, ok := fixedpoint.ToSigned(oiUsd)
	if !ok {
		return 0, engineerr.Convert("open interest usd")
	}
	if isLong {
		pnl, ok := fixedpoint.SignedSub(signedCurrent, signedOpened)
		if !ok {
			return 0, engineerr.Computation("long pnl")
		}
		return pnl, nil
	}
	pnl, ok := fixedpoint.SignedSub(signedOpened, signedCurrent)
	if !ok {
		return 0, engineerr.Computation("short pnl")
	}
	return pnl, nil
}

// PnlFactor returns the signed ratio of one side's pnl to the current
// pool value.
func PnlFactor(m Market, prices Prices, isLong, maximize bool) (int64, error) {
	poolValue, err := LiquidityPoolValue(m, prices, !maximize)
	if err != nil {
		return 0, err
	}
	if poolValue == 0 {
		return 0, engineerr.ErrDivideByZero
	}
	pnl, err := PnlValue(m, prices, isLong, maximize)
	if err != nil {
		return 0, err
	}
	factor, ok := fixedpoint.MulDivSignedNumerator(fixedpoint.Unit, pnl, poolValue)
	if !ok {
		return 0, engineerr.Computation("pnl factor")
	}
	return factor, nil
}

// ValidatePoolAmount checks the primary pool side against its cap.
func ValidatePoolAmount(m Market, isLong bool) error {
	primary, err := m.Pool(pool.Primary)
	if err != nil {
		return err
	}
	amount, err := primary.Amount(isLong)
	if err != nil {
		return err
	}
	if amount > m.Config().MaxPoolAmount.Get(isLong) {
		return engineerr.PoolAmountExceeded(isLong)
	}
	return nil
}

// ReservedValue returns the usd value positions on one side reserve
// from the pool: longs reserve the token exposure at the max index
// price, shorts reserve the usd they were opened at.
func ReservedValue(m Market, prices Prices, isLong bool) (uint64, error) {
	if isLong {
		oiTokens, err := OpenInterestInTokens(m, true)
		if err != nil {
			return 0, err
		}
		value, ok := fixedpoint.Mul(oiTokens, prices.IndexTokenPrice.Max)
		if !ok {
			return 0, engineerr.Computation("long reserved value")
		}
		return value, nil
	}
	return OpenInterest(m, false)
}

func sidePoolValue(m Market, prices Prices, isLong bool) (uint64, error) {
	primary, err := m.Pool(pool.Primary)
	if err != nil {
		return 0, err
	}
	if isLong {
		return primary.LongUsdValue(prices.LongTokenPrice.Min)
	}
	return primary.ShortUsdValue(prices.ShortTokenPrice.Min)
}

func validateReserveWithFactor(m Market, prices Prices, isLong bool, factor uint64) error {
	poolValue, err := sidePoolValue(m, prices, isLong)
	if err != nil {
		return err
	}
	maxReserved, ok := fixedpoint.ApplyFactor(poolValue, factor)
	if !ok {
		return engineerr.Computation("max reserved value")
	}
	reserved, err := ReservedValue(m, prices, isLong)
	if err != nil {
		return err
	}
	if reserved > maxReserved {
		return engineerr.InsufficientReserve(isLong)
	}
	return nil
}

// ValidateReserve checks one side's reserved value against the
// reserve factor.
func ValidateReserve(m Market, prices Prices, isLong bool) error {
	return validateReserveWithFactor(m, prices, isLong, m.Config().ReserveFactor)
}

// ValidateOpenInterestReserve checks one side's reserved value against
// the open interest reserve factor.
func ValidateOpenInterestReserve(m Market, prices Prices, isLong bool) error {
	return validateReserveWithFactor(m, prices, isLong, m.Config().OpenInterestReserveFactor)
}

// ValidateOpenInterest checks one side's usd open interest against its
// cap.
func ValidateOpenInterest(m Market, isLong bool) error {
	oi, err := OpenInterest(m, isLong)
	if err != nil {
		return err
	}
	if oi > m.Config().MaxOpenInterest.Get(isLong) {
		return engineerr.OpenInterestExceeded(isLong)
	}
	return nil
}

// ValidateMaxPnl checks both sides' pnl factors, each against its own
// configured cap.
func ValidateMaxPnl(m Market, prices Prices, longKind, shortKind PnlFactorKind) error {
	if err := validateSideMaxPnl(m, prices, true, longKind); err != nil {
		return err
	}
	return validateSideMaxPnl(m, prices, false, shortKind)
}

func validateSideMaxPnl(m Market, prices Prices, isLong bool, kind PnlFactorKind) error {
	factor, err := PnlFactor(m, prices, isLong, true)
	if err != nil {
		return err
	}
	if factor <= 0 {
		return nil
	}
	max, err := m.Config().MaxPnlFactor(kind, isLong)
	if err != nil {
		return err
	}
	signedMax, ok := fixedpoint.ToSigned(max)
	if !ok {
		return engineerr.Convert("max pnl factor")
	}
	if factor > signedMax {
		return engineerr.PnlFactorExceeded(kind.String(), isLong)
	}
	return nil
}

// SwapImpactAmountWithCap converts a usd price impact into a token
// amount. A positive impact pays out of the swap impact pool and is
// capped by the pool's balance on that side; a negative impact rounds
// the charged amount up.
func SwapImpactAmountWithCap(m Market, isLongToken bool, price Price, usdImpact int64) (int64, error) {
	if price.HasZero() {
		return 0, engineerr.ErrDivideByZero
	}
	switch {
	case usdImpact > 0:
		picked, ok := fixedpoint.ToSigned(price.Pick(true))
		if !ok {
			return 0, engineerr.Convert("impact price")
		}
		amount := usdImpact / picked
		impactPool, err := m.Pool(pool.SwapImpact)
		if err != nil {
			return 0, err
		}
		maxAmount, err := impactPool.Amount(isLongToken)
		if err != nil {
			return 0, err
		}
		if fixedpoint.SignedAbs(amount) > maxAmount {
			capped, ok := fixedpoint.ToSigned(maxAmount)
			if !ok {
				return 0, engineerr.Convert("capped impact amount")
			}
			amount = capped
		}
		return amount, nil
	case usdImpact < 0:
		picked, ok := fixedpoint.ToSigned(price.Pick(false))
		if !ok {
			return 0, engineerr.Convert("impact price")
		}
		// Round the charge up so the pool never undercollects.
		amount, ok := fixedpoint.SignedSub(usdImpact, picked-1)
		if !ok {
			return 0, engineerr.Computation("rounding up swap impact amount")
		}
		return amount / picked, nil
	default:
		return 0, nil
	}
}

// ApplySwapImpactValueWithCap settles a usd impact against the swap
// impact pool and returns the token amount moved. A positive impact
// drains the pool, a negative impact fills it.
func ApplySwapImpactValueWithCap(m Market, isLongToken bool, price Price, usdImpact int64) (uint64, error) {
	amount, err := SwapImpactAmountWithCap(m, isLongToken, price, usdImpact)
	if err != nil {
		return 0, err
	}
	delta, ok := fixedpoint.Neg(amount)
	if !ok {
		return 0, engineerr.Computation("negating swap impact delta")
	}
	impactPool, err := m.Pool(pool.SwapImpact)
	if err != nil {
		return 0, err
	}
	if err := impactPool.ApplyDelta(isLongToken, delta); err != nil {
		return 0, err
	}
	return fixedpoint.SignedAbs(delta), nil
}
