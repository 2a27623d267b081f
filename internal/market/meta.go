package market

// Meta is the immutable identity of a market: its share token and the
// three tokens it trades. A market whose long and short tokens are the
// same token is pure and folds both sides of most pools into one slot.
type Meta struct {
	MarketToken string
	IndexToken  string
	LongToken   string
	ShortToken  string
}

// IsPure reports whether both sides are backed by the same token.
func (m Meta) IsPure() bool {
	return m.LongToken == m.ShortToken
}

// UsdToAmountDivisor is the divisor used when converting usd value to
// market token amounts. A pure market counts its single token once for
// both sides, so conversions halve.
func (m Meta) UsdToAmountDivisor() uint64 {
	if m.IsPure() {
		return 2
	}
	return 1
}

// Token returns the long or short token mint.
func (m Meta) Token(isLong bool) string {
	if isLong {
		return m.LongToken
	}
	return m.ShortToken
}

// OppositeToken returns the other side's token mint.
func (m Meta) OppositeToken(token string) (string, bool) {
	switch token {
	case m.LongToken:
		return m.ShortToken, true
	case m.ShortToken:
		return m.LongToken, true
	default:
		return "", false
	}
}

// IsLongToken reports whether the token is the market's long token.
// The second result is false when the token does not belong to the
// market at all.
func (m Meta) IsLongToken(token string) (bool, bool) {
	switch token {
	case m.LongToken:
		return true, true
	case m.ShortToken:
		return false, true
	default:
		return false, false
	}
}
