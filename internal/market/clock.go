package market

// ClockKind identifies one of the per-market timestamps. The numeric
// values are part of the persisted log format and must never be
// reordered.
type ClockKind uint8

const (
	// ClockPriceImpactDistribution times the drip of the position
	// impact pool back into primary liquidity.
	ClockPriceImpactDistribution ClockKind = iota
	// ClockBorrowing times borrowing factor accumulation.
	ClockBorrowing
	// ClockFunding times funding accumulation.
	ClockFunding
	// ClockAdlLong records the last ADL update for the long side.
	ClockAdlLong
	// ClockAdlShort records the last ADL update for the short side.
	ClockAdlShort

	numClockKinds
)

// NumClockKinds is the number of clocks a market carries.
const NumClockKinds = int(numClockKinds)

var clockNames = [NumClockKinds]string{
	"price_impact_distribution",
	"borrowing",
	"funding",
	"adl_long",
	"adl_short",
}

func (k ClockKind) String() string {
	if int(k) >= NumClockKinds {
		return "unknown"
	}
	return clockNames[k]
}

// AllClockKinds returns every clock kind in tag order.
func AllClockKinds() []ClockKind {
	kinds := make([]ClockKind, NumClockKinds)
	for i := range kinds {
		kinds[i] = ClockKind(i)
	}
	return kinds
}

// ClockAdl returns the ADL clock for the given side.
func ClockAdl(isLong bool) ClockKind {
	if isLong {
		return ClockAdlLong
	}
	return ClockAdlShort
}

// JustPassedInSeconds advances the given clock to now and returns the
// elapsed seconds. A clock ahead of now yields zero and is left
// untouched, so a receding host clock never produces negative
// durations.
func JustPassedInSeconds(m Market, kind ClockKind, now int64) (uint64, error) {
	last, err := m.Clock(kind)
	if err != nil {
		return 0, err
	}
	if now <= last {
		return 0, nil
	}
	if err := m.SetClock(kind, now); err != nil {
		return 0, err
	}
	return uint64(now - last), nil
}
