package ledger

import "fmt"

// ValidatePlanConserves verifies that a plan neither creates nor
// destroys tokens: every transfer moves between two named banks, every
// mint has a receiver, every burn has a payer, and amounts fit int64.
func ValidatePlanConserves(entries []Entry) error {
	for i, e := range entries {
		if e.Token == "" {
			return fmt.Errorf("entry %d: empty token", i)
		}
		if e.Amount == 0 {
			return fmt.Errorf("entry %d: zero amount", i)
		}
		if e.Amount > uint64(1)<<62 {
			return fmt.Errorf("entry %d: amount %d out of range", i, e.Amount)
		}
		switch {
		case e.IsMint && e.IsBurn:
			return fmt.Errorf("entry %d: both mint and burn", i)
		case e.IsMint:
			if e.ToBank == "" || e.FromBank != "" {
				return fmt.Errorf("entry %d: mint must have only a receiver", i)
			}
		case e.IsBurn:
			if e.FromBank == "" || e.ToBank != "" {
				return fmt.Errorf("entry %d: burn must have only a payer", i)
			}
		default:
			if e.FromBank == "" || e.ToBank == "" {
				return fmt.Errorf("entry %d: transfer missing a bank", i)
			}
			if e.FromBank == e.ToBank {
				return fmt.Errorf("entry %d: transfer from a bank to itself", i)
			}
		}
	}
	return nil
}

// TokenVolumes sums the gross amount moved per token, mints and burns
// excluded. Used for volume accounting on committed plans.
func TokenVolumes(entries []Entry) map[string]uint64 {
	volumes := make(map[string]uint64)
	for _, e := range entries {
		if e.IsMint || e.IsBurn {
			continue
		}
		volumes[e.Token] += e.Amount
	}
	return volumes
}
