// Package ledger tracks external token balances per bank and validates
// that transfer plans conserve tokens. The engine's revertible banks
// cover in-market balances; this package mirrors the plans the host is
// asked to execute, so a bug that fabricates tokens is caught before
// anything leaves the process.
package ledger

import "fmt"

// BankKey identifies one token balance slot.
type BankKey struct {
	Bank  string
	Token string
}

// Entry is one movement from a transfer plan. Mint and burn entries
// use an empty FromBank or ToBank respectively.
type Entry struct {
	Token    string
	FromBank string
	ToBank   string
	Amount   uint64
	IsMint   bool
	IsBurn   bool
}

// BalanceTracker maintains in-memory bank balances.
// Not thread-safe; only the execution loop applies plans.
type BalanceTracker struct {
	balances map[BankKey]int64
	// minted - burned per market token, tracked so supply can be
	// reconciled against market.TotalSupply
	supply map[string]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[BankKey]int64),
		supply:   make(map[string]int64),
	}
}

// ApplyEntry applies a single plan entry to balances.
func (bt *BalanceTracker) ApplyEntry(e Entry) {
	switch {
	case e.IsMint:
		bt.balances[BankKey{Bank: e.ToBank, Token: e.Token}] += int64(e.Amount)
		bt.supply[e.Token] += int64(e.Amount)
	case e.IsBurn:
		bt.balances[BankKey{Bank: e.FromBank, Token: e.Token}] -= int64(e.Amount)
		bt.supply[e.Token] -= int64(e.Amount)
	default:
		bt.balances[BankKey{Bank: e.FromBank, Token: e.Token}] -= int64(e.Amount)
		bt.balances[BankKey{Bank: e.ToBank, Token: e.Token}] += int64(e.Amount)
	}
}

// ApplyPlan validates and applies all entries of a plan.
func (bt *BalanceTracker) ApplyPlan(entries []Entry) error {
	if err := ValidatePlanConserves(entries); err != nil {
		return fmt.Errorf("invalid plan: %w", err)
	}
	for _, e := range entries {
		bt.ApplyEntry(e)
	}
	return nil
}

// Balance returns the current balance for a bank and token.
func (bt *BalanceTracker) Balance(bank, token string) int64 {
	return bt.balances[BankKey{Bank: bank, Token: token}]
}

// MintedSupply returns net minted minus burned for a token.
func (bt *BalanceTracker) MintedSupply(token string) int64 {
	return bt.supply[token]
}

// Snapshot copies all balances for persistence.
func (bt *BalanceTracker) Snapshot() map[BankKey]int64 {
	out := make(map[BankKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		out[k] = v
	}
	return out
}

// SetBalance overwrites one slot. Used on snapshot restore.
func (bt *BalanceTracker) SetBalance(key BankKey, balance int64) {
	bt.balances[key] = balance
}

// ValidateVaultNonNegative checks that a vault never goes below zero.
// User banks are external and may legitimately be unknown to us, but a
// negative vault means a plan pays out tokens the market never held.
func (bt *BalanceTracker) ValidateVaultNonNegative(vault, token string) error {
	balance := bt.Balance(vault, token)
	if balance < 0 {
		return fmt.Errorf("vault %s has negative %s balance: %d", vault, token, balance)
	}
	return nil
}
