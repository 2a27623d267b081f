package engine

import (
	"PerpCore/internal/market"
	"PerpCore/internal/revertible"

	"github.com/google/uuid"
)

// TransferEntry is one token movement the host must perform.
type TransferEntry struct {
	Token    string
	FromBank string
	ToBank   string
	Amount   uint64
}

// MintEntry is a market token mint the host must perform.
type MintEntry struct {
	To     string
	Amount uint64
}

// BurnEntry is a market token burn the host must perform.
type BurnEntry struct {
	From   string
	Amount uint64
}

// TransferPlan is the ordered list of token movements an action
// produced. The core records balances as if the plan already ran; the
// host executes it after commit.
type TransferPlan struct {
	ID        uuid.UUID
	Transfers []TransferEntry
	Mints     []MintEntry
	Burns     []BurnEntry
}

func newTransferPlan() *TransferPlan {
	return &TransferPlan{ID: uuid.New()}
}

// VaultBank names the bank holding a market's token balances.
func VaultBank(meta market.Meta) string {
	return "vault:" + meta.MarketToken
}

// addOverlayTransfers folds one overlay's net bank movements into the
// plan. Inbound amounts move payer to vault, outbound vault to
// receiver; the overlay already validated the amounts.
func (p *TransferPlan) addOverlayTransfers(meta market.Meta, transfers []revertible.Transfer, payer, receiver string) {
	vault := VaultBank(meta)
	for _, t := range transfers {
		if t.Amount == 0 {
			continue
		}
		if t.Amount > 0 {
			p.Transfers = append(p.Transfers, TransferEntry{
				Token:    t.Token,
				FromBank: payer,
				ToBank:   vault,
				Amount:   uint64(t.Amount),
			})
			continue
		}
		p.Transfers = append(p.Transfers, TransferEntry{
			Token:    t.Token,
			FromBank: vault,
			ToBank:   receiver,
			Amount:   uint64(-t.Amount),
		})
	}
}

func (p *TransferPlan) addMint(to string, amount uint64) {
	if amount == 0 {
		return
	}
	p.Mints = append(p.Mints, MintEntry{To: to, Amount: amount})
}

func (p *TransferPlan) addBurn(from string, amount uint64) {
	if amount == 0 {
		return
	}
	p.Burns = append(p.Burns, BurnEntry{From: from, Amount: amount})
}
