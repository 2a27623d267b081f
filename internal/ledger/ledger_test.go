package ledger_test

import (
	"testing"

	"PerpCore/internal/ledger"
)

func TestApplyTransferMovesBalance(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	bt.SetBalance(ledger.BankKey{Bank: "alice", Token: "WBTC"}, 1_000)

	err := bt.ApplyPlan([]ledger.Entry{
		{Token: "WBTC", FromBank: "alice", ToBank: "vault:GM-WBTC-USDG", Amount: 400},
	})
	if err != nil {
		t.Fatalf("apply plan: %v", err)
	}

	if got := bt.Balance("alice", "WBTC"); got != 600 {
		t.Errorf("alice: got %d, want 600", got)
	}
	if got := bt.Balance("vault:GM-WBTC-USDG", "WBTC"); got != 400 {
		t.Errorf("vault: got %d, want 400", got)
	}
}

func TestMintAndBurnTrackSupply(t *testing.T) {
	bt := ledger.NewBalanceTracker()

	err := bt.ApplyPlan([]ledger.Entry{
		{Token: "GM-WBTC-USDG", ToBank: "alice", Amount: 500, IsMint: true},
	})
	if err != nil {
		t.Fatalf("apply mint: %v", err)
	}
	if got := bt.MintedSupply("GM-WBTC-USDG"); got != 500 {
		t.Errorf("supply after mint: got %d, want 500", got)
	}
	if got := bt.Balance("alice", "GM-WBTC-USDG"); got != 500 {
		t.Errorf("alice market tokens: got %d, want 500", got)
	}

	err = bt.ApplyPlan([]ledger.Entry{
		{Token: "GM-WBTC-USDG", FromBank: "alice", Amount: 200, IsBurn: true},
	})
	if err != nil {
		t.Fatalf("apply burn: %v", err)
	}
	if got := bt.MintedSupply("GM-WBTC-USDG"); got != 300 {
		t.Errorf("supply after burn: got %d, want 300", got)
	}
	if got := bt.Balance("alice", "GM-WBTC-USDG"); got != 300 {
		t.Errorf("alice market tokens: got %d, want 300", got)
	}
}

func TestValidatePlanConserves(t *testing.T) {
	cases := []struct {
		name    string
		entries []ledger.Entry
		wantErr bool
	}{
		{
			name: "valid transfer",
			entries: []ledger.Entry{
				{Token: "WBTC", FromBank: "a", ToBank: "b", Amount: 1},
			},
		},
		{
			name: "valid mint",
			entries: []ledger.Entry{
				{Token: "GM", ToBank: "a", Amount: 1, IsMint: true},
			},
		},
		{
			name: "valid burn",
			entries: []ledger.Entry{
				{Token: "GM", FromBank: "a", Amount: 1, IsBurn: true},
			},
		},
		{
			name:    "zero amount",
			entries: []ledger.Entry{{Token: "WBTC", FromBank: "a", ToBank: "b", Amount: 0}},
			wantErr: true,
		},
		{
			name:    "empty token",
			entries: []ledger.Entry{{FromBank: "a", ToBank: "b", Amount: 1}},
			wantErr: true,
		},
		{
			name:    "transfer missing bank",
			entries: []ledger.Entry{{Token: "WBTC", FromBank: "a", Amount: 1}},
			wantErr: true,
		},
		{
			name:    "self transfer",
			entries: []ledger.Entry{{Token: "WBTC", FromBank: "a", ToBank: "a", Amount: 1}},
			wantErr: true,
		},
		{
			name:    "mint with payer",
			entries: []ledger.Entry{{Token: "GM", FromBank: "x", ToBank: "a", Amount: 1, IsMint: true}},
			wantErr: true,
		},
		{
			name:    "burn with receiver",
			entries: []ledger.Entry{{Token: "GM", FromBank: "a", ToBank: "x", Amount: 1, IsBurn: true}},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ledger.ValidatePlanConserves(tc.entries)
			if tc.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestInvalidPlanLeavesBalancesUntouched(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	bt.SetBalance(ledger.BankKey{Bank: "alice", Token: "WBTC"}, 100)

	err := bt.ApplyPlan([]ledger.Entry{
		{Token: "WBTC", FromBank: "alice", ToBank: "vault:X", Amount: 50},
		{Token: "WBTC", FromBank: "alice", ToBank: "", Amount: 10},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := bt.Balance("alice", "WBTC"); got != 100 {
		t.Errorf("alice: got %d, want 100 (no partial application)", got)
	}
}

func TestVaultNonNegative(t *testing.T) {
	bt := ledger.NewBalanceTracker()
	if err := bt.ApplyPlan([]ledger.Entry{
		{Token: "WBTC", FromBank: "vault:GM-WBTC-USDG", ToBank: "alice", Amount: 5},
	}); err != nil {
		t.Fatalf("apply plan: %v", err)
	}

	if err := bt.ValidateVaultNonNegative("vault:GM-WBTC-USDG", "WBTC"); err == nil {
		t.Fatal("expected negative vault error")
	}
}

func TestTokenVolumes(t *testing.T) {
	volumes := ledger.TokenVolumes([]ledger.Entry{
		{Token: "WBTC", FromBank: "a", ToBank: "v1", Amount: 10},
		{Token: "USDG", FromBank: "v1", ToBank: "v2", Amount: 7},
		{Token: "USDG", FromBank: "v2", ToBank: "a", Amount: 3},
		{Token: "GM", ToBank: "a", Amount: 100, IsMint: true},
	})

	if volumes["WBTC"] != 10 {
		t.Errorf("WBTC: got %d, want 10", volumes["WBTC"])
	}
	if volumes["USDG"] != 10 {
		t.Errorf("USDG: got %d, want 10", volumes["USDG"])
	}
	if _, ok := volumes["GM"]; ok {
		t.Error("mints must not count toward volume")
	}
}
