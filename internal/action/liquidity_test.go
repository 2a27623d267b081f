package action_test

import (
	"errors"
	"testing"

	"PerpCore/internal/action"
	"PerpCore/internal/engineerr"
	"PerpCore/internal/pool"
)

func TestDepositMintsSupplyAndFillsPool(t *testing.T) {
	m := newTestMarket()
	prices := testPrices(120, 120, 1)

	report := mustDeposit(t, m, 1_000_000_000, 0, prices)
	if report.Minted == 0 {
		t.Fatal("no market tokens minted")
	}
	if m.TotalSupply() != report.Minted {
		t.Errorf("supply %d, want %d", m.TotalSupply(), report.Minted)
	}

	// The first one-sided deposit pays negative impact into the swap
	// impact pool; the rest lands in the primary pool minus the
	// receiver's fee share.
	long := poolAmount(t, m, pool.Primary, true)
	impactLong := poolAmount(t, m, pool.SwapImpact, true)
	wantLong := uint64(1_000_000_000) - report.LongTokenFees.FeeReceiverAmount - impactLong
	if long != wantLong {
		t.Errorf("long pool %d, want %d", long, wantLong)
	}
	if impactLong == 0 {
		t.Error("imbalanced deposit left the swap impact pool empty")
	}
}

func TestDepositEmpty(t *testing.T) {
	m := newTestMarket()
	_, err := action.Deposit(m, 0, 0, testPrices(120, 120, 1))
	if !errors.Is(err, engineerr.ErrEmptyDeposit) {
		t.Fatalf("err = %v, want ErrEmptyDeposit", err)
	}
}

func TestWithdrawalEmpty(t *testing.T) {
	m := newTestMarket()
	_, err := action.Withdrawal(m, 0, testPrices(120, 120, 1))
	if !errors.Is(err, engineerr.ErrEmptyWithdrawal) {
		t.Fatalf("err = %v, want ErrEmptyWithdrawal", err)
	}
}

// A full round trip must never pay out more value than was deposited.
func TestDepositWithdrawRoundTrip(t *testing.T) {
	m := newTestMarket()
	prices := testPrices(120, 120, 1)

	const longIn, shortIn = 1_000_000_000, 120_000_000_000
	mustDeposit(t, m, longIn, shortIn, prices)
	minted := m.TotalSupply()

	report, err := action.Withdrawal(m, minted, prices)
	if err != nil {
		t.Fatal(err)
	}
	if m.TotalSupply() != 0 {
		t.Errorf("supply %d after full withdrawal, want 0", m.TotalSupply())
	}
	if report.LongTokenOutput > longIn {
		t.Errorf("long output %d exceeds deposit %d", report.LongTokenOutput, longIn)
	}
	if report.ShortTokenOutput > shortIn {
		t.Errorf("short output %d exceeds deposit %d", report.ShortTokenOutput, shortIn)
	}

	valueIn := longIn*120 + shortIn
	valueOut := report.LongTokenOutput*120 + report.ShortTokenOutput
	if valueOut > uint64(valueIn) {
		t.Errorf("value out %d exceeds value in %d", valueOut, valueIn)
	}
}

func TestWithdrawalSplitsProRata(t *testing.T) {
	m := newTestMarket()
	prices := testPrices(100, 100, 1)
	mustDeposit(t, m, 1_000_000_000, 100_000_000_000, prices)
	minted := m.TotalSupply()

	// Withdrawing half the supply should pay roughly half of each side.
	report, err := action.Withdrawal(m, minted/2, prices)
	if err != nil {
		t.Fatal(err)
	}
	longLeft := poolAmount(t, m, pool.Primary, true)
	shortLeft := poolAmount(t, m, pool.Primary, false)
	if report.LongTokenOutput == 0 || report.ShortTokenOutput == 0 {
		t.Fatalf("one-sided withdrawal: long %d short %d", report.LongTokenOutput, report.ShortTokenOutput)
	}
	if longLeft < report.LongTokenOutput || shortLeft < report.ShortTokenOutput {
		t.Errorf("pool smaller than payout: long %d/%d short %d/%d",
			longLeft, report.LongTokenOutput, shortLeft, report.ShortTokenOutput)
	}
}
