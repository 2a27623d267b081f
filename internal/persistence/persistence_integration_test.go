package persistence_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"PerpCore/internal/market"
	"PerpCore/internal/persistence"
	"PerpCore/internal/position"
	"PerpCore/internal/testutil"

	"github.com/google/uuid"
)

func setupMigratedDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	migrator := persistence.NewMigrator(db, "../../migrations")
	if err := migrator.Up(ctx); err != nil {
		cleanup()
		t.Fatalf("migrate: %v", err)
	}
	return db, cleanup
}

func executedRecord(actionID string) persistence.Record {
	planID := uuid.NewString()
	return persistence.Record{
		Action: persistence.ActionRow{
			ActionID:    actionID,
			PlanID:      planID,
			Kind:        "deposit",
			MarketToken: "GM-WBTC-USDG",
			Owner:       "alice",
			Status:      "executed",
			Report:      []byte(`{"minted":100}`),
			Timestamp:   time.Now().UTC(),
		},
		Transfers: []persistence.TransferRow{
			{PlanID: planID, EntryIdx: 0, EntryType: "transfer", Token: "WBTC", FromBank: "alice", ToBank: "vault:GM-WBTC-USDG", Amount: 1_000_000_000},
			{PlanID: planID, EntryIdx: 1, EntryType: "mint", Token: "GM-WBTC-USDG", ToBank: "alice", Amount: 100},
		},
	}
}

func TestWorkerFlushesAndCheckerFindsDuplicate(t *testing.T) {
	db, cleanup := setupMigratedDB(t)
	defer cleanup()

	input := make(chan persistence.Record, 4)
	worker := persistence.NewWorker(db, input, 2, 20*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	actionID := uuid.NewString()
	input <- executedRecord(actionID)
	input <- executedRecord(uuid.NewString())

	// Batch size 2 forces an immediate flush.
	deadline := time.Now().Add(5 * time.Second)
	checker := persistence.NewRequestChecker(db)
	for {
		isDup, err := checker.IsDuplicate(actionID)
		if err != nil {
			t.Fatalf("duplicate check: %v", err)
		}
		if isDup {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("flushed action never appeared in the log")
		}
		time.Sleep(10 * time.Millisecond)
	}

	isDup, err := checker.IsDuplicate(uuid.NewString())
	if err != nil {
		t.Fatalf("duplicate check: %v", err)
	}
	if isDup {
		t.Fatal("unknown action reported as duplicate")
	}

	var transferCount int
	if err := db.QueryRow(`SELECT COUNT(*) FROM engine_log.transfers`).Scan(&transferCount); err != nil {
		t.Fatal(err)
	}
	if transferCount != 4 {
		t.Fatalf("transfer rows = %d, want 4", transferCount)
	}

	cancel()
	<-done
}

func TestDuplicateActionRowIsIgnoredOnConflict(t *testing.T) {
	db, cleanup := setupMigratedDB(t)
	defer cleanup()

	input := make(chan persistence.Record, 4)
	worker := persistence.NewWorker(db, input, 1, 20*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.Run(ctx)
		close(done)
	}()

	actionID := uuid.NewString()
	input <- executedRecord(actionID)
	input <- executedRecord(actionID)

	deadline := time.Now().Add(5 * time.Second)
	for {
		var count int
		if err := db.QueryRow(`SELECT COUNT(*) FROM engine_log.actions WHERE action_id = $1`, actionID).Scan(&count); err != nil {
			t.Fatal(err)
		}
		if count == 1 {
			break
		}
		if count > 1 {
			t.Fatalf("action written %d times", count)
		}
		if time.Now().After(deadline) {
			t.Fatal("action never flushed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	<-done
}

func TestSnapshotRoundTrip(t *testing.T) {
	db, cleanup := setupMigratedDB(t)
	defer cleanup()

	m := market.New(market.Meta{
		MarketToken: "GM-WBTC-USDG",
		IndexToken:  "WBTC",
		LongToken:   "WBTC",
		ShortToken:  "USDG",
	}, market.Config{})
	m.SetTotalSupply(12345)
	m.SetFundingFactorPerSecond(-77)

	pos := &position.Position{
		Owner:            "alice",
		MarketToken:      "GM-WBTC-USDG",
		CollateralToken:  "WBTC",
		IsLong:           true,
		SizeInUsd:        10_000_000_000_000,
		SizeInTokens:     100_000_000_000,
		CollateralAmount: 50_000_000_000,
		BorrowingFactor:  42,
		TradeID:          7,
	}

	snap, err := persistence.CaptureMarket(m, []*position.Position{pos})
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	ctx := context.Background()
	sm := persistence.NewSnapshotManager(db)
	if err := sm.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}
	// A second save replaces the first.
	if err := sm.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("second save: %v", err)
	}

	loaded, err := sm.LoadSnapshots(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("loaded %d snapshots, want 1", len(loaded))
	}

	restored, err := persistence.RestoreMarket(loaded[0])
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.TotalSupply() != 12345 {
		t.Fatalf("supply = %d, want 12345", restored.TotalSupply())
	}
	if restored.FundingFactorPerSecond() != -77 {
		t.Fatalf("funding factor = %d, want -77", restored.FundingFactorPerSecond())
	}
	if restored.Meta() != m.Meta() {
		t.Fatalf("meta = %+v", restored.Meta())
	}

	restoredPositions := loaded[0].RestorePositions()
	if len(restoredPositions) != 1 {
		t.Fatalf("restored %d positions, want 1", len(restoredPositions))
	}
	if *restoredPositions[0] != *pos {
		t.Fatalf("position = %+v, want %+v", *restoredPositions[0], *pos)
	}
}
