package state_test

import (
	"testing"

	"PerpCore/internal/state"
)

func TestGetOrCreateReturnsSameInstance(t *testing.T) {
	store := state.NewPositionStore()
	key := state.PositionKey{Owner: "alice", MarketToken: "GM-WBTC-USDG", CollateralToken: "WBTC", IsLong: true}

	pos := store.GetOrCreate(key)
	if pos == nil {
		t.Fatal("expected position")
	}
	if pos.Owner != "alice" || pos.MarketToken != "GM-WBTC-USDG" || !pos.IsLong {
		t.Fatalf("key fields not copied: %+v", pos)
	}

	pos.SizeInUsd = 100
	again := store.GetOrCreate(key)
	if again != pos {
		t.Fatal("expected same instance on second GetOrCreate")
	}
	if again.SizeInUsd != 100 {
		t.Fatalf("size: got %d, want 100", again.SizeInUsd)
	}
}

func TestLongAndShortAreDistinct(t *testing.T) {
	store := state.NewPositionStore()
	long := state.PositionKey{Owner: "alice", MarketToken: "GM-WBTC-USDG", CollateralToken: "WBTC", IsLong: true}
	short := long
	short.IsLong = false

	store.GetOrCreate(long).SizeInUsd = 1
	store.GetOrCreate(short).SizeInUsd = 2

	if store.Len() != 2 {
		t.Fatalf("len: got %d, want 2", store.Len())
	}
	if store.Get(long).SizeInUsd != 1 || store.Get(short).SizeInUsd != 2 {
		t.Fatal("long and short positions collided")
	}
}

func TestRemove(t *testing.T) {
	store := state.NewPositionStore()
	key := state.PositionKey{Owner: "alice", MarketToken: "GM-WBTC-USDG", CollateralToken: "WBTC", IsLong: true}

	store.GetOrCreate(key)
	store.Remove(key)
	if store.Get(key) != nil {
		t.Fatal("expected position removed")
	}
	if store.Len() != 0 {
		t.Fatalf("len: got %d, want 0", store.Len())
	}
}

func TestIterationOrderIsDeterministic(t *testing.T) {
	build := func() []string {
		store := state.NewPositionStore()
		keys := []state.PositionKey{
			{Owner: "carol", MarketToken: "GM-WETH-USDG", CollateralToken: "USDG", IsLong: false},
			{Owner: "alice", MarketToken: "GM-WBTC-USDG", CollateralToken: "WBTC", IsLong: true},
			{Owner: "alice", MarketToken: "GM-WBTC-USDG", CollateralToken: "WBTC", IsLong: false},
			{Owner: "bob", MarketToken: "GM-WBTC-USDG", CollateralToken: "USDG", IsLong: true},
		}
		for _, k := range keys {
			store.GetOrCreate(k)
		}
		var owners []string
		for _, pos := range store.All() {
			owners = append(owners, pos.Owner)
		}
		return owners
	}

	first := build()
	for i := 0; i < 10; i++ {
		next := build()
		for j := range first {
			if next[j] != first[j] {
				t.Fatalf("iteration order changed between runs: %v vs %v", first, next)
			}
		}
	}

	want := []string{"alice", "alice", "bob", "carol"}
	for i, owner := range want {
		if first[i] != owner {
			t.Fatalf("order: got %v, want %v", first, want)
		}
	}
}

func TestByMarketFilters(t *testing.T) {
	store := state.NewPositionStore()
	store.GetOrCreate(state.PositionKey{Owner: "alice", MarketToken: "GM-WBTC-USDG", CollateralToken: "WBTC", IsLong: true})
	store.GetOrCreate(state.PositionKey{Owner: "bob", MarketToken: "GM-WETH-USDG", CollateralToken: "WETH", IsLong: true})

	btc := store.ByMarket("GM-WBTC-USDG")
	if len(btc) != 1 || btc[0].Owner != "alice" {
		t.Fatalf("ByMarket: got %d positions, want alice only", len(btc))
	}

	alice := store.ByOwner("alice")
	if len(alice) != 1 || alice[0].MarketToken != "GM-WBTC-USDG" {
		t.Fatalf("ByOwner: got %d positions, want GM-WBTC-USDG only", len(alice))
	}
}
