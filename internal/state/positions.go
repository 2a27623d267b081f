// Package state holds the mutable position set the execution loop
// owns. Market state itself lives in market.Base; this package only
// tracks which positions exist.
package state

import (
	"sort"

	"PerpCore/internal/position"
)

// PositionKey identifies one position. A trader can hold a long and a
// short in the same market, with either collateral token.
type PositionKey struct {
	Owner           string
	MarketToken     string
	CollateralToken string
	IsLong          bool
}

// PositionStore manages positions by key.
// Not thread-safe; only the execution loop touches it.
type PositionStore struct {
	positions map[PositionKey]*position.Position
}

func NewPositionStore() *PositionStore {
	return &PositionStore{
		positions: make(map[PositionKey]*position.Position),
	}
}

// Get returns the position or nil.
func (ps *PositionStore) Get(key PositionKey) *position.Position {
	return ps.positions[key]
}

// GetOrCreate returns the existing position or creates an empty one.
func (ps *PositionStore) GetOrCreate(key PositionKey) *position.Position {
	pos := ps.positions[key]
	if pos == nil {
		pos = &position.Position{
			Owner:           key.Owner,
			MarketToken:     key.MarketToken,
			CollateralToken: key.CollateralToken,
			IsLong:          key.IsLong,
		}
		ps.positions[key] = pos
	}
	return pos
}

// Remove deletes the position. Called after a full close.
func (ps *PositionStore) Remove(key PositionKey) {
	delete(ps.positions, key)
}

// Set inserts a position under its own key. Used on snapshot restore.
func (ps *PositionStore) Set(pos *position.Position) {
	ps.positions[keyOf(pos)] = pos
}

// ByOwner returns the owner's positions in a deterministic order.
func (ps *PositionStore) ByOwner(owner string) []*position.Position {
	var out []*position.Position
	for _, pos := range ps.positions {
		if pos.Owner == owner {
			out = append(out, pos)
		}
	}
	sortPositions(out)
	return out
}

// ByMarket returns all positions in a market in a deterministic order.
// Forced-close sweeps (liquidation, ADL) iterate this.
func (ps *PositionStore) ByMarket(marketToken string) []*position.Position {
	var out []*position.Position
	for _, pos := range ps.positions {
		if pos.MarketToken == marketToken {
			out = append(out, pos)
		}
	}
	sortPositions(out)
	return out
}

// All returns every position in a deterministic order.
func (ps *PositionStore) All() []*position.Position {
	out := make([]*position.Position, 0, len(ps.positions))
	for _, pos := range ps.positions {
		out = append(out, pos)
	}
	sortPositions(out)
	return out
}

// Len returns the number of positions.
func (ps *PositionStore) Len() int {
	return len(ps.positions)
}

func keyOf(pos *position.Position) PositionKey {
	return PositionKey{
		Owner:           pos.Owner,
		MarketToken:     pos.MarketToken,
		CollateralToken: pos.CollateralToken,
		IsLong:          pos.IsLong,
	}
}

// Map iteration order is random; every caller that walks the store
// needs a stable order so runs are reproducible.
func sortPositions(positions []*position.Position) {
	sort.Slice(positions, func(i, j int) bool {
		a, b := positions[i], positions[j]
		if a.Owner != b.Owner {
			return a.Owner < b.Owner
		}
		if a.MarketToken != b.MarketToken {
			return a.MarketToken < b.MarketToken
		}
		if a.CollateralToken != b.CollateralToken {
			return a.CollateralToken < b.CollateralToken
		}
		return !a.IsLong && b.IsLong
	})
}
