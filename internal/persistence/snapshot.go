package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"PerpCore/internal/market"
	"PerpCore/internal/pool"
	"PerpCore/internal/position"
)

// SnapshotManager saves and restores full market state for recovery.
// A snapshot is one market serialized whole: pools, clocks, scalar
// state, config, supply and the market's open positions.
type SnapshotManager struct {
	db *sql.DB
}

// PoolSnap is one pool's raw storage slots. Pure pools keep their
// folded long slot as stored; the halving is reapplied on read.
type PoolSnap struct {
	Long  uint64 `json:"long"`
	Short uint64 `json:"short"`
}

// MarketSnapshot is a serializable market. Pools and clocks are
// positional by their persisted tag values. Positions are stored with
// the market because the open interest pools are meaningless without
// them: restoring one and not the other would leave phantom exposure.
type MarketSnapshot struct {
	Meta        market.Meta         `json:"meta"`
	Config      market.Config       `json:"config"`
	Pools       []PoolSnap          `json:"pools"`
	Clocks      []int64             `json:"clocks"`
	State       market.State        `json:"state"`
	TotalSupply uint64              `json:"total_supply"`
	Positions   []position.Position `json:"positions,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

func NewSnapshotManager(db *sql.DB) *SnapshotManager {
	return &SnapshotManager{db: db}
}

// CaptureMarket serializes one market together with its open
// positions.
func CaptureMarket(b *market.Base, positions []*position.Position) (*MarketSnapshot, error) {
	snap := &MarketSnapshot{
		Meta:        b.Meta(),
		Config:      *b.Config(),
		Pools:       make([]PoolSnap, pool.NumKinds),
		Clocks:      make([]int64, market.NumClockKinds),
		State:       b.State(),
		TotalSupply: b.TotalSupply(),
		CreatedAt:   time.Now().UTC(),
	}
	for _, p := range positions {
		snap.Positions = append(snap.Positions, *p)
	}
	for _, kind := range pool.AllKinds() {
		p, err := b.Pool(kind)
		if err != nil {
			return nil, fmt.Errorf("snapshot pool %s: %w", kind, err)
		}
		long, short := p.RawAmounts()
		snap.Pools[kind] = PoolSnap{Long: long, Short: short}
	}
	for _, kind := range market.AllClockKinds() {
		ts, err := b.Clock(kind)
		if err != nil {
			return nil, fmt.Errorf("snapshot clock %s: %w", kind, err)
		}
		snap.Clocks[kind] = ts
	}
	return snap, nil
}

// RestoreMarket rebuilds a market from its snapshot.
func RestoreMarket(snap *MarketSnapshot) (*market.Base, error) {
	if len(snap.Pools) != pool.NumKinds {
		return nil, fmt.Errorf("snapshot has %d pools, want %d", len(snap.Pools), pool.NumKinds)
	}
	if len(snap.Clocks) != market.NumClockKinds {
		return nil, fmt.Errorf("snapshot has %d clocks, want %d", len(snap.Clocks), market.NumClockKinds)
	}
	b := market.New(snap.Meta, snap.Config)
	for _, kind := range pool.AllKinds() {
		p, err := b.Pool(kind)
		if err != nil {
			return nil, err
		}
		restored := p.Clone()
		restored.SetRawAmounts(snap.Pools[kind].Long, snap.Pools[kind].Short)
		if err := b.SetPool(kind, restored); err != nil {
			return nil, err
		}
	}
	for _, kind := range market.AllClockKinds() {
		if err := b.SetClock(kind, snap.Clocks[kind]); err != nil {
			return nil, err
		}
	}
	b.SetState(snap.State)
	b.SetTotalSupply(snap.TotalSupply)
	return b, nil
}

// RestorePositions rebuilds the position objects a snapshot carries.
// The caller re-inserts them into its position store under their own
// keys.
func (snap *MarketSnapshot) RestorePositions() []*position.Position {
	out := make([]*position.Position, len(snap.Positions))
	for i := range snap.Positions {
		p := snap.Positions[i]
		out[i] = &p
	}
	return out
}

// SaveSnapshot persists one market snapshot, replacing any previous
// snapshot of the same market.
func (sm *SnapshotManager) SaveSnapshot(ctx context.Context, snap *MarketSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	_, err = sm.db.ExecContext(ctx, `
		INSERT INTO engine_log.market_snapshots (market_token, data, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (market_token) DO UPDATE SET data = $2, created_at = $3
	`, snap.Meta.MarketToken, data, snap.CreatedAt)

	return err
}

// LoadSnapshots loads every stored market snapshot for boot.
func (sm *SnapshotManager) LoadSnapshots(ctx context.Context) ([]*MarketSnapshot, error) {
	rows, err := sm.db.QueryContext(ctx, `
		SELECT data FROM engine_log.market_snapshots ORDER BY market_token
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []*MarketSnapshot
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var snap MarketSnapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot: %w", err)
		}
		snaps = append(snaps, &snap)
	}
	return snaps, rows.Err()
}
