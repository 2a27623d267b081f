package query

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// QueryService provides read-only access to the action log and its
// projections. It serves the HTTP API and never touches the in-memory
// engine state; results reflect what the persistence worker flushed.
type QueryService struct {
	db *sql.DB
}

func NewQueryService(db *sql.DB) *QueryService {
	return &QueryService{db: db}
}

// GetAction returns one action by ID, or nil if it was never recorded.
func (qs *QueryService) GetAction(ctx context.Context, actionID string) (*ActionRecord, error) {
	var a ActionRecord
	err := qs.db.QueryRowContext(ctx, `
		SELECT action_id, plan_id, kind, market_token, owner, status, reason, report, created_at
		FROM engine_log.actions
		WHERE action_id = $1
	`, actionID).Scan(
		&a.ActionID, &a.PlanID, &a.Kind, &a.MarketToken,
		&a.Owner, &a.Status, &a.Reason, &a.Report, &a.Timestamp,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListActionsByOwner returns an owner's actions, newest first, with
// cursor pagination on the created_at column.
func (qs *QueryService) ListActionsByOwner(
	ctx context.Context,
	owner string,
	limit int,
	before *time.Time,
) ([]ActionRecord, error) {
	return qs.listActions(ctx, "owner", owner, limit, before)
}

// ListActionsByMarket returns a market's actions, newest first.
func (qs *QueryService) ListActionsByMarket(
	ctx context.Context,
	marketToken string,
	limit int,
	before *time.Time,
) ([]ActionRecord, error) {
	return qs.listActions(ctx, "market_token", marketToken, limit, before)
}

func (qs *QueryService) listActions(
	ctx context.Context,
	column, value string,
	limit int,
	before *time.Time,
) ([]ActionRecord, error) {
	query := fmt.Sprintf(`
		SELECT action_id, plan_id, kind, market_token, owner, status, reason, report, created_at
		FROM engine_log.actions
		WHERE %s = $1
	`, column)
	args := []interface{}{value}
	argIdx := 2

	if before != nil {
		query += fmt.Sprintf(" AND created_at < $%d", argIdx)
		args = append(args, *before)
		argIdx++
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []ActionRecord
	for rows.Next() {
		var a ActionRecord
		if err := rows.Scan(
			&a.ActionID, &a.PlanID, &a.Kind, &a.MarketToken,
			&a.Owner, &a.Status, &a.Reason, &a.Report, &a.Timestamp,
		); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// GetTransfers returns the entries of one transfer plan in plan order.
func (qs *QueryService) GetTransfers(ctx context.Context, planID string) ([]TransferRecord, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT plan_id, entry_idx, entry_type, token, from_bank, to_bank, amount
		FROM engine_log.transfers
		WHERE plan_id = $1
		ORDER BY entry_idx
	`, planID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transfers []TransferRecord
	for rows.Next() {
		var t TransferRecord
		if err := rows.Scan(
			&t.PlanID, &t.EntryIdx, &t.EntryType, &t.Token,
			&t.FromBank, &t.ToBank, &t.Amount,
		); err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}

// GetFundingHistory returns projected funding rates for one market,
// newest first, with cursor pagination on the sequence column.
func (qs *QueryService) GetFundingHistory(
	ctx context.Context,
	marketToken string,
	limit int,
	beforeSeq *int64,
) ([]FundingPoint, error) {
	query := `
		SELECT market_token, sequence, funding_factor_per_second, recorded_at
		FROM engine_log.funding_history
		WHERE market_token = $1
	`
	args := []interface{}{marketToken}
	argIdx := 2

	if beforeSeq != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSeq)
		argIdx++
	}
	query += fmt.Sprintf(" ORDER BY sequence DESC LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := qs.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []FundingPoint
	for rows.Next() {
		var p FundingPoint
		if err := rows.Scan(&p.MarketToken, &p.Sequence, &p.FundingFactorPerSecond, &p.Timestamp); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// GetTokenVolumes returns the gross transferred amount per token over
// executed plans. Mint and burn entries are excluded; they move supply,
// not external tokens.
func (qs *QueryService) GetTokenVolumes(ctx context.Context) ([]TokenVolume, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT token, SUM(amount) AS volume
		FROM engine_log.transfers
		WHERE entry_type = 'transfer'
		GROUP BY token
		ORDER BY token
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var volumes []TokenVolume
	for rows.Next() {
		var v TokenVolume
		if err := rows.Scan(&v.Token, &v.Volume); err != nil {
			return nil, err
		}
		volumes = append(volumes, v)
	}
	return volumes, rows.Err()
}

// RecentActionIDs returns the newest executed action IDs, used to warm
// the idempotency cache on startup.
func (qs *QueryService) RecentActionIDs(ctx context.Context, limit int) ([]string, error) {
	rows, err := qs.db.QueryContext(ctx, `
		SELECT action_id FROM engine_log.actions
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
