// Package persistence writes the action log and market snapshots to
// Postgres.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
)

// ActionLogWriter writes committed actions and their transfer plans to
// Postgres using multi-row INSERT. Writes are idempotent: re-inserting
// an already-persisted action is a no-op.
type ActionLogWriter struct {
	db *sql.DB
}

// ActionRow represents a row in engine_log.actions.
type ActionRow struct {
	ActionID    string
	PlanID      string
	Kind        string
	MarketToken string
	Owner       string
	Status      string
	Reason      string
	Report      []byte // JSON-encoded action report
	Timestamp   time.Time
}

// TransferRow represents a row in engine_log.transfers. EntryType is
// transfer, mint or burn; mint and burn rows leave the unused bank
// column empty.
type TransferRow struct {
	PlanID    string
	EntryIdx  int32
	EntryType string
	Token     string
	FromBank  string
	ToBank    string
	Amount    int64
}

func NewActionLogWriter(db *sql.DB) *ActionLogWriter {
	return &ActionLogWriter{db: db}
}

// WriteActionBatch writes a batch of actions inside the given
// transaction.
func (w *ActionLogWriter) WriteActionBatch(ctx context.Context, tx *sql.Tx, actions []ActionRow) error {
	if len(actions) == 0 {
		return nil
	}

	query := `INSERT INTO engine_log.actions
		(action_id, plan_id, kind, market_token, owner, status, reason, report, created_at)
		VALUES `

	values := make([]string, 0, len(actions))
	args := make([]interface{}, 0, len(actions)*9)

	for i, a := range actions {
		base := i * 9
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9,
		))
		args = append(args,
			a.ActionID, a.PlanID, a.Kind, a.MarketToken,
			a.Owner, a.Status, a.Reason, a.Report, a.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (action_id) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// WriteTransferBatch writes a batch of transfer plan entries inside
// the given transaction.
func (w *ActionLogWriter) WriteTransferBatch(ctx context.Context, tx *sql.Tx, transfers []TransferRow) error {
	if len(transfers) == 0 {
		return nil
	}

	query := `INSERT INTO engine_log.transfers
		(plan_id, entry_idx, entry_type, token, from_bank, to_bank, amount)
		VALUES `

	values := make([]string, 0, len(transfers))
	args := make([]interface{}, 0, len(transfers)*7)

	for i, t := range transfers {
		base := i * 7
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7,
		))
		args = append(args,
			t.PlanID, t.EntryIdx, t.EntryType, t.Token,
			t.FromBank, t.ToBank, t.Amount,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (plan_id, entry_idx) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// MarshalReport serializes an action report to JSON for storage.
func MarshalReport(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("WARN: failed to marshal report: %v", err)
		return []byte("{}")
	}
	return data
}
