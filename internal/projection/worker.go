package projection

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"PerpCore/internal/core"
)

// Worker projects committed actions into engine_log.funding_history so
// funding rates are queryable over time. Updates arrive on a
// non-blocking channel; a dropped update costs one observation, not
// correctness, since the next commit on the market writes a fresh one.
type Worker struct {
	db        *sql.DB
	inputChan <-chan core.ProjectionUpdate
	lastSeq   int64
}

func NewWorker(db *sql.DB, inputChan <-chan core.ProjectionUpdate) *Worker {
	return &Worker{
		db:        db,
		inputChan: inputChan,
	}
}

// Run drains the update channel until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case update, ok := <-w.inputChan:
			if !ok {
				return nil
			}
			if err := w.apply(ctx, update); err != nil {
				log.Printf("WARN: funding projection failed at seq=%d: %v", update.Sequence, err)
				continue
			}
			w.lastSeq = update.Sequence
		}
	}
}

// LastSequence returns the newest sequence this worker projected.
func (w *Worker) LastSequence() int64 {
	return w.lastSeq
}

func (w *Worker) apply(ctx context.Context, update core.ProjectionUpdate) error {
	if update.MarketToken == "" {
		return nil
	}
	_, err := w.db.ExecContext(ctx, `
		INSERT INTO engine_log.funding_history (market_token, sequence, funding_factor_per_second, recorded_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (market_token, sequence) DO NOTHING
	`, update.MarketToken, update.Sequence, update.FundingFactorPerSecond, update.Timestamp)
	return err
}

// Reset clears the funding history table. Past rates cannot be
// recovered from the action log, so a reset starts the series over
// from the next committed action.
func Reset(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `TRUNCATE engine_log.funding_history`); err != nil {
		return fmt.Errorf("truncate funding history: %w", err)
	}
	log.Println("INFO: funding history projection reset")
	return nil
}
