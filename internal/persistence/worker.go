package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"PerpCore/internal/observability"
)

// Record is one committed action with its transfer plan rows. It
// mirrors the engine result types so this package does not import the
// engine; the shell bridges between them.
type Record struct {
	Action    ActionRow
	Transfers []TransferRow
}

// Worker drains the persist channel and batch-writes to Postgres. The
// channel uses blocking sends, so if the worker falls behind the
// engine loop stalls rather than losing a record.
type Worker struct {
	writer       *ActionLogWriter
	inputChan    <-chan Record
	batchSize    int
	flushTimeout time.Duration
	metrics      *observability.Metrics
}

func NewWorker(
	db *sql.DB,
	inputChan <-chan Record,
	batchSize int,
	flushTimeout time.Duration,
	metrics *observability.Metrics,
) *Worker {
	return &Worker{
		writer:       NewActionLogWriter(db),
		inputChan:    inputChan,
		batchSize:    batchSize,
		flushTimeout: flushTimeout,
		metrics:      metrics,
	}
}

// Run starts the worker loop. It batches incoming records and flushes
// either when the batch is full or the flush timeout expires. Blocks
// until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	actionBatch := make([]ActionRow, 0, w.batchSize)
	transferBatch := make([]TransferRow, 0, w.batchSize*3)

	timer := time.NewTimer(w.flushTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			if len(actionBatch) > 0 {
				if err := w.flush(context.Background(), actionBatch, transferBatch); err != nil {
					log.Printf("ERROR: final flush failed: %v", err)
				}
			}
			return ctx.Err()

		case record, ok := <-w.inputChan:
			if !ok {
				if len(actionBatch) > 0 {
					if err := w.flush(context.Background(), actionBatch, transferBatch); err != nil {
						log.Printf("ERROR: final flush failed: %v", err)
					}
				}
				return nil
			}

			actionBatch = append(actionBatch, record.Action)
			transferBatch = append(transferBatch, record.Transfers...)

			if len(actionBatch) >= w.batchSize {
				if err := w.flushWithRetry(ctx, actionBatch, transferBatch); err != nil {
					log.Printf("ERROR: batch flush failed after retries: %v", err)
				}
				actionBatch = actionBatch[:0]
				transferBatch = transferBatch[:0]
				timer.Reset(w.flushTimeout)
			}

		case <-timer.C:
			if len(actionBatch) > 0 {
				if err := w.flushWithRetry(ctx, actionBatch, transferBatch); err != nil {
					log.Printf("ERROR: timeout flush failed after retries: %v", err)
				}
				actionBatch = actionBatch[:0]
				transferBatch = transferBatch[:0]
			}
			timer.Reset(w.flushTimeout)
		}
	}
}

// flushWithRetry retries with exponential backoff. The worker never
// drops a record: it retries until the write succeeds or the context
// is cancelled, and on shutdown attempts one final flush.
func (w *Worker) flushWithRetry(ctx context.Context, actions []ActionRow, transfers []TransferRow) error {
	backoff := 100 * time.Millisecond
	const maxBackoff = 30 * time.Second

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			log.Printf("WARN: persistence retry attempt %d (backoff=%v, actions=%d)",
				attempt, backoff, len(actions))
			select {
			case <-ctx.Done():
				finalErr := w.flush(context.Background(), actions, transfers)
				if finalErr != nil {
					return fmt.Errorf("final flush on shutdown failed: %w", finalErr)
				}
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		err := w.flush(ctx, actions, transfers)
		if err == nil {
			if attempt > 0 {
				log.Printf("INFO: persistence flush succeeded after %d retries", attempt)
			}
			return nil
		}

		if w.metrics != nil {
			w.metrics.PersistRetry.Inc()
		}
	}
}

func (w *Worker) flush(ctx context.Context, actions []ActionRow, transfers []TransferRow) error {
	start := time.Now()

	// Actions and their plan entries land in one transaction.
	tx, err := w.writer.db.BeginTx(ctx, nil)
	if err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_begin").Inc()
		}
		return err
	}
	defer tx.Rollback()

	if err := w.writer.WriteActionBatch(ctx, tx, actions); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_actions").Inc()
		}
		return err
	}

	if err := w.writer.WriteTransferBatch(ctx, tx, transfers); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("write_transfers").Inc()
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if w.metrics != nil {
			w.metrics.PersistErrors.WithLabelValues("tx_commit").Inc()
		}
		return err
	}

	if w.metrics != nil {
		w.metrics.PersistBatchDur.Observe(time.Since(start).Seconds())
		w.metrics.PersistBatchSize.Observe(float64(len(actions)))
		w.metrics.PersistActionsWritten.Add(float64(len(actions)))
		w.metrics.PersistTransfersWritten.Add(float64(len(transfers)))
	}

	return nil
}

// GetWriter returns the underlying writer.
func (w *Worker) GetWriter() *ActionLogWriter {
	return w.writer
}
