package persistence

import (
	"context"
	"database/sql"
	"time"
)

// RequestChecker deduplicates action requests against the persisted
// action log. Ingestion consults it before handing a request to the
// engine so a redelivered message does not execute twice.
type RequestChecker struct {
	db *sql.DB
}

func NewRequestChecker(db *sql.DB) *RequestChecker {
	return &RequestChecker{db: db}
}

// IsDuplicate checks whether an action id already exists in the log.
func (rc *RequestChecker) IsDuplicate(actionID string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	query := `
        SELECT 1
        FROM engine_log.actions
        WHERE action_id = $1
        LIMIT 1
    `

	var exists int
	err := rc.db.QueryRowContext(ctx, query, actionID).Scan(&exists)

	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
