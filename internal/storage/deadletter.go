package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"forge-logd/internal/ingest"
)

// RecordFailure writes the raw payload of a failed batch to the
// dead-letter table so no event data is silently dropped. Filenames are
// normalized throughout the payload first; the whole payload plus the
// error message lands in one failed_logs row. The insert is its own
// transaction, independent of the failed main write path.
func (db *DB) RecordFailure(ctx context.Context, payload any, cause string) error {
	if err := ingest.NormalizePayload(payload); err != nil {
		return fmt.Errorf("normalizing failed payload: %w", err)
	}

	serialized, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("serializing failed payload: %w", err)
	}

	if _, err := db.pool.Exec(ctx,
		`INSERT INTO failed_logs (log, error) VALUES ($1, $2)`,
		string(serialized), cause,
	); err != nil {
		return fmt.Errorf("inserting failed log: %w", err)
	}
	return nil
}

// FailedLog is one dead-lettered payload.
type FailedLog struct {
	ID    int64  `json:"id"`
	Log   string `json:"log"`
	Error string `json:"error"`
}

// ListFailures returns the most recent dead-letter rows.
func (db *DB) ListFailures(ctx context.Context, limit int) ([]FailedLog, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := db.pool.Query(ctx,
		`SELECT id, log, error FROM failed_logs ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying failed logs: %w", err)
	}
	defer rows.Close()

	var results []FailedLog
	for rows.Next() {
		var f FailedLog
		if err := rows.Scan(&f.ID, &f.Log, &f.Error); err != nil {
			return nil, fmt.Errorf("scanning failed log row: %w", err)
		}
		results = append(results, f)
	}
	return results, rows.Err()
}
