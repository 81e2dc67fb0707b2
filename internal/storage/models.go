package storage

import (
	"context"
	"fmt"
)

// ExecutionSummary is the operator-facing view of a persisted execution.
type ExecutionSummary struct {
	ID       int64   `json:"id"`
	Email    string  `json:"email"`
	Project  string  `json:"project"`
	Filename string  `json:"filename"`
	Time     int64   `json:"time"`
	Mode     string  `json:"mode"`
	Error    *string `json:"error,omitempty"`
}

// ListExecutions returns the most recent executions with their resolved
// student, project and file identities.
func (db *DB) ListExecutions(ctx context.Context, limit int) ([]ExecutionSummary, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	rows, err := db.pool.Query(ctx, `
		SELECT e.id, s.email, p.name, f.name, e.time, e.mode, e.error
		FROM executions e
		JOIN files f ON f.id = e.file_id
		JOIN students s ON s.id = f.student_id
		JOIN projects p ON p.id = f.project_id
		ORDER BY e.id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()

	var results []ExecutionSummary
	for rows.Next() {
		var e ExecutionSummary
		if err := rows.Scan(&e.ID, &e.Email, &e.Project, &e.Filename, &e.Time, &e.Mode, &e.Error); err != nil {
			return nil, fmt.Errorf("scanning execution row: %w", err)
		}
		results = append(results, e)
	}
	return results, rows.Err()
}
