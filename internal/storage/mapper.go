package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"forge-logd/internal/ingest"
)

// dbtx is the slice of pgx.Tx the mapper needs; tests substitute a fake.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SaveExecutions persists a batch of built Execution trees in a single
// transaction. Either every cascade commits or none of it does, so a
// failed batch can be dead-lettered without leaving partial rows behind.
// Returns the new execution row ids in input order.
func (db *DB) SaveExecutions(ctx context.Context, execs []*ingest.Execution) ([]int64, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	ids := make([]int64, 0, len(execs))
	for _, exec := range execs {
		id, err := insertExecution(ctx, tx, exec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return ids, nil
}

// insertExecution writes one Execution tree: get-or-create the student,
// project and file rows, then cascade the execution, commands, runs,
// cores, instances, notifications, tests and check-ex-spec rows.
func insertExecution(ctx context.Context, q dbtx, exec *ingest.Execution) (int64, error) {
	studentID, err := getOrCreateStudent(ctx, q, exec.User)
	if err != nil {
		return 0, err
	}
	projectID, err := getOrCreateProject(ctx, q, exec.Project)
	if err != nil {
		return 0, err
	}
	fileID, err := getOrCreateFile(ctx, q, exec.Filename, studentID, projectID, exec.Raw)
	if err != nil {
		return 0, err
	}

	// The snapshot duplicates the file's initial contents: each execution
	// keeps its own immutable copy even as the file's current_contents
	// pointer could move later.
	var executionID int64
	err = q.QueryRow(ctx,
		`INSERT INTO executions (file_id, snapshot, time, mode, error)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		fileID, exec.Raw, exec.Time, exec.Mode, exec.Error,
	).Scan(&executionID)
	if err != nil {
		return 0, fmt.Errorf("inserting execution: %w", err)
	}

	if err := insertRuns(ctx, q, exec.Runs, executionID); err != nil {
		return 0, err
	}
	if err := insertTests(ctx, q, exec.Tests, executionID); err != nil {
		return 0, err
	}
	if err := insertCheckExSpec(ctx, q, exec.CheckExSpec, executionID); err != nil {
		return 0, err
	}
	return executionID, nil
}

func getOrCreateStudent(ctx context.Context, q dbtx, email string) (int64, error) {
	var count int64
	var id *int64
	err := q.QueryRow(ctx,
		`SELECT COUNT(*), MIN(id) FROM students WHERE email = $1`, email,
	).Scan(&count, &id)
	if err != nil {
		return 0, fmt.Errorf("looking up student: %w", err)
	}
	switch {
	case count > 1:
		return 0, fmt.Errorf("students with email %q: %w", email, ErrDuplicateKey)
	case count == 1:
		return *id, nil
	}

	var created int64
	err = q.QueryRow(ctx,
		`INSERT INTO students (email) VALUES ($1)
		 ON CONFLICT (email) DO NOTHING
		 RETURNING id`, email,
	).Scan(&created)
	if errors.Is(err, pgx.ErrNoRows) {
		// Lost a get-or-create race; the unique constraint kept the
		// concurrent row, so re-select it.
		err = q.QueryRow(ctx, `SELECT id FROM students WHERE email = $1`, email).Scan(&created)
	}
	if err != nil {
		return 0, fmt.Errorf("creating student: %w", err)
	}
	return created, nil
}

func getOrCreateProject(ctx context.Context, q dbtx, name string) (int64, error) {
	var count int64
	var id *int64
	err := q.QueryRow(ctx,
		`SELECT COUNT(*), MIN(id) FROM projects WHERE name = $1`, name,
	).Scan(&count, &id)
	if err != nil {
		return 0, fmt.Errorf("looking up project: %w", err)
	}
	switch {
	case count > 1:
		return 0, fmt.Errorf("projects with name %q: %w", name, ErrDuplicateKey)
	case count == 1:
		return *id, nil
	}

	var created int64
	err = q.QueryRow(ctx,
		`INSERT INTO projects (name) VALUES ($1)
		 ON CONFLICT (name) DO NOTHING
		 RETURNING id`, name,
	).Scan(&created)
	if errors.Is(err, pgx.ErrNoRows) {
		err = q.QueryRow(ctx, `SELECT id FROM projects WHERE name = $1`, name).Scan(&created)
	}
	if err != nil {
		return 0, fmt.Errorf("creating project: %w", err)
	}
	return created, nil
}

func getOrCreateFile(ctx context.Context, q dbtx, name string, studentID, projectID int64, contents string) (int64, error) {
	var count int64
	var id *int64
	err := q.QueryRow(ctx,
		`SELECT COUNT(*), MIN(id) FROM files
		 WHERE name = $1 AND student_id = $2 AND project_id = $3`,
		name, studentID, projectID,
	).Scan(&count, &id)
	if err != nil {
		return 0, fmt.Errorf("looking up file: %w", err)
	}
	switch {
	case count > 1:
		return 0, fmt.Errorf("files named %q for student %d project %d: %w",
			name, studentID, projectID, ErrDuplicateKey)
	case count == 1:
		return *id, nil
	}

	// current_contents is seeded only on first creation.
	var created int64
	err = q.QueryRow(ctx,
		`INSERT INTO files (name, student_id, project_id, current_contents)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (name, student_id, project_id) DO NOTHING
		 RETURNING id`,
		name, studentID, projectID, contents,
	).Scan(&created)
	if errors.Is(err, pgx.ErrNoRows) {
		err = q.QueryRow(ctx,
			`SELECT id FROM files WHERE name = $1 AND student_id = $2 AND project_id = $3`,
			name, studentID, projectID,
		).Scan(&created)
	}
	if err != nil {
		return 0, fmt.Errorf("creating file: %w", err)
	}
	return created, nil
}

func insertRuns(ctx context.Context, q dbtx, runs []*ingest.Run, executionID int64) error {
	for _, run := range runs {
		var commandID int64
		err := q.QueryRow(ctx,
			`INSERT INTO commands (execution_id, command) VALUES ($1, $2) RETURNING id`,
			executionID, run.Raw,
		).Scan(&commandID)
		if err != nil {
			return fmt.Errorf("inserting run command: %w", err)
		}

		if _, err := q.Exec(ctx,
			`INSERT INTO runs (command_id, result) VALUES ($1, $2)`,
			commandID, run.Result,
		); err != nil {
			return fmt.Errorf("inserting run: %w", err)
		}

		switch run.Result {
		case ingest.ResultUnsat:
			if _, err := q.Exec(ctx,
				`INSERT INTO cores (command_id, core) VALUES ($1, $2)`,
				commandID, run.Core,
			); err != nil {
				return fmt.Errorf("inserting core: %w", err)
			}
		case ingest.ResultSat:
			if err := insertInstances(ctx, q, run.Instances, commandID); err != nil {
				return err
			}
		}
	}
	return nil
}

func insertInstances(ctx context.Context, q dbtx, instances []*ingest.Instance, commandID int64) error {
	for _, inst := range instances {
		var instanceID int64
		err := q.QueryRow(ctx,
			`INSERT INTO instances (command_id, model) VALUES ($1, $2) RETURNING id`,
			commandID, string(inst.Model),
		).Scan(&instanceID)
		if err != nil {
			return fmt.Errorf("inserting instance: %w", err)
		}

		for _, n := range inst.Notifications {
			if _, err := q.Exec(ctx,
				`INSERT INTO notifications (instance_id, message, data, time)
				 VALUES ($1, $2, $3, $4)`,
				instanceID, n.Message, textOrNil(n.Data), n.Time,
			); err != nil {
				return fmt.Errorf("inserting notification: %w", err)
			}
		}
	}
	return nil
}

func insertTests(ctx context.Context, q dbtx, tests []*ingest.Test, executionID int64) error {
	for _, test := range tests {
		var commandID int64
		err := q.QueryRow(ctx,
			`INSERT INTO commands (execution_id, command) VALUES ($1, $2) RETURNING id`,
			executionID, test.Raw,
		).Scan(&commandID)
		if err != nil {
			return fmt.Errorf("inserting test command: %w", err)
		}

		if _, err := q.Exec(ctx,
			`INSERT INTO tests (command_id, expected, passed, data) VALUES ($1, $2, $3, $4)`,
			commandID, test.Expected, test.Passed, textOrNil(test.Data),
		); err != nil {
			return fmt.Errorf("inserting test: %w", err)
		}
	}
	return nil
}

func insertCheckExSpec(ctx context.Context, q dbtx, spec *ingest.CheckExSpec, executionID int64) error {
	if spec == nil {
		return nil
	}
	results, err := json.Marshal(map[string]json.RawMessage{
		"wheat-results": spec.WheatResults,
		"chaff-results": spec.ChaffResults,
	})
	if err != nil {
		return fmt.Errorf("serializing check-ex-spec results: %w", err)
	}
	if _, err := q.Exec(ctx,
		`INSERT INTO check_ex_spec (execution_id, results) VALUES ($1, $2)`,
		executionID, string(results),
	); err != nil {
		return fmt.Errorf("inserting check-ex-spec: %w", err)
	}
	return nil
}

// textOrNil maps an optional raw JSON payload to text, or SQL NULL when
// absent.
func textOrNil(raw json.RawMessage) any {
	if raw == nil {
		return nil
	}
	return string(raw)
}
