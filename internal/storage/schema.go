package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// migrations is the full schema, applied in order. Every statement is
// idempotent so startup migration can run unconditionally.
//
// The unique indexes on students.email, projects.name and
// files(name, student_id, project_id) are load-bearing: get-or-create
// races between concurrent requests are resolved by these constraints,
// not by application-level locking.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS students (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		email TEXT NOT NULL,
		CONSTRAINT students_email_key UNIQUE (email)
	)`,
	`CREATE TABLE IF NOT EXISTS projects (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		name TEXT NOT NULL,
		CONSTRAINT projects_name_key UNIQUE (name)
	)`,
	`CREATE TABLE IF NOT EXISTS files (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		name TEXT NOT NULL,
		student_id BIGINT NOT NULL REFERENCES students(id),
		project_id BIGINT NOT NULL REFERENCES projects(id),
		current_contents TEXT,
		CONSTRAINT files_name_student_project_key UNIQUE (name, student_id, project_id)
	)`,
	`CREATE TABLE IF NOT EXISTS executions (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		file_id BIGINT NOT NULL REFERENCES files(id),
		snapshot TEXT,
		time BIGINT,
		mode TEXT,
		error TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS commands (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		execution_id BIGINT NOT NULL REFERENCES executions(id),
		command TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		command_id BIGINT NOT NULL REFERENCES commands(id),
		result TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS cores (
		command_id BIGINT NOT NULL REFERENCES commands(id),
		core TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS instances (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		command_id BIGINT NOT NULL REFERENCES commands(id),
		model TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		instance_id BIGINT NOT NULL REFERENCES instances(id),
		message TEXT,
		data TEXT,
		time BIGINT
	)`,
	`CREATE TABLE IF NOT EXISTS tests (
		command_id BIGINT NOT NULL REFERENCES commands(id),
		expected TEXT,
		passed BOOLEAN,
		data TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS check_ex_spec (
		execution_id BIGINT NOT NULL REFERENCES executions(id),
		results TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS failed_logs (
		id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
		log TEXT,
		error TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_executions_file ON executions(file_id)`,
	`CREATE INDEX IF NOT EXISTS idx_commands_execution ON commands(execution_id)`,
	`CREATE INDEX IF NOT EXISTS idx_instances_command ON instances(command_id)`,
	`CREATE INDEX IF NOT EXISTS idx_notifications_instance ON notifications(instance_id)`,
}

// Migrate applies the schema. Safe to run on every startup.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range migrations {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("applying migration %d: %w", i, err)
		}
	}
	log.Info().Int("statements", len(migrations)).Msg("schema migration complete")
	return nil
}
