package migration

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"docapi/internal/logger"
)

type migrationStep struct {
	Name string
	SQL  string
}

// The unique index on filename backs the naming resolver: a concurrent upload
// that loses the race gets a constraint violation and resolves again.
var steps = []migrationStep{
	{
		Name: "create_table_documents",
		SQL: `CREATE TABLE IF NOT EXISTS documents (
  id         BIGSERIAL    PRIMARY KEY,
  filename   VARCHAR(255) NOT NULL,
  filepath   VARCHAR(500) NOT NULL UNIQUE,
  filesize   BIGINT       NOT NULL CHECK (filesize >= 0),
  created_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);`,
	},
	{
		Name: "create_unique_index_documents_filename",
		SQL:  `CREATE UNIQUE INDEX IF NOT EXISTS idx_documents_filename ON documents (filename);`,
	},
	{
		Name: "create_index_documents_created_at",
		SQL:  `CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents (created_at DESC, id DESC);`,
	},
}

// schemaReadyQuery reports whether every object created by steps is present.
// A documents table from an older deployment without the indexes still gets migrated.
const schemaReadyQuery = `SELECT to_regclass('public.documents') IS NOT NULL
  AND to_regclass('public.idx_documents_filename') IS NOT NULL
  AND to_regclass('public.idx_documents_created_at') IS NOT NULL`

// migrationLockKey serialises schema changes across instances starting together.
const migrationLockKey = 7320114

// EnsureMigrated creates the documents schema unless it is already complete.
// Steps run in one transaction under an advisory lock and are idempotent.
func EnsureMigrated(ctx context.Context, db *sql.DB, log *logger.Logger, dbHost string) error {
	start := time.Now()
	emit := func(event, status string, fields map[string]any) {
		entry := map[string]any{
			"component": "database",
			"event":     event,
			"status":    status,
			"db_host":   dbHost,
		}
		for k, v := range fields {
			entry[k] = v
		}
		log.Log(entry)
	}
	fail := func(step string, err error) error {
		emit("db_migration_failed", "error", map[string]any{
			"migration_step": step,
			"error_message":  err.Error(),
			"duration_ms":    time.Since(start).Milliseconds(),
		})
		return fmt.Errorf("migration step %s failed: %w", step, err)
	}

	emit("db_migration_check", "starting", nil)

	var ready bool
	if err := db.QueryRowContext(ctx, schemaReadyQuery).Scan(&ready); err != nil {
		emit("db_migration_failed", "error", map[string]any{
			"error_message": fmt.Sprintf("failed to check schema: %v", err),
			"duration_ms":   time.Since(start).Milliseconds(),
		})
		return fmt.Errorf("failed to check schema: %w", err)
	}
	if ready {
		emit("db_migration_skip", "success", map[string]any{
			"msg":         "schema already exists, skipping migration",
			"duration_ms": time.Since(start).Milliseconds(),
		})
		return nil
	}

	emit("db_migration_start", "in_progress", nil)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fail("begin", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
		return fail("lock", err)
	}

	for _, step := range steps {
		stepStart := time.Now()
		if _, err := tx.ExecContext(ctx, step.SQL); err != nil {
			return fail(step.Name, err)
		}
		emit("db_migration_step", "success", map[string]any{
			"migration_step":   step.Name,
			"step_duration_ms": time.Since(stepStart).Milliseconds(),
		})
	}

	if err := tx.Commit(); err != nil {
		return fail("commit", err)
	}

	emit("db_migration_success", "success", map[string]any{
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return nil
}
