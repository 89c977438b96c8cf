package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for all framestep tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		workload    TEXT NOT NULL,
		width       INTEGER NOT NULL,
		height      INTEGER NOT NULL,
		rule        TEXT NOT NULL DEFAULT '',
		seed        INTEGER NOT NULL DEFAULT 0,
		target_fps  REAL NOT NULL DEFAULT 0,
		generations INTEGER NOT NULL DEFAULT 0,
		frames      INTEGER NOT NULL DEFAULT 0,
		started_at  TEXT NOT NULL,
		finished_at TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS pass_samples (
		run_id         TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		generation     INTEGER NOT NULL,
		duration_ns    INTEGER NOT NULL,
		frames_spanned INTEGER NOT NULL DEFAULT 1,
		strategy       TEXT NOT NULL DEFAULT 'FULL',
		recorded_at    TEXT NOT NULL,
		PRIMARY KEY (run_id, generation)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
}

// alterStatements are column additions that need special handling since
// SQLite doesn't support IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
	indexSQL string // Optional index to create after column is added
}{
	{
		table:    "pass_samples",
		column:   "units",
		alterSQL: "ALTER TABLE pass_samples ADD COLUMN units INTEGER NOT NULL DEFAULT 0",
	},
	{
		table:    "runs",
		column:   "wrap",
		alterSQL: "ALTER TABLE runs ADD COLUMN wrap INTEGER NOT NULL DEFAULT 0",
		indexSQL: "CREATE INDEX IF NOT EXISTS idx_runs_workload ON runs(workload)",
	},
}

// migrate executes all schema DDL statements and alter migrations.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	// Execute ALTER TABLE statements idempotently.
	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
		if alter.indexSQL != "" {
			if _, err := db.ExecContext(ctx, alter.indexSQL); err != nil {
				return err
			}
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, column) {
			return nil // Column already exists
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, alterSQL)
	return err
}
