package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/framestep/internal/logging"
	"github.com/me/framestep/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// Every connection to ":memory:" is a separate database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode so the API can read while the frame loop writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logging.Component(logger, "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Runs ---

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	s.logger.Debug("sql", "op", "insert", "table", "runs", "id", run.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, workload, width, height, rule, wrap, seed, target_fps, generations, frames, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Workload, run.Width, run.Height, run.Rule, boolToInt(run.Wrap), run.Seed, run.TargetFPS,
		run.Generations, run.Frames, run.StartedAt.Format(time.RFC3339Nano), formatTimePtr(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, id string, finishedAt time.Time, generations, frames int64) error {
	s.logger.Debug("sql", "op", "update", "table", "runs", "id", id)

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, generations = ?, frames = ? WHERE id = ?`,
		finishedAt.Format(time.RFC3339Nano), generations, frames, id,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: not found", id)
	}
	return nil
}

const runColumns = `id, workload, width, height, rule, wrap, seed, target_fps, generations, frames, started_at, finished_at`

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	s.logger.Debug("sql", "op", "select", "table", "runs", "id", id)

	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts model.ListOptions) ([]*model.Run, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "runs", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

// --- Pass samples ---

// RecordPasses inserts samples in one transaction.
func (s *SQLiteStore) RecordPasses(ctx context.Context, samples []model.PassSample) error {
	if len(samples) == 0 {
		return nil
	}
	s.logger.Debug("sql", "op", "insert", "table", "pass_samples", "count", len(samples))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO pass_samples (run_id, generation, duration_ns, frames_spanned, units, strategy, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, ps := range samples {
		if _, err := stmt.ExecContext(ctx,
			ps.RunID, ps.Generation, int64(ps.Duration), ps.FramesSpanned, ps.Units,
			string(ps.Strategy), ps.RecordedAt.Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert pass %s/%d: %w", ps.RunID, ps.Generation, err)
		}
	}
	return tx.Commit()
}

// ListPassSamples returns up to limit of the run's most recent samples,
// newest first.
func (s *SQLiteStore) ListPassSamples(ctx context.Context, runID string, limit int) ([]model.PassSample, error) {
	s.logger.Debug("sql", "op", "list", "table", "pass_samples", "run_id", runID, "limit", limit)
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, generation, duration_ns, frames_spanned, units, strategy, recorded_at
		 FROM pass_samples WHERE run_id = ? ORDER BY generation DESC LIMIT ?`,
		runID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []model.PassSample
	for rows.Next() {
		var ps model.PassSample
		var durationNS int64
		var strategy, recordedAt string
		if err := rows.Scan(&ps.RunID, &ps.Generation, &durationNS, &ps.FramesSpanned, &ps.Units,
			&strategy, &recordedAt); err != nil {
			return nil, err
		}
		ps.Duration = time.Duration(durationNS)
		ps.Strategy = model.Strategy(strategy)
		ps.RecordedAt, _ = time.Parse(time.RFC3339Nano, recordedAt)
		samples = append(samples, ps)
	}
	return samples, rows.Err()
}

// SummarizePasses aggregates every sample of a run. A run without samples
// yields a zero summary.
func (s *SQLiteStore) SummarizePasses(ctx context.Context, runID string) (model.PassSummary, error) {
	s.logger.Debug("sql", "op", "aggregate", "table", "pass_samples", "run_id", runID)

	var sum model.PassSummary
	var mean float64
	var minNS, maxNS int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(duration_ns), 0), COALESCE(MIN(duration_ns), 0), COALESCE(MAX(duration_ns), 0)
		 FROM pass_samples WHERE run_id = ?`, runID,
	).Scan(&sum.Count, &mean, &minNS, &maxNS)
	if err != nil {
		return sum, err
	}
	sum.Mean = time.Duration(mean)
	sum.Min = time.Duration(minNS)
	sum.Max = time.Duration(maxNS)
	return sum, nil
}

// --- Helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	var run model.Run
	var wrap int
	var startedAt string
	var finishedAt sql.NullString
	if err := row.Scan(&run.ID, &run.Workload, &run.Width, &run.Height, &run.Rule, &wrap, &run.Seed,
		&run.TargetFPS, &run.Generations, &run.Frames, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	run.Wrap = wrap != 0
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	run.FinishedAt = parseTimePtr(finishedAt)
	return &run, nil
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
