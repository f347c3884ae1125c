package persist

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jpalmerr/entrywatch"
)

// SQLite persists targets in a single-file database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at path and runs
// migrations.
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	// one connection keeps an in-memory database alive and serialises writers
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	s := &SQLite{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS targets (
	id                  TEXT PRIMARY KEY,
	position            INTEGER NOT NULL,
	label               TEXT NOT NULL,
	url                 TEXT NOT NULL,
	kind                TEXT NOT NULL DEFAULT '',
	interval_normal_sec INTEGER NOT NULL,
	interval_hot_sec    INTEGER NOT NULL,
	hot_from            TEXT NOT NULL DEFAULT '',
	hot_to              TEXT NOT NULL DEFAULT '',
	last_status         TEXT,
	last_slots          INTEGER,
	last_checked_at     TEXT,
	last_error          TEXT,
	created_at          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_targets_position ON targets (position);

CREATE TABLE IF NOT EXISTS target_history (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	target_id TEXT NOT NULL,
	at        TEXT NOT NULL,
	status    TEXT NOT NULL,
	slots     INTEGER NOT NULL,
	error     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_target_history_target ON target_history (target_id, id);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return err
	}

	// databases created before last_change_at was tracked
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info('targets') WHERE name = 'last_change_at'`).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.db.ExecContext(ctx, `ALTER TABLE targets ADD COLUMN last_change_at TEXT`); err != nil {
			return err
		}
	}
	return nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.UTC().Format(time.RFC3339Nano)
	return &v
}

func parseTime(v sql.NullString) *time.Time {
	if !v.Valid {
		return nil
	}
	ts, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil
	}
	return &ts
}

// Load returns every stored target in insertion order.
func (s *SQLite) Load(ctx context.Context) ([]entrywatch.Target, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, position, label, url, kind, interval_normal_sec, interval_hot_sec,
       hot_from, hot_to, last_status, last_slots, last_checked_at, last_error,
       last_change_at, created_at
FROM targets ORDER BY position, created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets: %w", err)
	}
	defer rows.Close()

	var out []entrywatch.Target
	for rows.Next() {
		var (
			r         row
			status    sql.NullString
			slots     sql.NullInt64
			checkedAt sql.NullString
			lastErr   sql.NullString
			changedAt sql.NullString
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.Position, &r.Label, &r.URL, &r.Kind,
			&r.IntervalNormalSec, &r.IntervalHotSec, &r.HotFrom, &r.HotTo,
			&status, &slots, &checkedAt, &lastErr, &changedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}

		if status.Valid {
			r.LastStatus = &status.String
		}
		if slots.Valid {
			n := int(slots.Int64)
			r.LastSlots = &n
		}
		r.LastCheckedAt = parseTime(checkedAt)
		r.LastChangeAt = parseTime(changedAt)
		if lastErr.Valid {
			r.LastError = &lastErr.String
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

		out = append(out, r.target())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read targets: %w", err)
	}
	return out, nil
}

// SaveAll replaces the stored targets with targets in one transaction and
// drops the history of targets no longer present.
func (s *SQLite) SaveAll(ctx context.Context, targets []entrywatch.Target) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM targets`); err != nil {
		return fmt.Errorf("failed to clear targets: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO targets (id, position, label, url, kind, interval_normal_sec, interval_hot_sec,
                     hot_from, hot_to, last_status, last_slots, last_checked_at, last_error,
                     last_change_at, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, t := range targets {
		r := toRow(t, i)
		if _, err := stmt.ExecContext(ctx, r.ID, r.Position, r.Label, r.URL, r.Kind,
			r.IntervalNormalSec, r.IntervalHotSec, r.HotFrom, r.HotTo,
			r.LastStatus, r.LastSlots, formatTime(r.LastCheckedAt), r.LastError,
			formatTime(r.LastChangeAt), r.CreatedAt.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("failed to insert target %s: %w", r.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM target_history WHERE target_id NOT IN (SELECT id FROM targets)`); err != nil {
		return fmt.Errorf("failed to prune history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AppendHistory appends entries in order in one transaction.
func (s *SQLite) AppendHistory(ctx context.Context, entries []entrywatch.HistoryEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO target_history (target_id, at, status, slots, error) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.TargetID, e.At.UTC().Format(time.RFC3339Nano),
			string(e.Status), e.Slots, e.Error); err != nil {
			return fmt.Errorf("failed to insert history of %s: %w", e.TargetID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// History returns up to limit entries for targetID, newest first.
func (s *SQLite) History(ctx context.Context, targetID string, limit int) ([]entrywatch.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT at, status, slots, error FROM target_history
WHERE target_id = ? ORDER BY id DESC LIMIT ?`, targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	out := []entrywatch.HistoryEntry{}
	for rows.Next() {
		var (
			e      = entrywatch.HistoryEntry{TargetID: targetID}
			at     string
			status string
		)
		if err := rows.Scan(&at, &status, &e.Slots, &e.Error); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		e.Status = entrywatch.Status(status)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return out, nil
}
