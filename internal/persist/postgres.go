package persist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jpalmerr/entrywatch"
)

// Postgres persists targets in a PostgreSQL database.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres connects to the database at connString and runs migrations.
func NewPostgres(ctx context.Context, connString string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	p := &Postgres{db: pool}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return p, nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	p.db.Close()
	return nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS entrywatch_targets (
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
		last_checked_at     TIMESTAMPTZ,
		last_error          TEXT,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_entrywatch_targets_position ON entrywatch_targets (position);
	ALTER TABLE entrywatch_targets ADD COLUMN IF NOT EXISTS last_change_at TIMESTAMPTZ;

	CREATE TABLE IF NOT EXISTS entrywatch_target_history (
		id        BIGSERIAL PRIMARY KEY,
		target_id TEXT NOT NULL,
		at        TIMESTAMPTZ NOT NULL,
		status    TEXT NOT NULL,
		slots     INTEGER NOT NULL,
		error     TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_entrywatch_target_history_target ON entrywatch_target_history (target_id, id);
	`
	_, err := p.db.Exec(ctx, schema)
	return err
}

// Load returns every stored target in insertion order.
func (p *Postgres) Load(ctx context.Context) ([]entrywatch.Target, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, position, label, url, kind, interval_normal_sec, interval_hot_sec,
		       hot_from, hot_to, last_status, last_slots, last_checked_at, last_error,
		       last_change_at, created_at
		FROM entrywatch_targets ORDER BY position, created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query targets: %w", err)
	}
	defer rows.Close()

	var out []entrywatch.Target
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.ID, &r.Position, &r.Label, &r.URL, &r.Kind,
			&r.IntervalNormalSec, &r.IntervalHotSec, &r.HotFrom, &r.HotTo,
			&r.LastStatus, &r.LastSlots, &r.LastCheckedAt, &r.LastError, &r.LastChangeAt, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan target: %w", err)
		}
		out = append(out, r.target())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read targets: %w", err)
	}
	return out, nil
}

// SaveAll replaces the stored targets with targets in one transaction and
// drops the history of targets no longer present.
func (p *Postgres) SaveAll(ctx context.Context, targets []entrywatch.Target) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM entrywatch_targets`); err != nil {
		return fmt.Errorf("failed to clear targets: %w", err)
	}

	batch := &pgx.Batch{}
	for i, t := range targets {
		r := toRow(t, i)
		batch.Queue(`
			INSERT INTO entrywatch_targets (id, position, label, url, kind, interval_normal_sec, interval_hot_sec,
			                                hot_from, hot_to, last_status, last_slots, last_checked_at, last_error,
			                                last_change_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			r.ID, r.Position, r.Label, r.URL, r.Kind, r.IntervalNormalSec, r.IntervalHotSec,
			r.HotFrom, r.HotTo, r.LastStatus, r.LastSlots, r.LastCheckedAt, r.LastError,
			r.LastChangeAt, r.CreatedAt)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert targets: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		DELETE FROM entrywatch_target_history
		WHERE target_id NOT IN (SELECT id FROM entrywatch_targets)`); err != nil {
		return fmt.Errorf("failed to prune history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AppendHistory appends entries in order as one batch.
func (p *Postgres) AppendHistory(ctx context.Context, entries []entrywatch.HistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO entrywatch_target_history (target_id, at, status, slots, error)
			VALUES ($1, $2, $3, $4, $5)`,
			e.TargetID, e.At.UTC(), string(e.Status), e.Slots, e.Error)
	}
	if err := p.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert history: %w", err)
	}
	return nil
}

// History returns up to limit entries for targetID, newest first.
func (p *Postgres) History(ctx context.Context, targetID string, limit int) ([]entrywatch.HistoryEntry, error) {
	rows, err := p.db.Query(ctx, `
		SELECT at, status, slots, error FROM entrywatch_target_history
		WHERE target_id = $1 ORDER BY id DESC LIMIT $2`, targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	out := []entrywatch.HistoryEntry{}
	for rows.Next() {
		e := entrywatch.HistoryEntry{TargetID: targetID}
		var status string
		if err := rows.Scan(&e.At, &status, &e.Slots, &e.Error); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		e.At = e.At.UTC()
		e.Status = entrywatch.Status(status)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}
	return out, nil
}
