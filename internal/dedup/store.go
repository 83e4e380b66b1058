// Package dedup is the durable index of evaluations keyed by
// (posting, query, profile). It is backed by SQLite.
package dedup

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS evaluations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	posting_key TEXT    NOT NULL,
	query_key   TEXT    NOT NULL,
	profile_key TEXT    NOT NULL,
	source_id   TEXT    NOT NULL DEFAULT '',
	url         TEXT    NOT NULL DEFAULT '',
	title       TEXT    NOT NULL DEFAULT '',
	company     TEXT    NOT NULL DEFAULT '',
	location    TEXT    NOT NULL DEFAULT '',
	location_folded TEXT    NOT NULL DEFAULT '',
	description TEXT    NOT NULL DEFAULT '',
	scores      TEXT    NOT NULL,
	reasoning   TEXT    NOT NULL DEFAULT '',
	overall     INTEGER NOT NULL,
	created_at  INTEGER NOT NULL,
	UNIQUE (posting_key, query_key, profile_key)
);

CREATE INDEX IF NOT EXISTS idx_evaluations_scope ON evaluations (query_key, profile_key, overall);
CREATE INDEX IF NOT EXISTS idx_evaluations_profile ON evaluations (profile_key, posting_key);
CREATE INDEX IF NOT EXISTS idx_evaluations_created ON evaluations (created_at);
CREATE INDEX IF NOT EXISTS idx_evaluations_company ON evaluations (company COLLATE NOCASE);
`

// Store provides SQLite-backed persistence for evaluation records.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open creates or opens the database at path. The path must be absolute.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if !filepath.IsAbs(path) {
		return nil, fmt.Errorf("dedup: %q: %w", path, ErrRelativePath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, unavailable("create database directory", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, unavailable("open database", err)
	}

	// SQLite allows a single writer; one connection avoids SQLITE_BUSY under concurrent workers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, unavailable("connect", err)
	}

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, unavailable("create schema", err)
	}

	if err := migrateLocationFolded(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("dedup store opened", zap.String("path", path))

	return &Store{db: db, logger: logger}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return unavailable(fmt.Sprintf("execute %q", pragma), err)
		}
	}

	return nil
}

// migrateLocationFolded adds and backfills location_folded in databases
// created before the column existed.
func migrateLocationFolded(ctx context.Context, db *sql.DB) error {
	var present int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pragma_table_info('evaluations') WHERE name = 'location_folded'`,
	).Scan(&present)
	if err != nil {
		return unavailable("inspect schema", err)
	}
	if present > 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("migrate: begin tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `ALTER TABLE evaluations ADD COLUMN location_folded TEXT NOT NULL DEFAULT ''`); err != nil {
		return unavailable("migrate: add location_folded", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT id, location FROM evaluations WHERE location <> ''`)
	if err != nil {
		return unavailable("migrate: read locations", err)
	}
	folded := make(map[int64]string)
	for rows.Next() {
		var (
			id       int64
			location string
		)
		if err := rows.Scan(&id, &location); err != nil {
			rows.Close()
			return unavailable("migrate: scan location", err)
		}
		folded[id] = foldLocation(location)
	}
	if err := rows.Close(); err != nil {
		return unavailable("migrate: read locations", err)
	}

	for id, value := range folded {
		if _, err := tx.ExecContext(ctx, `UPDATE evaluations SET location_folded = ? WHERE id = ?`, value, id); err != nil {
			return unavailable("migrate: backfill location_folded", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("migrate: commit", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
