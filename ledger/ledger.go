// Copyright (c) 2024 Neomantra Corp
//
// Package ledger is the processed-file marker: once a remote path has
// been fetched, decoded, and persisted, it is marked here so the watcher
// never processes it again, even across restarts. It shares the store
// package's *sql.DB (same on-disk SQLite file) rather than opening a
// second connection.

package nsefeed_ledger

import (
	"context"
	"database/sql"

	nsefeed "github.com/nse-cmfeed/nse-cmfeed"
)

// Ledger records which remote paths have already been fully processed.
type Ledger struct {
	db       *sql.DB
	stmtMark *sql.Stmt
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS processed_paths (
	remote_path TEXT PRIMARY KEY,
	marked_at INTEGER NOT NULL
);`

const markQuery = `INSERT OR IGNORE INTO processed_paths (remote_path, marked_at) VALUES (?, ?)`

const seenQuery = `SELECT 1 FROM processed_paths WHERE remote_path = ?`

// New prepares the ledger's schema and statements against db, typically
// the same *sql.DB returned by store.Store.DB().
func New(db *sql.DB) (*Ledger, error) {
	if _, err := db.Exec(schemaDDL); err != nil {
		return nil, nsefeed.NewError(nsefeed.ErrorKindPersistence, "ledger.New", err)
	}
	stmt, err := db.Prepare(markQuery)
	if err != nil {
		return nil, nsefeed.NewError(nsefeed.ErrorKindPersistence, "ledger.New", err)
	}
	return &Ledger{db: db, stmtMark: stmt}, nil
}

// Close releases the ledger's prepared statement; it does not close db,
// since that handle is owned by the caller (typically store.Store).
func (l *Ledger) Close() error {
	return l.stmtMark.Close()
}

// Seen reports whether remotePath has already been marked processed.
func (l *Ledger) Seen(ctx context.Context, remotePath string) (bool, error) {
	var one int
	err := l.db.QueryRowContext(ctx, seenQuery, remotePath).Scan(&one)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, nsefeed.NewError(nsefeed.ErrorKindPersistence, "Ledger.Seen", err)
	default:
		return true, nil
	}
}

// Mark records remotePath as processed as of markedAtUnix. Marking the
// same path twice is a no-op, so a crash between a successful Mark and
// the next poll cycle can never double-process a file.
func (l *Ledger) Mark(ctx context.Context, remotePath string, markedAtUnix int64) error {
	if _, err := l.stmtMark.ExecContext(ctx, remotePath, markedAtUnix); err != nil {
		return nsefeed.NewError(nsefeed.ErrorKindPersistence, "Ledger.Mark", err)
	}
	return nil
}
