// Package db owns the workspace ledger file: a SQLite database under
// .sarbatch/ whose schema is applied on open.
package db

import (
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"sarbatch/internal/migrate"
)

const (
	workspaceDir = ".sarbatch"
	ledgerFile   = "sarbatch.db"
)

// EnsureWorkspace creates the hidden workspace directory if missing and
// returns its path.
func EnsureWorkspace(workspace string) (string, error) {
	if workspace == "" {
		workspace = "."
	}
	dir := filepath.Join(workspace, workspaceDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Open opens the ledger for a workspace and brings its schema up to date.
// WAL and a busy timeout let concurrent runs share one workspace without
// immediate lock errors.
func Open(workspace string) (*sql.DB, error) {
	dir, err := EnsureWorkspace(workspace)
	if err != nil {
		return nil, err
	}
	dsn := "file:" + filepath.Join(dir, ledgerFile) +
		"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
