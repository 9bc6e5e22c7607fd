// Package migrate brings the workspace ledger schema up to date. Steps are
// append-only and tracked with SQLite's user_version pragma: never edit an
// applied step, add a new one.
package migrate

import (
	"database/sql"
	"fmt"
)

var steps = []string{
	`CREATE TABLE jobs (
	    id TEXT PRIMARY KEY,
	    project TEXT NOT NULL,
	    job_type TEXT NOT NULL,
	    reference TEXT,
	    secondary TEXT,
	    status TEXT NOT NULL,
	    files_json TEXT,
	    submitted_at TEXT NOT NULL,
	    updated_at TEXT NOT NULL
	);
	CREATE INDEX idx_jobs_project ON jobs(project);
	CREATE TABLE events (
	    id INTEGER PRIMARY KEY AUTOINCREMENT,
	    ts TEXT NOT NULL,
	    type TEXT NOT NULL,
	    project TEXT,
	    entity_id TEXT,
	    payload_json TEXT NOT NULL
	);
	CREATE INDEX idx_events_project ON events(project);`,
}

// Migrate applies the schema steps past the recorded version, all inside one
// transaction.
func Migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version >= len(steps) {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for i := version; i < len(steps); i++ {
		if _, err := tx.Exec(steps[i]); err != nil {
			return fmt.Errorf("schema step %d: %w", i+1, err)
		}
	}
	// PRAGMA takes no placeholders.
	if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, len(steps))); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}
