// Package repo persists the local job ledger: every submitted job with its
// last known status, so runs can be inspected and resumed without re-querying
// the service. The service stays the source of truth.
package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"sarbatch/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// UpsertJob inserts a job row or refreshes its status and artifact list.
func (r Repo) UpsertJob(ctx context.Context, project string, job domain.Job, now time.Time) error {
	filesJSON, err := marshalFiles(job.Files)
	if err != nil {
		return err
	}
	ts := now.UTC().Format(time.RFC3339)
	_, err = r.DB.ExecContext(ctx, `
		INSERT INTO jobs(id,project,job_type,reference,secondary,status,files_json,submitted_at,updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET status=excluded.status, files_json=excluded.files_json, updated_at=excluded.updated_at`,
		job.ID, project, job.Type, nullable(job.Reference), nullable(job.Secondary),
		string(job.Status), filesJSON, ts, ts)
	return err
}

// GetJob returns one ledger row by job id.
func (r Repo) GetJob(ctx context.Context, id string) (domain.Job, string, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT id,project,job_type,COALESCE(reference,''),COALESCE(secondary,''),status,COALESCE(files_json,'')
		FROM jobs WHERE id=?`, id)
	return scanJob(row)
}

// ListJobs returns all ledger rows for a project, newest submissions last.
func (r Repo) ListJobs(ctx context.Context, project string) ([]domain.Job, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id,job_type,COALESCE(reference,''),COALESCE(secondary,''),status,COALESCE(files_json,'')
		FROM jobs WHERE project=? ORDER BY submitted_at, id`, project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var jobs []domain.Job
	for rows.Next() {
		var j domain.Job
		var filesJSON string
		if err := rows.Scan(&j.ID, &j.Type, &j.Reference, &j.Secondary, &j.Status, &filesJSON); err != nil {
			return nil, err
		}
		if err := unmarshalFiles(filesJSON, &j.Files); err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// CountJobsByStatus reports how many ledger jobs of a project are in each status.
func (r Repo) CountJobsByStatus(ctx context.Context, project string) (map[domain.JobStatus]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs WHERE project=? GROUP BY status`, project)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[domain.JobStatus]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.JobStatus(status)] = n
	}
	return counts, rows.Err()
}

// LatestEvents returns the newest n run-log entries, optionally filtered by project.
func (r Repo) LatestEvents(ctx context.Context, n int, project string) ([]domain.Event, error) {
	query := `SELECT id,ts,type,COALESCE(project,''),COALESCE(entity_id,''),payload_json FROM events`
	args := []any{}
	if project != "" {
		query += ` WHERE project=?`
		args = append(args, project)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, n)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.Project, &e.EntityID, &e.Payload); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanJob(row *sql.Row) (domain.Job, string, error) {
	var j domain.Job
	var project, filesJSON string
	err := row.Scan(&j.ID, &project, &j.Type, &j.Reference, &j.Secondary, &j.Status, &filesJSON)
	if err == sql.ErrNoRows {
		return j, "", ErrNotFound
	}
	if err != nil {
		return j, "", err
	}
	if err := unmarshalFiles(filesJSON, &j.Files); err != nil {
		return j, "", err
	}
	return j, project, nil
}

func marshalFiles(files []domain.JobFile) (string, error) {
	if len(files) == 0 {
		return "", nil
	}
	b, err := json.Marshal(files)
	return string(b), err
}

func unmarshalFiles(s string, files *[]domain.JobFile) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), files)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
