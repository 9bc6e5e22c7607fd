package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sarbatch/internal/db"
	"sarbatch/internal/domain"
	"sarbatch/internal/download"
	"sarbatch/internal/events"
)

func newTestRepo(t *testing.T) Repo {
	t.Helper()
	conn, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return Repo{DB: conn}
}

func fixedNow() time.Time {
	return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
}

func TestUpsertJobInsertThenUpdate(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	job := domain.Job{
		ID:        "j1",
		Type:      "INSAR_GAMMA",
		Status:    domain.JobPending,
		Reference: "S1A_ref",
		Secondary: "S1A_sec",
	}
	require.NoError(t, r.UpsertJob(ctx, "proj", job, fixedNow()))

	job.Status = domain.JobSucceeded
	job.Files = []domain.JobFile{{Filename: "a.tif", URL: "https://host/a.tif", Size: 42}}
	require.NoError(t, r.UpsertJob(ctx, "proj", job, fixedNow().Add(time.Hour)))

	got, project, err := r.GetJob(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "proj", project)
	assert.Equal(t, domain.JobSucceeded, got.Status)
	assert.Equal(t, "S1A_ref", got.Reference)
	require.Len(t, got.Files, 1)
	assert.Equal(t, "a.tif", got.Files[0].Filename)
	assert.Equal(t, int64(42), got.Files[0].Size)
}

func TestGetJobNotFound(t *testing.T) {
	r := newTestRepo(t)
	_, _, err := r.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListJobsFiltersByProject(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	for i, project := range []string{"a", "a", "b"} {
		job := domain.Job{ID: string(rune('1' + i)), Type: "INSAR_GAMMA", Status: domain.JobPending}
		require.NoError(t, r.UpsertJob(ctx, project, job, fixedNow().Add(time.Duration(i)*time.Minute)))
	}

	jobs, err := r.ListJobs(ctx, "a")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "1", jobs[0].ID)
	assert.Equal(t, "2", jobs[1].ID)
}

func TestCountJobsByStatus(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	statuses := []domain.JobStatus{domain.JobSucceeded, domain.JobSucceeded, domain.JobFailed}
	for i, s := range statuses {
		job := domain.Job{ID: string(rune('a' + i)), Type: "INSAR_GAMMA", Status: s}
		require.NoError(t, r.UpsertJob(ctx, "proj", job, fixedNow()))
	}

	counts, err := r.CountJobsByStatus(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, map[domain.JobStatus]int{
		domain.JobSucceeded: 2,
		domain.JobFailed:    1,
	}, counts)
}

func TestLedgerRecordsJobsAndEvents(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	ledger := Ledger{
		Repo:    r,
		Events:  events.Writer{DB: r.DB, Now: fixedNow},
		Project: "proj",
		Now:     fixedNow,
	}

	submitted := []domain.Job{
		{ID: "j1", Type: "INSAR_GAMMA", Status: domain.JobPending, Reference: "r1", Secondary: "s1"},
		{ID: "j2", Type: "INSAR_GAMMA", Status: domain.JobPending, Reference: "r2", Secondary: "s2"},
	}
	require.NoError(t, ledger.JobsSubmitted(ctx, submitted))

	submitted[0].Status = domain.JobSucceeded
	submitted[1].Status = domain.JobFailed
	require.NoError(t, ledger.JobsUpdated(ctx, submitted))

	jobs, err := r.ListJobs(ctx, "proj")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, domain.JobSucceeded, jobs[0].Status)

	evts, err := r.LatestEvents(ctx, 10, "proj")
	require.NoError(t, err)
	require.Len(t, evts, 4, "two submissions plus two status updates")
	assert.Equal(t, "job.status", evts[0].Type, "newest first")
	assert.Equal(t, "job.submitted", evts[3].Type)
	assert.Contains(t, evts[3].Payload, "r1")
}

func TestLedgerRecordsDownloads(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	ledger := Ledger{
		Repo:    r,
		Events:  events.Writer{DB: r.DB, Now: fixedNow},
		Project: "proj",
		Now:     fixedNow,
	}

	jobs := []domain.Job{
		{ID: "j1", Type: "INSAR_GAMMA", Status: domain.JobSucceeded},
		{ID: "j2", Type: "INSAR_GAMMA", Status: domain.JobSucceeded},
	}
	res := download.Result{
		Succeeded: 1,
		Failed:    []download.JobError{{Job: jobs[1], Err: errors.New("disk full")}},
	}
	require.NoError(t, ledger.JobsDownloaded(ctx, jobs, res))

	evts, err := r.LatestEvents(ctx, 10, "proj")
	require.NoError(t, err)
	require.Len(t, evts, 2)
	assert.Equal(t, "job.download_failed", evts[0].Type, "newest first")
	assert.Equal(t, "j2", evts[0].EntityID)
	assert.Contains(t, evts[0].Payload, "disk full")
	assert.Equal(t, "job.downloaded", evts[1].Type)
	assert.Equal(t, "j1", evts[1].EntityID)

	// Upserted rows reflect the attempted jobs.
	stored, err := r.ListJobs(ctx, "proj")
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestLatestEventsLimitAndFilter(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	w := events.Writer{DB: r.DB, Now: fixedNow}

	for i := 0; i < 5; i++ {
		require.NoError(t, w.Append(ctx, "job.submitted", "a", "j", nil))
	}
	require.NoError(t, w.Append(ctx, "job.submitted", "b", "j", nil))

	evts, err := r.LatestEvents(ctx, 3, "a")
	require.NoError(t, err)
	assert.Len(t, evts, 3)
	for _, e := range evts {
		assert.Equal(t, "a", e.Project)
	}

	all, err := r.LatestEvents(ctx, 20, "")
	require.NoError(t, err)
	assert.Len(t, all, 6)
}
