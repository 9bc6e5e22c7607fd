package repo

import (
	"context"
	"time"

	"sarbatch/internal/domain"
	"sarbatch/internal/download"
	"sarbatch/internal/events"
)

// Ledger adapts Repo to the scheduler's recording hooks for one project.
type Ledger struct {
	Repo    Repo
	Events  events.Writer
	Project string
	Now     func() time.Time
}

func (l Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// JobsSubmitted records freshly submitted jobs.
func (l Ledger) JobsSubmitted(ctx context.Context, jobs []domain.Job) error {
	for _, job := range jobs {
		if err := l.Repo.UpsertJob(ctx, l.Project, job, l.now()); err != nil {
			return err
		}
		if err := l.Events.Append(ctx, "job.submitted", l.Project, job.ID, events.EventPayload{
			"reference": job.Reference,
			"secondary": job.Secondary,
			"job_type":  job.Type,
		}); err != nil {
			return err
		}
	}
	return nil
}

// JobsDownloaded records retrieval outcomes for the jobs a download run
// attempted, so `log tail` shows retrievals alongside submissions.
func (l Ledger) JobsDownloaded(ctx context.Context, jobs []domain.Job, res download.Result) error {
	failed := make(map[string]error, len(res.Failed))
	for _, f := range res.Failed {
		failed[f.Job.ID] = f.Err
	}
	for _, job := range jobs {
		if err := l.Repo.UpsertJob(ctx, l.Project, job, l.now()); err != nil {
			return err
		}
		if dlErr, ok := failed[job.ID]; ok {
			if err := l.Events.Append(ctx, "job.download_failed", l.Project, job.ID, events.EventPayload{
				"error": dlErr.Error(),
			}); err != nil {
				return err
			}
			continue
		}
		if err := l.Events.Append(ctx, "job.downloaded", l.Project, job.ID, nil); err != nil {
			return err
		}
	}
	return nil
}

// JobsUpdated refreshes statuses after a watch resolves.
func (l Ledger) JobsUpdated(ctx context.Context, jobs []domain.Job) error {
	for _, job := range jobs {
		if err := l.Repo.UpsertJob(ctx, l.Project, job, l.now()); err != nil {
			return err
		}
		if err := l.Events.Append(ctx, "job.status", l.Project, job.ID, events.EventPayload{
			"status": string(job.Status),
		}); err != nil {
			return err
		}
	}
	return nil
}
