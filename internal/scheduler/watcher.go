package scheduler

import (
	"context"
	"log/slog"

	"sarbatch/internal/domain"
)

// Mode selects how submitted jobs are awaited.
type Mode string

const (
	// Blocking waits until every job reaches a terminal status.
	Blocking Mode = "blocking"
	// FireAndForget returns immediately; artifacts must be retrieved later.
	FireAndForget Mode = "fire-and-forget"
)

// WatchFunc blocks until all given jobs are terminal or ctx is canceled,
// returning the last observed state of each job.
type WatchFunc func(ctx context.Context, jobs []domain.Job) ([]domain.Job, error)

// Watcher tracks submitted jobs to completion.
type Watcher struct {
	Watch  WatchFunc
	Logger *slog.Logger
}

// Await resolves the given jobs according to mode. The returned bool reports
// whether the jobs were actually watched; it is false in fire-and-forget
// mode, where jobs come back unchanged and a later download step is needed.
func (w Watcher) Await(ctx context.Context, jobs []domain.Job, mode Mode) ([]domain.Job, bool, error) {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if mode == FireAndForget {
		logger.Info("not watching jobs; retrieve artifacts later with the download command", "jobs", len(jobs))
		return jobs, false, nil
	}
	logger.Info("watching job progress", "jobs", len(jobs))
	updated, err := w.Watch(ctx, jobs)
	if err != nil {
		return updated, false, err
	}
	return updated, true, nil
}
