// Package download retrieves completed job artifacts with a bounded pool of
// workers, isolating failures per job.
package download

import (
	"context"
	"log/slog"
	"sync"

	"sarbatch/internal/domain"
)

// DefaultWorkers bounds concurrent in-flight downloads when the caller does
// not say otherwise.
const DefaultWorkers = 10

// Fetcher retrieves all artifacts of one job into destDir.
type Fetcher func(ctx context.Context, job domain.Job, destDir string) ([]string, error)

// JobError attributes a download failure to its job.
type JobError struct {
	Job domain.Job
	Err error
}

// Result aggregates one DownloadAll run. Succeeded + len(Failed) always
// equals the number of jobs given.
type Result struct {
	Succeeded int
	Failed    []JobError
	Paths     []string
}

// Sink receives incremental completion notifications. Implementations must be
// safe for use from the aggregating goroutine only.
type Sink interface {
	Start(total int)
	Done(job domain.Job, err error)
	Finish(res Result)
}

// NopSink discards all progress notifications.
type NopSink struct{}

func (NopSink) Start(int)              {}
func (NopSink) Done(domain.Job, error) {}
func (NopSink) Finish(Result)          {}

// Manager runs concurrent artifact downloads.
type Manager struct {
	Fetch   Fetcher
	Workers int
	Logger  *slog.Logger
	Sink    Sink
}

type outcome struct {
	job   domain.Job
	paths []string
	err   error
}

// DownloadAll retrieves artifacts for every job into destDir. Jobs are handed
// to a fixed pool of workers; one failed download never affects its siblings.
// Completion is reported per job, unordered, as downloads finish.
func (m Manager) DownloadAll(ctx context.Context, jobs []domain.Job, destDir string) Result {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := m.Sink
	if sink == nil {
		sink = NopSink{}
	}
	if len(jobs) == 0 {
		logger.Warn("no jobs to download")
		return Result{}
	}
	workers := m.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	queue := make(chan domain.Job)
	outcomes := make(chan outcome)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for job := range queue {
				paths, err := m.Fetch(ctx, job, destDir)
				outcomes <- outcome{job: job, paths: paths, err: err}
			}
		}()
	}
	go func() {
		for _, job := range jobs {
			queue <- job
		}
		close(queue)
		wg.Wait()
		close(outcomes)
	}()

	sink.Start(len(jobs))
	var res Result
	for o := range outcomes {
		if o.err != nil {
			logger.Error("failed to download job", "job_id", o.job.ID, "error", o.err)
			res.Failed = append(res.Failed, JobError{Job: o.job, Err: o.err})
		} else {
			res.Succeeded++
			res.Paths = append(res.Paths, o.paths...)
		}
		sink.Done(o.job, o.err)
	}
	sink.Finish(res)
	logger.Info("download complete", "succeeded", res.Succeeded, "failed", len(res.Failed))
	return res
}
