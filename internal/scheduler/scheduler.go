// Package scheduler partitions an admitted pair set into chunks, submits each
// chunk sequentially, and drives the per-chunk watch/download lifecycle.
// Failures are isolated: a bad pair skips the pair, a bad chunk skips the
// chunk, and the run always continues.
package scheduler

import (
	"context"
	"log/slog"

	"sarbatch/internal/domain"
	"sarbatch/internal/download"
)

// DefaultBatchSize is the chunk size used when the caller does not set one.
const DefaultBatchSize = 50

// ChunkState is the lifecycle state a chunk ends in.
type ChunkState string

const (
	StateBuilt              ChunkState = "built"
	StateSubmitting         ChunkState = "submitting"
	StateEmptySubmission    ChunkState = "empty-submission"
	StatePartiallySubmitted ChunkState = "partially-submitted"
	StateFullySubmitted     ChunkState = "fully-submitted"
	StateWatching           ChunkState = "watching"
	StateCompleted          ChunkState = "completed"
	StateWatchFailed        ChunkState = "watch-failed"
)

// SubmitFunc submits one pair and returns the created job.
type SubmitFunc func(ctx context.Context, pair domain.Pair) (domain.Job, error)

// Downloader retrieves artifacts for a set of jobs.
type Downloader interface {
	DownloadAll(ctx context.Context, jobs []domain.Job, destDir string) download.Result
}

// Ledger records submissions and status changes in the local workspace. All
// ledger errors are logged and ignored: the ledger is a convenience cache,
// never a reason to abandon a chunk.
type Ledger interface {
	JobsSubmitted(ctx context.Context, jobs []domain.Job) error
	JobsUpdated(ctx context.Context, jobs []domain.Job) error
}

// PairError attributes a submission failure to its pair.
type PairError struct {
	Pair domain.Pair
	Err  error
}

// ChunkResult reports the outcome of one chunk.
type ChunkResult struct {
	Index        int // 0-based chunk number
	Start, End   int // 1-based pair range within the run
	State        ChunkState
	Jobs         []domain.Job
	SubmitErrors []PairError
	WatchErr     error
	Download     download.Result
}

// Options control one scheduling run.
type Options struct {
	Mode     Mode
	Download bool
	DestDir  string
}

// Scheduler submits admitted pairs in bounded chunks.
type Scheduler struct {
	Submit     SubmitFunc
	Watcher    Watcher
	Downloader Downloader
	Ledger     Ledger
	Logger     *slog.Logger
	BatchSize  int
}

// Run partitions pairs into chunks of at most BatchSize and processes each
// chunk end to end. Chunks are processed in formation order; submission
// within a chunk follows the pair order given.
func (s Scheduler) Run(ctx context.Context, pairs []domain.Pair, opts Options) []ChunkResult {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	size := s.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	var results []ChunkResult
	for i := 0; i < len(pairs); i += size {
		end := i + size
		if end > len(pairs) {
			end = len(pairs)
		}
		res := s.runChunk(ctx, logger, pairs[i:end], i+1, end, opts)
		res.Index = len(results)
		res.Start = i + 1
		res.End = end
		results = append(results, res)
	}
	return results
}

func (s Scheduler) runChunk(ctx context.Context, logger *slog.Logger, chunk []domain.Pair, start, end int, opts Options) ChunkResult {
	res := ChunkResult{State: StateSubmitting}
	for _, pair := range chunk {
		job, err := s.Submit(ctx, pair)
		if err != nil {
			logger.Error("error submitting job for pair",
				"reference", pair.Reference, "secondary", pair.Secondary, "error", err)
			res.SubmitErrors = append(res.SubmitErrors, PairError{Pair: pair, Err: err})
			continue
		}
		res.Jobs = append(res.Jobs, job)
	}
	switch {
	case len(res.Jobs) == 0:
		logger.Warn("no jobs were submitted in this chunk")
		res.State = StateEmptySubmission
		return res
	case len(res.SubmitErrors) > 0:
		res.State = StatePartiallySubmitted
	default:
		res.State = StateFullySubmitted
	}
	s.record(ctx, logger, res.Jobs, true)

	res.State = StateWatching
	watched, done, err := s.Watcher.Await(ctx, res.Jobs, opts.Mode)
	res.Jobs = watched
	if err != nil {
		logger.Error("error processing chunk", "range_start", start, "range_end", end, "error", err)
		res.State = StateWatchFailed
		res.WatchErr = err
		return res
	}
	if !done {
		// Fire and forget: jobs stay pending, nothing to download yet.
		res.State = StateCompleted
		return res
	}
	s.record(ctx, logger, res.Jobs, false)

	if opts.Download && s.Downloader != nil {
		res.Download = s.Downloader.DownloadAll(ctx, succeededJobs(res.Jobs), opts.DestDir)
	}
	for _, job := range res.Jobs {
		if job.Status == domain.JobFailed {
			logger.Warn("job failed remotely; not retried", "job_id", job.ID,
				"reference", job.Reference, "secondary", job.Secondary)
		}
	}
	res.State = StateCompleted
	return res
}

func (s Scheduler) record(ctx context.Context, logger *slog.Logger, jobs []domain.Job, submitted bool) {
	if s.Ledger == nil {
		return
	}
	var err error
	if submitted {
		err = s.Ledger.JobsSubmitted(ctx, jobs)
	} else {
		err = s.Ledger.JobsUpdated(ctx, jobs)
	}
	if err != nil {
		logger.Warn("ledger update failed", "error", err)
	}
}

func succeededJobs(jobs []domain.Job) []domain.Job {
	var out []domain.Job
	for _, j := range jobs {
		if j.Status == domain.JobSucceeded {
			out = append(out, j)
		}
	}
	return out
}
