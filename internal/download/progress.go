package download

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/progress"

	"sarbatch/internal/domain"
)

// ProgressSink renders a live progress bar while jobs download.
type ProgressSink struct {
	Out io.Writer

	pw        progress.Writer
	tracker   *progress.Tracker
	succeeded int
	failed    int
}

// NewProgressSink writes progress to out (typically stderr).
func NewProgressSink(out io.Writer) *ProgressSink {
	return &ProgressSink{Out: out}
}

func (s *ProgressSink) Start(total int) {
	s.pw = progress.NewWriter()
	s.pw.SetOutputWriter(s.Out)
	s.pw.SetAutoStop(false)
	s.tracker = &progress.Tracker{
		Message: "Downloading jobs",
		Total:   int64(total),
		Units:   progress.UnitsDefault,
	}
	s.pw.AppendTracker(s.tracker)
	go s.pw.Render()
}

func (s *ProgressSink) Done(job domain.Job, err error) {
	if err != nil {
		s.failed++
	} else {
		s.succeeded++
	}
	s.tracker.UpdateMessage(fmt.Sprintf("Downloading jobs (ok: %d, failed: %d)", s.succeeded, s.failed))
	s.tracker.Increment(1)
}

func (s *ProgressSink) Finish(Result) {
	s.tracker.MarkAsDone()
	s.pw.Stop()
}
