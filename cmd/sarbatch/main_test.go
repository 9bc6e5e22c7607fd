package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sarbatch/internal/domain"
)

func TestPrintJobsRendersLedgerRows(t *testing.T) {
	jobs := []domain.Job{
		{ID: "j1", Type: "INSAR_GAMMA", Status: domain.JobSucceeded, Reference: "S1A_ref", Secondary: "S1A_sec",
			Files: []domain.JobFile{{Filename: "a.tif"}}},
		{ID: "j2", Type: "INSAR_GAMMA", Status: domain.JobFailed, Reference: "S1A_ref2", Secondary: "S1A_sec2"},
	}
	counts := map[domain.JobStatus]int{
		domain.JobSucceeded: 1,
		domain.JobFailed:    1,
	}

	var buf bytes.Buffer
	require.NoError(t, printJobs(&buf, jobs, counts))
	out := buf.String()
	assert.Contains(t, out, "j1")
	assert.Contains(t, out, "S1A_ref2")
	assert.Contains(t, out, "SUCCEEDED: 1, FAILED: 1")
}

func TestStatusSummaryOrdersAndSkipsZero(t *testing.T) {
	counts := map[domain.JobStatus]int{
		domain.JobFailed:  2,
		domain.JobPending: 3,
	}
	assert.Equal(t, "PENDING: 3, FAILED: 2", statusSummary(counts))
}

func TestSliceJobsBounds(t *testing.T) {
	jobs := []domain.Job{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	assert.Len(t, sliceJobs(jobs, 0, -1), 3)
	assert.Equal(t, "b", sliceJobs(jobs, 1, 2)[0].ID)
	assert.Len(t, sliceJobs(jobs, 1, 10), 2)
	assert.Nil(t, sliceJobs(jobs, 3, -1))
}
