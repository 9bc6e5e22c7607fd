package domain

import "time"

// Acquisition is one catalog scene with its temporal baseline relative to the
// earliest acquisition in the same stack (days, signed).
type Acquisition struct {
	SceneID          string    `json:"scene_id"`
	StartTime        time.Time `json:"start_time"`
	TemporalBaseline float64   `json:"temporal_baseline"`
	FrameNumber      int       `json:"frame_number"`
	PathNumber       int       `json:"path_number"`
}

// Pair is a directed (reference, secondary) processing unit.
type Pair struct {
	Reference string `json:"reference"`
	Secondary string `json:"secondary"`
}

type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobRunning   JobStatus = "RUNNING"
	JobSucceeded JobStatus = "SUCCEEDED"
	JobFailed    JobStatus = "FAILED"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// JobFile is one downloadable artifact of a finished job.
type JobFile struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
}

// Event is one entry in the workspace run log.
type Event struct {
	ID       int64  `json:"id"`
	TS       string `json:"ts"`
	Type     string `json:"type"`
	Project  string `json:"project,omitempty"`
	EntityID string `json:"entity_id,omitempty"`
	Payload  string `json:"payload_json"`
}

// Job is one remote processing task for a single pair.
type Job struct {
	ID          string    `json:"job_id"`
	Name        string    `json:"name,omitempty"`
	Type        string    `json:"job_type"`
	Status      JobStatus `json:"status_code"`
	Reference   string    `json:"reference,omitempty"`
	Secondary   string    `json:"secondary,omitempty"`
	Files       []JobFile `json:"files,omitempty"`
	RequestTime string    `json:"request_time,omitempty"`
}
