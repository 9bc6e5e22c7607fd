// Package hyp3 is a minimal client for the HyP3 processing API: job
// submission, credit balance, job polling, and artifact retrieval.
package hyp3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sarbatch/internal/domain"
)

// Job types accepted by the submission endpoint.
const (
	JobTypeInSAR      = "INSAR_GAMMA"
	JobTypeInSARBurst = "INSAR_ISCE_BURST"
)

var (
	ErrUnauthorized  = errors.New("processing service rejected credentials")
	ErrRequestFailed = errors.New("processing service request failed")
)

// SubmitOptions enumerates the product options for one InSAR job.
type SubmitOptions struct {
	ProjectName             string
	Looks                   string
	IncludeWrappedPhase     bool
	IncludeDisplacementMaps bool
	ApplyWaterMask          bool
	IncludeDEM              bool
	IncludeLookVectors      bool
}

// Client talks to the HyP3 API with basic auth.
type Client struct {
	BaseURL      string
	Username     string
	Password     string
	PollInterval time.Duration
	HTTPClient   *http.Client
}

// New creates a client with sane defaults.
func New(baseURL, username, password string) *Client {
	return &Client{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		Username:     username,
		Password:     password,
		PollInterval: 60 * time.Second,
		HTTPClient:   &http.Client{Timeout: 5 * time.Minute},
	}
}

// SubmitInSAR submits one full-scene InSAR pair.
func (c *Client) SubmitInSAR(ctx context.Context, pair domain.Pair, opts SubmitOptions) (domain.Job, error) {
	return c.submit(ctx, JobTypeInSAR, pair, opts)
}

// SubmitInSARBurst submits one burst InSAR pair.
func (c *Client) SubmitInSARBurst(ctx context.Context, pair domain.Pair, opts SubmitOptions) (domain.Job, error) {
	return c.submit(ctx, JobTypeInSARBurst, pair, opts)
}

func (c *Client) submit(ctx context.Context, jobType string, pair domain.Pair, opts SubmitOptions) (domain.Job, error) {
	params := map[string]any{
		"granules":                  []string{pair.Reference, pair.Secondary},
		"looks":                     opts.Looks,
		"include_wrapped_phase":     opts.IncludeWrappedPhase,
		"include_displacement_maps": opts.IncludeDisplacementMaps,
		"apply_water_mask":          opts.ApplyWaterMask,
		"include_dem":               opts.IncludeDEM,
		"include_look_vectors":      opts.IncludeLookVectors,
	}
	body := map[string]any{
		"jobs": []map[string]any{{
			"job_type":       jobType,
			"name":           opts.ProjectName,
			"job_parameters": params,
		}},
	}
	var resp struct {
		Jobs []domain.Job `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodPost, "/jobs", body, &resp); err != nil {
		return domain.Job{}, err
	}
	if len(resp.Jobs) == 0 {
		return domain.Job{}, fmt.Errorf("%w: submission returned no jobs", ErrRequestFailed)
	}
	job := resp.Jobs[0]
	job.Reference = pair.Reference
	job.Secondary = pair.Secondary
	return job, nil
}

// CheckCredits returns the remaining credit balance for the account.
func (c *Client) CheckCredits(ctx context.Context) (int, error) {
	var resp struct {
		RemainingCredits int `json:"remaining_credits"`
	}
	if err := c.do(ctx, http.MethodGet, "/user", nil, &resp); err != nil {
		return 0, err
	}
	return resp.RemainingCredits, nil
}

// FindJobs returns all jobs submitted under the given project name.
func (c *Client) FindJobs(ctx context.Context, name string) ([]domain.Job, error) {
	var resp struct {
		Jobs []domain.Job `json:"jobs"`
	}
	endpoint := "/jobs?name=" + url.QueryEscape(name)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Refresh fetches the current state of one job.
func (c *Client) Refresh(ctx context.Context, job domain.Job) (domain.Job, error) {
	var updated domain.Job
	if err := c.do(ctx, http.MethodGet, "/jobs/"+url.PathEscape(job.ID), nil, &updated); err != nil {
		return job, err
	}
	updated.Reference = job.Reference
	updated.Secondary = job.Secondary
	return updated, nil
}

// Watch polls the service until every job reaches a terminal status or the
// context is canceled. The returned slice always reflects the last state seen
// for each job.
func (c *Client) Watch(ctx context.Context, jobs []domain.Job) ([]domain.Job, error) {
	current := make([]domain.Job, len(jobs))
	copy(current, jobs)
	interval := c.PollInterval
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		pending := 0
		for i, job := range current {
			if job.Status.Terminal() {
				continue
			}
			updated, err := c.Refresh(ctx, job)
			if err != nil {
				return current, fmt.Errorf("refresh job %s: %w", job.ID, err)
			}
			current[i] = updated
			if !updated.Status.Terminal() {
				pending++
			}
		}
		if pending == 0 {
			return current, nil
		}
		select {
		case <-ctx.Done():
			return current, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Download retrieves every artifact of a job into destDir and returns the
// written paths. The directory is created if missing.
func (c *Client) Download(ctx context.Context, job domain.Job, destDir string) ([]string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(job.Files))
	for _, f := range job.Files {
		path := filepath.Join(destDir, f.Filename)
		if err := c.fetchFile(ctx, f.URL, path); err != nil {
			return paths, fmt.Errorf("download %s: %w", f.Filename, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (c *Client) fetchFile(ctx context.Context, fileURL, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+endpoint, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.Username, c.Password)
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode >= 300:
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: status %d body %s", ErrRequestFailed, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
