// Package catalog queries the acquisition catalog for scene stacks with
// precomputed temporal baselines.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"sarbatch/internal/domain"
)

// ErrNotFound indicates the search returned no acquisitions.
var ErrNotFound = errors.New("no acquisitions found")

// Client talks to the catalog search API.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New creates a catalog client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type searchResult struct {
	Results []struct {
		SceneName        string  `json:"sceneName"`
		StartTime        string  `json:"startTime"`
		TemporalBaseline float64 `json:"temporalBaseline"`
		FrameNumber      int     `json:"frameNumber"`
		PathNumber       int     `json:"pathNumber"`
	} `json:"results"`
}

// GranuleSearch returns the acquisitions matching the given scene identifiers,
// optionally filtered to [start, end]. The result is ordered by start time.
func (c *Client) GranuleSearch(ctx context.Context, ids []string, start, end *time.Time) ([]domain.Acquisition, error) {
	endpoint := "/services/search/param?granule_list=" + url.QueryEscape(strings.Join(ids, ","))
	stack, err := c.search(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	filtered := stack[:0]
	for _, a := range stack {
		if start != nil && a.StartTime.Before(*start) {
			continue
		}
		if end != nil && a.StartTime.After(*end) {
			continue
		}
		filtered = append(filtered, a)
	}
	if len(filtered) == 0 {
		return nil, ErrNotFound
	}
	return filtered, nil
}

// StackFromReference returns the baseline stack of the reference scene,
// restricted by the service to the reference's frame and path.
func (c *Client) StackFromReference(ctx context.Context, referenceID string) ([]domain.Acquisition, error) {
	endpoint := "/services/search/baseline?reference=" + url.QueryEscape(referenceID)
	return c.search(ctx, endpoint)
}

func (c *Client) search(ctx context.Context, endpoint string) ([]domain.Acquisition, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog search: status %d", resp.StatusCode)
	}
	var result searchResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}
	if len(result.Results) == 0 {
		return nil, ErrNotFound
	}
	stack := make([]domain.Acquisition, 0, len(result.Results))
	for _, r := range result.Results {
		ts, err := time.Parse(time.RFC3339, r.StartTime)
		if err != nil {
			return nil, fmt.Errorf("parse start time for %s: %w", r.SceneName, err)
		}
		stack = append(stack, domain.Acquisition{
			SceneID:          r.SceneName,
			StartTime:        ts,
			TemporalBaseline: r.TemporalBaseline,
			FrameNumber:      r.FrameNumber,
			PathNumber:       r.PathNumber,
		})
	}
	sort.Slice(stack, func(i, j int) bool { return stack[i].StartTime.Before(stack[j].StartTime) })
	return stack, nil
}
