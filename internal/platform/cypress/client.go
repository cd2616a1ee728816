// Package cypress fetches daily end-to-end run results from the Cypress
// dashboard's report export API.
package cypress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Run status values reported by the dashboard. Records may carry other
// values; consumers treat anything that is not passed or noTests as a
// failing run.
const (
	StatusPassed  = "passed"
	StatusFailed  = "failed"
	StatusNoTests = "noTests"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultReportID = "daily-runs-per-project"
)

// ErrNotConfigured is returned by fetches when the client is missing its
// API key or base URL. Construction never fails so the server can boot
// without Cypress credentials; only report builds need them.
var ErrNotConfigured = errors.New("cypress client not configured")

// StatusError is a non-2xx response from the dashboard.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cypress: unexpected status %d: %s", e.StatusCode, e.Body)
}

// RawRun is one run record as exported by the dashboard.
type RawRun struct {
	ProjectName *string   `json:"project_name"`
	RunNumber   *int64    `json:"run_number"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Query selects the projects and date window of a fetch. Dates are
// YYYY-MM-DD at UTC midnight.
type Query struct {
	Projects  []string
	StartDate string
	EndDate   string
	Branch    string
}

// Client talks to the dashboard export API.
type Client struct {
	baseURL    string
	apiKey     string
	reportID   string
	timeout    time.Duration
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout overrides the default 30 second request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithReportID overrides the export report queried by
// DailyRunsPerProject.
func WithReportID(id string) Option {
	return func(c *Client) { c.reportID = id }
}

// NewClient creates a dashboard client. Empty credentials are accepted
// here and rejected on the first fetch.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:  baseURL,
		apiKey:   apiKey,
		reportID: defaultReportID,
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c
}

// DailyRunsPerProject fetches raw run records for the given projects and
// date window in a single request. There are no retries here; the queue
// engine owns the retry policy.
func (c *Client) DailyRunsPerProject(ctx context.Context, q Query) ([]RawRun, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: CYPRESS_API_KEY is not set", ErrNotConfigured)
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: CYPRESS_BASE_URL is not set", ErrNotConfigured)
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("cypress: parse base url: %w", err)
	}

	params := url.Values{}
	params.Set("report_id", c.reportID)
	params.Set("token", c.apiKey)
	params.Set("export_format", "json")
	params.Set("start_date", q.StartDate)
	params.Set("end_date", q.EndDate)
	if q.Branch != "" {
		params.Set("branch", q.Branch)
	}
	for _, project := range q.Projects {
		params.Add("projects", project)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("cypress: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cypress: fetch daily runs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var runs []RawRun
	if err := json.NewDecoder(resp.Body).Decode(&runs); err != nil {
		return nil, fmt.Errorf("cypress: decode response: %w", err)
	}
	return runs, nil
}
