package remote

import (
	"bytes"
	"context"
	"dagsync/internal/state"
	"dagsync/types"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/sony/gobreaker"
)

const (
	apiPrefix    = "/api/v1"
	listPageSize = 100
)

// RestClient talks to the Airflow stable REST API.
type RestClient struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewRestClient builds a client bound to one set of credentials.
func NewRestClient(baseURL, username, password string, timeout time.Duration) *RestClient {
	return &RestClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
		httpClient: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "remote-job-api",
			MaxRequests: 3,
			Interval:    30 * time.Second,
			Timeout:     10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 5 && failureRatio >= 0.6
			},
			// a missing job or run is an answer, not an outage; neither is a
			// request the caller gave up on
			IsSuccessful: func(err error) bool {
				var abandoned *abandonedError
				return err == nil || errors.Is(err, ErrNotFound) ||
					errors.As(err, &abandoned) || errors.Is(err, context.Canceled)
			},
		}),
	}
}

type listDagsParams struct {
	Limit      int  `url:"limit"`
	Offset     int  `url:"offset"`
	OnlyActive bool `url:"only_active"`
}

type listRunsParams struct {
	Limit   int    `url:"limit"`
	OrderBy string `url:"order_by"`
}

type updateMaskParams struct {
	UpdateMask string `url:"update_mask"`
}

type dagTag struct {
	Name string `json:"name"`
}

type dagPayload struct {
	DagID            string          `json:"dag_id"`
	Description      *string         `json:"description"`
	IsPaused         bool            `json:"is_paused"`
	IsActive         bool            `json:"is_active"`
	Owners           []string        `json:"owners"`
	Tags             []dagTag        `json:"tags"`
	ScheduleInterval json.RawMessage `json:"schedule_interval"`
}

type dagCollection struct {
	Dags         []dagPayload `json:"dags"`
	TotalEntries int          `json:"total_entries"`
}

type dagRunPayload struct {
	DagRunID    string         `json:"dag_run_id"`
	DagID       string         `json:"dag_id"`
	State       string         `json:"state"`
	LogicalDate *time.Time     `json:"logical_date"`
	StartDate   *time.Time     `json:"start_date"`
	EndDate     *time.Time     `json:"end_date"`
	Conf        map[string]any `json:"conf"`
}

type dagRunCollection struct {
	DagRuns      []dagRunPayload `json:"dag_runs"`
	TotalEntries int             `json:"total_entries"`
}

func (c *RestClient) ListJobs(ctx context.Context) ([]types.JobRecord, error) {
	var jobs []types.JobRecord
	page := 1
	for {
		result, err := c.ListJobsPage(ctx, page, listPageSize)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, result.Items...)
		if !result.HasNextPage {
			return jobs, nil
		}
		page++
	}
}

// ListJobsPage returns one page of job definitions.
func (c *RestClient) ListJobsPage(ctx context.Context, page, pageSize int) (*types.PaginationResult[types.JobRecord], error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = listPageSize
	}
	params := listDagsParams{Limit: pageSize, Offset: (page - 1) * pageSize, OnlyActive: true}

	var out dagCollection
	if err := c.do(ctx, http.MethodGet, "/dags", params, nil, &out); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	items := make([]types.JobRecord, 0, len(out.Dags))
	for _, d := range out.Dags {
		items = append(items, *d.toJobRecord())
	}
	return types.NewPage(items, page, pageSize, out.TotalEntries), nil
}

func (c *RestClient) FetchJob(ctx context.Context, jobID string) (*types.JobRecord, error) {
	var out dagPayload
	if err := c.do(ctx, http.MethodGet, "/dags/"+url.PathEscape(jobID), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("fetch job %s: %w", jobID, err)
	}
	return out.toJobRecord(), nil
}

func (c *RestClient) FetchLatestRun(ctx context.Context, jobID string) (*types.RunRecord, error) {
	params := listRunsParams{Limit: 1, OrderBy: "-execution_date"}

	var out dagRunCollection
	if err := c.do(ctx, http.MethodGet, "/dags/"+url.PathEscape(jobID)+"/dagRuns", params, nil, &out); err != nil {
		return nil, fmt.Errorf("fetch latest run of %s: %w", jobID, err)
	}
	if len(out.DagRuns) == 0 {
		return nil, nil
	}
	return out.DagRuns[0].toRunRecord(jobID), nil
}

func (c *RestClient) FetchRun(ctx context.Context, jobID, runID string) (*types.RunRecord, error) {
	var out dagRunPayload
	path := "/dags/" + url.PathEscape(jobID) + "/dagRuns/" + url.PathEscape(runID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, fmt.Errorf("fetch run %s/%s: %w", jobID, runID, err)
	}
	return out.toRunRecord(jobID), nil
}

func (c *RestClient) TriggerRun(ctx context.Context, jobID string, conf map[string]any, logicalDate *time.Time) (*types.RunRecord, error) {
	if conf == nil {
		conf = map[string]any{}
	}
	body := map[string]any{"conf": conf}
	if logicalDate != nil {
		body["logical_date"] = logicalDate.UTC().Format(time.RFC3339)
	}

	var out dagRunPayload
	if err := c.do(ctx, http.MethodPost, "/dags/"+url.PathEscape(jobID)+"/dagRuns", nil, body, &out); err != nil {
		return nil, fmt.Errorf("trigger %s: %w", jobID, err)
	}
	return out.toRunRecord(jobID), nil
}

func (c *RestClient) SetPaused(ctx context.Context, jobID string, paused bool) error {
	params := updateMaskParams{UpdateMask: "is_paused"}
	body := map[string]any{"is_paused": paused}
	if err := c.do(ctx, http.MethodPatch, "/dags/"+url.PathEscape(jobID), params, body, nil); err != nil {
		return fmt.Errorf("set paused=%t on %s: %w", paused, jobID, err)
	}
	return nil
}

// CancelRun marks a queued or running run as failed, which is how the API stops it.
func (c *RestClient) CancelRun(ctx context.Context, jobID, runID string) error {
	path := "/dags/" + url.PathEscape(jobID) + "/dagRuns/" + url.PathEscape(runID)
	body := map[string]any{"state": state.StatusFailed.String()}
	if err := c.do(ctx, http.MethodPatch, path, nil, body, nil); err != nil {
		return fmt.Errorf("cancel run %s/%s: %w", jobID, runID, err)
	}
	return nil
}

// abandonedError is a failure of a request whose context ended first.
type abandonedError struct {
	err error
}

func (e *abandonedError) Error() string { return e.err.Error() }

func (e *abandonedError) Unwrap() error { return e.err }

func (c *RestClient) do(ctx context.Context, method, path string, params any, body any, out any) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		err := c.roundTrip(ctx, method, path, params, body, out)
		if err != nil && ctx.Err() != nil {
			return nil, &abandonedError{err: err}
		}
		return nil, err
	})
	return err
}

func (c *RestClient) roundTrip(ctx context.Context, method, path string, params any, body any, out any) error {
	endpoint := c.baseURL + apiPrefix + path
	if params != nil {
		values, err := query.Values(params)
		if err != nil {
			return fmt.Errorf("encode query: %w", err)
		}
		endpoint += "?" + values.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (d *dagPayload) toJobRecord() *types.JobRecord {
	job := &types.JobRecord{
		JobID:    d.DagID,
		IsPaused: d.IsPaused,
		IsActive: d.IsActive,
		Owners:   d.Owners,
		Schedule: scheduleExpression(d.ScheduleInterval),
	}
	if d.Description != nil {
		job.Description = *d.Description
	}
	for _, t := range d.Tags {
		job.Tags = append(job.Tags, t.Name)
	}
	return job
}

func (r *dagRunPayload) toRunRecord(jobID string) *types.RunRecord {
	if r.DagID != "" {
		jobID = r.DagID
	}
	return &types.RunRecord{
		JobID:       jobID,
		RunID:       r.DagRunID,
		State:       state.ParseRunState(r.State),
		LogicalDate: r.LogicalDate,
		StartTime:   r.StartDate,
		EndTime:     r.EndDate,
		Conf:        r.Conf,
	}
}

// scheduleExpression flattens the API's schedule_interval object into a cron
// expression or an "@every" descriptor.
func scheduleExpression(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s struct {
		Type         string `json:"__type"`
		Value        string `json:"value"`
		Days         int    `json:"days"`
		Seconds      int    `json:"seconds"`
		Microseconds int    `json:"microseconds"`
	}
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	switch s.Type {
	case "CronExpression":
		return s.Value
	case "TimeDelta":
		d := time.Duration(s.Days)*24*time.Hour +
			time.Duration(s.Seconds)*time.Second +
			time.Duration(s.Microseconds)*time.Microsecond
		return "@every " + d.String()
	}
	return ""
}
