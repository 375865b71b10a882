package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the loom daemon's HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client for the daemon at baseURL. An empty token omits
// the Authorization header.
func NewClient(baseURL, token string) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base != "" && !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL: base,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Status fetches daemon runtime information.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var status DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// CreateRequest submits a new content request.
func (c *Client) CreateRequest(ctx context.Context, input CreateRequestInput) (*RequestDetailResponse, error) {
	var detail RequestDetailResponse
	if err := c.do(ctx, http.MethodPost, "/api/requests", input, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListRequests fetches requests, optionally filtered by status.
func (c *Client) ListRequests(ctx context.Context, statuses ...string) ([]RequestView, error) {
	path := "/api/requests"
	if len(statuses) > 0 {
		values := url.Values{}
		for _, status := range statuses {
			values.Add("status", status)
		}
		path += "?" + values.Encode()
	}
	var resp RequestListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Requests, nil
}

// GetRequest fetches one request with its tasks.
func (c *Client) GetRequest(ctx context.Context, id string) (*RequestDetailResponse, error) {
	var detail RequestDetailResponse
	if err := c.do(ctx, http.MethodGet, "/api/requests/"+url.PathEscape(id), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Process triggers an orchestration pass for a request.
func (c *Client) Process(ctx context.Context, id string) (*ProcessResult, error) {
	var result ProcessResult
	if err := c.do(ctx, http.MethodPost, "/api/requests/"+url.PathEscape(id)+"/process", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Approve publishes a request sitting in qa.
func (c *Client) Approve(ctx context.Context, id string) (*RequestView, error) {
	var view RequestView
	if err := c.do(ctx, http.MethodPost, "/api/requests/"+url.PathEscape(id)+"/approve", nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Cancel cancels a request.
func (c *Client) Cancel(ctx context.Context, id string) (*RequestView, error) {
	var view RequestView
	if err := c.do(ctx, http.MethodPost, "/api/requests/"+url.PathEscape(id)+"/cancel", nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Rollback moves a request one stage backwards.
func (c *Client) Rollback(ctx context.Context, id string) (*RequestView, error) {
	var view RequestView
	if err := c.do(ctx, http.MethodPost, "/api/requests/"+url.PathEscape(id)+"/rollback", nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Progress fetches the weighted completion snapshot for a request.
func (c *Client) Progress(ctx context.Context, id string) (*ProgressView, error) {
	var view ProgressView
	if err := c.do(ctx, http.MethodGet, "/api/requests/"+url.PathEscape(id)+"/progress", nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Events fetches the timeline for a request.
func (c *Client) Events(ctx context.Context, id string) ([]EventView, error) {
	var resp EventListResponse
	if err := c.do(ctx, http.MethodGet, "/api/requests/"+url.PathEscape(id)+"/events", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// RetryTask requeues a failed task.
func (c *Client) RetryTask(ctx context.Context, taskID string) (*TaskView, error) {
	var view TaskView
	if err := c.do(ctx, http.MethodPost, "/api/tasks/"+url.PathEscape(taskID)+"/retry", nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("daemon API address not configured")
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
