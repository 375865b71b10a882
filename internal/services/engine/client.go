package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"loom/internal/config"
	"loom/internal/services"
)

// Execution statuses reported by the automation engine.
const (
	StatusCompleted = "completed"
	StatusRunning   = "running"
	StatusFailed    = "failed"
)

// SignatureHeader carries the HMAC over dispatch and callback bodies.
const SignatureHeader = "X-Loom-Signature"

// DispatchRequest is the payload sent to the engine to start a workflow
// execution for one task.
type DispatchRequest struct {
	RequestID     string         `json:"request_id"`
	TaskID        string         `json:"task_id"`
	TaskKey       string         `json:"task_key"`
	AgentRole     string         `json:"agent_role"`
	CorrelationID string         `json:"correlation_id"`
	CallbackURL   string         `json:"callback_url"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// DispatchResult is the engine's synchronous answer to a dispatch. Status
// "running" means the result arrives later through the signed callback.
type DispatchResult struct {
	ExecutionID string         `json:"execution_id"`
	Status      string         `json:"status"`
	Output      map[string]any `json:"output,omitempty"`
	OutputURL   string         `json:"output_url,omitempty"`
}

// Callback is the engine's completion report, posted to the callback URL and
// authenticated by SignatureHeader.
type Callback struct {
	CorrelationID string         `json:"correlation_id"`
	ExecutionID   string         `json:"execution_id"`
	Status        string         `json:"status"`
	Output        map[string]any `json:"output,omitempty"`
	OutputURL     string         `json:"output_url,omitempty"`
	ErrorCode     string         `json:"error_code,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
}

// Client dispatches task executions to the automation engine over HTTP.
type Client struct {
	baseURL         string
	callbackBaseURL string
	secret          string
	workflowIDs     map[string]string
	mockMode        bool
	httpClient      *http.Client
}

// NewFromConfig builds a client from the engine configuration section.
func NewFromConfig(cfg *config.Config) *Client {
	timeout := time.Duration(cfg.Engine.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:         strings.TrimRight(cfg.Engine.BaseURL, "/"),
		callbackBaseURL: strings.TrimRight(cfg.Engine.CallbackBaseURL, "/"),
		secret:          cfg.Engine.CallbackSecret,
		workflowIDs:     cfg.Engine.WorkflowIDs,
		mockMode:        cfg.Engine.MockMode,
		httpClient:      &http.Client{Timeout: timeout},
	}
}

// CallbackURL returns the endpoint the engine should report completions to.
func (c *Client) CallbackURL() string {
	return c.callbackBaseURL + "/api/callbacks/engine"
}

// VerifyCallback checks the HMAC signature over a callback body.
func (c *Client) VerifyCallback(body []byte, signature string) bool {
	return VerifySignature(c.secret, body, signature)
}

// Dispatch starts the workflow mapped to taskType. A missing workflow mapping
// is a configuration error and never retried; transport and 5xx failures
// surface as SERVICE_UNAVAILABLE so the breaker and retry schedule engage.
func (c *Client) Dispatch(ctx context.Context, taskType string, req DispatchRequest) (*DispatchResult, error) {
	workflowID, ok := c.workflowIDs[taskType]
	if !ok || strings.TrimSpace(workflowID) == "" {
		return nil, services.Wrap(
			services.ErrWorkflowNotFound, "engine", "dispatch",
			fmt.Sprintf("no workflow mapped for task type %q", taskType), nil)
	}

	if c.mockMode {
		return c.mockResult(taskType), nil
	}

	if req.CallbackURL == "" {
		req.CallbackURL = c.CallbackURL()
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, services.Wrap(services.ErrExecutionFailed, "engine", "dispatch", "encode request", err)
	}

	url := fmt.Sprintf("%s/webhook/%s", c.baseURL, workflowID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, services.Wrap(services.ErrExecutionFailed, "engine", "dispatch", "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		httpReq.Header.Set(SignatureHeader, Sign(c.secret, body))
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, services.Wrap(services.ErrUnavailable, "engine", "dispatch", "request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrUnavailable, "engine", "dispatch", "read response", err)
	}

	switch {
	case resp.StatusCode >= 500:
		return nil, services.Wrap(
			services.ErrUnavailable, "engine", "dispatch",
			fmt.Sprintf("engine returned %d", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusNotFound:
		return nil, services.Wrap(
			services.ErrWorkflowNotFound, "engine", "dispatch",
			fmt.Sprintf("workflow %s not found on engine", workflowID), nil)
	case resp.StatusCode >= 300:
		return nil, services.Wrap(
			services.ErrExecutionFailed, "engine", "dispatch",
			fmt.Sprintf("engine returned %d: %s", resp.StatusCode, truncate(respBody, 200)), nil)
	}

	var result DispatchResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, services.Wrap(services.ErrExecutionFailed, "engine", "dispatch", "decode response", err)
	}
	if result.Status == "" {
		result.Status = StatusRunning
	}
	return &result, nil
}

func (c *Client) mockResult(taskType string) *DispatchResult {
	return &DispatchResult{
		ExecutionID: "mock-" + uuid.NewString(),
		Status:      StatusCompleted,
		Output: map[string]any{
			"mock":      true,
			"task_type": taskType,
		},
	}
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
