package api

import "time"

// RequestView is the wire representation of a content request.
type RequestView struct {
	ID          string            `json:"id"`
	RequestType string            `json:"request_type"`
	Status      string            `json:"status"`
	Title       string            `json:"title"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// TaskView is the wire representation of a request task.
type TaskView struct {
	ID            string         `json:"id"`
	RequestID     string         `json:"request_id"`
	TaskKey       string         `json:"task_key"`
	TaskName      string         `json:"task_name"`
	AgentRole     string         `json:"agent_role"`
	Status        string         `json:"status"`
	Sequence      int            `json:"sequence"`
	OutputData    map[string]any `json:"output_data,omitempty"`
	OutputURL     string         `json:"output_url,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	RetryCount    int            `json:"retry_count"`
	NextRetryAt   *time.Time     `json:"next_retry_at,omitempty"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// EventView is the wire representation of a timeline event.
type EventView struct {
	ID        int64     `json:"id"`
	TaskName  string    `json:"task_name,omitempty"`
	AgentRole string    `json:"agent_role,omitempty"`
	EventType string    `json:"event_type"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ProgressView reports weighted completion for a request.
type ProgressView struct {
	RequestID                 string   `json:"request_id"`
	Status                    string   `json:"status"`
	Phase                     string   `json:"phase"`
	Percent                   int      `json:"percent"`
	TasksTotal                int      `json:"tasks_total"`
	TasksCompleted            int      `json:"tasks_completed"`
	TasksInProgress           int      `json:"tasks_in_progress"`
	TasksFailed               int      `json:"tasks_failed"`
	TasksPending              int      `json:"tasks_pending"`
	EstimatedSecondsRemaining *float64 `json:"estimated_seconds_remaining,omitempty"`
}

// BreakerView reports one circuit breaker's position.
type BreakerView struct {
	Name        string     `json:"name"`
	State       string     `json:"state"`
	Failures    int        `json:"failures"`
	LastFailure *time.Time `json:"last_failure,omitempty"`
}

// DaemonStatus is the /api/status payload.
type DaemonStatus struct {
	Running         bool           `json:"running"`
	DBPath          string         `json:"db_path"`
	LockFilePath    string         `json:"lock_file_path"`
	RequestCounts   map[string]int `json:"request_counts"`
	Breakers        []BreakerView  `json:"breakers,omitempty"`
	StaleDispatches []TaskView     `json:"stale_dispatches,omitempty"`
}

// CreateRequestInput is the POST /api/requests payload.
type CreateRequestInput struct {
	RequestType string            `json:"request_type"`
	Title       string            `json:"title"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	TaskInput   map[string]any    `json:"task_input,omitempty"`
}

// ProcessResult mirrors one orchestration pass over a request.
type ProcessResult struct {
	RequestID      string     `json:"request_id"`
	FinalStatus    string     `json:"final_status"`
	TasksRun       int        `json:"tasks_run"`
	Skipped        bool       `json:"skipped,omitempty"`
	Waiting        bool       `json:"waiting,omitempty"`
	RetryScheduled bool       `json:"retry_scheduled,omitempty"`
	NextRetryAt    *time.Time `json:"next_retry_at,omitempty"`
	Stalled        bool       `json:"stalled,omitempty"`
	BlockedOn      string     `json:"blocked_on,omitempty"`
}

// RequestListResponse wraps GET /api/requests.
type RequestListResponse struct {
	Requests []RequestView `json:"requests"`
}

// RequestDetailResponse wraps GET /api/requests/{id}.
type RequestDetailResponse struct {
	Request RequestView `json:"request"`
	Tasks   []TaskView  `json:"tasks"`
}

// EventListResponse wraps GET /api/requests/{id}/events.
type EventListResponse struct {
	Events []EventView `json:"events"`
}
