package store

import (
	"strings"
	"time"
)

// RequestStatus represents the lifecycle stage of a content request.
type RequestStatus string

const (
	StatusIntake     RequestStatus = "intake"
	StatusDraft      RequestStatus = "draft"
	StatusProduction RequestStatus = "production"
	StatusQA         RequestStatus = "qa"
	StatusPublished  RequestStatus = "published"
	StatusCancelled  RequestStatus = "cancelled"
)

var allRequestStatuses = []RequestStatus{
	StatusIntake,
	StatusDraft,
	StatusProduction,
	StatusQA,
	StatusPublished,
	StatusCancelled,
}

var requestStatusSet = func() map[RequestStatus]struct{} {
	set := make(map[RequestStatus]struct{}, len(allRequestStatuses))
	for _, status := range allRequestStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllRequestStatuses returns the ordered list of known request statuses.
func AllRequestStatuses() []RequestStatus {
	cp := make([]RequestStatus, len(allRequestStatuses))
	copy(cp, allRequestStatuses)
	return cp
}

// ParseRequestStatus converts a string into a known RequestStatus.
func ParseRequestStatus(value string) (RequestStatus, bool) {
	normalized := RequestStatus(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := requestStatusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a request status has no outgoing transitions.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusPublished || s == StatusCancelled
}

// TaskStatus represents the execution state of a single request task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// AgentRole identifies the capability that owns a task.
type AgentRole string

const (
	RoleExecutive   AgentRole = "executive"
	RoleTaskPlanner AgentRole = "task_planner"
	RoleStrategist  AgentRole = "strategist"
	RoleCopywriter  AgentRole = "copywriter"
	RoleProducer    AgentRole = "producer"
	RoleQA          AgentRole = "qa"
)

var allAgentRoles = []AgentRole{
	RoleExecutive,
	RoleTaskPlanner,
	RoleStrategist,
	RoleCopywriter,
	RoleProducer,
	RoleQA,
}

// AllAgentRoles returns the known capability roles.
func AllAgentRoles() []AgentRole {
	cp := make([]AgentRole, len(allAgentRoles))
	copy(cp, allAgentRoles)
	return cp
}

// ParseAgentRole converts a string into a known AgentRole.
func ParseAgentRole(value string) (AgentRole, bool) {
	normalized := AgentRole(strings.ToLower(strings.TrimSpace(value)))
	for _, role := range allAgentRoles {
		if role == normalized {
			return role, true
		}
	}
	return "", false
}

// IsSystem reports whether a role is internal bookkeeping rather than a
// content capability. System tasks auto-complete without an adapter.
func (r AgentRole) IsSystem() bool {
	return r == RoleExecutive || r == RoleTaskPlanner
}

// RequestType enumerates the content kinds loom produces.
type RequestType string

const (
	TypeVideoAd     RequestType = "video_ad"
	TypeSocialPost  RequestType = "social_post"
	TypeBlogArticle RequestType = "blog_article"
)

var allRequestTypes = []RequestType{TypeVideoAd, TypeSocialPost, TypeBlogArticle}

// AllRequestTypes returns the known content request types.
func AllRequestTypes() []RequestType {
	cp := make([]RequestType, len(allRequestTypes))
	copy(cp, allRequestTypes)
	return cp
}

// ParseRequestType converts a string into a known RequestType.
func ParseRequestType(value string) (RequestType, bool) {
	normalized := RequestType(strings.ToLower(strings.TrimSpace(value)))
	for _, rt := range allRequestTypes {
		if rt == normalized {
			return rt, true
		}
	}
	return "", false
}

// Request represents a content request persisted in SQLite.
//
// Content fields are written once at intake; the orchestrator owns status
// mutation afterwards.
type Request struct {
	ID          string
	RequestType RequestType
	Status      RequestStatus
	Title       string
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Task represents one step of a request's production pipeline.
type Task struct {
	ID            string
	RequestID     string
	TaskKey       string
	TaskName      string
	AgentRole     AgentRole
	Status        TaskStatus
	Sequence      int
	DependsOn     []string
	InputData     map[string]any
	OutputData    map[string]any
	OutputURL     string
	ErrorMessage  string
	CorrelationID string
	RetryCount    int
	NextRetryAt   *time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Duration returns the observed execution time for a completed task.
func (t *Task) Duration() (time.Duration, bool) {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0, false
	}
	return t.CompletedAt.Sub(*t.StartedAt), true
}

// DependsOnAllCompleted reports whether every dependency id appears in the
// provided set of completed task ids.
func (t *Task) DependsOnAllCompleted(completed map[string]struct{}) bool {
	for _, dep := range t.DependsOn {
		if _, ok := completed[dep]; !ok {
			return false
		}
	}
	return true
}

// EstimatedDurationSeconds returns the explicit per-task weight override from
// input data, when present.
func (t *Task) EstimatedDurationSeconds() (float64, bool) {
	if t.InputData == nil {
		return 0, false
	}
	switch v := t.InputData["estimated_duration_seconds"].(type) {
	case float64:
		return v, v > 0
	case int:
		return float64(v), v > 0
	case int64:
		return float64(v), v > 0
	default:
		return 0, false
	}
}

// Event is an append-only timeline record for a request.
type Event struct {
	ID        int64
	RequestID string
	TaskID    string
	TaskName  string
	AgentRole AgentRole
	EventType string
	Message   string
	CreatedAt time.Time
}

// Timeline event types.
const (
	EventTaskStarted   = "task_started"
	EventTaskCompleted = "task_completed"
	EventTaskFailed    = "task_failed"
	EventTaskWaiting   = "task_waiting_callback"
	EventStatusChanged = "status_changed"
)

// Stats aggregates request counts per lifecycle status.
type Stats map[RequestStatus]int
