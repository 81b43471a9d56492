// Package task defines the data model shared by storage, the executor, the
// scheduler and the HTTP surface: Task, ScheduledTask and their bookkeeping.
package task

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// MaxRetries bounds the number of automatic retries a Task may accumulate.
const MaxRetries = 2

// DefaultTimeoutMS is applied when a Task is created without an explicit timeout.
const DefaultTimeoutMS = 600_000

// MinTimeoutMS and MaxTimeoutMS bound the accepted timeout_ms range.
const (
	MinTimeoutMS = 1_000
	MaxTimeoutMS = 3_600_000
)

// AllowedTools is the fixed registry of tool names an Agent Adapter may be
// scoped to. Any name outside this set is a validation error.
var AllowedTools = map[string]bool{
	"Read": true, "Write": true, "Edit": true, "Glob": true, "Grep": true,
	"Bash": true, "Task": true, "TodoWrite": true, "WebFetch": true,
	"WebSearch": true, "NotebookEdit": true,
}

// ErrorRecord is a single diagnostic entry attached to a failed Task's Result.
type ErrorRecord struct {
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Severity  string         `json:"severity"`
	Retryable bool           `json:"retryable"`
	Timestamp time.Time      `json:"timestamp"`
	Stack     string         `json:"stack,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// Task is a one-shot unit of work targeted at the agent.
type Task struct {
	ID           string   `json:"id"`
	Prompt       string   `json:"prompt"`
	Workspace    string   `json:"workspace"`
	TimeoutMS    int64    `json:"timeout_ms"`
	AutoApprove  bool     `json:"auto_approve"`
	AllowedTools []string `json:"allowed_tools,omitempty"`

	// ExtraArgs is an optional raw fragment of additional CLI flags forwarded
	// to the agent binary, shell-split by the process adapter before exec.
	ExtraArgs string `json:"extra_args,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Retries    int        `json:"retries"`
	Status     Status     `json:"status"`

	Scheduled   bool   `json:"scheduled"`
	ScheduledID string `json:"scheduled_id,omitempty"`

	Result       map[string]any `json:"result,omitempty"`
	Error        string         `json:"error,omitempty"`
	FilesChanged []string       `json:"files_changed,omitempty"`
	ToolsUsed    []string       `json:"tools_used,omitempty"`
	CostUSD      *float64       `json:"cost_usd,omitempty"`
	DurationMS   *int64         `json:"duration_ms,omitempty"`

	// EarliestRunAt is an optional hint set by the executor on retry; the
	// scheduler honours it by skipping the task until the time has passed.
	EarliestRunAt *time.Time `json:"earliest_run_at,omitempty"`
}

// NewTask builds a Task with defaults applied and a fresh ID.
func NewTask(prompt, workspace string, timeoutMS int64, autoApprove bool, allowedTools []string) *Task {
	if workspace == "" {
		workspace = "."
	}
	if timeoutMS == 0 {
		timeoutMS = DefaultTimeoutMS
	}
	return &Task{
		ID:           uuid.NewString(),
		Prompt:       prompt,
		Workspace:    workspace,
		TimeoutMS:    timeoutMS,
		AutoApprove:  autoApprove,
		AllowedTools: allowedTools,
		CreatedAt:    time.Now().UTC(),
		Status:       StatusPending,
	}
}

// FromScheduled materialises a new Task from a ScheduledTask template.
func FromScheduled(s *ScheduledTask) *Task {
	t := NewTask(s.Prompt, s.Workspace, s.TimeoutMS, s.AutoApprove, s.AllowedTools)
	t.Scheduled = true
	t.ScheduledID = s.ID
	return t
}

// ScheduledTask is a cron-driven template that emits Tasks.
type ScheduledTask struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Prompt       string   `json:"prompt"`
	Cron         string   `json:"cron"`
	Workspace    string   `json:"workspace"`
	TimeoutMS    int64    `json:"timeout_ms"`
	AutoApprove  bool     `json:"auto_approve"`
	AllowedTools []string `json:"allowed_tools,omitempty"`
	Enabled      bool     `json:"enabled"`

	LastRun  *time.Time `json:"last_run,omitempty"`
	NextRun  *time.Time `json:"next_run,omitempty"`
	RunCount int        `json:"run_count"`

	// Condition is an optional CEL predicate over {weekday, hour} evaluated
	// alongside is_due as an additive guard; empty means always-materialize.
	Condition string `json:"condition,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewScheduledTask builds a ScheduledTask with defaults applied.
func NewScheduledTask(name, prompt, cron, workspace string, timeoutMS int64, autoApprove bool, allowedTools []string) *ScheduledTask {
	if workspace == "" {
		workspace = "."
	}
	if timeoutMS == 0 {
		timeoutMS = DefaultTimeoutMS
	}
	return &ScheduledTask{
		ID:           uuid.NewString(),
		Name:         name,
		Prompt:       prompt,
		Cron:         cron,
		Workspace:    workspace,
		TimeoutMS:    timeoutMS,
		AutoApprove:  autoApprove,
		AllowedTools: allowedTools,
		Enabled:      true,
		CreatedAt:    time.Now().UTC(),
	}
}

// PaginatedResponse is the wire shape for the two bounded history collections.
type PaginatedResponse struct {
	Items []*Task `json:"items"`
	Total int     `json:"total"`
	Page  int     `json:"page"`
	Limit int     `json:"limit"`
	Pages int     `json:"pages"`
}

// Paginate slices items into a PaginatedResponse using ceil-division page count.
func Paginate(items []*Task, page, limit int) PaginatedResponse {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	total := len(items)
	pages := (total + limit - 1) / limit
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return PaginatedResponse{
		Items: items[start:end],
		Total: total,
		Page:  page,
		Limit: limit,
		Pages: pages,
	}
}
