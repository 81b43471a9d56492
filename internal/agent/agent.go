// Package agent defines the adapter contract between this system and the
// external coding-agent process it drives, plus a process-backed and a
// mock implementation of that contract.
package agent

import "context"

// EventKind enumerates the streaming event alphabet an Adapter emits.
type EventKind string

const (
	EventText              EventKind = "TEXT"
	EventToolUse            EventKind = "TOOL_USE"
	EventToolResult         EventKind = "TOOL_RESULT"
	EventThinking           EventKind = "THINKING"
	EventError              EventKind = "ERROR"
	EventComplete           EventKind = "COMPLETE"
	EventAskUserQuestion    EventKind = "ASK_USER_QUESTION"
)

// Event is one item in the stream an Adapter's Run produces.
type Event struct {
	Kind EventKind `json:"kind"`

	Text string `json:"text,omitempty"`

	ToolName  string         `json:"tool_name,omitempty"`
	ToolInput map[string]any `json:"tool_input,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`

	Result any `json:"result,omitempty"`

	QuestionID string   `json:"question_id,omitempty"`
	Question   string   `json:"question,omitempty"`
	Options    []string `json:"options,omitempty"`

	FilesChanged []string `json:"files_changed,omitempty"`
	ToolsUsed    []string `json:"tools_used,omitempty"`
	CostUSD      *float64 `json:"cost_usd,omitempty"`

	Err string `json:"error,omitempty"`
}

// RunOptions configures a single Adapter.Run invocation.
type RunOptions struct {
	Workspace            string
	AllowedTools         []string
	PermissionMode       string // e.g. "default", "acceptEdits", "bypassPermissions"
	ContinueConversation bool
	ResumeSessionID      string

	// ExtraArgs is an optional raw command-line fragment (e.g. additional
	// flags a Task wants forwarded to the agent binary) shell-split by the
	// ProcessAdapter before being appended to argv.
	ExtraArgs string
}

// Adapter is the contract every agent backend (mock or process-backed)
// implements. Run streams Events on the returned channel until it closes;
// the channel is closed exactly once, when the stream ends. That is normally
// right after a COMPLETE or ERROR event, but a stream that simply runs out
// of events is closed without either.
type Adapter interface {
	Run(ctx context.Context, prompt string, opts RunOptions) (<-chan Event, error)

	// InjectToolResult resumes a paused run after a question has been
	// answered, feeding the answer back in as a tool_result content block.
	InjectToolResult(ctx context.Context, toolUseID, result string) error

	// Cancel terminates the in-flight run, if any.
	Cancel() error
}
