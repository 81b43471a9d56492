package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// ProcessAdapter drives the external coding-agent binary as a subprocess,
// communicating over newline-delimited JSON on stdout/stdin.
type ProcessAdapter struct {
	binary string

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	running bool
}

// NewProcessAdapter returns an Adapter that shells out to binary (e.g. the
// installed coding-agent CLI) for every Run.
func NewProcessAdapter(binary string) *ProcessAdapter {
	return &ProcessAdapter{binary: binary}
}

func (a *ProcessAdapter) Run(ctx context.Context, prompt string, opts RunOptions) (<-chan Event, error) {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil, fmt.Errorf("agent: adapter already running a task")
	}
	a.running = true
	a.mu.Unlock()

	args := buildArgs(prompt, opts)
	cmd := exec.CommandContext(ctx, a.binary, args...)
	cmd.Dir = opts.Workspace

	// The agent CLI behaves differently when it detects it is already
	// running inside itself; clear the marker for the duration of the
	// subprocess and restore it afterwards.
	const nestedMarker = "CLAUDECODE"
	prevVal, hadPrev := os.LookupEnv(nestedMarker)
	os.Unsetenv(nestedMarker)
	cmd.Env = os.Environ()
	restoreEnv := func() {
		if hadPrev {
			os.Setenv(nestedMarker, prevVal)
		}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		restoreEnv()
		a.setRunning(false)
		return nil, fmt.Errorf("agent: stdout pipe: %w", err)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		restoreEnv()
		a.setRunning(false)
		return nil, fmt.Errorf("agent: stdin pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		restoreEnv()
		a.setRunning(false)
		return nil, fmt.Errorf("agent: start: %w", err)
	}
	restoreEnv()

	a.mu.Lock()
	a.cmd = cmd
	a.stdin = stdin
	a.mu.Unlock()

	events := make(chan Event, 16)
	go a.pump(stdout, events)

	return events, nil
}

func (a *ProcessAdapter) pump(stdout io.Reader, events chan<- Event) {
	defer close(events)
	defer a.setRunning(false)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			slog.Warn("agent: malformed event line, skipping", "error", err)
			continue
		}
		events <- ev
		if ev.Kind == EventComplete || ev.Kind == EventError {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		events <- Event{Kind: EventError, Err: err.Error()}
	}
}

func (a *ProcessAdapter) InjectToolResult(ctx context.Context, toolUseID, result string) error {
	a.mu.Lock()
	stdin := a.stdin
	a.mu.Unlock()
	if stdin == nil {
		return fmt.Errorf("agent: no running process to inject into")
	}
	payload, err := json.Marshal(map[string]string{
		"type":        "tool_result",
		"tool_use_id": toolUseID,
		"content":     result,
	})
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	_, err = stdin.Write(payload)
	return err
}

func (a *ProcessAdapter) Cancel() error {
	a.mu.Lock()
	cmd := a.cmd
	a.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func (a *ProcessAdapter) setRunning(v bool) {
	a.mu.Lock()
	a.running = v
	a.mu.Unlock()
}

func buildArgs(prompt string, opts RunOptions) []string {
	args := []string{"--print", prompt, "--output-format", "stream-json"}
	if len(opts.AllowedTools) > 0 {
		args = append(args, "--allowed-tools")
		for _, tname := range opts.AllowedTools {
			args = append(args, tname)
		}
	}
	if opts.PermissionMode != "" {
		args = append(args, "--permission-mode", opts.PermissionMode)
	}
	if opts.ContinueConversation {
		args = append(args, "--continue")
	}
	if opts.ResumeSessionID != "" {
		args = append(args, "--resume", opts.ResumeSessionID)
	}
	if opts.ExtraArgs != "" {
		if extra, err := shellwords.Parse(opts.ExtraArgs); err == nil {
			args = append(args, extra...)
		} else {
			slog.Warn("agent: could not parse extra_args, ignoring", "extra_args", opts.ExtraArgs, "error", err)
		}
	}
	return args
}
