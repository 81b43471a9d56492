// Package executor runs a single Task against an agent.Adapter: validating
// it, enforcing its timeout, classifying any failure and recording the
// resulting state-machine transition.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/scheduler/internal/agent"
	"github.com/nextlevelbuilder/scheduler/internal/observability"
	"github.com/nextlevelbuilder/scheduler/internal/task"
)

// Executor runs at most one Task at a time.
type Executor struct {
	adapter agent.Adapter

	mu      sync.Mutex
	current *task.Task
}

func New(adapter agent.Adapter) *Executor {
	return &Executor{adapter: adapter}
}

// IsExecuting reports whether a task is currently in flight.
func (e *Executor) IsExecuting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil
}

// CurrentTask returns the task currently in flight, if any.
func (e *Executor) CurrentTask() *task.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Execute validates t, transitions it PENDING -> RUNNING, runs it to
// completion against the adapter within its timeout, and transitions it to
// its terminal (or retry) state. It mutates t in place and returns an error
// only when t's current status cannot move to RUNNING; a malformed task is
// recorded on t as a VALIDATION failure and nil is returned, since that is
// normal executor output.
func (e *Executor) Execute(ctx context.Context, t *task.Task) error {
	ctx, span := observability.StartExecute(ctx, t.ID)
	defer span.End()

	if err := task.ValidateTask(t); err != nil {
		e.fail(t, err, ErrorValidation)
		return nil
	}

	if err := ValidateTransition(t.Status, task.StatusRunning); err != nil {
		return err
	}

	e.mu.Lock()
	e.current = t
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.current = nil
		e.mu.Unlock()
	}()

	now := time.Now().UTC()
	t.Status = task.StatusRunning
	t.StartedAt = &now

	timeout := time.Duration(t.TimeoutMS) * time.Millisecond
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	runCtx, agentSpan := observability.StartAgentRun(runCtx, t.ID, "")
	defer agentSpan.End()

	events, err := e.adapter.Run(runCtx, t.Prompt, agent.RunOptions{
		Workspace:      t.Workspace,
		AllowedTools:   t.AllowedTools,
		PermissionMode: permissionMode(t.AutoApprove),
		ExtraArgs:      t.ExtraArgs,
	})
	if err != nil {
		e.fail(t, err, Classify(err))
		return nil
	}

	if err := e.drain(runCtx, t, events); err != nil {
		e.fail(t, err, Classify(err))
		return nil
	}

	finished := time.Now().UTC()
	t.FinishedAt = &finished
	if t.StartedAt != nil {
		d := finished.Sub(*t.StartedAt).Milliseconds()
		t.DurationMS = &d
	}
	if t.Status == task.StatusRunning {
		t.Status = task.StatusCompleted
	}
	return nil
}

func (e *Executor) drain(ctx context.Context, t *task.Task, events <-chan agent.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Kind {
			case agent.EventToolUse:
				t.ToolsUsed = appendUnique(t.ToolsUsed, ev.ToolName)
			case agent.EventAskUserQuestion:
				return fmt.Errorf("validation: agent asked an interactive question during unattended execution")
			case agent.EventError:
				return fmt.Errorf("%s", ev.Err)
			case agent.EventComplete:
				if ev.CostUSD != nil {
					t.CostUSD = ev.CostUSD
				}
				if len(ev.FilesChanged) > 0 {
					t.FilesChanged = ev.FilesChanged
				}
				return nil
			}
		}
	}
}

// fail records a failed execution, transitioning t to either PENDING (if the
// error is retryable and retries remain) or FAILED.
func (e *Executor) fail(t *task.Task, err error, errType ErrorType) {
	rec := task.ErrorRecord{
		Type:      string(errType),
		Message:   err.Error(),
		Severity:  severityFor(errType),
		Retryable: Retryable(errType),
		Timestamp: time.Now().UTC(),
	}
	t.Error = rec.Message
	appendErrorRecord(t, rec)

	if Retryable(errType) && t.Retries < task.MaxRetries {
		t.Retries++
		delay := BackoffDelay(t.Retries - 1)
		earliest := time.Now().UTC().Add(delay)
		t.EarliestRunAt = &earliest
		t.StartedAt = nil
		t.FinishedAt = nil
		t.Status = task.StatusPending
		slog.Info("executor: retrying task", "task_id", t.ID, "attempt", t.Retries, "delay", delay, "error_type", errType)
		return
	}

	finished := time.Now().UTC()
	t.FinishedAt = &finished
	t.Status = task.StatusFailed
	slog.Warn("executor: task failed", "task_id", t.ID, "error_type", errType, "error", err)
}

// appendErrorRecord accumulates rec onto t.Result["errors"] so diagnostics
// survive across retries — E2E scenarios rely on the array's length
// reflecting every failed attempt, not just the most recent one.
func appendErrorRecord(t *task.Task, rec task.ErrorRecord) {
	if t.Result == nil {
		t.Result = make(map[string]any)
	}
	existing, _ := t.Result["errors"].([]task.ErrorRecord)
	t.Result["errors"] = append(existing, rec)
}

func severityFor(t ErrorType) string {
	if t == ErrorValidation {
		return "ERROR"
	}
	return "WARNING"
}

func permissionMode(autoApprove bool) string {
	if autoApprove {
		return "bypassPermissions"
	}
	return "default"
}

func appendUnique(list []string, v string) []string {
	if v == "" {
		return list
	}
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
