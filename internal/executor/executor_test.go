package executor

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/scheduler/internal/agent"
	"github.com/nextlevelbuilder/scheduler/internal/task"
)

func TestExecute_Success(t *testing.T) {
	ad := agent.NewMockAdapter(
		agent.Event{Kind: agent.EventText, Text: "working"},
		agent.Event{Kind: agent.EventToolUse, ToolName: "Read"},
		agent.Event{Kind: agent.EventComplete, FilesChanged: []string{"a.go"}},
	)
	exec := New(ad)
	tk := task.NewTask("do something", ".", 5000, true, nil)

	if err := exec.Execute(context.Background(), tk); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if tk.Status != task.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", tk.Status)
	}
	if len(tk.ToolsUsed) != 1 || tk.ToolsUsed[0] != "Read" {
		t.Fatalf("expected tools_used=[Read], got %v", tk.ToolsUsed)
	}
	if len(tk.FilesChanged) != 1 {
		t.Fatalf("expected files_changed recorded")
	}
}

func TestExecute_ValidationFailureNeverRetries(t *testing.T) {
	ad := agent.NewMockAdapter()
	exec := New(ad)
	tk := task.NewTask("   ", ".", 5000, true, nil) // blank prompt

	if err := exec.Execute(context.Background(), tk); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if tk.Status != task.StatusFailed {
		t.Fatalf("expected FAILED for validation error, got %s", tk.Status)
	}
	if tk.Retries != 0 {
		t.Fatalf("expected no retry for a validation error, got retries=%d", tk.Retries)
	}
}

func TestExecute_RetriesTransientUpToMax(t *testing.T) {
	ad := agent.NewMockAdapter(agent.Event{Kind: agent.EventError, Err: "transient hiccup"})
	exec := New(ad)
	tk := task.NewTask("do something", ".", 5000, true, nil)

	if err := exec.Execute(context.Background(), tk); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if tk.Status != task.StatusPending {
		t.Fatalf("expected PENDING after first retryable failure, got %s", tk.Status)
	}
	if tk.Retries != 1 {
		t.Fatalf("expected retries=1, got %d", tk.Retries)
	}
	if tk.EarliestRunAt == nil || !tk.EarliestRunAt.After(time.Now().UTC()) {
		t.Fatalf("expected earliest_run_at set in the future")
	}
}

func TestExecute_ExhaustsRetriesThenFails(t *testing.T) {
	tk := task.NewTask("do something", ".", 5000, true, nil)
	exec := New(agent.NewMockAdapter(agent.Event{Kind: agent.EventError, Err: "transient hiccup"}))

	for i := 0; i <= task.MaxRetries; i++ {
		tk.Status = task.StatusPending
		if err := exec.Execute(context.Background(), tk); err != nil {
			t.Fatalf("execute iteration %d: %v", i, err)
		}
	}
	if tk.Status != task.StatusFailed {
		t.Fatalf("expected FAILED after exhausting retries, got %s", tk.Status)
	}
	if tk.Retries != task.MaxRetries {
		t.Fatalf("expected retries capped at %d, got %d", task.MaxRetries, tk.Retries)
	}
	errs, _ := tk.Result["errors"].([]task.ErrorRecord)
	if len(errs) != task.MaxRetries+1 {
		t.Fatalf("expected one accumulated error record per attempt (%d), got %d", task.MaxRetries+1, len(errs))
	}
}

func TestClassify_DeadlineExceededIsTimeout(t *testing.T) {
	if got := Classify(context.DeadlineExceeded); got != ErrorTimeout {
		t.Fatalf("expected TIMEOUT for deadline exceeded, got %s", got)
	}
}

func TestValidateTransition(t *testing.T) {
	if err := ValidateTransition(task.StatusPending, task.StatusRunning); err != nil {
		t.Fatalf("expected PENDING->RUNNING to be legal: %v", err)
	}
	if err := ValidateTransition(task.StatusCompleted, task.StatusRunning); err == nil {
		t.Fatalf("expected COMPLETED->RUNNING to be illegal")
	}
}
