package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/scheduler/internal/agent"
	"github.com/nextlevelbuilder/scheduler/internal/executor"
	"github.com/nextlevelbuilder/scheduler/internal/storage"
	"github.com/nextlevelbuilder/scheduler/internal/task"
)

func newTestScheduler(t *testing.T, ad agent.Adapter) (*Scheduler, *storage.Store) {
	t.Helper()
	store, err := storage.New(storage.Config{DataDir: t.TempDir(), LockTimeout: time.Second, MaxHistory: 10})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	exec := executor.New(ad)
	sched := New(Config{Store: store, Executor: exec, PollInterval: 20 * time.Millisecond})
	return sched, store
}

func TestScheduler_DrainsQueueOnTick(t *testing.T) {
	ad := agent.NewMockAdapter(agent.Event{Kind: agent.EventComplete})
	sched, store := newTestScheduler(t, ad)

	tk := task.NewTask("hello", ".", 5000, true, nil)
	store.Queue.Add(tk)

	sched.tick(context.Background())

	if store.Queue.Count() != 0 {
		t.Fatalf("expected queue drained after tick, count=%d", store.Queue.Count())
	}
	page := store.History.GetCompleted(1, 10)
	if page.Total != 1 {
		t.Fatalf("expected one completed task recorded, got %d", page.Total)
	}
}

func TestScheduler_RunTaskNowReordersQueue(t *testing.T) {
	sched, store := newTestScheduler(t, agent.NewMockAdapter())
	a := task.NewTask("a", ".", 5000, true, nil)
	b := task.NewTask("b", ".", 5000, true, nil)
	store.Queue.Add(a)
	store.Queue.Add(b)

	if _, err := sched.RunTaskNow(b.ID); err != nil {
		t.Fatalf("run task now: %v", err)
	}
	popped, ok := store.Queue.Pop()
	if !ok || popped.ID != b.ID {
		t.Fatalf("expected b at head after RunTaskNow, got %+v", popped)
	}
}

func TestScheduler_StartStop(t *testing.T) {
	sched, _ := newTestScheduler(t, agent.NewMockAdapter())
	sched.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	if sched.GetStatusInfo().Status != StatusRunning {
		t.Fatalf("expected RUNNING after start")
	}
	sched.Stop()
	if sched.GetStatusInfo().Status != StatusStopped {
		t.Fatalf("expected STOPPED after stop")
	}
}
