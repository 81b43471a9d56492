// Package scheduler drives the poll loop: materializing due cron jobs into
// the queue and draining the queue into the executor, one task per tick.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/scheduler/internal/cron"
	"github.com/nextlevelbuilder/scheduler/internal/executor"
	"github.com/nextlevelbuilder/scheduler/internal/metrics"
	"github.com/nextlevelbuilder/scheduler/internal/observability"
	"github.com/nextlevelbuilder/scheduler/internal/storage"
	"github.com/nextlevelbuilder/scheduler/internal/task"
)

// Status is the scheduler's own run state, independent of any single task's.
type Status string

const (
	StatusStopped  Status = "STOPPED"
	StatusStarting Status = "STARTING"
	StatusRunning  Status = "RUNNING"
	StatusStopping Status = "STOPPING"
)

// DefaultPollInterval is used when Config.PollInterval is zero.
const DefaultPollInterval = 10 * time.Second

// gracefulShutdown bounds how long Stop waits for an in-flight task before
// cancelling its context.
const gracefulShutdown = 5 * time.Second

var ErrNotRunning = errors.New("scheduler: not running")

// Config wires a Scheduler's dependencies.
type Config struct {
	Store        *storage.Store
	Executor     *executor.Executor
	PollInterval time.Duration
}

// Scheduler owns the poll loop goroutine.
type Scheduler struct {
	store        *storage.Store
	exec         *executor.Executor
	pollInterval time.Duration

	mu       sync.Mutex
	status   Status
	stopCh   chan struct{}
	doneCh   chan struct{}
	cancelFn context.CancelFunc
	runLog   map[string][]RunLogEntry
}

func New(cfg Config) *Scheduler {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Scheduler{
		store:        cfg.Store,
		exec:         cfg.Executor,
		pollInterval: interval,
		status:       StatusStopped,
	}
}

// Start launches the poll loop in a background goroutine. It is a no-op if
// already running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.status == StatusRunning || s.status == StatusStarting {
		s.mu.Unlock()
		return
	}
	s.status = StatusStarting
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelFn = cancel
	s.mu.Unlock()

	go s.loop(runCtx)
}

// Stop signals the poll loop to exit, waiting up to gracefulShutdown before
// force-cancelling any in-flight execution.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.status == StatusStopped || s.status == StatusStopping {
		s.mu.Unlock()
		return
	}
	s.status = StatusStopping
	close(s.stopCh)
	done := s.doneCh
	cancel := s.cancelFn
	s.mu.Unlock()

	select {
	case <-done:
	case <-time.After(gracefulShutdown):
		slog.Warn("scheduler: graceful shutdown window exceeded, force-cancelling")
		cancel()
		<-done
	}

	s.mu.Lock()
	s.status = StatusStopped
	s.mu.Unlock()
}

// StatusInfo is a point-in-time snapshot of scheduler state.
type StatusInfo struct {
	Status                Status    `json:"status"`
	PollInterval          float64   `json:"poll_interval"`
	QueueDepth            int       `json:"queue_count"`
	ScheduledCount        int       `json:"scheduled_count"`
	EnabledScheduledCount int       `json:"enabled_scheduled_count"`
	RunningCount          int       `json:"running_count"`
	IsExecuting           bool      `json:"is_executing"`
	CurrentTaskID         string    `json:"current_task_id,omitempty"`
	UpdatedAt             time.Time `json:"updated_at"`
}

func (s *Scheduler) GetStatusInfo() StatusInfo {
	s.mu.Lock()
	status := s.status
	s.mu.Unlock()
	var currentTaskID string
	if cur := s.exec.CurrentTask(); cur != nil {
		currentTaskID = cur.ID
	}
	return StatusInfo{
		Status:                status,
		PollInterval:          s.pollInterval.Seconds(),
		QueueDepth:            s.store.Queue.Count(),
		ScheduledCount:        s.store.Scheduled.Count(),
		EnabledScheduledCount: s.store.Scheduled.EnabledCount(),
		RunningCount:          s.store.Running.Count(),
		IsExecuting:           s.exec.IsExecuting(),
		CurrentTaskID:         currentTaskID,
		UpdatedAt:             time.Now().UTC(),
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	s.mu.Lock()
	s.status = StatusRunning
	doneCh := s.doneCh
	stopCh := s.stopCh
	s.mu.Unlock()
	defer close(doneCh)

	timer := time.NewTimer(0) // tick immediately on start
	defer timer.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
			s.tick(ctx)
			timer.Reset(s.pollInterval)
		}
	}
}

// tick materializes any due cron jobs into the queue, then drains at most
// one task from the queue into the executor.
func (s *Scheduler) tick(ctx context.Context) {
	ctx, span := observability.StartTick(ctx)
	defer span.End()

	s.materializeDue(ctx)
	s.drainOne(ctx)
}

func (s *Scheduler) materializeDue(ctx context.Context) {
	now := time.Now().UTC()
	for _, st := range s.store.Scheduled.GetEnabled() {
		if !cron.IsDue(st.NextRun, now) {
			continue
		}
		if ok, err := cron.EvaluateCondition(st.Condition, now); err != nil {
			slog.Error("scheduler: scheduled task condition failed to evaluate, skipping this tick", "scheduled_id", st.ID, "error", err)
			continue
		} else if !ok {
			continue
		}
		t := task.FromScheduled(st)
		if err := s.store.Queue.Add(t); err != nil {
			slog.Error("scheduler: failed to enqueue materialized task", "scheduled_id", st.ID, "error", err)
			s.recordRunLog(st.ID, RunLogEntry{Timestamp: now, TaskID: t.ID, Status: "ENQUEUE_FAILED", Error: err.Error()})
			continue
		}
		s.recordRunLog(st.ID, RunLogEntry{Timestamp: now, TaskID: t.ID, Status: "MATERIALIZED"})

		st.LastRun = &now
		st.RunCount++
		if expr, err := cron.Parse(st.Cron); err == nil {
			if next, ok := expr.NextFire(now); ok {
				st.NextRun = &next
			}
		} else {
			slog.Error("scheduler: scheduled task has an unparseable cron expression", "scheduled_id", st.ID, "cron", st.Cron, "error", err)
		}
		if err := s.store.Scheduled.Save(st); err != nil {
			slog.Error("scheduler: failed to persist scheduled task after materialization", "scheduled_id", st.ID, "error", err)
		}
	}
}

func (s *Scheduler) drainOne(ctx context.Context) {
	if s.exec.IsExecuting() {
		return
	}
	t, ok := s.store.Queue.Pop()
	if !ok {
		return
	}
	if t.EarliestRunAt != nil && t.EarliestRunAt.After(time.Now().UTC()) {
		// Not yet eligible for retry; put it back at the tail.
		s.store.Queue.Add(t)
		return
	}
	s.runTask(ctx, t)
}

func (s *Scheduler) runTask(ctx context.Context, t *task.Task) {
	if err := s.store.Running.Add(t); err != nil {
		slog.Error("scheduler: failed to record running task", "task_id", t.ID, "error", err)
	}

	if err := s.exec.Execute(ctx, t); err != nil {
		slog.Error("scheduler: executor returned an unexpected error", "task_id", t.ID, "error", err)
	}

	s.store.Running.Remove(t.ID)
	metrics.QueueDepth.Set(float64(s.store.Queue.Count()))

	switch t.Status {
	case task.StatusCompleted:
		if err := s.store.History.AddCompleted(t); err != nil {
			slog.Error("scheduler: failed to record completed task", "task_id", t.ID, "error", err)
		}
		metrics.TasksTotal.WithLabelValues(string(task.StatusCompleted)).Inc()
		if t.DurationMS != nil {
			metrics.TaskDurationSeconds.Observe(float64(*t.DurationMS) / 1000)
		}
	case task.StatusFailed:
		if err := s.store.History.AddFailed(t); err != nil {
			slog.Error("scheduler: failed to record failed task", "task_id", t.ID, "error", err)
		}
		metrics.TasksTotal.WithLabelValues(string(task.StatusFailed)).Inc()
	case task.StatusPending:
		// Automatic retry: goes back on the queue for a later tick.
		if err := s.store.Queue.Add(t); err != nil {
			slog.Error("scheduler: failed to re-enqueue task for retry", "task_id", t.ID, "error", err)
		}
	}
}

// RunTaskNow moves an already-queued task to the head of the queue so it
// runs on the next tick ahead of everything else — the real head-of-queue
// reordering the source this is derived from only described but never
// implemented.
func (s *Scheduler) RunTaskNow(id string) (*task.Task, error) {
	t, ok, err := s.store.Queue.MoveToHead(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNotFound(id)
	}
	return t, nil
}

// RunScheduledNow materializes a scheduled task immediately and places it at
// the head of the queue, ahead of any other pending work, without touching
// the source ScheduledTask's last_run/next_run/run_count bookkeeping — that
// bookkeeping reflects the cron schedule, not manual triggers.
func (s *Scheduler) RunScheduledNow(id string) (*task.Task, error) {
	st, ok := s.store.Scheduled.Get(id)
	if !ok {
		return nil, errNotFound(id)
	}
	t := task.FromScheduled(st)
	if err := s.store.Queue.AddToHead(t); err != nil {
		return nil, err
	}
	return t, nil
}

func errNotFound(id string) error {
	return errors.New("scheduler: no such task or scheduled task: " + id)
}
