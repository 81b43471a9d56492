package storage

import (
	"os"
	"time"
)

// Store aggregates the five collections behind a single handle, following
// the explicit-handle wiring pattern used throughout this codebase in place
// of module-level singletons: one Store is constructed at startup and
// threaded into the scheduler and HTTP layer (the CLI opens its own).
type Store struct {
	Queue     *QueueStore
	Scheduled *ScheduledStore
	Running   *RunningStore
	History   *HistoryStore
}

// Config controls where and how the Store persists its collections.
type Config struct {
	DataDir     string
	LockTimeout time.Duration
	MaxHistory  int
}

// New creates the data directory if needed and wires up all five collections.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}
	return &Store{
		Queue:     NewQueueStore(cfg.DataDir, cfg.LockTimeout),
		Scheduled: NewScheduledStore(cfg.DataDir, cfg.LockTimeout),
		Running:   NewRunningStore(cfg.DataDir, cfg.LockTimeout),
		History:   NewHistoryStore(cfg.DataDir, cfg.LockTimeout, cfg.MaxHistory),
	}, nil
}
