package storage

import (
	"path/filepath"
	"time"

	"github.com/nextlevelbuilder/scheduler/internal/task"
)

type queueFile struct {
	Tasks []*task.Task `json:"tasks"`
}

// QueueStore is the FIFO of pending Tasks awaiting execution.
type QueueStore struct {
	path        string
	lockTimeout time.Duration
}

// NewQueueStore opens the queue collection rooted at dataDir.
func NewQueueStore(dataDir string, lockTimeout time.Duration) *QueueStore {
	return &QueueStore{path: filepath.Join(dataDir, "queue.json"), lockTimeout: lockTimeout}
}

func (s *QueueStore) load() *queueFile {
	var f queueFile
	readJSON(s.path, &f)
	backfillCreatedAt(f.Tasks)
	return &f
}

func (s *QueueStore) save(f *queueFile) error {
	return atomicWriteJSON(s.path, f)
}

// Add appends a Task to the tail of the queue.
func (s *QueueStore) Add(t *task.Task) error {
	return withLock(s.path, s.lockTimeout, func() error {
		f := s.load()
		f.Tasks = append(f.Tasks, t)
		return s.save(f)
	})
}

// Get returns a Task by id without removing it.
func (s *QueueStore) Get(id string) (*task.Task, bool) {
	f := s.load()
	for _, t := range f.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

// GetAll returns every queued Task in FIFO order.
func (s *QueueStore) GetAll() []*task.Task {
	return s.load().Tasks
}

// Remove deletes a Task by id. Returns false if not found.
func (s *QueueStore) Remove(id string) (bool, error) {
	var removed bool
	err := withLock(s.path, s.lockTimeout, func() error {
		f := s.load()
		out := f.Tasks[:0]
		for _, t := range f.Tasks {
			if t.ID == id {
				removed = true
				continue
			}
			out = append(out, t)
		}
		f.Tasks = out
		return s.save(f)
	})
	return removed, err
}

// Pop removes and returns the head of the queue (FIFO).
func (s *QueueStore) Pop() (*task.Task, bool) {
	var popped *task.Task
	err := withLock(s.path, s.lockTimeout, func() error {
		f := s.load()
		if len(f.Tasks) == 0 {
			return nil
		}
		popped = f.Tasks[0]
		f.Tasks = f.Tasks[1:]
		return s.save(f)
	})
	if err != nil || popped == nil {
		return nil, false
	}
	return popped, true
}

// MoveToHead relocates an existing queue entry to index 0, implementing the
// real head-of-queue reordering behind run_task_now (the behaviour the
// source this system is derived from only described, never implemented).
// run_scheduled_now uses AddToHead instead.
func (s *QueueStore) MoveToHead(id string) (*task.Task, bool, error) {
	var found *task.Task
	err := withLock(s.path, s.lockTimeout, func() error {
		f := s.load()
		idx := -1
		for i, t := range f.Tasks {
			if t.ID == id {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil
		}
		found = f.Tasks[idx]
		reordered := make([]*task.Task, 0, len(f.Tasks))
		reordered = append(reordered, found)
		reordered = append(reordered, f.Tasks[:idx]...)
		reordered = append(reordered, f.Tasks[idx+1:]...)
		f.Tasks = reordered
		return s.save(f)
	})
	if err != nil {
		return nil, false, err
	}
	return found, found != nil, nil
}

// AddToHead inserts a newly materialised Task at index 0.
func (s *QueueStore) AddToHead(t *task.Task) error {
	return withLock(s.path, s.lockTimeout, func() error {
		f := s.load()
		f.Tasks = append([]*task.Task{t}, f.Tasks...)
		return s.save(f)
	})
}

// Count returns the number of queued tasks.
func (s *QueueStore) Count() int { return len(s.load().Tasks) }

// Clear empties the queue.
func (s *QueueStore) Clear() error {
	return withLock(s.path, s.lockTimeout, func() error {
		return s.save(&queueFile{})
	})
}

func backfillCreatedAt(tasks []*task.Task) {
	for _, t := range tasks {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now().UTC()
		}
	}
}
