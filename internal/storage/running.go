package storage

import (
	"path/filepath"
	"time"

	"github.com/nextlevelbuilder/scheduler/internal/task"
)

type runningFile struct {
	Tasks []*task.Task `json:"tasks"`
}

// RunningStore holds Tasks currently in the RUNNING state. Expected
// cardinality is small (at most the executor concurrency).
type RunningStore struct {
	path        string
	lockTimeout time.Duration
}

func NewRunningStore(dataDir string, lockTimeout time.Duration) *RunningStore {
	return &RunningStore{path: filepath.Join(dataDir, "running.json"), lockTimeout: lockTimeout}
}

func (s *RunningStore) load() *runningFile {
	var f runningFile
	readJSON(s.path, &f)
	backfillCreatedAt(f.Tasks)
	return &f
}

func (s *RunningStore) save(f *runningFile) error {
	return atomicWriteJSON(s.path, f)
}

func (s *RunningStore) Add(t *task.Task) error {
	return withLock(s.path, s.lockTimeout, func() error {
		f := s.load()
		f.Tasks = append(f.Tasks, t)
		return s.save(f)
	})
}

func (s *RunningStore) Get(id string) (*task.Task, bool) {
	for _, t := range s.load().Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return nil, false
}

func (s *RunningStore) GetAll() []*task.Task { return s.load().Tasks }

// Remove deletes and returns the removed Task, if present.
func (s *RunningStore) Remove(id string) (*task.Task, bool, error) {
	var found *task.Task
	err := withLock(s.path, s.lockTimeout, func() error {
		f := s.load()
		out := f.Tasks[:0]
		for _, t := range f.Tasks {
			if t.ID == id {
				found = t
				continue
			}
			out = append(out, t)
		}
		f.Tasks = out
		return s.save(f)
	})
	return found, found != nil, err
}

// Update replaces an existing running Task record in place by id.
func (s *RunningStore) Update(t *task.Task) error {
	return withLock(s.path, s.lockTimeout, func() error {
		f := s.load()
		for i, existing := range f.Tasks {
			if existing.ID == t.ID {
				f.Tasks[i] = t
				return s.save(f)
			}
		}
		f.Tasks = append(f.Tasks, t)
		return s.save(f)
	})
}

func (s *RunningStore) Clear() error {
	return withLock(s.path, s.lockTimeout, func() error {
		return s.save(&runningFile{})
	})
}

func (s *RunningStore) Count() int { return len(s.load().Tasks) }
