package storage

import (
	"path/filepath"
	"time"

	"github.com/nextlevelbuilder/scheduler/internal/task"
)

type scheduledFile struct {
	Tasks []*task.ScheduledTask `json:"tasks"`
}

// ScheduledStore holds the set of cron-driven ScheduledTask templates.
type ScheduledStore struct {
	path        string
	lockTimeout time.Duration
}

func NewScheduledStore(dataDir string, lockTimeout time.Duration) *ScheduledStore {
	return &ScheduledStore{path: filepath.Join(dataDir, "scheduled.json"), lockTimeout: lockTimeout}
}

func (s *ScheduledStore) load() *scheduledFile {
	var f scheduledFile
	readJSON(s.path, &f)
	for _, st := range f.Tasks {
		if st.CreatedAt.IsZero() {
			st.CreatedAt = time.Now().UTC()
		}
	}
	return &f
}

func (s *ScheduledStore) save(f *scheduledFile) error {
	return atomicWriteJSON(s.path, f)
}

// Save upserts by id: one call for a new id inserts, a repeat call for the
// same id replaces in place rather than appending a duplicate.
func (s *ScheduledStore) Save(st *task.ScheduledTask) error {
	return withLock(s.path, s.lockTimeout, func() error {
		f := s.load()
		for i, existing := range f.Tasks {
			if existing.ID == st.ID {
				f.Tasks[i] = st
				return s.save(f)
			}
		}
		f.Tasks = append(f.Tasks, st)
		return s.save(f)
	})
}

func (s *ScheduledStore) Get(id string) (*task.ScheduledTask, bool) {
	for _, st := range s.load().Tasks {
		if st.ID == id {
			return st, true
		}
	}
	return nil, false
}

func (s *ScheduledStore) GetAll() []*task.ScheduledTask { return s.load().Tasks }

func (s *ScheduledStore) GetEnabled() []*task.ScheduledTask {
	var out []*task.ScheduledTask
	for _, st := range s.load().Tasks {
		if st.Enabled {
			out = append(out, st)
		}
	}
	return out
}

func (s *ScheduledStore) Delete(id string) (bool, error) {
	var removed bool
	err := withLock(s.path, s.lockTimeout, func() error {
		f := s.load()
		out := f.Tasks[:0]
		for _, st := range f.Tasks {
			if st.ID == id {
				removed = true
				continue
			}
			out = append(out, st)
		}
		f.Tasks = out
		return s.save(f)
	})
	return removed, err
}

func (s *ScheduledStore) Count() int { return len(s.load().Tasks) }

func (s *ScheduledStore) EnabledCount() int { return len(s.GetEnabled()) }
