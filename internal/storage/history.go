package storage

import (
	"path/filepath"
	"time"

	"github.com/nextlevelbuilder/scheduler/internal/task"
)

// DefaultMaxHistory is the default cap applied independently to the
// completed and failed collections.
const DefaultMaxHistory = 1000

type historyFile struct {
	Tasks []*task.Task `json:"tasks"`
}

// HistoryStore manages the two bounded, newest-first historical
// collections. Unlike the source this is derived from, writes to both files
// are guarded by the same per-file locking every other collection uses.
// Reads take no lock, as in the other collections; the atomic rename on
// write means a reader sees either the old or the new file.
type HistoryStore struct {
	completedPath string
	failedPath    string
	lockTimeout   time.Duration
	maxHistory    int
}

func NewHistoryStore(dataDir string, lockTimeout time.Duration, maxHistory int) *HistoryStore {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &HistoryStore{
		completedPath: filepath.Join(dataDir, "completed.json"),
		failedPath:    filepath.Join(dataDir, "failed.json"),
		lockTimeout:   lockTimeout,
		maxHistory:    maxHistory,
	}
}

func (s *HistoryStore) load(path string) *historyFile {
	var f historyFile
	readJSON(path, &f)
	backfillCreatedAt(f.Tasks)
	return &f
}

func (s *HistoryStore) add(path string, t *task.Task) error {
	return withLock(path, s.lockTimeout, func() error {
		f := s.load(path)
		f.Tasks = append([]*task.Task{t}, f.Tasks...)
		if len(f.Tasks) > s.maxHistory {
			f.Tasks = f.Tasks[:s.maxHistory]
		}
		return atomicWriteJSON(path, f)
	})
}

// AddCompleted prepends t to the completed history, truncating at maxHistory.
func (s *HistoryStore) AddCompleted(t *task.Task) error { return s.add(s.completedPath, t) }

// AddFailed prepends t to the failed history, truncating at maxHistory.
func (s *HistoryStore) AddFailed(t *task.Task) error { return s.add(s.failedPath, t) }

func (s *HistoryStore) getPaginated(path string, page, limit int) task.PaginatedResponse {
	f := s.load(path)
	return task.Paginate(f.Tasks, page, limit)
}

// GetCompleted returns a page of the newest-first completed history.
func (s *HistoryStore) GetCompleted(page, limit int) task.PaginatedResponse {
	return s.getPaginated(s.completedPath, page, limit)
}

// GetFailed returns a page of the newest-first failed history.
func (s *HistoryStore) GetFailed(page, limit int) task.PaginatedResponse {
	return s.getPaginated(s.failedPath, page, limit)
}
