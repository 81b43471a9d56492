package scheduler

import "time"

// maxRunLogEntries caps the in-memory run log kept per scheduled task,
// mirroring the teacher's cron.Service run log cap.
const maxRunLogEntries = 200

// RunLogEntry is a single materialization (or failed-enqueue) record for a
// scheduled task, kept for operator debugging. Task completion is not
// recorded here. It does not persist across
// restarts.
type RunLogEntry struct {
	Timestamp time.Time `json:"ts"`
	TaskID    string    `json:"task_id"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
}

func (s *Scheduler) recordRunLog(scheduledID string, entry RunLogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runLog == nil {
		s.runLog = make(map[string][]RunLogEntry)
	}
	log := append(s.runLog[scheduledID], entry)
	if len(log) > maxRunLogEntries {
		log = log[len(log)-maxRunLogEntries:]
	}
	s.runLog[scheduledID] = log
}

// RunLog returns the run log for a scheduled task id, newest last. ok is
// false only if the scheduled task itself doesn't exist.
func (s *Scheduler) RunLog(scheduledID string) ([]RunLogEntry, bool) {
	if _, exists := s.store.Scheduled.Get(scheduledID); !exists {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RunLogEntry(nil), s.runLog[scheduledID]...), true
}
