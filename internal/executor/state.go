package executor

import (
	"fmt"

	"github.com/nextlevelbuilder/scheduler/internal/task"
)

// transitions enumerates every legal Task.Status edge. Terminal states
// (COMPLETED, CANCELLED) have no outgoing edges.
var transitions = map[task.Status]map[task.Status]bool{
	task.StatusPending: {
		task.StatusRunning:   true,
		task.StatusCancelled: true,
	},
	task.StatusRunning: {
		task.StatusCompleted: true,
		task.StatusFailed:    true,
		task.StatusPending:   true, // automatic retry
		task.StatusCancelled: true,
	},
	task.StatusFailed: {
		task.StatusPending:   true, // manual retry
		task.StatusCancelled: true,
	},
}

// ValidateTransition returns an error if moving a task from `from` to `to`
// is not a legal state-machine edge.
func ValidateTransition(from, to task.Status) error {
	if from == to {
		return fmt.Errorf("executor: no-op transition %s -> %s", from, to)
	}
	edges, ok := transitions[from]
	if !ok || !edges[to] {
		return fmt.Errorf("executor: illegal transition %s -> %s", from, to)
	}
	return nil
}
