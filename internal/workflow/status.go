package workflow

import (
	"fmt"
	"strings"
)

// Status represents the lifecycle state of a task or subtask.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusReview     Status = "review"
	StatusDone       Status = "done"
	StatusDeferred   Status = "deferred"
	StatusCancelled  Status = "cancelled"
)

// CycleOrder returns the statuses in cycle order. "Advance to next status"
// requests walk this sequence with wrap-around.
func CycleOrder() []Status {
	return []Status{
		StatusPending,
		StatusInProgress,
		StatusReview,
		StatusDone,
		StatusDeferred,
		StatusCancelled,
	}
}

// CycleNext returns the status following current in cycle order, wrapping
// from cancelled back to pending. An unknown status starts the cycle over.
func CycleNext(current Status) Status {
	order := CycleOrder()
	for i, s := range order {
		if s == current {
			return order[(i+1)%len(order)]
		}
	}
	return StatusPending
}

// Valid reports whether s is a member of the closed status set.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusReview, StatusDone, StatusDeferred, StatusCancelled:
		return true
	default:
		return false
	}
}

// ParseStatus converts an external string into a Status, rejecting values
// outside the closed set.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.TrimSpace(raw))
	if !s.Valid() {
		return "", fmt.Errorf("invalid status %q (valid: %v)", raw, CycleOrder())
	}
	return s, nil
}

// Task is the view of a task this package needs. Full task content is owned
// by the store.
type Task struct {
	ID           string
	Status       Status
	Dependencies []string
	Subtasks     []Subtask
}

// Subtask is one unit of work under a parent task, addressed externally as
// "{parentID}.{id}".
type Subtask struct {
	ID       string
	ParentID string
	Status   Status
}

// Key returns the external identifier of the subtask.
func (s Subtask) Key() string {
	return s.ParentID + "." + s.ID
}

// SplitEntityID splits an external entity ID into parent and subtask parts.
// A plain task ID returns an empty subtask part.
func SplitEntityID(entityID string) (taskID, subtaskID string) {
	if i := strings.Index(entityID, "."); i >= 0 {
		return entityID[:i], entityID[i+1:]
	}
	return entityID, ""
}

// Blocked reports whether a task is blocked on unfinished dependencies.
// Blockage is derived data, not a status value.
func Blocked(task Task, lookup func(id string) (Task, bool)) bool {
	for _, dep := range task.Dependencies {
		other, ok := lookup(dep)
		if !ok {
			continue
		}
		if other.Status != StatusDone && other.Status != StatusCancelled {
			return true
		}
	}
	return false
}
