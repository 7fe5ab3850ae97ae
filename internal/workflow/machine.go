package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Store is the persistence collaborator. Implementations own the task file
// format; this package only decides transitions and composes notes.
type Store interface {
	// GetTask returns a task by ID.
	GetTask(ctx context.Context, id string) (Task, error)

	// SetTaskStatus persists a status for a task or a "parent.sub" key.
	SetTaskStatus(ctx context.Context, id string, status Status) error

	// UpdateTask appends a note to a task.
	UpdateTask(ctx context.Context, id string, note string) error

	// UpdateSubtask appends a note to a subtask addressed as "parent.sub".
	UpdateSubtask(ctx context.Context, id string, note string) error

	// ReloadTasks re-reads the backing file, discarding cached state.
	ReloadTasks(ctx context.Context) error
}

// StepContext carries the structured fields a step may record in its note.
// Only the fields a given step consumes are read; the rest are ignored.
type StepContext struct {
	Branch        string
	Worktree      string
	CommitMessage string
	CommitHash    string
	MergeCommit   string
	PRURL         string
	Phase         string
	Summary       string
	Findings      []string
	Decisions     []string
	NextSteps     []string
}

// Result reports what ApplyWorkflowStep did.
type Result struct {
	EntityID   string
	Step       Step
	FromStatus Status
	ToStatus   Status
	Changed    bool
	Note       string
}

// StateMachine applies workflow steps against a Store.
type StateMachine struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewStateMachine creates a StateMachine backed by the given store.
func NewStateMachine(store Store, logger *zap.Logger) *StateMachine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateMachine{store: store, logger: logger, now: time.Now}
}

// ApplyWorkflowStep validates and applies a named workflow step to the task
// or subtask identified by entityID ("id" or "parent.sub"). An unrecognized
// step or a transition the table rejects performs no mutation.
func (m *StateMachine) ApplyWorkflowStep(ctx context.Context, entityID string, step Step, sc StepContext) (Result, error) {
	if !step.Valid() {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownStep, step)
	}

	current, err := m.currentStatus(ctx, entityID)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		EntityID:   entityID,
		Step:       step,
		FromStatus: current,
		ToStatus:   current,
	}

	if target, changes := stepTarget(step, current); changes {
		vr := ValidateTransition(current, target, step)
		if !vr.Valid {
			return Result{}, fmt.Errorf("%w: %s (valid from %q: %v)",
				ErrInvalidTransition, vr.Reason, current, vr.ValidOptions)
		}
		if err := m.store.SetTaskStatus(ctx, entityID, target); err != nil {
			return Result{}, fmt.Errorf("persist status %q for %s: %w", target, entityID, err)
		}
		res.ToStatus = target
		res.Changed = current != target
	}

	if note := composeNote(step, sc, m.now().UTC()); note != "" {
		if err := m.appendNote(ctx, entityID, note); err != nil {
			return Result{}, err
		}
		res.Note = note
	}

	m.logger.Info("workflow step applied",
		zap.String("entity_id", entityID),
		zap.String("step", string(step)),
		zap.String("from", string(res.FromStatus)),
		zap.String("to", string(res.ToStatus)))
	return res, nil
}

// CycleStatus advances the entity to the next status in cycle order. This
// serves the UI "bump status" action and deliberately bypasses the workflow
// table; it wraps done → deferred and cancelled → pending.
func (m *StateMachine) CycleStatus(ctx context.Context, entityID string) (Status, error) {
	current, err := m.currentStatus(ctx, entityID)
	if err != nil {
		return "", err
	}
	next := CycleNext(current)
	if err := m.store.SetTaskStatus(ctx, entityID, next); err != nil {
		return "", fmt.Errorf("persist status %q for %s: %w", next, entityID, err)
	}
	return next, nil
}

// stepTarget returns the status a step drives toward from the current
// status, and whether the step changes status at all. The switch is
// exhaustive over the closed step set; note-only steps report false.
func stepTarget(step Step, current Status) (Status, bool) {
	switch step {
	case StepStartImplementation:
		return StatusInProgress, true
	case StepCompleteImplementation, StepApproveReview, StepMerged:
		return StatusDone, true
	case StepRequestReview:
		return StatusReview, true
	case StepReopenTask:
		return StatusPending, true
	case StepDeferTask:
		return StatusDeferred, true
	case StepCancelTask:
		return StatusCancelled, true
	case StepCommitProgress, StepSubtaskProgress, StepPRCreated:
		return current, false
	default:
		return current, false
	}
}

// currentStatus resolves the status of a task or subtask entity.
func (m *StateMachine) currentStatus(ctx context.Context, entityID string) (Status, error) {
	taskID, subtaskID := SplitEntityID(entityID)
	task, err := m.store.GetTask(ctx, taskID)
	if err != nil {
		return "", fmt.Errorf("load task %s: %w", taskID, err)
	}
	if subtaskID == "" {
		return task.Status, nil
	}
	for _, st := range task.Subtasks {
		if st.ID == subtaskID {
			return st.Status, nil
		}
	}
	return "", fmt.Errorf("task %s has no subtask %q", taskID, subtaskID)
}

func (m *StateMachine) appendNote(ctx context.Context, entityID, note string) error {
	_, subtaskID := SplitEntityID(entityID)
	if subtaskID != "" {
		if err := m.store.UpdateSubtask(ctx, entityID, note); err != nil {
			return fmt.Errorf("append subtask note for %s: %w", entityID, err)
		}
		return nil
	}
	if err := m.store.UpdateTask(ctx, entityID, note); err != nil {
		return fmt.Errorf("append task note for %s: %w", entityID, err)
	}
	return nil
}
