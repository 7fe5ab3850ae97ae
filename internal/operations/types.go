package operations

import (
	"context"
	"errors"
	"time"
)

// Type identifies a kind of long-running operation.
type Type string

const (
	// TypeParsePRD parses a product requirements document into tasks.
	TypeParsePRD Type = "parse-prd"

	// TypeAnalyzeComplexity scores tasks and produces a complexity report.
	TypeAnalyzeComplexity Type = "analyze-complexity"

	// TypeExpandTask expands a single task into subtasks.
	TypeExpandTask Type = "expand-task"

	// TypeExpandAll expands every eligible task into subtasks.
	TypeExpandAll Type = "expand-all"
)

// State is a position in the operation state machine.
type State string

const (
	StateIdle       State = "idle"
	StatePreparing  State = "preparing"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateCancelled  State = "cancelled"
	StateErrored    State = "errored"
)

// Running reports whether an operation in this state is still in flight.
func (s State) Running() bool {
	return s == StatePreparing || s == StateProcessing
}

// Terminal reports whether this state ends an operation.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateErrored
}

var (
	// ErrBusy is returned by Start while another operation is in flight.
	ErrBusy = errors.New("an operation is already in flight")

	// ErrCancelled is the sentinel an executor returns to acknowledge a
	// cooperative cancellation. It is reported as the cancelled state,
	// never as a failure.
	ErrCancelled = errors.New("operation cancelled")

	// ErrUnknownType is returned by Start for a type the registry does
	// not know.
	ErrUnknownType = errors.New("unknown operation type")

	// ErrNoOperation is returned by Cancel when nothing is in flight.
	ErrNoOperation = errors.New("no operation in flight")

	// ErrNotCancellable is returned by Cancel when the operation's config
	// forbids cancellation.
	ErrNotCancellable = errors.New("operation is not cancellable")

	// ErrNotTerminal is returned by Close while the operation is still
	// running.
	ErrNotTerminal = errors.New("operation is still running")
)

// Executor performs the actual work of an operation. It must observe ctx at
// its suspension points and should return ErrCancelled (or ctx.Err()) once
// it notices cancellation. The returned value becomes the operation result.
type Executor func(ctx context.Context, progress Reporter) (any, error)

// Reporter is how an executor reports progress back to the orchestrator.
type Reporter interface {
	// Phase marks the named phase as current. The first call moves the
	// operation from preparing to processing.
	Phase(name string)

	// Progress records an informational hint without changing state.
	Progress(hint string)
}

// Handle identifies a started operation.
type Handle struct {
	ID   string
	Type Type
}

// Snapshot is an immutable view of the orchestrator state pushed to
// subscribers on every change.
type Snapshot struct {
	ID              string
	Type            Type
	Title           string
	State           State
	Phases          []string
	PhaseIndex      int
	Phase           string
	Hint            string
	StartedAt       time.Time
	Elapsed         time.Duration
	CancelRequested bool
	Result          any
	Err             error

	// seq orders snapshots across publishers so a stale one is never
	// delivered after a newer one.
	seq uint64
}
