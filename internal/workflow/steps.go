package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// Step is a named business event that drives a status transition and/or a
// note update. The set is closed; unknown names are rejected by ParseStep.
type Step string

const (
	StepStartImplementation    Step = "start-implementation"
	StepCommitProgress         Step = "commit-progress"
	StepSubtaskProgress        Step = "subtask-progress"
	StepCompleteImplementation Step = "complete-implementation"
	StepPRCreated              Step = "pr-created"
	StepMerged                 Step = "merged"
	StepRequestReview          Step = "request-review"
	StepApproveReview          Step = "approve-review"
	StepReopenTask             Step = "reopen-task"
	StepDeferTask              Step = "defer-task"
	StepCancelTask             Step = "cancel-task"
)

var (
	// ErrUnknownStep rejects a workflow step outside the closed set.
	// No mutation occurs.
	ErrUnknownStep = errors.New("unknown workflow step")

	// ErrInvalidTransition rejects a status change the transition table
	// does not allow. No mutation occurs.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Valid reports whether the step is a member of the closed set.
func (s Step) Valid() bool {
	switch s {
	case StepStartImplementation, StepCommitProgress, StepSubtaskProgress,
		StepCompleteImplementation, StepPRCreated, StepMerged,
		StepRequestReview, StepApproveReview, StepReopenTask,
		StepDeferTask, StepCancelTask:
		return true
	default:
		return false
	}
}

// ParseStep converts an external step name into a Step, rejecting unknown
// names at the boundary.
func ParseStep(raw string) (Step, error) {
	s := Step(strings.TrimSpace(raw))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStep, raw)
	}
	return s, nil
}

// TransitionRule is one row of the closed transition table.
type TransitionRule struct {
	From Status
	To   Status
	Step Step
}

// transitionTable enumerates every allowed status change. Steps absent here
// (commit-progress, subtask-progress, pr-created) are note-only and leave
// status untouched.
var transitionTable = []TransitionRule{
	{From: StatusPending, To: StatusInProgress, Step: StepStartImplementation},
	{From: StatusDeferred, To: StatusInProgress, Step: StepStartImplementation},

	{From: StatusPending, To: StatusDeferred, Step: StepDeferTask},
	{From: StatusInProgress, To: StatusDeferred, Step: StepDeferTask},

	{From: StatusPending, To: StatusCancelled, Step: StepCancelTask},
	{From: StatusInProgress, To: StatusCancelled, Step: StepCancelTask},
	{From: StatusDeferred, To: StatusCancelled, Step: StepCancelTask},

	{From: StatusInProgress, To: StatusDone, Step: StepCompleteImplementation},
	{From: StatusInProgress, To: StatusReview, Step: StepRequestReview},
	{From: StatusReview, To: StatusDone, Step: StepApproveReview},

	{From: StatusInProgress, To: StatusDone, Step: StepMerged},
	{From: StatusReview, To: StatusDone, Step: StepMerged},
	{From: StatusDone, To: StatusDone, Step: StepMerged},

	{From: StatusDone, To: StatusPending, Step: StepReopenTask},
	{From: StatusDeferred, To: StatusPending, Step: StepReopenTask},
	{From: StatusCancelled, To: StatusPending, Step: StepReopenTask},
}

// ValidationResult reports whether a transition is allowed and, when it is
// not, which targets are reachable from the source status.
type ValidationResult struct {
	Valid        bool
	Reason       string
	ValidOptions []Status
}

// ValidateTransition checks (from, step) against the transition table. When
// the pair is absent or targets a different status, ValidOptions lists every
// status reachable from `from` under any step so a UI can offer alternatives.
func ValidateTransition(from, to Status, step Step) ValidationResult {
	target, ok := transitionTarget(from, step)
	if ok && target == to {
		return ValidationResult{Valid: true}
	}

	res := ValidationResult{ValidOptions: reachableFrom(from)}
	if !ok {
		res.Reason = fmt.Sprintf("step %q does not apply to status %q", step, from)
	} else {
		res.Reason = fmt.Sprintf("step %q moves %q to %q, not %q", step, from, target, to)
	}
	return res
}

// transitionTarget returns the table target for (from, step).
func transitionTarget(from Status, step Step) (Status, bool) {
	for _, rule := range transitionTable {
		if rule.From == from && rule.Step == step {
			return rule.To, true
		}
	}
	return "", false
}

// reachableFrom lists the distinct targets reachable from a status under any
// step, in cycle order.
func reachableFrom(from Status) []Status {
	seen := make(map[Status]bool)
	for _, rule := range transitionTable {
		if rule.From == from {
			seen[rule.To] = true
		}
	}
	var out []Status
	for _, s := range CycleOrder() {
		if seen[s] {
			out = append(out, s)
		}
	}
	return out
}
