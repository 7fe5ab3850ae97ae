package worktree

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConflictUnresolved is returned when a worktree acquisition is
	// attempted while a conflict decision is still pending for the key.
	ErrConflictUnresolved = errors.New("branch conflict awaiting decision")

	// ErrNoPendingConflict is returned by ApplyDecision when the conflict
	// was already consumed or never detected.
	ErrNoPendingConflict = errors.New("no pending branch conflict for subtask")

	// ErrUnknownDecision rejects a decision name outside the closed set.
	ErrUnknownDecision = errors.New("unknown conflict decision")
)

// Decision is one of the three ways to settle a branch conflict.
type Decision string

const (
	DecisionUseExisting Decision = "use-existing"
	DecisionRecreate    Decision = "recreate"
	DecisionCancel      Decision = "cancel"
)

// ParseDecision converts an external decision name into a Decision,
// rejecting unknown names at the boundary.
func ParseDecision(raw string) (Decision, error) {
	d := Decision(strings.TrimSpace(raw))
	switch d {
	case DecisionUseExisting, DecisionRecreate, DecisionCancel:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDecision, raw)
	}
}

// Binding records the one branch/worktree pair a subtask is bound to.
type Binding struct {
	SubtaskKey   string
	WorktreeName string
	WorktreePath string
	Branch       string
}

// Conflict describes a branch that already exists where a subtask wants an
// exclusive one. A conflict is consumed by exactly one decision.
type Conflict struct {
	BranchName    string
	BranchInUseAt string // worktree path holding the branch, if checked out
	TaskID        string
	SubtaskID     string
	SourceBranch  string
}

// Key returns the subtask key the conflict belongs to.
func (c Conflict) Key() string {
	return c.TaskID + "." + c.SubtaskID
}

// Outcome reports how an acquisition or decision ended.
type Outcome struct {
	Created       bool
	UsedExisting  bool
	Recreated     bool
	Cancelled     bool
	NeedsDecision bool
	Binding       *Binding
	Conflict      *Conflict
}

// CreateOptions parameterize branch/worktree creation.
type CreateOptions struct {
	SourceBranch string
	Title        string
}

// Acquisition is the git collaborator's answer to an acquisition request.
type Acquisition struct {
	Exists            bool
	Created           bool
	NeedsUserDecision bool
	BranchName        string
	BranchInUseAt     string
	WorktreeName      string
	WorktreePath      string
}

// GitService is the git/worktree collaborator. Implementations are expected
// to be safe for concurrent calls on distinct branch names only.
type GitService interface {
	// GetOrCreateWorktreeForSubtask creates the subtask's canonical branch
	// and worktree, or reports NeedsUserDecision when the branch already
	// exists. It performs no mutation in the conflict case.
	GetOrCreateWorktreeForSubtask(ctx context.Context, taskID, subtaskID string, opts CreateOptions) (Acquisition, error)

	// UseExistingBranchForSubtask attaches a worktree to the existing
	// branch without touching its history.
	UseExistingBranchForSubtask(ctx context.Context, taskID, subtaskID string) (Acquisition, error)

	// ForceRecreateWorktreeForSubtask deletes the existing branch and
	// worktree and creates fresh ones from opts.SourceBranch. Destructive.
	ForceRecreateWorktreeForSubtask(ctx context.Context, taskID, subtaskID string, opts CreateOptions) (Acquisition, error)

	// GetWorktreeGitStatus returns the porcelain status of a worktree,
	// used to warn before destructive decisions.
	GetWorktreeGitStatus(ctx context.Context, path string) (string, error)
}
