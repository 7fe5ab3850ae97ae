package worktree

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Resolver serializes branch/worktree acquisition per subtask key and
// enforces the at-most-one-binding invariant.
type Resolver struct {
	git    GitService
	logger *zap.Logger

	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
	bindings map[string]Binding
	pending  map[string]Conflict
}

// NewResolver creates a Resolver over the given git collaborator.
func NewResolver(git GitService, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		git:      git,
		logger:   logger,
		keyLocks: make(map[string]*sync.Mutex),
		bindings: make(map[string]Binding),
		pending:  make(map[string]Conflict),
	}
}

// Resolve acquires an exclusive branch/worktree for the subtask. When the
// canonical branch does not exist it is created from sourceBranch and the
// binding recorded. When it does exist, Resolve mutates nothing and returns
// a conflict the caller must settle via ApplyDecision. A second Resolve for
// the same key while a decision is pending fails with ErrConflictUnresolved.
func (r *Resolver) Resolve(ctx context.Context, taskID, subtaskID, sourceBranch string) (Outcome, error) {
	key := taskID + "." + subtaskID
	unlock := r.lockKey(key)
	defer unlock()

	if _, waiting := r.pendingConflict(key); waiting {
		return Outcome{}, fmt.Errorf("%w: %s", ErrConflictUnresolved, key)
	}

	acq, err := r.git.GetOrCreateWorktreeForSubtask(ctx, taskID, subtaskID, CreateOptions{SourceBranch: sourceBranch})
	if err != nil {
		return Outcome{}, fmt.Errorf("acquire worktree for %s: %w", key, err)
	}

	if acq.NeedsUserDecision {
		conflict := Conflict{
			BranchName:    acq.BranchName,
			BranchInUseAt: acq.BranchInUseAt,
			TaskID:        taskID,
			SubtaskID:     subtaskID,
			SourceBranch:  sourceBranch,
		}
		r.setPending(key, conflict)
		r.logger.Warn("branch conflict detected",
			zap.String("subtask", key),
			zap.String("branch", acq.BranchName),
			zap.String("in_use_at", acq.BranchInUseAt))
		return Outcome{NeedsDecision: true, Conflict: &conflict}, nil
	}

	binding := bindingFrom(key, acq)
	r.setBinding(binding)
	r.logger.Info("worktree created",
		zap.String("subtask", key),
		zap.String("branch", binding.Branch),
		zap.String("path", binding.WorktreePath))
	return Outcome{Created: true, Binding: &binding}, nil
}

// ApplyDecision settles a previously reported conflict. The conflict is
// consumed exactly once: a successful or cancelled decision clears it, a
// failed git call keeps it pending and leaves any previous binding intact.
func (r *Resolver) ApplyDecision(ctx context.Context, decision Decision, conflict Conflict) (Outcome, error) {
	key := conflict.Key()
	unlock := r.lockKey(key)
	defer unlock()

	if _, waiting := r.pendingConflict(key); !waiting {
		return Outcome{}, fmt.Errorf("%w: %s", ErrNoPendingConflict, key)
	}

	switch decision {
	case DecisionUseExisting:
		acq, err := r.git.UseExistingBranchForSubtask(ctx, conflict.TaskID, conflict.SubtaskID)
		if err != nil {
			return Outcome{}, fmt.Errorf("use existing branch %s: %w", conflict.BranchName, err)
		}
		binding := bindingFrom(key, acq)
		r.setBinding(binding)
		r.clearPending(key)
		r.logger.Info("bound to existing branch",
			zap.String("subtask", key),
			zap.String("branch", binding.Branch))
		return Outcome{UsedExisting: true, Binding: &binding}, nil

	case DecisionRecreate:
		// Destructive and only ever reached through this explicitly named
		// decision. The binding is replaced after the collaborator reports
		// success, so a failure cannot strand the key without a binding.
		acq, err := r.git.ForceRecreateWorktreeForSubtask(ctx, conflict.TaskID, conflict.SubtaskID,
			CreateOptions{SourceBranch: conflict.SourceBranch})
		if err != nil {
			return Outcome{}, fmt.Errorf("recreate branch %s from %s: %w",
				conflict.BranchName, conflict.SourceBranch, err)
		}
		binding := bindingFrom(key, acq)
		r.setBinding(binding)
		r.clearPending(key)
		r.logger.Warn("branch recreated, previous work discarded",
			zap.String("subtask", key),
			zap.String("branch", binding.Branch),
			zap.String("source", conflict.SourceBranch))
		return Outcome{Recreated: true, Binding: &binding}, nil

	case DecisionCancel:
		r.clearPending(key)
		r.logger.Info("branch conflict resolution cancelled", zap.String("subtask", key))
		return Outcome{Cancelled: true}, nil

	default:
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownDecision, decision)
	}
}

// Binding returns the current binding for a subtask key, if any.
func (r *Resolver) Binding(subtaskKey string) (Binding, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bindings[subtaskKey]
	return b, ok
}

// Bindings returns a copy of all current bindings.
func (r *Resolver) Bindings() map[string]Binding {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Binding, len(r.bindings))
	for k, v := range r.bindings {
		out[k] = v
	}
	return out
}

// lockKey serializes resolution per subtask key.
func (r *Resolver) lockKey(key string) func() {
	r.mu.Lock()
	lock, ok := r.keyLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		r.keyLocks[key] = lock
	}
	r.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func (r *Resolver) pendingConflict(key string) (Conflict, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.pending[key]
	return c, ok
}

func (r *Resolver) setPending(key string, c Conflict) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[key] = c
}

func (r *Resolver) clearPending(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, key)
}

func (r *Resolver) setBinding(b Binding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[b.SubtaskKey] = b
}

func bindingFrom(key string, acq Acquisition) Binding {
	return Binding{
		SubtaskKey:   key,
		WorktreeName: acq.WorktreeName,
		WorktreePath: acq.WorktreePath,
		Branch:       acq.BranchName,
	}
}
