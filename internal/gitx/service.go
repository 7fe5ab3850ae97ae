package gitx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/taskdeck/internal/worktree"
)

// ErrNotGitRepo indicates the configured root is not a git repository.
var ErrNotGitRepo = errors.New("not a git repository")

// Service implements worktree.GitService against a repository on disk.
type Service struct {
	repoRoot     string
	worktreesDir string
	logger       *zap.Logger
}

// NewService creates a Service rooted at repoRoot. Worktrees are created
// under worktreesDir, which may be relative to the repo root.
func NewService(repoRoot, worktreesDir string, logger *zap.Logger) (*Service, error) {
	if strings.TrimSpace(repoRoot) == "" {
		return nil, errors.New("repo root is required")
	}
	absRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve repo root %s: %w", repoRoot, err)
	}
	if _, err := gogit.PlainOpen(absRoot); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotGitRepo, absRoot)
	}
	if worktreesDir == "" {
		worktreesDir = ".worktrees"
	}
	if !filepath.IsAbs(worktreesDir) {
		worktreesDir = filepath.Join(absRoot, worktreesDir)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repoRoot: absRoot, worktreesDir: worktreesDir, logger: logger}, nil
}

// DetectSourceBranch returns the branch HEAD points at, or "main" when HEAD
// is detached.
func (s *Service) DetectSourceBranch() (string, error) {
	repo, err := gogit.PlainOpen(s.repoRoot)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotGitRepo, s.repoRoot)
	}
	head, err := repo.Head()
	if err != nil {
		return "main", nil
	}
	if head.Name().IsBranch() {
		return head.Name().Short(), nil
	}
	return "main", nil
}

// BranchExists reports whether refs/heads/<branch> exists.
func (s *Service) BranchExists(branch string) (bool, error) {
	repo, err := gogit.PlainOpen(s.repoRoot)
	if err != nil {
		return false, fmt.Errorf("%w: %s", ErrNotGitRepo, s.repoRoot)
	}
	_, err = repo.Reference(plumbing.NewBranchReferenceName(branch), true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("look up branch %s: %w", branch, err)
	}
	return true, nil
}

// GetOrCreateWorktreeForSubtask creates the canonical branch and worktree
// for a subtask, or reports a conflict when the branch already exists. The
// conflict path performs no mutation.
func (s *Service) GetOrCreateWorktreeForSubtask(ctx context.Context, taskID, subtaskID string, opts worktree.CreateOptions) (worktree.Acquisition, error) {
	if err := ValidateIDs(taskID, subtaskID); err != nil {
		return worktree.Acquisition{}, err
	}
	branch := BranchName(taskID, subtaskID)

	exists, err := s.BranchExists(branch)
	if err != nil {
		return worktree.Acquisition{}, err
	}
	if exists {
		inUseAt, err := s.branchCheckedOutAt(ctx, branch)
		if err != nil {
			return worktree.Acquisition{}, err
		}
		return worktree.Acquisition{
			Exists:            true,
			NeedsUserDecision: true,
			BranchName:        branch,
			BranchInUseAt:     inUseAt,
		}, nil
	}

	source := opts.SourceBranch
	if source == "" {
		source, err = s.DetectSourceBranch()
		if err != nil {
			return worktree.Acquisition{}, err
		}
	}
	return s.addWorktree(ctx, taskID, subtaskID, branch, source)
}

// UseExistingBranchForSubtask binds the subtask to the branch as it stands.
// When the branch is already checked out somewhere that worktree is reused;
// otherwise a new worktree is attached to it.
func (s *Service) UseExistingBranchForSubtask(ctx context.Context, taskID, subtaskID string) (worktree.Acquisition, error) {
	if err := ValidateIDs(taskID, subtaskID); err != nil {
		return worktree.Acquisition{}, err
	}
	branch := BranchName(taskID, subtaskID)

	inUseAt, err := s.branchCheckedOutAt(ctx, branch)
	if err != nil {
		return worktree.Acquisition{}, err
	}
	if inUseAt != "" {
		return worktree.Acquisition{
			Exists:       true,
			BranchName:   branch,
			WorktreeName: WorktreeName(taskID, subtaskID),
			WorktreePath: inUseAt,
		}, nil
	}

	path := filepath.Join(s.worktreesDir, WorktreeName(taskID, subtaskID))
	if err := os.MkdirAll(s.worktreesDir, 0o755); err != nil {
		return worktree.Acquisition{}, fmt.Errorf("create worktrees dir: %w", err)
	}
	if err := s.runGit(ctx, "worktree", "add", path, branch); err != nil {
		return worktree.Acquisition{}, err
	}
	return worktree.Acquisition{
		Exists:       true,
		BranchName:   branch,
		WorktreeName: WorktreeName(taskID, subtaskID),
		WorktreePath: path,
	}, nil
}

// ForceRecreateWorktreeForSubtask deletes the existing branch and its
// worktree and creates fresh ones from opts.SourceBranch. Destructive;
// callers gate it behind an explicit user decision.
func (s *Service) ForceRecreateWorktreeForSubtask(ctx context.Context, taskID, subtaskID string, opts worktree.CreateOptions) (worktree.Acquisition, error) {
	if err := ValidateIDs(taskID, subtaskID); err != nil {
		return worktree.Acquisition{}, err
	}
	branch := BranchName(taskID, subtaskID)

	inUseAt, err := s.branchCheckedOutAt(ctx, branch)
	if err != nil {
		return worktree.Acquisition{}, err
	}
	if inUseAt != "" {
		if err := s.runGit(ctx, "worktree", "remove", "--force", inUseAt); err != nil {
			return worktree.Acquisition{}, fmt.Errorf("remove worktree %s: %w", inUseAt, err)
		}
	}
	if exists, err := s.BranchExists(branch); err != nil {
		return worktree.Acquisition{}, err
	} else if exists {
		if err := s.runGit(ctx, "branch", "-D", branch); err != nil {
			return worktree.Acquisition{}, fmt.Errorf("delete branch %s: %w", branch, err)
		}
	}

	source := opts.SourceBranch
	if source == "" {
		source, err = s.DetectSourceBranch()
		if err != nil {
			return worktree.Acquisition{}, err
		}
	}
	s.logger.Warn("recreating branch from source",
		zap.String("branch", branch),
		zap.String("source", source))
	return s.addWorktree(ctx, taskID, subtaskID, branch, source)
}

// GetWorktreeGitStatus returns the porcelain status of a worktree. An empty
// string means the tree is clean.
func (s *Service) GetWorktreeGitStatus(ctx context.Context, path string) (string, error) {
	out, err := s.gitOutput(ctx, "-C", path, "status", "--porcelain")
	if err != nil {
		return "", fmt.Errorf("status of worktree %s: %w", path, err)
	}
	return strings.TrimSpace(out), nil
}

// addWorktree creates branch and worktree in one git invocation.
func (s *Service) addWorktree(ctx context.Context, taskID, subtaskID, branch, source string) (worktree.Acquisition, error) {
	if err := os.MkdirAll(s.worktreesDir, 0o755); err != nil {
		return worktree.Acquisition{}, fmt.Errorf("create worktrees dir: %w", err)
	}
	name := WorktreeName(taskID, subtaskID)
	path := filepath.Join(s.worktreesDir, name)
	if err := s.runGit(ctx, "worktree", "add", "-b", branch, path, source); err != nil {
		return worktree.Acquisition{}, fmt.Errorf("create worktree for %s from %s: %w", branch, source, err)
	}
	s.logger.Info("worktree added",
		zap.String("branch", branch),
		zap.String("path", path),
		zap.String("source", source))
	return worktree.Acquisition{
		Created:      true,
		BranchName:   branch,
		WorktreeName: name,
		WorktreePath: path,
	}, nil
}

// branchCheckedOutAt returns the worktree path holding the branch, or ""
// when the branch is not checked out anywhere.
func (s *Service) branchCheckedOutAt(ctx context.Context, branch string) (string, error) {
	out, err := s.gitOutput(ctx, "worktree", "list", "--porcelain")
	if err != nil {
		return "", fmt.Errorf("list worktrees: %w", err)
	}
	return worktreePathForBranch(out, branch), nil
}

// worktreePathForBranch parses `git worktree list --porcelain` output and
// returns the path of the stanza whose branch matches.
func worktreePathForBranch(porcelain, branch string) string {
	ref := "refs/heads/" + branch
	var path string
	for _, line := range strings.Split(porcelain, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "worktree "):
			path = strings.TrimPrefix(line, "worktree ")
		case line == "branch "+ref:
			return path
		case line == "":
			path = ""
		}
	}
	return ""
}

func (s *Service) runGit(ctx context.Context, args ...string) error {
	_, err := s.gitOutput(ctx, args...)
	return err
}

func (s *Service) gitOutput(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = s.repoRoot
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}
