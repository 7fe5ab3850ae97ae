package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/taskdeck/internal/gitx"
	"github.com/fyrsmithlabs/taskdeck/internal/worktree"
)

var resolveFlags struct {
	source   string
	decision string
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <task-id> <subtask-id>",
	Short: "Acquire an exclusive branch and worktree for a subtask",
	Long: `Acquire the canonical branch and worktree for a subtask. When the branch
already exists the command reports the conflict and the three ways out;
re-run with --decision to settle it:

  --decision use-existing   keep the branch as it stands (no data loss)
  --decision recreate       delete branch and worktree, recreate from the
                            source branch (uncommitted work is LOST)
  --decision cancel         leave everything untouched`,
	Args: cobra.ExactArgs(2),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveFlags.source, "source", "", "source branch (default: current branch)")
	resolveCmd.Flags().StringVar(&resolveFlags.decision, "decision", "", "conflict decision: use-existing, recreate, or cancel")
}

func runResolve(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	taskID, subtaskID := args[0], args[1]

	svc, err := gitx.NewService(a.cfg.Git.RepoRoot, a.cfg.Git.WorktreesDir, a.logger)
	if err != nil {
		return err
	}
	source := resolveFlags.source
	if source == "" {
		source = a.cfg.Git.SourceBranch
	}
	if source == "" {
		if source, err = svc.DetectSourceBranch(); err != nil {
			return err
		}
	}

	resolver := worktree.NewResolver(svc, a.logger)
	out, err := resolver.Resolve(cmd.Context(), taskID, subtaskID, source)
	if err != nil {
		return err
	}

	if out.Created {
		cmd.Printf("created branch %s, worktree %s\n", out.Binding.Branch, out.Binding.WorktreePath)
		return nil
	}

	// Conflict: settle it when a decision was supplied, otherwise report.
	if resolveFlags.decision == "" {
		cmd.Printf("branch %s already exists", out.Conflict.BranchName)
		if out.Conflict.BranchInUseAt != "" {
			cmd.Printf(" (checked out at %s)", out.Conflict.BranchInUseAt)
		}
		cmd.Println()
		if out.Conflict.BranchInUseAt != "" {
			if status, err := svc.GetWorktreeGitStatus(cmd.Context(), out.Conflict.BranchInUseAt); err == nil && status != "" {
				cmd.Println("the existing worktree has uncommitted changes:")
				cmd.Println(status)
			}
		}
		cmd.Println("re-run with --decision use-existing | recreate | cancel")
		return fmt.Errorf("%w: %s.%s", worktree.ErrConflictUnresolved, taskID, subtaskID)
	}

	decision, err := worktree.ParseDecision(resolveFlags.decision)
	if err != nil {
		return err
	}
	res, err := resolver.ApplyDecision(cmd.Context(), decision, *out.Conflict)
	if err != nil {
		return err
	}
	switch {
	case res.UsedExisting:
		cmd.Printf("bound to existing branch %s at %s\n", res.Binding.Branch, res.Binding.WorktreePath)
	case res.Recreated:
		cmd.Printf("recreated branch %s from %s, worktree %s\n", res.Binding.Branch, source, res.Binding.WorktreePath)
	case res.Cancelled:
		cmd.Println("cancelled, nothing changed")
	}
	return nil
}
