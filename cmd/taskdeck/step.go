package main

import (
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/taskdeck/internal/workflow"
)

var stepCtx struct {
	branch        string
	worktree      string
	commitMessage string
	commitHash    string
	mergeCommit   string
	prURL         string
	phase         string
	summary       string
	findings      []string
	decisions     []string
	nextSteps     []string
}

var stepCmd = &cobra.Command{
	Use:   "step <id> <step>",
	Short: "Apply a named workflow step to a task or subtask",
	Long: `Apply a workflow step (start-implementation, commit-progress,
subtask-progress, complete-implementation, pr-created, merged,
request-review, approve-review, reopen-task, defer-task, cancel-task)
to a task or a subtask addressed as parent.sub.

Examples:
  taskdeck step 5.2 start-implementation --branch task/5.2
  taskdeck step 5 merged --merge-commit a1b2c3d --pr-url https://github.com/acme/widgets/pull/42`,
	Args: cobra.ExactArgs(2),
	RunE: runStep,
}

func init() {
	flags := stepCmd.Flags()
	flags.StringVar(&stepCtx.branch, "branch", "", "branch the work happens on")
	flags.StringVar(&stepCtx.worktree, "worktree", "", "worktree path")
	flags.StringVar(&stepCtx.commitMessage, "message", "", "commit message")
	flags.StringVar(&stepCtx.commitHash, "commit", "", "commit hash")
	flags.StringVar(&stepCtx.mergeCommit, "merge-commit", "", "merge commit hash")
	flags.StringVar(&stepCtx.prURL, "pr-url", "", "pull request URL")
	flags.StringVar(&stepCtx.phase, "phase", "", "current work phase")
	flags.StringVar(&stepCtx.summary, "summary", "", "completion summary")
	flags.StringArrayVar(&stepCtx.findings, "finding", nil, "finding to record (repeatable)")
	flags.StringArrayVar(&stepCtx.decisions, "decision", nil, "decision to record (repeatable)")
	flags.StringArrayVar(&stepCtx.nextSteps, "next", nil, "next step to record (repeatable)")
}

func runStep(cmd *cobra.Command, args []string) error {
	step, err := workflow.ParseStep(args[1])
	if err != nil {
		return err
	}

	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.close()

	machine := workflow.NewStateMachine(a.store, a.logger)
	res, err := machine.ApplyWorkflowStep(cmd.Context(), args[0], step, workflow.StepContext{
		Branch:        stepCtx.branch,
		Worktree:      stepCtx.worktree,
		CommitMessage: stepCtx.commitMessage,
		CommitHash:    stepCtx.commitHash,
		MergeCommit:   stepCtx.mergeCommit,
		PRURL:         stepCtx.prURL,
		Phase:         stepCtx.phase,
		Summary:       stepCtx.summary,
		Findings:      stepCtx.findings,
		Decisions:     stepCtx.decisions,
		NextSteps:     stepCtx.nextSteps,
	})
	if err != nil {
		return err
	}

	if res.Changed {
		cmd.Printf("%s: %s → %s\n", res.EntityID, res.FromStatus, res.ToStatus)
	} else {
		cmd.Printf("%s: %s (unchanged)\n", res.EntityID, res.ToStatus)
	}
	if res.Note != "" {
		cmd.Println(res.Note)
	}
	return nil
}
