package workflow

import (
	"fmt"
	"strings"
	"time"
)

// composeNote renders the structured note a step records, or "" for steps
// that carry no note. URLs, branch names, and commit hashes are reproduced
// verbatim.
func composeNote(step Step, sc StepContext, now time.Time) string {
	stamp := now.Format(time.RFC3339)

	var b strings.Builder
	switch step {
	case StepStartImplementation:
		fmt.Fprintf(&b, "[%s] Implementation started", stamp)
		if sc.Branch != "" {
			fmt.Fprintf(&b, " on branch %s", sc.Branch)
		}
		if sc.Worktree != "" {
			fmt.Fprintf(&b, " (worktree: %s)", sc.Worktree)
		}

	case StepCommitProgress:
		fmt.Fprintf(&b, "[%s] Progress commit", stamp)
		if sc.CommitHash != "" {
			fmt.Fprintf(&b, " %s", sc.CommitHash)
		}
		if sc.CommitMessage != "" {
			fmt.Fprintf(&b, ": %s", sc.CommitMessage)
		}
		writeList(&b, "Findings", sc.Findings)
		writeList(&b, "Decisions", sc.Decisions)

	case StepSubtaskProgress:
		fmt.Fprintf(&b, "[%s] Progress", stamp)
		if sc.Phase != "" {
			fmt.Fprintf(&b, " (phase: %s)", sc.Phase)
		}
		writeList(&b, "Findings", sc.Findings)
		writeList(&b, "Next steps", sc.NextSteps)

	case StepCompleteImplementation:
		fmt.Fprintf(&b, "[%s] Implementation complete", stamp)
		if sc.Summary != "" {
			fmt.Fprintf(&b, ": %s", sc.Summary)
		}

	case StepPRCreated:
		fmt.Fprintf(&b, "[%s] PR created: %s", stamp, sc.PRURL)
		if sc.Branch != "" {
			fmt.Fprintf(&b, " (branch %s", sc.Branch)
			if sc.CommitHash != "" {
				fmt.Fprintf(&b, ", commit %s", sc.CommitHash)
			}
			b.WriteString(")")
		} else if sc.CommitHash != "" {
			fmt.Fprintf(&b, " (commit %s)", sc.CommitHash)
		}

	case StepMerged:
		fmt.Fprintf(&b, "[%s] Merged", stamp)
		if sc.MergeCommit != "" {
			fmt.Fprintf(&b, " in commit %s", sc.MergeCommit)
		}
		if sc.PRURL != "" {
			fmt.Fprintf(&b, " (PR %s)", sc.PRURL)
		}

	case StepRequestReview, StepApproveReview, StepReopenTask, StepDeferTask, StepCancelTask:
		return ""
	}

	return b.String()
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:", label)
	for _, item := range items {
		fmt.Fprintf(b, "\n- %s", item)
	}
}
