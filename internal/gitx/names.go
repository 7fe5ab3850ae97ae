package gitx

import (
	"fmt"
	"regexp"
)

// idPattern keeps task identifiers shell- and path-safe.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// BranchName returns the canonical branch for a subtask.
func BranchName(taskID, subtaskID string) string {
	return fmt.Sprintf("task/%s.%s", taskID, subtaskID)
}

// WorktreeName returns the canonical worktree directory name for a subtask.
func WorktreeName(taskID, subtaskID string) string {
	return fmt.Sprintf("task-%s.%s", taskID, subtaskID)
}

// ValidateIDs rejects identifiers that cannot appear in a branch or path.
func ValidateIDs(taskID, subtaskID string) error {
	if !idPattern.MatchString(taskID) {
		return fmt.Errorf("invalid task ID %q", taskID)
	}
	if !idPattern.MatchString(subtaskID) {
		return fmt.Errorf("invalid subtask ID %q", subtaskID)
	}
	return nil
}
