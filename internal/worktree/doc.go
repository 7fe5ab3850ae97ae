// Package worktree acquires an exclusive git branch and worktree for a
// subtask and resolves conflicts when the branch already exists.
//
// Resolve either creates the branch and worktree outright or reports a
// conflict the caller must settle through exactly one ApplyDecision call
// with one of three decisions:
//
//   - use-existing: bind to the branch as it stands; nothing is lost.
//   - recreate: delete the branch and its worktree, then create fresh ones
//     from the conflict's source branch. Destructive: uncommitted work in
//     the old worktree is gone. Never a default; it only happens on this
//     explicitly named decision.
//   - cancel: leave everything as it was.
//
// Resolution is serialized per subtask key, and at most one worktree
// binding exists per key at any time. Calls into the git collaborator block;
// the package does not assume the collaborator tolerates concurrent writes
// to the same branch name.
package worktree
