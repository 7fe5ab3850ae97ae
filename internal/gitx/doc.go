// Package gitx implements the git/worktree collaborator against a real
// repository. Branch lookups go through go-git; worktree administration
// (add, remove, list) shells out to the git CLI, which go-git does not
// cover.
package gitx
