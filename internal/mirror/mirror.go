// Package mirror specifies the worktree-provisioning interface used by
// the Dispatcher. The concrete mirror/git plumbing (bare-clone mirrors,
// remote fetch) is out of scope per spec §1; this package provides the
// interface plus a git-worktree-backed implementation grounded on the
// teacher's internal/git package conventions.
package mirror

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Manager provisions a task-scoped worktree directory for dispatch.
type Manager interface {
	// ProvisionWorktree returns the path to an exclusive, writable
	// worktree for taskID under project, creating it if necessary.
	ProvisionWorktree(ctx context.Context, project, taskID string) (string, error)
	// Branch returns the derived branch name for taskID: atom/<first 8
	// chars of taskID>.
	Branch(taskID string) string
}

// GitManager provisions worktrees from a bare mirror clone under
// mirrorRoot into task-scoped directories under worktreeRoot, named
// <worktreeRoot>/<project>/<first-8-of-task-id> per spec §5.
type GitManager struct {
	mirrorRoot   string
	worktreeRoot string
}

// NewGitManager returns a GitManager rooted at the given directories.
func NewGitManager(mirrorRoot, worktreeRoot string) *GitManager {
	return &GitManager{mirrorRoot: mirrorRoot, worktreeRoot: worktreeRoot}
}

func Branch(taskID string) string {
	short := taskID
	if len(short) > 8 {
		short = short[:8]
	}
	return "atom/" + short
}

func (g *GitManager) Branch(taskID string) string { return Branch(taskID) }

func (g *GitManager) ProvisionWorktree(ctx context.Context, project, taskID string) (string, error) {
	short := taskID
	if len(short) > 8 {
		short = short[:8]
	}

	projectDir := filepath.Join(g.worktreeRoot, project)
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		return "", fmt.Errorf("mirror: create worktree parent: %w", err)
	}
	worktreePath := filepath.Join(projectDir, short)

	mirrorPath := filepath.Join(g.mirrorRoot, project+".git")
	if _, err := os.Stat(mirrorPath); err != nil {
		return "", fmt.Errorf("mirror: bare mirror not found for %s: %w", project, err)
	}
	if _, err := os.Stat(worktreePath); err == nil {
		return worktreePath, nil
	}

	branch := Branch(taskID)
	cmd := exec.CommandContext(ctx, "git", "worktree", "add", "-b", branch, worktreePath)
	cmd.Dir = mirrorPath
	if out, err := cmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("mirror: git worktree add: %w: %s", err, string(out))
	}
	return worktreePath, nil
}
