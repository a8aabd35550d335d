// Package ecosystem inspects the ecosystem's git and test health,
// pure data gathering never modifying anything. Registry caches the
// scan result for a TTL window; its readers are the chat router, the
// chat fallback's system prompt and the daemon's scheduled tasks.
package ecosystem

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/antigravity-dev/overlord/internal/config"
)

// GitState is the git repository state for a single project.
type GitState struct {
	Branch         string
	Clean          bool
	Ahead          int
	Behind         int
	LastCommit     string
	LastCommitDate string
	StaleBranches  []string
}

// TestHealth is the test infrastructure state for a single project.
type TestHealth struct {
	HasTests    bool
	TestCommand string
}

// ProjectStatus is the combined scan result for a single project.
type ProjectStatus struct {
	Name   string
	Config config.Project
	Git    GitState
	Tests  TestHealth
	Issues []string
}

func runGit(ctx context.Context, args []string, dir string) string {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	cmd := exec.CommandContext(cctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func gitState(ctx context.Context, path string) GitState {
	branch := runGit(ctx, []string{"rev-parse", "--abbrev-ref", "HEAD"}, path)
	statusOut := runGit(ctx, []string{"status", "--porcelain"}, path)
	clean := statusOut == ""

	ahead, behind := 0, 0
	revList := runGit(ctx, []string{"rev-list", "--left-right", "--count", branch + "...origin/" + branch}, path)
	if parts := strings.Fields(revList); len(parts) == 2 {
		ahead, _ = strconv.Atoi(parts[0])
		behind, _ = strconv.Atoi(parts[1])
	}

	lastCommit := runGit(ctx, []string{"log", "-1", "--format=%h %s"}, path)
	lastCommitDate := runGit(ctx, []string{"log", "-1", "--format=%ci"}, path)

	return GitState{
		Branch: branch, Clean: clean, Ahead: ahead, Behind: behind,
		LastCommit: lastCommit, LastCommitDate: lastCommitDate,
		StaleBranches: staleBranches(ctx, path),
	}
}

// staleBranches returns local branches whose latest commit is older
// than seven days.
func staleBranches(ctx context.Context, path string) []string {
	out := runGit(ctx, []string{"for-each-ref", "--format=%(refname:short) %(committerdate:iso-strict)", "refs/heads/"}, path)
	if out == "" {
		return nil
	}
	cutoff := time.Now().Add(-7 * 24 * time.Hour)
	var stale []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		t, err := time.Parse(time.RFC3339, fields[1])
		if err != nil || t.After(cutoff) {
			continue
		}
		stale = append(stale, fields[0])
	}
	return stale
}

// ScanProject gathers git and test-file state for a single project.
func ScanProject(ctx context.Context, name string, project config.Project) ProjectStatus {
	status := ProjectStatus{
		Name:   name,
		Config: project,
		Git:    gitState(ctx, project.Path),
		Tests:  TestHealth{HasTests: hasTestFiles(project.Path)},
	}
	if status.Git.Ahead >= 5 {
		status.Issues = append(status.Issues, "branch significantly ahead of remote")
	}
	return status
}

func hasTestFiles(path string) bool {
	cmd := exec.Command("find", path, "-name", "*_test.go", "-o", "-name", "*_test.py")
	out, err := cmd.Output()
	return err == nil && strings.TrimSpace(string(out)) != ""
}

// ScanEcosystem scans every configured project.
func ScanEcosystem(ctx context.Context, cfg *config.Config) []ProjectStatus {
	out := make([]ProjectStatus, 0, len(cfg.Projects))
	for name, project := range cfg.Projects {
		out = append(out, ScanProject(ctx, name, project))
	}
	return out
}
