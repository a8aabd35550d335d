package planner

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/overlord/internal/config"
	"github.com/antigravity-dev/overlord/internal/depgraph"
	"github.com/antigravity-dev/overlord/internal/queue"
)

func newTestParser(t *testing.T, deps map[string][]string) (*Parser, *queue.Queue) {
	t.Helper()
	projects := make(map[string]config.Project, len(deps))
	for name, dependsOn := range deps {
		projects[name] = config.Project{DependsOn: dependsOn}
	}
	cfg := &config.Config{Projects: projects}
	graph := depgraph.New(cfg)

	path := filepath.Join(t.TempDir(), "queue.db")
	q, err := queue.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	return New(graph, q), q
}

func TestParseMergeSingleProject(t *testing.T) {
	p, q := newTestParser(t, map[string][]string{"api": nil})

	plan, err := p.Parse("merge api feature/foo into main")
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "api", plan.Steps[0].Project)
	assert.Contains(t, plan.Steps[0].Action, "merge feature/foo to main")
	assert.True(t, plan.RequiresApproval)
	assert.Equal(t, ImpactMedium, plan.Scope.EstimatedImpact)

	task, err := q.GetTask(plan.Steps[0].ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusActive, task.Status, "parsed steps are materialized as already-active tasks")
}

func TestParseMergeUnknownProjectErrors(t *testing.T) {
	p, _ := newTestParser(t, map[string][]string{"api": nil})
	_, err := p.Parse("merge ghost feature/foo into main")
	require.Error(t, err)
}

func TestParseTestSingle(t *testing.T) {
	p, _ := newTestParser(t, map[string][]string{"api": nil})
	plan, err := p.Parse("run tests in api")
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "run tests", plan.Steps[0].Action)
	assert.Equal(t, "api", plan.Steps[0].Project)
	assert.False(t, plan.RequiresApproval)
	assert.Equal(t, ImpactLow, plan.Scope.EstimatedImpact)
}

func TestParseTestAllCoversEveryProject(t *testing.T) {
	p, _ := newTestParser(t, map[string][]string{"api": nil, "frontend": nil, "infra": nil})
	plan, err := p.Parse("run tests across all projects")
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 3)
	assert.ElementsMatch(t, []string{"api", "frontend", "infra"}, plan.Scope.Projects)
}

func TestParseCleanBranchesMultiProjectDestructive(t *testing.T) {
	p, _ := newTestParser(t, map[string][]string{"api": nil, "frontend": nil})
	plan, err := p.Parse("clean stale branches in api and frontend")
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 2)
	assert.True(t, plan.Scope.Destructive)
	assert.False(t, plan.Scope.Reversible)
	assert.True(t, plan.RequiresApproval)
}

func TestParseUpdateMultiRequiresAllProjectsValid(t *testing.T) {
	p, _ := newTestParser(t, map[string][]string{"shared-lib": nil, "api": nil, "frontend": nil})
	plan, err := p.Parse("update shared-lib in api and frontend")
	require.NoError(t, err)
	assert.Len(t, plan.Steps, 2)
	for _, step := range plan.Steps {
		assert.Equal(t, "update shared-lib", step.Action)
	}

	_, err = p.Parse("update shared-lib in api and ghost")
	require.Error(t, err)
}

func TestParseGenericFallsBackToFirstProject(t *testing.T) {
	p, _ := newTestParser(t, map[string][]string{"api": nil})
	plan, err := p.Parse("investigate the flaky deploy pipeline")
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "api", plan.Steps[0].Project)
	assert.Equal(t, "cloud-fast", plan.Steps[0].ModelTier)
	assert.True(t, plan.RequiresApproval)
}

func TestParseGenericNoProjectsConfigured(t *testing.T) {
	p, _ := newTestParser(t, nil)
	_, err := p.Parse("do something")
	require.Error(t, err)
}

func TestParsePrefersMoreSpecificPatternsFirst(t *testing.T) {
	p, _ := newTestParser(t, map[string][]string{"api": nil})
	plan, err := p.Parse("run tests in api")
	require.NoError(t, err)
	assert.Equal(t, "run tests", plan.Steps[0].Action, "test-single pattern must win over the generic fallback")
}
