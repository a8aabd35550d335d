package release

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/overlord/internal/config"
	"github.com/antigravity-dev/overlord/internal/depgraph"
	"github.com/antigravity-dev/overlord/internal/memory"
	"github.com/antigravity-dev/overlord/internal/planner"
	"github.com/antigravity-dev/overlord/internal/proposal"
	"github.com/antigravity-dev/overlord/internal/queue"
)

type fakeExecutor struct {
	outcome proposal.Outcome
	err     error
	lastPlan *planner.Plan
}

func (f *fakeExecutor) Execute(ctx context.Context, plan *planner.Plan, autoApproved bool) (proposal.Outcome, error) {
	f.lastPlan = plan
	return f.outcome, f.err
}

func newTestCoordinator(t *testing.T, deps map[string][]string, executor proposal.Executor) (*Coordinator, *config.Config) {
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

	memPath := filepath.Join(t.TempDir(), "memory.db")
	memDB, err := sql.Open("sqlite", memPath)
	require.NoError(t, err)
	t.Cleanup(func() { memDB.Close() })
	mem, err := memory.Open(memDB)
	require.NoError(t, err)

	return New(cfg, graph, q, executor, mem), cfg
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := &config.Config{Projects: map[string]config.Project{"api": {}}}

	problems := Validate(Spec{Project: "ghost", Version: "v1.0.0", SourceBranch: "develop", TargetBranch: "main"}, cfg)
	assert.Equal(t, []string{"unknown project: ghost"}, problems)

	problems = Validate(Spec{Project: "api"}, cfg)
	assert.Contains(t, problems, "version cannot be empty")
	assert.Contains(t, problems, "source branch cannot be empty")
	assert.Contains(t, problems, "target branch cannot be empty")

	problems = Validate(Spec{Project: "api", Version: "1.0.0", SourceBranch: "develop", TargetBranch: "main"}, cfg)
	assert.Contains(t, problems, "version must start with 'v' (e.g., v0.1.0)")

	problems = Validate(Spec{Project: "api", Version: "v1.0.0", SourceBranch: "develop", TargetBranch: "main"}, cfg)
	assert.Empty(t, problems)
}

func TestPlanReleaseBasicStepSequence(t *testing.T) {
	c, _ := newTestCoordinator(t, map[string][]string{"api": nil}, &fakeExecutor{})

	plan, err := c.PlanRelease(Spec{Project: "api", Version: "v1.2.0", SourceBranch: "develop", TargetBranch: "main"})
	require.NoError(t, err)
	require.Len(t, plan.Steps, 3)
	assert.Equal(t, "validate tests", plan.Steps[0].Action)
	assert.Contains(t, plan.Steps[1].Action, "merge develop to main")
	assert.Contains(t, plan.Steps[2].Action, "tag v1.2.0")
	assert.Equal(t, []string{plan.Steps[0].ID}, plan.Steps[1].Dependencies)
	assert.Equal(t, []string{plan.Steps[1].ID}, plan.Steps[2].Dependencies)
	assert.True(t, plan.RequiresApproval)
	assert.Equal(t, planner.ImpactHigh, plan.Scope.EstimatedImpact)
	assert.True(t, plan.Scope.Reversible, "no push means the release is still reversible")
	assert.False(t, plan.Scope.AffectsRemote)
}

func TestPlanReleaseDefaultsBranches(t *testing.T) {
	c, _ := newTestCoordinator(t, map[string][]string{"api": nil}, &fakeExecutor{})
	plan, err := c.PlanRelease(Spec{Project: "api", Version: "v1.0.0"})
	require.NoError(t, err)
	assert.Contains(t, plan.Steps[1].Action, "merge develop to main")
}

func TestPlanReleaseUpdatesDependentsWithTests(t *testing.T) {
	c, _ := newTestCoordinator(t, map[string][]string{
		"shared-lib": nil,
		"api":        {"shared-lib"},
	}, &fakeExecutor{})

	plan, err := c.PlanRelease(Spec{
		Project: "shared-lib", Version: "v2.0.0", SourceBranch: "develop", TargetBranch: "main",
		UpdateDependents: true,
	})
	require.NoError(t, err)

	var actions []string
	for _, s := range plan.Steps {
		actions = append(actions, s.Action+"@"+s.Project)
	}
	assert.Contains(t, actions, "update shared-lib to v2.0.0@api")
	assert.Contains(t, actions, "validate tests@api")
	assert.ElementsMatch(t, []string{"api", "shared-lib"}, plan.Scope.Projects)
}

func TestPlanReleasePushAddsRemoteSteps(t *testing.T) {
	c, _ := newTestCoordinator(t, map[string][]string{
		"shared-lib": nil,
		"api":        {"shared-lib"},
	}, &fakeExecutor{})

	plan, err := c.PlanRelease(Spec{
		Project: "shared-lib", Version: "v2.0.0", SourceBranch: "develop", TargetBranch: "main",
		UpdateDependents: true, PushToRemote: true,
	})
	require.NoError(t, err)

	var pushCount int
	for _, s := range plan.Steps {
		if s.Action == "push to remote" {
			pushCount++
		}
	}
	assert.Equal(t, 2, pushCount, "push step expected for the released project and its dependent")
	assert.True(t, plan.Scope.AffectsRemote)
	assert.False(t, plan.Scope.Reversible)
}

func TestPlanReleaseUnknownProject(t *testing.T) {
	c, _ := newTestCoordinator(t, map[string][]string{"api": nil}, &fakeExecutor{})
	_, err := c.PlanRelease(Spec{Project: "ghost", Version: "v1.0.0"})
	require.Error(t, err)
}

func TestExecuteReleaseRecordsMemoryOnSuccess(t *testing.T) {
	exec := &fakeExecutor{outcome: proposal.Outcome{Status: "success"}}
	c, _ := newTestCoordinator(t, map[string][]string{"api": nil}, exec)

	outcome, err := c.ExecuteRelease(context.Background(), Spec{
		Project: "api", Version: "v1.0.0", SourceBranch: "develop", TargetBranch: "main",
	}, true)
	require.NoError(t, err)
	assert.Equal(t, "success", outcome.Status)
	require.NotNil(t, exec.lastPlan)

	entries, err := c.memory.Recent(context.Background(), "release", 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Content, "api v1.0.0 released")
}

func TestExecuteReleaseSkipsMemoryOnFailure(t *testing.T) {
	exec := &fakeExecutor{outcome: proposal.Outcome{Status: "failed", Reason: "merge conflict"}}
	c, _ := newTestCoordinator(t, map[string][]string{"api": nil}, exec)

	outcome, err := c.ExecuteRelease(context.Background(), Spec{
		Project: "api", Version: "v1.0.0", SourceBranch: "develop", TargetBranch: "main",
	}, true)
	require.NoError(t, err)
	assert.Equal(t, "failed", outcome.Status)

	entries, err := c.memory.Recent(context.Background(), "release", 5)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
