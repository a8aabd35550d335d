package chatbot

import (
	"context"
	"database/sql"
	"path/filepath"
	"regexp"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/overlord/internal/config"
	"github.com/antigravity-dev/overlord/internal/depgraph"
	"github.com/antigravity-dev/overlord/internal/ecosystem"
	"github.com/antigravity-dev/overlord/internal/governance"
	"github.com/antigravity-dev/overlord/internal/memory"
	"github.com/antigravity-dev/overlord/internal/planner"
	"github.com/antigravity-dev/overlord/internal/proposal"
	"github.com/antigravity-dev/overlord/internal/queue"
	"github.com/antigravity-dev/overlord/internal/release"
)

var reProposalID = regexp.MustCompile("`([^`]+)`")

type fakeExecutor struct {
	outcome proposal.Outcome
	err     error
}

func (f *fakeExecutor) Execute(ctx context.Context, plan *planner.Plan, autoApproved bool) (proposal.Outcome, error) {
	return f.outcome, f.err
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	projectDir := t.TempDir()
	cfg := &config.Config{Projects: map[string]config.Project{"api": {Path: projectDir}}}
	graph := depgraph.New(cfg)
	registry := ecosystem.NewRegistry(cfg, 0)

	q, err := queue.Open(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	parser := planner.New(graph, q)
	gov := governance.New(cfg, q, t.TempDir())

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store, err := proposal.OpenStore(db)
	require.NoError(t, err)

	memDB, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { memDB.Close() })
	mem, err := memory.Open(memDB)
	require.NoError(t, err)

	executor := &fakeExecutor{outcome: proposal.Outcome{Status: "success"}}
	proposals := proposal.New(store, executor, nil, mem, nil)
	releases := release.New(cfg, graph, q, executor, mem)

	return New(cfg, graph, registry, parser, gov, proposals, releases, executor, mem, nil)
}

func TestHandleEmptyTextReturnsHelp(t *testing.T) {
	r := newTestRouter(t)
	reply, err := r.Handle(context.Background(), "", "user1", "")
	require.NoError(t, err)
	assert.Contains(t, reply, "Overlord commands")
}

func TestHandleHelp(t *testing.T) {
	r := newTestRouter(t)
	reply, err := r.Handle(context.Background(), "help", "user1", "")
	require.NoError(t, err)
	assert.Contains(t, reply, "status [project]")
}

func TestHandleGreeting(t *testing.T) {
	r := newTestRouter(t)
	reply, err := r.Handle(context.Background(), "hello", "user1", "")
	require.NoError(t, err)
	assert.Contains(t, reply, "Overlord")
}

func TestHandleUnknownWithoutLLMFallback(t *testing.T) {
	r := newTestRouter(t)
	reply, err := r.Handle(context.Background(), "do a backflip", "user1", "")
	require.NoError(t, err)
	assert.Contains(t, reply, "didn't recognize")
}

func TestHandleStatus(t *testing.T) {
	r := newTestRouter(t)
	reply, err := r.Handle(context.Background(), "status", "user1", "")
	require.NoError(t, err)
	assert.Contains(t, reply, "api")
}

func TestHandleStatusUnknownProjectReportsNoStatus(t *testing.T) {
	r := newTestRouter(t)
	reply, err := r.Handle(context.Background(), "status ghost", "user1", "")
	require.NoError(t, err)
	assert.Contains(t, reply, `No status available for "ghost"`)
}

func TestHandleDispatchMergeCreatesProposal(t *testing.T) {
	r := newTestRouter(t)
	reply, err := r.Handle(context.Background(), "merge api feature/x to main", "user1", "")
	require.NoError(t, err)
	assert.Contains(t, reply, "Proposal")
	assert.Contains(t, reply, "created for approval")
}

func TestHandleDispatchMergeUnknownProject(t *testing.T) {
	r := newTestRouter(t)
	_, err := r.Handle(context.Background(), "merge ghost feature/x to main", "user1", "")
	require.Error(t, err)
}

func TestHandleAutonomyNoArg(t *testing.T) {
	r := newTestRouter(t)
	reply, err := r.Handle(context.Background(), "autonomy", "user1", "")
	require.NoError(t, err)
	assert.Contains(t, reply, "Autonomy: global")
	assert.Contains(t, reply, "api:")
}

func TestHandleAutonomyKnownLevel(t *testing.T) {
	r := newTestRouter(t)
	reply, err := r.Handle(context.Background(), "autonomy cautious", "user1", "")
	require.NoError(t, err)
	assert.Contains(t, reply, "Nothing auto-executes")
}

func TestHandleAutonomyUnknownLevel(t *testing.T) {
	r := newTestRouter(t)
	reply, err := r.Handle(context.Background(), "autonomy bogus", "user1", "")
	require.NoError(t, err)
	assert.Contains(t, reply, "Unknown autonomy level")
}

func TestHandleMemoryNoMatches(t *testing.T) {
	r := newTestRouter(t)
	reply, err := r.Handle(context.Background(), "memory nonexistent-thing", "user1", "")
	require.NoError(t, err)
	assert.Contains(t, reply, "No memories found")
}

func TestHandleMemoryMatches(t *testing.T) {
	r := newTestRouter(t)
	require.NoError(t, r.memory.Remember(context.Background(), "decision", "approved the api release", "api"))

	reply, err := r.Handle(context.Background(), "memory release", "user1", "")
	require.NoError(t, err)
	assert.Contains(t, reply, "Memory results for 'release'")
	assert.Contains(t, reply, "api")
}

func TestHandleApproveUnknownProposal(t *testing.T) {
	r := newTestRouter(t)
	reply, err := r.Handle(context.Background(), "approve doesnotexist", "user1", "")
	require.NoError(t, err)
	assert.Contains(t, reply, "not found or not pending")
}

func TestHandleDenyAfterPropose(t *testing.T) {
	r := newTestRouter(t)
	reply, err := r.Handle(context.Background(), "merge api feature/x to main", "user1", "")
	require.NoError(t, err)

	m := reProposalID.FindStringSubmatch(reply)
	require.NotNil(t, m, "expected reply to contain a proposal id: %s", reply)

	denyReply, err := r.Handle(context.Background(), "deny "+m[1], "user1", "")
	require.NoError(t, err)
	assert.NotContains(t, denyReply, "not found or not pending")
}
