package proposal

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/overlord/internal/memory"
	"github.com/antigravity-dev/overlord/internal/planner"
)

type fakeNotifier struct {
	threadID string
	postErr  error
	posts    []string
	replies  []string
}

func (f *fakeNotifier) Post(ctx context.Context, text string) (string, error) {
	f.posts = append(f.posts, text)
	if f.postErr != nil {
		return "", f.postErr
	}
	return f.threadID, nil
}

func (f *fakeNotifier) Reply(ctx context.Context, threadID, text string) error {
	f.replies = append(f.replies, text)
	return nil
}

type fakeExecutor struct {
	outcome Outcome
	err     error
}

func (f *fakeExecutor) Execute(ctx context.Context, plan *planner.Plan, autoApproved bool) (Outcome, error) {
	return f.outcome, f.err
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store, err := OpenStore(db)
	require.NoError(t, err)
	return store
}

func newTestMemory(t *testing.T) *memory.Log {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mem, err := memory.Open(db)
	require.NoError(t, err)
	return mem
}

func TestProposeSavesAndPostsToChat(t *testing.T) {
	store := newTestStore(t)
	notifier := &fakeNotifier{threadID: "thread-1"}
	m := New(store, &fakeExecutor{}, notifier, nil, nil)

	plan := &planner.Plan{Task: "merge api"}
	id, err := m.Propose(context.Background(), "merge api", planner.ActionScope{Projects: []string{"api"}}, "escalated: medium impact", plan)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Len(t, notifier.posts, 1)
	assert.Contains(t, notifier.posts[0], "merge api")

	p, err := store.Get(id)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, StatePending, p.State)
	assert.Equal(t, "thread-1", p.ThreadID)
}

func TestProposeDegradesGracefullyWithNilNotifier(t *testing.T) {
	store := newTestStore(t)
	m := New(store, &fakeExecutor{}, nil, nil, nil)

	id, err := m.Propose(context.Background(), "run tests", planner.ActionScope{}, "reason", nil)
	require.NoError(t, err)

	p, err := store.Get(id)
	require.NoError(t, err)
	assert.Empty(t, p.ThreadID)
}

func TestHandleReplyApprovesAndExecutes(t *testing.T) {
	store := newTestStore(t)
	notifier := &fakeNotifier{threadID: "thread-1"}
	executor := &fakeExecutor{outcome: Outcome{Status: "success"}}
	mem := newTestMemory(t)
	m := New(store, executor, notifier, mem, nil)

	plan := &planner.Plan{Task: "merge api", Scope: planner.ActionScope{Projects: []string{"api"}}}
	id, err := m.Propose(context.Background(), "merge api", plan.Scope, "reason", plan)
	require.NoError(t, err)

	reply, err := m.HandleReply(context.Background(), "thread-1", "approve")
	require.NoError(t, err)
	assert.Contains(t, reply, "executed successfully")

	p, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, p.State)

	entries, err := mem.Recent(context.Background(), "decision", 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestHandleReplyDenies(t *testing.T) {
	store := newTestStore(t)
	notifier := &fakeNotifier{threadID: "thread-1"}
	m := New(store, &fakeExecutor{}, notifier, nil, nil)

	id, err := m.Propose(context.Background(), "clean branches", planner.ActionScope{}, "reason", nil)
	require.NoError(t, err)

	reply, err := m.HandleReply(context.Background(), "thread-1", "deny")
	require.NoError(t, err)
	assert.Contains(t, reply, "denied")

	p, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StateDenied, p.State)
}

func TestHandleReplyUnknownThreadReturnsEmpty(t *testing.T) {
	store := newTestStore(t)
	m := New(store, &fakeExecutor{}, nil, nil, nil)

	reply, err := m.HandleReply(context.Background(), "no-such-thread", "approve")
	require.NoError(t, err)
	assert.Empty(t, reply)
}

func TestHandleReplyUnrecognizedTextReturnsEmpty(t *testing.T) {
	store := newTestStore(t)
	notifier := &fakeNotifier{threadID: "thread-1"}
	m := New(store, &fakeExecutor{}, notifier, nil, nil)

	_, err := m.Propose(context.Background(), "task", planner.ActionScope{}, "reason", nil)
	require.NoError(t, err)

	reply, err := m.HandleReply(context.Background(), "thread-1", "maybe later")
	require.NoError(t, err)
	assert.Empty(t, reply)
}

func TestResolveByIDApprovesWithoutThread(t *testing.T) {
	store := newTestStore(t)
	executor := &fakeExecutor{outcome: Outcome{Status: "success"}}
	m := New(store, executor, nil, nil, nil)

	plan := &planner.Plan{Task: "update deps"}
	id, err := m.Propose(context.Background(), "update deps", planner.ActionScope{}, "reason", plan)
	require.NoError(t, err)

	reply, err := m.Resolve(context.Background(), id, true)
	require.NoError(t, err)
	assert.Contains(t, reply, "executed successfully")
}

func TestResolveIgnoresAlreadyResolvedProposal(t *testing.T) {
	store := newTestStore(t)
	m := New(store, &fakeExecutor{}, nil, nil, nil)

	id, err := m.Propose(context.Background(), "task", planner.ActionScope{}, "reason", nil)
	require.NoError(t, err)
	_, err = m.Resolve(context.Background(), id, false)
	require.NoError(t, err)

	reply, err := m.Resolve(context.Background(), id, true)
	require.NoError(t, err)
	assert.Empty(t, reply, "an already-denied proposal must not be resolved again")
}

func TestExecuteApprovedFailureMarksFailed(t *testing.T) {
	store := newTestStore(t)
	notifier := &fakeNotifier{threadID: "thread-1"}
	executor := &fakeExecutor{outcome: Outcome{Status: "failed", Reason: "merge conflict"}}
	m := New(store, executor, notifier, nil, nil)

	plan := &planner.Plan{Task: "merge api"}
	id, err := m.Propose(context.Background(), "merge api", planner.ActionScope{}, "reason", plan)
	require.NoError(t, err)

	reply, err := m.HandleReply(context.Background(), "thread-1", "approved")
	require.NoError(t, err)
	assert.Contains(t, reply, "execution failed")

	p, err := store.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StateFailed, p.State)
	require.Len(t, notifier.replies, 1)
	assert.Contains(t, notifier.replies[0], "failed")
}

func TestExecuteApprovedMissingPlanReturnsNilOutcome(t *testing.T) {
	store := newTestStore(t)
	m := New(store, &fakeExecutor{}, nil, nil, nil)

	outcome, err := m.ExecuteApproved(context.Background(), "no-such-proposal")
	require.NoError(t, err)
	assert.Nil(t, outcome)
}

func TestReconcilePendingProposalsFlagsOrphans(t *testing.T) {
	store := newTestStore(t)
	m := New(store, &fakeExecutor{}, nil, nil, nil)

	_, err := m.Propose(context.Background(), "task without plan", planner.ActionScope{}, "reason", nil)
	require.NoError(t, err)
	_, err = m.Propose(context.Background(), "task with plan", planner.ActionScope{}, "reason", &planner.Plan{Task: "task with plan"})
	require.NoError(t, err)

	orphaned, err := m.ReconcilePendingProposals()
	require.NoError(t, err)
	require.Len(t, orphaned, 1)
	assert.Equal(t, "task without plan", orphaned[0].Task)
}

func TestCleanupExpiredMarksOldPendingProposals(t *testing.T) {
	store := newTestStore(t)
	p := Proposal{ID: "test-id", Task: "old task", State: StatePending, CreatedAt: time.Now().UTC().Add(-time.Hour)}
	require.NoError(t, store.Save(p))

	count, err := store.CleanupExpired(time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := store.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, StateExpired, got.State)
}
