package governance

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/overlord/internal/config"
	"github.com/antigravity-dev/overlord/internal/queue"
)

func openTestQueue(t *testing.T) *queue.Queue {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queue.db")
	q, err := queue.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })
	return q
}

func TestCheckRootWorkspaceRejectsProjectAtRoot(t *testing.T) {
	q := openTestQueue(t)
	root := t.TempDir()
	e := New(&config.Config{}, q, root)

	id, err := q.AddTask("t", "proj", "", "", "", nil)
	require.NoError(t, err)
	task, err := q.GetTask(id)
	require.NoError(t, err)

	result, err := e.PreDispatchCheck(task, config.Project{Path: root})
	require.NoError(t, err)
	require.False(t, result.Approved)
	require.Len(t, result.Violations, 1)
	require.Equal(t, "root-workspace", result.Violations[0].Rule)
	require.Equal(t, SeverityHardBlock, result.Violations[0].Severity)
}

func TestCheckRootWorkspaceAllowsSubdirectory(t *testing.T) {
	q := openTestQueue(t)
	root := t.TempDir()
	e := New(&config.Config{}, q, root)

	id, err := q.AddTask("t", "proj", "", "", "", nil)
	require.NoError(t, err)
	task, err := q.GetTask(id)
	require.NoError(t, err)

	result, err := e.PreDispatchCheck(task, config.Project{Path: filepath.Join(root, "proj")})
	require.NoError(t, err)
	require.True(t, result.Approved)
}

func TestCheckConcurrencyBlocksSecondDispatchedTask(t *testing.T) {
	q := openTestQueue(t)
	e := New(&config.Config{}, q, "")

	id1, err := q.AddTask("t1", "proj", "", "", "", nil)
	require.NoError(t, err)
	require.NoError(t, q.Transition(id1, queue.StatusActive, "tester", ""))
	require.NoError(t, q.Transition(id1, queue.StatusDispatched, "tester", ""))

	id2, err := q.AddTask("t2", "proj", "", "", "", nil)
	require.NoError(t, err)
	task2, err := q.GetTask(id2)
	require.NoError(t, err)

	result, err := e.PreDispatchCheck(task2, config.Project{Path: "/elsewhere"})
	require.NoError(t, err)
	require.False(t, result.Approved)
	require.Equal(t, "concurrency", result.Violations[0].Rule)
}

func TestCheckStrategicDriftWarnsWhenNoKeywordMatch(t *testing.T) {
	q := openTestQueue(t)
	cfg := &config.Config{Autonomy: config.Autonomy{StrategicKws: []string{"revenue", "reliability"}}}
	e := New(cfg, q, "")

	id, err := q.AddTask("Refactor unrelated helper", "proj", "cosmetic cleanup", "", "", nil)
	require.NoError(t, err)
	task, err := q.GetTask(id)
	require.NoError(t, err)

	result, err := e.PreDispatchCheck(task, config.Project{Path: "/elsewhere"})
	require.NoError(t, err)
	require.True(t, result.Approved, "a warning-severity violation must not reject")
	require.Len(t, result.Violations, 1)
	require.Equal(t, "strategic-drift", result.Violations[0].Rule)
	require.Equal(t, SeverityWarning, result.Violations[0].Severity)
}

func TestCheckStrategicDriftPassesOnKeywordMatch(t *testing.T) {
	q := openTestQueue(t)
	cfg := &config.Config{Autonomy: config.Autonomy{StrategicKws: []string{"revenue"}}}
	e := New(cfg, q, "")

	id, err := q.AddTask("Improve revenue dashboard", "proj", "", "", "", nil)
	require.NoError(t, err)
	task, err := q.GetTask(id)
	require.NoError(t, err)

	result, err := e.PreDispatchCheck(task, config.Project{Path: "/elsewhere"})
	require.NoError(t, err)
	require.True(t, result.Approved)
	require.Empty(t, result.Violations)
}

func TestCheckConflictDetectsOverlappingFilePaths(t *testing.T) {
	q := openTestQueue(t)
	id1, err := q.AddTask("t1", "proj", "edit internal/api/server.go carefully", "", "", nil)
	require.NoError(t, err)
	task1, err := q.GetTask(id1)
	require.NoError(t, err)

	id2, err := q.AddTask("t2", "proj", "also touches internal/api/server.go", "", "", nil)
	require.NoError(t, err)
	task2, err := q.GetTask(id2)
	require.NoError(t, err)

	v := CheckConflict(task2, []*queue.Task{task1})
	require.NotNil(t, v)
	require.Equal(t, "conflict", v.Rule)
	require.Equal(t, SeverityHardBlock, v.Severity)
}

func TestCheckConflictIgnoresDisjointPaths(t *testing.T) {
	q := openTestQueue(t)
	otherID, err := q.AddTask("t1", "proj", "edit internal/api/server.go", "", "", nil)
	require.NoError(t, err)
	other, err := q.GetTask(otherID)
	require.NoError(t, err)

	mineID, err := q.AddTask("t2", "proj", "edit internal/queue/queue.go", "", "", nil)
	require.NoError(t, err)
	mine, err := q.GetTask(mineID)
	require.NoError(t, err)

	v := CheckConflict(mine, []*queue.Task{other})
	require.Nil(t, v)
}

func TestCheckConflictSkipsItself(t *testing.T) {
	q := openTestQueue(t)
	id, err := q.AddTask("t1", "proj", "edit internal/api/server.go", "", "", nil)
	require.NoError(t, err)
	task, err := q.GetTask(id)
	require.NoError(t, err)

	v := CheckConflict(task, []*queue.Task{task})
	require.Nil(t, v, "a task must never conflict with itself")
}
