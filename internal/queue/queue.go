// Package queue implements the durable, state-machine-enforced work
// queue: task storage, locking, dependencies, audit log, cost ledger,
// and idempotent external-tracker upsert. Single-writer SQLite, all
// writes serialized through one *sql.DB per store.
package queue

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/antigravity-dev/overlord/internal/errs"
)

// Status is the closed set of task lifecycle states.
type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusActive     Status = "active"
	StatusDispatched Status = "dispatched"
	StatusInReview   Status = "in_review"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Priority is the closed set of task priorities.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// transitions is the permitted-transitions table from spec §4.1.
var transitions = map[Status]map[Status]bool{
	StatusBacklog:    {StatusActive: true, StatusFailed: true},
	StatusActive:     {StatusDispatched: true, StatusBacklog: true, StatusFailed: true},
	StatusDispatched: {StatusInReview: true, StatusFailed: true},
	StatusInReview:   {StatusCompleted: true, StatusFailed: true, StatusActive: true},
	StatusFailed:     {StatusBacklog: true},
	StatusCompleted:  {},
}

// Task is the primary work queue entity.
type Task struct {
	ID             string
	Title          string
	Project        string
	Description    string
	Status         Status
	Priority       Priority
	Complexity     string
	ExternalID     sql.NullString
	ExternalSource sql.NullString
	LockedBy       sql.NullString
	LockedAt       sql.NullTime
	RetryCount     int
	MirrorPath     sql.NullString
	TokenBudget    sql.NullInt64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TaskDependency is an unordered (task_id, depends_on_task_id) pair.
type TaskDependency struct {
	TaskID          string
	DependsOnTaskID string
}

// TaskLogEntry is an append-only audit row for a state transition.
type TaskLogEntry struct {
	ID        int64
	TaskID    string
	OldStatus Status
	NewStatus Status
	ChangedBy string
	Timestamp time.Time
	Reason    sql.NullString
}

// ReviewStatus is the closed set of dispatch review outcomes.
type ReviewStatus string

const (
	ReviewPassed  ReviewStatus = "passed"
	ReviewFailed  ReviewStatus = "failed"
	ReviewSkipped ReviewStatus = "skipped"
	ReviewNone    ReviewStatus = ""
)

// DispatchResultRecord is one row per execution attempt.
type DispatchResultRecord struct {
	ID                int64
	TaskID            string
	WorkerID          string
	ModelID           string
	BranchName        string
	MissionBriefPath  string
	ReviewStatus      ReviewStatus
	TokensUsed        int
	UsageStats        map[string]any
	OutputLog         string
	CreatedAt         time.Time
}

// CostLedgerRow is the per-UTC-date cost accumulator.
type CostLedgerRow struct {
	Date              string
	TokensInput       int
	TokensOutput      int
	EstimatedCostUSD  float64
	CeilingUSD        float64
	UpdatedAt         time.Time
}

// Queue is the SQLite-backed work queue.
type Queue struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	external_id TEXT,
	external_source TEXT,
	project TEXT NOT NULL,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'backlog'
		CHECK(status IN ('backlog','active','dispatched','in_review','completed','failed')),
	priority TEXT NOT NULL DEFAULT 'medium'
		CHECK(priority IN ('low','medium','high','critical')),
	complexity TEXT NOT NULL DEFAULT 'medium',
	locked_by TEXT,
	locked_at DATETIME,
	retry_count INTEGER NOT NULL DEFAULT 0,
	mirror_path TEXT,
	token_budget INTEGER,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE(external_id, external_source)
);

CREATE TABLE IF NOT EXISTS task_dependencies (
	task_id TEXT NOT NULL,
	depends_on_task_id TEXT NOT NULL,
	PRIMARY KEY (task_id, depends_on_task_id),
	CHECK(task_id != depends_on_task_id),
	FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE,
	FOREIGN KEY (depends_on_task_id) REFERENCES tasks(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS task_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT NOT NULL,
	old_status TEXT NOT NULL,
	new_status TEXT NOT NULL,
	changed_by TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	reason TEXT,
	FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS dispatch_results (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id TEXT NOT NULL,
	worker_id TEXT NOT NULL,
	model_id TEXT NOT NULL DEFAULT '',
	branch_name TEXT NOT NULL DEFAULT '',
	mission_brief_path TEXT NOT NULL DEFAULT '',
	review_status TEXT NOT NULL DEFAULT '',
	usage_stats TEXT NOT NULL DEFAULT '{}',
	output_log TEXT NOT NULL DEFAULT '',
	tokens_used INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	FOREIGN KEY (task_id) REFERENCES tasks(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS cost_ledger (
	date TEXT PRIMARY KEY,
	tokens_input INTEGER NOT NULL DEFAULT 0,
	tokens_output INTEGER NOT NULL DEFAULT 0,
	estimated_cost_usd REAL NOT NULL DEFAULT 0.0,
	ceiling_usd REAL NOT NULL DEFAULT 0.0,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project);
CREATE INDEX IF NOT EXISTS idx_tasks_external ON tasks(external_id, external_source);
CREATE INDEX IF NOT EXISTS idx_task_log_task_id ON task_log(task_id);
CREATE INDEX IF NOT EXISTS idx_dispatch_results_task_id ON dispatch_results(task_id);
`

// Open opens (or creates) the work queue database at path.
func Open(path string) (*Queue, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("queue: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("queue: enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("queue: set WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("queue: apply schema: %w", err)
	}
	return &Queue{db: db}, nil
}

func (q *Queue) Close() error { return q.db.Close() }

// AddTask creates a task in backlog with retry_count=0.
func (q *Queue) AddTask(title, project, description string, priority Priority, complexity string, tokenBudget *int) (string, error) {
	if priority == "" {
		priority = PriorityMedium
	}
	if complexity == "" {
		complexity = "medium"
	}
	id := uuid.NewString()
	now := time.Now().UTC()
	var budget sql.NullInt64
	if tokenBudget != nil {
		budget = sql.NullInt64{Int64: int64(*tokenBudget), Valid: true}
	}
	_, err := q.db.Exec(
		`INSERT INTO tasks (id, project, title, description, status, priority, complexity, retry_count, token_budget, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
		id, project, title, description, string(StatusBacklog), string(priority), complexity, budget, now, now,
	)
	if err != nil {
		return "", fmt.Errorf("queue: add task: %w", err)
	}
	return id, nil
}

func scanTask(row interface {
	Scan(dest ...any) error
}) (*Task, error) {
	var t Task
	var status, priority string
	if err := row.Scan(
		&t.ID, &t.ExternalID, &t.ExternalSource, &t.Project, &t.Title, &t.Description,
		&status, &priority, &t.Complexity, &t.LockedBy, &t.LockedAt, &t.RetryCount,
		&t.MirrorPath, &t.TokenBudget, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	t.Status = Status(status)
	t.Priority = Priority(priority)
	return &t, nil
}

const taskColumns = `id, external_id, external_source, project, title, description, status, priority, complexity, locked_by, locked_at, retry_count, mirror_path, token_budget, created_at, updated_at`

// GetTask returns a task by id, or nil if not found.
func (q *Queue) GetTask(id string) (*Task, error) {
	row := q.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: get task: %w", err)
	}
	return t, nil
}

// ListTasks returns tasks newest-first, optionally filtered by status and
// project, limited to limit rows (0 = unlimited).
func (q *Queue) ListTasks(status *Status, project string, limit int) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	var args []any
	if status != nil {
		query += ` AND status = ?`
		args = append(args, string(*status))
	}
	if project != "" {
		query += ` AND project = ?`
		args = append(args, project)
	}
	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := q.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("queue: list tasks: %w", err)
	}
	defer rows.Close()
	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("queue: scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Transition enforces the permitted-transitions table atomically with a
// task_log append in the same transaction. retry_count increments only
// on failed -> backlog.
func (q *Queue) Transition(id string, newStatus Status, changedBy string, reason string) error {
	tx, err := q.db.Begin()
	if err != nil {
		return fmt.Errorf("queue: begin transition tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(`SELECT status FROM tasks WHERE id = ?`, id)
	var oldStatusStr string
	if err := row.Scan(&oldStatusStr); err != nil {
		if err == sql.ErrNoRows {
			return &errs.ValidationError{Op: "Transition", Reason: fmt.Sprintf("task %s not found", id)}
		}
		return fmt.Errorf("queue: lookup task for transition: %w", err)
	}
	oldStatus := Status(oldStatusStr)

	allowed, ok := transitions[oldStatus]
	if !ok || !allowed[newStatus] {
		return &errs.ValidationError{Op: "Transition", Reason: fmt.Sprintf("%s -> %s is not a permitted transition", oldStatus, newStatus)}
	}

	retryBump := ""
	if oldStatus == StatusFailed && newStatus == StatusBacklog {
		retryBump = ", retry_count = retry_count + 1"
	}

	if _, err := tx.Exec(
		`UPDATE tasks SET status = ?, updated_at = ?`+retryBump+` WHERE id = ?`,
		string(newStatus), time.Now().UTC(), id,
	); err != nil {
		return fmt.Errorf("queue: update task status: %w", err)
	}

	var reasonVal sql.NullString
	if reason != "" {
		reasonVal = sql.NullString{String: reason, Valid: true}
	}
	if _, err := tx.Exec(
		`INSERT INTO task_log (task_id, old_status, new_status, changed_by, timestamp, reason) VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(oldStatus), string(newStatus), changedBy, time.Now().UTC(), reasonVal,
	); err != nil {
		return fmt.Errorf("queue: append task log: %w", err)
	}

	return tx.Commit()
}

// LockTask acquires mutual exclusion for dispatch. Fails if already locked.
func (q *Queue) LockTask(id, workerID string) error {
	tx, err := q.db.Begin()
	if err != nil {
		return fmt.Errorf("queue: begin lock tx: %w", err)
	}
	defer tx.Rollback()

	var lockedBy sql.NullString
	if err := tx.QueryRow(`SELECT locked_by FROM tasks WHERE id = ?`, id).Scan(&lockedBy); err != nil {
		if err == sql.ErrNoRows {
			return &errs.ValidationError{Op: "LockTask", Reason: fmt.Sprintf("task %s not found", id)}
		}
		return fmt.Errorf("queue: lookup task for lock: %w", err)
	}
	if lockedBy.Valid && lockedBy.String != "" {
		return &errs.LockContentionError{TaskID: id, LockedBy: lockedBy.String}
	}
	if _, err := tx.Exec(`UPDATE tasks SET locked_by = ?, locked_at = ? WHERE id = ?`, workerID, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("queue: set lock: %w", err)
	}
	return tx.Commit()
}

// UnlockTask releases the lock unconditionally.
func (q *Queue) UnlockTask(id string) error {
	_, err := q.db.Exec(`UPDATE tasks SET locked_by = NULL, locked_at = NULL WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("queue: unlock task: %w", err)
	}
	return nil
}

// ReclaimStaleLocks releases locks older than timeout and returns the
// reclaimed task ids. Idempotent: a second call with nothing stale
// returns an empty slice.
func (q *Queue) ReclaimStaleLocks(timeout time.Duration) ([]string, error) {
	cutoff := time.Now().UTC().Add(-timeout)
	rows, err := q.db.Query(`SELECT id FROM tasks WHERE locked_by IS NOT NULL AND locked_at < ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("queue: find stale locks: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()

	for _, id := range ids {
		if err := q.UnlockTask(id); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// GetEligibleForDispatch returns tasks in active, unlocked, with no
// dependency whose status is not completed.
func (q *Queue) GetEligibleForDispatch(project string) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks t WHERE t.status = 'active' AND t.locked_by IS NULL`
	var args []any
	if project != "" {
		query += ` AND t.project = ?`
		args = append(args, project)
	}
	query += ` AND NOT EXISTS (
		SELECT 1 FROM task_dependencies d
		JOIN tasks dt ON dt.id = d.depends_on_task_id
		WHERE d.task_id = t.id AND dt.status != 'completed'
	) ORDER BY t.created_at ASC`

	rows, err := q.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("queue: eligible for dispatch: %w", err)
	}
	defer rows.Close()
	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// AddDependency forbids self-reference and relies on the FK + CHECK
// constraints for the rest.
func (q *Queue) AddDependency(taskID, dependsOnTaskID string) error {
	if taskID == dependsOnTaskID {
		return &errs.ValidationError{Op: "AddDependency", Reason: "a task cannot depend on itself"}
	}
	_, err := q.db.Exec(`INSERT INTO task_dependencies (task_id, depends_on_task_id) VALUES (?, ?)`, taskID, dependsOnTaskID)
	if err != nil {
		return fmt.Errorf("queue: add dependency: %w", err)
	}
	return nil
}

// GetDependencies returns the task ids this task depends on.
func (q *Queue) GetDependencies(taskID string) ([]string, error) {
	rows, err := q.db.Query(`SELECT depends_on_task_id FROM task_dependencies WHERE task_id = ?`, taskID)
	if err != nil {
		return nil, fmt.Errorf("queue: get dependencies: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var dep string
		if err := rows.Scan(&dep); err != nil {
			return nil, err
		}
		out = append(out, dep)
	}
	return out, rows.Err()
}

// GetTaskLog returns the chronological audit trail for a task.
func (q *Queue) GetTaskLog(id string) ([]TaskLogEntry, error) {
	rows, err := q.db.Query(
		`SELECT id, task_id, old_status, new_status, changed_by, timestamp, reason FROM task_log WHERE task_id = ? ORDER BY timestamp ASC, id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("queue: get task log: %w", err)
	}
	defer rows.Close()
	var out []TaskLogEntry
	for rows.Next() {
		var e TaskLogEntry
		var old, newS string
		if err := rows.Scan(&e.ID, &e.TaskID, &old, &newS, &e.ChangedBy, &e.Timestamp, &e.Reason); err != nil {
			return nil, err
		}
		e.OldStatus, e.NewStatus = Status(old), Status(newS)
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecordDispatchResult inserts one execution-attempt row.
func (q *Queue) RecordDispatchResult(rec DispatchResultRecord) (int64, error) {
	stats := rec.UsageStats
	if stats == nil {
		stats = map[string]any{}
	}
	blob, err := json.Marshal(stats)
	if err != nil {
		return 0, fmt.Errorf("queue: marshal usage_stats: %w", err)
	}
	res, err := q.db.Exec(
		`INSERT INTO dispatch_results (task_id, worker_id, model_id, branch_name, mission_brief_path, review_status, usage_stats, output_log, tokens_used, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TaskID, rec.WorkerID, rec.ModelID, rec.BranchName, rec.MissionBriefPath, string(rec.ReviewStatus), string(blob), rec.OutputLog, rec.TokensUsed, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("queue: record dispatch result: %w", err)
	}
	return res.LastInsertId()
}

// GetDispatchResults returns all dispatch attempts for a task, oldest first.
func (q *Queue) GetDispatchResults(taskID string) ([]DispatchResultRecord, error) {
	rows, err := q.db.Query(
		`SELECT id, task_id, worker_id, model_id, branch_name, mission_brief_path, review_status, usage_stats, output_log, tokens_used, created_at
		 FROM dispatch_results WHERE task_id = ? ORDER BY created_at ASC, id ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("queue: get dispatch results: %w", err)
	}
	defer rows.Close()
	var out []DispatchResultRecord
	for rows.Next() {
		var rec DispatchResultRecord
		var review string
		var blob string
		if err := rows.Scan(&rec.ID, &rec.TaskID, &rec.WorkerID, &rec.ModelID, &rec.BranchName, &rec.MissionBriefPath, &review, &blob, &rec.OutputLog, &rec.TokensUsed, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.ReviewStatus = ReviewStatus(review)
		rec.UsageStats = map[string]any{}
		_ = json.Unmarshal([]byte(blob), &rec.UsageStats)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecordTokenUsage accumulates today's (UTC) usage via an atomic UPSERT.
func (q *Queue) RecordTokenUsage(inputTokens, outputTokens int, costUSD, ceilingUSD float64) error {
	date := time.Now().UTC().Format("2006-01-02")
	_, err := q.db.Exec(
		`INSERT INTO cost_ledger (date, tokens_input, tokens_output, estimated_cost_usd, ceiling_usd, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(date) DO UPDATE SET
			tokens_input = tokens_input + excluded.tokens_input,
			tokens_output = tokens_output + excluded.tokens_output,
			estimated_cost_usd = estimated_cost_usd + excluded.estimated_cost_usd,
			ceiling_usd = excluded.ceiling_usd,
			updated_at = excluded.updated_at`,
		date, inputTokens, outputTokens, costUSD, ceilingUSD, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("queue: record token usage: %w", err)
	}
	return nil
}

// GetDailyUsage returns the ledger row for date (YYYY-MM-DD), or a
// zero-valued row if nothing has been recorded yet. Empty date means today.
func (q *Queue) GetDailyUsage(date string) (CostLedgerRow, error) {
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	var row CostLedgerRow
	row.Date = date
	err := q.db.QueryRow(
		`SELECT tokens_input, tokens_output, estimated_cost_usd, ceiling_usd, updated_at FROM cost_ledger WHERE date = ?`, date,
	).Scan(&row.TokensInput, &row.TokensOutput, &row.EstimatedCostUSD, &row.CeilingUSD, &row.UpdatedAt)
	if err == sql.ErrNoRows {
		return row, nil
	}
	if err != nil {
		return row, fmt.Errorf("queue: get daily usage: %w", err)
	}
	return row, nil
}

// CheckBudgetAvailable reports whether today's accumulated cost is below
// ceiling, and the percentage of ceiling consumed. A zero ceiling
// disables the budget check (always available, 0%).
func (q *Queue) CheckBudgetAvailable(ceiling float64) (bool, float64, error) {
	if ceiling <= 0 {
		return true, 0, nil
	}
	row, err := q.GetDailyUsage("")
	if err != nil {
		return false, 0, err
	}
	pct := (row.EstimatedCostUSD / ceiling) * 100
	return row.EstimatedCostUSD < ceiling, pct, nil
}

// priorityFromExternal maps an external tracker label set to a Priority,
// per spec §6: critical|p0 -> critical, high-priority|p1 -> high,
// low-priority|p3 -> low, else -> medium.
func priorityFromExternal(label string) Priority {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "critical", "p0":
		return PriorityCritical
	case "high-priority", "p1":
		return PriorityHigh
	case "low-priority", "p3":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// PriorityFromExternalLabel is the exported form used by tracker sync routines.
func PriorityFromExternalLabel(label string) Priority { return priorityFromExternal(label) }

// UpsertFromGithub creates or updates a task keyed by (external_id,
// external_source), never overwriting status. Returns the task id and
// whether it was newly created.
func (q *Queue) UpsertFromGithub(externalID, externalSource, title, project, description string, priority Priority, tokenBudget *int) (string, bool, error) {
	var existingID string
	err := q.db.QueryRow(`SELECT id FROM tasks WHERE external_id = ? AND external_source = ?`, externalID, externalSource).Scan(&existingID)
	if err == nil {
		now := time.Now().UTC()
		if _, err := q.db.Exec(
			`UPDATE tasks SET title = ?, description = ?, priority = ?, updated_at = ? WHERE id = ?`,
			title, description, string(priority), now, existingID,
		); err != nil {
			return "", false, fmt.Errorf("queue: upsert update: %w", err)
		}
		return existingID, false, nil
	}
	if err != sql.ErrNoRows {
		return "", false, fmt.Errorf("queue: upsert lookup: %w", err)
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	var budget sql.NullInt64
	if tokenBudget != nil {
		budget = sql.NullInt64{Int64: int64(*tokenBudget), Valid: true}
	}
	_, err = q.db.Exec(
		`INSERT INTO tasks (id, external_id, external_source, project, title, description, status, priority, complexity, retry_count, token_budget, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'medium', 0, ?, ?, ?)`,
		id, externalID, externalSource, project, title, description, string(StatusBacklog), string(priority), budget, now, now,
	)
	if err != nil {
		return "", false, fmt.Errorf("queue: upsert insert: %w", err)
	}
	return id, true, nil
}
