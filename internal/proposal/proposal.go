// Package proposal implements the detect -> propose -> approve/deny ->
// execute lifecycle for actions that Governance has escalated rather
// than auto-approved. Proposals are posted to the chat control plane
// and resolved by a thread reply.
package proposal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-dev/overlord/internal/memory"
	"github.com/antigravity-dev/overlord/internal/planner"
)

// State is the closed set of proposal lifecycle states.
type State string

const (
	StatePending   State = "pending"
	StateApproved  State = "approved"
	StateExecuting State = "executing"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateDenied    State = "denied"
	StateExpired   State = "expired"
)

var resolvedStates = map[State]bool{
	StateCompleted: true,
	StateFailed:    true,
	StateDenied:    true,
	StateExpired:   true,
}

// Proposal is a tracked action awaiting or past a chat-thread decision.
type Proposal struct {
	ID             string
	Task           string
	ScopeProjects  []string
	ScopeImpact    string
	AffectsRemote  bool
	Reason         string
	State          State
	ThreadID       string
	CreatedAt      time.Time
	ResolvedAt     sql.NullTime
	ResultSummary  sql.NullString
}

// IsPending reports whether the proposal still awaits a decision.
func (p Proposal) IsPending() bool { return p.State == StatePending }

// Executor runs an approved plan. It is satisfied by
// internal/dispatcher's plan executor.
type Executor interface {
	Execute(ctx context.Context, plan *planner.Plan, autoApproved bool) (Outcome, error)
}

// Outcome is the result of executing an approved proposal's plan.
type Outcome struct {
	Status string // "success" or "failed"
	Reason string
}

// Notifier posts proposal messages and status updates to the chat
// control plane. A nil Notifier is valid: propose/execute degrade to
// logging only.
type Notifier interface {
	Post(ctx context.Context, text string) (threadID string, err error)
	Reply(ctx context.Context, threadID, text string) error
}

// Store is the SQLite-backed persistence layer for proposals, schema
// grounded on the original's overlord_proposals table.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS overlord_proposals (
	id TEXT PRIMARY KEY,
	task TEXT NOT NULL,
	scope_projects TEXT NOT NULL,
	scope_impact TEXT NOT NULL,
	affects_remote INTEGER NOT NULL DEFAULT 0,
	reason TEXT NOT NULL,
	state TEXT NOT NULL DEFAULT 'pending',
	thread_id TEXT,
	created_at TEXT NOT NULL,
	resolved_at TEXT,
	result_summary TEXT
);
CREATE INDEX IF NOT EXISTS idx_proposals_state ON overlord_proposals(state);
CREATE INDEX IF NOT EXISTS idx_proposals_thread ON overlord_proposals(thread_id);
`

// OpenStore opens (creating if necessary) the proposal store at db.
func OpenStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("proposal: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Save(p Proposal) error {
	_, err := s.db.Exec(
		`INSERT INTO overlord_proposals
		 (id, task, scope_projects, scope_impact, affects_remote, reason, state, thread_id, created_at, resolved_at, result_summary)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   state=excluded.state, thread_id=excluded.thread_id,
		   resolved_at=excluded.resolved_at, result_summary=excluded.result_summary`,
		p.ID, p.Task, strings.Join(p.ScopeProjects, ","), p.ScopeImpact,
		boolToInt(p.AffectsRemote), p.Reason, string(p.State), nullString(p.ThreadID),
		p.CreatedAt.UTC().Format(time.RFC3339), p.ResolvedAt, p.ResultSummary,
	)
	if err != nil {
		return fmt.Errorf("proposal: save: %w", err)
	}
	return nil
}

func (s *Store) Get(id string) (*Proposal, error) {
	row := s.db.QueryRow(`SELECT id, task, scope_projects, scope_impact, affects_remote, reason, state, thread_id, created_at, resolved_at, result_summary FROM overlord_proposals WHERE id = ?`, id)
	return scanProposal(row)
}

func (s *Store) GetByThread(threadID string) (*Proposal, error) {
	row := s.db.QueryRow(`SELECT id, task, scope_projects, scope_impact, affects_remote, reason, state, thread_id, created_at, resolved_at, result_summary FROM overlord_proposals WHERE thread_id = ? AND state = 'pending'`, threadID)
	return scanProposal(row)
}

func (s *Store) ListPending() ([]*Proposal, error) {
	rows, err := s.db.Query(`SELECT id, task, scope_projects, scope_impact, affects_remote, reason, state, thread_id, created_at, resolved_at, result_summary FROM overlord_proposals WHERE state = 'pending' ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("proposal: list pending: %w", err)
	}
	defer rows.Close()
	var out []*Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpdateState(id string, state State, resultSummary string) error {
	var resolvedAt any
	if resolvedStates[state] {
		resolvedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := s.db.Exec(
		`UPDATE overlord_proposals SET state = ?, resolved_at = ?, result_summary = ? WHERE id = ?`,
		string(state), resolvedAt, nullString(resultSummary), id,
	)
	if err != nil {
		return fmt.Errorf("proposal: update state: %w", err)
	}
	return nil
}

// CleanupExpired marks pending proposals older than ttl as expired and
// returns the count affected.
func (s *Store) CleanupExpired(ttl time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-ttl).Format(time.RFC3339)
	res, err := s.db.Exec(
		`UPDATE overlord_proposals SET state = 'expired', resolved_at = ? WHERE state = 'pending' AND created_at < ?`,
		time.Now().UTC().Format(time.RFC3339), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("proposal: cleanup expired: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProposal(row scanner) (*Proposal, error) {
	var p Proposal
	var scopeProjects string
	var affectsRemote int
	var threadID, resolvedAt, resultSummary sql.NullString
	var createdAt string
	if err := row.Scan(&p.ID, &p.Task, &scopeProjects, &p.ScopeImpact, &affectsRemote, &p.Reason, &p.State, &threadID, &createdAt, &resolvedAt, &resultSummary); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("proposal: scan: %w", err)
	}
	if scopeProjects != "" {
		p.ScopeProjects = strings.Split(scopeProjects, ",")
	}
	p.AffectsRemote = affectsRemote != 0
	p.ThreadID = threadID.String
	p.ResultSummary = resultSummary
	if createdAt != "" {
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	}
	if resolvedAt.Valid {
		t, _ := time.Parse(time.RFC3339, resolvedAt.String)
		p.ResolvedAt = sql.NullTime{Time: t, Valid: true}
	}
	return &p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Manager runs the detect -> propose -> approve/deny -> execute cycle.
type Manager struct {
	store    *Store
	executor Executor
	notifier Notifier
	memory   *memory.Log
	log      *slog.Logger

	mu    sync.RWMutex
	plans map[string]*planner.Plan
}

// New constructs a Manager. notifier and mem may be nil.
func New(store *Store, executor Executor, notifier Notifier, mem *memory.Log, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{store: store, executor: executor, notifier: notifier, memory: mem, log: log, plans: map[string]*planner.Plan{}}
}

// Propose creates and persists a proposal, posting it to the chat
// control plane, and returns its id.
func (m *Manager) Propose(ctx context.Context, task string, scope planner.ActionScope, reason string, plan *planner.Plan) (string, error) {
	p := Proposal{
		ID:            uuid.NewString()[:8],
		Task:          task,
		ScopeProjects: scope.Projects,
		ScopeImpact:   string(scope.EstimatedImpact),
		AffectsRemote: scope.AffectsRemote,
		Reason:        reason,
		State:         StatePending,
		CreatedAt:     time.Now().UTC(),
	}

	if plan != nil {
		m.mu.Lock()
		m.plans[p.ID] = plan
		m.mu.Unlock()
	}

	if m.notifier != nil {
		threadID, err := m.notifier.Post(ctx, formatProposalMessage(p))
		if err != nil {
			m.log.Error("post proposal to chat failed", "proposal_id", p.ID, "error", err)
		} else {
			p.ThreadID = threadID
		}
	}

	if err := m.store.Save(p); err != nil {
		return "", err
	}
	m.log.Info("created proposal", "proposal_id", p.ID, "task", task)
	return p.ID, nil
}

// HandleReply interprets a chat thread reply as approve/deny and drives
// the corresponding transition. Returns "" if the reply matched neither
// a known decision word or no pending proposal is bound to threadID.
func (m *Manager) HandleReply(ctx context.Context, threadID, text string) (string, error) {
	p, err := m.store.GetByThread(threadID)
	if err != nil {
		return "", err
	}
	if p == nil {
		return "", nil
	}

	normalized := strings.ToLower(strings.TrimSpace(text))
	switch normalized {
	case "approve", "approved", "yes", "lgtm":
		return m.approve(ctx, p.ID)
	case "deny", "denied", "no", "reject":
		return m.deny(p.ID)
	}
	return "", nil
}

// Resolve approves or denies the proposal identified by id directly
// (the command-router "approve <id>" / "deny <id>" path, as opposed to
// a threaded chat reply). Returns "" if id is unknown or not pending.
func (m *Manager) Resolve(ctx context.Context, id string, approve bool) (string, error) {
	p, err := m.store.Get(id)
	if err != nil {
		return "", err
	}
	if p == nil || !p.IsPending() {
		return "", nil
	}
	if approve {
		return m.approve(ctx, id)
	}
	return m.deny(id)
}

func (m *Manager) approve(ctx context.Context, id string) (string, error) {
	if err := m.store.UpdateState(id, StateApproved, ""); err != nil {
		return "", err
	}
	outcome, err := m.ExecuteApproved(ctx, id)
	if err != nil {
		return "", err
	}
	if outcome == nil {
		return fmt.Sprintf("Proposal %s approved.", id), nil
	}
	if outcome.Status == "success" {
		return fmt.Sprintf("Proposal %s approved and executed successfully.", id), nil
	}
	return fmt.Sprintf("Proposal %s approved but execution failed: %s", id, outcome.Reason), nil
}

func (m *Manager) deny(id string) (string, error) {
	if err := m.store.UpdateState(id, StateDenied, "Denied by user"); err != nil {
		return "", err
	}
	return fmt.Sprintf("Proposal %s denied.", id), nil
}

// ExecuteApproved runs the cached plan for an approved proposal via the
// Executor, recording the resulting state.
func (m *Manager) ExecuteApproved(ctx context.Context, proposalID string) (*Outcome, error) {
	m.mu.RLock()
	plan, ok := m.plans[proposalID]
	m.mu.RUnlock()
	if !ok {
		m.log.Warn("no plan cached for proposal", "proposal_id", proposalID)
		return nil, nil
	}

	if err := m.store.UpdateState(proposalID, StateExecuting, ""); err != nil {
		return nil, err
	}

	outcome, err := m.executor.Execute(ctx, plan, true)
	if err != nil {
		_ = m.store.UpdateState(proposalID, StateFailed, err.Error())
		m.log.Error("proposal execution failed", "proposal_id", proposalID, "error", err)
		return nil, nil
	}

	if outcome.Status == "success" {
		_ = m.store.UpdateState(proposalID, StateCompleted, "Executed successfully")
		if m.memory != nil {
			project := ""
			if len(plan.Scope.Projects) > 0 {
				project = plan.Scope.Projects[0]
			}
			_ = m.memory.Remember(ctx, "decision", fmt.Sprintf("Approved and executed: %s", plan.Task), project)
		}
	} else {
		_ = m.store.UpdateState(proposalID, StateFailed, outcome.Reason)
	}

	if m.notifier != nil {
		if p, err := m.store.Get(proposalID); err == nil && p != nil && p.ThreadID != "" {
			status := fmt.Sprintf("Proposal %s: %s", proposalID, outcome.Status)
			if outcome.Reason != "" {
				status += " — " + outcome.Reason
			}
			if err := m.notifier.Reply(ctx, p.ThreadID, status); err != nil {
				m.log.Error("post proposal status to chat failed", "proposal_id", proposalID, "error", err)
			}
		}
	}

	m.mu.Lock()
	delete(m.plans, proposalID)
	m.mu.Unlock()
	return &outcome, nil
}

// CleanupExpired marks pending proposals older than ttl as expired.
func (m *Manager) CleanupExpired(ttl time.Duration) (int, error) {
	count, err := m.store.CleanupExpired(ttl)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		m.log.Info("expired proposals", "count", count)
	}
	return count, nil
}

// ReconcilePendingProposals reloads pending proposals from the store on
// restart. Plans cached only in memory cannot be recovered, so any
// pending proposal whose plan was lost is reported for operator review.
func (m *Manager) ReconcilePendingProposals() ([]*Proposal, error) {
	pending, err := m.store.ListPending()
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var orphaned []*Proposal
	for _, p := range pending {
		if _, ok := m.plans[p.ID]; !ok {
			orphaned = append(orphaned, p)
		}
	}
	return orphaned, nil
}

func formatProposalMessage(p Proposal) string {
	remote := "local only"
	if p.AffectsRemote {
		remote = "affects remote"
	}
	return fmt.Sprintf(
		"Proposal: %s\n\nScope: %s | %s | estimated: %s\nReason: %s\n\nReply \"approve\" or \"deny\" in this thread.\nAuto-expires in 30 minutes.",
		p.Task, strings.Join(p.ScopeProjects, ", "), remote, p.ScopeImpact, p.Reason,
	)
}
