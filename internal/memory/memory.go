// Package memory implements an append-only log of notable events —
// proposal decisions, releases, scheduled-task runs — read back by the
// chat router's history listing and the chat fallback's system prompt.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const schema = `
CREATE TABLE IF NOT EXISTS memory_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	category TEXT NOT NULL,
	content TEXT NOT NULL,
	project TEXT,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memory_category ON memory_entries(category);
CREATE INDEX IF NOT EXISTS idx_memory_created_at ON memory_entries(created_at);
`

// Entry is a single append-only memory row.
type Entry struct {
	ID        int64
	Category  string
	Content   string
	Project   sql.NullString
	CreatedAt time.Time
}

// Log is the append-only memory store.
type Log struct {
	db *sql.DB
}

// Open initializes the memory_entries schema against db.
func Open(db *sql.DB) (*Log, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("memory: init schema: %w", err)
	}
	return &Log{db: db}, nil
}

// Remember appends a new entry. project may be "" for entries not
// scoped to a single project.
func (l *Log) Remember(ctx context.Context, category, content, project string) error {
	var projectArg any
	if project != "" {
		projectArg = project
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO memory_entries (category, content, project, created_at) VALUES (?, ?, ?, ?)`,
		category, content, projectArg, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("memory: remember: %w", err)
	}
	return nil
}

// Search returns the most recent entries whose content contains query
// (case-insensitive), newest first, capped at limit.
func (l *Log) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, category, content, project, created_at FROM memory_entries
		 WHERE content LIKE ? ESCAPE '\' ORDER BY created_at DESC LIMIT ?`,
		"%"+escapeLike(query)+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: search: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Category, &e.Content, &e.Project, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("memory: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Recent returns the most recent n entries, newest first, optionally
// filtered by category ("" for all categories).
func (l *Log) Recent(ctx context.Context, category string, n int) ([]Entry, error) {
	query := `SELECT id, category, content, project, created_at FROM memory_entries WHERE 1=1`
	var args []any
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, n)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Category, &e.Content, &e.Project, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("memory: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
