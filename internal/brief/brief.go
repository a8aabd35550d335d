// Package brief renders MISSION_BRIEF.md, the document a worker reads
// to learn what it is being asked to do, and wraps it into execution
// and review prompts.
package brief

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/antigravity-dev/overlord/internal/config"
	"github.com/antigravity-dev/overlord/internal/queue"
)

// Filename is the brief's fixed name within a worktree.
const Filename = "MISSION_BRIEF.md"

var briefTemplate = template.Must(template.New("brief").Parse(`# MISSION BRIEF — {{.Title}}

## Objective
{{.Objective}}

## Task Metadata
- **Task ID**: {{.TaskIDShort}}
- **Project**: {{.Project}}
- **Priority**: {{.Priority}}
- **Complexity**: {{.Complexity}}

## Project Context
- **Repository**: {{.Remote}}
- **Role**: {{.Role}}
- **Dependencies**: {{.Dependencies}}

## Constraints
- Do NOT merge any branch into ` + "`develop`" + ` or ` + "`main`" + `
- Do NOT run ` + "`git push`" + ` to any remote
- Work ONLY within this worktree: {{.WorktreePath}}
- Run all tests before marking complete
- Do NOT modify files outside the project scope

## Verification
- [ ] All existing tests pass
- [ ] New code has test coverage
- [ ] No lint errors
- [ ] Changes are committed to a feature branch
`))

type fields struct {
	Title        string
	Objective    string
	TaskIDShort  string
	Project      string
	Priority     string
	Complexity   string
	Remote       string
	Role         string
	Dependencies string
	WorktreePath string
}

// Generate renders and writes MISSION_BRIEF.md into worktreePath,
// returning the full path of the written file.
func Generate(task *queue.Task, project config.Project, worktreePath string) (string, error) {
	if worktreePath == "" {
		return "", fmt.Errorf("brief: worktree path must be set before generating a brief")
	}

	objective := task.Description
	if objective == "" {
		objective = task.Title
	}
	shortID := task.ID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	deps := "none"
	if len(project.DependsOn) > 0 {
		deps = strings.Join(project.DependsOn, ", ")
	}

	f := fields{
		Title:        task.Title,
		Objective:    objective,
		TaskIDShort:  shortID,
		Project:      task.Project,
		Priority:     string(task.Priority),
		Complexity:   task.Complexity,
		Remote:       project.Remote,
		Role:         string(project.Role),
		Dependencies: deps,
		WorktreePath: worktreePath,
	}

	var buf strings.Builder
	if err := briefTemplate.Execute(&buf, f); err != nil {
		return "", fmt.Errorf("brief: render template: %w", err)
	}

	path := filepath.Join(worktreePath, Filename)
	if err := os.WriteFile(path, []byte(buf.String()), 0o644); err != nil {
		return "", fmt.Errorf("brief: write %s: %w", path, err)
	}
	return path, nil
}

// BuildWorkerPrompt reads the brief at briefPath and wraps it as the
// prompt handed to the executing worker.
func BuildWorkerPrompt(briefPath string) (string, error) {
	content, err := os.ReadFile(briefPath)
	if err != nil {
		return "", fmt.Errorf("brief: read %s: %w", briefPath, err)
	}
	return fmt.Sprintf(
		"Read MISSION_BRIEF.md in this directory and execute the task described within. The brief is located at: %s\n\n%s",
		briefPath, string(content),
	), nil
}

// BuildReviewPrompt builds the prompt handed to the reviewing worker
// from the brief and the executor's output.
func BuildReviewPrompt(briefPath, execOutput string) (string, error) {
	content, err := os.ReadFile(briefPath)
	if err != nil {
		return "", fmt.Errorf("brief: read %s: %w", briefPath, err)
	}
	return fmt.Sprintf(
		"Review the following work against the mission brief.\n\n## Mission Brief\n%s\n\n## Execution Output\n%s\n\n## Review Instructions\n1. Verify the objective was met\n2. Check that all constraints were respected\n3. Confirm verification criteria are satisfied\n4. Report any issues found\n",
		string(content), execOutput,
	), nil
}
