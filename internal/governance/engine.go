package governance

import (
	"context"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/antigravity-dev/overlord/internal/config"
	"github.com/antigravity-dev/overlord/internal/queue"
)

// Severity is the closed set of governance violation severities.
type Severity string

const (
	SeverityHardBlock Severity = "hard-block"
	SeverityWarning    Severity = "warning"
)

// Violation is a single governance policy violation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Project  string
}

// Result is the outcome of a pre-dispatch governance check.
type Result struct {
	Approved   bool
	Violations []Violation
}

// Engine runs the deterministic pre-dispatch governance checks.
type Engine struct {
	cfg             *config.Config
	q               *queue.Queue
	workspaceRoot   string
	priorityKeywords []string
}

// New returns a Engine bound to cfg and q, with workspaceRoot used by
// the root-workspace check.
func New(cfg *config.Config, q *queue.Queue, workspaceRoot string) *Engine {
	kws := make([]string, 0, len(cfg.Autonomy.StrategicKws))
	for _, k := range cfg.Autonomy.StrategicKws {
		kws = append(kws, strings.ToLower(k))
	}
	return &Engine{cfg: cfg, q: q, workspaceRoot: workspaceRoot, priorityKeywords: kws}
}

// PreDispatchCheck runs all governance checks before dispatching task.
// Any hard-block violation rejects; warnings annotate without rejecting.
func (e *Engine) PreDispatchCheck(task *queue.Task, project config.Project) (Result, error) {
	var violations []Violation

	if v := e.checkRootWorkspace(project); v != nil {
		violations = append(violations, *v)
	}
	if v, err := e.checkConcurrency(task); err != nil {
		return Result{}, err
	} else if v != nil {
		violations = append(violations, *v)
	}
	if v := e.checkBranchPolicy(task.Project, project); v != nil {
		violations = append(violations, *v)
	}
	if v := e.checkStrategicDrift(task); v != nil {
		violations = append(violations, *v)
	}

	approved := true
	for _, v := range violations {
		if v.Severity == SeverityHardBlock {
			approved = false
			break
		}
	}
	return Result{Approved: approved, Violations: violations}, nil
}

func (e *Engine) checkRootWorkspace(project config.Project) *Violation {
	if e.workspaceRoot == "" {
		return nil
	}
	projPath, err1 := filepath.Abs(project.Path)
	rootPath, err2 := filepath.Abs(e.workspaceRoot)
	if err1 != nil || err2 != nil {
		return nil
	}
	if projPath == rootPath {
		return &Violation{
			Rule:     "root-workspace",
			Severity: SeverityHardBlock,
			Message:  "cannot dispatch to workspace root: the root workspace is protected from autonomous changes",
		}
	}
	return nil
}

func (e *Engine) checkConcurrency(task *queue.Task) (*Violation, error) {
	dispatched := queue.StatusDispatched
	active, err := e.q.ListTasks(&dispatched, task.Project, 0)
	if err != nil {
		return nil, err
	}
	for _, t := range active {
		if t.ID != task.ID {
			return &Violation{
				Rule:     "concurrency",
				Severity: SeverityHardBlock,
				Message:  "project already has a dispatched task in flight; wait for it to complete",
				Project:  task.Project,
			}, nil
		}
	}
	return nil, nil
}

var validBranchPrefixes = []string{"feat/", "fix/", "docs/", "chore/", "develop", "main"}

func (e *Engine) checkBranchPolicy(projectName string, project config.Project) *Violation {
	if project.BranchModel != config.BranchModelDevelopMain {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", "branch", "--show-current")
	cmd.Dir = project.Path
	out, err := cmd.Output()
	if err != nil {
		return nil
	}
	branch := strings.TrimSpace(string(out))
	if branch == "" {
		return nil
	}
	for _, prefix := range validBranchPrefixes {
		if strings.HasPrefix(branch, prefix) {
			return nil
		}
	}
	return &Violation{
		Rule:     "branch-policy",
		Severity: SeverityWarning,
		Message:  "branch '" + branch + "' doesn't follow the expected naming convention (feat/, fix/, docs/, chore/, develop, main)",
		Project:  projectName,
	}
}

func (e *Engine) checkStrategicDrift(task *queue.Task) *Violation {
	if len(e.priorityKeywords) == 0 {
		return nil
	}
	text := strings.ToLower(task.Title + " " + task.Description)
	for _, kw := range e.priorityKeywords {
		if strings.Contains(text, kw) {
			return nil
		}
	}
	return &Violation{
		Rule:     "strategic-drift",
		Severity: SeverityWarning,
		Message:  "task does not match any business priority keyword",
		Project:  task.Project,
	}
}

var filePathPattern = regexp.MustCompile(`[\w./]+\.\w{1,5}`)

func extractFilePatterns(text string) map[string]bool {
	out := map[string]bool{}
	for _, m := range filePathPattern.FindAllString(text, -1) {
		out[strings.Trim(m, "./")] = true
	}
	return out
}

// CheckConflict detects potential file conflicts between task and any
// currently active task, by intersecting extracted file-like path
// tokens from their title+description text.
func CheckConflict(task *queue.Task, activeTasks []*queue.Task) *Violation {
	taskText := task.Description
	if taskText == "" {
		taskText = task.Title
	}
	taskPaths := extractFilePatterns(taskText)
	if len(taskPaths) == 0 {
		taskPaths = extractFilePatterns(task.Title)
	}
	if len(taskPaths) == 0 {
		return nil
	}

	for _, active := range activeTasks {
		if active.ID == task.ID {
			continue
		}
		activePaths := extractFilePatterns(active.Title + " " + active.Description)
		var overlap []string
		for p := range taskPaths {
			if activePaths[p] {
				overlap = append(overlap, p)
			}
		}
		if len(overlap) > 0 {
			sort.Strings(overlap)
			return &Violation{
				Rule:     "conflict",
				Severity: SeverityHardBlock,
				Message:  "potential file conflict with dispatched task " + active.ID[:8] + ": overlapping paths " + strings.Join(overlap, ", "),
				Project:  task.Project,
			}
		}
	}
	return nil
}
