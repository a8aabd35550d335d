package planner

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/antigravity-dev/overlord/internal/depgraph"
	"github.com/antigravity-dev/overlord/internal/queue"
)

var (
	mergePattern1 = regexp.MustCompile(`(?i)merge\s+([\w-]+)\s+([\w/-]+)\s+(?:to|into)\s+([\w/-]+)`)
	mergePattern2 = regexp.MustCompile(`(?i)merge\s+([\w/-]+)\s+(?:to|into)\s+([\w/-]+)\s+in\s+([\w-]+)`)
	testSingle    = regexp.MustCompile(`(?i)(?:run\s+)?tests?\s+in\s+([\w-]+)`)
	testAll       = regexp.MustCompile(`(?i)tests?\s+across\s+all`)
	cleanBranches = regexp.MustCompile(`(?i)clean\s+(?:stale\s+)?branches?\s+in\s+([\w\s,and-]+)`)
	updateMulti   = regexp.MustCompile(`(?i)update\s+([\w-]+)\s+in\s+([\w\s,and-]+)`)
	projectSplit  = regexp.MustCompile(`(?i)[,\s]+and\s+|,\s*`)
)

// Parser parses natural language task strings into dispatch plans,
// first-hit-wins over a fixed pattern table. Every Step it produces
// wraps a real work-queue task, since the dispatch engine runs a plan
// by dispatching each step's task ID.
type Parser struct {
	graph *depgraph.Graph
	queue *queue.Queue
}

// New returns a Parser bound to the given dependency graph (used to
// validate project names referenced in the task text) and work queue
// (used to materialize each parsed step as a dispatchable task).
func New(graph *depgraph.Graph, q *queue.Queue) *Parser {
	return &Parser{graph: graph, queue: q}
}

// newStep creates a backlog task for action/project, activates it, and
// returns the Step wrapping its task ID.
func (p *Parser) newStep(action, project string, timeout int) (Step, error) {
	id, err := p.queue.AddTask(action, project, fmt.Sprintf("Dispatched step: %s", action), "", "", nil)
	if err != nil {
		return Step{}, fmt.Errorf("planner: create step task: %w", err)
	}
	if err := p.queue.Transition(id, queue.StatusActive, "planner", "queued by natural-language dispatch"); err != nil {
		return Step{}, fmt.Errorf("planner: activate step task: %w", err)
	}
	return Step{ID: id, Action: action, Project: project, Timeout: timeout}, nil
}

// Parse parses a task string into a DispatchPlan, falling back to a
// single generic step on the first configured project if no specific
// pattern matches.
func (p *Parser) Parse(task string) (*Plan, error) {
	clean := strings.TrimSpace(task)

	if plan, err := p.parseMerge(clean); plan != nil || err != nil {
		return plan, err
	}
	if plan, err := p.parseTestSingle(clean); plan != nil || err != nil {
		return plan, err
	}
	if plan, err := p.parseTestAll(clean); plan != nil || err != nil {
		return plan, err
	}
	if plan, err := p.parseCleanBranches(clean); plan != nil || err != nil {
		return plan, err
	}
	if plan, err := p.parseUpdateMulti(clean); plan != nil || err != nil {
		return plan, err
	}
	return p.parseGeneric(clean)
}

func (p *Parser) validProject(name string) error {
	if !p.graph.Has(name) {
		return fmt.Errorf("planner: unknown project %q", name)
	}
	return nil
}

func (p *Parser) parseMerge(task string) (*Plan, error) {
	var project, source, target string
	if m := mergePattern1.FindStringSubmatch(task); m != nil {
		project, source, target = m[1], m[2], m[3]
	} else if m := mergePattern2.FindStringSubmatch(task); m != nil {
		source, target, project = m[1], m[2], m[3]
	} else {
		return nil, nil
	}
	if err := p.validProject(project); err != nil {
		return nil, err
	}
	step, err := p.newStep(fmt.Sprintf("merge %s to %s", source, target), project, 60)
	if err != nil {
		return nil, err
	}
	scope := ActionScope{
		Projects: []string{project}, Branches: []string{source, target},
		Destructive: false, Reversible: true, AffectsRemote: false, EstimatedImpact: ImpactMedium,
	}
	return &Plan{Task: task, Steps: []Step{step}, Scope: scope, EstimatedDuration: 60, RequiresApproval: true}, nil
}

func (p *Parser) parseTestSingle(task string) (*Plan, error) {
	m := testSingle.FindStringSubmatch(task)
	if m == nil {
		return nil, nil
	}
	project := m[1]
	if err := p.validProject(project); err != nil {
		return nil, err
	}
	step, err := p.newStep("run tests", project, 300)
	if err != nil {
		return nil, err
	}
	scope := ActionScope{Projects: []string{project}, Reversible: true, EstimatedImpact: ImpactLow}
	return &Plan{Task: task, Steps: []Step{step}, Scope: scope, EstimatedDuration: 300, RequiresApproval: false}, nil
}

func (p *Parser) parseTestAll(task string) (*Plan, error) {
	if !testAll.MatchString(task) {
		return nil, nil
	}
	projects := p.graph.Projects()
	steps := make([]Step, 0, len(projects))
	for _, proj := range projects {
		step, err := p.newStep("run tests", proj, 300)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	scope := ActionScope{Projects: projects, Reversible: true, EstimatedImpact: ImpactMedium}
	return &Plan{Task: task, Steps: steps, Scope: scope, EstimatedDuration: 300 * len(projects), RequiresApproval: false}, nil
}

func splitProjectList(raw string) []string {
	var out []string
	for _, p := range projectSplit.Split(raw, -1) {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (p *Parser) parseCleanBranches(task string) (*Plan, error) {
	m := cleanBranches.FindStringSubmatch(task)
	if m == nil {
		return nil, nil
	}
	projects := splitProjectList(m[1])
	for _, proj := range projects {
		if err := p.validProject(proj); err != nil {
			return nil, err
		}
	}
	steps := make([]Step, 0, len(projects))
	for _, proj := range projects {
		step, err := p.newStep("clean stale branches", proj, 120)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	scope := ActionScope{Projects: projects, Destructive: true, Reversible: false, EstimatedImpact: ImpactLow}
	return &Plan{Task: task, Steps: steps, Scope: scope, EstimatedDuration: 120 * len(projects), RequiresApproval: true}, nil
}

func (p *Parser) parseUpdateMulti(task string) (*Plan, error) {
	m := updateMulti.FindStringSubmatch(task)
	if m == nil {
		return nil, nil
	}
	dependency := m[1]
	projects := splitProjectList(m[2])
	if err := p.validProject(dependency); err != nil {
		return nil, err
	}
	for _, proj := range projects {
		if err := p.validProject(proj); err != nil {
			return nil, err
		}
	}
	steps := make([]Step, 0, len(projects))
	for _, proj := range projects {
		step, err := p.newStep("update "+dependency, proj, 180)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	scope := ActionScope{Projects: projects, Reversible: true, EstimatedImpact: ImpactMedium}
	return &Plan{Task: task, Steps: steps, Scope: scope, EstimatedDuration: 180 * len(projects), RequiresApproval: true}, nil
}

func (p *Parser) parseGeneric(task string) (*Plan, error) {
	projects := p.graph.Projects()
	if len(projects) == 0 {
		return nil, fmt.Errorf("planner: no projects configured")
	}
	project := projects[0]
	step, err := p.newStep(task, project, 300)
	if err != nil {
		return nil, err
	}
	step.ModelTier = "cloud-fast"
	scope := ActionScope{Projects: []string{project}, Reversible: true, EstimatedImpact: ImpactMedium}
	return &Plan{Task: task, Steps: []Step{step}, Scope: scope, EstimatedDuration: 300, RequiresApproval: true}, nil
}
