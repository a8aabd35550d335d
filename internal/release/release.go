// Package release coordinates a multi-repo release: validate, merge,
// tag, propagate to dependents, and optionally push, as one dependency-
// ordered Plan handed to the dispatch engine.
package release

import (
	"context"
	"fmt"
	"strings"

	"github.com/antigravity-dev/overlord/internal/config"
	"github.com/antigravity-dev/overlord/internal/depgraph"
	"github.com/antigravity-dev/overlord/internal/errs"
	"github.com/antigravity-dev/overlord/internal/memory"
	"github.com/antigravity-dev/overlord/internal/planner"
	"github.com/antigravity-dev/overlord/internal/proposal"
	"github.com/antigravity-dev/overlord/internal/queue"
)

// Spec describes a coordinated release request.
type Spec struct {
	Project          string
	Version          string
	SourceBranch     string
	TargetBranch     string
	UpdateDependents bool
	PushToRemote     bool
}

// Coordinator plans and executes coordinated releases.
type Coordinator struct {
	cfg      *config.Config
	graph    *depgraph.Graph
	queue    *queue.Queue
	executor proposal.Executor
	memory   *memory.Log
}

// New constructs a Coordinator. q is used to materialize each release
// step as a real work-queue task, since the dispatch engine executes
// plan steps by task ID.
func New(cfg *config.Config, graph *depgraph.Graph, q *queue.Queue, executor proposal.Executor, mem *memory.Log) *Coordinator {
	return &Coordinator{cfg: cfg, graph: graph, queue: q, executor: executor, memory: mem}
}

// Validate checks spec for well-formedness, returning every problem
// found rather than stopping at the first. An unknown project is
// reported on its own, without the remaining checks.
func Validate(spec Spec, cfg *config.Config) []string {
	var problems []string
	if _, ok := cfg.Projects[spec.Project]; !ok {
		return append(problems, fmt.Sprintf("unknown project: %s", spec.Project))
	}
	if spec.Version == "" {
		problems = append(problems, "version cannot be empty")
	} else if !strings.HasPrefix(spec.Version, "v") {
		problems = append(problems, "version must start with 'v' (e.g., v0.1.0)")
	}
	if spec.SourceBranch == "" {
		problems = append(problems, "source branch cannot be empty")
	}
	if spec.TargetBranch == "" {
		problems = append(problems, "target branch cannot be empty")
	}
	return problems
}

// newStep materializes a release action as a real work-queue task (in
// backlog, then transitioned to active) and returns the Step wrapping
// its task ID. The dispatch engine runs plan steps by dispatching their
// task ID, so every step needs a corresponding queue row.
func (c *Coordinator) newStep(action, project string, deps []string, timeout int) (planner.Step, error) {
	id, err := c.queue.AddTask(action, project, fmt.Sprintf("Release step: %s", action), queue.PriorityHigh, "medium", nil)
	if err != nil {
		return planner.Step{}, fmt.Errorf("release: create step task: %w", err)
	}
	if err := c.queue.Transition(id, queue.StatusActive, "release", "queued by release coordinator"); err != nil {
		return planner.Step{}, fmt.Errorf("release: activate step task: %w", err)
	}
	return planner.Step{ID: id, Action: action, Project: project, Dependencies: deps, Timeout: timeout}, nil
}

// PlanRelease builds the deterministic step sequence for spec: validate
// tests -> merge -> tag -> update dependents (+ their tests) -> push.
func (c *Coordinator) PlanRelease(spec Spec) (*planner.Plan, error) {
	if _, ok := c.cfg.Projects[spec.Project]; !ok {
		return nil, &errs.ValidationError{Op: "plan_release", Reason: fmt.Sprintf("unknown project: %s", spec.Project)}
	}
	if spec.SourceBranch == "" {
		spec.SourceBranch = "develop"
	}
	if spec.TargetBranch == "" {
		spec.TargetBranch = "main"
	}

	var steps []planner.Step

	validate, err := c.newStep("validate tests", spec.Project, nil, 300)
	if err != nil {
		return nil, err
	}
	steps = append(steps, validate)

	merge, err := c.newStep(fmt.Sprintf("merge %s to %s", spec.SourceBranch, spec.TargetBranch), spec.Project, []string{validate.ID}, 60)
	if err != nil {
		return nil, err
	}
	steps = append(steps, merge)

	tag, err := c.newStep(fmt.Sprintf("tag %s", spec.Version), spec.Project, []string{merge.ID}, 30)
	if err != nil {
		return nil, err
	}
	steps = append(steps, tag)
	tagID := tag.ID

	var dependentTestIDs []string
	var downstream []string
	if spec.UpdateDependents {
		downstream = c.graph.Downstream(spec.Project)
		for _, dep := range downstream {
			update, err := c.newStep(fmt.Sprintf("update %s to %s", spec.Project, spec.Version), dep, []string{tagID}, 120)
			if err != nil {
				return nil, err
			}
			steps = append(steps, update)

			test, err := c.newStep("validate tests", dep, []string{update.ID}, 300)
			if err != nil {
				return nil, err
			}
			steps = append(steps, test)
			dependentTestIDs = append(dependentTestIDs, test.ID)
		}
	}

	if spec.PushToRemote {
		pushDeps := append([]string{tagID}, dependentTestIDs...)
		push, err := c.newStep("push to remote", spec.Project, pushDeps, 60)
		if err != nil {
			return nil, err
		}
		steps = append(steps, push)

		if spec.UpdateDependents {
			for _, dep := range downstream {
				depPush, err := c.newStep("push to remote", dep, []string{push.ID}, 60)
				if err != nil {
					return nil, err
				}
				steps = append(steps, depPush)
			}
		}
	}

	duration := 0
	for _, s := range steps {
		duration += s.Timeout
	}

	affected := c.graph.AffectedBy(spec.Project)
	scope := planner.ActionScope{
		Projects:        affected,
		Branches:        []string{spec.SourceBranch, spec.TargetBranch},
		Destructive:     false,
		Reversible:      !spec.PushToRemote,
		AffectsRemote:   spec.PushToRemote,
		EstimatedImpact: planner.ImpactHigh,
	}

	return &planner.Plan{
		Task:              fmt.Sprintf("Release %s %s", spec.Project, spec.Version),
		Steps:             steps,
		Scope:             scope,
		EstimatedDuration: duration,
		RequiresApproval:  true,
	}, nil
}

// ExecuteRelease plans and runs a release, recording a memory entry on
// success.
func (c *Coordinator) ExecuteRelease(ctx context.Context, spec Spec, autoApprove bool) (proposal.Outcome, error) {
	plan, err := c.PlanRelease(spec)
	if err != nil {
		return proposal.Outcome{}, err
	}

	outcome, err := c.executor.Execute(ctx, plan, autoApprove)
	if err != nil {
		return proposal.Outcome{}, err
	}

	if outcome.Status == "success" && c.memory != nil {
		downstream := []string{}
		if spec.UpdateDependents {
			downstream = c.graph.Downstream(spec.Project)
		}
		content := fmt.Sprintf("%s %s released", spec.Project, spec.Version)
		if len(downstream) > 0 {
			content += fmt.Sprintf(" (downstream updated: %s)", strings.Join(downstream, ", "))
		}
		if spec.PushToRemote {
			content += " (pushed to remote)"
		}
		_ = c.memory.Remember(ctx, "release", content, spec.Project)
	}
	return outcome, nil
}
