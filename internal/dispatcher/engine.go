package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/antigravity-dev/overlord/internal/planner"
	"github.com/antigravity-dev/overlord/internal/proposal"
	"github.com/antigravity-dev/overlord/internal/queue"
)

// Engine executes a Plan's Steps, honoring each Step's Dependencies, and
// satisfies proposal.Executor so approved proposals run through the
// same lifecycle as directly-dispatched tasks.
type Engine struct {
	dispatcher *Dispatcher
}

// NewEngine wraps a Dispatcher as a plan-level Executor.
func NewEngine(d *Dispatcher) *Engine {
	return &Engine{dispatcher: d}
}

// Execute runs every step of plan in dependency order, stopping at the
// first step failure. autoApproved steps skip the review stage.
func (e *Engine) Execute(ctx context.Context, plan *planner.Plan, autoApproved bool) (proposal.Outcome, error) {
	order, err := topoOrderSteps(plan.Steps)
	if err != nil {
		return proposal.Outcome{Status: "failed", Reason: err.Error()}, nil
	}

	for _, step := range order {
		opts := Options{SkipReview: autoApproved}
		if _, err := e.dispatcher.Dispatch(ctx, step.ID, opts); err != nil {
			return proposal.Outcome{Status: "failed", Reason: fmt.Sprintf("step %s (%s): %v", step.ID, step.Action, err)}, nil
		}
		if task, err := e.dispatcher.Queue.GetTask(step.ID); err == nil && task != nil && task.Status == queue.StatusFailed {
			return proposal.Outcome{Status: "failed", Reason: fmt.Sprintf("step %s (%s): task ended in %s state", step.ID, step.Action, task.Status)}, nil
		}
	}
	return proposal.Outcome{Status: "success"}, nil
}

// topoOrderSteps returns plan steps ordered so each step's Dependencies
// precede it, using the same Kahn's-algorithm shape as internal/depgraph.
func topoOrderSteps(steps []planner.Step) ([]planner.Step, error) {
	byID := make(map[string]planner.Step, len(steps))
	indegree := make(map[string]int, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
		if _, ok := indegree[s.ID]; !ok {
			indegree[s.ID] = 0
		}
	}
	dependents := make(map[string][]string)
	for _, s := range steps {
		for _, dep := range s.Dependencies {
			dependents[dep] = append(dependents[dep], s.ID)
			indegree[s.ID]++
		}
	}

	var ready []string
	for _, s := range steps {
		if indegree[s.ID] == 0 {
			ready = append(ready, s.ID)
		}
	}

	var order []planner.Step
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, byID[id])
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) != len(steps) {
		return nil, fmt.Errorf("dispatcher: plan has a circular step dependency")
	}
	return order, nil
}

// PlanWorkflow is the durable Temporal substrate for plan execution,
// grounded on the teacher's DispatcherWorkflow: each step runs as a
// StepActivity with its own retry policy instead of an in-process loop,
// so a crashed worker resumes mid-plan rather than restarting it.
func PlanWorkflow(ctx workflow.Context, plan planner.Plan) (proposal.Outcome, error) {
	order, err := topoOrderSteps(plan.Steps)
	if err != nil {
		return proposal.Outcome{Status: "failed", Reason: err.Error()}, nil
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
	actCtx := workflow.WithActivityOptions(ctx, ao)

	var sa *StepActivities
	for _, step := range order {
		var res proposal.Outcome
		if err := workflow.ExecuteActivity(actCtx, sa.DispatchStepActivity, step.ID).Get(ctx, &res); err != nil {
			return proposal.Outcome{Status: "failed", Reason: fmt.Sprintf("step %s (%s): %v", step.ID, step.Action, err)}, nil
		}
		if res.Status != "success" {
			return res, nil
		}
	}
	return proposal.Outcome{Status: "success"}, nil
}

// StepActivities holds the Dispatcher dependency for the Temporal
// activity that dispatches a single plan step.
type StepActivities struct {
	Dispatcher *Dispatcher
}

// DispatchStepActivity dispatches the task identified by taskID through
// the full Analyze->Brief->Provision->Execute->Review lifecycle.
func (sa *StepActivities) DispatchStepActivity(ctx context.Context, taskID string) (proposal.Outcome, error) {
	activity.RecordHeartbeat(ctx, "dispatching "+taskID)
	if _, err := sa.Dispatcher.Dispatch(ctx, taskID, Options{}); err != nil {
		return proposal.Outcome{Status: "failed", Reason: err.Error()}, nil
	}
	if task, err := sa.Dispatcher.Queue.GetTask(taskID); err == nil && task != nil && task.Status == queue.StatusFailed {
		return proposal.Outcome{Status: "failed", Reason: fmt.Sprintf("task %s ended in %s state", taskID, task.Status)}, nil
	}
	return proposal.Outcome{Status: "success"}, nil
}
