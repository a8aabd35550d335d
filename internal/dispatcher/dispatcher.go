// Package dispatcher runs the Analyze -> Brief -> Provision -> Execute ->
// Review lifecycle for a single task, plus the plan-level executor that
// walks a Plan's Steps in dependency order.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/antigravity-dev/overlord/internal/brief"
	"github.com/antigravity-dev/overlord/internal/config"
	"github.com/antigravity-dev/overlord/internal/errs"
	"github.com/antigravity-dev/overlord/internal/governance"
	"github.com/antigravity-dev/overlord/internal/mirror"
	"github.com/antigravity-dev/overlord/internal/queue"
	"github.com/antigravity-dev/overlord/internal/worker"
)

// Options adjusts a single dispatch call.
type Options struct {
	DryRun     bool
	WorkerName string
	SkipReview bool
}

// Dispatcher orchestrates task lifecycle transitions, worker selection,
// worktree provisioning, and dispatch-result recording.
type Dispatcher struct {
	Queue      *queue.Queue
	Config     *config.Config
	Mirrors    mirror.Manager
	Workers    *worker.Registry
	Governance *governance.Engine
	log        *slog.Logger
}

// New constructs a Dispatcher.
func New(q *queue.Queue, cfg *config.Config, mirrors mirror.Manager, workers *worker.Registry, gov *governance.Engine, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{Queue: q, Config: cfg, Mirrors: mirrors, Workers: workers, Governance: gov, log: log}
}

// dispatchContext carries the per-dispatch state threaded through the lifecycle
// steps, mirroring the teacher's internal/dispatch process-tracking
// struct shape but scoped to one task instead of one long-lived process.
type dispatchContext struct {
	task         *queue.Task
	project      config.Project
	worker       worker.Worker
	workerName   string
	worktreePath string
	briefPath    string
	model        string
	dryRun       bool
}

// Dispatch runs the full lifecycle for taskID.
func (d *Dispatcher) Dispatch(ctx context.Context, taskID string, opts Options) (queue.DispatchResultRecord, error) {
	task, err := d.Queue.GetTask(taskID)
	if err != nil {
		return queue.DispatchResultRecord{}, err
	}
	if task == nil {
		return queue.DispatchResultRecord{}, &errs.ValidationError{Op: "dispatch", Reason: fmt.Sprintf("task not found: %s", taskID)}
	}
	if task.Status != queue.StatusActive {
		return queue.DispatchResultRecord{}, &errs.ValidationError{Op: "dispatch", Reason: fmt.Sprintf("task %s is %q, expected active", shortID(taskID), task.Status)}
	}

	project, ok := d.Config.Projects[task.Project]
	if !ok {
		return queue.DispatchResultRecord{}, &errs.ValidationError{Op: "dispatch", Reason: fmt.Sprintf("unknown project: %s", task.Project)}
	}

	if d.Governance != nil {
		result, err := d.Governance.PreDispatchCheck(task, project)
		if err != nil {
			return queue.DispatchResultRecord{}, err
		}
		if !result.Approved {
			rule, detail := "governance", "dispatch rejected"
			if len(result.Violations) > 0 {
				rule, detail = result.Violations[0].Rule, result.Violations[0].Message
			}
			return queue.DispatchResultRecord{}, &errs.GovernanceHardBlock{Rule: rule, Detail: detail}
		}
	}

	taskTypeText := task.Title + " " + task.Description
	w, tier, err := d.Workers.Select(opts.WorkerName, taskTypeText, task.Complexity)
	if err != nil {
		return queue.DispatchResultRecord{}, err
	}
	workerName := w.Name()

	if err := d.Queue.LockTask(taskID, workerName); err != nil {
		return queue.DispatchResultRecord{}, err
	}
	defer func() {
		if err := d.Queue.UnlockTask(taskID); err != nil {
			d.log.Error("unlock task failed", "task_id", shortID(taskID), "error", err)
		}
	}()

	if err := d.Queue.Transition(taskID, queue.StatusDispatched, "dispatcher", fmt.Sprintf("Dispatched to worker=%s", workerName)); err != nil {
		return queue.DispatchResultRecord{}, err
	}

	model := ""
	if tier == worker.TierCloudHeavy {
		model = worker.CloudHeavyModel
	}

	dc := &dispatchContext{task: task, project: project, worker: w, workerName: workerName, model: model, dryRun: opts.DryRun}

	worktreePath, err := d.Mirrors.ProvisionWorktree(ctx, task.Project, taskID)
	if err != nil {
		return d.failTask(taskID, dc, nil, fmt.Sprintf("worktree provisioning failed: %v", err))
	}
	dc.worktreePath = worktreePath

	briefPath, err := brief.Generate(task, project, worktreePath)
	if err != nil {
		return d.failTask(taskID, dc, nil, fmt.Sprintf("brief generation failed: %v", err))
	}
	dc.briefPath = briefPath

	var execResult *worker.Result
	if !opts.DryRun {
		res, err := d.executeWorker(ctx, dc)
		if err != nil {
			return d.failTask(taskID, dc, nil, fmt.Sprintf("worker execution error: %v", err))
		}
		execResult = &res
		if !res.Success {
			return d.failTask(taskID, dc, execResult, fmt.Sprintf("worker execution failed: %s", Classify(res.Error)))
		}

		reviewReason := "Execution complete, starting review"
		if opts.SkipReview {
			reviewReason = "Execution complete, review skipped"
		}
		if err := d.Queue.Transition(taskID, queue.StatusInReview, "dispatcher", reviewReason); err != nil {
			return queue.DispatchResultRecord{}, err
		}

		if !opts.SkipReview {
			reviewResult, err := d.runReview(ctx, dc, res)
			if err != nil {
				return d.failTask(taskID, dc, execResult, fmt.Sprintf("review error: %v", err))
			}
			if !reviewResult.Success {
				return d.failTaskWithReview(taskID, dc, execResult, fmt.Sprintf("review failed: %s", reviewResult.Error), queue.ReviewFailed)
			}
		}
	}

	reviewStatus := queue.ReviewPassed
	if opts.DryRun || opts.SkipReview {
		reviewStatus = queue.ReviewSkipped
	}
	modelUsed, output := "", "dry-run"
	if execResult != nil {
		modelUsed, output = execResult.ModelUsed, execResult.Output
	}
	rec := queue.DispatchResultRecord{
		TaskID:           taskID,
		WorkerID:         workerName,
		ModelID:          modelUsed,
		BranchName:       mirror.Branch(taskID),
		MissionBriefPath: briefPath,
		ReviewStatus:     reviewStatus,
		OutputLog:        output,
	}
	if execResult != nil {
		rec.TokensUsed = execResult.TokensTotal
	}
	if _, err := d.Queue.RecordDispatchResult(rec); err != nil {
		return queue.DispatchResultRecord{}, err
	}

	if !opts.DryRun {
		if err := d.Queue.Transition(taskID, queue.StatusCompleted, "dispatcher", "Dispatch completed successfully"); err != nil {
			return queue.DispatchResultRecord{}, err
		}
	}
	return rec, nil
}

func (d *Dispatcher) executeWorker(ctx context.Context, dc *dispatchContext) (worker.Result, error) {
	prompt, err := brief.BuildWorkerPrompt(dc.briefPath)
	if err != nil {
		return worker.Result{}, err
	}
	return dc.worker.Execute(ctx, prompt, dc.worktreePath, dc.task.Complexity, dc.model), nil
}

func (d *Dispatcher) runReview(ctx context.Context, dc *dispatchContext, execResult worker.Result) (worker.Result, error) {
	reviewer, err := d.Workers.SelectReviewer(dc.workerName)
	if err != nil {
		return worker.Result{}, err
	}
	prompt, err := brief.BuildReviewPrompt(dc.briefPath, execResult.Output)
	if err != nil {
		return worker.Result{}, err
	}
	return reviewer.Execute(ctx, prompt, dc.worktreePath, "review", ""), nil
}

func (d *Dispatcher) failTask(taskID string, dc *dispatchContext, execResult *worker.Result, reason string) (queue.DispatchResultRecord, error) {
	return d.failTaskWithReview(taskID, dc, execResult, reason, queue.ReviewNone)
}

func (d *Dispatcher) failTaskWithReview(taskID string, dc *dispatchContext, execResult *worker.Result, reason string, reviewStatus queue.ReviewStatus) (queue.DispatchResultRecord, error) {
	modelUsed, output := "", ""
	if execResult != nil {
		modelUsed, output = execResult.ModelUsed, execResult.Output
	}
	rec := queue.DispatchResultRecord{
		TaskID:           taskID,
		WorkerID:         dc.workerName,
		ModelID:          modelUsed,
		BranchName:       mirror.Branch(taskID),
		MissionBriefPath: dc.briefPath,
		ReviewStatus:     reviewStatus,
		OutputLog:        output,
	}
	if execResult != nil {
		rec.TokensUsed = execResult.TokensTotal
	}
	if _, err := d.Queue.RecordDispatchResult(rec); err != nil {
		return queue.DispatchResultRecord{}, err
	}
	if err := d.Queue.Transition(taskID, queue.StatusFailed, "dispatcher", reason); err != nil {
		return queue.DispatchResultRecord{}, err
	}
	return rec, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
