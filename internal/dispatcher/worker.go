package dispatcher

import (
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// TaskQueue is the Temporal task queue Overlord's plan-execution worker
// polls.
const TaskQueue = "overlord-plan-queue"

// StartWorker connects to the local Temporal server and runs a worker
// that executes PlanWorkflow, so a durable multi-step plan (a release
// or a multi-project dispatch) survives a process restart mid-run.
func StartWorker(hostPort string, d *Dispatcher) error {
	if hostPort == "" {
		hostPort = "127.0.0.1:7233"
	}
	c, err := client.Dial(client.Options{HostPort: hostPort})
	if err != nil {
		return fmt.Errorf("dispatcher: connect to temporal at %s: %w", hostPort, err)
	}
	defer c.Close()

	w := worker.New(c, TaskQueue, worker.Options{})

	sa := &StepActivities{Dispatcher: d}
	w.RegisterWorkflow(PlanWorkflow)
	w.RegisterActivity(sa.DispatchStepActivity)

	return w.Run(worker.InterruptCh())
}
