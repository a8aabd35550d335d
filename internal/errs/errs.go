// Package errs defines the closed set of error kinds surfaced by the
// Overlord dispatch and governance substrate. Callers use errors.As to
// recover the concrete kind rather than matching on string content.
package errs

import "fmt"

// ValidationError covers bad transitions, bad enum values, unknown
// projects, duplicate or self dependencies, and missing tasks. Never
// retried automatically.
type ValidationError struct {
	Op     string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Op, e.Reason)
}

// LockContentionError is raised when a task is already locked by another
// worker. Callers may retry after ReclaimStaleLocks.
type LockContentionError struct {
	TaskID   string
	LockedBy string
}

func (e *LockContentionError) Error() string {
	return fmt.Sprintf("lock contention: task %s already locked by %s", e.TaskID, e.LockedBy)
}

// WorkerUnavailable is fatal to the current dispatch: the selected
// worker or the entire fallback chain had no available backend.
type WorkerUnavailable struct {
	Requested string
}

func (e *WorkerUnavailable) Error() string {
	if e.Requested == "" {
		return "worker unavailable: no eligible worker in fallback chain"
	}
	return fmt.Sprintf("worker unavailable: %s", e.Requested)
}

// ExecutionFailure wraps a non-zero exit, timeout, or HTTP error from a
// worker or a direct shell command. Halts the enclosing plan.
type ExecutionFailure struct {
	Step   string
	Reason string
}

func (e *ExecutionFailure) Error() string {
	return fmt.Sprintf("execution failed at %s: %s", e.Step, e.Reason)
}

// GovernanceHardBlock is returned when a hard-block severity violation
// rejects a dispatch.
type GovernanceHardBlock struct {
	Rule   string
	Detail string
}

func (e *GovernanceHardBlock) Error() string {
	return fmt.Sprintf("governance hard-block [%s]: %s", e.Rule, e.Detail)
}

// BudgetExhausted is returned when a dispatch is rejected pre-execution
// because the daily cost ledger has met or exceeded its ceiling.
type BudgetExhausted struct {
	Date    string
	Pct     float64
	Ceiling float64
}

func (e *BudgetExhausted) Error() string {
	return fmt.Sprintf("budget exhausted for %s: %.1f%% of %.2f ceiling", e.Date, e.Pct, e.Ceiling)
}

// CircularDependency is raised by ReleaseOrder and indirectly by
// AddDependency-driven constraints when a cycle is detected.
type CircularDependency struct {
	Cycle []string
}

func (e *CircularDependency) Error() string {
	return fmt.Sprintf("circular dependency detected: %v", e.Cycle)
}

// TransportError wraps a chat or LLM transport failure. Always logged
// and never propagated as a fatal condition to the caller.
type TransportError struct {
	Medium string
	Cause  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error via %s: %v", e.Medium, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }
