// Package worker implements the uniform execute(prompt, dir, task_type,
// model) -> Result contract and the four concrete backends: a
// subprocess CLI worker, its Docker-sandboxed variant, an
// OpenAI-compatible HTTP worker, and a native SDK worker. All four share
// the explicit > task-type-override > default model-selection priority.
package worker

import "context"

// Result is what every backend returns from Execute. Transport, timeout,
// and IO errors are mapped to Success=false with a string Error — no
// backend raises across the interface.
type Result struct {
	Success      bool
	Output       string
	Error        string
	DurationSec  float64
	ModelUsed    string
	WorkerType   string
	TokensInput  int
	TokensOutput int
	TokensTotal  int
}

// Worker is the uniform interface every backend implements.
type Worker interface {
	// Execute runs prompt against projectPath, using taskType to select
	// a model override and model (if non-empty) as an explicit override.
	Execute(ctx context.Context, prompt, projectPath, taskType, model string) Result
	// Available reports whether the worker is ready to accept work.
	Available() bool
	// Name is the configured worker name ("claude", "gemini", "local", ...).
	Name() string
}

// SelectModel applies the explicit > task-type override > default
// priority shared by every backend.
func SelectModel(explicit, taskType, defaultModel string, overrides map[string]string) string {
	if explicit != "" {
		return explicit
	}
	if m, ok := overrides[taskType]; ok && m != "" {
		return m
	}
	return defaultModel
}
