package worker

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"time"
)

// Subprocess is the subprocess CLI backend: it invokes an installed
// native binary shaped as `<binary> -p <prompt> --model <model> --print`.
type Subprocess struct {
	name           string
	binaryPath     string
	defaultModel   string
	modelOverrides map[string]string
	timeout        time.Duration
}

// NewSubprocess returns a Subprocess worker. It is available iff the
// configured binary resolves on PATH.
func NewSubprocess(name, binaryPath, defaultModel string, overrides map[string]string, timeout time.Duration) *Subprocess {
	return &Subprocess{name: name, binaryPath: binaryPath, defaultModel: defaultModel, modelOverrides: overrides, timeout: timeout}
}

func (s *Subprocess) Name() string { return s.name }

func (s *Subprocess) Available() bool {
	if s.binaryPath == "" {
		return false
	}
	_, err := exec.LookPath(s.binaryPath)
	return err == nil
}

func (s *Subprocess) Execute(ctx context.Context, prompt, projectPath, taskType, model string) Result {
	selected := SelectModel(model, taskType, s.defaultModel, s.modelOverrides)

	timeout := s.timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, s.binaryPath, "-p", prompt, "--model", selected, "--print")
	if info, err := os.Stat(projectPath); err == nil && info.IsDir() {
		cmd.Dir = projectPath
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start).Seconds()

	if err != nil {
		return Result{
			Success:     false,
			Error:       errString(err, stderr.String()),
			DurationSec: duration,
			ModelUsed:   selected,
			WorkerType:  s.name,
		}
	}
	return Result{
		Success:     true,
		Output:      stdout.String(),
		DurationSec: duration,
		ModelUsed:   selected,
		WorkerType:  s.name,
	}
}

func errString(err error, stderr string) string {
	if stderr != "" {
		return stderr
	}
	return err.Error()
}
