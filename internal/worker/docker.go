package worker

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

// Docker is the sandboxed variant of the Subprocess worker: it runs the
// worker's CLI binary inside a container instead of directly via
// os/exec, so a misbehaving worker cannot touch the host filesystem
// outside the mounted worktree.
type Docker struct {
	name           string
	image          string
	binaryPath     string
	defaultModel   string
	modelOverrides map[string]string
	timeout        time.Duration
	cli            *client.Client
}

// NewDocker returns a Docker worker. image is the container image that
// bundles binaryPath. The Docker client is nil if it cannot be built
// from the environment; Available then reports false, as it does when
// the daemon does not answer a ping.
func NewDocker(name, image, binaryPath, defaultModel string, overrides map[string]string, timeout time.Duration) *Docker {
	cli, _ := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	return &Docker{name: name, image: image, binaryPath: binaryPath, defaultModel: defaultModel, modelOverrides: overrides, timeout: timeout, cli: cli}
}

func (d *Docker) Name() string { return d.name }

func (d *Docker) Available() bool {
	if d.cli == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := d.cli.Ping(ctx)
	return err == nil
}

func (d *Docker) Execute(ctx context.Context, prompt, projectPath, taskType, model string) Result {
	selected := SelectModel(model, taskType, d.defaultModel, d.modelOverrides)

	timeout := d.timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	resp, err := d.cli.ContainerCreate(execCtx, &container.Config{
		Image:      d.image,
		Cmd:        []string{d.binaryPath, "-p", prompt, "--model", selected, "--print"},
		WorkingDir: "/workspace",
	}, &container.HostConfig{
		Mounts: []mount.Mount{{Type: mount.TypeBind, Source: projectPath, Target: "/workspace"}},
	}, nil, nil, "")
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("create container: %v", err), DurationSec: time.Since(start).Seconds(), ModelUsed: selected, WorkerType: d.name}
	}
	defer d.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})

	if err := d.cli.ContainerStart(execCtx, resp.ID, container.StartOptions{}); err != nil {
		return Result{Success: false, Error: fmt.Sprintf("start container: %v", err), DurationSec: time.Since(start).Seconds(), ModelUsed: selected, WorkerType: d.name}
	}

	statusCh, errCh := d.cli.ContainerWait(execCtx, resp.ID, container.WaitConditionNotRunning)
	var exitCode int64
	select {
	case err := <-errCh:
		if err != nil {
			return Result{Success: false, Error: fmt.Sprintf("wait container: %v", err), DurationSec: time.Since(start).Seconds(), ModelUsed: selected, WorkerType: d.name}
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	}

	logs, err := d.cli.ContainerLogs(context.Background(), resp.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	var stdout, stderr bytes.Buffer
	if err == nil {
		defer logs.Close()
		_, _ = stdcopy.StdCopy(&stdout, &stderr, logs)
	}

	duration := time.Since(start).Seconds()
	if exitCode != 0 {
		return Result{Success: false, Error: stderr.String(), DurationSec: duration, ModelUsed: selected, WorkerType: d.name}
	}
	return Result{Success: true, Output: stdout.String(), DurationSec: duration, ModelUsed: selected, WorkerType: d.name}
}
