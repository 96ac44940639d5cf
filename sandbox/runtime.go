// Container runtime abstraction for sandboxed script execution.
//
// Information Hiding:
// - Docker CLI invocation details hidden behind the Runtime interface
// - Container lifecycle verbs exposed as start/exec/remove
// - Tests substitute a fake Runtime; no Docker daemon required

package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ExecResult captures the output of a command run inside a container.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runtime drives an external container runtime through its lifecycle verbs.
type Runtime interface {
	// StartSession starts a detached container with the workspace mounted
	// read/write at /workspace.
	StartSession(ctx context.Context, name, workspace, image string) error

	// Exec runs argv inside a running container and captures its output.
	Exec(ctx context.Context, name string, argv []string) (ExecResult, error)

	// Remove stops and removes a container. Idempotent.
	Remove(ctx context.Context, name string) error
}

// DockerRuntime implements Runtime using the docker CLI.
type DockerRuntime struct{}

// NewDockerRuntime creates a docker CLI backed runtime.
func NewDockerRuntime() *DockerRuntime {
	return &DockerRuntime{}
}

// StartSession runs a detached container with the workspace bind-mounted.
func (r *DockerRuntime) StartSession(ctx context.Context, name, workspace, image string) error {
	cmd := exec.CommandContext(ctx, "docker", "run", "-dit",
		"--name", name,
		"-v", fmt.Sprintf("%s:/workspace", workspace),
		"-w", "/workspace",
		"--network", "bridge",
		image,
		"bash",
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to start container %s: %w\noutput: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Exec runs a command inside the container.
func (r *DockerRuntime) Exec(ctx context.Context, name string, argv []string) (ExecResult, error) {
	args := append([]string{"exec", name}, argv...)
	cmd := exec.CommandContext(ctx, "docker", args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := ExecResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("failed to exec in container %s: %w", name, err)
	}
	return result, nil
}

// Remove stops and removes the container. Errors from an already-removed
// container are ignored.
func (r *DockerRuntime) Remove(ctx context.Context, name string) error {
	stop := exec.CommandContext(ctx, "docker", "stop", name)
	_ = stop.Run()

	rm := exec.CommandContext(ctx, "docker", "rm", name)
	_ = rm.Run()
	return nil
}

// Verify DockerRuntime implements Runtime
var _ Runtime = (*DockerRuntime)(nil)
