// Sandboxed Python script execution.
//
// Information Hiding:
// - Session lifecycle (workspace dir, container) hidden behind Execute
// - Dependency installation internal; failures only logged
// - Timeout handling collapses to a Result, never an error
//
// The executor owns at most one session. A session is provisioned lazily on
// the first Execute, may be reused across calls when keepOpen is true, and
// is always torn down on timeout or provisioning failure. Each executor
// instance is independent; callers needing isolation between attempts create
// one executor per attempt.

package sandbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Result is the outcome of one script execution.
type Result struct {
	Success bool   `json:"success"`
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
}

// Session is an active sandbox: a workspace directory bind-mounted into a
// running container.
type Session struct {
	ID        string
	Workspace string
	Container string
}

// Executor runs Python scripts inside an isolated container session.
type Executor struct {
	runtime        Runtime
	image          string
	execTimeout    time.Duration
	installTimeout time.Duration
	logger         *slog.Logger

	mu      sync.Mutex
	session *Session
}

// NewExecutor creates an executor backed by the given runtime.
func NewExecutor(runtime Runtime, image string, execTimeout, installTimeout time.Duration, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		runtime:        runtime,
		image:          image,
		execTimeout:    execTimeout,
		installTimeout: installTimeout,
		logger:         logger,
	}
}

// Execute runs the given code fragments as one Python script against the
// file manifest. fragments are joined in order, newest last. manifest maps
// file names to host paths; the files are copied into the workspace when the
// session is first provisioned. When keepOpen is true the session survives a
// successful run so later executions see earlier workspace state; on timeout
// or any provisioning error the session is always torn down.
//
// Execution failures are reported in the Result, not as an error: the model
// reads stderr and may self-correct on the next iteration.
func (e *Executor) Execute(ctx context.Context, fragments []string, manifest map[string]string, keepOpen bool) Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session == nil {
		session, err := e.provision(ctx, manifest)
		if err != nil {
			e.logger.Error("sandbox provisioning failed", "error", err)
			e.teardownLocked(ctx)
			return Result{Success: false, Stderr: err.Error()}
		}
		e.session = session
	}

	script := strings.Join(fragments, "\n\n")
	scriptPath := filepath.Join(e.session.Workspace, "script.py")
	if err := os.WriteFile(scriptPath, []byte(script), 0644); err != nil {
		e.teardownLocked(ctx)
		return Result{Success: false, Stderr: fmt.Sprintf("failed to write script: %v", err)}
	}

	e.installDependencies(ctx, script)

	result, err := e.runScript(ctx)
	if err == context.DeadlineExceeded {
		e.logger.Error("script execution timed out", "container", e.session.Container)
		e.teardownLocked(ctx)
		return Result{Success: false, Stderr: "Execution timed out."}
	}
	if err != nil {
		// Runtime transport failure, not a script failure. The session is
		// unusable; tear it down regardless of keepOpen.
		e.logger.Error("sandbox exec failed", "error", err)
		e.teardownLocked(ctx)
		return Result{Success: false, Stderr: err.Error()}
	}

	if !keepOpen {
		e.teardownLocked(ctx)
	}
	return result
}

// Close tears down any active session.
func (e *Executor) Close(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.teardownLocked(ctx)
}

// provision creates a fresh workspace, copies the manifest files into it,
// and starts a container bound to it.
func (e *Executor) provision(ctx context.Context, manifest map[string]string) (*Session, error) {
	workspace, err := os.MkdirTemp("", "sandbox_")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	e.logger.Info("created sandbox workspace", "workspace", workspace)

	for name, path := range manifest {
		if err := copyFile(path, filepath.Join(workspace, name)); err != nil {
			os.RemoveAll(workspace)
			return nil, fmt.Errorf("failed to stage file %s: %w", name, err)
		}
	}

	id := uuid.New().String()[:8]
	container := "sandbox_" + id
	e.logger.Info("starting sandbox container", "container", container, "image", e.image)

	if err := e.runtime.StartSession(ctx, container, workspace, e.image); err != nil {
		os.RemoveAll(workspace)
		return nil, err
	}

	return &Session{ID: id, Workspace: workspace, Container: container}, nil
}

// installDependencies pip-installs the third-party packages the script
// imports. Failures are logged only; the script itself surfaces any
// missing-dependency error.
func (e *Executor) installDependencies(ctx context.Context, script string) {
	packages := ScanImports(script)
	if len(packages) == 0 {
		return
	}
	e.logger.Info("installing script dependencies", "packages", packages)

	installCtx, cancel := context.WithTimeout(ctx, e.installTimeout)
	defer cancel()

	argv := append([]string{"pip", "install", "--no-cache-dir"}, packages...)
	result, err := e.runtime.Exec(installCtx, e.session.Container, argv)
	if err != nil {
		e.logger.Warn("dependency install failed", "error", err)
		return
	}
	if result.ExitCode != 0 {
		e.logger.Warn("dependency install failed", "exit_code", result.ExitCode, "stderr", strings.TrimSpace(result.Stderr))
	}
}

// runScript executes script.py in the session under the execution timeout.
// Returns context.DeadlineExceeded on timeout, other errors on runtime
// transport failure.
func (e *Executor) runScript(ctx context.Context) (Result, error) {
	execCtx, cancel := context.WithTimeout(ctx, e.execTimeout)
	defer cancel()

	result, err := e.runtime.Exec(execCtx, e.session.Container, []string{"python", "script.py"})
	if execCtx.Err() == context.DeadlineExceeded {
		return Result{}, context.DeadlineExceeded
	}
	if err != nil {
		return Result{}, err
	}

	return Result{
		Success: result.ExitCode == 0,
		Stdout:  strings.TrimSpace(result.Stdout),
		Stderr:  strings.TrimSpace(result.Stderr),
	}, nil
}

// teardownLocked removes the container and workspace. Caller must hold the
// lock. Safe to call with no active session.
func (e *Executor) teardownLocked(ctx context.Context) {
	if e.session == nil {
		return
	}
	e.logger.Info("tearing down sandbox session", "container", e.session.Container)

	// Use a fresh context so teardown still runs after a deadline expiry.
	removeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := e.runtime.Remove(removeCtx, e.session.Container); err != nil {
		e.logger.Warn("failed to remove container", "container", e.session.Container, "error", err)
	}
	if err := os.RemoveAll(e.session.Workspace); err != nil {
		e.logger.Warn("failed to remove workspace", "workspace", e.session.Workspace, "error", err)
	}
	e.session = nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
