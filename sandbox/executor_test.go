package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeRuntime records lifecycle calls and returns scripted exec results.
type fakeRuntime struct {
	started    []string
	removed    []string
	workspaces map[string]string
	execCalls  [][]string
	execResult ExecResult
	execDelay  time.Duration
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{workspaces: make(map[string]string)}
}

func (r *fakeRuntime) StartSession(ctx context.Context, name, workspace, image string) error {
	r.started = append(r.started, name)
	r.workspaces[name] = workspace
	return nil
}

func (r *fakeRuntime) Exec(ctx context.Context, name string, argv []string) (ExecResult, error) {
	r.execCalls = append(r.execCalls, argv)
	if r.execDelay > 0 {
		select {
		case <-ctx.Done():
			return ExecResult{}, ctx.Err()
		case <-time.After(r.execDelay):
		}
	}
	return r.execResult, nil
}

func (r *fakeRuntime) Remove(ctx context.Context, name string) error {
	r.removed = append(r.removed, name)
	return nil
}

var _ Runtime = (*fakeRuntime)(nil)

func newTestExecutor(runtime Runtime) *Executor {
	return NewExecutor(runtime, "python:3.11-slim", time.Second, time.Second, nil)
}

func TestExecuteProvisionsSession(t *testing.T) {
	runtime := newFakeRuntime()
	runtime.execResult = ExecResult{Stdout: "4\n"}
	exec := newTestExecutor(runtime)
	defer exec.Close(context.Background())

	result := exec.Execute(context.Background(), []string{"print(2+2)"}, nil, false)
	if !result.Success {
		t.Fatalf("Execute failed: %+v", result)
	}
	if result.Stdout != "4" {
		t.Errorf("Stdout = %q, want %q", result.Stdout, "4")
	}
	if len(runtime.started) != 1 {
		t.Fatalf("containers started = %d, want 1", len(runtime.started))
	}
	if !strings.HasPrefix(runtime.started[0], "sandbox_") {
		t.Errorf("container name = %q, want sandbox_ prefix", runtime.started[0])
	}
}

func TestExecuteStagesManifestFiles(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "data.csv")
	if err := os.WriteFile(src, []byte("a,b\n1,2\n"), 0644); err != nil {
		t.Fatal(err)
	}

	runtime := newFakeRuntime()
	runtime.execResult = ExecResult{}
	exec := newTestExecutor(runtime)
	defer exec.Close(context.Background())

	exec.Execute(context.Background(), []string{"pass"}, map[string]string{"data.csv": src}, false)

	workspace := runtime.workspaces[runtime.started[0]]
	staged, err := os.ReadFile(filepath.Join(workspace, "data.csv"))
	if err != nil {
		t.Fatalf("staged file missing: %v", err)
	}
	if string(staged) != "a,b\n1,2\n" {
		t.Errorf("staged content = %q", staged)
	}
}

func TestExecuteJoinsFragments(t *testing.T) {
	runtime := newFakeRuntime()
	exec := newTestExecutor(runtime)
	defer exec.Close(context.Background())

	exec.Execute(context.Background(), []string{"a = 1", "print(a)"}, nil, true)

	workspace := runtime.workspaces[runtime.started[0]]
	script, err := os.ReadFile(filepath.Join(workspace, "script.py"))
	if err != nil {
		t.Fatalf("script.py missing: %v", err)
	}
	if string(script) != "a = 1\n\nprint(a)" {
		t.Errorf("script = %q", script)
	}
}

func TestExecuteInstallsImports(t *testing.T) {
	runtime := newFakeRuntime()
	exec := newTestExecutor(runtime)
	defer exec.Close(context.Background())

	exec.Execute(context.Background(), []string{"import pandas\nprint(1)"}, nil, false)

	var installCall []string
	for _, call := range runtime.execCalls {
		if len(call) > 0 && call[0] == "pip" {
			installCall = call
		}
	}
	if installCall == nil {
		t.Fatal("no pip install issued for third-party import")
	}
	found := false
	for _, arg := range installCall {
		if arg == "pandas" {
			found = true
		}
	}
	if !found {
		t.Errorf("pip install args = %v, want pandas", installCall)
	}
}

func TestExecuteNoInstallForStdlib(t *testing.T) {
	runtime := newFakeRuntime()
	exec := newTestExecutor(runtime)
	defer exec.Close(context.Background())

	exec.Execute(context.Background(), []string{"import os\nprint(os.getcwd())"}, nil, false)

	for _, call := range runtime.execCalls {
		if len(call) > 0 && call[0] == "pip" {
			t.Fatalf("pip install issued for stdlib-only script: %v", call)
		}
	}
}

func TestExecuteReusesSessionWhenKeptOpen(t *testing.T) {
	runtime := newFakeRuntime()
	exec := newTestExecutor(runtime)
	defer exec.Close(context.Background())

	exec.Execute(context.Background(), []string{"a = 1"}, nil, true)
	exec.Execute(context.Background(), []string{"print(a)"}, nil, true)

	if len(runtime.started) != 1 {
		t.Errorf("containers started = %d, want 1 (session reuse)", len(runtime.started))
	}
	if len(runtime.removed) != 0 {
		t.Errorf("containers removed = %d, want 0 while session open", len(runtime.removed))
	}
}

func TestExecuteTearsDownByDefault(t *testing.T) {
	runtime := newFakeRuntime()
	exec := newTestExecutor(runtime)

	exec.Execute(context.Background(), []string{"pass"}, nil, false)

	if len(runtime.removed) != 1 {
		t.Fatalf("containers removed = %d, want 1", len(runtime.removed))
	}

	// Next execution provisions a fresh session.
	exec.Execute(context.Background(), []string{"pass"}, nil, false)
	if len(runtime.started) != 2 {
		t.Errorf("containers started = %d, want 2", len(runtime.started))
	}
	exec.Close(context.Background())
}

func TestExecuteTimeout(t *testing.T) {
	runtime := newFakeRuntime()
	runtime.execDelay = 5 * time.Second
	exec := NewExecutor(runtime, "python:3.11-slim", 50*time.Millisecond, time.Second, nil)

	result := exec.Execute(context.Background(), []string{"while True: pass"}, nil, true)
	if result.Success {
		t.Fatal("Execute succeeded, want timeout failure")
	}
	if result.Stderr != "Execution timed out." {
		t.Errorf("Stderr = %q, want %q", result.Stderr, "Execution timed out.")
	}
	// Timeout tears down even with keepOpen.
	if len(runtime.removed) != 1 {
		t.Errorf("containers removed = %d, want 1 after timeout", len(runtime.removed))
	}
}

func TestExecuteReportsScriptFailure(t *testing.T) {
	runtime := newFakeRuntime()
	runtime.execResult = ExecResult{ExitCode: 1, Stderr: "Traceback (most recent call last):\nNameError: name 'x' is not defined"}
	exec := newTestExecutor(runtime)
	defer exec.Close(context.Background())

	result := exec.Execute(context.Background(), []string{"print(x)"}, nil, false)
	if result.Success {
		t.Fatal("Execute reported success for failing script")
	}
	if !strings.Contains(result.Stderr, "NameError") {
		t.Errorf("Stderr = %q, want NameError traceback", result.Stderr)
	}
}

func TestCloseRemovesSession(t *testing.T) {
	runtime := newFakeRuntime()
	exec := newTestExecutor(runtime)

	exec.Execute(context.Background(), []string{"pass"}, nil, true)
	exec.Close(context.Background())

	if len(runtime.removed) != 1 {
		t.Errorf("containers removed = %d, want 1 after Close", len(runtime.removed))
	}
	workspace := runtime.workspaces[runtime.started[0]]
	if _, err := os.Stat(workspace); !os.IsNotExist(err) {
		t.Errorf("workspace %s still exists after Close", workspace)
	}
}
