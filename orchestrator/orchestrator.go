// Package orchestrator drives the iterative analysis loop across providers.
//
// One request runs provider attempts sequentially in a fixed configured
// order. Each attempt owns a private sandbox session, a bounded iteration
// counter, and a wall-clock deadline; the first attempt to produce a final
// answer wins. There is no scoring or comparison across providers.
//
// Information Hiding:
// - Prompt construction internal to this package
// - Attempt state (history, iteration count, deadline) never escapes
// - Providers seen only through the ProviderClient interface

package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/okoro/datalyst/parser"
	"github.com/okoro/datalyst/sandbox"
)

// ProviderClient is one provider behind its resilience wrapper.
type ProviderClient interface {
	// Name returns the provider name.
	Name() string

	// Invoke sends a prompt and returns the raw response text.
	Invoke(ctx context.Context, prompt string) (string, error)
}

// CodeRunner executes scripts inside a sandbox session.
type CodeRunner interface {
	Execute(ctx context.Context, fragments []string, manifest map[string]string, keepOpen bool) sandbox.Result
	Close(ctx context.Context)
}

// ExecutorFactory provisions a fresh CodeRunner for one attempt, so
// workspace state never leaks across attempts or concurrent requests.
type ExecutorFactory func() CodeRunner

// Result is the outcome of a full request. Absent fields are omitted from
// the JSON encoding.
type Result struct {
	Success     bool   `json:"success"`
	FinalAnswer any    `json:"final_answer,omitempty"`
	APIUsed     string `json:"api_used,omitempty"`
	Iterations  int    `json:"iterations,omitempty"`
	Error       string `json:"error,omitempty"`
}

// IterationRecord captures one code-running iteration of an attempt.
type IterationRecord struct {
	Iteration int
	RawOutput string
	Execution sandbox.Result
}

func (r IterationRecord) String() string {
	return fmt.Sprintf("Iteration %d\nModel output:\n%s\n\nExecution Results:\nsuccess=%t stdout=%q stderr=%q\n",
		r.Iteration, r.RawOutput, r.Execution.Success, r.Execution.Stdout, r.Execution.Stderr)
}

// Orchestrator runs the feedback loop.
type Orchestrator struct {
	clients       []ProviderClient
	newExecutor   ExecutorFactory
	maxIterations int
	budget        time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// New creates an orchestrator over an ordered provider list.
func New(clients []ProviderClient, newExecutor ExecutorFactory, maxIterations int, budget time.Duration, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		clients:       clients,
		newExecutor:   newExecutor,
		maxIterations: maxIterations,
		budget:        budget,
		logger:        logger,
		now:           time.Now,
	}
}

// WithClock overrides the time source. Used by tests to control the budget.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Run answers a question against the staged file manifest. Providers are
// tried in order; the first successful attempt wins.
func (o *Orchestrator) Run(ctx context.Context, question string, manifest map[string]string) Result {
	files := make([]string, 0, len(manifest))
	for name := range manifest {
		files = append(files, name)
	}
	initialPrompt := BuildInitialPrompt(question, files)

	for _, client := range o.clients {
		o.logger.Info("trying provider", "provider", client.Name())

		result := o.runAttempt(ctx, client, initialPrompt, manifest)
		if result.Success {
			return result
		}
		o.logger.Info("provider attempt failed", "provider", client.Name(), "error", result.Error)
	}

	names := make([]string, 0, len(o.clients))
	for _, client := range o.clients {
		names = append(names, client.Name())
	}
	return Result{
		Success: false,
		Error:   fmt.Sprintf("All APIs (%s) failed to provide a response", strings.Join(names, ", ")),
	}
}

// runAttempt drives the feedback loop for a single provider. The attempt
// owns its sandbox session and tears it down on exit.
func (o *Orchestrator) runAttempt(ctx context.Context, client ProviderClient, initialPrompt string, manifest map[string]string) Result {
	exec := o.newExecutor()
	defer exec.Close(ctx)

	var history []string
	currentPrompt := initialPrompt
	deadline := o.now().Add(o.budget)

	for iteration := 1; iteration <= o.maxIterations; iteration++ {
		if !o.now().Before(deadline) {
			return Result{Success: false, Error: fmt.Sprintf("global deadline exceeded for %s", client.Name())}
		}

		output, err := client.Invoke(ctx, currentPrompt)
		if err != nil {
			// Retry already happened inside the client; advance to the
			// next provider.
			return Result{Success: false, Error: fmt.Sprintf("%s: %v", client.Name(), err)}
		}

		parsed := parser.Parse(output)
		o.logger.Debug("parsed response", "provider", client.Name(), "iteration", iteration, "kind", parsed.Kind)

		switch {
		case parsed.Kind == parser.KindFinalAnswer:
			return Result{
				Success:     true,
				FinalAnswer: parsed.Value,
				APIUsed:     client.Name(),
				Iterations:  iteration,
			}

		case parsed.Kind == parser.KindCode && len(parsed.CodeBlocks) > 0:
			o.logger.Info("executing code blocks", "provider", client.Name(), "iteration", iteration, "blocks", len(parsed.CodeBlocks))
			execResult := exec.Execute(ctx, parsed.CodeBlocks, manifest, true)

			record := IterationRecord{Iteration: iteration, RawOutput: output, Execution: execResult}
			history = append(history, record.String())
			currentPrompt = BuildFeedbackPrompt(initialPrompt, history)

		default:
			currentPrompt = BuildContinuationPrompt(initialPrompt, output)
		}
	}

	return Result{
		Success: false,
		Error:   fmt.Sprintf("maximum iterations (%d) reached for %s", o.maxIterations, client.Name()),
	}
}
