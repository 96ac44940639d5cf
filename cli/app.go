// Package cli wires configuration, providers, cache, sandbox, and the
// orchestrator into runnable commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/okoro/datalyst/cache"
	"github.com/okoro/datalyst/config"
	"github.com/okoro/datalyst/llm"
	"github.com/okoro/datalyst/orchestrator"
	"github.com/okoro/datalyst/sandbox"
	"github.com/okoro/datalyst/server"
)

// Options holds global CLI options.
type Options struct {
	Verbose bool

	// Host and Port override the environment-configured listen address
	// when set (serve mode only).
	Host string
	Port int
}

// engine bundles the wired components for one process.
type engine struct {
	settings     config.Settings
	store        cache.Store
	orchestrator *orchestrator.Orchestrator
	logger       *slog.Logger
}

// newEngine builds the full stack from environment configuration.
// Providers whose API keys are missing are skipped with a warning; at least
// one configured provider must be usable.
func newEngine(opts Options) (*engine, error) {
	settings, err := config.New()
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	store, err := cache.OpenSqlite(settings.Cache.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	clients := make([]orchestrator.ProviderClient, 0, len(settings.LLM.ProviderOrder))
	for _, name := range settings.LLM.ProviderOrder {
		apiKey, err := config.APIKeyFor(name)
		if err != nil {
			logger.Warn("skipping provider", "provider", name, "reason", err)
			continue
		}
		model, err := config.ModelFor(name)
		if err != nil {
			store.Close()
			return nil, err
		}

		providerType, err := llm.ParseProviderType(name)
		if err != nil {
			store.Close()
			return nil, err
		}
		provider, err := providerType.
			Model(model).
			MaxTokens(settings.LLM.MaxTokens).
			Temperature(float32(settings.LLM.Temperature)).
			APIKey(apiKey)
		if err != nil {
			store.Close()
			return nil, err
		}

		clients = append(clients, llm.NewClient(provider, store, llm.ClientConfig{
			Timeout:     settings.LLM.Timeout,
			MaxRetries:  settings.LLM.MaxRetries,
			BackoffBase: settings.LLM.BackoffBase,
			CacheTTL:    settings.Cache.TTLSeconds,
			Threshold:   settings.LLM.BreakerThreshold,
			Cooldown:    settings.LLM.BreakerCooldown,
		}, logger))
	}
	if len(clients) == 0 {
		store.Close()
		return nil, fmt.Errorf("no usable providers: set an API key for at least one of %v", settings.LLM.ProviderOrder)
	}

	runtime := sandbox.NewDockerRuntime()
	factory := func() orchestrator.CodeRunner {
		return sandbox.NewExecutor(runtime, settings.Sandbox.Image,
			settings.Sandbox.ExecTimeout, settings.Sandbox.InstallTimeout, logger)
	}

	return &engine{
		settings: settings,
		store:    store,
		orchestrator: orchestrator.New(clients, factory,
			settings.Loop.MaxIterations, settings.Loop.GlobalBudget, logger),
		logger: logger,
	}, nil
}

func (e *engine) close() {
	if err := e.store.Close(); err != nil {
		e.logger.Warn("failed to close cache", "error", err)
	}
}

// Serve starts the HTTP front door and blocks until the listener fails or
// ctx is done.
func Serve(ctx context.Context, opts Options) error {
	eng, err := newEngine(opts)
	if err != nil {
		return err
	}
	defer eng.close()

	srv := server.New(eng.orchestrator, eng.logger).
		WithMaxUploadSize(eng.settings.HTTP.MaxUploadSize)

	host := eng.settings.HTTP.Host
	if opts.Host != "" {
		host = opts.Host
	}
	port := eng.settings.HTTP.Port
	if opts.Port != 0 {
		port = opts.Port
	}
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv.Handler(),
	}

	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	eng.logger.Info("listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Ask answers a single question from the command line, staging the given
// files as the manifest, and prints the result as JSON.
func Ask(ctx context.Context, question string, files []string, opts Options) error {
	eng, err := newEngine(opts)
	if err != nil {
		return err
	}
	defer eng.close()

	manifest := make(map[string]string, len(files))
	for _, path := range files {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("cannot read file %s: %w", path, err)
		}
		manifest[filepath.Base(path)] = path
	}

	result := eng.orchestrator.Run(ctx, question, manifest)

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("analysis failed: %s", result.Error)
	}
	return nil
}
