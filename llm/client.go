// Resilient client - wraps a Provider with caching, retry, and circuit breaking.
//
// Information Hiding:
// - Retry schedule and jitter are internal
// - Cache key derivation is internal
// - Breaker state lives inside the client; callers see ErrCircuitOpen

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/okoro/datalyst/cache"
)

// ErrCircuitOpen is returned when the provider's breaker rejects the call.
var ErrCircuitOpen = errors.New("circuit breaker open")

// ErrEmptyPrompt is returned when Invoke is called with an empty prompt.
var ErrEmptyPrompt = errors.New("empty prompt")

const maxBackoff = 8 * time.Second

// ClientConfig holds the resilience knobs for a Client.
type ClientConfig struct {
	Timeout     time.Duration // per-call timeout
	MaxRetries  int           // retries after the first attempt
	BackoffBase time.Duration // base delay for exponential backoff
	CacheTTL    int           // cache entry TTL in seconds
	Threshold   int           // breaker failure threshold
	Cooldown    time.Duration // breaker cooldown
}

// Client wraps a Provider with caching, bounded retries, and a circuit
// breaker. Identical prompts within the cache TTL are served without a
// network call.
type Client struct {
	provider Provider
	breaker  *CircuitBreaker
	store    cache.Store
	config   ClientConfig
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewClient creates a resilient client around a provider. store may be nil
// to disable caching.
func NewClient(provider Provider, store cache.Store, config ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		provider: provider,
		breaker:  NewCircuitBreaker(config.Threshold, config.Cooldown),
		store:    store,
		config:   config,
		logger:   logger.With("provider", provider.Name()),
		sleep:    sleepContext,
	}
}

// Name returns the underlying provider name.
func (c *Client) Name() string {
	return c.provider.Name()
}

// Breaker exposes the client's circuit breaker.
func (c *Client) Breaker() *CircuitBreaker {
	return c.breaker
}

// Invoke sends a prompt to the provider and returns the response text.
// Order of operations: cache lookup, breaker check, then up to
// MaxRetries+1 attempts each under the per-call timeout, with jittered
// exponential backoff between attempts. Success resets the breaker and
// populates the cache; exhausting all attempts records one breaker failure.
func (c *Client) Invoke(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	key, err := cache.Key(map[string]string{
		"provider": c.provider.Name(),
		"model":    c.provider.Model(),
		"prompt":   prompt,
	})
	if err != nil {
		return "", err
	}

	if c.store != nil {
		if value, ok, err := c.store.Get(key); err != nil {
			c.logger.Warn("cache read failed", "error", err)
		} else if ok {
			c.logger.Debug("cache hit", "key", key)
			return value, nil
		}
	}

	if !c.breaker.Allow() {
		c.logger.Info("skipping provider, circuit open")
		return "", fmt.Errorf("%s: %w", c.provider.Name(), ErrCircuitOpen)
	}

	messages := []ChatMessage{UserMessage(prompt)}

	var lastErr error
	attempts := c.config.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := c.backoffDelay(attempt)
			c.logger.Debug("retrying after backoff", "attempt", attempt, "delay", delay)
			if err := c.sleep(ctx, delay); err != nil {
				// Caller went away; not a provider fault, so the breaker
				// stays untouched.
				return "", fmt.Errorf("%s: %w", c.provider.Name(), err)
			}
		}

		content, err := c.attempt(ctx, messages)
		if err != nil {
			lastErr = err
			c.logger.Warn("provider call failed", "attempt", attempt+1, "error", err)
			continue
		}

		c.breaker.RecordSuccess()
		if c.store != nil {
			if err := c.store.Set(key, content, c.config.CacheTTL); err != nil {
				c.logger.Warn("cache write failed", "error", err)
			}
		}
		return content, nil
	}

	c.breaker.RecordFailure()
	return "", fmt.Errorf("%s: all %d attempts failed: %w", c.provider.Name(), attempts, lastErr)
}

// attempt performs a single provider call under the per-call timeout.
func (c *Client) attempt(ctx context.Context, messages []ChatMessage) (string, error) {
	callCtx := ctx
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	response, err := c.provider.Chat(callCtx, messages)
	if err != nil {
		return "", err
	}
	if response.Content == "" {
		return "", fmt.Errorf("empty response from %s", c.provider.Name())
	}
	return response.Content, nil
}

// backoffDelay computes the jittered exponential delay before the given
// retry attempt: base doubled per attempt, capped, with jitter in
// [0.75, 1.25) of the nominal delay.
func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.config.BackoffBase * time.Duration(1<<(attempt-1))
	if delay > maxBackoff {
		delay = maxBackoff
	}
	jitter := 0.75 + 0.5*rand.Float64()
	return time.Duration(float64(delay) * jitter)
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
