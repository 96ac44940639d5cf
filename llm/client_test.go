package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// scriptedProvider returns canned responses (or errors) in order.
type scriptedProvider struct {
	name    string
	replies []string
	errs    []error
	calls   int
}

func (p *scriptedProvider) Name() string  { return p.name }
func (p *scriptedProvider) Model() string { return "test-model" }

func (p *scriptedProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return LLMResponse{}, p.errs[i]
	}
	if i < len(p.replies) {
		return LLMResponse{Content: p.replies[i]}, nil
	}
	return LLMResponse{}, errors.New("no scripted reply")
}

var _ Provider = (*scriptedProvider)(nil)

// memStore is an in-memory cache.Store for tests.
type memStore struct {
	entries map[string]string
	sets    int
}

func newMemStore() *memStore {
	return &memStore{entries: make(map[string]string)}
}

func (s *memStore) Get(key string) (string, bool, error) {
	v, ok := s.entries[key]
	return v, ok, nil
}

func (s *memStore) Set(key, value string, ttlSeconds int) error {
	s.entries[key] = value
	s.sets++
	return nil
}

func (s *memStore) Delete(key string) error {
	delete(s.entries, key)
	return nil
}

func (s *memStore) Close() error { return nil }

func testConfig() ClientConfig {
	return ClientConfig{
		Timeout:     time.Second,
		MaxRetries:  2,
		BackoffBase: time.Millisecond,
		CacheTTL:    900,
		Threshold:   3,
		Cooldown:    120 * time.Second,
	}
}

func newTestClient(p Provider, store *memStore) *Client {
	var c *Client
	if store != nil {
		c = NewClient(p, store, testConfig(), nil)
	} else {
		c = NewClient(p, nil, testConfig(), nil)
	}
	c.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c
}

func TestInvokeSuccess(t *testing.T) {
	provider := &scriptedProvider{name: "fake", replies: []string{`{"final answer": "4"}`}}
	client := newTestClient(provider, nil)

	got, err := client.Invoke(context.Background(), "What is 2+2?")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != `{"final answer": "4"}` {
		t.Errorf("Invoke = %q", got)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls)
	}
}

func TestInvokeEmptyPrompt(t *testing.T) {
	provider := &scriptedProvider{name: "fake"}
	client := newTestClient(provider, nil)

	_, err := client.Invoke(context.Background(), "")
	if !errors.Is(err, ErrEmptyPrompt) {
		t.Fatalf("err = %v, want ErrEmptyPrompt", err)
	}
	if provider.calls != 0 {
		t.Error("provider called for an empty prompt")
	}
}

func TestInvokeRetriesUntilSuccess(t *testing.T) {
	provider := &scriptedProvider{
		name:    "fake",
		errs:    []error{errors.New("boom"), errors.New("boom")},
		replies: []string{"", "", "answer"},
	}
	client := newTestClient(provider, nil)

	got, err := client.Invoke(context.Background(), "q")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got != "answer" {
		t.Errorf("Invoke = %q, want %q", got, "answer")
	}
	if provider.calls != 3 {
		t.Errorf("provider calls = %d, want 3", provider.calls)
	}
}

func TestInvokeExhaustsRetries(t *testing.T) {
	provider := &scriptedProvider{
		name: "fake",
		errs: []error{errors.New("a"), errors.New("b"), errors.New("c")},
	}
	client := newTestClient(provider, nil)

	_, err := client.Invoke(context.Background(), "q")
	if err == nil {
		t.Fatal("Invoke succeeded, want error")
	}
	// One attempt plus MaxRetries.
	if provider.calls != 3 {
		t.Errorf("provider calls = %d, want 3", provider.calls)
	}
}

func TestInvokeCacheHitSkipsProvider(t *testing.T) {
	provider := &scriptedProvider{name: "fake", replies: []string{"first"}}
	store := newMemStore()
	client := newTestClient(provider, store)

	first, err := client.Invoke(context.Background(), "q")
	if err != nil {
		t.Fatalf("first Invoke: %v", err)
	}
	second, err := client.Invoke(context.Background(), "q")
	if err != nil {
		t.Fatalf("second Invoke: %v", err)
	}
	if first != second {
		t.Errorf("cached reply %q differs from original %q", second, first)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1 (second served from cache)", provider.calls)
	}
}

func TestInvokeCircuitOpen(t *testing.T) {
	// Trip the breaker: each exhausted Invoke records one failure.
	failing := &scriptedProvider{name: "fake"}
	client := newTestClient(failing, nil)
	for i := 0; i < 3; i++ {
		if _, err := client.Invoke(context.Background(), "q"); err == nil {
			t.Fatal("expected failure while tripping breaker")
		}
	}

	calls := failing.calls
	_, err := client.Invoke(context.Background(), "q")
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if failing.calls != calls {
		t.Error("provider was called while breaker open")
	}
}

func TestInvokeProbeAfterCooldown(t *testing.T) {
	failing := &scriptedProvider{name: "fake"}
	client := newTestClient(failing, nil)
	clock := time.Unix(1_700_000_000, 0)
	client.breaker.WithClock(func() time.Time { return clock })

	for i := 0; i < 3; i++ {
		client.Invoke(context.Background(), "q")
	}
	if client.breaker.State() != BreakerOpen {
		t.Fatalf("breaker state = %v, want open", client.breaker.State())
	}

	clock = clock.Add(121 * time.Second)
	client.provider = &scriptedProvider{name: "fake", replies: []string{"recovered"}}

	got, err := client.Invoke(context.Background(), "q")
	if err != nil {
		t.Fatalf("probe Invoke: %v", err)
	}
	if got != "recovered" {
		t.Errorf("Invoke = %q", got)
	}
	if client.breaker.State() != BreakerClosed {
		t.Errorf("breaker state = %v after successful probe, want closed", client.breaker.State())
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	client := newTestClient(&scriptedProvider{name: "fake"}, nil)
	client.config.BackoffBase = time.Second

	for attempt := 1; attempt <= 10; attempt++ {
		d := client.backoffDelay(attempt)
		max := time.Duration(float64(maxBackoff) * 1.25)
		if d > max {
			t.Fatalf("backoffDelay(%d) = %v, exceeds cap %v", attempt, d, max)
		}
		if d <= 0 {
			t.Fatalf("backoffDelay(%d) = %v, want positive", attempt, d)
		}
	}
}

// Retried failures surface the last cause in the wrapped error.
func TestInvokeErrorMentionsProvider(t *testing.T) {
	provider := &scriptedProvider{name: "gemini"}
	client := newTestClient(provider, nil)

	_, err := client.Invoke(context.Background(), "q")
	if err == nil {
		t.Fatal("Invoke succeeded, want error")
	}
	want := fmt.Sprintf("%s: all", provider.name)
	if got := err.Error(); len(got) < len(want) || got[:len(want)] != want {
		t.Errorf("error = %q, want prefix %q", got, want)
	}
}

func TestInvokeCancelledDuringBackoffLeavesBreakerClosed(t *testing.T) {
	provider := &scriptedProvider{
		name: "fake",
		errs: []error{errors.New("boom"), errors.New("boom")},
	}
	client := newTestClient(provider, nil)
	client.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	_, err := client.Invoke(context.Background(), "hello")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Invoke error = %v, want context.Canceled", err)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls)
	}
	if state := client.Breaker().State(); state != BreakerClosed {
		t.Errorf("breaker state = %v, want BreakerClosed", state)
	}
}
