// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Provider-specific configuration lookup

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings holds all application configuration.
type Settings struct {
	HTTP    HTTPConfig
	LLM     LLMConfig
	Loop    LoopConfig
	Sandbox SandboxConfig
	Cache   CacheConfig
}

// HTTPConfig holds front-door configuration.
type HTTPConfig struct {
	Host          string
	Port          int
	MaxUploadSize int64 // bytes
}

// LLMConfig holds provider selection and resilience configuration.
type LLMConfig struct {
	ProviderOrder    []string
	MaxTokens        uint32
	Temperature      float64
	Timeout          time.Duration // per provider call
	MaxRetries       int
	BackoffBase      time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// LoopConfig bounds the feedback loop.
type LoopConfig struct {
	MaxIterations int
	GlobalBudget  time.Duration
}

// SandboxConfig holds execution-environment configuration.
type SandboxConfig struct {
	Image          string
	ExecTimeout    time.Duration
	InstallTimeout time.Duration
}

// CacheConfig holds response cache configuration.
type CacheConfig struct {
	Path       string
	TTLSeconds int
}

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"gemini":    {"GEMINI_MODEL", "gemini-2.5-flash", "GEMINI_API_KEY"},
	"nvidia":    {"NVIDIA_MODEL", "nvidia/llama-3.3-nemotron-70b-instruct", "NVIDIA_API_KEY"},
	"openai":    {"OPENAI_MODEL", "gpt-5", "OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_MODEL", "claude-sonnet-4-20250514", "ANTHROPIC_API_KEY"},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
	"nim":    "nvidia",
}

// New creates settings from environment variables.
// Returns an error if any variable contains an invalid value.
func New() (Settings, error) {
	host := getEnv("API_HOST", "127.0.0.1")
	port, err := getEnvInt("API_PORT", 8000)
	if err != nil {
		return Settings{}, err
	}

	maxUploadMB, err := getEnvInt("MAX_FILE_SIZE", 50)
	if err != nil {
		return Settings{}, err
	}

	order, err := parseProviderOrder(getEnv("LLM_PROVIDER_ORDER", "gemini,nvidia,openai"))
	if err != nil {
		return Settings{}, err
	}

	maxTokens, err := getEnvUint32("LLM_MAX_TOKENS", 4096)
	if err != nil {
		return Settings{}, err
	}

	temperature, err := getEnvFloat64("LLM_TEMPERATURE", 0.7)
	if err != nil {
		return Settings{}, err
	}

	callTimeout, err := getEnvInt("LLM_PER_PROVIDER_TIMEOUT_SEC", 60)
	if err != nil {
		return Settings{}, err
	}

	maxRetries, err := getEnvInt("LLM_MAX_RETRIES", 2)
	if err != nil {
		return Settings{}, err
	}

	backoffBase, err := getEnvFloat64("LLM_BACKOFF_BASE_SEC", 1.0)
	if err != nil {
		return Settings{}, err
	}

	breakerThreshold, err := getEnvInt("LLM_BREAKER_THRESHOLD", 3)
	if err != nil {
		return Settings{}, err
	}

	breakerCooldown, err := getEnvInt("LLM_BREAKER_COOLDOWN_SEC", 120)
	if err != nil {
		return Settings{}, err
	}

	maxIterations, err := getEnvInt("MAX_FEEDBACK_ROUNDS", 9)
	if err != nil {
		return Settings{}, err
	}

	globalBudget, err := getEnvInt("LLM_TOTAL_BUDGET_SEC", 300)
	if err != nil {
		return Settings{}, err
	}

	execTimeout, err := getEnvInt("CODE_EXEC_TIMEOUT", 60)
	if err != nil {
		return Settings{}, err
	}

	installTimeout, err := getEnvInt("PIP_INSTALL_TIMEOUT", 60)
	if err != nil {
		return Settings{}, err
	}

	cacheTTL, err := getEnvInt("CACHE_EXPIRE", 900)
	if err != nil {
		return Settings{}, err
	}

	return Settings{
		HTTP: HTTPConfig{
			Host:          host,
			Port:          port,
			MaxUploadSize: int64(maxUploadMB) * 1024 * 1024,
		},
		LLM: LLMConfig{
			ProviderOrder:    order,
			MaxTokens:        maxTokens,
			Temperature:      temperature,
			Timeout:          time.Duration(callTimeout) * time.Second,
			MaxRetries:       maxRetries,
			BackoffBase:      time.Duration(backoffBase * float64(time.Second)),
			BreakerThreshold: breakerThreshold,
			BreakerCooldown:  time.Duration(breakerCooldown) * time.Second,
		},
		Loop: LoopConfig{
			MaxIterations: maxIterations,
			GlobalBudget:  time.Duration(globalBudget) * time.Second,
		},
		Sandbox: SandboxConfig{
			Image:          getEnv("SANDBOX_IMAGE", "python:3.11-slim"),
			ExecTimeout:    time.Duration(execTimeout) * time.Second,
			InstallTimeout: time.Duration(installTimeout) * time.Second,
		},
		Cache: CacheConfig{
			Path:       getEnv("CACHE_PATH", "/tmp/datalyst_cache/cache.db"),
			TTLSeconds: cacheTTL,
		},
	}, nil
}

// MustNew creates settings from the environment.
// Panics on invalid values. Use this only when configuration errors should be fatal.
func MustNew() Settings {
	settings, err := New()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// parseProviderOrder validates a comma-separated provider list.
func parseProviderOrder(raw string) ([]string, error) {
	parts := strings.Split(raw, ",")
	order := make([]string, 0, len(parts))
	for _, part := range parts {
		name := normalizeProvider(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		if _, ok := providers[name]; !ok {
			return nil, fmt.Errorf("unknown provider in LLM_PROVIDER_ORDER: %q", part)
		}
		order = append(order, name)
	}
	if len(order) == 0 {
		return nil, fmt.Errorf("LLM_PROVIDER_ORDER is empty")
	}
	return order, nil
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(provider)
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, fmt.Errorf("unknown provider: %q", provider)
	}
	return info, nil
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	key := os.Getenv(info.apiKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", info.apiKeyEnv)
	}
	return key, nil
}

// ModelFor returns the model for a provider, checking environment first.
func ModelFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	if val := os.Getenv(info.modelEnv); val != "" {
		return val, nil
	}
	return info.defaultModel, nil
}

// SupportedProviders returns the list of supported provider names.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	return result
}

// Environment variable helpers with proper error handling

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}
