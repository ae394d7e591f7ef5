// Package config provides configuration loading, validation, and the static
// model registry for kcexplore.
//
// Configuration lives in a YAML file (kcexplore.yaml by default). Values may
// reference the environment with ${VAR} placeholders, and any field can be
// overridden with a KCEXPLORE_<SECTION>_<FIELD> environment variable. The
// model registry (KnownModels) is hardcoded and is the source of truth for
// provider inference and pricing.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"kcexplore/pkg/logx"
)

// Provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
)

// Environment variables holding provider credentials.
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_GENAI_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"
)

// Defaults.
const (
	DefaultConfigFile     = "kcexplore.yaml"
	DefaultModel          = "gpt-3.5-turbo-1106"
	DefaultWorkingDir     = "./kconfig"
	DefaultBatchSize      = 30
	DefaultMaxBatchTokens = 3000
	DefaultMaxDepth       = 3
	DefaultMaxTokens      = 1024
	DefaultTimeout        = 120 * time.Second
	DefaultCacheTTL       = 24 * time.Hour
	DefaultCachePrefix    = "kcexplore:oracle:"
)

// ModelInfo contains static information about a known LLM model.
type ModelInfo struct {
	Provider         string  // API provider
	InputCPM         float64 // Cost per million input tokens (USD)
	OutputCPM        float64 // Cost per million output tokens (USD)
	MaxContextTokens int     // Maximum context window size in tokens
	MaxOutputTokens  int     // Maximum output tokens per request
}

// KnownModels registry contains pricing and provider information for common models.
// Unknown models are inferred via ProviderPatterns and priced at zero.
//
//nolint:gochecknoglobals // static model registry
var KnownModels = map[string]ModelInfo{
	"gpt-3.5-turbo-1106": {
		Provider:         ProviderOpenAI,
		InputCPM:         8.0,
		OutputCPM:        16.0,
		MaxContextTokens: 16385,
		MaxOutputTokens:  4096,
	},
	"gpt-4o-mini": {
		Provider:         ProviderOpenAI,
		InputCPM:         0.15,
		OutputCPM:        0.60,
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
	},
	"gpt-4o": {
		Provider:         ProviderOpenAI,
		InputCPM:         2.5,
		OutputCPM:        10.0,
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
	},
	"claude-sonnet-4-5": {
		Provider:         ProviderAnthropic,
		InputCPM:         3.0,
		OutputCPM:        15.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	"claude-3-5-haiku-20241022": {
		Provider:         ProviderAnthropic,
		InputCPM:         0.8,
		OutputCPM:        4.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	"gemini-2.0-flash": {
		Provider:         ProviderGoogle,
		InputCPM:         0.10,
		OutputCPM:        0.40,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  8192,
	},
	"gemini-2.5-flash": {
		Provider:         ProviderGoogle,
		InputCPM:         0.30,
		OutputCPM:        2.50,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
	},
	"llama3.1:8b": {
		Provider:         ProviderOllama,
		MaxContextTokens: 131072,
		MaxOutputTokens:  4096,
	},
}

// ProviderPattern represents a pattern for inferring provider from model name.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

// ProviderPatterns defines rules for inferring providers from unknown model names.
//
//nolint:gochecknoglobals // inference rules
var ProviderPatterns = []ProviderPattern{
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"gemini", ProviderGoogle},
	{"phi", ProviderOllama},
	{"llama", ProviderOllama},
	{"qwen", ProviderOllama},
	{"mistral", ProviderOllama},
	{"deepseek", ProviderOllama},
	{"ollama:", ProviderOllama},
}

// GetModelProvider returns the API provider for a given model.
// First checks KnownModels, then tries pattern matching.
func GetModelProvider(modelName string) (string, error) {
	if info, exists := KnownModels[modelName]; exists {
		return info.Provider, nil
	}
	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			return ProviderPatterns[i].Provider, nil
		}
	}
	return "", fmt.Errorf("unknown model '%s': no known provider mapping or pattern match", modelName)
}

// GetModelInfo returns the ModelInfo for a given model name and whether it is known.
func GetModelInfo(modelName string) (ModelInfo, bool) {
	if info, exists := KnownModels[modelName]; exists {
		return info, true
	}
	provider, _ := GetModelProvider(modelName)
	return ModelInfo{
		Provider:         provider,
		MaxContextTokens: 32000,
		MaxOutputTokens:  4096,
	}, false
}

// CalculateCost calculates the cost in USD for a given model and token usage.
// Unknown models cost nothing.
func CalculateCost(modelName string, promptTokens, completionTokens int) float64 {
	info, ok := KnownModels[modelName]
	if !ok {
		return 0
	}
	return Pricing{
		PromptPerToken:     info.InputCPM / 1_000_000.0,
		CompletionPerToken: info.OutputCPM / 1_000_000.0,
	}.Cost(promptTokens, completionTokens)
}

// Pricing is a per-token price pair in USD.
type Pricing struct {
	PromptPerToken     float64
	CompletionPerToken float64
}

// Cost returns the price of one exchange.
func (p Pricing) Cost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)*p.PromptPerToken + float64(completionTokens)*p.CompletionPerToken
}

// GetAPIKey returns the API key for a given provider.
// Checks the decrypted secrets first, then the environment.
// For Ollama, returns the host URL instead of an API key.
func GetAPIKey(provider string) (string, error) {
	var envVar string
	switch provider {
	case ProviderAnthropic:
		envVar = EnvAnthropicAPIKey
	case ProviderOpenAI:
		envVar = EnvOpenAIAPIKey
	case ProviderGoogle:
		envVar = EnvGoogleAPIKey
	case ProviderOllama:
		host := os.Getenv(EnvOllamaHost)
		if host == "" {
			host = "http://localhost:11434"
		}
		return host, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	key, err := GetSecret(envVar)
	if err == nil && key != "" {
		return key, nil
	}
	return "", fmt.Errorf("API key not found: %s not found in secrets file or environment variables", envVar)
}

// APIKeyEnvVar names the variable GetAPIKey consults for provider.
func APIKeyEnvVar(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return EnvAnthropicAPIKey
	case ProviderOpenAI:
		return EnvOpenAIAPIKey
	case ProviderGoogle:
		return EnvGoogleAPIKey
	case ProviderOllama:
		return EnvOllamaHost
	default:
		return ""
	}
}

// Config is the root of kcexplore.yaml.
type Config struct {
	Oracle    OracleConfig    `yaml:"oracle"`
	Explore   ExploreConfig   `yaml:"explore"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Cache     CacheConfig     `yaml:"cache"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// OracleConfig selects and tunes the language model.
type OracleConfig struct {
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"` // OpenAI-compatible endpoint override
	Timeout     time.Duration `yaml:"timeout"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Retry       RetryConfig   `yaml:"retry"`

	TokensPerMinute int     `yaml:"tokens_per_minute"` // 0 disables rate limiting
	BudgetUSD       float64 `yaml:"budget_usd"`        // 0 means no spending cap

	// Price overrides in USD per million tokens. Zero means "use KnownModels".
	PromptPricePerMillion     float64 `yaml:"prompt_price_per_million"`
	CompletionPricePerMillion float64 `yaml:"completion_price_per_million"`
}

// Pricing resolves the per-token prices for the configured model.
func (c *OracleConfig) Pricing() Pricing {
	info, _ := GetModelInfo(c.Model)
	in, out := info.InputCPM, info.OutputCPM
	if c.PromptPricePerMillion > 0 {
		in = c.PromptPricePerMillion
	}
	if c.CompletionPricePerMillion > 0 {
		out = c.CompletionPricePerMillion
	}
	return Pricing{
		PromptPerToken:     in / 1_000_000.0,
		CompletionPerToken: out / 1_000_000.0,
	}
}

// RetryConfig defines exponential backoff for oracle requests.
type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	Jitter        bool          `yaml:"jitter"`
}

// ExploreConfig drives the exploration pipeline.
type ExploreConfig struct {
	Target         string `yaml:"target"`
	Preset         string `yaml:"preset"`
	TreeFile       string `yaml:"tree_file"`
	OutputFile     string `yaml:"output_file"`
	BatchSize      int    `yaml:"batch_size"`
	MaxBatchTokens int    `yaml:"max_batch_tokens"`
	MaxDepth       int    `yaml:"max_depth"`
	Parallelism    int    `yaml:"parallelism"`
}

// ResolveTarget returns the explicit target, or the goal of the preset.
func (c *ExploreConfig) ResolveTarget() (string, error) {
	if strings.TrimSpace(c.Target) != "" {
		return c.Target, nil
	}
	if c.Preset == "" {
		return "", fmt.Errorf("no optimization target: set explore.target or explore.preset")
	}
	t, ok := LookupTarget(c.Preset)
	if !ok {
		return "", fmt.Errorf("unknown target preset %q", c.Preset)
	}
	return t.Goal, nil
}

// KnowledgeConfig locates the knowledge store.
type KnowledgeConfig struct {
	WorkingDir string `yaml:"working_dir"`
	DBPath     string `yaml:"db_path"`
	SourceID   string `yaml:"source_id"`
	MaxResults int    `yaml:"max_results"`
	Depth      int    `yaml:"depth"`
	Disabled   bool   `yaml:"disabled"`
}

// CacheConfig enables the Redis answer cache when RedisAddr is set.
type CacheConfig struct {
	RedisAddr string        `yaml:"redis_addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	TTL       time.Duration `yaml:"ttl"`
	Prefix    string        `yaml:"prefix"`
}

// Enabled reports whether a cache backend is configured.
func (c *CacheConfig) Enabled() bool {
	return c.RedisAddr != ""
}

// LoggingConfig controls diagnostics and the oracle transcript.
type LoggingConfig struct {
	TranscriptDir string   `yaml:"transcript_dir"`
	File          string   `yaml:"file"`
	Debug         bool     `yaml:"debug"`
	Domains       []string `yaml:"domains"`
	Trace         bool     `yaml:"trace"` // log an OpenTelemetry span per oracle request
}

// MetricsConfig controls Prometheus metric export.
type MetricsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	TextfilePath string `yaml:"textfile_path"`
}

var logger = logx.NewLogger("config") //nolint:gochecknoglobals

// LogInfo logs an info message using the config logger.
func LogInfo(format string, args ...any) {
	logger.Info(format, args...)
}
