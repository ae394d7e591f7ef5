package oracle

import (
	"fmt"

	"go.opentelemetry.io/otel/trace"

	"kcexplore/pkg/config"
	"kcexplore/pkg/oracle/internal/llmimpl/anthropic"
	"kcexplore/pkg/oracle/internal/llmimpl/google"
	"kcexplore/pkg/oracle/internal/llmimpl/ollama"
	"kcexplore/pkg/oracle/internal/llmimpl/openaiofficial"
	"kcexplore/pkg/oracle/llm"
	"kcexplore/pkg/oracle/middleware/cache"
	"kcexplore/pkg/oracle/middleware/circuit"
	"kcexplore/pkg/oracle/middleware/ratelimit"
	"kcexplore/pkg/oracle/middleware/retry"
	"kcexplore/pkg/oracle/middleware/timeout"
	"kcexplore/pkg/oracle/middleware/tracing"
	"kcexplore/pkg/tokens"
)

// ClientOptions are the optional collaborators of NewClient.
type ClientOptions struct {
	Cache   *cache.Store     // nil disables answer caching
	Tracer  trace.Tracer     // nil uses the global provider
	Breaker *circuit.Breaker // nil creates one with circuit.DefaultConfig
	Counter *tokens.Counter  // prompt estimates for the rate limiter
	Raw     llm.LLMClient    // replaces the provider adapter; for tests
}

// NewClient builds the provider adapter for cfg.Model and wraps it, outermost
// first, in tracing, caching, circuit breaking and retries. Each attempt then
// waits for rate-limit quota and runs under its own timeout.
func NewClient(cfg config.OracleConfig, opts ClientOptions) (llm.LLMClient, error) {
	raw := opts.Raw
	if raw == nil {
		var err error
		if raw, err = newRawClient(cfg); err != nil {
			return nil, err
		}
	}

	breaker := opts.Breaker
	if breaker == nil {
		breaker = circuit.New(circuit.DefaultConfig)
	}

	var cacheMW llm.Middleware
	if opts.Cache != nil {
		cacheMW = cache.Middleware(opts.Cache)
	}

	return llm.Chain(raw,
		tracing.Middleware(opts.Tracer),
		cacheMW,
		circuit.Middleware(breaker),
		retry.Middleware(retry.NewPolicy(retry.FromConfig(cfg.Retry), nil)),
		ratelimit.Middleware(ratelimit.NewBucket(cfg.TokensPerMinute), opts.Counter),
		timeout.Middleware(cfg.Timeout),
	), nil
}

func newRawClient(cfg config.OracleConfig) (llm.LLMClient, error) {
	provider, err := config.GetModelProvider(cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to determine provider for model %s: %w", cfg.Model, err)
	}

	apiKey, err := config.GetAPIKey(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to get API key for provider %s: %w", provider, err)
	}

	settings := llm.LLMConfig{
		APIKey:      apiKey,
		BaseURL:     cfg.BaseURL,
		ModelName:   cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: float32(cfg.Temperature),
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s settings for model %s: %w", provider, cfg.Model, err)
	}

	switch provider {
	case config.ProviderOpenAI:
		return openaiofficial.NewOfficialClientWithModel(apiKey, cfg.BaseURL, cfg.Model), nil
	case config.ProviderAnthropic:
		return anthropic.NewClaudeClientWithModel(apiKey, cfg.BaseURL, cfg.Model), nil
	case config.ProviderGoogle:
		return google.NewGeminiClientWithModel(apiKey, cfg.BaseURL, cfg.Model), nil
	case config.ProviderOllama:
		host := apiKey
		if cfg.BaseURL != "" {
			host = cfg.BaseURL
		}
		return ollama.NewOllamaClientWithModel(host, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}
