package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. KCEXPLORE_ORACLE_MODEL.
const EnvPrefix = "KCEXPLORE_"

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// Default returns a configuration with every default applied and no target.
func Default() *Config {
	var config Config
	applyDefaults(&config)
	return &config
}

// LoadConfig loads and validates configuration from a YAML file with environment
// variable substitution. A missing file at the default path yields Default()
// plus environment overrides.
func LoadConfig(configPath string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := decodeYAML(data, &config); err != nil {
			return nil, err
		}
	case errors.Is(err, os.ErrNotExist) && filepath.Base(configPath) == DefaultConfigFile:
		// No file is fine for the default location.
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Apply environment variable overrides.
	applyEnvOverrides(&config)

	// Apply defaults.
	applyDefaults(&config)

	// Validate config.
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func decodeYAML(data []byte, config *Config) error {
	// Replace environment variable placeholders.
	dataStr := envVarRegex.ReplaceAllStringFunc(string(data), func(match string) string {
		envVar := match[2 : len(match)-1] // Remove ${ and }
		if value := os.Getenv(envVar); value != "" {
			return value
		}
		return match // Return original if env var not found
	})

	dec := yaml.NewDecoder(strings.NewReader(dataStr))
	dec.KnownFields(true)
	if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}
	return nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(config *Config) {
	v := reflect.ValueOf(config).Elem()
	t := reflect.TypeOf(config).Elem()

	applyEnvOverridesRecursive(v, t, EnvPrefix)
}

func applyEnvOverridesRecursive(v reflect.Value, t reflect.Type, prefix string) {
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}

		fieldName := strings.Split(yamlTag, ",")[0]
		envKey := strings.ToUpper(prefix + fieldName)

		if field.Kind() == reflect.Struct {
			applyEnvOverridesRecursive(field, field.Type(), envKey+"_")
			continue
		}

		if envValue := os.Getenv(envKey); envValue != "" {
			setFieldFromEnv(field, envValue)
		}
	}
}

var durationType = reflect.TypeOf(time.Duration(0)) //nolint:gochecknoglobals

func setFieldFromEnv(field reflect.Value, envValue string) {
	if !field.CanSet() {
		return
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(envValue)
	case reflect.Int, reflect.Int64:
		if field.Type() == durationType {
			if d, err := time.ParseDuration(envValue); err == nil {
				field.SetInt(int64(d))
			}
			return
		}
		if val, err := strconv.ParseInt(envValue, 10, 64); err == nil {
			field.SetInt(val)
		}
	case reflect.Float64:
		if val, err := strconv.ParseFloat(envValue, 64); err == nil {
			field.SetFloat(val)
		}
	case reflect.Bool:
		if val, err := strconv.ParseBool(envValue); err == nil {
			field.SetBool(val)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(envValue, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
}

// applyDefaults sets default values for missing configuration.
func applyDefaults(config *Config) {
	o := &config.Oracle
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.Retry.MaxAttempts == 0 {
		o.Retry.MaxAttempts = 3
	}
	if o.Retry.InitialDelay == 0 {
		o.Retry.InitialDelay = time.Second
	}
	if o.Retry.MaxDelay == 0 {
		o.Retry.MaxDelay = 30 * time.Second
	}
	if o.Retry.BackoffFactor == 0 {
		o.Retry.BackoffFactor = 2.0
	}

	e := &config.Explore
	if e.BatchSize == 0 {
		e.BatchSize = DefaultBatchSize
	}
	if e.MaxBatchTokens == 0 {
		e.MaxBatchTokens = DefaultMaxBatchTokens
	}
	if e.MaxDepth == 0 {
		e.MaxDepth = DefaultMaxDepth
	}
	if e.Parallelism == 0 {
		e.Parallelism = 1
	}
	if e.OutputFile == "" {
		e.OutputFile = "recommended.config"
	}

	k := &config.Knowledge
	if k.WorkingDir == "" {
		k.WorkingDir = DefaultWorkingDir
	}
	if k.DBPath == "" {
		k.DBPath = filepath.Join(k.WorkingDir, "knowledge.db")
	}
	if k.SourceID == "" {
		k.SourceID = "Kconfig"
	}
	if k.MaxResults == 0 {
		k.MaxResults = 20
	}
	if k.Depth == 0 {
		k.Depth = 1
	}

	if config.Cache.TTL == 0 {
		config.Cache.TTL = DefaultCacheTTL
	}
	if config.Cache.Prefix == "" {
		config.Cache.Prefix = DefaultCachePrefix
	}

	if config.Logging.TranscriptDir == "" {
		config.Logging.TranscriptDir = filepath.Join(k.WorkingDir, "logs")
	}
}

func validateConfig(config *Config) error {
	o := &config.Oracle
	if _, err := GetModelProvider(o.Model); err != nil {
		return fmt.Errorf("oracle.model: %w", err)
	}
	if o.Timeout < 0 {
		return fmt.Errorf("oracle.timeout must be non-negative")
	}
	if o.MaxTokens < 0 {
		return fmt.Errorf("oracle.max_tokens must be non-negative")
	}
	if o.Temperature < 0 || o.Temperature > 2 {
		return fmt.Errorf("oracle.temperature must be between 0 and 2, got %g", o.Temperature)
	}
	if o.PromptPricePerMillion < 0 || o.CompletionPricePerMillion < 0 {
		return fmt.Errorf("oracle prices must be non-negative")
	}
	if o.TokensPerMinute < 0 {
		return fmt.Errorf("oracle.tokens_per_minute must be non-negative")
	}
	if o.BudgetUSD < 0 {
		return fmt.Errorf("oracle.budget_usd must be non-negative")
	}
	if o.Retry.MaxAttempts < 1 {
		return fmt.Errorf("oracle.retry.max_attempts must be at least 1")
	}
	if o.Retry.BackoffFactor < 1 {
		return fmt.Errorf("oracle.retry.backoff_factor must be at least 1")
	}

	e := &config.Explore
	if e.BatchSize < 1 {
		return fmt.Errorf("explore.batch_size must be positive")
	}
	if e.MaxBatchTokens < 1 {
		return fmt.Errorf("explore.max_batch_tokens must be positive")
	}
	if e.MaxDepth < 1 {
		return fmt.Errorf("explore.max_depth must be positive")
	}
	if e.Parallelism < 1 {
		return fmt.Errorf("explore.parallelism must be positive")
	}
	if e.Preset != "" {
		if _, ok := LookupTarget(e.Preset); !ok {
			return fmt.Errorf("explore.preset: unknown preset %q (known: %s)", e.Preset, strings.Join(TargetKeys(), ", "))
		}
	}

	if config.Knowledge.MaxResults < 1 {
		return fmt.Errorf("knowledge.max_results must be positive")
	}
	if config.Knowledge.Depth < 0 {
		return fmt.Errorf("knowledge.depth must be non-negative")
	}
	if config.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must be non-negative")
	}
	return nil
}
