// Package config loads modtranslate settings.
//
// Values are layered: built-in defaults, then the YAML file, then a .env
// file, then MODTR_* environment variables. The environment always wins.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// FileName is the default configuration file name.
const FileName = "modtranslate.yaml"

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "MODTR"

// ---------------------------------------------------------------------------
// Schema
// ---------------------------------------------------------------------------

// Config is the complete runtime configuration.
type Config struct {
	Environment string `yaml:"environment" envconfig:"ENVIRONMENT"`
	LogLevel    string `yaml:"log_level" envconfig:"LOG_LEVEL"`
	// UILanguage selects the CLI message catalog ("ru", "ru_RU"). Empty
	// follows LANGUAGE/LC_ALL/LC_MESSAGES/LANG.
	UILanguage string `yaml:"ui_language" envconfig:"UI_LANGUAGE"`

	// SourceLang and TargetLang are used when a batch file omits them.
	SourceLang string `yaml:"source_lang" envconfig:"SOURCE_LANG"`
	TargetLang string `yaml:"target_lang" envconfig:"TARGET_LANG"`
	// Methods is the default method order.
	Methods []string `yaml:"methods" envconfig:"METHODS"`
	// Provider is the default AI provider ("ollama" or "hosted").
	Provider string `yaml:"provider" envconfig:"PROVIDER"`
	// Fallback permits escalation from local to AI by default.
	Fallback  bool `yaml:"fallback" envconfig:"FALLBACK"`
	CacheSize int  `yaml:"cache_size" envconfig:"CACHE_SIZE"`

	Hosted  HostedConfig  `yaml:"hosted" envconfig:"HOSTED"`
	Ollama  OllamaConfig  `yaml:"ollama" envconfig:"OLLAMA"`
	Local   LocalConfig   `yaml:"local" envconfig:"LOCAL"`
	Breaker BreakerConfig `yaml:"breaker" envconfig:"BREAKER"`
}

// HostedConfig configures the OpenAI-compatible hosted provider.
type HostedConfig struct {
	BaseURL  string `yaml:"base_url" envconfig:"BASE_URL"`
	QuotaURL string `yaml:"quota_url" envconfig:"QUOTA_URL"`
	Model    string `yaml:"model" envconfig:"MODEL"`
	// Keys from the file. MODTR_HOSTED_KEYS is appended by Load, not substituted.
	Keys             []string      `yaml:"keys" ignored:"true"`
	MaxRetriesPerKey int           `yaml:"max_retries_per_key" envconfig:"MAX_RETRIES_PER_KEY"`
	RotateCooldown   time.Duration `yaml:"rotate_cooldown" envconfig:"ROTATE_COOLDOWN"`
	RetryBackoff     time.Duration `yaml:"retry_backoff" envconfig:"RETRY_BACKOFF"`
	Temperature      float32       `yaml:"temperature" envconfig:"TEMPERATURE"`
	MaxTokens        int           `yaml:"max_tokens" envconfig:"MAX_TOKENS"`
	Timeout          time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	Proxy            string        `yaml:"proxy" envconfig:"PROXY"`
}

// OllamaConfig configures the self-hosted LLM provider.
type OllamaConfig struct {
	BaseURL        string        `yaml:"base_url" envconfig:"BASE_URL"`
	Model          string        `yaml:"model" envconfig:"MODEL"`
	Timeout        time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
	MaxRetries     int           `yaml:"max_retries" envconfig:"MAX_RETRIES"`
	RetryBaseDelay time.Duration `yaml:"retry_base_delay" envconfig:"RETRY_BASE_DELAY"`
	MinInterval    time.Duration `yaml:"min_interval" envconfig:"MIN_INTERVAL"`
	TagsCacheTTL   time.Duration `yaml:"tags_cache_ttl" envconfig:"TAGS_CACHE_TTL"`
	Temperature    float64       `yaml:"temperature" envconfig:"TEMPERATURE"`
	NumCtx         int           `yaml:"num_ctx" envconfig:"NUM_CTX"`
	Proxy          string        `yaml:"proxy" envconfig:"PROXY"`
}

// LocalConfig configures the passthrough / external CLI method.
type LocalConfig struct {
	// Tool is the external translator CLI; empty means identity passthrough.
	Tool             string        `yaml:"tool" envconfig:"TOOL"`
	Module           string        `yaml:"module" envconfig:"MODULE"`
	ToolFallback     bool          `yaml:"tool_fallback" envconfig:"TOOL_FALLBACK"`
	ConcurrencyLimit int           `yaml:"concurrency_limit" envconfig:"CONCURRENCY_LIMIT"`
	WorkDir          string        `yaml:"work_dir" envconfig:"WORK_DIR"`
	Timeout          time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// BreakerConfig configures the per-provider circuit breakers.
type BreakerConfig struct {
	Disabled         bool          `yaml:"disabled" envconfig:"DISABLED"`
	FailureThreshold uint32        `yaml:"failure_threshold" envconfig:"FAILURE_THRESHOLD"`
	OpenTimeout      time.Duration `yaml:"open_timeout" envconfig:"OPEN_TIMEOUT"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Environment: "local",
		LogLevel:    "info",
		SourceLang:  "en",
		TargetLang:  "ru",
		Methods:     []string{"local", "ai"},
		Provider:    "ollama",
		Fallback:    true,
		CacheSize:   10000,
		Hosted: HostedConfig{
			BaseURL:          "https://openrouter.ai/api/v1",
			QuotaURL:         "https://openrouter.ai/api/v1/auth/key",
			Model:            "deepseek/deepseek-chat",
			MaxRetriesPerKey: 3,
			RotateCooldown:   4 * time.Second,
			RetryBackoff:     2 * time.Second,
			Temperature:      0.3,
			MaxTokens:        1024,
			Timeout:          120 * time.Second,
		},
		Ollama: OllamaConfig{
			BaseURL:        "http://localhost:11434",
			Model:          "qwen2.5:7b",
			Timeout:        300 * time.Second,
			MaxRetries:     3,
			RetryBaseDelay: 2 * time.Second,
			MinInterval:    500 * time.Millisecond,
			TagsCacheTTL:   30 * time.Second,
			Temperature:    0.2,
			NumCtx:         8192,
		},
		Local: LocalConfig{
			Module:           "bing",
			ToolFallback:     true,
			ConcurrencyLimit: 3,
			Timeout:          300 * time.Second,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			OpenTimeout:      30 * time.Second,
		},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load builds the configuration from defaults, the YAML file at path
// (FileName when empty; a missing file is not an error), a .env file in
// the working directory, and the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = FileName
	}
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}

	// Variables already set in the environment take precedence over .env.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("reading %s_* environment: %w", EnvPrefix, err)
	}
	cfg.Hosted.Keys = MergeKeys(cfg.Hosted.Keys, splitList(os.Getenv(EnvPrefix+"_HOSTED_KEYS")))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SourceLang) == "" || strings.TrimSpace(c.TargetLang) == "" {
		return fmt.Errorf("source_lang and target_lang are required")
	}
	for _, m := range c.Methods {
		if m != "local" && m != "ai" {
			return fmt.Errorf("methods: unknown method %q (want local or ai)", m)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Provider)) {
	case "ollama", "hosted":
	default:
		return fmt.Errorf("provider must be ollama or hosted, got %q", c.Provider)
	}
	if c.CacheSize < 1 {
		return fmt.Errorf("cache_size must be >= 1")
	}
	if c.Hosted.MaxRetriesPerKey < 1 {
		return fmt.Errorf("hosted.max_retries_per_key must be >= 1")
	}
	if c.Hosted.Temperature < 0 || c.Hosted.Temperature > 2 {
		return fmt.Errorf("hosted.temperature must be within [0, 2]")
	}
	if c.Ollama.MaxRetries < 0 {
		return fmt.Errorf("ollama.max_retries must be >= 0")
	}
	if c.Ollama.MinInterval < 0 {
		return fmt.Errorf("ollama.min_interval must be >= 0")
	}
	switch c.Local.Module {
	case "google", "google2", "bing":
	default:
		return fmt.Errorf("local.module must be google, google2 or bing, got %q", c.Local.Module)
	}
	if c.Local.ConcurrencyLimit < 1 {
		return fmt.Errorf("local.concurrency_limit must be >= 1")
	}
	if !c.Breaker.Disabled && c.Breaker.FailureThreshold < 1 {
		return fmt.Errorf("breaker.failure_threshold must be >= 1")
	}
	return nil
}

// MergeKeys concatenates key lists, dropping blanks and repeats while
// keeping first-seen order.
func MergeKeys(lists ...[]string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, list := range lists {
		for _, k := range list {
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}
