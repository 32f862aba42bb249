package llm

import (
	"fmt"
	"os"
	"time"
)

// Config holds all LLM provider configuration.
type Config struct {
	// Provider selects the backend: "anthropic", "openai", "gemini",
	// "openrouter" or "mock".
	Provider string `yaml:"provider"`

	Anthropic  AnthropicConfig  `yaml:"anthropic"`
	OpenAI     OpenAIConfig     `yaml:"openai"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	OpenRouter OpenRouterConfig `yaml:"openrouter"`
	Retry      RetryConfig      `yaml:"retry"`

	// Timeout bounds a single tutoring turn's generation, retries included.
	// A turn that exceeds it fails; there is no canned fallback.
	Timeout time.Duration `yaml:"timeout"`

	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type OpenRouterConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// RetryConfig configures retry behavior for transient failures.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	InitialWait time.Duration `yaml:"initial_wait"`
	MaxWait     time.Duration `yaml:"max_wait"`
	Multiplier  float64       `yaml:"multiplier"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider:   "anthropic",
		Anthropic:  AnthropicConfig{Model: "claude-sonnet"},
		OpenAI:     OpenAIConfig{Model: "gpt-4o-mini"},
		Gemini:     GeminiConfig{Model: "gemini-flash"},
		OpenRouter: OpenRouterConfig{Model: "anthropic/claude-sonnet-4"},
		Retry: RetryConfig{
			MaxAttempts: 2,
			InitialWait: 500 * time.Millisecond,
			MaxWait:     4 * time.Second,
			Multiplier:  2.0,
		},
		Timeout:     25 * time.Second,
		MaxTokens:   1024,
		Temperature: 0.4,
	}
}

// ConfigFromEnv builds a Config from TUTOR_* environment variables,
// falling back to defaults for unset values.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	ApplyEnv(&cfg)
	return cfg
}

// ApplyEnv overlays TUTOR_* environment variables onto cfg.
func ApplyEnv(cfg *Config) {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString(&cfg.Provider, "TUTOR_LLM_PROVIDER")
	setString(&cfg.Anthropic.APIKey, "TUTOR_ANTHROPIC_API_KEY")
	setString(&cfg.Anthropic.Model, "TUTOR_ANTHROPIC_MODEL")
	setString(&cfg.OpenAI.APIKey, "TUTOR_OPENAI_API_KEY")
	setString(&cfg.OpenAI.Model, "TUTOR_OPENAI_MODEL")
	setString(&cfg.OpenAI.BaseURL, "TUTOR_OPENAI_BASE_URL")
	setString(&cfg.Gemini.APIKey, "TUTOR_GEMINI_API_KEY")
	setString(&cfg.Gemini.Model, "TUTOR_GEMINI_MODEL")
	setString(&cfg.OpenRouter.APIKey, "TUTOR_OPENROUTER_API_KEY")
	setString(&cfg.OpenRouter.Model, "TUTOR_OPENROUTER_MODEL")

	if v := os.Getenv("TUTOR_LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Timeout = d
		}
	}
}

// DiscoverConfig probes the vendors' standard API key variables and
// returns a Config for the first provider whose key is found.
func DiscoverConfig() (Config, bool) {
	cfg := DefaultConfig()

	switch {
	case os.Getenv("ANTHROPIC_API_KEY") != "":
		cfg.Provider = "anthropic"
		cfg.Anthropic.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	case os.Getenv("OPENAI_API_KEY") != "":
		cfg.Provider = "openai"
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	case os.Getenv("GEMINI_API_KEY") != "":
		cfg.Provider = "gemini"
		cfg.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	case os.Getenv("OPENROUTER_API_KEY") != "":
		cfg.Provider = "openrouter"
		cfg.OpenRouter.APIKey = os.Getenv("OPENROUTER_API_KEY")
	default:
		return Config{}, false
	}
	return cfg, true
}

// HasAPIKey reports whether the selected provider has a key configured.
func (c Config) HasAPIKey() bool {
	switch c.Provider {
	case "anthropic":
		return c.Anthropic.APIKey != ""
	case "openai":
		return c.OpenAI.APIKey != ""
	case "gemini":
		return c.Gemini.APIKey != ""
	case "openrouter":
		return c.OpenRouter.APIKey != ""
	case "mock":
		return true
	}
	return false
}

// Validate checks that the selected provider is known and has its key.
func (c Config) Validate() error {
	switch c.Provider {
	case "anthropic", "openai", "gemini", "openrouter", "mock":
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	if !c.HasAPIKey() {
		return fmt.Errorf("an API key is required for the %s provider (set TUTOR_%s_API_KEY)",
			c.Provider, envName(c.Provider))
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("LLM timeout must be positive, got %s", c.Timeout)
	}
	return nil
}

func envName(provider string) string {
	switch provider {
	case "openai":
		return "OPENAI"
	case "gemini":
		return "GEMINI"
	case "openrouter":
		return "OPENROUTER"
	default:
		return "ANTHROPIC"
	}
}
