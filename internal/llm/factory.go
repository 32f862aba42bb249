package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/fpachisa/TutorAI-sub000/internal/logger"
	"github.com/fpachisa/TutorAI-sub000/internal/store"
)

// Options carries the collaborators wired around a provider.
type Options struct {
	Events store.EventRepo
	Log    *logger.Logger
}

// NewProvider builds the configured provider wrapped as
// caller → timeout → retry → logging → base, so each attempt is logged and
// the timeout covers every retry.
func NewProvider(ctx context.Context, cfg Config, opts Options) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		base Provider
		err  error
	)
	switch cfg.Provider {
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "openrouter":
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	case "mock":
		return NewMockProvider(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	logged := WithLogging(base, cfg.Provider, opts.Events, opts.Log)
	retried := WithRetry(logged, cfg.Retry)
	if opts.Log != nil {
		log := opts.Log.With("component", "llm")
		retried.OnRetry(func(attempt int, err error, wait time.Duration) {
			log.Info("retrying llm request", "attempt", attempt, "wait", wait.String(), "error", err)
		})
	}
	return WithTimeout(retried, cfg.Timeout), nil
}

// NewProviderFromEnv resolves configuration from TUTOR_* variables, or from
// the vendors' standard key variables when no TUTOR_* key is set.
func NewProviderFromEnv(ctx context.Context, opts Options) (Provider, Config, error) {
	cfg := ConfigFromEnv()
	if !cfg.HasAPIKey() {
		if found, ok := DiscoverConfig(); ok {
			cfg = found
		}
	}
	p, err := NewProvider(ctx, cfg, opts)
	return p, cfg, err
}
