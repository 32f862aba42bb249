package tutor

import "time"

// Config holds turn orchestration settings.
type Config struct {
	// GenerationTimeout bounds the model call, retries included.
	GenerationTimeout time.Duration `yaml:"generation_timeout"`

	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`

	// HistoryTurns is how many recent turns are replayed to the model.
	HistoryTurns int `yaml:"history_turns"`

	// StoreTimeout bounds best-effort writes made after the reply exists.
	StoreTimeout time.Duration `yaml:"store_timeout"`
}

// DefaultConfig returns sensible defaults for tutoring turns.
func DefaultConfig() Config {
	return Config{
		GenerationTimeout: 25 * time.Second,
		MaxTokens:         1024,
		Temperature:       0.4,
		HistoryTurns:      10,
		StoreTimeout:      5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.GenerationTimeout <= 0 {
		c.GenerationTimeout = def.GenerationTimeout
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = def.MaxTokens
	}
	if c.HistoryTurns < 0 {
		c.HistoryTurns = 0
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = def.StoreTimeout
	}
	return c
}
