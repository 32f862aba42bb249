// Package config assembles the application configuration from defaults, an
// optional YAML file, a .env file and TUTOR_* environment variables, in
// that order of precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/fpachisa/TutorAI-sub000/internal/llm"
	"github.com/fpachisa/TutorAI-sub000/internal/policy"
	"github.com/fpachisa/TutorAI-sub000/internal/safety"
	"github.com/fpachisa/TutorAI-sub000/internal/tutor"
)

// Config is the full application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Curriculum is a directory of content documents. Empty serves the
	// built-in curriculum.
	Curriculum string `yaml:"curriculum"`

	LLM    llm.Config     `yaml:"llm"`
	Tutor  tutor.Config   `yaml:"tutor"`
	Policy policy.Config  `yaml:"policy"`
	Safety safety.Options `yaml:"safety"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	RatePerMinute  int           `yaml:"rate_per_minute"`
	RateBurst      int           `yaml:"rate_burst"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type LogConfig struct {
	Mode     string `yaml:"mode"`
	Level    string `yaml:"level"`
	Redact   bool   `yaml:"redact"`
	HashSalt string `yaml:"hash_salt"`
}

type StoreConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string `yaml:"driver"`
	// DSN is the SQLite database path. Empty means the per-user default.
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	// Addr enables the curriculum content cache when set.
	Addr   string        `yaml:"addr"`
	Prefix string        `yaml:"prefix"`
	TTL    time.Duration `yaml:"ttl"`
}

type TelemetryConfig struct {
	// Tracing exports spans to stdout when enabled.
	Tracing     bool   `yaml:"tracing"`
	ServiceName string `yaml:"service_name"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
			RatePerMinute:  30,
			RateBurst:      10,
			RequestTimeout: 40 * time.Second,
		},
		Log:       LogConfig{Mode: "dev", Level: "info", Redact: true},
		Store:     StoreConfig{Driver: "sqlite"},
		Redis:     RedisConfig{Prefix: "tutor:content:", TTL: 10 * time.Minute},
		Telemetry: TelemetryConfig{ServiceName: "tutor"},
		LLM:       llm.DefaultConfig(),
		Tutor:     tutor.DefaultConfig(),
		Policy:    policy.DefaultConfig(),
		Safety:    safety.Options{MaxRunes: safety.DefaultMaxRunes},
	}
}

// Load builds the configuration. path names an optional YAML file; a
// missing .env file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	cfg.syncTutor()
	return cfg, nil
}

// syncTutor makes the llm section the single source of the generation
// budget.
func (c *Config) syncTutor() {
	c.Tutor.GenerationTimeout = c.LLM.Timeout
	c.Tutor.MaxTokens = c.LLM.MaxTokens
	c.Tutor.Temperature = c.LLM.Temperature
}

// Validate checks the settings the server cannot run without. LLM
// credentials are checked by the provider factory.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("store.driver must be sqlite or memory, got %q", c.Store.Driver))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.RatePerMinute < 0 || c.Server.RateBurst < 0 {
		errs = append(errs, errors.New("server rate limits must not be negative"))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("llm.timeout must be positive, got %s", c.LLM.Timeout))
	}
	return errors.Join(errs...)
}

func applyEnv(c *Config) error {
	llm.ApplyEnv(&c.LLM)

	setString(&c.Server.Addr, "TUTOR_ADDR")
	setString(&c.Log.Mode, "TUTOR_LOG_MODE")
	setString(&c.Log.Level, "TUTOR_LOG_LEVEL")
	setString(&c.Log.HashSalt, "TUTOR_LOG_HASH_SALT")
	setString(&c.Store.Driver, "TUTOR_STORE")
	setString(&c.Store.DSN, "TUTOR_DB")
	setString(&c.Redis.Addr, "TUTOR_REDIS_ADDR")
	setString(&c.Curriculum, "TUTOR_CURRICULUM_DIR")
	setString(&c.Telemetry.ServiceName, "TUTOR_SERVICE_NAME")

	if v := os.Getenv("TUTOR_ALLOWED_ORIGINS"); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Server.AllowedOrigins = origins
	}

	var errs []error
	errs = append(errs,
		setInt(&c.Server.RatePerMinute, "TUTOR_RATE_PER_MINUTE"),
		setInt(&c.Server.RateBurst, "TUTOR_RATE_BURST"),
		setInt(&c.LLM.MaxTokens, "TUTOR_LLM_MAX_TOKENS"),
		setInt(&c.Tutor.HistoryTurns, "TUTOR_HISTORY_TURNS"),
		setDuration(&c.Redis.TTL, "TUTOR_REDIS_TTL"),
		setDuration(&c.Tutor.StoreTimeout, "TUTOR_STORE_TIMEOUT"),
		setBool(&c.Log.Redact, "TUTOR_LOG_REDACT"),
		setBool(&c.Telemetry.Tracing, "TUTOR_TRACING"),
		setBool(&c.Safety.RedactContacts, "TUTOR_REDACT_CONTACTS"),
	)
	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = i
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func setBool(dst *bool, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}
