package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fpachisa/TutorAI-sub000/internal/config"
	"github.com/fpachisa/TutorAI-sub000/internal/curriculum"
	"github.com/fpachisa/TutorAI-sub000/internal/llm"
	"github.com/fpachisa/TutorAI-sub000/internal/logger"
	"github.com/fpachisa/TutorAI-sub000/internal/metrics"
	"github.com/fpachisa/TutorAI-sub000/internal/policy"
	"github.com/fpachisa/TutorAI-sub000/internal/safety"
	"github.com/fpachisa/TutorAI-sub000/internal/session"
	"github.com/fpachisa/TutorAI-sub000/internal/store"
	"github.com/fpachisa/TutorAI-sub000/internal/tutor"
)

// deps is everything a command may need, built from configuration and
// flags. Close releases whatever was opened.
type deps struct {
	cfg      config.Config
	log      *logger.Logger
	db       *store.Store
	sessions session.Store
	content  curriculum.ContentStore
	metrics  *metrics.Metrics
	closers  []func() error
}

// loadConfig reads --config and applies --db and --memory on top.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if p, _ := cmd.Flags().GetString("db"); p != "" {
		cfg.Store.DSN = p
	}
	if mem, _ := cmd.Flags().GetBool("memory"); mem {
		cfg.Store.Driver = "memory"
	}
	return cfg, cfg.Validate()
}

func setup(cmd *cobra.Command) (*deps, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(logger.Options{
		Mode:     cfg.Log.Mode,
		Level:    cfg.Log.Level,
		Redact:   cfg.Log.Redact,
		HashSalt: cfg.Log.HashSalt,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	d := &deps{cfg: cfg, log: log, metrics: metrics.New()}
	ok := false
	defer func() {
		if !ok {
			d.Close()
		}
	}()

	if err := d.openSessions(cmd.Context()); err != nil {
		return nil, err
	}
	if err := d.openContent(cmd.Context()); err != nil {
		return nil, err
	}
	ok = true
	return d, nil
}

func (d *deps) openSessions(ctx context.Context) error {
	if d.cfg.Store.Driver == "memory" {
		d.sessions = session.NewMemoryStore()
		return nil
	}

	dsn := d.cfg.Store.DSN
	if dsn == "" {
		p, err := store.DefaultDBPath()
		if err != nil {
			return fmt.Errorf("resolve database path: %w", err)
		}
		dsn = p
	} else if err := store.EnsureDir(dsn); err != nil {
		return fmt.Errorf("create database dir: %w", err)
	}

	db, err := store.OpenContext(ctx, dsn)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	d.db = db
	d.sessions = db.SessionRepo()
	d.closers = append(d.closers, db.Close)
	d.log.Debug("session store opened", "dsn", dsn)
	return nil
}

func (d *deps) openContent(ctx context.Context) error {
	fsys := curriculum.Builtin()
	if dir := d.cfg.Curriculum; dir != "" {
		fsys = os.DirFS(dir)
	}
	files, err := curriculum.NewFileStore(fsys)
	if err != nil {
		return err
	}
	d.content = files

	if addr := d.cfg.Redis.Addr; addr != "" {
		cache, err := curriculum.NewRedisCache(ctx, addr, d.cfg.Redis.Prefix)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		d.closers = append(d.closers, cache.Close)
		d.content = curriculum.NewCachedStore(files, cache, d.cfg.Redis.TTL, d.log)
	}
	return nil
}

// provider builds the configured model provider. When no TUTOR_* key is
// set it falls back to the vendors' standard key variables.
func (d *deps) provider(ctx context.Context) (llm.Provider, error) {
	cfg := d.cfg.LLM
	if !cfg.HasAPIKey() {
		if found, ok := llm.DiscoverConfig(); ok {
			found.Timeout, found.Retry = cfg.Timeout, cfg.Retry
			found.MaxTokens, found.Temperature = cfg.MaxTokens, cfg.Temperature
			cfg = found
		}
	}

	var events store.EventRepo
	if d.db != nil {
		events = d.db.EventRepo()
	}
	return llm.NewProvider(ctx, cfg, llm.Options{Events: events, Log: d.log})
}

func (d *deps) tutorService(ctx context.Context) (*tutor.Service, error) {
	p, err := d.provider(ctx)
	if err != nil {
		return nil, fmt.Errorf("LLM provider not configured: %w", err)
	}
	return tutor.NewService(tutor.Deps{
		Provider: p,
		Content:  d.content,
		Sessions: d.sessions,
		Filter:   safety.NewTextFilter(d.cfg.Safety),
		Policy:   policy.New(d.cfg.Policy),
		Metrics:  d.metrics,
		Log:      d.log,
	}, d.cfg.Tutor)
}

func (d *deps) Close() {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	if err := errors.Join(errs...); err != nil {
		d.log.Warn("shutdown", "error", err)
	}
	d.log.Sync()
}
