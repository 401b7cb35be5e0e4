package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Cyclone1070/propagent/internal/agent"
	"github.com/Cyclone1070/propagent/internal/config"
	"github.com/Cyclone1070/propagent/internal/engine"
	"github.com/Cyclone1070/propagent/internal/ledger"
	"github.com/Cyclone1070/propagent/internal/provider"
	"github.com/Cyclone1070/propagent/internal/provider/gemini"
	"github.com/Cyclone1070/propagent/internal/telemetry"
	"github.com/Cyclone1070/propagent/internal/tool/property"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dependencies holds the pieces of the process that tests replace.
type Dependencies struct {
	Stdout          io.Writer
	Stderr          io.Writer
	LoadConfig      func(path string) (*config.Config, error)
	ProviderFactory func(ctx context.Context, cfg *config.Config) (provider.Provider, error)
	Now             func() time.Time
}

func newDependencies() Dependencies {
	return Dependencies{
		Stdout:          os.Stdout,
		Stderr:          os.Stderr,
		LoadConfig:      config.Load,
		ProviderFactory: createProvider,
		Now:             time.Now,
	}
}

func createProvider(ctx context.Context, cfg *config.Config) (provider.Provider, error) {
	apiKey := os.Getenv(cfg.Provider.APIKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("%s environment variable is required", cfg.Provider.APIKeyEnv)
	}
	client, err := gemini.Dial(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	return provider.NewRateLimited(gemini.New(client, cfg.Provider.Model), cfg.Provider.RequestsPerSecond, cfg.Provider.Burst), nil
}

// cli carries what every command needs.
type cli struct {
	ctx  context.Context
	opts *Options
	deps Dependencies
}

// app is the wired process for one command.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	service *engine.Service
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// open wires config, logging, telemetry, the ledger and the engine. Only runs
// need a model provider.
func (c *cli) open(withProvider bool) (*app, error) {
	cfg, err := c.deps.LoadConfig(c.opts.Config)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Log, c.deps.Stderr)
	a := &app{cfg: cfg, logger: logger}

	shutdown, err := telemetry.Setup(c.ctx, cfg.Telemetry, version, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdown(ctx)
	})

	l, err := a.openLedger(c.ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	var llm provider.Provider
	if withProvider {
		llm, err = c.deps.ProviderFactory(c.ctx, cfg)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("create provider: %w", err)
		}
	}

	registry, err := buildRegistry(cfg, c.deps.Now)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.service, err = engine.New(registry, llm, l, engine.Options{
		RunTimeout:   time.Duration(cfg.Orchestrator.RunTimeoutMs) * time.Millisecond,
		ModelTimeout: time.Duration(cfg.Orchestrator.ModelTimeoutMs) * time.Millisecond,
	}, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openLedger(ctx context.Context) (*ledger.Ledger, error) {
	db, err := openDB(a.cfg.Ledger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db.Close)

	store := ledger.NewSQLStore(db)
	if err := store.Init(ctx); err != nil {
		return nil, err
	}

	var notifier ledger.Notifier = ledger.NopNotifier{}
	if n := a.cfg.Notify; n.RedisAddr != "" {
		rn, closeRedis := ledger.DialRedisNotifier(n.RedisAddr, n.RedisPassword, n.RedisDB, n.RedisChannel)
		a.closers = append(a.closers, closeRedis)
		notifier = rn
	}
	return ledger.New(store, notifier, a.logger)
}

// openDB maps the configured ledger driver to a database/sql driver name.
func openDB(cfg config.LedgerConfig) (*sql.DB, error) {
	var driver string
	switch cfg.Driver {
	case "sqlite":
		driver = "sqlite"
	case "postgres":
		driver = "postgres"
	default:
		return nil, fmt.Errorf("unsupported ledger driver %q", cfg.Driver)
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s ledger: %w", cfg.Driver, err)
	}
	// Each connection to an in-memory sqlite database is a separate database.
	if driver == "sqlite" && strings.Contains(cfg.DSN, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// buildRegistry registers the builtin personas over a seeded demo portfolio,
// then applies the optional definitions file.
func buildRegistry(cfg *config.Config, now func() time.Time) (*agent.Registry, error) {
	store := property.NewInMemoryStore()
	property.Seed(store, now())
	catalog := property.NewToolset(store, now).Tools()

	defs, err := agent.Builtin(catalog)
	if err != nil {
		return nil, err
	}
	if path := cfg.Agents.DefinitionsFile; path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open agent definitions: %w", err)
		}
		overrides, err := agent.LoadDefinitions(f, catalog)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		defs = agent.Merge(defs, overrides)
	}

	registry := agent.NewRegistry(agent.Defaults{
		Model:         cfg.Provider.Model,
		MaxIterations: cfg.Orchestrator.DefaultMaxIterations,
	})
	for _, d := range defs {
		if _, err := registry.Register(d); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
