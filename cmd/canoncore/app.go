package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/loomworks/canoncore/config"
	"github.com/loomworks/canoncore/drift"
	"github.com/loomworks/canoncore/events"
	"github.com/loomworks/canoncore/pipeline"
	"github.com/loomworks/canoncore/rules"
	"github.com/loomworks/canoncore/schema"
	"github.com/loomworks/canoncore/similarity"
	"github.com/loomworks/canoncore/store"
)

// app bundles the wired validation core for the CLI commands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	compiler *schema.Compiler
	store    *store.FSStore
	corpus   *store.CorpusCache
	pipeline *pipeline.Pipeline
	events   *events.Publisher

	stopWatcher context.CancelFunc
}

// newApp loads configuration and wires the core. A missing config path
// uses defaults.
func newApp(configPath string) (*app, error) {
	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	fsStore, err := store.NewFSStore(cfg.World.EntityDir, logger)
	if err != nil {
		return nil, fmt.Errorf("open entity store: %w", err)
	}

	compiler := schema.NewCompiler(cfg.World.SchemaDir, schema.WithLogger(logger))
	corpus := store.NewCorpusCache(fsStore, cfg.World.CorpusTTL, logger)
	checker := rules.NewChecker(compiler, corpus, logger)
	engine := similarity.NewEngine(corpus, logger)
	detector := drift.NewDetector(corpus, logger)
	pipe := pipeline.New(compiler, checker, engine, detector, corpus,
		pipeline.WithLogger(logger),
		pipeline.WithCurrentStep(cfg.World.CurrentStep),
		pipeline.WithSimilarityTopN(cfg.Validation.SimilarityTopN))

	a := &app{
		cfg:      cfg,
		logger:   logger,
		compiler: compiler,
		store:    fsStore,
		corpus:   corpus,
		pipeline: pipe,
	}

	if cfg.World.WatchTemplates {
		watcher, err := schema.NewWatcher(compiler, logger)
		if err != nil {
			logger.Warn("Template watching unavailable", "error", err)
		} else {
			ctx, cancel := context.WithCancel(context.Background())
			a.stopWatcher = cancel
			go watcher.Run(ctx)
		}
	}

	if cfg.Events.URL != "" {
		pub, err := events.Connect(cfg.Events.URL, logger)
		if err != nil {
			// Telemetry must never block validation work.
			logger.Warn("Event bus unavailable, continuing without events", "error", err)
		} else {
			a.events = pub
		}
	}

	return a, nil
}

// close releases external connections.
func (a *app) close() {
	if a.stopWatcher != nil {
		a.stopWatcher()
	}
	a.events.Close()
}
