package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/msageha/baton/internal/contextstore"
	"github.com/msageha/baton/internal/engine"
	"github.com/msageha/baton/internal/lock"
	"github.com/msageha/baton/internal/logging"
	"github.com/msageha/baton/internal/model"
	"github.com/msageha/baton/internal/prompt"
	"github.com/msageha/baton/internal/sequencer"
	"github.com/msageha/baton/internal/setup"
	"github.com/msageha/baton/internal/state"
	"github.com/msageha/baton/internal/triage"
)

// app is the wired set of collaborators for one command invocation.
type app struct {
	batonDir string
	cfg      model.Config
	logger   *logging.Logger
	store    *state.Store
	ctxStore *contextstore.Store
	engine   *engine.Engine
	seq      *sequencer.Sequencer
	lock     *lock.Session
}

func (o *globalOptions) workspace() (string, error) {
	start := o.dir
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
		start = wd
	}
	return setup.FindWorkspace(start)
}

func (o *globalOptions) open() (*app, error) {
	batonDir, err := o.workspace()
	if err != nil {
		return nil, err
	}
	cfg, err := setup.LoadConfig(batonDir)
	if err != nil {
		return nil, err
	}

	levelName := cfg.Logging.Level
	if o.logLevel != "" {
		levelName = o.logLevel
	}
	logger, err := logging.Open(batonDir, logging.ParseLevel(levelName))
	if err != nil {
		return nil, err
	}

	scope, err := triage.NewScopeChecker(cfg.Triage.DestructivePatterns)
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("triage patterns: %w", err)
	}

	store := state.New(batonDir)
	ctxStore := contextstore.New(filepath.Join(batonDir, "context"),
		contextstore.WithAudit(cfg.Audit.MaxLogBytes, cfg.Audit.Checksum))
	renderer, err := prompt.New(ctxStore)
	if err != nil {
		logger.Close()
		return nil, err
	}
	eng, err := engine.New(store, ctxStore, renderer,
		engine.WithLogger(logger),
		engine.WithScopeChecker(scope),
	)
	if err != nil {
		logger.Close()
		return nil, err
	}
	seq, err := sequencer.New(store, eng,
		sequencer.WithLogger(logger),
		sequencer.WithAction(sequencer.ActionLoadPlan, sequencer.LoadPlan(sequencer.PlanSource{
			Path:     setup.Resolve(batonDir, cfg.Engine.PlanPath),
			Defaults: cfg.Engine,
		})),
	)
	if err != nil {
		logger.Close()
		return nil, err
	}

	return &app{
		batonDir: batonDir,
		cfg:      cfg,
		logger:   logger,
		store:    store,
		ctxStore: ctxStore,
		engine:   eng,
		seq:      seq,
		lock:     lock.NewSession(filepath.Join(batonDir, "locks", setup.SessionLockFile)),
	}, nil
}

func (a *app) Close() {
	if err := a.ctxStore.Close(); err != nil {
		a.logger.Log(logging.LevelWarn, "cli", "close context store: %v", err)
	}
	a.logger.Close()
}

// withLock runs fn holding the session lock.
func (a *app) withLock(ctx context.Context, fn func() error) error {
	timeout := time.Duration(a.cfg.Lock.TimeoutSec) * time.Second
	return a.lock.WithLock(ctx, timeout, fn)
}
