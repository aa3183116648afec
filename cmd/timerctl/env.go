package main

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"timerkit/internal/config"
	"timerkit/internal/logging"
	"timerkit/internal/security"
	"timerkit/internal/store"
	"timerkit/internal/timer"
)

// env is what every command needs: configuration, a logger and the store.
type env struct {
	loader *config.Loader
	cfg    *config.Config
	logger *logging.Logger
	store  *store.Store
}

func openEnv(cctx *cli.Context) (*env, error) {
	loader := config.NewLoader(cctx.String("config"))
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if lvl := cctx.String("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}

	lc, err := cfg.LoggingConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(lc)
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}
	logging.SetDefault(logger)
	logger.Debug("logging configured", "log_level", logging.LevelString(lc.Level), "output", lc.Output)

	st, err := openStore(cfg)
	if err != nil {
		logger.Close()
		return nil, err
	}
	return &env{loader: loader, cfg: cfg, logger: logger, store: st}, nil
}

func openStore(cfg *config.Config) (*store.Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}
	master, err := security.LoadOrCreateKey(cfg.Storage.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("load master key: %w", err)
	}
	key, err := security.DeriveKeyWithLabel(master, "store")
	if err != nil {
		return nil, err
	}
	return store.Open(cfg.Storage.Path, key, store.WithBusyTimeout(cfg.BusyTimeout()))
}

func (e *env) Close() error {
	return errors.Join(e.store.Close(), e.loader.Close(), e.logger.Sync(), e.logger.Close())
}

// own acquires the owner lock for id, so no other timerctl process drives
// or edits the session meanwhile.
func (e *env) own(id string) (*store.Owner, error) {
	owner, err := store.AcquireOwner(e.cfg.Storage.LockDir, id)
	if errors.Is(err, store.ErrLocked) {
		return nil, fmt.Errorf("%w; stop the running timerctl first", err)
	}
	return owner, err
}

// withSession runs fn on a loaded session while holding its owner lock.
func withSession(cctx *cli.Context, fn func(*env, *timer.Session) error) error {
	id := cctx.Args().First()
	if id == "" {
		return fmt.Errorf("need to provide a session id as an argument")
	}

	e, err := openEnv(cctx)
	if err != nil {
		return err
	}
	defer e.Close()

	owner, err := e.own(id)
	if err != nil {
		return err
	}
	defer owner.Release()

	sess, err := e.store.Load(id)
	if err != nil {
		return err
	}
	return fn(e, sess)
}
