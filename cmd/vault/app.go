package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fahmaliyi/securevault/cli"
	"github.com/fahmaliyi/securevault/config"
	"github.com/fahmaliyi/securevault/logging"
	"github.com/fahmaliyi/securevault/store"
	"github.com/fahmaliyi/securevault/vault"
)

// Prompts are variables so tests can answer them.
var (
	readPassword    = cli.ReadPassword
	readNewPassword = cli.ReadNewPassword
)

const boltOpenTimeout = time.Second

// app is one process's wiring: configuration, logger, stores and the
// session built on them.
type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	session *vault.Session
	file    *store.FileBackend

	closers []func() error
}

func newApp(flags config.Flags, logOut io.Writer) (*app, error) {
	cfg, err := config.Load(flags)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	log, err := logging.New("securevault", logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Writer: logOut,
	})
	if err != nil {
		return nil, err
	}
	cfg.Log(log)

	a := &app{cfg: cfg, log: log}
	deps := vault.Deps{
		Secrets: store.NewSecrets(),
		Files:   store.LocalFiles{Dir: cfg.ExportDir},
		Log:     logging.Component(log, "vault"),
		Events: vault.Events{
			OnLogin:  func() { log.Debug().Msg("vault unlocked") },
			OnLogout: func() { log.Debug().Msg("vault locked") },
			OnSaveComplete: func(c vault.Collection) {
				log.Debug().Str("collection", string(c)).Msg("collection saved")
			},
		},
	}

	switch cfg.Backend {
	case config.BackendFile:
		creds, err := store.NewDir(filepath.Join(cfg.DataDir, "credentials"))
		if err != nil {
			return nil, err
		}
		a.file = store.NewFileBackend(cfg.VaultFile, logging.Component(log, "store"))
		deps.Backend = a.file
		deps.Credentials = vault.NewFileCredentialStore(creds, a.file)
	case config.BackendDir:
		kv, err := store.NewDir(filepath.Join(cfg.DataDir, "vault"))
		if err != nil {
			return nil, err
		}
		deps.Backend = store.NewKVBackend(kv)
		deps.Credentials = vault.NewCredentialStore(kv)
	case config.BackendBolt:
		db, err := store.OpenBolt(filepath.Join(cfg.DataDir, "vault.db"), boltOpenTimeout)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		deps.Backend = store.NewKVBackend(db)
		deps.Credentials = vault.NewCredentialStore(db)
	}

	opts := vault.DefaultOptions()
	opts.KDF = cfg.KDFParams()
	opts.FlushTimeout = cfg.FlushTimeout
	if a.session, err = vault.NewSession(deps, opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) Close() error {
	if a.session != nil {
		a.session.Logout()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) unlock(ctx context.Context) error {
	pw, err := readPassword("Enter master password: ")
	if err != nil {
		return err
	}
	defer vault.Zero(pw)
	return a.session.Unlock(ctx, pw)
}

// create sets up a new vault with a password asked twice.
func (a *app) create(ctx context.Context) error {
	pw, err := readNewPassword("Set master password: ")
	if err != nil {
		return err
	}
	defer vault.Zero(pw)
	return a.session.CreateVault(ctx, pw)
}

// openOrCreate unlocks the vault, creating it first when there is none.
func (a *app) openOrCreate(ctx context.Context, out io.Writer) error {
	err := a.unlock(ctx)
	if !errors.Is(err, vault.ErrNoVault) {
		return err
	}
	fmt.Fprintln(out, "No vault found. Setting up new master password.")
	return a.create(ctx)
}

// interactive runs fn with autosave and, for file vaults, a watcher for
// foreign changes. Staged changes are saved when fn returns.
func (a *app) interactive(ctx context.Context, fn func(ctx context.Context, changes <-chan string) error) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.session.RunAutosave(ctx, a.cfg.AutosaveInterval)
	}()

	var changes chan string
	if a.file != nil {
		changes = make(chan string, 1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(changes)
			err := a.file.Watch(ctx, func(path string) {
				select {
				case changes <- path:
				default:
				}
			})
			if err != nil {
				a.log.Warn().Err(err).Msg("vault file watcher stopped")
			}
		}()
	}

	err := fn(ctx, changes)
	if serr := a.session.Save(context.WithoutCancel(ctx)); serr != nil && !errors.Is(serr, vault.ErrLocked) {
		err = errors.Join(err, serr)
	}
	return err
}
