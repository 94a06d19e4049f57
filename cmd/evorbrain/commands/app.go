package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/evorbrain/evorbrain/pkg/config"
	"github.com/evorbrain/evorbrain/pkg/policy"
	"github.com/evorbrain/evorbrain/pkg/service"
	"github.com/evorbrain/evorbrain/pkg/stores"
	"github.com/evorbrain/evorbrain/pkg/telemetry"
)

// app holds everything a command needs to talk to the database.
type app struct {
	cfg    *config.Config
	tel    *telemetry.Telemetry
	store  *stores.SQLiteStore
	guards *policy.Engine
	svc    *service.Service
}

type openOptions struct {
	// console keeps service logs on stderr even without --verbose.
	console bool
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath, dataDir)
}

// openApp loads the configuration, opens and migrates the database and
// builds the service.
func openApp(ctx context.Context, opts openOptions) (a *app, err error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	telCfg := cfg.TelemetryOptions(buildVersion)
	switch {
	case verbose:
		telCfg.Logging.Level = "debug"
	case !opts.console:
		telCfg.Logging.Output = "none"
	}
	tel, err := telemetry.NewTelemetry(telCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	a = &app{cfg: cfg, tel: tel}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	storeCfg, err := cfg.StoreConfig()
	if err != nil {
		return nil, err
	}
	a.store, err = stores.NewSQLiteStore(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := a.store.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := a.store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	a.guards, err = policy.NewEngine(tel.Logger.Zerolog())
	if err != nil {
		return nil, fmt.Errorf("failed to create policy engine: %w", err)
	}
	if paths := a.policyPaths(); len(paths) > 0 {
		if err := a.guards.LoadPolicies(ctx, paths); err != nil {
			return nil, err
		}
	}

	a.svc, err = service.New(service.Options{
		Store:     a.store,
		Guards:    a.guards,
		Telemetry: tel,
	})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("data_dir", cfg.DataDir).
		Str("database", storeCfg.Path).
		Msg("Application opened")
	return a, nil
}

// policyPaths resolves the configured policy paths against the data dir.
func (a *app) policyPaths() []string {
	paths := make([]string, 0, len(a.cfg.Policies.Paths))
	for _, p := range a.cfg.Policies.Paths {
		if !filepath.IsAbs(p) {
			p = filepath.Join(a.cfg.DataDir, p)
		}
		paths = append(paths, p)
	}
	return paths
}

// Close releases the store and flushes telemetry.
func (a *app) Close() error {
	var errs []error
	if a.guards != nil {
		if err := a.guards.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, err)
		}
		a.store = nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tel.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// withService opens the application for the duration of fn.
func withService(ctx context.Context, fn func(svc *service.Service) error) (err error) {
	a, err := openApp(ctx, openOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(a.svc)
}
