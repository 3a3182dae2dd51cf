package cli

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/buildforge/wincore/internal/activity"
	"github.com/buildforge/wincore/internal/config"
	"github.com/buildforge/wincore/internal/download"
	"github.com/buildforge/wincore/internal/extract"
	"github.com/buildforge/wincore/internal/jfrog"
	"github.com/buildforge/wincore/internal/retention"
	"github.com/buildforge/wincore/internal/scheduler"
	"github.com/buildforge/wincore/internal/store"
	"github.com/buildforge/wincore/pkg/logger"
)

// app holds the pieces every command needs: bootstrap file, store, config
// provider, loggers.
type app struct {
	file     *config.File
	store    *store.Store
	cfg      *config.Provider
	log      *logger.Logger
	activity *activity.Log
	clock    clock.Clock
}

// openApp loads the bootstrap file and opens the database.
func openApp() (*app, error) {
	file, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load bootstrap config: %w", err)
	}

	st, err := store.Open(file.DatabasePath)
	if err != nil {
		return nil, err
	}

	log := logger.NewLogger()
	clk := clock.New()
	return &app{
		file:     file,
		store:    st,
		cfg:      config.NewProvider(st, clk),
		log:      log,
		activity: activity.New(st, log, file.ActivityStreamPath, clk.Now),
		clock:    clk,
	}, nil
}

func (a *app) Close() {
	a.activity.Close()
	a.store.Close()
}

// newClient builds the repository client from credentials in system config.
func (a *app) newClient(ctx context.Context) (*jfrog.Client, error) {
	baseURL, user, pass, err := a.cfg.Credentials(ctx)
	if err != nil {
		return nil, err
	}
	return jfrog.NewClient(baseURL, user, pass, jfrog.Options{
		RetryAttempts: a.cfg.RetryAttempts(ctx),
		LookbackDays:  a.cfg.MaxLookbackDays(ctx),
		Clock:         a.clock,
	}, a.log), nil
}

// newScheduler wires the full engine: client, managers, scheduler.
func (a *app) newScheduler(ctx context.Context) (*scheduler.Scheduler, error) {
	client, err := a.newClient(ctx)
	if err != nil {
		return nil, err
	}
	baseDrive, err := a.cfg.Require(ctx, config.KeyBaseDrive)
	if err != nil {
		return nil, err
	}

	downloads := download.NewManager(client, baseDrive, a.cfg.DownloadTimeout(ctx), a.log)
	extractor := extract.NewExtractor(a.cfg.ExtractionTimeout(ctx), a.log)
	retain := retention.NewManager(a.store, a.cfg.MaxBuildsToKeep, a.activity, a.log, a.clock.Now)

	return scheduler.New(scheduler.Deps{
		Store:         a.store,
		Config:        a.cfg,
		Client:        client,
		Downloads:     downloads,
		Extractor:     extractor,
		Retention:     retain,
		Activity:      a.activity,
		Logger:        a.log,
		Clock:         a.clock,
		TickInterval:  a.file.TickInterval(),
		ShutdownGrace: a.file.ShutdownGrace(),
		BaseDrive:     baseDrive,
	}), nil
}
