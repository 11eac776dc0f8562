// Package app assembles the stores, publisher, pipeline, scheduler and HTTP
// server into one running process.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/clipcast/internal/accounts"
	"github.com/watzon/clipcast/internal/browser"
	"github.com/watzon/clipcast/internal/config"
	"github.com/watzon/clipcast/internal/content"
	"github.com/watzon/clipcast/internal/database"
	"github.com/watzon/clipcast/internal/media"
	"github.com/watzon/clipcast/internal/pipeline"
	"github.com/watzon/clipcast/internal/posts"
	"github.com/watzon/clipcast/internal/publisher"
	"github.com/watzon/clipcast/internal/publisher/drivers"
	"github.com/watzon/clipcast/internal/scheduler"
	"github.com/watzon/clipcast/internal/schedules"
	"github.com/watzon/clipcast/internal/server"
	"github.com/watzon/clipcast/internal/sessions"
	"github.com/watzon/clipcast/internal/storage"
)

// staleReason is recorded on posts left pending by a previous process.
const staleReason = "interrupted: process restarted before the publish finished"

// App owns every long-lived component. Build it with New, run it with Run.
type App struct {
	cfg *config.Config

	DB        *database.DB
	Schedules *schedules.Store
	Accounts  *accounts.Store
	Posts     *posts.Store
	Media     *media.Library
	Sessions  *sessions.Store
	Publisher *publisher.Publisher
	Pipeline  *pipeline.Pipeline
	State     *scheduler.StateStore
	Scheduler *scheduler.Scheduler
	Server    *server.Server
}

// Options override components, mostly for tests.
type Options struct {
	Version string
	// Content replaces the generator built from cfg.Content.
	Content content.Service
	// Launcher replaces the Chrome launcher built from cfg.Browser.
	Launcher publisher.Launcher
	// Drivers replaces the built-in platform drivers.
	Drivers []publisher.Driver
}

// New opens the database and wires every component. Nothing is started.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	loc := time.Local
	if cfg.Scheduler.Timezone != "" {
		l, err := time.LoadLocation(cfg.Scheduler.Timezone)
		if err != nil {
			return nil, fmt.Errorf("loading scheduler timezone: %w", err)
		}
		loc = l
	}

	backend, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("creating storage backend: %w", err)
	}

	cs := opts.Content
	if cs == nil {
		gen, err := content.New(ctx, cfg.Content)
		if err != nil {
			return nil, fmt.Errorf("creating content service: %w", err)
		}
		cs = gen
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	a := &App{
		cfg:       cfg,
		DB:        db,
		Schedules: schedules.NewStore(db),
		Accounts:  accounts.NewStore(db),
		Posts:     posts.NewStore(db),
		Sessions:  sessions.NewStore(cfg.Sessions.Root),
		State:     scheduler.NewStateStore(db),
	}
	a.Media = media.NewLibrary(media.NewStore(db), backend, nil)

	launcher := opts.Launcher
	if launcher == nil {
		launcher = browser.NewLauncher(cfg.Browser)
	}
	driverSet := opts.Drivers
	if driverSet == nil {
		driverSet = drivers.Builtin()
	}
	a.Publisher = publisher.New(publisher.NewRegistry(driverSet...), a.Sessions, launcher, cfg.Publisher.Timeout)

	a.Pipeline = pipeline.New(a.Accounts, a.Posts, a.Media, cs, a.Publisher, pipeline.Options{
		MaxParallel:  cfg.Pipeline.MaxParallel,
		CycleTimeout: cfg.Pipeline.CycleTimeout,
	})

	a.Scheduler = scheduler.New(a.Pipeline, a.State, scheduler.Options{
		Location: loc,
		Catchup:  cfg.Scheduler.Catchup,
	})

	a.Server = server.New(cfg, db, server.Deps{
		Schedules: a.Schedules,
		Accounts:  a.Accounts,
		Posts:     a.Posts,
		Media:     a.Media,
		Sessions:  a.Sessions,
		Scheduler: a.Scheduler,
		State:     a.State,
		Version:   opts.Version,
	})

	return a, nil
}

// Recover fails posts orphaned by a previous process, then starts the scheduler
// and registers every active schedule.
func (a *App) Recover(ctx context.Context) (scheduler.BootstrapReport, error) {
	n, err := a.Posts.FailStale(ctx, time.Now().UTC(), staleReason)
	if err != nil {
		return scheduler.BootstrapReport{}, err
	}
	if n > 0 {
		log.Warn().Int64("count", n).Msg("Marked interrupted posts as failed")
	}

	list, err := a.Schedules.ListActive(ctx)
	if err != nil {
		return scheduler.BootstrapReport{}, fmt.Errorf("listing active schedules: %w", err)
	}

	a.Scheduler.Start(ctx)
	report := a.Scheduler.Bootstrap(ctx, list)

	log.Info().
		Int("registered", len(report.Registered)).
		Int("failed", len(report.Failed)).
		Int("caught_up", len(report.CaughtUp)).
		Msg("Schedules bootstrapped")

	return report, nil
}

// Run recovers state and serves HTTP until Shutdown is called.
func (a *App) Run(ctx context.Context) error {
	if _, err := a.Recover(ctx); err != nil {
		return err
	}
	return a.Server.Start()
}

// Shutdown stops accepting requests, waits for in-flight cycles up to the
// configured timeout and closes the database.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	if err := a.Server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down server: %w", err))
	}

	stopCtx := ctx
	if timeout := a.cfg.Scheduler.ShutdownTimeout; timeout > 0 {
		var cancel context.CancelFunc
		stopCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := a.Scheduler.Stop(stopCtx); err != nil {
		errs = append(errs, fmt.Errorf("stopping scheduler: %w", err))
	}

	if err := a.DB.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}

	return errors.Join(errs...)
}
