// Package app assembles the console from its parts and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"adminbot/internal/auth"
	"adminbot/internal/config"
	"adminbot/internal/console"
	"adminbot/internal/eventbus"
	"adminbot/internal/flow"
	"adminbot/internal/roles"
	"adminbot/internal/runtime/supervisor"
	"adminbot/internal/services/broadcast"
	"adminbot/internal/session"
	"adminbot/internal/sheets"
	"adminbot/internal/storage"
	"adminbot/internal/transport"
	"adminbot/internal/transport/telegram"
	"adminbot/pkg/logx"
)

type App struct {
	cfg    *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store   storage.Store
	adapter *telegram.Adapter
}

// New loads the config and constructs everything that can fail fast:
// logging, storage, and the transport. The rest is wired in Run.
func New(configPath string) (*App, error) {
	mgr := config.NewManager(configPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
	})
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	store, err := storage.Open(storage.Config{
		Driver:      cfg.StorageDriver(),
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.BusyTimeout(),
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.PollTimeout(),
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, fmt.Errorf("init transport: %w", err)
	}

	return &App{cfg: mgr, logSvc: logSvc, log: log, store: store, adapter: adapter}, nil
}

// Run wires the console together and blocks until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	cfg := a.cfg.Get()

	registry := roles.NewRegistry(cfg.Console.PrimaryAdminID, cfg.Console.PrimaryApproverID)
	if err := a.hydrateRoles(ctx, registry); err != nil {
		return fmt.Errorf("hydrate roles: %w", err)
	}

	sup := supervisor.New(ctx, supervisor.WithLogger(a.log))
	bus := eventbus.New()
	sessions := session.NewStore()

	blog := a.log.With(logx.String("comp", "broadcast"))
	disp := broadcast.NewDispatcher(a.notifier(cfg.RetryMax()), blog,
		broadcast.WithRate(cfg.BroadcastRate()),
		broadcast.WithProgressEvery(cfg.ProgressEvery()))
	bcast := broadcast.NewService(a.store, disp, sup, bus, blog)

	verifier := sheets.NewClient(a.log.With(logx.String("comp", "sheets")),
		sheets.WithBaseURL(cfg.Sheets.BaseURL),
		sheets.WithTimeout(cfg.ProbeTimeout()))

	defs := flow.BuildDefinitions(flow.Deps{
		Registry:       registry,
		Store:          a.store,
		Sheets:         verifier,
		StartBroadcast: bcast.Start,
	})
	engine := flow.NewEngine(sessions, defs, a.log.With(logx.String("comp", "flow")))
	cons := console.New(a.adapter, engine, sessions, auth.NewGate(registry), registry,
		a.store, bus, a.log.With(logx.String("comp", "console")))

	updates := make(chan transport.Update, 256)
	if err := a.adapter.Start(sup.Context(), updates); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}

	sup.Go("console.updates", func(ctx context.Context) error {
		return cons.Run(ctx, updates)
	})
	sup.Go("console.events", cons.RunEvents)
	sup.GoRestart("config.watch", a.cfg.Watch)
	a.watchLogging(sup)

	if ttl := cfg.SessionTTL(); ttl > 0 {
		cr := cron.New()
		if _, err := cr.AddFunc(cfg.SweepSchedule(), func() {
			if n := sessions.SweepIdle(ttl); n > 0 {
				a.log.Info("stale sessions swept", logx.Int("count", n))
			}
		}); err != nil {
			return fmt.Errorf("sweep schedule %q: %w", cfg.SweepSchedule(), err)
		}
		cr.Start()
		defer func() { <-cr.Stop().Done() }()
	}

	a.log.Info("console up",
		logx.Int64("primary_admin", cfg.Console.PrimaryAdminID),
		logx.String("storage", cfg.StorageDriver()))

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.adapter.Stop(shutdownCtx)
	if err := sup.Stop(shutdownCtx); err != nil &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		a.log.Warn("shutdown incomplete", logx.Err(err))
	}
	a.log.Info("console stopped")
	return nil
}

// Close releases resources held since New. Call after Run returns.
func (a *App) Close() error {
	err := a.store.Close()
	_ = a.logSvc.Close()
	return err
}

// hydrateRoles restores the persisted rosters so restarts do not silently
// demote anyone. The primary principals come from config, never from storage.
func (a *App) hydrateRoles(ctx context.Context, registry *roles.Registry) error {
	admins, err := a.store.ListAdmins(ctx)
	if err != nil {
		return err
	}
	for _, m := range admins {
		registry.AddAdmin(m.ID, m.Name)
	}
	approvers, err := a.store.ListApprovers(ctx)
	if err != nil {
		return err
	}
	for _, m := range approvers {
		registry.AddApprover(m.ID, m.Name)
	}
	return nil
}

// notifier adapts the transport into the broadcast delivery callback. A
// failed send is retried up to retryMax times before the recipient counts
// as failed.
func (a *App) notifier(retryMax int) broadcast.Notify {
	return func(ctx context.Context, recipientID int64, text string) error {
		var err error
		for attempt := 0; attempt <= retryMax; attempt++ {
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(500 * time.Millisecond):
				}
			}
			_, err = a.adapter.SendText(ctx, transport.ChatTarget{ChatID: recipientID}, text, nil)
			if err == nil {
				return nil
			}
		}
		return err
	}
}

// watchLogging re-applies logging settings whenever a new config commits.
// Other settings need a restart.
func (a *App) watchLogging(sup *supervisor.Supervisor) {
	sub := a.cfg.Subscribe(4)
	sup.Go0("config.apply", func(ctx context.Context) {
		defer a.cfg.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-sub:
				if !ok || cfg == nil {
					return
				}
				a.logSvc.Apply(logx.Config{
					Level:   cfg.Logging.Level,
					Console: cfg.Logging.Console,
					File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: cfg.Logging.File.Path},
				})
				a.log.Info("logging settings applied", logx.String("level", cfg.Logging.Level))
			}
		}
	})
}
