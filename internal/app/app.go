// Package app wires configuration, logging, transport, storage and the
// dispatcher into one runnable unit.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "github.com/andrews24ultra123-sudo/loyallecgbot/pkg/logx"

	"github.com/andrews24ultra123-sudo/loyallecgbot/internal/config"
	"github.com/andrews24ultra123-sudo/loyallecgbot/internal/poll"
	"github.com/andrews24ultra123-sudo/loyallecgbot/internal/runtime/supervisor"
	"github.com/andrews24ultra123-sudo/loyallecgbot/internal/schedule"
	"github.com/andrews24ultra123-sudo/loyallecgbot/internal/store"
	"github.com/andrews24ultra123-sudo/loyallecgbot/internal/transport"
	"github.com/andrews24ultra123-sudo/loyallecgbot/internal/transport/telegram"
)

type App struct {
	cfgPath string
	cfg     *config.Config

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	adapter *telegram.Adapter
	store   store.Store
	clock   schedule.Clock
	inv     *poll.Invoker
	disp    *schedule.Dispatcher
	cmds    *commandRouter

	updates chan transport.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	level, console, file := cfg.LogxConfig()
	logSvc, log := logx.New(logx.Config{
		Level:   level,
		Console: console,
		File:    logx.FileConfig{Enabled: file != "", Path: file},
	})
	log = log.With(logx.String("component", "app"))
	cfgm.SetLogger(log.With(logx.String("component", "config")))

	// The zone resolves exactly once; a typo'd zone name must stop the
	// process here rather than let the schedule drift in the wrong zone.
	clock, err := schedule.NewZoneClock(cfg.EffectiveTimezone())
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	events, err := mapEventTable(cfg.EffectiveEvents())
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("scheduler.events: %w", err)
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log)
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("telegram: %w", err)
	}

	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	storePath := cfg.Storage.Path
	if storePath == "" {
		storePath = config.DefaultStoragePath
	}
	st, err := store.Open(store.Config{
		Driver:      cfg.Storage.Driver,
		Path:        storePath,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("component", "store")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}

	target := transport.ChatTarget{ChatID: cfg.Telegram.ChatID, ThreadID: cfg.Telegram.ThreadID}
	inv := poll.NewInvoker(poll.InvokerConfig{
		Target:   target,
		PinPolls: cfg.PinPolls(),
	}, adapter, st, clock, log)

	tick, err := config.ParseDurationField("scheduler.tick", cfg.Scheduler.Tick)
	if err != nil {
		_ = st.Close()
		_ = logSvc.Close()
		return nil, err
	}
	startupDelay, err := config.ParseDurationField("scheduler.startup_delay", cfg.Scheduler.StartupDelay)
	if err != nil {
		_ = st.Close()
		_ = logSvc.Close()
		return nil, err
	}
	disp := schedule.NewDispatcher(schedule.Config{
		Tick:         tick,
		StartupDelay: startupDelay,
	}, clock, events, inv, st, log.With(logx.String("component", "dispatcher")))

	a := &App{
		cfgPath: cfgPath,
		cfg:     cfg,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		adapter: adapter,
		store:   st,
		clock:   clock,
		inv:     inv,
		disp:    disp,
		updates: make(chan transport.Update, 64),
	}
	a.cmds = newCommandRouter(commandDeps{
		log:     log.With(logx.String("component", "commands")),
		adapter: adapter,
		disp:    disp,
		store:   st,
		clock:   clock,
		owners:  cfg.Telegram.OwnerUserIDs,
	})
	return a, nil
}

// mapEventTable translates the config rows into validated schedule events.
func mapEventTable(rows []config.EventConfig) ([]schedule.Event, error) {
	events := make([]schedule.Event, 0, len(rows))
	for i, r := range rows {
		wd, err := schedule.ParseWeekday(r.Day)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		hh, mm, err := schedule.ParseHHMM(r.At)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		op, err := schedule.ParseOp(r.Action)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		kind, err := schedule.ParseKind(r.Kind)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		e, err := schedule.NewEvent(wd, hh, mm, schedule.Action{Op: op, Kind: kind})
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		events = append(events, e)
	}
	if err := schedule.ValidateTable(events); err != nil {
		return nil, err
	}
	return events, nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("component", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return fmt.Errorf("telegram start: %w", err)
	}

	a.sup.Go("dispatcher", a.disp.Run)
	a.sup.Go("commands", func(ctx context.Context) error {
		a.cmds.run(ctx, a.updates)
		return nil
	})
	a.sup.GoRestart("config-watch", a.cfgm.Watch,
		supervisor.WithRestartBackoff(time.Second, 30*time.Second))
	a.sup.Go0("config-apply", a.applyConfigUpdates)

	if a.cfg.AnnounceOnline() {
		// Best-effort; a group that cannot be reached yet will still get
		// polls once the schedule fires.
		a.sup.Go0("announce", func(ctx context.Context) {
			cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
			defer cancel()
			if err := a.inv.AnnounceOnline(cctx); err != nil {
				a.log.Warn("online announcement failed", logx.Err(err))
			}
		})
	}

	a.notifyReady()
	a.log.Info("started",
		logx.Int64("chat_id", a.cfg.Telegram.ChatID),
		logx.String("timezone", a.cfg.EffectiveTimezone()))
	return nil
}

// applyConfigUpdates handles live reloads. Logging changes take effect
// immediately; the schedule table, timezone, storage and telegram settings
// are fixed for the process lifetime, so edits there get a restart warning.
func (a *App) applyConfigUpdates(ctx context.Context) {
	sub := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok || cfg == nil {
				return
			}
			level, console, file := cfg.LogxConfig()
			a.logs.Apply(logx.Config{
				Level:   level,
				Console: console,
				File:    logx.FileConfig{Enabled: file != "", Path: file},
			})
			if cfg.EffectiveTimezone() != a.cfg.EffectiveTimezone() ||
				fmt.Sprint(cfg.Telegram) != fmt.Sprint(a.cfg.Telegram) ||
				fmt.Sprint(cfg.EffectiveEvents()) != fmt.Sprint(a.cfg.EffectiveEvents()) ||
				cfg.Storage != a.cfg.Storage {
				a.log.Warn("schedule, telegram or storage settings changed; restart required to apply")
			}
		}
	}
}

// Wait blocks until the supervisor stops, returning its first error.
func (a *App) Wait(ctx context.Context) error {
	return a.sup.Wait(ctx)
}

func (a *App) Stop(ctx context.Context) error {
	a.notifyStopping()
	a.log.Info("stopping")

	var firstErr error
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := a.adapter.Stop(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := a.logs.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// notifyReady tells systemd the service is up and starts feeding the
// watchdog when one is configured. Both are no-ops outside systemd.
func (a *App) notifyReady() {
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Debug("sd_notify failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify: ready")
	}

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	a.sup.Go0("sd-watchdog", func(ctx context.Context) {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}

func (a *App) notifyStopping() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
}
