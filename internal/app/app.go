// Package app wires configuration, storage, the Telegram sink, and the
// crawl cycle into one runnable unit with hot reload.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"mangawatch/internal/config"
	"mangawatch/internal/crawler"
	"mangawatch/internal/cycle"
	"mangawatch/internal/locale"
	"mangawatch/internal/notify"
	"mangawatch/internal/release"
	"mangawatch/internal/runtime/supervisor"
	"mangawatch/internal/storage"
	"mangawatch/internal/transport"
	"mangawatch/internal/transport/telegram"
	logx "mangawatch/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	logs *logx.Service
	log  logx.Logger

	sink  *telegram.Adapter
	store storage.Store

	cron  *cron.Cron
	entry cron.EntryID

	// runMu guards runner/schedule swaps during hot reload.
	runMu    sync.Mutex
	runner   *cycle.Runner
	schedule string

	sup *supervisor.Supervisor
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := ParseSchedule(cfg.Crawl.Schedule); err != nil {
		return nil, fmt.Errorf("crawl.schedule: %w", err)
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram"))
	sink, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
		Servers:     mapServers(cfg.Telegram.Servers),
	}, bootLog)
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(mapLogging(cfg.Logging), sink)
	log = log.With(logx.String("comp", "app"))

	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		logs:    logs,
		log:     log,
		sink:    sink,
		store:   store,
	}
	runner, err := a.buildRunner(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a.runner = runner
	a.schedule = cfg.Crawl.Schedule
	return a, nil
}

// buildRunner assembles the localizer, site registry, crawl adapters, and
// dispatcher for one config revision.
func (a *App) buildRunner(cfg *config.Config) (*cycle.Runner, error) {
	tag := strings.TrimSpace(cfg.Locale.Default)
	if tag == "" {
		tag = locale.DefaultTag
	}
	loc, err := locale.New(tag)
	if err != nil {
		return nil, fmt.Errorf("locale.default: %w", err)
	}

	registry := release.NewRegistry(release.BuiltinSites()...)
	adapters := make([]crawler.Adapter, 0, len(cfg.Crawl.Sites))
	for i, sc := range cfg.Crawl.Sites {
		site := release.Site{ID: release.SiteID(sc.ID), Name: sc.Name, ReadOnlineURL: sc.ReadOnlineURL}
		if site.Name == "" {
			if builtin, ok := registry.Get(site.ID); ok {
				site.Name = builtin.Name
				if site.ReadOnlineURL == "" {
					site.ReadOnlineURL = builtin.ReadOnlineURL
				}
			} else {
				site.Name = sc.ID
			}
		}
		registry.Add(site)

		timeout, err := config.ParseDurationField(fmt.Sprintf("crawl.sites[%d].timeout", i), sc.Timeout)
		if err != nil {
			return nil, err
		}
		feed, err := crawler.NewFeedAdapter(site.ID, sc.FeedURL, timeout)
		if err != nil {
			return nil, fmt.Errorf("crawl.sites[%d]: %w", i, err)
		}
		adapters = append(adapters, feed)
	}

	disp := notify.NewDispatcher(notify.Config{
		RatePerSec:     cfg.Dispatch.RatePerSec,
		ChannelCommand: cfg.Dispatch.ChannelCommand,
	}, a.sink, a.store, loc, registry, a.log.With(logx.String("comp", "notify")))

	return cycle.NewRunner(cycle.Config{Workers: cfg.Dispatch.Workers},
		a.store, adapters, disp, a.log.With(logx.String("comp", "cycle"))), nil
}

func mapServers(servers []config.ServerConfig) []telegram.ServerEntry {
	out := make([]telegram.ServerEntry, 0, len(servers))
	for _, s := range servers {
		entry := telegram.ServerEntry{
			ID:             transport.ServerID(s.ID),
			DefaultChannel: transport.ChannelID(s.DefaultChannel),
		}
		for _, ch := range s.Channels {
			entry.Channels = append(entry.Channels, transport.ChannelID(ch))
		}
		out = append(out, entry)
	}
	return out
}

func mapLogging(lc config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Ops: logx.OpsConfig{
			Enabled:    lc.Ops.Enabled,
			Channel:    lc.Ops.Channel,
			MinLevel:   lc.Ops.MinLevel,
			RatePerSec: lc.Ops.RatePerSec,
		},
	}
}

// Runner returns the current cycle runner (hot reload may swap it).
func (a *App) Runner() *cycle.Runner {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.runner
}

// RunNow triggers one cycle outside the schedule. Returns
// cycle.ErrCycleRunning when one is already in flight.
func (a *App) RunNow(ctx context.Context) (cycle.Report, error) {
	return a.Runner().Run(ctx)
}

// Done is closed when the app supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		if _, err := ParseSchedule(cfg.Crawl.Schedule); err != nil {
			return fmt.Errorf("crawl.schedule: %w", err)
		}
		if tz := strings.TrimSpace(cfg.Crawl.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("crawl.timezone: invalid %q: %w", tz, err)
			}
		}
		return nil
	})

	cfg := a.cfgm.Get()
	if err := a.startCron(cfg); err != nil {
		return err
	}

	// hot reload fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	// Best-effort; no-op outside systemd.
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	a.log.Info("app started",
		logx.String("schedule", a.schedule),
		logx.Int("sites", len(cfg.Crawl.Sites)),
		logx.Int("servers", len(cfg.Telegram.Servers)))
	return nil
}

func (a *App) startCron(cfg *config.Config) error {
	loc := time.Local
	if tz := strings.TrimSpace(cfg.Crawl.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("crawl.timezone: invalid %q: %w", tz, err)
		}
		loc = l
	}
	a.cron = cron.New(cron.WithLocation(loc))
	entry, err := a.scheduleJob(cfg.Crawl.Schedule)
	if err != nil {
		return err
	}
	a.entry = entry
	a.cron.Start()
	return nil
}

func (a *App) scheduleJob(spec string) (cron.EntryID, error) {
	sched, err := ParseSchedule(spec)
	if err != nil {
		return 0, fmt.Errorf("crawl.schedule: %w", err)
	}
	job := func() {
		ctx := a.sup.Context()
		rep, err := a.Runner().Run(ctx)
		switch {
		case errors.Is(err, cycle.ErrCycleRunning):
			a.log.Warn("cycle still in flight; trigger skipped")
		case err != nil:
			a.log.Error("cycle failed", logx.Err(err))
		default:
			a.log.Debug("cycle triggered",
				logx.Int("events", rep.Events),
				logx.Duration("elapsed", rep.Elapsed))
		}
	}
	if sched.Kind == ScheduleInterval {
		return a.cron.Schedule(cron.Every(sched.Every), cron.FuncJob(job)), nil
	}
	return a.cron.AddFunc(sched.Cron, job)
}

// applyConfig applies a validated reload. Storage driver changes need a
// restart and are only warned about.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	changed := map[string]bool{}
	for _, s := range sections {
		changed[s] = true
	}

	if changed["logging"] {
		a.logs.Apply(mapLogging(newCfg.Logging))
	}
	if changed["telegram"] {
		a.sink.Reconfigure(mapServers(newCfg.Telegram.Servers))
	}
	if changed["storage"] {
		a.log.Warn("storage config changed; restart required to take effect")
	}

	if changed["crawl"] || changed["dispatch"] || changed["locale"] {
		runner, err := a.buildRunner(newCfg)
		if err != nil {
			// Validator should have caught this; keep the old runner.
			a.log.Error("config apply failed; keeping previous pipeline", logx.Err(err))
		} else {
			a.runMu.Lock()
			a.runner = runner
			a.runMu.Unlock()
		}

		if newCfg.Crawl.Schedule != a.schedule {
			a.cron.Remove(a.entry)
			entry, err := a.scheduleJob(newCfg.Crawl.Schedule)
			if err != nil {
				a.log.Error("schedule apply failed; keeping previous schedule", logx.Err(err))
				entry, _ = a.scheduleJob(a.schedule)
			} else {
				a.schedule = newCfg.Crawl.Schedule
			}
			a.entry = entry
		}
	}

	a.log.Info("config reloaded",
		append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.log.Info("stopping")

	a.sup.Cancel()

	if a.cron != nil {
		// Stop scheduling; a running cycle finishes on its own mutex.
		cronCtx := a.cron.Stop()
		select {
		case <-cronCtx.Done():
		case <-ctx.Done():
			a.log.Warn("cron jobs still running at shutdown deadline")
		}
	}

	wctx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	if err := a.sup.Wait(wctx); err != nil && !errors.Is(err, context.Canceled) {
		a.log.Warn("shutdown wait", logx.Err(err))
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close", logx.Err(err))
	}
	_ = a.logs.Close()
	a.log.Info("stopped")
	return nil
}
