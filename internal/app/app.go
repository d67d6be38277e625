package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"scraperbot/internal/commands"
	"scraperbot/internal/config"
	"scraperbot/internal/delivery"
	"scraperbot/internal/loader"
	"scraperbot/internal/runtime/supervisor"
	"scraperbot/internal/source"
	"scraperbot/internal/storage"
	kit "scraperbot/internal/transport"
	telegram "scraperbot/internal/transport/telegram/adapter"
	"scraperbot/internal/updater"
	"scraperbot/plugins"
	logx "scraperbot/pkg/logx"
)

// Options are the command-line overrides.
type Options struct {
	// LogLevel overrides logging.level when set.
	LogLevel string
	// CommandWorkers bounds concurrently running commands in watch mode.
	CommandWorkers int
}

type App struct {
	cfgPath string
	opts    Options

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	adapter *telegram.Adapter
	reg     *source.Registry
	loader  *loader.Loader
	deliver *delivery.Deliverer
	upd     *updater.Updater
	cmdm    *commands.Manager

	updates chan kit.Update

	stopOnce sync.Once
}

type saverFunc func() error

func (f saverFunc) Save() error { return f() }

// validate holds the checks that need more than the config package.
func validate(cfg *config.Config) error {
	_, _, err := mapStorageConfig(cfg)
	return err
}

// CheckConfig parses and validates the file without starting anything.
func CheckConfig(path string) (*config.Config, error) {
	m := config.NewManager(path)
	m.SetValidator(validate)
	return m.Parse()
}

func New(cfgPath string, opts Options) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfgm.SetValidator(validate)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// The Telegram sink needs the adapter, which needs a logger: bootstrap
	// with the sink off, then wire the sender and apply the final config.
	logCfg := mapLogConfig(cfg, opts.LogLevel)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	log.Info("config loaded",
		logx.String("path", cfgPath),
		logx.Int("chats", len(cfg.Chats)),
		logx.Int("admins", len(cfg.Admins)),
	)

	ad, err := telegram.New(telegram.Config{
		Token:        cfg.Telegram.Token,
		PollTimeout:  cfg.PollTimeout(),
		LastUpdateID: cfg.Telegram.LastUpdateID,
		Proxy:        cfg.ProxyURL(),
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}
	logSvc.SetSender(func(ctx context.Context, chatID int64, text string) error {
		_, err := ad.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, &kit.SendOptions{DisablePreview: true})
		return err
	})
	logSvc.Apply(logCfg)
	log = log.With(logx.String("comp", "app"))

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	reg := source.NewRegistry()
	plugins.RegisterAll(reg)

	ld, err := loader.New(loader.OptionsFromConfig(cfg), reg, log.With(logx.String("comp", "loader")))
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	workers := opts.CommandWorkers
	if workers <= 0 {
		workers = 2
	}
	opts.CommandWorkers = workers

	a := &App{
		cfgPath: cfgPath,
		opts:    opts,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
		adapter: ad,
		reg:     reg,
		loader:  ld,
		deliver: delivery.New(ad, store, deliveryOptions(cfg), log.With(logx.String("comp", "delivery"))),
		updates: make(chan kit.Update, 256),
	}
	a.upd = updater.New(cfgm, ld, a.deliver, saverFunc(a.save), log.With(logx.String("comp", "updater")),
		updater.WithDeliveryTimeout(cfg.Delivery.TimeoutDuration()),
		updater.WithCycleHook(a.onCycle),
	)
	a.cmdm = commands.New(commands.Deps{
		Config:   cfgm,
		Sender:   ad,
		Registry: reg,
		Store:    store,
		Saver:    saverFunc(a.save),
	}, log.With(logx.String("comp", "commands")))
	a.cmdm.SetUsername(ad.Me().Username)

	log.Info("app ready",
		logx.String("bot", ad.Me().Username),
		logx.Strings("source_types", reg.Types()),
	)
	return a, nil
}

// save records the update offset in the config and writes it to disk.
func (a *App) save() error {
	last := a.adapter.LastUpdateID()
	_ = a.cfgm.Update(func(c *config.Config) error {
		if last > c.Telegram.LastUpdateID {
			c.Telegram.LastUpdateID = last
		}
		return nil
	})
	return a.cfgm.Save()
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// RunOnce handles the pending commands, runs one update cycle and saves.
func (a *App) RunOnce(ctx context.Context) error {
	ups, err := a.adapter.PollOnce(ctx, 0)
	if err != nil {
		// commands wait for the next run; the cycle still goes ahead
		a.log.Warn("polling updates failed", logx.Err(err))
	}
	for _, up := range ups {
		a.cmdm.Handle(ctx, up)
	}

	rep, err := a.upd.RunCycle(ctx)
	if err != nil {
		return err
	}
	a.log.Info("run finished",
		logx.Int("commands", len(ups)),
		logx.Int("delivered", rep.Delivered),
		logx.Int("delivery_errors", rep.DeliveryErrors),
	)
	return nil
}

// Start runs watch mode: long polling, command dispatch, the update loop and
// config hot reload.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates, a.opts.CommandWorkers)
	})

	if err := a.upd.Start(a.sup.Context()); err != nil {
		return err
	}

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
				// Coalesce bursts: keep only the latest config in the channel.
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
	a.sup.Go0("systemd.watchdog", a.watchdog)

	a.sdNotify(daemon.SdNotifyReady)
	a.log.Info("app started", logx.Int("command_workers", a.opts.CommandWorkers))
	return nil
}

func (a *App) applyConfig(prev, next *config.Config) {
	a.logs.Apply(mapLogConfig(next, a.opts.LogLevel))
	a.deliver.Apply(deliveryOptions(next))

	if prev == nil || prev.LinkUpdateInterval != next.LinkUpdateInterval || prev.CycleSchedule != next.CycleSchedule {
		a.log.Info("update cadence changed",
			logx.String("link_update_interval", next.LinkUpdateInterval),
			logx.String("cycle_schedule", next.CycleSchedule),
		)
		a.upd.Kick()
	}
	a.log.Debug("config applied")
}

// Stop shuts everything down in bounded steps and saves the state. It is
// safe to call after RunOnce as well as after Start, and more than once.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	var err error
	a.stopOnce.Do(func() { err = a.stop(ctx, reason) })
	return err
}

func (a *App) stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sdNotify(daemon.SdNotifyStopping)

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) error {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
			return err
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
			return stepCtx.Err()
		}
	}

	// The updater goes first: a post being delivered commits before the
	// adapter it sends through is stopped.
	_ = step("updater", 70*time.Second, a.upd.Stop)
	if a.sup != nil {
		a.sup.Cancel()
	}
	_ = step("adapter", 3*time.Second, a.adapter.Stop)
	_ = step("loader", 2*time.Second, a.loader.Close)
	saveErr := step("save", 2*time.Second, func(context.Context) error { return a.save() })
	_ = step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	if a.sup != nil {
		_ = step("supervisor", 2*time.Second, a.sup.Wait)
	}

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return saveErr
}
