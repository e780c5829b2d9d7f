package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kwbot/internal/alert"
	"kwbot/internal/commands"
	"kwbot/internal/config"
	"kwbot/internal/eventbus"
	"kwbot/internal/maintenance"
	"kwbot/internal/notifier"
	"kwbot/internal/observability"
	rtsup "kwbot/internal/runtime/supervisor"
	"kwbot/internal/storage"
	kit "kwbot/internal/transport"
	"kwbot/internal/transport/telegram"
	logx "kwbot/pkg/logx"
	"kwbot/pkg/systemd"
)

type App struct {
	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   storage.Store
	adapter kit.Adapter
	engine  *alert.Engine
	notif   *notifier.Service
	router  *commands.Router
	maint   *maintenance.Service
	metrics *observability.Metrics
	debug   *observability.Server

	updates chan kit.Update
	started time.Time
}

// New loads the config, connects to Telegram and opens storage.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg, true); err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram"))
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: cfg.PollTimeout(),
	}, bootLog)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}

	logs, log := logx.New(mapLogConfig(cfg), ad)
	return build(ctx, cfgm, cfg, ad, ad.Username(), logs, log)
}

// build wires every component around an existing adapter.
func build(ctx context.Context, cfgm *config.Manager, cfg *config.Config, ad kit.Adapter, botUsername string, logs *logx.Service, log logx.Logger) (*App, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	store, err := storage.Open(ctx, MapStorageConfig(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	a := &App{
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logs,
		bus:     eventbus.New(),
		store:   store,
		adapter: ad,
		updates: make(chan kit.Update, cfg.Ingest.QueueSize),
	}

	a.notif = notifier.New(mapNotifierConfig(cfg), ad, log.With(logx.String("comp", "notifier")), a.bus)
	a.metrics = observability.NewMetrics(
		func() (int, int) {
			st := a.notif.Stats()
			return st.Queued, st.Capacity
		},
		func() int { return a.engine.Keywords().Size() },
	)
	a.engine = alert.NewEngine(store, store, alert.Options{
		Cache:    cfg.CacheEnabled(),
		Sender:   a.notif,
		Runner:   a.notif,
		Reporter: a.report,
		Logger:   log.With(logx.String("comp", "alert")),
	})
	a.router = commands.NewRouter(commands.Deps{
		Engine:      a.engine,
		Audit:       store,
		Adapter:     ad,
		Bus:         a.bus,
		Log:         log,
		BotUsername: botUsername,
		Owners:      cfg.Telegram.OwnerUserIDs,
		Stats:       a.statsText,
		Observe:     a.metrics.ObserveCommand,
	})
	a.maint = maintenance.New(mapMaintenanceConfig(cfg), a.engine, store, log.With(logx.String("comp", "maintenance")), a.bus)
	a.maint.SetObserver(a.metrics.ObserveMaintenance)
	a.debug = observability.NewServer(MapDebugConfig(cfg), a.metrics, a.health, log.With(logx.String("comp", "debug_server")))
	a.debug.SetResync(a.maint.Resync)
	return a, nil
}

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.started = time.Now()
	runCtx := a.sup.Context()

	if err := a.engine.Load(runCtx); err != nil {
		return err
	}
	a.log.Info("registries loaded", logx.Int("keywords", a.engine.Keywords().Size()))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg, true)
	})

	// Detached so Stop can drain queued alerts after the app context ends.
	a.notif.Start(context.WithoutCancel(runCtx))

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return err
	}
	if mu, ok := a.adapter.(kit.CommandMenuUpdater); ok {
		a.sup.Go0("menu.update", func(c context.Context) {
			mctx, cancel := context.WithTimeout(c, 10*time.Second)
			defer cancel()
			if err := mu.UpdateMenuCommands(mctx, a.router.MenuCommands()); err != nil {
				a.log.Warn("menu update failed", logx.Err(err))
			}
		})
	}

	cfg := a.cfgm.Get()
	a.startIngest(cfg.Ingest.Workers)

	if err := a.maint.Start(runCtx); err != nil {
		return err
	}
	a.debug.Reconfigure(runCtx, MapDebugConfig(cfg))

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) { a.reloadLoop(c, sub) })
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return systemd.Watchdog(c, a.health)
	})

	if _, err := systemd.Ready(); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	}
	systemd.Status("watching for keywords")
	a.log.Info("app started",
		logx.Int("ingest_workers", cfg.Ingest.Workers),
		logx.Int("notifier_workers", cfg.Notifier.Workers),
		logx.String("storage", cfg.Storage.Driver),
	)
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.store.Close()
	}
	_, _ = systemd.Stopping()
	a.log.Info("stopping", logx.String("reason", string(reason)))

	a.sup.Cancel()

	a.step(ctx, "maintenance", 2*time.Second, func(c context.Context) error { a.maint.Stop(c); return nil })
	a.step(ctx, "debug_server", time.Second, func(c context.Context) error { a.debug.Stop(c); return nil })
	a.step(ctx, "adapter", 2*time.Second, a.adapter.Stop)
	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)
	// Ingestion is down; let queued alerts go out.
	a.step(ctx, "notifier", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped", logx.Duration("uptime", time.Since(a.started)))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step bounded by limit and the caller's deadline.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

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
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}

// health is nil while the app runs without a fatal error.
func (a *App) health() error {
	if a.sup == nil {
		return errors.New("not started")
	}
	if err := a.sup.Err(); err != nil {
		return err
	}
	if a.sup.Context().Err() != nil {
		return errors.New("stopping")
	}
	return nil
}
