// Package app is the composition root: it builds every service from the
// config file and owns the start/stop order.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"grafikd/internal/adapters/telegram"
	"grafikd/internal/alarms"
	"grafikd/internal/config"
	"grafikd/internal/eventbus"
	"grafikd/internal/msgsync"
	"grafikd/internal/notify"
	"grafikd/internal/reminders"
	"grafikd/internal/remote"
	"grafikd/internal/retention"
	"grafikd/internal/runtime/supervisor"
	"grafikd/pkg/logx"

	"grafikd/internal/storage"
)

const defaultRemoteTimeout = 30 * time.Second

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store    storage.Store
	deviceID string

	client   *remote.Client
	disp     *notify.Dispatcher
	alarmMgr *alarms.TimerManager
	sched    *reminders.Scheduler
	syncSvc  *msgsync.Service
	sweep    *retention.Service

	mu      sync.Mutex
	started bool
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()

	// Storage (optional)
	var store storage.Store
	if cfg.Storage != nil {
		busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		if err != nil {
			return nil, err
		}
		st, err := storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		if st != nil {
			store = st
			log.Info("storage enabled", logx.String("driver", cfg.Storage.Driver))
		}
	}

	// Device identity: persisted per install, ephemeral without storage.
	deviceID, err := resolveDeviceID(store, log)
	if err != nil {
		return nil, err
	}

	remoteTimeout, err := config.ParseDurationOrDefault("remote.timeout", cfg.Remote.Timeout, defaultRemoteTimeout)
	if err != nil {
		return nil, err
	}
	client := remote.NewClient(cfg.Remote.URL, remoteTimeout, log.With(logx.String("comp", "remote")))

	// Dispatcher: log sink always; Telegram mirror optional.
	sinks := []notify.Sink{notify.LogSink{Log: log.With(logx.String("comp", "notify.sink"))}}
	if t := cfg.Notifications.Telegram; t != nil && t.Enabled {
		tgTimeout, err := config.ParseDurationField("notifications.telegram.timeout", t.Timeout)
		if err != nil {
			return nil, err
		}
		tg, err := telegram.New(telegram.Config{
			Token:   t.Token,
			ChatID:  t.ChatID,
			Timeout: tgTimeout,
		}, log)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, tg)
		log.Info("telegram notification sink enabled", logx.Int64("chat_id", t.ChatID))
	}
	perms := notify.StaticPermissions{
		Granted: true,
		Enabled: cfg.Notifications.NotificationsEnabled(),
	}
	disp := notify.NewDispatcher(notify.Config{
		RatePerSec: cfg.Notifications.RatePerSec,
		TapAction:  cfg.Notifications.TapAction,
	}, perms, log, sinks...)

	handler := reminders.NewDeliveryHandler(disp, log)
	alarmMgr := alarms.NewTimerManager(handler, cfg.Reminders.ExactAlarms, log)
	sched := reminders.NewScheduler(alarmMgr, store, bus, log)

	syncCfg, err := mapSyncConfig(cfg)
	if err != nil {
		return nil, err
	}
	remoteLog := log.With(logx.String("comp", "remote"))
	syncSvc := msgsync.New(syncCfg, deviceID, bus, disp, func(remoteURL string) msgsync.Source {
		return remote.NewClient(remoteURL, remoteTimeout, remoteLog)
	}, log)

	sweepCfg, err := mapRetentionConfig(cfg)
	if err != nil {
		return nil, err
	}
	sweep := retention.New(sweepCfg, client, log)

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		deviceID: deviceID,
		client:   client,
		disp:     disp,
		alarmMgr: alarmMgr,
		sched:    sched,
		syncSvc:  syncSvc,
		sweep:    sweep,
	}, nil
}

// DeviceID returns this install's identity used for readBy bookkeeping.
func (a *App) DeviceID() string { return a.deviceID }

// Done is closed when the app supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	a.mu.Lock()
	sup := a.sup
	a.mu.Unlock()
	if sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	a.mu.Lock()
	sup := a.sup
	a.mu.Unlock()
	if sup == nil {
		return nil
	}
	return sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return nil
	}

	cfg := a.cfgm.Get()
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.disp.EnsureChannels()

	// Nothing survives a process restart armed: rebuild the reminder set
	// from the schedule snapshot before anything else fires.
	if err := a.rescheduleFromConfig(cfg); err != nil {
		a.log.Warn("initial reminder scheduling failed", logx.Err(err))
	}

	a.syncSvc.Start(a.sup.Context(), cfg.Remote.URL)
	if err := a.sweep.Start(a.sup.Context()); err != nil {
		return err
	}

	a.startConfigReload()
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.started = true
	a.log.Info("started", logx.String("device_id", a.deviceID))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	sup := a.sup
	started := a.started
	a.started = false
	a.sup = nil
	a.mu.Unlock()
	if !started || sup == nil {
		return nil
	}
	a.log.Info("stopping")

	sup.Cancel()

	a.step(ctx, "msgsync", 5*time.Second, func(c context.Context) error { a.syncSvc.Stop(); return nil })
	a.step(ctx, "retention", 2*time.Second, func(c context.Context) error { a.sweep.Stop(c); return nil })
	a.step(ctx, "alarms", time.Second, func(c context.Context) error { a.alarmMgr.Stop(); return nil })
	a.step(ctx, "storage", time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step bounds one shutdown action so a single component cannot stall the
// whole stop.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	stepCtx := ctx
	var cancel context.CancelFunc
	if max > 0 {
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem > 0 && rem < max {
				max = rem
			}
		}
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
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Err(stepCtx.Err()))
	}
}

// rescheduleFromConfig arms reminders for the configured employee from the
// schedule snapshot file. An empty employee cancels everything instead.
func (a *App) rescheduleFromConfig(cfg *config.Config) error {
	employee := strings.TrimSpace(cfg.Reminders.Employee)
	if employee == "" {
		return a.sched.CancelAllShiftReminders()
	}

	offset := a.resolveOffset(cfg)
	schedule, err := reminders.LoadSchedule(cfg.Reminders.ScheduleFile)
	if err != nil {
		return fmt.Errorf("schedule snapshot: %w", err)
	}

	n, err := a.sched.RescheduleAllForEmployee(employee, schedule, offset)
	if err != nil {
		return err
	}
	a.log.Info("reminders scheduled",
		logx.String("employee", employee),
		logx.String("offset", offset.String()),
		logx.Int("armed", n))
	return nil
}

// resolveOffset prefers the config value, then the persisted one, then the
// default. A config-set offset is persisted so it survives config edits that
// later drop the field.
func (a *App) resolveOffset(cfg *config.Config) reminders.Offset {
	if s := strings.TrimSpace(cfg.Reminders.Offset); s != "" {
		o, err := reminders.ParseOffset(s)
		if err == nil {
			if a.store != nil {
				sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				if err := a.store.PutReminderOffset(sctx, o.String()); err != nil {
					a.log.Warn("persisting reminder offset failed", logx.Err(err))
				}
				cancel()
			}
			return o
		}
		a.log.Warn("unknown reminders.offset, falling back", logx.String("value", s))
	}
	if a.store != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if v, ok, err := a.store.ReminderOffset(sctx); err == nil && ok {
			if o, err := reminders.ParseOffset(v); err == nil {
				return o
			}
		}
	}
	return reminders.DefaultOffset
}

// startConfigReload consumes hot-reload snapshots and routes changed
// sections to the running services.
func (a *App) startConfigReload() {
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
				// Coalesce bursts: keep only the latest snapshot.
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
				sections, attrs := config.SummarizeConfigChange(lastApplied, newCfg)
				lastApplied = newCfg
				if len(sections) == 0 {
					a.log.Debug("config reload received, but no effective changes detected")
					continue
				}
				a.applyConfigChange(newCfg, sections)
				fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
				a.log.Info("config reloaded", fields...)
			}
		}
	})
}

func (a *App) applyConfigChange(cfg *config.Config, sections []string) {
	for _, s := range sections {
		switch s {
		case "logging":
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
		case "sync":
			syncCfg, err := mapSyncConfig(cfg)
			if err != nil {
				a.log.Warn("invalid sync config; keeping previous", logx.Err(err))
				continue
			}
			a.syncSvc.Apply(syncCfg)
		case "notifications":
			a.disp.Apply(notify.Config{
				RatePerSec: cfg.Notifications.RatePerSec,
				TapAction:  cfg.Notifications.TapAction,
			})
			if cfg.Notifications.Telegram != nil || !cfg.Notifications.NotificationsEnabled() {
				// Sink set and permission gate are fixed at build time.
				a.log.Warn("notification sink/enable changes require a restart")
			}
		case "reminders":
			a.alarmMgr.SetExactAllowed(cfg.Reminders.ExactAlarms)
			if err := a.rescheduleFromConfig(cfg); err != nil {
				a.log.Warn("reschedule after config change failed", logx.Err(err))
			}
		case "remote", "retention", "storage":
			a.log.Warn("config change requires a restart to take effect", logx.String("section", s))
		}
	}
}

func mapSyncConfig(cfg *config.Config) (msgsync.Config, error) {
	fg, err := config.ParseDurationField("sync.foreground_interval", cfg.Sync.ForegroundInterval)
	if err != nil {
		return msgsync.Config{}, err
	}
	bg, err := config.ParseDurationField("sync.background_interval", cfg.Sync.BackgroundInterval)
	if err != nil {
		return msgsync.Config{}, err
	}
	return msgsync.Config{ForegroundInterval: fg, BackgroundInterval: bg}, nil
}

func mapRetentionConfig(cfg *config.Config) (retention.Config, error) {
	if cfg.Retention == nil {
		return retention.Config{}, nil
	}
	maxAge, err := config.ParseDurationField("retention.max_age", cfg.Retention.MaxAge)
	if err != nil {
		return retention.Config{}, err
	}
	return retention.Config{
		Enabled:  cfg.Retention.Enabled,
		Schedule: cfg.Retention.Schedule,
		MaxAge:   maxAge,
	}, nil
}

func resolveDeviceID(store storage.Store, log logx.Logger) (string, error) {
	if store == nil {
		id := uuid.NewString()
		log.Warn("storage disabled; device id will not survive a restart", logx.String("device_id", id))
		return id, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return store.DeviceID(ctx)
}
