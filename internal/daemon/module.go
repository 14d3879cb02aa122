package daemon

import (
	"context"

	"github.com/matheus3301/waconsole/internal/api"
	"github.com/matheus3301/waconsole/internal/archive"
	"github.com/matheus3301/waconsole/internal/bus"
	"github.com/matheus3301/waconsole/internal/cache"
	"github.com/matheus3301/waconsole/internal/config"
	"github.com/matheus3301/waconsole/internal/configstore"
	"github.com/matheus3301/waconsole/internal/domain"
	"github.com/matheus3301/waconsole/internal/inbox"
	"github.com/matheus3301/waconsole/internal/kv"
	"github.com/matheus3301/waconsole/internal/lock"
	"github.com/matheus3301/waconsole/internal/logging"
	"github.com/matheus3301/waconsole/internal/metrics"
	"github.com/matheus3301/waconsole/internal/present"
	"github.com/matheus3301/waconsole/internal/remote"
	"github.com/matheus3301/waconsole/internal/remote/cloudapi"
	"github.com/matheus3301/waconsole/internal/scheduler"
	"github.com/matheus3301/waconsole/internal/session"
	"github.com/matheus3301/waconsole/internal/store"
	intsync "github.com/matheus3301/waconsole/internal/sync"
	"github.com/matheus3301/waconsole/internal/wa"
	"github.com/matheus3301/waconsole/internal/web"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	SocketPath  string         // optional override for testing; empty = use default
	Config      *config.Config // optional; nil = load the global config file
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideLock,
			provideKV,
			provideConfigStore,
			provideStore,
			provideMetrics,
			provideAdapter,
			provideCloudClient,
			provideRemote,
			provideEngine,
			provideCache,
			provideFormatter,
			provideCoordinator,
			provideScheduler,
			provideWeb,
			provideConsole,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		if err := p.Config.Validate(); err != nil {
			return nil, err
		}
		return p.Config, nil
	}
	return config.LoadOrDefault(session.ConfigPath())
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	return logging.New(session.LogPath(p.SessionName), p.SessionName, level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.LockPath(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideKV depends on the lock so that no second daemon opens the
// session's badger directory.
func provideKV(p Params, _ *lock.Lock, logger *zap.Logger) (*kv.Badger, error) {
	dir := session.ConfigStoreDir(p.SessionName)
	backend, err := kv.Open(dir)
	if err != nil {
		return nil, err
	}
	logger.Info("config store opened", zap.String("path", dir))
	return backend, nil
}

func provideConfigStore(backend *kv.Badger, b *bus.Bus, logger *zap.Logger) *configstore.Store {
	return configstore.New(backend, b, logger)
}

func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.InboxPath(p.SessionName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideMetrics(b *bus.Bus) *metrics.Metrics {
	m := metrics.New()
	m.WatchBus(b.Dropped)
	return m
}

// provideAdapter returns nil unless the linked transport is selected.
func provideAdapter(p Params, cfg *config.Config, _ *lock.Lock, b *bus.Bus, logger *zap.Logger) (*wa.Adapter, error) {
	if cfg.Transport != config.TransportLinked {
		return nil, nil
	}
	return wa.NewAdapter(context.Background(), session.DevicePath(p.SessionName), b, logger.Named("wa"))
}

// provideCloudClient returns nil unless the cloud transport is selected.
func provideCloudClient(cfg *config.Config, cs *configstore.Store, logger *zap.Logger) *cloudapi.Client {
	if cfg.Transport != config.TransportCloud {
		return nil
	}
	return cloudapi.NewClient(cs, logger.Named("cloudapi"),
		cloudapi.WithBaseURL(cfg.GraphBaseURL),
		cloudapi.WithAPIVersion(cfg.GraphAPIVersion),
		cloudapi.WithRateLimit(cfg.SendRatePerSecond),
	)
}

func provideRemote(cs *configstore.Store, db *store.DB, cloud *cloudapi.Client, adapter *wa.Adapter, m *metrics.Metrics, logger *zap.Logger) *remote.Client {
	var transport remote.Transport = cloud
	if adapter != nil {
		transport = adapter
	}
	return remote.NewClient(cs, db, transport, logger.Named("remote"), remote.WithMetrics(m))
}

func provideEngine(db *store.DB, b *bus.Bus, adapter *wa.Adapter, logger *zap.Logger) *inbox.Engine {
	var reconciler *inbox.Reconciler
	if adapter != nil {
		reconciler = inbox.NewReconciler(db, adapter, logger.Named("reconciler"))
	}
	return inbox.NewEngine(db, b, reconciler, logger.Named("inbox"))
}

func provideCache(b *bus.Bus) *cache.Cache {
	return cache.New(b)
}

func provideFormatter(cfg *config.Config) *present.Formatter {
	return present.New(present.ParseLocale(cfg.Locale))
}

func provideCoordinator(rc *remote.Client, c *cache.Cache, cs *configstore.Store, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *intsync.Coordinator {
	open := func(ctx context.Context, dc domain.DatabaseConfig) (intsync.Archive, error) {
		return archive.Open(ctx, dc, logger.Named("archive"))
	}
	return intsync.New(rc, c, cs, open, b, logger.Named("sync"), intsync.WithMetrics(m))
}

// provideScheduler returns nil when no sync schedule is configured.
func provideScheduler(cfg *config.Config, coord *intsync.Coordinator, logger *zap.Logger) (*scheduler.Scheduler, error) {
	if cfg.SyncSchedule == "" {
		return nil, nil
	}
	return scheduler.New(cfg.SyncSchedule, func(ctx context.Context) error {
		_, err := coord.SyncWithDatabase(ctx)
		return err
	}, logger.Named("scheduler"))
}

func provideWeb(cfg *config.Config, b *bus.Bus, m *metrics.Metrics, coord *intsync.Coordinator, adapter *wa.Adapter, logger *zap.Logger) *web.Server {
	var webhook web.Mounter
	if cfg.Transport == config.TransportCloud {
		base := cfg.GraphBaseURL
		if base == "" {
			base = cloudapi.DefaultBaseURL
		}
		version := cfg.GraphAPIVersion
		if version == "" {
			version = cloudapi.DefaultAPIVersion
		}
		webhook = cloudapi.NewWebhook(cloudapi.WebhookConfig{
			VerifyToken: cfg.WebhookVerifyToken,
			AppSecret:   cfg.WebhookAppSecret,
			MediaBase:   base + "/" + version,
		}, b, m, logger.Named("webhook"))
	}
	health := func() map[string]string {
		h := map[string]string{
			"transport": cfg.Transport,
			"database":  "disconnected",
		}
		if coord.DatabaseStatus().IsConnected {
			h["database"] = "connected"
		}
		if adapter != nil {
			h["link"] = string(adapter.Link().Current())
		}
		return h
	}
	return web.New(cfg.WebhookAddr, webhook, m.Handler(), health, logger.Named("http"))
}

func provideConsole(p Params, cfg *config.Config, cs *configstore.Store, coord *intsync.Coordinator, c *cache.Cache, f *present.Formatter, b *bus.Bus, adapter *wa.Adapter, db *store.DB, sched *scheduler.Scheduler, logger *zap.Logger) *api.Console {
	deps := api.Deps{
		Session:     p.SessionName,
		Transport:   cfg.Transport,
		Config:      cs,
		Coordinator: coord,
		Cache:       c,
		Formatter:   f,
		Bus:         b,
		Inbox:       db,
		Scheduler:   sched,
		Logger:      logger.Named("api"),
	}
	// A nil *wa.Adapter must not become a non-nil Linker.
	if adapter != nil {
		deps.Linker = adapter
	}
	return api.NewConsole(deps)
}

// syncContactsOnConnect publishes the linked device's address book each
// time the connection comes up.
func syncContactsOnConnect(ctx context.Context, adapter *wa.Adapter, b *bus.Bus, logger *zap.Logger) func() {
	ch, unsub := b.Subscribe(bus.KindWAConnected, 4)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ch:
				n := adapter.SyncContacts(ctx)
				logger.Info("device contacts published", zap.Int("count", n))
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() {
		unsub()
		<-done
	}
}

type lifecycleParams struct {
	fx.In

	Server      *Server
	Lock        *lock.Lock
	KV          *kv.Badger
	Store       *store.DB
	Adapter     *wa.Adapter
	Engine      *inbox.Engine
	Coordinator *intsync.Coordinator
	Scheduler   *scheduler.Scheduler
	Web         *web.Server
	Bus         *bus.Bus
	Logger      *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, p lifecycleParams) {
	ctx, cancel := context.WithCancel(context.Background())
	stopContacts := func() {}
	logger := p.Logger

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Inbox persists wa.* events; the coordinator consumes inbox.*.
			p.Engine.Start(ctx)
			p.Coordinator.Start(ctx)

			if err := p.Web.Start(); err != nil {
				return err
			}

			go func() {
				if err := p.Server.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if p.Scheduler != nil {
				p.Scheduler.Start()
				logger.Info("database sync scheduled", zap.String("schedule", p.Scheduler.Status().Schedule))
			}

			if p.Adapter != nil {
				stopContacts = syncContactsOnConnect(ctx, p.Adapter, p.Bus, logger)
				go func() {
					if err := p.Adapter.Start(); err != nil {
						logger.Error("auto-connect failed", zap.Error(err))
					}
				}()
			}
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			if p.Scheduler != nil {
				p.Scheduler.Stop()
			}
			if p.Adapter != nil {
				p.Adapter.Disconnect()
			}
			cancel()
			stopContacts()
			p.Server.Stop(stopCtx)
			if err := p.Web.Shutdown(stopCtx); err != nil {
				logger.Warn("error stopping http server", zap.Error(err))
			}
			p.Coordinator.Stop()
			p.Engine.Stop()
			if err := p.Store.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := p.KV.Close(); err != nil {
				logger.Warn("error closing config store", zap.Error(err))
			}
			if err := p.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
