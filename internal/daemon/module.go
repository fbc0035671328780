package daemon

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/studyhall/chatsync/internal/account"
	"github.com/studyhall/chatsync/internal/api"
	"github.com/studyhall/chatsync/internal/bus"
	"github.com/studyhall/chatsync/internal/config"
	"github.com/studyhall/chatsync/internal/hub"
	"github.com/studyhall/chatsync/internal/lock"
	"github.com/studyhall/chatsync/internal/logging"
	"github.com/studyhall/chatsync/internal/metrics"
	"github.com/studyhall/chatsync/internal/outbox"
	"github.com/studyhall/chatsync/internal/platform"
	"github.com/studyhall/chatsync/internal/store"
	intsync "github.com/studyhall/chatsync/internal/sync"
	"github.com/studyhall/chatsync/internal/transport"
)

// Params holds the resolved account configuration passed to the fx module.
type Params struct {
	Account    string
	SocketPath string // optional override for testing; empty = use default
	ConfigPath string // optional override; empty = ~/.chatsync/config.toml
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideRegistry,
			provideMetrics,
			provideMetricsServer,
			provideLock,
			provideStore,
			providePlatform,
			provideSession,
			provideJournal,
			provideHub,
			provideSyncEngine,
			provideCheckpoints,
			provideFlusher,
			provideSyncService,
			provideInboxService,
			provideConversationService,
			provideEventsService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if err := config.LoadDotEnv(account.EnvPath()); err != nil {
		return nil, err
	}
	path := p.ConfigPath
	if path == "" {
		path = account.ConfigPath()
	}
	return config.LoadOrDefault(path)
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(account.LogPath(p.Account), p.Account, cfg.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

func provideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(reg)
}

// provideMetricsServer returns nil when no metrics address is configured.
func provideMetricsServer(cfg *config.Config, reg *prometheus.Registry, logger *zap.Logger) *metrics.Server {
	if cfg.MetricsAddr == "" {
		return nil
	}
	return metrics.NewServer(cfg.MetricsAddr, reg, logger)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := account.EnsureDir(p.Account); err != nil {
		return nil, err
	}
	logger.Info("acquiring account lock", zap.String("account", p.Account))
	l, err := lock.Acquire(account.Dir(p.Account))
	if err != nil {
		return nil, err
	}
	logger.Info("account lock acquired")
	return l, nil
}

// provideStore depends on the lock so no second daemon opens the cache.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := account.CachePath(p.Account)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed() {
		logger.Info("migrations applied", zap.Uint("from", result.Before), zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func providePlatform(cfg *config.Config, logger *zap.Logger) (*platform.Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("no backend host configured: set host in config.toml or CHATSYNC_HOST")
	}
	return platform.New(platform.Options{
		BaseURL:     cfg.APIBase,
		AccessToken: cfg.AccessToken,
		Timeout:     cfg.ConnectTimeout.Duration,
		RPS:         cfg.RateLimit,
	}, logger), nil
}

func provideSession(c *platform.Client, cfg *config.Config, b *bus.Bus, logger *zap.Logger, m *metrics.Metrics) *transport.Session {
	return transport.NewSession(c, transport.Config{
		Host:           cfg.Host,
		ConnectTimeout: cfg.ConnectTimeout.Duration,
	}, b, logger, m)
}

func provideJournal(db *store.DB) *outbox.Journal {
	return outbox.NewJournal(db)
}

func provideHub(sess *transport.Session, c *platform.Client, j *outbox.Journal, cfg *config.Config, b *bus.Bus, logger *zap.Logger, m *metrics.Metrics) *hub.Hub {
	return hub.New(hub.Options{
		Session:  sess,
		Backend:  c,
		Outbox:   j,
		Bus:      b,
		Logger:   logger,
		Metrics:  m,
		Liveness: cfg.LivenessInterval.Duration,
	})
}

func provideSyncEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(db, b, logger)
}

func provideCheckpoints(db *store.DB, logger *zap.Logger) *intsync.Checkpoints {
	return intsync.NewCheckpoints(db, logger)
}

func provideFlusher(db *store.DB, h *hub.Hub, b *bus.Bus, logger *zap.Logger) *outbox.Flusher {
	return outbox.NewFlusher(db, h.FlushTarget, b, logger)
}

func provideSyncService(p Params, h *hub.Hub, cp *intsync.Checkpoints, b *bus.Bus, logger *zap.Logger) *api.SyncService {
	return api.NewSyncService(p.Account, h, cp, b, logger)
}

func provideInboxService(h *hub.Hub, db *store.DB) *api.InboxService {
	return api.NewInboxService(h, db)
}

func provideConversationService(h *hub.Hub, db *store.DB, logger *zap.Logger) *api.ConversationService {
	return api.NewConversationService(h, db, logger)
}

func provideEventsService(b *bus.Bus) *api.EventsService {
	return api.NewEventsService(b)
}

type lifecycleIn struct {
	fx.In

	Server  *Server
	Lock    *lock.Lock
	DB      *store.DB
	Hub     *hub.Hub
	Engine  *intsync.Engine
	Flusher *outbox.Flusher
	Metrics *metrics.Server `optional:"true"`
	Logger  *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, in lifecycleIn) {
	logger := in.Logger
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Mirror and flusher subscribe before the hub starts emitting.
			in.Engine.Start(context.Background())
			in.Flusher.Start(context.Background())

			go func() {
				if err := in.Server.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if in.Metrics != nil {
				in.Metrics.Start()
			}

			in.Hub.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			in.Hub.Stop()
			in.Flusher.Stop()
			in.Engine.Stop()
			in.Server.Stop(ctx)
			if in.Metrics != nil {
				if err := in.Metrics.Stop(ctx); err != nil {
					logger.Warn("error stopping metrics listener", zap.Error(err))
				}
			}
			if err := in.DB.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := in.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
