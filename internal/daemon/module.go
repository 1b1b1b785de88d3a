package daemon

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/matheus3301/chatsync/internal/actions"
	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/directory"
	"github.com/matheus3301/chatsync/internal/event"
	"github.com/matheus3301/chatsync/internal/link"
	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/logging"
	"github.com/matheus3301/chatsync/internal/merge"
	"github.com/matheus3301/chatsync/internal/metrics"
	"github.com/matheus3301/chatsync/internal/optimistic"
	"github.com/matheus3301/chatsync/internal/outbox"
	"github.com/matheus3301/chatsync/internal/patch"
	"github.com/matheus3301/chatsync/internal/session"
	"github.com/matheus3301/chatsync/internal/state"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/store"
	intsync "github.com/matheus3301/chatsync/internal/sync"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	Session     config.SessionConfig
	Layout      session.Layout
	LogLevel    zapcore.Level
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideMetrics,
			provideLink,
			provideState,
			patch.NewLog,
			provideOptimistic,
			provideDirectory,
			provideActions,
			provideMerge,
			provideRouter,
			provideSyncEngine,
			provideReconciler,
			provideSession,
			provideSender,
			provideService,
			NewServer,
			NewMetricsServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(p.Layout.LogPath(p.SessionName), p.SessionName, p.Session.Ship, p.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := p.Layout.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(p.Layout.LockPath(p.SessionName), p.Session.Ship)
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is never opened by two
// daemons at once.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := p.Layout.SnapshotDBPath(p.SessionName)
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

func provideMetrics(b *bus.Bus) (*prometheus.Registry, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.BusDrops(b.Dropped)
	return reg, m
}

func provideLink(p Params, logger *zap.Logger) *link.Client {
	return link.New(p.Session.URL, p.Session.Code, logger.Named("link"))
}

func provideState(p Params, b *bus.Bus) *state.Store {
	return state.New(p.Session.Ship, p.Session.WindowSize, b)
}

func provideOptimistic(p Params, s *state.Store, log *patch.Log, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *optimistic.Engine {
	return optimistic.NewEngine(s, log, b, m, p.Session.RemoteTimeout(), logger.Named("optimistic"))
}

func provideDirectory(p Params, s *state.Store, log *patch.Log, l *link.Client, b *bus.Bus, logger *zap.Logger) *directory.Directory {
	return directory.New(s, log, l, p.Session.App, b, logger.Named("directory"))
}

func provideActions(p Params, e *optimistic.Engine, s *state.Store, dir *directory.Directory, l *link.Client, b *bus.Bus, logger *zap.Logger) *actions.Service {
	return actions.New(e, s, dir, l, b, actions.Options{
		App:           p.Session.App,
		SearchTimeout: p.Session.SearchTimeout(),
		InviteTimeout: p.Session.InviteTimeout(),
	}, logger.Named("actions"))
}

func provideMerge(s *state.Store, acts *actions.Service, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *merge.Engine {
	return merge.NewEngine(s, acts, b, m, logger.Named("merge"))
}

func provideRouter(mg *merge.Engine, dir *directory.Directory, m *metrics.Metrics, logger *zap.Logger) *event.Router {
	return event.NewRouter(mg, dir, m, logger.Named("router"))
}

func provideSyncEngine(p Params, l *link.Client, r *event.Router, dir *directory.Directory, machine *status.Machine, m *metrics.Metrics, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(l, r, dir, machine, m, intsync.EngineOptions{App: p.Session.App}, logger.Named("sync"))
}

func provideReconciler(p Params, db *store.DB, s *state.Store, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger) *intsync.Reconciler {
	return intsync.NewReconciler(db, s, b, m, p.Session.SnapshotVersion, 0, logger.Named("snapshot"))
}

func provideSession(machine *status.Machine, e *intsync.Engine, r *intsync.Reconciler, dir *directory.Directory, logger *zap.Logger) *intsync.Session {
	return intsync.NewSession(machine, e, r, dir, logger)
}

func provideSender(p Params, e *optimistic.Engine, l *link.Client, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(e, l, p.Session.App, logger.Named("outbox"))
}

func provideService(p Params, sess *intsync.Session, s *state.Store, dir *directory.Directory, sender *outbox.Sender, acts *actions.Service, b *bus.Bus, logger *zap.Logger) *api.Service {
	return api.NewService(p.SessionName, sess, s, dir, sender, acts, b, logger.Named("api"))
}

type lifecycleDeps struct {
	fx.In

	Server  *Server
	Metrics *MetricsServer
	Lock    *lock.Lock
	DB      *store.DB
	Link    *link.Client
	Session *intsync.Session
	Actions *actions.Service
	Logger  *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleDeps) {
	ctx, cancel := context.WithCancel(context.Background())
	booted := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go func() {
				if err := d.Server.Start(); err != nil {
					d.Logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			d.Metrics.Start()

			// Booting talks to the backend, so it runs outside the start
			// timeout. Failures leave the session in ERROR for clients to see.
			go func() {
				defer close(booted)
				if err := d.Session.Start(ctx); err != nil {
					d.Logger.Error("session start failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			<-booted
			if err := d.Session.Stop(stopCtx); err != nil {
				d.Logger.Warn("final snapshot failed", zap.Error(err))
			}
			d.Actions.Wait()
			if err := d.Link.Close(); err != nil {
				d.Logger.Warn("closing link", zap.Error(err))
			}
			d.Server.Stop(stopCtx)
			d.Metrics.Stop(stopCtx)
			if err := d.DB.Close(); err != nil {
				d.Logger.Warn("closing store", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				d.Logger.Warn("error releasing lock", zap.Error(err))
			}
			d.Logger.Info("daemon stopped")
			_ = d.Logger.Sync()
			return nil
		},
	})
}
