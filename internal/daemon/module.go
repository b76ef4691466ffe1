package daemon

import (
	"context"

	"github.com/rivulet-chat/rivulet/internal/api"
	"github.com/rivulet-chat/rivulet/internal/bus"
	"github.com/rivulet-chat/rivulet/internal/config"
	"github.com/rivulet-chat/rivulet/internal/dm"
	"github.com/rivulet-chat/rivulet/internal/hub"
	"github.com/rivulet-chat/rivulet/internal/lock"
	"github.com/rivulet-chat/rivulet/internal/logging"
	"github.com/rivulet-chat/rivulet/internal/session"
	"github.com/rivulet-chat/rivulet/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved session configuration passed to the fx module.
type Params struct {
	SessionName string
	ListenAddr  string
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	if p.ListenAddr == "" {
		p.ListenAddr = config.DefaultListenAddr
	}
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideLock,
			provideStore,
			provideAuthorizer,
			provideHub,
			provideResolver,
			provideAPIHandler,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.SessionName), p.SessionName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.SessionName); err != nil {
		return nil, err
	}
	logger.Info("acquiring session lock", zap.String("session", p.SessionName))
	l, err := lock.Acquire(session.Dir(p.SessionName))
	if err != nil {
		return nil, err
	}
	logger.Info("session lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.SessionName)
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

func provideAuthorizer(db *store.DB) hub.Authorizer {
	return api.NewScopeAuthorizer(db)
}

func provideHub(authz hub.Authorizer, b *bus.Bus, logger *zap.Logger) *hub.Hub {
	return hub.New(authz, b, logger)
}

func provideResolver(db *store.DB, logger *zap.Logger) *dm.Resolver {
	return dm.NewResolver(db, logger)
}

func provideAPIHandler(db *store.DB, b *bus.Bus, resolver *dm.Resolver, h *hub.Hub, logger *zap.Logger) *api.Handler {
	return api.NewHandler(db, b, resolver, h, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, h *hub.Hub, db *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start fanning bus events out to feed subscribers.
			h.Start(context.Background())

			// Serve HTTP + websocket in the background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			srv.Stop(ctx)
			h.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
