// Package agent composes the long-running sync process: transport, stores,
// offline cache, and the background refresher, wired together with fx.
package agent

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/lfmelo/dealdesk/internal/auth"
	"github.com/lfmelo/dealdesk/internal/bus"
	"github.com/lfmelo/dealdesk/internal/cache"
	"github.com/lfmelo/dealdesk/internal/client"
	"github.com/lfmelo/dealdesk/internal/config"
	"github.com/lfmelo/dealdesk/internal/logging"
	"github.com/lfmelo/dealdesk/internal/store"
	"github.com/lfmelo/dealdesk/internal/transport"
)

// Params holds the resolved invocation flags passed to the fx module.
type Params struct {
	ConfigPath string
	Profile    string // optional override; empty = use config value
}

// Module returns the fx module for the agent, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("agent",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideCredentials,
			provideTransport,
			provideConversationClient,
			provideDisputeClient,
			provideCache,
			provideConversationStore,
			provideMessageStore,
			provideDisputeStore,
			provideRefresher,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	cfg, err := config.Load(p.ConfigPath)
	if err != nil {
		return nil, err
	}
	if p.Profile != "" {
		cfg.Profile = p.Profile
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	if err := config.EnsureDir(cfg.Profile); err != nil {
		return nil, err
	}
	return logging.New(config.LogPath(cfg.Profile), cfg.Profile)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideCredentials(cfg *config.Config) auth.TokenProvider {
	if cfg.TokenFile != "" {
		return auth.NewFileProvider(cfg.TokenFile)
	}
	if cfg.Token != "" {
		return auth.Static(cfg.Token)
	}
	return auth.None()
}

func provideTransport(cfg *config.Config, creds auth.TokenProvider, logger *zap.Logger) *transport.Client {
	return transport.New(transport.Options{
		BaseURL:     cfg.BaseURL,
		Timeout:     cfg.RequestTimeout.Std(),
		Credentials: creds,
		Retry: transport.RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			Delay:      cfg.RetryDelay.Std(),
		},
		Logger: logger,
	})
}

func provideConversationClient(api *transport.Client, cfg *config.Config) *client.ConversationClient {
	return client.NewConversationClient(api, cfg.UserID)
}

func provideDisputeClient(api *transport.Client) *client.DisputeClient {
	return client.NewDisputeClient(api)
}

func provideCache(cfg *config.Config, logger *zap.Logger) (*cache.DB, error) {
	if cfg.DisableCache {
		logger.Info("offline cache disabled")
		return nil, nil
	}
	dbPath := config.CachePath(cfg.Profile)
	db, err := cache.Open(dbPath)
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
	logger.Info("cache initialized", zap.String("path", dbPath))
	return db, nil
}

func provideConversationStore(api *client.ConversationClient, db *cache.DB, b *bus.Bus, logger *zap.Logger) *store.ConversationStore {
	var cc store.ConversationCache
	if db != nil {
		cc = db
	}
	return store.NewConversations(api, cc, b, logger)
}

func provideMessageStore(api *client.ConversationClient, db *cache.DB, b *bus.Bus, logger *zap.Logger) *store.MessageStore {
	var mc store.MessageCache
	if db != nil {
		mc = db
	}
	return store.NewMessages(api, mc, b, logger)
}

func provideDisputeStore(api *client.DisputeClient, db *cache.DB, b *bus.Bus, logger *zap.Logger) *store.DisputeStore {
	var dc store.DisputeCache
	if db != nil {
		dc = db
	}
	return store.NewDisputes(api, dc, b, logger)
}

func provideRefresher(cfg *config.Config, convs *store.ConversationStore, msgs *store.MessageStore, disputes *store.DisputeStore, logger *zap.Logger) *Refresher {
	targets := []Target{convs, msgs, disputes}
	return NewRefresher(cfg.PollInterval.Std(), targets, logger)
}

func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, db *cache.DB, convs *store.ConversationStore, disputes *store.DisputeStore, refresher *Refresher, logger *zap.Logger) {
	var metrics *MetricsServer
	if cfg.MetricsAddr != "" {
		metrics = NewMetricsServer(cfg.MetricsAddr, logger)
	}

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Render cached data immediately, then reconcile with the
			// authority in the background.
			convs.Hydrate()
			disputes.Hydrate()
			go func() {
				_ = convs.Load(context.Background())
				_ = disputes.Load(context.Background())
			}()

			refresher.Start(context.Background())
			if metrics != nil {
				go metrics.Start()
			}
			logger.Info("agent started", zap.String("base_url", cfg.BaseURL))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			refresher.Stop()
			convs.Wait()
			if metrics != nil {
				metrics.Stop(ctx)
			}
			if db != nil {
				_ = db.Close()
			}
			logger.Info("agent stopped")
			return nil
		},
	})
}
