package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"video-gateway/domain/model"
	"video-gateway/domain/repository"
	"video-gateway/infrastructure/cache"
	"video-gateway/infrastructure/clients/origin"
	"video-gateway/infrastructure/configuration"
	"video-gateway/infrastructure/logger"
	"video-gateway/infrastructure/media"
	"video-gateway/infrastructure/persistence"
	"video-gateway/infrastructure/pubsub"
	"video-gateway/infrastructure/realtime"
	"video-gateway/infrastructure/servicebus"
	httpHandler "video-gateway/interfaces/http"
	"video-gateway/server"
	"video-gateway/usecase"

	"golang.org/x/sync/errgroup"
)

var httpServer *http.Server

func recoverPanic() {
	if err := recover(); err != nil {
		logger.GetLogger().WithField("error", err).Error("Application panic recovered")
	}
}

func main() {
	defer recoverPanic()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	g, ctx := errgroup.WithContext(ctx)

	// Load env from files (non-destructive; OS env still has precedence)
	if loaded := configuration.LoadEnvFromFile("config.env", ".env"); len(loaded) > 0 {
		logger.GetLogger().WithField("files", loaded).Info("Loaded env files")
		configuration.Reapply()
	}
	cfg := configuration.C

	store, closeStore, err := InitiateCacheStore(ctx, cfg)
	if err != nil {
		logger.GetLogger().WithField("error", err).WithField("backend", cfg.Cache.Backend).Error("Cache backend unavailable - falling back to memory")
		store, closeStore = cache.NewMemoryStore(), func() {}
		cfg.Cache.Backend = "memory"
	}
	defer closeStore()

	network := origin.NewClient(cfg.OriginTimeout())
	cacheManager := usecase.NewCacheManager(store, cfg.Cache.Version)
	router := usecase.NewStrategyRouter(usecase.NewClassifier(cfg.Cache.APIPrefix), cacheManager, network, cfg.APIMaxStale())

	preloadHub := realtime.NewPreloadHub()
	preloader := usecase.NewPreloader(usecase.NewRouterLoader(router), preloadHub, usecase.PreloaderConfig{
		PreloadCount:          cfg.Preload.Count,
		PreloadDistance:       cfg.Preload.Distance,
		MaxConcurrentPreloads: cfg.Preload.MaxConcurrent,
	})
	defer preloader.Close()

	worker := usecase.NewWorker(cacheManager, router, usecase.NewControlChannel(cacheManager, preloader), network)
	if err := worker.Start(ctx); err != nil {
		// Requests keep flowing straight to the origin until activation succeeds.
		logger.GetLogger().WithField("error", err).Error("Gateway install/activate failed")
	}

	optimizer := usecase.NewOptimizer(media.NewFFmpeg(cfg.Media.FFmpegPath, cfg.Media.FFprobePath), cfg.Media.TempDir)
	defer optimizer.Close()
	logger.GetLogger().WithField("supported", optimizer.Supported()).Info("Video optimizer initialized")

	engine := server.InitiateRouter(server.Handlers{
		Gateway:       httpHandler.NewGatewayHandler(worker, cfg.Origin.URL, cfg.Media.MaxUploadMB<<20),
		Control:       httpHandler.NewControlHandler(worker, router, cacheManager, preloader),
		Media:         httpHandler.NewMediaHandler(optimizer, cfg.Media.TempDir, cfg.Media.MaxUploadMB<<20),
		Health:        httpHandler.NewHealthHandler(worker, cfg.Cache.Backend),
		PreloadStream: preloadHub.Serve,
	}, cfg.App.CORSOrigins, cfg.App.SecretKey)

	handle := usecase.MessageHandler(worker)

	pubSubClient, err := pubsub.NewPubSub(ctx, cfg.Pubsub.ProjectID)
	if err != nil {
		logger.GetLogger().WithField("error", err).Warn("PubSub not available - continuing without broadcast control")
	} else {
		defer pubSubClient.Close()
	}
	controlPubSub := pubsub.NewControlPubSub(pubSubClient, handle)
	g.Go(func() error {
		return controlPubSub.Subscribe(ctx, cfg.Pubsub.SubscriptionID)
	})

	azServiceBusClient, err := servicebus.NewServiceBus(ctx, cfg.ServiceBus.Namespace)
	if err != nil {
		logger.GetLogger().WithField("error", err).Warn("Azure Service Bus not available - continuing without queued control")
	} else {
		defer azServiceBusClient.Close(context.Background())
	}
	controlServiceBus := servicebus.NewControlServiceBus(azServiceBusClient, cfg.ServiceBus.Queue, handle)
	g.Go(func() error {
		return controlServiceBus.Receive(ctx)
	})

	g.Go(func() error {
		return sweepExpiredAPIEntries(ctx, cacheManager, cfg.SweepInterval(), cfg.APIMaxStale())
	})

	app := cfg.App
	logger.GetLogger().WithFields(map[string]interface{}{
		"port":    app.Port,
		"tls":     app.TLSEnabled,
		"origin":  cfg.Origin.URL,
		"backend": cfg.Cache.Backend,
		"version": cfg.Cache.Version,
	}).Info("Starting gateway")
	g.Go(func() error {
		httpServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", app.Port),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		}
		if app.TLSEnabled {
			cert := app.TLSCertFile
			key := app.TLSKeyFile
			if cert != "" && key != "" {
				logger.GetLogger().WithFields(map[string]interface{}{"cert": cert, "key": key}).Info("Serving HTTPS")
				if err := httpServer.ListenAndServeTLS(cert, key); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			}
			logger.GetLogger().Error("TLS enabled but cert or key path empty; falling back to HTTP")
		}
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	select {
	case <-interrupt:
		logger.GetLogger().Info("Application shutdown requested")
	case <-ctx.Done():
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.GetLogger().WithField("error", err).Error("Server returned an error")
		os.Exit(2)
	}
}

// InitiateCacheStore opens the configured cache backend. The returned func releases its connections.
func InitiateCacheStore(ctx context.Context, cfg configuration.Config) (repository.ICacheStore, func(), error) {
	switch cfg.Cache.Backend {
	case "", "memory":
		return cache.NewMemoryStore(), func() {}, nil

	case "redis":
		client, err := cache.NewCache(
			ctx,
			fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
			cfg.Redis.Username,
			cfg.Redis.Password,
			cfg.Redis.DB,
		)
		if err != nil {
			return nil, nil, err
		}
		logger.GetLogger().Info("Redis client initialized successfully.")
		return cache.NewRedisStore(client, cfg.Redis.Prefix), func() { _ = client.Close() }, nil

	case "postgres":
		db, err := persistence.NewPostgreSQLDB(cfg.Database.Psql)
		if err != nil {
			return nil, nil, err
		}
		if err := persistence.EnsureCacheSchema(db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return persistence.NewCacheStore(db), func() { _ = db.Close() }, nil

	case "mssql":
		db, err := persistence.NewMSSQLDB(cfg.Database.Mssql)
		if err != nil {
			return nil, nil, err
		}
		if err := persistence.EnsureCacheSchemaMSSQL(db); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return persistence.NewCacheStoreMSSQL(db), func() { _ = db.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
}

// sweepExpiredAPIEntries drops API responses too old to ever be served as a fallback.
func sweepExpiredAPIEntries(ctx context.Context, cacheManager usecase.ICacheManager, every, maxAge time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := cacheManager.Sweep(ctx, model.NamespaceGeneric, maxAge)
			if err != nil {
				logger.GetLogger().WithField("error", err).Warn("Cache sweep failed")
				continue
			}
			if n > 0 {
				logger.GetLogger().WithField("removed", n).Debug("Expired API entries removed")
			}
		}
	}
}
