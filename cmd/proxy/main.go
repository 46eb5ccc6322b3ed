// cmd/proxy is the edge entrypoint (§1, §4.I): it resolves an origin,
// checks the KV cache, and falls through to the transform service on a
// miss. It replaces the teacher's cmd/api, which served a video CRUD API
// in front of usecase.VideoService — this binary has no CRUD surface at
// all, just the request pipeline, a health check, the metrics endpoint and
// two read-only debug routes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edgestream/videocache/internal/api/handler"
	"github.com/edgestream/videocache/internal/api/middleware"
	"github.com/edgestream/videocache/internal/background"
	"github.com/edgestream/videocache/internal/cachekey"
	"github.com/edgestream/videocache/internal/chunklock"
	"github.com/edgestream/videocache/internal/coalesce"
	"github.com/edgestream/videocache/internal/config"
	"github.com/edgestream/videocache/internal/domain/model"
	"github.com/edgestream/videocache/internal/domain/repository"
	"github.com/edgestream/videocache/internal/infrastructure/postgres"
	"github.com/edgestream/videocache/internal/infrastructure/redis"
	"github.com/edgestream/videocache/internal/infrastructure/storage"
	"github.com/edgestream/videocache/internal/kvcache"
	"github.com/edgestream/videocache/internal/options"
	"github.com/edgestream/videocache/internal/pipeline"
	"github.com/edgestream/videocache/internal/resolver"
	"github.com/edgestream/videocache/internal/transform"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	pgClient, err := postgres.NewClient(ctx, postgres.DefaultClientConfig(cfg.Database.DSN()))
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pgClient.Close()
	logger.Info("connected to PostgreSQL")

	configStore := postgres.NewConfigStore(pgClient.Pool(), logger)
	runtimeCfg, err := configStore.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load runtime configuration: %w", err)
	}
	runtimeCfg.Cache = mergeCacheDefaults(runtimeCfg.Cache, cfg.Cache)
	logger.Info("loaded runtime configuration",
		slog.Int("origins", len(runtimeCfg.Origins)),
		slog.Int("derivatives", len(runtimeCfg.Derivatives)),
	)

	storageClient, err := storage.NewClient(ctx, storage.ClientConfig{
		Endpoint:  cfg.MinIO.Endpoint,
		AccessKey: cfg.MinIO.AccessKey,
		SecretKey: cfg.MinIO.SecretKey,
		Bucket:    cfg.MinIO.Bucket,
		UseSSL:    cfg.MinIO.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to MinIO: %w", err)
	}
	logger.Info("connected to MinIO")

	cacheRedis := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.CacheDB,
	})
	defer cacheRedis.Close()
	if err := cacheRedis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis (cache db): %w", err)
	}
	cacheStore := redis.New(cacheRedis)

	versionRedis := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.VersionDB,
	})
	defer versionRedis.Close()
	if err := versionRedis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis (version db): %w", err)
	}
	versionStore := redis.New(versionRedis)
	logger.Info("connected to Redis", slog.Int("cache_db", cfg.Redis.CacheDB), slog.Int("version_db", cfg.Redis.VersionDB))

	scheduler := background.NewScheduler(cfg.Worker.Concurrency, logger)
	versioner := cachekey.NewVersioner(versionStore, logger, scheduler)
	locks := chunklock.New()
	engine := kvcache.New(cacheStore, versioner, locks, logger, kvcache.Config{})

	res := resolver.New(runtimeCfg.Origins, logger)
	normalizer := options.New(runtimeCfg.Derivatives, runtimeCfg.ValidOptions, runtimeCfg.Defaults)

	authFn := buildAuthResolver()
	tclient := transform.NewClient(transform.ClientConfig{
		CDNPrefix:   cfg.Transform.CDNPrefix,
		Timeout:     cfg.Transform.Timeout,
		HeadTimeout: cfg.Transform.HeadTimeout,
	}, authFn)

	coalescer := coalesce.New()
	httpClient := &http.Client{Timeout: cfg.Transform.Timeout}

	pl := pipeline.New(res, normalizer, versioner, engine, storageClient, tclient, coalescer, httpClient,
		runtimeCfg.Cache,
		pipeline.Config{
			TransformCeiling: cfg.Transform.CeilingBytes,
			HandlerName:      "Origins",
			CDNPrefix:        cfg.Transform.CDNPrefix,
		},
		logger,
	)

	proxyHandler := handler.NewProxyHandler(pl)
	debugConfigHandler := handler.NewDebugConfigHandler(runtimeCfg)
	debugCacheHandler := handler.NewDebugCacheHandler(engine)

	r := setupRouter(logger, proxyHandler, debugConfigHandler, debugCacheHandler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// mergeCacheDefaults fills in any zero-valued CacheSettings field loaded
// from runtime_settings with the env-configured defaults (§7: a missing
// runtime_settings row should not leave the cache entirely disabled).
func mergeCacheDefaults(loaded repository.CacheSettings, fallback config.CacheConfig) repository.CacheSettings {
	if !loaded.KVCacheEnabled && loaded.DefaultMaxAge == 0 && loaded.KVReadCacheTTL == 0 {
		return repository.CacheSettings{
			KVCacheEnabled:    fallback.KVCacheEnabled,
			EnableCacheTags:   fallback.EnableCacheTags,
			DefaultMaxAge:     fallback.DefaultMaxAgeSecs,
			KVReadCacheTTL:    fallback.ReadCacheTTLSecs,
			StoreIndefinitely: fallback.StoreIndefinitely,
		}
	}
	return loaded
}

// buildAuthResolver resolves a model.AuthRef to a bearer token from the
// environment (AUTH_<NAME>), since operators are expected to supply origin
// credentials as process secrets rather than database rows (§3 AuthRef is
// reference-only by design).
func buildAuthResolver() func(*model.AuthRef) (string, bool) {
	return func(ref *model.AuthRef) (string, bool) {
		if ref == nil || ref.Name == "" {
			return "", false
		}
		token := os.Getenv("AUTH_" + strings.ToUpper(ref.Name))
		if token == "" {
			return "", false
		}
		return token, true
	}
}

func setupRouter(
	logger *slog.Logger,
	proxyHandler *handler.ProxyHandler,
	debugConfigHandler *handler.DebugConfigHandler,
	debugCacheHandler *handler.DebugCacheHandler,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))

	r.Get("/health", handler.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/debug/config", debugConfigHandler.ServeHTTP)
	r.Get("/debug/cache", debugCacheHandler.ServeHTTP)
	r.Handle("/*", proxyHandler)

	return r
}
