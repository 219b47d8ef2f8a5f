package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/api"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/api/cache"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/audit"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/index"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/indexstore"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/notify"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/rebuild"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/internal/record"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Blog-Content-Store/pkg/resilience"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting blog server", "port", cfg.Server.Port, "data_dir", cfg.Blog.DataDir, "index_dir", cfg.Blog.IndexDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(nil)
	}

	loc, err := cfg.Blog.Location()
	if err != nil {
		slog.Error("invalid timezone", "error", err)
		os.Exit(1)
	}
	fsys := afero.NewOsFs()
	records := record.NewStore(fsys, cfg.Blog)
	store := indexstore.NewStore(fsys, cfg.Blog)
	builder := index.NewBuilder(records, index.BuilderConfig{
		Location:    loc,
		Concurrency: cfg.Blog.ReadConcurrency,
	})

	checker := health.NewChecker(0)
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		info, err := store.Info()
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d posts, %s, built %s", info.PostCount, humanize.Bytes(uint64(info.Size)), humanize.Time(info.BuiltAt)),
		}
	})

	var pageCache *cache.PageCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, falling back to in-process page cache", "error", err)
		} else {
			defer redisClient.Close()
			pageCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
			checker.Register("redis", health.ErrorCheck(health.StatusDegraded, redisClient.Ping))
			slog.Info("page cache enabled", "backend", "redis", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}
	if pageCache == nil && cfg.Blog.PageCacheSize > 0 {
		pageCache = cache.New(cache.NewLocalBackend(cfg.Blog.PageCacheSize, cfg.Redis.CacheTTL), cfg.Redis.CacheTTL, m)
		slog.Info("page cache enabled", "backend", "memory", "size", cfg.Blog.PageCacheSize)
	}

	var opts []rebuild.Option
	if m != nil {
		opts = append(opts, rebuild.WithMetrics(m))
	}
	if cfg.Postgres.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, rebuild audit disabled", "error", err)
		} else {
			defer db.Close()
			auditStore := audit.NewStore(db)
			if err := auditStore.Migrate(ctx); err != nil {
				slog.Warn("audit migration failed, rebuild audit disabled", "error", err)
			} else {
				opts = append(opts, rebuild.WithAuditor(auditStore))
				checker.Register("postgres", health.ErrorCheck(health.StatusDegraded, db.Ping))
			}
		}
	}
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexPublished)
		defer producer.Close()
		opts = append(opts, rebuild.WithNotifier(notify.NewKafkaNotifier(producer, resilience.RetryConfig{})))
	}

	var h *api.Handler
	opts = append(opts, rebuild.OnPublished(func(idx *index.Index) { h.SetIndex(idx) }))
	svc := rebuild.NewService(builder, store, opts...)
	h = api.New(records, store, svc, cfg.Blog, pageCache, m)

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(metrics.ServerConfig{
			Port:       cfg.Metrics.Port,
			Generation: h.Generation,
			Ready:      checker.ReadyHandler(),
		})
		defer shutdownMetrics(context.Background())
	}

	if err := h.Reload(); err != nil {
		if !errors.Is(err, apperrors.ErrIndexMissing) {
			slog.Error("failed to load published index", "error", err)
			os.Exit(1)
		}
		slog.Warn("no index published yet, POST /api/v1/index to build one")
	}

	if cfg.Kafka.Enabled {
		// Other instances sharing the index directory announce their
		// rebuilds here; pick up the new index and drop stale pages.
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexPublished,
			notify.Handler(func(ctx context.Context, ev notify.IndexPublished) error {
				if ev.Generation != h.Generation() {
					if err := h.Reload(); err != nil {
						slog.Warn("reload after announcement failed", "generation", ev.Generation, "error", err)
					}
				}
				if pageCache != nil {
					return pageCache.Invalidate(ctx)
				}
				return nil
			}))
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("index announcement consumer error", "error", err)
			}
		}()
		slog.Info("listening for index announcements", "topic", cfg.Kafka.Topics.IndexPublished)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewRouter(h, checker, m, routerConfig(cfg.Server)),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("blog server listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("blog server stopped")
}

func routerConfig(cfg config.ServerConfig) api.RouterConfig {
	rc := api.RouterConfig{
		RequestTimeout: cfg.WriteTimeout,
		AdminToken:     cfg.AdminToken,
	}
	if cfg.RebuildsPerMinute > 0 {
		rc.AdminLimiter = middleware.NewLimiter(cfg.RebuildsPerMinute, time.Minute)
	}
	if cfg.AdminToken == "" {
		slog.Warn("server.adminToken is empty, index routes are unauthenticated")
	}
	return rc
}
