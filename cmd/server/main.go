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

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sifan077/EphemURL/config"
	"github.com/sifan077/EphemURL/internal/app/keygen"
	appmetrics "github.com/sifan077/EphemURL/internal/app/metrics"
	apprepository "github.com/sifan077/EphemURL/internal/app/repository"
	appserver "github.com/sifan077/EphemURL/internal/app/server"
	"github.com/sifan077/EphemURL/internal/app/service"
	"github.com/sifan077/EphemURL/internal/http/middleware"
	"github.com/sifan077/EphemURL/internal/infra/logger"
	infraNATS "github.com/sifan077/EphemURL/internal/infra/nats"
	infraPostgres "github.com/sifan077/EphemURL/internal/infra/postgres"
	infraPrometheus "github.com/sifan077/EphemURL/internal/infra/prometheus"
	infraRedis "github.com/sifan077/EphemURL/internal/infra/redis"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		logger.L().Error("server exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		return err
	}

	log, err := logger.Init(logger.FromApp(cfg))
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	instanceID := uuid.NewString()
	log = log.With(zap.String("instance", instanceID))

	log.Info("Configuration loaded successfully",
		zap.String("env", cfg.App.Env),
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.Int("postgres_port", cfg.Postgres.Port),
		zap.String("postgres_db", cfg.Postgres.Database),
		zap.Int("key_length", cfg.Shortener.KeyLength),
		zap.Duration("ttl", cfg.Shortener.TTL),
		zap.String("reclaimer_queue", cfg.Reclaimer.Queue),
		zap.Bool("redis_enabled", cfg.Redis.Enabled),
	)

	gormDB, err := infraPostgres.NewGorm(cfg)
	if err != nil {
		return err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("access underlying SQL DB: %w", err)
	}
	defer sqlDB.Close()

	if err := infraPostgres.AutoMigrate(ctx, gormDB); err != nil {
		return err
	}

	var store apprepository.MappingStore
	switch cfg.Store.Driver {
	case config.StoreDriverPgx:
		pool, err := infraPostgres.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		store = apprepository.NewPgxMappingRepository(pool)
	default:
		store = apprepository.NewMappingRepository(gormDB)
	}
	log.Info("Connected to Postgres successfully", zap.String("driver", cfg.Store.Driver))

	registry := infraPrometheus.NewRegistry()
	metrics := appmetrics.New(registry)

	gen, err := keygen.New(cfg.Shortener.KeyLength, cfg.Shortener.Alphabet)
	if err != nil {
		return fmt.Errorf("key generator: %w", err)
	}

	var (
		sweepLock service.SweepLock
		counter   middleware.Counter
	)
	if cfg.Redis.Enabled {
		redisClient, err := infraRedis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		log.Info("Connected to Redis successfully", zap.String("addr", infraRedis.Addr(cfg.Redis)))

		sweepLock = infraRedis.NewSweepLock(redisClient, instanceID, cfg.Reclaimer.LockTTL, log)
		if cfg.RateLimit.Enabled {
			counter = infraRedis.NewWindowCounter(redisClient, "ephemurl:ratelimit")
		}
	} else if cfg.RateLimit.Enabled {
		counter = middleware.NewMemoryCounter(cfg.RateLimit.Window)
	}

	reclaimer := service.NewReclaimer(service.ReclaimerDeps{
		Store:    store,
		Lock:     sweepLock,
		Logger:   log.Named("reclaimer"),
		Metrics:  metrics,
		Interval: cfg.Reclaimer.Interval,
		Cooldown: cfg.Reclaimer.Cooldown,
		Timeout:  cfg.Reclaimer.Timeout,
	})
	reclaimer.Start()
	defer reclaimer.Stop()

	var scheduler service.SweepScheduler = reclaimer
	if cfg.Reclaimer.Queue == config.QueueNATS {
		natsConn, js, err := infraNATS.Connect(cfg.NATS, "ephemurl-"+instanceID,
			nats.PublishAsyncErrHandler(func(_ nats.JetStream, msg *nats.Msg, err error) {
				log.Warn("sweep request not stored", zap.String("subject", msg.Subject), zap.Error(err))
			}),
		)
		if err != nil {
			return err
		}
		defer func() { _ = natsConn.Drain() }()
		log.Info("Connected to NATS successfully", zap.String("url", infraNATS.URL(cfg.NATS)))

		consumer := service.NewSweepConsumer(js, reclaimer, log.Named("sweep-consumer"))
		if err := consumer.Start(); err != nil {
			return fmt.Errorf("start sweep consumer: %w", err)
		}
		defer consumer.Stop()

		publisher := service.NewSweepPublisher(js, log.Named("sweep-publisher"), metrics, instanceID)
		publisher.Start()
		defer publisher.Stop()
		scheduler = publisher
	}

	registrar := service.NewRegistrar(service.RegistrarDeps{
		Store:        store,
		Keys:         gen,
		Logger:       log.Named("registrar"),
		Metrics:      metrics,
		TTL:          cfg.Shortener.TTL,
		MaxAttempts:  cfg.Shortener.MaxAttempts,
		StoreTimeout: cfg.Shortener.StoreTimeout,
	})
	resolver := service.NewResolver(service.ResolverDeps{
		Store:        store,
		Keys:         gen,
		Sweeper:      scheduler,
		Logger:       log.Named("resolver"),
		Metrics:      metrics,
		StoreTimeout: cfg.Shortener.StoreTimeout,
	})

	server := appserver.New(appserver.Dependencies{
		Logger:    log,
		App:       cfg.App,
		RateLimit: cfg.RateLimit,
		Registrar: registrar,
		Resolver:  resolver,
		Counter:   counter,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.App.Port)
		log.Info("Starting HTTP server", zap.String("addr", addr))
		return server.Listen(addr)
	})

	var promServer *http.Server
	if cfg.Prometheus.Enabled {
		promServer = infraPrometheus.NewServer(cfg.Prometheus, registry)
		g.Go(func() error {
			log.Info("Starting Prometheus metrics server", zap.String("addr", promServer.Addr))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("prometheus server: %w", err)
			}
			return nil
		})
	} else {
		log.Info("Prometheus metrics server disabled")
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if promServer != nil {
			if err := promServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("prometheus shutdown: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("Server stopped")
	return nil
}
