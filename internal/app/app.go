package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/utafrali/templamart/internal/catalog"
	"github.com/utafrali/templamart/internal/config"
	"github.com/utafrali/templamart/internal/event"
	handler "github.com/utafrali/templamart/internal/handler/http"
	"github.com/utafrali/templamart/internal/service"
	"github.com/utafrali/templamart/internal/storage"
	"github.com/utafrali/templamart/internal/storage/file"
	"github.com/utafrali/templamart/internal/storage/memory"
	storageredis "github.com/utafrali/templamart/internal/storage/redis"
	"github.com/utafrali/templamart/internal/storage/sqlite"
	"github.com/utafrali/templamart/pkg/database"
	"github.com/utafrali/templamart/pkg/health"
	"github.com/utafrali/templamart/pkg/httpclient"
	pkgkafka "github.com/utafrali/templamart/pkg/kafka"
	"github.com/utafrali/templamart/pkg/middleware"
	"github.com/utafrali/templamart/pkg/tracing"
)

const serviceName = "shopper-service"

var initTracer = tracing.InitTracer

// App wires together all dependencies and runs the shopper service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	closers        []namedCloser
	producer       *pkgkafka.Producer
	tracerShutdown func(context.Context) error
	httpServer     *http.Server
}

type namedCloser struct {
	name string
	c    io.Closer
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Tracing.
	tcfg := tracing.DefaultConfig(serviceName)
	tcfg.Environment = cfg.Environment
	tcfg.Enabled = cfg.OTELEnabled
	tcfg.OTLPEndpoint = cfg.OTELEndpoint
	tcfg.SampleRate = cfg.OTELSampleRate
	shutdown, err := initTracer(ctx, tcfg)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = shutdown

	if cfg.SlowOpMillis > 0 {
		database.SetSlowOpLogging(time.Duration(cfg.SlowOpMillis)*time.Millisecond, logger)
	}

	// Slot storage.
	slots, err := a.openStorage(ctx)
	if err != nil {
		a.release(ctx)
		return nil, err
	}
	logger.Info("slot storage ready", slog.String("driver", cfg.StorageDriver))

	// Catalog client behind a circuit breaker.
	cb := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.DefaultConfig()),
		httpclient.DefaultCircuitBreakerConfig("catalog"),
		logger,
	)
	catalogClient := catalog.NewClient(cfg.CatalogBaseURL, cb, logger)

	// Kafka producer, only when brokers are configured.
	var notifiers service.NotifierFactory
	if cfg.KafkaEnabled() {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		notifiers = event.NewProducer(a.producer, logger).ForSession
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	} else {
		logger.Info("kafka disabled, notices stay local")
	}

	shopperService := service.NewShopperService(slots, catalogClient, notifiers, logger,
		service.WithSessionLimits(time.Duration(cfg.SessionIdleTTLMinutes)*time.Minute, cfg.SessionMax),
	)

	// Health checks.
	healthHandler := health.NewHandler()
	if p, ok := slots.(storage.Pinger); ok {
		healthHandler.Register("storage", p.Ping)
	}
	if a.producer != nil {
		healthHandler.Register("kafka", a.producer.Ping)
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins
	cors.Environment = cfg.Environment

	opts := handler.RouterOptions{
		CORS: cors,
		RateLimit: middleware.RateLimitConfig{
			RPS:   cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
		},
	}
	if cfg.PprofEnabled {
		opts.PprofAllowlist = cfg.PprofAllowedCIDRs
	}
	router := handler.NewRouter(shopperService, healthHandler, opts, logger)

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return a, nil
}

func (a *App) openStorage(ctx context.Context) (storage.Storage, error) {
	switch a.cfg.StorageDriver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverFile:
		s, err := file.New(a.cfg.StorageFileDir)
		if err != nil {
			return nil, fmt.Errorf("open file storage: %w", err)
		}
		return s, nil
	case config.DriverRedis:
		rdb, err := database.NewRedisClient(ctx, database.RedisConfig{
			Addr:     a.cfg.RedisAddr,
			Password: a.cfg.RedisPass,
			DB:       a.cfg.RedisDB,
		})
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		a.closers = append(a.closers, namedCloser{"redis", rdb})
		return storageredis.New(rdb, time.Duration(a.cfg.SlotTTLHours)*time.Hour), nil
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, a.cfg.StorageSQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite storage: %w", err)
		}
		a.closers = append(a.closers, namedCloser{"sqlite", s})
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", a.cfg.StorageDriver)
	}
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		releaseCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.release(releaseCtx)
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	a.release(shutdownCtx)

	a.logger.Info("application shutdown complete")
	return nil
}

// release closes every opened dependency and flushes the tracer.
func (a *App) release(ctx context.Context) {
	a.closeAll()

	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		}
		a.tracerShutdown = nil
	}
}

func (a *App) closeAll() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
		a.producer = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		nc := a.closers[i]
		if err := nc.c.Close(); err != nil {
			a.logger.Error(nc.name+" close error", slog.String("error", err.Error()))
		}
	}
	a.closers = nil
}
