// Package app is the composition root: it turns a config.Config into a fully
// wired set of command and query handlers over PostgreSQL, Redis and the
// event bus. Both binaries under cmd/ build on it.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alem-hub/registrar/config"
	"github.com/alem-hub/registrar/internal/application/catalog"
	"github.com/alem-hub/registrar/internal/application/command"
	"github.com/alem-hub/registrar/internal/application/query"
	"github.com/alem-hub/registrar/internal/application/resolver"
	"github.com/alem-hub/registrar/internal/domain/access"
	"github.com/alem-hub/registrar/internal/domain/importrun"
	"github.com/alem-hub/registrar/internal/infrastructure/messaging"
	"github.com/alem-hub/registrar/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/registrar/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/registrar/internal/infrastructure/spreadsheet"
	httpserver "github.com/alem-hub/registrar/internal/interface/http"
	"github.com/alem-hub/registrar/internal/interface/http/handlers"
	"github.com/alem-hub/registrar/pkg/circuitbreaker"
	"github.com/alem-hub/registrar/pkg/logger"
	"github.com/alem-hub/registrar/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLICATION
// ══════════════════════════════════════════════════════════════════════════════

// App holds every long-lived component.
type App struct {
	Config *config.Config
	Logger *logger.Logger

	DB       *postgres.Connection
	Cache    *redis.Cache // nil when Redis is disabled or unreachable
	Bus      *messaging.InMemoryEventBus
	Registry *prometheus.Registry
	Health   *handlers.CompositeHealthChecker

	// Commands
	ImportEnrollments *command.ImportEnrollmentsHandler
	ImportDivisions   *command.ImportDivisionsHandler
	ImportCourses     *command.ImportCoursesHandler

	// Queries
	Catalog         *query.CatalogHandler
	MissingRequired *query.MissingRequiredHandler
	ImportReports   *query.GetImportReportHandler

	Actors access.Repository
}

// Options tune New.
type Options struct {
	// Migrate applies pending migrations after connecting.
	Migrate bool

	// SyncEvents delivers events on the publishing goroutine.
	SyncEvents bool
}

// NewLogger builds the process logger from observability settings.
func NewLogger(cfg config.ObservabilityConfig) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.LogLevel)
	opts.Format = cfg.LogFormat
	return logger.New(opts)
}

// New connects to the backing services and wires the handlers. Close must be
// called on the returned App.
func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (*App, error) {
	if cfg.Features == nil {
		cfg.Features = config.NewFeatureFlags()
	}
	a := &App{
		Config:   cfg,
		Logger:   log,
		Registry: prometheus.NewRegistry(),
		Health:   handlers.NewCompositeHealthChecker(cfg.App.Version),
	}
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 1. PostgreSQL
	// ─────────────────────────────────────────────────────────────────────────
	db, err := ConnectPostgres(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	a.DB = db
	a.Health.AddCheck("postgres", handlers.NewPingCheck(db))

	if opts.Migrate {
		if err := postgres.NewMigrator(db).Migrate(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Redis (optional)
	// ─────────────────────────────────────────────────────────────────────────
	if !cfg.Redis.Disabled {
		cache, err := ConnectRedis(ctx, cfg.Redis, log)
		if err != nil {
			log.Warn("redis unavailable, report cache and upload lock disabled", logger.Err(err))
		} else {
			cache.UseBreaker(circuitbreaker.ForBackingService("redis", redis.IsBackendFailure, onBreakerChange(log)))
			a.Cache = cache
			a.Health.AddCheck("redis", handlers.NewPingCheck(cache))
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Event bus and subscribers
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.AsyncMode = !opts.SyncEvents
	busCfg.Logger = log
	a.Bus = messaging.NewInMemoryEventBus(busCfg)

	var audit *messaging.AuditLog
	if cfg.Features.IsEnabled(config.FeatureAuditLog, nil) {
		audit = messaging.NewAuditLog(log)
	}
	metrics := messaging.NewImportMetrics(a.Registry)
	if err := messaging.Register(a.Bus, metrics, audit); err != nil {
		a.Close()
		return nil, fmt.Errorf("register event subscribers: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. Repositories and handlers
	// ─────────────────────────────────────────────────────────────────────────
	a.wire()
	return a, nil
}

func (a *App) wire() {
	cfg := a.Config

	divisions := postgres.NewDivisionRepository(a.DB)
	courses := postgres.NewCourseRepository(a.DB)
	students := postgres.NewStudentRepository(a.DB)
	enrollments := postgres.NewEnrollmentRepository(a.DB)
	a.Actors = postgres.NewActorRepository(a.DB)

	var (
		reports importrun.ReportStore = command.NopReportStore{}
		lock    importrun.UploadLock  = command.NopUploadLock{}
	)
	if a.Cache != nil {
		if cfg.Features.IsEnabled(config.FeatureReportCache, nil) {
			reports = redis.NewReportStore(a.Cache, cfg.Import.ReportTTL)
		}
		if cfg.Features.IsEnabled(config.FeatureUploadLock, nil) {
			lock = redis.NewUploadLock(a.Cache, cfg.Import.LockTTL)
		}
	}

	deps := command.RunDeps{
		Reports:   reports,
		Lock:      lock,
		Publisher: a.Bus,
		Logger:    a.Logger,
	}

	extractor := spreadsheet.New(cfg.Import.SheetName)
	fallback := cfg.Features.IsEnabled(config.FeatureCourseCodeFallback, nil)
	res := resolver.New(divisions, students, resolver.DefaultCourseStrategies(courses, fallback)...)
	cat := catalog.New(courses, divisions)

	a.ImportEnrollments = command.NewImportEnrollmentsHandler(extractor, res, cat, enrollments, enrollments, deps)
	a.ImportDivisions = command.NewImportDivisionsHandler(extractor, res, divisions, deps)
	a.ImportCourses = command.NewImportCoursesHandler(extractor, res, cat, courses, deps)

	a.Catalog = query.NewCatalogHandler(cat)
	a.MissingRequired = query.NewMissingRequiredHandler(cat, courses, students, enrollments)
	a.ImportReports = query.NewGetImportReportHandler(reports)
}

// HTTPServer builds the API server over the wired handlers.
func (a *App) HTTPServer() *httpserver.Server {
	cfg := a.Config
	srvCfg := httpserver.DefaultConfig()
	srvCfg.Host = cfg.HTTP.Host
	srvCfg.Port = cfg.HTTP.Port
	srvCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	srvCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	srvCfg.RequestTimeout = cfg.HTTP.WriteTimeout - time.Second
	srvCfg.MaxUploadBytes = cfg.HTTP.MaxUploadBytes
	srvCfg.AllowedOrigins = cfg.HTTP.AllowedOrigins
	srvCfg.EnableMetrics = cfg.Observability.MetricsEnabled
	srvCfg.Version = cfg.App.Version

	return httpserver.NewServer(srvCfg, httpserver.Dependencies{
		ImportEnrollments: a.ImportEnrollments,
		ImportDivisions:   a.ImportDivisions,
		ImportCourses:     a.ImportCourses,
		Catalog:           a.Catalog,
		MissingRequired:   a.MissingRequired,
		ImportReports:     a.ImportReports,
		Actors:            a.Actors,
		HealthChecker:     a.Health,
		Metrics:           a.MetricsHandler(),
		Logger:            a.Logger,
	})
}

// MetricsHandler serves the application registry.
func (a *App) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{Registry: a.Registry})
}

// Close drains the event bus and closes connections.
func (a *App) Close() {
	if a.Bus != nil {
		if err := a.Bus.Close(); err != nil {
			a.Logger.Warn("event bus close failed", logger.Err(err))
		}
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Logger.Warn("redis close failed", logger.Err(err))
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// STARTUP CONNECTIONS
// ══════════════════════════════════════════════════════════════════════════════

func onRetry(log *logger.Logger, service string) func(int, error, time.Duration) {
	return func(attempt int, err error, delay time.Duration) {
		log.Warn("connection attempt failed, retrying",
			logger.Component(service),
			logger.Int("attempt", attempt),
			logger.Duration("delay", delay),
			logger.Err(err),
		)
	}
}

func onBreakerChange(log *logger.Logger) func(string, circuitbreaker.State, circuitbreaker.State) {
	return func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			logger.Component(name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}
}

// ConnectPostgres opens the pool, retrying transient failures.
func ConnectPostgres(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*postgres.Connection, error) {
	dsn := cfg.DSN()
	if dsn == "" {
		return nil, fmt.Errorf("database: DATABASE_URL or DB_HOST/DB_USER must be set")
	}

	pg := postgres.DefaultConfig()
	pg.DSN = dsn
	pg.MaxConns = int32(cfg.MaxOpenConns)
	pg.MinConns = int32(cfg.MaxIdleConns)
	pg.MaxConnLifetime = cfg.ConnMaxLifetime
	pg.MaxConnIdleTime = cfg.ConnMaxIdleTime

	conn, err := retry.DoWithData(ctx, func(ctx context.Context) (*postgres.Connection, error) {
		return postgres.NewConnection(ctx, pg)
	}, retry.Startup(cfg.ConnectAttempts, onRetry(log, "postgres"))...)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	log.Info("database connection established")
	return conn, nil
}

// ConnectRedis opens the Redis client, retrying transient failures.
func ConnectRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*redis.Cache, error) {
	rc := redis.DefaultConfig()
	rc.URL = cfg.URL
	rc.Host = cfg.Host
	rc.Port = cfg.Port
	rc.Password = cfg.Password
	rc.DB = cfg.DB
	rc.PoolSize = cfg.PoolSize
	rc.MinIdleConns = cfg.MinIdleConns
	rc.DialTimeout = cfg.DialTimeout
	rc.ReadTimeout = cfg.ReadTimeout
	rc.WriteTimeout = cfg.WriteTimeout

	cache, err := retry.DoWithData(ctx, func(ctx context.Context) (*redis.Cache, error) {
		return redis.NewCache(ctx, rc)
	}, retry.Startup(3, onRetry(log, "redis"))...)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	log.Info("redis connection established")
	return cache, nil
}
