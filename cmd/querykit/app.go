package main

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/TFMV/querykit/cmd/querykit/config"
	"github.com/TFMV/querykit/cmd/querykit/middleware"
	"github.com/TFMV/querykit/pkg/cache"
	"github.com/TFMV/querykit/pkg/engine"
	"github.com/TFMV/querykit/pkg/handlers"
	"github.com/TFMV/querykit/pkg/infrastructure/metrics"
	"github.com/TFMV/querykit/pkg/infrastructure/pool"
	"github.com/TFMV/querykit/pkg/repositories/sqlprep"
	"github.com/TFMV/querykit/pkg/services"
)

// app owns the pools and the query service built from a configuration.
type app struct {
	cfg      *config.Config
	logger   zerolog.Logger
	dialect  engine.Dialect
	registry *prometheus.Registry
	metrics  metrics.Collector
	pools    []pool.ConnectionPool
	verdicts *cache.MemoryCache
	service  services.QueryService
}

func newApp(cfg *config.Config, logger zerolog.Logger) (*app, error) {
	dialect, err := engine.Get(cfg.Engine.Dialect)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		dialect: dialect,
	}

	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.metrics = metrics.NewPrometheusCollector("querykit", a.registry)
	} else {
		a.metrics = metrics.NewNoOpCollector()
	}

	parserPool, err := a.newPool("parser", cfg.Engine.DSN)
	if err != nil {
		return nil, err
	}
	parser := sqlprep.NewStatementRepository(parserPool, dialect, logger.With().Str("component", "parser_repository").Logger())

	// One pool serves both roles when they share a DSN.
	syntax := parser
	if cfg.Engine.SyntaxDSN != cfg.Engine.DSN {
		syntaxPool, err := a.newPool("syntax", cfg.Engine.SyntaxDSN)
		if err != nil {
			a.Close()
			return nil, err
		}
		syntax = sqlprep.NewStatementRepository(syntaxPool, dialect, logger.With().Str("component", "syntax_repository").Logger())
	}

	opts := services.Options{Dialect: dialect.Name(), Explain: cfg.Engine.Explain}
	if vc := cfg.Engine.VerdictCache; vc.Enabled {
		a.verdicts = cache.NewMemoryCache(cache.DefaultConfig().WithMaxSize(vc.MaxSize).WithTTL(vc.TTL))
		opts.Verdicts = a.verdicts
	}

	a.service = services.NewQueryService(
		parser,
		syntax,
		opts,
		newComponentLogger(logger, "query_service"),
		&serviceMetricsAdapter{collector: a.metrics},
	)

	return a, nil
}

func (a *app) newPool(name, dsn string) (pool.ConnectionPool, error) {
	e := a.cfg.Engine
	p, err := pool.New(pool.Config{
		Name:                    name,
		Driver:                  a.dialect.DriverName(),
		DSN:                     engine.InjectMotherDuckToken(dsn, e.MotherDuckToken),
		MaxOpenConnections:      e.MaxOpenConnections,
		MaxIdleConnections:      e.MaxIdleConnections,
		ConnMaxLifetime:         e.ConnMaxLifetime,
		ConnMaxIdleTime:         e.ConnMaxIdleTime,
		HealthCheckPeriod:       e.HealthCheckPeriod,
		ConnectionTimeout:       e.ConnectionTimeout,
		EnableCircuitBreaker:    e.CircuitBreaker.Enabled,
		CircuitBreakerThreshold: e.CircuitBreaker.Threshold,
		CircuitBreakerTimeout:   e.CircuitBreaker.Timeout,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s connection pool: %w", name, err)
	}
	p.SetMetricsCollector(&poolMetricsAdapter{collector: a.metrics})
	a.pools = append(a.pools, p)
	return p, nil
}

// router builds the HTTP surface. Metrics are mounted on it unless a
// separate metrics address is configured.
func (a *app) router() http.Handler {
	r := chi.NewRouter()

	skip := []string{"/healthz"}
	if a.cfg.Metrics.Enabled {
		skip = append(skip, a.cfg.Metrics.Path)
	}

	r.Use(
		middleware.NewRecoveryMiddleware(a.logger).Handler,
		middleware.NewLoggingMiddleware(a.logger.With().Str("component", "http").Logger()).Handler,
		middleware.NewMetricsMiddleware(&middlewareMetricsAdapter{collector: a.metrics}).Handler,
		middleware.NewAuthMiddleware(a.cfg.Auth, a.logger, skip...).Handler,
		chimw.Timeout(a.cfg.Server.RequestTimeout),
	)

	handlerMetrics := handlers.NewMetricsAdapter(a.metrics)
	handlers.NewQueryHandler(a.service, newComponentLogger(a.logger, "query_handler"), handlerMetrics).RegisterRoutes(r)

	providers := make([]handlers.StatsProvider, 0, len(a.pools))
	for _, p := range a.pools {
		providers = append(providers, p)
	}
	handlers.NewHealthHandler(a.dialect.Name(), version, newComponentLogger(a.logger, "health_handler"), providers...).RegisterRoutes(r)

	if a.cfg.Metrics.Enabled && a.cfg.Metrics.Address == "" {
		r.Method(http.MethodGet, a.cfg.Metrics.Path, a.metricsServer().Handler())
	}

	return r
}

func (a *app) metricsServer() *metrics.MetricsServer {
	return metrics.NewMetricsServer(a.cfg.Metrics.Address, a.cfg.Metrics.Path, a.registry)
}

// Close closes every pool and drops cached verdicts.
func (a *app) Close() error {
	if a.verdicts != nil {
		_ = a.verdicts.Close()
	}
	var firstErr error
	for _, p := range a.pools {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
