// Package pool provides lazily opened database/sql connection pools for the
// engines statements are validated against.
package pool

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	pkgerrors "github.com/TFMV/querykit/pkg/errors"
)

// Config represents pool configuration.
type Config struct {
	// Name identifies the pool in logs and stats, e.g. "parser".
	Name               string        `json:"name"`
	Driver             string        `json:"driver"`
	DSN                string        `json:"dsn"`
	MaxOpenConnections int           `json:"max_open_connections"`
	MaxIdleConnections int           `json:"max_idle_connections"`
	ConnMaxLifetime    time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime    time.Duration `json:"conn_max_idle_time"`
	HealthCheckPeriod  time.Duration `json:"health_check_period"`
	ConnectionTimeout  time.Duration `json:"connection_timeout"`

	EnableCircuitBreaker    bool          `json:"enable_circuit_breaker"`
	CircuitBreakerThreshold int           `json:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `json:"circuit_breaker_timeout"`
}

// ConnectionPool hands out dedicated connections to one engine.
type ConnectionPool interface {
	// Acquire returns a connection reserved for the caller, opening the
	// underlying handle on first use. The caller must Close the connection.
	Acquire(ctx context.Context) (*sql.Conn, error)
	// Stats returns pool statistics.
	Stats() PoolStats
	// HealthCheck pings the engine, opening the handle if needed.
	HealthCheck(ctx context.Context) error
	// Close closes the connection pool.
	Close() error
	// SetMetricsCollector sets the metrics collector.
	SetMetricsCollector(collector MetricsCollector)
}

// MetricsCollector interface for collecting pool metrics.
type MetricsCollector interface {
	RecordConnectionAcquisition(pool string, duration time.Duration)
	UpdateActiveConnections(pool string, count int)
	IncrementConnectionError(pool string)
	IncrementCircuitBreakerTrip(pool string)
}

// Opener opens a database handle. sql.Open is used by default.
type Opener func(driverName, dsn string) (*sql.DB, error)

// Option configures a pool.
type Option func(*connectionPool)

// WithOpener replaces sql.Open, e.g. to inject a mock handle.
func WithOpener(open Opener) Option {
	return func(p *connectionPool) {
		p.open = open
	}
}

// PoolStats represents connection pool statistics.
type PoolStats struct {
	Name                   string        `json:"name"`
	Driver                 string        `json:"driver"`
	Connected              bool          `json:"connected"`
	OpenConnections        int           `json:"open_connections"`
	InUse                  int           `json:"in_use"`
	Idle                   int           `json:"idle"`
	WaitCount              int64         `json:"wait_count"`
	WaitDuration           time.Duration `json:"wait_duration"`
	MaxIdleClosed          int64         `json:"max_idle_closed"`
	MaxLifetimeClosed      int64         `json:"max_lifetime_closed"`
	LastHealthCheck        time.Time     `json:"last_health_check"`
	HealthCheckStatus      string        `json:"health_check_status"`
	ConnectionErrors       int64         `json:"connection_errors"`
	PeakConnections        int           `json:"peak_connections"`
	CircuitBreakerState    string        `json:"circuit_breaker_state,omitempty"`
	CircuitBreakerFailures int64         `json:"circuit_breaker_failures,omitempty"`
}

// CircuitBreakerState represents the state of the circuit breaker.
type CircuitBreakerState int

const (
	CircuitBreakerClosed CircuitBreakerState = iota
	CircuitBreakerOpen
	CircuitBreakerHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case CircuitBreakerClosed:
		return "closed"
	case CircuitBreakerOpen:
		return "open"
	case CircuitBreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker implements the circuit breaker pattern for connection failures.
type CircuitBreaker struct {
	state           atomic.Int32 // CircuitBreakerState
	failures        atomic.Int64
	lastFailureTime atomic.Int64 // UnixNano
	threshold       int
	timeout         time.Duration
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(threshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold: threshold,
		timeout:   timeout,
	}
}

// CanExecute checks if the circuit breaker allows execution.
func (cb *CircuitBreaker) CanExecute() bool {
	state := CircuitBreakerState(cb.state.Load())

	switch state {
	case CircuitBreakerClosed:
		return true
	case CircuitBreakerOpen:
		if time.Since(time.Unix(0, cb.lastFailureTime.Load())) > cb.timeout {
			// Let one probe through.
			if cb.state.CompareAndSwap(int32(CircuitBreakerOpen), int32(CircuitBreakerHalfOpen)) {
				return true
			}
		}
		return false
	case CircuitBreakerHalfOpen:
		return true
	default:
		return false
	}
}

// RecordSuccess records a successful operation.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.failures.Store(0)
	cb.state.Store(int32(CircuitBreakerClosed))
}

// RecordFailure records a failed operation and reports whether it tripped
// the breaker.
func (cb *CircuitBreaker) RecordFailure() bool {
	failures := cb.failures.Add(1)
	cb.lastFailureTime.Store(time.Now().UnixNano())

	if failures >= int64(cb.threshold) {
		return cb.state.Swap(int32(CircuitBreakerOpen)) != int32(CircuitBreakerOpen)
	}
	return false
}

// GetState returns the current circuit breaker state.
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	return CircuitBreakerState(cb.state.Load())
}

// GetFailures returns the current failure count.
func (cb *CircuitBreaker) GetFailures() int64 {
	return cb.failures.Load()
}

type connectionPool struct {
	config Config
	logger zerolog.Logger
	open   Opener

	// mu guards db and serializes the first open.
	mu sync.Mutex
	db *sql.DB

	closed atomic.Bool

	lastHealthCheck atomic.Int64 // Unix timestamp
	healthStatus    atomic.Value // string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	waitCount        atomic.Int64
	waitDuration     atomic.Int64
	connectionErrors atomic.Int64
	peakConnections  atomic.Int32

	circuitBreaker *CircuitBreaker

	metricsMu        sync.RWMutex
	metricsCollector MetricsCollector
}

// New creates a connection pool. No connection is made until the first
// Acquire or HealthCheck.
func New(cfg Config, logger zerolog.Logger, opts ...Option) (ConnectionPool, error) {
	if cfg.Driver == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidRequest, "pool driver not specified")
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Driver
	}

	if cfg.MaxOpenConnections <= 0 {
		cfg.MaxOpenConnections = 10
	}
	if cfg.MaxIdleConnections <= 0 {
		cfg.MaxIdleConnections = 2
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.ConnMaxIdleTime <= 0 {
		cfg.ConnMaxIdleTime = 10 * time.Minute
	}
	if cfg.ConnectionTimeout <= 0 {
		cfg.ConnectionTimeout = 10 * time.Second
	}
	if cfg.CircuitBreakerThreshold <= 0 {
		cfg.CircuitBreakerThreshold = 5
	}
	if cfg.CircuitBreakerTimeout <= 0 {
		cfg.CircuitBreakerTimeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &connectionPool{
		config: cfg,
		logger: logger.With().Str("pool", cfg.Name).Logger(),
		open:   sql.Open,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(p)
	}

	if cfg.EnableCircuitBreaker {
		p.circuitBreaker = NewCircuitBreaker(cfg.CircuitBreakerThreshold, cfg.CircuitBreakerTimeout)
	}
	p.healthStatus.Store("unknown")

	p.logger.Info().
		Str("driver", cfg.Driver).
		Str("dsn", maskDSN(cfg.DSN)).
		Int("max_open", cfg.MaxOpenConnections).
		Int("max_idle", cfg.MaxIdleConnections).
		Bool("circuit_breaker", cfg.EnableCircuitBreaker).
		Msg("Connection pool configured")

	return p, nil
}

// Acquire returns a dedicated connection.
func (p *connectionPool) Acquire(ctx context.Context) (*sql.Conn, error) {
	if p.closed.Load() {
		return nil, pkgerrors.ErrPoolClosed
	}

	if p.circuitBreaker != nil && !p.circuitBreaker.CanExecute() {
		return nil, pkgerrors.ErrCircuitOpen
	}

	start := time.Now()
	p.waitCount.Add(1)
	defer func() {
		duration := time.Since(start)
		p.waitDuration.Add(int64(duration))
		if mc := p.collector(); mc != nil {
			mc.RecordConnectionAcquisition(p.config.Name, duration)
		}
	}()

	db, err := p.handle(ctx)
	if err != nil {
		p.recordFailure()
		return nil, err
	}

	connCtx, cancel := context.WithTimeout(ctx, p.config.ConnectionTimeout)
	defer cancel()

	conn, err := db.Conn(connCtx)
	if err != nil {
		p.recordFailure()
		p.logger.Error().Err(err).Msg("Failed to obtain connection")
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "database connection failed")
	}

	if p.circuitBreaker != nil {
		p.circuitBreaker.RecordSuccess()
	}

	stats := db.Stats()
	if int32(stats.OpenConnections) > p.peakConnections.Load() {
		p.peakConnections.Store(int32(stats.OpenConnections))
	}
	if mc := p.collector(); mc != nil {
		mc.UpdateActiveConnections(p.config.Name, stats.InUse)
	}

	return conn, nil
}

// handle returns the shared handle, opening and pinging it on first use.
// A failed open is not kept, so the next call tries again.
func (p *connectionPool) handle(ctx context.Context) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() {
		return nil, pkgerrors.ErrPoolClosed
	}
	if p.db != nil {
		return p.db, nil
	}

	db, err := p.open(p.config.Driver, p.config.DSN)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to open database")
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "failed to open database")
	}

	db.SetMaxOpenConns(p.config.MaxOpenConnections)
	db.SetMaxIdleConns(p.config.MaxIdleConnections)
	db.SetConnMaxLifetime(p.config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(p.config.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, p.config.ConnectionTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		p.updateHealthStatus("unhealthy", err.Error())
		p.logger.Error().Err(err).Str("dsn", maskDSN(p.config.DSN)).Msg("Database ping failed")
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "database connection failed")
	}

	p.db = db
	p.updateHealthStatus("healthy", "")
	p.logger.Info().Msg("Database connection established")

	if p.config.HealthCheckPeriod > 0 {
		p.wg.Add(1)
		go p.healthCheckRoutine(p.ctx)
	}

	return db, nil
}

func (p *connectionPool) recordFailure() {
	p.connectionErrors.Add(1)
	mc := p.collector()
	if mc != nil {
		mc.IncrementConnectionError(p.config.Name)
	}
	if p.circuitBreaker != nil && p.circuitBreaker.RecordFailure() {
		p.logger.Warn().
			Int64("failures", p.circuitBreaker.GetFailures()).
			Msg("Circuit breaker opened")
		if mc != nil {
			mc.IncrementCircuitBreakerTrip(p.config.Name)
		}
	}
}

func (p *connectionPool) current() *sql.DB {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.db
}

// Stats returns pool statistics.
func (p *connectionPool) Stats() PoolStats {
	stats := PoolStats{
		Name:              p.config.Name,
		Driver:            p.config.Driver,
		WaitCount:         p.waitCount.Load(),
		WaitDuration:      time.Duration(p.waitDuration.Load()),
		HealthCheckStatus: p.getHealthStatus(),
		ConnectionErrors:  p.connectionErrors.Load(),
		PeakConnections:   int(p.peakConnections.Load()),
	}
	if ts := p.lastHealthCheck.Load(); ts > 0 {
		stats.LastHealthCheck = time.Unix(ts, 0)
	}

	if db := p.current(); db != nil {
		dbStats := db.Stats()
		stats.Connected = true
		stats.OpenConnections = dbStats.OpenConnections
		stats.InUse = dbStats.InUse
		stats.Idle = dbStats.Idle
		stats.MaxIdleClosed = dbStats.MaxIdleClosed
		stats.MaxLifetimeClosed = dbStats.MaxLifetimeClosed
	}

	if p.circuitBreaker != nil {
		stats.CircuitBreakerState = p.circuitBreaker.GetState().String()
		stats.CircuitBreakerFailures = p.circuitBreaker.GetFailures()
	}

	return stats
}

// SetMetricsCollector sets the metrics collector.
func (p *connectionPool) SetMetricsCollector(collector MetricsCollector) {
	p.metricsMu.Lock()
	defer p.metricsMu.Unlock()
	p.metricsCollector = collector
}

func (p *connectionPool) collector() MetricsCollector {
	p.metricsMu.RLock()
	defer p.metricsMu.RUnlock()
	return p.metricsCollector
}

// HealthCheck performs a health check on the pool.
func (p *connectionPool) HealthCheck(ctx context.Context) error {
	if p.closed.Load() {
		return pkgerrors.ErrPoolClosed
	}

	db, err := p.handle(ctx)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		p.updateHealthStatus("unhealthy", err.Error())
		return pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "health check ping failed")
	}

	var result int
	err = db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
	if err != nil || result != 1 {
		p.updateHealthStatus("unhealthy", "query test failed")
		if err == nil {
			err = errors.New("unexpected result from health query")
		}
		return pkgerrors.Wrap(err, pkgerrors.CodeConnectionFailed, "health check query failed")
	}

	p.updateHealthStatus("healthy", "")
	return nil
}

// Close closes the connection pool.
func (p *connectionPool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	p.logger.Info().Msg("Closing connection pool")

	p.cancel()

	p.mu.Lock()
	db := p.db
	p.db = nil
	p.mu.Unlock()

	p.wg.Wait()

	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to close database")
	}
	return nil
}

// healthCheckRoutine performs periodic health checks until ctx is cancelled.
func (p *connectionPool) healthCheckRoutine(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.HealthCheckPeriod)
	defer ticker.Stop()

	p.logger.Debug().Dur("period", p.config.HealthCheckPeriod).Msg("Health check routine started")

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug().Msg("Health check routine stopped")
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, p.config.ConnectionTimeout)
			if err := p.HealthCheck(probeCtx); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Error().Err(err).Msg("Periodic health check failed")
			}
			cancel()
		}
	}
}

func (p *connectionPool) updateHealthStatus(status, detail string) {
	p.lastHealthCheck.Store(time.Now().Unix())
	previous, _ := p.healthStatus.Swap(status).(string)

	if status == "unhealthy" && previous != status && detail != "" {
		p.logger.Warn().
			Str("status", status).
			Str("detail", detail).
			Msg("Connection pool health status changed")
	}
}

func (p *connectionPool) getHealthStatus() string {
	if v, ok := p.healthStatus.Load().(string); ok {
		return v
	}
	return "unknown"
}

// maskDSN hides passwords and secrets but keeps enough of the DSN to be
// recognisable in logs.
//
//   - ":memory:" or empty         → returned verbatim
//   - URL DSNs (scheme://...)     → redact password and sensitive query params
//   - user:pass@proto(addr)/db    → redact the password (go-sql-driver form)
//   - key=value pairs             → redact sensitive values (libpq form)
//   - anything else               → keep first/last 3 runes, mask the middle
func maskDSN(dsn string) string {
	if dsn == "" || dsn == ":memory:" {
		return dsn
	}

	if strings.Contains(dsn, "://") || strings.HasPrefix(dsn, "md:") {
		if u, err := url.Parse(dsn); err == nil && looksLikeURL(u) {
			return maskURL(u)
		}
	}

	if at := strings.LastIndexByte(dsn, '@'); at >= 0 {
		creds := dsn[:at]
		if i := strings.IndexByte(creds, ':'); i >= 0 {
			creds = creds[:i] + ":*****"
		}
		return creds + dsn[at:]
	}

	if strings.Contains(dsn, "=") && !strings.Contains(dsn, "?") {
		fields := strings.Fields(dsn)
		for i, f := range fields {
			if k, _, ok := strings.Cut(f, "="); ok && isSensitiveKey(k) {
				fields[i] = k + "=*****"
			}
		}
		return strings.Join(fields, " ")
	}

	runes := []rune(dsn)
	if len(runes) <= 10 {
		return "***"
	}
	return string(runes[:3]) + "***" + string(runes[len(runes)-3:])
}

func maskURL(u *url.URL) string {
	if ui := u.User; ui != nil {
		user := ui.Username()
		if _, hasPass := ui.Password(); hasPass {
			u.User = url.UserPassword(user, "*****")
		} else {
			u.User = url.User(user)
		}
	}

	q := u.Query()
	for k := range q {
		if isSensitiveKey(k) {
			q.Set(k, "*****")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// looksLikeURL returns true when the parsed value has enough URL structure to
// treat it as a DSN we can meaningfully redact.
func looksLikeURL(u *url.URL) bool {
	return u.Scheme != "" || u.Host != "" || u.User != nil || u.RawQuery != ""
}

// isSensitiveKey reports whether a query key should have its value masked.
func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	switch {
	case strings.Contains(key, "pass"),
		strings.Contains(key, "token"),
		strings.Contains(key, "secret"),
		strings.HasSuffix(key, "key"):
		return true
	default:
		return false
	}
}
