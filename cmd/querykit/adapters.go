package main

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/TFMV/querykit/cmd/querykit/middleware"
	"github.com/TFMV/querykit/pkg/infrastructure/metrics"
	"github.com/TFMV/querykit/pkg/services"
)

// serviceLoggerAdapter adapts zerolog to the services and handlers Logger
// interfaces.
type serviceLoggerAdapter struct {
	logger zerolog.Logger
}

func newComponentLogger(logger zerolog.Logger, component string) *serviceLoggerAdapter {
	return &serviceLoggerAdapter{logger: logger.With().Str("component", component).Logger()}
}

func (l *serviceLoggerAdapter) Debug(msg string, keysAndValues ...interface{}) {
	event := l.logger.Debug()
	addFields(event, keysAndValues...)
	event.Msg(msg)
}

func (l *serviceLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	event := l.logger.Info()
	addFields(event, keysAndValues...)
	event.Msg(msg)
}

func (l *serviceLoggerAdapter) Warn(msg string, keysAndValues ...interface{}) {
	event := l.logger.Warn()
	addFields(event, keysAndValues...)
	event.Msg(msg)
}

func (l *serviceLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	event := l.logger.Error()
	addFields(event, keysAndValues...)
	event.Msg(msg)
}

func addFields(event *zerolog.Event, keysAndValues ...interface{}) {
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}

		switch v := keysAndValues[i+1].(type) {
		case string:
			event.Str(key, v)
		case int:
			event.Int(key, v)
		case int64:
			event.Int64(key, v)
		case float64:
			event.Float64(key, v)
		case bool:
			event.Bool(key, v)
		case error:
			event.AnErr(key, v)
		case time.Duration:
			event.Dur(key, v)
		case time.Time:
			event.Time(key, v)
		default:
			event.Interface(key, v)
		}
	}
}

// serviceMetricsAdapter adapts metrics.Collector to the services.MetricsCollector interface.
type serviceMetricsAdapter struct {
	collector metrics.Collector
}

func (m *serviceMetricsAdapter) IncrementCounter(name string, labels ...string) {
	m.collector.IncrementCounter(name, labels...)
}

func (m *serviceMetricsAdapter) RecordHistogram(name string, value float64, labels ...string) {
	m.collector.RecordHistogram(name, value, labels...)
}

func (m *serviceMetricsAdapter) RecordGauge(name string, value float64, labels ...string) {
	m.collector.RecordGauge(name, value, labels...)
}

func (m *serviceMetricsAdapter) StartTimer(name string) services.Timer {
	return &serviceTimerAdapter{timer: m.collector.StartTimer(name)}
}

// serviceTimerAdapter adapts metrics.Timer to services.Timer interface.
type serviceTimerAdapter struct {
	timer metrics.Timer
}

func (t *serviceTimerAdapter) Stop() time.Duration {
	return time.Duration(t.timer.Stop() * float64(time.Second))
}

// middlewareMetricsAdapter adapts metrics.Collector to middleware.MetricsCollector interface.
type middlewareMetricsAdapter struct {
	collector metrics.Collector
}

func (m *middlewareMetricsAdapter) IncrementCounter(name string, labels ...string) {
	m.collector.IncrementCounter(name, labels...)
}

func (m *middlewareMetricsAdapter) RecordHistogram(name string, value float64, labels ...string) {
	m.collector.RecordHistogram(name, value, labels...)
}

func (m *middlewareMetricsAdapter) RecordGauge(name string, value float64, labels ...string) {
	m.collector.RecordGauge(name, value, labels...)
}

func (m *middlewareMetricsAdapter) StartTimer(name string) middleware.Timer {
	return m.collector.StartTimer(name)
}

// poolMetricsAdapter reports connection pool activity through metrics.Collector.
type poolMetricsAdapter struct {
	collector metrics.Collector
}

func (m *poolMetricsAdapter) RecordConnectionAcquisition(pool string, d time.Duration) {
	m.collector.RecordHistogram("pool_acquire_duration_seconds", d.Seconds(), "pool", pool)
}

func (m *poolMetricsAdapter) UpdateActiveConnections(pool string, count int) {
	m.collector.RecordGauge("pool_active_connections", float64(count), "pool", pool)
}

func (m *poolMetricsAdapter) IncrementConnectionError(pool string) {
	m.collector.IncrementCounter("pool_connection_errors_total", "pool", pool)
}

func (m *poolMetricsAdapter) IncrementCircuitBreakerTrip(pool string) {
	m.collector.IncrementCounter("pool_circuit_breaker_trips_total", "pool", pool)
}
