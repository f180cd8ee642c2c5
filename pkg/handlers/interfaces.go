// Package handlers contains the HTTP/JSON handlers for querykit.
package handlers

import (
	"github.com/TFMV/querykit/pkg/infrastructure/pool"
)

// StatsProvider reports the state of a connection pool.
type StatsProvider interface {
	Stats() pool.PoolStats
}

// Logger defines the logging interface.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// MetricsCollector defines the metrics interface.
type MetricsCollector interface {
	IncrementCounter(name string, tags ...string)
	RecordHistogram(name string, value float64, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
	StartTimer(name string) Timer
}

// Timer represents a timing measurement.
type Timer interface {
	Stop()
}
