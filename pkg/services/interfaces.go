// Package services contains business logic implementations.
package services

import (
	"context"
	"time"

	"github.com/TFMV/querykit/pkg/models"
)

// QueryService defines the query processing operations.
type QueryService interface {
	// Classify returns the kind of the query's leading keyword.
	Classify(query string) models.QueryKind
	// Validate reports whether the syntax engine accepts the query's syntax.
	// Non-syntax engine diagnostics count as valid.
	Validate(ctx context.Context, query string) bool
	// ValidateStrict reports whether the parser engine prepares the query.
	ValidateStrict(ctx context.Context, query string) bool
	// Parse validates the query and reports its kind and parameter count.
	Parse(ctx context.Context, query string) *models.ParseResult
	Decompose(query string) *models.Components
	Reconstruct(c *models.Components) string
	ReconstructMap(m map[string]any) string
}

// Logger defines logging interface.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// MetricsCollector defines metrics collection interface.
type MetricsCollector interface {
	IncrementCounter(name string, labels ...string)
	RecordHistogram(name string, value float64, labels ...string)
	RecordGauge(name string, value float64, labels ...string)
	StartTimer(name string) Timer
}

// Timer represents a timing measurement.
type Timer interface {
	Stop() time.Duration
}
