// Package repositories defines interfaces for engine access operations.
package repositories

import (
	"context"

	"github.com/TFMV/querykit/pkg/models"
)

// StatementRepository asks an engine about statements without executing
// them.
type StatementRepository interface {
	// Prepare compiles query on the engine and discards the statement.
	// A refused statement yields a *errors.QueryError coded SYNTAX_ERROR or
	// ENGINE_ERROR; an unreachable engine yields CONNECTION_FAILED.
	Prepare(ctx context.Context, query string) (*models.PreparedInfo, error)
	// Explain returns the engine's plan for query.
	Explain(ctx context.Context, query string) (*models.ExplainResult, error)
}
