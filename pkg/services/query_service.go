package services

import (
	"context"
	"fmt"

	"github.com/TFMV/querykit/pkg/cache"
	"github.com/TFMV/querykit/pkg/decomposer"
	"github.com/TFMV/querykit/pkg/errors"
	"github.com/TFMV/querykit/pkg/models"
	"github.com/TFMV/querykit/pkg/repositories"
)

// Options configures a query service.
type Options struct {
	// Dialect is the engine name used in user-facing messages.
	Dialect string
	// Explain attaches a best-effort plan to successful parses of SELECT
	// statements.
	Explain bool
	// Verdicts, when set, remembers Validate outcomes. Connection failures
	// are never stored.
	Verdicts cache.Cache
}

// queryService implements QueryService interface.
type queryService struct {
	parser  repositories.StatementRepository
	syntax  repositories.StatementRepository
	opts    Options
	keys    cache.CacheKeyGenerator
	logger  Logger
	metrics MetricsCollector
}

// NewQueryService creates a new query service. parser prepares statements
// against the configured database; syntax prepares them on a connection that
// only needs to understand the grammar. The two may be the same repository.
func NewQueryService(
	parser repositories.StatementRepository,
	syntax repositories.StatementRepository,
	opts Options,
	logger Logger,
	metrics MetricsCollector,
) QueryService {
	if syntax == nil {
		syntax = parser
	}
	return &queryService{
		parser:  parser,
		syntax:  syntax,
		opts:    opts,
		keys:    &cache.DefaultCacheKeyGenerator{},
		logger:  logger,
		metrics: metrics,
	}
}

// Classify returns the kind of query.
func (s *queryService) Classify(query string) models.QueryKind {
	kind := decomposer.Classify(query)
	s.metrics.IncrementCounter("queries_classified_total", "kind", kind.String())
	return kind
}

// Validate prepares query on the syntax engine. Only syntax diagnostics and
// connection failures make a query invalid.
func (s *queryService) Validate(ctx context.Context, query string) bool {
	timer := s.metrics.StartTimer("validate")
	defer timer.Stop()

	key := s.keys.GenerateKey(s.opts.Dialect, query)
	if s.opts.Verdicts != nil {
		if v, ok := s.opts.Verdicts.Get(ctx, key); ok {
			s.metrics.IncrementCounter("verdict_cache_total", "result", "hit")
			return v.Valid
		}
		s.metrics.IncrementCounter("verdict_cache_total", "result", "miss")
	}

	_, err := s.syntax.Prepare(ctx, query)
	switch {
	case err == nil:
		s.metrics.IncrementCounter("validation_results_total", "result", "valid")
		s.remember(ctx, key, cache.Verdict{Valid: true})
		return true
	case errors.IsConnectionFailed(err):
		s.logger.Warn("Syntax engine unavailable", "dialect", s.opts.Dialect, "error", err)
		s.metrics.IncrementCounter("validation_results_total", "result", "connection_failed")
		return false
	case errors.IsSyntaxError(err):
		s.logger.Debug("Syntax error", "query", truncateQuery(query), "engine_code", errors.GetEngineCode(err))
		s.metrics.IncrementCounter("validation_results_total", "result", "syntax_error")
		s.remember(ctx, key, cache.Verdict{Valid: false, EngineCode: errors.GetEngineCode(err)})
		return false
	default:
		s.logger.Debug("Accepting query with non-syntax diagnostic",
			"query", truncateQuery(query),
			"engine_code", errors.GetEngineCode(err),
			"error", errors.GetMessage(err))
		s.metrics.IncrementCounter("validation_results_total", "result", "valid")
		s.remember(ctx, key, cache.Verdict{Valid: true, EngineCode: errors.GetEngineCode(err)})
		return true
	}
}

func (s *queryService) remember(ctx context.Context, key string, v cache.Verdict) {
	if s.opts.Verdicts == nil {
		return
	}
	if err := s.opts.Verdicts.Put(ctx, key, v); err != nil {
		s.logger.Warn("Failed to cache verdict", "error", err)
	}
}

// ValidateStrict prepares query on the parser engine and accepts it only
// when prepare succeeds.
func (s *queryService) ValidateStrict(ctx context.Context, query string) bool {
	timer := s.metrics.StartTimer("validate_strict")
	defer timer.Stop()

	if _, err := s.parser.Prepare(ctx, query); err != nil {
		if errors.IsConnectionFailed(err) {
			s.logger.Warn("Parser engine unavailable", "dialect", s.opts.Dialect, "error", err)
		}
		s.metrics.IncrementCounter("validation_results_total", "result", "refused")
		return false
	}
	s.metrics.IncrementCounter("validation_results_total", "result", "valid")
	return true
}

// Parse classifies query and prepares it on the parser engine.
func (s *queryService) Parse(ctx context.Context, query string) *models.ParseResult {
	timer := s.metrics.StartTimer("parse")
	defer timer.Stop()

	result := &models.ParseResult{QueryType: s.Classify(query)}

	info, err := s.parser.Prepare(ctx, query)
	if err != nil {
		if errors.IsConnectionFailed(err) {
			s.logger.Error("Could not connect for parsing", "dialect", s.opts.Dialect, "error", err)
			s.metrics.IncrementCounter("parse_results_total", "result", "connection_failed")
			result.SetError(fmt.Sprintf("Could not connect to %s for parsing", s.opts.Dialect), 0)
			return result
		}
		s.metrics.IncrementCounter("parse_results_total", "result", "refused")
		result.SetError(errors.GetMessage(err), errors.GetEngineCode(err))
		return result
	}

	result.IsValid = true
	result.NormalizedQuery = query
	result.ParameterCount = info.ParameterCount
	s.metrics.IncrementCounter("parse_results_total", "result", "valid")
	s.metrics.RecordHistogram("parse_parameter_count", float64(info.ParameterCount))

	if s.opts.Explain && result.QueryType == models.KindSelect {
		plan, err := s.parser.Explain(ctx, query)
		if err != nil {
			s.logger.Warn("Failed to explain query", "query", truncateQuery(query), "error", err)
			s.metrics.IncrementCounter("explain_errors_total")
		} else {
			result.Explain = plan
		}
	}

	return result
}

// Decompose splits query into clause components.
func (s *queryService) Decompose(query string) *models.Components {
	c := decomposer.Decompose(query)
	s.metrics.IncrementCounter("decompositions_total", "kind", c.Kind.String())
	s.logger.Debug("Decomposed query",
		"kind", c.Kind.String(),
		"fields", len(c.Fields),
		"tables", len(c.Tables))
	return c
}

// Reconstruct rebuilds a query from components.
func (s *queryService) Reconstruct(c *models.Components) string {
	kind := "invalid"
	if c != nil {
		kind = c.Kind.String()
	}
	s.metrics.IncrementCounter("reconstructions_total", "kind", kind)
	return decomposer.Reconstruct(c)
}

// ReconstructMap rebuilds a query from the keyed external representation.
func (s *queryService) ReconstructMap(m map[string]any) string {
	c, err := models.ComponentsFromMap(m)
	if err != nil {
		s.logger.Debug("Rejecting components", "error", err)
		s.metrics.IncrementCounter("reconstructions_total", "kind", "invalid")
		return decomposer.InvalidComponentsText
	}
	return s.Reconstruct(c)
}

// truncateQuery truncates long queries for logging.
func truncateQuery(query string) string {
	const maxLen = 100
	if len(query) <= maxLen {
		return query
	}
	return query[:maxLen] + "..."
}
