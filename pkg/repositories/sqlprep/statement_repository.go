// Package sqlprep implements repositories.StatementRepository on top of
// database/sql prepared statements.
package sqlprep

import (
	"context"
	"database/sql"
	"database/sql/driver"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/TFMV/querykit/pkg/decomposer"
	"github.com/TFMV/querykit/pkg/engine"
	"github.com/TFMV/querykit/pkg/errors"
	"github.com/TFMV/querykit/pkg/infrastructure/pool"
	"github.com/TFMV/querykit/pkg/models"
	"github.com/TFMV/querykit/pkg/repositories"
)

// statementRepository implements repositories.StatementRepository.
type statementRepository struct {
	pool    pool.ConnectionPool
	dialect engine.Dialect
	logger  zerolog.Logger
}

// NewStatementRepository creates a repository that prepares statements on
// connections from p and reads engine errors through d.
func NewStatementRepository(p pool.ConnectionPool, d engine.Dialect, logger zerolog.Logger) repositories.StatementRepository {
	return &statementRepository{
		pool:    p,
		dialect: d,
		logger:  logger.With().Str("dialect", d.Name()).Logger(),
	}
}

// Prepare compiles query on a dedicated connection and closes the statement.
func (r *statementRepository) Prepare(ctx context.Context, query string) (*models.PreparedInfo, error) {
	r.logger.Debug().
		Str("query", truncateQuery(query)).
		Msg("Preparing statement")

	start := time.Now()

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConnectionFailed, "failed to get connection from pool")
	}
	defer conn.Close()

	numInput := -1
	if c, ok := r.dialect.(engine.Compiler); ok {
		err = compile(ctx, conn, c.CompileStatement(query), decomposer.CountPlaceholders(query))
	} else {
		numInput, err = prepareRaw(ctx, conn, query)
	}
	if err != nil {
		qErr := r.classify(err)
		r.logger.Debug().
			Err(err).
			Str("code", qErr.Code).
			Int("engine_code", qErr.EngineCode).
			Dur("duration", time.Since(start)).
			Msg("Statement refused")
		return nil, qErr
	}

	info := &models.PreparedInfo{ParameterCount: numInput, CountReported: numInput >= 0}
	if !info.CountReported {
		info.ParameterCount = decomposer.CountPlaceholders(query)
	}

	r.logger.Debug().
		Int("parameter_count", info.ParameterCount).
		Bool("count_reported", info.CountReported).
		Dur("duration", time.Since(start)).
		Msg("Statement prepared")

	return info, nil
}

// Explain runs the dialect's EXPLAIN form of query and joins the last column
// of every plan row.
func (r *statementRepository) Explain(ctx context.Context, query string) (*models.ExplainResult, error) {
	r.logger.Debug().
		Str("query", truncateQuery(query)).
		Msg("Explaining statement")

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeConnectionFailed, "failed to get connection from pool")
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, r.dialect.ExplainPrefix()+query)
	if err != nil {
		return nil, r.classify(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to read plan columns")
	}
	if len(cols) == 0 {
		return nil, errors.New(errors.CodeEngineError, "plan has no columns")
	}

	values := make([]sql.RawBytes, len(cols))
	dest := make([]interface{}, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}

	var lines []string
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrap(err, errors.CodeInternal, "failed to scan plan row")
		}
		lines = append(lines, string(values[len(values)-1]))
	}
	if err := rows.Err(); err != nil {
		return nil, r.classify(err)
	}

	return &models.ExplainResult{
		Backend: r.dialect.Name(),
		Plan:    strings.Join(lines, "\n"),
		Rows:    len(lines),
	}, nil
}

// classify turns a driver error into a coded error. Broken connections and
// cancellations are connection failures; everything else is an engine
// diagnostic.
func (r *statementRepository) classify(err error) *errors.QueryError {
	if isConnectionError(err) {
		return errors.Wrap(err, errors.CodeConnectionFailed, "engine connection failed")
	}
	d := r.dialect.Diagnose(err)
	return errors.Engine(err, d.Syntax, d.Code, d.SQLState, d.Message)
}

func isConnectionError(err error) bool {
	return stderrors.Is(err, driver.ErrBadConn) ||
		stderrors.Is(err, sql.ErrConnDone) ||
		stderrors.Is(err, context.Canceled) ||
		stderrors.Is(err, context.DeadlineExceeded)
}

// prepareRaw prepares at the driver level, where the statement's input count
// is visible, and returns that count (-1 when the driver does not know it).
func prepareRaw(ctx context.Context, conn *sql.Conn, query string) (int, error) {
	numInput := -1
	err := conn.Raw(func(driverConn interface{}) error {
		stmt, err := prepareDriver(ctx, driverConn, query)
		if err != nil {
			return err
		}
		numInput = stmt.NumInput()
		return stmt.Close()
	})
	return numInput, err
}

func prepareDriver(ctx context.Context, driverConn interface{}, query string) (driver.Stmt, error) {
	if p, ok := driverConn.(driver.ConnPrepareContext); ok {
		return p.PrepareContext(ctx, query)
	}
	if c, ok := driverConn.(driver.Conn); ok {
		return c.Prepare(query)
	}
	return nil, fmt.Errorf("driver connection %T cannot prepare statements", driverConn)
}

// compile runs a statement whose only effect is to compile another one.
// Positional placeholders are bound to NULL.
func compile(ctx context.Context, conn *sql.Conn, statement string, placeholders int) error {
	rows, err := conn.QueryContext(ctx, statement, make([]any, placeholders)...)
	if err != nil {
		return err
	}
	if err := rows.Close(); err != nil {
		return err
	}
	return rows.Err()
}

// truncateQuery truncates long queries for logging.
func truncateQuery(query string) string {
	const maxLen = 100
	if len(query) <= maxLen {
		return query
	}
	return query[:maxLen] + "..."
}
