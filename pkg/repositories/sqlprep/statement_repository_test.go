package sqlprep

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/querykit/pkg/engine"
	pkgerrors "github.com/TFMV/querykit/pkg/errors"
	"github.com/TFMV/querykit/pkg/infrastructure/pool"
)

func newMockRepository(t *testing.T) (*statementRepository, sqlmock.Sqlmock) {
	t.Helper()
	logger := zerolog.New(zerolog.NewTestWriter(t))

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)

	p, err := pool.New(pool.Config{Name: "syntax", Driver: "mysql"}, logger,
		pool.WithOpener(func(string, string) (*sql.DB, error) { return db, nil }))
	require.NoError(t, err)

	t.Cleanup(func() {
		mock.ExpectClose()
		assert.NoError(t, p.Close())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	repo := NewStatementRepository(p, engine.MustGet("mysql"), logger)
	return repo.(*statementRepository), mock
}

func TestStatementRepository_Prepare(t *testing.T) {
	t.Run("accepted statement", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectPrepare("SELECT * FROM users WHERE id = ?")

		info, err := repo.Prepare(context.Background(), "SELECT * FROM users WHERE id = ?")
		require.NoError(t, err)
		assert.Equal(t, 1, info.ParameterCount)
	})

	t.Run("syntax error", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectPrepare("SELEC 1").WillReturnError(&mysql.MySQLError{
			Number:   1064,
			SQLState: [5]byte{'4', '2', '0', '0', '0'},
			Message:  "You have an error in your SQL syntax",
		})

		info, err := repo.Prepare(context.Background(), "SELEC 1")
		require.Error(t, err)
		assert.Nil(t, info)
		assert.True(t, pkgerrors.IsSyntaxError(err))
		assert.Equal(t, 1064, pkgerrors.GetEngineCode(err))
		assert.Equal(t, "You have an error in your SQL syntax", pkgerrors.GetMessage(err))

		var qErr *pkgerrors.QueryError
		require.ErrorAs(t, err, &qErr)
		assert.Equal(t, "42000", qErr.SQLState)
	})

	t.Run("semantic error", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectPrepare("SELECT * FROM nope").WillReturnError(&mysql.MySQLError{
			Number:  1146,
			Message: "Table 'mysql_qp_test.nope' doesn't exist",
		})

		_, err := repo.Prepare(context.Background(), "SELECT * FROM nope")
		require.Error(t, err)
		assert.True(t, pkgerrors.IsEngineError(err))
		assert.False(t, pkgerrors.IsSyntaxError(err))
		assert.Equal(t, 1146, pkgerrors.GetEngineCode(err))
	})

	t.Run("non engine error", func(t *testing.T) {
		repo, mock := newMockRepository(t)
		mock.ExpectPrepare("SELECT 1").WillReturnError(errors.New("packets out of order"))

		_, err := repo.Prepare(context.Background(), "SELECT 1")
		require.Error(t, err)
		assert.True(t, pkgerrors.IsEngineError(err))
		assert.Equal(t, 0, pkgerrors.GetEngineCode(err))
	})
}

func TestStatementRepository_ConnectionFailure(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))

	p, err := pool.New(pool.Config{Name: "parser", Driver: "mysql"}, logger,
		pool.WithOpener(func(string, string) (*sql.DB, error) {
			return nil, errors.New("dial tcp 127.0.0.1:3306: connect: connection refused")
		}))
	require.NoError(t, err)
	defer p.Close()

	repo := NewStatementRepository(p, engine.MustGet("mysql"), logger)

	_, err = repo.Prepare(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConnectionFailed(err))

	_, err = repo.Explain(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsConnectionFailed(err))
}

func TestStatementRepository_Explain(t *testing.T) {
	repo, mock := newMockRepository(t)

	plan := `{"query_block": {"select_id": 1}}`
	mock.ExpectQuery("EXPLAIN FORMAT=JSON SELECT a FROM t").
		WillReturnRows(sqlmock.NewRows([]string{"EXPLAIN"}).AddRow(plan))

	res, err := repo.Explain(context.Background(), "SELECT a FROM t")
	require.NoError(t, err)
	assert.Equal(t, "mysql", res.Backend)
	assert.Equal(t, plan, res.Plan)
	assert.Equal(t, 1, res.Rows)
}

func TestStatementRepository_ExplainRefused(t *testing.T) {
	repo, mock := newMockRepository(t)

	mock.ExpectQuery("EXPLAIN FORMAT=JSON SELEC a").
		WillReturnError(&mysql.MySQLError{Number: 1064, Message: "syntax"})

	_, err := repo.Explain(context.Background(), "SELEC a")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsSyntaxError(err))
}

func TestIsConnectionError(t *testing.T) {
	assert.True(t, isConnectionError(context.Canceled))
	assert.True(t, isConnectionError(sql.ErrConnDone))
	assert.False(t, isConnectionError(errors.New("syntax")))
}

func TestTruncateQuery(t *testing.T) {
	assert.Equal(t, "SELECT 1", truncateQuery("SELECT 1"))

	long := "SELECT " + strings.Repeat("a, ", 50) + "b FROM t"
	truncated := truncateQuery(long)
	assert.Len(t, truncated, 103)
	assert.True(t, strings.HasSuffix(truncated, "..."))
}

func TestStatementRepository_SQLite(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	dsn := filepath.Join(t.TempDir(), "validate.db")

	setup, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	_, err = setup.Exec("CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)
	require.NoError(t, setup.Close())

	d := engine.MustGet("sqlite")
	p, err := pool.New(pool.Config{Name: "parser", Driver: d.DriverName(), DSN: dsn}, logger)
	require.NoError(t, err)
	defer p.Close()

	repo := NewStatementRepository(p, d, logger)
	ctx := context.Background()

	t.Run("accepted", func(t *testing.T) {
		info, err := repo.Prepare(ctx, "SELECT id, name FROM items WHERE id = 1")
		require.NoError(t, err)
		assert.Equal(t, 0, info.ParameterCount)
		assert.False(t, info.CountReported)
	})

	t.Run("syntax error", func(t *testing.T) {
		_, err := repo.Prepare(ctx, "SELEC 1")
		require.Error(t, err)
		assert.True(t, pkgerrors.IsSyntaxError(err))
		assert.Equal(t, 1, pkgerrors.GetEngineCode(err))
	})

	t.Run("missing table", func(t *testing.T) {
		_, err := repo.Prepare(ctx, "SELECT * FROM missing")
		require.Error(t, err)
		assert.True(t, pkgerrors.IsEngineError(err))
	})

	t.Run("placeholders", func(t *testing.T) {
		info, err := repo.Prepare(ctx, "SELECT name FROM items WHERE id = ? AND name <> '?'")
		require.NoError(t, err)
		assert.Equal(t, 1, info.ParameterCount)
		assert.False(t, info.CountReported)
	})

	t.Run("statement is not executed", func(t *testing.T) {
		_, err := repo.Prepare(ctx, "DELETE FROM items")
		require.NoError(t, err)
		_, err = repo.Prepare(ctx, "DROP TABLE items")
		require.NoError(t, err)

		_, err = repo.Prepare(ctx, "SELECT * FROM items")
		require.NoError(t, err, "table must survive a prepared DROP")
	})

	t.Run("explain", func(t *testing.T) {
		res, err := repo.Explain(ctx, "SELECT name FROM items WHERE id = 1")
		require.NoError(t, err)
		assert.Equal(t, "sqlite", res.Backend)
		assert.GreaterOrEqual(t, res.Rows, 1)
		assert.Contains(t, res.Plan, "items")
	})
}

func TestStatementRepository_DuckDB(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))

	d := engine.MustGet("duckdb")
	p, err := pool.New(pool.Config{Name: "parser", Driver: d.DriverName()}, logger)
	require.NoError(t, err)
	defer p.Close()

	repo := NewStatementRepository(p, d, logger)
	ctx := context.Background()

	info, err := repo.Prepare(ctx, "SELECT ?::INTEGER + ?::INTEGER")
	require.NoError(t, err)
	assert.Equal(t, 2, info.ParameterCount)
	assert.True(t, info.CountReported)

	_, err = repo.Prepare(ctx, "SELEC 1")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsSyntaxError(err))

	_, err = repo.Prepare(ctx, "SELECT * FROM missing")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsEngineError(err))

	res, err := repo.Explain(ctx, "SELECT 42")
	require.NoError(t, err)
	assert.Equal(t, "duckdb", res.Backend)
	assert.NotEmpty(t, res.Plan)
}
