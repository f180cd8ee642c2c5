package engine

import (
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// syntaxErrorState is SQLSTATE class 42 "syntax_error".
const syntaxErrorState = "42601"

func init() {
	Register(Postgres{})
}

// Postgres validates against a PostgreSQL server through pgx.
type Postgres struct{}

func (Postgres) Name() string       { return "postgres" }
func (Postgres) DriverName() string { return "pgx" }

func (Postgres) ExplainPrefix() string { return "EXPLAIN (FORMAT JSON) " }

// Diagnose uses the SQLSTATE as the code when it is all digits.
func (Postgres) Diagnose(err error) Diagnostic {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return genericDiagnostic(err)
	}
	code, _ := strconv.Atoi(pgErr.Code)
	return Diagnostic{
		Code:     code,
		SQLState: pgErr.Code,
		Message:  pgErr.Message,
		Syntax:   pgErr.Code == syntaxErrorState,
	}
}
