package engine

import (
	"errors"

	"github.com/marcboeker/go-duckdb/v2"
)

func init() {
	Register(DuckDB{})
}

// DuckDB validates against an embedded DuckDB database.
type DuckDB struct{}

func (DuckDB) Name() string       { return "duckdb" }
func (DuckDB) DriverName() string { return "duckdb" }

func (DuckDB) ExplainPrefix() string { return "EXPLAIN " }

// Diagnose reports the DuckDB error type as the code; DuckDB has no numeric
// error codes of its own.
func (DuckDB) Diagnose(err error) Diagnostic {
	var duckErr *duckdb.Error
	if !errors.As(err, &duckErr) {
		return genericDiagnostic(err)
	}
	return Diagnostic{
		Code:    int(duckErr.Type),
		Message: duckErr.Msg,
		Syntax:  duckErr.Type == duckdb.ErrorTypeParser,
	}
}

// NormalizeDSN rewrites MotherDuck URLs to the md: form.
func (DuckDB) NormalizeDSN(dsn string) string {
	return NormalizeMotherDuckDSN(dsn)
}
