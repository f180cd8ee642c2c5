package engine

import (
	"errors"
	"strings"

	"modernc.org/sqlite"
)

// sqliteError is SQLITE_ERROR, the generic code that parse errors share with
// unknown tables and columns.
const sqliteError = 1

func init() {
	Register(SQLite{})
}

// SQLite validates against an embedded SQLite database.
type SQLite struct{}

func (SQLite) Name() string       { return "sqlite" }
func (SQLite) DriverName() string { return "sqlite" }

func (SQLite) ExplainPrefix() string { return "EXPLAIN QUERY PLAN " }

// CompileStatement uses EXPLAIN, which compiles the statement to bytecode
// without running it. The driver only compiles on first execution.
func (SQLite) CompileStatement(query string) string { return "EXPLAIN " + query }

func (SQLite) Diagnose(err error) Diagnostic {
	var liteErr *sqlite.Error
	if !errors.As(err, &liteErr) {
		return genericDiagnostic(err)
	}
	msg := liteErr.Error()
	return Diagnostic{
		Code:    liteErr.Code(),
		Message: msg,
		Syntax: liteErr.Code()&0xff == sqliteError &&
			(strings.Contains(msg, "syntax error") || strings.Contains(msg, "incomplete input")),
	}
}
