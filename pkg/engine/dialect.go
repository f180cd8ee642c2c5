// Package engine describes the SQL engines that statements can be validated
// against. Each dialect knows its database/sql driver and how to read that
// driver's errors.
package engine

// Dialect adapts one SQL engine.
type Dialect interface {
	// Name is the registry key, e.g. "mysql".
	Name() string
	// DriverName is the database/sql driver to open connections with.
	DriverName() string
	// Diagnose extracts the engine diagnostic carried by err.
	Diagnose(err error) Diagnostic
	// ExplainPrefix is prepended to a statement to request its plan.
	ExplainPrefix() string
}

// Diagnostic is an engine error reduced to what callers report.
type Diagnostic struct {
	// Code is the engine's numeric error code, 0 when it has none.
	Code     int
	SQLState string
	Message  string
	// Syntax is set when the engine reported a grammar error.
	Syntax bool
}

// IsSyntaxError reports whether d describes a grammar error.
func (d Diagnostic) IsSyntaxError() bool {
	return d.Syntax
}

func genericDiagnostic(err error) Diagnostic {
	if err == nil {
		return Diagnostic{}
	}
	return Diagnostic{Message: err.Error()}
}

// Compiler is implemented by dialects whose driver defers statement
// compilation past Prepare. CompileStatement wraps query so that running it
// compiles query without executing it.
type Compiler interface {
	CompileStatement(query string) string
}

// DSNNormalizer is implemented by dialects that accept DSN forms their
// driver cannot open directly.
type DSNNormalizer interface {
	NormalizeDSN(dsn string) string
}
