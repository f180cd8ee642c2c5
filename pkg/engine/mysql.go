package engine

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// erParseError is ER_PARSE_ERROR.
const erParseError = 1064

func init() {
	Register(MySQL{})
}

// MySQL validates against a MySQL or MariaDB server.
type MySQL struct{}

func (MySQL) Name() string       { return "mysql" }
func (MySQL) DriverName() string { return "mysql" }

func (MySQL) ExplainPrefix() string { return "EXPLAIN FORMAT=JSON " }

func (MySQL) Diagnose(err error) Diagnostic {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return genericDiagnostic(err)
	}
	return Diagnostic{
		Code:     int(myErr.Number),
		SQLState: sqlState(myErr.SQLState),
		Message:  myErr.Message,
		Syntax:   myErr.Number == erParseError,
	}
}

func sqlState(state [5]byte) string {
	if state == [5]byte{} {
		return ""
	}
	return string(state[:])
}
