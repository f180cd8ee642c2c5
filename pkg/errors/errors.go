// Package errors provides standardized error types for querykit.
package errors

import (
	"errors"
	"fmt"
)

// Error codes shared by the repositories, services and the HTTP surface.
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeConnectionFailed = "CONNECTION_FAILED"
	CodeSyntaxError      = "SYNTAX_ERROR"
	CodeEngineError      = "ENGINE_ERROR"
	CodeUnavailable      = "UNAVAILABLE"
	CodeInternal         = "INTERNAL_ERROR"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeUnimplemented    = "UNIMPLEMENTED"
)

// QueryError is a coded error. Engine diagnostics carry the engine's own
// numeric code and, where the engine has one, its SQLSTATE.
type QueryError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	EngineCode int                    `json:"engine_code,omitempty"`
	SQLState   string                 `json:"sql_state,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison by code.
func (e *QueryError) Is(target error) bool {
	t, ok := target.(*QueryError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails returns a copy of the error carrying details.
func (e *QueryError) WithDetails(details map[string]interface{}) *QueryError {
	cp := *e
	cp.Details = details
	return &cp
}

// WithDetail returns a copy of the error with one more detail.
func (e *QueryError) WithDetail(key string, value interface{}) *QueryError {
	cp := *e
	cp.Details = make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// Common errors
var (
	ErrInvalidQuery      = &QueryError{Code: CodeInvalidRequest, Message: "invalid query"}
	ErrInvalidComponents = &QueryError{Code: CodeInvalidRequest, Message: "invalid components"}
	ErrConnectionFailed  = &QueryError{Code: CodeConnectionFailed, Message: "engine connection failed"}
	ErrPoolClosed        = &QueryError{Code: CodeUnavailable, Message: "connection pool is closed"}
	ErrCircuitOpen       = &QueryError{Code: CodeUnavailable, Message: "circuit breaker is open"}
	ErrUnauthorized      = &QueryError{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrNotImplemented    = &QueryError{Code: CodeUnimplemented, Message: "feature not implemented"}
)

// New creates a new QueryError with the given code and message.
func New(code, message string) *QueryError {
	return &QueryError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with a QueryError.
func Wrap(err error, code, message string) *QueryError {
	if err == nil {
		return nil
	}
	return &QueryError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code, format string, args ...interface{}) *QueryError {
	if err == nil {
		return nil
	}
	return &QueryError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// Engine builds the error for a statement the engine refused to prepare.
func Engine(err error, syntax bool, engineCode int, sqlState, message string) *QueryError {
	code := CodeEngineError
	if syntax {
		code = CodeSyntaxError
	}
	return &QueryError{
		Code:       code,
		Message:    message,
		EngineCode: engineCode,
		SQLState:   sqlState,
		Cause:      err,
	}
}

func hasCode(err error, code string) bool {
	var qErr *QueryError
	if errors.As(err, &qErr) {
		return qErr.Code == code
	}
	return false
}

// IsConnectionFailed checks if an error means the engine could not be reached.
func IsConnectionFailed(err error) bool {
	return hasCode(err, CodeConnectionFailed) || hasCode(err, CodeUnavailable)
}

// IsSyntaxError checks if an error is the engine's syntax diagnostic.
func IsSyntaxError(err error) bool {
	return hasCode(err, CodeSyntaxError)
}

// IsEngineError checks if an error is a non-syntax engine diagnostic.
func IsEngineError(err error) bool {
	return hasCode(err, CodeEngineError)
}

// IsInvalidRequest checks if an error is an invalid request error.
func IsInvalidRequest(err error) bool {
	return hasCode(err, CodeInvalidRequest)
}

// GetCode extracts the error code from an error.
func GetCode(err error) string {
	var qErr *QueryError
	if errors.As(err, &qErr) {
		return qErr.Code
	}
	return CodeInternal
}

// GetMessage extracts the error message from an error.
func GetMessage(err error) string {
	var qErr *QueryError
	if errors.As(err, &qErr) {
		return qErr.Message
	}
	return err.Error()
}

// GetEngineCode extracts the engine diagnostic code, or 0.
func GetEngineCode(err error) int {
	var qErr *QueryError
	if errors.As(err, &qErr) {
		return qErr.EngineCode
	}
	return 0
}
