package middleware

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/TFMV/querykit/pkg/errors"
)

// RecoveryMiddleware provides panic recovery middleware.
type RecoveryMiddleware struct {
	logger zerolog.Logger
	stderr io.Writer
}

// NewRecoveryMiddleware creates a new recovery middleware.
func NewRecoveryMiddleware(logger zerolog.Logger) *RecoveryMiddleware {
	return &RecoveryMiddleware{
		logger: logger,
		stderr: os.Stderr,
	}
}

// Handler turns panics in next into 500 responses.
func (m *RecoveryMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := newStatusRecorder(w)
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				m.handlePanic(p, r)
				if !rec.written() {
					writeError(rec, http.StatusInternalServerError, errors.CodeInternal, "internal server error")
				}
			}
		}()

		next.ServeHTTP(rec, r)
	})
}

// handlePanic logs panic information.
func (m *RecoveryMiddleware) handlePanic(p interface{}, r *http.Request) {
	stack := debug.Stack()

	m.logger.Error().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("request_id", GetRequestID(r.Context())).
		Interface("panic", p).
		Str("stack", string(stack)).
		Msg("Panic recovered")

	fmt.Fprintf(m.stderr, "PANIC in %s %s: %v\n%s\n", r.Method, r.URL.Path, p, stack)
}
