package handlers

import (
	"encoding/json"
	stdErrors "errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/TFMV/querykit/pkg/errors"
	"github.com/TFMV/querykit/pkg/services"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// QueryRequest carries the statement of a query operation.
type QueryRequest struct {
	Query string `json:"query"`
}

// ClassifyResponse is the result of /v1/classify.
type ClassifyResponse struct {
	QueryType int    `json:"query_type"`
	Kind      string `json:"kind"`
}

// ValidateResponse is the result of /v1/validate.
type ValidateResponse struct {
	Valid bool `json:"valid"`
}

// ReconstructResponse is the result of /v1/reconstruct.
type ReconstructResponse struct {
	Query string `json:"query"`
}

// ErrorResponse is written for requests that could not be served.
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// QueryHandler serves the query operations over HTTP.
type QueryHandler struct {
	service services.QueryService
	logger  Logger
	metrics MetricsCollector
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(service services.QueryService, logger Logger, metrics MetricsCollector) *QueryHandler {
	return &QueryHandler{
		service: service,
		logger:  logger,
		metrics: metrics,
	}
}

// RegisterRoutes mounts the query operations on r.
func (h *QueryHandler) RegisterRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Post("/classify", h.Classify)
		r.Post("/validate", h.Validate)
		r.Post("/validate/strict", h.ValidateStrict)
		r.Post("/parse", h.Parse)
		r.Post("/decompose", h.Decompose)
		r.Post("/reconstruct", h.Reconstruct)
	})
}

// Classify handles POST /v1/classify.
func (h *QueryHandler) Classify(w http.ResponseWriter, r *http.Request) {
	timer := h.metrics.StartTimer("handler_classify")
	defer timer.Stop()

	req, ok := h.decodeQuery(w, r)
	if !ok {
		return
	}

	kind := h.service.Classify(req.Query)
	h.writeJSON(w, http.StatusOK, ClassifyResponse{QueryType: int(kind), Kind: kind.String()})
}

// Validate handles POST /v1/validate.
func (h *QueryHandler) Validate(w http.ResponseWriter, r *http.Request) {
	timer := h.metrics.StartTimer("handler_validate")
	defer timer.Stop()

	req, ok := h.decodeQuery(w, r)
	if !ok {
		return
	}

	h.writeJSON(w, http.StatusOK, ValidateResponse{Valid: h.service.Validate(r.Context(), req.Query)})
}

// ValidateStrict handles POST /v1/validate/strict.
func (h *QueryHandler) ValidateStrict(w http.ResponseWriter, r *http.Request) {
	timer := h.metrics.StartTimer("handler_validate_strict")
	defer timer.Stop()

	req, ok := h.decodeQuery(w, r)
	if !ok {
		return
	}

	h.writeJSON(w, http.StatusOK, ValidateResponse{Valid: h.service.ValidateStrict(r.Context(), req.Query)})
}

// Parse handles POST /v1/parse.
func (h *QueryHandler) Parse(w http.ResponseWriter, r *http.Request) {
	timer := h.metrics.StartTimer("handler_parse")
	defer timer.Stop()

	req, ok := h.decodeQuery(w, r)
	if !ok {
		return
	}

	h.writeJSON(w, http.StatusOK, h.service.Parse(r.Context(), req.Query))
}

// Decompose handles POST /v1/decompose.
func (h *QueryHandler) Decompose(w http.ResponseWriter, r *http.Request) {
	timer := h.metrics.StartTimer("handler_decompose")
	defer timer.Stop()

	req, ok := h.decodeQuery(w, r)
	if !ok {
		return
	}

	h.writeJSON(w, http.StatusOK, h.service.Decompose(req.Query))
}

// Reconstruct handles POST /v1/reconstruct. The body is the keyed
// components structure.
func (h *QueryHandler) Reconstruct(w http.ResponseWriter, r *http.Request) {
	timer := h.metrics.StartTimer("handler_reconstruct")
	defer timer.Stop()

	var m map[string]any
	if err := decodeBody(w, r, &m); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, ReconstructResponse{Query: h.service.ReconstructMap(m)})
}

func (h *QueryHandler) decodeQuery(w http.ResponseWriter, r *http.Request) (QueryRequest, bool) {
	var req QueryRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(w, err)
		return req, false
	}
	h.logger.Debug("Handling query request", "path", r.URL.Path, "query", truncateQuery(req.Query))
	return req, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if stdErrors.As(err, &tooLarge) {
			return errors.Wrap(err, errors.CodeInvalidRequest, "request body too large").
				WithDetail("limit", tooLarge.Limit)
		}
		return errors.Wrap(err, errors.CodeInvalidRequest, "malformed JSON body").
			WithDetail("reason", err.Error())
	}
	return nil
}

func (h *QueryHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	writeJSON(w, status, v, h.logger)
}

func (h *QueryHandler) writeError(w http.ResponseWriter, err error) {
	status := httpStatus(err)
	h.metrics.IncrementCounter("handler_errors_total", "code", errors.GetCode(err))
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "error", err)
	} else {
		h.logger.Debug("Request rejected", "error", err)
	}
	writeError(w, err, h.logger)
}

// writeJSON encodes v as the response body.
func writeJSON(w http.ResponseWriter, status int, v interface{}, logger Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to write response", "error", err)
	}
}

// writeError writes err as an ErrorResponse with the status matching its code.
func writeError(w http.ResponseWriter, err error, logger Logger) {
	resp := ErrorResponse{Code: errors.GetCode(err), Message: errors.GetMessage(err)}
	var qErr *errors.QueryError
	if stdErrors.As(err, &qErr) {
		resp.Details = qErr.Details
	}
	writeJSON(w, httpStatus(err), resp, logger)
}

// httpStatus maps an error code to an HTTP status.
func httpStatus(err error) int {
	switch errors.GetCode(err) {
	case errors.CodeInvalidRequest:
		return http.StatusBadRequest
	case errors.CodeUnauthorized:
		return http.StatusUnauthorized
	case errors.CodeUnimplemented:
		return http.StatusNotImplemented
	case errors.CodeConnectionFailed, errors.CodeUnavailable:
		return http.StatusServiceUnavailable
	case errors.CodeSyntaxError, errors.CodeEngineError:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// truncateQuery truncates long queries for logging.
func truncateQuery(query string) string {
	const maxLen = 100
	if len(query) <= maxLen {
		return query
	}
	return query[:maxLen] + "..."
}
