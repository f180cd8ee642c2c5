package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/TFMV/querykit/pkg/infrastructure/pool"
)

// HealthResponse is the result of /healthz.
type HealthResponse struct {
	Status  string           `json:"status"`
	Dialect string           `json:"dialect"`
	Version string           `json:"version,omitempty"`
	Pools   []pool.PoolStats `json:"pools"`
}

// HealthHandler reports the state of the engine connection pools. Pools open
// lazily, so an unused pool reports as not connected without being unhealthy.
type HealthHandler struct {
	dialect string
	version string
	pools   []StatsProvider
	logger  Logger
}

// NewHealthHandler creates a health handler over pools.
func NewHealthHandler(dialect, version string, logger Logger, pools ...StatsProvider) *HealthHandler {
	return &HealthHandler{
		dialect: dialect,
		version: version,
		pools:   pools,
		logger:  logger,
	}
}

// RegisterRoutes mounts GET /healthz on r.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Health)
}

// Health handles GET /healthz. It answers 503 when a pool is unhealthy or
// its circuit breaker is open.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Dialect: h.dialect,
		Version: h.version,
		Pools:   make([]pool.PoolStats, 0, len(h.pools)),
	}

	for _, p := range h.pools {
		stats := p.Stats()
		if stats.HealthCheckStatus == "unhealthy" || stats.CircuitBreakerState == pool.CircuitBreakerOpen.String() {
			resp.Status = "degraded"
		}
		resp.Pools = append(resp.Pools, stats)
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
		h.logger.Warn("Health check degraded", "dialect", h.dialect)
	}
	writeJSON(w, status, resp, h.logger)
}
