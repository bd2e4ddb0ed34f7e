package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/raggate/llm"
)

// HealthChecker probes a dependency. It never fails; the status carries
// the failure detail.
type HealthChecker interface {
	HealthCheck(ctx context.Context) *llm.HealthStatus
	Name() string
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	checkers []HealthChecker
	logger   *zap.Logger
}

// NewHealthHandler creates the health handler over the given dependency
// probes.
func NewHealthHandler(logger *zap.Logger, checkers ...HealthChecker) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{checkers: checkers, logger: logger}
}

type checkResult struct {
	Healthy   bool      `json:"healthy"`
	Latency   string    `json:"latency,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
	Detail    string    `json:"detail,omitempty"`
}

type healthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]checkResult `json:"checks,omitempty"`
}

// HandleHealth handles GET /health: process liveness only, no
// dependency probes.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// HandleReady handles GET /ready: probes every dependency and reports
// 503 when any is unhealthy.
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ready",
		Timestamp: time.Now(),
		Checks:    make(map[string]checkResult, len(h.checkers)),
	}
	status := http.StatusOK

	for _, c := range h.checkers {
		checkCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		hs := c.HealthCheck(checkCtx)
		cancel()
		result := checkResult{
			Healthy:   hs.Healthy,
			CheckedAt: hs.CheckedAt,
			Detail:    hs.Detail,
		}
		if hs.Latency > 0 {
			result.Latency = hs.Latency.String()
		}
		resp.Checks[c.Name()] = result
		if !hs.Healthy {
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
		}
	}

	WriteJSON(w, status, resp)
}
