// Package healthprobe provides liveness and readiness HTTP handlers.
package healthprobe

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// HealthChecker provides health and readiness checks with per-component
// status reporting.
type HealthChecker struct {
	startTime time.Time
	ready     atomic.Bool

	mu         sync.RWMutex
	components map[string]bool
}

// New creates a new HealthChecker.
func New() *HealthChecker {
	return &HealthChecker{
		startTime:  time.Now(),
		components: make(map[string]bool),
	}
}

// SetReady marks the application as ready to serve traffic.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// SetComponent records the health of one named component (websocket, scanner,
// follow runner). Readiness stays governed by SetReady; component states are
// informational.
func (h *HealthChecker) SetComponent(name string, healthy bool) {
	h.mu.Lock()
	h.components[name] = healthy
	h.mu.Unlock()
}

func (h *HealthChecker) componentSnapshot() map[string]bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]bool, len(h.components))
	for k, v := range h.components {
		out[k] = v
	}
	return out
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status     string          `json:"status"`
	Uptime     string          `json:"uptime"`
	Message    string          `json:"message,omitempty"`
	Components map[string]bool `json:"components,omitempty"`
}

// Health returns an HTTP handler for liveness checks.
// Always returns 200 OK if the application is running.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status: "healthy",
			Uptime: time.Since(h.startTime).String(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// Ready returns an HTTP handler for readiness checks.
// Returns 200 OK if ready, 503 Service Unavailable if not.
func (h *HealthChecker) Ready() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if !h.ready.Load() {
			resp := HealthResponse{
				Status:     "not_ready",
				Message:    "application is starting",
				Components: h.componentSnapshot(),
			}
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(resp)
			return
		}

		resp := HealthResponse{
			Status:     "ready",
			Uptime:     time.Since(h.startTime).String(),
			Components: h.componentSnapshot(),
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
