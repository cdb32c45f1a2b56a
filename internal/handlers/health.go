package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

const healthCheckTimeout = 5 * time.Second

// PingFunc checks one dependency
type PingFunc func(ctx context.Context) error

// HealthChecker handles health check requests
type HealthChecker struct {
	checks map[string]PingFunc
}

// NewHealthChecker creates a new health checker
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{checks: make(map[string]PingFunc)}
}

// WithCheck registers a named dependency check run in extended mode
func (h *HealthChecker) WithCheck(name string, ping PingFunc) *HealthChecker {
	h.checks[name] = ping
	return h
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthCheck handles the /healthz endpoint. ?mode=extended pings every
// registered dependency and answers 503 when one fails.
func (h *HealthChecker) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	statusCode := http.StatusOK

	if r.URL.Query().Get("mode") == "extended" {
		response.Checks = make(map[string]string, len(h.checks))
		for _, name := range h.names() {
			if err := h.ping(r.Context(), h.checks[name]); err != nil {
				response.Status = "unhealthy"
				response.Checks[name] = "unhealthy: " + err.Error()
				continue
			}
			response.Checks[name] = "healthy"
		}
		if response.Status == "unhealthy" {
			statusCode = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

func (h *HealthChecker) names() []string {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (h *HealthChecker) ping(ctx context.Context, check PingFunc) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	return check(ctx)
}

// Version is reported by /version; overridden at link time
var Version = "dev"

// VersionInfo handles the /version endpoint
func VersionInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"version": Version})
}
