package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthChecker(t *testing.T) {
	t.Parallel()

	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		mode       string
		redis      PingFunc
		wantStatus int
		wantChecks map[string]string
	}{
		{"basic mode skips checks", "", down, http.StatusOK, nil},
		{"extended all healthy", "extended", ok, http.StatusOK, map[string]string{"database": "healthy", "redis": "healthy"}},
		{"extended one down", "extended", down, http.StatusServiceUnavailable, map[string]string{"database": "healthy", "redis": "unhealthy: connection refused"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := NewHealthChecker().WithCheck("database", ok).WithCheck("redis", tt.redis)

			w := httptest.NewRecorder()
			h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/healthz?mode="+tt.mode, nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var resp HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("Failed to decode response: %v", err)
			}
			if len(resp.Checks) != len(tt.wantChecks) {
				t.Fatalf("checks = %v, want %v", resp.Checks, tt.wantChecks)
			}
			for name, want := range tt.wantChecks {
				if resp.Checks[name] != want {
					t.Errorf("checks[%s] = %q, want %q", name, resp.Checks[name], want)
				}
			}
			if wantStatus := map[bool]string{true: "healthy", false: "unhealthy"}[tt.wantStatus == http.StatusOK]; resp.Status != wantStatus {
				t.Errorf("Status = %q, want %q", resp.Status, wantStatus)
			}
		})
	}
}

func TestHealthChecker_TimeoutApplied(t *testing.T) {
	t.Parallel()

	h := NewHealthChecker().WithCheck("queue", func(ctx context.Context) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("no deadline")
		}
		return nil
	})
	w := httptest.NewRecorder()
	h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/healthz?mode=extended", nil))
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, body %s", w.Code, w.Body.String())
	}
}

func TestVersionInfo(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	VersionInfo(w, httptest.NewRequest(http.MethodGet, "/version", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"version":"`+Version+`"`) {
		t.Errorf("VersionInfo() = %d %s", w.Code, w.Body.String())
	}
}
