package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/benvon/family-planner/internal/request"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestErrorHandler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
		wantPanic  bool
	}{
		{
			name: "no panic",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			},
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "panic with value",
			handler:    func(w http.ResponseWriter, r *http.Request) { panic("day index corrupted") },
			wantStatus: http.StatusInternalServerError,
			wantPanic:  true,
		},
		{
			name: "runtime panic",
			handler: func(w http.ResponseWriter, r *http.Request) {
				var notes map[string]string
				notes["a1"] = "bring sunscreen"
			},
			wantStatus: http.StatusInternalServerError,
			wantPanic:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zap.ErrorLevel)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/planner", nil)
			req = req.WithContext(request.WithRequestID(req.Context(), "req-42"))
			rr := httptest.NewRecorder()
			ErrorHandler(zap.New(core))(tt.handler).ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if got := logs.FilterMessage("panic_recovered").Len(); (got == 1) != tt.wantPanic {
				t.Errorf("panic_recovered entries = %d", got)
			}
			if !tt.wantPanic {
				return
			}
			if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q", ct)
			}
			var body ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Success || body.Error != errInternal || body.RequestID != "req-42" || body.Timestamp == "" {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

func TestErrorHandler_AbortHandlerPropagates(t *testing.T) {
	t.Parallel()

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Errorf("recovered %v, want http.ErrAbortHandler", rec)
		}
	}()
	h := ErrorHandler(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}
