package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestPlannerRouteSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	r := mux.NewRouter()
	r.Use(otelmux.Middleware("family-planner-api"))
	r.HandleFunc("/api/v1/planner/days/{dayID}/items", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodPost)

	const parentTraceID = "4bf92f3577b34da6a3ce929d0e0e4736"

	tests := []struct {
		name        string
		traceParent string
	}{
		{name: "new trace"},
		{name: "continues caller trace", traceParent: "00-" + parentTraceID + "-00f067aa0ba902b7-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exporter.Reset()

			req := httptest.NewRequest(http.MethodPost, "/api/v1/planner/days/d1/items", nil)
			if tt.traceParent != "" {
				req.Header.Set("traceparent", tt.traceParent)
			}
			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, req)
			if rr.Code != http.StatusNoContent {
				t.Fatalf("status = %d", rr.Code)
			}

			spans := exporter.GetSpans()
			if len(spans) != 1 {
				t.Fatalf("got %d spans, want 1", len(spans))
			}
			span := spans[0]
			if span.Name != "/api/v1/planner/days/{dayID}/items" {
				t.Errorf("span name = %q, want the route template", span.Name)
			}
			if !span.SpanContext.TraceID().IsValid() {
				t.Error("span has no trace id")
			}
			if tt.traceParent != "" && span.SpanContext.TraceID().String() != parentTraceID {
				t.Errorf("trace id = %s, want %s", span.SpanContext.TraceID(), parentTraceID)
			}
		})
	}
}
