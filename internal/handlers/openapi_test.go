package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/gorilla/mux"
)

func TestOpenAPIHandler(t *testing.T) {
	t.Parallel()

	h, err := NewOpenAPIHandler()
	if err != nil {
		t.Fatalf("NewOpenAPIHandler() error = %v", err)
	}
	router := mux.NewRouter()
	h.RegisterRoutes(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/openapi.yaml", nil))
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "application/x-yaml" {
		t.Fatalf("yaml: status %d, content type %q", w.Code, w.Header().Get("Content-Type"))
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/openapi.json", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("json: status %d", w.Code)
	}
	var doc struct {
		OpenAPI string                    `json:"openapi"`
		Paths   map[string]map[string]any `json:"paths"`
	}
	if err := json.NewDecoder(w.Body).Decode(&doc); err != nil {
		t.Fatalf("Failed to decode document: %v", err)
	}
	if !strings.HasPrefix(doc.OpenAPI, "3.") {
		t.Errorf("openapi = %q", doc.OpenAPI)
	}

	// every registered API route is documented
	param := regexp.MustCompile(`\{[^}]+\}`)
	documented := make(map[string]bool)
	for path, ops := range doc.Paths {
		for method := range ops {
			documented[strings.ToUpper(method)+" "+param.ReplaceAllString(path, "{}")] = true
		}
	}
	api := mux.NewRouter()
	NewAuthHandler(nil, nil, nil, "", nil).RegisterPublicRoutes(api.PathPrefix("/auth").Subrouter())
	NewAuthHandler(nil, nil, nil, "", nil).RegisterRoutes(api.PathPrefix("/auth").Subrouter())
	NewDestinationHandler(nil, nil, nil, nil).RegisterRoutes(api.PathPrefix("/destinations").Subrouter())
	NewPlanHandler(nil, nil, nil, nil, "", nil).RegisterRoutes(api.PathPrefix("/plans").Subrouter())
	NewPlannerHandler(nil, nil).RegisterRoutes(api.PathPrefix("/planner").Subrouter())

	err = api.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		tpl, err := route.GetPathTemplate()
		if err != nil {
			return nil
		}
		methods, err := route.GetMethods()
		if err != nil {
			return nil
		}
		for _, m := range methods {
			if key := m + " " + param.ReplaceAllString(tpl, "{}"); !documented[key] {
				t.Errorf("route %s is not documented", key)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
