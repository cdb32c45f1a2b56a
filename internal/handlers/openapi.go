package handlers

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPIYAML []byte

// OpenAPIHandler serves the API description compiled into the binary
type OpenAPIHandler struct {
	yaml []byte
	json []byte
}

// NewOpenAPIHandler parses the embedded document once and caches its JSON form
func NewOpenAPIHandler() (*OpenAPIHandler, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(openAPIYAML, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse OpenAPI document: %w", err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode OpenAPI document: %w", err)
	}
	return &OpenAPIHandler{yaml: openAPIYAML, json: data}, nil
}

// RegisterRoutes registers OpenAPI routes
func (h *OpenAPIHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/openapi.yaml", h.ServeYAML).Methods("GET")
	r.HandleFunc("/api/v1/openapi.json", h.ServeJSON).Methods("GET")
}

// ServeYAML serves the OpenAPI document in YAML format
func (h *OpenAPIHandler) ServeYAML(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/x-yaml")
	_, _ = w.Write(h.yaml)
}

// ServeJSON serves the OpenAPI document in JSON format
func (h *OpenAPIHandler) ServeJSON(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(h.json)
}
