package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/benvon/family-planner/internal/catalog"
	"github.com/benvon/family-planner/internal/database"
	"github.com/benvon/family-planner/internal/models"
	"github.com/benvon/family-planner/internal/queue"
	"github.com/benvon/family-planner/internal/services/ai"
	"github.com/benvon/family-planner/internal/workers"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// DestinationLister reads destination rows
type DestinationLister interface {
	ListDestinations(ctx context.Context) ([]models.Destination, error)
	FindDestinationByName(ctx context.Context, name string) (*models.Destination, error)
}

// DestinationHandler serves the catalog and queues generation work
type DestinationHandler struct {
	destinations DestinationLister
	catalog      catalog.Source
	jobs         queue.Enqueuer
	logger       *zap.Logger
}

// NewDestinationHandler creates a new destination handler
func NewDestinationHandler(destinations DestinationLister, source catalog.Source, jobs queue.Enqueuer, logger *zap.Logger) *DestinationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DestinationHandler{destinations: destinations, catalog: source, jobs: jobs, logger: logger}
}

// RegisterRoutes registers destination routes.
// The router should already have the /destinations prefix.
func (h *DestinationHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListDestinations).Methods("GET")
	r.HandleFunc("", h.CreateDestination).Methods("POST")
	r.HandleFunc("/{id}", h.GetBundle).Methods("GET")
	r.HandleFunc("/{id}/activities", h.ListActivities).Methods("GET")
	r.HandleFunc("/{id}/enrich", h.Enrich).Methods("POST")
}

// CreateDestinationResponse reports either the existing destination or the queued job
type CreateDestinationResponse struct {
	DestinationID *uuid.UUID `json:"destination_id,omitempty"`
	JobID         *uuid.UUID `json:"job_id,omitempty"`
	Existing      bool       `json:"existing"`
}

// ListDestinations lists every destination in the catalog
func (h *DestinationHandler) ListDestinations(w http.ResponseWriter, r *http.Request) {
	destinations, err := h.destinations.ListDestinations(r.Context())
	if err != nil {
		h.logger.Error("failed_to_list_destinations", zap.Error(err))
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, destinations)
}

// CreateDestination queues AI generation of a destination guide. A
// destination that already exists is returned as is.
func (h *DestinationHandler) CreateDestination(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req ai.GenerateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req = req.Normalize()
	if req.Name == "" || req.Country == "" {
		respondJSONError(w, http.StatusBadRequest, errValidation, "name and country are required")
		return
	}

	ctx := r.Context()
	existing, err := h.destinations.FindDestinationByName(ctx, req.Name)
	if err == nil {
		respondJSON(w, http.StatusOK, CreateDestinationResponse{DestinationID: &existing.ID, Existing: true})
		return
	}
	if !errors.Is(err, database.ErrNotFound) {
		h.logger.Error("failed_to_look_up_destination", zap.Error(err))
		respondError(w, err)
		return
	}

	job, err := workers.NewGenerateJob(user.ID, req)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := h.jobs.Enqueue(ctx, job); err != nil {
		h.logger.Error("failed_to_enqueue_generation", zap.String("destination", req.Name), zap.Error(err))
		respondJSONError(w, http.StatusServiceUnavailable, errUnavailable, "Failed to queue destination generation")
		return
	}
	h.logger.Info("destination_generation_queued",
		zap.String("job_id", job.ID.String()),
		zap.String("user_id", user.ID.String()),
	)
	respondJSON(w, http.StatusAccepted, CreateDestinationResponse{JobID: &job.ID})
}

// GetBundle returns a destination with its activities, weather and templates
func (h *DestinationHandler) GetBundle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	bundle, err := h.catalog.Bundle(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, bundle)
}

// ListActivities returns a destination's activities narrowed by the
// category, season, min_kid and q query parameters
func (h *DestinationHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	query, err := parseActivityQuery(r)
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, errValidation, err.Error())
		return
	}
	bundle, err := h.catalog.Bundle(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, catalog.Filter(bundle.Activities, query))
}

// Enrich queues a Places lookup for the destination's activities
func (h *DestinationHandler) Enrich(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.catalog.Bundle(r.Context(), id); err != nil {
		respondError(w, err)
		return
	}
	job := workers.NewEnrichJob(user.ID, id)
	if err := h.jobs.Enqueue(r.Context(), job); err != nil {
		h.logger.Error("failed_to_enqueue_enrichment", zap.String("destination_id", id.String()), zap.Error(err))
		respondJSONError(w, http.StatusServiceUnavailable, errUnavailable, "Failed to queue enrichment")
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]uuid.UUID{"job_id": job.ID})
}

func parseActivityQuery(r *http.Request) (catalog.Query, error) {
	q := r.URL.Query()
	query := catalog.Query{
		Category: models.Category(strings.ToLower(q.Get("category"))),
		Season:   models.Season(strings.ToLower(q.Get("season"))),
		Text:     q.Get("q"),
	}
	if query.Category != "" && !query.Category.Valid() {
		return query, errors.New("invalid category")
	}
	if v := q.Get("min_kid"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 5 {
			return query, errors.New("min_kid must be between 1 and 5")
		}
		query.MinKidFriendliness = n
	}
	return query, nil
}
