// Package handlers implements the HTTP API of the planner server.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/benvon/family-planner/internal/catalog"
	"github.com/benvon/family-planner/internal/database"
	"github.com/benvon/family-planner/internal/models"
	"github.com/benvon/family-planner/internal/planner"
	"github.com/benvon/family-planner/internal/request"
	"github.com/benvon/family-planner/internal/session"
	"github.com/benvon/family-planner/internal/validation"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Error types carried in the "error" field of the envelope
const (
	errValidation   = "validation_error"
	errNotFound     = "not_found"
	errNoActivePlan = "no_active_plan"
	errUnauthorized = "unauthorized"
	errForbidden    = "forbidden"
	errUnavailable  = "unavailable"
	errInternal     = "internal_error"
	errTooLarge     = "payload_too_large"
)

const maxMessageLength = 200

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   true,
		"data":      data,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// sanitizeErrorMessage bounds error messages sent to clients
func sanitizeErrorMessage(message string) string {
	if len(message) > maxMessageLength {
		return message[:maxMessageLength] + "..."
	}
	return message
}

// respondJSONError sends an error JSON response with sanitized error messages
func respondJSONError(w http.ResponseWriter, status int, errorType, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]any{
		"success":   false,
		"error":     errorType,
		"message":   sanitizeErrorMessage(message),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// respondError maps domain errors onto status codes. Unknown errors are not
// echoed to the client.
func respondError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		respondJSONError(w, http.StatusBadRequest, errValidation, validation.FieldErrors(verrs))
	case planner.IsValidation(err):
		respondJSONError(w, http.StatusBadRequest, errValidation, err.Error())
	case planner.IsNotFound(err):
		respondJSONError(w, http.StatusNotFound, errNotFound, err.Error())
	case errors.Is(err, database.ErrNotFound), errors.Is(err, catalog.ErrUnknownDestination):
		respondJSONError(w, http.StatusNotFound, errNotFound, "resource not found")
	case errors.Is(err, session.ErrNoActivePlan):
		respondJSONError(w, http.StatusConflict, errNoActivePlan, "no active plan; create or activate a plan first")
	case errors.Is(err, session.ErrHydrationAborted):
		respondJSONError(w, http.StatusServiceUnavailable, errUnavailable, "planner session was reset, retry the request")
	default:
		respondJSONError(w, http.StatusInternalServerError, errInternal, "internal server error")
	}
}

// decodeJSON decodes and validates a request body into dst. An empty body
// decodes as the zero value.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			respondJSONError(w, http.StatusRequestEntityTooLarge, errTooLarge,
				fmt.Sprintf("Request body exceeds maximum size of %d bytes", maxBytesErr.Limit))
			return false
		}
		respondJSONError(w, http.StatusBadRequest, errValidation, "Invalid request body")
		return false
	}
	if err := validation.Validate.Struct(dst); err != nil {
		respondError(w, err)
		return false
	}
	return true
}

// requireUser returns the authenticated user or writes a 401
func requireUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user := request.UserFromContext(r)
	if user == nil {
		respondJSONError(w, http.StatusUnauthorized, errUnauthorized, "User not found in context")
		return nil, false
	}
	return user, true
}

// pathUUID parses a UUID route variable or writes a 400
func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		respondJSONError(w, http.StatusBadRequest, errValidation, fmt.Sprintf("invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}
