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
	"github.com/benvon/family-planner/internal/session"
	"github.com/benvon/family-planner/internal/validation"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

const (
	qrCodeSize       = 256
	maxMessageChars  = 4000
	maxMessagesLimit = 200
)

// PlanStore is the plan persistence used by the handler
type PlanStore interface {
	Create(ctx context.Context, plan *models.Plan) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	GetByShareCode(ctx context.Context, code string) (*models.Plan, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Plan, error)
	Activate(ctx context.Context, ownerID, planID uuid.UUID) error
	MemberRole(ctx context.Context, planID, userID uuid.UUID) (models.MemberRole, error)
	AddMember(ctx context.Context, planID, userID uuid.UUID, role models.MemberRole) (*models.PlanMember, error)
	ListMembers(ctx context.Context, planID uuid.UUID) ([]models.PlanMember, error)
	AddMessage(ctx context.Context, msg *models.PlanMessage) error
	ListMessages(ctx context.Context, planID uuid.UUID, limit int) ([]models.PlanMessage, error)
}

// UserFinder looks up invitees
type UserFinder interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// SessionSwitcher reopens the planner session when the active plan changes
type SessionSwitcher interface {
	Open(ctx context.Context, userID uuid.UUID) (*session.Session, error)
}

// PlanHandler handles plan, member and message requests
type PlanHandler struct {
	plans     PlanStore
	users     UserFinder
	catalog   catalog.Source
	sessions  SessionSwitcher
	shareBase string
	logger    *zap.Logger
}

// NewPlanHandler creates a new plan handler. shareBase is the frontend URL
// share links point at.
func NewPlanHandler(plans PlanStore, users UserFinder, source catalog.Source, sessions SessionSwitcher, shareBase string, logger *zap.Logger) *PlanHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlanHandler{
		plans:     plans,
		users:     users,
		catalog:   source,
		sessions:  sessions,
		shareBase: strings.TrimRight(shareBase, "/"),
		logger:    logger,
	}
}

// RegisterRoutes registers plan routes.
// The router should already have the /plans prefix.
func (h *PlanHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("", h.ListPlans).Methods("GET")
	r.HandleFunc("", h.CreatePlan).Methods("POST")
	r.HandleFunc("/shared/{code}", h.GetShared).Methods("GET")
	r.HandleFunc("/shared/{code}/join", h.JoinShared).Methods("POST")
	r.HandleFunc("/{id}/activate", h.ActivatePlan).Methods("POST")
	r.HandleFunc("/{id}/members", h.ListMembers).Methods("GET")
	r.HandleFunc("/{id}/members", h.InviteMember).Methods("POST")
	r.HandleFunc("/{id}/messages", h.ListMessages).Methods("GET")
	r.HandleFunc("/{id}/messages", h.PostMessage).Methods("POST")
	r.HandleFunc("/{id}/share.png", h.ShareQRCode).Methods("GET")
}

// CreatePlanRequest represents a create plan request
type CreatePlanRequest struct {
	DestinationID uuid.UUID `json:"destination_id" validate:"required"`
	Name          string    `json:"name" validate:"required,max=200"`
	TravelMonth   *int      `json:"travel_month,omitempty" validate:"omitempty,min=1,max=12"`
	TravelYear    *int      `json:"travel_year,omitempty" validate:"omitempty,min=2000,max=2100"`
	Activate      bool      `json:"activate"`
}

// InviteMemberRequest represents an invitation by email
type InviteMemberRequest struct {
	Email string            `json:"email" validate:"required,email,max=320"`
	Role  models.MemberRole `json:"role" validate:"required,member_role"`
}

// PostMessageRequest represents a new chat message
type PostMessageRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

// ListPlans lists the plans the user owns or collaborates on
func (h *PlanHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	plans, err := h.plans.ListForUser(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("failed_to_list_plans", zap.String("user_id", user.ID.String()), zap.Error(err))
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, plans)
}

// CreatePlan creates a plan for an existing destination
func (h *PlanHandler) CreatePlan(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req CreatePlanRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.Name = validation.SanitizeText(req.Name)
	if req.Name == "" {
		respondJSONError(w, http.StatusBadRequest, errValidation, "name is required and cannot be empty after sanitization")
		return
	}

	ctx := r.Context()
	if _, err := h.catalog.Bundle(ctx, req.DestinationID); err != nil {
		respondError(w, err)
		return
	}

	plan := &models.Plan{
		OwnerID:       user.ID,
		DestinationID: req.DestinationID,
		Name:          req.Name,
		TravelMonth:   req.TravelMonth,
		TravelYear:    req.TravelYear,
		IsActive:      req.Activate,
	}
	if err := h.plans.Create(ctx, plan); err != nil {
		h.logger.Error("failed_to_create_plan", zap.String("user_id", user.ID.String()), zap.Error(err))
		respondError(w, err)
		return
	}
	if plan.IsActive {
		h.reopenSession(ctx, user.ID)
	}
	respondJSON(w, http.StatusCreated, plan)
}

// ActivatePlan makes the plan the user's active plan and reopens the planner on it
func (h *PlanHandler) ActivatePlan(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	planID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	ctx := r.Context()
	if err := h.plans.Activate(ctx, user.ID, planID); err != nil {
		respondError(w, err)
		return
	}
	h.reopenSession(ctx, user.ID)

	plan, err := h.plans.GetByID(ctx, planID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, plan)
}

func (h *PlanHandler) reopenSession(ctx context.Context, userID uuid.UUID) {
	if _, err := h.sessions.Open(ctx, userID); err != nil && !errors.Is(err, session.ErrNoActivePlan) {
		h.logger.Warn("planner_session_open_failed", zap.String("user_id", userID.String()), zap.Error(err))
	}
}

// GetShared resolves a share code to its plan
func (h *PlanHandler) GetShared(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	plan, err := h.plans.GetByShareCode(r.Context(), mux.Vars(r)["code"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, plan)
}

// JoinShared adds the user to a shared plan as a viewer. Existing members keep their role.
func (h *PlanHandler) JoinShared(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	plan, err := h.plans.GetByShareCode(ctx, mux.Vars(r)["code"])
	if err != nil {
		respondError(w, err)
		return
	}
	if role, err := h.plans.MemberRole(ctx, plan.ID, user.ID); err == nil {
		respondJSON(w, http.StatusOK, models.PlanMember{PlanID: plan.ID, UserID: user.ID, Role: role})
		return
	} else if !errors.Is(err, database.ErrNotFound) {
		respondError(w, err)
		return
	}
	member, err := h.plans.AddMember(ctx, plan.ID, user.ID, models.RoleViewer)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, member)
}

// ListMembers lists a plan's members
func (h *PlanHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
	_, planID, _, ok := h.authorize(w, r)
	if !ok {
		return
	}
	members, err := h.plans.ListMembers(r.Context(), planID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, members)
}

// InviteMember adds a registered user to the plan. Only the owner may invite.
func (h *PlanHandler) InviteMember(w http.ResponseWriter, r *http.Request) {
	_, planID, role, ok := h.authorize(w, r)
	if !ok {
		return
	}
	if role != models.RoleOwner {
		respondJSONError(w, http.StatusForbidden, errForbidden, "only the plan owner can invite members")
		return
	}
	var req InviteMemberRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Role == models.RoleOwner {
		respondJSONError(w, http.StatusBadRequest, errValidation, "a plan has exactly one owner")
		return
	}

	ctx := r.Context()
	invitee, err := h.users.GetByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		respondError(w, err)
		return
	}
	member, err := h.plans.AddMember(ctx, planID, invitee.ID, req.Role)
	if err != nil {
		respondError(w, err)
		return
	}
	h.logger.Info("plan_member_invited",
		zap.String("plan_id", planID.String()),
		zap.String("member_id", invitee.ID.String()),
		zap.String("role", string(req.Role)),
	)
	respondJSON(w, http.StatusCreated, member)
}

// ListMessages returns the most recent messages of the plan's thread
func (h *PlanHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	_, planID, _, ok := h.authorize(w, r)
	if !ok {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= maxMessagesLimit {
			limit = parsed
		}
	}
	messages, err := h.plans.ListMessages(r.Context(), planID, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, messages)
}

// PostMessage appends a message. Viewers may read but not post.
func (h *PlanHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	user, planID, role, ok := h.authorize(w, r)
	if !ok {
		return
	}
	if role == models.RoleViewer {
		respondJSONError(w, http.StatusForbidden, errForbidden, "viewers cannot post messages")
		return
	}
	var req PostMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	content := validation.SanitizeText(req.Content)
	if content == "" || len(content) > maxMessageChars {
		respondJSONError(w, http.StatusBadRequest, errValidation, "content is required")
		return
	}
	msg := &models.PlanMessage{PlanID: planID, UserID: &user.ID, Content: content}
	if err := h.plans.AddMessage(r.Context(), msg); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, msg)
}

// ShareQRCode renders the plan's share link as a PNG QR code
func (h *PlanHandler) ShareQRCode(w http.ResponseWriter, r *http.Request) {
	_, planID, _, ok := h.authorize(w, r)
	if !ok {
		return
	}
	plan, err := h.plans.GetByID(r.Context(), planID)
	if err != nil {
		respondError(w, err)
		return
	}
	png, err := qrcode.Encode(h.ShareURL(plan), qrcode.Medium, qrCodeSize)
	if err != nil {
		h.logger.Error("failed_to_encode_qr_code", zap.String("plan_id", planID.String()), zap.Error(err))
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// ShareURL is the link encoded in a plan's QR code
func (h *PlanHandler) ShareURL(plan *models.Plan) string {
	return h.shareBase + "/share/" + plan.ShareCode
}

// authorize resolves the {id} plan and the caller's role on it. Non-members get a 404.
func (h *PlanHandler) authorize(w http.ResponseWriter, r *http.Request) (*models.User, uuid.UUID, models.MemberRole, bool) {
	user, ok := requireUser(w, r)
	if !ok {
		return nil, uuid.Nil, "", false
	}
	planID, ok := pathUUID(w, r, "id")
	if !ok {
		return nil, uuid.Nil, "", false
	}
	role, err := h.plans.MemberRole(r.Context(), planID, user.ID)
	if err != nil {
		respondError(w, err)
		return nil, uuid.Nil, "", false
	}
	return user, planID, role, true
}
