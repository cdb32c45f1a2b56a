package models

import (
	"time"

	"github.com/google/uuid"
)

// Plan is a user's working set for one destination
type Plan struct {
	ID            uuid.UUID `json:"id"`
	OwnerID       uuid.UUID `json:"owner_id"`
	DestinationID uuid.UUID `json:"destination_id"`
	Name          string    `json:"name"`
	TravelMonth   *int      `json:"travel_month,omitempty"`
	TravelYear    *int      `json:"travel_year,omitempty"`
	IsActive      bool      `json:"is_active"`
	ShareCode     string    `json:"share_code"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// MemberRole controls what a plan member may do
type MemberRole string

const (
	RoleOwner  MemberRole = "owner"
	RoleEditor MemberRole = "editor"
	RoleViewer MemberRole = "viewer"
)

// PlanMember is a user invited to collaborate on a plan
type PlanMember struct {
	PlanID     uuid.UUID  `json:"plan_id"`
	UserID     uuid.UUID  `json:"user_id"`
	Role       MemberRole `json:"role"`
	Email      string     `json:"email,omitempty"`
	Name       string     `json:"name,omitempty"`
	InvitedAt  time.Time  `json:"invited_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
}

// PlanMessage is a chat message attached to a plan. UserID is nil for AI messages.
type PlanMessage struct {
	ID        uuid.UUID  `json:"id"`
	PlanID    uuid.UUID  `json:"plan_id"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	Content   string     `json:"content"`
	IsAI      bool       `json:"is_ai"`
	CreatedAt time.Time  `json:"created_at"`
}
