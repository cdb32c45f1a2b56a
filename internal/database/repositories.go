package database

import (
	"context"

	"github.com/benvon/family-planner/internal/models"
	"github.com/benvon/family-planner/internal/planner"
	"github.com/google/uuid"
)

// DestinationRepositoryInterface defines the catalog operations used by handlers and workers
type DestinationRepositoryInterface interface {
	GetDestination(ctx context.Context, id uuid.UUID) (*models.Destination, error)
	FindDestinationByName(ctx context.Context, name string) (*models.Destination, error)
	ListDestinations(ctx context.Context) ([]models.Destination, error)
	ListActivities(ctx context.Context, destinationID uuid.UUID) ([]models.Activity, error)
	ActivitiesMissingPlace(ctx context.Context, destinationID uuid.UUID) ([]models.Activity, error)
	DestinationsMissingPlaces(ctx context.Context) ([]uuid.UUID, error)
	ListWeather(ctx context.Context, destinationID uuid.UUID) ([]models.SeasonWeather, error)
	ListTemplates(ctx context.Context, destinationID uuid.UUID) ([]models.ItineraryTemplate, error)
	UpdateActivityPlace(ctx context.Context, activityID string, place models.PlaceDetails) error
	ImportCatalog(ctx context.Context, c CatalogImport) (uuid.UUID, error)
}

// PlanRepositoryInterface defines plan, membership and message operations
type PlanRepositoryInterface interface {
	Create(ctx context.Context, plan *models.Plan) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Plan, error)
	GetByShareCode(ctx context.Context, code string) (*models.Plan, error)
	GetActive(ctx context.Context, ownerID uuid.UUID) (*models.Plan, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Plan, error)
	Activate(ctx context.Context, ownerID, planID uuid.UUID) error
	MemberRole(ctx context.Context, planID, userID uuid.UUID) (models.MemberRole, error)
	AddMember(ctx context.Context, planID, userID uuid.UUID, role models.MemberRole) (*models.PlanMember, error)
	ListMembers(ctx context.Context, planID uuid.UUID) ([]models.PlanMember, error)
	AddMessage(ctx context.Context, msg *models.PlanMessage) error
	ListMessages(ctx context.Context, planID uuid.UUID, limit int) ([]models.PlanMessage, error)
}

// PlanStateRepositoryInterface loads planner state and persists planner commands
type PlanStateRepositoryInterface interface {
	LoadState(ctx context.Context, planID uuid.UUID) (models.PlannerState, error)
	Apply(ctx context.Context, cmd planner.Command) error
}

// UserRepositoryInterface defines the user operations used by auth
type UserRepositoryInterface interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByProviderID(ctx context.Context, providerID string) (*models.User, error)
	UpsertFromProvider(ctx context.Context, providerID, email string, name *string, emailVerified bool) (*models.User, error)
}

// SettingsRepositoryInterface defines runtime settings access
type SettingsRepositoryInterface interface {
	GetCORS(ctx context.Context) (*models.CorsConfig, error)
	SetCORS(ctx context.Context, c *models.CorsConfig) error
	GetRateLimit(ctx context.Context) (*models.RatelimitConfig, error)
	SetRateLimit(ctx context.Context, c *models.RatelimitConfig) error
}

// Ensure concrete types implement the interfaces
var (
	_ DestinationRepositoryInterface = (*DestinationRepository)(nil)
	_ PlanRepositoryInterface        = (*PlanRepository)(nil)
	_ PlanStateRepositoryInterface   = (*PlanStateRepository)(nil)
	_ UserRepositoryInterface        = (*UserRepository)(nil)
	_ SettingsRepositoryInterface    = (*SettingsRepository)(nil)
)
