package ai

import (
	"context"
	"strings"
)

// Generator is the interface for AI providers that write destination guides
type Generator interface {
	// GenerateDestination asks the model for a complete family guide to a place
	GenerateDestination(ctx context.Context, req GenerateRequest) (*GeneratedDestination, error)

	// Close releases the provider's resources
	Close() error
}

// GenerateRequest identifies the place to generate a guide for
type GenerateRequest struct {
	Name    string  `json:"name" validate:"required,max=200"`
	Lat     float64 `json:"lat" validate:"latitude"`
	Lng     float64 `json:"lng" validate:"longitude"`
	Country string  `json:"country" validate:"required,max=100"`
	Region  string  `json:"region,omitempty" validate:"max=100"`
}

// Normalize trims the request's free-text fields
func (r GenerateRequest) Normalize() GenerateRequest {
	r.Name = strings.TrimSpace(r.Name)
	r.Country = strings.TrimSpace(r.Country)
	r.Region = strings.TrimSpace(r.Region)
	return r
}

// ProviderFactory creates an AI provider from its configuration
type ProviderFactory func(ctx context.Context, config map[string]string) (Generator, error)

// ProviderRegistry stores available AI providers
type ProviderRegistry struct {
	providers map[string]ProviderFactory
}

// NewProviderRegistry creates a new provider registry
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]ProviderFactory),
	}
}

// Register registers a provider factory
func (r *ProviderRegistry) Register(name string, factory ProviderFactory) {
	r.providers[name] = factory
}

// GetProvider gets a provider by name
func (r *ProviderRegistry) GetProvider(ctx context.Context, name string, config map[string]string) (Generator, error) {
	factory, ok := r.providers[name]
	if !ok {
		return nil, &ErrProviderNotFound{Name: name}
	}

	return factory(ctx, config)
}

// ErrProviderNotFound is returned when a provider is not found
type ErrProviderNotFound struct {
	Name string
}

func (e *ErrProviderNotFound) Error() string {
	return "AI provider not found: " + e.Name
}
