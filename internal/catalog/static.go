package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/benvon/family-planner/internal/database"
	"github.com/benvon/family-planner/internal/models"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ErrUnknownDestination is returned by a static source asked for another destination
var ErrUnknownDestination = errors.New("unknown destination")

// LoadFile reads a YAML catalog file
func LoadFile(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	b, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return b, nil
}

// Parse decodes a YAML catalog, fills defaults and checks activity invariants.
// A destination without an id gets one derived from its name, so reloading the
// same file yields the same id.
func Parse(data []byte) (*Bundle, error) {
	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	if strings.TrimSpace(b.Destination.Name) == "" {
		return nil, fmt.Errorf("destination name is required")
	}
	if b.Destination.ID == uuid.Nil {
		b.Destination.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(strings.ToLower(b.Destination.Name)))
	}
	if b.Destination.Timezone == "" {
		b.Destination.Timezone = "UTC"
	}
	if b.Destination.DefaultZoom == 0 {
		b.Destination.DefaultZoom = 14
	}

	seen := make(map[string]bool, len(b.Activities))
	for i := range b.Activities {
		a := &b.Activities[i]
		if a.KidFriendliness == 0 {
			a.KidFriendliness = 3
		}
		if strings.TrimSpace(a.ImageEmoji) == "" {
			a.ImageEmoji = models.DefaultActivityGlyph
		}
		if a.Tips == nil {
			a.Tips = []string{}
		}
		if a.Source == "" {
			a.Source = models.SourceCurated
		}
		a.DestinationID = b.Destination.ID.String()
		a.SortOrder = i
		if err := a.Validate(); err != nil {
			return nil, err
		}
		if seen[a.ID] {
			return nil, fmt.Errorf("duplicate activity id %q", a.ID)
		}
		seen[a.ID] = true
	}

	for i := range b.Weather {
		b.Weather[i].Season = models.Season(strings.ToLower(string(b.Weather[i].Season)))
		if b.Weather[i].Tips == nil {
			b.Weather[i].Tips = []string{}
		}
	}
	for i := range b.Templates {
		if b.Templates[i].ID == "" {
			b.Templates[i].ID = fmt.Sprintf("template-%d", i+1)
		}
		if b.Templates[i].ActivityIDs == nil {
			b.Templates[i].ActivityIDs = []string{}
		}
	}
	return &b, nil
}

// Import converts the bundle into a database import. Template references keep
// the file's activity ids and are resolved to stored ids on insert.
func (b *Bundle) Import(createdBy *uuid.UUID) database.CatalogImport {
	return database.CatalogImport{
		Destination: b.Destination,
		Activities:  b.Activities,
		Weather:     b.Weather,
		Templates:   b.Templates,
		CreatedBy:   createdBy,
	}
}

// StaticSource serves a single in-memory bundle
type StaticSource struct {
	bundle *Bundle
}

var _ Source = (*StaticSource)(nil)

// NewStaticSource wraps a loaded bundle
func NewStaticSource(b *Bundle) *StaticSource {
	return &StaticSource{bundle: b}
}

// Bundle returns the wrapped bundle. uuid.Nil selects it as well.
func (s *StaticSource) Bundle(_ context.Context, destinationID uuid.UUID) (*Bundle, error) {
	if destinationID != uuid.Nil && destinationID != s.bundle.Destination.ID {
		return nil, fmt.Errorf("destination %s: %w", destinationID, ErrUnknownDestination)
	}
	return s.bundle, nil
}
