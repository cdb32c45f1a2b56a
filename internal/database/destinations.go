package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/benvon/family-planner/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// DestinationRepository reads and writes destination catalogs
type DestinationRepository struct {
	db *DB
}

// NewDestinationRepository creates a new destination repository
func NewDestinationRepository(db *DB) *DestinationRepository {
	return &DestinationRepository{db: db}
}

// CatalogImport is a complete destination catalog to insert. Templates refer to
// activities by the ID field of Activities; those keys are matched case-insensitively
// and replaced by the stored ids. Unknown keys are dropped.
type CatalogImport struct {
	Destination models.Destination
	Activities  []models.Activity
	Weather     []models.SeasonWeather
	Templates   []models.ItineraryTemplate
	CreatedBy   *uuid.UUID
}

// GetDestination retrieves a destination by id
func (r *DestinationRepository) GetDestination(ctx context.Context, id uuid.UUID) (*models.Destination, error) {
	return r.getDestination(ctx, `SELECT `+destinationColumns+` FROM destinations WHERE id = $1`, id)
}

// FindDestinationByName retrieves a destination by case-insensitive name
func (r *DestinationRepository) FindDestinationByName(ctx context.Context, name string) (*models.Destination, error) {
	return r.getDestination(ctx, `SELECT `+destinationColumns+` FROM destinations WHERE lower(name) = lower($1)`, strings.TrimSpace(name))
}

func (r *DestinationRepository) getDestination(ctx context.Context, query string, arg any) (*models.Destination, error) {
	var row destinationRow
	err := r.db.QueryRowContext(ctx, query, arg).Scan(row.scanTargets()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("destination %v: %w", arg, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get destination: %w", err)
	}
	d, err := mapDestination(row)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDestinations returns all destinations ordered by name
func (r *DestinationRepository) ListDestinations(ctx context.Context) ([]models.Destination, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+destinationColumns+` FROM destinations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query destinations: %w", err)
	}
	defer closeRows(rows)

	out := []models.Destination{}
	for rows.Next() {
		var row destinationRow
		if err := rows.Scan(row.scanTargets()...); err != nil {
			return nil, fmt.Errorf("failed to scan destination: %w", err)
		}
		d, err := mapDestination(row)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating destinations: %w", err)
	}
	return out, nil
}

// ListActivities returns the active activities of a destination in catalog order
func (r *DestinationRepository) ListActivities(ctx context.Context, destinationID uuid.UUID) ([]models.Activity, error) {
	return r.queryActivities(ctx, `
		SELECT `+activityColumns+`
		FROM activities
		WHERE destination_id = $1 AND is_active
		ORDER BY sort_order, name
	`, destinationID)
}

// ActivitiesMissingPlace returns active activities that have never been matched to a place
func (r *DestinationRepository) ActivitiesMissingPlace(ctx context.Context, destinationID uuid.UUID) ([]models.Activity, error) {
	return r.queryActivities(ctx, `
		SELECT `+activityColumns+`
		FROM activities
		WHERE destination_id = $1 AND is_active AND external_place_id IS NULL
		ORDER BY sort_order, name
	`, destinationID)
}

// DestinationsMissingPlaces returns destinations with at least one active activity not yet matched to a place
func (r *DestinationRepository) DestinationsMissingPlaces(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT destination_id
		FROM activities
		WHERE is_active AND external_place_id IS NULL
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query destinations missing places: %w", err)
	}
	defer closeRows(rows)

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan destination id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating destination ids: %w", err)
	}
	return ids, nil
}

func (r *DestinationRepository) queryActivities(ctx context.Context, query string, args ...any) ([]models.Activity, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer closeRows(rows)

	out := []models.Activity{}
	for rows.Next() {
		var row activityRow
		if err := rows.Scan(row.scanTargets()...); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		a, err := mapActivity(row)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating activities: %w", err)
	}
	return out, nil
}

// ListWeather returns the seasonal weather of a destination
func (r *DestinationRepository) ListWeather(ctx context.Context, destinationID uuid.UUID) ([]models.SeasonWeather, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT season, months, temp_range, emoji, description, tips
		FROM destination_weather
		WHERE destination_id = $1
		ORDER BY array_position(ARRAY['spring','summer','autumn','winter'], season)
	`, destinationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query weather: %w", err)
	}
	defer closeRows(rows)

	out := []models.SeasonWeather{}
	for rows.Next() {
		var row weatherRow
		if err := rows.Scan(&row.Season, &row.Months, &row.TempRange, &row.Emoji, &row.Description, &row.Tips); err != nil {
			return nil, fmt.Errorf("failed to scan weather: %w", err)
		}
		out = append(out, mapWeather(row))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating weather: %w", err)
	}
	return out, nil
}

// ListTemplates returns the itinerary templates of a destination
func (r *DestinationRepository) ListTemplates(ctx context.Context, destinationID uuid.UUID) ([]models.ItineraryTemplate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, label, activity_ids
		FROM itinerary_templates
		WHERE destination_id = $1
		ORDER BY sort_order, label
	`, destinationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}
	defer closeRows(rows)

	out := []models.ItineraryTemplate{}
	for rows.Next() {
		var row templateRow
		if err := rows.Scan(&row.ID, &row.Label, &row.ActivityIDs); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		out = append(out, mapTemplate(row))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}
	return out, nil
}

// UpdateActivityPlace stores the result of a places lookup
func (r *DestinationRepository) UpdateActivityPlace(ctx context.Context, activityID string, place models.PlaceDetails) error {
	var attributions []byte
	if len(place.Attributions) > 0 {
		var err error
		if attributions, err = json.Marshal(place.Attributions); err != nil {
			return fmt.Errorf("failed to marshal photo attributions: %w", err)
		}
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE activities SET
			external_place_id = $2,
			lat = COALESCE($3, lat),
			lng = COALESCE($4, lng),
			address = COALESCE($5, address),
			google_maps_url = COALESCE($6, google_maps_url),
			website = COALESCE($7, website),
			photo_urls = COALESCE($8, photo_urls),
			photo_attributions = COALESCE($9, photo_attributions),
			updated_at = now()
		WHERE id = $1
	`,
		activityID,
		place.PlaceID,
		nullFloat(place.Lat),
		nullFloat(place.Lng),
		nullString(place.Address),
		nullString(place.MapsURL),
		nullString(place.Website),
		nullableArray(place.PhotoURLs),
		nullableJSON(attributions),
	)
	if err != nil {
		return fmt.Errorf("failed to update activity place: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("activity %s: %w", activityID, ErrNotFound)
	}
	return nil
}

func nullableArray(values []string) any {
	if len(values) == 0 {
		return nil
	}
	return pq.Array(values)
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// ImportCatalog inserts a destination with its activities, weather and templates
// in one transaction and returns the new destination id
func (r *DestinationRepository) ImportCatalog(ctx context.Context, c CatalogImport) (uuid.UUID, error) {
	d := c.Destination
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Timezone == "" {
		d.Timezone = "UTC"
	}
	if d.DefaultZoom == 0 {
		d.DefaultZoom = 14
	}

	gettingThere, err := json.Marshal(d.GettingThere)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal getting_there: %w", err)
	}
	links, err := json.Marshal(orEmpty(d.UsefulLinks))
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal useful_links: %w", err)
	}
	numbers, err := json.Marshal(orEmpty(d.EmergencyNumbers))
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal emergency_numbers: %w", err)
	}

	err = r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO destinations (id, name, name_local, country, region, description, lat, lng,
				timezone, default_zoom, getting_there, useful_links, emergency_numbers, travel_tips, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`, d.ID, d.Name, nullString(d.NameLocal), d.Country, nullString(d.Region), nullString(d.Description),
			d.Lat, d.Lng, d.Timezone, d.DefaultZoom, string(gettingThere), string(links), string(numbers),
			pq.Array(orEmpty(d.TravelTips)), c.CreatedBy,
		); err != nil {
			return fmt.Errorf("failed to insert destination: %w", err)
		}

		ids := make(map[string]string, len(c.Activities))
		for i, a := range c.Activities {
			id, err := insertActivity(ctx, tx, d.ID, i, a)
			if err != nil {
				return err
			}
			ids[catalogKey(a.ID)] = id
			ids[catalogKey(a.Name)] = id
		}

		for _, w := range c.Weather {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO destination_weather (destination_id, season, months, temp_range, emoji, description, tips)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (destination_id, season) DO UPDATE SET
					months = EXCLUDED.months, temp_range = EXCLUDED.temp_range, emoji = EXCLUDED.emoji,
					description = EXCLUDED.description, tips = EXCLUDED.tips
			`, d.ID, strings.ToLower(string(w.Season)), w.Months, w.TempRange, w.Emoji, w.Description, pq.Array(orEmpty(w.Tips))); err != nil {
				return fmt.Errorf("failed to insert weather for %s: %w", w.Season, err)
			}
		}

		for i, t := range c.Templates {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO itinerary_templates (destination_id, label, activity_ids, sort_order)
				VALUES ($1, $2, $3, $4)
			`, d.ID, t.Label, pq.Array(ResolveTemplateRefs(t.ActivityIDs, ids)), i); err != nil {
				return fmt.Errorf("failed to insert template %q: %w", t.Label, err)
			}
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return d.ID, nil
}

func insertActivity(ctx context.Context, tx *sql.Tx, destinationID uuid.UUID, order int, a models.Activity) (string, error) {
	var attributions any
	if len(a.PhotoAttributions) > 0 {
		raw, err := json.Marshal(a.PhotoAttributions)
		if err != nil {
			return "", fmt.Errorf("failed to marshal photo attributions: %w", err)
		}
		attributions = string(raw)
	}

	emoji := strings.TrimSpace(a.ImageEmoji)
	if emoji == "" {
		emoji = models.DefaultActivityGlyph
	}
	kid := a.KidFriendliness
	if kid == 0 {
		kid = 3
	}
	source := a.Source
	if source == "" {
		source = models.SourceCurated
	}
	seasons := make([]string, 0, len(a.BestSeason))
	for _, s := range a.BestSeason {
		seasons = append(seasons, strings.ToLower(string(s)))
	}

	var id string
	err := tx.QueryRowContext(ctx, `
		INSERT INTO activities (destination_id, external_place_id, name, name_local, description, category,
			subcategory, area, address, lat, lng, google_maps_url, kid_friendliness, tips, best_season,
			estimated_duration, price_range, website, image_emoji, photo_urls, photo_attributions, source, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		RETURNING id
	`,
		destinationID, nullString(a.ExternalPlaceID), a.Name, nullString(a.NameLocal), a.Description, string(a.Category),
		nullString(a.Subcategory), nullString(a.Location.Area), nullString(a.Location.Address),
		nullFloat(a.Location.Lat), nullFloat(a.Location.Lng), nullString(a.Location.GoogleMaps),
		models.ClampKidFriendliness(kid), pq.Array(orEmpty(a.Tips)), nullableArray(seasons),
		nullString(a.EstimatedDuration), priceRangeOf(a.PriceRange), nullString(a.Website), emoji,
		nullableArray(a.PhotoURLs), attributions, string(source), order,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to insert activity %q: %w", a.Name, err)
	}
	return id, nil
}

func catalogKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ResolveTemplateRefs maps template activity references to stored ids.
// References are matched case-insensitively; unknown ones are dropped.
func ResolveTemplateRefs(refs []string, ids map[string]string) []string {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if id, ok := ids[catalogKey(ref)]; ok {
			out = append(out, id)
		}
	}
	return out
}

func orEmpty[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
