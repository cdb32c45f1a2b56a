package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/family-planner/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Rows as they come out of Postgres, and the pure functions that turn them into
// domain values. Nothing here touches a connection.

const activityColumns = `id, destination_id, external_place_id, name, name_local, description, category,
	subcategory, area, address, lat, lng, google_maps_url, kid_friendliness, tips, best_season,
	estimated_duration, price_range, website, image_emoji, photo_urls, photo_attributions, source, sort_order`

type activityRow struct {
	ID                string
	DestinationID     string
	ExternalPlaceID   sql.NullString
	Name              string
	NameLocal         sql.NullString
	Description       string
	Category          string
	Subcategory       sql.NullString
	Area              sql.NullString
	Address           sql.NullString
	Lat               sql.NullFloat64
	Lng               sql.NullFloat64
	GoogleMapsURL     sql.NullString
	KidFriendliness   sql.NullInt64
	Tips              pq.StringArray
	BestSeason        pq.StringArray
	EstimatedDuration sql.NullString
	PriceRange        sql.NullString
	Website           sql.NullString
	ImageEmoji        sql.NullString
	PhotoURLs         pq.StringArray
	PhotoAttributions []byte
	Source            sql.NullString
	SortOrder         int
}

func (r *activityRow) scanTargets() []any {
	return []any{
		&r.ID, &r.DestinationID, &r.ExternalPlaceID, &r.Name, &r.NameLocal, &r.Description, &r.Category,
		&r.Subcategory, &r.Area, &r.Address, &r.Lat, &r.Lng, &r.GoogleMapsURL, &r.KidFriendliness,
		&r.Tips, &r.BestSeason, &r.EstimatedDuration, &r.PriceRange, &r.Website, &r.ImageEmoji,
		&r.PhotoURLs, &r.PhotoAttributions, &r.Source, &r.SortOrder,
	}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// mapActivity converts a stored activity into a catalog entry. Missing ratings
// default to 3, out-of-range ratings are clamped and a missing glyph becomes 📍.
func mapActivity(r activityRow) (models.Activity, error) {
	kid := 3
	if r.KidFriendliness.Valid {
		kid = models.ClampKidFriendliness(int(r.KidFriendliness.Int64))
	}

	emoji := strings.TrimSpace(r.ImageEmoji.String)
	if emoji == "" {
		emoji = models.DefaultActivityGlyph
	}

	tips := []string(r.Tips)
	if tips == nil {
		tips = []string{}
	}

	var seasons []models.Season
	for _, s := range r.BestSeason {
		seasons = append(seasons, models.Season(strings.ToLower(s)))
	}

	var attributions []models.PhotoAttribution
	if len(r.PhotoAttributions) > 0 {
		if err := json.Unmarshal(r.PhotoAttributions, &attributions); err != nil {
			return models.Activity{}, fmt.Errorf("activity %s: invalid photo_attributions: %w", r.ID, err)
		}
	}

	source := models.SourceCurated
	if r.Source.Valid && r.Source.String != "" {
		source = models.ActivitySource(r.Source.String)
	}

	return models.Activity{
		ID:            r.ID,
		DestinationID: r.DestinationID,
		Name:          r.Name,
		NameLocal:     r.NameLocal.String,
		Description:   r.Description,
		Category:      models.Category(r.Category),
		Subcategory:   r.Subcategory.String,
		Location: models.Location{
			Area:       r.Area.String,
			Address:    r.Address.String,
			GoogleMaps: r.GoogleMapsURL.String,
			Lat:        floatPtr(r.Lat),
			Lng:        floatPtr(r.Lng),
		},
		KidFriendliness:   kid,
		Tips:              tips,
		BestSeason:        seasons,
		EstimatedDuration: r.EstimatedDuration.String,
		PriceRange:        models.PriceTierFromRange(r.PriceRange.String),
		Website:           r.Website.String,
		ImageEmoji:        emoji,
		PhotoURLs:         []string(r.PhotoURLs),
		PhotoAttributions: attributions,
		ExternalPlaceID:   r.ExternalPlaceID.String,
		Source:            source,
		SortOrder:         r.SortOrder,
	}, nil
}

// priceRangeOf maps a tier back to the stored price range
func priceRangeOf(tier models.PriceTier) sql.NullString {
	switch tier {
	case models.PriceBudget:
		return sql.NullString{String: "budget", Valid: true}
	case models.PriceModerate:
		return sql.NullString{String: "moderate", Valid: true}
	case models.PriceExpensive:
		return sql.NullString{String: "expensive", Valid: true}
	default:
		return sql.NullString{}
	}
}

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

const destinationColumns = `id, name, name_local, country, region, description, lat, lng, timezone,
	default_zoom, getting_there, useful_links, emergency_numbers, travel_tips`

type destinationRow struct {
	ID               uuid.UUID
	Name             string
	NameLocal        sql.NullString
	Country          string
	Region           sql.NullString
	Description      sql.NullString
	Lat              float64
	Lng              float64
	Timezone         string
	DefaultZoom      int
	GettingThere     []byte
	UsefulLinks      []byte
	EmergencyNumbers []byte
	TravelTips       pq.StringArray
}

func (r *destinationRow) scanTargets() []any {
	return []any{
		&r.ID, &r.Name, &r.NameLocal, &r.Country, &r.Region, &r.Description, &r.Lat, &r.Lng,
		&r.Timezone, &r.DefaultZoom, &r.GettingThere, &r.UsefulLinks, &r.EmergencyNumbers, &r.TravelTips,
	}
}

func mapDestination(r destinationRow) (models.Destination, error) {
	d := models.Destination{
		ID:          r.ID,
		Name:        r.Name,
		NameLocal:   r.NameLocal.String,
		Country:     r.Country,
		Region:      r.Region.String,
		Description: r.Description.String,
		Lat:         r.Lat,
		Lng:         r.Lng,
		Timezone:    r.Timezone,
		DefaultZoom: r.DefaultZoom,
		TravelTips:  []string(r.TravelTips),
	}
	for _, field := range []struct {
		name string
		raw  []byte
		dst  any
	}{
		{"getting_there", r.GettingThere, &d.GettingThere},
		{"useful_links", r.UsefulLinks, &d.UsefulLinks},
		{"emergency_numbers", r.EmergencyNumbers, &d.EmergencyNumbers},
	} {
		if len(field.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(field.raw, field.dst); err != nil {
			return models.Destination{}, fmt.Errorf("destination %s: invalid %s: %w", r.ID, field.name, err)
		}
	}
	return d, nil
}

type weatherRow struct {
	Season      string
	Months      string
	TempRange   string
	Emoji       string
	Description string
	Tips        pq.StringArray
}

func mapWeather(r weatherRow) models.SeasonWeather {
	tips := []string(r.Tips)
	if tips == nil {
		tips = []string{}
	}
	return models.SeasonWeather{
		Season:      models.Season(strings.ToLower(r.Season)),
		Months:      r.Months,
		TempRange:   r.TempRange,
		Emoji:       r.Emoji,
		Description: r.Description,
		Tips:        tips,
	}
}

type templateRow struct {
	ID          string
	Label       string
	ActivityIDs pq.StringArray
}

func mapTemplate(r templateRow) models.ItineraryTemplate {
	ids := []string(r.ActivityIDs)
	if ids == nil {
		ids = []string{}
	}
	return models.ItineraryTemplate{ID: r.ID, Label: r.Label, ActivityIDs: ids}
}

// dayItemRow is one row of the days LEFT JOIN items query. ActivityID is
// invalid for days without items.
type dayItemRow struct {
	DayID      string
	Label      string
	Date       sql.NullTime
	ActivityID sql.NullString
}

// assembleDays folds ordered day/item rows into itinerary days, keeping both
// the day order and the item order of the input
func assembleDays(rows []dayItemRow) []models.ItineraryDay {
	days := []models.ItineraryDay{}
	index := map[string]int{}
	for _, r := range rows {
		i, ok := index[r.DayID]
		if !ok {
			day := models.ItineraryDay{ID: r.DayID, Label: r.Label, ActivityIDs: []string{}}
			if r.Date.Valid {
				date := r.Date.Time.Format(time.DateOnly)
				day.Date = &date
			}
			days = append(days, day)
			i = len(days) - 1
			index[r.DayID] = i
		}
		if r.ActivityID.Valid && !days[i].Contains(r.ActivityID.String) {
			days[i].ActivityIDs = append(days[i].ActivityIDs, r.ActivityID.String)
		}
	}
	return days
}

// mapStatus parses a stored status; rows are only ever want or done
func mapStatus(s string) (models.ActivityStatus, bool) {
	st := models.ActivityStatus(strings.ToLower(strings.TrimSpace(s)))
	if st == models.StatusWant || st == models.StatusDone {
		return st, true
	}
	return "", false
}
