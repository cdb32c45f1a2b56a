package models

import (
	"fmt"
	"strings"
)

// Category groups activities in the catalog
type Category string

const (
	CategoryFood     Category = "food"
	CategoryOutdoors Category = "outdoors"
	CategoryKids     Category = "kids"
	CategoryCulture  Category = "culture"
)

// Categories lists every category in display order
var Categories = []Category{CategoryFood, CategoryOutdoors, CategoryKids, CategoryCulture}

// Valid reports whether c is a known category
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// PriceTier is the rough cost indicator shown next to an activity
type PriceTier string

const (
	PriceBudget    PriceTier = "€"
	PriceModerate  PriceTier = "€€"
	PriceExpensive PriceTier = "€€€"
)

// PriceTierFromRange maps a stored price range (free, budget, moderate, expensive) to a tier.
// Unknown or empty ranges yield an empty tier.
func PriceTierFromRange(priceRange string) PriceTier {
	switch strings.ToLower(strings.TrimSpace(priceRange)) {
	case "free", "budget":
		return PriceBudget
	case "moderate":
		return PriceModerate
	case "expensive":
		return PriceExpensive
	default:
		return ""
	}
}

// Season tags used by best-season lists and weather entries
type Season string

const (
	SeasonSpring Season = "spring"
	SeasonSummer Season = "summer"
	SeasonAutumn Season = "autumn"
	SeasonWinter Season = "winter"
)

// ActivitySource records where a catalog entry came from
type ActivitySource string

const (
	SourceCurated ActivitySource = "curated"
	SourceAI      ActivitySource = "ai"
)

// DefaultActivityGlyph is used when an activity has no image glyph
const DefaultActivityGlyph = "📍"

// Location describes where an activity is. Lat and Lng are nil when unknown.
type Location struct {
	Area       string   `json:"area" yaml:"area"`
	Address    string   `json:"address,omitempty" yaml:"address,omitempty"`
	GoogleMaps string   `json:"google_maps,omitempty" yaml:"google_maps,omitempty"`
	Lat        *float64 `json:"lat,omitempty" yaml:"lat,omitempty"`
	Lng        *float64 `json:"lng,omitempty" yaml:"lng,omitempty"`
}

// HasCoordinates reports whether both latitude and longitude are known
func (l Location) HasCoordinates() bool {
	return l.Lat != nil && l.Lng != nil
}

// PhotoAttribution credits the author of an activity photo
type PhotoAttribution struct {
	DisplayName string `json:"display_name" yaml:"display_name"`
	URI         string `json:"uri,omitempty" yaml:"uri,omitempty"`
}

// Activity is a read-only catalog entry
type Activity struct {
	ID                string             `json:"id" yaml:"id"`
	DestinationID     string             `json:"destination_id,omitempty" yaml:"destination_id,omitempty"`
	Name              string             `json:"name" yaml:"name"`
	NameLocal         string             `json:"name_local,omitempty" yaml:"name_local,omitempty"`
	Description       string             `json:"description" yaml:"description"`
	Category          Category           `json:"category" yaml:"category"`
	Subcategory       string             `json:"subcategory,omitempty" yaml:"subcategory,omitempty"`
	Location          Location           `json:"location" yaml:"location"`
	KidFriendliness   int                `json:"kid_friendliness" yaml:"kid_friendliness"`
	Tips              []string           `json:"tips" yaml:"tips"`
	BestSeason        []Season           `json:"best_season,omitempty" yaml:"best_season,omitempty"`
	EstimatedDuration string             `json:"estimated_duration" yaml:"estimated_duration"`
	PriceRange        PriceTier          `json:"price_range,omitempty" yaml:"price_range,omitempty"`
	Website           string             `json:"website,omitempty" yaml:"website,omitempty"`
	ImageEmoji        string             `json:"image_emoji" yaml:"image_emoji"`
	PhotoURLs         []string           `json:"photo_urls,omitempty" yaml:"photo_urls,omitempty"`
	PhotoAttributions []PhotoAttribution `json:"photo_attributions,omitempty" yaml:"photo_attributions,omitempty"`
	ExternalPlaceID   string             `json:"external_place_id,omitempty" yaml:"external_place_id,omitempty"`
	Source            ActivitySource     `json:"source,omitempty" yaml:"source,omitempty"`
	SortOrder         int                `json:"sort_order" yaml:"sort_order"`
}

// ClampKidFriendliness forces a rating into the 1-5 range
func ClampKidFriendliness(v int) int {
	if v < 1 {
		return 1
	}
	if v > 5 {
		return 5
	}
	return v
}

// Validate checks the catalog invariants of a single activity
func (a *Activity) Validate() error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("activity id is required")
	}
	if !a.Category.Valid() {
		return fmt.Errorf("activity %s: unknown category %q", a.ID, a.Category)
	}
	if a.KidFriendliness < 1 || a.KidFriendliness > 5 {
		return fmt.Errorf("activity %s: kid_friendliness %d out of range 1-5", a.ID, a.KidFriendliness)
	}
	return nil
}

// PlaceDetails is what a places lookup contributes to an activity
type PlaceDetails struct {
	PlaceID      string             `json:"place_id"`
	Lat          *float64           `json:"lat,omitempty"`
	Lng          *float64           `json:"lng,omitempty"`
	Address      string             `json:"address,omitempty"`
	MapsURL      string             `json:"maps_url,omitempty"`
	Website      string             `json:"website,omitempty"`
	PhotoURLs    []string           `json:"photo_urls,omitempty"`
	Attributions []PhotoAttribution `json:"photo_attributions,omitempty"`
}
