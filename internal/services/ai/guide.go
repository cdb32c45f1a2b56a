package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/benvon/family-planner/internal/database"
	"github.com/benvon/family-planner/internal/models"
	"github.com/google/uuid"
)

// ErrNoJSONInResponse is returned when a model reply carries no JSON object
var ErrNoJSONInResponse = errors.New("no JSON object in response")

// GeneratedActivity is one activity as the model writes it
type GeneratedActivity struct {
	Name              string   `json:"name"`
	NameLocal         *string  `json:"nameLocal"`
	Description       string   `json:"description"`
	Category          string   `json:"category"`
	Subcategory       *string  `json:"subcategory"`
	Area              *string  `json:"area"`
	Address           *string  `json:"address"`
	Latitude          *float64 `json:"latitude"`
	Longitude         *float64 `json:"longitude"`
	KidFriendliness   int      `json:"kidFriendliness"`
	Tips              []string `json:"tips"`
	BestSeason        []string `json:"bestSeason"`
	EstimatedDuration *string  `json:"estimatedDuration"`
	PriceRange        *string  `json:"priceRange"`
	Website           *string  `json:"website"`
	ImageEmoji        string   `json:"imageEmoji"`
}

// GeneratedWeather is one season as the model writes it
type GeneratedWeather struct {
	Season      string   `json:"season"`
	Months      string   `json:"months"`
	TempRange   string   `json:"tempRange"`
	Emoji       string   `json:"emoji"`
	Description string   `json:"description"`
	Tips        []string `json:"tips"`
}

// GeneratedTemplate references activities by name
type GeneratedTemplate struct {
	Label         string   `json:"label"`
	ActivityNames []string `json:"activityNames"`
}

// GeneratedDestination is the guide returned by a Generator
type GeneratedDestination struct {
	Description  string `json:"description"`
	GettingThere struct {
		ByTrain *string `json:"byTrain"`
		ByCar   *string `json:"byCar"`
		ByBus   *string `json:"byBus"`
		ByPlane *string `json:"byPlane"`
	} `json:"gettingThere"`
	UsefulLinks      []models.UsefulLink      `json:"usefulLinks"`
	EmergencyNumbers []models.EmergencyNumber `json:"emergencyNumbers"`
	TravelTips       []string                 `json:"travelTips"`
	Activities       []GeneratedActivity      `json:"activities"`
	Weather          []GeneratedWeather       `json:"weather"`
	Templates        []GeneratedTemplate      `json:"templates"`
}

var fencedJSON = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")

// ExtractJSON returns the JSON document in a model reply: the first ```json
// fenced block, else the span from the first '{' to the last '}'.
func ExtractJSON(content string) (string, error) {
	if m := fencedJSON.FindStringSubmatch(content); m != nil {
		return m[1], nil
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end <= start {
		return "", ErrNoJSONInResponse
	}
	return content[start : end+1], nil
}

// ParseDestination decodes a model reply into a guide
func ParseDestination(content string) (*GeneratedDestination, error) {
	raw, err := ExtractJSON(content)
	if err != nil {
		return nil, err
	}
	var g GeneratedDestination
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return nil, fmt.Errorf("failed to parse destination response: %w", err)
	}
	if len(g.Activities) == 0 {
		return nil, errors.New("destination response has no activities")
	}
	return &g, nil
}

// GuessTimezone picks a zone from coordinates: a handful of regional boxes,
// else a whole-hour Etc/GMT zone from the longitude.
func GuessTimezone(lat, lng float64) string {
	switch {
	case lat > 35 && lat < 70 && lng > -15 && lng < 40:
		return "Europe/Berlin"
	case lat > 25 && lat < 50 && lng > -130 && lng < -60:
		return "America/New_York"
	case lat > -45 && lat < 0 && lng > 110 && lng < 155:
		return "Australia/Sydney"
	case lat > 20 && lat < 50 && lng > 100 && lng < 150:
		return "Asia/Tokyo"
	}
	// Etc zones have inverted signs
	offset := int(math.Round(lng / 15))
	if offset >= 0 {
		return fmt.Sprintf("Etc/GMT-%d", offset)
	}
	return fmt.Sprintf("Etc/GMT+%d", -offset)
}

// Import converts the guide into rows for the catalog tables.
// Activities are keyed by their lowercased name so templates resolve by name;
// unnamed activities and unknown categories are dropped.
func (g *GeneratedDestination) Import(req GenerateRequest, createdBy *uuid.UUID) database.CatalogImport {
	dest := models.Destination{
		Name:        req.Name,
		Country:     req.Country,
		Region:      req.Region,
		Description: g.Description,
		Lat:         req.Lat,
		Lng:         req.Lng,
		Timezone:    GuessTimezone(req.Lat, req.Lng),
		DefaultZoom: 14,
		GettingThere: models.GettingThere{
			ByAir:   deref(g.GettingThere.ByPlane),
			ByTrain: deref(g.GettingThere.ByTrain),
			ByCar:   joinNonEmpty(deref(g.GettingThere.ByCar), deref(g.GettingThere.ByBus)),
		},
		UsefulLinks:      g.UsefulLinks,
		EmergencyNumbers: g.EmergencyNumbers,
		TravelTips:       g.TravelTips,
	}

	activities := make([]models.Activity, 0, len(g.Activities))
	for _, a := range g.Activities {
		category := models.Category(strings.ToLower(strings.TrimSpace(a.Category)))
		if !category.Valid() || strings.TrimSpace(a.Name) == "" {
			continue
		}
		seasons := make([]models.Season, 0, len(a.BestSeason))
		for _, s := range a.BestSeason {
			seasons = append(seasons, models.Season(strings.ToLower(strings.TrimSpace(s))))
		}
		emoji := strings.TrimSpace(a.ImageEmoji)
		if emoji == "" {
			emoji = models.DefaultActivityGlyph
		}
		activities = append(activities, models.Activity{
			ID:          strings.ToLower(strings.TrimSpace(a.Name)),
			Name:        a.Name,
			NameLocal:   deref(a.NameLocal),
			Description: a.Description,
			Category:    category,
			Subcategory: deref(a.Subcategory),
			Location: models.Location{
				Area:    deref(a.Area),
				Address: deref(a.Address),
				Lat:     nonZero(a.Latitude),
				Lng:     nonZero(a.Longitude),
			},
			KidFriendliness:   models.ClampKidFriendliness(a.KidFriendliness),
			Tips:              a.Tips,
			BestSeason:        seasons,
			EstimatedDuration: deref(a.EstimatedDuration),
			PriceRange:        models.PriceTierFromRange(deref(a.PriceRange)),
			Website:           deref(a.Website),
			ImageEmoji:        emoji,
			Source:            models.SourceAI,
			SortOrder:         len(activities),
		})
	}

	weather := make([]models.SeasonWeather, 0, len(g.Weather))
	for _, w := range g.Weather {
		weather = append(weather, models.SeasonWeather{
			Season:      models.Season(strings.ToLower(strings.TrimSpace(w.Season))),
			Months:      w.Months,
			TempRange:   w.TempRange,
			Emoji:       w.Emoji,
			Description: w.Description,
			Tips:        w.Tips,
		})
	}

	templates := make([]models.ItineraryTemplate, 0, len(g.Templates))
	for _, t := range g.Templates {
		templates = append(templates, models.ItineraryTemplate{Label: t.Label, ActivityIDs: t.ActivityNames})
	}

	return database.CatalogImport{
		Destination: dest,
		Activities:  activities,
		Weather:     weather,
		Templates:   templates,
		CreatedBy:   createdBy,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	v := strings.TrimSpace(*s)
	if strings.EqualFold(v, "null") {
		return ""
	}
	return v
}

func nonZero(f *float64) *float64 {
	if f == nil || *f == 0 {
		return nil
	}
	return f
}

func joinNonEmpty(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}

// BuildDestinationPrompt writes the generation prompt for a place
func BuildDestinationPrompt(req GenerateRequest) string {
	place := req.Name
	if req.Region != "" {
		place += ", " + req.Region
	}
	place += ", " + req.Country

	var b strings.Builder
	fmt.Fprintf(&b, "Generate a comprehensive vacation guide for **%s** (coordinates: %g, %g).\n\n", place, req.Lat, req.Lng)
	b.WriteString("This guide is for families with small children (toddlers and young kids). ")
	b.WriteString("Output ONLY valid JSON wrapped in ```json code fences with this structure:\n\n")
	b.WriteString(promptSchema)
	b.WriteString("\n\nRequirements:\n")
	for _, r := range promptRequirements {
		b.WriteString("- ")
		b.WriteString(r)
		b.WriteString("\n")
	}
	return b.String()
}

const promptSchema = "```json\n" + `{
  "description": "2-3 sentences on the destination and its appeal for families",
  "gettingThere": {"byTrain": "or null", "byCar": "or null", "byBus": "or null", "byPlane": "nearest airport or null"},
  "usefulLinks": [{"label": "Tourist Office", "url": "https://..."}],
  "emergencyNumbers": [{"label": "General Emergency", "number": "..."}],
  "travelTips": ["practical tip for families"],
  "activities": [{
    "name": "Activity Name",
    "nameLocal": "local language name or null",
    "description": "2-3 engaging sentences",
    "category": "food|outdoors|kids|culture",
    "subcategory": "e.g. playground, museum, restaurant",
    "area": "neighborhood",
    "address": "street address if known",
    "latitude": 0.0,
    "longitude": 0.0,
    "kidFriendliness": 3,
    "tips": ["tip"],
    "bestSeason": ["summer"],
    "estimatedDuration": "1-2 hours",
    "priceRange": "free|budget|moderate|expensive",
    "website": "https://... or null",
    "imageEmoji": "🏔️"
  }],
  "weather": [{"season": "winter", "months": "December-February", "tempRange": "-5°C to 5°C", "emoji": "❄️", "description": "...", "tips": ["..."]}],
  "templates": [{"label": "Active Family Day", "activityNames": ["Activity Name 1", "Activity Name 2"]}]
}` + "\n```"

var promptRequirements = []string{
	"Generate 20-28 activities across all 4 categories: 6-8 food, 6-8 outdoors, 4-6 kids, 4-6 culture",
	"Use real, existing places and give accurate coordinates",
	"kidFriendliness: 1=not suitable, 2=challenging, 3=ok with preparation, 4=good for kids, 5=designed for kids",
	"Generate weather for all 4 seasons",
	"Generate 3 day templates of 4-6 activities each, using exact activity names from the list",
	"emergencyNumbers are the country's emergency numbers; usefulLinks are real tourism websites",
	"travelTips are 5-8 practical family-oriented tips",
	"imageEmoji is a single relevant emoji",
}
