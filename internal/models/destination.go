package models

import "github.com/google/uuid"

// GettingThere holds free-text travel directions per mode
type GettingThere struct {
	ByAir   string `json:"by_air,omitempty" yaml:"by_air,omitempty"`
	ByTrain string `json:"by_train,omitempty" yaml:"by_train,omitempty"`
	ByCar   string `json:"by_car,omitempty" yaml:"by_car,omitempty"`
}

// UsefulLink is a labelled external link shown on the destination page
type UsefulLink struct {
	Label string `json:"label" yaml:"label"`
	URL   string `json:"url" yaml:"url"`
}

// EmergencyNumber is a labelled phone number
type EmergencyNumber struct {
	Label  string `json:"label" yaml:"label"`
	Number string `json:"number" yaml:"number"`
}

// Destination is the place a plan is made for
type Destination struct {
	ID               uuid.UUID         `json:"id" yaml:"id"`
	Name             string            `json:"name" yaml:"name"`
	NameLocal        string            `json:"name_local,omitempty" yaml:"name_local,omitempty"`
	Country          string            `json:"country" yaml:"country"`
	Region           string            `json:"region,omitempty" yaml:"region,omitempty"`
	Description      string            `json:"description,omitempty" yaml:"description,omitempty"`
	Lat              float64           `json:"lat" yaml:"lat"`
	Lng              float64           `json:"lng" yaml:"lng"`
	Timezone         string            `json:"timezone" yaml:"timezone"`
	DefaultZoom      int               `json:"default_zoom" yaml:"default_zoom"`
	GettingThere     GettingThere      `json:"getting_there" yaml:"getting_there"`
	UsefulLinks      []UsefulLink      `json:"useful_links,omitempty" yaml:"useful_links,omitempty"`
	EmergencyNumbers []EmergencyNumber `json:"emergency_numbers,omitempty" yaml:"emergency_numbers,omitempty"`
	TravelTips       []string          `json:"travel_tips,omitempty" yaml:"travel_tips,omitempty"`
}

// SeasonWeather describes typical weather for one season at a destination
type SeasonWeather struct {
	Season      Season   `json:"season" yaml:"season"`
	Months      string   `json:"months" yaml:"months"`
	TempRange   string   `json:"temp_range" yaml:"temp_range"`
	Emoji       string   `json:"emoji" yaml:"emoji"`
	Description string   `json:"description" yaml:"description"`
	Tips        []string `json:"tips" yaml:"tips"`
}

// ItineraryTemplate is an immutable, predefined day used to seed new itinerary days
type ItineraryTemplate struct {
	ID          string   `json:"id" yaml:"id"`
	Label       string   `json:"label" yaml:"label"`
	ActivityIDs []string `json:"activity_ids" yaml:"activity_ids"`
}
