// Package travel estimates how long it takes to get between two activities.
// It is a display heuristic over great-circle distance, not a routing engine.
package travel

import (
	"fmt"
	"math"

	"github.com/benvon/family-planner/internal/models"
)

// Mode is how the family is expected to move between two places
type Mode string

const (
	ModeWalk  Mode = "walk"
	ModeDrive Mode = "drive"
)

const (
	earthRadiusKm = 6371.0

	walkThresholdKm  = 0.5
	townThresholdKm  = 3.0
	walkSpeedKmh     = 4.0
	townSpeedKmh     = 30.0
	openRoadSpeedKmh = 50.0
)

// Hint is a qualitative travel estimate between two locations
type Hint struct {
	Mode       Mode    `json:"mode"`
	Glyph      string  `json:"glyph"`
	Label      string  `json:"label"`
	Minutes    int     `json:"minutes"`
	DistanceKm float64 `json:"distance_km"`
}

// DistanceKm returns the haversine distance between two coordinates
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Estimate returns the travel hint between two locations.
// ok is false when either location has no coordinates.
func Estimate(from, to models.Location) (hint Hint, ok bool) {
	if !from.HasCoordinates() || !to.HasCoordinates() {
		return Hint{}, false
	}
	km := DistanceKm(*from.Lat, *from.Lng, *to.Lat, *to.Lng)
	return ForDistance(km), true
}

// ForDistance builds the hint for a known distance in kilometres
func ForDistance(km float64) Hint {
	mode, speed := ModeDrive, openRoadSpeedKmh
	switch {
	case km < walkThresholdKm:
		mode, speed = ModeWalk, walkSpeedKmh
	case km <= townThresholdKm:
		speed = townSpeedKmh
	}

	minutes := int(math.Round(km / speed * 60))
	if minutes < 1 {
		minutes = 1
	}

	glyph := "🚗"
	if mode == ModeWalk {
		glyph = "🚶"
	}

	return Hint{
		Mode:       mode,
		Glyph:      glyph,
		Label:      fmt.Sprintf("~%d min %s", minutes, mode),
		Minutes:    minutes,
		DistanceKm: km,
	}
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
