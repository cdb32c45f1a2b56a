// Package places looks up catalog activities in the Google Places API.
package places

import (
	"context"
	"fmt"
	"net/url"

	"github.com/benvon/family-planner/internal/models"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	placesapi "google.golang.org/api/places/v1"
)

const (
	// SearchRadiusMeters is the location bias around the activity
	SearchRadiusMeters = 10000
	// MaxPhotos is the number of photos kept per place
	MaxPhotos = 3

	photoMediaURL = "https://places.googleapis.com/v1/%s/media?maxHeightPx=600&maxWidthPx=800&key=%s"
	searchFields  = "places.id,places.displayName,places.formattedAddress,places.location,places.googleMapsUri,places.websiteUri,places.photos"
)

// Searcher finds the single best place for a text query near a point
type Searcher interface {
	SearchPlace(ctx context.Context, query string, lat, lng float64) (*models.PlaceDetails, error)
}

// Client searches places with the Places API (New)
type Client struct {
	svc    *placesapi.Service
	apiKey string
}

var _ Searcher = (*Client)(nil)

// NewClient creates a Places client authenticated with an API key
func NewClient(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("places api key is required")
	}
	svc, err := placesapi.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create places service: %w", err)
	}
	return &Client{svc: svc, apiKey: apiKey}, nil
}

// SearchPlace returns the top match for query, or nil when there is none
func (c *Client) SearchPlace(ctx context.Context, query string, lat, lng float64) (*models.PlaceDetails, error) {
	resp, err := c.svc.Places.SearchText(&placesapi.GoogleMapsPlacesV1SearchTextRequest{
		TextQuery:      query,
		MaxResultCount: 1,
		LocationBias: &placesapi.GoogleMapsPlacesV1SearchTextRequestLocationBias{
			Circle: &placesapi.GoogleMapsPlacesV1Circle{
				Center: &placesapi.GoogleTypeLatLng{Latitude: lat, Longitude: lng},
				Radius: SearchRadiusMeters,
			},
		},
	}).Fields(googleapi.Field(searchFields)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to search place %q: %w", query, err)
	}
	if len(resp.Places) == 0 || resp.Places[0] == nil {
		return nil, nil
	}
	details := DetailsFromPlace(resp.Places[0], c.apiKey)
	return &details, nil
}

// DetailsFromPlace maps an API place to the fields stored on an activity
func DetailsFromPlace(p *placesapi.GoogleMapsPlacesV1Place, apiKey string) models.PlaceDetails {
	d := models.PlaceDetails{
		PlaceID: p.Id,
		Address: p.FormattedAddress,
		MapsURL: p.GoogleMapsUri,
		Website: p.WebsiteUri,
	}
	if p.Location != nil && p.Location.Latitude != 0 && p.Location.Longitude != 0 {
		lat, lng := p.Location.Latitude, p.Location.Longitude
		d.Lat, d.Lng = &lat, &lng
	}
	for _, photo := range p.Photos {
		if len(d.PhotoURLs) == MaxPhotos {
			break
		}
		if photo == nil || photo.Name == "" {
			continue
		}
		d.PhotoURLs = append(d.PhotoURLs, PhotoURL(photo.Name, apiKey))
		if len(photo.AuthorAttributions) > 0 && photo.AuthorAttributions[0] != nil {
			a := photo.AuthorAttributions[0]
			d.Attributions = append(d.Attributions, models.PhotoAttribution{DisplayName: a.DisplayName, URI: a.Uri})
		}
	}
	return d
}

// PhotoURL builds the media URL of a place photo
func PhotoURL(photoName, apiKey string) string {
	return fmt.Sprintf(photoMediaURL, photoName, url.QueryEscape(apiKey))
}
