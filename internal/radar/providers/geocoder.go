package providers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/radar-overlay/internal/radar"
)

// geocoderMu serialises access to the package-level geocoder.ApiKey.
var geocoderMu sync.Mutex

// GoogleGeocoder resolves city/country pairs through the Google Geocoding API.
type GoogleGeocoder struct {
	apiKey string
	lookup func(geocoder.Address) (geocoder.Location, error)
}

var _ radar.Locator = (*GoogleGeocoder)(nil)

func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	return &GoogleGeocoder{
		apiKey: apiKey,
		lookup: geocoder.Geocoding,
	}
}

func (g *GoogleGeocoder) Locate(ctx context.Context, loc radar.Location) (float64, float64, error) {
	if strings.TrimSpace(g.apiKey) == "" {
		return 0, 0, fmt.Errorf("geocoder api key is not configured")
	}
	if err := ctx.Err(); err != nil {
		return 0, 0, err
	}

	geocoderMu.Lock()
	geocoder.ApiKey = g.apiKey
	location, err := g.lookup(geocoder.Address{
		City:    loc.City,
		Country: loc.Country,
	})
	geocoderMu.Unlock()
	if err != nil {
		return 0, 0, err
	}

	return location.Latitude, location.Longitude, nil
}
