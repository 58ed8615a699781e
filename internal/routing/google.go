package routing

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"github.com/example/ride-booking/internal/models"
)

// GoogleRouter implements Provider and Geocoder on top of the Google
// Maps Directions and Geocoding APIs.
type GoogleRouter struct {
	client *maps.Client
}

func NewGoogleRouter(apiKey string) (*GoogleRouter, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create maps client: %w", err)
	}
	return &GoogleRouter{client: client}, nil
}

func (g *GoogleRouter) Route(ctx context.Context, origin, destination string, waypoints []string) ([]models.RouteLeg, error) {
	r := &maps.DirectionsRequest{
		Origin:      origin,
		Destination: destination,
		Waypoints:   waypoints,
		Mode:        maps.TravelModeDriving,
	}
	routes, _, err := g.client.Directions(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return nil, ErrNoRoute
	}

	legs := make([]models.RouteLeg, 0, len(routes[0].Legs))
	for _, leg := range routes[0].Legs {
		legs = append(legs, models.RouteLeg{
			DistanceMeters:  leg.Distance.Meters,
			DurationSeconds: int(leg.Duration.Seconds()),
			Start:           models.Point{Lat: leg.StartLocation.Lat, Lng: leg.StartLocation.Lng},
			End:             models.Point{Lat: leg.EndLocation.Lat, Lng: leg.EndLocation.Lng},
		})
	}
	return legs, nil
}

func (g *GoogleRouter) ReverseGeocode(ctx context.Context, p models.Point) (string, error) {
	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{
		LatLng: &maps.LatLng{Lat: p.Lat, Lng: p.Lng},
	})
	if err != nil {
		return "", fmt.Errorf("geocode: %w", err)
	}
	if len(results) == 0 {
		return "", fmt.Errorf("geocode: no result for %.6f,%.6f", p.Lat, p.Lng)
	}
	return results[0].FormattedAddress, nil
}
