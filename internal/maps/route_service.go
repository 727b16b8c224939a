package maps

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"ridepool/internal/modules/dispatch"
	"ridepool/internal/types"
)

// RouteService handles interactions with the Google Maps API. It satisfies
// the engine's Oracle contract.
type RouteService struct {
	client *maps.Client
}

// NewRouteService creates a new RouteService with the given API key.
func NewRouteService(apiKey string) (*RouteService, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &RouteService{client: client}, nil
}

// TravelTime returns the driving duration from origin to dest at departure.
func (s *RouteService) TravelTime(ctx context.Context, origin, dest types.Point, departure time.Time) (time.Duration, error) {
	r := &maps.DirectionsRequest{
		Origin:        latLng(origin),
		Destination:   latLng(dest),
		Mode:          maps.TravelModeDriving,
		DepartureTime: departureParam(departure),
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, fmt.Errorf("no route found")
	}
	return routes[0].Legs[0].Duration, nil
}

// TravelTimeMatrix returns one leg per origin/destination pair via the
// Distance Matrix API. Unroutable pairs come back nil rather than failing
// the whole matrix.
func (s *RouteService) TravelTimeMatrix(ctx context.Context, origins, dests []types.Point, departure time.Time) ([][]*dispatch.Leg, error) {
	r := &maps.DistanceMatrixRequest{
		Origins:       latLngs(origins),
		Destinations:  latLngs(dests),
		Mode:          maps.TravelModeDriving,
		DepartureTime: departureParam(departure),
	}

	resp, err := s.client.DistanceMatrix(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("maps api error: %w", err)
	}
	if len(resp.Rows) != len(origins) {
		return nil, fmt.Errorf("distance matrix returned %d rows, want %d", len(resp.Rows), len(origins))
	}

	out := make([][]*dispatch.Leg, len(origins))
	for i, row := range resp.Rows {
		out[i] = make([]*dispatch.Leg, len(dests))
		for j, el := range row.Elements {
			if j >= len(dests) || el.Status != "OK" {
				continue
			}
			out[i][j] = &dispatch.Leg{
				Duration: el.Duration,
				Meters:   float64(el.Distance.Meters),
				End:      dests[j],
			}
		}
	}
	return out, nil
}

// OptimizedRoute asks Directions to reorder the intermediate waypoints for
// the shortest overall route.
func (s *RouteService) OptimizedRoute(ctx context.Context, origin types.Point, waypoints []types.Point, dest types.Point, departure time.Time) (dispatch.Route, error) {
	r := &maps.DirectionsRequest{
		Origin:        latLng(origin),
		Destination:   latLng(dest),
		Waypoints:     latLngs(waypoints),
		Optimize:      true,
		Mode:          maps.TravelModeDriving,
		DepartureTime: departureParam(departure),
	}

	routes, _, err := s.client.Directions(ctx, r)
	if err != nil {
		return dispatch.Route{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return dispatch.Route{}, fmt.Errorf("no route found")
	}

	g := routes[0]
	out := dispatch.Route{
		WaypointOrder: g.WaypointOrder,
		Legs:          make([]dispatch.Leg, 0, len(g.Legs)),
	}
	for _, leg := range g.Legs {
		out.Legs = append(out.Legs, dispatch.Leg{
			Duration: leg.Duration,
			Meters:   float64(leg.Distance.Meters),
			End:      types.Point{Lat: leg.EndLocation.Lat, Lng: leg.EndLocation.Lng},
		})
	}
	return out, nil
}

func latLng(p types.Point) string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}

func latLngs(ps []types.Point) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = latLng(p)
	}
	return out
}

// departureParam formats departure for the API; zero means "now".
func departureParam(departure time.Time) string {
	if departure.IsZero() || departure.Before(time.Now()) {
		return "now"
	}
	return fmt.Sprintf("%d", departure.Unix())
}
