package geo

import (
	"math"
	"testing"

	"ridepool/internal/types"
)

func TestHaversineKm_KnownDistances(t *testing.T) {
	tests := []struct {
		name      string
		a, b      types.Point
		wantKm    float64
		tolerance float64
	}{
		{
			name:      "same point",
			a:         types.Point{Lat: 40.7505, Lng: -73.9934},
			b:         types.Point{Lat: 40.7505, Lng: -73.9934},
			wantKm:    0,
			tolerance: 0.001,
		},
		{
			name:      "Penn Station to City Hall (~4.4km)",
			a:         types.Point{Lat: 40.7505, Lng: -73.9934},
			b:         types.Point{Lat: 40.7128, Lng: -74.0060},
			wantKm:    4.4,
			tolerance: 0.5,
		},
		{
			name:      "New York to Los Angeles (~3944km)",
			a:         types.Point{Lat: 40.7128, Lng: -74.0060},
			b:         types.Point{Lat: 34.0522, Lng: -118.2437},
			wantKm:    3944,
			tolerance: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HaversineKm(tt.a, tt.b)
			if math.Abs(got-tt.wantKm) > tt.tolerance {
				t.Errorf("HaversineKm() = %f, want %f (±%f)", got, tt.wantKm, tt.tolerance)
			}
		})
	}
}

func TestHaversineKm_Symmetry(t *testing.T) {
	a := types.Point{Lat: 25.0, Lng: 121.0}
	b := types.Point{Lat: 26.0, Lng: 122.0}
	if d1, d2 := HaversineKm(a, b), HaversineKm(b, a); math.Abs(d1-d2) > 0.0001 {
		t.Errorf("haversine is not symmetric: %f vs %f", d1, d2)
	}
}

func TestDirectionSimilarity(t *testing.T) {
	origin := types.Point{Lat: 40.0, Lng: -74.0}
	north := types.Point{Lat: 40.1, Lng: -74.0}
	south := types.Point{Lat: 39.9, Lng: -74.0}
	east := types.Point{Lat: 40.0, Lng: -73.9}

	tests := []struct {
		name string
		aTo  types.Point
		bTo  types.Point
		want float64
	}{
		{"parallel", north, north, 1.0},
		{"opposite", north, south, 0.0},
		{"perpendicular", north, east, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DirectionSimilarity(origin, tt.aTo, origin, tt.bTo)
			if math.Abs(got-tt.want) > 0.01 {
				t.Errorf("DirectionSimilarity() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestDirectionSimilarity_DegenerateTrip(t *testing.T) {
	p := types.Point{Lat: 40.0, Lng: -74.0}
	q := types.Point{Lat: 40.1, Lng: -74.0}
	if got := DirectionSimilarity(p, p, p, q); got != 0 {
		t.Errorf("zero-length trip should score 0, got %f", got)
	}
}

func TestNearPath(t *testing.T) {
	path := []types.Point{
		{Lat: 40.0, Lng: -74.0},
		{Lat: 40.1, Lng: -74.0},
		{Lat: 40.2, Lng: -74.0},
	}

	// On the path midpoint.
	if !NearPath(types.Point{Lat: 40.05, Lng: -74.0}, path, 0.1) {
		t.Error("point on path should be near")
	}
	// ~0.85km west of the path.
	if !NearPath(types.Point{Lat: 40.05, Lng: -74.01}, path, 1.0) {
		t.Error("point ~0.85km off path should be within 1km")
	}
	if NearPath(types.Point{Lat: 40.05, Lng: -74.01}, path, 0.5) {
		t.Error("point ~0.85km off path should not be within 0.5km")
	}
	// Far beyond the path's end is measured to the endpoint, not the
	// infinite line, so ~22km past the end fails a 10km threshold.
	if NearPath(types.Point{Lat: 40.4, Lng: -74.0}, path, 10) {
		t.Error("point past the path end should clamp to endpoint distance")
	}
}

func TestNearPath_Empty(t *testing.T) {
	if NearPath(types.Point{Lat: 40, Lng: -74}, nil, 100) {
		t.Error("empty path can never be near")
	}
}
