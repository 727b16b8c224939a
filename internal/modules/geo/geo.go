// README: Pure geographic computation helpers (distance, direction, path proximity).
package geo

import (
	"math"

	"ridepool/internal/types"
)

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func HaversineKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// HaversineMeters is HaversineKm in metres.
func HaversineMeters(a, b types.Point) float64 {
	return HaversineKm(a, b) * 1000
}

// DirectionSimilarity scores how aligned two trips are, as the cosine of the
// angle between their pickup→dropoff vectors rescaled from [-1,1] to [0,1].
// 1 means identical headings, 0.5 perpendicular, 0 opposite. Trips with a
// degenerate (zero-length) vector score 0.
func DirectionSimilarity(aFrom, aTo, bFrom, bTo types.Point) float64 {
	ax, ay := planarVector(aFrom, aTo)
	bx, by := planarVector(bFrom, bTo)

	na := math.Hypot(ax, ay)
	nb := math.Hypot(bx, by)
	if na == 0 || nb == 0 {
		return 0
	}
	cos := (ax*bx + ay*by) / (na * nb)
	return (cos + 1) / 2
}

// NearPath reports whether p lies within maxKm of the polyline path.
// Segment distance uses a local equirectangular projection, which is accurate
// enough at city scale.
func NearPath(p types.Point, path []types.Point, maxKm float64) bool {
	if len(path) == 0 {
		return false
	}
	if len(path) == 1 {
		return HaversineKm(p, path[0]) <= maxKm
	}
	for i := 0; i+1 < len(path); i++ {
		if segmentDistanceKm(p, path[i], path[i+1]) <= maxKm {
			return true
		}
	}
	return false
}

// planarVector projects the pickup→dropoff displacement onto a local plane.
// Longitude is scaled by cos(mid-latitude) so east-west distances are not
// inflated away from the equator.
func planarVector(from, to types.Point) (x, y float64) {
	midLat := degreesToRadians((from.Lat + to.Lat) / 2)
	x = (to.Lng - from.Lng) * math.Cos(midLat)
	y = to.Lat - from.Lat
	return x, y
}

func segmentDistanceKm(p, a, b types.Point) float64 {
	midLat := degreesToRadians((a.Lat + b.Lat) / 2)
	scale := math.Cos(midLat)

	ax, ay := a.Lng*scale, a.Lat
	bx, by := b.Lng*scale, b.Lat
	px, py := p.Lng*scale, p.Lat

	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy
	t := 0.0
	if lenSq > 0 {
		t = ((px-ax)*dx + (py-ay)*dy) / lenSq
		t = math.Max(0, math.Min(1, t))
	}
	nearest := types.Point{
		Lat: ay + t*dy,
		Lng: (ax + t*dx) / scale,
	}
	return HaversineKm(p, nearest)
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
