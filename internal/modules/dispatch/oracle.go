// README: Route oracle contract consumed by the engine.
package dispatch

import (
	"context"
	"time"

	"ridepool/internal/types"
)

// Leg is one hop of a routed journey.
type Leg struct {
	Duration time.Duration
	Meters   float64
	End      types.Point
}

// Route is an externally optimized multi-stop route. WaypointOrder is the
// permutation applied to the requested intermediate waypoints; Legs covers
// origin → waypoints (in optimized order) → destination, so
// len(Legs) == len(WaypointOrder)+1.
type Route struct {
	WaypointOrder []int
	Legs          []Leg
}

// Oracle answers travel-time and routing queries. Implementations must treat
// failures as per-pair conditions (return an error, never panic); the engine
// maps them to ErrOracleUnavailable and keeps going.
type Oracle interface {
	TravelTime(ctx context.Context, origin, dest types.Point, departure time.Time) (time.Duration, error)
	// TravelTimeMatrix is the batched form, preferred when sizing the cost
	// matrix: one call instead of origins×destinations lookups. A nil entry
	// means that pair could not be routed.
	TravelTimeMatrix(ctx context.Context, origins, dests []types.Point, departure time.Time) ([][]*Leg, error)
	// OptimizedRoute asks the oracle to order the intermediate waypoints.
	OptimizedRoute(ctx context.Context, origin types.Point, waypoints []types.Point, dest types.Point, departure time.Time) (Route, error)
}
