// README: Driver aggregate and status definitions.
package driver

import (
	"time"

	"ridepool/internal/types"
)

type Status string

const (
	StatusIdle           Status = "idle"
	StatusEnRoutePickup  Status = "en_route_pickup"
	StatusEnRouteDropoff Status = "en_route_dropoff"
	StatusPostDropoff    Status = "post_dropoff"
)

type Driver struct {
	ID       types.ID
	Location types.Point
	// Shift window during which the driver accepts assignments.
	AvailableFrom  time.Time
	AvailableUntil time.Time
	Capacity       int
	Status         Status
	// StatusVersion guards conditional writes: every status transition bumps
	// it, and a claim conditioned on a stale version affects zero rows.
	StatusVersion int
	// CurrentAssignment/CurrentTrip are consistent with Status: both nil when
	// idle, assignment set while en route, trip set only for shared rides.
	CurrentAssignment *types.ID
	CurrentTrip       *types.ID
}
