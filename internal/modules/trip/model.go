// README: Shared trip aggregate: a driver-owned ordered stop sequence.
package trip

import (
	"time"

	"ridepool/internal/types"
)

type StopKind string

const (
	StopPickup  StopKind = "pickup"
	StopDropoff StopKind = "dropoff"
)

type Stop struct {
	Seq         int
	PassengerID types.ID
	Kind        StopKind
	Point       types.Point
	ETA         time.Time
}

// Trip is created when a second rider shares a driver's route. Version guards
// concurrent stop mutation the same way order status_version does in a plain
// assignment.
type Trip struct {
	ID        types.ID
	DriverID  types.ID
	Stops     []Stop
	Version   int
	CreatedAt time.Time
}
