// README: Passenger aggregate and status definitions.
package passenger

import (
	"time"

	"ridepool/internal/types"
)

type Status string

const (
	StatusUnassigned Status = "unassigned"
	StatusAssigned   Status = "assigned"
	StatusDroppedOff Status = "dropped_off"
)

// Passenger is a ride request waiting for dispatch. WindowStart/WindowEnd
// bound the acceptable pickup time; passengers without a window cannot be
// scheduled and are reported as such, never silently skipped.
type Passenger struct {
	ID             types.ID
	Pickup         types.Point
	Dropoff        types.Point
	WindowStart    *time.Time
	WindowEnd      *time.Time
	RideDuration   time.Duration // estimated in-vehicle time
	GroupSize      int
	Status         Status
	AssignedDriver *types.ID
	CreatedAt      time.Time
}

// HasWindow reports whether the pickup window is usable for scheduling.
func (p Passenger) HasWindow() bool {
	return p.WindowStart != nil && p.WindowEnd != nil && !p.WindowEnd.Before(*p.WindowStart)
}
