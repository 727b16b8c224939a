// README: Assignment aggregate and status definitions.
package assignment

import (
	"time"

	"ridepool/internal/types"
)

type Status string

const (
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Assignment binds one passenger to one driver. Merged carpool groups are
// persisted as one assignment per member, linked through a shared trip.
type Assignment struct {
	ID               types.ID
	DriverID         types.ID
	PassengerID      types.ID
	TripID           *types.ID
	Status           Status
	StatusVersion    int
	EstimatedPickup  time.Time
	EstimatedDropoff time.Time
	CreatedAt        time.Time
	PickedUpAt       *time.Time
	CompletedAt      *time.Time
}

// AllowedTransitions represents the assignment state flow (diagram) as code.
var AllowedTransitions = map[Status][]Status{
	StatusConfirmed:  {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}
