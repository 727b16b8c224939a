// README: Rider is the schedulable unit: a single passenger or a merged
// carpool group standing in for its members until commit.
package dispatch

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"ridepool/internal/modules/passenger"
	"ridepool/internal/types"
)

type Rider struct {
	ID           types.ID
	Pickup       types.Point
	Dropoff      types.Point
	WindowStart  time.Time
	WindowEnd    time.Time
	RideDuration time.Duration
	GroupSize    int
	// Members is set only for merged riders and carries the original
	// passengers; a merged rider is never persisted itself, its members are
	// committed individually under a shared trip.
	Members []passenger.Passenger
}

// Merged reports whether this rider is a carpool-detector artifact.
func (r Rider) Merged() bool { return len(r.Members) > 0 }

// RiderFromPassenger lifts a passenger into a schedulable rider. Passengers
// without a usable window cannot be lifted; the caller reports them as
// unschedulable with ReasonMissingWindow.
func RiderFromPassenger(p passenger.Passenger) (Rider, error) {
	if !p.HasWindow() {
		return Rider{}, ErrWindowMissing
	}
	size := p.GroupSize
	if size <= 0 {
		size = 1
	}
	return Rider{
		ID:           p.ID,
		Pickup:       p.Pickup,
		Dropoff:      p.Dropoff,
		WindowStart:  *p.WindowStart,
		WindowEnd:    *p.WindowEnd,
		RideDuration: p.RideDuration,
		GroupSize:    size,
	}, nil
}

// mergeRiders combines two single riders into one virtual rider: pickup is
// the midpoint of the members' pickups, the window is the intersection of
// their windows, and the dropoff is the member dropoff farther from the
// shared pickup so the driver cursor lands at the true end of the run.
func mergeRiders(a, b Rider) Rider {
	start := a.WindowStart
	if b.WindowStart.After(start) {
		start = b.WindowStart
	}
	end := a.WindowEnd
	if b.WindowEnd.Before(end) {
		end = b.WindowEnd
	}

	pickup := types.Point{
		Lat: (a.Pickup.Lat + b.Pickup.Lat) / 2,
		Lng: (a.Pickup.Lng + b.Pickup.Lng) / 2,
	}

	dropoff := a.Dropoff
	ride := a.RideDuration
	if b.RideDuration > ride {
		dropoff = b.Dropoff
		ride = b.RideDuration
	}

	members := make([]passenger.Passenger, 0, 2)
	members = append(members, memberOf(a), memberOf(b))

	return Rider{
		ID:           newID(),
		Pickup:       pickup,
		Dropoff:      dropoff,
		WindowStart:  start,
		WindowEnd:    end,
		RideDuration: ride,
		GroupSize:    a.GroupSize + b.GroupSize,
		Members:      members,
	}
}

// memberOf reconstructs the persisted-passenger view of a single rider.
func memberOf(r Rider) passenger.Passenger {
	ws, we := r.WindowStart, r.WindowEnd
	return passenger.Passenger{
		ID:           r.ID,
		Pickup:       r.Pickup,
		Dropoff:      r.Dropoff,
		WindowStart:  &ws,
		WindowEnd:    &we,
		RideDuration: r.RideDuration,
		GroupSize:    r.GroupSize,
		Status:       passenger.StatusUnassigned,
	}
}

func newID() types.ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return types.ID(hex.EncodeToString(b[:]))
}
