// README: Route parser — turns an externally optimized stop sequence into
// per-passenger pickup/dropoff ETAs.
package dispatch

import (
	"time"

	"ridepool/internal/modules/geo"
	"ridepool/internal/modules/trip"
	"ridepool/internal/types"
)

// RouteStop is one requested stop of a multi-stop run, in request order:
// intermediate waypoints first, the trip's terminal stop last.
type RouteStop struct {
	PassengerID types.ID
	Kind        trip.StopKind
	Point       types.Point
}

// PassengerETA carries the parsed arrival times for one passenger.
type PassengerETA struct {
	Pickup  time.Time
	Dropoff time.Time
}

// destinationMatchMeters is how close the route's final leg endpoint must be
// to the requested terminal stop to count as the same place.
const destinationMatchMeters = 150

// ParseRoute reindexes the intermediate stops through the route's waypoint
// order, walks the legs accumulating durations from departure, and records
// each stop's arrival as that passenger's pickup or dropoff ETA.
//
// On a sequence violation (a passenger's dropoff at or before their pickup)
// the ETAs computed so far are returned alongside a *RouteSequenceError; the
// caller decides whether to surface it or retry via ApplyMinimumRide. The
// parser itself never rewrites timestamps.
func ParseRoute(departure time.Time, stops []RouteStop, route Route) (map[types.ID]PassengerETA, error) {
	if len(stops) == 0 {
		return map[types.ID]PassengerETA{}, nil
	}

	waypoints := stops[:len(stops)-1]
	terminal := stops[len(stops)-1]

	if len(route.WaypointOrder) != len(waypoints) {
		return nil, &RouteSequenceError{Reason: "waypoint order does not cover the requested stops"}
	}

	// Realized visiting order: optimized waypoints, then the terminal stop.
	ordered := make([]RouteStop, 0, len(stops))
	for _, idx := range route.WaypointOrder {
		if idx < 0 || idx >= len(waypoints) {
			return nil, &RouteSequenceError{Reason: "waypoint order index out of range"}
		}
		ordered = append(ordered, waypoints[idx])
	}
	ordered = append(ordered, resolveTerminal(terminal, ordered, route))

	if len(route.Legs) < len(ordered) {
		return nil, &RouteSequenceError{Reason: "fewer legs than stops"}
	}

	etas := make(map[types.ID]PassengerETA, len(stops))
	pickupSeq := make(map[types.ID]int, len(stops))
	dropoffSeq := make(map[types.ID]int, len(stops))

	at := departure
	for i, stop := range ordered {
		at = at.Add(route.Legs[i].Duration)
		eta := etas[stop.PassengerID]
		switch stop.Kind {
		case trip.StopPickup:
			eta.Pickup = at
			pickupSeq[stop.PassengerID] = i
		case trip.StopDropoff:
			eta.Dropoff = at
			dropoffSeq[stop.PassengerID] = i
		}
		etas[stop.PassengerID] = eta
	}

	for id, eta := range etas {
		if eta.Pickup.IsZero() || eta.Dropoff.IsZero() {
			continue
		}
		if dropoffSeq[id] < pickupSeq[id] {
			return etas, &RouteSequenceError{PassengerID: id, Reason: "pickup sequenced after dropoff"}
		}
		if !eta.Dropoff.After(eta.Pickup) {
			return etas, &RouteSequenceError{PassengerID: id, Reason: "dropoff does not follow pickup"}
		}
	}
	return etas, nil
}

// resolveTerminal decides what the run actually ends on: the requested
// terminal stop when the route's final leg lands on it; else the last
// optimized waypoint when that is already a dropoff (the optimizer absorbed
// the terminal); else the requested stop as a synthesized endpoint.
func resolveTerminal(terminal RouteStop, ordered []RouteStop, route Route) RouteStop {
	if len(route.Legs) > 0 {
		end := route.Legs[len(route.Legs)-1].End
		if geo.HaversineMeters(end, terminal.Point) <= destinationMatchMeters {
			return terminal
		}
	}
	if len(ordered) > 0 && ordered[len(ordered)-1].Kind == trip.StopDropoff {
		last := ordered[len(ordered)-1]
		return RouteStop{PassengerID: terminal.PassengerID, Kind: terminal.Kind, Point: last.Point}
	}
	return terminal
}

// ApplyMinimumRide floors every complete pair's dropoff at pickup+floor.
// Callers that choose to retry a RouteSequenceError use this, logging the
// correction; it is never applied silently by the parser.
func ApplyMinimumRide(etas map[types.ID]PassengerETA, floor time.Duration) map[types.ID]PassengerETA {
	out := make(map[types.ID]PassengerETA, len(etas))
	for id, eta := range etas {
		if !eta.Pickup.IsZero() && !eta.Dropoff.After(eta.Pickup.Add(floor)) {
			eta.Dropoff = eta.Pickup.Add(floor)
		}
		out[id] = eta
	}
	return out
}
