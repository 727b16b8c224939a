// README: In-memory test doubles shared by the dispatch package tests.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"ridepool/internal/modules/driver"
	"ridepool/internal/modules/geo"
	"ridepool/internal/modules/passenger"
	"ridepool/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// gridOracle derives travel times from straight-line distance at 1 km/min,
// so test geometry translates directly into minutes.
type gridOracle struct {
	matrixErr error
	routeErr  error
	// waypointOrder overrides the identity order returned by OptimizedRoute.
	waypointOrder []int
}

func (o *gridOracle) travel(a, b types.Point) time.Duration {
	return time.Duration(geo.HaversineKm(a, b) * float64(time.Minute))
}

func (o *gridOracle) TravelTime(_ context.Context, origin, dest types.Point, _ time.Time) (time.Duration, error) {
	return o.travel(origin, dest), nil
}

func (o *gridOracle) TravelTimeMatrix(_ context.Context, origins, dests []types.Point, _ time.Time) ([][]*Leg, error) {
	if o.matrixErr != nil {
		return nil, o.matrixErr
	}
	out := make([][]*Leg, len(origins))
	for i, from := range origins {
		out[i] = make([]*Leg, len(dests))
		for j, to := range dests {
			out[i][j] = &Leg{Duration: o.travel(from, to), End: to}
		}
	}
	return out, nil
}

func (o *gridOracle) OptimizedRoute(_ context.Context, origin types.Point, waypoints []types.Point, dest types.Point, _ time.Time) (Route, error) {
	if o.routeErr != nil {
		return Route{}, o.routeErr
	}
	order := o.waypointOrder
	if order == nil {
		order = make([]int, len(waypoints))
		for i := range order {
			order[i] = i
		}
	}
	route := Route{WaypointOrder: order}
	at := origin
	for _, idx := range order {
		route.Legs = append(route.Legs, Leg{Duration: o.travel(at, waypoints[idx]), End: waypoints[idx]})
		at = waypoints[idx]
	}
	route.Legs = append(route.Legs, Leg{Duration: o.travel(at, dest), End: dest})
	return route, nil
}

// fixedOracle answers every travel-time query with the same duration.
type fixedOracle struct {
	d time.Duration
}

func (f fixedOracle) TravelTime(context.Context, types.Point, types.Point, time.Time) (time.Duration, error) {
	return f.d, nil
}

func (f fixedOracle) TravelTimeMatrix(_ context.Context, origins, dests []types.Point, _ time.Time) ([][]*Leg, error) {
	out := make([][]*Leg, len(origins))
	for i := range origins {
		out[i] = make([]*Leg, len(dests))
		for j, to := range dests {
			out[i][j] = &Leg{Duration: f.d, End: to}
		}
	}
	return out, nil
}

func (f fixedOracle) OptimizedRoute(_ context.Context, _ types.Point, waypoints []types.Point, dest types.Point, _ time.Time) (Route, error) {
	order := make([]int, len(waypoints))
	legs := make([]Leg, 0, len(waypoints)+1)
	for i, wp := range waypoints {
		order[i] = i
		legs = append(legs, Leg{Duration: f.d, End: wp})
	}
	legs = append(legs, Leg{Duration: f.d, End: dest})
	return Route{WaypointOrder: order, Legs: legs}, nil
}

type fakeDrivers struct {
	list []driver.Driver
}

func (f *fakeDrivers) ListAvailable(context.Context) ([]driver.Driver, error) {
	out := make([]driver.Driver, len(f.list))
	copy(out, f.list)
	return out, nil
}

type fakePassengers struct {
	list []passenger.Passenger
}

func (f *fakePassengers) ListUnassigned(_ context.Context, day *time.Time) ([]passenger.Passenger, error) {
	if day == nil {
		out := make([]passenger.Passenger, len(f.list))
		copy(out, f.list)
		return out, nil
	}
	var out []passenger.Passenger
	for _, p := range f.list {
		if p.WindowStart != nil && sameDay(*p.WindowStart, *day) {
			out = append(out, p)
		}
	}
	return out, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// memCommitter mimics the store's conditional claims: each passenger can be
// won once, each driver claim must carry the row's current version, and a
// lost claim fails the whole plan.
type memCommitter struct {
	mu sync.Mutex
	// passengers maps passenger ID to the winning driver.
	passengers map[types.ID]types.ID
	// driverVersions holds each driver row's current version; a claim
	// conditioned on an older version loses.
	driverVersions map[types.ID]int
	committed      []AssignmentPlan
	// failFor forces a race error for a specific rider, simulating a
	// concurrent writer that got there first.
	failFor map[types.ID]bool
}

func newMemCommitter() *memCommitter {
	return &memCommitter{
		passengers:     make(map[types.ID]types.ID),
		driverVersions: make(map[types.ID]int),
		failFor:        make(map[types.ID]bool),
	}
}

func (m *memCommitter) Commit(_ context.Context, plan AssignmentPlan) (CommitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failFor[plan.Rider.ID] {
		return CommitResult{}, fmt.Errorf("forced: %w", ErrRaceCondition)
	}

	members := []types.ID{plan.Rider.ID}
	if plan.Rider.Merged() {
		members = members[:0]
		for _, p := range plan.Rider.Members {
			members = append(members, p.ID)
		}
	}
	for _, id := range members {
		if _, taken := m.passengers[id]; taken {
			return CommitResult{}, fmt.Errorf("passenger %s taken: %w", id, ErrRaceCondition)
		}
	}
	if v := m.driverVersions[plan.DriverID]; v != plan.DriverVersion {
		return CommitResult{}, fmt.Errorf("driver %s moved to version %d: %w",
			plan.DriverID, v, ErrRaceCondition)
	}

	var res CommitResult
	for i, id := range members {
		m.passengers[id] = plan.DriverID
		res.AssignmentIDs = append(res.AssignmentIDs, types.ID(fmt.Sprintf("a-%s-%d", id, i)))
	}
	m.driverVersions[plan.DriverID]++
	if plan.Rider.Merged() {
		tid := types.ID("t-" + string(plan.Rider.ID))
		res.TripID = &tid
	}
	m.committed = append(m.committed, plan)
	return res, nil
}

func (m *memCommitter) committedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.committed)
}

var errOracleDown = errors.New("oracle down")
