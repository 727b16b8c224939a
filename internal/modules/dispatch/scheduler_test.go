// README: Scheduler tests: greedy chaining, optimal first legs, fallback
// relaxation, and unassignable reporting.
package dispatch

import (
	"context"
	"testing"
	"time"

	"ridepool/internal/config"
	"ridepool/internal/modules/driver"
	"ridepool/internal/types"
)

func schedulerTuning() Tuning {
	return Tuning{
		HardIdleCeiling:    30 * time.Minute,
		RelaxedIdleCeiling: 90 * time.Minute,
		IdlePenaltyWeight:  10,
	}
}

func namedState(id string, loc types.Point, availableAt time.Time) *DriverState {
	return NewDriverState(driver.Driver{
		ID:             types.ID(id),
		Location:       loc,
		AvailableFrom:  availableAt,
		AvailableUntil: availableAt.Add(10 * time.Hour),
		Capacity:       4,
		Status:         driver.StatusIdle,
	}, availableAt)
}

func TestSchedule_ChainsSequentialRiders(t *testing.T) {
	oracle := &gridOracle{}
	sched := NewScheduler(NewEvaluator(oracle, schedulerTuning()), config.StrategyGreedyChain, testLogger())

	ds := namedState("d1", types.Point{Lat: 25.00, Lng: 121.56}, at(8, 0))

	// Two riders with windows an hour apart; one driver serves both in order.
	r1 := testRider("p1", at(8, 10), at(8, 40), 20*time.Minute)
	r2 := testRider("p2", at(9, 10), at(9, 40), 20*time.Minute)
	r2.Pickup = types.Point{Lat: 25.09, Lng: 121.61}
	r2.Dropoff = types.Point{Lat: 25.12, Lng: 121.63}

	res := sched.Schedule(context.Background(), []*DriverState{ds}, []Rider{r2, r1})
	if len(res.Unassigned) != 0 {
		t.Fatalf("unassigned: %v", res.Unassigned)
	}
	if len(res.Plans) != 2 {
		t.Fatalf("plans = %d, want 2", len(res.Plans))
	}
	// Window order, not input order.
	if res.Plans[0].Rider.ID != "p1" || res.Plans[1].Rider.ID != "p2" {
		t.Fatalf("plan order = %s, %s", res.Plans[0].Rider.ID, res.Plans[1].Rider.ID)
	}
	if res.Plans[1].EstimatedPickup.Before(res.Plans[0].EstimatedDropoff) {
		t.Errorf("chained pickup %v precedes previous dropoff %v",
			res.Plans[1].EstimatedPickup, res.Plans[0].EstimatedDropoff)
	}
}

func TestSchedule_PicksSmallestIdle(t *testing.T) {
	oracle := &gridOracle{}
	sched := NewScheduler(NewEvaluator(oracle, schedulerTuning()), config.StrategyGreedyChain, testLogger())

	rider := testRider("p1", at(9, 0), at(9, 30), 20*time.Minute)
	// near is a couple of minutes from the pickup, far is ~22 minutes out;
	// both arrive in time but far idles less before departing.
	near := namedState("near", types.Point{Lat: 25.02, Lng: 121.56}, at(8, 0))
	far := namedState("far", types.Point{Lat: 24.84, Lng: 121.56}, at(8, 0))

	res := sched.Schedule(context.Background(), []*DriverState{near, far}, []Rider{rider})
	if len(res.Plans) != 1 {
		t.Fatalf("plans = %d, want 1", len(res.Plans))
	}
	if res.Plans[0].DriverID != "far" {
		t.Errorf("assigned %s, want the smaller-idle driver", res.Plans[0].DriverID)
	}
}

func TestSchedule_FallbackRelaxesIdleCeiling(t *testing.T) {
	oracle := &gridOracle{}
	sched := NewScheduler(NewEvaluator(oracle, schedulerTuning()), config.StrategyGreedyChain, testLogger())

	// The only driver already carries a plan, so the 2-hour idle gap exceeds
	// even the relaxed ceiling in the strict pass.
	ds := namedState("d1", types.Point{Lat: 25.00, Lng: 121.56}, at(8, 0))
	ds.Plans = append(ds.Plans, &AssignmentPlan{})

	r := testRider("p1", at(10, 0), at(10, 30), 20*time.Minute)
	res := sched.Schedule(context.Background(), []*DriverState{ds}, []Rider{r})
	if len(res.Unassigned) != 0 {
		t.Fatalf("fallback should have placed the rider: %v", res.Unassigned)
	}
	if len(res.Plans) != 1 {
		t.Fatalf("plans = %d, want 1", len(res.Plans))
	}
	if res.Plans[0].EstimatedPickup.Before(r.WindowStart) {
		t.Errorf("fallback moved the pickup before the window opening")
	}
}

func TestSchedule_ReportsUnassignableRider(t *testing.T) {
	oracle := &gridOracle{}
	sched := NewScheduler(NewEvaluator(oracle, schedulerTuning()), config.StrategyGreedyChain, testLogger())

	ds := namedState("d1", types.Point{Lat: 25.00, Lng: 121.56}, at(9, 0))
	// Window already closed when the driver frees up: infeasible even relaxed.
	r := testRider("p1", at(8, 0), at(8, 30), 20*time.Minute)

	res := sched.Schedule(context.Background(), []*DriverState{ds}, []Rider{r})
	if len(res.Plans) != 0 {
		t.Fatalf("plans = %d, want 0", len(res.Plans))
	}
	if len(res.Unassigned) != 1 {
		t.Fatalf("unassigned = %d, want 1", len(res.Unassigned))
	}
	if res.Unassigned[0].Reason != ReasonNoFeasibleDriver {
		t.Errorf("reason = %q, want %q", res.Unassigned[0].Reason, ReasonNoFeasibleDriver)
	}
}

func TestSchedule_UnassignedMergedRiderExpandsToMembers(t *testing.T) {
	oracle := &gridOracle{}
	sched := NewScheduler(NewEvaluator(oracle, schedulerTuning()), config.StrategyGreedyChain, testLogger())

	a := testRider("a", at(8, 0), at(8, 30), 20*time.Minute)
	b := testRider("b", at(8, 0), at(8, 30), 20*time.Minute)
	group := mergeRiders(a, b)

	// No drivers at all.
	res := sched.Schedule(context.Background(), nil, []Rider{group})
	if len(res.Unassigned) != 2 {
		t.Fatalf("unassigned = %d, want both members", len(res.Unassigned))
	}
	ids := map[types.ID]bool{}
	for _, u := range res.Unassigned {
		ids[u.PassengerID] = true
	}
	if !ids["a"] || !ids["b"] {
		t.Errorf("member ids missing from report: %v", res.Unassigned)
	}
}

func TestSchedule_OptimalMatchBeatsGreedyTotal(t *testing.T) {
	oracle := &gridOracle{}
	tuning := schedulerTuning()

	// Two drivers, two riders laid out so that greedy (rider window order,
	// smallest idle first) takes the crossing pairing while the matrix pass
	// finds the cheaper parallel one.
	d1 := types.Point{Lat: 25.00, Lng: 121.56}
	d2 := types.Point{Lat: 25.30, Lng: 121.56}
	r1 := testRider("r1", at(9, 0), at(9, 40), 20*time.Minute)
	r1.Pickup = types.Point{Lat: 25.02, Lng: 121.56}
	r2 := testRider("r2", at(9, 0), at(9, 40), 20*time.Minute)
	r2.Pickup = types.Point{Lat: 25.28, Lng: 121.56}

	run := func(strategy config.Strategy) float64 {
		sched := NewScheduler(NewEvaluator(oracle, tuning), strategy, testLogger())
		states := []*DriverState{
			namedState("d1", d1, at(8, 30)),
			namedState("d2", d2, at(8, 30)),
		}
		res := sched.Schedule(context.Background(), states, []Rider{r1, r2})
		if len(res.Plans) != 2 {
			t.Fatalf("strategy %s: plans = %d, want 2", strategy, len(res.Plans))
		}
		var total float64
		for _, p := range res.Plans {
			total += p.TravelToPickup.Seconds()
		}
		return total
	}

	optimal := run(config.StrategyOptimalMatch)
	greedy := run(config.StrategyGreedyChain)
	if optimal > greedy {
		t.Errorf("optimal total travel %f exceeds greedy %f", optimal, greedy)
	}
}

func TestSchedule_MatrixFailureFallsBackToChaining(t *testing.T) {
	oracle := &gridOracle{matrixErr: errOracleDown}
	sched := NewScheduler(NewEvaluator(oracle, schedulerTuning()), config.StrategyOptimalMatch, testLogger())

	ds := namedState("d1", types.Point{Lat: 25.00, Lng: 121.56}, at(8, 0))
	r := testRider("p1", at(8, 30), at(9, 0), 20*time.Minute)

	res := sched.Schedule(context.Background(), []*DriverState{ds}, []Rider{r})
	if len(res.Plans) != 1 {
		t.Fatalf("degraded mode should still place the rider, plans = %d", len(res.Plans))
	}
}

func TestSchedule_CapacityExcludesDriver(t *testing.T) {
	oracle := &gridOracle{}
	sched := NewScheduler(NewEvaluator(oracle, schedulerTuning()), config.StrategyGreedyChain, testLogger())

	small := namedState("small", types.Point{Lat: 25.00, Lng: 121.56}, at(8, 0))
	small.CapacityLeft = 1
	big := namedState("big", types.Point{Lat: 24.90, Lng: 121.56}, at(8, 0))

	r := testRider("group", at(9, 0), at(9, 30), 20*time.Minute)
	r.GroupSize = 3

	res := sched.Schedule(context.Background(), []*DriverState{small, big}, []Rider{r})
	if len(res.Plans) != 1 {
		t.Fatalf("plans = %d, want 1", len(res.Plans))
	}
	if res.Plans[0].DriverID != "big" {
		t.Errorf("assigned %s, want the driver with enough seats", res.Plans[0].DriverID)
	}
}
