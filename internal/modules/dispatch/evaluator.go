// README: Cost & feasibility evaluator — the single source of truth for
// whether a driver/rider pairing works, reused by the optimal matcher and the
// greedy chaining/fallback passes.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"ridepool/internal/modules/driver"
	"ridepool/internal/types"
)

// Tuning holds the feasibility knobs. The idle ceilings apply only to chained
// assignments: a driver's first leg may idle freely.
type Tuning struct {
	// Buffer widens both pickup-window edges to absorb estimation error.
	Buffer             time.Duration
	HardIdleCeiling    time.Duration
	RelaxedIdleCeiling time.Duration
	// IdlePenaltyWeight scales the quadratic penalty (in cost seconds per
	// squared minute over the hard ceiling).
	IdlePenaltyWeight float64
}

// DriverState wraps a driver snapshot with the cycle-local scheduling cursor.
// Mutations are never visible outside the cycle; commit is what makes them
// real.
type DriverState struct {
	Driver       driver.Driver
	AvailableAt  time.Time
	Location     types.Point
	CapacityLeft int
	Plans        []*AssignmentPlan
	// claimVersion is the driver row version the next plan's claim expects;
	// chained plans carry consecutive versions.
	claimVersion int
}

// NewDriverState opens a cursor at the driver's current position, no earlier
// than now.
func NewDriverState(d driver.Driver, now time.Time) *DriverState {
	at := d.AvailableFrom
	if now.After(at) {
		at = now
	}
	seats := d.Capacity
	if seats <= 0 {
		seats = 1
	}
	return &DriverState{
		Driver:       d,
		AvailableAt:  at,
		Location:     d.Location,
		CapacityLeft: seats,
		claimVersion: d.StatusVersion,
	}
}

// advance moves the cursor past a newly planned ride.
func (ds *DriverState) advance(plan *AssignmentPlan) {
	plan.DriverVersion = ds.claimVersion
	ds.claimVersion++
	ds.Plans = append(ds.Plans, plan)
	ds.AvailableAt = plan.EstimatedDropoff
	ds.Location = plan.Rider.Dropoff
	ds.CapacityLeft -= plan.Rider.GroupSize
}

// Estimate is the detail record behind a finite cost.
type Estimate struct {
	// Cost is travel seconds plus any idle penalty; the matcher minimizes it.
	Cost             float64
	TravelTime       time.Duration
	ArrivalTime      time.Time
	Idle             time.Duration
	EstimatedPickup  time.Time
	EstimatedDropoff time.Time
}

type Evaluator struct {
	oracle Oracle
	tuning Tuning
}

func NewEvaluator(oracle Oracle, tuning Tuning) *Evaluator {
	return &Evaluator{oracle: oracle, tuning: tuning}
}

// Evaluate scores placing the rider next on the driver's cursor. It returns
// ErrOracleUnavailable, ErrInfeasible or ErrIdleExceeded when the pairing is
// not usable.
func (e *Evaluator) Evaluate(ctx context.Context, ds *DriverState, r Rider) (Estimate, error) {
	tt, err := e.oracle.TravelTime(ctx, ds.Location, r.Pickup, ds.AvailableAt)
	if err != nil {
		return Estimate{}, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	return e.score(ds, r, tt, false)
}

// EvaluateLeg scores with a precomputed travel time (from a batched matrix).
func (e *Evaluator) EvaluateLeg(ds *DriverState, r Rider, travel time.Duration) (Estimate, error) {
	return e.score(ds, r, travel, false)
}

// EvaluateRelaxed ignores the idle ceilings; the fallback pass uses it when
// no driver survives the strict test. The window itself is never relaxed.
func (e *Evaluator) EvaluateRelaxed(ctx context.Context, ds *DriverState, r Rider) (Estimate, error) {
	tt, err := e.oracle.TravelTime(ctx, ds.Location, r.Pickup, ds.AvailableAt)
	if err != nil {
		return Estimate{}, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	return e.score(ds, r, tt, true)
}

func (e *Evaluator) score(ds *DriverState, r Rider, travel time.Duration, relaxed bool) (Estimate, error) {
	arrival := ds.AvailableAt.Add(travel)
	latest := r.WindowEnd.Add(e.tuning.Buffer)
	if arrival.After(latest) {
		return Estimate{}, ErrInfeasible
	}

	// Latest moment the driver may depart and still arrive at the buffered
	// window opening; everything before that is idle time.
	mustLeaveBy := r.WindowStart.Add(-e.tuning.Buffer).Add(-travel)
	if mustLeaveBy.Before(ds.AvailableAt) {
		mustLeaveBy = ds.AvailableAt
	}
	idle := mustLeaveBy.Sub(ds.AvailableAt)

	cost := travel.Seconds()
	if !relaxed && len(ds.Plans) > 0 && idle > e.tuning.HardIdleCeiling {
		if idle > e.tuning.RelaxedIdleCeiling {
			return Estimate{}, ErrIdleExceeded
		}
		over := (idle - e.tuning.HardIdleCeiling).Minutes()
		cost += e.tuning.IdlePenaltyWeight * over * over
	}

	pickup := arrival
	if earliest := r.WindowStart.Add(e.tuning.Buffer); pickup.Before(earliest) {
		pickup = earliest
	}

	return Estimate{
		Cost:             cost,
		TravelTime:       travel,
		ArrivalTime:      arrival,
		Idle:             idle,
		EstimatedPickup:  pickup,
		EstimatedDropoff: pickup.Add(r.RideDuration),
	}, nil
}
