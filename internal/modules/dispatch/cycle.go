// README: Dispatch cycle orchestration: snapshot → carpool → schedule →
// route ETAs → commit. Single-threaded over cycle-local state; the store's
// conditional updates are the only serialization point.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ridepool/internal/config"
	"ridepool/internal/modules/driver"
	"ridepool/internal/modules/passenger"
	"ridepool/internal/modules/trip"
	"ridepool/internal/observability"
	"ridepool/internal/types"
)

// DriverSource and PassengerSource provide the availability snapshots a
// cycle plans over.
type DriverSource interface {
	ListAvailable(ctx context.Context) ([]driver.Driver, error)
}

type PassengerSource interface {
	ListUnassigned(ctx context.Context, day *time.Time) ([]passenger.Passenger, error)
}

// CandidatePool optionally prefilters large driver fleets to those near the
// cycle's demand centroid.
type CandidatePool interface {
	NearbyDrivers(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error)
}

// EventSink receives post-commit notifications. Best-effort: failures are
// logged, never fail the cycle.
type EventSink interface {
	AssignmentCommitted(ctx context.Context, plan AssignmentPlan, res CommitResult) error
	CycleCompleted(ctx context.Context, rep Report) error
}

// Report is a cycle's outcome: what stuck, what merged, and who could not be
// placed and why.
type Report struct {
	Assigned      int               `json:"assigned"`
	CarpoolGroups int               `json:"carpool_groups"`
	Unassigned    []UnassignedRider `json:"unassigned"`
}

// poolPrefilterThreshold is the fleet size above which the Redis GEO pool is
// consulted instead of evaluating every idle driver.
const poolPrefilterThreshold = 50

type Engine struct {
	log        *slog.Logger
	cfg        config.DispatchConfig
	oracle     Oracle
	drivers    DriverSource
	passengers PassengerSource
	committer  Committer
	detector   *Detector
	scheduler  *Scheduler
	events     EventSink     // optional
	pool       CandidatePool // optional
	enhancer   EnhancerStore // optional
	now        func() time.Time
}

func NewEngine(log *slog.Logger, cfg config.DispatchConfig, oracle Oracle,
	drivers DriverSource, passengers PassengerSource, committer Committer) *Engine {
	eval := NewEvaluator(oracle, Tuning{
		Buffer:             cfg.WindowBuffer,
		HardIdleCeiling:    cfg.HardIdleCeiling,
		RelaxedIdleCeiling: cfg.RelaxedIdleCeiling,
		IdlePenaltyWeight:  cfg.IdlePenaltyWeight,
	})
	return &Engine{
		log:        log,
		cfg:        cfg,
		oracle:     oracle,
		drivers:    drivers,
		passengers: passengers,
		committer:  committer,
		detector: NewDetector(CarpoolConfig{
			PickupRadiusKm: cfg.CarpoolPickupRadiusKm,
			MinOverlap:     cfg.CarpoolMinOverlap,
			MinDirection:   cfg.CarpoolMinDirection,
			MaxGroupSize:   cfg.MaxGroupSize,
		}, log),
		scheduler: NewScheduler(eval, cfg.Strategy, log),
		now:       time.Now,
	}
}

// WithEvents attaches a post-commit event sink.
func (e *Engine) WithEvents(sink EventSink) *Engine { e.events = sink; return e }

// WithCandidatePool attaches the GEO prefilter.
func (e *Engine) WithCandidatePool(pool CandidatePool) *Engine { e.pool = pool; return e }

// WithEnhancerStore attaches the store used by trip enhancement.
func (e *Engine) WithEnhancerStore(store EnhancerStore) *Engine { e.enhancer = store; return e }

// RunDispatchCycle plans and commits one dispatch round. When targetDate is
// non-nil only passengers whose window starts that day are considered.
func (e *Engine) RunDispatchCycle(ctx context.Context, targetDate *time.Time) (Report, error) {
	started := e.now()
	defer func() {
		observability.CyclesTotal.Inc()
		observability.CycleDuration.Observe(e.now().Sub(started).Seconds())
	}()

	var report Report

	fleet, err := e.drivers.ListAvailable(ctx)
	if err != nil {
		return report, err
	}
	waiting, err := e.passengers.ListUnassigned(ctx, targetDate)
	if err != nil {
		return report, err
	}
	if len(waiting) == 0 {
		return report, nil
	}

	// Passengers without a window are excluded up front, with a reason.
	riders := make([]Rider, 0, len(waiting))
	for _, p := range waiting {
		r, err := RiderFromPassenger(p)
		if err != nil {
			e.log.Info("passenger unschedulable", "passenger", p.ID, "reason", ReasonMissingWindow)
			observability.Unschedulable.WithLabelValues(ReasonMissingWindow).Inc()
			report.Unassigned = append(report.Unassigned, UnassignedRider{PassengerID: p.ID, Reason: ReasonMissingWindow})
			continue
		}
		riders = append(riders, r)
	}

	merged, singles := e.detector.Detect(riders)
	report.CarpoolGroups = len(merged)
	observability.CarpoolGroups.Add(float64(len(merged)))

	fleet = e.prefilter(ctx, fleet, riders)
	states := make([]*DriverState, 0, len(fleet))
	for _, d := range fleet {
		states = append(states, NewDriverState(d, started))
	}

	pool := append(merged, singles...)
	sched := e.scheduler.Schedule(ctx, states, pool)
	for _, u := range sched.Unassigned {
		observability.Unschedulable.WithLabelValues(u.Reason).Inc()
	}
	report.Unassigned = append(report.Unassigned, sched.Unassigned...)

	e.refineETAs(ctx, states)

	results := commitAll(ctx, e.committer, sched.Plans, e.log)
	for i, plan := range committedPlans(sched.Plans) {
		report.Assigned += planSize(plan)
		if e.events != nil {
			if err := e.events.AssignmentCommitted(ctx, *plan, results[i]); err != nil {
				e.log.Warn("event publish failed", "err", err)
			}
		}
	}
	observability.RidersAssigned.Add(float64(report.Assigned))

	if e.events != nil {
		if err := e.events.CycleCompleted(ctx, report); err != nil {
			e.log.Warn("event publish failed", "err", err)
		}
	}

	e.log.Info("dispatch cycle complete",
		"assigned", report.Assigned,
		"carpool_groups", report.CarpoolGroups,
		"unassigned", len(report.Unassigned))
	return report, nil
}

// prefilter narrows a large fleet to drivers near the demand centroid using
// the GEO pool. Small fleets are evaluated in full.
func (e *Engine) prefilter(ctx context.Context, fleet []driver.Driver, riders []Rider) []driver.Driver {
	if e.pool == nil || len(fleet) <= poolPrefilterThreshold || len(riders) == 0 {
		return fleet
	}
	var lat, lng float64
	for _, r := range riders {
		lat += r.Pickup.Lat
		lng += r.Pickup.Lng
	}
	centroid := types.Point{Lat: lat / float64(len(riders)), Lng: lng / float64(len(riders))}

	ids, err := e.pool.NearbyDrivers(ctx, centroid, 4*e.cfg.CarpoolPickupRadiusKm)
	if err != nil {
		e.log.Warn("candidate pool lookup failed, using full fleet", "err", err)
		return fleet
	}
	nearby := make(map[types.ID]bool, len(ids))
	for _, id := range ids {
		nearby[id] = true
	}
	out := fleet[:0]
	for _, d := range fleet {
		if nearby[d.ID] {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return fleet
	}
	return out
}

// refineETAs replaces merged plans' straight-line estimates with parsed
// multi-stop route ETAs. Only shared runs are refined: a leg walk over a
// chained schedule cannot model the idle wait before a later rider's window,
// so applying it there would pull committed pickups ahead of the window.
func (e *Engine) refineETAs(ctx context.Context, states []*DriverState) {
	for _, ds := range states {
		origin := ds.Driver.Location
		for _, plan := range ds.Plans {
			if plan.Rider.Merged() {
				e.refineSharedPlan(ctx, ds.Driver.ID, origin, plan)
			}
			origin = plan.Rider.Dropoff
		}
	}
}

func (e *Engine) refineSharedPlan(ctx context.Context, driverID types.ID, origin types.Point, plan *AssignmentPlan) {
	stops := planStops(plan)
	departure := plan.EstimatedPickup.Add(-plan.TravelToPickup)
	points := make([]types.Point, 0, len(stops)-1)
	for _, s := range stops[:len(stops)-1] {
		points = append(points, s.Point)
	}
	dest := stops[len(stops)-1].Point

	route, err := e.oracle.OptimizedRoute(ctx, origin, points, dest, departure)
	if err != nil {
		e.log.Warn("route optimization unavailable, keeping chained estimates",
			"driver", driverID, "err", err)
		return
	}

	etas, err := ParseRoute(departureOrNow(departure, e.now), stops, route)
	var seqErr *RouteSequenceError
	if errors.As(err, &seqErr) {
		e.log.Warn("route sequence error, retrying with minimum ride floor",
			"driver", driverID, "passenger", seqErr.PassengerID, "reason", seqErr.Reason)
		etas = ApplyMinimumRide(etas, e.cfg.MinRideDuration)
	} else if err != nil {
		e.log.Warn("route parse failed, keeping chained estimates",
			"driver", driverID, "err", err)
		return
	}

	applyETAs(plan, etas)
}

// planStops lays a merged plan out as route stops: member pickups, then
// member dropoffs.
func planStops(plan *AssignmentPlan) []RouteStop {
	stops := make([]RouteStop, 0, 2*len(plan.Rider.Members))
	for _, m := range plan.Rider.Members {
		stops = append(stops, RouteStop{PassengerID: m.ID, Kind: trip.StopPickup, Point: m.Pickup})
	}
	for _, m := range plan.Rider.Members {
		stops = append(stops, RouteStop{PassengerID: m.ID, Kind: trip.StopDropoff, Point: m.Dropoff})
	}
	return stops
}

// applyETAs copies parsed per-member ETAs onto a merged plan.
func applyETAs(plan *AssignmentPlan, etas map[types.ID]PassengerETA) {
	if plan.MemberETAs == nil {
		plan.MemberETAs = make(map[types.ID]PassengerETA, len(plan.Rider.Members))
	}
	for _, m := range plan.Rider.Members {
		if eta, ok := etas[m.ID]; ok && !eta.Pickup.IsZero() && !eta.Dropoff.IsZero() {
			plan.MemberETAs[m.ID] = eta
		}
	}
}

func committedPlans(plans []*AssignmentPlan) []*AssignmentPlan {
	out := make([]*AssignmentPlan, 0, len(plans))
	for _, p := range plans {
		if p.Status == PlanCommitted {
			out = append(out, p)
		}
	}
	return out
}

func planSize(p *AssignmentPlan) int {
	if p.Rider.Merged() {
		return len(p.Rider.Members)
	}
	return 1
}

func departureOrNow(departure time.Time, now func() time.Time) time.Time {
	if departure.IsZero() {
		return now()
	}
	return departure
}
