// README: Driver schedule builder — primary pass (optimal match or greedy
// chaining) plus the constraint-relaxing fallback pass.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"ridepool/internal/config"
	"ridepool/internal/observability"
	"ridepool/internal/types"
)

type PlanStatus string

const (
	PlanPending   PlanStatus = "pending"
	PlanCommitted PlanStatus = "committed"
)

// AssignmentPlan is one planned driver/rider leg, `pending` until the commit
// layer persists it.
type AssignmentPlan struct {
	DriverID types.ID
	// DriverVersion conditions the commit-time driver claim: a plan built
	// from a stale driver snapshot loses to whoever moved the row first.
	DriverVersion    int
	Rider            Rider
	TravelToPickup   time.Duration
	Idle             time.Duration
	EstimatedPickup  time.Time
	EstimatedDropoff time.Time
	// MemberETAs carries parsed per-member ETAs for merged riders once a
	// multi-stop route has been optimized.
	MemberETAs map[types.ID]PassengerETA
	Status     PlanStatus
}

// UnassignedRider is a rider the cycle could not place, with the stated
// cause.
type UnassignedRider struct {
	PassengerID types.ID `json:"passenger_id"`
	Reason      string   `json:"reason"`
}

// ScheduleResult is the scheduler's terminal state: every rider is either
// planned or listed with a reason.
type ScheduleResult struct {
	Plans      []*AssignmentPlan
	Unassigned []UnassignedRider
}

type Scheduler struct {
	eval     *Evaluator
	strategy config.Strategy
	log      *slog.Logger
}

func NewScheduler(eval *Evaluator, strategy config.Strategy, log *slog.Logger) *Scheduler {
	return &Scheduler{eval: eval, strategy: strategy, log: log}
}

// Schedule plans every rider onto the driver cursors. States are mutated in
// place; they are cycle-local so this is safe.
func (s *Scheduler) Schedule(ctx context.Context, states []*DriverState, riders []Rider) ScheduleResult {
	sort.Slice(riders, func(i, j int) bool {
		return riders[i].WindowStart.Before(riders[j].WindowStart)
	})

	var result ScheduleResult
	remaining := riders

	if s.strategy == config.StrategyOptimalMatch {
		remaining = s.optimalPass(ctx, states, remaining, &result)
	}

	leftovers := s.chainPass(ctx, states, remaining, &result)
	s.fallbackPass(ctx, states, leftovers, &result)
	return result
}

// optimalPass solves the independent first legs as a minimum-cost bipartite
// matching over a batched cost matrix, then hands unmatched riders to the
// chaining pass. It only models one leg per driver; chaining supersedes it
// for everything after that.
func (s *Scheduler) optimalPass(ctx context.Context, states []*DriverState, riders []Rider, result *ScheduleResult) (unmatched []Rider) {
	if len(states) == 0 || len(riders) == 0 {
		return riders
	}

	origins := make([]types.Point, len(states))
	departure := time.Time{}
	for i, ds := range states {
		origins[i] = ds.Location
		if departure.IsZero() || ds.AvailableAt.Before(departure) {
			departure = ds.AvailableAt
		}
	}
	dests := make([]types.Point, len(riders))
	for i, r := range riders {
		dests[i] = r.Pickup
	}

	legs, err := s.eval.oracle.TravelTimeMatrix(ctx, origins, dests, departure)
	if err != nil {
		// Degraded mode: fall back to per-pair evaluation via chaining.
		observability.OracleErrors.Inc()
		s.log.Warn("travel-time matrix unavailable, falling back to chaining", "err", err)
		return riders
	}

	cost := make([][]float64, len(states))
	estimates := make([][]Estimate, len(states))
	for i, ds := range states {
		cost[i] = make([]float64, len(riders))
		estimates[i] = make([]Estimate, len(riders))
		for j, r := range riders {
			entry := legs[i][j]
			if entry == nil {
				cost[i][j] = infeasibleCost
				continue
			}
			est, err := s.eval.EvaluateLeg(ds, r, entry.Duration)
			if err != nil {
				cost[i][j] = infeasibleCost
				continue
			}
			cost[i][j] = est.Cost
			estimates[i][j] = est
		}
	}

	match := solveAssignment(cost)
	matched := make(map[int]bool, len(riders))
	for i, j := range match {
		if j < 0 {
			continue
		}
		s.apply(states[i], riders[j], estimates[i][j])
		result.Plans = append(result.Plans, states[i].Plans[len(states[i].Plans)-1])
		matched[j] = true
	}

	for j, r := range riders {
		if !matched[j] {
			unmatched = append(unmatched, r)
		}
	}
	return unmatched
}

// chainPass places each rider on the feasible driver with the smallest idle
// gap (tie-break: earlier resulting pickup), opening unused drivers through
// the same test.
func (s *Scheduler) chainPass(ctx context.Context, states []*DriverState, riders []Rider, result *ScheduleResult) (leftovers []Rider) {
	for _, r := range riders {
		best, est, ok := s.pickTightest(ctx, states, r)
		if !ok {
			leftovers = append(leftovers, r)
			continue
		}
		s.apply(best, r, est)
		result.Plans = append(result.Plans, best.Plans[len(best.Plans)-1])
	}
	return leftovers
}

func (s *Scheduler) pickTightest(ctx context.Context, states []*DriverState, r Rider) (*DriverState, Estimate, bool) {
	var best *DriverState
	var bestEst Estimate
	for _, ds := range states {
		if ds.CapacityLeft < r.GroupSize {
			continue
		}
		est, err := s.eval.Evaluate(ctx, ds, r)
		if err != nil {
			if errors.Is(err, ErrOracleUnavailable) {
				observability.OracleErrors.Inc()
				s.log.Warn("oracle lookup failed, pair skipped",
					"driver", ds.Driver.ID, "rider", r.ID, "err", err)
			}
			continue
		}
		if best == nil ||
			est.Idle < bestEst.Idle ||
			(est.Idle == bestEst.Idle && est.EstimatedPickup.Before(bestEst.EstimatedPickup)) {
			best, bestEst = ds, est
		}
	}
	return best, bestEst, best != nil
}

// fallbackPass relaxes the idle ceilings for riders the primary pass could
// not place: drivers are ranked by fewest existing assignments, then smallest
// idle gap, and as a last resort tried in earliest-free order. Riders that
// still fail are reported with an explicit reason, never dropped.
func (s *Scheduler) fallbackPass(ctx context.Context, states []*DriverState, riders []Rider, result *ScheduleResult) {
	for _, r := range riders {
		type candidate struct {
			ds  *DriverState
			est Estimate
		}
		var cands []candidate
		for _, ds := range states {
			if ds.CapacityLeft < r.GroupSize {
				continue
			}
			est, err := s.eval.EvaluateRelaxed(ctx, ds, r)
			if err != nil {
				continue
			}
			cands = append(cands, candidate{ds: ds, est: est})
		}

		if len(cands) == 0 {
			// With ceilings relaxed the only remaining rejections are a
			// missed window or an oracle failure; placing the rider anyway
			// would break the window invariant, so report instead.
			s.log.Info("rider unschedulable", "rider", r.ID, "reason", ReasonNoFeasibleDriver)
			result.Unassigned = append(result.Unassigned, unassign(r, ReasonNoFeasibleDriver)...)
			continue
		}

		sort.Slice(cands, func(i, j int) bool {
			if len(cands[i].ds.Plans) != len(cands[j].ds.Plans) {
				return len(cands[i].ds.Plans) < len(cands[j].ds.Plans)
			}
			if cands[i].est.Idle != cands[j].est.Idle {
				return cands[i].est.Idle < cands[j].est.Idle
			}
			// Last resort ordering: whichever driver frees up earliest.
			return cands[i].ds.AvailableAt.Before(cands[j].ds.AvailableAt)
		})
		s.apply(cands[0].ds, r, cands[0].est)
		result.Plans = append(result.Plans, cands[0].ds.Plans[len(cands[0].ds.Plans)-1])
	}
}

func (s *Scheduler) apply(ds *DriverState, r Rider, est Estimate) {
	plan := &AssignmentPlan{
		DriverID:         ds.Driver.ID,
		Rider:            r,
		TravelToPickup:   est.TravelTime,
		Idle:             est.Idle,
		EstimatedPickup:  est.EstimatedPickup,
		EstimatedDropoff: est.EstimatedDropoff,
		Status:           PlanPending,
	}
	ds.advance(plan)
}

// unassign expands a merged rider back into per-member report entries.
func unassign(r Rider, reason string) []UnassignedRider {
	if !r.Merged() {
		return []UnassignedRider{{PassengerID: r.ID, Reason: reason}}
	}
	out := make([]UnassignedRider, 0, len(r.Members))
	for _, m := range r.Members {
		out = append(out, UnassignedRider{PassengerID: m.ID, Reason: reason})
	}
	return out
}
