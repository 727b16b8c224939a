// README: Trip enhancement — upgrade an already-committed single-rider
// assignment into a carpool by attaching a compatible unassigned passenger.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"ridepool/internal/modules/geo"
	"ridepool/internal/modules/passenger"
	"ridepool/internal/observability"
	"ridepool/internal/types"
)

// EnhanceSeed is the committed assignment an enhancement starts from, loaded
// with enough context to evaluate candidates without further reads.
type EnhanceSeed struct {
	AssignmentID types.ID
	DriverID     types.ID
	TripID       *types.ID
	Passenger    passenger.Passenger
	SeatsLeft    int
	// Version guards the attach: the store rejects the write when the
	// assignment moved since the seed was read.
	Version int
}

// AttachRiderCommand joins Candidate onto the seed's assignment, conditional
// on the seed's version. The store returns ErrRaceCondition when either the
// assignment or the candidate was claimed in the meantime.
type AttachRiderCommand struct {
	Seed             EnhanceSeed
	Candidate        passenger.Passenger
	EstimatedPickup  time.Time
	EstimatedDropoff time.Time
}

// EnhancerStore is the persistence surface trip enhancement needs.
type EnhancerStore interface {
	EnhanceSeed(ctx context.Context, assignmentID types.ID) (EnhanceSeed, error)
	AttachRider(ctx context.Context, cmd AttachRiderCommand) (types.ID, error)
}

// enhanceCandidate pairs a passenger with its measured detour so candidates
// can be tried cheapest-first.
type enhanceCandidate struct {
	p      passenger.Passenger
	detour time.Duration
	pickup time.Time
	drop   time.Time
}

// FindAndEnhanceTrip tries to attach one unassigned passenger to the given
// assignment. Candidates are filtered on seats, window overlap, path
// proximity and direction, then ranked by the detour they add; the first
// attach that survives the store's version check wins. Losing a race moves
// on to the next candidate rather than failing the call.
func (e *Engine) FindAndEnhanceTrip(ctx context.Context, assignmentID types.ID) (types.ID, error) {
	if e.enhancer == nil {
		return "", fmt.Errorf("trip enhancement not configured")
	}

	seed, err := e.enhancer.EnhanceSeed(ctx, assignmentID)
	if err != nil {
		return "", fmt.Errorf("load enhance seed: %w", err)
	}
	if seed.SeatsLeft <= 0 {
		return "", fmt.Errorf("assignment %s: %w: no seats left", assignmentID, ErrInfeasible)
	}

	day := dayOf(seed.Passenger)
	unassigned, err := e.passengers.ListUnassigned(ctx, day)
	if err != nil {
		return "", fmt.Errorf("list candidates: %w", err)
	}

	candidates, err := e.rankEnhanceCandidates(ctx, seed, unassigned)
	if err != nil {
		return "", err
	}
	if len(candidates) == 0 {
		return "", fmt.Errorf("assignment %s: %w: no compatible rider", assignmentID, ErrInfeasible)
	}

	for _, c := range candidates {
		id, err := e.enhancer.AttachRider(ctx, AttachRiderCommand{
			Seed:             seed,
			Candidate:        c.p,
			EstimatedPickup:  c.pickup,
			EstimatedDropoff: c.drop,
		})
		if err != nil {
			if errors.Is(err, ErrRaceCondition) {
				e.log.Info("enhance candidate raced, trying next",
					slog.String("assignment", string(assignmentID)),
					slog.String("candidate", string(c.p.ID)))
				continue
			}
			return "", fmt.Errorf("attach rider: %w", err)
		}
		e.log.Info("trip enhanced",
			slog.String("assignment", string(assignmentID)),
			slog.String("candidate", string(c.p.ID)),
			slog.Duration("detour", c.detour))
		observability.CarpoolGroups.Inc()
		return id, nil
	}
	return "", fmt.Errorf("assignment %s: %w: all candidates raced away", assignmentID, ErrRaceCondition)
}

// rankEnhanceCandidates filters and orders candidates by added detour. The
// detour for a candidate is the optimized four-stop route's in-vehicle time
// minus the seed rider's direct ride, and must stay under the configured
// limit.
func (e *Engine) rankEnhanceCandidates(ctx context.Context, seed EnhanceSeed, unassigned []passenger.Passenger) ([]enhanceCandidate, error) {
	sp := seed.Passenger
	path := []types.Point{sp.Pickup, sp.Dropoff}

	baseline, err := e.oracle.TravelTime(ctx, sp.Pickup, sp.Dropoff, e.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}

	var out []enhanceCandidate
	for _, cand := range unassigned {
		if cand.ID == sp.ID || cand.AssignedDriver != nil {
			continue
		}
		if cand.GroupSize > seed.SeatsLeft {
			continue
		}
		if !cand.HasWindow() || !sp.HasWindow() {
			continue
		}
		if overlapOf(sp, cand) < e.cfg.CarpoolMinOverlap {
			continue
		}
		if !geo.NearPath(cand.Pickup, path, e.cfg.CarpoolPickupRadiusKm) {
			continue
		}
		if geo.DirectionSimilarity(sp.Pickup, sp.Dropoff, cand.Pickup, cand.Dropoff) < e.cfg.CarpoolMinDirection {
			continue
		}

		route, err := e.oracle.OptimizedRoute(ctx, sp.Pickup,
			[]types.Point{cand.Pickup, sp.Dropoff}, cand.Dropoff, e.now())
		if err != nil {
			e.log.Warn("enhance route lookup failed, skipping candidate",
				slog.String("candidate", string(cand.ID)), slog.Any("error", err))
			continue
		}
		total := routeDuration(route)
		detour := total - baseline
		if detour < 0 {
			detour = 0
		}
		if detour > e.cfg.DetourLimit {
			continue
		}

		pickup := *cand.WindowStart
		if earliest := e.now(); earliest.After(pickup) {
			pickup = earliest
		}
		// A candidate whose window has already closed is stale, not a match.
		if pickup.After(cand.WindowEnd.Add(e.cfg.WindowBuffer)) {
			continue
		}
		out = append(out, enhanceCandidate{
			p:      cand,
			detour: detour,
			pickup: pickup,
			drop:   pickup.Add(cand.RideDuration + detour),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].detour < out[j].detour })
	return out, nil
}

func routeDuration(r Route) time.Duration {
	var total time.Duration
	for _, leg := range r.Legs {
		total += leg.Duration
	}
	return total
}

// overlapOf is windowOverlap over raw passengers, before any Rider wrapping.
func overlapOf(a, b passenger.Passenger) time.Duration {
	start := *a.WindowStart
	if b.WindowStart.After(start) {
		start = *b.WindowStart
	}
	end := *a.WindowEnd
	if b.WindowEnd.Before(end) {
		end = *b.WindowEnd
	}
	return end.Sub(start)
}

func dayOf(p passenger.Passenger) *time.Time {
	if p.WindowStart == nil {
		return nil
	}
	d := p.WindowStart.Truncate(24 * time.Hour)
	return &d
}
