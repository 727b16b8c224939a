// README: Assignment service — the transactional commit layer plus the
// pickup/completion lifecycle. One transaction per plan: claim the
// passenger(s), claim the driver, write the assignment row(s), all or
// nothing.
package assignment

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ridepool/internal/modules/dispatch"
	"ridepool/internal/modules/driver"
	"ridepool/internal/modules/passenger"
	"ridepool/internal/modules/trip"
	"ridepool/internal/types"
)

var (
	ErrInvalidState = errors.New("invalid state transition")
	ErrConflict     = errors.New("assignment state conflict")
)

type Service struct {
	db         *pgxpool.Pool
	store      *Store
	passengers *passenger.Store
	drivers    *driver.Store
	trips      *trip.Store
}

func NewService(db *pgxpool.Pool, store *Store, passengers *passenger.Store,
	drivers *driver.Store, trips *trip.Store) *Service {
	return &Service{
		db:         db,
		store:      store,
		passengers: passengers,
		drivers:    drivers,
		trips:      trips,
	}
}

type PickupCommand struct {
	AssignmentID types.ID
	// ActualPickup is when the rider boarded; zero means now.
	ActualPickup time.Time
}

type CompleteCommand struct {
	AssignmentID types.ID
	// At is where the drop-off happened; the driver is released there once
	// no active assignment remains.
	At            types.Point
	ActualDropoff time.Time
}

type CompleteTripCommand struct {
	TripID        types.ID
	At            types.Point
	ActualDropoff time.Time
}

type CancelCommand struct {
	AssignmentID types.ID
}

// Commit persists one plan. Every conditional update that affects zero rows
// rolls the whole transaction back and surfaces ErrRaceCondition, so a plan
// beaten to any of its rows leaves no partial state behind.
func (s *Service) Commit(ctx context.Context, plan dispatch.AssignmentPlan) (dispatch.CommitResult, error) {
	members := planMembers(plan)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return dispatch.CommitResult{}, err
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	assignments := make([]*Assignment, 0, len(members))
	for _, m := range members {
		pickup, dropoff := memberEstimates(plan, m.ID)
		assignments = append(assignments, &Assignment{
			ID:               newID(),
			DriverID:         plan.DriverID,
			PassengerID:      m.ID,
			Status:           StatusConfirmed,
			EstimatedPickup:  pickup,
			EstimatedDropoff: dropoff,
			CreatedAt:        now,
		})
	}

	for _, m := range members {
		ok, err := s.store.ClaimPassenger(ctx, tx, m.ID, plan.DriverID)
		if err != nil {
			return dispatch.CommitResult{}, err
		}
		if !ok {
			return dispatch.CommitResult{}, fmt.Errorf("passenger %s: %w", m.ID, dispatch.ErrRaceCondition)
		}
	}

	ok, err := s.store.ClaimDriver(ctx, tx, plan.DriverID, assignments[0].ID, plan.DriverVersion)
	if err != nil {
		return dispatch.CommitResult{}, err
	}
	if !ok {
		return dispatch.CommitResult{}, fmt.Errorf("driver %s: %w", plan.DriverID, dispatch.ErrRaceCondition)
	}

	var tripID *types.ID
	if plan.Rider.Merged() {
		t := &trip.Trip{
			ID:        newID(),
			DriverID:  plan.DriverID,
			Stops:     tripStops(plan, members),
			CreatedAt: now,
		}
		if err := s.trips.Create(ctx, tx, t); err != nil {
			return dispatch.CommitResult{}, err
		}
		if err := s.store.SetDriverTrip(ctx, tx, plan.DriverID, t.ID); err != nil {
			return dispatch.CommitResult{}, err
		}
		tripID = &t.ID
		for _, a := range assignments {
			a.TripID = tripID
		}
	}

	ids := make([]types.ID, 0, len(assignments))
	for _, a := range assignments {
		if err := s.store.Create(ctx, tx, a); err != nil {
			return dispatch.CommitResult{}, err
		}
		ids = append(ids, a.ID)
	}

	if err := tx.Commit(ctx); err != nil {
		return dispatch.CommitResult{}, err
	}
	return dispatch.CommitResult{AssignmentIDs: ids, TripID: tripID}, nil
}

// ConfirmPickup moves the assignment to in-progress. The driver flips to
// en-route-dropoff on the first pickup; later carpool pickups find the driver
// already there, which is fine.
func (s *Service) ConfirmPickup(ctx context.Context, cmd PickupCommand) error {
	a, err := s.store.Get(ctx, cmd.AssignmentID)
	if err != nil {
		return err
	}
	if !CanTransition(a.Status, StatusInProgress) {
		return ErrInvalidState
	}
	ok, err := s.store.UpdateStatus(ctx, a.ID, a.Status, StatusInProgress, a.StatusVersion, orNow(cmd.ActualPickup))
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	_, _ = s.drivers.Transition(ctx, a.DriverID, driver.StatusEnRoutePickup, driver.StatusEnRouteDropoff)
	return nil
}

// CompleteAssignment finishes one passenger's ride. The driver passes through
// post-dropoff and back to idle only when no other active assignment remains
// (a carpool co-rider still on board keeps the driver en route).
func (s *Service) CompleteAssignment(ctx context.Context, cmd CompleteCommand) error {
	a, err := s.store.Get(ctx, cmd.AssignmentID)
	if err != nil {
		return err
	}
	if !CanTransition(a.Status, StatusCompleted) {
		return ErrInvalidState
	}
	ok, err := s.store.UpdateStatus(ctx, a.ID, a.Status, StatusCompleted, a.StatusVersion, orNow(cmd.ActualDropoff))
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	if _, err := s.passengers.MarkDroppedOff(ctx, a.PassengerID); err != nil {
		return err
	}

	remaining, err := s.store.ListActiveByDriver(ctx, a.DriverID)
	if err != nil {
		return err
	}
	if len(remaining) > 0 {
		return nil
	}
	_, _ = s.drivers.Transition(ctx, a.DriverID, driver.StatusEnRouteDropoff, driver.StatusPostDropoff)
	if _, err := s.drivers.Release(ctx, a.DriverID, cmd.At); err != nil {
		return err
	}
	return nil
}

// CancelAssignment voids a confirmed assignment, returning the passenger to
// the unassigned pool. The driver goes back to idle at its current position
// when nothing else is booked on it.
func (s *Service) CancelAssignment(ctx context.Context, cmd CancelCommand) error {
	a, err := s.store.Get(ctx, cmd.AssignmentID)
	if err != nil {
		return err
	}
	if !CanTransition(a.Status, StatusCancelled) {
		return ErrInvalidState
	}
	ok, err := s.store.UpdateStatus(ctx, a.ID, a.Status, StatusCancelled, a.StatusVersion, time.Now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	if _, err := s.passengers.Release(ctx, a.PassengerID); err != nil {
		return err
	}

	remaining, err := s.store.ListActiveByDriver(ctx, a.DriverID)
	if err != nil {
		return err
	}
	if len(remaining) > 0 {
		return nil
	}
	d, err := s.drivers.Get(ctx, a.DriverID)
	if err != nil {
		return err
	}
	if _, err := s.drivers.Release(ctx, a.DriverID, d.Location); err != nil {
		return err
	}
	return nil
}

// CompleteTrip finishes every active assignment on a shared trip and releases
// the driver at the trip's end. Returns the driver so the caller can kick a
// follow-up dispatch round for the freed seat.
func (s *Service) CompleteTrip(ctx context.Context, cmd CompleteTripCommand) (types.ID, error) {
	list, err := s.store.ListByTrip(ctx, cmd.TripID)
	if err != nil {
		return "", err
	}
	if len(list) == 0 {
		return "", ErrNotFound
	}

	driverID := list[0].DriverID
	for _, a := range list {
		if a.Status == StatusCompleted || a.Status == StatusCancelled {
			continue
		}
		if err := s.CompleteAssignment(ctx, CompleteCommand{
			AssignmentID:  a.ID,
			At:            cmd.At,
			ActualDropoff: cmd.ActualDropoff,
		}); err != nil {
			return "", fmt.Errorf("assignment %s: %w", a.ID, err)
		}
	}
	return driverID, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Assignment, error) {
	return s.store.Get(ctx, id)
}

// EnhanceSeed loads the context trip enhancement needs: the assignment, its
// passenger, and the driver's remaining seats.
func (s *Service) EnhanceSeed(ctx context.Context, assignmentID types.ID) (dispatch.EnhanceSeed, error) {
	a, err := s.store.Get(ctx, assignmentID)
	if err != nil {
		return dispatch.EnhanceSeed{}, err
	}
	if a.Status != StatusConfirmed {
		return dispatch.EnhanceSeed{}, fmt.Errorf("assignment %s is %s: %w", a.ID, a.Status, ErrInvalidState)
	}
	p, err := s.passengers.Get(ctx, a.PassengerID)
	if err != nil {
		return dispatch.EnhanceSeed{}, err
	}
	seats, err := s.store.SeatsLeft(ctx, a.DriverID)
	if err != nil {
		return dispatch.EnhanceSeed{}, err
	}
	return dispatch.EnhanceSeed{
		AssignmentID: a.ID,
		DriverID:     a.DriverID,
		TripID:       a.TripID,
		Passenger:    *p,
		SeatsLeft:    seats,
		Version:      a.StatusVersion,
	}, nil
}

// AttachRider joins the candidate onto the seed assignment's run. The seed's
// version bump is the guard: if the assignment moved since the seed was read,
// the whole attach rolls back with ErrRaceCondition and the engine tries the
// next candidate.
func (s *Service) AttachRider(ctx context.Context, cmd dispatch.AttachRiderCommand) (types.ID, error) {
	seedAssignment, err := s.store.Get(ctx, cmd.Seed.AssignmentID)
	if err != nil {
		return "", err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	ok, err := s.store.BumpVersion(ctx, tx, cmd.Seed.AssignmentID, cmd.Seed.Version)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("assignment %s: %w", cmd.Seed.AssignmentID, dispatch.ErrRaceCondition)
	}

	ok, err = s.store.ClaimPassenger(ctx, tx, cmd.Candidate.ID, cmd.Seed.DriverID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("passenger %s: %w", cmd.Candidate.ID, dispatch.ErrRaceCondition)
	}

	now := time.Now()
	attached := &Assignment{
		ID:               newID(),
		DriverID:         cmd.Seed.DriverID,
		PassengerID:      cmd.Candidate.ID,
		Status:           StatusConfirmed,
		EstimatedPickup:  cmd.EstimatedPickup,
		EstimatedDropoff: cmd.EstimatedDropoff,
		CreatedAt:        now,
	}

	if cmd.Seed.TripID != nil {
		t, err := s.trips.Get(ctx, *cmd.Seed.TripID)
		if err != nil {
			return "", err
		}
		newStops := []trip.Stop{
			{Seq: len(t.Stops), PassengerID: cmd.Candidate.ID, Kind: trip.StopPickup, Point: cmd.Candidate.Pickup, ETA: cmd.EstimatedPickup},
			{Seq: len(t.Stops) + 1, PassengerID: cmd.Candidate.ID, Kind: trip.StopDropoff, Point: cmd.Candidate.Dropoff, ETA: cmd.EstimatedDropoff},
		}
		ok, err := s.trips.AppendStops(ctx, tx, t.ID, t.Version, newStops)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("trip %s: %w", t.ID, dispatch.ErrRaceCondition)
		}
		attached.TripID = &t.ID
	} else {
		seed := cmd.Seed.Passenger
		t := &trip.Trip{
			ID:       newID(),
			DriverID: cmd.Seed.DriverID,
			Stops: []trip.Stop{
				{Seq: 0, PassengerID: seed.ID, Kind: trip.StopPickup, Point: seed.Pickup, ETA: seedAssignment.EstimatedPickup},
				{Seq: 1, PassengerID: cmd.Candidate.ID, Kind: trip.StopPickup, Point: cmd.Candidate.Pickup, ETA: cmd.EstimatedPickup},
				{Seq: 2, PassengerID: seed.ID, Kind: trip.StopDropoff, Point: seed.Dropoff, ETA: seedAssignment.EstimatedDropoff},
				{Seq: 3, PassengerID: cmd.Candidate.ID, Kind: trip.StopDropoff, Point: cmd.Candidate.Dropoff, ETA: cmd.EstimatedDropoff},
			},
			CreatedAt: now,
		}
		if err := s.trips.Create(ctx, tx, t); err != nil {
			return "", err
		}
		if err := s.store.SetTrip(ctx, tx, cmd.Seed.AssignmentID, t.ID); err != nil {
			return "", err
		}
		if err := s.store.SetDriverTrip(ctx, tx, cmd.Seed.DriverID, t.ID); err != nil {
			return "", err
		}
		attached.TripID = &t.ID
	}

	if err := s.store.Create(ctx, tx, attached); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return attached.ID, nil
}

// planMembers flattens a plan to the passengers it binds: the merged rider's
// members, or the single rider itself.
func planMembers(plan dispatch.AssignmentPlan) []passenger.Passenger {
	if plan.Rider.Merged() {
		return plan.Rider.Members
	}
	return []passenger.Passenger{{
		ID:        plan.Rider.ID,
		Pickup:    plan.Rider.Pickup,
		Dropoff:   plan.Rider.Dropoff,
		GroupSize: plan.Rider.GroupSize,
	}}
}

// memberEstimates prefers the route-parsed per-member ETAs where refinement
// produced them, falling back to the plan-level estimates.
func memberEstimates(plan dispatch.AssignmentPlan, id types.ID) (pickup, dropoff time.Time) {
	if eta, ok := plan.MemberETAs[id]; ok {
		return eta.Pickup, eta.Dropoff
	}
	return plan.EstimatedPickup, plan.EstimatedDropoff
}

// tripStops lays out the shared run: member pickups in order, then member
// dropoffs. Route refinement may have already produced a better ordering;
// the stop ETAs carry it either way.
func tripStops(plan dispatch.AssignmentPlan, members []passenger.Passenger) []trip.Stop {
	stops := make([]trip.Stop, 0, 2*len(members))
	for _, m := range members {
		pickup, _ := memberEstimates(plan, m.ID)
		stops = append(stops, trip.Stop{
			Seq: len(stops), PassengerID: m.ID, Kind: trip.StopPickup, Point: m.Pickup, ETA: pickup,
		})
	}
	for _, m := range members {
		_, dropoff := memberEstimates(plan, m.ID)
		stops = append(stops, trip.Stop{
			Seq: len(stops), PassengerID: m.ID, Kind: trip.StopDropoff, Point: m.Dropoff, ETA: dropoff,
		})
	}
	return stops
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

func newID() types.ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return types.ID(hex.EncodeToString(b[:]))
}
