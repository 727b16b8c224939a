// README: Assignment store backed by PostgreSQL. The commit-path methods take
// the caller's transaction because claiming the passenger and the driver must
// land (or fail) together with the assignment row.
package assignment

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridepool/internal/types"
)

var ErrNotFound = errors.New("assignment not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const selectColumns = `
	id, driver_id, passenger_id, trip_id, status, status_version,
	estimated_pickup, estimated_dropoff, created_at, picked_up_at, completed_at`

func (s *Store) Create(ctx context.Context, tx pgx.Tx, a *Assignment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO assignments (
			id, driver_id, passenger_id, trip_id, status, status_version,
			estimated_pickup, estimated_dropoff, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		string(a.ID),
		string(a.DriverID),
		string(a.PassengerID),
		toStringPtr(a.TripID),
		string(a.Status),
		a.StatusVersion,
		a.EstimatedPickup,
		a.EstimatedDropoff,
		a.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Assignment, error) {
	row := s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM assignments WHERE id = $1`, string(id))
	a, err := scanAssignment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// UpdateStatus is the version-guarded transition write. Zero rows affected
// means another writer moved the assignment first. at is the actual event
// time reported by the caller (pickup or dropoff).
func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE assignments
		SET status = $1,
		    status_version = status_version + 1,
		    picked_up_at = CASE WHEN $1 = 'in_progress' THEN $5 ELSE picked_up_at END,
		    completed_at = CASE WHEN $1 = 'completed' THEN $5 ELSE completed_at END
		WHERE id = $2 AND status = $3 AND status_version = $4`,
		string(to), string(id), string(from), version, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// BumpVersion reserves the assignment for an in-flight mutation (trip
// enhancement) without changing status.
func (s *Store) BumpVersion(ctx context.Context, tx pgx.Tx, id types.ID, version int) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE assignments
		SET status_version = status_version + 1
		WHERE id = $1 AND status_version = $2 AND status = 'confirmed'`,
		string(id), version)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) SetTrip(ctx context.Context, tx pgx.Tx, id, tripID types.ID) error {
	_, err := tx.Exec(ctx, `UPDATE assignments SET trip_id = $2 WHERE id = $1`,
		string(id), string(tripID))
	return err
}

func (s *Store) ListByTrip(ctx context.Context, tripID types.ID) ([]Assignment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+selectColumns+` FROM assignments WHERE trip_id = $1 ORDER BY created_at`,
		string(tripID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAssignments(rows)
}

func (s *Store) ListActiveByDriver(ctx context.Context, driverID types.ID) ([]Assignment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+selectColumns+` FROM assignments
		WHERE driver_id = $1 AND status IN ('confirmed', 'in_progress')
		ORDER BY estimated_pickup`,
		string(driverID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAssignments(rows)
}

// ClaimPassenger conditionally moves a passenger from unassigned to assigned
// inside the commit transaction. Zero rows means a concurrent cycle or an
// enhancement won the passenger.
func (s *Store) ClaimPassenger(ctx context.Context, tx pgx.Tx, passengerID, driverID types.ID) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE passengers
		SET status = 'assigned', assigned_driver = $2
		WHERE id = $1 AND status = 'unassigned'`,
		string(passengerID), string(driverID))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ClaimDriver marks the driver en route inside the commit transaction,
// conditional on the row version the plan was built against. Chained legs
// planned by the same cycle carry consecutive versions and land in order,
// while a plan built from a stale snapshot affects zero rows and loses.
func (s *Store) ClaimDriver(ctx context.Context, tx pgx.Tx, driverID, assignmentID types.ID, version int) (bool, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE drivers
		SET status = 'en_route_pickup',
		    status_version = status_version + 1,
		    current_assignment = COALESCE(current_assignment, $2)
		WHERE id = $1 AND status_version = $3
		  AND status IN ('idle', 'en_route_pickup', 'en_route_dropoff')`,
		string(driverID), string(assignmentID), version)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) SetDriverTrip(ctx context.Context, tx pgx.Tx, driverID, tripID types.ID) error {
	_, err := tx.Exec(ctx, `UPDATE drivers SET current_trip = $2 WHERE id = $1`,
		string(driverID), string(tripID))
	return err
}

// SeatsLeft is the driver's capacity minus the group sizes of every active
// assignment's passenger.
func (s *Store) SeatsLeft(ctx context.Context, driverID types.ID) (int, error) {
	row := s.db.QueryRow(ctx, `
		SELECT d.capacity - COALESCE(SUM(p.group_size), 0)
		FROM drivers d
		LEFT JOIN assignments a ON a.driver_id = d.id AND a.status IN ('confirmed', 'in_progress')
		LEFT JOIN passengers p ON p.id = a.passenger_id
		WHERE d.id = $1
		GROUP BY d.capacity`,
		string(driverID))
	var seats int
	if err := row.Scan(&seats); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return seats, nil
}

func collectAssignments(rows pgx.Rows) ([]Assignment, error) {
	var out []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAssignment(row pgx.Row) (*Assignment, error) {
	var a Assignment
	var tripID *string
	var pickedUpAt, completedAt *time.Time
	err := row.Scan(
		&a.ID, &a.DriverID, &a.PassengerID, &tripID, &a.Status, &a.StatusVersion,
		&a.EstimatedPickup, &a.EstimatedDropoff, &a.CreatedAt, &pickedUpAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}
	if tripID != nil {
		v := types.ID(*tripID)
		a.TripID = &v
	}
	a.PickedUpAt = pickedUpAt
	a.CompletedAt = completedAt
	return &a, nil
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}
