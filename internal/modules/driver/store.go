// README: Driver store backed by PostgreSQL with conditional status updates.
package driver

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridepool/internal/types"
)

var ErrNotFound = errors.New("driver not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const selectColumns = `
	id, lat, lng, available_from, available_until, capacity,
	status, status_version, current_assignment, current_trip`

// ListAvailable returns idle drivers whose shift has not ended.
func (s *Store) ListAvailable(ctx context.Context) ([]Driver, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+selectColumns+`
		FROM drivers
		WHERE status = 'idle' AND available_until > NOW()
		ORDER BY available_from`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Driver, error) {
	row := s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM drivers WHERE id = $1`, string(id))
	d, err := scanDriver(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Transition performs a conditional status update without touching pointers.
func (s *Store) Transition(ctx context.Context, id types.ID, from, to Status) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE drivers
		SET status = $3, status_version = status_version + 1
		WHERE id = $1 AND status = $2`,
		string(id), string(from), string(to))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Release returns the driver to idle at its new location and clears the
// assignment/trip pointers. Covers both the drop-off path and a cancellation
// while still en route to the pickup.
func (s *Store) Release(ctx context.Context, id types.ID, at types.Point) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE drivers
		SET status = 'idle', status_version = status_version + 1,
		    current_assignment = NULL, current_trip = NULL,
		    lat = $2, lng = $3
		WHERE id = $1 AND status IN ('en_route_pickup', 'en_route_dropoff', 'post_dropoff')`,
		string(id), at.Lat, at.Lng)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanDriver(row pgx.Row) (*Driver, error) {
	var d Driver
	var assignmentID, tripID *string
	err := row.Scan(
		&d.ID, &d.Location.Lat, &d.Location.Lng,
		&d.AvailableFrom, &d.AvailableUntil, &d.Capacity,
		&d.Status, &d.StatusVersion, &assignmentID, &tripID,
	)
	if err != nil {
		return nil, err
	}
	if assignmentID != nil {
		v := types.ID(*assignmentID)
		d.CurrentAssignment = &v
	}
	if tripID != nil {
		v := types.ID(*tripID)
		d.CurrentTrip = &v
	}
	return &d, nil
}
