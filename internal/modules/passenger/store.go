// README: Passenger store backed by PostgreSQL with conditional status updates.
package passenger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridepool/internal/types"
)

var ErrNotFound = errors.New("passenger not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const selectColumns = `
	id, pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
	window_start, window_end, ride_duration_seconds, group_size,
	status, assigned_driver, created_at`

// ListUnassigned returns the unassigned snapshot for a dispatch cycle. When
// day is non-nil only passengers whose window starts on that date are
// returned.
func (s *Store) ListUnassigned(ctx context.Context, day *time.Time) ([]Passenger, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+selectColumns+`
		FROM passengers
		WHERE status = 'unassigned'
		  AND ($1::date IS NULL OR window_start::date = $1::date)
		ORDER BY window_start NULLS LAST, created_at`, dayArg(day))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPassengers(rows)
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Passenger, error) {
	row := s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM passengers WHERE id = $1`, string(id))
	p, err := scanPassenger(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Release returns an assigned passenger to the pool after a cancellation, so
// the next cycle picks it up again.
func (s *Store) Release(ctx context.Context, id types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE passengers
		SET status = 'unassigned', assigned_driver = NULL
		WHERE id = $1 AND status = 'assigned'`,
		string(id))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) MarkDroppedOff(ctx context.Context, id types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE passengers
		SET status = 'dropped_off'
		WHERE id = $1 AND status = 'assigned'`,
		string(id))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func dayArg(day *time.Time) any {
	if day == nil {
		return nil
	}
	return day.Format("2006-01-02")
}

func scanPassengers(rows pgx.Rows) ([]Passenger, error) {
	var out []Passenger
	for rows.Next() {
		p, err := scanPassenger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanPassenger(row pgx.Row) (*Passenger, error) {
	var p Passenger
	var driverID *string
	var rideSeconds int64
	err := row.Scan(
		&p.ID, &p.Pickup.Lat, &p.Pickup.Lng, &p.Dropoff.Lat, &p.Dropoff.Lng,
		&p.WindowStart, &p.WindowEnd, &rideSeconds, &p.GroupSize,
		&p.Status, &driverID, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.RideDuration = time.Duration(rideSeconds) * time.Second
	if driverID != nil {
		d := types.ID(*driverID)
		p.AssignedDriver = &d
	}
	return &p, nil
}
