// README: Trip store backed by PostgreSQL; stop appends are version-guarded.
package trip

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ridepool/internal/types"
)

var (
	ErrNotFound = errors.New("trip not found")
	ErrConflict = errors.New("trip version conflict")
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Create inserts the trip and its stops inside the caller's transaction when
// tx is non-nil, else on the pool.
func (s *Store) Create(ctx context.Context, tx pgx.Tx, t *Trip) error {
	exec := execer(s.db, tx)
	_, err := exec.Exec(ctx, `
		INSERT INTO trips (id, driver_id, version, created_at)
		VALUES ($1, $2, $3, $4)`,
		string(t.ID), string(t.DriverID), t.Version, t.CreatedAt)
	if err != nil {
		return err
	}
	for _, stop := range t.Stops {
		if err := insertStop(ctx, exec, t.ID, stop); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Trip, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, driver_id, version, created_at FROM trips WHERE id = $1`, string(id))
	var t Trip
	if err := row.Scan(&t.ID, &t.DriverID, &t.Version, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.Query(ctx, `
		SELECT seq, passenger_id, kind, lat, lng, eta
		FROM trip_stops WHERE trip_id = $1 ORDER BY seq`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var stop Stop
		if err := rows.Scan(&stop.Seq, &stop.PassengerID, &stop.Kind,
			&stop.Point.Lat, &stop.Point.Lng, &stop.ETA); err != nil {
			return nil, err
		}
		t.Stops = append(t.Stops, stop)
	}
	return &t, rows.Err()
}

// AppendStops adds stops to an existing trip iff the version still matches,
// bumping it. Used by trip enhancement, which races with dispatch cycles.
func (s *Store) AppendStops(ctx context.Context, tx pgx.Tx, id types.ID, version int, stops []Stop) (bool, error) {
	exec := execer(s.db, tx)
	tag, err := exec.Exec(ctx, `
		UPDATE trips SET version = version + 1
		WHERE id = $1 AND version = $2`,
		string(id), version)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	for _, stop := range stops {
		if err := insertStop(ctx, exec, id, stop); err != nil {
			return false, err
		}
	}
	return true, nil
}

// executor abstracts pgxpool.Pool and pgx.Tx so writes can join a caller's
// transaction.
type executor interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func execer(db *pgxpool.Pool, tx pgx.Tx) executor {
	if tx != nil {
		return tx
	}
	return db
}

func insertStop(ctx context.Context, exec executor, tripID types.ID, stop Stop) error {
	_, err := exec.Exec(ctx, `
		INSERT INTO trip_stops (trip_id, seq, passenger_id, kind, lat, lng, eta)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(tripID), stop.Seq, string(stop.PassengerID), string(stop.Kind),
		stop.Point.Lat, stop.Point.Lng, stop.ETA)
	return err
}
