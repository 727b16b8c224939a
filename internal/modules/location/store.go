// README: Location store: driver positions in Postgres, history as snapshots.
package location

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"ridepool/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// UpdatePosition writes the driver's current position. Zero rows means an
// unknown driver.
func (s *Store) UpdatePosition(ctx context.Context, id types.ID, pos types.Point) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE drivers SET lat = $2, lng = $3 WHERE id = $1`,
		string(id), pos.Lat, pos.Lng)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AppendSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO driver_location_snapshots (driver_id, lat, lng, recorded_at)
		VALUES ($1, $2, $3, $4)`,
		string(snap.DriverID), snap.Position.Lat, snap.Position.Lng, snap.RecordedAt)
	return err
}
