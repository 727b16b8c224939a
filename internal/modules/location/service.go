// README: Location service handles high-frequency driver position updates and
// keeps the GEO candidate pool in sync.
package location

import (
	"context"
	"errors"
	"time"

	"ridepool/internal/types"
)

var ErrUnknownDriver = errors.New("unknown driver")

// PositionStore is the persistence surface for position writes.
type PositionStore interface {
	UpdatePosition(ctx context.Context, id types.ID, pos types.Point) (bool, error)
	AppendSnapshot(ctx context.Context, snap Snapshot) error
}

// GeoIndex mirrors accepted positions into the candidate pool so the dispatch
// prefilter sees them without waiting for the next tick.
type GeoIndex interface {
	AddAvailableDriver(ctx context.Context, id types.ID, p types.Point) error
}

type Service struct {
	store PositionStore
	geo   GeoIndex
	now   func() time.Time
}

func NewService(store PositionStore, geo GeoIndex) *Service {
	return &Service{store: store, geo: geo, now: time.Now}
}

type Update struct {
	DriverID types.ID
	Position types.Point
}

// Update persists the position and refreshes the GEO index. The snapshot row
// is history, written best-effort after the authoritative position lands.
func (s *Service) Update(ctx context.Context, u Update) error {
	ok, err := s.store.UpdatePosition(ctx, u.DriverID, u.Position)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnknownDriver
	}
	if s.geo != nil {
		if err := s.geo.AddAvailableDriver(ctx, u.DriverID, u.Position); err != nil {
			return err
		}
	}
	_ = s.store.AppendSnapshot(ctx, Snapshot{
		DriverID:   u.DriverID,
		Position:   u.Position,
		RecordedAt: s.now(),
	})
	return nil
}
