// README: Location service tests over in-memory store and GEO fakes.
package location

import (
	"context"
	"errors"
	"testing"
	"time"

	"ridepool/internal/types"
)

type memStore struct {
	known     map[types.ID]types.Point
	snapshots []Snapshot
	snapErr   error
}

func (m *memStore) UpdatePosition(_ context.Context, id types.ID, pos types.Point) (bool, error) {
	if _, ok := m.known[id]; !ok {
		return false, nil
	}
	m.known[id] = pos
	return true, nil
}

func (m *memStore) AppendSnapshot(_ context.Context, snap Snapshot) error {
	if m.snapErr != nil {
		return m.snapErr
	}
	m.snapshots = append(m.snapshots, snap)
	return nil
}

type memGeo struct {
	positions map[types.ID]types.Point
}

func (g *memGeo) AddAvailableDriver(_ context.Context, id types.ID, p types.Point) error {
	g.positions[id] = p
	return nil
}

func newTestService(store *memStore, geo *memGeo) *Service {
	svc := NewService(store, geo)
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC) }
	return svc
}

func TestUpdate_PersistsAndRefreshesGeo(t *testing.T) {
	store := &memStore{known: map[types.ID]types.Point{"d1": {}}}
	geo := &memGeo{positions: map[types.ID]types.Point{}}
	svc := newTestService(store, geo)

	pos := types.Point{Lat: 25.04, Lng: 121.56}
	if err := svc.Update(context.Background(), Update{DriverID: "d1", Position: pos}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if store.known["d1"] != pos {
		t.Errorf("stored position = %v, want %v", store.known["d1"], pos)
	}
	if geo.positions["d1"] != pos {
		t.Errorf("geo position = %v, want %v", geo.positions["d1"], pos)
	}
	if len(store.snapshots) != 1 || store.snapshots[0].DriverID != "d1" {
		t.Errorf("snapshots = %+v, want one row for d1", store.snapshots)
	}
}

func TestUpdate_UnknownDriver(t *testing.T) {
	store := &memStore{known: map[types.ID]types.Point{}}
	svc := newTestService(store, &memGeo{positions: map[types.ID]types.Point{}})

	err := svc.Update(context.Background(), Update{DriverID: "ghost"})
	if !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("err = %v, want ErrUnknownDriver", err)
	}
}

func TestUpdate_SnapshotFailureIsNotFatal(t *testing.T) {
	store := &memStore{known: map[types.ID]types.Point{"d1": {}}, snapErr: errors.New("history table down")}
	svc := newTestService(store, &memGeo{positions: map[types.ID]types.Point{}})

	if err := svc.Update(context.Background(), Update{DriverID: "d1"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
}

func TestUpdate_NoGeoIndexConfigured(t *testing.T) {
	store := &memStore{known: map[types.ID]types.Point{"d1": {}}}
	svc := NewService(store, nil)

	if err := svc.Update(context.Background(), Update{DriverID: "d1"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
}
