// README: Candidate pool backed by Redis GEO, plus the cross-instance cycle
// lock. The pool is an index, never the source of truth: dispatch re-reads
// driver state from PostgreSQL before planning.
package matching

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"ridepool/internal/types"
)

const (
	driverGeoKey = "dispatch:drivers"
	cycleLockKey = "dispatch:cycle:lock"
	// cycleLockTTL bounds how long a crashed instance can hold the lock.
	cycleLockTTL = 2 * time.Minute
)

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

// AddAvailableDriver indexes (or refreshes) a driver's position.
func (s *Store) AddAvailableDriver(ctx context.Context, id types.ID, p types.Point) error {
	return s.redis.GeoAdd(ctx, driverGeoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
}

// RemoveDriver drops a driver from the pool, typically on claim or shift end.
func (s *Store) RemoveDriver(ctx context.Context, id types.ID) error {
	return s.redis.ZRem(ctx, driverGeoKey, string(id)).Err()
}

// NearbyDrivers returns pool members within radiusKm of p, nearest first.
func (s *Store) NearbyDrivers(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error) {
	results, err := s.redis.GeoSearch(ctx, driverGeoKey, &redis.GeoSearchQuery{
		Longitude:  p.Lng,
		Latitude:   p.Lat,
		Radius:     radiusKm,
		RadiusUnit: "km",
		Sort:       "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(results))
	for i, r := range results {
		ids[i] = types.ID(r)
	}
	return ids, nil
}

// AcquireCycleLock takes the cluster-wide dispatch lock. Returns false when
// another instance is mid-cycle; the caller skips its tick.
func (s *Store) AcquireCycleLock(ctx context.Context, owner string) (bool, error) {
	return s.redis.SetNX(ctx, cycleLockKey, owner, cycleLockTTL).Result()
}

// releaseScript deletes the lock only if we still own it, so a slow cycle
// whose lock expired cannot release the next holder's lock.
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

func (s *Store) ReleaseCycleLock(ctx context.Context, owner string) error {
	return releaseScript.Run(ctx, s.redis, []string{cycleLockKey}, owner).Err()
}
