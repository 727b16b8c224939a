// README: Carpool detector — pairwise-compares unassigned riders and greedily
// merges compatible pairs into virtual riders.
package dispatch

import (
	"log/slog"
	"sort"
	"time"

	"ridepool/internal/modules/geo"
)

type CarpoolConfig struct {
	PickupRadiusKm float64
	MinOverlap     time.Duration
	MinDirection   float64
	MaxGroupSize   int
}

// candidatePair ranks a surviving pair by a weighted blend of pickup
// closeness, window tightness, and direction alignment.
type candidatePair struct {
	i, j  int
	score float64
}

type Detector struct {
	cfg CarpoolConfig
	log *slog.Logger
}

func NewDetector(cfg CarpoolConfig, log *slog.Logger) *Detector {
	return &Detector{cfg: cfg, log: log}
}

// Detect partitions riders into merged virtual riders and the remaining
// singles. No rider ever appears in two groups; members of a merged rider are
// excluded from the individual pool for the cycle.
func (d *Detector) Detect(riders []Rider) (merged []Rider, singles []Rider) {
	var pairs []candidatePair
	for i := 0; i < len(riders); i++ {
		for j := i + 1; j < len(riders); j++ {
			if score, ok := d.compatible(riders[i], riders[j]); ok {
				pairs = append(pairs, candidatePair{i: i, j: j, score: score})
			}
		}
	}

	sort.Slice(pairs, func(a, b int) bool { return pairs[a].score > pairs[b].score })

	used := make(map[int]bool, len(riders))
	for _, p := range pairs {
		if used[p.i] || used[p.j] {
			continue
		}
		used[p.i], used[p.j] = true, true
		group := mergeRiders(riders[p.i], riders[p.j])
		merged = append(merged, group)
		d.log.Debug("carpool pair formed",
			"a", riders[p.i].ID, "b", riders[p.j].ID, "score", p.score)
	}

	for i, r := range riders {
		if !used[i] {
			singles = append(singles, r)
		}
	}
	return merged, singles
}

// compatible applies the pairwise filters and, when all pass, returns the
// ranking score.
func (d *Detector) compatible(a, b Rider) (float64, bool) {
	if a.GroupSize+b.GroupSize > d.cfg.MaxGroupSize {
		return 0, false
	}

	dist := geo.HaversineKm(a.Pickup, b.Pickup)
	if dist > d.cfg.PickupRadiusKm {
		return 0, false
	}

	overlap := windowOverlap(a, b)
	if overlap < d.cfg.MinOverlap {
		return 0, false
	}

	direction := geo.DirectionSimilarity(a.Pickup, a.Dropoff, b.Pickup, b.Dropoff)
	if direction < d.cfg.MinDirection {
		return 0, false
	}

	closeness := 1 - dist/d.cfg.PickupRadiusKm
	tightness := overlap.Minutes() / 60
	if tightness > 1 {
		tightness = 1
	}
	return 0.4*closeness + 0.2*tightness + 0.4*direction, true
}

// windowOverlap is min(latest_a, latest_b) − max(earliest_a, earliest_b);
// negative when the windows are disjoint.
func windowOverlap(a, b Rider) time.Duration {
	start := a.WindowStart
	if b.WindowStart.After(start) {
		start = b.WindowStart
	}
	end := a.WindowEnd
	if b.WindowEnd.Before(end) {
		end = b.WindowEnd
	}
	return end.Sub(start)
}
