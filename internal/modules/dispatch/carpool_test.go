// README: Carpool detector tests: pairwise filters, greedy selection,
// exclusivity of merged members.
package dispatch

import (
	"testing"
	"time"

	"ridepool/internal/types"
)

func carpoolConfig() CarpoolConfig {
	return CarpoolConfig{
		PickupRadiusKm: 1.5,
		MinOverlap:     10 * time.Minute,
		MinDirection:   0.6,
		MaxGroupSize:   4,
	}
}

// northbound builds a rider heading due north from the given pickup.
func northbound(id string, pickupLat float64, start, end time.Time) Rider {
	return Rider{
		ID:           types.ID(id),
		Pickup:       types.Point{Lat: pickupLat, Lng: 121.56},
		Dropoff:      types.Point{Lat: pickupLat + 0.06, Lng: 121.56},
		WindowStart:  start,
		WindowEnd:    end,
		RideDuration: 20 * time.Minute,
		GroupSize:    1,
	}
}

func TestDetect_NearbyAlignedPairMerges(t *testing.T) {
	d := NewDetector(carpoolConfig(), testLogger())

	// a and b pick up ~45m apart; c is ~5km north.
	a := northbound("a", 25.0400, at(8, 0), at(8, 30))
	b := northbound("b", 25.0404, at(8, 5), at(8, 35))
	c := northbound("c", 25.0850, at(8, 0), at(8, 30))

	merged, singles := d.Detect([]Rider{a, b, c})
	if len(merged) != 1 {
		t.Fatalf("merged groups = %d, want 1", len(merged))
	}
	if len(singles) != 1 || singles[0].ID != "c" {
		t.Fatalf("singles = %v, want just c", singles)
	}

	g := merged[0]
	if len(g.Members) != 2 {
		t.Fatalf("group members = %d, want 2", len(g.Members))
	}
	if g.GroupSize != 2 {
		t.Errorf("group size = %d, want 2", g.GroupSize)
	}
	// Window is the intersection of the members' windows.
	if !g.WindowStart.Equal(at(8, 5)) || !g.WindowEnd.Equal(at(8, 30)) {
		t.Errorf("group window = [%v, %v], want [08:05, 08:30]", g.WindowStart, g.WindowEnd)
	}
}

func TestDetect_OppositeDirectionsNeverMerge(t *testing.T) {
	d := NewDetector(carpoolConfig(), testLogger())

	a := northbound("a", 25.0400, at(8, 0), at(8, 30))
	b := a
	b.ID = "b"
	b.Pickup = types.Point{Lat: 25.0404, Lng: 121.56}
	b.Dropoff = types.Point{Lat: 24.9800, Lng: 121.56} // southbound

	merged, singles := d.Detect([]Rider{a, b})
	if len(merged) != 0 {
		t.Fatalf("merged groups = %d, want 0", len(merged))
	}
	if len(singles) != 2 {
		t.Fatalf("singles = %d, want 2", len(singles))
	}
}

func TestDetect_DisjointWindowsNeverMerge(t *testing.T) {
	d := NewDetector(carpoolConfig(), testLogger())

	a := northbound("a", 25.0400, at(8, 0), at(8, 30))
	b := northbound("b", 25.0404, at(9, 0), at(9, 30))

	merged, _ := d.Detect([]Rider{a, b})
	if len(merged) != 0 {
		t.Fatalf("disjoint windows merged: %v", merged)
	}
}

func TestDetect_GroupSizeRespectsCapacity(t *testing.T) {
	d := NewDetector(carpoolConfig(), testLogger())

	a := northbound("a", 25.0400, at(8, 0), at(8, 30))
	a.GroupSize = 2
	b := northbound("b", 25.0404, at(8, 0), at(8, 30))
	b.GroupSize = 3

	merged, _ := d.Detect([]Rider{a, b})
	if len(merged) != 0 {
		t.Fatalf("oversized pair merged: %v", merged)
	}
}

func TestDetect_MembersAreExclusive(t *testing.T) {
	d := NewDetector(carpoolConfig(), testLogger())

	// Three mutually compatible riders: exactly one pair forms, the third
	// stays single — no rider may appear in two groups.
	a := northbound("a", 25.0400, at(8, 0), at(8, 30))
	b := northbound("b", 25.0404, at(8, 0), at(8, 30))
	c := northbound("c", 25.0408, at(8, 0), at(8, 30))

	merged, singles := d.Detect([]Rider{a, b, c})
	if len(merged) != 1 {
		t.Fatalf("merged groups = %d, want 1", len(merged))
	}
	if len(singles) != 1 {
		t.Fatalf("singles = %d, want 1", len(singles))
	}

	seen := map[types.ID]int{}
	for _, m := range merged[0].Members {
		seen[m.ID]++
	}
	seen[singles[0].ID]++
	if len(seen) != 3 {
		t.Errorf("every rider must appear exactly once, got %v", seen)
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("rider %s appears %d times", id, n)
		}
	}
}

func TestMergeRiders_DropoffOfLongerRide(t *testing.T) {
	a := northbound("a", 25.0400, at(8, 0), at(8, 30))
	a.RideDuration = 15 * time.Minute
	b := northbound("b", 25.0404, at(8, 0), at(8, 30))
	b.RideDuration = 25 * time.Minute

	g := mergeRiders(a, b)
	if g.Dropoff != b.Dropoff {
		t.Errorf("merged dropoff = %v, want the longer ride's (%v)", g.Dropoff, b.Dropoff)
	}
	if g.RideDuration != 25*time.Minute {
		t.Errorf("merged ride duration = %v, want 25m", g.RideDuration)
	}
	wantLat := (a.Pickup.Lat + b.Pickup.Lat) / 2
	if g.Pickup.Lat != wantLat {
		t.Errorf("merged pickup lat = %f, want midpoint %f", g.Pickup.Lat, wantLat)
	}
}
