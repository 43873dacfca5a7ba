package geo

import (
	"math"
	"testing"
)

func TestHaversine(t *testing.T) {
	tests := []struct {
		name             string
		lat1, lon1       float64
		lat2, lon2       float64
		wantMeters       float64
		tolerancePercent float64
	}{
		{
			name: "Singapore CBD to Changi Airport",
			lat1: 1.2830, lon1: 103.8513,
			lat2: 1.3644, lon2: 103.9915,
			wantMeters:       18_023,
			tolerancePercent: 1,
		},
		{
			name: "Same point",
			lat1: 1.3521, lon1: 103.8198,
			lat2: 1.3521, lon2: 103.8198,
			wantMeters:       0,
			tolerancePercent: 0,
		},
		{
			name: "London to Paris",
			lat1: 51.5074, lon1: -0.1278,
			lat2: 48.8566, lon2: 2.3522,
			wantMeters:       343_500,
			tolerancePercent: 1,
		},
		{
			name: "Short distance (~100m)",
			lat1: 1.3521, lon1: 103.8198,
			lat2: 1.3530, lon2: 103.8198,
			wantMeters:       100,
			tolerancePercent: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Haversine(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if tt.wantMeters == 0 {
				if got != 0 {
					t.Errorf("expected 0, got %f", got)
				}
				return
			}
			diff := math.Abs(got-tt.wantMeters) / tt.wantMeters * 100
			if diff > tt.tolerancePercent {
				t.Errorf("Haversine = %f m, want ~%f m (diff %.1f%%)", got, tt.wantMeters, diff)
			}
		})
	}
}

func TestPointToSegmentDist(t *testing.T) {
	// Horizontal segment ~1.1 km long at Singapore latitude.
	aLat, aLon := 1.3500, 103.8200
	bLat, bLon := 1.3500, 103.8300

	t.Run("projection inside segment", func(t *testing.T) {
		// Point above the midpoint.
		dist, ratio := PointToSegmentDist(1.3510, 103.8250, aLat, aLon, bLat, bLon)
		wantDist := Haversine(1.3510, 103.8250, 1.3500, 103.8250)
		if math.Abs(dist-wantDist)/wantDist > 0.01 {
			t.Errorf("dist = %f, want ~%f", dist, wantDist)
		}
		if math.Abs(ratio-0.5) > 0.01 {
			t.Errorf("ratio = %f, want ~0.5", ratio)
		}
	})

	t.Run("projection clamps to endpoint", func(t *testing.T) {
		dist, ratio := PointToSegmentDist(1.3500, 103.8100, aLat, aLon, bLat, bLon)
		wantDist := Haversine(1.3500, 103.8100, aLat, aLon)
		if math.Abs(dist-wantDist)/wantDist > 0.01 {
			t.Errorf("dist = %f, want ~%f", dist, wantDist)
		}
		if ratio != 0 {
			t.Errorf("ratio = %f, want 0", ratio)
		}
	})

	t.Run("point on segment", func(t *testing.T) {
		dist, ratio := PointToSegmentDist(1.3500, 103.8300, aLat, aLon, bLat, bLon)
		if dist > 0.001 {
			t.Errorf("dist = %f, want ~0", dist)
		}
		if ratio != 1 {
			t.Errorf("ratio = %f, want 1", ratio)
		}
	})

	t.Run("degenerate segment", func(t *testing.T) {
		dist, ratio := PointToSegmentDist(1.3510, 103.8200, aLat, aLon, aLat, aLon)
		wantDist := Haversine(1.3510, 103.8200, aLat, aLon)
		if math.Abs(dist-wantDist)/wantDist > 0.01 {
			t.Errorf("dist = %f, want ~%f", dist, wantDist)
		}
		if ratio != 0 {
			t.Errorf("ratio = %f, want 0", ratio)
		}
	})
}
