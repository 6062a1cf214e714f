package geo

import (
	"math"
	"testing"
)

func TestDistanceZero(t *testing.T) {
	if d := Distance(50.06143, 19.93658, 50.06143, 19.93658); d != 0 {
		t.Errorf("distance between identical points = %v, want 0", d)
	}
	if d := Distance(0, 0, 0, 0); d != 0 {
		t.Errorf("distance at origin = %v, want 0", d)
	}
}

func TestDistanceSymmetric(t *testing.T) {
	pairs := [][4]float64{
		{50.06143, 19.93658, 52.22977, 21.01178}, // Krakow - Warszawa
		{0, 0, 0, 180},
		{-33.8688, 151.2093, 51.5074, -0.1278},
		{89.9, 0, -89.9, 0},
	}
	for _, p := range pairs {
		ab := Distance(p[0], p[1], p[2], p[3])
		ba := Distance(p[2], p[3], p[0], p[1])
		if ab != ba {
			t.Errorf("Distance(%v) = %v, reversed = %v", p, ab, ba)
		}
	}
}

func TestDistanceKnownValues(t *testing.T) {
	tests := []struct {
		lat1, long1, lat2, long2 float64
		want                     float64 // meters
		tol                      float64
	}{
		// one degree of latitude on the prime meridian
		{0, 0, 1, 0, 111223, 10},
		// Krakow main square to Wawel castle, roughly 770 m
		{50.06143, 19.93658, 50.05457, 19.93533, 768, 5},
		// antipodal points: half the Earth circumference
		{0, 0, 0, 180, math.Pi * 6372800, 1},
	}
	for _, tt := range tests {
		got := Distance(tt.lat1, tt.long1, tt.lat2, tt.long2)
		if math.Abs(got-tt.want) > tt.tol {
			t.Errorf("Distance(%v,%v,%v,%v) = %v, want %v ± %v",
				tt.lat1, tt.long1, tt.lat2, tt.long2, got, tt.want, tt.tol)
		}
	}
}

func TestDistanceMonotonic(t *testing.T) {
	// growing angular separation must grow the distance
	last := -1.0
	for sep := 0.0001; sep < 10; sep *= 2 {
		d := Distance(50, 20, 50+sep, 20)
		if d <= last {
			t.Fatalf("distance %v at separation %v not greater than %v", d, sep, last)
		}
		last = d
	}
}

func TestDistanceNaN(t *testing.T) {
	if d := Distance(math.NaN(), 20, 50, 20); !math.IsNaN(d) {
		t.Errorf("NaN input produced %v, want NaN", d)
	}
	if d := Distance(50, 20, 50, math.NaN()); !math.IsNaN(d) {
		t.Errorf("NaN input produced %v, want NaN", d)
	}
}
