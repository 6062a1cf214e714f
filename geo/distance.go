// Package geo provides the great-circle distance used by the matching
// engine.
package geo

import "math"

// earthRadius in meters.
const earthRadius = 6372800

// Distance returns the great-circle distance in meters between two WGS84
// coordinate pairs, computed with the haversine formula. It is symmetric
// in its two pairs and zero for identical ones. NaN inputs propagate to a
// NaN result.
func Distance(lat1, long1, lat2, long2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLong := radians(long2 - long1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*math.Sin(dLong/2)*math.Sin(dLong/2)
	c := 2 * math.Asin(math.Sqrt(a))

	return earthRadius * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
