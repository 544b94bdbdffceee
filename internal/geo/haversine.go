// Package geo holds the great-circle math used by live tracking.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used by Distance.
const EarthRadiusMeters = 6371000.0

// Point is a WGS84 coordinate in degrees, in GeoJSON order.
type Point struct {
	Lon float64
	Lat float64
}

// FromPair builds a Point from a [lon, lat] pair.
func FromPair(p [2]float64) Point {
	return Point{Lon: p[0], Lat: p[1]}
}

func (p Point) Pair() [2]float64 {
	return [2]float64{p.Lon, p.Lat}
}

func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}

	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Distance returns the haversine distance between a and b in meters.
func Distance(a, b Point) float64 {
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon

	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Within reports whether b lies inside the radius (meters) around a.
func Within(a, b Point, radius float64) bool {
	return Distance(a, b) <= radius
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
