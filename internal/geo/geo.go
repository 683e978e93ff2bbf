// Package geo provides great-circle geometry for the location gate.
package geo

import "math"

// earthRadiusM is the mean Earth radius in meters used by the haversine
// formula.
const earthRadiusM = 6371000

// Distance returns the great-circle distance in meters between two points
// given in decimal degrees. It is deterministic and pure: NaN or out-of-range
// coordinates propagate as NaN, which callers must reject during input
// validation before calling this function.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := radians(lat1)
	phi2 := radians(lat2)
	dPhi := radians(lat2 - lat1)
	dLambda := radians(lon2 - lon1)

	sinPhi := math.Sin(dPhi / 2)
	sinLambda := math.Sin(dLambda / 2)

	a := sinPhi*sinPhi + math.Cos(phi1)*math.Cos(phi2)*sinLambda*sinLambda
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusM * c
}

// ValidCoordinate reports whether lat/lon form a finite coordinate within
// the WGS84 domain.
func ValidCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
