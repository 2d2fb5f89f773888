package geofencing

import (
	"math"

	"github.com/nandanugg/geotrack/module/core/domain"
)

const earthRadiusMeters = 6371000

// Distance is the great-circle distance between a and b in meters.
func Distance(a, b domain.GeoPoint) float64 {
	return haversine(a.Lat, a.Lon, b.Lat, b.Lon)
}

func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
