package geo

import (
	"math"

	"alert-engine/internal/models"
)

// kmPerDegree is the approximate length of one degree of latitude.
const kmPerDegree = 111.0

// BuildBufferPolygon approximates a circular buffer of radiusKm around a
// point with a rectangular 5-point closed ring in (lon, lat) order. The
// longitude half-width grows toward the poles because longitude degrees
// shrink with cos(lat).
func BuildBufferPolygon(lat, lon, radiusKm float64) *models.Polygon {
	dLat := radiusKm / kmPerDegree
	dLon := radiusKm / (kmPerDegree * math.Cos(lat*math.Pi/180))

	ring := [][2]float64{
		{lon - dLon, lat - dLat},
		{lon + dLon, lat - dLat},
		{lon + dLon, lat + dLat},
		{lon - dLon, lat + dLat},
		{lon - dLon, lat - dLat},
	}

	return &models.Polygon{
		Type:        "Polygon",
		Coordinates: [][][2]float64{ring},
	}
}
